package domain

import (
	"math"
	"net/http"
	"time"
)

// Endpoint statuses.
const (
	EndpointStatusActive      = "active"
	EndpointStatusInactive    = "inactive"
	EndpointStatusDeprecated  = "deprecated"
	EndpointStatusBeta        = "beta"
	EndpointStatusMaintenance = "maintenance"
)

var endpointStatuses = map[string]struct{}{
	EndpointStatusActive:      {},
	EndpointStatusInactive:    {},
	EndpointStatusDeprecated:  {},
	EndpointStatusBeta:        {},
	EndpointStatusMaintenance: {},
}

// IsValidEndpointStatus reports whether status is one of the known values.
func IsValidEndpointStatus(status string) bool {
	_, ok := endpointStatuses[status]
	return ok
}

var endpointMethods = map[string]struct{}{
	http.MethodGet:     {},
	http.MethodPost:    {},
	http.MethodPut:     {},
	http.MethodPatch:   {},
	http.MethodDelete:  {},
	http.MethodHead:    {},
	http.MethodOptions: {},
}

// IsValidMethod reports whether method belongs to the fixed method set.
func IsValidMethod(method string) bool {
	_, ok := endpointMethods[method]
	return ok
}

// MethodAllowsBody reports whether the method conventionally carries a request body.
func MethodAllowsBody(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	}
	return false
}

// Endpoint is a registered API endpoint owned by a product.
type Endpoint struct {
	ID        string            `json:"id"`
	ProductID string            `json:"product_id"`
	Name      string            `json:"name"`
	Method    string            `json:"method"`
	BaseURL   string            `json:"base_url"`
	Path      string            `json:"path"`
	FullURL   string            `json:"full_url"`
	Headers   map[string]string `json:"headers,omitempty"`
	Status    string            `json:"status"`
	Metrics   EndpointMetrics   `json:"metrics"`
	CreatedAt time.Time         `json:"created_at"`
}

// EndpointMetrics holds running health counters for one endpoint. The
// recorder is the single writer; nothing recomputes these from history.
//
// TotalDurationMS backs AverageResponseTime exactly: the mean is always
// round(TotalDurationMS / TotalRequests), so repeated rounding of the
// running mean cannot drift from the batch mean.
type EndpointMetrics struct {
	TotalRequests       int64     `json:"total_requests"`
	SuccessfulRequests  int64     `json:"successful_requests"`
	FailedRequests      int64     `json:"failed_requests"`
	TotalDurationMS     int64     `json:"-"`
	AverageResponseTime int64     `json:"average_response_time"`
	LastRequestTime     time.Time `json:"last_request_time"`
}

// IsSuccessStatus reports whether the status code counts as a successful request.
func IsSuccessStatus(code int) bool {
	return code >= 200 && code < 300
}

// IsFailureStatus reports whether the status code counts as a failed request.
// Status code 0 marks a network-level failure and counts as failed.
func IsFailureStatus(code int) bool {
	return code >= 400 || code == 0
}

// Apply folds one completed request into the counters in O(1).
func (m *EndpointMetrics) Apply(statusCode int, durationMS int64, completedAt time.Time) {
	m.TotalRequests++
	if IsSuccessStatus(statusCode) {
		m.SuccessfulRequests++
	}
	if IsFailureStatus(statusCode) {
		m.FailedRequests++
	}
	m.TotalDurationMS += durationMS
	m.AverageResponseTime = int64(math.Round(float64(m.TotalDurationMS) / float64(m.TotalRequests)))
	m.LastRequestTime = completedAt
}
