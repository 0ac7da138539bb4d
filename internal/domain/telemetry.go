package domain

import "time"

// Telemetry environments.
const (
	EnvironmentDevelopment = "development"
	EnvironmentStaging     = "staging"
	EnvironmentProduction  = "production"
)

// Telemetry sources.
const (
	SourceManual     = "manual"
	SourceAutomated  = "automated"
	SourceMonitoring = "monitoring"
	SourceLoadTest   = "load-test"
)

var telemetryEnvironments = map[string]struct{}{
	EnvironmentDevelopment: {},
	EnvironmentStaging:     {},
	EnvironmentProduction:  {},
}

var telemetrySources = map[string]struct{}{
	SourceManual:     {},
	SourceAutomated:  {},
	SourceMonitoring: {},
	SourceLoadTest:   {},
}

// IsValidEnvironment reports whether env is a known environment tag.
func IsValidEnvironment(env string) bool {
	_, ok := telemetryEnvironments[env]
	return ok
}

// IsValidSource reports whether source is a known source tag.
func IsValidSource(source string) bool {
	_, ok := telemetrySources[source]
	return ok
}

// RequestInfo describes the outgoing call of a telemetry record.
type RequestInfo struct {
	Method      string            `json:"method"`
	URL         string            `json:"url"`
	Headers     map[string]string `json:"headers,omitempty"`
	QueryParams map[string]string `json:"query_params,omitempty"`
	Body        string            `json:"body,omitempty"`
}

// ResponseInfo describes the observed response. StatusCode 0 with
// StatusText "Network Error" marks a transport-level failure.
type ResponseInfo struct {
	StatusCode int               `json:"status_code"`
	StatusText string            `json:"status_text"`
	Headers    map[string]string `json:"headers,omitempty"`
	Body       string            `json:"body,omitempty"`
	SizeBytes  int64             `json:"size_bytes"`
}

// Timing captures the wall-clock phases of one call.
type Timing struct {
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
	DurationMS int64     `json:"duration_ms"`
}

// Normalize derives DurationMS from the start/end pair, flooring at zero.
// The derivation is enforced at write time and never trusted from callers.
func (t *Timing) Normalize() {
	d := t.EndTime.Sub(t.StartTime).Milliseconds()
	if d < 0 {
		d = 0
	}
	t.DurationMS = d
}

// TelemetryRecord is one immutable log of a single API call.
type TelemetryRecord struct {
	ID          string       `json:"id"`
	EndpointID  string       `json:"endpoint_id"`
	ProductID   string       `json:"product_id"`
	Request     RequestInfo  `json:"request"`
	Response    ResponseInfo `json:"response"`
	Timing      Timing       `json:"timing"`
	Environment string       `json:"environment"`
	Source      string       `json:"source"`
	UserID      string       `json:"user_id,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}
