package probe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ravikumar582002/API-TRACKER/internal/domain"
	"github.com/ravikumar582002/API-TRACKER/internal/repository"
	"github.com/ravikumar582002/API-TRACKER/internal/service/metrics"
)

const (
	defaultTimeout       = 30 * time.Second
	defaultMaxConcurrent = 16
	defaultMaxBodyBytes  = 1 << 20
)

// Overrides carry per-execution adjustments merged onto the endpoint's
// declared call. Override headers win on key collision.
type Overrides struct {
	Headers     map[string]string `json:"headers,omitempty"`
	QueryParams map[string]string `json:"query_params,omitempty"`
	Body        string            `json:"body,omitempty"`
	Environment string            `json:"environment,omitempty"`
	Source      string            `json:"source,omitempty"`
	UserID      string            `json:"user_id,omitempty"`
}

// Result is the compact caller-facing view of one probe, for immediate
// display alongside the stored record.
type Result struct {
	StatusCode int               `json:"status_code"`
	StatusText string            `json:"status_text"`
	Headers    map[string]string `json:"headers,omitempty"`
	Body       string            `json:"body,omitempty"`
	Parsed     any               `json:"parsed,omitempty"`
	SizeBytes  int64             `json:"size_bytes"`
	DurationMS int64             `json:"duration_ms"`
	StartTime  time.Time         `json:"start_time"`
	EndTime    time.Time         `json:"end_time"`
}

// Executor issues one HTTP call against a stored endpoint definition, times
// it, and records the outcome. Probes run as independent units of work
// bounded by a concurrency ceiling; a transport failure still yields a
// well-formed record with status code 0.
type Executor struct {
	endpoints    repository.EndpointRepository
	recorder     *metrics.Recorder
	client       *http.Client
	sem          chan struct{}
	maxBodyBytes int64
	environment  string
	logger       *slog.Logger
	now          func() time.Time
}

// Config tunes executor limits; zero values fall back to defaults.
type Config struct {
	Timeout       time.Duration
	MaxConcurrent int
	MaxBodyBytes  int64
	Environment   string
}

// NewExecutor constructs an Executor.
func NewExecutor(endpoints repository.EndpointRepository, recorder *metrics.Recorder, logger *slog.Logger, cfg Config) *Executor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = defaultMaxConcurrent
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	if cfg.Environment == "" || !domain.IsValidEnvironment(cfg.Environment) {
		cfg.Environment = domain.EnvironmentDevelopment
	}
	if logger != nil {
		logger = logger.With("component", "probe_executor")
	}
	return &Executor{
		endpoints:    endpoints,
		recorder:     recorder,
		client:       &http.Client{Timeout: cfg.Timeout},
		sem:          make(chan struct{}, cfg.MaxConcurrent),
		maxBodyBytes: cfg.MaxBodyBytes,
		environment:  cfg.Environment,
		logger:       logger,
		now:          time.Now,
	}
}

// Execute builds and issues the probe call for an endpoint, persists the
// telemetry record with updated metrics, and returns both. It fails only on
// malformed input or a store failure; transport errors are encoded into the
// record instead.
func (e *Executor) Execute(ctx context.Context, endpointID string, ov Overrides) (*domain.TelemetryRecord, *Result, error) {
	if e == nil {
		return nil, nil, errors.New("probe executor not initialised")
	}
	endpoint, err := e.endpoints.GetEndpointByID(ctx, strings.TrimSpace(endpointID))
	if err != nil {
		return nil, nil, err
	}
	req, err := e.buildRequest(endpoint, ov)
	if err != nil {
		return nil, nil, err
	}

	select {
	case e.sem <- struct{}{}:
		defer func() { <-e.sem }()
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}

	record := e.dispatch(ctx, endpoint, req, ov)
	if err := e.recorder.Record(ctx, record); err != nil {
		return nil, nil, fmt.Errorf("store telemetry record: %w", err)
	}
	return record, buildResult(record), nil
}

type builtRequest struct {
	method  string
	url     string
	headers map[string]string
	query   map[string]string
	body    string
}

func (e *Executor) buildRequest(endpoint *domain.Endpoint, ov Overrides) (builtRequest, error) {
	if strings.TrimSpace(endpoint.FullURL) == "" {
		return builtRequest{}, fmt.Errorf("%w: endpoint has no URL", repository.ErrInvalidArgument)
	}
	if !domain.IsValidMethod(endpoint.Method) {
		return builtRequest{}, fmt.Errorf("%w: unsupported method %q", repository.ErrInvalidArgument, endpoint.Method)
	}
	target, err := url.Parse(endpoint.FullURL)
	if err != nil {
		return builtRequest{}, fmt.Errorf("%w: parse endpoint URL: %v", repository.ErrInvalidArgument, err)
	}

	headers := make(map[string]string, len(endpoint.Headers)+len(ov.Headers))
	for k, v := range endpoint.Headers {
		headers[k] = v
	}
	for k, v := range ov.Headers {
		headers[k] = v
	}

	if len(ov.QueryParams) > 0 {
		q := target.Query()
		for k, v := range ov.QueryParams {
			q.Set(k, v)
		}
		target.RawQuery = q.Encode()
	}

	body := ""
	if domain.MethodAllowsBody(endpoint.Method) {
		body = ov.Body
	}

	return builtRequest{
		method:  endpoint.Method,
		url:     target.String(),
		headers: headers,
		query:   ov.QueryParams,
		body:    body,
	}, nil
}

// dispatch performs the call and always returns a well-formed record; a
// transport failure becomes a status-code-0 record, never a fault.
func (e *Executor) dispatch(ctx context.Context, endpoint *domain.Endpoint, built builtRequest, ov Overrides) *domain.TelemetryRecord {
	record := &domain.TelemetryRecord{
		EndpointID: endpoint.ID,
		ProductID:  endpoint.ProductID,
		Request: domain.RequestInfo{
			Method:      built.method,
			URL:         built.url,
			Headers:     built.headers,
			QueryParams: built.query,
			Body:        built.body,
		},
		Environment: ov.Environment,
		Source:      ov.Source,
		UserID:      strings.TrimSpace(ov.UserID),
	}
	if record.Environment == "" {
		record.Environment = e.environment
	}
	if record.Source == "" {
		record.Source = domain.SourceManual
	}

	var reqBody io.Reader
	if built.body != "" {
		reqBody = strings.NewReader(built.body)
	}
	req, err := http.NewRequestWithContext(ctx, built.method, built.url, reqBody)
	if err != nil {
		start := e.now()
		record.Timing = domain.Timing{StartTime: start, EndTime: start}
		fillNetworkFailure(record, err)
		return record
	}
	for k, v := range built.headers {
		req.Header.Set(k, v)
	}

	start := e.now()
	resp, err := e.client.Do(req)
	if err != nil {
		record.Timing = domain.Timing{StartTime: start, EndTime: e.now()}
		record.Timing.Normalize()
		fillNetworkFailure(record, err)
		return record
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, e.maxBodyBytes))
	end := e.now()
	record.Timing = domain.Timing{StartTime: start, EndTime: end}
	record.Timing.Normalize()

	record.Response = domain.ResponseInfo{
		StatusCode: resp.StatusCode,
		StatusText: http.StatusText(resp.StatusCode),
		Headers:    flattenHeader(resp.Header),
		Body:       string(body),
		SizeBytes:  int64(len(body)),
	}
	if readErr != nil {
		if e.logger != nil {
			e.logger.Warn("probe response body truncated", "endpoint_id", endpoint.ID, "error", readErr)
		}
	}
	return record
}

func fillNetworkFailure(record *domain.TelemetryRecord, err error) {
	record.Response = domain.ResponseInfo{
		StatusCode: 0,
		StatusText: "Network Error",
		Body:       err.Error(),
	}
}

func flattenHeader(h http.Header) map[string]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, values := range h {
		out[k] = strings.Join(values, ", ")
	}
	return out
}

// buildResult derives the display view. JSON response bodies are decoded for
// convenience; the choice never affects timing or status classification.
func buildResult(record *domain.TelemetryRecord) *Result {
	result := &Result{
		StatusCode: record.Response.StatusCode,
		StatusText: record.Response.StatusText,
		Headers:    record.Response.Headers,
		Body:       record.Response.Body,
		SizeBytes:  record.Response.SizeBytes,
		DurationMS: record.Timing.DurationMS,
		StartTime:  record.Timing.StartTime,
		EndTime:    record.Timing.EndTime,
	}
	if isJSONContentType(record.Response.Headers) && record.Response.Body != "" {
		var parsed any
		if err := json.Unmarshal([]byte(record.Response.Body), &parsed); err == nil {
			result.Parsed = parsed
		}
	}
	return result
}

func isJSONContentType(headers map[string]string) bool {
	for k, v := range headers {
		if !strings.EqualFold(k, "Content-Type") {
			continue
		}
		ct := strings.ToLower(v)
		if strings.Contains(ct, "application/json") || strings.Contains(ct, "+json") {
			return true
		}
	}
	return false
}
