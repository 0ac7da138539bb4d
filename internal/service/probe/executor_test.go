package probe

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ravikumar582002/API-TRACKER/internal/domain"
	"github.com/ravikumar582002/API-TRACKER/internal/repository"
	"github.com/ravikumar582002/API-TRACKER/internal/service/metrics"
)

type stubEndpointRepo struct {
	endpoints map[string]*domain.Endpoint
}

func (s *stubEndpointRepo) CreateEndpoint(_ context.Context, _ *domain.Endpoint) error { return nil }

func (s *stubEndpointRepo) GetEndpointByID(_ context.Context, id string) (*domain.Endpoint, error) {
	if ep, ok := s.endpoints[id]; ok {
		return ep, nil
	}
	return nil, repository.ErrNotFound
}

func (s *stubEndpointRepo) ListEndpointsByProduct(_ context.Context, _ string) ([]domain.Endpoint, error) {
	return nil, nil
}

func (s *stubEndpointRepo) UpdateEndpointStatus(_ context.Context, _, _ string) error { return nil }

type stubTelemetryRepo struct {
	mu      sync.Mutex
	metrics map[string]domain.EndpointMetrics
	records []domain.TelemetryRecord
}

func newStubTelemetryRepo() *stubTelemetryRepo {
	return &stubTelemetryRepo{metrics: make(map[string]domain.EndpointMetrics)}
}

func (s *stubTelemetryRepo) InsertRecord(_ context.Context, record *domain.TelemetryRecord, metrics domain.EndpointMetrics) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, *record)
	s.metrics[record.EndpointID] = metrics
	return nil
}

func (s *stubTelemetryRepo) GetEndpointMetrics(_ context.Context, endpointID string) (domain.EndpointMetrics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metrics[endpointID], nil
}

func (s *stubTelemetryRepo) StreamRecords(_ context.Context, _ repository.RecordFilter, fn func(domain.TelemetryRecord) error) error {
	for _, rec := range s.records {
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}

func (s *stubTelemetryRepo) DeleteRecordsBefore(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

func newTestExecutor(endpoints map[string]*domain.Endpoint, store *stubTelemetryRepo) *Executor {
	recorder := metrics.NewRecorder(store, nil, nil)
	return NewExecutor(&stubEndpointRepo{endpoints: endpoints}, recorder, nil, Config{
		Timeout:     2 * time.Second,
		Environment: domain.EnvironmentStaging,
	})
}

func TestExecuteSuccess(t *testing.T) {
	var gotHeader, gotQuery, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("X-Api-Key")
		gotQuery = r.URL.Query().Get("page")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	store := newStubTelemetryRepo()
	executor := newTestExecutor(map[string]*domain.Endpoint{
		"ep-1": {
			ID:        "ep-1",
			ProductID: "p-1",
			Method:    http.MethodPost,
			FullURL:   server.URL + "/v1/items",
			Headers:   map[string]string{"X-Api-Key": "default", "Accept": "application/json"},
		},
	}, store)

	record, result, err := executor.Execute(context.Background(), "ep-1", Overrides{
		Headers:     map[string]string{"X-Api-Key": "override"},
		QueryParams: map[string]string{"page": "2"},
		Body:        `{"name":"thing"}`,
		UserID:      "u-1",
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if gotHeader != "override" {
		t.Errorf("header = %q, want override to win", gotHeader)
	}
	if gotQuery != "2" {
		t.Errorf("query page = %q, want 2", gotQuery)
	}
	if gotBody != `{"name":"thing"}` {
		t.Errorf("body = %q", gotBody)
	}
	if result.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", result.StatusCode)
	}
	if result.DurationMS < 0 {
		t.Errorf("duration = %d, want >= 0", result.DurationMS)
	}
	parsed, ok := result.Parsed.(map[string]any)
	if !ok || parsed["ok"] != true {
		t.Errorf("parsed = %v, want decoded JSON object", result.Parsed)
	}
	if record.Environment != domain.EnvironmentStaging {
		t.Errorf("environment = %q, want staging default", record.Environment)
	}
	if record.Source != domain.SourceManual {
		t.Errorf("source = %q, want manual default", record.Source)
	}
	if record.UserID != "u-1" {
		t.Errorf("user = %q, want u-1", record.UserID)
	}
	if len(store.records) != 1 {
		t.Fatalf("stored records = %d, want 1", len(store.records))
	}
	m := store.metrics["ep-1"]
	if m.TotalRequests != 1 || m.SuccessfulRequests != 1 {
		t.Errorf("metrics = %+v, want one successful request", m)
	}
}

func TestExecuteBodyOnlyForBodyMethods(t *testing.T) {
	var gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	store := newStubTelemetryRepo()
	executor := newTestExecutor(map[string]*domain.Endpoint{
		"ep-get": {ID: "ep-get", ProductID: "p-1", Method: http.MethodGet, FullURL: server.URL},
	}, store)

	_, _, err := executor.Execute(context.Background(), "ep-get", Overrides{Body: "ignored"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if gotBody != "" {
		t.Errorf("GET carried body %q, want empty", gotBody)
	}
}

func TestExecuteNetworkFailureRecorded(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	url := server.URL
	server.Close() // connection refused from here on

	store := newStubTelemetryRepo()
	executor := newTestExecutor(map[string]*domain.Endpoint{
		"ep-1": {ID: "ep-1", ProductID: "p-1", Method: http.MethodGet, FullURL: url},
	}, store)

	record, result, err := executor.Execute(context.Background(), "ep-1", Overrides{})
	if err != nil {
		t.Fatalf("transport failure must not fail the probe: %v", err)
	}
	if record.Response.StatusCode != 0 {
		t.Errorf("status = %d, want 0", record.Response.StatusCode)
	}
	if record.Response.StatusText != "Network Error" {
		t.Errorf("status text = %q, want Network Error", record.Response.StatusText)
	}
	if record.Response.Body == "" {
		t.Error("expected transport error message in response body")
	}
	if record.Timing.DurationMS < 0 {
		t.Errorf("duration = %d, want >= 0", record.Timing.DurationMS)
	}
	if result.StatusCode != 0 {
		t.Errorf("result status = %d, want 0", result.StatusCode)
	}
	m := store.metrics["ep-1"]
	if m.TotalRequests != 1 || m.FailedRequests != 1 {
		t.Errorf("metrics = %+v, want one failed request", m)
	}
}

func TestExecuteUnknownEndpoint(t *testing.T) {
	executor := newTestExecutor(nil, newStubTelemetryRepo())
	_, _, err := executor.Execute(context.Background(), "missing", Overrides{})
	if !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestExecuteInvalidDefinition(t *testing.T) {
	store := newStubTelemetryRepo()
	executor := newTestExecutor(map[string]*domain.Endpoint{
		"no-url":     {ID: "no-url", ProductID: "p-1", Method: http.MethodGet},
		"bad-method": {ID: "bad-method", ProductID: "p-1", Method: "FETCH", FullURL: "https://example.com"},
	}, store)
	ctx := context.Background()

	for _, id := range []string{"no-url", "bad-method"} {
		_, _, err := executor.Execute(ctx, id, Overrides{})
		if !errors.Is(err, repository.ErrInvalidArgument) {
			t.Errorf("%s: err = %v, want ErrInvalidArgument", id, err)
		}
	}
	if len(store.records) != 0 {
		t.Errorf("stored records = %d, want 0", len(store.records))
	}
}

func TestExecuteOverrideEnvironment(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	store := newStubTelemetryRepo()
	executor := newTestExecutor(map[string]*domain.Endpoint{
		"ep-1": {ID: "ep-1", ProductID: "p-1", Method: http.MethodGet, FullURL: server.URL},
	}, store)

	record, _, err := executor.Execute(context.Background(), "ep-1", Overrides{
		Environment: domain.EnvironmentProduction,
		Source:      domain.SourceLoadTest,
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if record.Environment != domain.EnvironmentProduction {
		t.Errorf("environment = %q, want production", record.Environment)
	}
	if record.Source != domain.SourceLoadTest {
		t.Errorf("source = %q, want load-test", record.Source)
	}
}
