package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ravikumar582002/API-TRACKER/internal/domain"
	"github.com/ravikumar582002/API-TRACKER/internal/repository"
	"github.com/ravikumar582002/API-TRACKER/internal/ws"
)

// Recorder applies completed telemetry records to their endpoint's running
// counters in O(1), without reading prior records. Concurrent recordings
// against one endpoint serialize on a per-endpoint lock; different endpoints
// never contend.
type Recorder struct {
	repo   repository.TelemetryRepository
	hub    *ws.Hub
	logger *slog.Logger
	now    func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewRecorder constructs a Recorder. The hub is optional; when present every
// stored record is broadcast to the owning product's stream.
func NewRecorder(repo repository.TelemetryRepository, hub *ws.Hub, logger *slog.Logger) *Recorder {
	if logger != nil {
		logger = logger.With("component", "metrics_recorder")
	}
	return &Recorder{
		repo:   repo,
		hub:    hub,
		logger: logger,
		now:    time.Now,
		locks:  make(map[string]*sync.Mutex),
	}
}

// Record validates and persists one completed telemetry record and folds it
// into the endpoint's metrics. The store write covers both in a single
// transaction, so a failure applies neither.
func (r *Recorder) Record(ctx context.Context, record *domain.TelemetryRecord) error {
	if r == nil {
		return errors.New("metrics recorder not initialised")
	}
	if record == nil {
		return errors.New("telemetry record required")
	}
	record.EndpointID = strings.TrimSpace(record.EndpointID)
	if record.EndpointID == "" {
		return fmt.Errorf("%w: endpoint_id required", repository.ErrInvalidArgument)
	}
	record.ProductID = strings.TrimSpace(record.ProductID)
	if record.ProductID == "" {
		return fmt.Errorf("%w: product_id required", repository.ErrInvalidArgument)
	}
	if record.Timing.StartTime.IsZero() || record.Timing.EndTime.IsZero() {
		return fmt.Errorf("%w: timing start and end required", repository.ErrInvalidArgument)
	}
	if record.Environment == "" {
		record.Environment = domain.EnvironmentDevelopment
	}
	if !domain.IsValidEnvironment(record.Environment) {
		return fmt.Errorf("%w: unknown environment %q", repository.ErrInvalidArgument, record.Environment)
	}
	if record.Source == "" {
		record.Source = domain.SourceManual
	}
	if !domain.IsValidSource(record.Source) {
		return fmt.Errorf("%w: unknown source %q", repository.ErrInvalidArgument, record.Source)
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	// Duration is derived at write time, never trusted from the caller.
	record.Timing.Normalize()

	lock := r.lockFor(record.EndpointID)
	lock.Lock()
	defer lock.Unlock()

	m, err := r.repo.GetEndpointMetrics(ctx, record.EndpointID)
	if err != nil {
		return err
	}
	m.Apply(record.Response.StatusCode, record.Timing.DurationMS, record.Timing.EndTime)
	if err := r.repo.InsertRecord(ctx, record, m); err != nil {
		return err
	}
	r.broadcast(*record)
	return nil
}

func (r *Recorder) lockFor(endpointID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.locks[endpointID]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[endpointID] = lock
	}
	return lock
}

func (r *Recorder) broadcast(record domain.TelemetryRecord) {
	if r.hub == nil {
		return
	}
	payload, err := MarshalTelemetryRecord(record)
	if err != nil {
		if r.logger != nil {
			r.logger.Warn("failed to marshal telemetry record", "error", err)
		}
		return
	}
	r.hub.Broadcast(record.ProductID, payload)
}

// MarshalTelemetryRecord encodes a record for SSE/WebSocket clients.
func MarshalTelemetryRecord(record domain.TelemetryRecord) ([]byte, error) {
	payload := map[string]any{
		"id":          record.ID,
		"endpoint_id": record.EndpointID,
		"product_id":  record.ProductID,
		"method":      record.Request.Method,
		"url":         record.Request.URL,
		"status_code": record.Response.StatusCode,
		"status_text": record.Response.StatusText,
		"size_bytes":  record.Response.SizeBytes,
		"duration_ms": record.Timing.DurationMS,
		"environment": record.Environment,
		"source":      record.Source,
		"started_at":  record.Timing.StartTime.UTC().Format(time.RFC3339Nano),
		"ended_at":    record.Timing.EndTime.UTC().Format(time.RFC3339Nano),
	}
	return json.Marshal(payload)
}
