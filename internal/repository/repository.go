package repository

import (
	"context"
	"time"

	"github.com/ravikumar582002/API-TRACKER/internal/domain"
)

// ProductRepository persists products and their endpoint counters.
type ProductRepository interface {
	CreateProduct(ctx context.Context, product *domain.Product) error
	GetProductByID(ctx context.Context, id string) (*domain.Product, error)
	ListProducts(ctx context.Context) ([]domain.Product, error)
}

// EndpointRepository persists endpoint definitions. Create and status
// changes keep the owning product's endpoint counters in step.
type EndpointRepository interface {
	CreateEndpoint(ctx context.Context, endpoint *domain.Endpoint) error
	GetEndpointByID(ctx context.Context, id string) (*domain.Endpoint, error)
	ListEndpointsByProduct(ctx context.Context, productID string) ([]domain.Endpoint, error)
	UpdateEndpointStatus(ctx context.Context, id, status string) error
}

// RecordFilter narrows telemetry queries. Zero-valued dimensions match all.
type RecordFilter struct {
	Start       time.Time
	End         time.Time
	ProductID   string
	EndpointID  string
	Environment string
}

// TelemetryRepository handles telemetry record persistence and scan access.
type TelemetryRepository interface {
	// InsertRecord stores the record and the updated endpoint metrics in one
	// transaction: either both apply or neither does.
	InsertRecord(ctx context.Context, record *domain.TelemetryRecord, metrics domain.EndpointMetrics) error
	GetEndpointMetrics(ctx context.Context, endpointID string) (domain.EndpointMetrics, error)
	// StreamRecords invokes fn once per matching record in ascending start
	// order without materializing the full set.
	StreamRecords(ctx context.Context, filter RecordFilter, fn func(domain.TelemetryRecord) error) error
	// DeleteRecordsBefore hard-deletes records started before cutoff and
	// reports how many were removed.
	DeleteRecordsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
