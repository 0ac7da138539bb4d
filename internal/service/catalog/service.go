// Package catalog is thin registration plumbing for products and endpoints.
// It exists so the telemetry pipeline has entities to probe; everything
// interesting happens in the probe, metrics, and analytics services.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ravikumar582002/API-TRACKER/internal/domain"
	"github.com/ravikumar582002/API-TRACKER/internal/repository"
)

// Service manages product and endpoint registration.
type Service struct {
	products  repository.ProductRepository
	endpoints repository.EndpointRepository
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string
}

// New constructs the catalog service.
func New(products repository.ProductRepository, endpoints repository.EndpointRepository, logger *slog.Logger) *Service {
	if logger != nil {
		logger = logger.With("component", "catalog")
	}
	return &Service{
		products:  products,
		endpoints: endpoints,
		logger:    logger,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// CreateProduct registers a product.
func (s *Service) CreateProduct(ctx context.Context, name, description string) (*domain.Product, error) {
	if s == nil {
		return nil, errors.New("catalog service not initialised")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: product name required", repository.ErrInvalidArgument)
	}
	product := &domain.Product{
		ID:          s.newID(),
		Name:        name,
		Description: strings.TrimSpace(description),
		CreatedAt:   s.now().UTC(),
	}
	if err := s.products.CreateProduct(ctx, product); err != nil {
		return nil, err
	}
	return product, nil
}

// GetProduct fetches one product.
func (s *Service) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	if s == nil {
		return nil, errors.New("catalog service not initialised")
	}
	return s.products.GetProductByID(ctx, strings.TrimSpace(id))
}

// ListProducts returns all products.
func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	if s == nil {
		return nil, errors.New("catalog service not initialised")
	}
	return s.products.ListProducts(ctx)
}

// CreateEndpointInput describes a new endpoint registration.
type CreateEndpointInput struct {
	ProductID string            `json:"product_id"`
	Name      string            `json:"name"`
	Method    string            `json:"method"`
	BaseURL   string            `json:"base_url"`
	Path      string            `json:"path"`
	Headers   map[string]string `json:"headers,omitempty"`
	Status    string            `json:"status,omitempty"`
}

// CreateEndpoint validates and registers an endpoint, materializing the full
// URL from base URL and path.
func (s *Service) CreateEndpoint(ctx context.Context, input CreateEndpointInput) (*domain.Endpoint, error) {
	if s == nil {
		return nil, errors.New("catalog service not initialised")
	}
	input.ProductID = strings.TrimSpace(input.ProductID)
	if input.ProductID == "" {
		return nil, fmt.Errorf("%w: product_id required", repository.ErrInvalidArgument)
	}
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		return nil, fmt.Errorf("%w: endpoint name required", repository.ErrInvalidArgument)
	}
	method := strings.ToUpper(strings.TrimSpace(input.Method))
	if !domain.IsValidMethod(method) {
		return nil, fmt.Errorf("%w: unsupported method %q", repository.ErrInvalidArgument, input.Method)
	}
	baseURL := strings.TrimSpace(input.BaseURL)
	if baseURL == "" {
		return nil, fmt.Errorf("%w: base_url required", repository.ErrInvalidArgument)
	}
	status := strings.TrimSpace(input.Status)
	if status == "" {
		status = domain.EndpointStatusActive
	}
	if !domain.IsValidEndpointStatus(status) {
		return nil, fmt.Errorf("%w: unknown status %q", repository.ErrInvalidArgument, input.Status)
	}

	endpoint := &domain.Endpoint{
		ID:        s.newID(),
		ProductID: input.ProductID,
		Name:      input.Name,
		Method:    method,
		BaseURL:   baseURL,
		Path:      strings.TrimSpace(input.Path),
		FullURL:   joinURL(baseURL, input.Path),
		Headers:   input.Headers,
		Status:    status,
		CreatedAt: s.now().UTC(),
	}
	if err := s.endpoints.CreateEndpoint(ctx, endpoint); err != nil {
		return nil, err
	}
	return endpoint, nil
}

// GetEndpoint fetches one endpoint with its metrics.
func (s *Service) GetEndpoint(ctx context.Context, id string) (*domain.Endpoint, error) {
	if s == nil {
		return nil, errors.New("catalog service not initialised")
	}
	return s.endpoints.GetEndpointByID(ctx, strings.TrimSpace(id))
}

// ListEndpoints returns a product's endpoints.
func (s *Service) ListEndpoints(ctx context.Context, productID string) ([]domain.Endpoint, error) {
	if s == nil {
		return nil, errors.New("catalog service not initialised")
	}
	return s.endpoints.ListEndpointsByProduct(ctx, strings.TrimSpace(productID))
}

// UpdateEndpointStatus changes an endpoint's lifecycle status.
func (s *Service) UpdateEndpointStatus(ctx context.Context, id, status string) error {
	if s == nil {
		return errors.New("catalog service not initialised")
	}
	status = strings.TrimSpace(status)
	if !domain.IsValidEndpointStatus(status) {
		return fmt.Errorf("%w: unknown status %q", repository.ErrInvalidArgument, status)
	}
	return s.endpoints.UpdateEndpointStatus(ctx, strings.TrimSpace(id), status)
}

func joinURL(base, path string) string {
	base = strings.TrimRight(base, "/")
	path = strings.TrimSpace(path)
	if path == "" {
		return base
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + path
}
