package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ravikumar582002/API-TRACKER/internal/domain"
	"github.com/ravikumar582002/API-TRACKER/internal/repository"
)

type stubCatalogStore struct {
	products  map[string]*domain.Product
	endpoints map[string]*domain.Endpoint
	statuses  map[string]string
}

func newStubCatalogStore() *stubCatalogStore {
	return &stubCatalogStore{
		products:  make(map[string]*domain.Product),
		endpoints: make(map[string]*domain.Endpoint),
		statuses:  make(map[string]string),
	}
}

func (s *stubCatalogStore) CreateProduct(_ context.Context, product *domain.Product) error {
	s.products[product.ID] = product
	return nil
}

func (s *stubCatalogStore) GetProductByID(_ context.Context, id string) (*domain.Product, error) {
	if p, ok := s.products[id]; ok {
		return p, nil
	}
	return nil, repository.ErrNotFound
}

func (s *stubCatalogStore) ListProducts(_ context.Context) ([]domain.Product, error) {
	out := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, *p)
	}
	return out, nil
}

func (s *stubCatalogStore) CreateEndpoint(_ context.Context, endpoint *domain.Endpoint) error {
	if _, ok := s.products[endpoint.ProductID]; !ok {
		return repository.ErrNotFound
	}
	s.endpoints[endpoint.ID] = endpoint
	return nil
}

func (s *stubCatalogStore) GetEndpointByID(_ context.Context, id string) (*domain.Endpoint, error) {
	if ep, ok := s.endpoints[id]; ok {
		return ep, nil
	}
	return nil, repository.ErrNotFound
}

func (s *stubCatalogStore) ListEndpointsByProduct(_ context.Context, productID string) ([]domain.Endpoint, error) {
	var out []domain.Endpoint
	for _, ep := range s.endpoints {
		if ep.ProductID == productID {
			out = append(out, *ep)
		}
	}
	return out, nil
}

func (s *stubCatalogStore) UpdateEndpointStatus(_ context.Context, id, status string) error {
	if _, ok := s.endpoints[id]; !ok {
		return repository.ErrNotFound
	}
	s.statuses[id] = status
	return nil
}

func newTestService(store *stubCatalogStore) *Service {
	svc := New(store, store, nil)
	svc.now = func() time.Time { return time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC) }
	counter := 0
	svc.newID = func() string {
		counter++
		return "id-" + string(rune('a'+counter-1))
	}
	return svc
}

func TestCreateProduct(t *testing.T) {
	store := newStubCatalogStore()
	svc := newTestService(store)

	product, err := svc.CreateProduct(context.Background(), "  Payments  ", " core billing ")
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	if product.Name != "Payments" || product.Description != "core billing" {
		t.Errorf("product = %+v, want trimmed fields", product)
	}
	if product.ID == "" {
		t.Error("expected assigned ID")
	}

	if _, err := svc.CreateProduct(context.Background(), "   ", ""); !errors.Is(err, repository.ErrInvalidArgument) {
		t.Errorf("blank name: err = %v, want ErrInvalidArgument", err)
	}
}

func TestCreateEndpoint(t *testing.T) {
	store := newStubCatalogStore()
	svc := newTestService(store)
	product, err := svc.CreateProduct(context.Background(), "Payments", "")
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	endpoint, err := svc.CreateEndpoint(context.Background(), CreateEndpointInput{
		ProductID: product.ID,
		Name:      "Charge",
		Method:    "post",
		BaseURL:   "https://api.example.com/",
		Path:      "v1/charges",
	})
	if err != nil {
		t.Fatalf("create endpoint: %v", err)
	}
	if endpoint.Method != "POST" {
		t.Errorf("method = %q, want POST", endpoint.Method)
	}
	if endpoint.FullURL != "https://api.example.com/v1/charges" {
		t.Errorf("full url = %q", endpoint.FullURL)
	}
	if endpoint.Status != domain.EndpointStatusActive {
		t.Errorf("status = %q, want active default", endpoint.Status)
	}
}

func TestCreateEndpointValidation(t *testing.T) {
	store := newStubCatalogStore()
	svc := newTestService(store)
	product, _ := svc.CreateProduct(context.Background(), "Payments", "")
	ctx := context.Background()

	cases := []struct {
		name  string
		input CreateEndpointInput
	}{
		{"missing product", CreateEndpointInput{Name: "X", Method: "GET", BaseURL: "https://x"}},
		{"missing name", CreateEndpointInput{ProductID: product.ID, Method: "GET", BaseURL: "https://x"}},
		{"bad method", CreateEndpointInput{ProductID: product.ID, Name: "X", Method: "FETCH", BaseURL: "https://x"}},
		{"missing base url", CreateEndpointInput{ProductID: product.ID, Name: "X", Method: "GET"}},
		{"bad status", CreateEndpointInput{ProductID: product.ID, Name: "X", Method: "GET", BaseURL: "https://x", Status: "paused"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.CreateEndpoint(ctx, tc.input); !errors.Is(err, repository.ErrInvalidArgument) {
				t.Fatalf("err = %v, want ErrInvalidArgument", err)
			}
		})
	}
}

func TestUpdateEndpointStatus(t *testing.T) {
	store := newStubCatalogStore()
	svc := newTestService(store)
	product, _ := svc.CreateProduct(context.Background(), "Payments", "")
	endpoint, _ := svc.CreateEndpoint(context.Background(), CreateEndpointInput{
		ProductID: product.ID, Name: "Charge", Method: "GET", BaseURL: "https://x",
	})

	if err := svc.UpdateEndpointStatus(context.Background(), endpoint.ID, domain.EndpointStatusMaintenance); err != nil {
		t.Fatalf("update status: %v", err)
	}
	if store.statuses[endpoint.ID] != domain.EndpointStatusMaintenance {
		t.Errorf("status = %q, want maintenance", store.statuses[endpoint.ID])
	}
	if err := svc.UpdateEndpointStatus(context.Background(), endpoint.ID, "archived"); !errors.Is(err, repository.ErrInvalidArgument) {
		t.Errorf("bad status: err = %v, want ErrInvalidArgument", err)
	}
}

func TestJoinURL(t *testing.T) {
	cases := []struct {
		base, path, want string
	}{
		{"https://api.example.com", "/v1/users", "https://api.example.com/v1/users"},
		{"https://api.example.com/", "v1/users", "https://api.example.com/v1/users"},
		{"https://api.example.com", "", "https://api.example.com"},
		{"https://api.example.com/", "  ", "https://api.example.com"},
	}
	for _, tc := range cases {
		if got := joinURL(tc.base, tc.path); got != tc.want {
			t.Errorf("joinURL(%q, %q) = %q, want %q", tc.base, tc.path, got, tc.want)
		}
	}
}
