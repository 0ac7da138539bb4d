package analytics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ravikumar582002/API-TRACKER/internal/domain"
	"github.com/ravikumar582002/API-TRACKER/internal/repository"
)

type stubRecordStore struct {
	records []domain.TelemetryRecord
}

func (s *stubRecordStore) InsertRecord(_ context.Context, record *domain.TelemetryRecord, _ domain.EndpointMetrics) error {
	s.records = append(s.records, *record)
	return nil
}

func (s *stubRecordStore) GetEndpointMetrics(_ context.Context, _ string) (domain.EndpointMetrics, error) {
	return domain.EndpointMetrics{}, nil
}

func (s *stubRecordStore) StreamRecords(_ context.Context, filter repository.RecordFilter, fn func(domain.TelemetryRecord) error) error {
	for _, rec := range s.records {
		if rec.Timing.StartTime.Before(filter.Start) || rec.Timing.StartTime.After(filter.End) {
			continue
		}
		if filter.ProductID != "" && rec.ProductID != filter.ProductID {
			continue
		}
		if filter.EndpointID != "" && rec.EndpointID != filter.EndpointID {
			continue
		}
		if filter.Environment != "" && rec.Environment != filter.Environment {
			continue
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}

func (s *stubRecordStore) DeleteRecordsBefore(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

type stubCatalogRepo struct {
	endpoints map[string]*domain.Endpoint
	products  map[string]*domain.Product
}

func (s *stubCatalogRepo) CreateEndpoint(_ context.Context, _ *domain.Endpoint) error { return nil }

func (s *stubCatalogRepo) GetEndpointByID(_ context.Context, id string) (*domain.Endpoint, error) {
	if ep, ok := s.endpoints[id]; ok {
		return ep, nil
	}
	return nil, repository.ErrNotFound
}

func (s *stubCatalogRepo) ListEndpointsByProduct(_ context.Context, _ string) ([]domain.Endpoint, error) {
	return nil, nil
}

func (s *stubCatalogRepo) UpdateEndpointStatus(_ context.Context, _, _ string) error { return nil }

func (s *stubCatalogRepo) CreateProduct(_ context.Context, _ *domain.Product) error { return nil }

func (s *stubCatalogRepo) GetProductByID(_ context.Context, id string) (*domain.Product, error) {
	if p, ok := s.products[id]; ok {
		return p, nil
	}
	return nil, repository.ErrNotFound
}

func (s *stubCatalogRepo) ListProducts(_ context.Context) ([]domain.Product, error) {
	return nil, nil
}

func record(endpointID, productID string, status int, start time.Time, durationMS int64, userID string) domain.TelemetryRecord {
	return domain.TelemetryRecord{
		ID:         endpointID + start.Format(time.RFC3339Nano),
		EndpointID: endpointID,
		ProductID:  productID,
		Response:   domain.ResponseInfo{StatusCode: status, SizeBytes: 100},
		Timing: domain.Timing{
			StartTime:  start,
			EndTime:    start.Add(time.Duration(durationMS) * time.Millisecond),
			DurationMS: durationMS,
		},
		Environment: domain.EnvironmentProduction,
		Source:      domain.SourceMonitoring,
		UserID:      userID,
	}
}

func newService(store *stubRecordStore, catalog *stubCatalogRepo) *Service {
	if catalog == nil {
		catalog = &stubCatalogRepo{}
	}
	return New(store, catalog, catalog, nil, 0)
}

func fullRange() repository.RecordFilter {
	return repository.RecordFilter{
		Start: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC),
	}
}

func TestQueryBucketsDayBoundaries(t *testing.T) {
	store := &stubRecordStore{}
	day1 := time.Date(2026, 3, 10, 23, 59, 59, 0, time.UTC)
	day2 := time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)
	store.records = []domain.TelemetryRecord{
		record("ep-1", "p-1", 200, day1, 100, "u1"),
		record("ep-1", "p-1", 200, day2, 200, "u1"),
		record("ep-2", "p-1", 500, day2.Add(time.Hour), 300, "u2"),
	}

	svc := newService(store, nil)
	buckets, err := svc.QueryBuckets(context.Background(), fullRange(), domain.GranularityDay)
	if err != nil {
		t.Fatalf("query buckets: %v", err)
	}
	if len(buckets) != 2 {
		t.Fatalf("buckets = %d, want 2", len(buckets))
	}
	if !buckets[0].Timestamp.Equal(time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("first bucket start = %v", buckets[0].Timestamp)
	}
	if buckets[0].TotalRequests != 1 || buckets[1].TotalRequests != 2 {
		t.Errorf("bucket totals = %d, %d; want 1, 2", buckets[0].TotalRequests, buckets[1].TotalRequests)
	}
	if buckets[1].DistinctUserCount != 2 {
		t.Errorf("distinct users = %d, want 2", buckets[1].DistinctUserCount)
	}
	if buckets[1].DistinctEndpointCount != 2 {
		t.Errorf("distinct endpoints = %d, want 2", buckets[1].DistinctEndpointCount)
	}
}

func TestQueryBucketsSuccessRateRounds(t *testing.T) {
	store := &stubRecordStore{}
	base := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	store.records = []domain.TelemetryRecord{
		record("ep-1", "p-1", 200, base, 100, ""),
		record("ep-1", "p-1", 204, base.Add(time.Minute), 100, ""),
		record("ep-1", "p-1", 503, base.Add(2*time.Minute), 100, ""),
	}

	svc := newService(store, nil)
	buckets, err := svc.QueryBuckets(context.Background(), fullRange(), domain.GranularityDay)
	if err != nil {
		t.Fatalf("query buckets: %v", err)
	}
	if len(buckets) != 1 {
		t.Fatalf("buckets = %d, want 1", len(buckets))
	}
	b := buckets[0]
	if b.SuccessRate != 67 {
		t.Errorf("success rate = %d, want 67", b.SuccessRate)
	}
	if b.SuccessfulRequests != 2 || b.FailedRequests != 1 {
		t.Errorf("success/failed = %d/%d, want 2/1", b.SuccessfulRequests, b.FailedRequests)
	}
	if b.AvgResponseTime != 100 || b.MinResponseTime != 100 || b.MaxResponseTime != 100 {
		t.Errorf("avg/min/max = %d/%d/%d, want 100 each", b.AvgResponseTime, b.MinResponseTime, b.MaxResponseTime)
	}
}

func TestQueryBucketsTotalsPartition(t *testing.T) {
	store := &stubRecordStore{}
	base := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC) // a Monday
	var want int64
	for i := 0; i < 200; i++ {
		start := base.Add(time.Duration(i) * 3 * time.Hour)
		store.records = append(store.records, record("ep-1", "p-1", 200, start, int64(i), ""))
		want++
	}

	svc := newService(store, nil)
	for _, g := range []domain.Granularity{domain.GranularityHour, domain.GranularityDay, domain.GranularityWeek, domain.GranularityMonth} {
		buckets, err := svc.QueryBuckets(context.Background(), fullRange(), g)
		if err != nil {
			t.Fatalf("query buckets %s: %v", g, err)
		}
		var got int64
		for _, b := range buckets {
			got += b.TotalRequests
		}
		if got != want {
			t.Errorf("granularity %s: sum of bucket totals = %d, want %d", g, got, want)
		}
		for i := 1; i < len(buckets); i++ {
			if !buckets[i-1].Timestamp.Before(buckets[i].Timestamp) {
				t.Errorf("granularity %s: buckets not ascending at %d", g, i)
			}
		}
	}
}

func TestQueryBucketsISOWeek(t *testing.T) {
	store := &stubRecordStore{}
	// Sunday 2026-03-15 belongs to the week starting Monday 2026-03-09.
	sunday := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	monday := time.Date(2026, 3, 16, 10, 0, 0, 0, time.UTC)
	store.records = []domain.TelemetryRecord{
		record("ep-1", "p-1", 200, sunday, 100, ""),
		record("ep-1", "p-1", 200, monday, 100, ""),
	}

	svc := newService(store, nil)
	buckets, err := svc.QueryBuckets(context.Background(), fullRange(), domain.GranularityWeek)
	if err != nil {
		t.Fatalf("query buckets: %v", err)
	}
	if len(buckets) != 2 {
		t.Fatalf("buckets = %d, want 2", len(buckets))
	}
	if !buckets[0].Timestamp.Equal(time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("first week start = %v, want 2026-03-09", buckets[0].Timestamp)
	}
	if !buckets[1].Timestamp.Equal(time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("second week start = %v, want 2026-03-16", buckets[1].Timestamp)
	}
}

func TestQueryBucketsInvalidInput(t *testing.T) {
	svc := newService(&stubRecordStore{}, nil)
	ctx := context.Background()

	_, err := svc.QueryBuckets(ctx, repository.RecordFilter{}, domain.GranularityDay)
	if !errors.Is(err, repository.ErrInvalidArgument) {
		t.Errorf("missing range: err = %v, want ErrInvalidArgument", err)
	}

	filter := fullRange()
	filter.Start, filter.End = filter.End, filter.Start
	_, err = svc.QueryBuckets(ctx, filter, domain.GranularityDay)
	if !errors.Is(err, repository.ErrInvalidArgument) {
		t.Errorf("inverted range: err = %v, want ErrInvalidArgument", err)
	}

	_, err = svc.QueryBuckets(ctx, fullRange(), domain.Granularity("minute"))
	if !errors.Is(err, repository.ErrInvalidArgument) {
		t.Errorf("bad granularity: err = %v, want ErrInvalidArgument", err)
	}
}

func TestQueryDistributionPercentiles(t *testing.T) {
	store := &stubRecordStore{}
	base := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	// 1..100 ms, one record each.
	for i := 1; i <= 100; i++ {
		store.records = append(store.records, record("ep-1", "p-1", 200, base.Add(time.Duration(i)*time.Second), int64(i), ""))
	}

	svc := newService(store, nil)
	dist, err := svc.QueryDistribution(context.Background(), fullRange())
	if err != nil {
		t.Fatalf("query distribution: %v", err)
	}
	if dist.TotalRequests != 100 {
		t.Fatalf("total = %d, want 100", dist.TotalRequests)
	}
	if dist.MinMS != 1 || dist.MaxMS != 100 {
		t.Errorf("min/max = %d/%d, want 1/100", dist.MinMS, dist.MaxMS)
	}
	if dist.MeanMS != 50.5 {
		t.Errorf("mean = %v, want 50.5", dist.MeanMS)
	}
	// Linear interpolation over sorted [1..100]: p = 1 + q*99.
	if dist.P50MS != 50.5 {
		t.Errorf("p50 = %v, want 50.5", dist.P50MS)
	}
	if dist.P90MS != 90.1 {
		t.Errorf("p90 = %v, want 90.1", dist.P90MS)
	}
	if !(dist.P50MS <= dist.P90MS && dist.P90MS <= dist.P95MS && dist.P95MS <= dist.P99MS && dist.P99MS <= float64(dist.MaxMS)) {
		t.Errorf("percentiles not monotone: %v %v %v %v max %d", dist.P50MS, dist.P90MS, dist.P95MS, dist.P99MS, dist.MaxMS)
	}
}

func TestQueryDistributionHistogramAndSlow(t *testing.T) {
	store := &stubRecordStore{}
	base := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	durations := []int64{50, 99, 100, 499, 500, 1000, 1001, 5000, 5001, 31000}
	for i, d := range durations {
		store.records = append(store.records, record("ep-1", "p-1", 200, base.Add(time.Duration(i)*time.Second), d, ""))
	}

	svc := newService(store, nil)
	dist, err := svc.QueryDistribution(context.Background(), fullRange())
	if err != nil {
		t.Fatalf("query distribution: %v", err)
	}

	wantCounts := []int64{2, 2, 1, 2, 0, 2, 0, 1}
	if len(dist.Histogram) != len(wantCounts) {
		t.Fatalf("histogram buckets = %d, want %d", len(dist.Histogram), len(wantCounts))
	}
	for i, want := range wantCounts {
		if dist.Histogram[i].Count != want {
			t.Errorf("bucket %d (lower %d): count = %d, want %d", i, dist.Histogram[i].LowerMS, dist.Histogram[i].Count, want)
		}
	}
	if dist.Histogram[len(dist.Histogram)-1].UpperMS != nil {
		t.Error("last bucket should be unbounded")
	}

	// Strictly greater than the thresholds.
	if dist.SlowCount != 4 {
		t.Errorf("slow = %d, want 4", dist.SlowCount)
	}
	if dist.VerySlowCount != 2 {
		t.Errorf("very slow = %d, want 2", dist.VerySlowCount)
	}
	if dist.SlowPercent != 40 {
		t.Errorf("slow percent = %v, want 40", dist.SlowPercent)
	}
}

func TestQueryDistributionEmptySet(t *testing.T) {
	svc := newService(&stubRecordStore{}, nil)
	dist, err := svc.QueryDistribution(context.Background(), fullRange())
	if err != nil {
		t.Fatalf("query distribution: %v", err)
	}
	if dist.TotalRequests != 0 {
		t.Errorf("total = %d, want 0", dist.TotalRequests)
	}
	if dist.P50MS != 0 || dist.P99MS != 0 || dist.MeanMS != 0 {
		t.Errorf("expected zero percentiles, got p50=%v p99=%v mean=%v", dist.P50MS, dist.P99MS, dist.MeanMS)
	}
	if len(dist.Histogram) == 0 {
		t.Error("expected histogram buckets even for empty set")
	}
}

func TestQueryDistributionEnvironmentFilter(t *testing.T) {
	store := &stubRecordStore{}
	base := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	prod := record("ep-1", "p-1", 200, base, 100, "")
	staging := record("ep-1", "p-1", 200, base.Add(time.Second), 900, "")
	staging.Environment = domain.EnvironmentStaging
	store.records = []domain.TelemetryRecord{prod, staging}

	svc := newService(store, nil)
	filter := fullRange()
	filter.Environment = domain.EnvironmentProduction
	dist, err := svc.QueryDistribution(context.Background(), filter)
	if err != nil {
		t.Fatalf("query distribution: %v", err)
	}
	if dist.TotalRequests != 1 || dist.MaxMS != 100 {
		t.Errorf("total/max = %d/%d, want 1/100", dist.TotalRequests, dist.MaxMS)
	}
}

func TestQueryTopNByVolume(t *testing.T) {
	store := &stubRecordStore{}
	base := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	add := func(ep string, count int, duration int64) {
		for i := 0; i < count; i++ {
			store.records = append(store.records, record(ep, "p-1", 200, base.Add(time.Duration(len(store.records))*time.Second), duration, ""))
		}
	}
	add("ep-b", 5, 100)
	add("ep-a", 5, 200) // ties with ep-b on volume, wins the tie by ID
	add("ep-c", 9, 50)

	catalog := &stubCatalogRepo{endpoints: map[string]*domain.Endpoint{
		"ep-a": {ID: "ep-a", Name: "List Users"},
		"ep-c": {ID: "ep-c", Name: "Health"},
	}}
	svc := newService(store, catalog)
	ranked, err := svc.QueryTopN(context.Background(), fullRange(), domain.RankByVolume, domain.RankEntityEndpoint, 2)
	if err != nil {
		t.Fatalf("query top n: %v", err)
	}
	if len(ranked) != 2 {
		t.Fatalf("ranked = %d, want 2", len(ranked))
	}
	if ranked[0].ID != "ep-c" || ranked[0].RequestCount != 9 {
		t.Errorf("first = %s (%d), want ep-c (9)", ranked[0].ID, ranked[0].RequestCount)
	}
	if ranked[1].ID != "ep-a" {
		t.Errorf("tie break: second = %s, want ep-a", ranked[1].ID)
	}
	if ranked[0].Name != "Health" {
		t.Errorf("name = %q, want Health", ranked[0].Name)
	}
}

func TestQueryTopNByLatencyAcrossProducts(t *testing.T) {
	store := &stubRecordStore{}
	base := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	store.records = []domain.TelemetryRecord{
		record("ep-1", "p-slow", 200, base, 900, ""),
		record("ep-2", "p-slow", 200, base.Add(time.Second), 1100, ""),
		record("ep-3", "p-fast", 200, base.Add(2*time.Second), 50, ""),
	}

	catalog := &stubCatalogRepo{products: map[string]*domain.Product{
		"p-slow": {ID: "p-slow", Name: "Billing"},
		"p-fast": {ID: "p-fast", Name: "Search"},
	}}
	svc := newService(store, catalog)
	ranked, err := svc.QueryTopN(context.Background(), fullRange(), domain.RankByLatency, domain.RankEntityProduct, 0)
	if err != nil {
		t.Fatalf("query top n: %v", err)
	}
	if len(ranked) != 2 {
		t.Fatalf("ranked = %d, want 2", len(ranked))
	}
	if ranked[0].ID != "p-slow" || ranked[0].AvgResponseTime != 1000 {
		t.Errorf("first = %s avg %d, want p-slow avg 1000", ranked[0].ID, ranked[0].AvgResponseTime)
	}
	if ranked[0].Name != "Billing" {
		t.Errorf("name = %q, want Billing", ranked[0].Name)
	}
}

func TestQueryTopNMissingEntityKeepsID(t *testing.T) {
	store := &stubRecordStore{}
	base := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	store.records = []domain.TelemetryRecord{record("ep-gone", "p-1", 200, base, 100, "")}

	svc := newService(store, &stubCatalogRepo{})
	ranked, err := svc.QueryTopN(context.Background(), fullRange(), domain.RankByVolume, domain.RankEntityEndpoint, 0)
	if err != nil {
		t.Fatalf("query top n: %v", err)
	}
	if len(ranked) != 1 || ranked[0].ID != "ep-gone" || ranked[0].Name != "" {
		t.Errorf("ranked = %+v, want ep-gone with empty name", ranked)
	}
}

func TestQueryTopNInvalidInput(t *testing.T) {
	svc := newService(&stubRecordStore{}, nil)
	ctx := context.Background()

	_, err := svc.QueryTopN(ctx, fullRange(), domain.RankBy("errors"), domain.RankEntityEndpoint, 0)
	if !errors.Is(err, repository.ErrInvalidArgument) {
		t.Errorf("bad rank_by: err = %v, want ErrInvalidArgument", err)
	}
	_, err = svc.QueryTopN(ctx, fullRange(), domain.RankByVolume, domain.RankEntity("team"), 0)
	if !errors.Is(err, repository.ErrInvalidArgument) {
		t.Errorf("bad entity: err = %v, want ErrInvalidArgument", err)
	}
}

func TestSuccessRateBounds(t *testing.T) {
	if got := successRate(0, 0); got != 100 {
		t.Errorf("empty scope = %d, want 100", got)
	}
	if got := successRate(1, 3); got != 33 {
		t.Errorf("1/3 = %d, want 33", got)
	}
	if got := successRate(2, 3); got != 67 {
		t.Errorf("2/3 = %d, want 67", got)
	}
	if got := successRate(3, 3); got != 100 {
		t.Errorf("3/3 = %d, want 100", got)
	}
	if got := successRate(0, 5); got != 0 {
		t.Errorf("0/5 = %d, want 0", got)
	}
}
