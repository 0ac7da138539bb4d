package analytics

import (
	"context"
	"sort"

	"github.com/ravikumar582002/API-TRACKER/internal/domain"
	"github.com/ravikumar582002/API-TRACKER/internal/repository"
)

// Fixed histogram boundaries in milliseconds; durations past the last
// boundary land in the overflow bucket.
var histogramBoundsMS = []int64{0, 100, 500, 1000, 2000, 5000, 10000, 30000}

const (
	slowThresholdMS     = 1000
	verySlowThresholdMS = 5000
)

// QueryDistribution computes latency percentiles, the fixed-boundary
// histogram, and slow-request counts over the filtered record set. An empty
// set yields zero values, never an error.
func (s *Service) QueryDistribution(ctx context.Context, filter repository.RecordFilter) (*domain.LatencyDistribution, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}
	if err := validateFilter(filter); err != nil {
		return nil, err
	}

	histogram := newHistogram()
	var (
		durations []float64
		durSum    int64
		durMin    int64
		durMax    int64
		slow      int64
		verySlow  int64
	)
	err := s.records.StreamRecords(ctx, filter, func(rec domain.TelemetryRecord) error {
		d := rec.Timing.DurationMS
		if len(durations) == 0 || d < durMin {
			durMin = d
		}
		if d > durMax {
			durMax = d
		}
		durSum += d
		durations = append(durations, float64(d))
		histogram.observe(d)
		if d > slowThresholdMS {
			slow++
		}
		if d > verySlowThresholdMS {
			verySlow++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	dist := &domain.LatencyDistribution{
		TotalRequests: int64(len(durations)),
		Histogram:     histogram.buckets,
		SlowCount:     slow,
		VerySlowCount: verySlow,
	}
	if len(durations) == 0 {
		return dist, nil
	}

	sort.Float64s(durations)
	total := float64(len(durations))
	dist.MeanMS = float64(durSum) / total
	dist.MinMS = durMin
	dist.MaxMS = durMax
	dist.P50MS = percentile(durations, 0.50)
	dist.P90MS = percentile(durations, 0.90)
	dist.P95MS = percentile(durations, 0.95)
	dist.P99MS = percentile(durations, 0.99)
	dist.SlowPercent = 100 * float64(slow) / total
	dist.VerySlowPercent = 100 * float64(verySlow) / total
	return dist, nil
}

type histogram struct {
	buckets []domain.HistogramBucket
}

func newHistogram() *histogram {
	buckets := make([]domain.HistogramBucket, 0, len(histogramBoundsMS))
	for i, lower := range histogramBoundsMS {
		b := domain.HistogramBucket{LowerMS: lower}
		if i+1 < len(histogramBoundsMS) {
			upper := histogramBoundsMS[i+1]
			b.UpperMS = &upper
		}
		buckets = append(buckets, b)
	}
	return &histogram{buckets: buckets}
}

func (h *histogram) observe(durationMS int64) {
	for i := len(h.buckets) - 1; i >= 0; i-- {
		if durationMS >= h.buckets[i].LowerMS {
			h.buckets[i].Count++
			return
		}
	}
	// Durations are floored at zero, so the first bucket always matches.
	h.buckets[0].Count++
}
