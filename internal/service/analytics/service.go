package analytics

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/ravikumar582002/API-TRACKER/internal/repository"
)

const defaultTopN = 10

// Service answers trend, distribution, and ranking queries over the
// telemetry record store. Queries are pure reads over immutable records, so
// any number may run concurrently without coordination.
type Service struct {
	records   repository.TelemetryRepository
	endpoints repository.EndpointRepository
	products  repository.ProductRepository
	logger    *slog.Logger
	topN      int
}

// New constructs the analytics service. topN sets the default ranking size;
// values <= 0 fall back to 10.
func New(records repository.TelemetryRepository, endpoints repository.EndpointRepository, products repository.ProductRepository, logger *slog.Logger, topN int) *Service {
	if topN <= 0 {
		topN = defaultTopN
	}
	if logger != nil {
		logger = logger.With("component", "analytics")
	}
	return &Service{
		records:   records,
		endpoints: endpoints,
		products:  products,
		logger:    logger,
		topN:      topN,
	}
}

func validateFilter(filter repository.RecordFilter) error {
	if filter.Start.IsZero() || filter.End.IsZero() {
		return fmt.Errorf("%w: time range required", repository.ErrInvalidArgument)
	}
	if filter.End.Before(filter.Start) {
		return fmt.Errorf("%w: range end before start", repository.ErrInvalidArgument)
	}
	return nil
}

func (s *Service) guard() error {
	if s == nil {
		return errors.New("analytics service not initialised")
	}
	return nil
}

// successRate returns round(100*success/total), with the empty-scope
// convention of 100.
func successRate(success, total int64) int {
	if total == 0 {
		return 100
	}
	return int(math.Round(100 * float64(success) / float64(total)))
}

// percentile interpolates linearly between closest ranks over sorted values.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[len(sorted)-1]
	}
	pos := p * float64(len(sorted)-1)
	lower := int(math.Floor(pos))
	upper := int(math.Ceil(pos))
	if lower == upper {
		return sorted[lower]
	}
	weight := pos - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}
