package analytics

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/ravikumar582002/API-TRACKER/internal/domain"
	"github.com/ravikumar582002/API-TRACKER/internal/repository"
)

type rankAccum struct {
	id      string
	total   int64
	success int64
	durSum  int64
}

func (a *rankAccum) avg() int64 {
	if a.total == 0 {
		return 0
	}
	return int64(math.Round(float64(a.durSum) / float64(a.total)))
}

// QueryTopN ranks endpoints or products over the filtered record set by
// request volume or average latency. Ties on the ranking value break by
// ascending entity identifier so repeated queries stay deterministic.
// n <= 0 uses the configured default.
func (s *Service) QueryTopN(ctx context.Context, filter repository.RecordFilter, rankBy domain.RankBy, entity domain.RankEntity, n int) ([]domain.RankedEntity, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}
	if err := validateFilter(filter); err != nil {
		return nil, err
	}
	if _, err := domain.ParseRankBy(string(rankBy)); err != nil {
		return nil, fmt.Errorf("%w: %v", repository.ErrInvalidArgument, err)
	}
	if _, err := domain.ParseRankEntity(string(entity)); err != nil {
		return nil, fmt.Errorf("%w: %v", repository.ErrInvalidArgument, err)
	}
	if n <= 0 {
		n = s.topN
	}

	accums := make(map[string]*rankAccum)
	err := s.records.StreamRecords(ctx, filter, func(rec domain.TelemetryRecord) error {
		id := rec.EndpointID
		if entity == domain.RankEntityProduct {
			id = rec.ProductID
		}
		accum, ok := accums[id]
		if !ok {
			accum = &rankAccum{id: id}
			accums[id] = accum
		}
		accum.total++
		if domain.IsSuccessStatus(rec.Response.StatusCode) {
			accum.success++
		}
		accum.durSum += rec.Timing.DurationMS
		return nil
	})
	if err != nil {
		return nil, err
	}

	ordered := make([]*rankAccum, 0, len(accums))
	for _, accum := range accums {
		ordered = append(ordered, accum)
	}
	sort.Slice(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		switch rankBy {
		case domain.RankByLatency:
			if a.avg() != b.avg() {
				return a.avg() > b.avg()
			}
		default:
			if a.total != b.total {
				return a.total > b.total
			}
		}
		return a.id < b.id
	})
	if len(ordered) > n {
		ordered = ordered[:n]
	}

	ranked := make([]domain.RankedEntity, 0, len(ordered))
	for _, accum := range ordered {
		ranked = append(ranked, domain.RankedEntity{
			ID:              accum.id,
			Name:            s.entityName(ctx, entity, accum.id),
			RequestCount:    accum.total,
			AvgResponseTime: accum.avg(),
			SuccessRate:     successRate(accum.success, accum.total),
		})
	}
	return ranked, nil
}

// entityName resolves display names for the few winning entities. A missing
// entity (deleted since recording) keeps its identifier with no name.
func (s *Service) entityName(ctx context.Context, entity domain.RankEntity, id string) string {
	switch entity {
	case domain.RankEntityProduct:
		if s.products == nil {
			return ""
		}
		product, err := s.products.GetProductByID(ctx, id)
		if err != nil {
			s.logLookupMiss("product", id, err)
			return ""
		}
		return product.Name
	default:
		if s.endpoints == nil {
			return ""
		}
		endpoint, err := s.endpoints.GetEndpointByID(ctx, id)
		if err != nil {
			s.logLookupMiss("endpoint", id, err)
			return ""
		}
		return endpoint.Name
	}
}

func (s *Service) logLookupMiss(kind, id string, err error) {
	if s.logger == nil || errors.Is(err, repository.ErrNotFound) {
		return
	}
	s.logger.Warn("ranking name lookup failed", "kind", kind, "id", id, "error", err)
}
