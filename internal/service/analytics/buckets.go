package analytics

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/ravikumar582002/API-TRACKER/internal/domain"
	"github.com/ravikumar582002/API-TRACKER/internal/repository"
)

type bucketAccum struct {
	total     int64
	success   int64
	failed    int64
	durSum    int64
	durMin    int64
	durMax    int64
	bytes     int64
	users     map[string]struct{}
	endpoints map[string]struct{}
}

func (b *bucketAccum) add(rec domain.TelemetryRecord) {
	b.total++
	if domain.IsSuccessStatus(rec.Response.StatusCode) {
		b.success++
	}
	if domain.IsFailureStatus(rec.Response.StatusCode) {
		b.failed++
	}
	d := rec.Timing.DurationMS
	b.durSum += d
	if b.total == 1 || d < b.durMin {
		b.durMin = d
	}
	if d > b.durMax {
		b.durMax = d
	}
	b.bytes += rec.Response.SizeBytes
	if rec.UserID != "" {
		b.users[rec.UserID] = struct{}{}
	}
	if rec.EndpointID != "" {
		b.endpoints[rec.EndpointID] = struct{}{}
	}
}

func (b *bucketAccum) summary(start time.Time) domain.BucketSummary {
	return domain.BucketSummary{
		Timestamp:             start,
		TotalRequests:         b.total,
		SuccessfulRequests:    b.success,
		FailedRequests:        b.failed,
		SuccessRate:           successRate(b.success, b.total),
		AvgResponseTime:       int64(math.Round(float64(b.durSum) / float64(b.total))),
		MinResponseTime:       b.durMin,
		MaxResponseTime:       b.durMax,
		TotalBytesTransferred: b.bytes,
		DistinctUserCount:     len(b.users),
		DistinctEndpointCount: len(b.endpoints),
	}
}

// QueryBuckets groups matching records into calendar buckets and returns one
// summary per non-empty bucket, ascending by bucket start. Each matching
// record is scanned exactly once.
func (s *Service) QueryBuckets(ctx context.Context, filter repository.RecordFilter, granularity domain.Granularity) ([]domain.BucketSummary, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}
	if err := validateFilter(filter); err != nil {
		return nil, err
	}
	if _, err := domain.ParseGranularity(string(granularity)); err != nil {
		return nil, fmt.Errorf("%w: %v", repository.ErrInvalidArgument, err)
	}

	buckets := make(map[time.Time]*bucketAccum)
	err := s.records.StreamRecords(ctx, filter, func(rec domain.TelemetryRecord) error {
		start := granularity.BucketStart(rec.Timing.StartTime)
		accum, ok := buckets[start]
		if !ok {
			accum = &bucketAccum{
				users:     make(map[string]struct{}),
				endpoints: make(map[string]struct{}),
			}
			buckets[start] = accum
		}
		accum.add(rec)
		return nil
	})
	if err != nil {
		return nil, err
	}

	summaries := make([]domain.BucketSummary, 0, len(buckets))
	for start, accum := range buckets {
		summaries = append(summaries, accum.summary(start))
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].Timestamp.Before(summaries[j].Timestamp)
	})
	return summaries, nil
}
