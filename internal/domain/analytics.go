package domain

import (
	"fmt"
	"time"
)

// Granularity selects the calendar bucket size for trend queries.
type Granularity string

// Supported bucket granularities.
const (
	GranularityHour  Granularity = "hour"
	GranularityDay   Granularity = "day"
	GranularityWeek  Granularity = "week"
	GranularityMonth Granularity = "month"
)

// ParseGranularity validates a granularity string.
func ParseGranularity(s string) (Granularity, error) {
	switch Granularity(s) {
	case GranularityHour, GranularityDay, GranularityWeek, GranularityMonth:
		return Granularity(s), nil
	}
	return "", fmt.Errorf("unknown granularity %q", s)
}

// BucketStart truncates t to its calendar bucket boundary. Boundaries are
// computed in UTC so bucket edges stay deterministic across hosts. Weeks are
// ISO weeks, materialized as midnight UTC of the week's Monday.
func (g Granularity) BucketStart(t time.Time) time.Time {
	t = t.UTC()
	switch g {
	case GranularityHour:
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, time.UTC)
	case GranularityDay:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	case GranularityWeek:
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		// Weekday() puts Sunday at 0; shift so Monday is the week start.
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case GranularityMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	}
	return t
}

// BucketSummary is a transient per-bucket aggregate produced by trend queries.
type BucketSummary struct {
	Timestamp             time.Time `json:"timestamp"`
	TotalRequests         int64     `json:"total_requests"`
	SuccessfulRequests    int64     `json:"successful_requests"`
	FailedRequests        int64     `json:"failed_requests"`
	SuccessRate           int       `json:"success_rate"`
	AvgResponseTime       int64     `json:"avg_response_time"`
	MinResponseTime       int64     `json:"min_response_time"`
	MaxResponseTime       int64     `json:"max_response_time"`
	TotalBytesTransferred int64     `json:"total_bytes_transferred"`
	DistinctUserCount     int       `json:"distinct_user_count"`
	DistinctEndpointCount int       `json:"distinct_endpoint_count"`
}

// HistogramBucket counts durations falling in [LowerMS, UpperMS). A nil
// UpperMS marks the overflow bucket.
type HistogramBucket struct {
	LowerMS int64  `json:"lower_ms"`
	UpperMS *int64 `json:"upper_ms"`
	Count   int64  `json:"count"`
}

// LatencyDistribution summarizes durations over a filtered record set.
// Percentiles use linear interpolation between closest ranks; clients must
// treat that method as authoritative.
type LatencyDistribution struct {
	TotalRequests   int64             `json:"total_requests"`
	MeanMS          float64           `json:"mean_ms"`
	MinMS           int64             `json:"min_ms"`
	MaxMS           int64             `json:"max_ms"`
	P50MS           float64           `json:"p50_ms"`
	P90MS           float64           `json:"p90_ms"`
	P95MS           float64           `json:"p95_ms"`
	P99MS           float64           `json:"p99_ms"`
	Histogram       []HistogramBucket `json:"histogram"`
	SlowCount       int64             `json:"slow_count"`
	SlowPercent     float64           `json:"slow_percent"`
	VerySlowCount   int64             `json:"very_slow_count"`
	VerySlowPercent float64           `json:"very_slow_percent"`
}

// Ranking dimensions.
type RankBy string

const (
	RankByVolume  RankBy = "volume"
	RankByLatency RankBy = "latency"
)

// ParseRankBy validates a ranking dimension.
func ParseRankBy(s string) (RankBy, error) {
	switch RankBy(s) {
	case RankByVolume, RankByLatency:
		return RankBy(s), nil
	}
	return "", fmt.Errorf("unknown rank_by %q", s)
}

// Rankable entity kinds.
type RankEntity string

const (
	RankEntityEndpoint RankEntity = "endpoint"
	RankEntityProduct  RankEntity = "product"
)

// ParseRankEntity validates a ranking entity kind.
func ParseRankEntity(s string) (RankEntity, error) {
	switch RankEntity(s) {
	case RankEntityEndpoint, RankEntityProduct:
		return RankEntity(s), nil
	}
	return "", fmt.Errorf("unknown rank entity %q", s)
}

// RankedEntity is one row of a top-N ranking.
type RankedEntity struct {
	ID              string `json:"id"`
	Name            string `json:"name,omitempty"`
	RequestCount    int64  `json:"request_count"`
	AvgResponseTime int64  `json:"avg_response_time"`
	SuccessRate     int    `json:"success_rate"`
}
