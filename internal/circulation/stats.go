package circulation

import (
	"context"
	"sync"
	"time"
)

// Statistics is the informational aggregate served to dashboards.
type Statistics struct {
	Books struct {
		Total       int `json:"total"`
		Available   int `json:"available"`
		CheckedOut  int `json:"checked_out"`
		Reserved    int `json:"reserved"`
		Maintenance int `json:"maintenance"`
		Lost        int `json:"lost"`
		Damaged     int `json:"damaged"`
		Withdrawn   int `json:"withdrawn"`
	} `json:"books"`
	Members struct {
		Total     int `json:"total"`
		Active    int `json:"active"`
		Suspended int `json:"suspended"`
		Expired   int `json:"expired"`
		Blocked   int `json:"blocked"`
	} `json:"members"`
	Loans struct {
		Open     int `json:"open"`
		Overdue  int `json:"overdue"`
		Returned int `json:"returned"`
		Total    int `json:"total"`
	} `json:"loans"`
	Finances struct {
		OutstandingFines float64 `json:"outstanding_fines"`
		TotalCollected   float64 `json:"total_collected"`
	} `json:"finances"`

	GeneratedAt time.Time `json:"generated_at"`
}

// AggregateSource computes Statistics for one school scope ("" = all).
type AggregateSource interface {
	Aggregate(ctx context.Context, schoolID string) (*Statistics, error)
}

type cachedStats struct {
	stats   *Statistics
	fetched time.Time
}

// StatsReader caches aggregates per school scope for a short TTL; the numbers
// are informational, not transactional.
type StatsReader struct {
	src AggregateSource
	ttl time.Duration
	now func() time.Time

	mu    sync.Mutex
	cache map[string]cachedStats
}

func NewStatsReader(src AggregateSource, ttl time.Duration) *StatsReader {
	return &StatsReader{
		src:   src,
		ttl:   ttl,
		now:   time.Now,
		cache: map[string]cachedStats{},
	}
}

// WithClock replaces the reader time source. Tests freeze time with it.
func (r *StatsReader) WithClock(now func() time.Time) *StatsReader {
	r.now = now
	return r
}

func (r *StatsReader) Statistics(ctx context.Context, schoolID string) (*Statistics, error) {
	r.mu.Lock()
	if c, ok := r.cache[schoolID]; ok && r.now().Sub(c.fetched) < r.ttl {
		r.mu.Unlock()
		return c.stats, nil
	}
	r.mu.Unlock()

	stats, err := r.src.Aggregate(ctx, schoolID)
	if err != nil {
		return nil, err
	}
	stats.GeneratedAt = r.now()

	r.mu.Lock()
	r.cache[schoolID] = cachedStats{stats: stats, fetched: r.now()}
	r.mu.Unlock()
	return stats, nil
}
