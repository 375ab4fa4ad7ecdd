package circulation_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shulebox/circulation/internal/circulation"
	"github.com/shulebox/circulation/internal/domain/loans"
	"github.com/shulebox/circulation/internal/domain/members"
)

// countingSource wraps a real aggregate source and counts calls through it.
type countingSource struct {
	src   circulation.AggregateSource
	calls int
	err   error
}

func (c *countingSource) Aggregate(ctx context.Context, schoolID string) (*circulation.Statistics, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return c.src.Aggregate(ctx, schoolID)
}

func Test_StatsReader_CachesWithinTTL(t *testing.T) {
	f := newFixture()
	f.addBook("b1")
	f.addMember("m1")

	src := &countingSource{src: f.store}
	reader := circulation.NewStatsReader(src, time.Minute).WithClock(f.clock.Now)
	ctx := context.Background()

	first, err := reader.Statistics(ctx, "sch1")
	require.NoError(t, err)
	assert.Equal(t, 1, first.Books.Total)
	assert.Equal(t, baseTime, first.GeneratedAt)
	assert.Equal(t, 1, src.calls)

	// Within the TTL the cached aggregate is served, even if the catalog moved.
	f.addBook("b2")
	f.clock.Advance(30 * time.Second)
	second, err := reader.Statistics(ctx, "sch1")
	require.NoError(t, err)
	assert.Equal(t, 1, second.Books.Total)
	assert.Equal(t, 1, src.calls)

	// Past the TTL the aggregate is recomputed.
	f.clock.Advance(31 * time.Second)
	third, err := reader.Statistics(ctx, "sch1")
	require.NoError(t, err)
	assert.Equal(t, 2, third.Books.Total)
	assert.Equal(t, 2, src.calls)
	assert.Equal(t, f.clock.Now(), third.GeneratedAt)
}

func Test_StatsReader_ScopesAreCachedSeparately(t *testing.T) {
	f := newFixture()
	f.addBook("b1")

	src := &countingSource{src: f.store}
	reader := circulation.NewStatsReader(src, time.Minute).WithClock(f.clock.Now)
	ctx := context.Background()

	_, err := reader.Statistics(ctx, "sch1")
	require.NoError(t, err)
	_, err = reader.Statistics(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls)

	_, err = reader.Statistics(ctx, "sch1")
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls)
}

func Test_StatsReader_ErrorIsNotCached(t *testing.T) {
	f := newFixture()
	f.addBook("b1")

	src := &countingSource{src: f.store, err: errors.New("aggregate down")}
	reader := circulation.NewStatsReader(src, time.Minute).WithClock(f.clock.Now)
	ctx := context.Background()

	_, err := reader.Statistics(ctx, "sch1")
	require.Error(t, err)

	src.err = nil
	stats, err := reader.Statistics(ctx, "sch1")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Books.Total)
	assert.Equal(t, 2, src.calls)
}

func Test_Aggregate_CountsCirculationState(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.addBook("b1")
	f.addBook("b2")
	f.addBook("b3")
	f.addMember("m1")
	f.addMember("m2", func(m *members.Member) { m.Status = members.StatusSuspended })

	_, err := f.svc.Checkout(ctx, "b1", "m1", "staff1", false)
	require.NoError(t, err)
	_, err = f.svc.Checkout(ctx, "b2", "m1", "staff1", false)
	require.NoError(t, err)

	// b2 comes back five days late at the default rate.
	f.clock.Advance(19 * 24 * time.Hour)
	_, err = f.svc.Return(ctx, "b2", "m1", "staff1", loans.ConditionGood, "")
	require.NoError(t, err)

	stats, err := f.store.Aggregate(ctx, "sch1")
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Books.Total)
	assert.Equal(t, 2, stats.Books.Available)
	assert.Equal(t, 1, stats.Books.CheckedOut)

	assert.Equal(t, 2, stats.Members.Total)
	assert.Equal(t, 1, stats.Members.Active)
	assert.Equal(t, 1, stats.Members.Suspended)

	assert.Equal(t, 2, stats.Loans.Total)
	assert.Equal(t, 1, stats.Loans.Open)
	assert.Equal(t, 1, stats.Loans.Returned)
	assert.Equal(t, 1, stats.Loans.Overdue)

	assert.Equal(t, 25.0, stats.Finances.OutstandingFines)
	assert.Zero(t, stats.Finances.TotalCollected)
}
