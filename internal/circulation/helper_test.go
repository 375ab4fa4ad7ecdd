package circulation_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/shulebox/circulation/internal/catalog/memory"
	"github.com/shulebox/circulation/internal/circulation"
	"github.com/shulebox/circulation/internal/domain/books"
	"github.com/shulebox/circulation/internal/domain/members"
	"github.com/shulebox/circulation/internal/infra/metrics"
	"github.com/shulebox/circulation/internal/infra/notify"
)

var baseTime = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

// captureSink records published events for assertions.
type captureSink struct {
	mu     sync.Mutex
	events []notify.Event
}

func (c *captureSink) Publish(_ context.Context, ev notify.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *captureSink) byType(t notify.EventType) []notify.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []notify.Event
	for _, ev := range c.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// clock is a settable frozen time source.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock(t time.Time) *clock { return &clock{t: t} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixture struct {
	store *memory.Store
	svc   *circulation.Service
	sink  *captureSink
	clock *clock
}

func newFixture() *fixture {
	store := memory.New()
	sink := &captureSink{}
	clk := newClock(baseTime)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	met := metrics.New(prometheus.NewRegistry())

	svc := circulation.NewService(store, sink, log, met, circulation.Config{
		DefaultLoanDays:    14,
		ClaimWindowDays:    7,
		FineBlockThreshold: 50.0,
		DefaultWaitDays:    14,
	}).WithClock(clk.Now)

	return &fixture{store: store, svc: svc, sink: sink, clock: clk}
}

func (f *fixture) addBook(id string, mutate ...func(*books.Book)) *books.Book {
	b := &books.Book{
		ID:             id,
		SchoolID:       "sch1",
		Title:          "Title " + id,
		Category:       "fiction",
		Status:         books.StatusAvailable,
		LoanPeriodDays: 14,
		LateFeePerDay:  5.0,
		MaxRenewals:    2,
	}
	for _, fn := range mutate {
		fn(b)
	}
	f.store.AddBook(b)
	return b
}

func (f *fixture) addMember(id string, mutate ...func(*members.Member)) *members.Member {
	m := &members.Member{
		ID:         id,
		SchoolID:   "sch1",
		ClassID:    "7B",
		Status:     members.StatusActive,
		MaxBooks:   3,
		MaxDigital: 2,
		CanReserve: true,
	}
	for _, fn := range mutate {
		fn(m)
	}
	f.store.AddMember(m)
	return m
}

func (f *fixture) book(id string) *books.Book {
	b, _ := f.store.Book(context.Background(), id)
	return b
}

func (f *fixture) member(id string) *members.Member {
	m, _ := f.store.Member(context.Background(), id)
	return m
}
