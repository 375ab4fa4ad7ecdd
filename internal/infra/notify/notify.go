package notify

import (
	"context"
	"log/slog"
	"time"
)

type EventType string

const (
	EventReservationReady EventType = "reservation_ready"
	EventOverdue          EventType = "overdue"
)

type Event struct {
	Type      EventType
	SchoolID  string
	MemberID  string
	BookID    string
	BookTitle string
	DueAt     time.Time // overdue events
	ExpiresAt time.Time // reservation_ready events: end of the claim window
}

// Sink accepts fire-and-forget circulation events. Implementations log
// delivery failures and never surface them to the caller.
type Sink interface {
	Publish(ctx context.Context, ev Event)
}

type LogSink struct{ log *slog.Logger }

func NewLogSink(log *slog.Logger) *LogSink { return &LogSink{log: log} }

func (s *LogSink) Publish(_ context.Context, ev Event) {
	s.log.Info("notification",
		"type", string(ev.Type),
		"member_id", ev.MemberID,
		"book_id", ev.BookID,
		"book_title", ev.BookTitle,
	)
}
