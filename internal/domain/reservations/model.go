package reservations

import "time"

type Status string

const (
	StatusActive    Status = "active"
	StatusNotified  Status = "notified"
	StatusExpired   Status = "expired"
	StatusFulfilled Status = "fulfilled"
	StatusCancelled Status = "cancelled"
)

// Reservation is a queued claim on an unavailable book. Active reservations
// hold positions 1..N with no gaps; a notified reservation has left the
// numbering (position 0) and is waiting out its claim window.
type Reservation struct {
	ID       string
	SchoolID string
	BookID   string
	MemberID string

	Position          int
	ReservedAt        time.Time
	NotifiedAt        *time.Time
	ExpiresAt         time.Time
	EstimatedWaitDays int

	Status      Status
	NotifyCount int
}

func (r *Reservation) OpenStatus() bool {
	return r.Status == StatusActive || r.Status == StatusNotified
}
