package members

import "time"

type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusExpired   Status = "expired"
	StatusBlocked   Status = "blocked"
)

// Member is a borrowing identity for one academic period. The live counters
// are maintained transactionally by circulation operations, never recomputed
// by scanning loans.
type Member struct {
	ID       string
	SchoolID string
	PersonID string
	ClassID  string
	Status   Status

	MaxBooks       int
	MaxDigital     int
	LoanPeriodDays int // 0 = use book default
	MaxRenewals    int // 0 = use book default
	CanReserve     bool

	BooksBorrowed    int
	DigitalBorrowed  int
	BooksReserved    int
	OutstandingFines float64
	HasOverdue       bool

	TotalBorrowed     int
	TotalRenewals     int
	TotalReservations int
	TotalFinesPaid    float64

	Extensions map[string]string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
