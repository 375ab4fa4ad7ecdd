package fines

import "time"

type Type string

const (
	TypeLateReturn Type = "late_return"
	TypeDamage     Type = "damage"
	TypeLost       Type = "lost"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusPaid    Status = "paid"
	StatusWaived  Status = "waived"
)

// Fine is always derived from exactly one loan. Circulation creates fines;
// payment and waiver belong to the finance module and never loop back here.
type Fine struct {
	ID       string
	SchoolID string
	MemberID string
	LoanID   string
	Type     Type
	Amount   float64
	Balance  float64
	Status   Status

	CreatedAt time.Time
}
