package books

import "time"

type Status string

const (
	StatusAvailable   Status = "available"
	StatusCheckedOut  Status = "checked_out"
	StatusReserved    Status = "reserved"
	StatusMaintenance Status = "maintenance"
	StatusLost        Status = "lost"
	StatusDamaged     Status = "damaged"
	StatusWithdrawn   Status = "withdrawn"
)

type Book struct {
	ID                string
	SchoolID          string
	Title             string
	Author            string
	Category          string
	Status            Status
	ReferenceOnly     bool
	Digital           bool
	RestrictedClasses []string // empty = no restriction
	LoanPeriodDays    int
	LateFeePerDay     float64
	ReplacementCost   float64
	MaxRenewals       int
	PopularityScore   int
	AvgRating         float64
	RatingCount       int
	TimesCheckedOut   int
	LastCheckedOutAt  *time.Time
	Extensions        map[string]string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// RestrictedTo reports whether the book is limited to a class set that does
// not include classID.
func (b *Book) RestrictedTo(classID string) bool {
	if len(b.RestrictedClasses) == 0 {
		return false
	}
	for _, c := range b.RestrictedClasses {
		if c == classID {
			return false
		}
	}
	return true
}
