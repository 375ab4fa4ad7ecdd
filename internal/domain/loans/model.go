package loans

import "time"

type Status string

const (
	StatusActive   Status = "active"
	StatusReturned Status = "returned"
	StatusOverdue  Status = "overdue"
	StatusLost     Status = "lost"
	StatusDamaged  Status = "damaged"
)

type Condition string

const (
	ConditionGood    Condition = "good"
	ConditionDamaged Condition = "damaged"
	ConditionLost    Condition = "lost"
)

// Loan is one checkout-to-return cycle. A loan is open while ReturnedAt is
// nil; late returns keep status overdue after closing, so openness is always
// judged on ReturnedAt, not on status alone.
type Loan struct {
	ID       string
	SchoolID string
	BookID   string
	MemberID string
	Digital  bool

	IssuedBy   string
	ReturnedBy string
	IssuedAt   time.Time
	DueAt      time.Time
	ReturnedAt *time.Time

	Renewals int
	Status   Status

	DaysOverdue    int
	LateFee        float64
	DamageFee      float64
	ReplacementFee float64
	TotalFee       float64

	Condition Condition
	Notes     string
	Rating    int // 0 = unrated
}

func (l *Loan) Open() bool { return l.ReturnedAt == nil }
