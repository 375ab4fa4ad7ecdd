package circulation

import (
	"errors"
	"fmt"
)

// Error kinds. Callers classify with errors.Is; the HTTP layer maps kinds to
// response codes.
var (
	ErrNotFound     = errors.New("circulation: not found")
	ErrInvalidState = errors.New("circulation: invalid state")
	ErrConflict     = errors.New("circulation: conflict, retry")
	ErrUpstream     = errors.New("circulation: upstream unavailable")
)

// InvalidState refinements.
var (
	ErrNoActiveLoan    = fmt.Errorf("%w: no active loan", ErrInvalidState)
	ErrMaxRenewals     = fmt.Errorf("%w: renewal limit reached", ErrInvalidState)
	ErrHasReservations = fmt.Errorf("%w: reservations pending", ErrInvalidState)
	ErrBookAvailable   = fmt.Errorf("%w: book is available, check it out instead", ErrInvalidState)
	ErrAlreadyReserved = fmt.Errorf("%w: member already holds a reservation", ErrInvalidState)
	ErrBadRating       = fmt.Errorf("%w: rating must be between 1 and 5", ErrInvalidState)
	ErrNeverBorrowed   = fmt.Errorf("%w: member never borrowed this book", ErrInvalidState)
	ErrBookWithdrawn   = fmt.Errorf("%w: book is withdrawn", ErrInvalidState)
	ErrStillOnLoan     = fmt.Errorf("%w: book has an open loan", ErrInvalidState)
	ErrBadStatus       = fmt.Errorf("%w: status not settable by override", ErrInvalidState)
)

// ErrPolicyDenied matches any Denial via errors.Is.
var ErrPolicyDenied = errors.New("circulation: policy denied")

type DenyReason string

const (
	ReasonMemberInactive      DenyReason = "member_inactive"
	ReasonLimitReached        DenyReason = "limit_reached"
	ReasonFinesOutstanding    DenyReason = "fines_outstanding"
	ReasonNotAvailable        DenyReason = "not_available"
	ReasonNotDigital          DenyReason = "not_digital"
	ReasonReferenceOnly       DenyReason = "reference_only"
	ReasonRestricted          DenyReason = "restricted"
	ReasonReservationsBlocked DenyReason = "reservations_not_allowed"
)

// Denial is an Availability Policy rejection carrying a machine-readable
// reason code.
type Denial struct {
	Reason DenyReason
}

func (d *Denial) Error() string {
	return "circulation: checkout denied: " + string(d.Reason)
}

func (d *Denial) Is(target error) bool { return target == ErrPolicyDenied }

// DenialReason extracts the reason code, or "" if err is not a Denial.
func DenialReason(err error) DenyReason {
	var d *Denial
	if errors.As(err, &d) {
		return d.Reason
	}
	return ""
}
