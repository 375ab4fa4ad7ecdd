package circulation

import (
	"github.com/shulebox/circulation/internal/domain/books"
	"github.com/shulebox/circulation/internal/domain/members"
)

// CanCheckout decides whether the member may check out the book right now.
// Pure; no side effects. Checks run in order and stop at the first failure.
// fineThreshold is the outstanding-fine balance above which borrowing is
// blocked.
func CanCheckout(m *members.Member, b *books.Book, digital bool, fineThreshold float64) *Denial {
	if m.Status != members.StatusActive {
		return &Denial{Reason: ReasonMemberInactive}
	}
	if digital {
		if m.DigitalBorrowed >= m.MaxDigital {
			return &Denial{Reason: ReasonLimitReached}
		}
	} else if m.BooksBorrowed >= m.MaxBooks {
		return &Denial{Reason: ReasonLimitReached}
	}
	if m.OutstandingFines > fineThreshold {
		return &Denial{Reason: ReasonFinesOutstanding}
	}
	if digital {
		// Only digital titles lend digitally; a physical copy routed through
		// the digital path would bypass the single-copy availability check.
		if !b.Digital {
			return &Denial{Reason: ReasonNotDigital}
		}
	} else if b.Status != books.StatusAvailable {
		return &Denial{Reason: ReasonNotAvailable}
	}
	if b.ReferenceOnly {
		return &Denial{Reason: ReasonReferenceOnly}
	}
	if b.RestrictedTo(m.ClassID) {
		return &Denial{Reason: ReasonRestricted}
	}
	return nil
}
