package circulation_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/shulebox/circulation/internal/circulation"
	"github.com/shulebox/circulation/internal/domain/books"
	"github.com/shulebox/circulation/internal/domain/members"
)

func eligibleMember() *members.Member {
	return &members.Member{
		ID:         "m1",
		ClassID:    "7B",
		Status:     members.StatusActive,
		MaxBooks:   3,
		MaxDigital: 2,
		CanReserve: true,
	}
}

func lendableBook() *books.Book {
	return &books.Book{
		ID:             "b1",
		Status:         books.StatusAvailable,
		LoanPeriodDays: 14,
		MaxRenewals:    2,
	}
}

func Test_CanCheckout(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(m *members.Member, b *books.Book)
		digital bool
		want    circulation.DenyReason // "" = allowed
	}{
		{
			name:   "eligible_member_available_book",
			mutate: func(*members.Member, *books.Book) {},
		},
		{
			name:   "suspended_member",
			mutate: func(m *members.Member, _ *books.Book) { m.Status = members.StatusSuspended },
			want:   circulation.ReasonMemberInactive,
		},
		{
			name:   "expired_member",
			mutate: func(m *members.Member, _ *books.Book) { m.Status = members.StatusExpired },
			want:   circulation.ReasonMemberInactive,
		},
		{
			name:   "physical_limit_reached",
			mutate: func(m *members.Member, _ *books.Book) { m.BooksBorrowed = 3 },
			want:   circulation.ReasonLimitReached,
		},
		{
			name: "digital_limit_reached",
			mutate: func(m *members.Member, b *books.Book) {
				b.Digital = true
				m.DigitalBorrowed = 2
			},
			digital: true,
			want:    circulation.ReasonLimitReached,
		},
		{
			name: "physical_count_does_not_block_digital",
			mutate: func(m *members.Member, b *books.Book) {
				b.Digital = true
				m.BooksBorrowed = 3
			},
			digital: true,
		},
		{
			name:   "fines_over_threshold",
			mutate: func(m *members.Member, _ *books.Book) { m.OutstandingFines = 50.01 },
			want:   circulation.ReasonFinesOutstanding,
		},
		{
			name:   "fines_exactly_at_threshold_allowed",
			mutate: func(m *members.Member, _ *books.Book) { m.OutstandingFines = 50.0 },
		},
		{
			name:   "book_checked_out",
			mutate: func(_ *members.Member, b *books.Book) { b.Status = books.StatusCheckedOut },
			want:   circulation.ReasonNotAvailable,
		},
		{
			name:   "book_in_maintenance",
			mutate: func(_ *members.Member, b *books.Book) { b.Status = books.StatusMaintenance },
			want:   circulation.ReasonNotAvailable,
		},
		{
			name: "digital_ignores_book_status",
			mutate: func(_ *members.Member, b *books.Book) {
				b.Digital = true
				b.Status = books.StatusCheckedOut
			},
			digital: true,
		},
		{
			name:    "digital_checkout_of_physical_only_title",
			mutate:  func(*members.Member, *books.Book) {},
			digital: true,
			want:    circulation.ReasonNotDigital,
		},
		{
			name:   "reference_only",
			mutate: func(_ *members.Member, b *books.Book) { b.ReferenceOnly = true },
			want:   circulation.ReasonReferenceOnly,
		},
		{
			name: "restricted_to_other_class",
			mutate: func(_ *members.Member, b *books.Book) {
				b.RestrictedClasses = []string{"8A", "8B"}
			},
			want: circulation.ReasonRestricted,
		},
		{
			name: "restricted_set_including_member_class",
			mutate: func(_ *members.Member, b *books.Book) {
				b.RestrictedClasses = []string{"7B", "8A"}
			},
		},
		{
			name: "first_failure_wins",
			mutate: func(m *members.Member, b *books.Book) {
				m.Status = members.StatusBlocked
				b.ReferenceOnly = true
			},
			want: circulation.ReasonMemberInactive,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m, b := eligibleMember(), lendableBook()
			tc.mutate(m, b)

			d := circulation.CanCheckout(m, b, tc.digital, 50.0)
			if tc.want == "" {
				assert.Nil(t, d)
				return
			}
			assert.NotNil(t, d)
			assert.Equal(t, tc.want, d.Reason)
			assert.ErrorIs(t, d, circulation.ErrPolicyDenied)
		})
	}
}

func Test_CanCheckout_HasNoSideEffects(t *testing.T) {
	m, b := eligibleMember(), lendableBook()
	before, beforeBook := *m, *b

	for i := 0; i < 3; i++ {
		assert.Nil(t, circulation.CanCheckout(m, b, false, 50.0))
	}
	assert.Equal(t, before, *m)
	assert.Equal(t, beforeBook, *b)
}
