package circulation

import (
	"context"
	"time"

	"github.com/shulebox/circulation/internal/domain/books"
	"github.com/shulebox/circulation/internal/domain/fines"
	"github.com/shulebox/circulation/internal/domain/loans"
	"github.com/shulebox/circulation/internal/domain/members"
	"github.com/shulebox/circulation/internal/domain/reservations"
)

// Tx is one per-book atomic section. All reads and writes inside it either
// commit together or leave no trace. Tx reads observe the section's own
// earlier writes.
type Tx interface {
	// Book is the locked book row; never nil inside a section.
	Book() *books.Book
	// Member is the locked member row; nil when the section was opened with
	// WithBook.
	Member() *members.Member

	SaveBook(ctx context.Context, b *books.Book) error
	SaveMember(ctx context.Context, m *members.Member) error

	// ActiveLoan is the section member's open loan for the section book, nil
	// if none.
	ActiveLoan(ctx context.Context) (*loans.Loan, error)
	LatestClosedLoan(ctx context.Context) (*loans.Loan, error)
	InsertLoan(ctx context.Context, l *loans.Loan) error
	SaveLoan(ctx context.Context, l *loans.Loan) error
	// OpenOverdueCount counts the member's still-open overdue loans across
	// all books, excluding the loan with excludeLoanID ("" excludes nothing).
	OpenOverdueCount(ctx context.Context, excludeLoanID string) (int, error)

	ActiveReservationCount(ctx context.Context) (int, error)
	HasOpenReservations(ctx context.Context) (bool, error)
	NextReservation(ctx context.Context) (*reservations.Reservation, error)
	// OpenReservation is the section member's active or notified reservation
	// for the section book, nil if none.
	OpenReservation(ctx context.Context) (*reservations.Reservation, error)
	InsertReservation(ctx context.Context, r *reservations.Reservation) error
	SaveReservation(ctx context.Context, r *reservations.Reservation) error
	// ShiftQueue moves every active reservation behind the vacated position
	// up by one, keeping positions gap-free from 1.
	ShiftQueue(ctx context.Context, vacated int) error

	InsertFine(ctx context.Context, f *fines.Fine) error

	AvgLoanDays(ctx context.Context) (float64, error)
	RecentCheckouts(ctx context.Context, since time.Time) (int, error)
}

// Store is the Catalog Store contract the engine drives. Sections against the
// same book are mutually exclusive; WithBookAndMember additionally serializes
// the member's counters. Both return ErrNotFound when the keyed records are
// absent and roll everything back when fn errors.
type Store interface {
	WithBook(ctx context.Context, bookID string, fn func(ctx context.Context, tx Tx) error) error
	WithBookAndMember(ctx context.Context, bookID, memberID string, fn func(ctx context.Context, tx Tx) error) error

	Book(ctx context.Context, id string) (*books.Book, error)
	Member(ctx context.Context, id string) (*members.Member, error)

	// ReturnedCategoriesByMember lists the category of every returned loan of
	// the member, duplicates included, for the borrowing histogram.
	ReturnedCategoriesByMember(ctx context.Context, memberID string) ([]string, error)
	BookIDsTouchedByMember(ctx context.Context, memberID string) ([]string, error)
	AvailableBooks(ctx context.Context, schoolID string) ([]books.Book, error)

	FinesByMember(ctx context.Context, memberID string) ([]fines.Fine, error)

	ActiveLoansPastDue(ctx context.Context, asOf time.Time) ([]loans.Loan, error)
	ExpiredNotifiedReservations(ctx context.Context, asOf time.Time) ([]reservations.Reservation, error)
	BookIDs(ctx context.Context) ([]string, error)
}
