package postgres

import (
	"context"
	"time"

	"github.com/shulebox/circulation/internal/domain/books"
	"github.com/shulebox/circulation/internal/domain/fines"
	"github.com/shulebox/circulation/internal/domain/loans"
	"github.com/shulebox/circulation/internal/domain/members"
	"github.com/shulebox/circulation/internal/domain/reservations"
)

// catalogTx scopes the domain repos to one pgx transaction with the book (and
// optionally member) rows locked.
type catalogTx struct {
	book   *books.Book
	member *members.Member

	books        *books.Repo
	members      *members.Repo
	loans        *loans.Repo
	reservations *reservations.Repo
	fines        *fines.Repo
}

func (t *catalogTx) Book() *books.Book       { return t.book }
func (t *catalogTx) Member() *members.Member { return t.member }

func (t *catalogTx) SaveBook(ctx context.Context, b *books.Book) error {
	return t.books.Update(ctx, b)
}

func (t *catalogTx) SaveMember(ctx context.Context, m *members.Member) error {
	return t.members.Update(ctx, m)
}

func (t *catalogTx) ActiveLoan(ctx context.Context) (*loans.Loan, error) {
	return t.loans.OpenByBookAndMember(ctx, t.book.ID, t.member.ID)
}

func (t *catalogTx) LatestClosedLoan(ctx context.Context) (*loans.Loan, error) {
	return t.loans.LatestClosedByBookAndMember(ctx, t.book.ID, t.member.ID)
}

func (t *catalogTx) InsertLoan(ctx context.Context, l *loans.Loan) error {
	return t.loans.Create(ctx, l)
}

func (t *catalogTx) SaveLoan(ctx context.Context, l *loans.Loan) error {
	return t.loans.Update(ctx, l)
}

func (t *catalogTx) OpenOverdueCount(ctx context.Context, excludeLoanID string) (int, error) {
	return t.loans.OpenOverdueCount(ctx, t.member.ID, excludeLoanID)
}

func (t *catalogTx) ActiveReservationCount(ctx context.Context) (int, error) {
	return t.reservations.CountActive(ctx, t.book.ID)
}

func (t *catalogTx) HasOpenReservations(ctx context.Context) (bool, error) {
	return t.reservations.HasOpen(ctx, t.book.ID)
}

func (t *catalogTx) NextReservation(ctx context.Context) (*reservations.Reservation, error) {
	return t.reservations.Next(ctx, t.book.ID)
}

func (t *catalogTx) OpenReservation(ctx context.Context) (*reservations.Reservation, error) {
	return t.reservations.OpenByBookAndMember(ctx, t.book.ID, t.member.ID)
}

func (t *catalogTx) InsertReservation(ctx context.Context, r *reservations.Reservation) error {
	return t.reservations.Create(ctx, r)
}

func (t *catalogTx) SaveReservation(ctx context.Context, r *reservations.Reservation) error {
	return t.reservations.Update(ctx, r)
}

func (t *catalogTx) ShiftQueue(ctx context.Context, vacated int) error {
	return t.reservations.Shift(ctx, t.book.ID, vacated)
}

func (t *catalogTx) InsertFine(ctx context.Context, f *fines.Fine) error {
	return t.fines.Create(ctx, f)
}

func (t *catalogTx) AvgLoanDays(ctx context.Context) (float64, error) {
	return t.loans.AvgLoanDays(ctx, t.book.ID)
}

func (t *catalogTx) RecentCheckouts(ctx context.Context, since time.Time) (int, error) {
	return t.loans.CheckoutsSince(ctx, t.book.ID, since)
}
