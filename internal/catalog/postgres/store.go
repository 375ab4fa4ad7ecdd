package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shulebox/circulation/internal/circulation"
	"github.com/shulebox/circulation/internal/domain/books"
	"github.com/shulebox/circulation/internal/domain/fines"
	"github.com/shulebox/circulation/internal/domain/loans"
	"github.com/shulebox/circulation/internal/domain/members"
	"github.com/shulebox/circulation/internal/domain/reservations"
)

// Store is the durable Catalog Store. Per-book exclusivity comes from locking
// the book row (SELECT ... FOR UPDATE) at section start; the member row is
// locked after it, always in that order.
type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store { return &Store{pool: pool} }

func (s *Store) WithBook(ctx context.Context, bookID string, fn func(ctx context.Context, tx circulation.Tx) error) error {
	return s.section(ctx, bookID, "", fn)
}

func (s *Store) WithBookAndMember(ctx context.Context, bookID, memberID string, fn func(ctx context.Context, tx circulation.Tx) error) error {
	return s.section(ctx, bookID, memberID, fn)
}

func (s *Store) section(ctx context.Context, bookID, memberID string, fn func(ctx context.Context, tx circulation.Tx) error) error {
	pgtx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", circulation.ErrUpstream, err)
	}
	defer func() { _ = pgtx.Rollback(ctx) }()

	b, err := books.NewRepo(pgtx).GetForUpdate(ctx, bookID)
	if err != nil {
		return mapPgErr(err)
	}
	if b == nil {
		return fmt.Errorf("book %s: %w", bookID, circulation.ErrNotFound)
	}

	var m *members.Member
	if memberID != "" {
		m, err = members.NewRepo(pgtx).GetForUpdate(ctx, memberID)
		if err != nil {
			return mapPgErr(err)
		}
		if m == nil {
			return fmt.Errorf("member %s: %w", memberID, circulation.ErrNotFound)
		}
	}

	ct := &catalogTx{
		book:         b,
		member:       m,
		books:        books.NewRepo(pgtx),
		members:      members.NewRepo(pgtx),
		loans:        loans.NewRepo(pgtx),
		reservations: reservations.NewRepo(pgtx),
		fines:        fines.NewRepo(pgtx),
	}
	if err := fn(ctx, ct); err != nil {
		return mapPgErr(err)
	}
	return mapPgErr(pgtx.Commit(ctx))
}

func (s *Store) Book(ctx context.Context, id string) (*books.Book, error) {
	b, err := books.NewRepo(s.pool).Get(ctx, id)
	return b, mapPgErr(err)
}

func (s *Store) Member(ctx context.Context, id string) (*members.Member, error) {
	m, err := members.NewRepo(s.pool).Get(ctx, id)
	return m, mapPgErr(err)
}

func (s *Store) FinesByMember(ctx context.Context, memberID string) ([]fines.Fine, error) {
	fs, err := fines.NewRepo(s.pool).ListByMember(ctx, memberID)
	return fs, mapPgErr(err)
}

func (s *Store) BookIDsTouchedByMember(ctx context.Context, memberID string) ([]string, error) {
	ids, err := loans.NewRepo(s.pool).BookIDsByMember(ctx, memberID)
	return ids, mapPgErr(err)
}

func (s *Store) ActiveLoansPastDue(ctx context.Context, asOf time.Time) ([]loans.Loan, error) {
	ls, err := loans.NewRepo(s.pool).ActivePastDue(ctx, asOf)
	return ls, mapPgErr(err)
}

func (s *Store) ExpiredNotifiedReservations(ctx context.Context, asOf time.Time) ([]reservations.Reservation, error) {
	rs, err := reservations.NewRepo(s.pool).ExpiredNotified(ctx, asOf)
	return rs, mapPgErr(err)
}

func (s *Store) BookIDs(ctx context.Context) ([]string, error) {
	ids, err := books.NewRepo(s.pool).IDs(ctx)
	return ids, mapPgErr(err)
}

// mapPgErr folds races on the book row into the Conflict kind so callers know
// a retry is safe: serialization failures, deadlocks, and the partial unique
// index guarding one open loan per physical copy.
func mapPgErr(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "23505":
			return fmt.Errorf("%w: %v", circulation.ErrConflict, err)
		}
	}
	return err
}
