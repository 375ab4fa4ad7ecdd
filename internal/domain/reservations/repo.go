package reservations

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/shulebox/circulation/internal/infra/db"
)

type Repo struct{ db db.Querier }

func NewRepo(q db.Querier) *Repo { return &Repo{db: q} }

const reservationColumns = `id, school_id, book_id, member_id, position, reserved_at,
	notified_at, expires_at, estimated_wait_days, status, notify_count`

func (r *Repo) Create(ctx context.Context, res *Reservation) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO reservations (id, school_id, book_id, member_id, position, reserved_at,
			notified_at, expires_at, estimated_wait_days, status, notify_count)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, res.ID, res.SchoolID, res.BookID, res.MemberID, res.Position, res.ReservedAt,
		res.NotifiedAt, res.ExpiresAt, res.EstimatedWaitDays, res.Status, res.NotifyCount)
	return err
}

func (r *Repo) Update(ctx context.Context, res *Reservation) error {
	_, err := r.db.Exec(ctx, `
		UPDATE reservations SET
			position = $2, notified_at = $3, expires_at = $4, status = $5, notify_count = $6
		WHERE id = $1
	`, res.ID, res.Position, res.NotifiedAt, res.ExpiresAt, res.Status, res.NotifyCount)
	return err
}

func (r *Repo) CountActive(ctx context.Context, bookID string) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `
		SELECT count(*) FROM reservations WHERE book_id = $1 AND status = 'active'
	`, bookID).Scan(&n)
	return n, err
}

func (r *Repo) HasOpen(ctx context.Context, bookID string) (bool, error) {
	var n int
	err := r.db.QueryRow(ctx, `
		SELECT count(*) FROM reservations
		WHERE book_id = $1 AND status IN ('active','notified')
	`, bookID).Scan(&n)
	return n > 0, err
}

// Next returns the active reservation first in line: lowest position, ties
// broken by earliest reserved_at. Nil if the queue is empty.
func (r *Repo) Next(ctx context.Context, bookID string) (*Reservation, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+reservationColumns+` FROM reservations
		WHERE book_id = $1 AND status = 'active'
		ORDER BY position, reserved_at
		LIMIT 1
	`, bookID)
	res, err := scanReservation(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return res, err
}

func (r *Repo) OpenByBookAndMember(ctx context.Context, bookID, memberID string) (*Reservation, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+reservationColumns+` FROM reservations
		WHERE book_id = $1 AND member_id = $2 AND status IN ('active','notified')
		ORDER BY reserved_at
		LIMIT 1
	`, bookID, memberID)
	res, err := scanReservation(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return res, err
}

// Shift closes the gap left at vacated: every active reservation behind it
// moves up one position.
func (r *Repo) Shift(ctx context.Context, bookID string, vacated int) error {
	_, err := r.db.Exec(ctx, `
		UPDATE reservations SET position = position - 1
		WHERE book_id = $1 AND status = 'active' AND position > $2
	`, bookID, vacated)
	return err
}

func (r *Repo) ExpiredNotified(ctx context.Context, asOf time.Time) ([]Reservation, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+reservationColumns+` FROM reservations
		WHERE status = 'notified' AND expires_at < $1
		ORDER BY expires_at
	`, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *res)
	}
	return out, rows.Err()
}

func scanReservation(row pgx.Row) (*Reservation, error) {
	var res Reservation
	if err := row.Scan(
		&res.ID, &res.SchoolID, &res.BookID, &res.MemberID, &res.Position, &res.ReservedAt,
		&res.NotifiedAt, &res.ExpiresAt, &res.EstimatedWaitDays, &res.Status, &res.NotifyCount,
	); err != nil {
		return nil, err
	}
	return &res, nil
}
