package loans

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/shulebox/circulation/internal/infra/db"
)

type Repo struct{ db db.Querier }

func NewRepo(q db.Querier) *Repo { return &Repo{db: q} }

const loanColumns = `id, school_id, book_id, member_id, digital, issued_by, returned_by,
	issued_at, due_at, returned_at, renewals, status, days_overdue,
	late_fee, damage_fee, replacement_fee, total_fee, condition, notes, rating`

func (r *Repo) Create(ctx context.Context, l *Loan) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO loans (id, school_id, book_id, member_id, digital, issued_by, returned_by,
			issued_at, due_at, returned_at, renewals, status, days_overdue,
			late_fee, damage_fee, replacement_fee, total_fee, condition, notes, rating)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
	`, l.ID, l.SchoolID, l.BookID, l.MemberID, l.Digital, l.IssuedBy, l.ReturnedBy,
		l.IssuedAt, l.DueAt, l.ReturnedAt, l.Renewals, l.Status, l.DaysOverdue,
		l.LateFee, l.DamageFee, l.ReplacementFee, l.TotalFee, l.Condition, l.Notes, l.Rating)
	return err
}

func (r *Repo) Update(ctx context.Context, l *Loan) error {
	_, err := r.db.Exec(ctx, `
		UPDATE loans SET
			returned_by = $2, due_at = $3, returned_at = $4, renewals = $5, status = $6,
			days_overdue = $7, late_fee = $8, damage_fee = $9, replacement_fee = $10,
			total_fee = $11, condition = $12, notes = $13, rating = $14
		WHERE id = $1
	`, l.ID, l.ReturnedBy, l.DueAt, l.ReturnedAt, l.Renewals, l.Status,
		l.DaysOverdue, l.LateFee, l.DamageFee, l.ReplacementFee,
		l.TotalFee, l.Condition, l.Notes, l.Rating)
	return err
}

// OpenByBookAndMember returns the member's open loan for the book, nil if none.
func (r *Repo) OpenByBookAndMember(ctx context.Context, bookID, memberID string) (*Loan, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+loanColumns+` FROM loans
		WHERE book_id = $1 AND member_id = $2 AND returned_at IS NULL
	`, bookID, memberID)
	l, err := scanLoan(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return l, err
}

// LatestClosedByBookAndMember is used for rating: only someone who actually
// borrowed the book gets to rate it.
func (r *Repo) LatestClosedByBookAndMember(ctx context.Context, bookID, memberID string) (*Loan, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+loanColumns+` FROM loans
		WHERE book_id = $1 AND member_id = $2 AND returned_at IS NOT NULL
		ORDER BY returned_at DESC
		LIMIT 1
	`, bookID, memberID)
	l, err := scanLoan(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return l, err
}

// OpenOverdueCount counts the member's open overdue loans, leaving out
// excludeLoanID so a return can judge what remains after it closes its loan.
func (r *Repo) OpenOverdueCount(ctx context.Context, memberID, excludeLoanID string) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `
		SELECT count(*) FROM loans
		WHERE member_id = $1 AND returned_at IS NULL AND status = 'overdue' AND id <> $2
	`, memberID, excludeLoanID).Scan(&n)
	return n, err
}

func (r *Repo) ActivePastDue(ctx context.Context, asOf time.Time) ([]Loan, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+loanColumns+` FROM loans
		WHERE returned_at IS NULL AND status = 'active' AND due_at < $1
		ORDER BY due_at
	`, asOf)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (r *Repo) BookIDsByMember(ctx context.Context, memberID string) ([]string, error) {
	rows, err := r.db.Query(ctx, `
		SELECT DISTINCT book_id FROM loans WHERE member_id = $1
	`, memberID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (r *Repo) CheckoutsSince(ctx context.Context, bookID string, since time.Time) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `
		SELECT count(*) FROM loans WHERE book_id = $1 AND issued_at >= $2
	`, bookID, since).Scan(&n)
	return n, err
}

// AvgLoanDays is the historical average checkout-to-return duration for the
// book; 0 with no error when there is no history.
func (r *Repo) AvgLoanDays(ctx context.Context, bookID string) (float64, error) {
	var days float64
	err := r.db.QueryRow(ctx, `
		SELECT COALESCE(AVG(EXTRACT(EPOCH FROM (returned_at - issued_at)) / 86400), 0)
		FROM loans
		WHERE book_id = $1 AND returned_at IS NOT NULL
	`, bookID).Scan(&days)
	return days, err
}

func collect(rows pgx.Rows) ([]Loan, error) {
	defer rows.Close()
	var out []Loan
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

func scanLoan(row pgx.Row) (*Loan, error) {
	var l Loan
	if err := row.Scan(
		&l.ID, &l.SchoolID, &l.BookID, &l.MemberID, &l.Digital, &l.IssuedBy, &l.ReturnedBy,
		&l.IssuedAt, &l.DueAt, &l.ReturnedAt, &l.Renewals, &l.Status, &l.DaysOverdue,
		&l.LateFee, &l.DamageFee, &l.ReplacementFee, &l.TotalFee, &l.Condition, &l.Notes, &l.Rating,
	); err != nil {
		return nil, err
	}
	return &l, nil
}
