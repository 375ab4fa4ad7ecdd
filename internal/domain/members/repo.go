package members

import (
	"context"

	"github.com/jackc/pgx/v5"
	jsoniter "github.com/json-iterator/go"

	"github.com/shulebox/circulation/internal/infra/db"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

type Repo struct{ db db.Querier }

func NewRepo(q db.Querier) *Repo { return &Repo{db: q} }

const memberColumns = `id, school_id, person_id, class_id, status,
	max_books, max_digital, loan_period_days, max_renewals, can_reserve,
	books_borrowed, digital_borrowed, books_reserved, outstanding_fines, has_overdue,
	total_borrowed, total_renewals, total_reservations, total_fines_paid,
	extensions, created_at, updated_at`

func (r *Repo) Create(ctx context.Context, m *Member) error {
	ext, err := jsonAPI.Marshal(m.Extensions)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO members (id, school_id, person_id, class_id, status,
			max_books, max_digital, loan_period_days, max_renewals, can_reserve,
			books_borrowed, digital_borrowed, books_reserved, outstanding_fines, has_overdue,
			total_borrowed, total_renewals, total_reservations, total_fines_paid, extensions)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
	`, m.ID, m.SchoolID, m.PersonID, m.ClassID, m.Status,
		m.MaxBooks, m.MaxDigital, m.LoanPeriodDays, m.MaxRenewals, m.CanReserve,
		m.BooksBorrowed, m.DigitalBorrowed, m.BooksReserved, m.OutstandingFines, m.HasOverdue,
		m.TotalBorrowed, m.TotalRenewals, m.TotalReservations, m.TotalFinesPaid, ext)
	return err
}

func (r *Repo) Get(ctx context.Context, id string) (*Member, error) {
	return r.get(ctx, id, false)
}

// GetForUpdate locks the member row so per-member counters cannot race across
// concurrent checkouts of different books. Always lock the book row first.
func (r *Repo) GetForUpdate(ctx context.Context, id string) (*Member, error) {
	return r.get(ctx, id, true)
}

func (r *Repo) get(ctx context.Context, id string, lock bool) (*Member, error) {
	q := `SELECT ` + memberColumns + ` FROM members WHERE id = $1`
	if lock {
		q += ` FOR UPDATE`
	}
	row := r.db.QueryRow(ctx, q, id)
	m, err := scanMember(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return m, err
}

func (r *Repo) Update(ctx context.Context, m *Member) error {
	ext, err := jsonAPI.Marshal(m.Extensions)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `
		UPDATE members SET
			school_id = $2, person_id = $3, class_id = $4, status = $5,
			max_books = $6, max_digital = $7, loan_period_days = $8, max_renewals = $9, can_reserve = $10,
			books_borrowed = $11, digital_borrowed = $12, books_reserved = $13,
			outstanding_fines = $14, has_overdue = $15,
			total_borrowed = $16, total_renewals = $17, total_reservations = $18, total_fines_paid = $19,
			extensions = $20, updated_at = now()
		WHERE id = $1
	`, m.ID, m.SchoolID, m.PersonID, m.ClassID, m.Status,
		m.MaxBooks, m.MaxDigital, m.LoanPeriodDays, m.MaxRenewals, m.CanReserve,
		m.BooksBorrowed, m.DigitalBorrowed, m.BooksReserved,
		m.OutstandingFines, m.HasOverdue,
		m.TotalBorrowed, m.TotalRenewals, m.TotalReservations, m.TotalFinesPaid, ext)
	return err
}

func scanMember(row pgx.Row) (*Member, error) {
	var m Member
	var ext []byte
	if err := row.Scan(
		&m.ID, &m.SchoolID, &m.PersonID, &m.ClassID, &m.Status,
		&m.MaxBooks, &m.MaxDigital, &m.LoanPeriodDays, &m.MaxRenewals, &m.CanReserve,
		&m.BooksBorrowed, &m.DigitalBorrowed, &m.BooksReserved, &m.OutstandingFines, &m.HasOverdue,
		&m.TotalBorrowed, &m.TotalRenewals, &m.TotalReservations, &m.TotalFinesPaid,
		&ext, &m.CreatedAt, &m.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if len(ext) > 0 {
		if err := jsonAPI.Unmarshal(ext, &m.Extensions); err != nil {
			return nil, err
		}
	}
	return &m, nil
}
