package books

import (
	"context"

	"github.com/jackc/pgx/v5"
	jsoniter "github.com/json-iterator/go"

	"github.com/shulebox/circulation/internal/infra/db"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

type Repo struct{ db db.Querier }

func NewRepo(q db.Querier) *Repo { return &Repo{db: q} }

const bookColumns = `id, school_id, title, author, category, status, reference_only, digital,
	restricted_classes, loan_period_days, late_fee_per_day, replacement_cost, max_renewals,
	popularity_score, avg_rating, rating_count, times_checked_out, last_checked_out_at,
	extensions, created_at, updated_at`

func (r *Repo) Create(ctx context.Context, b *Book) error {
	ext, err := jsonAPI.Marshal(b.Extensions)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO books (id, school_id, title, author, category, status, reference_only, digital,
			restricted_classes, loan_period_days, late_fee_per_day, replacement_cost, max_renewals,
			popularity_score, avg_rating, rating_count, times_checked_out, last_checked_out_at, extensions)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
	`, b.ID, b.SchoolID, b.Title, b.Author, b.Category, b.Status, b.ReferenceOnly, b.Digital,
		b.RestrictedClasses, b.LoanPeriodDays, b.LateFeePerDay, b.ReplacementCost, b.MaxRenewals,
		b.PopularityScore, b.AvgRating, b.RatingCount, b.TimesCheckedOut, b.LastCheckedOutAt, ext)
	return err
}

func (r *Repo) Get(ctx context.Context, id string) (*Book, error) {
	return r.get(ctx, id, false)
}

// GetForUpdate locks the book row for the rest of the transaction. It is the
// per-book critical section: concurrent circulation against the same book
// serializes here.
func (r *Repo) GetForUpdate(ctx context.Context, id string) (*Book, error) {
	return r.get(ctx, id, true)
}

func (r *Repo) get(ctx context.Context, id string, lock bool) (*Book, error) {
	q := `SELECT ` + bookColumns + ` FROM books WHERE id = $1`
	if lock {
		q += ` FOR UPDATE`
	}
	row := r.db.QueryRow(ctx, q, id)
	b, err := scanBook(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return b, err
}

func (r *Repo) Update(ctx context.Context, b *Book) error {
	ext, err := jsonAPI.Marshal(b.Extensions)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `
		UPDATE books SET
			school_id = $2, title = $3, author = $4, category = $5, status = $6,
			reference_only = $7, digital = $8, restricted_classes = $9,
			loan_period_days = $10, late_fee_per_day = $11, replacement_cost = $12,
			max_renewals = $13, popularity_score = $14, avg_rating = $15, rating_count = $16,
			times_checked_out = $17, last_checked_out_at = $18, extensions = $19,
			updated_at = now()
		WHERE id = $1
	`, b.ID, b.SchoolID, b.Title, b.Author, b.Category, b.Status,
		b.ReferenceOnly, b.Digital, b.RestrictedClasses,
		b.LoanPeriodDays, b.LateFeePerDay, b.ReplacementCost,
		b.MaxRenewals, b.PopularityScore, b.AvgRating, b.RatingCount,
		b.TimesCheckedOut, b.LastCheckedOutAt, ext)
	return err
}

func (r *Repo) IDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT id FROM books WHERE status <> 'withdrawn' ORDER BY id`)
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

func (r *Repo) Available(ctx context.Context, schoolID string) ([]Book, error) {
	q := `SELECT ` + bookColumns + ` FROM books WHERE status = 'available'`
	args := []any{}
	if schoolID != "" {
		q += ` AND school_id = $1`
		args = append(args, schoolID)
	}
	q += ` ORDER BY popularity_score DESC, id`

	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Book
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

func scanBook(row pgx.Row) (*Book, error) {
	var b Book
	var ext []byte
	if err := row.Scan(
		&b.ID, &b.SchoolID, &b.Title, &b.Author, &b.Category, &b.Status,
		&b.ReferenceOnly, &b.Digital, &b.RestrictedClasses,
		&b.LoanPeriodDays, &b.LateFeePerDay, &b.ReplacementCost, &b.MaxRenewals,
		&b.PopularityScore, &b.AvgRating, &b.RatingCount, &b.TimesCheckedOut,
		&b.LastCheckedOutAt, &ext, &b.CreatedAt, &b.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if len(ext) > 0 {
		if err := jsonAPI.Unmarshal(ext, &b.Extensions); err != nil {
			return nil, err
		}
	}
	return &b, nil
}
