package fines

import (
	"context"

	"github.com/shulebox/circulation/internal/infra/db"
)

type Repo struct{ db db.Querier }

func NewRepo(q db.Querier) *Repo { return &Repo{db: q} }

func (r *Repo) Create(ctx context.Context, f *Fine) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO fines (id, school_id, member_id, loan_id, type, amount, balance, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, f.ID, f.SchoolID, f.MemberID, f.LoanID, f.Type, f.Amount, f.Balance, f.Status)
	return err
}

func (r *Repo) ListByMember(ctx context.Context, memberID string) ([]Fine, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, school_id, member_id, loan_id, type, amount, balance, status, created_at
		FROM fines
		WHERE member_id = $1
		ORDER BY created_at DESC
	`, memberID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Fine
	for rows.Next() {
		var f Fine
		if err := rows.Scan(&f.ID, &f.SchoolID, &f.MemberID, &f.LoanID,
			&f.Type, &f.Amount, &f.Balance, &f.Status, &f.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
