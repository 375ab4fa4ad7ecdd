package postgres

import (
	"context"

	"github.com/doug-martin/goqu/v9"

	"github.com/shulebox/circulation/internal/circulation"
)

// Aggregate builds the dashboard counts. Each query is scoped to one school
// when schoolID is set.
func (s *Store) Aggregate(ctx context.Context, schoolID string) (*circulation.Statistics, error) {
	var stats circulation.Statistics

	if err := s.countByStatus(ctx, "books", schoolID, func(status string, n int) {
		stats.Books.Total += n
		switch status {
		case "available":
			stats.Books.Available = n
		case "checked_out":
			stats.Books.CheckedOut = n
		case "reserved":
			stats.Books.Reserved = n
		case "maintenance":
			stats.Books.Maintenance = n
		case "lost":
			stats.Books.Lost = n
		case "damaged":
			stats.Books.Damaged = n
		case "withdrawn":
			stats.Books.Withdrawn = n
		}
	}); err != nil {
		return nil, err
	}

	if err := s.countByStatus(ctx, "members", schoolID, func(status string, n int) {
		stats.Members.Total += n
		switch status {
		case "active":
			stats.Members.Active = n
		case "suspended":
			stats.Members.Suspended = n
		case "expired":
			stats.Members.Expired = n
		case "blocked":
			stats.Members.Blocked = n
		}
	}); err != nil {
		return nil, err
	}

	loanQ := dialect.From("loans").Select(
		goqu.COUNT("*").As("total"),
		goqu.COALESCE(goqu.SUM(goqu.Case().When(goqu.I("returned_at").IsNull(), 1).Else(0)), 0).As("open"),
		goqu.COALESCE(goqu.SUM(goqu.Case().When(goqu.Ex{"status": "overdue"}, 1).Else(0)), 0).As("overdue"),
		goqu.COALESCE(goqu.SUM(goqu.Case().When(goqu.I("returned_at").IsNotNull(), 1).Else(0)), 0).As("returned"),
	)
	if schoolID != "" {
		loanQ = loanQ.Where(goqu.Ex{"school_id": schoolID})
	}
	sql, args, err := loanQ.Prepared(true).ToSQL()
	if err != nil {
		return nil, err
	}
	if err := s.pool.QueryRow(ctx, sql, args...).Scan(
		&stats.Loans.Total, &stats.Loans.Open, &stats.Loans.Overdue, &stats.Loans.Returned,
	); err != nil {
		return nil, mapPgErr(err)
	}

	fineQ := dialect.From("fines").Select(
		goqu.COALESCE(goqu.SUM(goqu.I("balance")), 0),
		goqu.COALESCE(goqu.SUM(goqu.L("amount - balance")), 0),
	)
	if schoolID != "" {
		fineQ = fineQ.Where(goqu.Ex{"school_id": schoolID})
	}
	sql, args, err = fineQ.Prepared(true).ToSQL()
	if err != nil {
		return nil, err
	}
	if err := s.pool.QueryRow(ctx, sql, args...).Scan(
		&stats.Finances.OutstandingFines, &stats.Finances.TotalCollected,
	); err != nil {
		return nil, mapPgErr(err)
	}

	return &stats, nil
}

func (s *Store) countByStatus(ctx context.Context, table, schoolID string, apply func(status string, n int)) error {
	q := dialect.From(table).
		Select(goqu.I("status"), goqu.COUNT("*")).
		GroupBy(goqu.I("status"))
	if schoolID != "" {
		q = q.Where(goqu.Ex{"school_id": schoolID})
	}
	sql, args, err := q.Prepared(true).ToSQL()
	if err != nil {
		return err
	}
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return mapPgErr(err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return err
		}
		apply(status, n)
	}
	return rows.Err()
}
