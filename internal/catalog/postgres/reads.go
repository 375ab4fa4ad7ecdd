package postgres

import (
	"context"

	"github.com/doug-martin/goqu/v9"
	// Postgres dialect for goqu-built queries.
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"

	"github.com/shulebox/circulation/internal/domain/books"
)

var dialect = goqu.Dialect("postgres")

func (s *Store) AvailableBooks(ctx context.Context, schoolID string) ([]books.Book, error) {
	bs, err := books.NewRepo(s.pool).Available(ctx, schoolID)
	return bs, mapPgErr(err)
}

func (s *Store) ReturnedCategoriesByMember(ctx context.Context, memberID string) ([]string, error) {
	q := dialect.From(goqu.T("loans").As("l")).
		Join(goqu.T("books").As("b"), goqu.On(goqu.Ex{"b.id": goqu.I("l.book_id")})).
		Select(goqu.I("b.category")).
		Where(
			goqu.Ex{"l.member_id": memberID},
			goqu.I("l.returned_at").IsNotNull(),
		).
		Order(goqu.I("l.returned_at").Desc())

	sql, args, err := q.Prepared(true).ToSQL()
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, mapPgErr(err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var cat string
		if err := rows.Scan(&cat); err != nil {
			return nil, err
		}
		out = append(out, cat)
	}
	return out, rows.Err()
}
