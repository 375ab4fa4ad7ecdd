package circulation_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shulebox/circulation/internal/circulation"
	"github.com/shulebox/circulation/internal/domain/books"
	"github.com/shulebox/circulation/internal/domain/loans"
)

func Test_PopularityScore(t *testing.T) {
	assert.Zero(t, circulation.PopularityScore(0, 0))
	assert.Equal(t, 30, circulation.PopularityScore(3, 0))
	assert.Equal(t, 90, circulation.PopularityScore(0, 4.5))
	assert.Equal(t, 130, circulation.PopularityScore(4, 4.5))

	// More activity or a better rating never lowers the score.
	assert.GreaterOrEqual(t, circulation.PopularityScore(5, 3.0), circulation.PopularityScore(4, 3.0))
	assert.GreaterOrEqual(t, circulation.PopularityScore(4, 3.5), circulation.PopularityScore(4, 3.0))
}

// borrowAndReturn runs a full loan cycle so the book lands in the member's
// return history.
func borrowAndReturn(t *testing.T, f *fixture, bookID, memberID string) {
	t.Helper()
	ctx := context.Background()
	_, err := f.svc.Checkout(ctx, bookID, memberID, "staff1", false)
	require.NoError(t, err)
	_, err = f.svc.Return(ctx, bookID, memberID, "staff1", loans.ConditionGood, "")
	require.NoError(t, err)
}

func Test_Recommend_PrefersMemberCategories(t *testing.T) {
	f := newFixture()
	f.addMember("m1")

	f.addBook("read1", func(b *books.Book) { b.Category = "science" })
	f.addBook("read2", func(b *books.Book) { b.Category = "science" })
	borrowAndReturn(t, f, "read1", "m1")
	borrowAndReturn(t, f, "read2", "m1")

	f.addBook("sci1", func(b *books.Book) {
		b.Category = "science"
		b.PopularityScore = 40
	})
	f.addBook("sci2", func(b *books.Book) {
		b.Category = "science"
		b.PopularityScore = 90
	})
	f.addBook("hist1", func(b *books.Book) {
		b.Category = "history"
		b.PopularityScore = 200
	})

	got, err := f.svc.Recommend(context.Background(), "m1", 10)
	require.NoError(t, err)

	ids := make([]string, 0, len(got))
	for _, b := range got {
		ids = append(ids, b.ID)
	}
	// Science only, most popular first, and never the books already read.
	assert.Equal(t, []string{"sci2", "sci1"}, ids)
}

func Test_Recommend_NoHistoryFallsBackToPopular(t *testing.T) {
	f := newFixture()
	f.addMember("m1")

	f.addBook("a", func(b *books.Book) { b.PopularityScore = 10 })
	f.addBook("b", func(b *books.Book) {
		b.Category = "poetry"
		b.PopularityScore = 80
	})
	f.addBook("c", func(b *books.Book) { b.PopularityScore = 50 })

	got, err := f.svc.Recommend(context.Background(), "m1", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].ID)
	assert.Equal(t, "c", got[1].ID)
}

func Test_Recommend_ExcludesBooksAlreadyTouched(t *testing.T) {
	f := newFixture()
	f.addMember("m1")
	ctx := context.Background()

	f.addBook("b1")
	f.addBook("b2")

	// b1 was read and returned: available again, but never re-suggested.
	borrowAndReturn(t, f, "b1", "m1")

	got, err := f.svc.Recommend(ctx, "m1", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "b2", got[0].ID)
}

func Test_Recommend_Deterministic(t *testing.T) {
	f := newFixture()
	f.addMember("m1")
	for _, id := range []string{"x", "y", "z"} {
		f.addBook(id, func(b *books.Book) { b.PopularityScore = 25 })
	}

	ctx := context.Background()
	first, err := f.svc.Recommend(ctx, "m1", 10)
	require.NoError(t, err)
	second, err := f.svc.Recommend(ctx, "m1", 10)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// Equal popularity falls back to id order.
	ids := make([]string, 0, len(first))
	for _, b := range first {
		ids = append(ids, b.ID)
	}
	assert.Equal(t, []string{"x", "y", "z"}, ids)
}

func Test_Recommend_UnknownMember(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Recommend(context.Background(), "ghost", 5)
	assert.ErrorIs(t, err, circulation.ErrNotFound)
}
