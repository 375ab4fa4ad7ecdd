package circulation

import (
	"context"
	"math"
	"sort"

	"github.com/shulebox/circulation/internal/domain/books"
)

const topCategories = 3

// PopularityScore weighs recent circulation against the rolling rating:
// round(10*recentCheckouts + 20*avgRating). More checkouts or a higher
// rating never lower the score.
func PopularityScore(recentCheckouts int, avgRating float64) int {
	return int(math.Round(float64(recentCheckouts)*10 + avgRating*20))
}

// Recommend ranks up to limit available books the member has not touched,
// drawn from their top borrowing categories, most popular first. Members with
// no history get the school-wide most popular available books. Deterministic:
// the same catalog state always yields the same ordered list.
func (s *Service) Recommend(ctx context.Context, memberID string, limit int) ([]books.Book, error) {
	start := s.now()
	out, err := s.recommend(ctx, memberID, limit)
	s.met.Observe("recommend", start, err)
	return out, err
}

func (s *Service) recommend(ctx context.Context, memberID string, limit int) ([]books.Book, error) {
	m, err := s.store.Member(ctx, memberID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, ErrNotFound
	}

	history, err := s.store.ReturnedCategoriesByMember(ctx, memberID)
	if err != nil {
		return nil, err
	}
	touched, err := s.store.BookIDsTouchedByMember(ctx, memberID)
	if err != nil {
		return nil, err
	}
	available, err := s.store.AvailableBooks(ctx, m.SchoolID)
	if err != nil {
		return nil, err
	}

	return rankCandidates(available, favoriteCategories(history, topCategories), touched, limit), nil
}

// favoriteCategories ranks categories by how often they occur in the member's
// return history and keeps the top n. Empty result means no category filter.
func favoriteCategories(history []string, n int) []string {
	counts := map[string]int{}
	for _, cat := range history {
		if cat != "" {
			counts[cat]++
		}
	}
	if len(counts) == 0 {
		return nil
	}

	cats := make([]string, 0, len(counts))
	for c := range counts {
		cats = append(cats, c)
	}
	sort.Slice(cats, func(i, j int) bool {
		if counts[cats[i]] != counts[cats[j]] {
			return counts[cats[i]] > counts[cats[j]]
		}
		return cats[i] < cats[j]
	})
	if len(cats) > n {
		cats = cats[:n]
	}
	return cats
}

// rankCandidates filters the available set down to the wanted categories
// (no filter when cats is empty), drops books the member already transacted
// against, and orders by popularity descending with id as the tiebreak.
func rankCandidates(available []books.Book, cats []string, touched []string, limit int) []books.Book {
	wanted := map[string]bool{}
	for _, c := range cats {
		wanted[c] = true
	}
	seen := map[string]bool{}
	for _, id := range touched {
		seen[id] = true
	}

	var out []books.Book
	for _, b := range available {
		if seen[b.ID] {
			continue
		}
		if len(wanted) > 0 && !wanted[b.Category] {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PopularityScore != out[j].PopularityScore {
			return out[i].PopularityScore > out[j].PopularityScore
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
