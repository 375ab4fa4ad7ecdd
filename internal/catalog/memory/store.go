// Package memory is an in-process Catalog Store: the reference implementation
// of the store contract and the backend for the circulation engine's tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shulebox/circulation/internal/circulation"
	"github.com/shulebox/circulation/internal/domain/books"
	"github.com/shulebox/circulation/internal/domain/fines"
	"github.com/shulebox/circulation/internal/domain/loans"
	"github.com/shulebox/circulation/internal/domain/members"
	"github.com/shulebox/circulation/internal/domain/reservations"
)

type Store struct {
	mu           sync.Mutex
	books        map[string]*books.Book
	members      map[string]*members.Member
	loans        map[string]*loans.Loan
	reservations map[string]*reservations.Reservation
	fines        map[string]*fines.Fine
}

func New() *Store {
	return &Store{
		books:        map[string]*books.Book{},
		members:      map[string]*members.Member{},
		loans:        map[string]*loans.Loan{},
		reservations: map[string]*reservations.Reservation{},
		fines:        map[string]*fines.Fine{},
	}
}

func (s *Store) AddBook(b *books.Book) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.books[b.ID] = cloneBook(b)
}

func (s *Store) AddMember(m *members.Member) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[m.ID] = cloneMember(m)
}

func (s *Store) Fines() []fines.Fine {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []fines.Fine
	for _, f := range s.fines {
		out = append(out, *f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) Loans(bookID string) []loans.Loan {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []loans.Loan
	for _, l := range s.loans {
		if l.BookID == bookID {
			out = append(out, *l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) Reservations(bookID string) []reservations.Reservation {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []reservations.Reservation
	for _, r := range s.reservations {
		if r.BookID == bookID {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReservedAt.Before(out[j].ReservedAt) })
	return out
}

func (s *Store) WithBook(ctx context.Context, bookID string, fn func(ctx context.Context, tx circulation.Tx) error) error {
	return s.section(ctx, bookID, "", fn)
}

func (s *Store) WithBookAndMember(ctx context.Context, bookID, memberID string, fn func(ctx context.Context, tx circulation.Tx) error) error {
	return s.section(ctx, bookID, memberID, fn)
}

// section serializes every atomic section behind one mutex. Writes are staged
// in overlays visible to the section's own reads and applied only when fn
// succeeds, so a failed operation leaves no partial state.
func (s *Store) section(ctx context.Context, bookID, memberID string, fn func(ctx context.Context, tx circulation.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.books[bookID]
	if !ok {
		return fmt.Errorf("book %s: %w", bookID, circulation.ErrNotFound)
	}
	var m *members.Member
	if memberID != "" {
		m, ok = s.members[memberID]
		if !ok {
			return fmt.Errorf("member %s: %w", memberID, circulation.ErrNotFound)
		}
	}

	var mc *members.Member
	if m != nil {
		mc = cloneMember(m)
	}
	tx := newMemTx(s, cloneBook(b), mc)
	if err := fn(ctx, tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

func (s *Store) Book(_ context.Context, id string) (*books.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.books[id]; ok {
		return cloneBook(b), nil
	}
	return nil, nil
}

func (s *Store) Member(_ context.Context, id string) (*members.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.members[id]; ok {
		return cloneMember(m), nil
	}
	return nil, nil
}

func (s *Store) ReturnedCategoriesByMember(_ context.Context, memberID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ls []*loans.Loan
	for _, l := range s.loans {
		if l.MemberID == memberID && !l.Open() {
			ls = append(ls, l)
		}
	}
	sort.Slice(ls, func(i, j int) bool { return ls[i].ReturnedAt.After(*ls[j].ReturnedAt) })

	var out []string
	for _, l := range ls {
		if b, ok := s.books[l.BookID]; ok {
			out = append(out, b.Category)
		}
	}
	return out, nil
}

func (s *Store) BookIDsTouchedByMember(_ context.Context, memberID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[string]bool{}
	var out []string
	for _, l := range s.loans {
		if l.MemberID == memberID && !seen[l.BookID] {
			seen[l.BookID] = true
			out = append(out, l.BookID)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) AvailableBooks(_ context.Context, schoolID string) ([]books.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []books.Book
	for _, b := range s.books {
		if b.Status != books.StatusAvailable {
			continue
		}
		if schoolID != "" && b.SchoolID != schoolID {
			continue
		}
		out = append(out, *cloneBook(b))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PopularityScore != out[j].PopularityScore {
			return out[i].PopularityScore > out[j].PopularityScore
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) ActiveLoansPastDue(_ context.Context, asOf time.Time) ([]loans.Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []loans.Loan
	for _, l := range s.loans {
		if l.Open() && l.Status == loans.StatusActive && l.DueAt.Before(asOf) {
			out = append(out, *l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueAt.Before(out[j].DueAt) })
	return out, nil
}

func (s *Store) ExpiredNotifiedReservations(_ context.Context, asOf time.Time) ([]reservations.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []reservations.Reservation
	for _, r := range s.reservations {
		if r.Status == reservations.StatusNotified && r.ExpiresAt.Before(asOf) {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	return out, nil
}

func (s *Store) FinesByMember(_ context.Context, memberID string) ([]fines.Fine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []fines.Fine
	for _, f := range s.fines {
		if f.MemberID == memberID {
			out = append(out, *f)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) BookIDs(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for id, b := range s.books {
		if b.Status != books.StatusWithdrawn {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Aggregate lets tests exercise the statistics reader without postgres.
func (s *Store) Aggregate(_ context.Context, schoolID string) (*circulation.Statistics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stats circulation.Statistics
	for _, b := range s.books {
		if schoolID != "" && b.SchoolID != schoolID {
			continue
		}
		stats.Books.Total++
		switch b.Status {
		case books.StatusAvailable:
			stats.Books.Available++
		case books.StatusCheckedOut:
			stats.Books.CheckedOut++
		case books.StatusReserved:
			stats.Books.Reserved++
		case books.StatusMaintenance:
			stats.Books.Maintenance++
		case books.StatusLost:
			stats.Books.Lost++
		case books.StatusDamaged:
			stats.Books.Damaged++
		case books.StatusWithdrawn:
			stats.Books.Withdrawn++
		}
	}
	for _, m := range s.members {
		if schoolID != "" && m.SchoolID != schoolID {
			continue
		}
		stats.Members.Total++
		switch m.Status {
		case members.StatusActive:
			stats.Members.Active++
		case members.StatusSuspended:
			stats.Members.Suspended++
		case members.StatusExpired:
			stats.Members.Expired++
		case members.StatusBlocked:
			stats.Members.Blocked++
		}
	}
	for _, l := range s.loans {
		if schoolID != "" && l.SchoolID != schoolID {
			continue
		}
		stats.Loans.Total++
		if l.Open() {
			stats.Loans.Open++
		} else {
			stats.Loans.Returned++
		}
		if l.Status == loans.StatusOverdue {
			stats.Loans.Overdue++
		}
	}
	for _, f := range s.fines {
		if schoolID != "" && f.SchoolID != schoolID {
			continue
		}
		stats.Finances.OutstandingFines += f.Balance
		stats.Finances.TotalCollected += f.Amount - f.Balance
	}
	return &stats, nil
}
