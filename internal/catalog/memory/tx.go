package memory

import (
	"context"
	"sort"
	"time"

	"github.com/shulebox/circulation/internal/domain/books"
	"github.com/shulebox/circulation/internal/domain/fines"
	"github.com/shulebox/circulation/internal/domain/loans"
	"github.com/shulebox/circulation/internal/domain/members"
	"github.com/shulebox/circulation/internal/domain/reservations"
)

// memTx stages writes in per-record overlays. Reads merge the overlays over
// the committed maps, so a section observes its own earlier writes, matching
// what a database transaction would see. Nothing lands in the store until the
// section function returns nil.
type memTx struct {
	store  *Store
	book   *books.Book
	member *members.Member

	books        map[string]*books.Book
	members      map[string]*members.Member
	loans        map[string]*loans.Loan
	reservations map[string]*reservations.Reservation
	fines        map[string]*fines.Fine
}

func newMemTx(s *Store, b *books.Book, m *members.Member) *memTx {
	return &memTx{
		store:        s,
		book:         b,
		member:       m,
		books:        map[string]*books.Book{},
		members:      map[string]*members.Member{},
		loans:        map[string]*loans.Loan{},
		reservations: map[string]*reservations.Reservation{},
		fines:        map[string]*fines.Fine{},
	}
}

func (t *memTx) commit() {
	for id, b := range t.books {
		t.store.books[id] = b
	}
	for id, m := range t.members {
		t.store.members[id] = m
	}
	for id, l := range t.loans {
		t.store.loans[id] = l
	}
	for id, r := range t.reservations {
		t.store.reservations[id] = r
	}
	for id, f := range t.fines {
		t.store.fines[id] = f
	}
}

// eachLoan visits the merged view: committed loans not shadowed by the
// overlay, then the overlay itself.
func (t *memTx) eachLoan(fn func(*loans.Loan)) {
	for id, l := range t.store.loans {
		if _, staged := t.loans[id]; !staged {
			fn(l)
		}
	}
	for _, l := range t.loans {
		fn(l)
	}
}

func (t *memTx) eachReservation(fn func(*reservations.Reservation)) {
	for id, r := range t.store.reservations {
		if _, staged := t.reservations[id]; !staged {
			fn(r)
		}
	}
	for _, r := range t.reservations {
		fn(r)
	}
}

func (t *memTx) Book() *books.Book       { return t.book }
func (t *memTx) Member() *members.Member { return t.member }

func (t *memTx) SaveBook(_ context.Context, b *books.Book) error {
	t.books[b.ID] = cloneBook(b)
	return nil
}

func (t *memTx) SaveMember(_ context.Context, m *members.Member) error {
	t.members[m.ID] = cloneMember(m)
	return nil
}

func (t *memTx) ActiveLoan(_ context.Context) (*loans.Loan, error) {
	var found *loans.Loan
	t.eachLoan(func(l *loans.Loan) {
		if l.BookID == t.book.ID && l.MemberID == t.member.ID && l.Open() {
			c := *l
			found = &c
		}
	})
	return found, nil
}

func (t *memTx) LatestClosedLoan(_ context.Context) (*loans.Loan, error) {
	var latest *loans.Loan
	t.eachLoan(func(l *loans.Loan) {
		if l.BookID != t.book.ID || l.MemberID != t.member.ID || l.Open() {
			return
		}
		if latest == nil || l.ReturnedAt.After(*latest.ReturnedAt) {
			c := *l
			latest = &c
		}
	})
	return latest, nil
}

func (t *memTx) InsertLoan(_ context.Context, l *loans.Loan) error {
	c := *l
	t.loans[c.ID] = &c
	return nil
}

func (t *memTx) SaveLoan(_ context.Context, l *loans.Loan) error {
	return t.InsertLoan(nil, l)
}

func (t *memTx) OpenOverdueCount(_ context.Context, excludeLoanID string) (int, error) {
	n := 0
	t.eachLoan(func(l *loans.Loan) {
		if l.MemberID == t.member.ID && l.Open() && l.Status == loans.StatusOverdue && l.ID != excludeLoanID {
			n++
		}
	})
	return n, nil
}

func (t *memTx) ActiveReservationCount(_ context.Context) (int, error) {
	n := 0
	t.eachReservation(func(r *reservations.Reservation) {
		if r.BookID == t.book.ID && r.Status == reservations.StatusActive {
			n++
		}
	})
	return n, nil
}

func (t *memTx) HasOpenReservations(_ context.Context) (bool, error) {
	open := false
	t.eachReservation(func(r *reservations.Reservation) {
		if r.BookID == t.book.ID && r.OpenStatus() {
			open = true
		}
	})
	return open, nil
}

func (t *memTx) NextReservation(_ context.Context) (*reservations.Reservation, error) {
	var candidates []*reservations.Reservation
	t.eachReservation(func(r *reservations.Reservation) {
		if r.BookID == t.book.ID && r.Status == reservations.StatusActive {
			candidates = append(candidates, r)
		}
	})
	if len(candidates) == 0 {
		return nil, nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Position != candidates[j].Position {
			return candidates[i].Position < candidates[j].Position
		}
		return candidates[i].ReservedAt.Before(candidates[j].ReservedAt)
	})
	c := *candidates[0]
	return &c, nil
}

func (t *memTx) OpenReservation(_ context.Context) (*reservations.Reservation, error) {
	var best *reservations.Reservation
	t.eachReservation(func(r *reservations.Reservation) {
		if r.BookID != t.book.ID || r.MemberID != t.member.ID || !r.OpenStatus() {
			return
		}
		if best == nil || r.ReservedAt.Before(best.ReservedAt) {
			best = r
		}
	})
	if best == nil {
		return nil, nil
	}
	c := *best
	return &c, nil
}

func (t *memTx) InsertReservation(_ context.Context, r *reservations.Reservation) error {
	c := *r
	t.reservations[c.ID] = &c
	return nil
}

func (t *memTx) SaveReservation(_ context.Context, r *reservations.Reservation) error {
	return t.InsertReservation(nil, r)
}

func (t *memTx) ShiftQueue(_ context.Context, vacated int) error {
	var shift []*reservations.Reservation
	t.eachReservation(func(r *reservations.Reservation) {
		if r.BookID == t.book.ID && r.Status == reservations.StatusActive && r.Position > vacated {
			c := *r
			shift = append(shift, &c)
		}
	})
	for _, r := range shift {
		r.Position--
		t.reservations[r.ID] = r
	}
	return nil
}

func (t *memTx) InsertFine(_ context.Context, f *fines.Fine) error {
	c := *f
	t.fines[c.ID] = &c
	return nil
}

func (t *memTx) AvgLoanDays(_ context.Context) (float64, error) {
	var total float64
	n := 0
	t.eachLoan(func(l *loans.Loan) {
		if l.BookID == t.book.ID && !l.Open() {
			total += l.ReturnedAt.Sub(l.IssuedAt).Hours() / 24
			n++
		}
	})
	if n == 0 {
		return 0, nil
	}
	return total / float64(n), nil
}

func (t *memTx) RecentCheckouts(_ context.Context, since time.Time) (int, error) {
	n := 0
	t.eachLoan(func(l *loans.Loan) {
		if l.BookID == t.book.ID && !l.IssuedAt.Before(since) {
			n++
		}
	})
	return n, nil
}

func cloneBook(b *books.Book) *books.Book {
	c := *b
	c.RestrictedClasses = append([]string(nil), b.RestrictedClasses...)
	if b.LastCheckedOutAt != nil {
		ts := *b.LastCheckedOutAt
		c.LastCheckedOutAt = &ts
	}
	if b.Extensions != nil {
		c.Extensions = make(map[string]string, len(b.Extensions))
		for k, v := range b.Extensions {
			c.Extensions[k] = v
		}
	}
	return &c
}

func cloneMember(m *members.Member) *members.Member {
	c := *m
	if m.Extensions != nil {
		c.Extensions = make(map[string]string, len(m.Extensions))
		for k, v := range m.Extensions {
			c.Extensions[k] = v
		}
	}
	return &c
}
