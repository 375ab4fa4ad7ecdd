package circulation

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/shulebox/circulation/internal/domain/books"
	"github.com/shulebox/circulation/internal/domain/fines"
	"github.com/shulebox/circulation/internal/domain/loans"
	"github.com/shulebox/circulation/internal/domain/members"
	"github.com/shulebox/circulation/internal/domain/reservations"
	"github.com/shulebox/circulation/internal/infra/metrics"
	"github.com/shulebox/circulation/internal/infra/notify"
)

const popularityWindowDays = 30

type Config struct {
	DefaultLoanDays    int
	ClaimWindowDays    int
	FineBlockThreshold float64
	DefaultWaitDays    int
}

// Service is the circulation ledger. It is stateless across requests; all
// shared state lives behind the Store.
type Service struct {
	store Store
	sink  notify.Sink
	log   *slog.Logger
	met   *metrics.Set
	cfg   Config

	now func() time.Time
}

func NewService(store Store, sink notify.Sink, log *slog.Logger, met *metrics.Set, cfg Config) *Service {
	if cfg.DefaultLoanDays <= 0 {
		cfg.DefaultLoanDays = 14
	}
	if cfg.ClaimWindowDays <= 0 {
		cfg.ClaimWindowDays = 7
	}
	if cfg.DefaultWaitDays <= 0 {
		cfg.DefaultWaitDays = 14
	}
	return &Service{store: store, sink: sink, log: log, met: met, cfg: cfg, now: time.Now}
}

// WithClock replaces the service time source. Tests freeze time with it.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Checkout issues the book to the member. Eligibility is re-checked inside
// the per-book section, so two concurrent checkouts of a single physical copy
// cannot both pass. A walk-in checkout of an available copy is allowed even
// when a reservation queue exists; the queue only matters once the book is
// unavailable.
func (s *Service) Checkout(ctx context.Context, bookID, memberID, issuedBy string, digital bool) (*loans.Loan, error) {
	start := s.now()
	var out *loans.Loan

	err := s.store.WithBookAndMember(ctx, bookID, memberID, func(ctx context.Context, tx Tx) error {
		b, m := tx.Book(), tx.Member()
		if d := CanCheckout(m, b, digital, s.cfg.FineBlockThreshold); d != nil {
			return d
		}

		now := s.now()
		l := &loans.Loan{
			ID:        uuid.NewString(),
			SchoolID:  b.SchoolID,
			BookID:    b.ID,
			MemberID:  m.ID,
			Digital:   digital,
			IssuedBy:  issuedBy,
			IssuedAt:  now,
			DueAt:     now.AddDate(0, 0, s.loanDays(m, b)),
			Status:    loans.StatusActive,
			Condition: loans.ConditionGood,
		}
		if err := tx.InsertLoan(ctx, l); err != nil {
			return err
		}

		if digital {
			m.DigitalBorrowed++
		} else {
			b.Status = books.StatusCheckedOut
			b.TimesCheckedOut++
			b.LastCheckedOutAt = &now
			if err := tx.SaveBook(ctx, b); err != nil {
				return err
			}
			m.BooksBorrowed++
		}
		m.TotalBorrowed++

		// A member claiming their own reservation fulfills it and leaves the
		// queue.
		r, err := tx.OpenReservation(ctx)
		if err != nil {
			return err
		}
		if r != nil {
			vacated := r.Position
			r.Status = reservations.StatusFulfilled
			r.Position = 0
			if err := tx.SaveReservation(ctx, r); err != nil {
				return err
			}
			if vacated > 0 {
				if err := tx.ShiftQueue(ctx, vacated); err != nil {
					return err
				}
			}
			if m.BooksReserved > 0 {
				m.BooksReserved--
			}
		}

		if err := tx.SaveMember(ctx, m); err != nil {
			return err
		}
		out = l
		return nil
	})

	s.met.Observe("checkout", start, err)
	if err != nil {
		return nil, err
	}
	s.log.Info("checkout", "book_id", bookID, "member_id", memberID, "digital", digital, "due_at", out.DueAt)
	return out, nil
}

// Return closes the member's open loan for the book, computes fees, restores
// the book, and advances the reservation queue.
func (s *Service) Return(ctx context.Context, bookID, memberID, returnedBy string, condition loans.Condition, notes string) (*loans.Loan, error) {
	start := s.now()
	var out *loans.Loan
	var bookFreed bool

	err := s.store.WithBookAndMember(ctx, bookID, memberID, func(ctx context.Context, tx Tx) error {
		b, m := tx.Book(), tx.Member()

		l, err := tx.ActiveLoan(ctx)
		if err != nil {
			return err
		}
		if l == nil {
			return ErrNoActiveLoan
		}

		now := s.now()
		days := daysOverdueAt(now, l.DueAt)
		l.DaysOverdue = days
		l.LateFee = float64(days) * b.LateFeePerDay
		l.ReturnedAt = &now
		l.ReturnedBy = returnedBy
		l.Condition = condition
		l.Notes = notes

		switch condition {
		case loans.ConditionLost:
			l.Status = loans.StatusLost
			l.ReplacementFee = b.ReplacementCost
		case loans.ConditionDamaged:
			l.Status = loans.StatusDamaged
			l.DamageFee = b.ReplacementCost / 2
		default:
			if days > 0 {
				l.Status = loans.StatusOverdue
			} else {
				l.Status = loans.StatusReturned
			}
		}
		l.TotalFee = l.LateFee + l.DamageFee + l.ReplacementFee
		if err := tx.SaveLoan(ctx, l); err != nil {
			return err
		}

		if !l.Digital {
			switch condition {
			case loans.ConditionLost:
				b.Status = books.StatusLost
			case loans.ConditionDamaged:
				b.Status = books.StatusDamaged
			default:
				b.Status = books.StatusAvailable
				bookFreed = true
			}
		}
		recent, err := tx.RecentCheckouts(ctx, now.AddDate(0, 0, -popularityWindowDays))
		if err != nil {
			return err
		}
		b.PopularityScore = PopularityScore(recent, b.AvgRating)
		if err := tx.SaveBook(ctx, b); err != nil {
			return err
		}

		if l.Digital {
			if m.DigitalBorrowed > 0 {
				m.DigitalBorrowed--
			}
		} else if m.BooksBorrowed > 0 {
			m.BooksBorrowed--
		}
		m.OutstandingFines += l.TotalFee
		// The loan being closed is excluded so the flag reflects what stays
		// open after this return.
		overdue, err := tx.OpenOverdueCount(ctx, l.ID)
		if err != nil {
			return err
		}
		m.HasOverdue = overdue > 0
		if err := tx.SaveMember(ctx, m); err != nil {
			return err
		}

		// Fines are written in the same section as the loan they reference,
		// after the loan row is finalized: no orphaned fines.
		for _, f := range loanFines(l) {
			if err := tx.InsertFine(ctx, f); err != nil {
				return err
			}
			s.met.FinesIssued.Inc()
		}

		out = l
		return nil
	})

	s.met.Observe("return", start, err)
	if err != nil {
		return nil, err
	}
	s.log.Info("return", "book_id", bookID, "member_id", memberID,
		"days_overdue", out.DaysOverdue, "total_fee", out.TotalFee, "condition", string(condition))

	if bookFreed {
		if _, err := s.ProcessQueue(ctx, bookID); err != nil {
			s.log.Error("queue advance after return failed", "book_id", bookID, "err", err)
		}
	}
	return out, nil
}

// Renew pushes the due date out by one loan period from the current due date.
// Renewal is refused once anyone is waiting for the book.
func (s *Service) Renew(ctx context.Context, bookID, memberID string) (*loans.Loan, error) {
	start := s.now()
	var out *loans.Loan

	err := s.store.WithBookAndMember(ctx, bookID, memberID, func(ctx context.Context, tx Tx) error {
		b, m := tx.Book(), tx.Member()

		l, err := tx.ActiveLoan(ctx)
		if err != nil {
			return err
		}
		if l == nil {
			return ErrNoActiveLoan
		}
		if l.Renewals >= s.renewalCap(m, b) {
			return ErrMaxRenewals
		}
		waiting, err := tx.HasOpenReservations(ctx)
		if err != nil {
			return err
		}
		if waiting {
			return ErrHasReservations
		}

		l.DueAt = l.DueAt.AddDate(0, 0, s.loanDays(m, b))
		l.Renewals++
		if err := tx.SaveLoan(ctx, l); err != nil {
			return err
		}

		m.TotalRenewals++
		if err := tx.SaveMember(ctx, m); err != nil {
			return err
		}
		out = l
		return nil
	})

	s.met.Observe("renew", start, err)
	if err != nil {
		return nil, err
	}
	s.log.Info("renew", "book_id", bookID, "member_id", memberID, "renewals", out.Renewals, "due_at", out.DueAt)
	return out, nil
}

// RateBook records a 1-5 rating from a member who has previously returned the
// book, and folds it into the book's rolling average.
func (s *Service) RateBook(ctx context.Context, bookID, memberID string, rating int) error {
	start := s.now()

	err := s.store.WithBookAndMember(ctx, bookID, memberID, func(ctx context.Context, tx Tx) error {
		if rating < 1 || rating > 5 {
			return ErrBadRating
		}
		b := tx.Book()

		l, err := tx.LatestClosedLoan(ctx)
		if err != nil {
			return err
		}
		if l == nil {
			return ErrNeverBorrowed
		}

		sum := b.AvgRating * float64(b.RatingCount)
		if l.Rating > 0 {
			sum -= float64(l.Rating)
		} else {
			b.RatingCount++
		}
		sum += float64(rating)
		b.AvgRating = sum / float64(b.RatingCount)

		l.Rating = rating
		if err := tx.SaveLoan(ctx, l); err != nil {
			return err
		}

		recent, err := tx.RecentCheckouts(ctx, s.now().AddDate(0, 0, -popularityWindowDays))
		if err != nil {
			return err
		}
		b.PopularityScore = PopularityScore(recent, b.AvgRating)
		return tx.SaveBook(ctx, b)
	})

	s.met.Observe("rate", start, err)
	return err
}

// OverrideStatus is the administrative path for maintenance, loss, damage and
// withdrawal. Circulation statuses stay reserved for transactions, and
// withdrawn is terminal.
func (s *Service) OverrideStatus(ctx context.Context, bookID string, to books.Status, by string) error {
	start := s.now()

	err := s.store.WithBook(ctx, bookID, func(ctx context.Context, tx Tx) error {
		switch to {
		case books.StatusAvailable, books.StatusMaintenance, books.StatusLost,
			books.StatusDamaged, books.StatusWithdrawn:
		default:
			return ErrBadStatus
		}
		b := tx.Book()
		if b.Status == books.StatusWithdrawn {
			return ErrBookWithdrawn
		}
		if b.Status == books.StatusCheckedOut && to == books.StatusAvailable {
			return ErrStillOnLoan
		}
		b.Status = to
		return tx.SaveBook(ctx, b)
	})

	s.met.Observe("override_status", start, err)
	if err == nil {
		s.log.Info("status override", "book_id", bookID, "status", string(to), "by", by)
	}
	return err
}

// MemberFines lists the member's fine records, newest first.
func (s *Service) MemberFines(ctx context.Context, memberID string) ([]fines.Fine, error) {
	start := s.now()
	out, err := s.memberFines(ctx, memberID)
	s.met.Observe("member_fines", start, err)
	return out, err
}

func (s *Service) memberFines(ctx context.Context, memberID string) ([]fines.Fine, error) {
	m, err := s.store.Member(ctx, memberID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, ErrNotFound
	}
	return s.store.FinesByMember(ctx, memberID)
}

// SweepOverdue marks still-open loans past their due date as overdue and
// emits an overdue notification per loan. Idempotent; safe to run on a timer.
func (s *Service) SweepOverdue(ctx context.Context) (int, error) {
	late, err := s.store.ActiveLoansPastDue(ctx, s.now())
	if err != nil {
		return 0, err
	}

	flagged := 0
	for i := range late {
		l := late[i]
		var title string
		err := s.store.WithBookAndMember(ctx, l.BookID, l.MemberID, func(ctx context.Context, tx Tx) error {
			cur, err := tx.ActiveLoan(ctx)
			if err != nil {
				return err
			}
			if cur == nil || cur.ID != l.ID || !s.now().After(cur.DueAt) {
				return nil // returned or renewed since the scan
			}
			cur.Status = loans.StatusOverdue
			cur.DaysOverdue = daysOverdueAt(s.now(), cur.DueAt)
			if err := tx.SaveLoan(ctx, cur); err != nil {
				return err
			}
			m := tx.Member()
			m.HasOverdue = true
			if err := tx.SaveMember(ctx, m); err != nil {
				return err
			}
			title = tx.Book().Title
			flagged++
			return nil
		})
		if err != nil {
			s.log.Error("overdue sweep failed for loan", "loan_id", l.ID, "err", err)
			continue
		}
		if title != "" {
			s.publish(ctx, notify.Event{
				Type:      notify.EventOverdue,
				SchoolID:  l.SchoolID,
				MemberID:  l.MemberID,
				BookID:    l.BookID,
				BookTitle: title,
				DueAt:     l.DueAt,
			})
		}
	}
	return flagged, nil
}

// RecomputePopularity refreshes every book's popularity score from its recent
// circulation and rating data.
func (s *Service) RecomputePopularity(ctx context.Context) (int, error) {
	ids, err := s.store.BookIDs(ctx)
	if err != nil {
		return 0, err
	}

	since := s.now().AddDate(0, 0, -popularityWindowDays)
	updated := 0
	for _, id := range ids {
		err := s.store.WithBook(ctx, id, func(ctx context.Context, tx Tx) error {
			b := tx.Book()
			recent, err := tx.RecentCheckouts(ctx, since)
			if err != nil {
				return err
			}
			score := PopularityScore(recent, b.AvgRating)
			if score == b.PopularityScore {
				return nil
			}
			b.PopularityScore = score
			updated++
			return tx.SaveBook(ctx, b)
		})
		if err != nil {
			s.log.Error("popularity recompute failed", "book_id", id, "err", err)
		}
	}
	return updated, nil
}

func (s *Service) publish(ctx context.Context, ev notify.Event) {
	s.sink.Publish(ctx, ev)
	s.met.Notifications.WithLabelValues(string(ev.Type)).Inc()
}

// loanDays is the member's effective loan period: member override if set,
// else book default, else the configured default.
func (s *Service) loanDays(m *members.Member, b *books.Book) int {
	if m.LoanPeriodDays > 0 {
		return m.LoanPeriodDays
	}
	if b.LoanPeriodDays > 0 {
		return b.LoanPeriodDays
	}
	return s.cfg.DefaultLoanDays
}

// renewalCap is the book's renewal limit, lowered by a member override.
func (s *Service) renewalCap(m *members.Member, b *books.Book) int {
	limit := b.MaxRenewals
	if m.MaxRenewals > 0 && m.MaxRenewals < limit {
		limit = m.MaxRenewals
	}
	return limit
}

// daysOverdueAt is the whole number of late days, rounded up; 0 when on time.
func daysOverdueAt(now, due time.Time) int {
	if !now.After(due) {
		return 0
	}
	return int(math.Ceil(now.Sub(due).Hours() / 24))
}

func loanFines(l *loans.Loan) []*fines.Fine {
	var out []*fines.Fine
	add := func(t fines.Type, amount float64) {
		if amount <= 0 {
			return
		}
		out = append(out, &fines.Fine{
			ID:       uuid.NewString(),
			SchoolID: l.SchoolID,
			MemberID: l.MemberID,
			LoanID:   l.ID,
			Type:     t,
			Amount:   amount,
			Balance:  amount,
			Status:   fines.StatusPending,
		})
	}
	add(fines.TypeLateReturn, l.LateFee)
	add(fines.TypeDamage, l.DamageFee)
	add(fines.TypeLost, l.ReplacementFee)
	return out
}
