package circulation

import (
	"context"
	"math"

	"github.com/google/uuid"

	"github.com/shulebox/circulation/internal/domain/books"
	"github.com/shulebox/circulation/internal/domain/members"
	"github.com/shulebox/circulation/internal/domain/reservations"
	"github.com/shulebox/circulation/internal/infra/notify"
)

// Reserve places the member at the end of the book's wait queue. Reserving an
// available book is refused; immediate checkout is the right path there.
func (s *Service) Reserve(ctx context.Context, bookID, memberID string) (*reservations.Reservation, error) {
	start := s.now()
	var out *reservations.Reservation

	err := s.store.WithBookAndMember(ctx, bookID, memberID, func(ctx context.Context, tx Tx) error {
		b, m := tx.Book(), tx.Member()
		if b.Status == books.StatusAvailable {
			return ErrBookAvailable
		}
		if b.Status == books.StatusWithdrawn {
			return ErrBookWithdrawn
		}
		if m.Status != members.StatusActive {
			return &Denial{Reason: ReasonMemberInactive}
		}
		if !m.CanReserve {
			return &Denial{Reason: ReasonReservationsBlocked}
		}
		existing, err := tx.OpenReservation(ctx)
		if err != nil {
			return err
		}
		if existing != nil {
			return ErrAlreadyReserved
		}

		active, err := tx.ActiveReservationCount(ctx)
		if err != nil {
			return err
		}
		avg, err := tx.AvgLoanDays(ctx)
		if err != nil {
			return err
		}
		if avg <= 0 {
			avg = float64(s.cfg.DefaultWaitDays)
		}

		now := s.now()
		pos := active + 1
		r := &reservations.Reservation{
			ID:                uuid.NewString(),
			SchoolID:          b.SchoolID,
			BookID:            b.ID,
			MemberID:          m.ID,
			Position:          pos,
			ReservedAt:        now,
			ExpiresAt:         now.AddDate(0, 0, s.cfg.ClaimWindowDays),
			EstimatedWaitDays: int(math.Ceil(float64(pos) * avg)),
			Status:            reservations.StatusActive,
		}
		if err := tx.InsertReservation(ctx, r); err != nil {
			return err
		}

		m.BooksReserved++
		m.TotalReservations++
		if err := tx.SaveMember(ctx, m); err != nil {
			return err
		}
		out = r
		return nil
	})

	s.met.Observe("reserve", start, err)
	if err != nil {
		return nil, err
	}
	s.log.Info("reserve", "book_id", bookID, "member_id", memberID,
		"position", out.Position, "estimated_wait_days", out.EstimatedWaitDays)
	return out, nil
}

// ProcessQueue offers the book to the first member in line: that reservation
// becomes notified with a fresh claim window, leaves the numbering, and
// everyone behind moves up one. No-op on an empty queue. Book status is not
// touched; the notified member still has to check the book out.
func (s *Service) ProcessQueue(ctx context.Context, bookID string) (*reservations.Reservation, error) {
	start := s.now()
	var out *reservations.Reservation
	var title, schoolID string

	err := s.store.WithBook(ctx, bookID, func(ctx context.Context, tx Tx) error {
		r, err := tx.NextReservation(ctx)
		if err != nil {
			return err
		}
		if r == nil {
			return nil
		}

		now := s.now()
		vacated := r.Position
		r.Status = reservations.StatusNotified
		r.NotifiedAt = &now
		r.NotifyCount++
		r.Position = 0
		r.ExpiresAt = now.AddDate(0, 0, s.cfg.ClaimWindowDays)
		if err := tx.SaveReservation(ctx, r); err != nil {
			return err
		}
		if err := tx.ShiftQueue(ctx, vacated); err != nil {
			return err
		}

		title = tx.Book().Title
		schoolID = tx.Book().SchoolID
		out = r
		return nil
	})

	s.met.Observe("process_queue", start, err)
	if err != nil {
		return nil, err
	}
	if out != nil {
		s.publish(ctx, notify.Event{
			Type:      notify.EventReservationReady,
			SchoolID:  schoolID,
			MemberID:  out.MemberID,
			BookID:    bookID,
			BookTitle: title,
			ExpiresAt: out.ExpiresAt,
		})
	}
	return out, nil
}

// CancelReservation withdraws the member's open reservation and renumbers the
// queue behind it.
func (s *Service) CancelReservation(ctx context.Context, bookID, memberID string) error {
	start := s.now()

	err := s.store.WithBookAndMember(ctx, bookID, memberID, func(ctx context.Context, tx Tx) error {
		r, err := tx.OpenReservation(ctx)
		if err != nil {
			return err
		}
		if r == nil {
			return ErrNotFound
		}

		vacated := r.Position
		r.Status = reservations.StatusCancelled
		r.Position = 0
		if err := tx.SaveReservation(ctx, r); err != nil {
			return err
		}
		if vacated > 0 {
			if err := tx.ShiftQueue(ctx, vacated); err != nil {
				return err
			}
		}

		m := tx.Member()
		if m.BooksReserved > 0 {
			m.BooksReserved--
		}
		return tx.SaveMember(ctx, m)
	})

	s.met.Observe("cancel_reservation", start, err)
	if err == nil {
		s.log.Info("reservation cancelled", "book_id", bookID, "member_id", memberID)
	}
	return err
}

// SweepExpiredReservations expires notified reservations whose claim window
// has lapsed and offers each affected book to the next member in line.
func (s *Service) SweepExpiredReservations(ctx context.Context) (int, error) {
	stale, err := s.store.ExpiredNotifiedReservations(ctx, s.now())
	if err != nil {
		return 0, err
	}

	expired := 0
	for i := range stale {
		r := stale[i]
		err := s.store.WithBookAndMember(ctx, r.BookID, r.MemberID, func(ctx context.Context, tx Tx) error {
			cur, err := tx.OpenReservation(ctx)
			if err != nil {
				return err
			}
			if cur == nil || cur.ID != r.ID || cur.Status != reservations.StatusNotified {
				return nil // claimed or cancelled since the scan
			}
			cur.Status = reservations.StatusExpired
			if err := tx.SaveReservation(ctx, cur); err != nil {
				return err
			}
			m := tx.Member()
			if m.BooksReserved > 0 {
				m.BooksReserved--
			}
			if err := tx.SaveMember(ctx, m); err != nil {
				return err
			}
			expired++
			return nil
		})
		if err != nil {
			s.log.Error("reservation expiry failed", "reservation_id", r.ID, "err", err)
			continue
		}
		if _, err := s.ProcessQueue(ctx, r.BookID); err != nil {
			s.log.Error("queue advance after expiry failed", "book_id", r.BookID, "err", err)
		}
	}
	return expired, nil
}
