package circulation_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shulebox/circulation/internal/circulation"
	"github.com/shulebox/circulation/internal/domain/books"
	"github.com/shulebox/circulation/internal/domain/loans"
	"github.com/shulebox/circulation/internal/domain/members"
	"github.com/shulebox/circulation/internal/domain/reservations"
	"github.com/shulebox/circulation/internal/infra/notify"
)

// checkedOutBook seeds a book that m0 currently has on loan, so the queue has
// something to wait for.
func checkedOutBook(t *testing.T, f *fixture, bookID string) {
	t.Helper()
	f.addBook(bookID)
	f.addMember("m0")
	_, err := f.svc.Checkout(context.Background(), bookID, "m0", "staff1", false)
	require.NoError(t, err)
}

func Test_Reserve_QueuePositions(t *testing.T) {
	f := newFixture()
	checkedOutBook(t, f, "b1")
	ctx := context.Background()

	for i, id := range []string{"m1", "m2", "m3"} {
		f.addMember(id)
		r, err := f.svc.Reserve(ctx, "b1", id)
		require.NoError(t, err)
		assert.Equal(t, i+1, r.Position)
		assert.Equal(t, reservations.StatusActive, r.Status)
		assert.Equal(t, baseTime.AddDate(0, 0, 7), r.ExpiresAt)
	}

	m := f.member("m2")
	assert.Equal(t, 1, m.BooksReserved)
	assert.Equal(t, 1, m.TotalReservations)
}

func Test_Reserve_EstimatedWaitScalesWithPosition(t *testing.T) {
	f := newFixture()
	checkedOutBook(t, f, "b1")
	ctx := context.Background()

	// No loan history yet: estimates fall back to the configured wait.
	f.addMember("m1")
	r1, err := f.svc.Reserve(ctx, "b1", "m1")
	require.NoError(t, err)
	assert.Equal(t, 14, r1.EstimatedWaitDays)

	f.addMember("m2")
	r2, err := f.svc.Reserve(ctx, "b1", "m2")
	require.NoError(t, err)
	assert.Equal(t, 28, r2.EstimatedWaitDays)
}

func Test_Reserve_Refusals(t *testing.T) {
	f := newFixture()
	f.addBook("b1")
	f.addMember("m1")
	ctx := context.Background()

	_, err := f.svc.Reserve(ctx, "b1", "m1")
	assert.ErrorIs(t, err, circulation.ErrBookAvailable)

	f.addMember("m0")
	_, err = f.svc.Checkout(ctx, "b1", "m0", "staff1", false)
	require.NoError(t, err)

	_, err = f.svc.Reserve(ctx, "b1", "m1")
	require.NoError(t, err)
	_, err = f.svc.Reserve(ctx, "b1", "m1")
	assert.ErrorIs(t, err, circulation.ErrAlreadyReserved)

	f.addMember("m2", func(m *members.Member) { m.Status = members.StatusSuspended })
	_, err = f.svc.Reserve(ctx, "b1", "m2")
	assert.Equal(t, circulation.ReasonMemberInactive, circulation.DenialReason(err))

	f.addMember("m3", func(m *members.Member) { m.CanReserve = false })
	_, err = f.svc.Reserve(ctx, "b1", "m3")
	assert.Equal(t, circulation.ReasonReservationsBlocked, circulation.DenialReason(err))
}

func Test_Reserve_WithdrawnBook(t *testing.T) {
	f := newFixture()
	f.addBook("b1")
	f.addMember("m1")
	ctx := context.Background()

	require.NoError(t, f.svc.OverrideStatus(ctx, "b1", books.StatusWithdrawn, "staff1"))
	_, err := f.svc.Reserve(ctx, "b1", "m1")
	assert.ErrorIs(t, err, circulation.ErrBookWithdrawn)
}

func Test_ProcessQueue_NotifiesHeadAndRenumbers(t *testing.T) {
	f := newFixture()
	checkedOutBook(t, f, "b1")
	ctx := context.Background()

	for _, id := range []string{"m1", "m2", "m3"} {
		f.addMember(id)
		_, err := f.svc.Reserve(ctx, "b1", id)
		require.NoError(t, err)
	}

	r, err := f.svc.ProcessQueue(ctx, "b1")
	require.NoError(t, err)
	require.NotNil(t, r)

	assert.Equal(t, "m1", r.MemberID)
	assert.Equal(t, reservations.StatusNotified, r.Status)
	assert.Zero(t, r.Position)
	assert.Equal(t, 1, r.NotifyCount)
	require.NotNil(t, r.NotifiedAt)
	assert.Equal(t, baseTime.AddDate(0, 0, 7), r.ExpiresAt)

	// The two still waiting close the gap.
	positions := map[string]int{}
	for _, res := range f.store.Reservations("b1") {
		if res.Status == reservations.StatusActive {
			positions[res.MemberID] = res.Position
		}
	}
	assert.Equal(t, map[string]int{"m2": 1, "m3": 2}, positions)

	evs := f.sink.byType(notify.EventReservationReady)
	require.Len(t, evs, 1)
	assert.Equal(t, "m1", evs[0].MemberID)
	assert.Equal(t, "Title b1", evs[0].BookTitle)
}

func Test_ProcessQueue_EmptyQueueIsNoop(t *testing.T) {
	f := newFixture()
	f.addBook("b1")

	r, err := f.svc.ProcessQueue(context.Background(), "b1")
	require.NoError(t, err)
	assert.Nil(t, r)
	assert.Empty(t, f.sink.byType(notify.EventReservationReady))
}

func Test_Return_AdvancesQueue(t *testing.T) {
	f := newFixture()
	checkedOutBook(t, f, "b1")
	ctx := context.Background()

	f.addMember("m1")
	_, err := f.svc.Reserve(ctx, "b1", "m1")
	require.NoError(t, err)

	_, err = f.svc.Return(ctx, "b1", "m0", "staff1", loans.ConditionGood, "")
	require.NoError(t, err)

	evs := f.sink.byType(notify.EventReservationReady)
	require.Len(t, evs, 1)
	assert.Equal(t, "m1", evs[0].MemberID)

	res := f.store.Reservations("b1")
	require.Len(t, res, 1)
	assert.Equal(t, reservations.StatusNotified, res[0].Status)
}

func Test_Return_DamagedDoesNotAdvanceQueue(t *testing.T) {
	f := newFixture()
	checkedOutBook(t, f, "b1")
	ctx := context.Background()

	f.addMember("m1")
	_, err := f.svc.Reserve(ctx, "b1", "m1")
	require.NoError(t, err)

	_, err = f.svc.Return(ctx, "b1", "m0", "staff1", loans.ConditionDamaged, "torn cover")
	require.NoError(t, err)

	assert.Empty(t, f.sink.byType(notify.EventReservationReady))
	res := f.store.Reservations("b1")
	require.Len(t, res, 1)
	assert.Equal(t, reservations.StatusActive, res[0].Status)
}

func Test_Checkout_FulfillsOwnReservation(t *testing.T) {
	f := newFixture()
	checkedOutBook(t, f, "b1")
	ctx := context.Background()

	f.addMember("m1")
	f.addMember("m2")
	_, err := f.svc.Reserve(ctx, "b1", "m1")
	require.NoError(t, err)
	_, err = f.svc.Reserve(ctx, "b1", "m2")
	require.NoError(t, err)

	_, err = f.svc.Return(ctx, "b1", "m0", "staff1", loans.ConditionGood, "")
	require.NoError(t, err)

	// m1 was notified; claiming the book fulfills the reservation.
	_, err = f.svc.Checkout(ctx, "b1", "m1", "staff1", false)
	require.NoError(t, err)

	var m1Status reservations.Status
	var m2Pos int
	for _, res := range f.store.Reservations("b1") {
		switch res.MemberID {
		case "m1":
			m1Status = res.Status
		case "m2":
			m2Pos = res.Position
		}
	}
	assert.Equal(t, reservations.StatusFulfilled, m1Status)
	assert.Equal(t, 1, m2Pos)
	assert.Zero(t, f.member("m1").BooksReserved)
}

func Test_CancelReservation_RenumbersBehind(t *testing.T) {
	f := newFixture()
	checkedOutBook(t, f, "b1")
	ctx := context.Background()

	for _, id := range []string{"m1", "m2", "m3"} {
		f.addMember(id)
		_, err := f.svc.Reserve(ctx, "b1", id)
		require.NoError(t, err)
	}

	require.NoError(t, f.svc.CancelReservation(ctx, "b1", "m1"))

	positions := map[string]int{}
	for _, res := range f.store.Reservations("b1") {
		if res.Status == reservations.StatusActive {
			positions[res.MemberID] = res.Position
		}
	}
	assert.Equal(t, map[string]int{"m2": 1, "m3": 2}, positions)
	assert.Zero(t, f.member("m1").BooksReserved)

	err := f.svc.CancelReservation(ctx, "b1", "m1")
	assert.ErrorIs(t, err, circulation.ErrNotFound)
}

func Test_SweepExpiredReservations_ReoffersBook(t *testing.T) {
	f := newFixture()
	checkedOutBook(t, f, "b1")
	ctx := context.Background()

	f.addMember("m1")
	f.addMember("m2")
	_, err := f.svc.Reserve(ctx, "b1", "m1")
	require.NoError(t, err)
	_, err = f.svc.Reserve(ctx, "b1", "m2")
	require.NoError(t, err)

	_, err = f.svc.ProcessQueue(ctx, "b1")
	require.NoError(t, err)

	// m1 never claims. Past the window the offer moves on to m2.
	f.clock.Advance(8 * 24 * time.Hour)
	n, err := f.svc.SweepExpiredReservations(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	statuses := map[string]reservations.Status{}
	for _, res := range f.store.Reservations("b1") {
		statuses[res.MemberID] = res.Status
	}
	assert.Equal(t, reservations.StatusExpired, statuses["m1"])
	assert.Equal(t, reservations.StatusNotified, statuses["m2"])
	assert.Zero(t, f.member("m1").BooksReserved)

	evs := f.sink.byType(notify.EventReservationReady)
	require.Len(t, evs, 2)
	assert.Equal(t, "m2", evs[1].MemberID)

	// Nothing left to expire on a second pass.
	n, err = f.svc.SweepExpiredReservations(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
