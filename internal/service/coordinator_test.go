package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/you/matchday-booking/internal/domain"
	"github.com/you/matchday-booking/internal/events"
	"github.com/you/matchday-booking/internal/payment"
)

func TestReserveRegularHappyPath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.seedMatch(t, 2, 2, 5, time.Now().Add(24*time.Hour))
	key := f.issueKey(t, m.ID, "u1")

	out, err := f.coord.Reserve(ctx, regularRequest(m.ID, key))
	require.NoError(t, err)
	require.NotNil(t, out.Order)
	assert.Nil(t, out.Waitlist)
	assert.False(t, out.Replayed)

	b := out.Booking
	assert.Equal(t, domain.BookingPaymentPending, b.Status)
	assert.Equal(t, int64(1000), b.TotalAmount)
	assert.Equal(t, 2, b.TotalSlots)
	assert.NotEmpty(t, b.BookingReference)
	assert.Equal(t, out.Order.ID, b.PaymentOrderID)
	require.Len(t, b.Slots, 2)
	assert.Equal(t, "Asha", b.Slots[0].PlayerName)
	assert.Equal(t, "Red", b.Slots[0].TeamName)
	assert.Equal(t, "Vik", b.Slots[1].PlayerName)
	assert.Equal(t, "Blue", b.Slots[1].TeamName)

	// 100000 paise for a 1000 rupee booking
	assert.Equal(t, int64(100000), out.Order.Amount)

	snap := f.snapshot(t, m.ID)
	assert.Equal(t, 2, snap.Regular)
	assert.Equal(t, 1, snap.TeamA)
	assert.Equal(t, 1, snap.TeamB)

	assert.Contains(t, f.pub.keys(), events.RKBookingInitiated)
}

func TestReserveReplaysBoundKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.seedMatch(t, 2, 2, 5, time.Now().Add(24*time.Hour))
	key := f.issueKey(t, m.ID, "u1")

	first, err := f.coord.Reserve(ctx, regularRequest(m.ID, key))
	require.NoError(t, err)

	second, err := f.coord.Reserve(ctx, regularRequest(m.ID, key))
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Booking.ID, second.Booking.ID)

	// one booking, one decrement, one payment order
	assert.Equal(t, 1, f.gateway.orderCount())
	snap := f.snapshot(t, m.ID)
	assert.Equal(t, 2, snap.Regular)
}

func TestReserveRetriesPaymentOnReplay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.seedMatch(t, 2, 2, 5, time.Now().Add(24*time.Hour))
	key := f.issueKey(t, m.ID, "u1")

	f.gateway.failNext = true
	_, err := f.coord.Reserve(ctx, regularRequest(m.ID, key))
	require.Error(t, err)

	// the hold survives the failed payment leg
	snap := f.snapshot(t, m.ID)
	assert.Equal(t, 2, snap.Regular)

	out, err := f.coord.Reserve(ctx, regularRequest(m.ID, key))
	require.NoError(t, err)
	assert.True(t, out.Replayed)
	require.NotNil(t, out.Order)
	assert.Equal(t, domain.BookingPaymentPending, out.Booking.Status)

	// still only one decrement
	snap = f.snapshot(t, m.ID)
	assert.Equal(t, 2, snap.Regular)
}

func TestReserveKeyChecks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.seedMatch(t, 2, 2, 5, time.Now().Add(24*time.Hour))

	t.Run("unknown key", func(t *testing.T) {
		_, err := f.coord.Reserve(ctx, regularRequest(m.ID, "not-a-key"))
		assert.ErrorIs(t, err, domain.ErrIdempotencyUnknown)
	})

	t.Run("expired key", func(t *testing.T) {
		k, err := f.bookings.IssueKey(ctx, m.ID, "u1", -time.Minute)
		require.NoError(t, err)
		_, err = f.coord.Reserve(ctx, regularRequest(m.ID, k.Key))
		assert.ErrorIs(t, err, domain.ErrIdempotencyExpired)
	})

	t.Run("key issued to another user", func(t *testing.T) {
		key := f.issueKey(t, m.ID, "somebody-else")
		_, err := f.coord.Reserve(ctx, regularRequest(m.ID, key))
		var verr *domain.ValidationError
		assert.ErrorAs(t, err, &verr)
	})
}

func TestReservePoolSwitchToWaitlist(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.seedMatch(t, 0, 0, 5, time.Now().Add(24*time.Hour))
	key := f.issueKey(t, m.ID, "u1")

	_, err := f.coord.Reserve(ctx, regularRequest(m.ID, key))
	var sw *domain.PoolSwitchError
	require.ErrorAs(t, err, &sw)
	assert.Equal(t, domain.PoolRegular, sw.From)
	assert.Equal(t, domain.PoolWaitlist, sw.To)
	assert.Equal(t, int64(0), sw.Amount)

	// the client re-presents the offer and resubmits on the new pool
	req := regularRequest(m.ID, key)
	req.BookingType = domain.PoolWaitlist
	out, err := f.coord.Reserve(ctx, req)
	require.NoError(t, err)
	require.NotNil(t, out.Waitlist)
	assert.Nil(t, out.Order)
	assert.Equal(t, domain.BookingConfirmed, out.Booking.Status)
	assert.Equal(t, int64(0), out.Booking.TotalAmount)
	assert.Equal(t, domain.WaitlistWaiting, out.Waitlist.Status)

	snap := f.snapshot(t, m.ID)
	assert.Equal(t, 3, snap.Waitlist)
	assert.Equal(t, 2, snap.Waitlisted)
	assert.Contains(t, f.pub.keys(), events.RKWaitlistJoined)
}

func TestReservePoolSwitchToRegular(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.seedMatch(t, 1, 1, 0, time.Now().Add(24*time.Hour))
	key := f.issueKey(t, m.ID, "u1")

	req := regularRequest(m.ID, key)
	req.BookingType = domain.PoolWaitlist
	_, err := f.coord.Reserve(ctx, req)
	var sw *domain.PoolSwitchError
	require.ErrorAs(t, err, &sw)
	assert.Equal(t, domain.PoolWaitlist, sw.From)
	assert.Equal(t, domain.PoolRegular, sw.To)
	// switching onto the paid pool re-quotes at the offer price
	assert.Equal(t, int64(1000), sw.Amount)
}

func TestReserveCountReduced(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.seedMatch(t, 1, 0, 5, time.Now().Add(24*time.Hour))
	key := f.issueKey(t, m.ID, "u1")

	_, err := f.coord.Reserve(ctx, regularRequest(m.ID, key))
	var cr *domain.CountReducedError
	require.ErrorAs(t, err, &cr)
	assert.Equal(t, 2, cr.Requested)
	assert.Equal(t, 1, cr.Available)
}

func TestReserveBothPoolsEmpty(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.seedMatch(t, 0, 0, 0, time.Now().Add(24*time.Hour))
	key := f.issueKey(t, m.ID, "u1")

	_, err := f.coord.Reserve(ctx, regularRequest(m.ID, key))
	assert.ErrorIs(t, err, domain.ErrNoSlotsAvailable)
}

func TestReservePhoneConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.seedMatch(t, 3, 3, 5, time.Now().Add(24*time.Hour))

	_, err := f.coord.Reserve(ctx, regularRequest(m.ID, f.issueKey(t, m.ID, "u1")))
	require.NoError(t, err)

	// a different user brings the same number, in +91 form
	req := regularRequest(m.ID, f.issueKey(t, m.ID, "u2"))
	req.Requester = domain.Requester{ID: "u2", Name: "Meera", Phone: "9876543299", Email: "meera@example.com"}
	req.Participants = []domain.Participant{
		domain.NewPlayer{FirstName: "Dup", Phone: "+91 98765 43211", TeamName: "Blue"},
	}
	_, err = f.coord.Reserve(ctx, req)
	var conflict *domain.SlotConflictError
	require.ErrorAs(t, err, &conflict)
	require.Len(t, conflict.Conflicts, 1)
	assert.Equal(t, "9876543211", conflict.Conflicts[0].Phone)
	assert.Equal(t, domain.ConflictBooking, conflict.Conflicts[0].Source)

	// the conflicting attempt reserved nothing
	snap := f.snapshot(t, m.ID)
	assert.Equal(t, 4, snap.Regular)
}

func TestReserveWithPromo(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.seedMatch(t, 2, 2, 5, time.Now().Add(24*time.Hour))
	require.NoError(t, f.promos.Create(ctx, &domain.PromoCode{Code: "SAVE150", DiscountAmount: 150}))

	req := regularRequest(m.ID, f.issueKey(t, m.ID, "u1"))
	req.PromoCode = "SAVE150"
	out, err := f.coord.Reserve(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, int64(850), out.Booking.TotalAmount)
	assert.Equal(t, int64(150), out.Booking.DiscountAmount)
	assert.Equal(t, "SAVE150", out.Booking.PromoCode)
	assert.Equal(t, int64(85000), out.Order.Amount)

	// single-use per user: the redemption is recorded at commit
	used, err := f.promos.RedeemedBy(ctx, "SAVE150", "u1")
	require.NoError(t, err)
	assert.True(t, used)
}

func TestReserveRejectedPromoStopsAttempt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.seedMatch(t, 2, 2, 5, time.Now().Add(24*time.Hour))

	req := regularRequest(m.ID, f.issueKey(t, m.ID, "u1"))
	req.PromoCode = "NOPE"
	_, err := f.coord.Reserve(ctx, req)
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Msg, "INVALID")

	snap := f.snapshot(t, m.ID)
	assert.Equal(t, 4, snap.Regular, "nothing reserved on a rejected promo")
}

func TestHandlePaymentCallback(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.seedMatch(t, 2, 2, 5, time.Now().Add(24*time.Hour))

	out, err := f.coord.Reserve(ctx, regularRequest(m.ID, f.issueKey(t, m.ID, "u1")))
	require.NoError(t, err)

	cb := payment.Callback{
		PaymentID: "pay_001",
		OrderID:   out.Order.ID,
		Signature: fakeSignature(out.Order.ID, "pay_001"),
	}
	b, err := f.coord.HandlePaymentCallback(ctx, out.Booking.ID, cb)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingConfirmed, b.Status)
	assert.Contains(t, f.pub.keys(), events.RKBookingConfirmed)

	// redelivery is a no-op
	b, err = f.coord.HandlePaymentCallback(ctx, out.Booking.ID, cb)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingConfirmed, b.Status)
}

func TestHandlePaymentCallbackBadSignature(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.seedMatch(t, 2, 2, 5, time.Now().Add(24*time.Hour))

	out, err := f.coord.Reserve(ctx, regularRequest(m.ID, f.issueKey(t, m.ID, "u1")))
	require.NoError(t, err)

	cb := payment.Callback{PaymentID: "pay_001", OrderID: out.Order.ID, Signature: "forged"}
	_, err = f.coord.HandlePaymentCallback(ctx, out.Booking.ID, cb)
	require.ErrorIs(t, err, domain.ErrPaymentVerification)

	// failed, not cancelled: the money may have moved
	b, err := f.bookings.ByID(ctx, out.Booking.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingPaymentFailed, b.Status)
	assert.Contains(t, f.pub.keys(), events.RKPaymentFailed)

	snap := f.snapshot(t, m.ID)
	assert.Equal(t, 2, snap.Regular, "slots stay held pending reconciliation")
}

func TestHandlePaymentCallbackOrderMismatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.seedMatch(t, 2, 2, 5, time.Now().Add(24*time.Hour))

	out, err := f.coord.Reserve(ctx, regularRequest(m.ID, f.issueKey(t, m.ID, "u1")))
	require.NoError(t, err)

	cb := payment.Callback{
		PaymentID: "pay_001",
		OrderID:   "order_for_someone_else",
		Signature: fakeSignature("order_for_someone_else", "pay_001"),
	}
	_, err = f.coord.HandlePaymentCallback(ctx, out.Booking.ID, cb)
	assert.ErrorIs(t, err, domain.ErrPaymentVerification)
}

func TestCancelPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.seedMatch(t, 2, 2, 5, time.Now().Add(24*time.Hour))

	out, err := f.coord.Reserve(ctx, regularRequest(m.ID, f.issueKey(t, m.ID, "u1")))
	require.NoError(t, err)

	b, err := f.coord.CancelPayment(ctx, out.Booking.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingCancelled, b.Status)

	snap := f.snapshot(t, m.ID)
	assert.Equal(t, 4, snap.Regular)
	assert.Equal(t, 2, snap.TeamA)
	assert.Equal(t, 2, snap.TeamB)

	// dismissing twice is safe
	b, err = f.coord.CancelPayment(ctx, out.Booking.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingCancelled, b.Status)
	snap = f.snapshot(t, m.ID)
	assert.Equal(t, 4, snap.Regular, "no double release")
}

func TestCancelPaymentRejectsConfirmed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.seedMatch(t, 2, 2, 5, time.Now().Add(24*time.Hour))

	out, err := f.coord.Reserve(ctx, regularRequest(m.ID, f.issueKey(t, m.ID, "u1")))
	require.NoError(t, err)
	cb := payment.Callback{
		PaymentID: "pay_001",
		OrderID:   out.Order.ID,
		Signature: fakeSignature(out.Order.ID, "pay_001"),
	}
	_, err = f.coord.HandlePaymentCallback(ctx, out.Booking.ID, cb)
	require.NoError(t, err)

	_, err = f.coord.CancelPayment(ctx, out.Booking.ID)
	var verr *domain.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestReserveNeverOversellsUnderContention(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.seedMatch(t, 2, 2, 0, time.Now().Add(24*time.Hour))

	const attempts = 8
	keys := make([]string, attempts)
	for i := range keys {
		keys[i] = f.issueKey(t, m.ID, fmt.Sprintf("user-%d", i))
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var wins int
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			team := "Red"
			if i%2 == 1 {
				team = "Blue"
			}
			req := &domain.BookingRequest{
				MatchID: m.ID,
				Requester: domain.Requester{
					ID:    fmt.Sprintf("user-%d", i),
					Name:  fmt.Sprintf("Player %d", i),
					Phone: fmt.Sprintf("98765432%02d", i),
					Email: fmt.Sprintf("p%d@example.com", i),
				},
				BookingType:    domain.PoolRegular,
				TotalSlots:     1,
				RequesterPlays: true,
				RequesterTeam:  team,
				IdempotencyKey: keys[i],
			}
			if _, err := f.coord.Reserve(ctx, req); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 4, wins)
	snap := f.snapshot(t, m.ID)
	assert.Equal(t, 0, snap.Regular)
	assert.Equal(t, 0, snap.TeamA)
	assert.Equal(t, 0, snap.TeamB)
}
