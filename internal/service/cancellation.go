package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/you/matchday-booking/internal/domain"
	"github.com/you/matchday-booking/internal/events"
	"github.com/you/matchday-booking/internal/repository"
)

// Cancellation handles full and partial slot cancellation and the
// time-windowed refund policy. It shares the same counter primitive as
// the coordinator; no extra locking is needed beyond that.
type Cancellation struct {
	matches  *repository.MatchRepo
	bookings *repository.BookingRepo
	waitlist *repository.WaitlistRepo
	pub      EventPublisher
}

func NewCancellation(
	matches *repository.MatchRepo,
	bookings *repository.BookingRepo,
	waitlist *repository.WaitlistRepo,
	pub EventPublisher,
) *Cancellation {
	return &Cancellation{matches: matches, bookings: bookings, waitlist: waitlist, pub: pub}
}

// refundWindow picks the tier from hours remaining until kickoff. A
// match already in progress counts as NO_REFUND.
func refundWindow(hoursUntilMatch float64) domain.RefundWindow {
	switch {
	case hoursUntilMatch >= 6:
		return domain.FullRefund
	case hoursUntilMatch >= 3:
		return domain.PartialRefund
	default:
		return domain.NoRefund
	}
}

func computeRefund(b *domain.Booking, start time.Time, slotsToCancel int, now time.Time) domain.RefundBreakdown {
	hours := start.Sub(now).Hours()
	window := refundWindow(hours)
	perSlot := int64(0)
	if b.TotalSlots > 0 {
		perSlot = b.TotalAmount / int64(b.TotalSlots)
	}
	refund := perSlot * int64(slotsToCancel)
	switch window {
	case domain.PartialRefund:
		refund /= 2
	case domain.NoRefund:
		refund = 0
	}
	return domain.RefundBreakdown{
		Window:          window,
		HoursUntilMatch: hours,
		SlotsToCancel:   slotsToCancel,
		RefundAmount:    refund,
	}
}

// RefundBreakdown is a pure function of now and the match start; any
// value shown to the user ahead of time is advisory only. With no slot
// numbers given it prices cancelling every active slot.
func (e *Cancellation) RefundBreakdown(ctx context.Context, bookingID string, slotNumbers []int, now time.Time) (*domain.RefundBreakdown, error) {
	b, err := e.bookings.ByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	m, err := e.matches.ByID(ctx, b.MatchID)
	if err != nil {
		return nil, err
	}
	count := len(slotNumbers)
	if count == 0 {
		count = len(b.ActiveSlots())
	}
	if b.BookingType == domain.PoolWaitlist {
		// waitlist is always free
		return &domain.RefundBreakdown{
			Window:          domain.NoRefund,
			HoursUntilMatch: m.StartTime.Sub(now).Hours(),
			SlotsToCancel:   count,
		}, nil
	}
	out := computeRefund(b, m.StartTime, count, now)
	return &out, nil
}

// CancelSlots marks the named active slots cancelled, settles the
// booking status, releases the freed capacity on the originally consumed
// pool and recomputes the refund authoritatively at this moment.
func (e *Cancellation) CancelSlots(ctx context.Context, bookingID string, slotNumbers []int, reason string) (*domain.Booking, *domain.RefundBreakdown, error) {
	prior, err := e.bookings.ByID(ctx, bookingID)
	if err != nil {
		return nil, nil, err
	}
	if !prior.Live() {
		return nil, nil, domain.Validationf("booking %s is %s", bookingID, prior.Status)
	}
	if len(slotNumbers) == 0 {
		for _, s := range prior.ActiveSlots() {
			slotNumbers = append(slotNumbers, s.SlotNumber)
		}
	}

	breakdown, err := e.RefundBreakdown(ctx, bookingID, slotNumbers, time.Now().UTC())
	if err != nil {
		return nil, nil, err
	}

	b, freed, err := e.bookings.CancelSlots(ctx, bookingID, slotNumbers)
	if err != nil {
		return nil, nil, err
	}
	if err := releaseFreed(ctx, e.matches, b, freed); err != nil {
		log.Printf("[cancellation] release freed slots %s: %v", bookingID, err)
	}

	log.Printf("[cancellation] booking=%s slots=%d reason=%q refund=%d (%s)",
		bookingID, len(freed), reason, breakdown.RefundAmount, breakdown.Window)

	_ = e.pub.PublishJSON(ctx, events.RKBookingCancelled, events.BookingSimple{BookingID: b.ID, MatchID: b.MatchID})
	_ = e.pub.PublishJSON(ctx, events.RKSlotsFreed, events.SlotsFreed{
		MatchID:    b.MatchID,
		Pool:       string(b.BookingType),
		FreedSlots: len(freed),
	})
	return b, breakdown, nil
}

// CancelWaitlist removes the entry and frees its reserved waitlist
// count. It carries no refund.
func (e *Cancellation) CancelWaitlist(ctx context.Context, matchID, email string) error {
	entry, err := e.waitlist.ActiveByMatchEmail(ctx, matchID, email)
	if err != nil {
		return err
	}
	if err := e.waitlist.Delete(ctx, entry.ID); err != nil {
		return fmt.Errorf("cancel waitlist: %w", err)
	}
	// Settle the booking record behind the entry when there is one;
	// releasing through it keeps the counters symmetric with reserve.
	b, err := e.bookings.LiveWaitlistBooking(ctx, matchID, email)
	if err != nil {
		return err
	}
	if b != nil && len(b.ActiveSlots()) > 0 {
		var nums []int
		for _, s := range b.ActiveSlots() {
			nums = append(nums, s.SlotNumber)
		}
		updated, freed, err := e.bookings.CancelSlots(ctx, b.ID, nums)
		if err != nil {
			return err
		}
		if err := releaseFreed(ctx, e.matches, updated, freed); err != nil {
			log.Printf("[cancellation] release waitlist %s: %v", matchID, err)
		}
	} else if err := e.matches.ReleaseWaitlist(ctx, matchID, entry.SlotsRequired); err != nil {
		log.Printf("[cancellation] release waitlist %s: %v", matchID, err)
	}
	_ = e.pub.PublishJSON(ctx, events.RKSlotsFreed, events.SlotsFreed{
		MatchID:    matchID,
		Pool:       string(domain.PoolWaitlist),
		FreedSlots: entry.SlotsRequired,
	})
	return nil
}
