package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/you/matchday-booking/internal/domain"
	"github.com/you/matchday-booking/internal/events"
	"github.com/you/matchday-booking/internal/payment"
	"github.com/you/matchday-booking/internal/repository"
)

// EventPublisher is satisfied by *mq.Publisher.
type EventPublisher interface {
	PublishJSON(ctx context.Context, key string, v any) error
}

// Coordinator drives one booking attempt end to end:
// validate -> price -> availability -> conflicts -> reserve -> persist -> pay.
// The optimistic availability checks only shrink the race window; the
// one atomic reserve call is what actually guarantees capacity, and it
// may still lose - that surfaces as ErrSlotsUnavailable, retryable by
// the caller.
type Coordinator struct {
	matches   *repository.MatchRepo
	bookings  *repository.BookingRepo
	waitlists *repository.WaitlistRepo
	validator *Validator
	pricing   *Pricing
	gateway   payment.Gateway
	pub       EventPublisher
	currency  string
	opTimeout time.Duration
}

func NewCoordinator(
	matches *repository.MatchRepo,
	bookings *repository.BookingRepo,
	waitlists *repository.WaitlistRepo,
	validator *Validator,
	pricing *Pricing,
	gateway payment.Gateway,
	pub EventPublisher,
	currency string,
) *Coordinator {
	return &Coordinator{
		matches:   matches,
		bookings:  bookings,
		waitlists: waitlists,
		validator: validator,
		pricing:   pricing,
		gateway:   gateway,
		pub:       pub,
		currency:  currency,
		opTimeout: 5 * time.Second,
	}
}

type ReserveOutcome struct {
	Booking  *domain.Booking
	Order    *payment.Order        // nil for waitlist bookings
	Waitlist *domain.WaitlistEntry // nil for regular bookings
	Replayed bool                  // idempotency key was already bound
}

func (c *Coordinator) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.opTimeout)
}

// Reserve runs the booking attempt for a validated-at-transport request.
func (c *Coordinator) Reserve(ctx context.Context, req *domain.BookingRequest) (*ReserveOutcome, error) {
	key, err := c.bookings.KeyByID(ctx, req.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	if key.Expired(time.Now().UTC()) {
		return nil, domain.ErrIdempotencyExpired
	}
	if key.MatchID != req.MatchID || key.UserID != req.Requester.ID {
		return nil, domain.Validationf("reservation token was issued for a different attempt")
	}
	if key.BookingID != "" {
		return c.replay(ctx, key.BookingID)
	}

	intents, err := c.validator.Validate(req)
	if err != nil {
		return nil, err
	}

	sctx, cancel := c.withTimeout(ctx)
	snap, err := c.matches.Snapshot(sctx, req.MatchID)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("availability: %w", err)
	}

	amount, err := c.price(ctx, req)
	if err != nil {
		return nil, err
	}

	// First pass of the decision table (view -> checkout drift).
	if err := c.checkPool(ctx, req, snap, amount.final); err != nil {
		return nil, err
	}

	phones := make([]string, 0, len(intents))
	for _, it := range intents {
		if it.Phone != "" {
			phones = append(phones, it.Phone)
		}
	}
	conflicts, err := c.VerifySlots(ctx, req.MatchID, phones)
	if err != nil {
		return nil, err
	}
	if len(conflicts) > 0 {
		return nil, &domain.SlotConflictError{Conflicts: conflicts}
	}

	// Second pass immediately before commit; the gap above is itself a
	// race window.
	sctx, cancel = c.withTimeout(ctx)
	snap, err = c.matches.Snapshot(sctx, req.MatchID)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("availability: %w", err)
	}
	if err := c.checkPool(ctx, req, snap, amount.final); err != nil {
		return nil, err
	}

	// The authoritative step. A loss here, after both optimistic checks
	// passed, is expected under contention.
	teamA, teamB, err := c.reserve(ctx, req, intents)
	if err != nil {
		return nil, err
	}

	b := &domain.Booking{
		MatchID:        req.MatchID,
		UserID:         req.Requester.ID,
		Email:          req.Requester.Email,
		BookingType:    req.BookingType,
		Status:         domain.BookingInitiated,
		TotalSlots:     len(intents),
		TotalAmount:    amount.final,
		PromoCode:      amount.promoCode,
		DiscountAmount: amount.discount,
	}
	for _, it := range intents {
		b.Slots = append(b.Slots, domain.Slot{
			SlotNumber: it.SlotNumber,
			PlayerName: it.PlayerName,
			UserID:     it.UserID,
			Phone:      it.Phone,
			TeamName:   it.TeamName,
			Status:     domain.SlotActive,
		})
	}
	created, existing, err := c.bookings.CreateWithKey(ctx, b, req.IdempotencyKey)
	if err != nil {
		c.compensate(ctx, req, teamA, teamB, len(intents))
		return nil, err
	}
	if !created {
		// A concurrent retry with the same key won the bind; give our
		// reservation back and replay the winner.
		c.compensate(ctx, req, teamA, teamB, len(intents))
		return &ReserveOutcome{Booking: existing, Replayed: true}, nil
	}

	if amount.promoCode != "" {
		if err := c.pricing.promos.RecordRedemption(ctx, amount.promoCode, req.Requester.ID, b.ID); err != nil {
			log.Printf("[coordinator] record promo redemption: %v", err)
		}
	}

	_ = c.pub.PublishJSON(ctx, events.RKBookingInitiated, events.BookingInitiated{
		BookingID:   b.ID,
		MatchID:     b.MatchID,
		UserID:      b.UserID,
		BookingType: string(b.BookingType),
		TotalSlots:  b.TotalSlots,
		Amount:      b.TotalAmount,
	})

	if req.BookingType == domain.PoolWaitlist {
		return c.finishWaitlist(ctx, req, b, len(intents))
	}
	return c.startPayment(ctx, b, req.Requester)
}

// replay returns the booking already bound to the key. A regular booking
// still sitting in INITIATED (payment order creation failed last time)
// gets another shot at the payment leg.
func (c *Coordinator) replay(ctx context.Context, bookingID string) (*ReserveOutcome, error) {
	b, err := c.bookings.ByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.BookingType == domain.PoolRegular && b.Status == domain.BookingInitiated {
		out, err := c.startPayment(ctx, b, domain.Requester{Name: "", Email: b.Email})
		if err != nil {
			return nil, err
		}
		out.Replayed = true
		return out, nil
	}
	return &ReserveOutcome{Booking: b, Replayed: true}, nil
}

type pricedAmount struct {
	original  int64
	discount  int64
	final     int64
	promoCode string
}

func (c *Coordinator) price(ctx context.Context, req *domain.BookingRequest) (pricedAmount, error) {
	qctx, cancel := c.withTimeout(ctx)
	defer cancel()
	original, err := c.pricing.Quote(qctx, req.MatchID, req.BookingType, req.TotalSlots)
	if err != nil {
		return pricedAmount{}, err
	}
	out := pricedAmount{original: original, final: original}
	if req.PromoCode == "" || req.BookingType == domain.PoolWaitlist {
		return out, nil
	}
	res, err := c.pricing.ApplyPromo(qctx, req.PromoCode, original, req.MatchID, req.Requester.ID)
	if err != nil {
		return pricedAmount{}, err
	}
	if !res.Valid {
		return pricedAmount{}, domain.Validationf("promo code rejected: %s (%s)", res.Reason, res.Message)
	}
	out.discount = res.DiscountAmount
	out.final = res.FinalAmount
	out.promoCode = req.PromoCode
	return out, nil
}

// checkPool applies the availability decision table to an advisory
// snapshot: switch pools, fail outright, demand a count re-confirm, or
// proceed. Switching and clamping are renegotiations surfaced to the
// caller, never silent substitutions.
func (c *Coordinator) checkPool(ctx context.Context, req *domain.BookingRequest, snap domain.SlotSnapshot, amount int64) error {
	avail := snap.For(req.BookingType)
	switch {
	case avail == 0:
		other := domain.PoolWaitlist
		if req.BookingType == domain.PoolWaitlist {
			other = domain.PoolRegular
		}
		if snap.For(other) > 0 {
			switched := int64(0)
			if other == domain.PoolRegular {
				q, err := c.pricing.Quote(ctx, req.MatchID, other, req.TotalSlots)
				if err != nil {
					return err
				}
				switched = q
			}
			return &domain.PoolSwitchError{From: req.BookingType, To: other, Amount: switched}
		}
		return domain.ErrNoSlotsAvailable
	case avail < req.TotalSlots:
		return &domain.CountReducedError{Requested: req.TotalSlots, Available: avail}
	}
	return nil
}

func (c *Coordinator) teamSplit(ctx context.Context, req *domain.BookingRequest, intents []SlotIntent) (teamA, teamB int, err error) {
	m, err := c.matches.ByID(ctx, req.MatchID)
	if err != nil {
		return 0, 0, err
	}
	for _, it := range intents {
		switch it.TeamName {
		case m.TeamAName:
			teamA++
		case m.TeamBName:
			teamB++
		default:
			return 0, 0, domain.Validationf("slot %d: unknown team %q", it.SlotNumber, it.TeamName)
		}
	}
	return teamA, teamB, nil
}

func (c *Coordinator) reserve(ctx context.Context, req *domain.BookingRequest, intents []SlotIntent) (teamA, teamB int, err error) {
	if req.BookingType == domain.PoolWaitlist {
		return 0, 0, c.matches.ReserveWaitlist(ctx, req.MatchID, len(intents))
	}
	teamA, teamB, err = c.teamSplit(ctx, req, intents)
	if err != nil {
		return 0, 0, err
	}
	return teamA, teamB, c.matches.ReserveRegular(ctx, req.MatchID, teamA, teamB)
}

func (c *Coordinator) compensate(ctx context.Context, req *domain.BookingRequest, teamA, teamB, count int) {
	var err error
	if req.BookingType == domain.PoolWaitlist {
		err = c.matches.ReleaseWaitlist(ctx, req.MatchID, count)
	} else {
		err = c.matches.ReleaseRegular(ctx, req.MatchID, teamA, teamB)
	}
	if err != nil {
		log.Printf("[coordinator] compensating release failed match=%s: %v", req.MatchID, err)
	}
}

// finishWaitlist completes a free waitlist booking: entry goes WAITING,
// booking is settled immediately since there is no payment leg.
func (c *Coordinator) finishWaitlist(ctx context.Context, req *domain.BookingRequest, b *domain.Booking, slots int) (*ReserveOutcome, error) {
	entry := &domain.WaitlistEntry{
		MatchID:       req.MatchID,
		UserID:        req.Requester.ID,
		Email:         req.Requester.Email,
		Phone:         NormalizePhone(req.Requester.Phone),
		SlotsRequired: slots,
		Status:        domain.WaitlistWaiting,
	}
	if err := c.waitlists.Create(ctx, entry); err != nil {
		return nil, fmt.Errorf("join waitlist: %w", err)
	}
	b, err := c.bookings.UpdateStatus(ctx, b.ID, domain.BookingConfirmed)
	if err != nil {
		return nil, err
	}
	_ = c.pub.PublishJSON(ctx, events.RKWaitlistJoined, events.WaitlistJoined{
		EntryID:       entry.ID,
		MatchID:       entry.MatchID,
		Email:         entry.Email,
		SlotsRequired: entry.SlotsRequired,
	})
	return &ReserveOutcome{Booking: b, Waitlist: entry}, nil
}

func (c *Coordinator) startPayment(ctx context.Context, b *domain.Booking, who domain.Requester) (*ReserveOutcome, error) {
	pctx, cancel := c.withTimeout(ctx)
	defer cancel()
	order, err := c.gateway.CreateOrder(pctx, payment.CreateOrderInput{
		BookingID:   b.ID,
		MatchID:     b.MatchID,
		BookingType: b.BookingType,
		Amount:      b.TotalAmount,
		Currency:    c.currency,
		Receipt:     b.BookingReference,
		Name:        who.Name,
		Email:       b.Email,
	})
	if err != nil {
		// Booking stays INITIATED with its slots held under the server
		// TTL; the caller retries with the same reservation token.
		return nil, fmt.Errorf("initiate payment for %s: %w", b.ID, err)
	}
	if err := c.bookings.SetPaymentOrder(ctx, b.ID, order.ID); err != nil {
		return nil, err
	}
	b, err = c.bookings.ByID(ctx, b.ID)
	if err != nil {
		return nil, err
	}
	return &ReserveOutcome{Booking: b, Order: order}, nil
}

// VerifySlots checks the given normalized phones against everything
// currently holding capacity on the match.
func (c *Coordinator) VerifySlots(ctx context.Context, matchID string, phones []string) ([]domain.SlotConflict, error) {
	vctx, cancel := c.withTimeout(ctx)
	defer cancel()
	hits, err := c.bookings.ActivePhones(vctx, matchID)
	if err != nil {
		return nil, fmt.Errorf("verify slots: %w", err)
	}
	taken := make(map[string]domain.ConflictSource, len(hits))
	for _, h := range hits {
		if _, ok := taken[h.Phone]; !ok {
			taken[h.Phone] = h.Source
		}
	}
	var out []domain.SlotConflict
	for _, p := range phones {
		if src, ok := taken[p]; ok {
			reason := "already booked on this match"
			if src == domain.ConflictWaitlist {
				reason = "already on the waitlist for this match"
			}
			out = append(out, domain.SlotConflict{Phone: p, Source: src, Reason: reason})
		}
	}
	return out, nil
}

// HandlePaymentCallback is the success continuation of the checkout
// handoff. It is idempotent: duplicate invocations collapse on the
// EventConsumed guard.
func (c *Coordinator) HandlePaymentCallback(ctx context.Context, bookingID string, cb payment.Callback) (*domain.Booking, error) {
	b, err := c.bookings.ByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.PaymentOrderID == "" || b.PaymentOrderID != cb.OrderID {
		err = fmt.Errorf("%w: order mismatch for booking %s", domain.ErrPaymentVerification, bookingID)
	} else {
		err = c.gateway.VerifyPaymentSignature(cb)
	}
	if err != nil {
		// Never silently cancel on an unverifiable callback: the money
		// may have moved. PAYMENT_FAILED is reconciled asynchronously.
		if b.Status != domain.BookingConfirmed {
			if _, uerr := c.bookings.UpdateStatus(ctx, bookingID, domain.BookingPaymentFailed); uerr != nil {
				log.Printf("[coordinator] mark payment failed %s: %v", bookingID, uerr)
			}
		}
		_ = c.pub.PublishJSON(ctx, events.RKPaymentFailed, events.PaymentFailed{
			BookingID: bookingID,
			PaymentID: cb.PaymentID,
			Reason:    err.Error(),
		})
		return nil, err
	}

	b, err = c.bookings.ConfirmIfNotProcessed(ctx, bookingID, cb.PaymentID, events.RKPaymentCaptured)
	if err != nil {
		return nil, err
	}
	_ = c.pub.PublishJSON(ctx, events.RKBookingConfirmed, events.BookingSimple{BookingID: b.ID, MatchID: b.MatchID})
	return b, nil
}

// CancelPayment is the dismissal continuation: the user aborted the
// checkout UI. The hold is released and the booking cancelled. Safe to
// call twice.
func (c *Coordinator) CancelPayment(ctx context.Context, bookingID string) (*domain.Booking, error) {
	b, err := c.bookings.ByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	switch b.Status {
	case domain.BookingCancelled:
		return b, nil
	case domain.BookingConfirmed:
		return nil, domain.Validationf("booking %s is already confirmed", bookingID)
	}
	return c.releaseBooking(ctx, b)
}

// ReleaseExpiredHold is the server-side TTL path for abandoned sessions;
// same compensation as an explicit dismissal.
func (c *Coordinator) ReleaseExpiredHold(ctx context.Context, b *domain.Booking) (*domain.Booking, error) {
	return c.releaseBooking(ctx, b)
}

func (c *Coordinator) releaseBooking(ctx context.Context, b *domain.Booking) (*domain.Booking, error) {
	active := b.ActiveSlots()
	if len(active) == 0 {
		return c.bookings.UpdateStatus(ctx, b.ID, domain.BookingCancelled)
	}
	nums := make([]int, 0, len(active))
	for _, s := range active {
		nums = append(nums, s.SlotNumber)
	}
	updated, freed, err := c.bookings.CancelSlots(ctx, b.ID, nums)
	if err != nil {
		return nil, err
	}
	if err := releaseFreed(ctx, c.matches, updated, freed); err != nil {
		log.Printf("[coordinator] release after cancel %s: %v", b.ID, err)
	}
	_ = c.pub.PublishJSON(ctx, events.RKBookingCancelled, events.BookingSimple{BookingID: updated.ID, MatchID: updated.MatchID})
	_ = c.pub.PublishJSON(ctx, events.RKSlotsFreed, events.SlotsFreed{
		MatchID:    updated.MatchID,
		Pool:       string(updated.BookingType),
		FreedSlots: len(freed),
	})
	return updated, nil
}

// releaseFreed gives freed slots back to the pool the booking originally
// consumed, team-aware for regular bookings.
func releaseFreed(ctx context.Context, matches *repository.MatchRepo, b *domain.Booking, freed []domain.Slot) error {
	if len(freed) == 0 {
		return nil
	}
	if b.BookingType == domain.PoolWaitlist {
		return matches.ReleaseWaitlist(ctx, b.MatchID, len(freed))
	}
	m, err := matches.ByID(ctx, b.MatchID)
	if err != nil {
		return err
	}
	var teamA, teamB int
	for _, s := range freed {
		if s.TeamName == m.TeamBName {
			teamB++
		} else {
			teamA++
		}
	}
	return matches.ReleaseRegular(ctx, b.MatchID, teamA, teamB)
}
