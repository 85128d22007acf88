package events

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	RKBookingInitiated = "booking.initiated"
	RKBookingConfirmed = "booking.confirmed"
	RKBookingCancelled = "booking.cancelled"

	RKPaymentCaptured = "payment.captured"
	RKPaymentFailed   = "payment.failed"

	RKSlotsFreed     = "slots.freed"
	RKWaitlistJoined = "waitlist.joined"
)

type BookingInitiated struct {
	BookingID   string `json:"booking_id"`
	MatchID     string `json:"match_id"`
	UserID      string `json:"user_id"`
	BookingType string `json:"booking_type"`
	TotalSlots  int    `json:"total_slots"`
	Amount      int64  `json:"amount"`
}

type BookingSimple struct {
	BookingID string `json:"booking_id"`
	MatchID   string `json:"match_id"`
}

type PaymentCaptured struct {
	Event      string `json:"event"`
	Version    int    `json:"version"`
	OccurredAt string `json:"occurred_at"`
	Data       struct {
		PaymentID string `json:"payment_id"`
		OrderID   string `json:"order_id"`
		BookingID string `json:"booking_id"`
		Amount    int64  `json:"amount"`
		Currency  string `json:"currency"`
	} `json:"data"`
}

func NewPaymentCaptured(paymentID, orderID, bookingID string, amount int64, currency string) PaymentCaptured {
	evt := PaymentCaptured{Event: RKPaymentCaptured, Version: 1, OccurredAt: time.Now().UTC().Format(time.RFC3339)}
	evt.Data.PaymentID = paymentID
	evt.Data.OrderID = orderID
	evt.Data.BookingID = bookingID
	evt.Data.Amount = amount
	evt.Data.Currency = currency
	return evt
}

type PaymentFailed struct {
	BookingID string `json:"booking_id"`
	PaymentID string `json:"payment_id"`
	Reason    string `json:"reason"`
}

// SlotsFreed tells the (external) waitlist-promotion notifier that
// capacity opened up on a match.
type SlotsFreed struct {
	MatchID    string `json:"match_id"`
	Pool       string `json:"pool"`
	FreedSlots int    `json:"freed_slots"`
}

type WaitlistJoined struct {
	EntryID       string `json:"entry_id"`
	MatchID       string `json:"match_id"`
	Email         string `json:"email"`
	SlotsRequired int    `json:"slots_required"`
}

func MustUnmarshal[T any](body []byte) (T, error) {
	var v T
	if err := json.Unmarshal(body, &v); err != nil {
		return v, fmt.Errorf("unmarshal %T: %w", v, err)
	}
	return v, nil
}
