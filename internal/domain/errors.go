package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrSlotsUnavailable is the reserve primitive losing the race. It is
	// retryable from the availability check, never retried internally.
	ErrSlotsUnavailable = errors.New("slots_unavailable")
	// ErrNoSlotsAvailable means both pools are exhausted. Hard stop.
	ErrNoSlotsAvailable = errors.New("no_slots_available")

	ErrIdempotencyExpired = errors.New("idempotency_key_expired")
	ErrIdempotencyUnknown = errors.New("idempotency_key_unknown")

	ErrPaymentVerification = errors.New("payment_verification_failed")
	ErrWaitlistNotFound    = errors.New("waitlist_entry_not_found")
)

type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return "validation: " + e.Msg }

func Validationf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

type ConflictSource string

const (
	ConflictBooking  ConflictSource = "CONFIRMED_BOOKING"
	ConflictWaitlist ConflictSource = "WAITLIST"
)

type SlotConflict struct {
	Phone  string         `json:"phone"`
	Source ConflictSource `json:"source"`
	Reason string         `json:"reason"`
}

// SlotConflictError reports every offending phone; it is never
// auto-resolved.
type SlotConflictError struct {
	Conflicts []SlotConflict
}

func (e *SlotConflictError) Error() string {
	phones := make([]string, 0, len(e.Conflicts))
	for _, c := range e.Conflicts {
		phones = append(phones, c.Phone)
	}
	return "slot conflict: " + strings.Join(phones, ", ")
}

// PoolSwitchError is the renegotiation outcome of the availability
// decision table: the requested pool is empty but the alternate pool has
// room. The caller must re-present the new commitment (pool and amount)
// before any reservation happens.
type PoolSwitchError struct {
	From   Pool  `json:"from"`
	To     Pool  `json:"to"`
	Amount int64 `json:"amount"`
}

func (e *PoolSwitchError) Error() string {
	return fmt.Sprintf("pool %s exhausted, %s available", e.From, e.To)
}

// CountReducedError means the pool shrank below the requested count. The
// engine never silently books fewer slots than the user last confirmed.
type CountReducedError struct {
	Requested int `json:"requested"`
	Available int `json:"available"`
}

func (e *CountReducedError) Error() string {
	return fmt.Sprintf("only %d of %d requested slots available", e.Available, e.Requested)
}
