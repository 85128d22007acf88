package domain

import "time"

type BookingStatus string

const (
	BookingInitiated          BookingStatus = "INITIATED"
	BookingPaymentPending     BookingStatus = "PAYMENT_PENDING"
	BookingConfirmed          BookingStatus = "CONFIRMED"
	BookingPaymentFailed      BookingStatus = "PAYMENT_FAILED"
	BookingPartiallyCancelled BookingStatus = "PARTIALLY_CANCELLED"
	BookingCancelled          BookingStatus = "CANCELLED"
)

type SlotStatus string

const (
	SlotActive    SlotStatus = "ACTIVE"
	SlotCancelled SlotStatus = "CANCELLED"
)

type Booking struct {
	ID               string `gorm:"primaryKey"`
	BookingReference string `gorm:"uniqueIndex"`
	MatchID          string `gorm:"index"`
	UserID           string `gorm:"index"`
	Email            string
	BookingType      Pool          `gorm:"index"`
	Status           BookingStatus `gorm:"index"`
	TotalSlots       int
	TotalAmount      int64
	PromoCode        string
	DiscountAmount   int64
	PaymentOrderID   string `gorm:"index"`
	Slots            []Slot `gorm:"foreignKey:BookingID"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ActiveSlots returns the slots not yet cancelled, in slot order.
func (b *Booking) ActiveSlots() []Slot {
	var out []Slot
	for _, s := range b.Slots {
		if s.Status == SlotActive {
			out = append(out, s)
		}
	}
	return out
}

func (b *Booking) Live() bool {
	switch b.Status {
	case BookingInitiated, BookingPaymentPending, BookingConfirmed, BookingPartiallyCancelled:
		return true
	}
	return false
}

type Slot struct {
	ID         string `gorm:"primaryKey"`
	BookingID  string `gorm:"index"`
	SlotNumber int
	PlayerName string
	UserID     string
	Phone      string `gorm:"index"`
	TeamName   string
	Status     SlotStatus
}

// EventConsumed dedupes externally-delivered events (payment callbacks,
// webhook redeliveries) so confirmation stays idempotent.
type EventConsumed struct {
	ID          string `gorm:"primaryKey"`
	EventKey    string `gorm:"index"`
	ProcessedAt time.Time
}

// IdempotencyKey is a server-issued reservation token. It is valid for a
// fixed TTL from issuance and binds to at most one booking; a retried
// submission with a bound key replays that booking.
type IdempotencyKey struct {
	Key       string `gorm:"primaryKey"`
	MatchID   string `gorm:"index"`
	UserID    string
	BookingID string `gorm:"index"`
	IssuedAt  time.Time
	ExpiresAt time.Time `gorm:"index"`
}

func (k *IdempotencyKey) Expired(now time.Time) bool {
	return now.After(k.ExpiresAt)
}
