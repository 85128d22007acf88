package repository

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/you/matchday-booking/internal/domain"
)

type BookingRepo struct {
	db *gorm.DB
}

func NewBookingRepo(db *gorm.DB) *BookingRepo {
	return &BookingRepo{db: db}
}

func (r *BookingRepo) Migrate() error {
	return r.db.AutoMigrate(
		&domain.Booking{},
		&domain.Slot{},
		&domain.EventConsumed{},
		&domain.IdempotencyKey{},
	)
}

// IssueKey mints a server-side reservation token for one booking attempt
// on one match. The client holds only the opaque key and its expiry.
func (r *BookingRepo) IssueKey(ctx context.Context, matchID, userID string, ttl time.Duration) (*domain.IdempotencyKey, error) {
	now := time.Now().UTC()
	k := &domain.IdempotencyKey{
		Key:       uuid.NewString(),
		MatchID:   matchID,
		UserID:    userID,
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	}
	if err := r.db.WithContext(ctx).Create(k).Error; err != nil {
		return nil, err
	}
	return k, nil
}

func (r *BookingRepo) KeyByID(ctx context.Context, key string) (*domain.IdempotencyKey, error) {
	var k domain.IdempotencyKey
	err := r.db.WithContext(ctx).First(&k, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrIdempotencyUnknown
	}
	if err != nil {
		return nil, err
	}
	return &k, nil
}

func bookingReference() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return "MB-" + strings.ToUpper(hex.EncodeToString(b))
}

// CreateWithKey persists the booking and binds the idempotency key to it
// in one transaction. The key bind is a conditional UPDATE on an unbound
// row, so two racing submissions with the same key produce one booking:
// the loser gets the winner's booking back with created=false.
func (r *BookingRepo) CreateWithKey(ctx context.Context, b *domain.Booking, key string) (created bool, existing *domain.Booking, err error) {
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if b.ID == "" {
			b.ID = uuid.NewString()
		}
		if b.BookingReference == "" {
			b.BookingReference = bookingReference()
		}
		res := tx.Model(&domain.IdempotencyKey{}).
			Where("key = ? AND (booking_id = '' OR booking_id IS NULL)", key).
			Update("booking_id", b.ID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var k domain.IdempotencyKey
			if err := tx.First(&k, "key = ?", key).Error; err != nil {
				return err
			}
			var prior domain.Booking
			if err := tx.Preload("Slots", slotOrder).First(&prior, "id = ?", k.BookingID).Error; err != nil {
				return err
			}
			existing = &prior
			return nil
		}
		for i := range b.Slots {
			if b.Slots[i].ID == "" {
				b.Slots[i].ID = uuid.NewString()
			}
			b.Slots[i].BookingID = b.ID
		}
		created = true
		return tx.Create(b).Error
	})
	return created, existing, err
}

func slotOrder(db *gorm.DB) *gorm.DB {
	return db.Order("slot_number ASC")
}

func (r *BookingRepo) ByID(ctx context.Context, id string) (*domain.Booking, error) {
	var b domain.Booking
	if err := r.db.WithContext(ctx).Preload("Slots", slotOrder).First(&b, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *BookingRepo) ByOrderID(ctx context.Context, orderID string) (*domain.Booking, error) {
	var b domain.Booking
	if err := r.db.WithContext(ctx).Preload("Slots", slotOrder).First(&b, "payment_order_id = ?", orderID).Error; err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *BookingRepo) UpdateStatus(ctx context.Context, id string, to domain.BookingStatus) (*domain.Booking, error) {
	if err := r.db.WithContext(ctx).Model(&domain.Booking{}).
		Where("id = ?", id).Update("status", to).Error; err != nil {
		return nil, err
	}
	return r.ByID(ctx, id)
}

func (r *BookingRepo) SetPaymentOrder(ctx context.Context, id, orderID string) error {
	return r.db.WithContext(ctx).Model(&domain.Booking{}).
		Where("id = ?", id).
		Updates(map[string]any{"payment_order_id": orderID, "status": domain.BookingPaymentPending}).Error
}

// ConfirmIfNotProcessed transitions the booking to CONFIRMED exactly once
// per external event id. Redelivered callbacks and webhooks hit the
// EventConsumed guard and return the current row untouched.
func (r *BookingRepo) ConfirmIfNotProcessed(ctx context.Context, bookingID, eventID, eventKey string) (*domain.Booking, error) {
	var out domain.Booking
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var seen int64
		if err := tx.Model(&domain.EventConsumed{}).Where("id = ?", eventID).Count(&seen).Error; err != nil {
			return err
		}
		if seen > 0 {
			return tx.Preload("Slots", slotOrder).First(&out, "id = ?", bookingID).Error
		}
		if err := tx.Preload("Slots", slotOrder).First(&out, "id = ?", bookingID).Error; err != nil {
			return err
		}
		switch out.Status {
		case domain.BookingCancelled, domain.BookingPartiallyCancelled:
			// cancelled while payment was in flight; reconciliation owns this
			return fmt.Errorf("booking %s is %s, cannot confirm", bookingID, out.Status)
		case domain.BookingConfirmed:
			// no-op, still record the event below
		default:
			out.Status = domain.BookingConfirmed
			if err := tx.Model(&domain.Booking{}).Where("id = ?", bookingID).
				Update("status", domain.BookingConfirmed).Error; err != nil {
				return err
			}
		}
		rec := domain.EventConsumed{ID: eventID, EventKey: eventKey, ProcessedAt: time.Now().UTC()}
		return tx.Create(&rec).Error
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// PhoneHit is one occupied phone found during conflict verification.
type PhoneHit struct {
	Phone  string
	Source domain.ConflictSource
}

// ActivePhones lists every phone holding capacity on the match: ACTIVE
// slots of live bookings plus waiting/notified waitlist entries.
func (r *BookingRepo) ActivePhones(ctx context.Context, matchID string) ([]PhoneHit, error) {
	var phones []string
	err := r.db.WithContext(ctx).Model(&domain.Slot{}).
		Joins("JOIN bookings ON bookings.id = slots.booking_id").
		Where("bookings.match_id = ? AND bookings.status IN ? AND slots.status = ?",
			matchID,
			[]domain.BookingStatus{
				domain.BookingInitiated, domain.BookingPaymentPending,
				domain.BookingConfirmed, domain.BookingPartiallyCancelled,
			},
			domain.SlotActive).
		Pluck("slots.phone", &phones).Error
	if err != nil {
		return nil, err
	}
	out := make([]PhoneHit, 0, len(phones))
	for _, p := range phones {
		if p != "" {
			out = append(out, PhoneHit{Phone: p, Source: domain.ConflictBooking})
		}
	}

	var entries []domain.WaitlistEntry
	err = r.db.WithContext(ctx).
		Where("match_id = ? AND status IN ?", matchID,
			[]domain.WaitlistStatus{domain.WaitlistWaiting, domain.WaitlistNotified}).
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.Phone != "" {
			out = append(out, PhoneHit{Phone: e.Phone, Source: domain.ConflictWaitlist})
		}
	}
	return out, nil
}

// CancelSlots flips the named ACTIVE slots to CANCELLED and settles the
// booking status in one transaction. It returns the updated booking and
// the freed slots so the caller can release inventory.
func (r *BookingRepo) CancelSlots(ctx context.Context, bookingID string, slotNumbers []int) (*domain.Booking, []domain.Slot, error) {
	var out domain.Booking
	var freed []domain.Slot
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var b domain.Booking
		if err := tx.Preload("Slots", slotOrder).First(&b, "id = ?", bookingID).Error; err != nil {
			return err
		}
		want := make(map[int]bool, len(slotNumbers))
		for _, n := range slotNumbers {
			want[n] = true
		}
		for _, s := range b.Slots {
			if !want[s.SlotNumber] {
				continue
			}
			if s.Status != domain.SlotActive {
				return domain.Validationf("slot %d is not active", s.SlotNumber)
			}
			res := tx.Model(&domain.Slot{}).
				Where("id = ? AND status = ?", s.ID, domain.SlotActive).
				Update("status", domain.SlotCancelled)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return domain.Validationf("slot %d already cancelled", s.SlotNumber)
			}
			freed = append(freed, s)
			delete(want, s.SlotNumber)
		}
		if len(want) > 0 {
			return domain.Validationf("unknown slot numbers in cancellation")
		}

		var remaining int64
		if err := tx.Model(&domain.Slot{}).
			Where("booking_id = ? AND status = ?", bookingID, domain.SlotActive).
			Count(&remaining).Error; err != nil {
			return err
		}
		status := domain.BookingPartiallyCancelled
		if remaining == 0 {
			status = domain.BookingCancelled
		}
		if err := tx.Model(&domain.Booking{}).Where("id = ?", bookingID).
			Update("status", status).Error; err != nil {
			return err
		}
		return tx.Preload("Slots", slotOrder).First(&out, "id = ?", bookingID).Error
	})
	if err != nil {
		return nil, nil, err
	}
	return &out, freed, nil
}

// LiveWaitlistBooking finds the booking record behind a waitlist entry.
func (r *BookingRepo) LiveWaitlistBooking(ctx context.Context, matchID, email string) (*domain.Booking, error) {
	var b domain.Booking
	err := r.db.WithContext(ctx).Preload("Slots", slotOrder).
		Where("match_id = ? AND email = ? AND booking_type = ? AND status IN ?",
			matchID, email, domain.PoolWaitlist,
			[]domain.BookingStatus{domain.BookingConfirmed, domain.BookingInitiated, domain.BookingPartiallyCancelled}).
		First(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// StaleHolds finds un-settled bookings older than the hold TTL so the
// sweeper can give their capacity back.
func (r *BookingRepo) StaleHolds(ctx context.Context, cutoff time.Time) ([]domain.Booking, error) {
	var out []domain.Booking
	err := r.db.WithContext(ctx).Preload("Slots", slotOrder).
		Where("status IN ? AND created_at < ?",
			[]domain.BookingStatus{domain.BookingInitiated, domain.BookingPaymentPending},
			cutoff).
		Find(&out).Error
	return out, err
}

func (r *BookingRepo) PurgeExpiredKeys(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("expires_at < ? AND (booking_id = '' OR booking_id IS NULL)", now).
		Delete(&domain.IdempotencyKey{})
	return res.RowsAffected, res.Error
}
