package domain

import "time"

type PromoRejectReason string

const (
	PromoInvalid       PromoRejectReason = "INVALID"
	PromoAlreadyUsed   PromoRejectReason = "ALREADY_USED"
	PromoExpired       PromoRejectReason = "EXPIRED"
	PromoNotApplicable PromoRejectReason = "NOT_APPLICABLE"
)

type PromoCode struct {
	Code           string `gorm:"primaryKey"`
	DiscountAmount int64
	MinAmount      int64
	MatchID        string // empty: valid for any match
	MaxRedemptions int    // 0: unlimited
	ExpiresAt      time.Time
	CreatedAt      time.Time
}

type PromoRedemption struct {
	ID        string `gorm:"primaryKey"`
	Code      string `gorm:"index"`
	UserID    string `gorm:"index"`
	BookingID string
	CreatedAt time.Time
}
