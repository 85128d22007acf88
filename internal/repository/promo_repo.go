package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/you/matchday-booking/internal/domain"
)

type PromoRepo struct {
	db *gorm.DB
}

func NewPromoRepo(db *gorm.DB) *PromoRepo {
	return &PromoRepo{db: db}
}

func (r *PromoRepo) Migrate() error {
	return r.db.AutoMigrate(&domain.PromoCode{}, &domain.PromoRedemption{})
}

// ByCode returns (nil, nil) for an unknown code; pricing maps that to an
// INVALID rejection rather than an error.
func (r *PromoRepo) ByCode(ctx context.Context, code string) (*domain.PromoCode, error) {
	var p domain.PromoCode
	err := r.db.WithContext(ctx).First(&p, "code = ?", code).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PromoRepo) Create(ctx context.Context, p *domain.PromoCode) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *PromoRepo) RedeemedBy(ctx context.Context, code, userID string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&domain.PromoRedemption{}).
		Where("code = ? AND user_id = ?", code, userID).Count(&n).Error
	return n > 0, err
}

func (r *PromoRepo) Redemptions(ctx context.Context, code string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&domain.PromoRedemption{}).
		Where("code = ?", code).Count(&n).Error
	return n, err
}

func (r *PromoRepo) RecordRedemption(ctx context.Context, code, userID, bookingID string) error {
	rec := domain.PromoRedemption{
		ID:        uuid.NewString(),
		Code:      code,
		UserID:    userID,
		BookingID: bookingID,
	}
	return r.db.WithContext(ctx).Create(&rec).Error
}
