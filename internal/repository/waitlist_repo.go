package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/you/matchday-booking/internal/domain"
)

type WaitlistRepo struct {
	db *gorm.DB
}

func NewWaitlistRepo(db *gorm.DB) *WaitlistRepo {
	return &WaitlistRepo{db: db}
}

func (r *WaitlistRepo) Migrate() error {
	return r.db.AutoMigrate(&domain.WaitlistEntry{})
}

func (r *WaitlistRepo) Create(ctx context.Context, e *domain.WaitlistEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Status == "" {
		e.Status = domain.WaitlistWaiting
	}
	return r.db.WithContext(ctx).Create(e).Error
}

func (r *WaitlistRepo) ActiveByMatchEmail(ctx context.Context, matchID, email string) (*domain.WaitlistEntry, error) {
	var e domain.WaitlistEntry
	err := r.db.WithContext(ctx).
		Where("match_id = ? AND email = ? AND status IN ?", matchID, email,
			[]domain.WaitlistStatus{domain.WaitlistWaiting, domain.WaitlistNotified}).
		First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrWaitlistNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *WaitlistRepo) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&domain.WaitlistEntry{}, "id = ?", id).Error
}
