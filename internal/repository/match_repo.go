package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/you/matchday-booking/internal/domain"
)

// MatchRepo owns the per-match slot counters. Reserve* and Release* are
// the single atomic primitive every component shares: one conditional
// UPDATE that decrements (or increments) only while the guard holds.
// Everything else reads Snapshot, which is advisory.
type MatchRepo struct {
	db *gorm.DB
}

func NewMatchRepo(db *gorm.DB) *MatchRepo {
	return &MatchRepo{db: db}
}

func (r *MatchRepo) Migrate() error {
	return r.db.AutoMigrate(&domain.Match{})
}

func (r *MatchRepo) Create(ctx context.Context, m *domain.Match) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return r.db.WithContext(ctx).Create(m).Error
}

func (r *MatchRepo) ByID(ctx context.Context, id string) (*domain.Match, error) {
	var m domain.Match
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *MatchRepo) Snapshot(ctx context.Context, id string) (domain.SlotSnapshot, error) {
	m, err := r.ByID(ctx, id)
	if err != nil {
		return domain.SlotSnapshot{}, err
	}
	return domain.SlotSnapshot{
		Regular:    m.AvailableRegularSlots,
		Waitlist:   m.AvailableWaitlistSlots,
		TeamA:      m.AvailableTeamASlots,
		TeamB:      m.AvailableTeamBSlots,
		Waitlisted: m.WaitlistedSlots,
	}, nil
}

// ReserveRegular takes teamA+teamB slots out of the regular pool in one
// conditional decrement. RowsAffected == 0 means another request got
// there first; the caller surfaces that as retryable.
func (r *MatchRepo) ReserveRegular(ctx context.Context, matchID string, teamA, teamB int) error {
	if teamA < 0 || teamB < 0 || teamA+teamB == 0 {
		return domain.Validationf("invalid reserve counts a=%d b=%d", teamA, teamB)
	}
	res := r.db.WithContext(ctx).Model(&domain.Match{}).
		Where("id = ? AND available_regular_slots >= ? AND available_team_a_slots >= ? AND available_team_b_slots >= ?",
			matchID, teamA+teamB, teamA, teamB).
		Updates(map[string]any{
			"available_regular_slots": gorm.Expr("available_regular_slots - ?", teamA+teamB),
			"available_team_a_slots":  gorm.Expr("available_team_a_slots - ?", teamA),
			"available_team_b_slots":  gorm.Expr("available_team_b_slots - ?", teamB),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrSlotsUnavailable
	}
	return nil
}

func (r *MatchRepo) ReleaseRegular(ctx context.Context, matchID string, teamA, teamB int) error {
	if teamA < 0 || teamB < 0 || teamA+teamB == 0 {
		return domain.Validationf("invalid release counts a=%d b=%d", teamA, teamB)
	}
	return r.db.WithContext(ctx).Model(&domain.Match{}).
		Where("id = ?", matchID).
		Updates(map[string]any{
			"available_regular_slots": gorm.Expr("available_regular_slots + ?", teamA+teamB),
			"available_team_a_slots":  gorm.Expr("available_team_a_slots + ?", teamA),
			"available_team_b_slots":  gorm.Expr("available_team_b_slots + ?", teamB),
		}).Error
}

func (r *MatchRepo) ReserveWaitlist(ctx context.Context, matchID string, count int) error {
	if count <= 0 {
		return domain.Validationf("invalid reserve count %d", count)
	}
	res := r.db.WithContext(ctx).Model(&domain.Match{}).
		Where("id = ? AND available_waitlist_slots >= ?", matchID, count).
		Updates(map[string]any{
			"available_waitlist_slots": gorm.Expr("available_waitlist_slots - ?", count),
			"waitlisted_slots":         gorm.Expr("waitlisted_slots + ?", count),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrSlotsUnavailable
	}
	return nil
}

func (r *MatchRepo) ReleaseWaitlist(ctx context.Context, matchID string, count int) error {
	if count <= 0 {
		return domain.Validationf("invalid release count %d", count)
	}
	return r.db.WithContext(ctx).Model(&domain.Match{}).
		Where("id = ? AND waitlisted_slots >= ?", matchID, count).
		Updates(map[string]any{
			"available_waitlist_slots": gorm.Expr("available_waitlist_slots + ?", count),
			"waitlisted_slots":         gorm.Expr("waitlisted_slots - ?", count),
		}).Error
}

func (r *MatchRepo) Upcoming(ctx context.Context, page, size int32) ([]domain.Match, error) {
	if size <= 0 {
		size = 20
	}
	if page < 0 {
		page = 0
	}
	var out []domain.Match
	err := r.db.WithContext(ctx).Model(&domain.Match{}).
		Where("start_time > ?", time.Now().UTC()).
		Order("start_time ASC").
		Limit(int(size)).Offset(int(page * size)).
		Find(&out).Error
	return out, err
}
