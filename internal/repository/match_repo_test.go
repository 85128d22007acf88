package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/you/matchday-booking/internal/domain"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	// single connection: one shared in-memory database, writes serialized
	sqlDB.SetMaxOpenConns(1)
	return gdb
}

func seedMatch(t *testing.T, repo *MatchRepo, capacity, waitlist int, offer int64) *domain.Match {
	t.Helper()
	m := &domain.Match{
		Title:                  "Sunday Football",
		Venue:                  "Turf One",
		StartTime:              time.Now().Add(24 * time.Hour).UTC(),
		EndTime:                time.Now().Add(26 * time.Hour).UTC(),
		PlayerCapacity:         capacity,
		ListPrice:              offer + 100,
		OfferPrice:             offer,
		TeamAName:              "Red",
		TeamBName:              "Blue",
		AvailableRegularSlots:  capacity,
		AvailableWaitlistSlots: waitlist,
		AvailableTeamASlots:    capacity / 2,
		AvailableTeamBSlots:    capacity - capacity/2,
	}
	require.NoError(t, repo.Create(context.Background(), m))
	return m
}

func TestReserveRegular(t *testing.T) {
	repo := NewMatchRepo(newTestDB(t))
	require.NoError(t, repo.Migrate())
	m := seedMatch(t, repo, 10, 5, 500)
	ctx := context.Background()

	require.NoError(t, repo.ReserveRegular(ctx, m.ID, 2, 1))

	snap, err := repo.Snapshot(ctx, m.ID)
	require.NoError(t, err)
	require.Equal(t, 7, snap.Regular)
	require.Equal(t, 3, snap.TeamA)
	require.Equal(t, 4, snap.TeamB)
	require.Equal(t, snap.Regular, snap.TeamA+snap.TeamB)
}

func TestReserveRegularInsufficient(t *testing.T) {
	repo := NewMatchRepo(newTestDB(t))
	require.NoError(t, repo.Migrate())
	m := seedMatch(t, repo, 4, 0, 500)
	ctx := context.Background()

	// team A pool holds 2; asking for 3 on team A must fail even though
	// the regular pool holds 4
	err := repo.ReserveRegular(ctx, m.ID, 3, 0)
	require.ErrorIs(t, err, domain.ErrSlotsUnavailable)

	snap, err := repo.Snapshot(ctx, m.ID)
	require.NoError(t, err)
	require.Equal(t, 4, snap.Regular)
}

func TestReserveReleaseSymmetry(t *testing.T) {
	repo := NewMatchRepo(newTestDB(t))
	require.NoError(t, repo.Migrate())
	m := seedMatch(t, repo, 6, 3, 500)
	ctx := context.Background()

	require.NoError(t, repo.ReserveRegular(ctx, m.ID, 2, 2))
	require.NoError(t, repo.ReleaseRegular(ctx, m.ID, 2, 2))
	require.NoError(t, repo.ReserveWaitlist(ctx, m.ID, 2))
	require.NoError(t, repo.ReleaseWaitlist(ctx, m.ID, 2))

	snap, err := repo.Snapshot(ctx, m.ID)
	require.NoError(t, err)
	require.Equal(t, 6, snap.Regular)
	require.Equal(t, 3, snap.Waitlist)
	require.Equal(t, 0, snap.Waitlisted)
}

func TestReserveWaitlistExhausted(t *testing.T) {
	repo := NewMatchRepo(newTestDB(t))
	require.NoError(t, repo.Migrate())
	m := seedMatch(t, repo, 2, 1, 500)
	ctx := context.Background()

	require.NoError(t, repo.ReserveWaitlist(ctx, m.ID, 1))
	require.ErrorIs(t, repo.ReserveWaitlist(ctx, m.ID, 1), domain.ErrSlotsUnavailable)
}

// Concurrent reservations must never oversell: with capacity 10 and 20
// one-slot attempts, exactly 10 succeed and the counters land on zero.
func TestReserveRegularConcurrent(t *testing.T) {
	repo := NewMatchRepo(newTestDB(t))
	require.NoError(t, repo.Migrate())
	m := seedMatch(t, repo, 10, 0, 500)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	won := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			var err error
			if n%2 == 0 {
				err = repo.ReserveRegular(ctx, m.ID, 1, 0)
			} else {
				err = repo.ReserveRegular(ctx, m.ID, 0, 1)
			}
			if err == nil {
				mu.Lock()
				won++
				mu.Unlock()
			} else if err != domain.ErrSlotsUnavailable {
				t.Errorf("unexpected reserve error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	require.Equal(t, 10, won)
	snap, err := repo.Snapshot(ctx, m.ID)
	require.NoError(t, err)
	require.Equal(t, 0, snap.Regular)
	require.Equal(t, 0, snap.TeamA)
	require.Equal(t, 0, snap.TeamB)
}
