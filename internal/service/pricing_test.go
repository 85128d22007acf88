package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/you/matchday-booking/internal/domain"
)

func TestQuote(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.seedMatch(t, 7, 7, 5, time.Now().Add(24*time.Hour))

	amount, err := f.pricing.Quote(ctx, m.ID, domain.PoolRegular, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(1500), amount)

	amount, err = f.pricing.Quote(ctx, m.ID, domain.PoolWaitlist, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(0), amount, "waitlist slots are free")

	_, err = f.pricing.Quote(ctx, m.ID, domain.PoolRegular, 0)
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestApplyRemovePromoInverse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.seedMatch(t, 7, 7, 5, time.Now().Add(24*time.Hour))
	require.NoError(t, f.promos.Create(ctx, &domain.PromoCode{Code: "SAVE150", DiscountAmount: 150}))

	original, err := f.pricing.Quote(ctx, m.ID, domain.PoolRegular, 3)
	require.NoError(t, err)

	res, err := f.pricing.ApplyPromo(ctx, "SAVE150", original, m.ID, "u1")
	require.NoError(t, err)
	require.True(t, res.Valid)
	assert.Equal(t, int64(150), res.DiscountAmount)
	assert.Equal(t, int64(1350), res.FinalAmount)

	assert.Equal(t, original, f.pricing.RemovePromo(original))
}

func TestApplyPromoCapsAtAmount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.promos.Create(ctx, &domain.PromoCode{Code: "BIG", DiscountAmount: 2000}))

	res, err := f.pricing.ApplyPromo(ctx, "BIG", 1500, "m1", "u1")
	require.NoError(t, err)
	require.True(t, res.Valid)
	assert.Equal(t, int64(1500), res.DiscountAmount)
	assert.Equal(t, int64(0), res.FinalAmount)
}

func TestApplyPromoRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.promos.Create(ctx, &domain.PromoCode{
		Code: "GONE", DiscountAmount: 100, ExpiresAt: time.Now().Add(-time.Hour),
	}))
	require.NoError(t, f.promos.Create(ctx, &domain.PromoCode{
		Code: "OTHERMATCH", DiscountAmount: 100, MatchID: "match-elsewhere",
	}))
	require.NoError(t, f.promos.Create(ctx, &domain.PromoCode{
		Code: "BIGSPEND", DiscountAmount: 100, MinAmount: 5000,
	}))
	require.NoError(t, f.promos.Create(ctx, &domain.PromoCode{
		Code: "ONCE", DiscountAmount: 100,
	}))
	require.NoError(t, f.promos.RecordRedemption(ctx, "ONCE", "u1", "b0"))
	require.NoError(t, f.promos.Create(ctx, &domain.PromoCode{
		Code: "LIMITED", DiscountAmount: 100, MaxRedemptions: 1,
	}))
	require.NoError(t, f.promos.RecordRedemption(ctx, "LIMITED", "someone-else", "b1"))

	cases := []struct {
		name   string
		code   string
		amount int64
		user   string
		reason domain.PromoRejectReason
	}{
		{"unknown code", "NOPE", 1500, "u1", domain.PromoInvalid},
		{"expired", "GONE", 1500, "u1", domain.PromoExpired},
		{"wrong match", "OTHERMATCH", 1500, "u1", domain.PromoNotApplicable},
		{"below minimum", "BIGSPEND", 1500, "u1", domain.PromoNotApplicable},
		{"already used by this user", "ONCE", 1500, "u1", domain.PromoAlreadyUsed},
		{"fully redeemed", "LIMITED", 1500, "u1", domain.PromoExpired},
		{"nothing to discount", "ONCE", 0, "u2", domain.PromoNotApplicable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := f.pricing.ApplyPromo(ctx, tc.code, tc.amount, "m1", tc.user)
			require.NoError(t, err)
			require.False(t, res.Valid)
			assert.Equal(t, tc.reason, res.Reason)
			assert.Equal(t, tc.amount, res.FinalAmount, "rejection never changes the amount")
		})
	}
}
