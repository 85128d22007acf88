package service

import (
	"context"
	"fmt"
	"time"

	"github.com/you/matchday-booking/internal/domain"
	"github.com/you/matchday-booking/internal/repository"
)

// Pricing re-derives every amount from the server-held offer price. The
// client's displayed price is never trusted at commit time.
type Pricing struct {
	matches *repository.MatchRepo
	promos  *repository.PromoRepo
}

func NewPricing(matches *repository.MatchRepo, promos *repository.PromoRepo) *Pricing {
	return &Pricing{matches: matches, promos: promos}
}

func (p *Pricing) Quote(ctx context.Context, matchID string, pool domain.Pool, numSlots int) (int64, error) {
	if numSlots < 1 {
		return 0, domain.Validationf("quote for %d slots", numSlots)
	}
	if pool == domain.PoolWaitlist {
		return 0, nil
	}
	m, err := p.matches.ByID(ctx, matchID)
	if err != nil {
		return 0, fmt.Errorf("quote: %w", err)
	}
	return m.OfferPrice * int64(numSlots), nil
}

type PromoResult struct {
	Valid          bool                     `json:"valid"`
	Reason         domain.PromoRejectReason `json:"reason,omitempty"`
	Message        string                   `json:"message,omitempty"`
	DiscountAmount int64                    `json:"discount_amount"`
	FinalAmount    int64                    `json:"final_amount"`
}

func rejected(reason domain.PromoRejectReason, msg string, amount int64) *PromoResult {
	return &PromoResult{Valid: false, Reason: reason, Message: msg, FinalAmount: amount}
}

func (p *Pricing) ApplyPromo(ctx context.Context, code string, originalAmount int64, matchID, userID string) (*PromoResult, error) {
	if originalAmount <= 0 {
		return rejected(domain.PromoNotApplicable, "nothing to discount", originalAmount), nil
	}
	promo, err := p.promos.ByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("apply promo: %w", err)
	}
	if promo == nil {
		return rejected(domain.PromoInvalid, "unknown promo code", originalAmount), nil
	}
	if !promo.ExpiresAt.IsZero() && time.Now().After(promo.ExpiresAt) {
		return rejected(domain.PromoExpired, "promo code expired", originalAmount), nil
	}
	if promo.MatchID != "" && promo.MatchID != matchID {
		return rejected(domain.PromoNotApplicable, "promo not valid for this match", originalAmount), nil
	}
	if promo.MinAmount > 0 && originalAmount < promo.MinAmount {
		return rejected(domain.PromoNotApplicable, "order below promo minimum", originalAmount), nil
	}
	used, err := p.promos.RedeemedBy(ctx, code, userID)
	if err != nil {
		return nil, fmt.Errorf("apply promo: %w", err)
	}
	if used {
		return rejected(domain.PromoAlreadyUsed, "promo code already used", originalAmount), nil
	}
	if promo.MaxRedemptions > 0 {
		n, err := p.promos.Redemptions(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("apply promo: %w", err)
		}
		if n >= int64(promo.MaxRedemptions) {
			return rejected(domain.PromoExpired, "promo code fully redeemed", originalAmount), nil
		}
	}
	discount := promo.DiscountAmount
	if discount > originalAmount {
		discount = originalAmount
	}
	return &PromoResult{
		Valid:          true,
		DiscountAmount: discount,
		FinalAmount:    originalAmount - discount,
	}, nil
}

// RemovePromo is the pure inverse of ApplyPromo: the final amount goes
// back to the original.
func (p *Pricing) RemovePromo(originalAmount int64) int64 {
	return originalAmount
}
