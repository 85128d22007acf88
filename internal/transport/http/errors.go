package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/you/matchday-booking/internal/domain"
)

// writeError maps engine errors onto HTTP. Renegotiations (pool switch,
// count reduction) are 409s with a structured body the client uses to
// re-present the new commitment.
func writeError(c *gin.Context, err error) {
	var verr *domain.ValidationError
	var conflict *domain.SlotConflictError
	var pswitch *domain.PoolSwitchError
	var reduced *domain.CountReducedError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Msg})
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, gin.H{"error": "slot_conflict", "conflicts": conflict.Conflicts})
	case errors.As(err, &pswitch):
		c.JSON(http.StatusConflict, gin.H{"error": "pool_switch", "from": pswitch.From, "to": pswitch.To, "amount": pswitch.Amount})
	case errors.As(err, &reduced):
		c.JSON(http.StatusConflict, gin.H{"error": "count_reduced", "requested": reduced.Requested, "available": reduced.Available})
	case errors.Is(err, domain.ErrNoSlotsAvailable):
		c.JSON(http.StatusConflict, gin.H{"error": "no_slots_available"})
	case errors.Is(err, domain.ErrSlotsUnavailable):
		c.JSON(http.StatusConflict, gin.H{"error": "slots_unavailable", "retryable": true})
	case errors.Is(err, domain.ErrIdempotencyExpired):
		c.JSON(http.StatusGone, gin.H{"error": "reservation_token_expired"})
	case errors.Is(err, domain.ErrIdempotencyUnknown):
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown_reservation_token"})
	case errors.Is(err, domain.ErrPaymentVerification):
		c.JSON(http.StatusPaymentRequired, gin.H{"error": "payment_verification_failed"})
	case errors.Is(err, domain.ErrWaitlistNotFound), errors.Is(err, gorm.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
