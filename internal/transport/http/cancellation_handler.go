package http

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/you/matchday-booking/internal/service"
)

type CancellationHandler struct {
	engine *service.Cancellation
}

func NewCancellationHandler(engine *service.Cancellation) *CancellationHandler {
	return &CancellationHandler{engine: engine}
}

func parseSlotNumbers(raw string) []int {
	if raw == "" {
		return nil
	}
	var out []int
	for _, part := range strings.Split(raw, ",") {
		if n, err := strconv.Atoi(strings.TrimSpace(part)); err == nil {
			out = append(out, n)
		}
	}
	return out
}

// GET /v1/bookings/:id/refund-breakdown?slots=1,2 — advisory preview;
// the engine recomputes at cancellation time.
func (h *CancellationHandler) RefundBreakdown(c *gin.Context) {
	breakdown, err := h.engine.RefundBreakdown(c, c.Param("id"), parseSlotNumbers(c.Query("slots")), time.Now().UTC())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, breakdown)
}

// POST /v1/bookings/:id/cancel
func (h *CancellationHandler) CancelSlots(c *gin.Context) {
	var in struct {
		SlotNumbers []int  `json:"slot_numbers"`
		Reason      string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	b, breakdown, err := h.engine.CancelSlots(c, c.Param("id"), in.SlotNumbers, in.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"booking": b, "refund": breakdown})
}

// DELETE /v1/waitlist/:matchID
func (h *CancellationHandler) CancelWaitlist(c *gin.Context) {
	email := c.Query("email")
	if email == "" {
		email = c.GetString("email")
	}
	if err := h.engine.CancelWaitlist(c, c.Param("matchID"), email); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
