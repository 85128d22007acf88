package http

import (
	"github.com/gin-gonic/gin"
)

// NewRouter wires all engine endpoints. Everything except the gateway
// webhook requires the authenticated requester identity.
func NewRouter(bh *BookingHandler, ph *PaymentHandler, ch *CancellationHandler) *gin.Engine {
	r := gin.Default()

	r.POST("/webhooks/razorpay", ph.Webhook)

	v1 := r.Group("/v1")
	v1.Use(JWTAuth())
	{
		v1.POST("/matches/:id/reservation-token", bh.IssueToken)
		v1.GET("/matches/:id/availability", bh.Availability)
		v1.GET("/matches/:id/quote", bh.Quote)
		v1.POST("/matches/:id/verify-slots", bh.VerifySlots)
		v1.POST("/promos/validate", bh.ValidatePromo)

		v1.POST("/bookings", bh.Create)
		v1.GET("/bookings/:id", bh.Get)
		v1.GET("/bookings/:id/refund-breakdown", ch.RefundBreakdown)
		v1.POST("/bookings/:id/cancel", ch.CancelSlots)
		v1.POST("/bookings/:id/payment-cancel", ph.CancelPayment)

		v1.POST("/payments/callback", ph.Callback)

		v1.DELETE("/waitlist/:matchID", ch.CancelWaitlist)
	}
	return r
}
