package http

import (
	"encoding/json"
	"io"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/you/matchday-booking/internal/events"
	"github.com/you/matchday-booking/internal/payment"
	"github.com/you/matchday-booking/internal/service"
)

type PaymentHandler struct {
	coordinator *service.Coordinator
	gateway     payment.Gateway
	pub         service.EventPublisher
}

func NewPaymentHandler(coordinator *service.Coordinator, gateway payment.Gateway, pub service.EventPublisher) *PaymentHandler {
	return &PaymentHandler{coordinator: coordinator, gateway: gateway, pub: pub}
}

// POST /v1/payments/callback — the success continuation of the checkout
// handoff. Safe against duplicate invocation.
func (h *PaymentHandler) Callback(c *gin.Context) {
	var in struct {
		BookingID string `json:"booking_id" binding:"required"`
		PaymentID string `json:"razorpay_payment_id" binding:"required"`
		OrderID   string `json:"razorpay_order_id" binding:"required"`
		Signature string `json:"razorpay_signature" binding:"required"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	b, err := h.coordinator.HandlePaymentCallback(c, in.BookingID, payment.Callback{
		PaymentID: in.PaymentID,
		OrderID:   in.OrderID,
		Signature: in.Signature,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"booking": b})
}

// POST /v1/bookings/:id/payment-cancel — the dismissal continuation.
func (h *PaymentHandler) CancelPayment(c *gin.Context) {
	b, err := h.coordinator.CancelPayment(c, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"booking": b})
}

// razorpayWebhook is the subset of the webhook envelope the engine needs.
type razorpayWebhook struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID       string         `json:"id"`
				OrderID  string         `json:"order_id"`
				Amount   int64          `json:"amount"` // paise
				Currency string         `json:"currency"`
				Notes    map[string]any `json:"notes"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

// POST /webhooks/razorpay — verified server-to-server confirmation. The
// verified event is republished to the bus; the payment consumer settles
// the booking idempotently, so callback and webhook deliveries collapse.
func (h *PaymentHandler) Webhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.Status(http.StatusBadRequest)
		return
	}
	if err := h.gateway.VerifyWebhookSignature(body, c.GetHeader("X-Razorpay-Signature")); err != nil {
		log.Printf("[webhook] signature verify: %v", err)
		c.Status(http.StatusUnauthorized)
		return
	}
	var evt razorpayWebhook
	if err := json.Unmarshal(body, &evt); err != nil {
		c.Status(http.StatusBadRequest)
		return
	}
	if evt.Event != "payment.captured" {
		c.Status(http.StatusOK)
		return
	}
	ent := evt.Payload.Payment.Entity
	bookingID, _ := ent.Notes["booking_id"].(string)
	if bookingID == "" || ent.ID == "" {
		log.Printf("[webhook] payment.captured without booking metadata")
		c.Status(http.StatusOK)
		return
	}
	out := events.NewPaymentCaptured(ent.ID, ent.OrderID, bookingID, ent.Amount/100, ent.Currency)
	if err := h.pub.PublishJSON(c, events.RKPaymentCaptured, out); err != nil {
		log.Printf("[webhook] publish payment.captured: %v", err)
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Status(http.StatusOK)
}
