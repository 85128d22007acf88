package payment

import (
	"context"

	"github.com/you/matchday-booking/internal/domain"
)

// Order is the gateway-side order the client checkout UI settles against.
type Order struct {
	ID       string `json:"order_id"`
	Amount   int64  `json:"amount"` // paise, as the checkout UI expects
	Currency string `json:"currency"`
}

type CreateOrderInput struct {
	BookingID   string
	MatchID     string
	BookingType domain.Pool
	Amount      int64 // rupees
	Currency    string
	Receipt     string
	Name        string
	Email       string
}

// Callback is the success continuation payload delivered after checkout.
type Callback struct {
	PaymentID string `json:"payment_id"`
	OrderID   string `json:"order_id"`
	Signature string `json:"signature"`
}

// Gateway is the external payment collaborator. Implementations must be
// safe for concurrent use; verification failures return
// domain.ErrPaymentVerification wrapped with detail.
type Gateway interface {
	CreateOrder(ctx context.Context, in CreateOrderInput) (*Order, error)
	VerifyPaymentSignature(cb Callback) error
	VerifyWebhookSignature(body []byte, signature string) error
}
