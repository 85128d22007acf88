package payment

import (
	"context"
	"fmt"

	razorpay "github.com/razorpay/razorpay-go"
	"github.com/razorpay/razorpay-go/utils"

	"github.com/you/matchday-booking/internal/domain"
)

// Razorpay implements Gateway on the Razorpay REST API. Amounts cross the
// wire in paise; everything inside the engine is rupees.
type Razorpay struct {
	client        *razorpay.Client
	keySecret     string
	webhookSecret string
}

func NewRazorpay(keyID, keySecret, webhookSecret string) *Razorpay {
	return &Razorpay{
		client:        razorpay.NewClient(keyID, keySecret),
		keySecret:     keySecret,
		webhookSecret: webhookSecret,
	}
}

func (g *Razorpay) CreateOrder(ctx context.Context, in CreateOrderInput) (*Order, error) {
	data := map[string]interface{}{
		"amount":   in.Amount * 100,
		"currency": in.Currency,
		"receipt":  in.Receipt,
		"notes": map[string]interface{}{
			"booking_id":   in.BookingID,
			"match_id":     in.MatchID,
			"booking_type": string(in.BookingType),
			"name":         in.Name,
			"email":        in.Email,
		},
	}
	body, err := g.client.Order.Create(data, nil)
	if err != nil {
		return nil, fmt.Errorf("razorpay create order: %w", err)
	}
	id, _ := body["id"].(string)
	if id == "" {
		return nil, fmt.Errorf("razorpay create order: no order id in response")
	}
	return &Order{ID: id, Amount: in.Amount * 100, Currency: in.Currency}, nil
}

func (g *Razorpay) VerifyPaymentSignature(cb Callback) error {
	params := map[string]interface{}{
		"razorpay_order_id":   cb.OrderID,
		"razorpay_payment_id": cb.PaymentID,
	}
	if !utils.VerifyPaymentSignature(params, cb.Signature, g.keySecret) {
		return fmt.Errorf("%w: order %s payment %s", domain.ErrPaymentVerification, cb.OrderID, cb.PaymentID)
	}
	return nil
}

func (g *Razorpay) VerifyWebhookSignature(body []byte, signature string) error {
	if !utils.VerifyWebhookSignature(string(body), signature, g.webhookSecret) {
		return fmt.Errorf("%w: webhook signature mismatch", domain.ErrPaymentVerification)
	}
	return nil
}
