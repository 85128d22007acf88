package consumer

import (
	"context"
	"log"

	"github.com/you/matchday-booking/internal/events"
	"github.com/you/matchday-booking/internal/repository"
	"github.com/you/matchday-booking/pkg/mq"
)

// PaymentConsumer settles bookings from payment.captured events, which
// the gateway webhook publishes after signature verification. The
// EventConsumed guard in the repository makes redeliveries harmless.
type PaymentConsumer struct {
	repo *repository.BookingRepo
	cons *mq.Consumer
}

func NewPaymentConsumer(repo *repository.BookingRepo, cons *mq.Consumer) *PaymentConsumer {
	return &PaymentConsumer{repo: repo, cons: cons}
}

func (pc *PaymentConsumer) Run(ctx context.Context) error {
	msgs, err := pc.cons.Deliveries(ctx)
	if err != nil {
		return err
	}
	go func() {
		for d := range msgs {
			switch d.RoutingKey {
			case events.RKPaymentCaptured:
				evt, err := events.MustUnmarshal[events.PaymentCaptured](d.Body)
				if err != nil {
					log.Printf("[payment-consumer] unmarshal error: %v", err)
					_ = d.Nack(false, false)
					continue
				}
				if evt.Data.BookingID == "" || evt.Data.PaymentID == "" {
					log.Printf("[payment-consumer] invalid event payload")
					_ = d.Ack(false)
					continue
				}
				if _, err := pc.repo.ConfirmIfNotProcessed(ctx, evt.Data.BookingID, evt.Data.PaymentID, events.RKPaymentCaptured); err != nil {
					log.Printf("[payment-consumer] confirm error: %v", err)
					_ = d.Nack(false, true)
					continue
				}
				_ = d.Ack(false)
			default:
				_ = d.Ack(false)
			}
		}
	}()
	return nil
}
