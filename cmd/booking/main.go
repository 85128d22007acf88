package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/you/matchday-booking/internal/consumer"
	"github.com/you/matchday-booking/internal/payment"
	"github.com/you/matchday-booking/internal/repository"
	"github.com/you/matchday-booking/internal/service"
	httpx "github.com/you/matchday-booking/internal/transport/http"
	"github.com/you/matchday-booking/internal/worker"
	"github.com/you/matchday-booking/pkg/config"
	"github.com/you/matchday-booking/pkg/db"
	"github.com/you/matchday-booking/pkg/mq"
	"github.com/you/matchday-booking/pkg/obs"
)

func must[T any](v T, err error) T {
	if err != nil {
		log.Fatal(err)
	}
	return v
}

func main() {
	_ = godotenv.Load()
	cfg := must(config.Load())

	shutdownTracer := obs.InitTracer("booking-engine")
	defer func() { _ = shutdownTracer(context.Background()) }()

	// DB + repositories
	gdb := db.Open(cfg.PGBookingDSN)
	matches := repository.NewMatchRepo(gdb)
	bookings := repository.NewBookingRepo(gdb)
	waitlists := repository.NewWaitlistRepo(gdb)
	promos := repository.NewPromoRepo(gdb)
	must(0, errFirst(matches.Migrate(), bookings.Migrate(), waitlists.Migrate(), promos.Migrate()))

	// Event bus
	bookingPub := must(mq.NewPublisher(cfg.RabbitURL, cfg.BookingExchange))
	defer bookingPub.Close()
	paymentPub := must(mq.NewPublisher(cfg.RabbitURL, cfg.PaymentExchange))
	defer paymentPub.Close()

	// Engine
	gateway := payment.NewRazorpay(cfg.RazorpayKeyID, cfg.RazorpayKeySecret, cfg.RazorpayWebhookSecret)
	pricing := service.NewPricing(matches, promos)
	coordinator := service.NewCoordinator(
		matches, bookings, waitlists,
		service.NewValidator(), pricing, gateway, bookingPub, cfg.Currency,
	)
	cancellation := service.NewCancellation(matches, bookings, waitlists, bookingPub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Consumer: settle bookings from verified payment.captured events
	paymentCons := must(mq.NewConsumer(cfg.RabbitURL, cfg.PaymentExchange, cfg.PaymentQueue, []string{"payment.captured"}))
	defer paymentCons.Close()
	must(0, consumer.NewPaymentConsumer(bookings, paymentCons).Run(ctx))
	log.Println("[booking] consumer started (payment.captured)")

	// Sweeper: TTL enforcement for abandoned holds
	sweeper := worker.NewExpirySweeper(bookings, coordinator, cfg.ReservationTTL(), cfg.SweepInterval())
	go sweeper.Run(ctx)

	// HTTP
	bh := httpx.NewBookingHandler(matches, bookings, pricing, coordinator, cfg.ReservationTTL())
	ph := httpx.NewPaymentHandler(coordinator, gateway, paymentPub)
	ch := httpx.NewCancellationHandler(cancellation)
	r := httpx.NewRouter(bh, ph, ch)

	go func() {
		log.Println("[booking] http listening on", cfg.HTTPAddr)
		log.Fatal(r.Run(cfg.HTTPAddr))
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	cancel()
	log.Println("[booking] stopped")
}

func errFirst(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
