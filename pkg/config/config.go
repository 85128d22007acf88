package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

type App struct {
	// DB
	PGBookingDSN string `envconfig:"PG_BOOKING_DSN" required:"true"`
	// JWT
	JWTSecret string `envconfig:"JWT_SECRET" required:"true"`
	// Network
	HTTPAddr string `envconfig:"BOOKING_HTTP_ADDR" default:":8080"`

	// RabbitMQ
	RabbitURL       string `envconfig:"RABBIT_URL" required:"true"`
	BookingExchange string `envconfig:"BOOKING_EXCHANGE" default:"booking.exchange"`
	PaymentExchange string `envconfig:"PAYMENT_EXCHANGE" default:"payment.exchange"`
	PaymentQueue    string `envconfig:"BOOKING_PAYMENT_QUEUE" default:"booking.payment.q"`

	// Razorpay
	RazorpayKeyID         string `envconfig:"RAZORPAY_KEY_ID" required:"true"`
	RazorpayKeySecret     string `envconfig:"RAZORPAY_KEY_SECRET" required:"true"`
	RazorpayWebhookSecret string `envconfig:"RAZORPAY_WEBHOOK_SECRET" default:""`
	Currency              string `envconfig:"BOOKING_CURRENCY" default:"INR"`

	// Reservation holds
	ReservationTTLMin int `envconfig:"RESERVATION_TTL_MIN" default:"15"`
	SweepIntervalSec  int `envconfig:"HOLD_SWEEP_INTERVAL_SEC" default:"60"`
}

func (a App) ReservationTTL() time.Duration {
	return time.Duration(a.ReservationTTLMin) * time.Minute
}

func (a App) SweepInterval() time.Duration {
	return time.Duration(a.SweepIntervalSec) * time.Second
}

func Load() (App, error) {
	var c App
	err := envconfig.Process("", &c)
	return c, err
}
