package worker

import (
	"context"
	"log"
	"time"

	"github.com/you/matchday-booking/internal/repository"
	"github.com/you/matchday-booking/internal/service"
)

// ExpirySweeper is the server-side TTL enforcement: bookings that never
// settled (abandoned checkout, client gone) give their capacity back,
// and lapsed unbound reservation tokens are purged. It runs regardless
// of whether the client ever called the explicit dismissal path.
type ExpirySweeper struct {
	bookings    *repository.BookingRepo
	coordinator *service.Coordinator
	holdTTL     time.Duration
	interval    time.Duration
}

func NewExpirySweeper(bookings *repository.BookingRepo, coordinator *service.Coordinator, holdTTL, interval time.Duration) *ExpirySweeper {
	return &ExpirySweeper{
		bookings:    bookings,
		coordinator: coordinator,
		holdTTL:     holdTTL,
		interval:    interval,
	}
}

func (w *ExpirySweeper) Run(ctx context.Context) {
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			w.Sweep(ctx)
		}
	}
}

func (w *ExpirySweeper) Sweep(ctx context.Context) {
	now := time.Now().UTC()
	stale, err := w.bookings.StaleHolds(ctx, now.Add(-w.holdTTL))
	if err != nil {
		log.Printf("[sweeper] list stale holds: %v", err)
		return
	}
	for i := range stale {
		b := &stale[i]
		if _, err := w.coordinator.ReleaseExpiredHold(ctx, b); err != nil {
			log.Printf("[sweeper] release %s: %v", b.ID, err)
			continue
		}
		log.Printf("[sweeper] released expired hold booking=%s slots=%d", b.ID, b.TotalSlots)
	}
	if n, err := w.bookings.PurgeExpiredKeys(ctx, now); err != nil {
		log.Printf("[sweeper] purge keys: %v", err)
	} else if n > 0 {
		log.Printf("[sweeper] purged %d expired reservation tokens", n)
	}
}
