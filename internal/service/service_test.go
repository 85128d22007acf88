package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/you/matchday-booking/internal/domain"
	"github.com/you/matchday-booking/internal/payment"
	"github.com/you/matchday-booking/internal/repository"
)

// fixture wires the full service stack onto an in-memory database with a
// fake gateway and a recording publisher.
type fixture struct {
	matches   *repository.MatchRepo
	bookings  *repository.BookingRepo
	waitlists *repository.WaitlistRepo
	promos    *repository.PromoRepo
	pricing   *Pricing
	gateway   *fakeGateway
	pub       *memPublisher
	coord     *Coordinator
	cancel    *Cancellation
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// a single connection serializes concurrent writers on sqlite
	sqlDB.SetMaxOpenConns(1)

	f := &fixture{
		matches:   repository.NewMatchRepo(db),
		bookings:  repository.NewBookingRepo(db),
		waitlists: repository.NewWaitlistRepo(db),
		promos:    repository.NewPromoRepo(db),
		gateway:   &fakeGateway{},
		pub:       &memPublisher{},
	}
	require.NoError(t, f.matches.Migrate())
	require.NoError(t, f.bookings.Migrate())
	require.NoError(t, f.waitlists.Migrate())
	require.NoError(t, f.promos.Migrate())

	f.pricing = NewPricing(f.matches, f.promos)
	f.coord = NewCoordinator(f.matches, f.bookings, f.waitlists, NewValidator(), f.pricing, f.gateway, f.pub, "INR")
	f.cancel = NewCancellation(f.matches, f.bookings, f.waitlists, f.pub)
	return f
}

func (f *fixture) seedMatch(t *testing.T, teamA, teamB, waitlist int, start time.Time) *domain.Match {
	t.Helper()
	m := &domain.Match{
		Title:                  "Saturday Sevens",
		Venue:                  "Turf One",
		StartTime:              start,
		EndTime:                start.Add(2 * time.Hour),
		PlayerCapacity:         teamA + teamB,
		ListPrice:              600,
		OfferPrice:             500,
		TeamAName:              "Red",
		TeamBName:              "Blue",
		AvailableRegularSlots:  teamA + teamB,
		AvailableWaitlistSlots: waitlist,
		AvailableTeamASlots:    teamA,
		AvailableTeamBSlots:    teamB,
	}
	require.NoError(t, f.matches.Create(context.Background(), m))
	return m
}

func (f *fixture) issueKey(t *testing.T, matchID, userID string) string {
	t.Helper()
	k, err := f.bookings.IssueKey(context.Background(), matchID, userID, 15*time.Minute)
	require.NoError(t, err)
	return k.Key
}

func (f *fixture) snapshot(t *testing.T, matchID string) domain.SlotSnapshot {
	t.Helper()
	snap, err := f.matches.Snapshot(context.Background(), matchID)
	require.NoError(t, err)
	return snap
}

// regularRequest is the canonical two-slot request: the requester on Red
// plus one new player on Blue.
func regularRequest(matchID, key string) *domain.BookingRequest {
	return &domain.BookingRequest{
		MatchID: matchID,
		Requester: domain.Requester{
			ID: "u1", Name: "Asha", Phone: "9876543210", Email: "asha@example.com",
		},
		BookingType:    domain.PoolRegular,
		TotalSlots:     2,
		RequesterPlays: true,
		RequesterTeam:  "Red",
		Participants: []domain.Participant{
			domain.NewPlayer{FirstName: "Vik", Phone: "9876543211", TeamName: "Blue"},
		},
		IdempotencyKey: key,
	}
}

func fakeSignature(orderID, paymentID string) string {
	return "sig:" + orderID + "|" + paymentID
}

type fakeGateway struct {
	mu       sync.Mutex
	orders   int
	failNext bool
}

func (g *fakeGateway) CreateOrder(_ context.Context, in payment.CreateOrderInput) (*payment.Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failNext {
		g.failNext = false
		return nil, fmt.Errorf("gateway unavailable")
	}
	g.orders++
	return &payment.Order{
		ID:       fmt.Sprintf("order_%03d", g.orders),
		Amount:   in.Amount * 100,
		Currency: in.Currency,
	}, nil
}

func (g *fakeGateway) VerifyPaymentSignature(cb payment.Callback) error {
	if cb.Signature != fakeSignature(cb.OrderID, cb.PaymentID) {
		return fmt.Errorf("%w: signature mismatch", domain.ErrPaymentVerification)
	}
	return nil
}

func (g *fakeGateway) VerifyWebhookSignature(_ []byte, sig string) error {
	if sig != "whsig" {
		return fmt.Errorf("%w: webhook signature mismatch", domain.ErrPaymentVerification)
	}
	return nil
}

func (g *fakeGateway) orderCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.orders
}

type publishedEvent struct {
	Key     string
	Payload any
}

type memPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *memPublisher) PublishJSON(_ context.Context, key string, v any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{Key: key, Payload: v})
	return nil
}

func (p *memPublisher) keys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Key)
	}
	return out
}
