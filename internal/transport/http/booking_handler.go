package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/you/matchday-booking/internal/domain"
	"github.com/you/matchday-booking/internal/repository"
	"github.com/you/matchday-booking/internal/service"
)

type BookingHandler struct {
	matches     *repository.MatchRepo
	bookings    *repository.BookingRepo
	pricing     *service.Pricing
	coordinator *service.Coordinator
	tokenTTL    time.Duration
}

func NewBookingHandler(
	matches *repository.MatchRepo,
	bookings *repository.BookingRepo,
	pricing *service.Pricing,
	coordinator *service.Coordinator,
	tokenTTL time.Duration,
) *BookingHandler {
	return &BookingHandler{
		matches:     matches,
		bookings:    bookings,
		pricing:     pricing,
		coordinator: coordinator,
		tokenTTL:    tokenTTL,
	}
}

// POST /v1/matches/:id/reservation-token
func (h *BookingHandler) IssueToken(c *gin.Context) {
	matchID := c.Param("id")
	if _, err := h.matches.ByID(c, matchID); err != nil {
		writeError(c, err)
		return
	}
	k, err := h.bookings.IssueKey(c, matchID, c.GetString("sub"), h.tokenTTL)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"key": k.Key, "expires_at": k.ExpiresAt})
}

// GET /v1/matches/:id/availability
func (h *BookingHandler) Availability(c *gin.Context) {
	snap, err := h.matches.Snapshot(c, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// GET /v1/matches/:id/quote?slots=3
func (h *BookingHandler) Quote(c *gin.Context) {
	slots, _ := strconv.Atoi(c.DefaultQuery("slots", "1"))
	pool := domain.Pool(c.DefaultQuery("pool", string(domain.PoolRegular)))
	amount, err := h.pricing.Quote(c, c.Param("id"), pool, slots)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"final_price": amount, "num_slots": slots})
}

// POST /v1/promos/validate
func (h *BookingHandler) ValidatePromo(c *gin.Context) {
	var in struct {
		Code    string `json:"code" binding:"required"`
		Amount  int64  `json:"amount" binding:"required"`
		MatchID string `json:"match_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := h.pricing.ApplyPromo(c, in.Code, in.Amount, in.MatchID, c.GetString("sub"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// POST /v1/matches/:id/verify-slots
func (h *BookingHandler) VerifySlots(c *gin.Context) {
	var in struct {
		Phones []string `json:"phones" binding:"required"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	normalized := make([]string, 0, len(in.Phones))
	for _, p := range in.Phones {
		normalized = append(normalized, service.NormalizePhone(p))
	}
	conflicts, err := h.coordinator.VerifySlots(c, c.Param("id"), normalized)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"is_valid": len(conflicts) == 0, "conflicts": conflicts})
}

type participantBody struct {
	Mode      string `json:"mode" binding:"required"` // existing|new
	UserID    string `json:"user_id"`
	Name      string `json:"name"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
	TeamName  string `json:"team_name"`
}

type createBookingBody struct {
	MatchID        string            `json:"match_id" binding:"required"`
	BookingType    string            `json:"booking_type" binding:"required"` // REGULAR|WAITLIST
	TotalSlots     int               `json:"total_slots" binding:"required"`
	RequesterPlays bool              `json:"requester_plays"`
	RequesterTeam  string            `json:"requester_team"`
	Participants   []participantBody `json:"participants"`
	PromoCode      string            `json:"promo_code"`
	IdempotencyKey string            `json:"idempotency_key" binding:"required"`
}

func (b createBookingBody) toRequest(who domain.Requester) *domain.BookingRequest {
	req := &domain.BookingRequest{
		MatchID:        b.MatchID,
		Requester:      who,
		BookingType:    domain.Pool(b.BookingType),
		TotalSlots:     b.TotalSlots,
		RequesterPlays: b.RequesterPlays,
		RequesterTeam:  b.RequesterTeam,
		PromoCode:      b.PromoCode,
		IdempotencyKey: b.IdempotencyKey,
	}
	for _, p := range b.Participants {
		if p.Mode == "existing" {
			req.Participants = append(req.Participants, domain.ExistingPlayer{
				UserID:   p.UserID,
				Name:     p.Name,
				Phone:    p.Phone,
				TeamName: p.TeamName,
			})
		} else {
			req.Participants = append(req.Participants, domain.NewPlayer{
				FirstName: p.FirstName,
				LastName:  p.LastName,
				Phone:     p.Phone,
				TeamName:  p.TeamName,
			})
		}
	}
	return req
}

// POST /v1/bookings
func (h *BookingHandler) Create(c *gin.Context) {
	var body createBookingBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	out, err := h.coordinator.Reserve(c, body.toRequest(requester(c)))
	if err != nil {
		writeError(c, err)
		return
	}
	status := http.StatusCreated
	if out.Replayed {
		status = http.StatusOK
	}
	resp := gin.H{
		"booking":           out.Booking,
		"booking_reference": out.Booking.BookingReference,
		"replayed":          out.Replayed,
	}
	if out.Order != nil {
		resp["order"] = out.Order
	}
	if out.Waitlist != nil {
		resp["waitlist_entry"] = out.Waitlist
	}
	c.JSON(status, resp)
}

// GET /v1/bookings/:id
func (h *BookingHandler) Get(c *gin.Context) {
	b, err := h.bookings.ByID(c, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}
