package service

import (
	"regexp"
	"strings"

	"github.com/you/matchday-booking/internal/domain"
)

var mobilePattern = regexp.MustCompile(`^[6-9]\d{9}$`)

// NormalizePhone reduces a raw phone input to the 10-digit national
// number: non-digits are stripped, a leading "91" country code on a
// 12-digit number is removed, and longer numbers with no recognized
// prefix keep their last 10 digits. Anything else passes through so the
// pattern check can reject it.
func NormalizePhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	switch {
	case len(digits) == 10:
		return digits
	case len(digits) == 12 && strings.HasPrefix(digits, "91"):
		return digits[2:]
	case len(digits) > 10:
		return digits[len(digits)-10:]
	default:
		return digits
	}
}

// SlotIntent is one validated, ordered slot of a booking attempt.
type SlotIntent struct {
	SlotNumber int
	PlayerName string
	UserID     string
	Phone      string // normalized
	TeamName   string
}

// Validator normalizes and checks a BookingRequest before any
// reservation is attempted. It returns the ordered slot intents
// (requester first when they play) or a ValidationError. Availability
// is not checked here: every availability outcome, including the
// too-many-slots case, goes through the coordinator's decision table so
// that pool switching stays reachable.
type Validator struct{}

func NewValidator() *Validator { return &Validator{} }

func (v *Validator) Validate(req *domain.BookingRequest) ([]SlotIntent, error) {
	if req.MatchID == "" {
		return nil, domain.Validationf("missing match id")
	}
	if req.BookingType != domain.PoolRegular && req.BookingType != domain.PoolWaitlist {
		return nil, domain.Validationf("unknown booking type %q", req.BookingType)
	}

	var intents []SlotIntent
	if req.RequesterPlays {
		if req.BookingType == domain.PoolRegular && req.RequesterTeam == "" {
			return nil, domain.Validationf("requester must pick a team")
		}
		intents = append(intents, SlotIntent{
			PlayerName: req.Requester.Name,
			UserID:     req.Requester.ID,
			Phone:      NormalizePhone(req.Requester.Phone),
			TeamName:   req.RequesterTeam,
		})
	}

	for i, p := range req.Participants {
		switch pl := p.(type) {
		case domain.ExistingPlayer:
			if pl.UserID == "" {
				return nil, domain.Validationf("participant %d: missing user id", i+1)
			}
			intents = append(intents, SlotIntent{
				PlayerName: pl.Name,
				UserID:     pl.UserID,
				Phone:      NormalizePhone(pl.Phone),
				TeamName:   pl.TeamName,
			})
		case domain.NewPlayer:
			if pl.Phone == "" {
				return nil, domain.Validationf("participant %d: missing phone", i+1)
			}
			phone := NormalizePhone(pl.Phone)
			if !mobilePattern.MatchString(phone) {
				return nil, domain.Validationf("participant %d: invalid phone %q", i+1, phone)
			}
			if pl.FirstName == "" {
				return nil, domain.Validationf("participant %d: missing name", i+1)
			}
			intents = append(intents, SlotIntent{
				PlayerName: pl.DisplayName(),
				Phone:      phone,
				TeamName:   pl.TeamName,
			})
		default:
			return nil, domain.Validationf("participant %d: unknown participant kind", i+1)
		}
	}

	if req.TotalSlots != len(intents) {
		return nil, domain.Validationf("total slots %d does not match %d participants", req.TotalSlots, len(intents))
	}
	if req.TotalSlots < 1 {
		return nil, domain.Validationf("at least one slot required")
	}

	seenPhone := make(map[string]bool, len(intents))
	seenUser := make(map[string]bool, len(intents))
	for n := range intents {
		intents[n].SlotNumber = n + 1
		it := intents[n]
		if it.Phone != "" {
			if seenPhone[it.Phone] {
				return nil, domain.Validationf("duplicate phone %s in request", it.Phone)
			}
			seenPhone[it.Phone] = true
		}
		if it.UserID != "" {
			if seenUser[it.UserID] {
				return nil, domain.Validationf("duplicate player %s in request", it.UserID)
			}
			seenUser[it.UserID] = true
		}
		if req.BookingType == domain.PoolRegular && it.TeamName == "" {
			return nil, domain.Validationf("slot %d: team choice required", it.SlotNumber)
		}
	}
	return intents, nil
}
