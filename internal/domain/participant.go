package domain

// Participant is one requested slot occupant. It is a closed variant:
// either a registered player referenced by user id, or a new player
// supplied inline with a phone number.
type Participant interface {
	Team() string
	DisplayName() string
	participant()
}

type ExistingPlayer struct {
	UserID   string
	Name     string // resolved by the caller from the user record
	Phone    string // resolved; used for conflict verification
	TeamName string
}

func (p ExistingPlayer) Team() string        { return p.TeamName }
func (p ExistingPlayer) DisplayName() string { return p.Name }
func (ExistingPlayer) participant()          {}

type NewPlayer struct {
	FirstName string
	LastName  string
	Phone     string
	TeamName  string
}

func (p NewPlayer) Team() string { return p.TeamName }
func (p NewPlayer) DisplayName() string {
	if p.LastName == "" {
		return p.FirstName
	}
	return p.FirstName + " " + p.LastName
}
func (NewPlayer) participant() {}

// Requester is the authenticated identity behind a booking attempt.
type Requester struct {
	ID    string
	Name  string
	Phone string
	Email string
}

// BookingRequest is the transient, not-yet-validated intent for one
// booking attempt. It lives for a single client session.
type BookingRequest struct {
	MatchID        string
	Requester      Requester
	BookingType    Pool
	TotalSlots     int
	RequesterPlays bool   // requester occupies the first slot
	RequesterTeam  string // required when RequesterPlays and type is regular
	Participants   []Participant
	PromoCode      string
	IdempotencyKey string
}
