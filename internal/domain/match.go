package domain

import "time"

// Pool names a subdivision of a match's slot capacity. Team pools are a
// partition of the regular pool, so they are tracked as counters on the
// match row rather than as a separate Pool value.
type Pool string

const (
	PoolRegular  Pool = "REGULAR"
	PoolWaitlist Pool = "WAITLIST"
)

type Match struct {
	ID             string `gorm:"primaryKey"`
	Title          string
	Venue          string
	StartTime      time.Time `gorm:"index"`
	EndTime        time.Time
	PlayerCapacity int
	ListPrice      int64 // display only
	OfferPrice     int64 // authoritative per-slot price at commit time
	TeamAName      string
	TeamBName      string

	// Slot counters. Invariant: AvailableTeamASlots + AvailableTeamBSlots
	// == AvailableRegularSlots. Only the conditional UPDATEs in MatchRepo
	// mutate these.
	AvailableRegularSlots  int
	AvailableWaitlistSlots int
	AvailableTeamASlots    int
	AvailableTeamBSlots    int
	WaitlistedSlots        int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// SlotSnapshot is an advisory availability read. It can be stale the
// moment it is returned; only a reserve call guarantees anything.
type SlotSnapshot struct {
	Regular    int `json:"available_regular_slots"`
	Waitlist   int `json:"available_waitlist_slots"`
	TeamA      int `json:"available_team_a_slots"`
	TeamB      int `json:"available_team_b_slots"`
	Waitlisted int `json:"waitlisted_slots"`
}

func (s SlotSnapshot) For(pool Pool) int {
	if pool == PoolWaitlist {
		return s.Waitlist
	}
	return s.Regular
}
