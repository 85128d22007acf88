package domain

import "time"

type WaitlistStatus string

const (
	WaitlistWaiting  WaitlistStatus = "WAITING"
	WaitlistNotified WaitlistStatus = "NOTIFIED"
	WaitlistPromoted WaitlistStatus = "PROMOTED"
	WaitlistExpired  WaitlistStatus = "EXPIRED"
)

type WaitlistEntry struct {
	ID            string `gorm:"primaryKey"`
	MatchID       string `gorm:"index"`
	UserID        string
	Email         string `gorm:"index"`
	Phone         string `gorm:"index"`
	SlotsRequired int
	Status        WaitlistStatus `gorm:"index"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (e *WaitlistEntry) Active() bool {
	return e.Status == WaitlistWaiting || e.Status == WaitlistNotified
}
