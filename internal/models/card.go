package models

import "time"

// CardStatus is the lifecycle state of a session card.
type CardStatus string

const (
	// CardActive cards can be linked and charged.
	CardActive CardStatus = "active"
	// CardCompleted cards have every session used.
	CardCompleted CardStatus = "completed"
	// CardExpired cards were closed before being used up.
	CardExpired CardStatus = "expired"
)

// Valid reports whether s is a known status.
func (s CardStatus) Valid() bool {
	switch s {
	case CardActive, CardCompleted, CardExpired:
		return true
	}
	return false
}

// SessionCard represents a prepaid bundle of sessions owned by a member.
type SessionCard struct {
	ID            int64      `json:"id"`
	MemberID      int64      `json:"member_id"`
	CardType      string     `json:"card_type"`
	TotalSessions int        `json:"total_sessions"`
	SessionsUsed  int        `json:"sessions_used"`
	Status        CardStatus `json:"status"`
	IsTrial       bool       `json:"is_trial"`
	PurchasedDate time.Time  `json:"purchased_date"`
	ExpiryDate    *time.Time `json:"expiry_date,omitempty"`
	Notes         string     `json:"notes,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// SessionsRemaining returns total minus used, never below zero.
func (c SessionCard) SessionsRemaining() int {
	if c.SessionsUsed >= c.TotalSessions {
		return 0
	}
	return c.TotalSessions - c.SessionsUsed
}

// Chargeable reports whether one more session can be debited.
func (c SessionCard) Chargeable() bool {
	return c.Status == CardActive && c.SessionsRemaining() > 0
}

// Use debits one session and completes the card when it runs out.
// It returns false and leaves the card untouched when it is not chargeable.
func (c *SessionCard) Use() bool {
	if !c.Chargeable() {
		return false
	}
	c.SessionsUsed++
	if c.SessionsUsed >= c.TotalSessions {
		c.Status = CardCompleted
	}
	return true
}

// Label is the card type, prefixed for trial cards.
func (c SessionCard) Label() string {
	if c.IsTrial {
		return "trial " + c.CardType
	}
	return c.CardType
}
