package models

import "time"

// Member represents a registered participant.
type Member struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	CreatedAt time.Time `json:"created_at"`
}

// FullName returns "First Last", or the email when either part is missing.
func (m Member) FullName() string {
	if m.FirstName != "" && m.LastName != "" {
		return m.FirstName + " " + m.LastName
	}
	return m.Email
}
