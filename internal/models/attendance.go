package models

import "time"

// SessionAttendance records a member's presence at one class.
type SessionAttendance struct {
	ID              int64     `json:"id"`
	MemberID        int64     `json:"member_id"`
	SessionCardID   *int64    `json:"session_card_id,omitempty"`
	CardSessionUsed bool      `json:"card_session_used"`
	SessionDate     time.Time `json:"session_date"`
	Title           string    `json:"title"`
}

// Linked reports whether a card backs this attendance.
func (a SessionAttendance) Linked() bool {
	return a.SessionCardID != nil
}

// AttendanceDetail is an attendance joined with its member and card.
type AttendanceDetail struct {
	SessionAttendance
	Member Member       `json:"member"`
	Card   *SessionCard `json:"card,omitempty"`
}
