package models

import (
	"time"
)

// Notification kinds emitted by the RSVP trigger.
const (
	KindRSVPConfirmation = "rsvp_confirmation"
	KindRSVPWaitlist     = "rsvp_waitlist"
	KindRSVPCancelled    = "rsvp_cancelled"
	KindWaitlistPromoted = "waitlist_promoted"
)

type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	EventID   string    `json:"event_id"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}

// AttendanceChange is what the arbiter hands off to the notification
// trigger after a ledger commit. Fire-and-forget: nothing downstream of it
// may affect the committed attendance state.
type AttendanceChange struct {
	EventID string `json:"event_id"`
	UserID  string `json:"user_id"`
	Kind    string `json:"kind"`
}
