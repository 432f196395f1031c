package models

import (
	"time"
)

// Attendance statuses. Cancelled records are kept as soft state so a
// re-RSVP is an idempotent re-entry rather than a fresh row.
const (
	StatusConfirmed = "confirmed"
	StatusWaitlist  = "waitlist"
	StatusCancelled = "cancelled"
)

type Attendance struct {
	ID       string    `json:"id"`
	EventID  string    `json:"event_id"`
	UserID   string    `json:"user_id"`
	Status   string    `json:"status"` // confirmed, waitlist, cancelled
	JoinedAt time.Time `json:"joined_at"`
	Note     string    `json:"note,omitempty"`
}

// Active reports whether the record currently holds a slot or a waitlist
// place. At most one active record may exist per (event, user) pair.
func (a *Attendance) Active() bool {
	return a != nil && (a.Status == StatusConfirmed || a.Status == StatusWaitlist)
}

// ValidTransition reports whether an attendance record may move between the
// two statuses. "" stands for no record yet. cancelled -> waitlist never
// happens directly; a cancelled user re-enters through a fresh RSVP that the
// arbiter re-evaluates.
func ValidTransition(from, to string) bool {
	switch from {
	case "":
		return to == StatusConfirmed || to == StatusWaitlist
	case StatusConfirmed, StatusWaitlist:
		return to == StatusCancelled || to == StatusConfirmed || to == StatusWaitlist
	case StatusCancelled:
		return to == StatusConfirmed || to == StatusWaitlist
	}
	return false
}
