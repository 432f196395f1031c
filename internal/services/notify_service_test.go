package services

import (
	"testing"

	"event-sphere/models"

	"github.com/stretchr/testify/assert"
)

func TestRecipientFor(t *testing.T) {
	tests := []struct {
		name          string
		change        models.AttendanceChange
		wantRecipient string
		wantPref      string
	}{
		{
			name:          "confirmation goes to the creator",
			change:        models.AttendanceChange{EventID: "event-1", UserID: "user-a", Kind: models.KindRSVPConfirmation},
			wantRecipient: "creator-1",
			wantPref:      "notify_rsvp_updates",
		},
		{
			name:          "waitlist entry goes to the creator",
			change:        models.AttendanceChange{EventID: "event-1", UserID: "user-a", Kind: models.KindRSVPWaitlist},
			wantRecipient: "creator-1",
			wantPref:      "notify_rsvp_updates",
		},
		{
			name:          "cancellation goes to the creator",
			change:        models.AttendanceChange{EventID: "event-1", UserID: "user-a", Kind: models.KindRSVPCancelled},
			wantRecipient: "creator-1",
			wantPref:      "notify_rsvp_updates",
		},
		{
			name:          "promotion goes to the promoted user",
			change:        models.AttendanceChange{EventID: "event-1", UserID: "user-b", Kind: models.KindWaitlistPromoted},
			wantRecipient: "user-b",
			wantPref:      "notify_event_updates",
		},
		{
			name:          "unknown kind has no recipient",
			change:        models.AttendanceChange{EventID: "event-1", UserID: "user-a", Kind: "something_else"},
			wantRecipient: "",
			wantPref:      "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recipient, pref := recipientFor(tt.change, "creator-1")
			assert.Equal(t, tt.wantRecipient, recipient)
			assert.Equal(t, tt.wantPref, pref)
		})
	}
}

func TestComposeNotification(t *testing.T) {
	tests := []struct {
		kind      string
		wantTitle string
	}{
		{models.KindRSVPConfirmation, "New RSVP"},
		{models.KindRSVPWaitlist, "New waitlist entry"},
		{models.KindRSVPCancelled, "RSVP cancelled"},
		{models.KindWaitlistPromoted, "You're in!"},
		{"unknown", "Event update"},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			title, message := composeNotification(tt.kind, "Go Meetup")
			assert.Equal(t, tt.wantTitle, title)
			assert.Contains(t, message, "Go Meetup")
		})
	}
}

func TestNotifyService_EnqueueDropsWhenQueueFull(t *testing.T) {
	// No Start(): nothing drains the queue, so the third change overflows.
	service := NewNotifyService(nil, 1, 2, nil)

	for i := 0; i < 3; i++ {
		service.Enqueue(models.AttendanceChange{
			EventID: "event-1",
			UserID:  "user-a",
			Kind:    models.KindRSVPConfirmation,
		})
	}

	assert.Len(t, service.queue, 2)
}

func TestNotifyService_WorkersFlooredToOne(t *testing.T) {
	service := NewNotifyService(nil, 0, 8, nil)

	assert.Equal(t, 1, service.workers)
}
