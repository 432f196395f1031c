package services

import (
	"fmt"
	"log"
	"net/mail"
	"sync"
	"time"

	"event-sphere/models"
	"event-sphere/monitoring"
	"event-sphere/utils"

	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/mailer"
)

// NotifyService turns committed attendance changes into in-app notification
// records and best-effort emails. Changes are handed off through a bounded
// queue after the ledger commit, so a slow or failing mail relay never adds
// latency to an RSVP response. A full queue drops the change.
type NotifyService struct {
	app     core.App
	monitor *monitoring.Monitor
	breaker *utils.CircuitBreaker

	queue    chan models.AttendanceChange
	workers  int
	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewNotifyService(app core.App, workers, queueSize int, monitor *monitoring.Monitor) *NotifyService {
	if workers < 1 {
		workers = 1
	}
	return &NotifyService{
		app:      app,
		monitor:  monitor,
		breaker:  utils.NewCircuitBreaker("mailer"),
		queue:    make(chan models.AttendanceChange, queueSize),
		workers:  workers,
		stopChan: make(chan struct{}),
	}
}

// Start launches the delivery workers.
func (s *NotifyService) Start() {
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}
	log.Printf("Started %d notification workers", s.workers)
}

// Enqueue hands off a change without blocking. Dropping on overflow is
// deliberate: notifications are a side effect, not part of the durability
// guarantee.
func (s *NotifyService) Enqueue(change models.AttendanceChange) {
	select {
	case s.queue <- change:
	default:
		log.Printf("Notification queue full, dropping %s for event %s", change.Kind, change.EventID)
		s.track(change.Kind, "dropped")
	}
}

// Shutdown stops the workers and waits for in-flight deliveries.
func (s *NotifyService) Shutdown() {
	close(s.stopChan)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("Notification workers stopped")
	case <-time.After(10 * time.Second):
		log.Println("Timeout waiting for notification workers to stop")
	}
}

func (s *NotifyService) worker() {
	defer s.wg.Done()

	for {
		select {
		case change := <-s.queue:
			s.process(change)
		case <-s.stopChan:
			return
		}
	}
}

func (s *NotifyService) process(change models.AttendanceChange) {
	event, err := s.app.FindRecordById("events", change.EventID)
	if err != nil {
		log.Printf("Notification skipped, event %s not found: %v", change.EventID, err)
		s.track(change.Kind, "failed")
		return
	}

	recipientID, pref := recipientFor(change, event.GetString("creator"))
	if recipientID == "" {
		s.track(change.Kind, "skipped")
		return
	}

	user, err := s.app.FindRecordById("users", recipientID)
	if err != nil {
		log.Printf("Notification skipped, user %s not found: %v", recipientID, err)
		s.track(change.Kind, "failed")
		return
	}

	if !user.GetBool(pref) {
		s.track(change.Kind, "skipped")
		return
	}

	title, message := composeNotification(change.Kind, event.GetString("name"))

	if err := s.saveNotification(user.Id, change, title, message); err != nil {
		log.Printf("Failed to save notification for user %s: %v", user.Id, err)
		s.track(change.Kind, "failed")
		return
	}

	if err := s.sendEmail(user.Email(), title, message); err != nil {
		// Email failure is invisible to the RSVP caller; the in-app record
		// already exists.
		log.Printf("Failed to email %s notification to user %s: %v", change.Kind, user.Id, err)
		s.track(change.Kind, "email_failed")
		return
	}

	s.track(change.Kind, "sent")
}

func (s *NotifyService) saveNotification(userID string, change models.AttendanceChange, title, message string) error {
	collection, err := s.app.FindCollectionByNameOrId("notifications")
	if err != nil {
		return err
	}

	record := core.NewRecord(collection)
	record.Set("user", userID)
	record.Set("type", change.Kind)
	record.Set("title", title)
	record.Set("message", message)
	record.Set("event", change.EventID)
	record.Set("is_read", false)

	return s.app.Save(record)
}

func (s *NotifyService) sendEmail(address, subject, body string) error {
	if address == "" {
		return nil
	}

	settings := s.app.Settings()
	message := &mailer.Message{
		From: mail.Address{
			Name:    settings.Meta.SenderName,
			Address: settings.Meta.SenderAddress,
		},
		To:      []mail.Address{{Address: address}},
		Subject: subject,
		HTML:    fmt.Sprintf("<p>%s</p>", body),
	}

	return s.breaker.Do(func() error {
		return s.app.NewMailClient().Send(message)
	})
}

func (s *NotifyService) track(kind, result string) {
	if s.monitor != nil {
		s.monitor.TrackNotification(kind, result)
	}
}

// recipientFor maps a change to who should hear about it and which user
// preference gates it. RSVP traffic goes to the event creator; a promotion
// goes to the promoted user.
func recipientFor(change models.AttendanceChange, creatorID string) (recipientID, pref string) {
	switch change.Kind {
	case models.KindRSVPConfirmation, models.KindRSVPWaitlist, models.KindRSVPCancelled:
		return creatorID, "notify_rsvp_updates"
	case models.KindWaitlistPromoted:
		return change.UserID, "notify_event_updates"
	}
	return "", ""
}

func composeNotification(kind, eventName string) (title, message string) {
	switch kind {
	case models.KindRSVPConfirmation:
		return "New RSVP", fmt.Sprintf("Someone confirmed attendance for %q.", eventName)
	case models.KindRSVPWaitlist:
		return "New waitlist entry", fmt.Sprintf("Someone joined the waitlist for %q.", eventName)
	case models.KindRSVPCancelled:
		return "RSVP cancelled", fmt.Sprintf("An attendee cancelled their RSVP for %q.", eventName)
	case models.KindWaitlistPromoted:
		return "You're in!", fmt.Sprintf("A spot opened up and you are now confirmed for %q.", eventName)
	}
	return "Event update", fmt.Sprintf("There was an update for %q.", eventName)
}
