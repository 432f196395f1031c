package services

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"event-sphere/internal/ledger"
	"event-sphere/internal/realtime"
	"event-sphere/internal/status"
	"event-sphere/models"
	"event-sphere/monitoring"
)

// AttendanceStore is the durable ledger consumed by the arbiter.
// *ledger.Store satisfies it.
type AttendanceStore interface {
	Event(eventID string) (*models.Event, error)
	Attendance(eventID, userID string) (*models.Attendance, error)
	ConfirmedCount(eventID string) (int, error)
	UpsertAttendance(eventID, userID, status string) (*models.Attendance, error)
	CancelAttendance(eventID, userID string) (*models.Attendance, error)
	OldestWaitlisted(eventID string) (*models.Attendance, error)
	ListAttendees(eventID string) ([]*models.Attendance, error)
}

// SlotCounter is the per-event atomic capacity gate. *ledger.Counter
// satisfies it.
type SlotCounter interface {
	Reserve(ctx context.Context, eventID string, capacity int) (bool, error)
	Release(ctx context.Context, eventID string) error
	Seed(ctx context.Context, eventID string, count int) error
	Invalidate(ctx context.Context, eventID string) error
}

// Notifier receives attendance changes after the ledger commit. Enqueue
// must never block the caller.
type Notifier interface {
	Enqueue(change models.AttendanceChange)
}

// RSVPService is the capacity arbiter: it decides confirmed vs waitlist for
// each RSVP and releases slots on cancellation. Capacity overflow is never
// an error for the caller; overflow requests land on the waitlist.
type RSVPService struct {
	store       AttendanceStore
	counter     SlotCounter
	broadcaster realtime.Broadcaster
	notifier    Notifier
	monitor     *monitoring.Monitor

	// dirtyCounters holds event ids whose Redis counter was bypassed by a
	// degraded admit and must be rebuilt from the ledger once Redis is back.
	dirtyCounters sync.Map

	// AutoPromote moves the oldest waitlisted user into a freed confirmed
	// slot on cancellation. Off by default: the upstream behavior frees the
	// slot and leaves waitlisted users to re-request.
	AutoPromote bool
}

func NewRSVPService(store AttendanceStore, counter SlotCounter, broadcaster realtime.Broadcaster, notifier Notifier, monitor *monitoring.Monitor, autoPromote bool) *RSVPService {
	return &RSVPService{
		store:       store,
		counter:     counter,
		broadcaster: broadcaster,
		notifier:    notifier,
		monitor:     monitor,
		AutoPromote: autoPromote,
	}
}

// RequestAttendance admits the user as confirmed while capacity allows,
// otherwise waitlists them. A confirmed user gets their status back without
// taking another slot. A waitlisted user's re-request retries admission, so
// a freed slot goes to whichever waitlisted user asks next.
func (s *RSVPService) RequestAttendance(ctx context.Context, eventID, userID string) (string, error) {
	if userID == "" {
		return "", status.ErrNotAuthenticated
	}

	started := time.Now()
	defer func() {
		if s.monitor != nil {
			s.monitor.TrackRSVPDuration(time.Since(started))
		}
	}()

	event, err := s.store.Event(eventID)
	if err != nil {
		return "", err
	}

	existing, err := s.store.Attendance(eventID, userID)
	if err != nil {
		return "", err
	}
	if existing != nil && existing.Status == models.StatusConfirmed {
		s.track("rsvp", "noop")
		return existing.Status, nil
	}

	admitted, err := s.reserveSlot(ctx, eventID, event.Capacity)
	if err != nil {
		return "", err
	}

	attStatus := models.StatusWaitlist
	if admitted {
		attStatus = models.StatusConfirmed
	}

	// A waitlisted re-request is the reactive promotion path: it takes a
	// freed slot when one exists and is a no-op otherwise.
	if existing.Active() && !admitted {
		s.track("rsvp", "noop")
		return existing.Status, nil
	}

	if _, err := s.store.UpsertAttendance(eventID, userID, attStatus); err != nil {
		// The ledger write is the commit point. Roll the reservation back so
		// the counter cannot drift from the store.
		if admitted {
			if relErr := s.counter.Release(ctx, eventID); relErr != nil {
				log.Printf("Failed to release slot for event %s after write failure: %v", eventID, relErr)
			}
		}
		s.track("rsvp", "error")
		return "", err
	}

	s.track("rsvp", attStatus)
	s.afterCommit(eventID, userID, changeKind(attStatus))

	return attStatus, nil
}

// CancelAttendance marks the user's record cancelled and frees their slot if
// it was confirmed. Idempotent even when no prior RSVP exists. Returns the
// promoted user's id when auto-promotion filled the freed slot.
func (s *RSVPService) CancelAttendance(ctx context.Context, eventID, userID string) (string, error) {
	if userID == "" {
		return "", status.ErrNotAuthenticated
	}

	event, err := s.store.Event(eventID)
	if err != nil {
		return "", err
	}

	prior, err := s.store.CancelAttendance(eventID, userID)
	if err != nil {
		return "", err
	}
	if prior == nil || prior.Status == models.StatusCancelled {
		s.track("cancel", "noop")
		return "", nil
	}

	if prior.Status == models.StatusConfirmed {
		if err := s.counter.Release(ctx, eventID); err != nil {
			log.Printf("Failed to release slot for event %s: %v", eventID, err)
			s.dirtyCounters.Store(eventID, struct{}{})
		}
	}

	s.track("cancel", "success")
	s.afterCommit(eventID, userID, models.KindRSVPCancelled)

	if s.AutoPromote && prior.Status == models.StatusConfirmed {
		return s.promoteNext(ctx, event), nil
	}

	return "", nil
}

// AttendanceStatus returns the stored record for the pair, nil when the
// user never RSVPed.
func (s *RSVPService) AttendanceStatus(eventID, userID string) (*models.Attendance, error) {
	if userID == "" {
		return nil, status.ErrNotAuthenticated
	}
	if _, err := s.store.Event(eventID); err != nil {
		return nil, err
	}
	return s.store.Attendance(eventID, userID)
}

// ListAttendees returns active attendees plus the confirmed count, the
// state a reconnecting realtime client re-fetches.
func (s *RSVPService) ListAttendees(eventID string) ([]*models.Attendance, int, error) {
	if _, err := s.store.Event(eventID); err != nil {
		return nil, 0, err
	}

	attendees, err := s.store.ListAttendees(eventID)
	if err != nil {
		return nil, 0, err
	}

	confirmed := 0
	for _, a := range attendees {
		if a.Status == models.StatusConfirmed {
			confirmed++
		}
	}
	return attendees, confirmed, nil
}

// reserveSlot takes a confirmed slot through the atomic Redis gate, seeding
// the counter from the durable count on a miss. When Redis is unavailable
// it degrades to the plain read-then-write capacity check, which keeps
// requests flowing but reopens the last-slot race between concurrent
// callers. A degraded admit bypasses the counter, so the cached value is
// dropped (or flagged for a later drop when Redis is still down) to force a
// reseed from the ledger instead of serving a stale undercount.
func (s *RSVPService) reserveSlot(ctx context.Context, eventID string, capacity int) (bool, error) {
	if _, dirty := s.dirtyCounters.Load(eventID); dirty {
		if err := s.counter.Invalidate(ctx, eventID); err == nil {
			s.dirtyCounters.Delete(eventID)
		}
	}

	admitted, err := s.counter.Reserve(ctx, eventID, capacity)
	if err == nil {
		return admitted, nil
	}

	if errors.Is(err, ledger.ErrCounterMissing) {
		count, countErr := s.store.ConfirmedCount(eventID)
		if countErr != nil {
			return false, countErr
		}
		if seedErr := s.counter.Seed(ctx, eventID, count); seedErr != nil {
			log.Printf("Failed to seed counter for event %s: %v", eventID, seedErr)
			if count < capacity {
				s.dirtyCounters.Store(eventID, struct{}{})
				return true, nil
			}
			return false, nil
		}
		admitted, err = s.counter.Reserve(ctx, eventID, capacity)
		if err == nil {
			return admitted, nil
		}
	}

	log.Printf("Slot counter unavailable for event %s, falling back to ledger count: %v", eventID, err)
	count, countErr := s.store.ConfirmedCount(eventID)
	if countErr != nil {
		return false, countErr
	}
	if count >= capacity {
		return false, nil
	}
	if delErr := s.counter.Invalidate(ctx, eventID); delErr != nil {
		s.dirtyCounters.Store(eventID, struct{}{})
	}
	return true, nil
}

// promoteNext fills a freed slot with the oldest waitlisted user. Promotion
// failures are logged, never surfaced: the cancellation already committed.
func (s *RSVPService) promoteNext(ctx context.Context, event *models.Event) string {
	next, err := s.store.OldestWaitlisted(event.ID)
	if err != nil {
		log.Printf("Failed to look up waitlist for event %s: %v", event.ID, err)
		return ""
	}
	if next == nil {
		return ""
	}

	admitted, err := s.reserveSlot(ctx, event.ID, event.Capacity)
	if err != nil || !admitted {
		return ""
	}

	if _, err := s.store.UpsertAttendance(event.ID, next.UserID, models.StatusConfirmed); err != nil {
		log.Printf("Failed to promote user %s for event %s: %v", next.UserID, event.ID, err)
		if relErr := s.counter.Release(ctx, event.ID); relErr != nil {
			log.Printf("Failed to release slot for event %s after promote failure: %v", event.ID, relErr)
		}
		return ""
	}

	s.track("promote", "success")
	s.afterCommit(event.ID, next.UserID, models.KindWaitlistPromoted)

	return next.UserID
}

// afterCommit runs the post-commit side effects: room fan-out and the
// best-effort notification hand-off. Neither can fail the request.
func (s *RSVPService) afterCommit(eventID, userID, kind string) {
	if s.broadcaster != nil {
		s.broadcaster.Publish(eventID, realtime.Message{
			Type:    "rsvpUpdated",
			EventID: eventID,
		})
	}
	if s.notifier != nil {
		s.notifier.Enqueue(models.AttendanceChange{
			EventID: eventID,
			UserID:  userID,
			Kind:    kind,
		})
	}
}

func (s *RSVPService) track(operation, result string) {
	if s.monitor != nil {
		s.monitor.TrackRSVPOperation(operation, result)
	}
}

func changeKind(attStatus string) string {
	if attStatus == models.StatusConfirmed {
		return models.KindRSVPConfirmation
	}
	return models.KindRSVPWaitlist
}
