package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"event-sphere/internal/ledger"
	"event-sphere/internal/realtime"
	"event-sphere/internal/status"
	"event-sphere/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore is an in-memory AttendanceStore mirroring the durable ledger
// semantics: soft cancellation, one row per (event, user).
type fakeStore struct {
	events      map[string]*models.Event
	attendances map[string]*models.Attendance
	failUpsert  bool
}

func newFakeStore(events ...*models.Event) *fakeStore {
	s := &fakeStore{
		events:      make(map[string]*models.Event),
		attendances: make(map[string]*models.Attendance),
	}
	for _, e := range events {
		s.events[e.ID] = e
	}
	return s
}

func (s *fakeStore) key(eventID, userID string) string {
	return eventID + "|" + userID
}

func (s *fakeStore) Event(eventID string) (*models.Event, error) {
	event, ok := s.events[eventID]
	if !ok {
		return nil, status.ErrNotFound
	}
	return event, nil
}

func (s *fakeStore) Attendance(eventID, userID string) (*models.Attendance, error) {
	att, ok := s.attendances[s.key(eventID, userID)]
	if !ok {
		return nil, nil
	}
	copied := *att
	return &copied, nil
}

func (s *fakeStore) ConfirmedCount(eventID string) (int, error) {
	count := 0
	for _, att := range s.attendances {
		if att.EventID == eventID && att.Status == models.StatusConfirmed {
			count++
		}
	}
	return count, nil
}

func (s *fakeStore) UpsertAttendance(eventID, userID, attStatus string) (*models.Attendance, error) {
	if s.failUpsert {
		return nil, status.IOError("save attendance", errors.New("disk on fire"))
	}
	if _, ok := s.events[eventID]; !ok {
		return nil, status.ErrNotFound
	}

	key := s.key(eventID, userID)
	att, ok := s.attendances[key]
	if !ok {
		att = &models.Attendance{
			ID:       key,
			EventID:  eventID,
			UserID:   userID,
			JoinedAt: time.Now(),
		}
		s.attendances[key] = att
	} else if att.Status == models.StatusCancelled {
		att.JoinedAt = time.Now()
	}
	att.Status = attStatus

	copied := *att
	return &copied, nil
}

func (s *fakeStore) CancelAttendance(eventID, userID string) (*models.Attendance, error) {
	att, ok := s.attendances[s.key(eventID, userID)]
	if !ok {
		return nil, nil
	}
	prior := *att
	if att.Status != models.StatusCancelled {
		att.Status = models.StatusCancelled
	}
	return &prior, nil
}

func (s *fakeStore) OldestWaitlisted(eventID string) (*models.Attendance, error) {
	var oldest *models.Attendance
	for _, att := range s.attendances {
		if att.EventID != eventID || att.Status != models.StatusWaitlist {
			continue
		}
		if oldest == nil || att.JoinedAt.Before(oldest.JoinedAt) {
			oldest = att
		}
	}
	if oldest == nil {
		return nil, nil
	}
	copied := *oldest
	return &copied, nil
}

func (s *fakeStore) ListAttendees(eventID string) ([]*models.Attendance, error) {
	var out []*models.Attendance
	for _, att := range s.attendances {
		if att.EventID == eventID && att.Status != models.StatusCancelled {
			copied := *att
			out = append(out, &copied)
		}
	}
	return out, nil
}

// fakeCounter mimics the Redis slot counter: unseeded until Seed, atomic
// conditional increment afterwards.
type fakeCounter struct {
	counts        map[string]int
	seeded        map[string]bool
	reserveErr    error
	invalidateErr error
}

func newFakeCounter() *fakeCounter {
	return &fakeCounter{
		counts: make(map[string]int),
		seeded: make(map[string]bool),
	}
}

func (c *fakeCounter) Reserve(_ context.Context, eventID string, capacity int) (bool, error) {
	if c.reserveErr != nil {
		return false, c.reserveErr
	}
	if !c.seeded[eventID] {
		return false, ledger.ErrCounterMissing
	}
	if c.counts[eventID] < capacity {
		c.counts[eventID]++
		return true, nil
	}
	return false, nil
}

func (c *fakeCounter) Release(_ context.Context, eventID string) error {
	if c.counts[eventID] > 0 {
		c.counts[eventID]--
	}
	return nil
}

func (c *fakeCounter) Seed(_ context.Context, eventID string, count int) error {
	if !c.seeded[eventID] {
		c.seeded[eventID] = true
		c.counts[eventID] = count
	}
	return nil
}

func (c *fakeCounter) Invalidate(_ context.Context, eventID string) error {
	if c.invalidateErr != nil {
		return c.invalidateErr
	}
	delete(c.seeded, eventID)
	delete(c.counts, eventID)
	return nil
}

type fakeBroadcaster struct {
	published []realtime.Message
}

func (b *fakeBroadcaster) Publish(eventID string, msg realtime.Message) {
	b.published = append(b.published, msg)
}

type fakeNotifier struct {
	changes []models.AttendanceChange
}

func (n *fakeNotifier) Enqueue(change models.AttendanceChange) {
	n.changes = append(n.changes, change)
}

func setupTestRSVPService(capacity int) (*RSVPService, *fakeStore, *fakeCounter, *fakeBroadcaster, *fakeNotifier) {
	store := newFakeStore(&models.Event{
		ID:       "event-1",
		Name:     "Go Meetup",
		Capacity: capacity,
		CreatorID: "creator-1",
		Status:   "published",
	})
	counter := newFakeCounter()
	broadcaster := &fakeBroadcaster{}
	notifier := &fakeNotifier{}

	service := NewRSVPService(store, counter, broadcaster, notifier, nil, false)
	return service, store, counter, broadcaster, notifier
}

func TestRequestAttendance_SequentialAdmissionsRespectCapacity(t *testing.T) {
	service, store, _, _, _ := setupTestRSVPService(2)
	ctx := context.Background()

	statusA, err := service.RequestAttendance(ctx, "event-1", "user-a")
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, statusA)

	statusB, err := service.RequestAttendance(ctx, "event-1", "user-b")
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, statusB)

	statusC, err := service.RequestAttendance(ctx, "event-1", "user-c")
	require.NoError(t, err)
	assert.Equal(t, models.StatusWaitlist, statusC)

	confirmed, err := store.ConfirmedCount("event-1")
	require.NoError(t, err)
	assert.Equal(t, 2, confirmed)
}

func TestRequestAttendance_CapacityBoundHoldsForAnySequence(t *testing.T) {
	const capacity = 3
	service, store, _, _, _ := setupTestRSVPService(capacity)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, err := service.RequestAttendance(ctx, "event-1", fmt.Sprintf("user-%d", i))
		require.NoError(t, err)

		confirmed, err := store.ConfirmedCount("event-1")
		require.NoError(t, err)
		assert.LessOrEqual(t, confirmed, capacity)
	}
}

func TestRequestAttendance_Idempotent(t *testing.T) {
	service, store, counter, _, _ := setupTestRSVPService(5)
	ctx := context.Background()

	first, err := service.RequestAttendance(ctx, "event-1", "user-a")
	require.NoError(t, err)

	second, err := service.RequestAttendance(ctx, "event-1", "user-a")
	require.NoError(t, err)

	assert.Equal(t, first, second)

	// The second call must not double-count.
	confirmed, err := store.ConfirmedCount("event-1")
	require.NoError(t, err)
	assert.Equal(t, 1, confirmed)
	assert.Equal(t, 1, counter.counts["event-1"])
}

func TestRequestAttendance_EventMissing(t *testing.T) {
	service, _, _, _, _ := setupTestRSVPService(5)

	_, err := service.RequestAttendance(context.Background(), "no-such-event", "user-a")

	assert.ErrorIs(t, err, status.ErrNotFound)
}

func TestRequestAttendance_Unauthenticated(t *testing.T) {
	service, _, _, _, _ := setupTestRSVPService(5)

	_, err := service.RequestAttendance(context.Background(), "event-1", "")

	assert.ErrorIs(t, err, status.ErrNotAuthenticated)
}

func TestRequestAttendance_WriteFailureLeavesNoPartialState(t *testing.T) {
	service, store, counter, broadcaster, notifier := setupTestRSVPService(5)
	ctx := context.Background()

	store.failUpsert = true

	_, err := service.RequestAttendance(ctx, "event-1", "user-a")

	assert.ErrorIs(t, err, status.ErrTransientIO)
	// The reserved slot was rolled back and no side effects fired.
	assert.Equal(t, 0, counter.counts["event-1"])
	assert.Empty(t, broadcaster.published)
	assert.Empty(t, notifier.changes)
}

func TestRequestAttendance_BroadcastsAndNotifiesAfterCommit(t *testing.T) {
	service, _, _, broadcaster, notifier := setupTestRSVPService(5)
	ctx := context.Background()

	_, err := service.RequestAttendance(ctx, "event-1", "user-a")
	require.NoError(t, err)

	require.Len(t, broadcaster.published, 1)
	assert.Equal(t, "rsvpUpdated", broadcaster.published[0].Type)
	assert.Equal(t, "event-1", broadcaster.published[0].EventID)

	require.Len(t, notifier.changes, 1)
	assert.Equal(t, models.KindRSVPConfirmation, notifier.changes[0].Kind)
	assert.Equal(t, "user-a", notifier.changes[0].UserID)
}

func TestRequestAttendance_CounterOutageFallsBackToLedgerCount(t *testing.T) {
	service, store, counter, _, _ := setupTestRSVPService(1)
	ctx := context.Background()

	counter.reserveErr = errors.New("connection refused")

	statusA, err := service.RequestAttendance(ctx, "event-1", "user-a")
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, statusA)

	statusB, err := service.RequestAttendance(ctx, "event-1", "user-b")
	require.NoError(t, err)
	assert.Equal(t, models.StatusWaitlist, statusB)

	confirmed, err := store.ConfirmedCount("event-1")
	require.NoError(t, err)
	assert.Equal(t, 1, confirmed)
}

func TestRequestAttendance_CounterRebuiltAfterOutage(t *testing.T) {
	service, store, counter, _, _ := setupTestRSVPService(2)
	ctx := context.Background()

	// A admitted through the counter.
	statusA, err := service.RequestAttendance(ctx, "event-1", "user-a")
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, statusA)

	// Outage: B admitted through the ledger fallback while the counter,
	// still holding 1, cannot even be dropped.
	counter.reserveErr = errors.New("connection refused")
	counter.invalidateErr = errors.New("connection refused")

	statusB, err := service.RequestAttendance(ctx, "event-1", "user-b")
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, statusB)

	// Recovery: the stale counter must be rebuilt from the ledger before it
	// admits anyone else.
	counter.reserveErr = nil
	counter.invalidateErr = nil

	statusC, err := service.RequestAttendance(ctx, "event-1", "user-c")
	require.NoError(t, err)
	assert.Equal(t, models.StatusWaitlist, statusC)

	confirmed, err := store.ConfirmedCount("event-1")
	require.NoError(t, err)
	assert.Equal(t, 2, confirmed)
	assert.Equal(t, 2, counter.counts["event-1"])
}

func TestCancelAttendance_FreesSlotWithoutAutoPromotion(t *testing.T) {
	// capacity=1: A holds the slot, B is waitlisted. A cancels; nobody is
	// promoted until B asks again.
	service, store, counter, _, _ := setupTestRSVPService(1)
	ctx := context.Background()

	_, err := service.RequestAttendance(ctx, "event-1", "user-a")
	require.NoError(t, err)

	statusB, err := service.RequestAttendance(ctx, "event-1", "user-b")
	require.NoError(t, err)
	assert.Equal(t, models.StatusWaitlist, statusB)

	// A repeat request while the event is full stays a waitlist no-op.
	statusB, err = service.RequestAttendance(ctx, "event-1", "user-b")
	require.NoError(t, err)
	assert.Equal(t, models.StatusWaitlist, statusB)
	assert.Equal(t, 1, counter.counts["event-1"])

	promoted, err := service.CancelAttendance(ctx, "event-1", "user-a")
	require.NoError(t, err)
	assert.Empty(t, promoted)

	confirmed, _ := store.ConfirmedCount("event-1")
	assert.Equal(t, 0, confirmed)

	attB, err := store.Attendance("event-1", "user-b")
	require.NoError(t, err)
	assert.Equal(t, models.StatusWaitlist, attB.Status)

	// B's next request takes the freed slot.
	statusB, err = service.RequestAttendance(ctx, "event-1", "user-b")
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, statusB)

	confirmed, _ = store.ConfirmedCount("event-1")
	assert.Equal(t, 1, confirmed)
}

func TestCancelAttendance_ReEntryAfterCancel(t *testing.T) {
	service, store, _, _, _ := setupTestRSVPService(2)
	ctx := context.Background()

	_, err := service.RequestAttendance(ctx, "event-1", "user-a")
	require.NoError(t, err)

	_, err = service.CancelAttendance(ctx, "event-1", "user-a")
	require.NoError(t, err)

	att, err := store.Attendance("event-1", "user-a")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, att.Status)

	// Re-RSVP is a fresh arbiter decision, never a dead record.
	statusA, err := service.RequestAttendance(ctx, "event-1", "user-a")
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, statusA)

	att, err = store.Attendance("event-1", "user-a")
	require.NoError(t, err)
	assert.True(t, att.Active())
}

func TestCancelAttendance_IdempotentWithoutPriorRSVP(t *testing.T) {
	service, _, _, broadcaster, notifier := setupTestRSVPService(2)

	promoted, err := service.CancelAttendance(context.Background(), "event-1", "user-a")

	require.NoError(t, err)
	assert.Empty(t, promoted)
	assert.Empty(t, broadcaster.published)
	assert.Empty(t, notifier.changes)
}

func TestCancelAttendance_WaitlistCancelKeepsSlotCount(t *testing.T) {
	service, store, counter, _, _ := setupTestRSVPService(1)
	ctx := context.Background()

	_, err := service.RequestAttendance(ctx, "event-1", "user-a")
	require.NoError(t, err)
	_, err = service.RequestAttendance(ctx, "event-1", "user-b")
	require.NoError(t, err)

	// Cancelling a waitlisted user must not free a confirmed slot.
	_, err = service.CancelAttendance(ctx, "event-1", "user-b")
	require.NoError(t, err)

	assert.Equal(t, 1, counter.counts["event-1"])
	confirmed, _ := store.ConfirmedCount("event-1")
	assert.Equal(t, 1, confirmed)
}

func TestCancelAttendance_AutoPromoteFillsFreedSlot(t *testing.T) {
	service, store, _, broadcaster, notifier := setupTestRSVPService(1)
	service.AutoPromote = true
	ctx := context.Background()

	_, err := service.RequestAttendance(ctx, "event-1", "user-a")
	require.NoError(t, err)
	_, err = service.RequestAttendance(ctx, "event-1", "user-b")
	require.NoError(t, err)

	promoted, err := service.CancelAttendance(ctx, "event-1", "user-a")
	require.NoError(t, err)
	assert.Equal(t, "user-b", promoted)

	attB, err := store.Attendance("event-1", "user-b")
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, attB.Status)

	confirmed, _ := store.ConfirmedCount("event-1")
	assert.Equal(t, 1, confirmed)

	// Promotion notifies the promoted user, not the creator.
	var promotedChange *models.AttendanceChange
	for i := range notifier.changes {
		if notifier.changes[i].Kind == models.KindWaitlistPromoted {
			promotedChange = &notifier.changes[i]
		}
	}
	require.NotNil(t, promotedChange)
	assert.Equal(t, "user-b", promotedChange.UserID)

	// Cancel and promotion each broadcast a re-fetch hint.
	assert.GreaterOrEqual(t, len(broadcaster.published), 2)
}

func TestAttendanceStatus(t *testing.T) {
	service, _, _, _, _ := setupTestRSVPService(2)
	ctx := context.Background()

	att, err := service.AttendanceStatus("event-1", "user-a")
	require.NoError(t, err)
	assert.Nil(t, att)

	_, err = service.RequestAttendance(ctx, "event-1", "user-a")
	require.NoError(t, err)

	att, err = service.AttendanceStatus("event-1", "user-a")
	require.NoError(t, err)
	require.NotNil(t, att)
	assert.Equal(t, models.StatusConfirmed, att.Status)
}

func TestListAttendees(t *testing.T) {
	service, _, _, _, _ := setupTestRSVPService(1)
	ctx := context.Background()

	_, err := service.RequestAttendance(ctx, "event-1", "user-a")
	require.NoError(t, err)
	_, err = service.RequestAttendance(ctx, "event-1", "user-b")
	require.NoError(t, err)
	_, err = service.CancelAttendance(ctx, "event-1", "user-a")
	require.NoError(t, err)

	attendees, confirmed, err := service.ListAttendees("event-1")
	require.NoError(t, err)

	// Cancelled records disappear from the active list.
	assert.Len(t, attendees, 1)
	assert.Equal(t, 0, confirmed)
	assert.Equal(t, "user-b", attendees[0].UserID)
}
