package ledger

import (
	"database/sql"
	"errors"

	"event-sphere/internal/status"
	"event-sphere/models"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/types"
)

// Store is the durable attendance ledger backed by PocketBase collections.
// It is the single source of truth for who attends what; the Redis counter
// in counter.go is only a derived view of the confirmed count.
type Store struct {
	app core.App
}

func NewStore(app core.App) *Store {
	return &Store{app: app}
}

func (s *Store) Event(eventID string) (*models.Event, error) {
	record, err := s.app.FindRecordById("events", eventID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, status.ErrNotFound
		}
		return nil, status.IOError("find event", err)
	}

	return &models.Event{
		ID:          record.Id,
		Name:        record.GetString("name"),
		Description: record.GetString("description"),
		Location:    record.GetString("location"),
		StartAt:     record.GetDateTime("start_at").Time(),
		EndAt:       record.GetDateTime("end_at").Time(),
		Capacity:    record.GetInt("capacity"),
		CreatorID:   record.GetString("creator"),
		Status:      record.GetString("status"),
		ImageURL:    record.GetString("image_url"),
	}, nil
}

// Attendance returns the (event, user) record, or nil when the user has
// never RSVPed.
func (s *Store) Attendance(eventID, userID string) (*models.Attendance, error) {
	record, err := s.findAttendanceRecord(eventID, userID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, nil
	}
	return attendanceFromRecord(record), nil
}

// ConfirmedCount counts attendees holding a confirmed slot. Cancelled and
// waitlisted records never count against capacity.
func (s *Store) ConfirmedCount(eventID string) (int, error) {
	total, err := s.app.CountRecords("attendances", dbx.HashExp{
		"event":  eventID,
		"status": models.StatusConfirmed,
	})
	if err != nil {
		return 0, status.IOError("count confirmed", err)
	}
	return int(total), nil
}

// UpsertAttendance idempotently sets the (event, user) record to the given
// status, creating it with joined_at=now on first RSVP. Records are never
// deleted; re-entry after a cancellation reuses the same row and refreshes
// joined_at.
func (s *Store) UpsertAttendance(eventID, userID, attStatus string) (*models.Attendance, error) {
	if _, err := s.app.FindRecordById("events", eventID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, status.ErrNotFound
		}
		return nil, status.IOError("find event", err)
	}

	record, err := s.findAttendanceRecord(eventID, userID)
	if err != nil {
		return nil, err
	}

	if record == nil {
		collection, err := s.app.FindCollectionByNameOrId("attendances")
		if err != nil {
			return nil, status.IOError("find attendances collection", err)
		}
		record = core.NewRecord(collection)
		record.Set("event", eventID)
		record.Set("user", userID)
		record.Set("joined_at", types.NowDateTime())
	} else if record.GetString("status") == models.StatusCancelled {
		record.Set("joined_at", types.NowDateTime())
	}

	record.Set("status", attStatus)

	if err := s.app.Save(record); err != nil {
		return nil, status.IOError("save attendance", err)
	}

	return attendanceFromRecord(record), nil
}

// CancelAttendance marks the record cancelled (soft state) and returns the
// state it held before. A missing or already-cancelled record is a no-op.
func (s *Store) CancelAttendance(eventID, userID string) (*models.Attendance, error) {
	record, err := s.findAttendanceRecord(eventID, userID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, nil
	}

	prior := attendanceFromRecord(record)
	if prior.Status == models.StatusCancelled {
		return prior, nil
	}

	record.Set("status", models.StatusCancelled)
	if err := s.app.Save(record); err != nil {
		return nil, status.IOError("save attendance", err)
	}

	return prior, nil
}

// OldestWaitlisted returns the longest-waiting waitlist record for the
// event, or nil when the waitlist is empty.
func (s *Store) OldestWaitlisted(eventID string) (*models.Attendance, error) {
	records, err := s.app.FindRecordsByFilter(
		"attendances",
		"event = {:event} && status = {:status}",
		"+joined_at",
		1,
		0,
		dbx.Params{"event": eventID, "status": models.StatusWaitlist},
	)
	if err != nil {
		return nil, status.IOError("find waitlisted", err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	return attendanceFromRecord(records[0]), nil
}

// ListAttendees returns the active (confirmed or waitlisted) records for an
// event, oldest first. This is the re-fetch path realtime clients use after
// a reconnect.
func (s *Store) ListAttendees(eventID string) ([]*models.Attendance, error) {
	records, err := s.app.FindRecordsByFilter(
		"attendances",
		"event = {:event} && status != {:cancelled}",
		"+joined_at",
		0,
		0,
		dbx.Params{"event": eventID, "cancelled": models.StatusCancelled},
	)
	if err != nil {
		return nil, status.IOError("list attendees", err)
	}

	attendees := make([]*models.Attendance, 0, len(records))
	for _, record := range records {
		attendees = append(attendees, attendanceFromRecord(record))
	}
	return attendees, nil
}

func (s *Store) findAttendanceRecord(eventID, userID string) (*core.Record, error) {
	record, err := s.app.FindFirstRecordByFilter(
		"attendances",
		"event = {:event} && user = {:user}",
		dbx.Params{"event": eventID, "user": userID},
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, status.IOError("find attendance", err)
	}
	return record, nil
}

func attendanceFromRecord(record *core.Record) *models.Attendance {
	return &models.Attendance{
		ID:       record.Id,
		EventID:  record.GetString("event"),
		UserID:   record.GetString("user"),
		Status:   record.GetString("status"),
		JoinedAt: record.GetDateTime("joined_at").Time(),
		Note:     record.GetString("note"),
	}
}
