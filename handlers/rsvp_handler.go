package handlers

import (
	"errors"
	"net/http"

	"event-sphere/internal/services"
	"event-sphere/internal/status"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

type RSVPHandler struct {
	app         *pocketbase.PocketBase
	rsvpService *services.RSVPService
}

func NewRSVPHandler(app *pocketbase.PocketBase, rsvpService *services.RSVPService) *RSVPHandler {
	return &RSVPHandler{
		app:         app,
		rsvpService: rsvpService,
	}
}

// RequestRSVP - POST /api/events/{id}/rsvp
func (h *RSVPHandler) RequestRSVP(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	eventID := e.Request.PathValue("id")
	if eventID == "" {
		return apis.NewBadRequestError("Missing event id", nil)
	}

	attStatus, err := h.rsvpService.RequestAttendance(e.Request.Context(), eventID, e.Auth.Id)
	if err != nil {
		return toApiError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"status": attStatus,
	})
}

// CancelRSVP - DELETE /api/events/{id}/rsvp
// Succeeds even when no prior RSVP existed.
func (h *RSVPHandler) CancelRSVP(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	eventID := e.Request.PathValue("id")
	if eventID == "" {
		return apis.NewBadRequestError("Missing event id", nil)
	}

	promoted, err := h.rsvpService.CancelAttendance(e.Request.Context(), eventID, e.Auth.Id)
	if err != nil {
		return toApiError(err)
	}

	resp := map[string]any{
		"message": "RSVP cancelled",
	}
	if promoted != "" {
		resp["promoted"] = promoted
	}

	return e.JSON(http.StatusOK, resp)
}

// GetMyRSVP - GET /api/events/{id}/rsvp
func (h *RSVPHandler) GetMyRSVP(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	eventID := e.Request.PathValue("id")
	if eventID == "" {
		return apis.NewBadRequestError("Missing event id", nil)
	}

	attendance, err := h.rsvpService.AttendanceStatus(eventID, e.Auth.Id)
	if err != nil {
		return toApiError(err)
	}

	if attendance == nil {
		return e.JSON(http.StatusOK, map[string]any{
			"status": "none",
		})
	}

	return e.JSON(http.StatusOK, map[string]any{
		"status":    attendance.Status,
		"joined_at": attendance.JoinedAt,
	})
}

// GetAttendees - GET /api/events/{id}/attendees
// The full-state re-fetch path for clients that reconnected and cannot rely
// on buffered realtime events.
func (h *RSVPHandler) GetAttendees(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	eventID := e.Request.PathValue("id")
	if eventID == "" {
		return apis.NewBadRequestError("Missing event id", nil)
	}

	attendees, confirmed, err := h.rsvpService.ListAttendees(eventID)
	if err != nil {
		return toApiError(err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"attendees":       attendees,
		"confirmed_count": confirmed,
		"count":           len(attendees),
	})
}

// toApiError maps service sentinels onto API errors.
func toApiError(err error) error {
	switch {
	case errors.Is(err, status.ErrNotFound):
		return apis.NewNotFoundError("Event not found", err)
	case errors.Is(err, status.ErrNotAuthenticated):
		return apis.NewUnauthorizedError("Unauthorized", err)
	case errors.Is(err, status.ErrNotAuthorized):
		return apis.NewForbiddenError("Forbidden", err)
	case errors.Is(err, status.ErrTransientIO):
		return apis.NewApiError(http.StatusServiceUnavailable, "Temporarily unavailable", err)
	default:
		return apis.NewBadRequestError("Request failed", err)
	}
}
