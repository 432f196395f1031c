package handlers

import (
	"errors"
	"net/http"

	"event-sphere/internal/realtime"
	"event-sphere/utils"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

// RealtimeHandler exposes room control for hub-attached clients: connect to
// get a connection id, join/leave event rooms, poll for pending messages.
// Clients using PubNub directly subscribe to the event-{id} channel instead
// and never touch these endpoints.
type RealtimeHandler struct {
	app *pocketbase.PocketBase
	hub *realtime.Hub
}

func NewRealtimeHandler(app *pocketbase.PocketBase, hub *realtime.Hub) *RealtimeHandler {
	return &RealtimeHandler{
		app: app,
		hub: hub,
	}
}

// Connect - POST /api/realtime/connect
func (h *RealtimeHandler) Connect(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	connID, err := utils.GenerateConnectionID()
	if err != nil {
		return apis.NewApiError(http.StatusInternalServerError, "Failed to create connection", err)
	}

	h.hub.Register(connID)

	return e.JSON(http.StatusOK, map[string]any{
		"connection_id": connID,
	})
}

type roomRequest struct {
	ConnectionID string `json:"connection_id"`
	EventID      string `json:"event_id"`
}

// Join - POST /api/realtime/join (the joinEvent room-control message)
func (h *RealtimeHandler) Join(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	var req roomRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.ConnectionID == "" || req.EventID == "" {
		return apis.NewBadRequestError("connection_id and event_id are required", nil)
	}

	if err := h.hub.Subscribe(req.ConnectionID, req.EventID); err != nil {
		if errors.Is(err, realtime.ErrUnknownConnection) {
			return apis.NewBadRequestError("Unknown connection, reconnect first", err)
		}
		return apis.NewBadRequestError("Failed to join room", err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"message": "Joined event room",
	})
}

// Leave - POST /api/realtime/leave (the leaveEvent room-control message)
func (h *RealtimeHandler) Leave(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	var req roomRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.ConnectionID == "" || req.EventID == "" {
		return apis.NewBadRequestError("connection_id and event_id are required", nil)
	}

	h.hub.Unsubscribe(req.ConnectionID, req.EventID)

	return e.JSON(http.StatusOK, map[string]any{
		"message": "Left event room",
	})
}

// Disconnect - POST /api/realtime/disconnect
// Drops the connection from every room it was in.
func (h *RealtimeHandler) Disconnect(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	var req struct {
		ConnectionID string `json:"connection_id"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.ConnectionID == "" {
		return apis.NewBadRequestError("connection_id is required", nil)
	}

	h.hub.Disconnect(req.ConnectionID)

	return e.JSON(http.StatusOK, map[string]any{
		"message": "Disconnected",
	})
}

// Poll - GET /api/realtime/poll?connection_id=...
// Drains pending room messages. There is no replay: events published while
// a connection was gone are lost and the client re-fetches attendance.
func (h *RealtimeHandler) Poll(e *core.RequestEvent) error {
	if e.Auth == nil {
		return apis.NewUnauthorizedError("Unauthorized", nil)
	}

	connID := e.Request.URL.Query().Get("connection_id")
	if connID == "" {
		return apis.NewBadRequestError("connection_id is required", nil)
	}

	messages, err := h.hub.Drain(connID, 64)
	if err != nil {
		return apis.NewBadRequestError("Unknown connection, reconnect first", err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"messages": messages,
	})
}
