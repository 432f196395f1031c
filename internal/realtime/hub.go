package realtime

import (
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// Message is a realtime event delivered to the members of an event room.
// The payload stays small on purpose: "rsvpUpdated" tells subscribers to
// re-fetch attendance rather than carrying state that can go stale.
type Message struct {
	Type    string         `json:"type"`
	EventID string         `json:"event_id"`
	Data    map[string]any `json:"data,omitempty"`
}

// Broadcaster fans a message out to every connection currently subscribed
// to an event's room. Injected into the RSVP service so tests can observe
// publishes without a transport.
type Broadcaster interface {
	Publish(eventID string, msg Message)
}

var ErrUnknownConnection = errors.New("realtime: unknown connection")

type conn struct {
	id       string
	inbox    chan Message
	rooms    map[string]struct{}
	lastSeen time.Time
}

// Hub tracks which connections are in which event rooms and dispatches
// messages to exactly that set. There is no history: a connection that
// subscribes after a publish never sees it. Slow consumers have messages
// dropped rather than blocking the dispatch path; a client that misses one
// re-fetches full state.
type Hub struct {
	mu    sync.Mutex
	conns map[string]*conn
	rooms map[string]map[string]*conn

	bufferSize int
	ttl        time.Duration
	sweepEvery time.Duration

	stopChan chan struct{}
	wg       sync.WaitGroup
	dropped  int64
}

func NewHub(bufferSize int, ttl, sweepEvery time.Duration) *Hub {
	return &Hub{
		conns:      make(map[string]*conn),
		rooms:      make(map[string]map[string]*conn),
		bufferSize: bufferSize,
		ttl:        ttl,
		sweepEvery: sweepEvery,
		stopChan:   make(chan struct{}),
	}
}

// Register adds a connection to the hub. Registering an existing id just
// refreshes its liveness.
func (h *Hub) Register(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if c, ok := h.conns[connID]; ok {
		c.lastSeen = time.Now()
		return
	}

	h.conns[connID] = &conn{
		id:       connID,
		inbox:    make(chan Message, h.bufferSize),
		rooms:    make(map[string]struct{}),
		lastSeen: time.Now(),
	}
}

// Subscribe puts the connection into the event's room. A connection may sit
// in several rooms at once, one per event page it has open.
func (h *Hub) Subscribe(connID, eventID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.conns[connID]
	if !ok {
		return ErrUnknownConnection
	}

	c.rooms[eventID] = struct{}{}
	c.lastSeen = time.Now()

	room, ok := h.rooms[eventID]
	if !ok {
		room = make(map[string]*conn)
		h.rooms[eventID] = room
	}
	room[connID] = c

	return nil
}

// Unsubscribe removes the connection from the event's room. Safe to call
// for rooms the connection never joined.
func (h *Hub) Unsubscribe(connID, eventID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.leaveRoom(connID, eventID)
	if c, ok := h.conns[connID]; ok {
		c.lastSeen = time.Now()
	}
}

// Disconnect drops the connection from every room it was in and forgets it.
// Must run on every disconnect so room membership cannot grow without bound.
func (h *Hub) Disconnect(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.conns[connID]
	if !ok {
		return
	}

	for eventID := range c.rooms {
		h.leaveRoom(connID, eventID)
	}
	delete(h.conns, connID)
}

// Publish delivers msg to every current member of the event's room. The hub
// lock is the single dispatch point per room, so each connection sees
// publishes for one event in call order.
func (h *Hub) Publish(eventID string, msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, c := range h.rooms[eventID] {
		select {
		case c.inbox <- msg:
		default:
			atomic.AddInt64(&h.dropped, 1)
		}
	}
}

// Drain returns up to max pending messages for the connection and refreshes
// its liveness. This backs the poll endpoint for hub-attached clients.
func (h *Hub) Drain(connID string, max int) ([]Message, error) {
	h.mu.Lock()
	c, ok := h.conns[connID]
	if !ok {
		h.mu.Unlock()
		return nil, ErrUnknownConnection
	}
	c.lastSeen = time.Now()
	inbox := c.inbox
	h.mu.Unlock()

	messages := make([]Message, 0, max)
	for len(messages) < max {
		select {
		case msg := <-inbox:
			messages = append(messages, msg)
		default:
			return messages, nil
		}
	}
	return messages, nil
}

// RoomSize reports the current membership of an event's room.
func (h *Hub) RoomSize(eventID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[eventID])
}

// Stats returns connection/room totals and the dropped-message count for
// the metrics collector.
func (h *Hub) Stats() (conns, rooms int, dropped int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns), len(h.rooms), atomic.LoadInt64(&h.dropped)
}

// Start runs the idle-connection sweeper until Shutdown.
func (h *Hub) Start() {
	h.wg.Add(1)
	go h.sweeper()
}

// Shutdown stops the sweeper and waits for it.
func (h *Hub) Shutdown() {
	close(h.stopChan)
	h.wg.Wait()
}

func (h *Hub) sweeper() {
	defer h.wg.Done()

	ticker := time.NewTicker(h.sweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.sweepIdle()
		case <-h.stopChan:
			return
		}
	}
}

func (h *Hub) sweepIdle() {
	h.mu.Lock()
	defer h.mu.Unlock()

	cutoff := time.Now().Add(-h.ttl)
	swept := 0

	for connID, c := range h.conns {
		if c.lastSeen.Before(cutoff) {
			for eventID := range c.rooms {
				h.leaveRoom(connID, eventID)
			}
			delete(h.conns, connID)
			swept++
		}
	}

	if swept > 0 {
		log.Printf("Swept %d idle realtime connections", swept)
	}
}

// leaveRoom must run under h.mu.
func (h *Hub) leaveRoom(connID, eventID string) {
	if c, ok := h.conns[connID]; ok {
		delete(c.rooms, eventID)
	}

	room, ok := h.rooms[eventID]
	if !ok {
		return
	}
	delete(room, connID)
	if len(room) == 0 {
		delete(h.rooms, eventID)
	}
}
