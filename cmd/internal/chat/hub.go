package chat

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Hub owns in-memory room instances and guarantees the colocation invariant:
// at any moment at most one live Room exists per room id, so every
// connection for that id shares one registry and one message buffer.
type Hub struct {
	log        *slog.Logger
	store      Store
	flushDelay time.Duration
	idleTTL    time.Duration

	mu    sync.Mutex
	rooms map[string]*Room
}

// NewHub constructs a Hub.
func NewHub(log *slog.Logger, store Store, flushDelay, idleTTL time.Duration) *Hub {
	if idleTTL <= 0 {
		idleTTL = defaultRoomIdleTTL
	}
	return &Hub{
		log:        log,
		store:      store,
		flushDelay: flushDelay,
		idleTTL:    idleTTL,
		rooms:      make(map[string]*Room),
	}
}

// GetOrCreateRoom returns the live room instance for roomID, reconstructing
// it when none exists or a previous instance was hibernated.
func (h *Hub) GetOrCreateRoom(roomID string) *Room {
	h.mu.Lock()
	defer h.mu.Unlock()

	if r, ok := h.rooms[roomID]; ok && !r.Stopped() {
		return r
	}

	r := NewRoom(h.log, roomID, h.store, h.flushDelay)
	h.rooms[roomID] = r
	return r
}

// room returns the live instance for roomID without creating one.
func (h *Hub) room(roomID string) *Room {
	h.mu.Lock()
	defer h.mu.Unlock()

	if r, ok := h.rooms[roomID]; ok && !r.Stopped() {
		return r
	}
	return nil
}

// Attach routes a client to its room, retrying once if the instance was
// hibernated between resolution and delivery.
func (h *Hub) Attach(c *Client) {
	for range 2 {
		if h.GetOrCreateRoom(c.Session.RoomID).Attach(c) {
			return
		}
	}
}

// Submit routes one inbound frame to the client's room, reconstructing the
// instance when it was hibernated. This is the recovery path: the first
// frame on a still-open connection after hibernation repairs the session
// registry before normal dispatch.
func (h *Hub) Submit(c *Client, data []byte) {
	for range 2 {
		if h.GetOrCreateRoom(c.Session.RoomID).Submit(c, data) {
			return
		}
	}
}

// Detach removes a client from its room when a live instance exists.
// A hibernated room has no registry entries and no peers to notify.
func (h *Hub) Detach(c *Client) {
	if r := h.room(c.Session.RoomID); r != nil {
		r.Detach(c)
	}
}

// RunJanitor hibernates idle rooms until ctx is done, then stops all rooms.
// Stopping a room never touches its open connections or its buffered
// messages; both outlive the instance.
func (h *Hub) RunJanitor(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}

	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			h.StopAll()
			return ctx.Err()
		case <-t.C:
			h.evictIdle()
		}
	}
}

func (h *Hub) evictIdle() {
	cut := time.Now().UTC().Add(-h.idleTTL)

	h.mu.Lock()
	defer h.mu.Unlock()

	for id, r := range h.rooms {
		if r.LastActive().After(cut) {
			continue
		}
		r.Stop()
		delete(h.rooms, id)
		h.log.Info("hub.room.hibernate", "room_id", id)
	}
}

// StopAll stops every live room instance.
func (h *Hub) StopAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, r := range h.rooms {
		r.Stop()
		delete(h.rooms, id)
	}
}
