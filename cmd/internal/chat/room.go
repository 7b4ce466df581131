package chat

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	v1 "inkroom/shared/contracts/chat/v1"
)

// Room owns all live state for one room id: the session registry, broadcast
// fan-out, and the write-behind buffer for that room's messages.
//
// Rooms are actors: attach, detach, and inbound frames are posted to a
// single goroutine and handled one at a time. Each frame is fully routed
// (validated, broadcast, buffered) before the next is handled, which gives
// broadcast its per-connection ordering guarantee without locks around the
// registry. The only work outside the actor is the deferred flush, whose
// contract tolerates concurrent buffering.
type Room struct {
	ID string

	log   *slog.Logger
	store Store
	sched *flushScheduler

	sessions *sessionRegistry

	inbox    chan roomCmd
	done     chan struct{}
	stopOnce sync.Once

	lastActive atomic.Int64 // unix nanos
}

type cmdKind uint8

const (
	cmdAttach cmdKind = iota
	cmdDetach
	cmdFrame
)

type roomCmd struct {
	kind   cmdKind
	client *Client
	data   []byte
}

// NewRoom constructs a room instance and starts its actor goroutine.
func NewRoom(log *slog.Logger, id string, store Store, flushDelay time.Duration) *Room {
	r := &Room{
		ID:       id,
		log:      log,
		store:    store,
		sched:    newFlushScheduler(log, store, id, flushDelay),
		sessions: newSessionRegistry(),
		inbox:    make(chan roomCmd),
		done:     make(chan struct{}),
	}
	r.touch()
	go r.run()
	return r
}

// Attach registers a client and announces it to existing peers.
// Returns false if the room instance has been stopped.
func (r *Room) Attach(c *Client) bool { return r.post(roomCmd{kind: cmdAttach, client: c}) }

// Detach removes a client and announces its departure. Idempotent; returns
// false if the room instance has been stopped.
func (r *Room) Detach(c *Client) bool { return r.post(roomCmd{kind: cmdDetach, client: c}) }

// Submit routes one inbound frame. Returns false if the room instance has
// been stopped; the caller should re-resolve the room and retry, which is
// the recovery path after hibernation.
func (r *Room) Submit(c *Client, data []byte) bool {
	return r.post(roomCmd{kind: cmdFrame, client: c, data: data})
}

// Stop halts the actor. Open connections are untouched: this is hibernation,
// not shutdown. Buffered messages live in the store and any armed flush
// completes independently.
func (r *Room) Stop() {
	r.stopOnce.Do(func() { close(r.done) })
}

// Stopped reports whether the actor has been halted.
func (r *Room) Stopped() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// LastActive returns the time of the most recent posted command.
func (r *Room) LastActive() time.Time {
	return time.Unix(0, r.lastActive.Load())
}

func (r *Room) touch() { r.lastActive.Store(time.Now().UTC().UnixNano()) }

func (r *Room) post(cmd roomCmd) bool {
	select {
	case <-r.done:
		return false
	case r.inbox <- cmd:
		return true
	}
}

func (r *Room) run() {
	r.rehydrate()

	for {
		select {
		case <-r.done:
			// Hibernation releases the registered sessions from the gauge;
			// a surviving connection re-enters through repair-on-read.
			metricSessionsConnected.Sub(float64(r.sessions.size()))
			return
		case cmd := <-r.inbox:
			r.touch()
			switch cmd.kind {
			case cmdAttach:
				r.handleAttach(cmd.client)
			case cmdDetach:
				r.handleDetach(cmd.client)
			case cmdFrame:
				r.handleFrame(cmd.client, cmd.data)
			}
		}
	}
}

// rehydrate arms a flush when buffered messages survived a previous instance
// of this room. The registry intentionally starts empty; sessions repair
// themselves on their next frame.
func (r *Room) rehydrate() {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()

	entries, err := r.store.List(ctx, pendingPrefix(r.ID))
	if err != nil {
		r.log.Error("room.rehydrate.fail", "room_id", r.ID, "err", err)
		return
	}
	if len(entries) > 0 {
		r.log.Info("room.rehydrate.pending", "room_id", r.ID, "buffered", len(entries))
		r.sched.ArmIfAbsent()
	}
}

// ---- membership ----

func (r *Room) handleAttach(c *Client) {
	if c == nil || c.Session.RoomID != r.ID {
		return
	}
	if r.sessions.contains(c) {
		return
	}

	r.sessions.register(c, c.Session)
	metricSessionsConnected.Inc()

	r.broadcastExcept(c, v1.EventConnected, v1.PresencePayload{
		RoomID:     r.ID,
		SenderType: c.Session.SenderType,
		SenderID:   c.Session.SenderID,
	})

	r.log.Info("room.session.attach",
		"room_id", r.ID, "session_id", c.Session.ID,
		"sender_type", c.Session.SenderType, "sessions", r.sessions.size())
}

func (r *Room) handleDetach(c *Client) {
	sess, removed := r.sessions.remove(c)
	if removed {
		metricSessionsConnected.Dec()
	} else {
		// The registry may have lost the entry across a hibernation; fall
		// back to the edge replica so remaining peers still hear about the
		// departure. A client that already finished closing was detached
		// before, so there is nothing left to announce.
		select {
		case <-c.Done():
			return
		default:
		}
		sess = c.Session
		if sess.RoomID != r.ID {
			return
		}
	}

	r.broadcastExcept(c, v1.EventDisconnected, v1.PresencePayload{
		RoomID:     r.ID,
		SenderType: sess.SenderType,
		SenderID:   sess.SenderID,
	})

	r.log.Info("room.session.detach",
		"room_id", r.ID, "session_id", sess.ID, "sessions", r.sessions.size())
}

// ---- frame routing ----

func (r *Room) handleFrame(c *Client, data []byte) {
	wasKnown := r.sessions.contains(c)
	sess, ok := r.sessions.lookup(c, r.ID)
	if !ok {
		metricFramesRejected.WithLabelValues("unknown_session").Inc()
		r.sendError(c, "unknown_session", "session does not belong to this room")
		return
	}
	if !wasKnown {
		metricSessionsConnected.Inc()
		r.log.Info("room.session.repair", "room_id", r.ID, "session_id", sess.ID)
	}

	f, err := v1.ParseFrame(data)
	if err != nil {
		// Malformed input never closes the session and never reaches peers.
		metricFramesRejected.WithLabelValues("malformed").Inc()
		r.sendError(c, "bad_frame", err.Error())
		return
	}

	switch f.Type {
	case v1.FrameMessage:
		r.handleMessage(c, sess, f)
	case v1.FrameTyping:
		r.broadcastExcept(c, v1.EventTyping, v1.TypingPayload{
			RoomID:     r.ID,
			SenderType: sess.SenderType,
			SenderID:   sess.SenderID,
		})
	case v1.FrameRead:
		r.handleRead(c, sess, f)
	}
}

func (r *Room) handleMessage(c *Client, sess Session, f v1.Frame) {
	content := strings.TrimSpace(f.Content)
	if content == "" {
		// Policy: whitespace-only content is dropped without an error frame.
		r.log.Debug("room.message.empty", "room_id", r.ID, "session_id", sess.ID)
		return
	}
	if len([]rune(content)) > maxMessageChars {
		metricFramesRejected.WithLabelValues("too_long").Inc()
		r.sendError(c, "message_too_long", "message exceeds max length")
		return
	}

	kind := f.MessageType
	if kind == "" {
		kind = v1.KindText
	}
	if !v1.ValidKind(kind) {
		metricFramesRejected.WithLabelValues("bad_message_type").Inc()
		r.sendError(c, "bad_message_type", "message_type must be text, image or booking_link")
		return
	}

	msg := v1.MessagePayload{
		ID:          NewMessageID(),
		RoomID:      r.ID,
		SenderType:  sess.SenderType,
		SenderID:    sess.SenderID,
		Content:     content,
		MessageType: kind,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}

	// Everyone hears the canonical echo, the sender included, so optimistic
	// client state reconciles against it.
	r.broadcastAll(v1.EventMessage, msg)
	metricMessagesAccepted.Inc()

	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()

	if err := r.sched.Buffer(ctx, msg); err != nil {
		// Live delivery already happened; durability is what degraded.
		r.log.Error("room.buffer.fail", "room_id", r.ID, "message_id", msg.ID, "err", err)
		return
	}
	r.sched.ArmIfAbsent()
}

func (r *Room) handleRead(c *Client, sess Session, f v1.Frame) {
	messageID := strings.TrimSpace(f.MessageID)
	if messageID == "" {
		// Read frames without a message_id are silently ignored.
		return
	}

	r.broadcastExcept(c, v1.EventRead, v1.ReadPayload{
		RoomID:     r.ID,
		MessageID:  messageID,
		SenderType: sess.SenderType,
		SenderID:   sess.SenderID,
	})
}

// ---- fan-out ----

// broadcastAll delivers an event to every registered connection, the sender
// included.
func (r *Room) broadcastAll(typ string, payload any) {
	r.fanout(nil, typ, payload)
}

// broadcastExcept delivers an event to every registered connection other
// than except.
func (r *Room) broadcastExcept(except *Client, typ string, payload any) {
	r.fanout(except, typ, payload)
}

// fanout serializes the event once and enqueues it per recipient.
// Non-blocking: a full or closing recipient queue is skipped, never aborting
// delivery to the rest. Dead connections are cleaned up by their own
// close/error path, not here.
func (r *Room) fanout(except *Client, typ string, payload any) {
	raw, err := marshalEvent(typ, payload)
	if err != nil {
		r.log.Error("room.event.marshal.fail", "room_id", r.ID, "type", typ, "err", err)
		return
	}

	r.sessions.all(func(c *Client, _ Session) bool {
		if c == except {
			return true
		}

		select {
		case <-c.Done():
			// Skip clients that are shutting down.
			return true
		default:
		}

		select {
		case c.Send <- raw:
		default:
			metricBroadcastDrops.Inc()
		}
		return true
	})
}

// sendError addresses an error event to the sole offending connection.
func (r *Room) sendError(c *Client, code, msg string) {
	raw, err := marshalEvent(v1.EventError, v1.ErrorPayload{Code: code, Message: msg})
	if err != nil {
		return
	}

	select {
	case <-c.Done():
	case c.Send <- raw:
	default:
		metricBroadcastDrops.Inc()
	}
}

func marshalEvent(typ string, payload any) ([]byte, error) {
	evt, err := v1.NewEvent(typ, payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(evt)
}
