// Package v1 defines the inkroom chat wire protocol.
//
// This package is intentionally stable and dependency-light.
// It is shared between server and clients to keep the wire protocol authoritative.
package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Sender roles (wire-stable). The closed set of roles that may open a live
// session. An administrative role exists in the surrounding system but never
// connects here.
const (
	RoleClient = "client"
	RoleArtist = "artist"
)

// Inbound frame types (client -> server).
const (
	// FrameMessage submits a new chat message.
	FrameMessage = "message"
	// FrameTyping signals the sender is typing.
	FrameTyping = "typing"
	// FrameRead acknowledges a message was read.
	FrameRead = "read"
)

// Outbound event types (server -> clients).
const (
	// EventMessage carries the canonical echo of an accepted message.
	EventMessage = "message"
	// EventTyping relays a typing signal to peers.
	EventTyping = "typing"
	// EventRead relays a read receipt to peers.
	EventRead = "read"
	// EventConnected announces a new peer session.
	EventConnected = "connected"
	// EventDisconnected announces a departed peer session.
	EventDisconnected = "disconnected"
	// EventError reports a protocol error to the offending connection only.
	EventError = "error"
)

// Message kinds (wire-stable).
const (
	KindText        = "text"
	KindImage       = "image"
	KindBookingLink = "booking_link"
)

// ValidRole reports whether role is in the closed sender-role set.
func ValidRole(role string) bool {
	return role == RoleClient || role == RoleArtist
}

// ValidKind reports whether kind is in the closed message-kind set.
func ValidKind(kind string) bool {
	switch kind {
	case KindText, KindImage, KindBookingLink:
		return true
	default:
		return false
	}
}

// Frame is the canonical inbound wire structure. Fields beyond Type are
// populated per frame type.
type Frame struct {
	Type        string `json:"type"`
	Content     string `json:"content,omitempty"`
	MessageType string `json:"message_type,omitempty"`
	MessageID   string `json:"message_id,omitempty"`
}

// ParseFrame decodes and structurally validates one inbound frame.
func ParseFrame(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("invalid JSON: %w", err)
	}
	if err := f.Validate(); err != nil {
		return Frame{}, err
	}
	return f, nil
}

// Validate performs strict structural validation for a Frame.
func (f Frame) Validate() error {
	if strings.TrimSpace(f.Type) == "" {
		return errors.New("missing field: type")
	}
	switch f.Type {
	case FrameMessage, FrameTyping, FrameRead:
		return nil
	default:
		return fmt.Errorf("unknown type: %q", f.Type)
	}
}

// Event is the canonical outbound wire wrapper.
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// NewEvent builds an Event, marshaling payload once.
// Marshal failures are impossible for the payload structs below; a nil
// payload is encoded as JSON null.
func NewEvent(typ string, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{Type: typ, Payload: raw}, nil
}

// ---- Payloads ----

// MessagePayload is the canonical broadcast form of an accepted message.
// Timestamp is RFC 3339 UTC, assigned when the message is accepted for
// broadcast, not when it is flushed to durable storage.
type MessagePayload struct {
	ID          string `json:"id"`
	RoomID      string `json:"room_id"`
	SenderType  string `json:"sender_type"`
	SenderID    string `json:"sender_id"`
	Content     string `json:"content"`
	MessageType string `json:"message_type"`
	Timestamp   string `json:"timestamp"`
}

// TypingPayload relays a typing signal.
type TypingPayload struct {
	RoomID     string `json:"room_id"`
	SenderType string `json:"sender_type"`
	SenderID   string `json:"sender_id"`
}

// ReadPayload relays a read receipt for one message.
type ReadPayload struct {
	RoomID     string `json:"room_id"`
	MessageID  string `json:"message_id"`
	SenderType string `json:"sender_type"`
	SenderID   string `json:"sender_id"`
}

// PresencePayload announces a session joining or leaving the room.
type PresencePayload struct {
	RoomID     string `json:"room_id"`
	SenderType string `json:"sender_type"`
	SenderID   string `json:"sender_id"`
}

// ErrorPayload is a generic error response payload.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
