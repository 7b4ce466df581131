package chat

import (
	"errors"
	"strings"

	v1 "inkroom/shared/contracts/chat/v1"
)

// Session is the live binding between one open connection and one sender's
// identity within one room. It is a small immutable value: a copy lives in
// the room's registry and another on the connection's Client (the edge
// replica used for repair-on-read after a room instance is reconstructed).
type Session struct {
	ID         string
	RoomID     string
	SenderType string
	SenderID   string
}

// NewSession validates the upgrade parameters and builds a Session.
func NewSession(id, roomID, senderType, senderID string) (Session, error) {
	roomID = strings.TrimSpace(roomID)
	senderType = strings.TrimSpace(senderType)
	senderID = strings.TrimSpace(senderID)

	if id == "" {
		return Session{}, errors.New("chat: empty session id")
	}
	if roomID == "" {
		return Session{}, errors.New("chat: missing room_id")
	}
	// ':' separates the storage key namespaces; a room id carrying it could
	// alias another room's pending or durable prefix.
	if strings.ContainsRune(roomID, ':') {
		return Session{}, errors.New("chat: room_id must not contain ':'")
	}
	if !v1.ValidRole(senderType) {
		return Session{}, errors.New("chat: sender_type must be client or artist")
	}
	if senderID == "" {
		return Session{}, errors.New("chat: missing sender_id")
	}

	return Session{
		ID:         id,
		RoomID:     roomID,
		SenderType: senderType,
		SenderID:   senderID,
	}, nil
}
