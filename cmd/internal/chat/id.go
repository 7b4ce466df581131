package chat

import (
	"crypto/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// NewMessageID returns a fixed-length opaque message token: a random UUID
// with the separators stripped (32 hex chars). Message ids double as storage
// key suffixes, so they must never contain the key namespace separator.
func NewMessageID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// NewSessionID returns a ULID used as the websocket session id.
// ULIDs sort by creation time, which keeps session logs scannable.
func NewSessionID(now time.Time) (string, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	id, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
