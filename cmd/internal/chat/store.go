package chat

import "context"

// Entry is one key/value pair returned by a prefix scan.
type Entry struct {
	Key   string
	Value []byte
}

// Store is the minimal key-value-with-prefix-scan contract the room
// coordinator needs from its storage substrate. Any implementation offering
// upsert, delete, and ordered prefix enumeration is interchangeable.
//
// Keys are namespaced per room:
//
//	room:<room_id>:pending:<message_id>  buffered, not yet durable
//	room:<room_id>:msg:<message_id>      durable
//
// The distinct prefixes let a flush enumerate exactly the pending set
// without scanning durable entries. Room ids never contain ':' (NewSession
// rejects them), so no room's prefix can alias another's.
type Store interface {
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]Entry, error)
}

func pendingPrefix(roomID string) string { return "room:" + roomID + ":pending:" }
func durablePrefix(roomID string) string { return "room:" + roomID + ":msg:" }

func pendingKey(roomID, messageID string) string { return pendingPrefix(roomID) + messageID }
func durableKey(roomID, messageID string) string { return durablePrefix(roomID) + messageID }
