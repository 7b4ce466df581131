package chat

// sessionRegistry is the live mapping from open connection to Session for
// exactly one room instance.
//
// It is mutated only from the owning room's actor goroutine, so it needs no
// locking; iteration and removal never race.
type sessionRegistry struct {
	entries map[*Client]Session
}

func newSessionRegistry() *sessionRegistry {
	return &sessionRegistry{entries: make(map[*Client]Session)}
}

// register inserts the pair. Re-registering an already-known connection
// overwrites, which is what repair-on-read relies on.
func (r *sessionRegistry) register(c *Client, sess Session) {
	if c == nil {
		return
	}
	r.entries[c] = sess
}

// lookup returns the session for a connection. When the in-memory entry was
// lost (the room instance was reconstructed while the connection stayed
// open), it falls back to the session replicated onto the connection itself
// and repairs the map on the way out.
func (r *sessionRegistry) lookup(c *Client, roomID string) (Session, bool) {
	if c == nil {
		return Session{}, false
	}
	if sess, ok := r.entries[c]; ok {
		return sess, true
	}

	// Repair-on-read from the edge replica.
	sess := c.Session
	if sess.ID == "" || sess.RoomID != roomID {
		return Session{}, false
	}
	r.entries[c] = sess
	return sess, true
}

// remove deletes the pair. Removing an absent connection is a no-op.
func (r *sessionRegistry) remove(c *Client) (Session, bool) {
	sess, ok := r.entries[c]
	if ok {
		delete(r.entries, c)
	}
	return sess, ok
}

// contains reports whether the connection is currently registered.
func (r *sessionRegistry) contains(c *Client) bool {
	_, ok := r.entries[c]
	return ok
}

// all iterates current entries. Callers may remove entries mid-iteration;
// Go map iteration tolerates deletion of unvisited keys.
func (r *sessionRegistry) all(fn func(c *Client, sess Session) bool) {
	for c, sess := range r.entries {
		if !fn(c, sess) {
			return
		}
	}
}

// size returns the number of registered sessions.
func (r *sessionRegistry) size() int { return len(r.entries) }
