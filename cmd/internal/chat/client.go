package chat

import "sync"

// Client represents one connected websocket session.
//
// Design notes:
//   - Send carries pre-serialized event bytes so a broadcast marshals once.
//   - Send is intentionally NOT closed by the server to avoid panics from
//     concurrent broadcasters.
//   - Session is the edge replica of the session metadata: it outlives the
//     room instance and is how a reconstructed room re-learns who the
//     connection belongs to.
//   - Close is idempotent.
type Client struct {
	Session Session
	Send    chan []byte

	done      chan struct{}
	closeOnce sync.Once
}

// NewClient constructs a Client with a bounded send queue.
func NewClient(sess Session, sendQueueSize int) *Client {
	if sendQueueSize <= 0 {
		sendQueueSize = 64
	}
	return &Client{
		Session: sess,
		Send:    make(chan []byte, sendQueueSize),
		done:    make(chan struct{}),
	}
}

// Done returns a channel that is closed when the client is shutting down.
func (c *Client) Done() <-chan struct{} {
	if c == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return c.done
}

// Close signals the client goroutines to stop (idempotent).
// It does NOT close Send to keep broadcast safe under concurrency.
func (c *Client) Close() {
	if c == nil {
		return
	}
	c.closeOnce.Do(func() {
		close(c.done)
	})
}
