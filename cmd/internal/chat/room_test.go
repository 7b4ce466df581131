package chat

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	v1 "inkroom/shared/contracts/chat/v1"
)

func newTestRoom(t *testing.T, store Store, flushDelay time.Duration) *Room {
	t.Helper()
	r := NewRoom(discardLogger(), "r1", store, flushDelay)
	t.Cleanup(r.Stop)
	return r
}

func attachClient(t *testing.T, r *Room, role, senderID string) *Client {
	t.Helper()
	sess, err := NewSession("sess-"+senderID, r.ID, role, senderID)
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	c := NewClient(sess, 16)
	if !r.Attach(c) {
		t.Fatalf("attach %s: room stopped", senderID)
	}
	return c
}

// recvEvent waits for one outbound event on the client's send queue.
func recvEvent(t *testing.T, c *Client) v1.Event {
	t.Helper()
	select {
	case raw := <-c.Send:
		var evt v1.Event
		if err := json.Unmarshal(raw, &evt); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		return evt
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return v1.Event{}
	}
}

func expectNoEvent(t *testing.T, c *Client, wait time.Duration) {
	t.Helper()
	select {
	case raw := <-c.Send:
		t.Fatalf("unexpected event: %s", raw)
	case <-time.After(wait):
	}
}

func decodePayload[T any](t *testing.T, evt v1.Event) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(evt.Payload, &out); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	return out
}

func TestMessageBroadcastIncludesSender(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	r := newTestRoom(t, store, time.Hour)

	c1 := attachClient(t, r, v1.RoleClient, "c1")
	c2 := attachClient(t, r, v1.RoleArtist, "a1")

	// c1 hears about a1 joining.
	if evt := recvEvent(t, c1); evt.Type != v1.EventConnected {
		t.Fatalf("type=%q want connected", evt.Type)
	}

	r.Submit(c1, []byte(`{"type":"message","content":"Hi"}`))

	for _, c := range []*Client{c1, c2} {
		evt := recvEvent(t, c)
		if evt.Type != v1.EventMessage {
			t.Fatalf("type=%q want message", evt.Type)
		}
		p := decodePayload[v1.MessagePayload](t, evt)
		if p.Content != "Hi" || p.SenderType != v1.RoleClient || p.SenderID != "c1" {
			t.Fatalf("payload=%+v", p)
		}
		if p.RoomID != "r1" || p.MessageType != v1.KindText {
			t.Fatalf("payload=%+v", p)
		}
		if len(p.ID) != 32 {
			t.Fatalf("message id %q: want 32 chars (uuid without separators)", p.ID)
		}
		if _, err := time.Parse(time.RFC3339, p.Timestamp); err != nil {
			t.Fatalf("timestamp %q: %v", p.Timestamp, err)
		}
	}

	// Exactly one delivery each.
	expectNoEvent(t, c1, 100*time.Millisecond)
	expectNoEvent(t, c2, 100*time.Millisecond)

	// Accepted message is buffered immediately, durable only after flush.
	pending, err := store.List(context.Background(), pendingPrefix("r1"))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("pending=%d want 1", len(pending))
	}
}

func TestTypingExcludesSender(t *testing.T) {
	t.Parallel()

	r := newTestRoom(t, NewMemoryStore(), time.Hour)

	c1 := attachClient(t, r, v1.RoleClient, "c1")
	a1 := attachClient(t, r, v1.RoleArtist, "a1")
	recvEvent(t, c1) // a1 connected

	r.Submit(a1, []byte(`{"type":"typing"}`))

	evt := recvEvent(t, c1)
	if evt.Type != v1.EventTyping {
		t.Fatalf("type=%q want typing", evt.Type)
	}
	p := decodePayload[v1.TypingPayload](t, evt)
	if p.SenderType != v1.RoleArtist || p.SenderID != "a1" {
		t.Fatalf("payload=%+v", p)
	}

	expectNoEvent(t, a1, 100*time.Millisecond)
}

func TestMalformedFrameIsolation(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	r := newTestRoom(t, store, time.Hour)

	c1 := attachClient(t, r, v1.RoleClient, "c1")
	c2 := attachClient(t, r, v1.RoleArtist, "a1")
	recvEvent(t, c1) // a1 connected

	r.Submit(c1, []byte(`{not json`))

	// Only the offending connection hears about it.
	evt := recvEvent(t, c1)
	if evt.Type != v1.EventError {
		t.Fatalf("type=%q want error", evt.Type)
	}
	expectNoEvent(t, c2, 100*time.Millisecond)

	// No write of any kind.
	all, err := store.List(context.Background(), "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("store entries=%d want 0", len(all))
	}

	// The session stays open: a valid frame still routes.
	r.Submit(c1, []byte(`{"type":"message","content":"still here"}`))
	if evt := recvEvent(t, c2); evt.Type != v1.EventMessage {
		t.Fatalf("type=%q want message", evt.Type)
	}
}

func TestUnknownFrameTypeRejected(t *testing.T) {
	t.Parallel()

	r := newTestRoom(t, NewMemoryStore(), time.Hour)
	c1 := attachClient(t, r, v1.RoleClient, "c1")

	r.Submit(c1, []byte(`{"type":"dance"}`))

	evt := recvEvent(t, c1)
	if evt.Type != v1.EventError {
		t.Fatalf("type=%q want error", evt.Type)
	}
}

func TestWhitespaceOnlyMessageDropped(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	r := newTestRoom(t, store, time.Hour)

	c1 := attachClient(t, r, v1.RoleClient, "c1")
	c2 := attachClient(t, r, v1.RoleArtist, "a1")
	recvEvent(t, c1) // a1 connected

	r.Submit(c1, []byte(`{"type":"message","content":"   "}`))

	// No broadcast, no error frame, no buffered entry.
	expectNoEvent(t, c1, 150*time.Millisecond)
	expectNoEvent(t, c2, 50*time.Millisecond)

	pending, _ := store.List(context.Background(), pendingPrefix("r1"))
	if len(pending) != 0 {
		t.Fatalf("pending=%d want 0", len(pending))
	}
}

func TestBadMessageTypeRejected(t *testing.T) {
	t.Parallel()

	r := newTestRoom(t, NewMemoryStore(), time.Hour)
	c1 := attachClient(t, r, v1.RoleClient, "c1")

	r.Submit(c1, []byte(`{"type":"message","content":"x","message_type":"video"}`))

	evt := recvEvent(t, c1)
	if evt.Type != v1.EventError {
		t.Fatalf("type=%q want error", evt.Type)
	}
	p := decodePayload[v1.ErrorPayload](t, evt)
	if p.Code != "bad_message_type" {
		t.Fatalf("code=%q", p.Code)
	}
}

func TestMessageKindsAccepted(t *testing.T) {
	t.Parallel()

	r := newTestRoom(t, NewMemoryStore(), time.Hour)
	c1 := attachClient(t, r, v1.RoleClient, "c1")

	cases := []struct {
		frame string
		want  string
	}{
		{`{"type":"message","content":"a"}`, v1.KindText},
		{`{"type":"message","content":"b","message_type":"image"}`, v1.KindImage},
		{`{"type":"message","content":"c","message_type":"booking_link"}`, v1.KindBookingLink},
	}

	for _, tc := range cases {
		r.Submit(c1, []byte(tc.frame))
		evt := recvEvent(t, c1)
		if evt.Type != v1.EventMessage {
			t.Fatalf("type=%q want message", evt.Type)
		}
		p := decodePayload[v1.MessagePayload](t, evt)
		if p.MessageType != tc.want {
			t.Fatalf("message_type=%q want %q", p.MessageType, tc.want)
		}
	}
}

func TestReadReceiptRouting(t *testing.T) {
	t.Parallel()

	r := newTestRoom(t, NewMemoryStore(), time.Hour)

	c1 := attachClient(t, r, v1.RoleClient, "c1")
	a1 := attachClient(t, r, v1.RoleArtist, "a1")
	recvEvent(t, c1) // a1 connected

	r.Submit(a1, []byte(`{"type":"read","message_id":"m42"}`))

	evt := recvEvent(t, c1)
	if evt.Type != v1.EventRead {
		t.Fatalf("type=%q want read", evt.Type)
	}
	p := decodePayload[v1.ReadPayload](t, evt)
	if p.MessageID != "m42" || p.SenderType != v1.RoleArtist {
		t.Fatalf("payload=%+v", p)
	}
	expectNoEvent(t, a1, 100*time.Millisecond)

	// A read frame without message_id is silently ignored.
	r.Submit(a1, []byte(`{"type":"read"}`))
	expectNoEvent(t, c1, 150*time.Millisecond)
	expectNoEvent(t, a1, 50*time.Millisecond)
}

func TestPresenceEvents(t *testing.T) {
	t.Parallel()

	r := newTestRoom(t, NewMemoryStore(), time.Hour)

	c1 := attachClient(t, r, v1.RoleClient, "c1")
	a1 := attachClient(t, r, v1.RoleArtist, "a1")

	evt := recvEvent(t, c1)
	if evt.Type != v1.EventConnected {
		t.Fatalf("type=%q want connected", evt.Type)
	}
	p := decodePayload[v1.PresencePayload](t, evt)
	if p.SenderType != v1.RoleArtist || p.SenderID != "a1" {
		t.Fatalf("payload=%+v", p)
	}
	// The new session does not hear its own arrival.
	expectNoEvent(t, a1, 100*time.Millisecond)

	r.Detach(a1)
	evt = recvEvent(t, c1)
	if evt.Type != v1.EventDisconnected {
		t.Fatalf("type=%q want disconnected", evt.Type)
	}

	// Detaching a closed client again announces nothing.
	a1.Close()
	r.Detach(a1)
	expectNoEvent(t, c1, 150*time.Millisecond)
}

// Not parallel: it measures the process-wide session gauge.
func TestSessionGaugeBalancedAcrossHibernation(t *testing.T) {
	base := testutil.ToFloat64(metricSessionsConnected)

	store := NewMemoryStore()
	r1 := NewRoom(discardLogger(), "r1", store, time.Hour)
	c1 := attachClient(t, r1, v1.RoleClient, "c1")
	waitForSessionGauge(t, base+1)

	// Hibernation releases the registered session.
	r1.Stop()
	waitForSessionGauge(t, base)

	// Repair-on-read counts the surviving connection exactly once more.
	r2 := NewRoom(discardLogger(), "r1", store, time.Hour)
	t.Cleanup(r2.Stop)
	r2.Submit(c1, []byte(`{"type":"typing"}`))
	waitForSessionGauge(t, base+1)

	// Disconnecting after the repair balances back to where it started.
	r2.Detach(c1)
	waitForSessionGauge(t, base)
}

func waitForSessionGauge(t *testing.T, want float64) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if testutil.ToFloat64(metricSessionsConnected) == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("gauge=%v want %v", testutil.ToFloat64(metricSessionsConnected), want)
}

func TestBatchedFlushWithinWindow(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	r := newTestRoom(t, store, 150*time.Millisecond)

	flushes := make(chan struct{}, 8)
	r.sched.afterFlush = func() { flushes <- struct{}{} }

	c1 := attachClient(t, r, v1.RoleClient, "c1")

	for _, msg := range []string{"one", "two", "three"} {
		r.Submit(c1, []byte(`{"type":"message","content":"`+msg+`"}`))
		recvEvent(t, c1) // canonical echo
	}

	select {
	case <-flushes:
	case <-time.After(2 * time.Second):
		t.Fatal("flush never fired")
	}

	durable, err := store.List(context.Background(), durablePrefix("r1"))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(durable) != 3 {
		t.Fatalf("durable=%d want 3", len(durable))
	}
	pending, _ := store.List(context.Background(), pendingPrefix("r1"))
	if len(pending) != 0 {
		t.Fatalf("pending=%d want 0", len(pending))
	}

	select {
	case <-flushes:
		t.Fatal("messages within one window must share one flush")
	case <-time.After(400 * time.Millisecond):
	}
}

func TestHibernationRepairOnRead(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()

	r1 := NewRoom(discardLogger(), "r1", store, time.Hour)
	c1 := attachClient(t, r1, v1.RoleClient, "c1")
	a1 := attachClient(t, r1, v1.RoleArtist, "a1")
	recvEvent(t, c1) // a1 connected

	// Hibernate: the instance dies, connections stay open.
	r1.Stop()
	if r1.Submit(c1, []byte(`{"type":"typing"}`)) {
		t.Fatal("stopped room must refuse frames")
	}

	// A reconstructed instance starts with an empty registry.
	r2 := NewRoom(discardLogger(), "r1", store, time.Hour)
	t.Cleanup(r2.Stop)

	// First frame repairs c1 from the session replicated on the connection:
	// the canonical echo reaches c1 even though nobody re-registered it.
	r2.Submit(c1, []byte(`{"type":"message","content":"back"}`))
	evt := recvEvent(t, c1)
	if evt.Type != v1.EventMessage {
		t.Fatalf("type=%q want message", evt.Type)
	}
	// a1 has not spoken since reconstruction, so it is not yet visible.
	expectNoEvent(t, a1, 100*time.Millisecond)

	// a1's first frame repairs it too; from here fan-out is whole again.
	r2.Submit(a1, []byte(`{"type":"typing"}`))
	if evt := recvEvent(t, c1); evt.Type != v1.EventTyping {
		t.Fatalf("type=%q want typing", evt.Type)
	}

	r2.Submit(c1, []byte(`{"type":"message","content":"all here"}`))
	if evt := recvEvent(t, a1); evt.Type != v1.EventMessage {
		t.Fatalf("type=%q want message", evt.Type)
	}
	if evt := recvEvent(t, c1); evt.Type != v1.EventMessage {
		t.Fatalf("type=%q want message", evt.Type)
	}
}

func TestRehydrateArmsFlushForLeftoverBuffer(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore()

	// A previous instance buffered a message and died before its flush.
	raw, _ := json.Marshal(testMessage("m9", "orphan"))
	if err := store.Put(ctx, pendingKey("r1", "m9"), raw); err != nil {
		t.Fatalf("put: %v", err)
	}

	newTestRoom(t, store, 100*time.Millisecond)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		durable, err := store.List(ctx, durablePrefix("r1"))
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(durable) == 1 {
			pending, _ := store.List(ctx, pendingPrefix("r1"))
			if len(pending) != 0 {
				t.Fatalf("pending=%d want 0", len(pending))
			}
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("rehydrated buffer never flushed")
}
