package chat

import (
	"testing"
	"time"

	v1 "inkroom/shared/contracts/chat/v1"
)

func TestHubColocatesRoomInstances(t *testing.T) {
	t.Parallel()

	h := NewHub(discardLogger(), NewMemoryStore(), time.Hour, time.Hour)
	t.Cleanup(h.StopAll)

	r1 := h.GetOrCreateRoom("r1")
	if h.GetOrCreateRoom("r1") != r1 {
		t.Fatal("same room id must resolve to the same live instance")
	}
	if h.GetOrCreateRoom("r2") == r1 {
		t.Fatal("distinct room ids must not share an instance")
	}
}

func TestHubReplacesStoppedRoom(t *testing.T) {
	t.Parallel()

	h := NewHub(discardLogger(), NewMemoryStore(), time.Hour, time.Hour)
	t.Cleanup(h.StopAll)

	r1 := h.GetOrCreateRoom("r1")
	r1.Stop()

	r2 := h.GetOrCreateRoom("r1")
	if r2 == r1 {
		t.Fatal("a hibernated instance must be replaced, not returned")
	}
	if r2.Stopped() {
		t.Fatal("replacement instance must be live")
	}
}

func TestHubSubmitRecoversAfterHibernation(t *testing.T) {
	t.Parallel()

	h := NewHub(discardLogger(), NewMemoryStore(), time.Hour, time.Hour)
	t.Cleanup(h.StopAll)

	sess, err := NewSession("s1", "r1", v1.RoleClient, "c1")
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	c := NewClient(sess, 16)
	h.Attach(c)

	// Hibernate behind the caller's back.
	h.GetOrCreateRoom("r1").Stop()

	// Submit reconstructs the room and repair-on-read restores the session:
	// the canonical echo still arrives.
	h.Submit(c, []byte(`{"type":"message","content":"wake up"}`))

	select {
	case raw := <-c.Send:
		if string(raw) == "" {
			t.Fatal("empty event")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no echo after hibernation recovery")
	}
}

func TestHubEvictsIdleRooms(t *testing.T) {
	t.Parallel()

	h := NewHub(discardLogger(), NewMemoryStore(), time.Hour, 50*time.Millisecond)
	t.Cleanup(h.StopAll)

	r := h.GetOrCreateRoom("r1")
	time.Sleep(120 * time.Millisecond)

	h.evictIdle()

	if !r.Stopped() {
		t.Fatal("idle room must be hibernated")
	}
	if h.room("r1") != nil {
		t.Fatal("hibernated room must leave the map")
	}
}
