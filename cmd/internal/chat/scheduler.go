package chat

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	v1 "inkroom/shared/contracts/chat/v1"
)

// flushScheduler implements write-behind persistence for one room.
//
// Newly accepted messages are buffered under the pending prefix and a single
// deferred flush migrates them to the durable prefix. Arming is idempotent:
// any number of messages accepted within the delay window share one flush.
//
// The flush runs on a timer goroutine, outside the room actor, so its
// contract is "safe to interleave with concurrent buffering" rather than
// "mutually exclusive": entries buffered after the enumeration snapshot are
// simply picked up by the next cycle.
type flushScheduler struct {
	log    *slog.Logger
	store  Store
	roomID string
	delay  time.Duration

	mu    sync.Mutex
	armed bool

	// afterFlush is a test seam; nil in production.
	afterFlush func()
}

func newFlushScheduler(log *slog.Logger, store Store, roomID string, delay time.Duration) *flushScheduler {
	if delay <= 0 {
		delay = defaultFlushDelay
	}
	return &flushScheduler{
		log:    log,
		store:  store,
		roomID: roomID,
		delay:  delay,
	}
}

// Buffer writes the message under its provisional key.
func (s *flushScheduler) Buffer(ctx context.Context, msg v1.MessagePayload) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return s.store.Put(ctx, pendingKey(s.roomID, msg.ID), raw)
}

// ArmIfAbsent schedules exactly one future flush when none is scheduled.
// Returns true when this call armed the timer.
func (s *flushScheduler) ArmIfAbsent() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.armed {
		return false
	}
	s.armed = true
	time.AfterFunc(s.delay, s.flush)
	return true
}

// flush migrates every buffered message to durable storage.
//
// Disarming happens before enumeration: a message buffered mid-flush either
// made the snapshot (and is durably written before its provisional copy is
// deleted) or it re-arms a fresh timer via its own ArmIfAbsent. Failure
// semantics are per-message: a failed durable write leaves that entry
// buffered for the next cycle without affecting the rest of the batch.
func (s *flushScheduler) flush() {
	s.mu.Lock()
	s.armed = false
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()

	metricFlushRuns.Inc()

	prefix := pendingPrefix(s.roomID)
	entries, err := s.store.List(ctx, prefix)
	if err != nil {
		s.log.Error("flush.list.fail", "room_id", s.roomID, "err", err)
		return
	}
	if len(entries) == 0 {
		s.done()
		return
	}

	migrated := 0
	for _, e := range entries {
		messageID := strings.TrimPrefix(e.Key, prefix)

		if err := s.store.Put(ctx, durableKey(s.roomID, messageID), e.Value); err != nil {
			metricFlushWriteFailures.Inc()
			s.log.Error("flush.write.fail", "room_id", s.roomID, "message_id", messageID, "err", err)
			continue
		}

		// Delete failure is benign: the next cycle rewrites the same durable
		// key with the same value, so the migration stays idempotent.
		if err := s.store.Delete(ctx, e.Key); err != nil {
			s.log.Error("flush.clear.fail", "room_id", s.roomID, "message_id", messageID, "err", err)
			continue
		}
		migrated++
	}

	s.log.Debug("flush.done", "room_id", s.roomID, "buffered", len(entries), "migrated", migrated)
	s.done()
}

func (s *flushScheduler) done() {
	if s.afterFlush != nil {
		s.afterFlush()
	}
}
