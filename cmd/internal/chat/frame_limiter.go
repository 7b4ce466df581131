package chat

import "time"

// frameLimiter enforces the per-connection inbound frame budget over a
// sliding window. It lives in the connection's read loop and is never shared,
// so it needs no locking.
type frameLimiter struct {
	limit  int
	window time.Duration
	stamps []time.Time
}

func newFrameLimiter(limit int, window time.Duration) *frameLimiter {
	if limit <= 0 {
		limit = rateLimitEvents
	}
	if window <= 0 {
		window = rateLimitWindow
	}
	return &frameLimiter{
		limit:  limit,
		window: window,
		stamps: make([]time.Time, 0, limit),
	}
}

// allow records a frame at now and reports whether it fits the budget.
// Frames arrive in time order, so expired stamps trim only from the front.
func (l *frameLimiter) allow(now time.Time) bool {
	cut := now.Add(-l.window)
	expired := 0
	for expired < len(l.stamps) && !l.stamps[expired].After(cut) {
		expired++
	}
	if expired > 0 {
		l.stamps = append(l.stamps[:0], l.stamps[expired:]...)
	}

	if len(l.stamps) >= l.limit {
		return false
	}
	l.stamps = append(l.stamps, now)
	return true
}
