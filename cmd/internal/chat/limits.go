package chat

import "time"

// Security/performance limits.
const (
	// Max bytes per websocket frame read (hard limit).
	maxFrameBytes = 32 << 10 // 32 KiB

	// Max message content length (runes).
	maxMessageChars = 4000
)

const (
	// Heartbeat defaults (overridable via GatewayConfig).
	heartbeatInterval = 25 * time.Second
	heartbeatTimeout  = 5 * time.Second

	// Per-connection rate limits (frames per window).
	rateLimitEvents = 120
	rateLimitWindow = 10 * time.Second
)

const (
	// defaultFlushDelay bounds the durability lag of the write-behind buffer.
	defaultFlushDelay = 1 * time.Second

	// flushTimeout bounds one flush cycle against a slow store.
	flushTimeout = 5 * time.Second

	// defaultRoomIdleTTL is how long a room may sit without inbound activity
	// before the hub hibernates it.
	defaultRoomIdleTTL = 10 * time.Minute
)
