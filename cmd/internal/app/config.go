package app

import "time"

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr string
	LogLevel string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	// Storage substrate selection: Postgres when DatabaseURL is set, else
	// Redis when RedisAddr is set, else in-process memory.
	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32
	RedisAddr   string
	RedisDB     int

	// If true, /readyz returns 503 unless an external store is configured
	// and reachable.
	ReadinessRequireStore bool

	// Write-behind persistence.
	FlushDelay time.Duration

	// Room hibernation.
	RoomIdleTTL     time.Duration
	JanitorInterval time.Duration

	// WebSocket policy.
	WSOriginRequired    bool
	WSAllowedOrigins    []string
	WSDevInsecure       bool
	WSWriteTimeout      time.Duration
	WSReadIdleTimeout   time.Duration
	WSSendQueue         int
	WSHeartbeatInterval time.Duration
	WSHeartbeatTimeout  time.Duration
	WSRateEvents        int
	WSRateWindow        time.Duration

	// Reject upgrades into blocked rooms. Off by default; room status is
	// administrative state the coordinator does not police unless asked.
	EnforceRoomStatus bool

	CORSAllowedOrigins []string
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr: EnvString("INKROOM_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel: EnvString("INKROOM_LOG_LEVEL", "info"),

		ReadHeaderTimeout: EnvDuration("INKROOM_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("INKROOM_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("INKROOM_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("INKROOM_HTTP_IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    EnvInt("INKROOM_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL: EnvString("INKROOM_DATABASE_URL", ""),
		DBMaxConns:  EnvInt32("INKROOM_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("INKROOM_DB_MIN_CONNS", 0),
		RedisAddr:   EnvString("INKROOM_REDIS_ADDR", ""),
		RedisDB:     EnvInt("INKROOM_REDIS_DB", 0),

		ReadinessRequireStore: EnvBool("INKROOM_READINESS_REQUIRE_STORE", false),

		FlushDelay: EnvDuration("INKROOM_FLUSH_DELAY", time.Second),

		RoomIdleTTL:     EnvDuration("INKROOM_ROOM_IDLE_TTL", 10*time.Minute),
		JanitorInterval: EnvDuration("INKROOM_JANITOR_INTERVAL", time.Minute),

		WSOriginRequired:    EnvBool("INKROOM_WS_ORIGIN_REQUIRED", true),
		WSAllowedOrigins:    EnvCSV("INKROOM_WS_ALLOWED_ORIGINS", "http://localhost,http://127.0.0.1"),
		WSDevInsecure:       EnvBool("INKROOM_WS_DEV_INSECURE", false),
		WSWriteTimeout:      EnvDuration("INKROOM_WS_WRITE_TIMEOUT", 5*time.Second),
		WSReadIdleTimeout:   EnvDuration("INKROOM_WS_READ_IDLE_TIMEOUT", 2*time.Minute),
		WSSendQueue:         EnvInt("INKROOM_WS_SEND_QUEUE", 256),
		WSHeartbeatInterval: EnvDuration("INKROOM_WS_HEARTBEAT_INTERVAL", 25*time.Second),
		WSHeartbeatTimeout:  EnvDuration("INKROOM_WS_HEARTBEAT_TIMEOUT", 5*time.Second),
		WSRateEvents:        EnvInt("INKROOM_WS_RATE_EVENTS", 120),
		WSRateWindow:        EnvDuration("INKROOM_WS_RATE_WINDOW", 10*time.Second),

		EnforceRoomStatus: EnvBool("INKROOM_ENFORCE_ROOM_STATUS", false),

		CORSAllowedOrigins: EnvCSV("INKROOM_CORS_ALLOWED_ORIGINS", "http://localhost,http://127.0.0.1"),
	}
}
