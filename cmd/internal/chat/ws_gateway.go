package chat

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	v1 "inkroom/shared/contracts/chat/v1"
)

const (
	wsDefaultSendQueueSize = 256
	wsMinSendQueueSize     = 32

	wsDefaultWriteTimeout = 5 * time.Second
	wsDefaultReadIdle     = 2 * time.Minute
	wsCloseGrace          = 1 * time.Second

	wsMaxPingFailures = 3
)

// GatewayConfig carries the gateway's transport policy. Zero values fall
// back to the defaults above.
type GatewayConfig struct {
	// Origin policy. Origin is required by default in the app config;
	// DevInsecure additionally disables TLS verification inside Accept.
	OriginRequired bool
	AllowedOrigins []string
	DevInsecure    bool

	WriteTimeout    time.Duration
	ReadIdleTimeout time.Duration
	SendQueueSize   int

	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration

	RateEvents int
	RateWindow time.Duration

	// EnforceRoomStatus rejects upgrades into blocked rooms. Off by default:
	// room status is administrative state and the coordinator historically
	// does not police it.
	EnforceRoomStatus bool
}

func (c GatewayConfig) withDefaults() GatewayConfig {
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = wsDefaultWriteTimeout
	}
	if c.ReadIdleTimeout <= 0 {
		c.ReadIdleTimeout = wsDefaultReadIdle
	}
	if c.SendQueueSize <= 0 {
		c.SendQueueSize = wsDefaultSendQueueSize
	}
	if c.SendQueueSize < wsMinSendQueueSize {
		c.SendQueueSize = wsMinSendQueueSize
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = heartbeatInterval
	}
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = heartbeatTimeout
	}
	if c.RateEvents <= 0 {
		c.RateEvents = rateLimitEvents
	}
	if c.RateWindow <= 0 {
		c.RateWindow = rateLimitWindow
	}
	return c
}

// Gateway is the WebSocket entrypoint for the chat coordinator.
//
// It validates upgrade parameters, enforces origin policy and rate limits,
// runs the per-connection read/write/heartbeat loops, and hands every
// inbound frame to the client's room via the Hub.
type Gateway struct {
	log    *slog.Logger
	hub    *Hub
	status StatusStore
	cfg    GatewayConfig

	// Derived for websocket.Accept origin checks: Accept authorizes
	// same-host origins by default, cross-origin requires OriginPatterns.
	originPatterns []string
}

// NewGateway constructs a gateway.
func NewGateway(log *slog.Logger, hub *Hub, status StatusStore, cfg GatewayConfig) *Gateway {
	if status == nil {
		status = NopStatusStore{}
	}
	cfg = cfg.withDefaults()
	return &Gateway{
		log:            log,
		hub:            hub,
		status:         status,
		cfg:            cfg,
		originPatterns: deriveOriginPatterns(cfg.AllowedOrigins),
	}
}

// ServeHTTP adapter so the gateway mounts as an http.Handler.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.HandleWS(w, r)
}

// HandleWS upgrades an HTTP request to a WebSocket session and runs the
// connection until it closes.
//
// Required query parameters: room_id, sender_type (client|artist),
// sender_id. Missing or invalid parameters reject the attempt before any
// session exists.
func (g *Gateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	sessionID, err := NewSessionID(time.Now().UTC())
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	sess, err := NewSession(sessionID, q.Get("room_id"), q.Get("sender_type"), q.Get("sender_id"))
	if err != nil {
		g.log.Info("ws.reject.params", "err", err, "remote", r.RemoteAddr)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if g.cfg.EnforceRoomStatus {
		statusCtx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		status, err := g.status.Get(statusCtx, sess.RoomID)
		cancel()
		if err != nil {
			g.log.Error("ws.reject.status_lookup", "room_id", sess.RoomID, "err", err)
			http.Error(w, "room status unavailable", http.StatusServiceUnavailable)
			return
		}
		if status == StatusBlocked {
			g.log.Info("ws.reject.blocked", "room_id", sess.RoomID)
			http.Error(w, "room is blocked", http.StatusForbidden)
			return
		}
	}

	if err := g.enforceOrigin(r); err != nil {
		g.log.Info("ws.reject.origin", "err", err, "origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:     g.originPatterns,
		InsecureSkipVerify: g.cfg.DevInsecure,
	})
	if err != nil {
		g.log.Error("ws.accept.fail", "err", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	conn.SetReadLimit(maxFrameBytes)

	client := NewClient(sess, g.cfg.SendQueueSize)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// shutdown is idempotent. It does NOT close client.Send; detaching
	// before client.Close keeps broadcasters away from a closing client.
	var closeOnce sync.Once
	shutdown := func(code websocket.StatusCode, reason string) {
		closeOnce.Do(func() {
			g.hub.Detach(client)
			client.Close()
			_ = conn.Close(code, reason)
			cancel()
		})
	}

	g.hub.Attach(client)
	g.log.Info("ws.session.open",
		"session_id", sess.ID, "room_id", sess.RoomID,
		"sender_type", sess.SenderType, "sender_id", sess.SenderID)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)

		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case raw := <-client.Send:
				if err := writeRaw(ctx, conn, raw, g.cfg.WriteTimeout); err != nil {
					g.log.Info("ws.write.fail", "session_id", sess.ID, "close_status", websocket.CloseStatus(err), "err", err)
					shutdown(websocket.StatusAbnormalClosure, "write failed")
					return
				}
			}
		}
	}()

	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)

		t := time.NewTicker(g.cfg.HeartbeatInterval)
		defer t.Stop()

		failures := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case <-t.C:
				hbCtx, hbCancel := context.WithTimeout(ctx, g.cfg.HeartbeatTimeout)
				err := conn.Ping(hbCtx)
				hbCancel()

				if err != nil {
					failures++
					g.log.Info("ws.ping.fail", "session_id", sess.ID, "failures", failures, "err", err)
					if failures >= wsMaxPingFailures {
						shutdown(websocket.StatusGoingAway, "heartbeat failed")
						return
					}
					continue
				}
				failures = 0
			}
		}
	}()

	rl := newFrameLimiter(g.cfg.RateEvents, g.cfg.RateWindow)

readLoop:
	for {
		readCtx, readCancel := context.WithTimeout(ctx, g.cfg.ReadIdleTimeout)
		mt, data, err := conn.Read(readCtx)
		readCancel()

		if err != nil {
			switch classifyReadErr(err) {
			case readErrClose:
				shutdown(websocket.StatusNormalClosure, "peer closed")
			case readErrCtxDone:
				shutdown(websocket.StatusNormalClosure, "context done")
			case readErrConnClosed:
				shutdown(websocket.StatusAbnormalClosure, "conn closed")
			default:
				g.log.Info("ws.read.fail", "session_id", sess.ID, "err", err)
				shutdown(websocket.StatusAbnormalClosure, "read failed")
			}
			break readLoop
		}

		if mt != websocket.MessageText && mt != websocket.MessageBinary {
			continue readLoop
		}

		if !rl.allow(time.Now().UTC()) {
			metricFramesRejected.WithLabelValues("rate_limited").Inc()
			g.trySendError(client, "rate_limited", "too many frames")
			shutdown(websocket.StatusPolicyViolation, "rate limited")
			break readLoop
		}

		// Parsing and dispatch happen on the room actor; a malformed frame
		// comes back to this one client as an error event.
		g.hub.Submit(client, data)
	}

	shutdown(websocket.StatusNormalClosure, "bye")
	<-writerDone

	select {
	case <-heartbeatDone:
	case <-time.After(wsCloseGrace):
	}
}

// trySendError enqueues an error event without blocking.
func (g *Gateway) trySendError(client *Client, code, msg string) {
	raw, err := marshalEvent(v1.EventError, v1.ErrorPayload{Code: code, Message: msg})
	if err != nil {
		return
	}
	select {
	case <-client.Done():
	case client.Send <- raw:
	default:
	}
}

func writeRaw(parent context.Context, conn *websocket.Conn, raw []byte, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, raw)
}

// ---- read error classification ----

type readErrKind uint8

const (
	readErrUnknown readErrKind = iota
	readErrClose
	readErrCtxDone
	readErrConnClosed
)

func classifyReadErr(err error) readErrKind {
	if websocket.CloseStatus(err) != -1 {
		return readErrClose
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return readErrCtxDone
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
		return readErrConnClosed
	}
	return readErrUnknown
}

// ---- origin policy ----

func (g *Gateway) enforceOrigin(r *http.Request) error {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		if g.cfg.OriginRequired {
			return errors.New("missing origin")
		}
		return nil
	}

	if len(g.cfg.AllowedOrigins) == 0 {
		return errors.New("origin not allowed (no allowlist)")
	}

	originHost := originHostOnly(origin)

	for _, a := range g.cfg.AllowedOrigins {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		if a == "*" {
			return nil
		}
		if origin == a {
			return nil
		}
		if originHost != "" && originHost == originHostOnly(a) {
			return nil
		}
	}

	return errors.New("origin not allowed: " + origin)
}

func originHostOnly(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return ""
		}
		h := strings.TrimSpace(u.Host)
		if h == "" {
			return ""
		}
		if host, _, err := net.SplitHostPort(h); err == nil {
			return strings.ToLower(host)
		}
		return strings.ToLower(h)
	}

	if host, _, err := net.SplitHostPort(s); err == nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(s)
}

// deriveOriginPatterns extracts the host part of each allowed origin for
// websocket.Accept, which matches OriginPatterns against the origin host.
func deriveOriginPatterns(allowed []string) []string {
	seen := make(map[string]struct{}, len(allowed))
	for _, a := range allowed {
		h := originHostOnly(a)
		if h == "" || h == "*" {
			continue
		}
		seen[h] = struct{}{}
	}

	out := make([]string, 0, len(seen))
	for h := range seen {
		out = append(out, h)
	}
	slices.Sort(out)
	return out
}
