// Package app wires the inkroom server runtime: config, logging, storage
// substrate selection, HTTP routes, and the chat gateway.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"golang.org/x/sync/errgroup"

	"inkroom/cmd/internal/chat"
)

// App is the inkroom server runtime.
type App struct {
	cfg Config
	log Logger

	dbPool *pgxpool.Pool
	rdb    *redis.Client

	store  chat.Store
	status chat.StatusStore
	hub    *chat.Hub
	gw     *chat.Gateway
}

// New constructs a fully wired App instance from config and logger.
func New(cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel)
	}

	a := &App{cfg: cfg, log: log}

	if err := a.initStores(context.Background()); err != nil {
		return nil, err
	}

	a.hub = chat.NewHub(log, a.store, cfg.FlushDelay, cfg.RoomIdleTTL)
	a.gw = chat.NewGateway(log, a.hub, a.status, chat.GatewayConfig{
		OriginRequired:    cfg.WSOriginRequired,
		AllowedOrigins:    cfg.WSAllowedOrigins,
		DevInsecure:       cfg.WSDevInsecure,
		WriteTimeout:      cfg.WSWriteTimeout,
		ReadIdleTimeout:   cfg.WSReadIdleTimeout,
		SendQueueSize:     cfg.WSSendQueue,
		HeartbeatInterval: cfg.WSHeartbeatInterval,
		HeartbeatTimeout:  cfg.WSHeartbeatTimeout,
		RateEvents:        cfg.WSRateEvents,
		RateWindow:        cfg.WSRateWindow,
		EnforceRoomStatus: cfg.EnforceRoomStatus,
	})

	return a, nil
}

// initStores selects the storage substrate: Postgres when configured, else
// Redis, else in-process memory. Room status needs the relational store and
// degrades to a no-op otherwise.
func (a *App) initStores(ctx context.Context) error {
	switch {
	case a.cfg.DatabaseURL != "":
		pool, err := NewDBPool(ctx, a.cfg)
		if err != nil {
			return err
		}

		kv, err := chat.NewPostgresStore(pool)
		if err != nil {
			pool.Close()
			return err
		}
		status, err := chat.NewPostgresStatusStore(pool)
		if err != nil {
			pool.Close()
			return err
		}
		if err := kv.EnsureSchema(ctx); err != nil {
			pool.Close()
			return err
		}
		if err := status.EnsureSchema(ctx); err != nil {
			pool.Close()
			return err
		}

		a.dbPool = pool
		a.store = kv
		a.status = status
		a.log.Info("store.postgres")

	case a.cfg.RedisAddr != "":
		rdb, err := NewRedisClient(ctx, a.cfg)
		if err != nil {
			return err
		}
		kv, err := chat.NewRedisStore(rdb)
		if err != nil {
			_ = rdb.Close()
			return err
		}

		a.rdb = rdb
		a.store = kv
		a.status = chat.NopStatusStore{}
		a.log.Info("store.redis", "addr", a.cfg.RedisAddr)

	default:
		a.store = chat.NewMemoryStore()
		a.status = chat.NopStatusStore{}
		a.log.Info("store.memory")
	}

	return nil
}

// Run starts the HTTP server and the room janitor, blocking until context
// cancellation or a fatal error.
func (a *App) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	registerHTTP(mux, a.log, a.cfg, a.dbPool, a.rdb, a.gw, a.status)

	handler := cors.New(cors.Options{
		AllowedOrigins:   a.cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPut},
		AllowCredentials: true,
	}).Handler(mux)

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           WithRequestLogging(handler, a.log),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		err := a.hub.RunJanitor(gctx, a.cfg.JanitorInterval)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-gctx.Done()
		a.log.Info("server.stop", "reason", "context_done")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err := g.Wait()

	a.closeStores()
	a.log.Info("server.stopped")
	return err
}

func (a *App) closeStores() {
	if a.dbPool != nil {
		a.dbPool.Close()
	}
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
