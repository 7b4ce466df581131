package app

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"inkroom/cmd/internal/chat"
)

func registerHTTP(
	mux *http.ServeMux,
	log Logger,
	cfg Config,
	dbPool *pgxpool.Pool,
	rdb *redis.Client,
	gw *chat.Gateway,
	status chat.StatusStore,
) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		externalStore := dbPool != nil || rdb != nil
		if cfg.ReadinessRequireStore && !externalStore {
			http.Error(w, "store not configured", http.StatusServiceUnavailable)
			return
		}

		if dbPool != nil {
			if err := PingDB(r.Context(), dbPool, 2*time.Second); err != nil {
				log.Info("readyz.db.not_ready", "err", err)
				http.Error(w, "db not ready", http.StatusServiceUnavailable)
				return
			}
		}
		if rdb != nil {
			pingCtx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			err := rdb.Ping(pingCtx).Err()
			cancel()
			if err != nil {
				log.Info("readyz.redis.not_ready", "err", err)
				http.Error(w, "redis not ready", http.StatusServiceUnavailable)
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready\n"))
	})

	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/ws", gw.HandleWS)

	// Administrative room-status boundary. The coordinator reads status at
	// connection time (when enforcement is on); the surrounding application
	// writes it here.
	mux.HandleFunc("GET /rooms/{id}/status", func(w http.ResponseWriter, r *http.Request) {
		roomID := r.PathValue("id")

		st, err := status.Get(r.Context(), roomID)
		if err != nil {
			log.Error("rooms.status.get.fail", "room_id", roomID, "err", err)
			http.Error(w, "status lookup failed", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, roomStatusBody{RoomID: roomID, Status: string(st)})
	})

	mux.HandleFunc("PUT /rooms/{id}/status", func(w http.ResponseWriter, r *http.Request) {
		roomID := r.PathValue("id")

		var body roomStatusBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
		st, err := chat.ParseRoomStatus(body.Status)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		if err := status.Set(r.Context(), roomID, st); err != nil {
			log.Error("rooms.status.set.fail", "room_id", roomID, "err", err)
			http.Error(w, "status update failed", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, roomStatusBody{RoomID: roomID, Status: string(st)})
	})
}

type roomStatusBody struct {
	RoomID string `json:"room_id,omitempty"`
	Status string `json:"status"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
