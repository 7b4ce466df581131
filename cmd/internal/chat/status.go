package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RoomStatus is the administrative state of a room. It is owned by the
// surrounding application; the coordinator only reads it at connection time
// (and only enforces it when configured to).
type RoomStatus string

const (
	StatusActive   RoomStatus = "active"
	StatusArchived RoomStatus = "archived"
	StatusBlocked  RoomStatus = "blocked"
)

// ParseRoomStatus validates a status value from the wire.
func ParseRoomStatus(s string) (RoomStatus, error) {
	switch RoomStatus(strings.TrimSpace(strings.ToLower(s))) {
	case StatusActive:
		return StatusActive, nil
	case StatusArchived:
		return StatusArchived, nil
	case StatusBlocked:
		return StatusBlocked, nil
	default:
		return "", fmt.Errorf("unknown room status: %q", s)
	}
}

// StatusStore is the administrative room-status boundary.
type StatusStore interface {
	// Get returns the status of roomID. Rooms never written default to active.
	Get(ctx context.Context, roomID string) (RoomStatus, error)
	// Set upserts the status of roomID.
	Set(ctx context.Context, roomID string, status RoomStatus) error
}

// NopStatusStore reports every room active and discards writes. Used when no
// relational store is configured.
type NopStatusStore struct{}

func (NopStatusStore) Get(_ context.Context, _ string) (RoomStatus, error) {
	return StatusActive, nil
}

func (NopStatusStore) Set(_ context.Context, _ string, _ RoomStatus) error { return nil }

// PostgresStatusStore keeps room status in a small relational table.
//
// Ownership model: does not own the pool.
type PostgresStatusStore struct {
	pool   *pgxpool.Pool
	schema string
}

// NewPostgresStatusStore constructs a status store backed by PostgreSQL.
func NewPostgresStatusStore(pool *pgxpool.Pool) (*PostgresStatusStore, error) {
	if pool == nil {
		return nil, errors.New("chat: nil pool")
	}
	return &PostgresStatusStore{pool: pool, schema: "inkroom"}, nil
}

// EnsureSchema creates the schema and room table when absent.
func (s *PostgresStatusStore) EnsureSchema(ctx context.Context) error {
	rooms := pgIdent(s.schema, "chat_rooms")

	if _, err := s.pool.Exec(ctx, `CREATE SCHEMA IF NOT EXISTS `+quotePGIdent(s.schema)); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx,
		`CREATE TABLE IF NOT EXISTS `+rooms+` (
			id     text PRIMARY KEY,
			status text NOT NULL DEFAULT 'active',
			updated_at timestamptz NOT NULL DEFAULT now()
		)`)
	return err
}

// Get returns the stored status, defaulting to active for unknown rooms.
func (s *PostgresStatusStore) Get(ctx context.Context, roomID string) (RoomStatus, error) {
	rooms := pgIdent(s.schema, "chat_rooms")

	var raw string
	err := s.pool.QueryRow(ctx,
		`SELECT status FROM `+rooms+` WHERE id = $1`, roomID,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return StatusActive, nil
	}
	if err != nil {
		return "", err
	}
	return ParseRoomStatus(raw)
}

// Set upserts the status for roomID.
func (s *PostgresStatusStore) Set(ctx context.Context, roomID string, status RoomStatus) error {
	rooms := pgIdent(s.schema, "chat_rooms")

	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+rooms+` (id, status, updated_at) VALUES ($1, $2, now())
		 ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, updated_at = now()`,
		roomID, string(status),
	)
	return err
}
