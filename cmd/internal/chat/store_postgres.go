// Package chat contains the inkroom room coordinator: session registry,
// frame routing, broadcast fan-out, and write-behind message persistence.
package chat

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is a Store backed by a single key/value table in PostgreSQL.
//
// Ownership model:
//   - PostgresStore does NOT own the pgx pool. The caller must close the pool.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures PostgresStore behavior.
type PostgresOption func(*PostgresStore) error

// WithSchema sets the DB schema used by this store (default: "inkroom").
// The schema name is validated and safely quoted in queries.
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return errors.New("chat: empty schema")
		}
		if !isValidPGIdent(schema) {
			return errors.New("chat: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a Postgres-backed Store.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: "inkroom",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, errors.New("chat: nil pool")
	}
	return st, nil
}

// EnsureSchema creates the schema and key/value table when absent.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	kv := pgIdent(s.schema, "chat_kv")

	if _, err := s.pool.Exec(ctx, `CREATE SCHEMA IF NOT EXISTS `+quotePGIdent(s.schema)); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx,
		`CREATE TABLE IF NOT EXISTS `+kv+` (
			key   text PRIMARY KEY,
			value bytea NOT NULL,
			updated_at timestamptz NOT NULL DEFAULT now()
		)`)
	return err
}

// Put upserts a key.
func (s *PostgresStore) Put(ctx context.Context, key string, value []byte) error {
	if s == nil || s.pool == nil {
		return errors.New("chat: nil store")
	}

	kv := pgIdent(s.schema, "chat_kv")
	_, err := s.pool.Exec(ctx,
		`INSERT INTO `+kv+` (key, value, updated_at) VALUES ($1, $2, now())
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		key, value,
	)
	return err
}

// Delete removes a key. Deleting an absent key is a no-op.
func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	if s == nil || s.pool == nil {
		return errors.New("chat: nil store")
	}

	kv := pgIdent(s.schema, "chat_kv")
	_, err := s.pool.Exec(ctx, `DELETE FROM `+kv+` WHERE key = $1`, key)
	return err
}

// List returns all entries under prefix, ordered by key.
func (s *PostgresStore) List(ctx context.Context, prefix string) ([]Entry, error) {
	if s == nil || s.pool == nil {
		return nil, errors.New("chat: nil store")
	}

	kv := pgIdent(s.schema, "chat_kv")
	rows, err := s.pool.Query(ctx,
		`SELECT key, value FROM `+kv+` WHERE key LIKE $1 ESCAPE '\' ORDER BY key`,
		escapeLike(prefix)+"%",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Key, &e.Value); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// escapeLike escapes LIKE metacharacters so prefix is matched literally.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}

// ---- identifier quoting ----

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func isValidPGIdent(s string) bool {
	return pgIdentRe.MatchString(s)
}

func quotePGIdent(s string) string {
	return `"` + s + `"`
}

// pgIdent renders a schema-qualified, quoted table identifier.
// Both parts are validated at construction time.
func pgIdent(schema, table string) string {
	return quotePGIdent(schema) + "." + quotePGIdent(table)
}
