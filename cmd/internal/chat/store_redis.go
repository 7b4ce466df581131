package chat

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// RedisStore is a Store backed by Redis.
//
// Ownership model: RedisStore does not own the client; the caller closes it.
//
// Prefix enumeration uses SCAN with a MATCH pattern rather than KEYS so a
// large keyspace never blocks the server.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore constructs a Redis-backed Store.
func NewRedisStore(rdb *redis.Client) (*RedisStore, error) {
	if rdb == nil {
		return nil, errors.New("chat: nil redis client")
	}
	return &RedisStore{rdb: rdb}, nil
}

// Put upserts a key without expiry; durability policy lives above the store.
func (s *RedisStore) Put(ctx context.Context, key string, value []byte) error {
	return s.rdb.Set(ctx, key, value, 0).Err()
}

// Delete removes a key. Redis DEL on an absent key is already a no-op.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}

// List scans all keys under prefix and fetches their values.
// Keys that disappear between SCAN and GET are skipped, which matches the
// contract: concurrent deletes must not fault an enumeration.
func (s *RedisStore) List(ctx context.Context, prefix string) ([]Entry, error) {
	var out []Entry

	iter := s.rdb.Scan(ctx, 0, escapeMatch(prefix)+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()

		val, err := s.rdb.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, Entry{Key: key, Value: val})
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// escapeMatch escapes SCAN MATCH glob metacharacters in a literal prefix.
// Room ids are opaque beyond the ':' separator, so they may still carry
// glob metacharacters.
func escapeMatch(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '*', '?', '[', ']', '^', '\\':
			out = append(out, '\\', c)
		default:
			out = append(out, c)
		}
	}
	return string(out)
}
