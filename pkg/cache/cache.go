// Package cache is a thin JSON-over-Redis store. The redis session store
// keeps its records here.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Options mirrors a redis config block.
type Options struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

type Store struct {
	rdb    *redis.Client
	prefix string
}

// New builds a store without contacting the server.
func New(opts Options) *Store {
	addr := opts.Addr
	if addr == "" {
		addr = "127.0.0.1:6379"
	}
	return &Store{
		rdb: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: opts.Password,
			DB:       opts.DB,
		}),
		prefix: opts.Prefix,
	}
}

// Connect builds a store and verifies the connection with a ping.
func Connect(ctx context.Context, opts Options) (*Store, error) {
	s := New(opts)
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		_ = s.rdb.Close()
		return nil, fmt.Errorf("cache: redis ping %s: %w", s.rdb.Options().Addr, err)
	}
	return s, nil
}

func (s *Store) key(k string) string { return s.prefix + k }

// Get unmarshals the value under key into dest. It reports false on a miss.
func (s *Store) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	raw, err := s.GetBytes(ctx, key)
	if err != nil || raw == nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, fmt.Errorf("cache: decode %s: %w", key, err)
	}
	return true, nil
}

// Set stores value as JSON under key for ttl (0 = no expiry).
func (s *Store) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: encode %s: %w", key, err)
	}
	return s.SetBytes(ctx, key, data, ttl)
}

// GetBytes returns the raw value under key, or nil on a miss.
func (s *Store) GetBytes(ctx context.Context, key string) ([]byte, error) {
	val, err := s.rdb.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache: get %s: %w", key, err)
	}
	return val, nil
}

func (s *Store) SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.rdb.Set(ctx, s.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("cache: set %s: %w", key, err)
	}
	return nil
}

// Del removes one or more keys.
func (s *Store) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.key(k)
	}
	return s.rdb.Del(ctx, full...).Err()
}

// Forget is an alias for Del.
func (s *Store) Forget(ctx context.Context, key string) error {
	return s.Del(ctx, key)
}

// TTL returns the remaining lifetime of key.
func (s *Store) TTL(ctx context.Context, key string) (time.Duration, error) {
	return s.rdb.TTL(ctx, s.key(key)).Result()
}

func (s *Store) Close() error { return s.rdb.Close() }
