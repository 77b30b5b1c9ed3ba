// Package redis is the Redis-backed Store implementation, used when the
// layer runs on more than one instance and credential/response caches
// must be shared.
package redis

import (
	"context"
	"time"

	"github.com/redis/rueidis"

	"github.com/carson-networks/bank-bridge/internal/cache"
)

// Store implements cache.Store over a rueidis client.
type Store struct {
	client rueidis.Client
	prefix string
}

// New connects to Redis at addr. prefix namespaces every key so several
// deployments can share one instance.
func New(addr, prefix string) (*Store, error) {
	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress: []string{addr},
	})
	if err != nil {
		return nil, err
	}
	return &Store{client: client, prefix: prefix}, nil
}

func (s *Store) key(key string) string {
	if s.prefix == "" {
		return key
	}
	return s.prefix + ":" + key
}

// Get returns the value for key, or cache.ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	resp := s.client.Do(ctx, s.client.B().Get().Key(s.key(key)).Build())
	value, err := resp.AsBytes()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, cache.ErrNotFound
		}
		return nil, err
	}
	return value, nil
}

// Set stores value under key with the given TTL.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	cmd := s.client.B().Set().Key(s.key(key)).Value(rueidis.BinaryString(value))
	if ttl > 0 {
		return s.client.Do(ctx, cmd.Ex(ttl).Build()).Error()
	}
	return s.client.Do(ctx, cmd.Build()).Error()
}

// Delete removes key.
func (s *Store) Delete(ctx context.Context, key string) error {
	return s.client.Do(ctx, s.client.B().Del().Key(s.key(key)).Build()).Error()
}

// Close releases the underlying client.
func (s *Store) Close() {
	s.client.Close()
}
