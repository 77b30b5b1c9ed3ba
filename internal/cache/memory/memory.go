// Package memory is the in-process Store implementation. It is the
// default when no Redis address is configured.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/carson-networks/bank-bridge/internal/cache"
)

type entry struct {
	value     []byte
	expiresAt time.Time
}

// Store is a thread-safe in-memory TTL cache with background cleanup.
type Store struct {
	mu          sync.RWMutex
	data        map[string]entry
	defaultTTL  time.Duration
	ticker      *time.Ticker
	stopCleanup chan struct{}
	stopOnce    sync.Once
}

// Config controls defaults for a memory Store.
type Config struct {
	// DefaultTTL applies when Set is called with ttl <= 0.
	DefaultTTL time.Duration

	// CleanupInterval is how often expired entries are swept.
	CleanupInterval time.Duration
}

// New creates a memory Store and starts its cleanup goroutine.
func New(cfg Config) *Store {
	if cfg.DefaultTTL == 0 {
		cfg.DefaultTTL = time.Hour
	}
	if cfg.CleanupInterval == 0 {
		cfg.CleanupInterval = time.Minute
	}

	s := &Store{
		data:        make(map[string]entry),
		defaultTTL:  cfg.DefaultTTL,
		ticker:      time.NewTicker(cfg.CleanupInterval),
		stopCleanup: make(chan struct{}),
	}
	go s.cleanup()
	return s
}

// Get returns the value for key, or cache.ErrNotFound once expired.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	e, ok := s.data[key]
	s.mu.RUnlock()

	if !ok {
		return nil, cache.ErrNotFound
	}
	if time.Now().After(e.expiresAt) {
		s.mu.Lock()
		delete(s.data, key)
		s.mu.Unlock()
		return nil, cache.ErrNotFound
	}
	return e.value, nil
}

// Set stores value under key for ttl, or the default TTL when ttl <= 0.
func (s *Store) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	s.mu.Lock()
	s.data[key] = entry{value: value, expiresAt: time.Now().Add(ttl)}
	s.mu.Unlock()
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.data, key)
	s.mu.Unlock()
	return nil
}

// Close stops the cleanup goroutine.
func (s *Store) Close() {
	s.stopOnce.Do(func() {
		close(s.stopCleanup)
		s.ticker.Stop()
	})
}

func (s *Store) cleanup() {
	for {
		select {
		case <-s.stopCleanup:
			return
		case <-s.ticker.C:
			now := time.Now()
			s.mu.Lock()
			for key, e := range s.data {
				if now.After(e.expiresAt) {
					delete(s.data, key)
				}
			}
			s.mu.Unlock()
		}
	}
}
