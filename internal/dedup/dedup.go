// Package dedup remembers which postings have already been notified.
package dedup

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/williampepple1/listing-notifier/internal/config"
)

// Store records dedup keys of notified postings
type Store interface {
	HasSeen(ctx context.Context, key string) (bool, error)
	MarkSeen(ctx context.Context, key string) error
	Close() error
}

// MemoryStore keeps seen keys for the process lifetime.
// With a TTL, keys older than the TTL count as unseen and are pruned.
type MemoryStore struct {
	mu   sync.Mutex
	ttl  time.Duration
	seen map[string]time.Time
	now  func() time.Time
}

// NewMemoryStore creates an in-memory store; ttl 0 keeps keys forever
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:  ttl,
		seen: make(map[string]time.Time),
		now:  time.Now,
	}
}

func (m *MemoryStore) HasSeen(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	at, ok := m.seen[key]
	if !ok {
		return false, nil
	}
	if m.expired(at) {
		delete(m.seen, key)
		return false, nil
	}
	return true, nil
}

func (m *MemoryStore) MarkSeen(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen[key] = m.now()
	return nil
}

// Prune drops expired keys and returns how many were removed
func (m *MemoryStore) Prune() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pruneLocked()
}

func (m *MemoryStore) pruneLocked() int {
	if m.ttl <= 0 {
		return 0
	}
	removed := 0
	for key, at := range m.seen {
		if m.expired(at) {
			delete(m.seen, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of keys held, expired or not
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.seen)
}

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) expired(at time.Time) bool {
	return m.ttl > 0 && m.now().Sub(at) > m.ttl
}

// Open creates the store selected by cfg.Backend
func Open(ctx context.Context, cfg *config.DedupConfig) (Store, error) {
	switch cfg.Backend {
	case config.BackendMemory, "":
		return NewMemoryStore(cfg.TTL), nil
	case config.BackendFile:
		return NewFileStore(cfg.FilePath, cfg.TTL)
	case config.BackendRedis:
		return NewRedisStore(ctx, cfg)
	case config.BackendPostgres:
		return NewPostgresStore(ctx, cfg.PostgresURL, cfg.TTL)
	default:
		return nil, fmt.Errorf("unknown dedup backend %q", cfg.Backend)
	}
}
