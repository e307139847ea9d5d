package session

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/smallbiznis/kasira/internal/cache"
	"github.com/smallbiznis/kasira/internal/clock"
)

// MemoryStore keeps sessions in process. Used when Redis is not configured and in tests.
type MemoryStore struct {
	mu    sync.Mutex
	items *cache.TTLCache[string, map[string]string]
	ttl   time.Duration
}

func NewMemoryStore(clk clock.Clock, ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		items: cache.NewTTLCache[string, map[string]string](clk),
		ttl:   ttl,
	}
}

func (s *MemoryStore) Get(_ context.Context, sid, key string) (string, bool, error) {
	if sid == "" {
		return "", false, ErrEmptySessionID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	values, ok := s.items.Get(storageKey(sid))
	if !ok {
		return "", false, nil
	}
	value, ok := values[key]
	return value, ok, nil
}

func (s *MemoryStore) Set(_ context.Context, sid, key, value string) error {
	if sid == "" {
		return ErrEmptySessionID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	k := storageKey(sid)
	values, _ := s.items.Get(k)
	next := make(map[string]string, len(values)+1)
	maps.Copy(next, values)
	next[key] = value
	s.items.Set(k, next, s.ttl)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, sid string, keys ...string) error {
	if sid == "" {
		return ErrEmptySessionID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	k := storageKey(sid)
	values, ok := s.items.Get(k)
	if !ok {
		return nil
	}
	next := maps.Clone(values)
	for _, key := range keys {
		delete(next, key)
	}
	s.items.Set(k, next, s.ttl)
	return nil
}

func (s *MemoryStore) Destroy(_ context.Context, sid string) error {
	if sid == "" {
		return ErrEmptySessionID
	}
	s.mu.Lock()
	s.items.Delete(storageKey(sid))
	s.mu.Unlock()
	return nil
}

// Sweep evicts expired sessions.
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.items.Sweep()
}
