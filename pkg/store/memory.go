package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

type memoryEntry struct {
	data      []byte
	expiresAt time.Time // zero = never
}

// MemoryStore is an in-process Store used in tests and local development.
// It mirrors the redis implementation's semantics, including lazy expiry.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	nowFn   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		nowFn:   time.Now,
	}
}

// SetClock overrides the expiry clock. Test hook.
func (s *MemoryStore) SetClock(nowFn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nowFn = nowFn
}

func (s *MemoryStore) live(key string) ([]byte, bool) {
	e, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	if !e.expiresAt.IsZero() && !s.nowFn().Before(e.expiresAt) {
		delete(s.entries, key)
		return nil, false
	}
	return e.data, true
}

func (s *MemoryStore) put(key string, data []byte, ttl time.Duration) {
	e := memoryEntry{data: data}
	if ttl > 0 {
		e.expiresAt = s.nowFn().Add(ttl)
	}
	s.entries[key] = e
}

func (s *MemoryStore) Get(_ context.Context, key string, dest any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.live(key)
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("store: decode %s: %w", key, err)
	}
	return true, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("store: encode %s: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(key, raw, ttl)
	return nil
}

func (s *MemoryStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return false, fmt.Errorf("store: encode %s: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.live(key); exists {
		return false, nil
	}
	s.put(key, raw, ttl)
	return true, nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

func (s *MemoryStore) GetByPrefix(_ context.Context, prefix string) ([][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out [][]byte
	for key := range s.entries {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		if data, ok := s.live(key); ok {
			out = append(out, data)
		}
	}
	return out, nil
}

func (s *MemoryStore) IncrBy(_ context.Context, key string, delta int64, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var current int64
	if data, ok := s.live(key); ok {
		n, err := strconv.ParseInt(string(data), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("store: incr %s: not an integer", key)
		}
		current = n
		next := current + delta
		e := s.entries[key]
		e.data = []byte(strconv.FormatInt(next, 10))
		s.entries[key] = e
		return next, nil
	}

	s.put(key, []byte(strconv.FormatInt(delta, 10)), ttl)
	return delta, nil
}

func (s *MemoryStore) Update(_ context.Context, key string, fn UpdateFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, found := s.live(key)
	next, err := fn(cur, found)
	if err != nil {
		return err
	}

	// Preserve any existing expiry, matching redis KEEPTTL.
	e := s.entries[key]
	e.data = next
	s.entries[key] = e
	return nil
}
