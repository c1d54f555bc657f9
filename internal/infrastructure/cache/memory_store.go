package cache

import (
	"context"
	"slices"
	"sync"
	"time"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryResultStore implements ResultStore with an in-process map.
// Entries are not shared across instances.
type MemoryResultStore struct {
	mu        sync.RWMutex
	entries   map[string]memoryEntry
	now       func() time.Time
	stopChan  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewMemoryResultStore creates a store that sweeps expired entries every interval
func NewMemoryResultStore(cleanupInterval time.Duration) *MemoryResultStore {
	s := &MemoryResultStore{
		entries:  make(map[string]memoryEntry),
		now:      time.Now,
		stopChan: make(chan struct{}),
	}
	if cleanupInterval > 0 {
		s.wg.Add(1)
		go s.cleanupLoop(cleanupInterval)
	}
	return s
}

// Get returns a copy of the live payload under key
func (s *MemoryResultStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[key]
	if !ok || !s.now().Before(e.expiresAt) {
		return nil, false, nil
	}
	return slices.Clone(e.value), true, nil
}

// SetEx stores a copy of value for ttl
func (s *MemoryResultStore) SetEx(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = memoryEntry{value: slices.Clone(value), expiresAt: s.now().Add(ttl)}
	return nil
}

// Ping always succeeds
func (s *MemoryResultStore) Ping(context.Context) error { return nil }

// Backend returns "memory"
func (s *MemoryResultStore) Backend() string { return "memory" }

// Len returns the number of stored entries, expired ones included until swept
func (s *MemoryResultStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Close stops the cleanup goroutine. Safe to call multiple times.
func (s *MemoryResultStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopChan)
		s.wg.Wait()
	})
	return nil
}

func (s *MemoryResultStore) cleanupLoop(interval time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *MemoryResultStore) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for key, e := range s.entries {
		if !now.Before(e.expiresAt) {
			delete(s.entries, key)
		}
	}
}
