package store

import (
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"github.com/himakhaitan/wscache/pkg/config"
	"go.uber.org/zap"
)

// Store is a bounded in-memory key/value cache with least-recently-used eviction
type Store struct {
	mu       sync.Mutex
	lru      *simplelru.LRU[string, *Entry]
	stats    collector
	capacity int
	now      func() time.Time
	logger   *zap.Logger
}

// New creates a store sized from the config
func New(logger *zap.Logger, cfg *config.Config) (*Store, error) {
	s, err := NewWithCapacity(logger, cfg.Capacity)
	if err != nil {
		return nil, err
	}
	logger.Info("Cache store initialized", zap.Int("capacity", cfg.Capacity))
	return s, nil
}

// NewWithCapacity creates a store holding at most capacity entries
func NewWithCapacity(logger *zap.Logger, capacity int) (*Store, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCapacity, capacity)
	}

	// simplelru is not goroutine safe; every access goes through s.mu
	l, err := simplelru.NewLRU[string, *Entry](capacity, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create lru: %w", err)
	}

	return &Store{
		lru:      l,
		capacity: capacity,
		now:      time.Now,
		logger:   logger,
	}, nil
}

// Put inserts or overwrites the value for key. When a new key would exceed
// capacity the least recently used entry is evicted first.
func (s *Store) Put(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := s.lru.Add(key, &Entry{Key: key, Value: value, InsertedAt: s.now()})
	s.stats.inserts++
	if evicted {
		s.stats.evictions++
		s.logger.Debug("Evicted least recently used entry", zap.Int("capacity", s.capacity))
	}
}

// Get returns the value for key and refreshes its recency
func (s *Store) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.lru.Get(key)
	if !ok {
		s.stats.misses++
		return "", false
	}
	s.stats.hits++
	return entry.Value, true
}

// Peek returns a copy of the entry without touching recency or counters
func (s *Store) Peek(key string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.lru.Peek(key)
	if !ok {
		return Entry{}, false
	}
	return *entry, true
}

// Keys returns keys from least to most recently used
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lru.Keys()
}

// Len returns the number of entries
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lru.Len()
}

// Capacity returns the configured entry bound
func (s *Store) Capacity() int {
	return s.capacity
}

// Snapshot reads all counters and the size in one critical section
func (s *Store) Snapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats.snapshot(s.lru.Len())
}
