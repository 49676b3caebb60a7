package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"leapScope/internal/pipeline"
)

// Response TTLs per timeframe: shorter windows refresh faster.
const (
	ttlDaily   = 25 * time.Second
	ttlWeekly  = 60 * time.Second
	ttlMonthly = 120 * time.Second
	ttlAll     = 300 * time.Second

	sweepInterval = 30 * time.Second
)

// TTLFor returns the response TTL for a timeframe.
func TTLFor(tf pipeline.Timeframe) time.Duration {
	switch tf {
	case pipeline.TimeframeDaily:
		return ttlDaily
	case pipeline.TimeframeWeekly:
		return ttlWeekly
	case pipeline.TimeframeMonthly:
		return ttlMonthly
	default:
		return ttlAll
	}
}

// Key joins request coordinates into a cache key.
func Key(parts ...string) string {
	return strings.Join(parts, ":")
}

type entry struct {
	value     interface{}
	expiresAt time.Time
}

// Store is an in-process response cache with per-entry TTLs, passed into
// the HTTP layer explicitly. Concurrent misses for the same key are not
// deduplicated; both run the pipeline and the last write wins.
type Store struct {
	mu      sync.RWMutex
	entries map[string]entry
	logger  *zap.Logger
	now     func() time.Time
}

func NewStore(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		entries: make(map[string]entry),
		logger:  logger,
		now:     time.Now,
	}
}

// Get returns the cached value when present and not expired.
func (s *Store) Get(key string) (interface{}, bool) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok || s.now().After(e.expiresAt) {
		return nil, false
	}
	return e.value, true
}

// Set stores a value until its TTL elapses. Non-positive TTLs disable
// caching for the entry.
func (s *Store) Set(key string, value interface{}, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	s.mu.Lock()
	s.entries[key] = entry{value: value, expiresAt: s.now().Add(ttl)}
	s.mu.Unlock()
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// StartSweeper drops expired entries periodically until ctx is done.
func (s *Store) StartSweeper(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if removed := s.sweep(); removed > 0 {
					s.logger.Debug("cache sweep", zap.Int("removed", removed))
				}
			}
		}
	}()
}

func (s *Store) sweep() int {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for key, e := range s.entries {
		if now.After(e.expiresAt) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}
