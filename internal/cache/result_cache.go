// Package cache provides the per-lottery TTL caches that sit at the
// pipeline boundaries: one for today's extraction result, one for
// computed scores.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"animalitos-analytics/internal/models"
	"animalitos-analytics/internal/storage"
)

// entry wraps a cached payload with timing metadata.
type entry struct {
	Payload   json.RawMessage `json:"payload"`
	CachedAt  time.Time       `json:"cached_at"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// Stats tracks cache performance counters.
type Stats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Sets   int64 `json:"sets"`
}

// TTLCache is a JSON value cache keyed per lottery identifier, stored in
// the shared KV store so entries survive restarts and expire server-side.
type TTLCache struct {
	store  storage.Store
	logger *logrus.Logger
	prefix string
	ttl    time.Duration

	mu    sync.Mutex
	stats Stats
}

// NewTodayCache builds the short-TTL cache for today's extraction results.
func NewTodayCache(store storage.Store, logger *logrus.Logger, ttl time.Duration) *TTLCache {
	return &TTLCache{store: store, logger: logger, prefix: "today_cache:", ttl: ttl}
}

// NewScoreCache builds the cache for computed score rankings.
func NewScoreCache(store storage.Store, logger *logrus.Logger, ttl time.Duration) *TTLCache {
	return &TTLCache{store: store, logger: logger, prefix: "score_cache:", ttl: ttl}
}

// Get loads a cached value into out. Reports false on miss, expiry or
// a deserialization problem.
func (c *TTLCache) Get(ctx context.Context, lottery models.LotteryID, out interface{}) bool {
	raw, err := c.store.Get(ctx, c.prefix+string(lottery))
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			c.logger.WithFields(logrus.Fields{"lottery": lottery, "error": err}).Warn("Cache read failed")
		}
		c.miss()
		return false
	}

	var e entry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		c.logger.WithFields(logrus.Fields{"lottery": lottery, "error": err}).Warn("Corrupt cache entry")
		c.miss()
		return false
	}

	// The store expires entries on its own; the timestamp check covers
	// backends without TTL support.
	if time.Now().After(e.ExpiresAt) {
		c.miss()
		return false
	}

	if err := json.Unmarshal(e.Payload, out); err != nil {
		c.logger.WithFields(logrus.Fields{"lottery": lottery, "error": err}).Warn("Corrupt cache payload")
		c.miss()
		return false
	}

	c.mu.Lock()
	c.stats.Hits++
	c.mu.Unlock()
	return true
}

// Set stores a value for a lottery with the cache's TTL.
func (c *TTLCache) Set(ctx context.Context, lottery models.LotteryID, value interface{}) {
	payload, err := json.Marshal(value)
	if err != nil {
		c.logger.WithFields(logrus.Fields{"lottery": lottery, "error": err}).Warn("Cache serialize failed")
		return
	}

	now := time.Now()
	data, err := json.Marshal(entry{
		Payload:   payload,
		CachedAt:  now,
		ExpiresAt: now.Add(c.ttl),
	})
	if err != nil {
		c.logger.WithFields(logrus.Fields{"lottery": lottery, "error": err}).Warn("Cache serialize failed")
		return
	}

	if err := c.store.Set(ctx, c.prefix+string(lottery), string(data), c.ttl); err != nil {
		c.logger.WithFields(logrus.Fields{"lottery": lottery, "error": err}).Warn("Cache write failed")
		return
	}

	c.mu.Lock()
	c.stats.Sets++
	c.mu.Unlock()
}

// Invalidate drops the entry for one lottery.
func (c *TTLCache) Invalidate(ctx context.Context, lottery models.LotteryID) error {
	return c.store.Remove(ctx, c.prefix+string(lottery))
}

// GetStats returns a copy of the hit/miss counters.
func (c *TTLCache) GetStats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func (c *TTLCache) miss() {
	c.mu.Lock()
	c.stats.Misses++
	c.mu.Unlock()
}
