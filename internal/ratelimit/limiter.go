// Package ratelimit enforces hourly and daily quotas on AI-backed requests.
package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketRateLimits = []byte("rate_limits")

// Level is the scope a quota applies to
type Level string

const (
	LevelGlobal Level = "global"
	LevelOwner  Level = "owner"
)

// Config contains rate limit configuration
type Config struct {
	// Per owner quota
	Owner *LimitConfig `yaml:"owner,omitempty"`

	// Quota shared by every owner, protects the text generation budget
	Global *LimitConfig `yaml:"global,omitempty"`

	FlushInterval time.Duration `yaml:"flush_interval,omitempty"`
}

// LimitConfig contains quota values. Zero means unlimited.
type LimitConfig struct {
	RequestsPerHour int `yaml:"requests_per_hour" json:"requests_per_hour"`
	RequestsPerDay  int `yaml:"requests_per_day" json:"requests_per_day"`
}

// Counter tracks usage inside the current hour and day windows
type Counter struct {
	HourlyCount int       `json:"hourly_count"`
	DailyCount  int       `json:"daily_count"`
	HourStart   time.Time `json:"hour_start"`
	DayStart    time.Time `json:"day_start"`
}

// Limiter counts requests in memory and periodically flushes counters to BoltDB
type Limiter struct {
	db       *bolt.DB
	config   *Config
	counters map[string]*Counter
	dirty    map[string]bool
	removed  map[string]bool
	now      func() time.Time
	mu       sync.Mutex
	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewLimiter creates a limiter and restores persisted counters
func NewLimiter(db *bolt.DB, cfg *Config) (*Limiter, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 10 * time.Second
	}

	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketRateLimits)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limits bucket: %w", err)
	}

	l := &Limiter{
		db:       db,
		config:   cfg,
		counters: make(map[string]*Counter),
		dirty:    make(map[string]bool),
		removed:  make(map[string]bool),
		now:      time.Now,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}

	if err := l.loadCounters(); err != nil {
		return nil, fmt.Errorf("failed to load counters: %w", err)
	}

	go l.persistLoop()

	return l, nil
}

// Result contains the rate limit decision
type Result struct {
	Allowed    bool
	DeniedBy   Level
	RetryAfter time.Duration
	// Remaining requests in the tightest window of the owner quota, -1 when unlimited
	Remaining int
}

// Stats contains the usage of one key
type Stats struct {
	Level       Level     `json:"level"`
	Key         string    `json:"key"`
	HourlyCount int       `json:"hourly_count"`
	DailyCount  int       `json:"daily_count"`
	HourStart   time.Time `json:"hour_start"`
	DayStart    time.Time `json:"day_start"`
}

type limitCheck struct {
	level Level
	key   string
	limit *LimitConfig
}

// Allow consumes one request for owner if every applicable quota has room
func (l *Limiter) Allow(ctx context.Context, owner string) (*Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	checks := l.checks(owner)
	result := &Result{Allowed: true, Remaining: -1}

	for _, check := range checks {
		counter := l.getOrCreateCounter(check.key, now)
		resetExpired(counter, now)

		if denied, retry := exceeded(check.limit, counter, now); denied {
			result.Allowed = false
			result.DeniedBy = check.level
			result.RetryAfter = retry
			result.Remaining = 0
			return result, nil
		}
	}

	for _, check := range checks {
		counter := l.counters[check.key]
		counter.HourlyCount++
		counter.DailyCount++
		l.dirty[check.key] = true

		if check.level == LevelOwner {
			result.Remaining = remaining(check.limit, counter)
		}
	}

	return result, nil
}

// Stats returns the usage of owner, zero counts when unseen or expired
func (l *Limiter) Stats(ctx context.Context, owner string) *Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := makeKey(LevelOwner, owner)
	stats := &Stats{Level: LevelOwner, Key: owner}

	counter, ok := l.counters[key]
	if !ok {
		return stats
	}
	now := l.now()
	stats.HourStart = counter.HourStart
	stats.DayStart = counter.DayStart
	if now.Sub(counter.HourStart) < time.Hour {
		stats.HourlyCount = counter.HourlyCount
	}
	if now.Sub(counter.DayStart) < 24*time.Hour {
		stats.DailyCount = counter.DailyCount
	}
	return stats
}

// Forget drops the counters of owner, used when a user is purged
func (l *Limiter) Forget(owner string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := makeKey(LevelOwner, owner)
	delete(l.counters, key)
	delete(l.dirty, key)
	l.removed[key] = true
}

// Stop stops the background flush and persists counters
func (l *Limiter) Stop() error {
	l.stopOnce.Do(func() {
		close(l.stopCh)
		<-l.done
	})
	return l.persistCounters()
}

func (l *Limiter) checks(owner string) []limitCheck {
	var checks []limitCheck

	if l.config.Global != nil {
		checks = append(checks, limitCheck{
			level: LevelGlobal,
			key:   makeKey(LevelGlobal, "global"),
			limit: l.config.Global,
		})
	}

	if owner != "" && l.config.Owner != nil {
		checks = append(checks, limitCheck{
			level: LevelOwner,
			key:   makeKey(LevelOwner, owner),
			limit: l.config.Owner,
		})
	}

	return checks
}

func exceeded(limit *LimitConfig, c *Counter, now time.Time) (bool, time.Duration) {
	if limit.RequestsPerHour > 0 && c.HourlyCount >= limit.RequestsPerHour {
		return true, c.HourStart.Add(time.Hour).Sub(now)
	}
	if limit.RequestsPerDay > 0 && c.DailyCount >= limit.RequestsPerDay {
		return true, c.DayStart.Add(24 * time.Hour).Sub(now)
	}
	return false, 0
}

func remaining(limit *LimitConfig, c *Counter) int {
	left := -1
	if limit.RequestsPerHour > 0 {
		left = limit.RequestsPerHour - c.HourlyCount
	}
	if limit.RequestsPerDay > 0 {
		if d := limit.RequestsPerDay - c.DailyCount; left < 0 || d < left {
			left = d
		}
	}
	return left
}

func (l *Limiter) getOrCreateCounter(key string, now time.Time) *Counter {
	counter, ok := l.counters[key]
	if !ok {
		counter = &Counter{HourStart: now, DayStart: now}
		l.counters[key] = counter
	}
	return counter
}

func resetExpired(c *Counter, now time.Time) {
	if now.Sub(c.HourStart) >= time.Hour {
		c.HourlyCount = 0
		c.HourStart = now
	}
	if now.Sub(c.DayStart) >= 24*time.Hour {
		c.DailyCount = 0
		c.DayStart = now
	}
}

func (l *Limiter) loadCounters() error {
	return l.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketRateLimits)
		if bucket == nil {
			return nil
		}

		return bucket.ForEach(func(k, v []byte) error {
			var counter Counter
			if err := json.Unmarshal(v, &counter); err != nil {
				return nil
			}
			l.counters[string(k)] = &counter
			return nil
		})
	})
}

// persistCounters writes counters changed since the last flush
func (l *Limiter) persistCounters() error {
	l.mu.Lock()
	pending := make(map[string][]byte, len(l.dirty))
	for key := range l.dirty {
		if c, ok := l.counters[key]; ok {
			data, err := json.Marshal(c)
			if err != nil {
				continue
			}
			pending[key] = data
		}
	}
	removed := l.removed
	l.dirty = make(map[string]bool)
	l.removed = make(map[string]bool)
	l.mu.Unlock()

	if len(pending) == 0 && len(removed) == 0 {
		return nil
	}

	return l.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketRateLimits)
		if bucket == nil {
			return nil
		}
		for key := range removed {
			if err := bucket.Delete([]byte(key)); err != nil {
				return err
			}
		}
		for key, data := range pending {
			if err := bucket.Put([]byte(key), data); err != nil {
				return err
			}
		}
		return nil
	})
}

func (l *Limiter) persistLoop() {
	defer close(l.done)

	ticker := time.NewTicker(l.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopCh:
			return
		case <-ticker.C:
			l.persistCounters()
		}
	}
}

func makeKey(level Level, key string) string {
	return string(level) + ":" + key
}
