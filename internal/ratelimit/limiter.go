package ratelimit

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/sigilhq/sigil/internal/metrics"
)

var bucketRateLimits = []byte("rate_limits")

// Level represents the level of rate limiting
type Level string

const (
	LevelGlobal   Level = "global"
	LevelOrg      Level = "org"
	LevelProvider Level = "provider"
)

// Config contains rate limit configuration
type Config struct {
	// Global limits across all deployments
	Global *LimitConfig `yaml:"global,omitempty"`

	// Default limits for organizations without specific config
	DefaultOrg *LimitConfig `yaml:"default_org,omitempty"`

	// Default limits per mailbox provider
	DefaultProvider *LimitConfig `yaml:"default_provider,omitempty"`

	// Persistence settings
	FlushInterval time.Duration `yaml:"flush_interval,omitempty"`
}

// LimitConfig contains rate limit values
type LimitConfig struct {
	DeploysPerHour int `yaml:"deploys_per_hour" json:"deploys_per_hour"`
	DeploysPerDay  int `yaml:"deploys_per_day" json:"deploys_per_day"`
}

// Counter tracks rate limit counters
type Counter struct {
	HourlyCount int       `json:"hourly_count"`
	DailyCount  int       `json:"daily_count"`
	HourStart   time.Time `json:"hour_start"`
	DayStart    time.Time `json:"day_start"`
}

// Limiter throttles deployments at global, per-organization and
// per-provider levels. Counters survive restarts through BoltDB.
type Limiter struct {
	db       *bolt.DB
	config   *Config
	counters map[string]*Counter // key -> counter
	mu       sync.RWMutex
	stopCh   chan struct{}
}

// NewLimiter creates a new rate limiter
func NewLimiter(db *bolt.DB, cfg *Config) (*Limiter, error) {
	if cfg == nil {
		cfg = &Config{}
	}

	if cfg.FlushInterval == 0 {
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
		stopCh:   make(chan struct{}),
	}

	// Load persisted counters
	if err := l.loadCounters(); err != nil {
		return nil, fmt.Errorf("failed to load counters: %w", err)
	}

	// Start background persistence
	go l.persistLoop()

	return l, nil
}

// LimitError reports which limit denied the action and when it is
// worth trying again.
type LimitError struct {
	Level      Level
	Key        string
	RetryAfter time.Duration
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded at %s level (%s), retry after %s", e.Level, e.Key, e.RetryAfter.Round(time.Second))
}

// Allow reports whether a deployment for the organization and provider
// may proceed. It does not consume quota; call Record after a
// successful deployment.
func (l *Limiter) Allow(orgID, provider string) error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	now := time.Now()

	for _, check := range l.getChecks(orgID, provider) {
		counter, exists := l.counters[check.key]
		if !exists {
			continue
		}

		hourlyCount := counter.HourlyCount
		dailyCount := counter.DailyCount

		if now.Sub(counter.HourStart) >= time.Hour {
			hourlyCount = 0
		}
		if now.Sub(counter.DayStart) >= 24*time.Hour {
			dailyCount = 0
		}

		if check.limit.DeploysPerHour > 0 && hourlyCount >= check.limit.DeploysPerHour {
			metrics.IncRateLimitExceeded(string(check.level))
			return &LimitError{
				Level:      check.level,
				Key:        check.key,
				RetryAfter: counter.HourStart.Add(time.Hour).Sub(now),
			}
		}

		if check.limit.DeploysPerDay > 0 && dailyCount >= check.limit.DeploysPerDay {
			metrics.IncRateLimitExceeded(string(check.level))
			return &LimitError{
				Level:      check.level,
				Key:        check.key,
				RetryAfter: counter.DayStart.Add(24 * time.Hour).Sub(now),
			}
		}
	}

	return nil
}

// Record consumes quota after a successful deployment.
func (l *Limiter) Record(orgID, provider string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()

	for _, check := range l.getChecks(orgID, provider) {
		counter := l.getOrCreateCounter(check.key, now)
		l.resetExpiredCounters(counter, now)
		counter.HourlyCount++
		counter.DailyCount++
	}
}

// GetStats returns current rate limit statistics
func (l *Limiter) GetStats(level Level, key string) (*Stats, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	fullKey := makeKey(level, key)
	counter, exists := l.counters[fullKey]
	if !exists {
		return &Stats{
			Level: level,
			Key:   key,
		}, nil
	}

	now := time.Now()
	stats := &Stats{
		Level:       level,
		Key:         key,
		HourlyCount: counter.HourlyCount,
		DailyCount:  counter.DailyCount,
		HourStart:   counter.HourStart,
		DayStart:    counter.DayStart,
	}

	// Reset if expired
	if now.Sub(counter.HourStart) >= time.Hour {
		stats.HourlyCount = 0
	}
	if now.Sub(counter.DayStart) >= 24*time.Hour {
		stats.DailyCount = 0
	}

	return stats, nil
}

// Stop stops the rate limiter and persists counters
func (l *Limiter) Stop() error {
	close(l.stopCh)
	return l.persistCounters()
}

// Stats contains rate limit statistics
type Stats struct {
	Level       Level
	Key         string
	HourlyCount int
	DailyCount  int
	HourStart   time.Time
	DayStart    time.Time
}

type limitCheck struct {
	level Level
	key   string
	limit *LimitConfig
}

func (l *Limiter) getChecks(orgID, provider string) []limitCheck {
	var checks []limitCheck

	if l.config.Global != nil {
		checks = append(checks, limitCheck{
			level: LevelGlobal,
			key:   makeKey(LevelGlobal, "global"),
			limit: l.config.Global,
		})
	}

	if orgID != "" && l.config.DefaultOrg != nil {
		checks = append(checks, limitCheck{
			level: LevelOrg,
			key:   makeKey(LevelOrg, orgID),
			limit: l.config.DefaultOrg,
		})
	}

	if provider != "" && l.config.DefaultProvider != nil {
		checks = append(checks, limitCheck{
			level: LevelProvider,
			key:   makeKey(LevelProvider, provider),
			limit: l.config.DefaultProvider,
		})
	}

	return checks
}

func (l *Limiter) getOrCreateCounter(key string, now time.Time) *Counter {
	counter, exists := l.counters[key]
	if !exists {
		counter = &Counter{
			HourStart: now,
			DayStart:  now,
		}
		l.counters[key] = counter
	}
	return counter
}

func (l *Limiter) resetExpiredCounters(counter *Counter, now time.Time) {
	if now.Sub(counter.HourStart) >= time.Hour {
		counter.HourlyCount = 0
		counter.HourStart = now
	}
	if now.Sub(counter.DayStart) >= 24*time.Hour {
		counter.DailyCount = 0
		counter.DayStart = now
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
				return nil // Skip invalid entries
			}
			l.counters[string(k)] = &counter
			return nil
		})
	})
}

func (l *Limiter) persistCounters() error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketRateLimits)
		if bucket == nil {
			return nil
		}

		for key, counter := range l.counters {
			data, err := json.Marshal(counter)
			if err != nil {
				continue
			}
			if err := bucket.Put([]byte(key), data); err != nil {
				return err
			}
		}
		return nil
	})
}

func (l *Limiter) persistLoop() {
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
