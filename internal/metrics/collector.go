package metrics

import (
	"context"
	"encoding/json"
	"os"
	"runtime"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

// QueueStats contains deployment queue statistics for metrics
type QueueStats struct {
	Pending   int64
	Deploying int64
	Deferred  int64
	Deployed  int64
	Failed    int64
	Total     int64
}

// QueueStatsProvider provides queue statistics for metrics
type QueueStatsProvider interface {
	Stats(ctx context.Context) (*QueueStats, error)
}

var bucketMetrics = []byte("metrics")

// ShadowCounters stores counter values for persistence
type ShadowCounters struct {
	Compiles          map[string]float64 `json:"compiles"`
	CompileWarnings   map[string]float64 `json:"compile_warnings"`
	Deploys           map[string]float64 `json:"deploys"`
	DeploysFailed     map[string]float64 `json:"deploys_failed"`
	DeploysDeferred   map[string]float64 `json:"deploys_deferred"`
	APIRequests       map[string]float64 `json:"api_requests"`
	APIErrors         map[string]float64 `json:"api_errors"`
	RateLimitExceeded map[string]float64 `json:"ratelimit_exceeded"`
}

// Collector handles metrics persistence and system gauge updates
type Collector struct {
	db            *bolt.DB
	metrics       *Metrics
	queueStats    QueueStatsProvider
	storagePath   string
	flushInterval time.Duration
	startTime     time.Time

	shadow ShadowCounters
	mu     sync.Mutex
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewCollector creates a new metrics collector
func NewCollector(db *bolt.DB, m *Metrics, queueStats QueueStatsProvider, storagePath string, flushInterval time.Duration) (*Collector, error) {
	if flushInterval == 0 {
		flushInterval = 10 * time.Second
	}

	// Create bucket if not exists
	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketMetrics)
		return err
	})
	if err != nil {
		return nil, err
	}

	c := &Collector{
		db:            db,
		metrics:       m,
		queueStats:    queueStats,
		storagePath:   storagePath,
		flushInterval: flushInterval,
		startTime:     time.Now(),
		shadow: ShadowCounters{
			Compiles:          make(map[string]float64),
			CompileWarnings:   make(map[string]float64),
			Deploys:           make(map[string]float64),
			DeploysFailed:     make(map[string]float64),
			DeploysDeferred:   make(map[string]float64),
			APIRequests:       make(map[string]float64),
			APIErrors:         make(map[string]float64),
			RateLimitExceeded: make(map[string]float64),
		},
		stopCh: make(chan struct{}),
	}

	// Load persisted counters
	if err := c.loadCounters(); err != nil {
		return nil, err
	}

	return c, nil
}

// Start begins the collector background tasks
func (c *Collector) Start(ctx context.Context) {
	c.wg.Add(2)
	go c.persistLoop(ctx)
	go c.updateSystemMetrics(ctx)
}

// Stop stops the collector and persists final values
func (c *Collector) Stop() error {
	close(c.stopCh)
	c.wg.Wait()
	return c.persistCounters()
}

// loadCounters loads persisted counter values from BoltDB
func (c *Collector) loadCounters() error {
	return c.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketMetrics)
		if bucket == nil {
			return nil
		}

		data := bucket.Get([]byte("counters"))
		if data == nil {
			return nil
		}

		var shadow ShadowCounters
		if err := json.Unmarshal(data, &shadow); err != nil {
			return nil // Skip invalid data
		}

		c.mu.Lock()
		defer c.mu.Unlock()

		// Restore compilation counters
		for k, v := range shadow.Compiles {
			c.shadow.Compiles[k] = v
			c.metrics.CompilesTotal.WithLabelValues(k).Add(v)
		}
		for k, v := range shadow.CompileWarnings {
			c.shadow.CompileWarnings[k] = v
			c.metrics.CompileWarningsTotal.WithLabelValues(k).Add(v)
		}

		// Restore deployment counters
		for k, v := range shadow.Deploys {
			c.shadow.Deploys[k] = v
			c.metrics.DeploysTotal.WithLabelValues(k).Add(v)
		}
		for k, v := range shadow.DeploysFailed {
			provider, errorType := splitLabelKey(k)
			c.shadow.DeploysFailed[k] = v
			c.metrics.DeploysFailedTotal.WithLabelValues(provider, errorType).Add(v)
		}
		for k, v := range shadow.DeploysDeferred {
			c.shadow.DeploysDeferred[k] = v
			c.metrics.DeploysDeferredTotal.WithLabelValues(k).Add(v)
		}

		// Restore API counters
		for k, v := range shadow.APIRequests {
			method, path, status := splitTripleLabelKey(k)
			c.shadow.APIRequests[k] = v
			c.metrics.APIRequestsTotal.WithLabelValues(method, path, status).Add(v)
		}
		for k, v := range shadow.APIErrors {
			c.shadow.APIErrors[k] = v
			c.metrics.APIErrorsTotal.WithLabelValues(k).Add(v)
		}

		// Restore rate limit counters
		for k, v := range shadow.RateLimitExceeded {
			c.shadow.RateLimitExceeded[k] = v
			c.metrics.RateLimitExceededTotal.WithLabelValues(k).Add(v)
		}

		return nil
	})
}

// persistCounters saves counter values to BoltDB
func (c *Collector) persistCounters() error {
	c.mu.Lock()
	shadow := c.shadow
	c.mu.Unlock()

	return c.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketMetrics)
		if bucket == nil {
			return nil
		}

		data, err := json.Marshal(shadow)
		if err != nil {
			return err
		}

		return bucket.Put([]byte("counters"), data)
	})
}

// persistLoop periodically persists counter values
func (c *Collector) persistLoop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.persistCounters()
		}
	}
}

// updateSystemMetrics periodically updates system gauges
func (c *Collector) updateSystemMetrics(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.collectSystemMetrics(ctx)
		}
	}
}

// collectSystemMetrics collects current system state
func (c *Collector) collectSystemMetrics(ctx context.Context) {
	// Update uptime
	c.metrics.UptimeSeconds.Set(time.Since(c.startTime).Seconds())

	// Update goroutines
	c.metrics.Goroutines.Set(float64(runtime.NumGoroutine()))

	// Update storage size
	if c.storagePath != "" {
		if info, err := os.Stat(c.storagePath); err == nil {
			c.metrics.StorageUsedBytes.Set(float64(info.Size()))
		}
	}

	// Update queue stats
	if c.queueStats != nil {
		stats, err := c.queueStats.Stats(ctx)
		if err == nil {
			c.metrics.QueueSize.Set(float64(stats.Pending + stats.Deferred))
			c.metrics.QueueActive.Set(float64(stats.Deploying))
			c.metrics.QueueDeferred.Set(float64(stats.Deferred))
		}
	}
}

// TrackCompile tracks a signature compilation and updates shadow counter
func (c *Collector) TrackCompile(org string, warnings int) {
	c.mu.Lock()
	c.shadow.Compiles[org]++
	if warnings > 0 {
		c.shadow.CompileWarnings[org] += float64(warnings)
	}
	c.mu.Unlock()
	c.metrics.CompilesTotal.WithLabelValues(org).Inc()
	if warnings > 0 {
		c.metrics.CompileWarningsTotal.WithLabelValues(org).Add(float64(warnings))
	}
}

// TrackDeploy tracks a successful deployment and updates shadow counter
func (c *Collector) TrackDeploy(provider string) {
	c.mu.Lock()
	c.shadow.Deploys[provider]++
	c.mu.Unlock()
	c.metrics.DeploysTotal.WithLabelValues(provider).Inc()
}

// TrackDeployFailed tracks a failed deployment and updates shadow counter
func (c *Collector) TrackDeployFailed(provider, errorType string) {
	key := makeLabelKey(provider, errorType)
	c.mu.Lock()
	c.shadow.DeploysFailed[key]++
	c.mu.Unlock()
	c.metrics.DeploysFailedTotal.WithLabelValues(provider, errorType).Inc()
}

// TrackDeployDeferred tracks a deferred deployment and updates shadow counter
func (c *Collector) TrackDeployDeferred(provider string) {
	c.mu.Lock()
	c.shadow.DeploysDeferred[provider]++
	c.mu.Unlock()
	c.metrics.DeploysDeferredTotal.WithLabelValues(provider).Inc()
}

// TrackAPIRequest tracks an API request and updates shadow counter
func (c *Collector) TrackAPIRequest(method, path, status string) {
	key := makeTripleLabelKey(method, path, status)
	c.mu.Lock()
	c.shadow.APIRequests[key]++
	c.mu.Unlock()
	c.metrics.APIRequestsTotal.WithLabelValues(method, path, status).Inc()
}

// TrackAPIError tracks an API error and updates shadow counter
func (c *Collector) TrackAPIError(errorType string) {
	c.mu.Lock()
	c.shadow.APIErrors[errorType]++
	c.mu.Unlock()
	c.metrics.APIErrorsTotal.WithLabelValues(errorType).Inc()
}

// TrackRateLimitExceeded tracks rate limit exceeded and updates shadow counter
func (c *Collector) TrackRateLimitExceeded(level string) {
	c.mu.Lock()
	c.shadow.RateLimitExceeded[level]++
	c.mu.Unlock()
	c.metrics.RateLimitExceededTotal.WithLabelValues(level).Inc()
}

// Helper functions for label key serialization
func makeLabelKey(a, b string) string {
	return a + "|" + b
}

func splitLabelKey(key string) (string, string) {
	for i := len(key) - 1; i >= 0; i-- {
		if key[i] == '|' {
			return key[:i], key[i+1:]
		}
	}
	return key, ""
}

func makeTripleLabelKey(a, b, c string) string {
	return a + "|" + b + "|" + c
}

func splitTripleLabelKey(key string) (string, string, string) {
	parts := make([]string, 0, 3)
	start := 0
	for i := 0; i < len(key); i++ {
		if key[i] == '|' {
			parts = append(parts, key[start:i])
			start = i + 1
		}
	}
	parts = append(parts, key[start:])

	if len(parts) >= 3 {
		return parts[0], parts[1], parts[2]
	}
	if len(parts) == 2 {
		return parts[0], parts[1], ""
	}
	if len(parts) == 1 {
		return parts[0], "", ""
	}
	return "", "", ""
}
