package metrics

import (
	"context"
	"os"
	"testing"
	"time"

	bolt "go.etcd.io/bbolt"
)

type mockQueueStatsProvider struct {
	stats *QueueStats
}

func (m *mockQueueStatsProvider) Stats(ctx context.Context) (*QueueStats, error) {
	return m.stats, nil
}

func TestNewCollector(t *testing.T) {
	// Create temp database
	f, err := os.CreateTemp("", "metrics_test_*.db")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	f.Close()
	defer os.Remove(f.Name())

	db, err := bolt.Open(f.Name(), 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	m := New()
	queueStats := &mockQueueStatsProvider{
		stats: &QueueStats{
			Pending:   10,
			Deploying: 2,
			Deferred:  5,
		},
	}

	c, err := NewCollector(db, m, queueStats, f.Name(), 10*time.Second)
	if err != nil {
		t.Fatalf("Failed to create collector: %v", err)
	}

	if c == nil {
		t.Fatal("Collector is nil")
	}

	if err := c.Stop(); err != nil {
		t.Errorf("Failed to stop collector: %v", err)
	}
}

func TestCollectorPersistence(t *testing.T) {
	// Create temp database
	f, err := os.CreateTemp("", "metrics_test_*.db")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	f.Close()
	defer os.Remove(f.Name())

	db, err := bolt.Open(f.Name(), 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}

	m := New()
	queueStats := &mockQueueStatsProvider{
		stats: &QueueStats{
			Pending: 10,
		},
	}

	c, err := NewCollector(db, m, queueStats, f.Name(), 10*time.Second)
	if err != nil {
		t.Fatalf("Failed to create collector: %v", err)
	}

	// Track some metrics
	c.TrackCompile("org-1", 0)
	c.TrackCompile("org-1", 2)
	c.TrackDeploy("google")
	c.TrackDeployFailed("google", "timeout")
	c.TrackRateLimitExceeded("global")

	// Stop collector (should persist)
	if err := c.Stop(); err != nil {
		t.Errorf("Failed to stop collector: %v", err)
	}
	db.Close()

	// Reopen database and create new collector
	db2, err := bolt.Open(f.Name(), 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		t.Fatalf("Failed to reopen database: %v", err)
	}
	defer db2.Close()

	m2 := New()
	c2, err := NewCollector(db2, m2, queueStats, f.Name(), 10*time.Second)
	if err != nil {
		t.Fatalf("Failed to recreate collector: %v", err)
	}
	defer c2.Stop()

	// Check that counters were restored
	if c2.shadow.Compiles["org-1"] != 2 {
		t.Errorf("Expected Compiles[org-1] = 2, got %f", c2.shadow.Compiles["org-1"])
	}

	if c2.shadow.CompileWarnings["org-1"] != 2 {
		t.Errorf("Expected CompileWarnings[org-1] = 2, got %f", c2.shadow.CompileWarnings["org-1"])
	}

	if c2.shadow.Deploys["google"] != 1 {
		t.Errorf("Expected Deploys[google] = 1, got %f", c2.shadow.Deploys["google"])
	}
}

func TestCollectorTrackMethods(t *testing.T) {
	f, err := os.CreateTemp("", "metrics_test_*.db")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	f.Close()
	defer os.Remove(f.Name())

	db, err := bolt.Open(f.Name(), 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	m := New()
	queueStats := &mockQueueStatsProvider{stats: &QueueStats{}}

	c, err := NewCollector(db, m, queueStats, f.Name(), 10*time.Second)
	if err != nil {
		t.Fatalf("Failed to create collector: %v", err)
	}
	defer c.Stop()

	// Test all track methods
	c.TrackCompile("org-1", 3)
	if c.shadow.Compiles["org-1"] != 1 {
		t.Error("TrackCompile failed")
	}
	if c.shadow.CompileWarnings["org-1"] != 3 {
		t.Error("TrackCompile warning count failed")
	}

	c.TrackDeploy("google")
	if c.shadow.Deploys["google"] != 1 {
		t.Error("TrackDeploy failed")
	}

	c.TrackDeployFailed("google", "timeout")
	if c.shadow.DeploysFailed["google|timeout"] != 1 {
		t.Error("TrackDeployFailed failed")
	}

	c.TrackDeployDeferred("microsoft")
	if c.shadow.DeploysDeferred["microsoft"] != 1 {
		t.Error("TrackDeployDeferred failed")
	}

	c.TrackAPIRequest("POST", "/api/v1/compile", "200")
	if c.shadow.APIRequests["POST|/api/v1/compile|200"] != 1 {
		t.Error("TrackAPIRequest failed")
	}

	c.TrackAPIError("server_error")
	if c.shadow.APIErrors["server_error"] != 1 {
		t.Error("TrackAPIError failed")
	}

	c.TrackRateLimitExceeded("global")
	if c.shadow.RateLimitExceeded["global"] != 1 {
		t.Error("TrackRateLimitExceeded failed")
	}
}

func TestLabelKeyHelpers(t *testing.T) {
	// Test makeLabelKey and splitLabelKey
	key := makeLabelKey("provider", "errortype")
	a, b := splitLabelKey(key)
	if a != "provider" || b != "errortype" {
		t.Errorf("Expected (provider, errortype), got (%s, %s)", a, b)
	}

	// Test makeTripleLabelKey and splitTripleLabelKey
	tripleKey := makeTripleLabelKey("GET", "/api", "200")
	m, p, s := splitTripleLabelKey(tripleKey)
	if m != "GET" || p != "/api" || s != "200" {
		t.Errorf("Expected (GET, /api, 200), got (%s, %s, %s)", m, p, s)
	}
}
