package deploy

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketDeployments = []byte("deployments")
	bucketPending     = []byte("deploy_pending")
	bucketDeferred    = []byte("deploy_deferred")
)

// BoltStorage implements Queue using BoltDB.
type BoltStorage struct {
	db *bolt.DB
}

// NewBoltStorage opens the database at path and creates a new storage.
func NewBoltStorage(path string) (*BoltStorage, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s, err := NewBoltStorageWithDB(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewBoltStorageWithDB creates a storage on an already-open database.
func NewBoltStorageWithDB(db *bolt.DB) (*BoltStorage, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketDeployments, bucketPending, bucketDeferred} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &BoltStorage{db: db}, nil
}

// DB exposes the underlying database for stores that share it.
func (s *BoltStorage) DB() *bolt.DB {
	return s.db
}

// Enqueue adds a deployment to the queue.
func (s *BoltStorage) Enqueue(ctx context.Context, d *Deployment) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		depBucket := tx.Bucket(bucketDeployments)
		data, err := json.Marshal(d)
		if err != nil {
			return fmt.Errorf("failed to marshal deployment: %w", err)
		}
		if err := depBucket.Put([]byte(d.ID), data); err != nil {
			return fmt.Errorf("failed to store deployment: %w", err)
		}

		pendingBucket := tx.Bucket(bucketPending)
		indexKey := makeIndexKey(d.CreatedAt, d.ID)
		if err := pendingBucket.Put(indexKey, []byte(d.ID)); err != nil {
			return fmt.Errorf("failed to add to pending index: %w", err)
		}

		return nil
	})
}

// Dequeue gets the next deployment for processing. Deferred
// deployments whose retry time has come take priority over fresh
// pending ones.
func (s *BoltStorage) Dequeue(ctx context.Context) (*Deployment, error) {
	var dep *Deployment

	err := s.db.Update(func(tx *bolt.Tx) error {
		depBucket := tx.Bucket(bucketDeployments)
		now := time.Now()

		deferredBucket := tx.Bucket(bucketDeferred)
		c := deferredBucket.Cursor()

		for k, v := c.First(); k != nil; k, v = c.Next() {
			ts := parseTimestampFromKey(k)
			if ts.After(now) {
				break // All remaining are in the future
			}

			depData := depBucket.Get(v)
			if depData == nil {
				// Deployment was deleted, clean up index
				c.Delete()
				continue
			}

			var d Deployment
			if err := json.Unmarshal(depData, &d); err != nil {
				continue
			}

			d.Status = StatusDeploying
			d.UpdatedAt = now

			data, err := json.Marshal(&d)
			if err != nil {
				return err
			}
			if err := depBucket.Put([]byte(d.ID), data); err != nil {
				return err
			}
			if err := c.Delete(); err != nil {
				return err
			}

			dep = &d
			return nil
		}

		pendingBucket := tx.Bucket(bucketPending)
		c = pendingBucket.Cursor()

		for k, v := c.First(); k != nil; k, v = c.Next() {
			depData := depBucket.Get(v)
			if depData == nil {
				c.Delete()
				continue
			}

			var d Deployment
			if err := json.Unmarshal(depData, &d); err != nil {
				continue
			}

			d.Status = StatusDeploying
			d.UpdatedAt = now

			data, err := json.Marshal(&d)
			if err != nil {
				return err
			}
			if err := depBucket.Put([]byte(d.ID), data); err != nil {
				return err
			}
			if err := c.Delete(); err != nil {
				return err
			}

			dep = &d
			return nil
		}

		return nil
	})

	return dep, err
}

// Update updates the deployment status.
func (s *BoltStorage) Update(ctx context.Context, d *Deployment) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		depBucket := tx.Bucket(bucketDeployments)

		d.UpdatedAt = time.Now()

		data, err := json.Marshal(d)
		if err != nil {
			return fmt.Errorf("failed to marshal deployment: %w", err)
		}
		if err := depBucket.Put([]byte(d.ID), data); err != nil {
			return fmt.Errorf("failed to update deployment: %w", err)
		}

		switch d.Status {
		case StatusDeferred:
			deferredBucket := tx.Bucket(bucketDeferred)
			indexKey := makeIndexKey(d.NextRetryAt, d.ID)
			if err := deferredBucket.Put(indexKey, []byte(d.ID)); err != nil {
				return fmt.Errorf("failed to add to deferred index: %w", err)
			}
		case StatusPending:
			// Manual retry puts the deployment back in line.
			pendingBucket := tx.Bucket(bucketPending)
			indexKey := makeIndexKey(d.CreatedAt, d.ID)
			if err := pendingBucket.Put(indexKey, []byte(d.ID)); err != nil {
				return fmt.Errorf("failed to add to pending index: %w", err)
			}
		}

		return nil
	})
}

// Get retrieves a deployment by ID. Returns nil, nil when not found.
func (s *BoltStorage) Get(ctx context.Context, id string) (*Deployment, error) {
	var dep *Deployment

	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketDeployments)
		data := bucket.Get([]byte(id))
		if data == nil {
			return nil
		}

		dep = &Deployment{}
		return json.Unmarshal(data, dep)
	})

	return dep, err
}

// List returns deployments with optional filtering.
func (s *BoltStorage) List(ctx context.Context, filter ListFilter) ([]*Deployment, error) {
	var deployments []*Deployment

	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketDeployments)
		c := bucket.Cursor()

		skipped := 0
		count := 0

		for k, v := c.First(); k != nil; k, v = c.Next() {
			var d Deployment
			if err := json.Unmarshal(v, &d); err != nil {
				continue
			}

			if filter.OrgID != "" && d.OrgID != filter.OrgID {
				continue
			}
			if filter.Status != "" && d.Status != filter.Status {
				continue
			}

			if skipped < filter.Offset {
				skipped++
				continue
			}

			deployments = append(deployments, &d)
			count++

			if filter.Limit > 0 && count >= filter.Limit {
				break
			}
		}

		return nil
	})

	return deployments, err
}

// Delete removes a deployment from the queue.
func (s *BoltStorage) Delete(ctx context.Context, id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketDeployments)
		return bucket.Delete([]byte(id))
	})
}

// Stats returns queue statistics.
func (s *BoltStorage) Stats(ctx context.Context) (*QueueStats, error) {
	stats := &QueueStats{}

	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketDeployments)
		c := bucket.Cursor()

		for k, v := c.First(); k != nil; k, v = c.Next() {
			var d Deployment
			if err := json.Unmarshal(v, &d); err != nil {
				continue
			}

			stats.Total++
			switch d.Status {
			case StatusPending:
				stats.Pending++
			case StatusDeploying:
				stats.Deploying++
			case StatusDeployed:
				stats.Deployed++
			case StatusFailed:
				stats.Failed++
			case StatusDeferred:
				stats.Deferred++
			}
		}

		return nil
	})

	return stats, err
}

// Close closes the storage connection.
func (s *BoltStorage) Close() error {
	return s.db.Close()
}

// makeIndexKey builds a time-ordered index key. The timestamp is
// zero-padded UnixNano so byte order equals time order; variable-width
// formats sort whole-second keys after fractional ones within the same
// second.
func makeIndexKey(t time.Time, id string) []byte {
	return []byte(fmt.Sprintf("%020d:%s", t.UnixNano(), id))
}

// parseTimestampFromKey extracts the timestamp from an index key.
func parseTimestampFromKey(key []byte) time.Time {
	s := string(key)
	i := strings.IndexByte(s, ':')
	if i < 0 {
		return time.Time{}
	}
	ns, err := strconv.ParseInt(s[:i], 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(0, ns)
}
