// Package deploy pushes compiled signature HTML into mailbox provider
// settings. Deployments are queued per recipient, processed by a
// worker pool, and retried with backoff on temporary provider errors.
package deploy

import (
	"context"
	"time"
)

// Status represents the status of a deployment in the queue.
type Status string

const (
	StatusPending   Status = "pending"
	StatusDeploying Status = "deploying"
	StatusDeployed  Status = "deployed"
	StatusFailed    Status = "failed"
	StatusDeferred  Status = "deferred"
)

// Provider names understood by the deployment stage.
const (
	ProviderGoogle    = "google"
	ProviderMicrosoft = "microsoft"
)

// Deployment is one compiled signature bound for one mailbox.
// HTML is the final document, disclaimer fragment included; from here
// on it is a plain string handoff to the provider.
type Deployment struct {
	ID          string    `json:"id"`
	OrgID       string    `json:"org_id"`
	TemplateID  string    `json:"template_id"`
	UserEmail   string    `json:"user_email"`
	Provider    string    `json:"provider"`
	HTML        string    `json:"html"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	NextRetryAt time.Time `json:"next_retry_at"`
	RetryCount  int       `json:"retry_count"`
	LastError   string    `json:"last_error,omitempty"`
}

// QueueStats represents deployment queue statistics.
type QueueStats struct {
	Pending   int64 `json:"pending"`
	Deploying int64 `json:"deploying"`
	Deployed  int64 `json:"deployed"`
	Failed    int64 `json:"failed"`
	Deferred  int64 `json:"deferred"`
	Total     int64 `json:"total"`
}

// ListFilter represents filter options for listing deployments.
type ListFilter struct {
	OrgID  string
	Status Status
	Limit  int
	Offset int
}

// Queue defines the interface for deployment queue operations.
type Queue interface {
	// Enqueue adds a deployment to the queue
	Enqueue(ctx context.Context, d *Deployment) error

	// Dequeue gets the next deployment for processing.
	// Returns nil, nil if the queue is empty.
	Dequeue(ctx context.Context) (*Deployment, error)

	// Update updates the deployment status
	Update(ctx context.Context, d *Deployment) error

	// Get retrieves a deployment by ID
	Get(ctx context.Context, id string) (*Deployment, error)

	// List returns deployments with optional filtering
	List(ctx context.Context, filter ListFilter) ([]*Deployment, error)

	// Delete removes a deployment from the queue
	Delete(ctx context.Context, id string) error

	// Stats returns queue statistics
	Stats(ctx context.Context) (*QueueStats, error)

	// Close closes the storage connection
	Close() error
}

// Deployer writes a compiled signature into one provider's mailbox
// settings. Implementations map provider failures onto DeployError so
// the processor can tell temporary from permanent.
type Deployer interface {
	Deploy(ctx context.Context, d *Deployment) error
}

// DeployError represents a provider error with retryability information.
type DeployError struct {
	Temporary bool
	Message   string
}

func (e *DeployError) Error() string {
	return e.Message
}

// IsTemporary reports whether the error is worth retrying.
func IsTemporary(err error) bool {
	if de, ok := err.(*DeployError); ok {
		return de.Temporary
	}
	// Unknown errors (network, timeouts) are assumed transient.
	return true
}
