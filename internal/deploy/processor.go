package deploy

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sigilhq/sigil/internal/metrics"
)

// Limiter gates deployment throughput. Implemented by
// ratelimit.Limiter; nil disables limiting.
type Limiter interface {
	Allow(orgID, provider string) error
	Record(orgID, provider string)
}

// Processor drains the deployment queue through provider clients.
type Processor struct {
	queue           Queue
	deployers       map[string]Deployer
	limiter         Limiter
	workers         int
	retryInterval   time.Duration
	maxRetries      int
	processInterval time.Duration
	dryRun          bool
	logger          *slog.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// ProcessorConfig contains processor configuration.
type ProcessorConfig struct {
	Workers         int
	RetryInterval   time.Duration
	MaxRetries      int
	ProcessInterval time.Duration

	// DryRun marks deployments deployed without calling the provider.
	// Used for staging environments and load tests.
	DryRun bool
}

// NewProcessor creates a new deployment processor.
func NewProcessor(q Queue, deployers map[string]Deployer, limiter Limiter, cfg ProcessorConfig, logger *slog.Logger) *Processor {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 5 * time.Minute
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if cfg.ProcessInterval <= 0 {
		cfg.ProcessInterval = 10 * time.Second
	}

	return &Processor{
		queue:           q,
		deployers:       deployers,
		limiter:         limiter,
		workers:         cfg.Workers,
		retryInterval:   cfg.RetryInterval,
		maxRetries:      cfg.MaxRetries,
		processInterval: cfg.ProcessInterval,
		dryRun:          cfg.DryRun,
		logger:          logger,
	}
}

// Start starts the processor workers.
func (p *Processor) Start(ctx context.Context) {
	p.stopCh = make(chan struct{})
	p.logger.Info("starting deployment processor", "workers", p.workers, "dry_run", p.dryRun)

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

// Stop stops the processor gracefully.
func (p *Processor) Stop() {
	p.logger.Info("stopping deployment processor")
	close(p.stopCh)
	p.wg.Wait()
	p.logger.Info("deployment processor stopped")
}

// worker is the main processing loop.
func (p *Processor) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	logger := p.logger.With("worker_id", id)
	logger.Debug("worker started")

	ticker := time.NewTicker(p.processInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Debug("worker stopped by context")
			return
		case <-p.stopCh:
			logger.Debug("worker stopped by signal")
			return
		case <-ticker.C:
			p.processOne(ctx, logger)
		}
	}
}

// processOne processes a single deployment from the queue.
func (p *Processor) processOne(ctx context.Context, logger *slog.Logger) {
	d, err := p.queue.Dequeue(ctx)
	if err != nil {
		logger.Error("failed to dequeue deployment", "error", err)
		return
	}

	if d == nil {
		return // Queue is empty
	}

	logger = logger.With("deployment_id", d.ID, "provider", d.Provider, "user", d.UserEmail)
	logger.Debug("processing deployment")

	err = p.deliver(ctx, d)

	if err == nil {
		d.Status = StatusDeployed
		d.UpdatedAt = time.Now()

		if err := p.queue.Update(ctx, d); err != nil {
			logger.Error("failed to update deployment status", "error", err)
		}

		if p.limiter != nil {
			p.limiter.Record(d.OrgID, d.Provider)
		}

		metrics.IncDeploys(d.Provider)
		logger.Info("signature deployed")
		return
	}

	logger.Warn("deployment failed", "error", err, "retry_count", d.RetryCount)

	d.RetryCount++
	d.LastError = err.Error()
	d.UpdatedAt = time.Now()

	if IsTemporary(err) && d.RetryCount < p.maxRetries {
		backoff := p.calculateBackoff(d.RetryCount)
		d.Status = StatusDeferred
		d.NextRetryAt = time.Now().Add(backoff)

		metrics.IncDeploysDeferred(d.Provider)
		logger.Info("deployment deferred",
			"retry_count", d.RetryCount,
			"next_retry_at", d.NextRetryAt,
			"backoff", backoff,
		)
	} else {
		d.Status = StatusFailed
		errorType := "permanent"
		if IsTemporary(err) {
			errorType = "retries_exhausted"
		}
		metrics.IncDeploysFailed(d.Provider, errorType)
		logger.Error("deployment failed permanently",
			"retry_count", d.RetryCount,
			"max_retries", p.maxRetries,
		)
	}

	if err := p.queue.Update(ctx, d); err != nil {
		logger.Error("failed to update deployment status", "error", err)
	}
}

// deliver pushes one deployment through its provider client.
func (p *Processor) deliver(ctx context.Context, d *Deployment) error {
	if p.limiter != nil {
		if err := p.limiter.Allow(d.OrgID, d.Provider); err != nil {
			return &DeployError{Temporary: true, Message: err.Error()}
		}
	}

	if p.dryRun {
		return nil
	}

	deployer, ok := p.deployers[d.Provider]
	if !ok {
		return &DeployError{
			Temporary: false,
			Message:   fmt.Sprintf("no deployer configured for provider %q", d.Provider),
		}
	}

	deployCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()
	return deployer.Deploy(deployCtx, d)
}

// calculateBackoff calculates exponential backoff duration.
func (p *Processor) calculateBackoff(retryCount int) time.Duration {
	multiplier := 1 << (retryCount - 1) // 2^(n-1)
	if multiplier > 12 {
		multiplier = 12
	}

	backoff := time.Duration(multiplier) * p.retryInterval

	maxBackoff := time.Hour
	if backoff > maxBackoff {
		return maxBackoff
	}

	return backoff
}
