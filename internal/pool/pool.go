package pool

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Harsh-BH/vidforge/internal/domain"
	"github.com/Harsh-BH/vidforge/internal/metrics"
)

// Syncer is the part of the video orchestrator the pool drives.
type Syncer interface {
	ActiveJobIDs(ctx context.Context) ([]uuid.UUID, error)
	SyncJobStatus(ctx context.Context, id uuid.UUID) (*domain.Job, error)
}

// SyncPool periodically pulls provider status for every processing job using
// a fixed-size pool of goroutines.
type SyncPool struct {
	size     int
	interval time.Duration
	timeout  time.Duration
	syncer   Syncer
	logger   *zap.Logger

	jobs    chan uuid.UUID
	mu      sync.Mutex
	queued  map[uuid.UUID]struct{}
	wg      sync.WaitGroup
	started bool
}

// NewSyncPool creates a pool of size workers that rescans every interval.
// Each sync is bounded by timeout.
func NewSyncPool(size int, interval, timeout time.Duration, syncer Syncer, logger *zap.Logger) *SyncPool {
	if size <= 0 {
		size = 1
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &SyncPool{
		size:     size,
		interval: interval,
		timeout:  timeout,
		syncer:   syncer,
		logger:   logger,
		jobs:     make(chan uuid.UUID, size*4),
		queued:   make(map[uuid.UUID]struct{}),
	}
}

// Start launches the scheduler and all worker goroutines. Cancel ctx and call
// Stop to wait for them to finish.
func (p *SyncPool) Start(ctx context.Context) {
	p.logger.Info("Starting sync pool",
		zap.Int("pool_size", p.size),
		zap.Duration("interval", p.interval),
	)
	p.started = true

	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
	p.wg.Add(1)
	go p.schedule(ctx)
}

// Stop waits for the scheduler and all workers to exit.
func (p *SyncPool) Stop() {
	if !p.started {
		return
	}
	p.wg.Wait()
	p.logger.Info("Sync pool stopped")
}

func (p *SyncPool) schedule(ctx context.Context) {
	defer p.wg.Done()
	defer close(p.jobs)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		p.enqueueActive(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// enqueueActive queues every processing job not already waiting for a worker.
func (p *SyncPool) enqueueActive(ctx context.Context) {
	ids, err := p.syncer.ActiveJobIDs(ctx)
	if err != nil {
		p.logger.Warn("Failed to list active jobs", zap.Error(err))
		return
	}
	for _, id := range ids {
		p.mu.Lock()
		_, dup := p.queued[id]
		if !dup {
			p.queued[id] = struct{}{}
		}
		p.mu.Unlock()
		if dup {
			continue
		}

		select {
		case p.jobs <- id:
		case <-ctx.Done():
			return
		}
	}
}

func (p *SyncPool) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	p.logger.Debug("Sync worker started", zap.Int("worker_id", id))

	for jobID := range p.jobs {
		if ctx.Err() != nil {
			p.logger.Debug("Sync worker shutting down", zap.Int("worker_id", id))
			return
		}
		p.sync(ctx, id, jobID)
	}
}

func (p *SyncPool) sync(ctx context.Context, workerID int, jobID uuid.UUID) {
	defer func() {
		p.mu.Lock()
		delete(p.queued, jobID)
		p.mu.Unlock()
	}()
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Sync worker panic recovered",
				zap.Int("worker_id", workerID),
				zap.String("job_id", jobID.String()),
				zap.Any("panic", r),
			)
		}
	}()

	metrics.SyncWorkersActive.Inc()
	defer metrics.SyncWorkersActive.Dec()

	syncCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	job, err := p.syncer.SyncJobStatus(syncCtx, jobID)
	if err != nil {
		p.logger.Warn("Background sync failed",
			zap.Int("worker_id", workerID),
			zap.String("job_id", jobID.String()),
			zap.Error(err),
		)
		return
	}
	if job.Status.IsTerminal() {
		p.logger.Info("Job finished",
			zap.String("job_id", jobID.String()),
			zap.String("status", string(job.Status)),
		)
	}
}
