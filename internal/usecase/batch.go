package usecase

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Harsh-BH/vidforge/internal/domain"
	"github.com/Harsh-BH/vidforge/internal/metrics"
	"github.com/Harsh-BH/vidforge/internal/repository"
)

const (
	defaultBatchConcurrency = 3
	maxBatchConcurrency     = 10
)

// videoOrchestrator is the part of VideoUsecase the batch controller drives.
type videoOrchestrator interface {
	CreateVideo(ctx context.Context, req *domain.CreateVideoRequest) (*domain.Job, error)
	SyncJobStatus(ctx context.Context, id uuid.UUID) (*domain.Job, error)
	CancelVideo(ctx context.Context, id uuid.UUID) (*domain.Job, error)
}

// BatchOptions holds the concurrency limits of the batch controller.
type BatchOptions struct {
	DefaultConcurrency int
	MaxConcurrency     int
	MaxSize            int
}

// BatchUsecase creates batches of video jobs and drives them with bounded
// concurrency.
type BatchUsecase struct {
	batches repository.BatchRepository
	jobs    repository.JobRepository
	videos  videoOrchestrator
	logger  *zap.Logger

	defaultConcurrency int
	maxConcurrency     int
	maxSize            int
	now                func() time.Time
}

// NewBatchUsecase creates a new BatchUsecase.
func NewBatchUsecase(
	batches repository.BatchRepository,
	jobs repository.JobRepository,
	videos videoOrchestrator,
	opts BatchOptions,
	logger *zap.Logger,
) *BatchUsecase {
	uc := &BatchUsecase{
		batches:            batches,
		jobs:               jobs,
		videos:             videos,
		logger:             logger,
		defaultConcurrency: opts.DefaultConcurrency,
		maxConcurrency:     opts.MaxConcurrency,
		maxSize:            opts.MaxSize,
		now:                func() time.Time { return time.Now().UTC() },
	}
	if uc.maxConcurrency <= 0 {
		uc.maxConcurrency = maxBatchConcurrency
	}
	if uc.defaultConcurrency <= 0 {
		uc.defaultConcurrency = defaultBatchConcurrency
	}
	uc.defaultConcurrency = min(uc.defaultConcurrency, uc.maxConcurrency)
	if uc.maxSize <= 0 || uc.maxSize > domain.MaxBatchSize {
		uc.maxSize = domain.MaxBatchSize
	}
	return uc
}

// CreateBatch creates one job per request. Requests that fail to create are
// logged and skipped; the call fails only when no job was created.
func (uc *BatchUsecase) CreateBatch(ctx context.Context, req *domain.CreateBatchRequest) (batch *domain.Batch, err error) {
	defer guard(uc.logger, "CreateBatch", &err)

	if n := len(req.Videos); n < 1 || n > uc.maxSize {
		return nil, domain.Validationf("a batch needs 1-%d videos, got %d", uc.maxSize, n)
	}

	batchID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate UUIDv7: %w", err)
	}

	jobIDs := make([]uuid.UUID, 0, len(req.Videos))
	var firstErr error
	for i := range req.Videos {
		job, err := uc.videos.CreateVideo(ctx, &req.Videos[i])
		if err != nil {
			uc.logger.Warn("Skipping batch video that could not be created",
				zap.String("batch_id", batchID.String()),
				zap.Int("index", i),
				zap.Error(err),
			)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		jobIDs = append(jobIDs, job.ID)
	}
	if len(jobIDs) == 0 {
		return nil, fmt.Errorf("no video in the batch could be created: %w", firstErr)
	}

	now := uc.now()
	batch = &domain.Batch{
		ID:        batchID,
		Name:      req.Name,
		JobIDs:    jobIDs,
		Status:    domain.BatchPending,
		Progress:  domain.NewBatchProgress(len(jobIDs), slices.Repeat([]domain.JobStatus{domain.StatusPending}, len(jobIDs))),
		CreatedAt: now,
		UpdatedAt: now,
	}

	created, err := uc.batches.Create(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("create batch: %w", err)
	}

	uc.logger.Info("Batch created",
		zap.String("batch_id", batchID.String()),
		zap.Int("requested", len(req.Videos)),
		zap.Int("created", len(jobIDs)),
	)
	return created, nil
}

// ProcessBatch syncs every job of the batch once, at most concurrency at a
// time. Jobs are handled in windows; progress is recomputed after each window.
// A concurrency of zero or less means the default; values above the cap are
// clamped to it.
func (uc *BatchUsecase) ProcessBatch(ctx context.Context, id uuid.UUID, concurrency int) (batch *domain.Batch, err error) {
	defer guard(uc.logger, "ProcessBatch", &err)

	limit := uc.concurrency(concurrency)

	batch, err = uc.batches.Update(ctx, id, func(b *domain.Batch) error {
		if b.Status.IsTerminal() {
			return fmt.Errorf("%w: batch %s is %s", domain.ErrBatchTerminal, b.ID, b.Status)
		}
		if b.Status == domain.BatchPending {
			b.SetStatus(domain.BatchProcessing, uc.now())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	uc.logger.Info("Processing batch",
		zap.String("batch_id", id.String()),
		zap.Int("jobs", len(batch.JobIDs)),
		zap.Int("concurrency", limit),
	)

	for start := 0; start < len(batch.JobIDs); start += limit {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: batch %s processing interrupted: %v", domain.ErrExternalService, id, err)
		}
		window := batch.JobIDs[start:min(start+limit, len(batch.JobIDs))]

		var g errgroup.Group
		g.SetLimit(limit)
		for _, jobID := range window {
			g.Go(func() error {
				metrics.BatchSyncsInFlight.Inc()
				defer metrics.BatchSyncsInFlight.Dec()
				if _, err := uc.videos.SyncJobStatus(ctx, jobID); err != nil {
					uc.logger.Warn("Batch job sync failed",
						zap.String("batch_id", id.String()),
						zap.String("job_id", jobID.String()),
						zap.Error(err),
					)
				}
				return nil
			})
		}
		_ = g.Wait()

		if _, err := uc.refresh(ctx, id); err != nil {
			return nil, err
		}
	}

	return uc.refresh(ctx, id)
}

// GetBatchStatus recomputes progress from the constituent jobs and returns
// the batch.
func (uc *BatchUsecase) GetBatchStatus(ctx context.Context, id uuid.UUID) (batch *domain.Batch, err error) {
	defer guard(uc.logger, "GetBatchStatus", &err)
	return uc.refresh(ctx, id)
}

// CancelBatch cancels every non-terminal job of the batch and marks the batch
// cancelled. Individual cancellation failures are logged.
func (uc *BatchUsecase) CancelBatch(ctx context.Context, id uuid.UUID) (batch *domain.Batch, err error) {
	defer guard(uc.logger, "CancelBatch", &err)

	if _, err := uc.refresh(ctx, id); err != nil {
		return nil, err
	}
	// Mark the batch first so a concurrent refresh cannot derive a finished
	// status from the jobs cancelled below.
	batch, err = uc.batches.Update(ctx, id, func(b *domain.Batch) error {
		if b.Status.IsTerminal() {
			return fmt.Errorf("%w: batch %s is %s", domain.ErrBatchTerminal, b.ID, b.Status)
		}
		b.SetStatus(domain.BatchCancelled, uc.now())
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, jobID := range batch.JobIDs {
		job, err := uc.jobs.FindByID(ctx, jobID)
		if err != nil || job.Status.IsTerminal() {
			continue
		}
		if _, err := uc.videos.CancelVideo(ctx, jobID); err != nil {
			uc.logger.Warn("Failed to cancel batch job",
				zap.String("batch_id", id.String()),
				zap.String("job_id", jobID.String()),
				zap.Error(err),
			)
		}
	}

	batch, err = uc.refresh(ctx, id)
	if err != nil {
		return nil, err
	}

	uc.logger.Info("Batch cancelled", zap.String("batch_id", id.String()))
	return batch, nil
}

// ListBatches returns every batch, newest first.
func (uc *BatchUsecase) ListBatches(ctx context.Context) (batches []*domain.Batch, err error) {
	defer guard(uc.logger, "ListBatches", &err)
	return uc.batches.FindAll(ctx)
}

func (uc *BatchUsecase) concurrency(requested int) int {
	if requested <= 0 {
		return uc.defaultConcurrency
	}
	return min(requested, uc.maxConcurrency)
}

// refresh re-reads every constituent job and stores the derived progress and
// status. It is safe to run concurrently with job updates.
func (uc *BatchUsecase) refresh(ctx context.Context, id uuid.UUID) (*domain.Batch, error) {
	batch, err := uc.batches.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	statuses, err := uc.jobStatuses(ctx, batch.JobIDs)
	if err != nil {
		return nil, err
	}
	return uc.batches.Update(ctx, id, func(b *domain.Batch) error {
		b.Progress = domain.NewBatchProgress(len(b.JobIDs), statuses)
		if next := domain.DeriveStatus(b.Status, b.Progress); next != b.Status {
			b.SetStatus(next, uc.now())
		}
		return nil
	})
}

// jobStatuses returns the current status of each job. A job that no longer
// exists counts as failed.
func (uc *BatchUsecase) jobStatuses(ctx context.Context, ids []uuid.UUID) ([]domain.JobStatus, error) {
	statuses := make([]domain.JobStatus, 0, len(ids))
	for _, jobID := range ids {
		job, err := uc.jobs.FindByID(ctx, jobID)
		if errors.Is(err, domain.ErrNotFound) {
			statuses = append(statuses, domain.StatusFailed)
			continue
		}
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, job.Status)
	}
	return statuses, nil
}
