package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Harsh-BH/vidforge/internal/domain"
	"github.com/Harsh-BH/vidforge/internal/metrics"
	"github.com/Harsh-BH/vidforge/internal/provider"
	"github.com/Harsh-BH/vidforge/internal/publisher"
	"github.com/Harsh-BH/vidforge/internal/repository"
)

const (
	defaultSubmitTimeout = 2 * time.Minute
	defaultCancelTimeout = 15 * time.Second
)

// VideoOptions tunes the orchestrator. Zero values take defaults.
type VideoOptions struct {
	Model         string
	SubmitTimeout time.Duration
	CancelTimeout time.Duration
}

// VideoUsecase creates video jobs, submits them to the provider in the
// background and keeps their status in step with the provider.
type VideoUsecase struct {
	jobs      repository.JobRepository
	keys      repository.IdempotencyStore
	generator provider.Generator
	events    publisher.Publisher
	logger    *zap.Logger

	model         string
	submitTimeout time.Duration
	cancelTimeout time.Duration

	wg sync.WaitGroup
}

// NewVideoUsecase creates a new VideoUsecase.
func NewVideoUsecase(
	jobs repository.JobRepository,
	keys repository.IdempotencyStore,
	generator provider.Generator,
	events publisher.Publisher,
	opts VideoOptions,
	logger *zap.Logger,
) *VideoUsecase {
	uc := &VideoUsecase{
		jobs:          jobs,
		keys:          keys,
		generator:     generator,
		events:        events,
		logger:        logger,
		model:         opts.Model,
		submitTimeout: opts.SubmitTimeout,
		cancelTimeout: opts.CancelTimeout,
	}
	if uc.model == "" {
		uc.model = provider.SupportedModel
	}
	if uc.submitTimeout <= 0 {
		uc.submitTimeout = defaultSubmitTimeout
	}
	if uc.cancelTimeout <= 0 {
		uc.cancelTimeout = defaultCancelTimeout
	}
	return uc
}

// CreateVideo validates the request, stores a pending job and submits it in
// the background. The returned job is the freshly created pending snapshot.
func (uc *VideoUsecase) CreateVideo(ctx context.Context, req *domain.CreateVideoRequest) (job *domain.Job, err error) {
	defer guard(uc.logger, "CreateVideo", &err)

	if err := req.Validate(); err != nil {
		return nil, err
	}

	jobID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate UUIDv7: %w", err)
	}
	job = &domain.Job{
		ID:       jobID,
		Prompt:   req.Prompt,
		Status:   domain.StatusPending,
		Priority: req.JobPriority(),
		Settings: req.Settings(),
	}

	// Reject requests the provider would refuse before storing anything.
	if err := provider.NewGenerationRequest(job).Validate(uc.model); err != nil {
		return nil, err
	}

	created, err := uc.jobs.Create(ctx, job)
	if err != nil {
		uc.logger.Error("Failed to create job", zap.Error(err), zap.String("job_id", jobID.String()))
		return nil, fmt.Errorf("create job: %w", err)
	}
	metrics.JobsCreated.WithLabelValues(string(created.Priority)).Inc()

	uc.wg.Add(1)
	go uc.submit(created.Clone())

	uc.logger.Info("Video job created",
		zap.String("job_id", jobID.String()),
		zap.String("priority", string(created.Priority)),
	)
	return created, nil
}

// submit runs detached from the creating request. Its only effect is a job
// update: processing with the external id, or failed.
func (uc *VideoUsecase) submit(job *domain.Job) {
	defer uc.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			uc.logger.Error("Submission panic recovered",
				zap.String("job_id", job.ID.String()),
				zap.Any("panic", r),
			)
			uc.markFailed(job.ID, fmt.Sprintf("internal error during submission: %v", r))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), uc.submitTimeout)
	defer cancel()

	key, err := uc.keys.Reserve(ctx, job.ID, uuid.NewString())
	if err != nil {
		// The client generates a key of its own.
		uc.logger.Warn("Failed to reserve idempotency key", zap.String("job_id", job.ID.String()), zap.Error(err))
		key = ""
	}

	remote, err := uc.generator.Submit(ctx, provider.NewGenerationRequest(job), key)
	if err != nil {
		uc.logger.Warn("Video submission failed", zap.String("job_id", job.ID.String()), zap.Error(err))
		uc.markFailed(job.ID, "submission failed: "+err.Error())
		return
	}

	processing := domain.StatusProcessing
	externalID := remote.ID
	if _, err := uc.apply(ctx, job.ID, domain.JobUpdate{Status: &processing, ExternalID: &externalID}); err != nil {
		// Most likely cancelled while the submission was in flight.
		uc.logger.Info("Job changed during submission, cancelling remote job",
			zap.String("job_id", job.ID.String()),
			zap.String("external_id", externalID),
			zap.Error(err),
		)
		uc.cancelRemote(externalID)
		return
	}

	uc.logger.Info("Video job submitted",
		zap.String("job_id", job.ID.String()),
		zap.String("external_id", externalID),
	)
}

// GetVideoStatus returns the current job snapshot.
func (uc *VideoUsecase) GetVideoStatus(ctx context.Context, id uuid.UUID) (job *domain.Job, err error) {
	defer guard(uc.logger, "GetVideoStatus", &err)
	return uc.jobs.FindByID(ctx, id)
}

// GetVideoResult returns the result of a completed job.
func (uc *VideoUsecase) GetVideoResult(ctx context.Context, id uuid.UUID) (result *domain.VideoResult, err error) {
	defer guard(uc.logger, "GetVideoResult", &err)

	job, err := uc.jobs.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status != domain.StatusCompleted || job.Result == nil {
		return nil, fmt.Errorf("%w: job %s is %s", domain.ErrResultNotReady, id, job.Status)
	}
	return job.Result, nil
}

// OpenVideoContent streams the primary generation of a completed job.
// The caller closes the reader.
func (uc *VideoUsecase) OpenVideoContent(ctx context.Context, id uuid.UUID) (body io.ReadCloser, contentType string, err error) {
	defer guard(uc.logger, "OpenVideoContent", &err)

	result, err := uc.GetVideoResult(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if result.GenerationID == "" {
		return nil, "", fmt.Errorf("%w: job %s has no downloadable generation", domain.ErrResultNotReady, id)
	}
	return uc.generator.DownloadContent(ctx, result.GenerationID)
}

// CancelVideo cancels a non-terminal job. Cancelling the remote job is best
// effort; the local job is cancelled regardless.
func (uc *VideoUsecase) CancelVideo(ctx context.Context, id uuid.UUID) (job *domain.Job, err error) {
	defer guard(uc.logger, "CancelVideo", &err)

	job, err = uc.jobs.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: job %s is %s", domain.ErrJobTerminal, id, job.Status)
	}

	cancelled, err := uc.apply(ctx, id, domain.StatusUpdate(domain.StatusCancelled))
	if err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			current, ferr := uc.jobs.FindByID(ctx, id)
			if ferr == nil {
				return nil, fmt.Errorf("%w: job %s is %s", domain.ErrJobTerminal, id, current.Status)
			}
		}
		return nil, err
	}

	// A submission may have stored the external id after the read above.
	if cancelled.ExternalID != "" {
		uc.cancelRemote(cancelled.ExternalID)
	}

	uc.logger.Info("Video job cancelled", zap.String("job_id", id.String()))
	return cancelled, nil
}

// SyncJobStatus pulls the provider's status for a submitted job and applies
// it. Terminal jobs and jobs without an external id are returned unchanged.
// Provider failures fail the job rather than the call.
func (uc *VideoUsecase) SyncJobStatus(ctx context.Context, id uuid.UUID) (job *domain.Job, err error) {
	defer guard(uc.logger, "SyncJobStatus", &err)

	job, err = uc.jobs.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status.IsTerminal() || job.ExternalID == "" {
		return job, nil
	}

	remote, err := uc.generator.GetStatus(ctx, job.ExternalID)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: sync of job %s interrupted: %v", domain.ErrExternalService, id, ctx.Err())
		}
		uc.logger.Warn("Status sync failed",
			zap.String("job_id", id.String()),
			zap.String("external_id", job.ExternalID),
			zap.Error(err),
		)
		return uc.fail(ctx, id, "status sync failed: "+err.Error())
	}

	status, err := remote.LocalStatus()
	if err != nil {
		return uc.fail(ctx, id, err.Error())
	}

	switch status {
	case domain.StatusProcessing:
		if job.Status == domain.StatusProcessing {
			return job, nil
		}
		return uc.settle(ctx, id, domain.StatusUpdate(domain.StatusProcessing))

	case domain.StatusCompleted:
		result, err := remote.Result()
		if err != nil {
			return uc.fail(ctx, id, err.Error())
		}
		if err := uc.ensureProcessing(ctx, job); err != nil {
			return uc.current(ctx, id, err)
		}
		completed := domain.StatusCompleted
		return uc.settle(ctx, id, domain.JobUpdate{Status: &completed, Result: result})

	case domain.StatusFailed:
		return uc.fail(ctx, id, remote.FailureMessage())

	default:
		return uc.settle(ctx, id, domain.StatusUpdate(domain.StatusCancelled))
	}
}

// ListJobs filters, sorts and paginates jobs.
func (uc *VideoUsecase) ListJobs(ctx context.Context, filter domain.JobFilter, opts domain.ListOptions) (page *domain.JobPage, err error) {
	defer guard(uc.logger, "ListJobs", &err)

	opts, err = opts.Normalize()
	if err != nil {
		return nil, err
	}
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, domain.Validationf("unknown status %q", filter.Status)
	}
	if filter.Priority != "" && !filter.Priority.IsValid() {
		return nil, domain.Validationf("unknown priority %q", filter.Priority)
	}
	return uc.jobs.FindAll(ctx, filter, opts)
}

// ActiveJobIDs returns the ids of submitted jobs still being processed.
func (uc *VideoUsecase) ActiveJobIDs(ctx context.Context) ([]uuid.UUID, error) {
	jobs, err := uc.jobs.FindByStatus(ctx, domain.StatusProcessing)
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(jobs))
	for _, j := range jobs {
		if j.ExternalID != "" {
			ids = append(ids, j.ID)
		}
	}
	return ids, nil
}

// ProviderHealthy reports whether the generation provider is reachable.
func (uc *VideoUsecase) ProviderHealthy(ctx context.Context) bool {
	return uc.generator.HealthCheck(ctx)
}

// Wait blocks until every background submission has finished.
func (uc *VideoUsecase) Wait() {
	uc.wg.Wait()
}

// fail moves a job to failed, stepping through processing when it is still
// pending.
func (uc *VideoUsecase) fail(ctx context.Context, id uuid.UUID, message string) (*domain.Job, error) {
	job, err := uc.jobs.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status.IsTerminal() {
		return job, nil
	}
	if err := uc.ensureProcessing(ctx, job); err != nil {
		return uc.current(ctx, id, err)
	}
	failed := domain.StatusFailed
	return uc.settle(ctx, id, domain.JobUpdate{Status: &failed, Error: &message})
}

// markFailed fails a job from a detached goroutine.
func (uc *VideoUsecase) markFailed(id uuid.UUID, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), uc.cancelTimeout)
	defer cancel()
	if _, err := uc.fail(ctx, id, message); err != nil {
		uc.logger.Error("Failed to mark job failed", zap.String("job_id", id.String()), zap.Error(err))
	}
}

func (uc *VideoUsecase) ensureProcessing(ctx context.Context, job *domain.Job) error {
	if job.Status != domain.StatusPending {
		return nil
	}
	_, err := uc.apply(ctx, job.ID, domain.StatusUpdate(domain.StatusProcessing))
	return err
}

// settle applies update and, when another writer moved the job to a terminal
// state first, returns that state instead of the conflict.
func (uc *VideoUsecase) settle(ctx context.Context, id uuid.UUID, update domain.JobUpdate) (*domain.Job, error) {
	job, err := uc.apply(ctx, id, update)
	if err != nil {
		return uc.current(ctx, id, err)
	}
	return job, nil
}

func (uc *VideoUsecase) current(ctx context.Context, id uuid.UUID, cause error) (*domain.Job, error) {
	if !errors.Is(cause, domain.ErrConflict) {
		return nil, cause
	}
	job, err := uc.jobs.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status.IsTerminal() {
		return job, nil
	}
	return nil, cause
}

// apply updates a job and emits the side effects of entering a terminal state.
func (uc *VideoUsecase) apply(ctx context.Context, id uuid.UUID, update domain.JobUpdate) (*domain.Job, error) {
	job, err := uc.jobs.Update(ctx, id, update)
	if err != nil {
		return nil, err
	}
	if update.Status == nil {
		return job, nil
	}
	metrics.JobTransitions.WithLabelValues(string(job.Status)).Inc()

	if job.Status.IsTerminal() {
		if err := uc.keys.Release(ctx, id); err != nil {
			uc.logger.Warn("Failed to release idempotency key", zap.String("job_id", id.String()), zap.Error(err))
		}
		if err := uc.events.Publish(ctx, domain.NewJobEvent(job)); err != nil {
			metrics.EventPublishFailures.Inc()
			uc.logger.Warn("Failed to publish job event",
				zap.String("job_id", id.String()),
				zap.String("status", string(job.Status)),
				zap.Error(err),
			)
		}
	}
	return job, nil
}

func (uc *VideoUsecase) cancelRemote(externalID string) {
	ctx, cancel := context.WithTimeout(context.Background(), uc.cancelTimeout)
	defer cancel()
	if err := uc.generator.Cancel(ctx, externalID); err != nil {
		uc.logger.Warn("Remote cancellation failed",
			zap.String("external_id", externalID),
			zap.Error(err),
		)
	}
}
