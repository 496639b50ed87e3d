package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/Harsh-BH/vidforge/internal/domain"
)

// JobRepository defines the interface for job persistence operations.
// Implementations must be safe for concurrent use, must serialize updates to
// the same job so the transition check and the write are atomic, and must
// never hand out references to stored records.
type JobRepository interface {
	// Create inserts a new job. Returns domain.ErrDuplicateJob if the ID exists.
	Create(ctx context.Context, job *domain.Job) (*domain.Job, error)

	// FindByID retrieves a job by its UUID.
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Job, error)

	// FindByExternalID retrieves a job by the provider's job id.
	FindByExternalID(ctx context.Context, externalID string) (*domain.Job, error)

	// FindAll filters, sorts and paginates jobs.
	FindAll(ctx context.Context, filter domain.JobFilter, opts domain.ListOptions) (*domain.JobPage, error)

	// FindByStatus returns every job currently in status.
	FindByStatus(ctx context.Context, status domain.JobStatus) ([]*domain.Job, error)

	// CountByStatus returns the number of jobs currently in status.
	CountByStatus(ctx context.Context, status domain.JobStatus) (int, error)

	// Update applies a partial update, validating any status transition.
	Update(ctx context.Context, id uuid.UUID, update domain.JobUpdate) (*domain.Job, error)

	// Delete removes a job. Returns false if it did not exist.
	Delete(ctx context.Context, id uuid.UUID) (bool, error)

	// Exists reports whether a job with the ID is stored.
	Exists(ctx context.Context, id uuid.UUID) (bool, error)

	// Clear removes every job.
	Clear(ctx context.Context) error
}

// BatchRepository defines the interface for batch persistence.
type BatchRepository interface {
	// Create inserts a new batch. Returns domain.ErrDuplicateBatch if the ID exists.
	Create(ctx context.Context, batch *domain.Batch) (*domain.Batch, error)

	// FindByID retrieves a batch by its UUID.
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Batch, error)

	// FindAll returns every batch, newest first.
	FindAll(ctx context.Context) ([]*domain.Batch, error)

	// Update runs mutate on a copy of the stored batch and saves the result.
	// Calls for the same batch are serialized; if mutate returns an error
	// nothing is saved.
	Update(ctx context.Context, id uuid.UUID, mutate func(b *domain.Batch) error) (*domain.Batch, error)
}

// IdempotencyStore keeps the idempotency key used to submit each job so a
// re-submission of the same job reuses it.
type IdempotencyStore interface {
	// Reserve stores candidate as the key for jobID unless one is already
	// stored, and returns the key in effect.
	Reserve(ctx context.Context, jobID uuid.UUID, candidate string) (string, error)

	// Release forgets the key for jobID after the job reached a terminal state.
	Release(ctx context.Context, jobID uuid.UUID) error
}
