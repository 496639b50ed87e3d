package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/Harsh-BH/vidforge/internal/domain"
	"github.com/Harsh-BH/vidforge/internal/repository"
)

var _ repository.BatchRepository = (*BatchRepository)(nil)

// BatchRepository is the volatile reference batch store.
type BatchRepository struct {
	mu      sync.RWMutex
	batches map[uuid.UUID]*domain.Batch
}

// NewBatchRepository creates an empty in-memory batch store.
func NewBatchRepository() *BatchRepository {
	return &BatchRepository{batches: make(map[uuid.UUID]*domain.Batch)}
}

func (r *BatchRepository) Create(ctx context.Context, batch *domain.Batch) (*domain.Batch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.batches[batch.ID]; ok {
		return nil, domain.ErrDuplicateBatch
	}
	r.batches[batch.ID] = batch.Clone()
	return batch.Clone(), nil
}

func (r *BatchRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Batch, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.batches[id]
	if !ok {
		return nil, domain.ErrBatchNotFound
	}
	return b.Clone(), nil
}

func (r *BatchRepository) FindAll(ctx context.Context) ([]*domain.Batch, error) {
	r.mu.RLock()
	result := make([]*domain.Batch, 0, len(r.batches))
	for _, b := range r.batches {
		result = append(result, b.Clone())
	}
	r.mu.RUnlock()

	slices.SortFunc(result, func(a, b *domain.Batch) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return slices.Compare(b.ID[:], a.ID[:])
	})
	return result, nil
}

func (r *BatchRepository) Update(ctx context.Context, id uuid.UUID, mutate func(b *domain.Batch) error) (*domain.Batch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.batches[id]
	if !ok {
		return nil, domain.ErrBatchNotFound
	}
	next := current.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	next.ID = current.ID
	next.CreatedAt = current.CreatedAt
	next.JobIDs = append([]uuid.UUID(nil), current.JobIDs...)
	r.batches[id] = next
	return next.Clone(), nil
}
