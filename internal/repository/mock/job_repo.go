package mock

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/Harsh-BH/vidforge/internal/domain"
	"github.com/Harsh-BH/vidforge/internal/repository"
	"github.com/Harsh-BH/vidforge/internal/repository/memory"
)

// Ensure the mocks implement the repository interfaces.
var (
	_ repository.JobRepository    = (*MockJobRepository)(nil)
	_ repository.BatchRepository  = (*MockBatchRepository)(nil)
	_ repository.IdempotencyStore = (*MockIdempotencyStore)(nil)
)

// MockJobRepository wraps the in-memory store and lets tests inject errors.
type MockJobRepository struct {
	*memory.JobRepository

	// Hook functions for injecting errors
	CreateFunc   func(ctx context.Context, job *domain.Job) (*domain.Job, error)
	FindByIDFunc func(ctx context.Context, id uuid.UUID) (*domain.Job, error)
	UpdateFunc   func(ctx context.Context, id uuid.UUID, update domain.JobUpdate) (*domain.Job, error)

	updates atomic.Int32
}

// NewMockJobRepository creates a new mock repository.
func NewMockJobRepository() *MockJobRepository {
	return &MockJobRepository{JobRepository: memory.NewJobRepository()}
}

func (m *MockJobRepository) Create(ctx context.Context, job *domain.Job) (*domain.Job, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, job)
	}
	return m.JobRepository.Create(ctx, job)
}

func (m *MockJobRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	if m.FindByIDFunc != nil {
		return m.FindByIDFunc(ctx, id)
	}
	return m.JobRepository.FindByID(ctx, id)
}

func (m *MockJobRepository) Update(ctx context.Context, id uuid.UUID, update domain.JobUpdate) (*domain.Job, error) {
	m.updates.Add(1)
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, id, update)
	}
	return m.JobRepository.Update(ctx, id, update)
}

// Updates returns how many times Update was called.
func (m *MockJobRepository) Updates() int {
	return int(m.updates.Load())
}

// GetAll returns all stored jobs (for test assertions).
func (m *MockJobRepository) GetAll() []*domain.Job {
	page, _ := m.JobRepository.FindAll(context.Background(), domain.JobFilter{},
		domain.ListOptions{Page: 1, PageSize: domain.MaxPageSize, Sort: domain.SortByCreatedAt, Order: domain.SortAsc})
	return page.Items
}

// MockBatchRepository wraps the in-memory batch store.
type MockBatchRepository struct {
	*memory.BatchRepository

	UpdateFunc func(ctx context.Context, id uuid.UUID, mutate func(b *domain.Batch) error) (*domain.Batch, error)
}

// NewMockBatchRepository creates a new mock batch repository.
func NewMockBatchRepository() *MockBatchRepository {
	return &MockBatchRepository{BatchRepository: memory.NewBatchRepository()}
}

func (m *MockBatchRepository) Update(ctx context.Context, id uuid.UUID, mutate func(b *domain.Batch) error) (*domain.Batch, error) {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, id, mutate)
	}
	return m.BatchRepository.Update(ctx, id, mutate)
}

// MockIdempotencyStore records reservations and can be made to fail.
type MockIdempotencyStore struct {
	*memory.IdempotencyStore

	ReserveFunc func(ctx context.Context, jobID uuid.UUID, candidate string) (string, error)
	released    atomic.Int32
}

// NewMockIdempotencyStore creates a new mock idempotency store.
func NewMockIdempotencyStore() *MockIdempotencyStore {
	return &MockIdempotencyStore{IdempotencyStore: memory.NewIdempotencyStore()}
}

func (m *MockIdempotencyStore) Reserve(ctx context.Context, jobID uuid.UUID, candidate string) (string, error) {
	if m.ReserveFunc != nil {
		return m.ReserveFunc(ctx, jobID, candidate)
	}
	return m.IdempotencyStore.Reserve(ctx, jobID, candidate)
}

func (m *MockIdempotencyStore) Release(ctx context.Context, jobID uuid.UUID) error {
	m.released.Add(1)
	return m.IdempotencyStore.Release(ctx, jobID)
}

// Released returns how many keys were released.
func (m *MockIdempotencyStore) Released() int {
	return int(m.released.Load())
}
