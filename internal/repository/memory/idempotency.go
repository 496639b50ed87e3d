package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/Harsh-BH/vidforge/internal/repository"
)

var _ repository.IdempotencyStore = (*IdempotencyStore)(nil)

// IdempotencyStore keeps idempotency keys in process memory.
type IdempotencyStore struct {
	mu   sync.Mutex
	keys map[uuid.UUID]string
}

// NewIdempotencyStore creates an empty in-memory idempotency store.
func NewIdempotencyStore() *IdempotencyStore {
	return &IdempotencyStore{keys: make(map[uuid.UUID]string)}
}

func (s *IdempotencyStore) Reserve(ctx context.Context, jobID uuid.UUID, candidate string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if key, ok := s.keys[jobID]; ok {
		return key, nil
	}
	s.keys[jobID] = candidate
	return candidate, nil
}

func (s *IdempotencyStore) Release(ctx context.Context, jobID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, jobID)
	return nil
}
