package mock

import (
	"context"
	"sync"

	"github.com/Harsh-BH/vidforge/internal/domain"
	"github.com/Harsh-BH/vidforge/internal/publisher"
)

// Ensure MockPublisher implements publisher.Publisher.
var _ publisher.Publisher = (*MockPublisher)(nil)

// MockPublisher is a mock event publisher for testing.
type MockPublisher struct {
	mu        sync.Mutex
	published []*domain.JobEvent
	PublishFn func(ctx context.Context, event *domain.JobEvent) error
}

// NewMockPublisher creates a new mock publisher.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

func (m *MockPublisher) Publish(ctx context.Context, event *domain.JobEvent) error {
	if m.PublishFn != nil {
		return m.PublishFn(ctx, event)
	}
	m.mu.Lock()
	m.published = append(m.published, event)
	m.mu.Unlock()
	return nil
}

func (m *MockPublisher) Close() error {
	return nil
}

// Published returns the events recorded so far.
func (m *MockPublisher) Published() []*domain.JobEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.JobEvent(nil), m.published...)
}
