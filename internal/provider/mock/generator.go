package mock

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/Harsh-BH/vidforge/internal/provider"
)

// Ensure MockGenerator implements provider.Generator.
var _ provider.Generator = (*MockGenerator)(nil)

// SubmitCall records the arguments of one Submit call.
type SubmitCall struct {
	Request        provider.GenerationRequest
	IdempotencyKey string
}

// MockGenerator is a hand-written provider for tests. Without hooks it
// accepts every submission and reports it as queued.
type MockGenerator struct {
	mu      sync.Mutex
	seq     int
	submits []SubmitCall
	cancels []string

	inFlight    atomic.Int32
	maxInFlight atomic.Int32

	// Hook functions for injecting behaviour
	SubmitFn    func(ctx context.Context, req *provider.GenerationRequest, key string) (*provider.RemoteJob, error)
	GetStatusFn func(ctx context.Context, externalID string) (*provider.RemoteJob, error)
	CancelFn    func(ctx context.Context, externalID string) error
	DownloadFn  func(ctx context.Context, generationID string) (io.ReadCloser, string, error)
	Healthy     bool
}

// NewMockGenerator creates a mock that reports itself healthy.
func NewMockGenerator() *MockGenerator {
	return &MockGenerator{Healthy: true}
}

func (m *MockGenerator) Submit(ctx context.Context, req *provider.GenerationRequest, key string) (*provider.RemoteJob, error) {
	m.mu.Lock()
	m.submits = append(m.submits, SubmitCall{Request: *req, IdempotencyKey: key})
	m.seq++
	id := fmt.Sprintf("task_%d", m.seq)
	m.mu.Unlock()

	if m.SubmitFn != nil {
		return m.SubmitFn(ctx, req, key)
	}
	return &provider.RemoteJob{ID: id, Status: provider.RemoteQueued}, nil
}

func (m *MockGenerator) GetStatus(ctx context.Context, externalID string) (*provider.RemoteJob, error) {
	m.enter()
	defer m.inFlight.Add(-1)

	if m.GetStatusFn != nil {
		return m.GetStatusFn(ctx, externalID)
	}
	return &provider.RemoteJob{ID: externalID, Status: provider.RemoteInProgress}, nil
}

func (m *MockGenerator) Cancel(ctx context.Context, externalID string) error {
	m.mu.Lock()
	m.cancels = append(m.cancels, externalID)
	m.mu.Unlock()

	if m.CancelFn != nil {
		return m.CancelFn(ctx, externalID)
	}
	return nil
}

func (m *MockGenerator) DownloadContent(ctx context.Context, generationID string) (io.ReadCloser, string, error) {
	if m.DownloadFn != nil {
		return m.DownloadFn(ctx, generationID)
	}
	return io.NopCloser(strings.NewReader("video:" + generationID)), "video/mp4", nil
}

func (m *MockGenerator) HealthCheck(ctx context.Context) bool {
	return m.Healthy
}

func (m *MockGenerator) enter() {
	n := m.inFlight.Add(1)
	for {
		max := m.maxInFlight.Load()
		if n <= max || m.maxInFlight.CompareAndSwap(max, n) {
			return
		}
	}
}

// Submits returns the recorded Submit calls.
func (m *MockGenerator) Submits() []SubmitCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SubmitCall(nil), m.submits...)
}

// Cancels returns the external ids passed to Cancel.
func (m *MockGenerator) Cancels() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.cancels...)
}

// MaxInFlight returns the highest number of concurrent GetStatus calls seen.
func (m *MockGenerator) MaxInFlight() int {
	return int(m.maxInFlight.Load())
}
