package usecase

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Harsh-BH/vidforge/internal/domain"
	"github.com/Harsh-BH/vidforge/internal/provider"
	mockrepo "github.com/Harsh-BH/vidforge/internal/repository/mock"
)

type batchFixture struct {
	*videoFixture
	batches *mockrepo.MockBatchRepository
	bc      *BatchUsecase
}

func newBatchFixture(opts BatchOptions) *batchFixture {
	vf := newVideoFixture()
	batches := mockrepo.NewMockBatchRepository()
	return &batchFixture{
		videoFixture: vf,
		batches:      batches,
		bc:           NewBatchUsecase(batches, vf.repo, vf.uc, opts, zap.NewNop()),
	}
}

func videoRequests(n int) []domain.CreateVideoRequest {
	reqs := make([]domain.CreateVideoRequest, n)
	for i := range reqs {
		reqs[i] = domain.CreateVideoRequest{Prompt: "scene " + strconv.Itoa(i)}
	}
	return reqs
}

// createSubmittedBatch creates a batch and waits until every job is processing.
func createSubmittedBatch(t *testing.T, f *batchFixture, n int) *domain.Batch {
	t.Helper()
	batch, err := f.bc.CreateBatch(context.Background(), &domain.CreateBatchRequest{
		Name:   "promo",
		Videos: videoRequests(n),
	})
	if err != nil {
		t.Fatalf("create batch: %v", err)
	}
	f.uc.Wait()
	return batch
}

func TestCreateBatch_Success(t *testing.T) {
	f := newBatchFixture(BatchOptions{})

	batch, err := f.bc.CreateBatch(context.Background(), &domain.CreateBatchRequest{
		Name:   "launch",
		Videos: videoRequests(3),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f.uc.Wait()

	if len(batch.JobIDs) != 3 {
		t.Fatalf("expected 3 job ids, got %d", len(batch.JobIDs))
	}
	if batch.Status != domain.BatchPending {
		t.Errorf("expected pending, got %s", batch.Status)
	}
	if batch.Progress.Total != 3 || batch.Progress.Pending != 3 || batch.Progress.Percentage != 0 {
		t.Errorf("unexpected progress %+v", batch.Progress)
	}
}

func TestCreateBatch_SizeLimits(t *testing.T) {
	f := newBatchFixture(BatchOptions{})

	for _, n := range []int{0, 11} {
		_, err := f.bc.CreateBatch(context.Background(), &domain.CreateBatchRequest{Videos: videoRequests(n)})
		if !errors.Is(err, domain.ErrValidation) {
			t.Errorf("size %d: expected ErrValidation, got %v", n, err)
		}
	}
}

func TestCreateBatch_SkipsInvalidVideos(t *testing.T) {
	f := newBatchFixture(BatchOptions{})
	reqs := videoRequests(3)
	reqs[1].DurationSeconds = intPtr(25)

	batch, err := f.bc.CreateBatch(context.Background(), &domain.CreateBatchRequest{Videos: reqs})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f.uc.Wait()
	if len(batch.JobIDs) != 2 {
		t.Errorf("expected 2 jobs, got %d", len(batch.JobIDs))
	}
}

func TestCreateBatch_FailsWhenNothingCreated(t *testing.T) {
	f := newBatchFixture(BatchOptions{})
	reqs := []domain.CreateVideoRequest{{Prompt: ""}, {Prompt: "x", Resolution: "4k"}}

	_, err := f.bc.CreateBatch(context.Background(), &domain.CreateBatchRequest{Videos: reqs})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if all, _ := f.bc.ListBatches(context.Background()); len(all) != 0 {
		t.Errorf("expected no batch stored, got %d", len(all))
	}
}

func TestProcessBatch_PartialFailure(t *testing.T) {
	f := newBatchFixture(BatchOptions{})
	// Odd task numbers complete, even ones fail: 3 completed, 2 failed.
	f.gen.GetStatusFn = func(ctx context.Context, externalID string) (*provider.RemoteJob, error) {
		n, _ := strconv.Atoi(strings.TrimPrefix(externalID, "task_"))
		if n%2 == 1 {
			return &provider.RemoteJob{
				ID:          externalID,
				Status:      provider.RemoteCompleted,
				Generations: []provider.Generation{{ID: "gen_" + externalID, VideoURL: "https://cdn/x.mp4"}},
			}, nil
		}
		return &provider.RemoteJob{ID: externalID, Status: provider.RemoteFailed, FailureReason: "blocked"}, nil
	}
	batch := createSubmittedBatch(t, f, 5)

	got, err := f.bc.ProcessBatch(context.Background(), batch.ID, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != domain.BatchPartial {
		t.Errorf("expected partial, got %s", got.Status)
	}
	p := got.Progress
	if p.Total != 5 || p.Completed != 3 || p.Failed != 2 || p.Percentage != 100 {
		t.Errorf("unexpected progress %+v", p)
	}
	if got.CompletedAt == nil {
		t.Error("expected completed_at on terminal batch")
	}

	if _, err := f.bc.ProcessBatch(context.Background(), batch.ID, 2); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("expected ErrConflict when processing a finished batch, got %v", err)
	}
}

func TestProcessBatch_AllCompleted(t *testing.T) {
	f := newBatchFixture(BatchOptions{})
	f.gen.GetStatusFn = func(ctx context.Context, externalID string) (*provider.RemoteJob, error) {
		return &provider.RemoteJob{
			ID:          externalID,
			Status:      provider.RemoteCompleted,
			Generations: []provider.Generation{{ID: "g", VideoURL: "u"}},
		}, nil
	}
	batch := createSubmittedBatch(t, f, 4)

	got, err := f.bc.ProcessBatch(context.Background(), batch.ID, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != domain.BatchCompleted || got.Progress.Percentage != 100 {
		t.Errorf("expected completed at 100%%, got %s %d", got.Status, got.Progress.Percentage)
	}
}

func TestProcessBatch_StillRunning(t *testing.T) {
	f := newBatchFixture(BatchOptions{})
	batch := createSubmittedBatch(t, f, 3)

	got, err := f.bc.ProcessBatch(context.Background(), batch.ID, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != domain.BatchProcessing {
		t.Errorf("expected processing, got %s", got.Status)
	}
	if got.Progress.Processing != 3 || got.Progress.Percentage != 0 {
		t.Errorf("unexpected progress %+v", got.Progress)
	}
}

func TestProcessBatch_RespectsConcurrencyCap(t *testing.T) {
	tests := []struct {
		name      string
		opts      BatchOptions
		requested int
		wantMax   int
	}{
		{"requested", BatchOptions{MaxConcurrency: 10}, 3, 3},
		{"default", BatchOptions{DefaultConcurrency: 2, MaxConcurrency: 10}, 0, 2},
		{"clamped to cap", BatchOptions{MaxConcurrency: 2}, 50, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newBatchFixture(tt.opts)
			f.gen.GetStatusFn = func(ctx context.Context, externalID string) (*provider.RemoteJob, error) {
				time.Sleep(20 * time.Millisecond)
				return &provider.RemoteJob{ID: externalID, Status: provider.RemoteInProgress}, nil
			}
			batch := createSubmittedBatch(t, f, 10)

			if _, err := f.bc.ProcessBatch(context.Background(), batch.ID, tt.requested); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := f.gen.MaxInFlight(); got > tt.wantMax {
				t.Errorf("expected at most %d concurrent syncs, saw %d", tt.wantMax, got)
			}
			if got := f.gen.MaxInFlight(); got < 1 {
				t.Error("expected at least one sync")
			}
		})
	}
}

func TestCancelBatch(t *testing.T) {
	f := newBatchFixture(BatchOptions{})
	batch := createSubmittedBatch(t, f, 3)

	got, err := f.bc.CancelBatch(context.Background(), batch.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != domain.BatchCancelled {
		t.Errorf("expected cancelled, got %s", got.Status)
	}
	if got.Progress.Cancelled != 3 || got.Progress.Percentage != 100 {
		t.Errorf("unexpected progress %+v", got.Progress)
	}
	if n := len(f.gen.Cancels()); n != 3 {
		t.Errorf("expected 3 remote cancellations, got %d", n)
	}
	for _, id := range got.JobIDs {
		job, _ := f.uc.GetVideoStatus(context.Background(), id)
		if job.Status != domain.StatusCancelled {
			t.Errorf("job %s: expected cancelled, got %s", id, job.Status)
		}
	}

	if _, err := f.bc.CancelBatch(context.Background(), batch.ID); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("expected ErrConflict on second cancel, got %v", err)
	}
	if _, err := f.bc.ProcessBatch(context.Background(), batch.ID, 1); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("expected ErrConflict processing a cancelled batch, got %v", err)
	}
}

func TestCancelBatch_SkipsTerminalJobs(t *testing.T) {
	f := newBatchFixture(BatchOptions{})
	f.gen.GetStatusFn = func(ctx context.Context, externalID string) (*provider.RemoteJob, error) {
		if externalID == "task_1" {
			return &provider.RemoteJob{
				ID:          externalID,
				Status:      provider.RemoteCompleted,
				Generations: []provider.Generation{{ID: "g", VideoURL: "u"}},
			}, nil
		}
		return &provider.RemoteJob{ID: externalID, Status: provider.RemoteInProgress}, nil
	}
	batch := createSubmittedBatch(t, f, 3)
	if _, err := f.bc.ProcessBatch(context.Background(), batch.ID, 3); err != nil {
		t.Fatalf("process: %v", err)
	}

	got, err := f.bc.CancelBatch(context.Background(), batch.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Progress.Completed != 1 || got.Progress.Cancelled != 2 {
		t.Errorf("unexpected progress %+v", got.Progress)
	}
	if n := len(f.gen.Cancels()); n != 2 {
		t.Errorf("expected 2 remote cancellations, got %d", n)
	}
}

func TestGetBatchStatus_NotFound(t *testing.T) {
	f := newBatchFixture(BatchOptions{})
	if _, err := f.bc.GetBatchStatus(context.Background(), uuid.New()); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListBatches_NewestFirst(t *testing.T) {
	f := newBatchFixture(BatchOptions{})
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	f.bc.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	first := createSubmittedBatch(t, f, 1)
	second := createSubmittedBatch(t, f, 1)

	all, err := f.bc.ListBatches(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(all) != 2 || all[0].ID != second.ID || all[1].ID != first.ID {
		t.Errorf("expected newest first")
	}
}
