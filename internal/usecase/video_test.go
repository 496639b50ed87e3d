package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Harsh-BH/vidforge/internal/domain"
	"github.com/Harsh-BH/vidforge/internal/provider"
	mockgen "github.com/Harsh-BH/vidforge/internal/provider/mock"
	mockpub "github.com/Harsh-BH/vidforge/internal/publisher/mock"
	mockrepo "github.com/Harsh-BH/vidforge/internal/repository/mock"
)

type videoFixture struct {
	repo *mockrepo.MockJobRepository
	keys *mockrepo.MockIdempotencyStore
	gen  *mockgen.MockGenerator
	pub  *mockpub.MockPublisher
	uc   *VideoUsecase
}

func newVideoFixture() *videoFixture {
	f := &videoFixture{
		repo: mockrepo.NewMockJobRepository(),
		keys: mockrepo.NewMockIdempotencyStore(),
		gen:  mockgen.NewMockGenerator(),
		pub:  mockpub.NewMockPublisher(),
	}
	f.uc = NewVideoUsecase(f.repo, f.keys, f.gen, f.pub, VideoOptions{}, zap.NewNop())
	return f
}

func intPtr(v int) *int { return &v }

// seedJob stores a job and walks it to status along valid transitions.
func seedJob(t *testing.T, repo *mockrepo.MockJobRepository, status domain.JobStatus, externalID string) *domain.Job {
	t.Helper()
	ctx := context.Background()
	id := uuid.New()
	job, err := repo.Create(ctx, &domain.Job{
		ID:       id,
		Prompt:   "a cat surfing",
		Status:   domain.StatusPending,
		Priority: domain.PriorityNormal,
		Settings: domain.VideoSettings{DurationSeconds: 5, Variants: 1},
	})
	if err != nil {
		t.Fatalf("seed create: %v", err)
	}
	if status == domain.StatusPending {
		return job
	}
	if status != domain.StatusCancelled || externalID != "" {
		processing := domain.StatusProcessing
		update := domain.JobUpdate{Status: &processing}
		if externalID != "" {
			update.ExternalID = &externalID
		}
		if job, err = repo.Update(ctx, id, update); err != nil {
			t.Fatalf("seed processing: %v", err)
		}
	}
	switch status {
	case domain.StatusCompleted:
		completed := domain.StatusCompleted
		job, err = repo.Update(ctx, id, domain.JobUpdate{
			Status: &completed,
			Result: &domain.VideoResult{URL: "https://cdn/v.mp4", GenerationID: "gen_1", Format: "mp4"},
		})
	case domain.StatusFailed:
		failed := domain.StatusFailed
		msg := "boom"
		job, err = repo.Update(ctx, id, domain.JobUpdate{Status: &failed, Error: &msg})
	case domain.StatusCancelled:
		job, err = repo.Update(ctx, id, domain.StatusUpdate(domain.StatusCancelled))
	}
	if err != nil {
		t.Fatalf("seed %s: %v", status, err)
	}
	return job
}

func TestCreateVideo_SubmitsInBackground(t *testing.T) {
	f := newVideoFixture()

	job, err := f.uc.CreateVideo(context.Background(), &domain.CreateVideoRequest{
		Prompt:          "a lighthouse at dawn",
		DurationSeconds: intPtr(20),
		Resolution:      "1080p",
		AspectRatio:     "16:9",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.Status != domain.StatusPending {
		t.Errorf("expected pending snapshot, got %s", job.Status)
	}
	if job.Priority != domain.PriorityNormal {
		t.Errorf("expected default priority normal, got %s", job.Priority)
	}

	f.uc.Wait()

	stored, err := f.uc.GetVideoStatus(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stored.Status != domain.StatusProcessing {
		t.Fatalf("expected processing after submission, got %s", stored.Status)
	}
	if stored.ExternalID != "task_1" {
		t.Errorf("expected external id task_1, got %q", stored.ExternalID)
	}
	if stored.StartedAt == nil {
		t.Error("expected started_at to be set")
	}

	submits := f.gen.Submits()
	if len(submits) != 1 {
		t.Fatalf("expected 1 submit, got %d", len(submits))
	}
	if submits[0].IdempotencyKey == "" {
		t.Error("expected an idempotency key")
	}
	if submits[0].Request.DurationSeconds != 20 {
		t.Errorf("expected duration 20, got %d", submits[0].Request.DurationSeconds)
	}
}

func TestCreateVideo_ValidationFailsBeforeStoring(t *testing.T) {
	tests := []struct {
		name string
		req  domain.CreateVideoRequest
	}{
		{"empty prompt", domain.CreateVideoRequest{Prompt: "   "}},
		{"prompt too long", domain.CreateVideoRequest{Prompt: strings.Repeat("x", 1001)}},
		{"duration 25", domain.CreateVideoRequest{Prompt: "ok", DurationSeconds: intPtr(25)}},
		{"4k resolution", domain.CreateVideoRequest{Prompt: "ok", Resolution: "2160p"}},
		{"bad aspect", domain.CreateVideoRequest{Prompt: "ok", AspectRatio: "21:9"}},
		{"pixel cap", domain.CreateVideoRequest{Prompt: "ok", Width: intPtr(1920), Height: intPtr(1920)}},
		{"unknown model", domain.CreateVideoRequest{Prompt: "ok", Model: "veo"}},
		{"too many variants", domain.CreateVideoRequest{Prompt: "ok", Variants: intPtr(5)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newVideoFixture()
			_, err := f.uc.CreateVideo(context.Background(), &tt.req)
			if !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
			f.uc.Wait()
			if n := len(f.repo.GetAll()); n != 0 {
				t.Errorf("expected no stored jobs, got %d", n)
			}
			if n := len(f.gen.Submits()); n != 0 {
				t.Errorf("expected no submissions, got %d", n)
			}
		})
	}
}

func TestCreateVideo_SubmissionFailureFailsJob(t *testing.T) {
	f := newVideoFixture()
	f.gen.SubmitFn = func(ctx context.Context, req *provider.GenerationRequest, key string) (*provider.RemoteJob, error) {
		return nil, &provider.APIError{Op: "submit", StatusCode: 503, Message: "overloaded", Attempts: 3}
	}

	job, err := f.uc.CreateVideo(context.Background(), &domain.CreateVideoRequest{Prompt: "a storm"})
	if err != nil {
		t.Fatalf("creation must not surface submission errors, got %v", err)
	}
	f.uc.Wait()

	stored, _ := f.uc.GetVideoStatus(context.Background(), job.ID)
	if stored.Status != domain.StatusFailed {
		t.Fatalf("expected failed, got %s", stored.Status)
	}
	if !strings.Contains(stored.Error, "submission failed") || !strings.Contains(stored.Error, "overloaded") {
		t.Errorf("unexpected error message %q", stored.Error)
	}
	if stored.Result != nil {
		t.Error("failed job must not carry a result")
	}
	if stored.CompletedAt == nil {
		t.Error("expected completed_at on terminal job")
	}

	events := f.pub.Published()
	if len(events) != 1 || events[0].Status != domain.StatusFailed {
		t.Errorf("expected one failed event, got %+v", events)
	}
	if f.keys.Released() != 1 {
		t.Errorf("expected idempotency key released, got %d", f.keys.Released())
	}
}

func TestCreateVideo_ReusesReservedIdempotencyKey(t *testing.T) {
	f := newVideoFixture()
	f.keys.ReserveFunc = func(ctx context.Context, jobID uuid.UUID, candidate string) (string, error) {
		return "existing-key", nil
	}

	if _, err := f.uc.CreateVideo(context.Background(), &domain.CreateVideoRequest{Prompt: "fog"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f.uc.Wait()

	submits := f.gen.Submits()
	if len(submits) != 1 || submits[0].IdempotencyKey != "existing-key" {
		t.Errorf("expected reserved key to be forwarded, got %+v", submits)
	}
}

func TestCreateVideo_RepositoryErrorIsExternalService(t *testing.T) {
	f := newVideoFixture()
	f.repo.CreateFunc = func(ctx context.Context, job *domain.Job) (*domain.Job, error) {
		return nil, errors.New("connection refused")
	}

	_, err := f.uc.CreateVideo(context.Background(), &domain.CreateVideoRequest{Prompt: "rain"})
	if !errors.Is(err, domain.ErrExternalService) {
		t.Errorf("expected ErrExternalService, got %v", err)
	}
}

func TestCreateVideo_CancelledDuringSubmission(t *testing.T) {
	f := newVideoFixture()
	started := make(chan struct{})
	release := make(chan struct{})
	f.gen.SubmitFn = func(ctx context.Context, req *provider.GenerationRequest, key string) (*provider.RemoteJob, error) {
		close(started)
		<-release
		return &provider.RemoteJob{ID: "ext-late", Status: provider.RemoteQueued}, nil
	}

	job, err := f.uc.CreateVideo(context.Background(), &domain.CreateVideoRequest{Prompt: "snow"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	<-started

	if _, err := f.uc.CancelVideo(context.Background(), job.ID); err != nil {
		t.Fatalf("cancel pending job: %v", err)
	}
	close(release)
	f.uc.Wait()

	stored, _ := f.uc.GetVideoStatus(context.Background(), job.ID)
	if stored.Status != domain.StatusCancelled {
		t.Errorf("expected cancelled, got %s", stored.Status)
	}
	cancels := f.gen.Cancels()
	if len(cancels) != 1 || cancels[0] != "ext-late" {
		t.Errorf("expected remote job ext-late to be cancelled, got %v", cancels)
	}
}

func TestCancelVideo_SubmissionLandsAfterRead(t *testing.T) {
	f := newVideoFixture()
	started := make(chan struct{})
	release := make(chan struct{})
	f.gen.SubmitFn = func(ctx context.Context, req *provider.GenerationRequest, key string) (*provider.RemoteJob, error) {
		close(started)
		<-release
		return &provider.RemoteJob{ID: "task_orphan", Status: provider.RemoteQueued}, nil
	}

	job, err := f.uc.CreateVideo(context.Background(), &domain.CreateVideoRequest{Prompt: "fireworks"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	<-started

	// The cancel reads a pending snapshot, then the submission stores the
	// external id before the cancel writes.
	var once sync.Once
	f.repo.FindByIDFunc = func(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
		snapshot, err := f.repo.JobRepository.FindByID(ctx, id)
		once.Do(func() {
			close(release)
			f.uc.Wait()
		})
		return snapshot, err
	}

	got, err := f.uc.CancelVideo(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != domain.StatusCancelled || got.ExternalID != "task_orphan" {
		t.Errorf("expected cancelled job with external id task_orphan, got %s %q", got.Status, got.ExternalID)
	}
	if c := f.gen.Cancels(); len(c) != 1 || c[0] != "task_orphan" {
		t.Errorf("expected remote cancel of task_orphan, got %v", c)
	}
}

func TestCancelVideo(t *testing.T) {
	t.Run("pending job", func(t *testing.T) {
		f := newVideoFixture()
		job := seedJob(t, f.repo, domain.StatusPending, "")

		got, err := f.uc.CancelVideo(context.Background(), job.ID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.Status != domain.StatusCancelled {
			t.Errorf("expected cancelled, got %s", got.Status)
		}
		if len(f.gen.Cancels()) != 0 {
			t.Error("job without external id must not be cancelled remotely")
		}
	})

	t.Run("processing job with failing remote cancel", func(t *testing.T) {
		f := newVideoFixture()
		f.gen.CancelFn = func(ctx context.Context, externalID string) error {
			return &provider.APIError{Op: "cancel", StatusCode: 500}
		}
		job := seedJob(t, f.repo, domain.StatusProcessing, "ext-1")

		got, err := f.uc.CancelVideo(context.Background(), job.ID)
		if err != nil {
			t.Fatalf("remote cancel failure must not be fatal, got %v", err)
		}
		if got.Status != domain.StatusCancelled {
			t.Errorf("expected cancelled, got %s", got.Status)
		}
		if c := f.gen.Cancels(); len(c) != 1 || c[0] != "ext-1" {
			t.Errorf("expected remote cancel of ext-1, got %v", c)
		}
	})

	t.Run("completed job", func(t *testing.T) {
		f := newVideoFixture()
		job := seedJob(t, f.repo, domain.StatusCompleted, "ext-2")

		_, err := f.uc.CancelVideo(context.Background(), job.ID)
		if !errors.Is(err, domain.ErrConflict) {
			t.Errorf("expected ErrConflict, got %v", err)
		}
	})

	t.Run("unknown job", func(t *testing.T) {
		f := newVideoFixture()
		_, err := f.uc.CancelVideo(context.Background(), uuid.New())
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestSyncJobStatus_MapsRemoteStatus(t *testing.T) {
	tests := []struct {
		name   string
		remote provider.RemoteJob
		want   domain.JobStatus
	}{
		{"queued", provider.RemoteJob{Status: provider.RemoteQueued}, domain.StatusProcessing},
		{"in progress", provider.RemoteJob{Status: provider.RemoteInProgress}, domain.StatusProcessing},
		{"completed", provider.RemoteJob{
			Status:      provider.RemoteCompleted,
			Width:       1920,
			Height:      1080,
			Seconds:     5,
			Generations: []provider.Generation{{ID: "gen_9", VideoURL: "https://cdn/9.mp4"}},
		}, domain.StatusCompleted},
		{"completed without generations", provider.RemoteJob{Status: provider.RemoteCompleted}, domain.StatusFailed},
		{"failed", provider.RemoteJob{Status: provider.RemoteFailed, FailureReason: "moderation"}, domain.StatusFailed},
		{"cancelled", provider.RemoteJob{Status: provider.RemoteCancelled}, domain.StatusCancelled},
		{"unknown", provider.RemoteJob{Status: "exploded"}, domain.StatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newVideoFixture()
			f.gen.GetStatusFn = func(ctx context.Context, externalID string) (*provider.RemoteJob, error) {
				r := tt.remote
				r.ID = externalID
				return &r, nil
			}
			job := seedJob(t, f.repo, domain.StatusProcessing, "ext-1")

			got, err := f.uc.SyncJobStatus(context.Background(), job.ID)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Status != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, got.Status)
			}
			switch got.Status {
			case domain.StatusCompleted:
				if got.Result == nil || got.Result.GenerationID != "gen_9" || got.Result.Width != 1920 {
					t.Errorf("unexpected result %+v", got.Result)
				}
				if got.Error != "" {
					t.Errorf("completed job must not carry an error, got %q", got.Error)
				}
			case domain.StatusFailed:
				if got.Error == "" {
					t.Error("failed job must carry an error")
				}
				if got.Result != nil {
					t.Error("failed job must not carry a result")
				}
			}
		})
	}
}

func TestSyncJobStatus_ProviderErrorFailsJob(t *testing.T) {
	f := newVideoFixture()
	f.gen.GetStatusFn = func(ctx context.Context, externalID string) (*provider.RemoteJob, error) {
		return nil, &provider.APIError{Op: "status", StatusCode: 502, Attempts: 3}
	}
	job := seedJob(t, f.repo, domain.StatusProcessing, "ext-1")

	got, err := f.uc.SyncJobStatus(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("sync failures must not fail the call, got %v", err)
	}
	if got.Status != domain.StatusFailed || !strings.Contains(got.Error, "status sync failed") {
		t.Errorf("expected failed job with sync error, got %s %q", got.Status, got.Error)
	}
}

func TestSyncJobStatus_NoopCases(t *testing.T) {
	f := newVideoFixture()
	calls := 0
	f.gen.GetStatusFn = func(ctx context.Context, externalID string) (*provider.RemoteJob, error) {
		calls++
		return &provider.RemoteJob{ID: externalID, Status: provider.RemoteInProgress}, nil
	}

	for _, job := range []*domain.Job{
		seedJob(t, f.repo, domain.StatusCompleted, "ext-done"),
		seedJob(t, f.repo, domain.StatusCancelled, ""),
		seedJob(t, f.repo, domain.StatusPending, ""),
	} {
		got, err := f.uc.SyncJobStatus(context.Background(), job.ID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.Status != job.Status {
			t.Errorf("expected %s unchanged, got %s", job.Status, got.Status)
		}
	}
	if calls != 0 {
		t.Errorf("expected no provider calls, got %d", calls)
	}
}

func TestSyncJobStatus_PanicIsRecovered(t *testing.T) {
	f := newVideoFixture()
	f.gen.GetStatusFn = func(ctx context.Context, externalID string) (*provider.RemoteJob, error) {
		panic("provider exploded")
	}
	job := seedJob(t, f.repo, domain.StatusProcessing, "ext-1")

	_, err := f.uc.SyncJobStatus(context.Background(), job.ID)
	if !errors.Is(err, domain.ErrExternalService) {
		t.Errorf("expected ErrExternalService, got %v", err)
	}
}

func TestSyncJobStatus_ConcurrentWithCancel(t *testing.T) {
	f := newVideoFixture()
	f.gen.GetStatusFn = func(ctx context.Context, externalID string) (*provider.RemoteJob, error) {
		return &provider.RemoteJob{
			ID:          externalID,
			Status:      provider.RemoteCompleted,
			Generations: []provider.Generation{{ID: "g", VideoURL: "u"}},
		}, nil
	}
	job := seedJob(t, f.repo, domain.StatusProcessing, "ext-1")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		f.uc.SyncJobStatus(context.Background(), job.ID)
	}()
	go func() {
		defer wg.Done()
		f.uc.CancelVideo(context.Background(), job.ID)
	}()
	wg.Wait()

	got, _ := f.uc.GetVideoStatus(context.Background(), job.ID)
	if got.Status != domain.StatusCompleted && got.Status != domain.StatusCancelled {
		t.Fatalf("expected exactly one terminal winner, got %s", got.Status)
	}
	if n := len(f.pub.Published()); n != 1 {
		t.Errorf("expected a single terminal event, got %d", n)
	}
}

func TestGetVideoResult(t *testing.T) {
	f := newVideoFixture()
	pending := seedJob(t, f.repo, domain.StatusProcessing, "ext-1")
	done := seedJob(t, f.repo, domain.StatusCompleted, "ext-2")

	if _, err := f.uc.GetVideoResult(context.Background(), pending.ID); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("expected ErrConflict for processing job, got %v", err)
	}
	result, err := f.uc.GetVideoResult(context.Background(), done.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.URL != "https://cdn/v.mp4" {
		t.Errorf("unexpected result url %q", result.URL)
	}

	body, contentType, err := f.uc.OpenVideoContent(context.Background(), done.ID)
	if err != nil {
		t.Fatalf("open content: %v", err)
	}
	defer body.Close()
	if contentType != "video/mp4" {
		t.Errorf("unexpected content type %q", contentType)
	}
}

func TestListJobs_RejectsBadOptions(t *testing.T) {
	f := newVideoFixture()
	_, err := f.uc.ListJobs(context.Background(), domain.JobFilter{}, domain.ListOptions{PageSize: 500})
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}

	seedJob(t, f.repo, domain.StatusPending, "")
	page, err := f.uc.ListJobs(context.Background(), domain.JobFilter{}, domain.ListOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.Total != 1 || page.Page != 1 || page.PageSize != domain.DefaultPageSize {
		t.Errorf("unexpected page %+v", page)
	}
}
