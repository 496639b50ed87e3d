package domain

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to JobStatus
		want     bool
	}{
		{StatusPending, StatusProcessing, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusCompleted, false},
		{StatusPending, StatusFailed, false},
		{StatusProcessing, StatusCompleted, true},
		{StatusProcessing, StatusFailed, true},
		{StatusProcessing, StatusCancelled, true},
		{StatusProcessing, StatusPending, false},
		{StatusProcessing, StatusProcessing, true},
		{StatusCompleted, StatusCompleted, false},
		{StatusCompleted, StatusFailed, false},
		{StatusFailed, StatusProcessing, false},
		{StatusCancelled, StatusPending, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestJobUpdateApply(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	processing := StatusProcessing
	completed := StatusCompleted
	failed := StatusFailed
	msg := "provider rejected prompt"
	extID := "task_1"
	otherID := "task_2"

	t.Run("processing stamps start time", func(t *testing.T) {
		job := &Job{Status: StatusPending}
		if err := (JobUpdate{Status: &processing, ExternalID: &extID}).Apply(job, now); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if job.StartedAt == nil || !job.StartedAt.Equal(now) || job.ExternalID != extID {
			t.Errorf("unexpected job %+v", job)
		}
	})

	t.Run("completed requires result", func(t *testing.T) {
		job := &Job{Status: StatusProcessing}
		if err := (JobUpdate{Status: &completed}).Apply(job, now); !errors.Is(err, ErrResultRequired) {
			t.Errorf("expected ErrResultRequired, got %v", err)
		}
		if job.Status != StatusProcessing {
			t.Error("rejected update must not mutate the job")
		}
		err := JobUpdate{Status: &completed, Result: &VideoResult{URL: "u"}}.Apply(job, now)
		if err != nil || job.CompletedAt == nil || job.Result == nil {
			t.Errorf("expected completed job, got %+v (%v)", job, err)
		}
	})

	t.Run("failed requires error", func(t *testing.T) {
		job := &Job{Status: StatusProcessing}
		if err := (JobUpdate{Status: &failed}).Apply(job, now); !errors.Is(err, ErrErrorRequired) {
			t.Errorf("expected ErrErrorRequired, got %v", err)
		}
		if err := (JobUpdate{Status: &failed, Error: &msg}).Apply(job, now); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("result on non-completed job", func(t *testing.T) {
		job := &Job{Status: StatusProcessing}
		err := JobUpdate{Result: &VideoResult{URL: "u"}}.Apply(job, now)
		if !errors.Is(err, ErrResultNotAllowed) {
			t.Errorf("expected ErrResultNotAllowed, got %v", err)
		}
	})

	t.Run("external id is immutable", func(t *testing.T) {
		job := &Job{Status: StatusProcessing, ExternalID: extID}
		if err := (JobUpdate{ExternalID: &otherID}).Apply(job, now); !errors.Is(err, ErrConflict) {
			t.Errorf("expected conflict, got %v", err)
		}
		if err := (JobUpdate{ExternalID: &extID}).Apply(job, now); err != nil {
			t.Errorf("same id must be accepted, got %v", err)
		}
	})

	t.Run("terminal job rejects changes", func(t *testing.T) {
		job := &Job{Status: StatusCancelled}
		if err := (JobUpdate{Status: &processing}).Apply(job, now); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("expected ErrInvalidTransition, got %v", err)
		}
	})

	t.Run("unknown status", func(t *testing.T) {
		bogus := JobStatus("paused")
		if err := (JobUpdate{Status: &bogus}).Apply(&Job{Status: StatusPending}, now); !errors.Is(err, ErrValidation) {
			t.Errorf("expected validation error, got %v", err)
		}
	})
}

func TestCreateVideoRequestValidate(t *testing.T) {
	intp := func(v int) *int { return &v }
	tests := []struct {
		name    string
		req     CreateVideoRequest
		wantErr bool
	}{
		{"minimal", CreateVideoRequest{Prompt: "sunrise"}, false},
		{"full", CreateVideoRequest{Prompt: "sunrise", DurationSeconds: intp(20), Resolution: "1080p", AspectRatio: "9:16", Variants: intp(4), Priority: PriorityHigh}, false},
		{"blank prompt", CreateVideoRequest{Prompt: "   "}, true},
		{"long prompt", CreateVideoRequest{Prompt: strings.Repeat("a", MaxPromptLength+1)}, true},
		{"zero duration", CreateVideoRequest{Prompt: "x", DurationSeconds: intp(0)}, true},
		{"duration 25", CreateVideoRequest{Prompt: "x", DurationSeconds: intp(25)}, true},
		{"4k", CreateVideoRequest{Prompt: "x", Resolution: "2160p"}, true},
		{"bad aspect", CreateVideoRequest{Prompt: "x", AspectRatio: "2:1"}, true},
		{"explicit size", CreateVideoRequest{Prompt: "x", Width: intp(1280), Height: intp(720)}, false},
		{"width without height", CreateVideoRequest{Prompt: "x", Width: intp(1920)}, true},
		{"height without width", CreateVideoRequest{Prompt: "x", Height: intp(1080)}, true},
		{"negative width", CreateVideoRequest{Prompt: "x", Width: intp(-1), Height: intp(720)}, true},
		{"five variants", CreateVideoRequest{Prompt: "x", Variants: intp(5)}, true},
		{"unknown priority", CreateVideoRequest{Prompt: "x", Priority: "urgent"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrValidation) {
				t.Errorf("expected validation kind, got %v", err)
			}
		})
	}
}

func TestCreateVideoRequestDefaults(t *testing.T) {
	req := CreateVideoRequest{Prompt: "x"}
	s := req.Settings()
	if s.DurationSeconds != DefaultDurationSeconds || s.Variants != 1 {
		t.Errorf("unexpected defaults %+v", s)
	}
	if req.JobPriority() != PriorityNormal {
		t.Errorf("expected normal priority, got %s", req.JobPriority())
	}
}

func TestDeriveStatus(t *testing.T) {
	tests := []struct {
		name     string
		current  BatchStatus
		statuses []JobStatus
		want     BatchStatus
	}{
		{"all pending", BatchPending, []JobStatus{StatusPending, StatusPending}, BatchPending},
		{"one running", BatchPending, []JobStatus{StatusProcessing, StatusPending}, BatchProcessing},
		{"processing sticks", BatchProcessing, []JobStatus{StatusPending, StatusPending}, BatchProcessing},
		{"all completed", BatchProcessing, []JobStatus{StatusCompleted, StatusCompleted}, BatchCompleted},
		{"partial", BatchProcessing, []JobStatus{StatusCompleted, StatusFailed, StatusCompleted}, BatchPartial},
		{"all failed", BatchProcessing, []JobStatus{StatusFailed, StatusCancelled}, BatchFailed},
		{"cancelled sticks", BatchCancelled, []JobStatus{StatusCompleted, StatusCompleted}, BatchCancelled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewBatchProgress(len(tt.statuses), tt.statuses)
			if got := DeriveStatus(tt.current, p); got != tt.want {
				t.Errorf("DeriveStatus = %s, want %s (progress %+v)", got, tt.want, p)
			}
		})
	}
}

func TestBatchProgressPercentage(t *testing.T) {
	p := NewBatchProgress(3, []JobStatus{StatusCompleted, StatusFailed, StatusProcessing})
	if p.Percentage != 67 {
		t.Errorf("expected 67%%, got %d", p.Percentage)
	}
	if p.Finished() {
		t.Error("progress with a processing job is not finished")
	}
	if (BatchProgress{}).Percentage != 0 || (BatchProgress{}).Finished() {
		t.Error("empty progress must be 0% and unfinished")
	}
}

func TestKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{Validationf("bad"), "validation"},
		{ErrJobTerminal, "conflict"},
		{ErrBatchNotFound, "not_found"},
		{ErrExternalService, "external_service"},
		{errors.New("plain"), ""},
	}
	for _, tt := range tests {
		if got := Kind(tt.err); got != tt.want {
			t.Errorf("Kind(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
