package provider

import (
	"context"
	"fmt"
	"io"

	"github.com/Harsh-BH/vidforge/internal/domain"
)

// Generator is the provider boundary used by the orchestrator.
type Generator interface {
	Submit(ctx context.Context, req *GenerationRequest, idempotencyKey string) (*RemoteJob, error)
	GetStatus(ctx context.Context, externalID string) (*RemoteJob, error)
	Cancel(ctx context.Context, externalID string) error
	DownloadContent(ctx context.Context, generationID string) (io.ReadCloser, string, error)
	HealthCheck(ctx context.Context) bool
}

// GenerationRequest is what the client validates and submits.
// Width and Height may be left zero to derive them from the labels.
type GenerationRequest struct {
	Model           string
	Prompt          string
	DurationSeconds int
	Width           int
	Height          int
	Resolution      string
	AspectRatio     string
	Variants        int
}

// NewGenerationRequest builds a request from a job's prompt and settings.
func NewGenerationRequest(job *domain.Job) *GenerationRequest {
	s := job.Settings
	return &GenerationRequest{
		Model:           s.Model,
		Prompt:          job.Prompt,
		DurationSeconds: s.DurationSeconds,
		Width:           s.Width,
		Height:          s.Height,
		Resolution:      s.Resolution,
		AspectRatio:     s.AspectRatio,
		Variants:        s.Variants,
	}
}

type submitPayload struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	Seconds        int    `json:"n_seconds"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	Variants       int    `json:"n_variants"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// RemoteStatus is the provider's job status. The set is closed.
type RemoteStatus string

const (
	RemoteQueued     RemoteStatus = "queued"
	RemoteInProgress RemoteStatus = "in_progress"
	RemoteCompleted  RemoteStatus = "completed"
	RemoteFailed     RemoteStatus = "failed"
	RemoteCancelled  RemoteStatus = "cancelled"
)

// Generation is one produced video of a remote job.
type Generation struct {
	ID       string `json:"id"`
	VideoURL string `json:"video_url"`
}

// RemoteJob is the provider's job object.
type RemoteJob struct {
	ID            string       `json:"id"`
	Status        RemoteStatus `json:"status"`
	CreatedAt     int64        `json:"created_at"`
	FinishedAt    *int64       `json:"finished_at,omitempty"`
	Generations   []Generation `json:"generations"`
	Width         int          `json:"width"`
	Height        int          `json:"height"`
	Seconds       int          `json:"n_seconds"`
	FailureReason string       `json:"failure_reason,omitempty"`
}

// LocalStatus maps the remote status onto the job state machine.
func (j *RemoteJob) LocalStatus() (domain.JobStatus, error) {
	switch j.Status {
	case RemoteQueued, RemoteInProgress:
		return domain.StatusProcessing, nil
	case RemoteCompleted:
		return domain.StatusCompleted, nil
	case RemoteFailed:
		return domain.StatusFailed, nil
	case RemoteCancelled:
		return domain.StatusCancelled, nil
	}
	return "", fmt.Errorf("%w: unknown remote status %q", domain.ErrExternalService, j.Status)
}

// Result maps the primary generation onto a job result. A completed job
// without generations is an error.
func (j *RemoteJob) Result() (*domain.VideoResult, error) {
	if len(j.Generations) == 0 {
		return nil, fmt.Errorf("%w: remote job %s completed without generations", domain.ErrExternalService, j.ID)
	}
	primary := j.Generations[0]
	return &domain.VideoResult{
		URL:             primary.VideoURL,
		GenerationID:    primary.ID,
		DurationSeconds: j.Seconds,
		Width:           j.Width,
		Height:          j.Height,
		Format:          "mp4",
	}, nil
}

// FailureMessage returns a human-readable reason for a failed remote job.
func (j *RemoteJob) FailureMessage() string {
	if j.FailureReason != "" {
		return "video generation failed: " + j.FailureReason
	}
	return "video generation failed"
}
