package domain

import (
	"time"

	"github.com/google/uuid"
)

// JobEvent is published when a job reaches a terminal state.
type JobEvent struct {
	JobID      uuid.UUID    `json:"job_id"`
	ExternalID string       `json:"external_id,omitempty"`
	Status     JobStatus    `json:"status"`
	Result     *VideoResult `json:"result,omitempty"`
	Error      string       `json:"error,omitempty"`
	OccurredAt time.Time    `json:"occurred_at"`
}

// NewJobEvent builds the event for a job snapshot.
func NewJobEvent(job *Job) *JobEvent {
	return &JobEvent{
		JobID:      job.ID,
		ExternalID: job.ExternalID,
		Status:     job.Status,
		Result:     job.Result,
		Error:      job.Error,
		OccurredAt: job.UpdatedAt,
	}
}
