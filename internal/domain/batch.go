package domain

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// BatchStatus represents the processing state of a batch.
type BatchStatus string

const (
	BatchPending    BatchStatus = "pending"
	BatchProcessing BatchStatus = "processing"
	BatchCompleted  BatchStatus = "completed"
	BatchPartial    BatchStatus = "partial"
	BatchFailed     BatchStatus = "failed"
	BatchCancelled  BatchStatus = "cancelled"
)

// IsTerminal returns true if the batch can no longer change status.
func (s BatchStatus) IsTerminal() bool {
	switch s {
	case BatchCompleted, BatchPartial, BatchFailed, BatchCancelled:
		return true
	}
	return false
}

// BatchProgress is a snapshot of constituent job statuses.
type BatchProgress struct {
	Total      int `json:"total"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Cancelled  int `json:"cancelled"`
	Percentage int `json:"percentage"`
}

// Add counts one job status into the progress and refreshes the percentage.
func (p *BatchProgress) Add(s JobStatus) {
	switch s {
	case StatusCompleted:
		p.Completed++
	case StatusFailed:
		p.Failed++
	case StatusCancelled:
		p.Cancelled++
	case StatusProcessing:
		p.Processing++
	default:
		p.Pending++
	}
	p.Percentage = percentage(p.Completed+p.Failed+p.Cancelled, p.Total)
}

// Finished reports whether every job reached a terminal state.
func (p BatchProgress) Finished() bool {
	return p.Total > 0 && p.Completed+p.Failed+p.Cancelled == p.Total
}

// Started reports whether any job left the pending state.
func (p BatchProgress) Started() bool {
	return p.Pending < p.Total
}

// NewBatchProgress counts statuses into a progress snapshot for total jobs.
func NewBatchProgress(total int, statuses []JobStatus) BatchProgress {
	p := BatchProgress{Total: total}
	for _, s := range statuses {
		p.Add(s)
	}
	return p
}

func percentage(done, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(100 * float64(done) / float64(total)))
}

// DeriveStatus computes the batch status implied by progress, starting from
// the batch's current status. Cancelled and other terminal statuses stick.
func DeriveStatus(current BatchStatus, p BatchProgress) BatchStatus {
	if current.IsTerminal() {
		return current
	}
	if p.Finished() {
		switch {
		case p.Failed == 0 && p.Cancelled == 0:
			return BatchCompleted
		case p.Completed > 0:
			return BatchPartial
		default:
			return BatchFailed
		}
	}
	if current == BatchProcessing || p.Started() {
		return BatchProcessing
	}
	return BatchPending
}

// Batch is a named group of jobs processed together.
type Batch struct {
	ID          uuid.UUID     `json:"id"`
	Name        string        `json:"name,omitempty"`
	JobIDs      []uuid.UUID   `json:"job_ids"`
	Status      BatchStatus   `json:"status"`
	Progress    BatchProgress `json:"progress"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
}

// Clone returns a deep copy of the batch.
func (b *Batch) Clone() *Batch {
	if b == nil {
		return nil
	}
	c := *b
	c.JobIDs = append([]uuid.UUID(nil), b.JobIDs...)
	if b.CompletedAt != nil {
		t := *b.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// SetStatus moves the batch to s, stamping the completion time on the first
// terminal status.
func (b *Batch) SetStatus(s BatchStatus, now time.Time) {
	b.Status = s
	if s.IsTerminal() && b.CompletedAt == nil {
		t := now
		b.CompletedAt = &t
	}
	b.UpdatedAt = now
}
