package domain

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the lifecycle state of a video generation job.
type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
	StatusCancelled  JobStatus = "cancelled"
)

// IsTerminal returns true if the status represents a final state.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// IsValid checks if the status is one of the known job statuses.
func (s JobStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

var jobTransitions = map[JobStatus][]JobStatus{
	StatusPending:    {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusCompleted, StatusFailed, StatusCancelled},
}

// CanTransition reports whether a job may move from one status to another.
// Staying in the same non-terminal status is not a transition and is allowed.
func CanTransition(from, to JobStatus) bool {
	if from == to {
		return !from.IsTerminal()
	}
	for _, next := range jobTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Priority orders jobs when listing.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// IsValid checks if the priority is supported.
func (p Priority) IsValid() bool {
	return p == PriorityLow || p == PriorityNormal || p == PriorityHigh
}

// Rank returns a sortable weight, higher meaning more urgent.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 2
	case PriorityNormal:
		return 1
	}
	return 0
}

// VideoSettings are the generation parameters a job was created with.
type VideoSettings struct {
	DurationSeconds int    `json:"duration_seconds"`
	Resolution      string `json:"resolution,omitempty"`
	AspectRatio     string `json:"aspect_ratio,omitempty"`
	Width           int    `json:"width,omitempty"`
	Height          int    `json:"height,omitempty"`
	Variants        int    `json:"variants"`
	Model           string `json:"model,omitempty"`
}

// VideoResult describes the generated media of a completed job.
type VideoResult struct {
	URL             string `json:"url"`
	GenerationID    string `json:"generation_id,omitempty"`
	DurationSeconds int    `json:"duration_seconds"`
	Width           int    `json:"width"`
	Height          int    `json:"height"`
	Format          string `json:"format"`
}

// Job represents a video generation job throughout its lifecycle.
type Job struct {
	ID          uuid.UUID     `json:"id"`
	Prompt      string        `json:"prompt"`
	Status      JobStatus     `json:"status"`
	Priority    Priority      `json:"priority"`
	Settings    VideoSettings `json:"settings"`
	ExternalID  string        `json:"external_id,omitempty"`
	Result      *VideoResult  `json:"result,omitempty"`
	Error       string        `json:"error,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
	StartedAt   *time.Time    `json:"started_at,omitempty"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
}

// Clone returns a deep copy of the job.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	if j.Result != nil {
		r := *j.Result
		c.Result = &r
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// JobUpdate is a partial update. Nil fields are left untouched.
type JobUpdate struct {
	Status     *JobStatus
	Priority   *Priority
	ExternalID *string
	Result     *VideoResult
	Error      *string
}

// Apply validates the update against job and mutates it in place.
// The job's id and creation time are never touched.
func (u JobUpdate) Apply(job *Job, now time.Time) error {
	next := job.Status
	if u.Status != nil {
		next = *u.Status
		if !next.IsValid() {
			return Validationf("unknown status %q", next)
		}
		if !CanTransition(job.Status, next) {
			return ErrInvalidTransition
		}
	}
	if u.Priority != nil && !u.Priority.IsValid() {
		return Validationf("unknown priority %q", *u.Priority)
	}
	if u.ExternalID != nil && job.ExternalID != "" && *u.ExternalID != job.ExternalID {
		return ErrExternalIDImmutable
	}

	result := job.Result
	if u.Result != nil {
		r := *u.Result
		result = &r
	}
	errMsg := job.Error
	if u.Error != nil {
		errMsg = *u.Error
	}
	if next == StatusCompleted && result == nil {
		return ErrResultRequired
	}
	if next != StatusCompleted && u.Result != nil {
		return ErrResultNotAllowed
	}
	if next == StatusFailed && errMsg == "" {
		return ErrErrorRequired
	}
	if next != StatusFailed && u.Error != nil && *u.Error != "" {
		return ErrErrorNotAllowed
	}

	job.Status = next
	job.Result = result
	job.Error = errMsg
	if u.Priority != nil {
		job.Priority = *u.Priority
	}
	if u.ExternalID != nil {
		job.ExternalID = *u.ExternalID
	}
	if next == StatusProcessing && job.StartedAt == nil {
		t := now
		job.StartedAt = &t
	}
	if next.IsTerminal() && job.CompletedAt == nil {
		t := now
		job.CompletedAt = &t
	}
	job.UpdatedAt = now
	return nil
}

// StatusUpdate is shorthand for a JobUpdate that only changes the status.
func StatusUpdate(s JobStatus) JobUpdate {
	return JobUpdate{Status: &s}
}

// JobFilter narrows a job listing. Zero values match everything.
type JobFilter struct {
	Status        JobStatus
	Priority      Priority
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}

// Matches reports whether the job satisfies every set predicate.
func (f JobFilter) Matches(j *Job) bool {
	if f.Status != "" && j.Status != f.Status {
		return false
	}
	if f.Priority != "" && j.Priority != f.Priority {
		return false
	}
	if f.CreatedAfter != nil && !j.CreatedAt.After(*f.CreatedAfter) {
		return false
	}
	if f.CreatedBefore != nil && !j.CreatedAt.Before(*f.CreatedBefore) {
		return false
	}
	return true
}

// SortField names the attribute a job listing is ordered by.
type SortField string

const (
	SortByCreatedAt SortField = "createdAt"
	SortByUpdatedAt SortField = "updatedAt"
	SortByPriority  SortField = "priority"
)

// SortOrder is asc or desc.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// ListOptions controls pagination and sorting of a job listing.
type ListOptions struct {
	Page     int
	PageSize int
	Sort     SortField
	Order    SortOrder
}

// Normalize fills defaults and validates the options.
func (o ListOptions) Normalize() (ListOptions, error) {
	if o.Page == 0 {
		o.Page = 1
	}
	if o.PageSize == 0 {
		o.PageSize = DefaultPageSize
	}
	if o.Sort == "" {
		o.Sort = SortByCreatedAt
	}
	if o.Order == "" {
		o.Order = SortDesc
	}
	if o.Page < 1 {
		return o, Validationf("page must be >= 1")
	}
	if o.PageSize < 1 || o.PageSize > MaxPageSize {
		return o, Validationf("page size must be between 1 and %d", MaxPageSize)
	}
	switch o.Sort {
	case SortByCreatedAt, SortByUpdatedAt, SortByPriority:
	default:
		return o, Validationf("unsupported sort field %q", o.Sort)
	}
	if o.Order != SortAsc && o.Order != SortDesc {
		return o, Validationf("unsupported sort order %q", o.Order)
	}
	return o, nil
}

// JobPage is one page of a job listing.
type JobPage struct {
	Items      []*Job `json:"items"`
	Total      int    `json:"total"`
	Page       int    `json:"page"`
	PageSize   int    `json:"page_size"`
	TotalPages int    `json:"total_pages"`
	HasNext    bool   `json:"has_next"`
	HasPrev    bool   `json:"has_prev"`
}

// NewJobPage computes the paging metadata for a window of a total-sized set.
func NewJobPage(items []*Job, total int, opts ListOptions) *JobPage {
	totalPages := 0
	if total > 0 {
		totalPages = (total + opts.PageSize - 1) / opts.PageSize
	}
	if items == nil {
		items = []*Job{}
	}
	return &JobPage{
		Items:      items,
		Total:      total,
		Page:       opts.Page,
		PageSize:   opts.PageSize,
		TotalPages: totalPages,
		HasNext:    opts.Page < totalPages,
		HasPrev:    opts.Page > 1,
	}
}
