package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Harsh-BH/vidforge/internal/domain"
	"github.com/Harsh-BH/vidforge/internal/repository"
)

// Ensure JobRepository implements repository.JobRepository.
var _ repository.JobRepository = (*JobRepository)(nil)

// JobRepository is the volatile reference job store. A single lock guards the
// primary map and the external-id index, so every update reads, validates and
// writes a job without interleaving with other writers.
type JobRepository struct {
	mu         sync.RWMutex
	jobs       map[uuid.UUID]*domain.Job
	byExternal map[string]uuid.UUID
	now        func() time.Time
}

// NewJobRepository creates an empty in-memory job store.
func NewJobRepository() *JobRepository {
	return &JobRepository{
		jobs:       make(map[uuid.UUID]*domain.Job),
		byExternal: make(map[string]uuid.UUID),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (r *JobRepository) Create(ctx context.Context, job *domain.Job) (*domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.jobs[job.ID]; ok {
		return nil, domain.ErrDuplicateJob
	}
	if job.ExternalID != "" {
		if _, ok := r.byExternal[job.ExternalID]; ok {
			return nil, domain.ErrExternalIDImmutable
		}
	}

	stored := job.Clone()
	now := r.now()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	r.jobs[stored.ID] = stored
	if stored.ExternalID != "" {
		r.byExternal[stored.ExternalID] = stored.ID
	}
	return stored.Clone(), nil
}

func (r *JobRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	return job.Clone(), nil
}

func (r *JobRepository) FindByExternalID(ctx context.Context, externalID string) (*domain.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byExternal[externalID]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	return r.jobs[id].Clone(), nil
}

func (r *JobRepository) FindAll(ctx context.Context, filter domain.JobFilter, opts domain.ListOptions) (*domain.JobPage, error) {
	opts, err := opts.Normalize()
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	matched := make([]*domain.Job, 0, len(r.jobs))
	for _, job := range r.jobs {
		if filter.Matches(job) {
			matched = append(matched, job.Clone())
		}
	}
	r.mu.RUnlock()

	slices.SortStableFunc(matched, jobComparator(opts.Sort, opts.Order))

	total := len(matched)
	start := (opts.Page - 1) * opts.PageSize
	if start > total {
		start = total
	}
	end := min(start+opts.PageSize, total)
	return domain.NewJobPage(matched[start:end], total, opts), nil
}

// jobComparator orders by the chosen field and breaks ties by ID so pages
// never overlap. UUIDv7 IDs sort by creation time.
func jobComparator(field domain.SortField, order domain.SortOrder) func(a, b *domain.Job) int {
	return func(a, b *domain.Job) int {
		var c int
		switch field {
		case domain.SortByUpdatedAt:
			c = a.UpdatedAt.Compare(b.UpdatedAt)
		case domain.SortByPriority:
			c = cmp.Compare(a.Priority.Rank(), b.Priority.Rank())
		default:
			c = a.CreatedAt.Compare(b.CreatedAt)
		}
		if c == 0 {
			c = slices.Compare(a.ID[:], b.ID[:])
		}
		if order == domain.SortDesc {
			return -c
		}
		return c
	}
}

func (r *JobRepository) FindByStatus(ctx context.Context, status domain.JobStatus) ([]*domain.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]*domain.Job, 0)
	for _, job := range r.jobs {
		if job.Status == status {
			result = append(result, job.Clone())
		}
	}
	slices.SortFunc(result, jobComparator(domain.SortByCreatedAt, domain.SortAsc))
	return result, nil
}

func (r *JobRepository) CountByStatus(ctx context.Context, status domain.JobStatus) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, job := range r.jobs {
		if job.Status == status {
			n++
		}
	}
	return n, nil
}

func (r *JobRepository) Update(ctx context.Context, id uuid.UUID, update domain.JobUpdate) (*domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.jobs[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	if update.ExternalID != nil && *update.ExternalID != current.ExternalID {
		if owner, taken := r.byExternal[*update.ExternalID]; taken && owner != id {
			return nil, domain.ErrExternalIDImmutable
		}
	}

	next := current.Clone()
	if err := update.Apply(next, r.now()); err != nil {
		return nil, err
	}
	if next.ExternalID != "" && next.ExternalID != current.ExternalID {
		r.byExternal[next.ExternalID] = id
	}
	r.jobs[id] = next
	return next.Clone(), nil
}

func (r *JobRepository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return false, nil
	}
	if job.ExternalID != "" {
		delete(r.byExternal, job.ExternalID)
	}
	delete(r.jobs, id)
	return true, nil
}

func (r *JobRepository) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.jobs[id]
	return ok, nil
}

func (r *JobRepository) Clear(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = make(map[uuid.UUID]*domain.Job)
	r.byExternal = make(map[string]uuid.UUID)
	return nil
}

// Len returns the number of stored jobs.
func (r *JobRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}
