package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Harsh-BH/vidforge/internal/domain"
	"github.com/Harsh-BH/vidforge/internal/repository"
)

//go:embed schema.sql
var schemaSQL string

const (
	jobColumns = `id, prompt, status, priority, settings, external_id, result, error,
		created_at, updated_at, started_at, completed_at`

	uniqueViolation      = "23505"
	externalIDConstraint = "video_jobs_external_id_key"
)

// Ensure pgJobRepo implements repository.JobRepository.
var _ repository.JobRepository = (*pgJobRepo)(nil)

// EnsureSchema creates the tables if they do not exist.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("postgres: ensure schema: %w", err)
	}
	return nil
}

type pgJobRepo struct {
	pool *pgxpool.Pool
}

// NewPostgresJobRepository creates a new PostgreSQL-backed job repository.
// Updates lock the row so transition checks are atomic across processes.
func NewPostgresJobRepository(pool *pgxpool.Pool) repository.JobRepository {
	return &pgJobRepo{pool: pool}
}

func (r *pgJobRepo) Create(ctx context.Context, job *domain.Job) (*domain.Job, error) {
	query := `
		INSERT INTO video_jobs (id, prompt, status, priority, priority_rank, settings, external_id,
		                        result, error, created_at, updated_at, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	stored := job.Clone()
	now := time.Now().UTC()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now

	_, err := r.pool.Exec(ctx, query,
		stored.ID, stored.Prompt, stored.Status, stored.Priority, stored.Priority.Rank(),
		stored.Settings, nullable(stored.ExternalID), stored.Result, nullable(stored.Error),
		stored.CreatedAt, stored.UpdatedAt, stored.StartedAt, stored.CompletedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			if pgErr.ConstraintName == externalIDConstraint {
				return nil, domain.ErrExternalIDImmutable
			}
			return nil, domain.ErrDuplicateJob
		}
		return nil, fmt.Errorf("postgres: create job: %w", err)
	}
	return stored, nil
}

func (r *pgJobRepo) FindByID(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM video_jobs WHERE id = $1`, id)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get job by id: %w", err)
	}
	return job, nil
}

func (r *pgJobRepo) FindByExternalID(ctx context.Context, externalID string) (*domain.Job, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM video_jobs WHERE external_id = $1`, externalID)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get job by external id: %w", err)
	}
	return job, nil
}

func (r *pgJobRepo) FindAll(ctx context.Context, filter domain.JobFilter, opts domain.ListOptions) (*domain.JobPage, error) {
	opts, err := opts.Normalize()
	if err != nil {
		return nil, err
	}
	q := buildListQuery(filter, opts)

	var total int
	if err := r.pool.QueryRow(ctx, q.count, q.args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("postgres: count jobs: %w", err)
	}

	args := append(q.args, opts.PageSize, (opts.Page-1)*opts.PageSize)
	jobs, err := r.queryJobs(ctx, q.page, args...)
	if err != nil {
		return nil, err
	}
	return domain.NewJobPage(jobs, total, opts), nil
}

func (r *pgJobRepo) FindByStatus(ctx context.Context, status domain.JobStatus) ([]*domain.Job, error) {
	return r.queryJobs(ctx, `SELECT `+jobColumns+` FROM video_jobs WHERE status = $1 ORDER BY created_at, id`, status)
}

func (r *pgJobRepo) CountByStatus(ctx context.Context, status domain.JobStatus) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM video_jobs WHERE status = $1`, status).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count by status: %w", err)
	}
	return n, nil
}

func (r *pgJobRepo) Update(ctx context.Context, id uuid.UUID, update domain.JobUpdate) (*domain.Job, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("postgres: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `SELECT `+jobColumns+` FROM video_jobs WHERE id = $1 FOR UPDATE`, id)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: lock job: %w", err)
	}

	if err := update.Apply(job, time.Now().UTC()); err != nil {
		return nil, err
	}

	query := `
		UPDATE video_jobs
		SET status = $2, priority = $3, priority_rank = $4, external_id = $5, result = $6,
		    error = $7, updated_at = $8, started_at = $9, completed_at = $10
		WHERE id = $1`
	_, err = tx.Exec(ctx, query,
		id, job.Status, job.Priority, job.Priority.Rank(), nullable(job.ExternalID), job.Result,
		nullable(job.Error), job.UpdatedAt, job.StartedAt, job.CompletedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, domain.ErrExternalIDImmutable
		}
		return nil, fmt.Errorf("postgres: update job: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("postgres: commit: %w", err)
	}
	return job, nil
}

func (r *pgJobRepo) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM video_jobs WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("postgres: delete job: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *pgJobRepo) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var ok bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM video_jobs WHERE id = $1)`, id).Scan(&ok); err != nil {
		return false, fmt.Errorf("postgres: job exists: %w", err)
	}
	return ok, nil
}

func (r *pgJobRepo) Clear(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM video_jobs`); err != nil {
		return fmt.Errorf("postgres: clear jobs: %w", err)
	}
	return nil
}

func (r *pgJobRepo) queryJobs(ctx context.Context, query string, args ...any) ([]*domain.Job, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate jobs: %w", err)
	}
	return jobs, nil
}

func scanJob(row pgx.Row) (*domain.Job, error) {
	var (
		job        domain.Job
		externalID *string
		errMsg     *string
	)
	err := row.Scan(
		&job.ID, &job.Prompt, &job.Status, &job.Priority, &job.Settings,
		&externalID, &job.Result, &errMsg,
		&job.CreatedAt, &job.UpdatedAt, &job.StartedAt, &job.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	if externalID != nil {
		job.ExternalID = *externalID
	}
	if errMsg != nil {
		job.Error = *errMsg
	}
	return &job, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
