package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Harsh-BH/vidforge/internal/domain"
	"github.com/Harsh-BH/vidforge/internal/repository"
)

const batchColumns = `id, name, job_ids, status, progress, created_at, updated_at, completed_at`

// Ensure pgBatchRepo implements repository.BatchRepository.
var _ repository.BatchRepository = (*pgBatchRepo)(nil)

type pgBatchRepo struct {
	pool *pgxpool.Pool
}

// NewPostgresBatchRepository creates a new PostgreSQL-backed batch repository.
func NewPostgresBatchRepository(pool *pgxpool.Pool) repository.BatchRepository {
	return &pgBatchRepo{pool: pool}
}

func (r *pgBatchRepo) Create(ctx context.Context, batch *domain.Batch) (*domain.Batch, error) {
	query := `INSERT INTO video_batches (` + batchColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.pool.Exec(ctx, query,
		batch.ID, batch.Name, batch.JobIDs, batch.Status, batch.Progress,
		batch.CreatedAt, batch.UpdatedAt, batch.CompletedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, domain.ErrDuplicateBatch
		}
		return nil, fmt.Errorf("postgres: create batch: %w", err)
	}
	return batch.Clone(), nil
}

func (r *pgBatchRepo) FindByID(ctx context.Context, id uuid.UUID) (*domain.Batch, error) {
	batch, err := scanBatch(r.pool.QueryRow(ctx, `SELECT `+batchColumns+` FROM video_batches WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrBatchNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get batch: %w", err)
	}
	return batch, nil
}

func (r *pgBatchRepo) FindAll(ctx context.Context) ([]*domain.Batch, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+batchColumns+` FROM video_batches ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list batches: %w", err)
	}
	defer rows.Close()

	batches := []*domain.Batch{}
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan batch: %w", err)
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

func (r *pgBatchRepo) Update(ctx context.Context, id uuid.UUID, mutate func(b *domain.Batch) error) (*domain.Batch, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("postgres: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	current, err := scanBatch(tx.QueryRow(ctx, `SELECT `+batchColumns+` FROM video_batches WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrBatchNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: lock batch: %w", err)
	}

	next := current.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	next.ID, next.CreatedAt, next.JobIDs = current.ID, current.CreatedAt, current.JobIDs

	query := `
		UPDATE video_batches
		SET name = $2, status = $3, progress = $4, updated_at = $5, completed_at = $6
		WHERE id = $1`
	if _, err := tx.Exec(ctx, query, id, next.Name, next.Status, next.Progress, next.UpdatedAt, next.CompletedAt); err != nil {
		return nil, fmt.Errorf("postgres: update batch: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("postgres: commit: %w", err)
	}
	return next, nil
}

func scanBatch(row pgx.Row) (*domain.Batch, error) {
	var b domain.Batch
	err := row.Scan(&b.ID, &b.Name, &b.JobIDs, &b.Status, &b.Progress, &b.CreatedAt, &b.UpdatedAt, &b.CompletedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}
