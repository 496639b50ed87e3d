package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/Harsh-BH/vidforge/internal/repository"
)

var _ repository.IdempotencyStore = (*redisIdempotency)(nil)

const (
	keyPrefix = "vidforge:idempotency:"
	keyTTL    = 24 * time.Hour
)

type redisIdempotency struct {
	client goredis.UniversalClient
	ttl    time.Duration
}

// NewRedisIdempotencyStore creates a Redis-backed idempotency store.
// Keys expire after a day so abandoned jobs do not leak.
func NewRedisIdempotencyStore(client goredis.UniversalClient) repository.IdempotencyStore {
	return &redisIdempotency{client: client, ttl: keyTTL}
}

func redisKey(jobID uuid.UUID) string {
	return keyPrefix + jobID.String()
}

// Reserve uses SETNX so concurrent submitters of one job agree on a single key.
func (r *redisIdempotency) Reserve(ctx context.Context, jobID uuid.UUID, candidate string) (string, error) {
	key := redisKey(jobID)
	for attempt := 0; attempt < 2; attempt++ {
		ok, err := r.client.SetNX(ctx, key, candidate, r.ttl).Result()
		if err != nil {
			return "", fmt.Errorf("redis: reserve idempotency key: %w", err)
		}
		if ok {
			return candidate, nil
		}
		existing, err := r.client.Get(ctx, key).Result()
		if errors.Is(err, goredis.Nil) {
			// Expired between SETNX and GET.
			continue
		}
		if err != nil {
			return "", fmt.Errorf("redis: read idempotency key: %w", err)
		}
		return existing, nil
	}
	return "", fmt.Errorf("redis: idempotency key for job %s expired while reserving", jobID)
}

// Release sets a short TTL instead of deleting so late duplicates still match.
func (r *redisIdempotency) Release(ctx context.Context, jobID uuid.UUID) error {
	return r.client.Expire(ctx, redisKey(jobID), 10*time.Minute).Err()
}
