package publisher

import (
	"context"

	"go.uber.org/zap"

	"github.com/Harsh-BH/vidforge/internal/domain"
)

type nopPublisher struct {
	logger *zap.Logger
}

// NewNopPublisher returns a publisher that only logs events. Used when no
// broker is configured.
func NewNopPublisher(logger *zap.Logger) Publisher {
	return &nopPublisher{logger: logger}
}

func (p *nopPublisher) Publish(ctx context.Context, event *domain.JobEvent) error {
	p.logger.Debug("Job event (no broker configured)",
		zap.String("job_id", event.JobID.String()),
		zap.String("routing_key", RoutingKey(event)),
	)
	return nil
}

func (p *nopPublisher) Close() error { return nil }
