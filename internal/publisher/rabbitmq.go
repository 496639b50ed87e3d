package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/Harsh-BH/vidforge/internal/domain"
)

const (
	exchangeName = "vidforge.events"
	exchangeType = "topic"
	queueName    = "video_job_events"
	bindingKey   = "job.#"

	// Redial backoff
	redialMin = 2 * time.Second
	redialMax = 30 * time.Second

	publishTimeout = 5 * time.Second
)

// ErrReconnecting is returned by Publish while the broker session is being redialed.
var ErrReconnecting = errors.New("rabbitmq: session not available (reconnecting)")

// Publisher defines the interface for publishing job lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, event *domain.JobEvent) error
	Close() error
}

// RoutingKey returns the topic routing key for an event, e.g. "job.completed".
func RoutingKey(event *domain.JobEvent) string {
	return "job." + string(event.Status)
}

// eventSession is one broker connection with a confirm-mode channel on which
// the events topology has been declared.
type eventSession struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

func openEventSession(url string) (*eventSession, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq: dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("rabbitmq: channel: %w", err)
	}

	s := &eventSession{conn: conn, channel: ch}
	if err := s.declareTopology(); err != nil {
		s.close()
		return nil, err
	}
	return s, nil
}

// declareTopology is idempotent; it runs on every (re)dial so a broker that
// lost its definitions gets them back before the first publish.
func (s *eventSession) declareTopology() error {
	ch := s.channel
	steps := []struct {
		name string
		run  func() error
	}{
		{"enable confirms", func() error { return ch.Confirm(false) }},
		{"declare exchange " + exchangeName, func() error {
			return ch.ExchangeDeclare(exchangeName, exchangeType, true, false, false, false, nil)
		}},
		{"declare queue " + queueName, func() error {
			_, err := ch.QueueDeclare(queueName, true, false, false, false, amqp.Table{"x-queue-type": "quorum"})
			return err
		}},
		{"bind " + bindingKey, func() error {
			return ch.QueueBind(queueName, bindingKey, exchangeName, false, nil)
		}},
	}
	for _, step := range steps {
		if err := step.run(); err != nil {
			return fmt.Errorf("rabbitmq: %s: %w", step.name, err)
		}
	}
	return nil
}

func (s *eventSession) close() error {
	s.channel.Close()
	return s.conn.Close()
}

// nextRedialDelay doubles the wait between redial attempts up to redialMax.
func nextRedialDelay(d time.Duration) time.Duration {
	if d < redialMin {
		return redialMin
	}
	return min(d*2, redialMax)
}

type rabbitPublisher struct {
	url    string
	logger *zap.Logger

	mu      sync.RWMutex
	session *eventSession

	done      chan struct{}
	closeOnce sync.Once
}

// NewRabbitMQPublisher creates a RabbitMQ publisher and declares the events
// exchange with a durable queue bound to every job event.
func NewRabbitMQPublisher(url string, logger *zap.Logger) (Publisher, error) {
	s, err := openEventSession(url)
	if err != nil {
		return nil, err
	}

	p := &rabbitPublisher{
		url:     url,
		logger:  logger,
		session: s,
		done:    make(chan struct{}),
	}
	logger.Info("RabbitMQ event publisher ready",
		zap.String("exchange", exchangeName),
		zap.String("queue", queueName),
	)

	go p.supervise(s)
	return p, nil
}

// supervise waits for the live session to drop and redials it until the
// publisher is closed. Publish fails fast with ErrReconnecting meanwhile.
func (p *rabbitPublisher) supervise(s *eventSession) {
	for {
		select {
		case <-p.done:
			return
		case reason, ok := <-s.conn.NotifyClose(make(chan *amqp.Error, 1)):
			if !ok {
				// Closed without an error: a local Close.
				return
			}
			p.logger.Warn("RabbitMQ event session lost", zap.String("reason", reason.Error()))
		}

		p.mu.Lock()
		p.session = nil
		p.mu.Unlock()

		next := p.redial()
		if next == nil {
			return
		}
		s = next
	}
}

// redial returns a fresh session with the topology re-declared, or nil once
// the publisher is closed.
func (p *rabbitPublisher) redial() *eventSession {
	delay := nextRedialDelay(0)
	timer := time.NewTimer(delay)
	defer timer.Stop()

	for attempt := 1; ; attempt++ {
		select {
		case <-p.done:
			return nil
		case <-timer.C:
		}

		s, err := openEventSession(p.url)
		if err != nil {
			delay = nextRedialDelay(delay)
			p.logger.Warn("RabbitMQ redial failed",
				zap.Int("attempt", attempt),
				zap.Duration("retry_in", delay),
				zap.Error(err),
			)
			timer.Reset(delay)
			continue
		}

		p.mu.Lock()
		select {
		case <-p.done:
			p.mu.Unlock()
			s.close()
			return nil
		default:
		}
		p.session = s
		p.mu.Unlock()

		p.logger.Info("RabbitMQ event session restored", zap.Int("attempts", attempt))
		return s
	}
}

func (p *rabbitPublisher) Publish(ctx context.Context, event *domain.JobEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("rabbitmq: marshal event: %w", err)
	}

	p.mu.RLock()
	s := p.session
	p.mu.RUnlock()
	if s == nil {
		return ErrReconnecting
	}

	publishCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	confirm, err := s.channel.PublishWithDeferredConfirmWithContext(publishCtx,
		exchangeName,
		RoutingKey(event),
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    event.JobID.String() + ":" + string(event.Status),
			Timestamp:    event.OccurredAt,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("rabbitmq: publish: %w", err)
	}

	acked, err := confirm.WaitContext(publishCtx)
	if err != nil {
		return fmt.Errorf("rabbitmq: publish confirmation (job_id=%s): %w", event.JobID, err)
	}
	if !acked {
		return fmt.Errorf("rabbitmq: broker nacked event (job_id=%s)", event.JobID)
	}

	p.logger.Debug("Published job event",
		zap.String("job_id", event.JobID.String()),
		zap.String("status", string(event.Status)),
	)
	return nil
}

func (p *rabbitPublisher) Close() error {
	var err error
	p.closeOnce.Do(func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		close(p.done)
		if p.session != nil {
			err = p.session.close()
			p.session = nil
		}
	})
	return err
}
