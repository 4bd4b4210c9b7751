package messaging

import (
	"context"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.uber.org/zap"
)

// Worker is anything the group starts and stops with the subscriber.
type Worker interface {
	Start(ctx context.Context) error
	Shutdown() error
}

// ConsumerGroup runs the consumers that read from one subscriber and
// closes that subscriber when they are done.
type ConsumerGroup struct {
	subscriber message.Subscriber
	workers    []Worker
	logger     *zap.Logger
}

func NewConsumerGroup(subscriber message.Subscriber, logger *zap.Logger) *ConsumerGroup {
	return &ConsumerGroup{
		subscriber: subscriber,
		logger:     logger,
	}
}

// Add registers a worker. Workers added after Start are not started.
func (g *ConsumerGroup) Add(w Worker) {
	g.workers = append(g.workers, w)
}

// Start starts the workers in order. When one fails, those already
// running are stopped in reverse order.
func (g *ConsumerGroup) Start(ctx context.Context) error {
	running := make([]Worker, 0, len(g.workers))

	for i, w := range g.workers {
		if err := w.Start(ctx); err != nil {
			stopAll(running)

			return fmt.Errorf("start worker %d of %d: %w", i+1, len(g.workers), err)
		}

		running = append(running, w)
	}

	g.logger.Debug("consumer group started", zap.Int("workers", len(running)))

	return nil
}

// Shutdown stops every worker and then closes the subscriber.
// The returned error joins every failure.
func (g *ConsumerGroup) Shutdown() error {
	errs := stopAll(g.workers)

	if err := g.subscriber.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close subscriber: %w", err))
	}

	g.logger.Debug("consumer group stopped", zap.Int("failures", len(errs)))

	return errors.Join(errs...)
}

func stopAll(workers []Worker) []error {
	var errs []error

	for i := len(workers) - 1; i >= 0; i-- {
		if err := workers[i].Shutdown(); err != nil {
			errs = append(errs, err)
		}
	}

	return errs
}
