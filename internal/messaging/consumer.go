// Package messaging provides typed publish and consume helpers over watermill.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.uber.org/zap"
)

// ErrStarted is returned when Start is called on a running consumer.
var ErrStarted = errors.New("consumer already started")

// Handler processes a single event. Returning an error nacks the message.
type Handler[T any] func(ctx context.Context, event *T) error

// Consumer delivers the messages of one topic to a typed handler,
// one at a time.
type Consumer[T any] struct {
	subscriber message.Subscriber
	topic      string
	handle     Handler[T]
	logger     *zap.Logger

	mu      sync.Mutex
	stop    context.CancelFunc
	stopped chan struct{}
}

func NewConsumer[T any](
	subscriber message.Subscriber,
	topic string,
	handle Handler[T],
	logger *zap.Logger,
) *Consumer[T] {
	return &Consumer[T]{
		subscriber: subscriber,
		topic:      topic,
		handle:     handle,
		logger:     logger.With(zap.String("topic", topic)),
	}
}

func (c *Consumer[T]) Topic() string {
	return c.topic
}

// Start subscribes and delivers messages in the background until ctx is
// cancelled, the subscription closes or Shutdown is called.
func (c *Consumer[T]) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stop != nil {
		return ErrStarted
	}

	ctx, stop := context.WithCancel(ctx)

	msgs, err := c.subscriber.Subscribe(ctx, c.topic)
	if err != nil {
		stop()

		return fmt.Errorf("subscribe %s: %w", c.topic, err)
	}

	c.stop = stop
	c.stopped = make(chan struct{})

	go c.run(ctx, msgs, c.stopped)

	return nil
}

// Shutdown stops delivery and waits for the message in flight.
// A consumer that is not running is left alone; a stopped one can be
// started again.
func (c *Consumer[T]) Shutdown() error {
	c.mu.Lock()
	stop, stopped := c.stop, c.stopped
	c.stop, c.stopped = nil, nil
	c.mu.Unlock()

	if stop == nil {
		return nil
	}

	stop()
	<-stopped

	return nil
}

func (c *Consumer[T]) run(ctx context.Context, msgs <-chan *message.Message, stopped chan<- struct{}) {
	defer close(stopped)

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}

			c.deliver(ctx, msg)
		}
	}
}

func (c *Consumer[T]) deliver(ctx context.Context, msg *message.Message) {
	logger := c.logger.With(zap.String("messageId", msg.UUID))

	if err := c.process(ctx, msg); err != nil {
		logger.Error("event rejected", zap.Error(err))
		msg.Nack()

		return
	}

	msg.Ack()
	logger.Debug("event processed")
}

func (c *Consumer[T]) process(ctx context.Context, msg *message.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()

	event, err := Decode[T](msg)
	if err != nil {
		return err
	}

	return c.handle(ctx, event)
}
