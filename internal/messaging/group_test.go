package messaging_test

import (
	"context"
	"errors"
	"testing"

	"github.com/serroba/shortify/internal/events"
	"github.com/serroba/shortify/internal/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// journalWorker records its lifecycle calls into a shared journal.
type journalWorker struct {
	name        string
	journal     *[]string
	startErr    error
	shutdownErr error
}

func (w *journalWorker) Start(_ context.Context) error {
	if w.startErr != nil {
		return w.startErr
	}

	*w.journal = append(*w.journal, "start "+w.name)

	return nil
}

func (w *journalWorker) Shutdown() error {
	*w.journal = append(*w.journal, "stop "+w.name)

	return w.shutdownErr
}

// failingCloseSubscriber is a feedSubscriber whose Close also fails.
type failingCloseSubscriber struct {
	*feedSubscriber
	err error
}

func (f *failingCloseSubscriber) Close() error {
	_ = f.feedSubscriber.Close()

	return f.err
}

func TestConsumerGroup_Start(t *testing.T) {
	t.Run("a failed start stops the running workers in reverse", func(t *testing.T) {
		var journal []string

		errStart := errors.New("subscribe refused")
		group := messaging.NewConsumerGroup(newFeedSubscriber(), zap.NewNop())
		group.Add(&journalWorker{name: "a", journal: &journal})
		group.Add(&journalWorker{name: "b", journal: &journal})
		group.Add(&journalWorker{name: "c", journal: &journal, startErr: errStart})

		err := group.Start(context.Background())

		require.ErrorIs(t, err, errStart)
		assert.Contains(t, err.Error(), "worker 3 of 3")
		assert.Equal(t, []string{"start a", "start b", "stop b", "stop a"}, journal)
	})
}

func TestConsumerGroup_Shutdown(t *testing.T) {
	t.Run("joins every worker and subscriber error", func(t *testing.T) {
		var journal []string

		errA := errors.New("consumer a stuck")
		errB := errors.New("consumer b stuck")
		errClose := errors.New("stream closed twice")
		sub := &failingCloseSubscriber{feedSubscriber: newFeedSubscriber(), err: errClose}

		group := messaging.NewConsumerGroup(sub, zap.NewNop())
		group.Add(&journalWorker{name: "a", journal: &journal, shutdownErr: errA})
		group.Add(&journalWorker{name: "b", journal: &journal, shutdownErr: errB})
		require.NoError(t, group.Start(context.Background()))

		err := group.Shutdown()

		require.Error(t, err)
		assert.ErrorIs(t, err, errA)
		assert.ErrorIs(t, err, errB)
		assert.ErrorIs(t, err, errClose)
		assert.Contains(t, err.Error(), "close subscriber")
		assert.Equal(t, []string{"start a", "start b", "stop b", "stop a"}, journal)
		assert.True(t, sub.isClosed())
	})

	t.Run("stops a url shortened consumer before closing its subscriber", func(t *testing.T) {
		sub := newFeedSubscriber()
		group := messaging.NewConsumerGroup(sub, zap.NewNop())
		group.Add(messaging.NewConsumer(sub, events.TopicURLShortened,
			func(_ context.Context, _ *events.URLShortenedEvent) error { return nil },
			zap.NewNop(),
		))

		require.NoError(t, group.Start(context.Background()))
		require.NoError(t, group.Shutdown())

		assert.True(t, sub.isClosed())
	})
}
