package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testConsumer() *Consumer {
	return &Consumer{logger: zap.NewNop(), attempts: 3, backoff: time.Millisecond}
}

func TestProcessRetriesUntilSuccess(t *testing.T) {
	calls := 0
	h := func(ctx context.Context, m kafka.Message) error {
		calls++
		if calls < 3 {
			return errors.New("redis unavailable")
		}
		return nil
	}

	err := testConsumer().process(context.Background(), 0, h, kafka.Message{Offset: 7})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestProcessGivesUpAfterAttempts(t *testing.T) {
	boom := errors.New("bad payload")
	calls := 0
	h := func(ctx context.Context, m kafka.Message) error {
		calls++
		return boom
	}

	err := testConsumer().process(context.Background(), 0, h, kafka.Message{Offset: 7})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 3, calls)
}

func TestProcessStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Consumer{logger: zap.NewNop(), attempts: 5, backoff: time.Hour}
	calls := 0
	h := func(ctx context.Context, m kafka.Message) error {
		calls++
		cancel()
		return errors.New("timeout")
	}

	err := c.process(ctx, 0, h, kafka.Message{})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
