package kafka

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Handler returns nil only when the message was fully processed and its
// offset may be committed.
type Handler func(ctx context.Context, m kafka.Message) error

const (
	defaultAttempts = 3
	defaultBackoff  = 200 * time.Millisecond
)

// Consumer delivers each message to the handler up to attempts times. A
// message that still fails is logged and committed past, so delivery is at
// most once after retries; handlers must not rely on redelivery.
type Consumer struct {
	r        *kafka.Reader
	workers  int
	attempts int
	backoff  time.Duration
	logger   *zap.Logger
}

func NewConsumer(brokers []string, group, topic string, workers int, logger *zap.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // commit explicitly after the handler succeeds
	})
	if workers <= 0 {
		workers = 1
	}
	return &Consumer{
		r:        r,
		workers:  workers,
		attempts: defaultAttempts,
		backoff:  defaultBackoff,
		logger:   logger.With(zap.String("topic", topic), zap.String("group", group)),
	}
}

// Start blocks until ctx is cancelled or the reader fails.
func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer func() {
		if err := c.r.Close(); err != nil {
			c.logger.Warn("close kafka reader", zap.Error(err))
		}
	}()

	jobs := make(chan kafka.Message, c.workers*4)
	var wg sync.WaitGroup
	for i := 0; i < c.workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for m := range jobs {
				c.handle(ctx, id, h, m)
			}
		}(i)
	}
	defer wg.Wait()
	defer close(jobs)

	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		select {
		case jobs <- m:
		case <-ctx.Done():
			return nil
		}
	}
}

func (c *Consumer) handle(ctx context.Context, worker int, h Handler, m kafka.Message) {
	if err := c.process(ctx, worker, h, m); err != nil {
		if ctx.Err() != nil {
			// Uncommitted; the group redelivers it after restart.
			return
		}
		c.logger.Error("giving up, committing past message",
			zap.Int("worker", worker),
			zap.Int("partition", m.Partition),
			zap.Int64("offset", m.Offset),
			zap.Int("attempts", c.attempts),
			zap.Error(err),
		)
	}
	if err := c.r.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
		c.logger.Error("commit failed", zap.Int64("offset", m.Offset), zap.Error(err))
	}
}

// process runs h until it succeeds, attempts are used up, or ctx ends. The
// wait between attempts doubles each time.
func (c *Consumer) process(ctx context.Context, worker int, h Handler, m kafka.Message) error {
	attempts := max(c.attempts, 1)
	wait := c.backoff
	var err error
	for i := 1; ; i++ {
		if err = h(ctx, m); err == nil {
			return nil
		}
		if i == attempts {
			return err
		}
		c.logger.Warn("handler failed, retrying",
			zap.Int("worker", worker),
			zap.Int("partition", m.Partition),
			zap.Int64("offset", m.Offset),
			zap.Int("attempt", i),
			zap.Error(err),
		)
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return errors.Join(err, ctx.Err())
		case <-t.C:
		}
		wait *= 2
	}
}
