package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/gamecodelab/gamecode/internal/profile"
)

// handlerTimeout bounds one event handler call
const handlerTimeout = 10 * time.Second

// Consumer delivers queued learner events to a profile.Publisher
type Consumer struct {
	conn       *Connection
	handler    profile.Publisher
	workers    int
	prefetch   int
	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// ConsumerConfig holds consumer configuration
type ConsumerConfig struct {
	Workers  int // Number of concurrent workers
	Prefetch int // Unacked messages per channel
	Logger   *slog.Logger
}

// DefaultConsumerConfig returns sensible defaults
func DefaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{Workers: 2, Prefetch: 4}
}

// NewConsumer creates a consumer that hands each event to handler
func NewConsumer(conn *Connection, handler profile.Publisher, cfg ConsumerConfig) *Consumer {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = cfg.Workers
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Consumer{
		conn:     conn,
		handler:  handler,
		workers:  cfg.Workers,
		prefetch: cfg.Prefetch,
		logger:   cfg.Logger,
	}
}

// Start begins consuming in background workers
func (c *Consumer) Start(ctx context.Context) error {
	ctx, c.cancelFunc = context.WithCancel(ctx)

	ch := c.conn.Channel()
	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	msgs, err := ch.Consume(
		EventQueueName,
		"",    // consumer tag
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	c.logger.Info("starting learner event consumer", "workers", c.workers, "prefetch", c.prefetch)

	for i := range c.workers {
		c.wg.Add(1)
		go c.worker(ctx, i, msgs)
	}
	return nil
}

func (c *Consumer) worker(ctx context.Context, id int, msgs <-chan amqp.Delivery) {
	defer c.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				c.logger.Info("event channel closed", "worker_id", id)
				return
			}
			c.processMessage(ctx, id, msg)
		}
	}
}

// processMessage acks handled events, rejects malformed ones and requeues
// a failed event once
func (c *Consumer) processMessage(ctx context.Context, workerID int, msg amqp.Delivery) {
	var ev profile.Event
	if err := json.Unmarshal(msg.Body, &ev); err != nil || ev.Type == "" {
		c.logger.Error("dropping malformed learner event",
			"worker_id", workerID,
			"message_id", msg.MessageId,
			"error", err,
		)
		_ = msg.Reject(false)
		return
	}

	hctx, cancel := context.WithTimeout(ctx, handlerTimeout)
	defer cancel()

	if err := c.handler.Publish(hctx, ev); err != nil {
		requeue := !msg.Redelivered
		c.logger.Warn("learner event handler failed",
			"worker_id", workerID,
			"event_id", ev.ID,
			"type", ev.Type,
			"requeue", requeue,
			"error", err,
		)
		_ = msg.Nack(false, requeue)
		return
	}

	if err := msg.Ack(false); err != nil {
		c.logger.Error("failed to ack learner event", "event_id", ev.ID, "error", err)
	}
}

// Stop cancels the workers and waits for them
func (c *Consumer) Stop() {
	if c.cancelFunc != nil {
		c.cancelFunc()
	}
	c.wg.Wait()
	c.logger.Info("learner event consumer stopped")
}
