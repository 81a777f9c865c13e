package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/gamecodelab/gamecode/internal/profile"
)

// Publisher is the subset of Connection a Producer needs
type Publisher interface {
	PublishJSON(ctx context.Context, queue string, msg amqp.Publishing, data any) error
}

// Producer publishes learner events to the event queue
type Producer struct {
	conn   Publisher
	logger *slog.Logger
}

var _ profile.Publisher = (*Producer)(nil)

// NewProducer creates a producer
func NewProducer(conn Publisher, logger *slog.Logger) *Producer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Producer{conn: conn, logger: logger}
}

// Publish enqueues one learner event
func (p *Producer) Publish(ctx context.Context, ev profile.Event) error {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}

	msg := amqp.Publishing{
		MessageId: ev.ID,
		Type:      string(ev.Type),
		Timestamp: ev.OccurredAt,
	}
	if err := p.conn.PublishJSON(ctx, EventQueueName, msg, ev); err != nil {
		return fmt.Errorf("failed to publish learner event: %w", err)
	}

	p.logger.Debug("published learner event",
		"event_id", ev.ID,
		"type", ev.Type,
		"learner_id", ev.LearnerID,
	)
	return nil
}
