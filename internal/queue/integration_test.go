//go:build integration

package queue

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/rabbitmq"

	"github.com/gamecodelab/gamecode/internal/profile"
)

func setupRabbitMQ(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := rabbitmq.Run(ctx, "rabbitmq:3.12-management")
	if err != nil {
		t.Fatalf("failed to start RabbitMQ container: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	url, err := container.AmqpURL(ctx)
	if err != nil {
		t.Fatalf("failed to get AMQP URL: %v", err)
	}
	return url
}

func TestIntegration_EventRoundTrip(t *testing.T) {
	url := setupRabbitMQ(t)

	conn, err := NewConnection(url, nil)
	if err != nil {
		t.Fatalf("NewConnection() error = %v", err)
	}
	defer conn.Close()

	if !conn.IsConnected() {
		t.Fatal("IsConnected() = false")
	}

	received := make(chan profile.Event, 1)
	consumer := NewConsumer(conn, profile.PublisherFunc(func(_ context.Context, ev profile.Event) error {
		received <- ev
		return nil
	}), DefaultConsumerConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := consumer.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer consumer.Stop()

	producer := NewProducer(conn, nil)
	ev := profile.Event{Type: profile.EventLevelUp, LearnerID: "l1", Username: "ada", Level: 2, TotalXP: 300}
	if err := producer.Publish(ctx, ev); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case got := <-received:
		if got.LearnerID != "l1" || got.Level != 2 || got.Type != profile.EventLevelUp {
			t.Errorf("received %+v", got)
		}
		if got.ID == "" {
			t.Error("event ID should be set by the producer")
		}
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}
