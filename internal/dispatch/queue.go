// Package dispatch hands confirmed orders to the fulfillment side over
// RabbitMQ. The kitchen/courier consumers live in a separate service; this
// side only declares the queue and publishes.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/streadway/amqp"

	"github.com/tablemates/backend/internal/models"
)

// Queuer publishes confirmed orders for fulfillment.
type Queuer interface {
	PublishOrder(ctx context.Context, order *models.GroupOrder) error
	Close() error
}

// Queue is the RabbitMQ-backed Queuer.
type Queue struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	name    string
}

// NewQueue dials RabbitMQ, retrying a few times because the broker often
// comes up after the service in container setups.
func NewQueue(url, name string, logger *slog.Logger) (*Queue, error) {
	var conn *amqp.Connection
	var err error
	for attempt := 1; attempt <= 5; attempt++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			break
		}
		logger.Warn("RabbitMQ not ready, retrying", "attempt", attempt, "error", err)
		time.Sleep(time.Duration(attempt) * time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if _, err := channel.QueueDeclare(name, true, false, false, false, nil); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	return &Queue{conn: conn, channel: channel, name: name}, nil
}

// PublishOrder enqueues the order as a persistent JSON message.
func (q *Queue) PublishOrder(_ context.Context, order *models.GroupOrder) error {
	data, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("failed to marshal order: %w", err)
	}

	err = q.channel.Publish("", q.name, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         data,
	})
	if err != nil {
		return fmt.Errorf("failed to publish order: %w", err)
	}

	return nil
}

func (q *Queue) Close() error {
	if err := q.channel.Close(); err != nil {
		q.conn.Close()
		return err
	}
	return q.conn.Close()
}
