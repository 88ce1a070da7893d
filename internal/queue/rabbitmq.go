package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// RabbitQueue adapts a RabbitMQ queue to the polling Dequeue contract. One
// message is prefetched at a time so an idle worker never hoards jobs other
// instances could drain.
type RabbitQueue struct {
	conn      *amqp.Connection
	channel   *amqp.Channel
	name      string
	delivered <-chan amqp.Delivery
}

// NewRabbitQueue dials the broker, declares a durable queue and starts a
// consumer with a prefetch of one.
func NewRabbitQueue(url, name string) (*RabbitQueue, error) {
	if name == "" {
		name = DefaultQueueName
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", name, err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}
	delivered, err := ch.Consume(name, "", false, false, false, false, nil)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("start consumer: %w", err)
	}
	return &RabbitQueue{conn: conn, channel: ch, name: name, delivered: delivered}, nil
}

func (q *RabbitQueue) Dequeue(ctx context.Context, timeout time.Duration) (*Job, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, nil
	case msg, ok := <-q.delivered:
		if !ok {
			return nil, fmt.Errorf("rabbitmq channel closed")
		}
		var job Job
		if err := json.Unmarshal(msg.Body, &job); err != nil {
			// Poison message: reject without requeue so it does not loop.
			_ = msg.Nack(false, false)
			return nil, fmt.Errorf("unmarshal job payload: %w", err)
		}
		// The status guard makes redelivery after an ack-side crash safe, so
		// acknowledge on receipt rather than after processing.
		if err := msg.Ack(false); err != nil {
			return nil, fmt.Errorf("ack delivery: %w", err)
		}
		return &job, nil
	}
}

func (q *RabbitQueue) Enqueue(ctx context.Context, job Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	err = q.channel.PublishWithContext(ctx, "", q.name, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         payload,
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", q.name, err)
	}
	return nil
}

func (q *RabbitQueue) Close() error {
	return q.conn.Close()
}
