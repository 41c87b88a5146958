package sink

import (
	"context"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/flemzord/wirebot/pkg/bot"
)

// AMQP publishes records to a durable RabbitMQ queue through the default
// exchange.
type AMQP struct {
	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   string
}

// DialAMQP connects to url and declares queue.
func DialAMQP(url, queue string) (*AMQP, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("sink: amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("sink: amqp channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("sink: amqp declare %s: %w", queue, err)
	}
	return &AMQP{conn: conn, channel: ch, queue: queue}, nil
}

// Name implements Sink.
func (a *AMQP) Name() string { return "amqp:" + a.queue }

// Publish implements Sink.
func (a *AMQP) Publish(ctx context.Context, msg bot.Message) error {
	body, err := Encode(msg)
	if err != nil {
		return err
	}

	// amqp channels are not safe for concurrent publishing.
	a.mu.Lock()
	defer a.mu.Unlock()
	err = a.channel.PublishWithContext(ctx, "", a.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    fmt.Sprintf("%d", msg.UpdateID),
		Type:         string(msg.Type),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("sink: amqp publish: %w", err)
	}
	return nil
}

// Close implements Sink.
func (a *AMQP) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn == nil || a.conn.IsClosed() {
		return nil
	}
	return a.conn.Close()
}
