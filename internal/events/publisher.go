package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/streadway/amqp"
)

// Publisher sends product events to a durable queue
type Publisher struct {
	connection *amqp.Connection
	channel    *amqp.Channel
	queueName  string
	mu         sync.Mutex
}

// NewPublisher connects to RabbitMQ and declares the queue
func NewPublisher(rabbitURL, queueName string) (*Publisher, error) {
	if queueName == "" {
		queueName = DefaultQueue
	}

	conn, err := amqp.Dial(rabbitURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if _, err := declareQueue(ch, queueName); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	log.Printf("[Events] Publisher ready on queue '%s'", queueName)
	return &Publisher{connection: conn, channel: ch, queueName: queueName}, nil
}

// PublishProductEvent sends one persistent message.
// amqp channels are not safe for concurrent publishes, hence the mutex.
func (p *Publisher) PublishProductEvent(ctx context.Context, action, productID string) error {
	body, err := json.Marshal(ProductMessage{Action: action, ProductID: productID})
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	return p.channel.Publish(
		"",          // exchange
		p.queueName, // routing key
		false,       // mandatory
		false,       // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
}

// Close closes the channel and the connection
func (p *Publisher) Close() error {
	return closeAll(p.channel, p.connection)
}

func declareQueue(ch *amqp.Channel, name string) (amqp.Queue, error) {
	q, err := ch.QueueDeclare(
		name,  // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return q, fmt.Errorf("failed to declare queue: %w", err)
	}
	return q, nil
}

func closeAll(ch *amqp.Channel, conn *amqp.Connection) error {
	var errs []error
	if ch != nil {
		if err := ch.Close(); err != nil {
			errs = append(errs, fmt.Errorf("error closing channel: %w", err))
		}
	}
	if conn != nil {
		if err := conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("error closing connection: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors closing RabbitMQ: %v", errs)
	}
	return nil
}
