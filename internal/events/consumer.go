package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/streadway/amqp"
)

// Handler applies one product event, typically to the search index
type Handler interface {
	HandleProductEvent(ctx context.Context, msg ProductMessage) error
}

// Consumer reads product events and hands them to a Handler
type Consumer struct {
	connection *amqp.Connection
	channel    *amqp.Channel
	queueName  string
	handler    Handler
}

// NewConsumer connects to RabbitMQ and declares the queue
func NewConsumer(rabbitURL, queueName string, handler Handler) (*Consumer, error) {
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

	return &Consumer{connection: conn, channel: ch, queueName: queueName, handler: handler}, nil
}

// Start registers the consumer and processes deliveries in the background
func (c *Consumer) Start() error {
	if err := c.channel.Qos(1, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	msgs, err := c.channel.Consume(
		c.queueName, // queue
		"",          // consumer
		false,       // auto-ack
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	log.Printf("[Events] Consuming queue '%s'", c.queueName)
	go func() {
		for msg := range msgs {
			c.process(msg)
		}
		log.Printf("[Events] Delivery channel closed for '%s'", c.queueName)
	}()
	return nil
}

func (c *Consumer) process(msg amqp.Delivery) {
	ack, requeue := Dispatch(c.handler, msg.Body)
	if ack {
		if err := msg.Ack(false); err != nil {
			log.Printf("[Events] Error acknowledging message: %v", err)
		}
		return
	}
	if err := msg.Nack(false, requeue); err != nil {
		log.Printf("[Events] Error rejecting message: %v", err)
	}
}

// Dispatch decodes body and runs the handler. Malformed messages are dropped;
// handler failures are requeued.
func Dispatch(handler Handler, body []byte) (ack bool, requeue bool) {
	var pm ProductMessage
	if err := json.Unmarshal(body, &pm); err != nil {
		log.Printf("[Events] Error unmarshaling message: %v", err)
		return false, false
	}
	if pm.ProductID == "" {
		log.Printf("[Events] Message without product_id dropped")
		return false, false
	}
	switch pm.Action {
	case ActionCreate, ActionUpdate, ActionDelete:
	default:
		log.Printf("[Events] Unknown action: %s", pm.Action)
		return false, false
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := handler.HandleProductEvent(ctx, pm); err != nil {
		log.Printf("[Events] Failed %s for %s: %v", pm.Action, pm.ProductID, err)
		return false, true
	}
	return true, false
}

// Close closes the channel and the connection
func (c *Consumer) Close() error {
	return closeAll(c.channel, c.connection)
}
