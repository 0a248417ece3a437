package events

import (
	"context"
	"log"
	"sync"
	"time"
)

// InlinePublisher hands events straight to a Handler in the background.
// It stands in for RabbitMQ when no broker is configured.
type InlinePublisher struct {
	handler Handler
	wg      sync.WaitGroup
}

func NewInlinePublisher(handler Handler) *InlinePublisher {
	return &InlinePublisher{handler: handler}
}

// PublishProductEvent applies the event asynchronously and never fails
func (p *InlinePublisher) PublishProductEvent(_ context.Context, action, productID string) error {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		msg := ProductMessage{Action: action, ProductID: productID}
		if err := p.handler.HandleProductEvent(ctx, msg); err != nil {
			log.Printf("[Events] Inline %s for %s failed: %v", action, productID, err)
		}
	}()
	return nil
}

// Wait blocks until every published event has been handled
func (p *InlinePublisher) Wait() {
	p.wg.Wait()
}
