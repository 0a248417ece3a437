// Package events carries product change notifications over RabbitMQ
package events

// Actions carried by ProductMessage
const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

// DefaultQueue is used when no queue name is configured
const DefaultQueue = "products_queue"

// ProductMessage is the body of a product event
type ProductMessage struct {
	Action    string `json:"action"`
	ProductID string `json:"product_id"`
}
