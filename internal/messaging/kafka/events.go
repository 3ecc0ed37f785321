package kafka

import (
	"encoding/json"
	"fmt"
	"time"
)

// Topics для Kafka
const (
	TopicOrderEvents     = "storefront.order.events"
	TopicDeadLetterQueue = "storefront.dlq" // сообщения, которые outbox не смог опубликовать
)

// Kafka headers
const (
	HeaderEventType     = "x-event-type"
	HeaderAggregateType = "x-aggregate-type"
)

// OutboxEnvelope — формат сообщения, которое outbox публикует в topic.
type OutboxEnvelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// ParseOutboxEnvelope разбирает значение сообщения из TopicOrderEvents.
func ParseOutboxEnvelope(value []byte) (OutboxEnvelope, error) {
	var envelope OutboxEnvelope
	if err := json.Unmarshal(value, &envelope); err != nil {
		return OutboxEnvelope{}, fmt.Errorf("failed to unmarshal outbox envelope: %w", err)
	}
	return envelope, nil
}
