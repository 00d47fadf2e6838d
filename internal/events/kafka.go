// Package events publishes sensor states to Kafka for downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/tohomedistance/tohomedistance/internal/sensor"
)

// MessageWriter is the subset of *kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// StateEvent is the JSON value of a published message.
type StateEvent struct {
	EntityID   string         `json:"entity_id"`
	EntryID    string         `json:"entry_id"`
	State      string         `json:"state"`
	Attributes map[string]any `json:"attributes"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// KafkaPublisher writes each sensor state to a topic keyed by entity id, so
// states of one sensor stay ordered within a partition.
type KafkaPublisher struct {
	writer MessageWriter
}

// NewKafkaPublisher creates a publisher for the given topic.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
	return NewKafkaPublisherWithWriter(w)
}

// NewKafkaPublisherWithWriter creates a publisher over an existing writer.
func NewKafkaPublisherWithWriter(w MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: w}
}

// Publish implements sensor.Publisher.
func (p *KafkaPublisher) Publish(ctx context.Context, state sensor.State) error {
	data, err := json.Marshal(StateEvent{
		EntityID:   state.EntityID,
		EntryID:    state.EntryID,
		State:      state.Value,
		Attributes: state.Attributes,
		UpdatedAt:  state.UpdatedAt,
	})
	if err != nil {
		return fmt.Errorf("encoding state event: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(state.EntityID),
		Value: data,
	})
	if err != nil {
		return fmt.Errorf("writing state event for %s: %w", state.EntityID, err)
	}
	return nil
}

// Close flushes pending messages and closes the connection.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

var _ sensor.Publisher = (*KafkaPublisher)(nil)
