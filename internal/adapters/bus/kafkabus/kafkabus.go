// Package kafkabus is the ports.Bus the pipeline ships with: one
// segmentio/kafka-go Writer per topic, mirroring the dlqWriter producer
// pattern every stage's teacher consumer used for its own DLQ forwarding.
package kafkabus

import (
	"context"
	"sync"

	"github.com/google/uuid"
	kafka "github.com/segmentio/kafka-go"

	"github.com/invoiceflow/pipeline/internal/kernel/errs"
	"github.com/invoiceflow/pipeline/internal/kernel/ports"
)

// Bus publishes to Kafka, one *kafka.Writer per topic, created lazily and
// reused across Publish calls.
type Bus struct {
	brokers []string

	mu      sync.Mutex
	writers map[string]*kafka.Writer
}

// New returns a Bus that dials brokers on first publish to each topic.
func New(brokers []string) *Bus {
	return &Bus{brokers: brokers, writers: make(map[string]*kafka.Writer)}
}

var _ ports.Bus = (*Bus)(nil)

func (b *Bus) writerFor(topic string) *kafka.Writer {
	b.mu.Lock()
	defer b.mu.Unlock()
	if w, ok := b.writers[topic]; ok {
		return w
	}
	w := &kafka.Writer{
		Addr:     kafka.TCP(b.brokers...),
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	}
	b.writers[topic] = w
	return w
}

// Publish writes body to topic with attrs carried as Kafka headers and a
// freshly-minted message id as the Kafka key, so every publish is traceable
// back to its origin even though Kafka itself has no notion of message id.
func (b *Bus) Publish(ctx context.Context, topic string, body []byte, attrs map[string]string) (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", errs.Permanentf("kafkabus: generate message id: %w", err)
	}
	messageID := id.String()

	headers := make([]kafka.Header, 0, len(attrs)+1)
	headers = append(headers, kafka.Header{Key: "message-id", Value: []byte(messageID)})
	for k, v := range attrs {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}

	msg := kafka.Message{
		Key:     []byte(messageID),
		Value:   body,
		Headers: headers,
	}
	if err := b.writerFor(topic).WriteMessages(ctx, msg); err != nil {
		return "", errs.Transientf("kafkabus: publish to %s: %w", topic, err)
	}
	return messageID, nil
}

// Close closes every writer this Bus has opened.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var firstErr error
	for _, w := range b.writers {
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
