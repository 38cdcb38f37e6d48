// Package membus is an in-memory ports.Bus double, used by every stage's
// tests (spec §9: "interface abstraction ... so tests can substitute
// in-memory doubles"). Published messages are recorded per topic so tests
// can assert on exactly what a stage emitted.
package membus

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/invoiceflow/pipeline/internal/kernel/ports"
)

// Published is one recorded publish call.
type Published struct {
	MessageID string
	Topic     string
	Body      []byte
	Attrs     map[string]string
}

// Bus is a concurrency-safe, process-local Bus recording every publish.
type Bus struct {
	mu   sync.Mutex
	msgs map[string][]Published // keyed by topic
}

// New returns an empty Bus.
func New() *Bus {
	return &Bus{msgs: make(map[string][]Published)}
}

var _ ports.Bus = (*Bus)(nil)

func (b *Bus) Publish(ctx context.Context, topic string, body []byte, attrs map[string]string) (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	messageID := id.String()

	b.mu.Lock()
	defer b.mu.Unlock()
	cp := make([]byte, len(body))
	copy(cp, body)
	b.msgs[topic] = append(b.msgs[topic], Published{MessageID: messageID, Topic: topic, Body: cp, Attrs: attrs})
	return messageID, nil
}

// Messages returns every message published to topic, in publish order.
func (b *Bus) Messages(topic string) []Published {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Published, len(b.msgs[topic]))
	copy(out, b.msgs[topic])
	return out
}

// Count returns how many messages have been published to topic.
func (b *Bus) Count(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.msgs[topic])
}
