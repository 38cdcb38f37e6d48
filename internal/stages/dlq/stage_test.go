package dlq_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/invoiceflow/pipeline/internal/adapters/objectstore/memstore"
	"github.com/invoiceflow/pipeline/internal/config"
	"github.com/invoiceflow/pipeline/internal/kernel/envelope"
	"github.com/invoiceflow/pipeline/internal/kernel/model"
	"github.com/invoiceflow/pipeline/internal/logger"
	"github.com/invoiceflow/pipeline/internal/runtime"
	"github.com/invoiceflow/pipeline/internal/stages/dlq"
)

func testConfig() *config.Config {
	return &config.Config{Buckets: config.Buckets{Failed: "failed"}}
}

func TestHandler_QuarantinesAndAlwaysAcks(t *testing.T) {
	store := memstore.New()
	h := dlq.Handler(store, testConfig(), "classified-dlq", "extractor", logger.NewNop())

	env := envelope.Envelope{
		Body:      []byte(`{"invoice_id":"UE-1"}`),
		MessageID: "msg-123",
		Attributes: map[string]string{
			"CloudPubSubDeadLetterSourceDeliveryCount": "5",
			"last_error": "llm timeout",
		},
	}

	res := h(context.Background(), env)
	if res.Outcome != runtime.Success {
		t.Fatalf("DLQ processor must always ack, got outcome %v", res.Outcome)
	}

	refs, err := store.List(context.Background(), "failed", "dlq/extractor/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(refs) != 1 {
		t.Fatalf("expected exactly 1 quarantine record, got %d: %+v", len(refs), refs)
	}

	raw, err := store.Get(context.Background(), "failed", refs[0].Name)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	var rec model.DeadLetterRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		t.Fatalf("unmarshal record: %v", err)
	}
	if rec.OriginStage != "extractor" || rec.OriginTopic != "classified-dlq" {
		t.Fatalf("unexpected record header: %+v", rec)
	}
	if rec.DeliveryAttempt != 5 {
		t.Fatalf("expected delivery_attempt 5, got %d", rec.DeliveryAttempt)
	}
	if rec.LastError != "llm timeout" {
		t.Fatalf("expected last_error to be carried through, got %q", rec.LastError)
	}
}

func TestHandler_RedeliveryIsIdempotentByMessageID(t *testing.T) {
	store := memstore.New()
	h := dlq.Handler(store, testConfig(), "uploaded-dlq", "normalizer", logger.NewNop())

	env := envelope.Envelope{Body: []byte(`{}`), MessageID: "dup-1"}
	h(context.Background(), env)
	h(context.Background(), env)

	refs, err := store.List(context.Background(), "failed", "dlq/normalizer/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(refs) != 1 {
		t.Fatalf("expected exactly 1 record keyed by message_id after redelivery, got %d", len(refs))
	}
}

func TestHandler_MissingDeliveryCountFallsBackToEnvelopeAttempt(t *testing.T) {
	store := memstore.New()
	h := dlq.Handler(store, testConfig(), "extracted-dlq", "warehouse", logger.NewNop())

	attempt := 3
	env := envelope.Envelope{Body: []byte(`{}`), MessageID: "m-1", DeliveryAttempt: attempt, DeliveryAttemptPresent: true}
	h(context.Background(), env)

	refs, _ := store.List(context.Background(), "failed", "dlq/warehouse/")
	if len(refs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(refs))
	}
	raw, _ := store.Get(context.Background(), "failed", refs[0].Name)
	var rec model.DeadLetterRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if rec.DeliveryAttempt != attempt {
		t.Fatalf("expected delivery_attempt to fall back to envelope's %d, got %d", attempt, rec.DeliveryAttempt)
	}
}

func TestHandler_MissingMessageIDMintsOne(t *testing.T) {
	store := memstore.New()
	h := dlq.Handler(store, testConfig(), "converted-dlq", "classifier", logger.NewNop())

	res := h(context.Background(), envelope.Envelope{Body: []byte(`{}`)})
	if res.Outcome != runtime.Success {
		t.Fatalf("expected ack even with no message_id, got %v", res.Outcome)
	}
	refs, _ := store.List(context.Background(), "failed", "dlq/classifier/")
	if len(refs) != 1 {
		t.Fatalf("expected 1 record minted for the unidentified message, got %d", len(refs))
	}
}
