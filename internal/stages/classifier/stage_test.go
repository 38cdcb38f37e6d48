package classifier

import (
	"context"
	"testing"

	"github.com/invoiceflow/pipeline/internal/adapters/bus/membus"
	"github.com/invoiceflow/pipeline/internal/adapters/objectstore/memstore"
	"github.com/invoiceflow/pipeline/internal/config"
	"github.com/invoiceflow/pipeline/internal/kernel/envelope"
	"github.com/invoiceflow/pipeline/internal/kernel/events"
	"github.com/invoiceflow/pipeline/internal/kernel/model"
	"github.com/invoiceflow/pipeline/internal/logger"
	"github.com/invoiceflow/pipeline/internal/runtime"
)

func testConfig() *config.Config {
	return &config.Config{
		Buckets: config.Buckets{Processed: "processed", Classified: "classified"},
		Topics:  config.Topics{Classified: "classified-topic"},
	}
}

func seedConverted(t *testing.T, store *memstore.Store, invoiceID string, n int) events.Converted {
	t.Helper()
	pages := make([]model.PageRef, n)
	for i := 0; i < n; i++ {
		name := model.ProcessedPagePath(invoiceID, i)
		if _, err := store.Put(context.Background(), "processed", name, []byte("page-bytes"), "image/png"); err != nil {
			t.Fatalf("seed page %d: %v", i, err)
		}
		pages[i] = model.PageRef{Bucket: "processed", Name: name, PageIndex: i}
	}
	return events.Converted{
		InvoiceID: invoiceID,
		Source:    model.ObjectRef{Bucket: "input", Name: invoiceID + ".tiff"},
		Pages:     pages,
	}
}

func TestHandler_ClassifiesKnownVendor(t *testing.T) {
	store := memstore.New()
	bus := membus.New()
	converted := seedConverted(t, store, "UE-2026-000001", 2)
	body, _ := converted.Encode()

	h := Handler(store, bus, nil, testConfig(), logger.NewNop())
	res := h(context.Background(), envelope.Envelope{Body: body})
	if res.Outcome != runtime.Success {
		t.Fatalf("unexpected outcome %v (err=%v)", res.Outcome, res.Err)
	}

	msgs := bus.Messages("classified-topic")
	if len(msgs) != 1 {
		t.Fatalf("expected 1 Classified publish, got %d", len(msgs))
	}
	c, err := events.DecodeClassified(msgs[0].Body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if c.Vendor != model.VendorUberEats {
		t.Fatalf("vendor = %q, want ubereats", c.Vendor)
	}
	if !store.Exists("classified", "ubereats/UE-2026-000001/page-000.png") {
		t.Fatal("expected page copied into vendor partition")
	}
}

func TestHandler_UnknownVendorClassifiesAsOther(t *testing.T) {
	store := memstore.New()
	bus := membus.New()
	converted := seedConverted(t, store, "XX-zzz", 1)
	body, _ := converted.Encode()

	h := Handler(store, bus, nil, testConfig(), logger.NewNop())
	h(context.Background(), envelope.Envelope{Body: body})

	c, _ := events.DecodeClassified(bus.Messages("classified-topic")[0].Body)
	if c.Vendor != model.VendorOther {
		t.Fatalf("vendor = %q, want other", c.Vendor)
	}
}

type stubContentClassifier struct {
	vendor model.VendorType
	ok     bool
}

func (s stubContentClassifier) Classify(ctx context.Context, pages [][]byte) (model.VendorType, bool) {
	return s.vendor, s.ok
}

func TestHandler_ContentFallbackNeverOverridesAMatch(t *testing.T) {
	store := memstore.New()
	bus := membus.New()
	converted := seedConverted(t, store, "DD-1", 1)
	body, _ := converted.Encode()

	// A content classifier that would (incorrectly) propose a different
	// vendor must never be consulted once the regex already matched.
	h := Handler(store, bus, stubContentClassifier{vendor: model.VendorRappi, ok: true}, testConfig(), logger.NewNop())
	h(context.Background(), envelope.Envelope{Body: body})

	c, _ := events.DecodeClassified(bus.Messages("classified-topic")[0].Body)
	if c.Vendor != model.VendorDoorDash {
		t.Fatalf("vendor = %q, want doordash (regex match must win)", c.Vendor)
	}
}

func TestHandler_CopyIsIdempotent(t *testing.T) {
	store := memstore.New()
	bus := membus.New()
	converted := seedConverted(t, store, "GH-1", 1)
	body, _ := converted.Encode()

	h := Handler(store, bus, nil, testConfig(), logger.NewNop())
	env := envelope.Envelope{Body: body}
	h(context.Background(), env)
	h(context.Background(), env)

	if bus.Count("classified-topic") != 2 {
		t.Fatalf("expected a publish per delivery, got %d", bus.Count("classified-topic"))
	}
	data, err := store.Get(context.Background(), "classified", "grubhub/GH-1/page-000.png")
	if err != nil || string(data) != "page-bytes" {
		t.Fatalf("expected idempotent copy to retain page bytes, got data=%q err=%v", data, err)
	}
}
