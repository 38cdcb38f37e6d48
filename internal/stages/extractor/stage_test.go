package extractor

import (
	"context"
	"testing"

	"github.com/invoiceflow/pipeline/internal/adapters/bus/membus"
	"github.com/invoiceflow/pipeline/internal/adapters/objectstore/memstore"
	"github.com/invoiceflow/pipeline/internal/config"
	"github.com/invoiceflow/pipeline/internal/kernel/envelope"
	"github.com/invoiceflow/pipeline/internal/kernel/errs"
	"github.com/invoiceflow/pipeline/internal/kernel/events"
	"github.com/invoiceflow/pipeline/internal/kernel/model"
	"github.com/invoiceflow/pipeline/internal/logger"
	"github.com/invoiceflow/pipeline/internal/runtime"
)

type fakeLLM struct {
	responses []string
	errs      []error
	calls     int
}

func (f *fakeLLM) ExtractInvoice(ctx context.Context, prompt string, imageBytes []byte, mediaType string, schema map[string]any) (string, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return "", f.errs[i]
	}
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	return f.responses[len(f.responses)-1], nil
}

func testConfig() *config.Config {
	return &config.Config{
		Buckets: config.Buckets{Extracted: "extracted", Failed: "failed"},
		Topics:  config.Topics{Extracted: "extracted-topic"},
	}
}

func seedClassified(t *testing.T, store *memstore.Store, invoiceID string, vendor model.VendorType) events.Classified {
	t.Helper()
	page := model.PageRef{Bucket: "classified", Name: "p0.png", PageIndex: 0}
	if _, err := store.Put(context.Background(), page.Bucket, page.Name, []byte("image-bytes"), "image/png"); err != nil {
		t.Fatalf("seed page: %v", err)
	}
	return events.Classified{InvoiceID: invoiceID, Vendor: vendor, Pages: []model.PageRef{page}}
}

const validResponse = `{
  "invoice_id":"UE-1","vendor_name":"Uber Eats","vendor_type":"ubereats",
  "invoice_date":"2026-01-01","due_date":"2026-01-15","currency":"USD",
  "subtotal":"100.00","tax_amount":"10.00","total_amount":"110.00",
  "line_items":[{"line_number":1,"description":"Burger","quantity":2,"unit_price":"50.00","amount":"100.00"}]
}`

func TestHandler_HappyPath(t *testing.T) {
	store := memstore.New()
	bus := membus.New()
	classified := seedClassified(t, store, "UE-1", model.VendorUberEats)
	body, _ := classified.Encode()

	client := &fakeLLM{responses: []string{validResponse}}
	h := Handler(store, bus, client, testConfig(), logger.NewNop())
	res := h(context.Background(), envelope.Envelope{Body: body})
	if res.Outcome != runtime.Success {
		t.Fatalf("unexpected outcome %v (err=%v)", res.Outcome, res.Err)
	}

	if !store.Exists("extracted", "ubereats/UE-1.json") {
		t.Fatal("expected extraction JSON to be written")
	}
	msgs := bus.Messages("extracted-topic")
	if len(msgs) != 1 {
		t.Fatalf("expected 1 Extracted publish, got %d", len(msgs))
	}
}

func TestHandler_VendorOverrideInvariance(t *testing.T) {
	store := memstore.New()
	bus := membus.New()
	// Classified says doordash, but the model insists on ubereats.
	classified := seedClassified(t, store, "DD-1", model.VendorDoorDash)
	body, _ := classified.Encode()

	modelResponse := `{
	  "invoice_id":"DD-1","vendor_name":"Uber Eats (wrong)","vendor_type":"ubereats",
	  "invoice_date":"2026-01-01","due_date":"2026-01-15","currency":"USD",
	  "subtotal":"50.00","tax_amount":"5.00","total_amount":"55.00",
	  "line_items":[{"line_number":1,"description":"Item","quantity":1,"unit_price":"50.00","amount":"50.00"}]
	}`
	client := &fakeLLM{responses: []string{modelResponse}}
	h := Handler(store, bus, client, testConfig(), logger.NewNop())
	h(context.Background(), envelope.Envelope{Body: body})

	e, err := events.DecodeExtracted(bus.Messages("extracted-topic")[0].Body)
	if err != nil {
		t.Fatalf("decode extracted: %v", err)
	}
	if e.Extraction.VendorType != model.VendorDoorDash {
		t.Fatalf("vendor_type = %q, want doordash (classifier is authoritative)", e.Extraction.VendorType)
	}
}

func TestHandler_MismatchedTotalsIsPermanent(t *testing.T) {
	store := memstore.New()
	bus := membus.New()
	classified := seedClassified(t, store, "UE-2", model.VendorUberEats)
	body, _ := classified.Encode()

	badTotals := `{
	  "invoice_id":"UE-2","vendor_name":"Uber Eats","vendor_type":"ubereats",
	  "invoice_date":"2026-01-01","due_date":"2026-01-15","currency":"USD",
	  "subtotal":"100.00","tax_amount":"10.00","total_amount":"115.00",
	  "line_items":[{"line_number":1,"description":"Item","quantity":1,"unit_price":"100.00","amount":"100.00"}]
	}`
	client := &fakeLLM{responses: []string{badTotals}}
	h := Handler(store, bus, client, testConfig(), logger.NewNop())
	res := h(context.Background(), envelope.Envelope{Body: body})

	if res.Outcome != runtime.PermanentFailure {
		t.Fatalf("expected PermanentFailure for mismatched totals, got %v", res.Outcome)
	}
	if !store.Exists("failed", "extract/UE-2.error.json") {
		t.Fatal("expected a diagnostics sidecar to have been written")
	}
	if bus.Count("extracted-topic") != 0 {
		t.Fatal("no Extracted event should be emitted for a permanently-failed extraction")
	}
}

func TestHandler_TransientLLMErrorRetriesThenSucceeds(t *testing.T) {
	store := memstore.New()
	bus := membus.New()
	classified := seedClassified(t, store, "UE-3", model.VendorUberEats)
	body, _ := classified.Encode()

	client := &fakeLLM{
		errs:      []error{errs.Transientf("rate limited"), errs.Transientf("rate limited")},
		responses: []string{"", "", validResponse},
	}
	h := Handler(store, bus, client, testConfig(), logger.NewNop())
	res := h(context.Background(), envelope.Envelope{Body: body})
	if res.Outcome != runtime.Success {
		t.Fatalf("expected eventual success after transient retries, got %v (err=%v)", res.Outcome, res.Err)
	}
	if client.calls != 3 {
		t.Fatalf("expected 3 LLM calls, got %d", client.calls)
	}
}

func TestHandler_PermanentLLMErrorDoesNotRetry(t *testing.T) {
	store := memstore.New()
	bus := membus.New()
	classified := seedClassified(t, store, "UE-4", model.VendorUberEats)
	body, _ := classified.Encode()

	client := &fakeLLM{errs: []error{errs.Permanentf("rejected: %s", "bad request")}}
	h := Handler(store, bus, client, testConfig(), logger.NewNop())
	res := h(context.Background(), envelope.Envelope{Body: body})
	if res.Outcome != runtime.PermanentFailure {
		t.Fatalf("expected PermanentFailure, got %v", res.Outcome)
	}
	if client.calls != 1 {
		t.Fatalf("expected exactly 1 call for a non-retryable LLM error, got %d", client.calls)
	}
}

func TestHandler_RoundsHalfEvenBeforeValidating(t *testing.T) {
	store := memstore.New()
	bus := membus.New()
	classified := seedClassified(t, store, "UE-5", model.VendorUberEats)
	body, _ := classified.Encode()

	// 100.005 rounds half-even to 100.00 and 109.975 to 109.98, leaving the
	// total 0.02 below subtotal+tax (within tolerance); without rounding
	// first the gap would be 0.03 and fail the subtotal/total cross-check.
	resp := `{
	  "invoice_id":"UE-5","vendor_name":"Uber Eats","vendor_type":"ubereats",
	  "invoice_date":"2026-01-01","due_date":"2026-01-15","currency":"USD",
	  "subtotal":"100.005","tax_amount":"10.00","total_amount":"109.975",
	  "line_items":[{"line_number":1,"description":"Item","quantity":1,"unit_price":"100.005","amount":"100.005"}]
	}`
	client := &fakeLLM{responses: []string{resp}}
	h := Handler(store, bus, client, testConfig(), logger.NewNop())
	res := h(context.Background(), envelope.Envelope{Body: body})
	if res.Outcome != runtime.Success {
		t.Fatalf("expected rounding to resolve the cross-field check, got %v (err=%v)", res.Outcome, res.Err)
	}
}
