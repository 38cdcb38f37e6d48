package warehouse_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/invoiceflow/pipeline/internal/adapters/bus/membus"
	"github.com/invoiceflow/pipeline/internal/adapters/objectstore/memstore"
	"github.com/invoiceflow/pipeline/internal/config"
	"github.com/invoiceflow/pipeline/internal/kernel/envelope"
	"github.com/invoiceflow/pipeline/internal/kernel/events"
	"github.com/invoiceflow/pipeline/internal/kernel/model"
	"github.com/invoiceflow/pipeline/internal/logger"
	"github.com/invoiceflow/pipeline/internal/runtime"
	"github.com/invoiceflow/pipeline/internal/stages/warehouse"
	"github.com/invoiceflow/pipeline/internal/stages/warehouse/memrepo"
)

func testConfig() *config.Config {
	return &config.Config{
		Buckets: config.Buckets{Input: "input", Archive: "archive"},
		Topics:  config.Topics{Loaded: "loaded-topic"},
		LLM:     config.LLM{Model: "vision-invoice-extractor-v1"},
	}
}

func sampleExtracted(invoiceID string) events.Extracted {
	return events.Extracted{
		InvoiceID: invoiceID,
		Vendor:    model.VendorUberEats,
		Source:    model.ObjectRef{Bucket: "input", Name: invoiceID + ".tiff"},
		Extraction: model.Invoice{
			InvoiceID:   invoiceID,
			VendorName:  "Uber Eats",
			VendorType:  model.VendorUberEats,
			Currency:    "USD",
			InvoiceDate: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
			DueDate:     time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC),
			Subtotal:    decimal.NewFromFloat(100),
			TaxAmount:   decimal.NewFromFloat(10),
			TotalAmount: decimal.NewFromFloat(110),
			LineItems: []model.LineItem{
				{LineNumber: 1, Description: "Burger", Quantity: 2, UnitPrice: decimal.NewFromFloat(50), Amount: decimal.NewFromFloat(100)},
			},
		},
	}
}

func TestHandler_HappyPath(t *testing.T) {
	store := memstore.New()
	bus := membus.New()
	repo := memrepo.New()
	store.Put(context.Background(), "input", "UE-1.tiff", []byte("original-bytes"), "image/tiff")

	extracted := sampleExtracted("UE-1")
	body, _ := extracted.Encode()

	h := warehouse.Handler(store, bus, repo, testConfig(), logger.NewNop())
	res := h(context.Background(), envelope.Envelope{Body: body})
	if res.Outcome != runtime.Success {
		t.Fatalf("unexpected outcome %v (err=%v)", res.Outcome, res.Err)
	}

	if repo.Inserts() != 1 {
		t.Fatalf("expected exactly 1 insert, got %d", repo.Inserts())
	}
	msgs := bus.Messages("loaded-topic")
	if len(msgs) != 1 {
		t.Fatalf("expected 1 Loaded publish, got %d", len(msgs))
	}
	l, err := events.DecodeLoaded(msgs[0].Body)
	if err != nil {
		t.Fatalf("decode loaded: %v", err)
	}
	if l.Table != "invoices" || l.InvoiceID != "UE-1" {
		t.Fatalf("unexpected Loaded payload: %+v", l)
	}
}

func TestHandler_RedeliveryDoesNotDuplicateInsert(t *testing.T) {
	store := memstore.New()
	bus := membus.New()
	repo := memrepo.New()
	store.Put(context.Background(), "input", "DD-1.tiff", []byte("bytes"), "image/tiff")

	extracted := sampleExtracted("DD-1")
	body, _ := extracted.Encode()
	h := warehouse.Handler(store, bus, repo, testConfig(), logger.NewNop())

	env := envelope.Envelope{Body: body}
	h(context.Background(), env)
	h(context.Background(), env)

	if repo.Inserts() != 1 {
		t.Fatalf("expected exactly 1 insert after redelivery (S2 scenario), got %d", repo.Inserts())
	}
	if bus.Count("loaded-topic") != 2 {
		t.Fatalf("expected a Loaded publish per delivery, got %d", bus.Count("loaded-topic"))
	}
}

func TestHandler_ArchivesOriginal(t *testing.T) {
	store := memstore.New()
	bus := membus.New()
	repo := memrepo.New()
	store.Put(context.Background(), "input", "GH-1.tiff", []byte("original"), "image/tiff")

	extracted := sampleExtracted("GH-1")
	body, _ := extracted.Encode()
	h := warehouse.Handler(store, bus, repo, testConfig(), logger.NewNop())
	h(context.Background(), envelope.Envelope{Body: body})

	found := false
	refs, err := store.List(context.Background(), "archive", "")
	if err != nil {
		t.Fatalf("list archive: %v", err)
	}
	for _, ref := range refs {
		if ref.Name[len(ref.Name)-len("GH-1.tiff"):] == "GH-1.tiff" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected GH-1.tiff to be archived, got entries %+v", refs)
	}
}
