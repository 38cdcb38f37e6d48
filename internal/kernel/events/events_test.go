package events

import (
	"testing"
	"time"

	"github.com/invoiceflow/pipeline/internal/kernel/model"
	"github.com/shopspring/decimal"
)

func TestSchemaClosure_Converted(t *testing.T) {
	c := Converted{
		InvoiceID: "UE-1",
		Source:    model.ObjectRef{Bucket: "input", Name: "UE-1.tiff"},
		Pages: []model.PageRef{
			{Bucket: "processed", Name: "UE-1/page-000.png", PageIndex: 0},
		},
	}
	data, err := c.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeConverted(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.InvoiceID != c.InvoiceID || len(got.Pages) != 1 {
		t.Fatalf("round-trip mismatch: %+v", got)
	}
}

func TestDecodeConverted_RejectsEmptyPages(t *testing.T) {
	c := Converted{InvoiceID: "UE-1"}
	data, _ := c.Encode()
	if _, err := DecodeConverted(data); err == nil {
		t.Fatal("expected schema error for empty pages")
	}
}

func TestDecodeClassified_RejectsInvalidVendor(t *testing.T) {
	data := []byte(`{"invoice_id":"UE-1","vendor":"bogus","pages":[{"bucket":"b","name":"n","page_index":0}]}`)
	if _, err := DecodeClassified(data); err == nil {
		t.Fatal("expected schema error for invalid vendor")
	}
}

func TestSchemaClosure_Extracted(t *testing.T) {
	e := Extracted{
		InvoiceID: "UE-1",
		Vendor:    model.VendorUberEats,
		Source:    model.ObjectRef{Bucket: "input", Name: "UE-1.tiff"},
		Extraction: model.Invoice{
			InvoiceID:   "UE-1",
			VendorName:  "Uber Eats",
			VendorType:  model.VendorUberEats,
			Currency:    "USD",
			InvoiceDate: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
			DueDate:     time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC),
			Subtotal:    decimal.NewFromFloat(10),
			TaxAmount:   decimal.NewFromFloat(1),
			TotalAmount: decimal.NewFromFloat(11),
			LineItems: []model.LineItem{
				{LineNumber: 1, Description: "Item", Quantity: 1, UnitPrice: decimal.NewFromFloat(10), Amount: decimal.NewFromFloat(10)},
			},
		},
	}
	data, err := e.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeExtracted(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.InvoiceID != e.InvoiceID || got.Vendor != e.Vendor {
		t.Fatalf("round-trip mismatch: %+v", got)
	}
}

func TestDecodeExtracted_RejectsBadArithmetic(t *testing.T) {
	data := []byte(`{
		"invoice_id":"UE-1","vendor":"ubereats",
		"extraction": {
			"invoice_id":"UE-1","vendor_name":"Uber Eats","vendor_type":"ubereats",
			"invoice_date":"2026-01-01T00:00:00Z","due_date":"2026-01-15T00:00:00Z",
			"currency":"USD","subtotal":"100.00","tax_amount":"10.00","total_amount":"115.00",
			"line_items":[{"line_number":1,"description":"x","quantity":1,"unit_price":"100.00","amount":"100.00"}]
		}
	}`)
	if _, err := DecodeExtracted(data); err == nil {
		t.Fatal("expected schema error for mismatched totals (S6 scenario)")
	}
}

func TestDecodeLoaded_RequiresAllFields(t *testing.T) {
	if _, err := DecodeLoaded([]byte(`{"invoice_id":"UE-1"}`)); err == nil {
		t.Fatal("expected schema error for missing row_id/table")
	}
}
