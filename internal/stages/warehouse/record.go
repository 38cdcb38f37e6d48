// Package warehouse implements Stage D: it persists a validated extraction
// into the analytical warehouse, deduplicating by invoice id, archives the
// original landing object, and emits a Loaded event (spec §4.6).
package warehouse

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/invoiceflow/pipeline/internal/kernel/model"
)

// Record is everything one Stage D insert needs, beyond the Invoice itself:
// the generated row id and the metrics columns spec §6 defines for the
// `metrics` table.
type Record struct {
	RowID               string
	Invoice             model.Invoice
	SourceFile          string
	ExtractionModel     string
	ExtractionLatencyMs int
	ConfidenceScore     *decimal.Decimal
}

// Repository abstracts the warehouse. Stage D classifies a returned error
// with errs.KindOf: a kernel/errs Permanent error is acked as permanent,
// anything else is retried as Transient. PostgresRepository returns
// unclassified errors, so every failure it reports, a schema mismatch
// included, is retried as Transient.
type Repository interface {
	// FindRowID returns the row id of invoices.invoice_id = invoiceID, and
	// true, if a header row already exists; ("", false, nil) otherwise.
	FindRowID(ctx context.Context, invoiceID string) (string, bool, error)
	// Insert atomically writes one header row, len(rec.Invoice.LineItems)
	// line-item rows, and one metrics row. Partial success is forbidden:
	// on any failure after the header insert, the header row is removed
	// before Insert returns so a retried call never sees a half-written
	// invoice (spec §4.6 "Partial success is forbidden").
	Insert(ctx context.Context, rec Record) error
}
