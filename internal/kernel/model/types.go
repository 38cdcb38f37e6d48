// Package model defines the plain value types that flow through the
// pipeline: source objects, invoice identifiers, vendor classification,
// page references, line items and the extracted invoice itself.
package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ObjectRef names an object in some bucket. It is the type of the
// Converted/Extracted "source" field.
type ObjectRef struct {
	Bucket string `json:"bucket"`
	Name   string `json:"name"`
}

// SourceObject is the external upload that starts a pipeline run.
type SourceObject struct {
	Bucket      string    `json:"bucket"`
	Name        string    `json:"name"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"created_at"`
}

// Validate enforces the SourceObject invariants from spec §3: a non-empty
// name and a content type drawn from the accepted container-image set.
func (s SourceObject) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("source object: name must not be empty")
	}
	if !AcceptedContentTypes[s.ContentType] {
		return fmt.Errorf("source object: content type %q is not an accepted container image format", s.ContentType)
	}
	return nil
}

// AcceptedContentTypes are the container-image formats Stage A knows how to
// split into pages. Anything else is a permanent failure (spec §4.3).
var AcceptedContentTypes = map[string]bool{
	"image/tiff": true,
}

// PageRef identifies one rendered page of an invoice.
type PageRef struct {
	Bucket    string `json:"bucket"`
	Name      string `json:"name"`
	PageIndex int    `json:"page_index"`
}

// Validate enforces PageRef's invariant: PageIndex must be non-negative.
func (p PageRef) Validate() error {
	if p.PageIndex < 0 {
		return fmt.Errorf("page ref: page_index must be >= 0, got %d", p.PageIndex)
	}
	if p.Name == "" {
		return fmt.Errorf("page ref: name must not be empty")
	}
	return nil
}

// LineItem is one row of an invoice's itemization.
type LineItem struct {
	LineNumber  int             `json:"line_number"`
	Description string          `json:"description"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Amount      decimal.Decimal `json:"amount"`
}

// lineItemTolerance and invoiceTolerance are the cross-field slack allowed
// by spec §3/§8: 0.01 for a single line item, 0.02 for invoice-level totals.
var (
	lineItemTolerance = decimal.NewFromFloat(0.01)
	invoiceTolerance  = decimal.NewFromFloat(0.02)
)

// Validate enforces LineItem's invariants: line_number >= 1, non-empty
// description, quantity >= 1, unit_price >= 0, amount >= 0, and that amount
// matches quantity*unit_price within 0.01.
func (li LineItem) Validate() error {
	if li.LineNumber < 1 {
		return fmt.Errorf("line item: line_number must be >= 1, got %d", li.LineNumber)
	}
	if li.Description == "" {
		return fmt.Errorf("line item %d: description must not be empty", li.LineNumber)
	}
	if li.Quantity < 1 {
		return fmt.Errorf("line item %d: quantity must be >= 1, got %d", li.LineNumber, li.Quantity)
	}
	if li.UnitPrice.IsNegative() {
		return fmt.Errorf("line item %d: unit_price must be >= 0", li.LineNumber)
	}
	if li.Amount.IsNegative() {
		return fmt.Errorf("line item %d: amount must be >= 0", li.LineNumber)
	}
	expected := li.UnitPrice.Mul(decimal.NewFromInt(int64(li.Quantity)))
	if li.Amount.Sub(expected).Abs().GreaterThan(lineItemTolerance) {
		return fmt.Errorf("line item %d: amount %s does not match quantity*unit_price %s within tolerance", li.LineNumber, li.Amount, expected)
	}
	return nil
}

// Invoice is the structured extraction produced by Stage C and persisted by
// Stage D.
type Invoice struct {
	InvoiceID         string          `json:"invoice_id"`
	VendorName        string          `json:"vendor_name"`
	VendorType        VendorType      `json:"vendor_type"`
	InvoiceDate       time.Time       `json:"invoice_date"`
	DueDate           time.Time       `json:"due_date"`
	Currency          string          `json:"currency"`
	Subtotal          decimal.Decimal `json:"subtotal"`
	TaxAmount         decimal.Decimal `json:"tax_amount"`
	CommissionRate    *decimal.Decimal `json:"commission_rate,omitempty"`
	CommissionAmount  *decimal.Decimal `json:"commission_amount,omitempty"`
	TotalAmount       decimal.Decimal `json:"total_amount"`
	LineItems         []LineItem      `json:"line_items"`
}

// Validate enforces every cross-field invariant from spec §3: ISO-4217
// currency length, non-negative amounts, commission_rate in [0,1], due_date
// on or after invoice_date, |total - (subtotal+tax)| <= 0.02, and the sum of
// line item amounts matching subtotal within 0.02.
func (inv Invoice) Validate() error {
	if inv.InvoiceID == "" {
		return fmt.Errorf("invoice: invoice_id must not be empty")
	}
	if !inv.VendorType.Valid() {
		return fmt.Errorf("invoice %s: invalid vendor_type %q", inv.InvoiceID, inv.VendorType)
	}
	if len(inv.Currency) != 3 {
		return fmt.Errorf("invoice %s: currency must be a 3-letter ISO-4217 code, got %q", inv.InvoiceID, inv.Currency)
	}
	if inv.Subtotal.IsNegative() {
		return fmt.Errorf("invoice %s: subtotal must be >= 0", inv.InvoiceID)
	}
	if inv.TaxAmount.IsNegative() {
		return fmt.Errorf("invoice %s: tax_amount must be >= 0", inv.InvoiceID)
	}
	if inv.TotalAmount.IsNegative() {
		return fmt.Errorf("invoice %s: total_amount must be >= 0", inv.InvoiceID)
	}
	if inv.CommissionRate != nil {
		if inv.CommissionRate.IsNegative() || inv.CommissionRate.GreaterThan(decimal.NewFromInt(1)) {
			return fmt.Errorf("invoice %s: commission_rate must be within [0,1]", inv.InvoiceID)
		}
	}
	if inv.CommissionAmount != nil && inv.CommissionAmount.IsNegative() {
		return fmt.Errorf("invoice %s: commission_amount must be >= 0", inv.InvoiceID)
	}
	if inv.DueDate.Before(inv.InvoiceDate) {
		return fmt.Errorf("invoice %s: due_date %s is before invoice_date %s", inv.InvoiceID, inv.DueDate, inv.InvoiceDate)
	}
	if len(inv.LineItems) == 0 {
		return fmt.Errorf("invoice %s: must have at least one line item", inv.InvoiceID)
	}

	sumAmounts := decimal.Zero
	for _, li := range inv.LineItems {
		if err := li.Validate(); err != nil {
			return fmt.Errorf("invoice %s: %w", inv.InvoiceID, err)
		}
		sumAmounts = sumAmounts.Add(li.Amount)
	}

	expectedTotal := inv.Subtotal.Add(inv.TaxAmount)
	if inv.TotalAmount.Sub(expectedTotal).Abs().GreaterThan(invoiceTolerance) {
		return fmt.Errorf("invoice %s: total_amount %s does not match subtotal+tax_amount %s within tolerance", inv.InvoiceID, inv.TotalAmount, expectedTotal)
	}
	if sumAmounts.Sub(inv.Subtotal).Abs().GreaterThan(invoiceTolerance) {
		return fmt.Errorf("invoice %s: sum of line item amounts %s does not match subtotal %s within tolerance", inv.InvoiceID, sumAmounts, inv.Subtotal)
	}
	return nil
}

// DeadLetterRecord is what the DLQ processor persists for every message
// that exhausted its redelivery budget.
type DeadLetterRecord struct {
	OriginTopic    string    `json:"origin_topic"`
	OriginStage    string    `json:"origin_stage"`
	DeliveryAttempt int      `json:"delivery_attempt"`
	FirstFailureAt time.Time `json:"first_failure_at"`
	LastError      string    `json:"last_error"`
	OriginalBody   []byte    `json:"original_body"`
}

// Validate enforces DeadLetterRecord's invariant: delivery_attempt must
// have reached the configured maximum for this record to exist at all.
func (d DeadLetterRecord) Validate(maxAttempts int) error {
	if d.DeliveryAttempt < maxAttempts {
		return fmt.Errorf("dead letter record: delivery_attempt %d is below max_attempts %d", d.DeliveryAttempt, maxAttempts)
	}
	return nil
}
