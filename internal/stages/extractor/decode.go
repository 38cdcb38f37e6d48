package extractor

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/invoiceflow/pipeline/internal/kernel/model"
)

// rawInvoice mirrors the JSON shape the LLM is instructed to return:
// plain numeric amounts, ISO dates as strings, null for absent optional
// fields. Decoding here is deliberately permissive on precision — the
// half-even rounding in round2 normalizes it before model.Invoice.Validate
// ever sees the values (spec §4.5 "Numeric rule").
type rawInvoice struct {
	InvoiceID        string           `json:"invoice_id"`
	VendorName       string           `json:"vendor_name"`
	VendorType       string           `json:"vendor_type"`
	InvoiceDate      string           `json:"invoice_date"`
	DueDate          string           `json:"due_date"`
	Currency         string           `json:"currency"`
	Subtotal         decimal.Decimal  `json:"subtotal"`
	TaxAmount        decimal.Decimal  `json:"tax_amount"`
	CommissionRate   *decimal.Decimal `json:"commission_rate"`
	CommissionAmount *decimal.Decimal `json:"commission_amount"`
	TotalAmount      decimal.Decimal  `json:"total_amount"`
	LineItems        []rawLineItem    `json:"line_items"`
}

type rawLineItem struct {
	LineNumber  int             `json:"line_number"`
	Description string          `json:"description"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Amount      decimal.Decimal `json:"amount"`
}

// round2 rounds d to two fractional digits using banker's rounding
// (round-half-to-even), as spec §4.5 requires before any cross-field check.
func round2(d decimal.Decimal) decimal.Decimal {
	return d.RoundBank(2)
}

// parseInvoice decodes the LLM's JSON text into a model.Invoice, rounding
// every amount to two digits half-even first. A JSON syntax error or a date
// that doesn't parse as YYYY-MM-DD is reported directly; cross-field
// validation is left to the caller via model.Invoice.Validate.
func parseInvoice(text string) (model.Invoice, error) {
	var raw rawInvoice
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return model.Invoice{}, fmt.Errorf("extractor: LLM response is not valid JSON: %w", err)
	}

	invoiceDate, err := time.Parse("2006-01-02", raw.InvoiceDate)
	if err != nil {
		return model.Invoice{}, fmt.Errorf("extractor: invoice_date %q is not YYYY-MM-DD: %w", raw.InvoiceDate, err)
	}
	dueDate, err := time.Parse("2006-01-02", raw.DueDate)
	if err != nil {
		return model.Invoice{}, fmt.Errorf("extractor: due_date %q is not YYYY-MM-DD: %w", raw.DueDate, err)
	}

	lineItems := make([]model.LineItem, 0, len(raw.LineItems))
	for _, li := range raw.LineItems {
		lineItems = append(lineItems, model.LineItem{
			LineNumber:  li.LineNumber,
			Description: li.Description,
			Quantity:    li.Quantity,
			UnitPrice:   round2(li.UnitPrice),
			Amount:      round2(li.Amount),
		})
	}

	var commissionRate, commissionAmount *decimal.Decimal
	if raw.CommissionRate != nil {
		r := round2(*raw.CommissionRate)
		commissionRate = &r
	}
	if raw.CommissionAmount != nil {
		a := round2(*raw.CommissionAmount)
		commissionAmount = &a
	}

	return model.Invoice{
		InvoiceID:        raw.InvoiceID,
		VendorName:       raw.VendorName,
		VendorType:       model.VendorType(raw.VendorType),
		InvoiceDate:      invoiceDate,
		DueDate:          dueDate,
		Currency:         raw.Currency,
		Subtotal:         round2(raw.Subtotal),
		TaxAmount:        round2(raw.TaxAmount),
		CommissionRate:   commissionRate,
		CommissionAmount: commissionAmount,
		TotalAmount:      round2(raw.TotalAmount),
		LineItems:        lineItems,
	}, nil
}
