package extractor

import (
	"fmt"

	"github.com/invoiceflow/pipeline/internal/kernel/model"
)

// prompts holds the vendor-specific instruction text spec §4.5 step 2 calls
// for, keyed by model.VendorType. Each is wrapped with the shared
// invariants every vendor's prompt must carry (date format, null handling,
// invoice id pattern).
var prompts = map[model.VendorType]string{
	model.VendorUberEats: "This is an Uber Eats merchant invoice. Order and delivery fee line items are itemized separately from the order subtotal.",
	model.VendorDoorDash: "This is a DoorDash merchant invoice. Commission is typically broken out as its own line under a 'Marketplace Fee' or similar heading.",
	model.VendorGrubhub:  "This is a Grubhub merchant invoice. Watch for a combined tax+fee line that must be split back into tax_amount and commission_amount.",
	model.VendorIfood:    "This is an iFood merchant invoice (Brazil). Amounts may use a comma as the decimal separator in the source image; always normalize to a period in the JSON output.",
	model.VendorRappi:    "This is a Rappi merchant invoice (Latin America). Currency is not always USD; read the currency code printed on the document.",
	model.VendorOther:    "This invoice's vendor platform could not be identified from its file name. Extract from the document's own letterhead and any vendor_name printed on it.",
}

// PromptFor returns the full extraction instruction for vendor: the shared
// output-format contract plus whatever vendor-specific guidance prompts
// carries.
func PromptFor(vendor model.VendorType) string {
	specific, ok := prompts[vendor]
	if !ok {
		specific = prompts[model.VendorOther]
	}
	return fmt.Sprintf(`%s

Return a single JSON object conforming to the provided schema. Rules:
- invoice_date and due_date must be "YYYY-MM-DD".
- All monetary amounts are plain numbers without currency symbols.
- Use null for any field you cannot read from the document; never guess.
- invoice_id must match this vendor's identifier pattern as printed on the document.
- line_items must contain at least one entry.`, specific)
}

// invoiceJSONSchema is the response JSON schema sent with every request
// (spec §4.5 step 3), describing the shape DecodeExtracted ultimately
// validates against.
var invoiceJSONSchema = map[string]any{
	"type":     "object",
	"required": []string{"invoice_id", "vendor_name", "vendor_type", "invoice_date", "due_date", "currency", "subtotal", "tax_amount", "total_amount", "line_items"},
	"properties": map[string]any{
		"invoice_id":         map[string]any{"type": "string"},
		"vendor_name":        map[string]any{"type": "string"},
		"vendor_type":        map[string]any{"type": "string", "enum": []string{"ubereats", "doordash", "grubhub", "ifood", "rappi", "other"}},
		"invoice_date":       map[string]any{"type": "string", "format": "date"},
		"due_date":           map[string]any{"type": "string", "format": "date"},
		"currency":           map[string]any{"type": "string"},
		"subtotal":           map[string]any{"type": "number"},
		"tax_amount":         map[string]any{"type": "number"},
		"commission_rate":    map[string]any{"type": []string{"number", "null"}},
		"commission_amount":  map[string]any{"type": []string{"number", "null"}},
		"total_amount":       map[string]any{"type": "number"},
		"line_items": map[string]any{
			"type":     "array",
			"minItems": 1,
			"items": map[string]any{
				"type":     "object",
				"required": []string{"line_number", "description", "quantity", "unit_price", "amount"},
				"properties": map[string]any{
					"line_number": map[string]any{"type": "integer"},
					"description": map[string]any{"type": "string"},
					"quantity":    map[string]any{"type": "integer"},
					"unit_price":  map[string]any{"type": "number"},
					"amount":      map[string]any{"type": "number"},
				},
			},
		},
	},
}
