// Package events defines the StageEvent payload variants published between
// stages, each with its own decoder that enforces its field constraints.
// A decode failure is a *SchemaError, which every stage reports as a
// Permanent outcome — it can never succeed by retrying the same bytes.
// SchemaError is not a kernel/errs Error, so errs.KindOf does not classify
// it as Permanent; stages map it to runtime.Permanent directly.
package events

import (
	"encoding/json"
	"fmt"

	"github.com/invoiceflow/pipeline/internal/kernel/model"
)

// SchemaError marks a payload that failed to decode or validate against its
// expected shape. Callers treat it as Permanent.
type SchemaError struct {
	Variant string
	Err     error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema error decoding %s: %v", e.Variant, e.Err)
}

func (e *SchemaError) Unwrap() error { return e.Err }

// Uploaded is Stage A's input: a storage notification for a freshly landed
// container image.
type Uploaded struct {
	Source model.SourceObject `json:"source"`
}

// DecodeUploaded parses and validates an Uploaded payload.
func DecodeUploaded(data []byte) (Uploaded, error) {
	var u Uploaded
	if err := json.Unmarshal(data, &u); err != nil {
		return Uploaded{}, &SchemaError{Variant: "Uploaded", Err: err}
	}
	if err := u.Source.Validate(); err != nil {
		return Uploaded{}, &SchemaError{Variant: "Uploaded", Err: err}
	}
	return u, nil
}

// Encode serializes u.
func (u Uploaded) Encode() ([]byte, error) { return json.Marshal(u) }

// Converted is Stage A's output / Stage B's input.
type Converted struct {
	InvoiceID string           `json:"invoice_id"`
	Source    model.ObjectRef  `json:"source"`
	Pages     []model.PageRef  `json:"pages"`
}

// DecodeConverted parses and validates a Converted payload.
func DecodeConverted(data []byte) (Converted, error) {
	var c Converted
	if err := json.Unmarshal(data, &c); err != nil {
		return Converted{}, &SchemaError{Variant: "Converted", Err: err}
	}
	if c.InvoiceID == "" {
		return Converted{}, &SchemaError{Variant: "Converted", Err: fmt.Errorf("invoice_id must not be empty")}
	}
	if len(c.Pages) == 0 {
		return Converted{}, &SchemaError{Variant: "Converted", Err: fmt.Errorf("pages must not be empty")}
	}
	for _, p := range c.Pages {
		if err := p.Validate(); err != nil {
			return Converted{}, &SchemaError{Variant: "Converted", Err: err}
		}
	}
	return c, nil
}

func (c Converted) Encode() ([]byte, error) { return json.Marshal(c) }

// Classified is Stage B's output / Stage C's input.
type Classified struct {
	InvoiceID string          `json:"invoice_id"`
	Vendor    model.VendorType `json:"vendor"`
	Pages     []model.PageRef `json:"pages"`
}

// DecodeClassified parses and validates a Classified payload.
func DecodeClassified(data []byte) (Classified, error) {
	var c Classified
	if err := json.Unmarshal(data, &c); err != nil {
		return Classified{}, &SchemaError{Variant: "Classified", Err: err}
	}
	if c.InvoiceID == "" {
		return Classified{}, &SchemaError{Variant: "Classified", Err: fmt.Errorf("invoice_id must not be empty")}
	}
	if !c.Vendor.Valid() {
		return Classified{}, &SchemaError{Variant: "Classified", Err: fmt.Errorf("invalid vendor %q", c.Vendor)}
	}
	if len(c.Pages) == 0 {
		return Classified{}, &SchemaError{Variant: "Classified", Err: fmt.Errorf("pages must not be empty")}
	}
	for _, p := range c.Pages {
		if err := p.Validate(); err != nil {
			return Classified{}, &SchemaError{Variant: "Classified", Err: err}
		}
	}
	return c, nil
}

func (c Classified) Encode() ([]byte, error) { return json.Marshal(c) }

// Extracted is Stage C's output / Stage D's input.
type Extracted struct {
	InvoiceID string          `json:"invoice_id"`
	Vendor    model.VendorType `json:"vendor"`
	Source    model.ObjectRef `json:"source"`
	Extraction model.Invoice  `json:"extraction"`
}

// DecodeExtracted parses and validates an Extracted payload.
func DecodeExtracted(data []byte) (Extracted, error) {
	var e Extracted
	if err := json.Unmarshal(data, &e); err != nil {
		return Extracted{}, &SchemaError{Variant: "Extracted", Err: err}
	}
	if e.InvoiceID == "" {
		return Extracted{}, &SchemaError{Variant: "Extracted", Err: fmt.Errorf("invoice_id must not be empty")}
	}
	if !e.Vendor.Valid() {
		return Extracted{}, &SchemaError{Variant: "Extracted", Err: fmt.Errorf("invalid vendor %q", e.Vendor)}
	}
	if err := e.Extraction.Validate(); err != nil {
		return Extracted{}, &SchemaError{Variant: "Extracted", Err: err}
	}
	return e, nil
}

func (e Extracted) Encode() ([]byte, error) { return json.Marshal(e) }

// Loaded is Stage D's output.
type Loaded struct {
	InvoiceID string `json:"invoice_id"`
	RowID     string `json:"row_id"`
	Table     string `json:"table"`
}

// DecodeLoaded parses and validates a Loaded payload.
func DecodeLoaded(data []byte) (Loaded, error) {
	var l Loaded
	if err := json.Unmarshal(data, &l); err != nil {
		return Loaded{}, &SchemaError{Variant: "Loaded", Err: err}
	}
	if l.InvoiceID == "" || l.RowID == "" || l.Table == "" {
		return Loaded{}, &SchemaError{Variant: "Loaded", Err: fmt.Errorf("invoice_id, row_id and table must all be set")}
	}
	return l, nil
}

func (l Loaded) Encode() ([]byte, error) { return json.Marshal(l) }
