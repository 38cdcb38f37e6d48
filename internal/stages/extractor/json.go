package extractor

import (
	"encoding/json"
	"time"

	"github.com/invoiceflow/pipeline/internal/kernel/model"
)

func jsonMarshalInvoice(inv model.Invoice) ([]byte, error) {
	return json.Marshal(inv)
}

// errorSidecar is the diagnostics payload spec §4.5 writes alongside a
// permanently-failed extraction.
type errorSidecar struct {
	Reason    string    `json:"reason"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

func jsonMarshalError(reason string, cause error) ([]byte, error) {
	return json.Marshal(errorSidecar{Reason: reason, Error: cause.Error(), Timestamp: time.Now().UTC()})
}
