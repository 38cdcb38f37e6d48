// Package classifier implements Stage B: it determines the vendor for a
// Converted invoice, copies its pages into a vendor-partitioned area, and
// emits a Classified event (spec §4.4).
package classifier

import (
	"context"

	"github.com/invoiceflow/pipeline/internal/config"
	"github.com/invoiceflow/pipeline/internal/kernel/envelope"
	"github.com/invoiceflow/pipeline/internal/kernel/errs"
	"github.com/invoiceflow/pipeline/internal/kernel/events"
	"github.com/invoiceflow/pipeline/internal/kernel/model"
	"github.com/invoiceflow/pipeline/internal/kernel/ports"
	"github.com/invoiceflow/pipeline/internal/logger"
	"github.com/invoiceflow/pipeline/internal/runtime"
)

// ContentClassifier is the optional, non-authoritative fallback spec §4.4
// allows: it may propose a vendor for invoices the regex couldn't place,
// but per spec it "may not change a matched primary result". The pipeline
// ships a single trivial implementation that always abstains
// (model.VendorOther, false).
type ContentClassifier interface {
	// Classify inspects page bytes and returns (vendor, true) if it can
	// propose one, or (model.VendorOther, false) to abstain.
	Classify(ctx context.Context, pages [][]byte) (model.VendorType, bool)
}

// NoopContentClassifier always abstains. It exists so the pipeline carries
// the interface seam spec §4.4/§9 calls out without inventing an
// unauthorized image-content heuristic.
type NoopContentClassifier struct{}

func (NoopContentClassifier) Classify(ctx context.Context, pages [][]byte) (model.VendorType, bool) {
	return model.VendorOther, false
}

// Handler builds the Stage B StageHandler.
func Handler(store ports.ObjectStore, bus ports.Bus, content ContentClassifier, cfg *config.Config, log logger.Logger) runtime.StageHandler {
	if content == nil {
		content = NoopContentClassifier{}
	}
	return func(ctx context.Context, env envelope.Envelope) runtime.Result {
		converted, err := events.DecodeConverted(env.Body)
		if err != nil {
			return runtime.Permanent(err)
		}
		stageLog := logger.FromContext(ctx, log).With("invoice_id", converted.InvoiceID, "stage", "classifier")

		vendor := model.DetectVendor(converted.InvoiceID)
		if vendor == model.VendorOther {
			// Fallback is advisory only; per spec it may propose a vendor
			// here but must never override an actual regex match, which we
			// already know didn't happen in this branch.
			if proposed, ok := content.Classify(ctx, nil); ok {
				vendor = proposed
			}
		}

		pageRefs := make([]model.PageRef, 0, len(converted.Pages))
		for _, p := range converted.Pages {
			dstName := model.ClassifiedPagePath(vendor, converted.InvoiceID, p.PageIndex)
			if _, err := store.Copy(ctx, p.Bucket, p.Name, cfg.Buckets.Classified, dstName); err != nil {
				if errs.KindOf(err) == errs.Permanent {
					return runtime.Permanent(err)
				}
				return runtime.Transient(err)
			}
			pageRefs = append(pageRefs, model.PageRef{
				Bucket:    cfg.Buckets.Classified,
				Name:      dstName,
				PageIndex: p.PageIndex,
			})
		}

		classified := events.Classified{
			InvoiceID: converted.InvoiceID,
			Vendor:    vendor,
			Pages:     pageRefs,
		}
		body, err := classified.Encode()
		if err != nil {
			return runtime.Permanent(err)
		}
		if _, err := bus.Publish(ctx, cfg.Topics.Classified, body, map[string]string{
			"invoice_id": converted.InvoiceID,
			"vendor":     string(vendor),
		}); err != nil {
			if errs.KindOf(err) == errs.Permanent {
				return runtime.Permanent(err)
			}
			return runtime.Transient(err)
		}
		stageLog.Infof("classifier: classified %s as %s", converted.InvoiceID, vendor)
		return runtime.Ok()
	}
}
