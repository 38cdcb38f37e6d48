// Package normalizer implements Stage A: it converts one multi-page
// container image in the landing area into N page images in the processed
// area and emits a Converted event (spec §4.3).
package normalizer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"
	"time"

	"github.com/invoiceflow/pipeline/internal/config"
	"github.com/invoiceflow/pipeline/internal/containerimage"
	"github.com/invoiceflow/pipeline/internal/kernel/envelope"
	"github.com/invoiceflow/pipeline/internal/kernel/errs"
	"github.com/invoiceflow/pipeline/internal/kernel/events"
	"github.com/invoiceflow/pipeline/internal/kernel/model"
	"github.com/invoiceflow/pipeline/internal/kernel/ports"
	"github.com/invoiceflow/pipeline/internal/logger"
	"github.com/invoiceflow/pipeline/internal/runtime"
)

// Handler builds the Stage A StageHandler over store/bus and the shared
// configuration.
func Handler(store ports.ObjectStore, bus ports.Bus, cfg *config.Config, log logger.Logger) runtime.StageHandler {
	return func(ctx context.Context, env envelope.Envelope) runtime.Result {
		uploaded, decodeErr := events.DecodeUploaded(env.Body)
		if decodeErr != nil {
			quarantineRaw(ctx, store, cfg, env.Body, log)
			return runtime.Permanent(decodeErr)
		}
		source := uploaded.Source
		invoiceID := DeriveInvoiceID(source.Name)
		stageLog := logger.FromContext(ctx, log).With("invoice_id", invoiceID, "stage", "normalizer")

		data, err := store.Get(ctx, source.Bucket, source.Name)
		if err != nil {
			if errors.Is(err, ports.ErrNotFound) {
				return runtime.Permanent(fmt.Errorf("normalizer: source object %s/%s not found", source.Bucket, source.Name))
			}
			return classify(err)
		}

		pages, err := containerimage.Split(data)
		if err != nil || len(pages) == 0 {
			if err == nil {
				err = fmt.Errorf("normalizer: zero pages decoded from %s/%s", source.Bucket, source.Name)
			}
			stageLog.Errorf("normalizer: decode failure, quarantining: %v", err)
			quarantine(ctx, store, cfg, "decode_error", source, data, log)
			return runtime.Permanent(err)
		}

		pageRefs := make([]model.PageRef, 0, len(pages))
		for i, page := range pages {
			var buf bytes.Buffer
			if err := png.Encode(&buf, page); err != nil {
				return runtime.Permanent(fmt.Errorf("normalizer: encode page %d: %w", i, err))
			}
			name := model.ProcessedPagePath(invoiceID, i)
			if _, err := store.Put(ctx, cfg.Buckets.Processed, name, buf.Bytes(), "image/png"); err != nil {
				return classify(err)
			}
			pageRefs = append(pageRefs, model.PageRef{
				Bucket:    cfg.Buckets.Processed,
				Name:      name,
				PageIndex: i,
			})
		}

		converted := events.Converted{
			InvoiceID: invoiceID,
			Source:    model.ObjectRef{Bucket: source.Bucket, Name: source.Name},
			Pages:     pageRefs,
		}
		body, err := converted.Encode()
		if err != nil {
			return runtime.Permanent(fmt.Errorf("normalizer: encode Converted event: %w", err))
		}
		if _, err := bus.Publish(ctx, cfg.Topics.Converted, body, map[string]string{"invoice_id": invoiceID}); err != nil {
			return classify(err)
		}
		stageLog.Infof("normalizer: converted %d page(s) for %s", len(pageRefs), invoiceID)
		return runtime.Ok()
	}
}

// classify maps an adapter error carrying an errs.Kind onto a runtime
// outcome. Anything unclassified is treated as Transient, same default as
// errs.KindOf.
func classify(err error) runtime.Result {
	if errs.KindOf(err) == errs.Permanent {
		return runtime.Permanent(err)
	}
	return runtime.Transient(err)
}

// quarantine copies a failed source object's bytes to
// failed/<reason>/<date>/<name>; the source object itself is left in place.
func quarantine(ctx context.Context, store ports.ObjectStore, cfg *config.Config, reason string, source model.SourceObject, data []byte, log logger.Logger) {
	date := time.Now().UTC().Format("2006-01-02")
	path := model.FailedPath(reason, date, source.Name)
	if _, err := store.Put(ctx, cfg.Buckets.Failed, path, data, source.ContentType); err != nil {
		log.Errorf("normalizer: failed to quarantine %s/%s: %v", source.Bucket, source.Name, err)
	}
}

// quarantineRaw handles the case where the Uploaded event itself couldn't
// be decoded: there is no trustworthy source reference to move, so the raw
// event bytes are archived for operator inspection instead.
func quarantineRaw(ctx context.Context, store ports.ObjectStore, cfg *config.Config, raw []byte, log logger.Logger) {
	date := time.Now().UTC().Format("2006-01-02")
	name := fmt.Sprintf("uploaded-event-%d.json", time.Now().UTC().UnixNano())
	path := model.FailedPath("undecodable_event", date, name)
	if _, err := store.Put(ctx, cfg.Buckets.Failed, path, raw, "application/json"); err != nil {
		log.Errorf("normalizer: failed to quarantine undecodable event: %v", err)
	}
}
