// Package extractor implements Stage C: it invokes the vision LLM with a
// vendor-specific prompt, validates the response against the Invoice
// schema, and persists the extraction (spec §4.5).
package extractor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/invoiceflow/pipeline/internal/config"
	"github.com/invoiceflow/pipeline/internal/kernel/envelope"
	"github.com/invoiceflow/pipeline/internal/kernel/errs"
	"github.com/invoiceflow/pipeline/internal/kernel/events"
	"github.com/invoiceflow/pipeline/internal/kernel/model"
	"github.com/invoiceflow/pipeline/internal/kernel/ports"
	"github.com/invoiceflow/pipeline/internal/logger"
	"github.com/invoiceflow/pipeline/internal/retry"
	"github.com/invoiceflow/pipeline/internal/runtime"
	"github.com/invoiceflow/pipeline/internal/stages/extractor/llm"
)

// LLM is the subset of llm.Client the stage depends on, so tests can
// substitute a fake.
type LLM interface {
	ExtractInvoice(ctx context.Context, prompt string, imageBytes []byte, mediaType string, jsonSchema map[string]any) (string, error)
}

var _ LLM = (*llm.Client)(nil)

// llmTimeout bounds a single LLM call, per spec §4.5 step 4.
const llmTimeout = 120 * time.Second

// Handler builds the Stage C StageHandler.
func Handler(store ports.ObjectStore, bus ports.Bus, client LLM, cfg *config.Config, log logger.Logger) runtime.StageHandler {
	policy := retry.LLMPolicy()
	return func(ctx context.Context, env envelope.Envelope) runtime.Result {
		classified, err := events.DecodeClassified(env.Body)
		if err != nil {
			return runtime.Permanent(err)
		}
		stageLog := logger.FromContext(ctx, log).With("invoice_id", classified.InvoiceID, "vendor", classified.Vendor, "stage", "extractor")

		page := lowestIndexPage(classified.Pages)
		imageBytes, err := store.Get(ctx, page.Bucket, page.Name)
		if err != nil {
			if errors.Is(err, ports.ErrNotFound) {
				return runtime.Permanent(fmt.Errorf("extractor: page %s/%s not found", page.Bucket, page.Name))
			}
			return classifyAdapterErr(err)
		}

		prompt := PromptFor(classified.Vendor)

		var text string
		llmErr := policy.Do(ctx, isTransientLLMErr, func(ctx context.Context) error {
			callCtx, cancel := context.WithTimeout(ctx, llmTimeout)
			defer cancel()
			var err error
			text, err = client.ExtractInvoice(callCtx, prompt, imageBytes, "image/png", invoiceJSONSchema)
			return err
		})
		if llmErr != nil {
			if errs.KindOf(llmErr) == errs.Transient {
				return runtime.Transient(llmErr)
			}
			quarantineError(ctx, store, cfg, classified.InvoiceID, "llm_rejected", llmErr, stageLog)
			return runtime.Permanent(llmErr)
		}

		invoice, err := parseInvoice(text)
		if err != nil {
			quarantineError(ctx, store, cfg, classified.InvoiceID, "unparseable_response", err, stageLog)
			return runtime.Permanent(err)
		}

		// Vendor-override invariance (spec §8 property 4): Stage B's
		// classification is authoritative regardless of what the model
		// returned.
		invoice.VendorType = classified.Vendor

		if err := invoice.Validate(); err != nil {
			quarantineError(ctx, store, cfg, classified.InvoiceID, "validation_failed", err, stageLog)
			return runtime.Permanent(err)
		}

		body, err := jsonMarshalInvoice(invoice)
		if err != nil {
			return runtime.Permanent(fmt.Errorf("extractor: marshal extraction: %w", err))
		}
		extractedPath := model.ExtractedPath(classified.Vendor, classified.InvoiceID)
		if _, err := store.Put(ctx, cfg.Buckets.Extracted, extractedPath, body, "application/json"); err != nil {
			return classifyAdapterErr(err)
		}

		extracted := events.Extracted{
			InvoiceID:  classified.InvoiceID,
			Vendor:     classified.Vendor,
			Source:     model.ObjectRef{Bucket: page.Bucket, Name: page.Name},
			Extraction: invoice,
		}
		eventBody, err := extracted.Encode()
		if err != nil {
			return runtime.Permanent(fmt.Errorf("extractor: encode Extracted event: %w", err))
		}
		if _, err := bus.Publish(ctx, cfg.Topics.Extracted, eventBody, map[string]string{
			"invoice_id": classified.InvoiceID,
			"vendor":     string(classified.Vendor),
		}); err != nil {
			return classifyAdapterErr(err)
		}

		stageLog.Infof("extractor: extracted %s", classified.InvoiceID)
		return runtime.Ok()
	}
}

func lowestIndexPage(pages []model.PageRef) model.PageRef {
	lowest := pages[0]
	for _, p := range pages[1:] {
		if p.PageIndex < lowest.PageIndex {
			lowest = p
		}
	}
	return lowest
}

// isTransientLLMErr is the retry.Policy predicate: only Transient-kind
// errors from the llm package are worth another attempt.
func isTransientLLMErr(err error) bool {
	return errs.KindOf(err) == errs.Transient
}

func classifyAdapterErr(err error) runtime.Result {
	if errs.KindOf(err) == errs.Permanent {
		return runtime.Permanent(err)
	}
	return runtime.Transient(err)
}

// quarantineError writes the diagnostics sidecar spec §4.5 calls for:
// failed/extract/<invoice_id>.error.json.
func quarantineError(ctx context.Context, store ports.ObjectStore, cfg *config.Config, invoiceID, reason string, cause error, log logger.Logger) {
	path := fmt.Sprintf("extract/%s.error.json", invoiceID)
	sidecar, err := jsonMarshalError(reason, cause)
	if err != nil {
		log.Errorf("extractor: marshal diagnostics sidecar for %s: %v", invoiceID, err)
		return
	}
	if _, err := store.Put(ctx, cfg.Buckets.Failed, path, sidecar, "application/json"); err != nil {
		log.Errorf("extractor: write diagnostics sidecar for %s: %v", invoiceID, err)
	}
}
