package warehouse

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/invoiceflow/pipeline/internal/config"
	"github.com/invoiceflow/pipeline/internal/kernel/envelope"
	"github.com/invoiceflow/pipeline/internal/kernel/errs"
	"github.com/invoiceflow/pipeline/internal/kernel/events"
	"github.com/invoiceflow/pipeline/internal/kernel/model"
	"github.com/invoiceflow/pipeline/internal/kernel/ports"
	"github.com/invoiceflow/pipeline/internal/logger"
	"github.com/invoiceflow/pipeline/internal/retry"
	"github.com/invoiceflow/pipeline/internal/runtime"
)

// Handler builds the Stage D StageHandler.
func Handler(store ports.ObjectStore, bus ports.Bus, repo Repository, cfg *config.Config, log logger.Logger) runtime.StageHandler {
	policy := retry.WarehousePolicy()
	return func(ctx context.Context, env envelope.Envelope) runtime.Result {
		extracted, err := events.DecodeExtracted(env.Body)
		if err != nil {
			return runtime.Permanent(err)
		}
		if err := extracted.Extraction.Validate(); err != nil {
			return runtime.Permanent(fmt.Errorf("warehouse: re-validation failed: %w", err))
		}
		stageLog := logger.FromContext(ctx, log).With("invoice_id", extracted.InvoiceID, "stage", "warehouse")

		rowID, existed, err := repo.FindRowID(ctx, extracted.InvoiceID)
		if err != nil {
			return classifyAdapterErr(err)
		}

		if existed {
			stageLog.Warnf("warehouse: duplicate insert skipped for %s (duplicate=true)", extracted.InvoiceID)
		} else {
			id, err := uuid.NewV7()
			if err != nil {
				return runtime.Permanent(fmt.Errorf("warehouse: generate row id: %w", err))
			}
			rowID = id.String()

			rec := Record{
				RowID:               rowID,
				Invoice:             extracted.Extraction,
				SourceFile:          extracted.Source.Name,
				ExtractionModel:     cfg.LLM.Model,
				ExtractionLatencyMs: 0,
			}
			insertErr := policy.Do(ctx, isTransientRepoErr, func(ctx context.Context) error {
				return repo.Insert(ctx, rec)
			})
			if insertErr != nil {
				return classifyAdapterErr(insertErr)
			}
		}

		now := time.Now().UTC()
		archivePath := model.ArchivePath(now.Year(), int(now.Month()), now.Day(), extracted.Source.Name)
		if _, err := store.Copy(ctx, extracted.Source.Bucket, extracted.Source.Name, cfg.Buckets.Archive, archivePath); err != nil {
			return classifyAdapterErr(err)
		}

		loaded := events.Loaded{InvoiceID: extracted.InvoiceID, RowID: rowID, Table: "invoices"}
		body, err := loaded.Encode()
		if err != nil {
			return runtime.Permanent(fmt.Errorf("warehouse: encode Loaded event: %w", err))
		}
		if _, err := bus.Publish(ctx, cfg.Topics.Loaded, body, map[string]string{"invoice_id": extracted.InvoiceID}); err != nil {
			return classifyAdapterErr(err)
		}

		stageLog.Infof("warehouse: loaded %s as row %s", extracted.InvoiceID, rowID)
		return runtime.Ok()
	}
}

func isTransientRepoErr(err error) bool {
	return errs.KindOf(err) == errs.Transient
}

func classifyAdapterErr(err error) runtime.Result {
	if errs.KindOf(err) == errs.Permanent {
		return runtime.Permanent(err)
	}
	return runtime.Transient(err)
}
