package warehouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresRepository is the Repository the pipeline ships with, grounded
// directly on the teacher's db/repository package: one *sql.DB, plain SQL,
// a single transaction per write.
type PostgresRepository struct {
	db *sql.DB
}

// Connect opens and pings a Postgres connection, exactly like the teacher's
// repository.ConnectDB.
func Connect(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("warehouse: sql.Open: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("warehouse: db.Ping: %w", err)
	}
	return db, nil
}

// NewPostgresRepository wraps an already-connected db.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

var _ Repository = (*PostgresRepository)(nil)

func (r *PostgresRepository) FindRowID(ctx context.Context, invoiceID string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	var rowID string
	err := r.db.QueryRowContext(ctx, `SELECT row_id FROM invoices WHERE invoice_id = $1`, invoiceID).Scan(&rowID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("warehouse: select invoices: %w", err)
	}
	return rowID, true, nil
}

func (r *PostgresRepository) Insert(ctx context.Context, rec Record) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("warehouse: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }() // no-op once committed

	inv := rec.Invoice
	now := time.Now().UTC()

	if _, err := tx.ExecContext(ctx, `
INSERT INTO invoices (
  row_id, invoice_id, vendor_name, vendor_type, invoice_date, due_date, currency,
  subtotal, tax_amount, commission_rate, commission_amount, total_amount,
  line_items_count, source_file, extraction_model, extraction_latency_ms,
  confidence_score, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$18)
`,
		rec.RowID, inv.InvoiceID, inv.VendorName, string(inv.VendorType), inv.InvoiceDate, inv.DueDate, inv.Currency,
		inv.Subtotal, inv.TaxAmount, inv.CommissionRate, inv.CommissionAmount, inv.TotalAmount,
		len(inv.LineItems), rec.SourceFile, rec.ExtractionModel, rec.ExtractionLatencyMs,
		rec.ConfidenceScore, now,
	); err != nil {
		return fmt.Errorf("warehouse: insert invoices: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO line_items (invoice_id, line_number, description, quantity, unit_price, amount, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
`)
	if err != nil {
		return fmt.Errorf("warehouse: prepare line_items: %w", err)
	}
	defer stmt.Close()

	for _, li := range inv.LineItems {
		if _, err := stmt.ExecContext(ctx, inv.InvoiceID, li.LineNumber, li.Description, li.Quantity, li.UnitPrice, li.Amount, now); err != nil {
			return fmt.Errorf("warehouse: insert line_items: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
INSERT INTO metrics (invoice_id, vendor_type, source_file, extraction_model, extraction_latency_ms, confidence_score, success, error_message, created_at)
VALUES ($1,$2,$3,$4,$5,$6,true,NULL,$7)
`,
		inv.InvoiceID, string(inv.VendorType), rec.SourceFile, rec.ExtractionModel, rec.ExtractionLatencyMs, rec.ConfidenceScore, now,
	); err != nil {
		return fmt.Errorf("warehouse: insert metrics: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("warehouse: commit: %w", err)
	}
	return nil
}
