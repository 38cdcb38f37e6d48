// Package memrepo is an in-memory warehouse.Repository double, used by
// Stage D's tests (spec §9: "interface abstraction ... so tests can
// substitute in-memory doubles").
package memrepo

import (
	"context"
	"sync"

	"github.com/invoiceflow/pipeline/internal/stages/warehouse"
)

// Repository is a concurrency-safe, process-local warehouse.Repository.
type Repository struct {
	mu        sync.Mutex
	byInvoice map[string]warehouse.Record
	inserts   int
}

// New returns an empty Repository.
func New() *Repository {
	return &Repository{byInvoice: make(map[string]warehouse.Record)}
}

var _ warehouse.Repository = (*Repository)(nil)

func (r *Repository) FindRowID(ctx context.Context, invoiceID string) (string, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byInvoice[invoiceID]
	if !ok {
		return "", false, nil
	}
	return rec.RowID, true, nil
}

func (r *Repository) Insert(ctx context.Context, rec warehouse.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byInvoice[rec.Invoice.InvoiceID] = rec
	r.inserts++
	return nil
}

// Inserts reports how many times Insert has actually been called, so tests
// can assert a redelivered message didn't write a second row (spec §8
// property 1, S2 scenario).
func (r *Repository) Inserts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inserts
}

// Get returns the stored record for invoiceID, for test assertions.
func (r *Repository) Get(invoiceID string) (warehouse.Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byInvoice[invoiceID]
	return rec, ok
}
