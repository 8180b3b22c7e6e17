package inventory

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, d *DrugStockRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*DrugStockRecord, error)
	GetByName(ctx context.Context, name string) (*DrugStockRecord, error)
	Update(ctx context.Context, d *DrugStockRecord) error
	// CompareAndSwapStock persists new stock columns only if the row still
	// holds the old values. Returns false when another writer got there
	// first.
	CompareAndSwapStock(ctx context.Context, id uuid.UUID, old, new StockLevel) (bool, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Retire(ctx context.Context, id uuid.UUID) error
	Search(ctx context.Context, params map[string]string, limit, offset int) ([]*DrugStockRecord, int, error)
	// ActiveNames lists the names of the owner's active drugs that have
	// stock on hand.
	ActiveNames(ctx context.Context) ([]string, error)
}

// HistoryChecker reports whether a drug is referenced by dispensing
// history. Implemented by the dispensing repository; used to decide
// between soft and hard delete.
type HistoryChecker interface {
	HasHistory(ctx context.Context, drugID uuid.UUID) (bool, error)
}
