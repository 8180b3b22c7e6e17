package inventory

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/clinichq/clinic/internal/platform/apperr"
)

// DrugStockRecord maps to the drug_inventory / org_drug_inventory tables:
// one catalogued drug for one owner.
type DrugStockRecord struct {
	ID        uuid.UUID       `db:"id" json:"id"`
	Name      string          `db:"name" json:"name"`
	UnitPrice decimal.Decimal `db:"unit_price" json:"unit_price"`
	Status    string          `db:"status" json:"status"`
	// Flat representation: total dispensable units. Authoritative only
	// when Packs is nil.
	StockUnits int `db:"stock_units" json:"stock_units"`
	// Decomposed representation: whole sealed packs plus loose units.
	Packs     *PackStock `json:"packs,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
}

// PackStock tracks inventory as whole sealed packs plus loose units.
type PackStock struct {
	WholePacks   int `db:"whole_packs" json:"whole_packs"`
	LooseUnits   int `db:"loose_units" json:"loose_units"`
	UnitsPerPack int `db:"units_per_pack" json:"units_per_pack"`
}

const (
	StatusActive  = "active"
	StatusRetired = "retired"
)

// TotalUnits returns the dispensable-unit total under either
// representation.
func (d *DrugStockRecord) TotalUnits() int {
	if d.Packs != nil {
		return d.Packs.WholePacks*d.Packs.UnitsPerPack + d.Packs.LooseUnits
	}
	return d.StockUnits
}

// Decomposed reports whether the record uses the pack/loose
// representation.
func (d *DrugStockRecord) Decomposed() bool {
	return d.Packs != nil
}

// Direction of a stock adjustment.
type Direction string

const (
	DirectionSubtract Direction = "subtract"
	DirectionAdd      Direction = "add"
)

// SubtractOptions control flat-mode underflow handling. Clamp floors the
// count at zero instead of failing; it has no effect on decomposed
// records, which always fail on underflow.
type SubtractOptions struct {
	Clamp bool
}

// Subtract removes qty dispensable units from the record in place.
// Decomposed records drain loose units first, then open the minimum
// number of whole packs to cover the shortfall, folding the opened
// yield back into loose units. The record is left unchanged on error.
func (d *DrugStockRecord) Subtract(qty int, opts SubtractOptions) error {
	if qty < 0 {
		return fmt.Errorf("negative quantity %d: %w", qty, apperr.ErrValidation)
	}
	if d.Packs != nil {
		p := d.Packs
		total := p.WholePacks*p.UnitsPerPack + p.LooseUnits
		if qty > total {
			return fmt.Errorf("drug %s: need %d units, have %d: %w",
				d.Name, qty, total, apperr.ErrInsufficientStock)
		}
		if p.LooseUnits >= qty {
			p.LooseUnits -= qty
			return nil
		}
		shortfall := qty - p.LooseUnits
		packsToOpen := (shortfall + p.UnitsPerPack - 1) / p.UnitsPerPack
		p.WholePacks -= packsToOpen
		p.LooseUnits += packsToOpen*p.UnitsPerPack - qty
		return nil
	}

	if qty > d.StockUnits {
		if opts.Clamp {
			d.StockUnits = 0
			return nil
		}
		return fmt.Errorf("drug %s: need %d units, have %d: %w",
			d.Name, qty, d.StockUnits, apperr.ErrInsufficientStock)
	}
	d.StockUnits -= qty
	return nil
}

// Add restores qty dispensable units. Decomposed records gain loose
// units only; there is no automatic re-packing into whole packs.
func (d *DrugStockRecord) Add(qty int) error {
	if qty < 0 {
		return fmt.Errorf("negative quantity %d: %w", qty, apperr.ErrValidation)
	}
	if d.Packs != nil {
		d.Packs.LooseUnits += qty
		return nil
	}
	d.StockUnits += qty
	return nil
}

// StockLevel is a snapshot of the stock columns used for compare-and-swap
// persistence of a mutation.
type StockLevel struct {
	StockUnits int
	Packs      *PackStock
}

// Level captures the current stock columns.
func (d *DrugStockRecord) Level() StockLevel {
	lvl := StockLevel{StockUnits: d.StockUnits}
	if d.Packs != nil {
		p := *d.Packs
		lvl.Packs = &p
	}
	return lvl
}
