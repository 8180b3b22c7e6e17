package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/clinichq/clinic/internal/domain/scope"
	"github.com/clinichq/clinic/internal/platform/apperr"
)

// casAttempts bounds the retry loop around the stock compare-and-swap.
const casAttempts = 3

type Service struct {
	drugs   Repository
	history HistoryChecker
}

func NewService(drugs Repository, history HistoryChecker) *Service {
	return &Service{drugs: drugs, history: history}
}

func (s *Service) CreateDrug(ctx context.Context, d *DrugStockRecord) error {
	if err := requireManageInventory(ctx); err != nil {
		return err
	}
	if err := validateDrug(d); err != nil {
		return err
	}
	if d.Status == "" {
		d.Status = StatusActive
	}
	return s.drugs.Create(ctx, d)
}

func (s *Service) GetDrug(ctx context.Context, id uuid.UUID) (*DrugStockRecord, error) {
	return s.drugs.GetByID(ctx, id)
}

func (s *Service) SearchDrugs(ctx context.Context, params map[string]string, limit, offset int) ([]*DrugStockRecord, int, error) {
	return s.drugs.Search(ctx, params, limit, offset)
}

// InStockNames lists the active, in-stock drug names for catalog-aware
// AI intake.
func (s *Service) InStockNames(ctx context.Context) ([]string, error) {
	return s.drugs.ActiveNames(ctx)
}

func (s *Service) UpdateDrug(ctx context.Context, d *DrugStockRecord) error {
	if err := requireManageInventory(ctx); err != nil {
		return err
	}
	if err := validateDrug(d); err != nil {
		return err
	}
	return s.drugs.Update(ctx, d)
}

// DeleteDrug removes a drug from the catalogue. Drugs referenced by
// dispensing history are retired instead, so historical records keep a
// resolvable reference.
func (s *Service) DeleteDrug(ctx context.Context, id uuid.UUID) error {
	if err := requireManageInventory(ctx); err != nil {
		return err
	}
	if _, err := s.drugs.GetByID(ctx, id); err != nil {
		return err
	}
	referenced, err := s.history.HasHistory(ctx, id)
	if err != nil {
		return err
	}
	if referenced {
		return s.drugs.Retire(ctx, id)
	}
	return s.drugs.Delete(ctx, id)
}

// AdjustStock applies a stock mutation. The new level is persisted with a
// compare-and-swap against the observed one, retried a bounded number of
// times so concurrent dispensing of the same drug cannot lose an update.
func (s *Service) AdjustStock(ctx context.Context, drugID uuid.UUID, qty int, dir Direction, opts SubtractOptions) error {
	if qty < 0 {
		return fmt.Errorf("quantity must not be negative: %w", apperr.ErrValidation)
	}

	for attempt := 0; attempt < casAttempts; attempt++ {
		d, err := s.drugs.GetByID(ctx, drugID)
		if err != nil {
			return err
		}
		old := d.Level()

		switch dir {
		case DirectionSubtract:
			err = d.Subtract(qty, opts)
		case DirectionAdd:
			err = d.Add(qty)
		default:
			return fmt.Errorf("unknown direction %q: %w", dir, apperr.ErrValidation)
		}
		if err != nil {
			return err
		}

		swapped, err := s.drugs.CompareAndSwapStock(ctx, drugID, old, d.Level())
		if err != nil {
			return err
		}
		if swapped {
			return nil
		}
	}
	return fmt.Errorf("stock contention on drug %s: %w", drugID, apperr.ErrConflict)
}

// Restock adds units to a drug's stock.
func (s *Service) Restock(ctx context.Context, drugID uuid.UUID, qty int) error {
	if err := requireManageInventory(ctx); err != nil {
		return err
	}
	if qty <= 0 {
		return fmt.Errorf("restock quantity must be positive: %w", apperr.ErrValidation)
	}
	return s.AdjustStock(ctx, drugID, qty, DirectionAdd, SubtractOptions{})
}

// WriteOff deducts stock without a dispensing event (loss, expiry,
// damage). Requires the write_off_drugs permission.
func (s *Service) WriteOff(ctx context.Context, drugID uuid.UUID, qty int) error {
	sc, err := scope.FromContext(ctx)
	if err != nil {
		return err
	}
	if !sc.Permissions.WriteOffDrugs {
		return fmt.Errorf("write_off_drugs permission required: %w", apperr.ErrNotAuthorized)
	}
	if qty <= 0 {
		return fmt.Errorf("write-off quantity must be positive: %w", apperr.ErrValidation)
	}
	return s.AdjustStock(ctx, drugID, qty, DirectionSubtract, SubtractOptions{})
}

// EnsureCatalogued returns the drug with the given name, creating a
// zero-stock placeholder entry if it was never added to the catalogue.
// Placeholders give external prescriptions a valid drug reference.
func (s *Service) EnsureCatalogued(ctx context.Context, name string) (*DrugStockRecord, error) {
	if name == "" {
		return nil, fmt.Errorf("drug name is required: %w", apperr.ErrValidation)
	}
	d, err := s.drugs.GetByName(ctx, name)
	if err == nil {
		return d, nil
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}

	placeholder := &DrugStockRecord{
		Name:      name,
		UnitPrice: decimal.Zero,
		Status:    StatusActive,
	}
	if err := s.drugs.Create(ctx, placeholder); err != nil {
		return nil, err
	}
	return placeholder, nil
}

func validateDrug(d *DrugStockRecord) error {
	if d.Name == "" {
		return fmt.Errorf("name is required: %w", apperr.ErrValidation)
	}
	if d.UnitPrice.IsNegative() {
		return fmt.Errorf("unit price must not be negative: %w", apperr.ErrValidation)
	}
	if d.StockUnits < 0 {
		return fmt.Errorf("stock units must not be negative: %w", apperr.ErrValidation)
	}
	if p := d.Packs; p != nil {
		if p.UnitsPerPack <= 0 {
			return fmt.Errorf("units per pack must be positive: %w", apperr.ErrValidation)
		}
		if p.WholePacks < 0 || p.LooseUnits < 0 {
			return fmt.Errorf("pack counts must not be negative: %w", apperr.ErrValidation)
		}
	}
	if d.Status != "" && d.Status != StatusActive && d.Status != StatusRetired {
		return fmt.Errorf("invalid status %q: %w", d.Status, apperr.ErrValidation)
	}
	return nil
}

func requireManageInventory(ctx context.Context) error {
	sc, err := scope.FromContext(ctx)
	if err != nil {
		return err
	}
	if !sc.Permissions.ManageInventory {
		return fmt.Errorf("manage_inventory permission required: %w", apperr.ErrNotAuthorized)
	}
	return nil
}
