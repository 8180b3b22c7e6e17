package dispensing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinichq/clinic/internal/domain/inventory"
	"github.com/clinichq/clinic/internal/domain/scope"
	"github.com/clinichq/clinic/internal/platform/apperr"
)

// ErrDeleteNotVerified means a record delete reported success but the
// row was still readable afterwards, usually a sign of a row-security
// policy swallowing the delete.
var ErrDeleteNotVerified = errors.New("dispensing record delete not verified")

// DrugCatalog is the slice of the inventory service the reconciler
// needs: placeholder creation and stock movement.
type DrugCatalog interface {
	EnsureCatalogued(ctx context.Context, name string) (*inventory.DrugStockRecord, error)
	AdjustStock(ctx context.Context, drugID uuid.UUID, qty int, dir inventory.Direction, opts inventory.SubtractOptions) error
	GetDrug(ctx context.Context, id uuid.UUID) (*inventory.DrugStockRecord, error)
}

// TxRunner runs fn atomically. Wired to db.WithTx in production.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

type Service struct {
	records Repository
	audit   AuditRepository
	drugs   DrugCatalog
	runTx   TxRunner
	logger  zerolog.Logger
}

func NewService(records Repository, audit AuditRepository, drugs DrugCatalog, runTx TxRunner, logger zerolog.Logger) *Service {
	return &Service{records: records, audit: audit, drugs: drugs, runTx: runTx, logger: logger}
}

// RecordSet replaces the dispensing set for a diagnosis: existing
// records for the diagnosis are deleted and the new set inserted in one
// transaction. Uncatalogued drugs get a zero-stock placeholder first.
// Stock subtraction is best-effort per line; failures are collected in
// the outcome instead of aborting the batch.
func (s *Service) RecordSet(ctx context.Context, diagnosisID *uuid.UUID, lines []Line, snap Snapshot) (*SetOutcome, error) {
	for _, l := range lines {
		if l.DrugName == "" {
			return nil, fmt.Errorf("dispensing line has no drug name: %w", apperr.ErrValidation)
		}
		if l.Quantity < 0 || l.Packs < 0 || l.LooseUnits < 0 {
			return nil, fmt.Errorf("dispensing line for %q has negative counts: %w", l.DrugName, apperr.ErrValidation)
		}
	}

	outcome := &SetOutcome{}
	err := s.runTx(ctx, func(ctx context.Context) error {
		if diagnosisID != nil {
			if err := s.records.DeleteByDiagnosis(ctx, *diagnosisID); err != nil {
				return err
			}
		}

		now := time.Now().UTC()
		for _, l := range lines {
			drug, err := s.drugs.EnsureCatalogued(ctx, l.DrugName)
			if err != nil {
				return err
			}

			qty := lineUnits(l, drug)
			rec := &Record{
				DrugID:        &drug.ID,
				DiagnosisID:   diagnosisID,
				DrugName:      drug.Name,
				Quantity:      qty,
				Packs:         l.Packs,
				LooseUnits:    l.LooseUnits,
				Notes:         appendNote(l.Notes, FormatBreakdownNote(l.Packs, l.LooseUnits)),
				PatientName:   snap.PatientName,
				PatientAge:    snap.PatientAge,
				PatientGender: snap.PatientGender,
				DiagnosisText: snap.DiagnosisText,
				DispensedAt:   now,
			}
			if err := s.records.Create(ctx, rec); err != nil {
				return err
			}
			outcome.Records = append(outcome.Records, rec)

			if qty == 0 {
				continue
			}
			if err := s.drugs.AdjustStock(ctx, drug.ID, qty, inventory.DirectionSubtract, inventory.SubtractOptions{}); err != nil {
				s.logger.Warn().Err(err).Str("drug", drug.Name).Int("quantity", qty).
					Msg("stock subtraction failed for dispensing line")
				outcome.FailedLines = append(outcome.FailedLines, drug.Name)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

// lineUnits resolves a line's tablet-equivalent total. An explicit
// quantity wins; otherwise the pack breakdown is converted using the
// drug's pack size when known.
func lineUnits(l Line, drug *inventory.DrugStockRecord) int {
	if l.Quantity > 0 {
		return l.Quantity
	}
	perPack := 0
	if drug.Packs != nil {
		perPack = drug.Packs.UnitsPerPack
	}
	return l.Packs*perPack + l.LooseUnits
}

// Delete removes a dispensing record. The record's quantity is
// subtracted from stock once more: removal is treated as final
// consumption of the dispensed units, not a reversal. An audit entry is
// appended before the row is deleted, and the delete is verified.
func (s *Service) Delete(ctx context.Context, recordID uuid.UUID, reason string) error {
	sc, err := scope.FromContext(ctx)
	if err != nil {
		return err
	}
	if !sc.Permissions.WriteOffDrugs {
		return fmt.Errorf("write_off_drugs permission required: %w", apperr.ErrNotAuthorized)
	}

	return s.runTx(ctx, func(ctx context.Context) error {
		rec, err := s.records.GetByID(ctx, recordID)
		if err != nil {
			return err
		}

		if rec.DrugID != nil && rec.Quantity > 0 {
			err := s.drugs.AdjustStock(ctx, *rec.DrugID, rec.Quantity,
				inventory.DirectionSubtract, inventory.SubtractOptions{Clamp: true})
			if err != nil {
				s.logger.Warn().Err(err).Str("drug", rec.DrugName).
					Msg("final-consumption subtraction failed on record delete")
			}
		}

		entry := &UsageAuditEntry{
			DrugID:    rec.DrugID,
			DrugName:  rec.DrugName,
			Quantity:  rec.Quantity,
			Reason:    reason,
			RecordID:  rec.ID,
			RemovedAt: time.Now().UTC(),
		}
		if err := s.audit.Append(ctx, entry); err != nil {
			return err
		}
		if err := s.records.Delete(ctx, recordID); err != nil {
			return err
		}

		// Row security can silently filter a delete; confirm the row is
		// actually gone.
		if _, err := s.records.GetByID(ctx, recordID); err == nil {
			return ErrDeleteNotVerified
		} else if !errors.Is(err, apperr.ErrNotFound) {
			return err
		}
		return nil
	})
}

// Deduplicate collapses duplicate records sharing a (diagnosis, drug)
// pair, keeping the earliest of each group. It touches no stock and is
// idempotent. Returns the number of records removed.
func (s *Service) Deduplicate(ctx context.Context) (int, error) {
	removed := 0
	err := s.runTx(ctx, func(ctx context.Context) error {
		all, err := s.records.ListAll(ctx)
		if err != nil {
			return err
		}

		type groupKey struct {
			diagnosisID uuid.UUID
			drugID      uuid.UUID
		}
		seen := make(map[groupKey]bool)
		for _, rec := range all {
			if rec.DiagnosisID == nil || rec.DrugID == nil {
				continue
			}
			key := groupKey{*rec.DiagnosisID, *rec.DrugID}
			if !seen[key] {
				seen[key] = true
				continue
			}
			if err := s.records.Delete(ctx, rec.ID); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

func (s *Service) GetRecord(ctx context.Context, id uuid.UUID) (*Record, error) {
	return s.records.GetByID(ctx, id)
}

func (s *Service) ListHistory(ctx context.Context, limit, offset int) ([]*Record, int, error) {
	return s.records.List(ctx, limit, offset)
}

func (s *Service) ListByDiagnosis(ctx context.Context, diagnosisID uuid.UUID) ([]*Record, error) {
	return s.records.ListByDiagnosis(ctx, diagnosisID)
}

func (s *Service) ListAudit(ctx context.Context, limit, offset int) ([]*UsageAuditEntry, int, error) {
	return s.audit.List(ctx, limit, offset)
}

func (s *Service) ClearAudit(ctx context.Context) error {
	return s.audit.Clear(ctx)
}
