package diagnosis

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinichq/clinic/internal/domain/dispensing"
	"github.com/clinichq/clinic/internal/domain/patient"
	"github.com/clinichq/clinic/internal/platform/aiassist"
	"github.com/clinichq/clinic/internal/platform/apperr"
)

// ProfileResolver folds a visit into the longitudinal patient record.
type ProfileResolver interface {
	ResolveAndMerge(ctx context.Context, v patient.Visit) (*patient.Profile, error)
}

// Dispenser replaces the dispensing set recorded against a diagnosis.
type Dispenser interface {
	RecordSet(ctx context.Context, diagnosisID *uuid.UUID, lines []dispensing.Line, snap dispensing.Snapshot) (*dispensing.SetOutcome, error)
}

// Suggester produces a canonical diagnosis from an intake.
type Suggester interface {
	Suggest(ctx context.Context, intake aiassist.Intake) (*aiassist.Canonical, error)
}

// CatalogNamer lists the owner's in-stock drug names.
type CatalogNamer interface {
	InStockNames(ctx context.Context) ([]string, error)
}

type Service struct {
	diagnoses Repository
	profiles  ProfileResolver
	dispenser Dispenser
	ai        Suggester
	catalog   CatalogNamer
	logger    zerolog.Logger
}

func NewService(diagnoses Repository, profiles ProfileResolver, dispenser Dispenser,
	ai Suggester, catalog CatalogNamer, logger zerolog.Logger) *Service {
	return &Service{
		diagnoses: diagnoses,
		profiles:  profiles,
		dispenser: dispenser,
		ai:        ai,
		catalog:   catalog,
		logger:    logger,
	}
}

// Assist fills the diagnosis's clinical fields from the AI endpoint.
// Fields already set by the clinician are kept; AI output only fills
// gaps. The in-stock catalog is sent along so suggestions favor drugs
// the owner can actually dispense.
func (s *Service) Assist(ctx context.Context, d *Diagnosis) error {
	if strings.TrimSpace(d.Complaint) == "" {
		return fmt.Errorf("complaint is required for assisted intake: %w", apperr.ErrValidation)
	}

	names, err := s.catalog.InStockNames(ctx)
	if err != nil {
		return err
	}
	c, err := s.ai.Suggest(ctx, aiassist.Intake{
		Complaint:    d.Complaint,
		Symptoms:     d.Symptoms,
		Age:          d.PatientAge,
		Gender:       d.PatientGender,
		CatalogDrugs: names,
	})
	if err != nil {
		return err
	}

	if d.PrimaryDiagnosis == "" {
		d.PrimaryDiagnosis = c.PrimaryDiagnosis
	}
	if len(d.DifferentialDiagnoses) == 0 {
		d.DifferentialDiagnoses = c.DifferentialDiagnoses
	}
	if len(d.Treatment) == 0 {
		d.Treatment = c.Treatment
	}
	if len(d.RecommendedActions) == 0 {
		d.RecommendedActions = c.RecommendedActions
	}
	if d.Severity == "" {
		d.Severity = c.Severity
	}
	for _, name := range c.DrugSuggestions {
		d.AIDrugSuggestions = append(d.AIDrugSuggestions, DrugEntry{Name: name})
	}
	return nil
}

// SaveWithIntake saves the diagnosis and then runs the secondary steps
// best-effort: merge the patient profile and replace the dispensing
// set. The diagnosis save is the primary record; a secondary failure is
// logged and reported in the outcome without rolling it back.
func (s *Service) SaveWithIntake(ctx context.Context, d *Diagnosis) (*SaveOutcome, error) {
	if err := validateDiagnosis(d); err != nil {
		return nil, err
	}

	if d.ID == uuid.Nil {
		if err := s.diagnoses.Create(ctx, d); err != nil {
			return nil, err
		}
	} else {
		if err := s.diagnoses.Update(ctx, d); err != nil {
			return nil, err
		}
	}

	outcome := &SaveOutcome{Diagnosis: d}

	if _, err := s.profiles.ResolveAndMerge(ctx, visitFrom(d)); err != nil {
		s.logger.Warn().Err(err).Str("diagnosis_id", d.ID.String()).
			Msg("patient profile merge failed after diagnosis save")
		outcome.FailedSteps = append(outcome.FailedSteps, StepPatientProfile)
	}

	lines := dispensingLines(d)
	if len(lines) > 0 {
		_, err := s.dispenser.RecordSet(ctx, &d.ID, lines, dispensing.Snapshot{
			PatientName:   d.PatientName,
			PatientAge:    d.PatientAge,
			PatientGender: d.PatientGender,
			DiagnosisText: d.PrimaryDiagnosis,
		})
		if err != nil {
			s.logger.Warn().Err(err).Str("diagnosis_id", d.ID.String()).
				Msg("dispensing record failed after diagnosis save")
			outcome.FailedSteps = append(outcome.FailedSteps, StepDispensing)
		}
	}
	return outcome, nil
}

func validateDiagnosis(d *Diagnosis) error {
	if strings.TrimSpace(d.PatientName) == "" {
		return fmt.Errorf("patient name is required: %w", apperr.ErrValidation)
	}
	if strings.TrimSpace(d.PrimaryDiagnosis) == "" {
		return fmt.Errorf("primary diagnosis is required: %w", apperr.ErrValidation)
	}
	return nil
}

// visitFrom projects the diagnosis's patient fields into a visit for
// profile resolution.
func visitFrom(d *Diagnosis) patient.Visit {
	first, surname := patient.SplitName(d.PatientName)
	return patient.Visit{
		PatientIdentifier: d.PatientIdentifier,
		FirstName:         first,
		Surname:           surname,
		DOB:               d.PatientDOB,
		Gender:            d.PatientGender,
		ContactInfo:       d.PatientContact,
		Allergies:         d.Allergies,
		Medications:       d.Medications,
		PrimaryDiagnosis:  d.PrimaryDiagnosis,
	}
}

// dispensingLines collects the dispensable entries: inventory-matched
// and additional/external drugs. AI suggestions are advisory and never
// dispensed directly.
func dispensingLines(d *Diagnosis) []dispensing.Line {
	var lines []dispensing.Line
	for _, e := range append(append([]DrugEntry{}, d.InventoryDrugs...), d.AdditionalDrugs...) {
		if e.Name == "" || (e.Quantity <= 0 && e.Packs <= 0 && e.LooseUnits <= 0) {
			continue
		}
		lines = append(lines, dispensing.Line{
			DrugName:   e.Name,
			Quantity:   e.Quantity,
			Packs:      e.Packs,
			LooseUnits: e.LooseUnits,
			Notes:      e.Notes,
		})
	}
	return lines
}

func (s *Service) GetDiagnosis(ctx context.Context, id uuid.UUID) (*Diagnosis, error) {
	return s.diagnoses.GetByID(ctx, id)
}

func (s *Service) SearchDiagnoses(ctx context.Context, params map[string]string, limit, offset int) ([]*Diagnosis, int, error) {
	return s.diagnoses.Search(ctx, params, limit, offset)
}

func (s *Service) DeleteDiagnosis(ctx context.Context, id uuid.UUID) error {
	if _, err := s.diagnoses.GetByID(ctx, id); err != nil {
		return err
	}
	return s.diagnoses.Delete(ctx, id)
}
