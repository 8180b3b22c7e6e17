package patient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clinichq/clinic/internal/domain/scope"
	"github.com/clinichq/clinic/internal/platform/apperr"
)

type Service struct {
	profiles  Repository
	diagnoses DiagnosisPurger
}

func NewService(profiles Repository, diagnoses DiagnosisPurger) *Service {
	return &Service{profiles: profiles, diagnoses: diagnoses}
}

// ResolveAndMerge finds the profile a visit belongs to and folds the
// visit into it, or creates a profile when nothing matches. The cascade
// tries, in order: exact identifier, (name, date of birth), then name
// alone with the surname rule. Each step runs only when the previous
// one produced nothing.
func (s *Service) ResolveAndMerge(ctx context.Context, v Visit) (*Profile, error) {
	if strings.TrimSpace(v.FirstName) == "" {
		return nil, fmt.Errorf("visit has no patient name: %w", apperr.ErrValidation)
	}

	match, err := s.resolve(ctx, v)
	if err != nil {
		return nil, err
	}
	if match == nil {
		return s.createFromVisit(ctx, v)
	}

	mergeVisit(match, v)
	if err := s.profiles.Update(ctx, match); err != nil {
		return nil, err
	}
	return match, nil
}

func (s *Service) resolve(ctx context.Context, v Visit) (*Profile, error) {
	if ident := strings.TrimSpace(v.PatientIdentifier); ident != "" {
		p, err := s.profiles.FindByIdentifier(ctx, ident)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, apperr.ErrNotFound) {
			return nil, err
		}
	}

	candidates, err := s.profiles.FindByFirstName(ctx, strings.TrimSpace(v.FirstName))
	if err != nil {
		return nil, err
	}

	if v.DOB != nil {
		for _, c := range candidates {
			if c.DOB != nil && sameDay(*c.DOB, *v.DOB) && surnameCompatible(c.Surname, v.Surname) {
				return c, nil
			}
		}
	}

	for _, c := range candidates {
		if surnameCompatible(c.Surname, v.Surname) {
			return c, nil
		}
	}
	return nil, nil
}

// surnameCompatible applies the name-only matching rule: when both
// sides carry a surname they must agree; a missing surname on either
// side still matches, which keeps older surname-less records reachable.
func surnameCompatible(a, b string) bool {
	a = strings.TrimSpace(a)
	b = strings.TrimSpace(b)
	if a == "" || b == "" {
		return true
	}
	return strings.EqualFold(a, b)
}

func sameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}

// mergeVisit folds a visit into an existing profile: the primary
// diagnosis is appended to history, and clinical fields are overwritten
// only when the visit supplies a non-empty value.
func mergeVisit(p *Profile, v Visit) {
	if d := strings.TrimSpace(v.PrimaryDiagnosis); d != "" {
		p.History = append(p.History, d)
	}
	if v.PatientIdentifier != "" {
		p.PatientIdentifier = v.PatientIdentifier
	}
	if v.Surname != "" {
		p.Surname = v.Surname
	}
	if v.DOB != nil {
		p.DOB = v.DOB
	}
	if v.Gender != "" {
		p.Gender = v.Gender
	}
	if v.ContactInfo != "" {
		p.ContactInfo = v.ContactInfo
	}
	if v.Allergies != "" {
		p.Allergies = v.Allergies
	}
	if v.Medications != "" {
		p.Medications = v.Medications
	}
}

func (s *Service) createFromVisit(ctx context.Context, v Visit) (*Profile, error) {
	p := &Profile{
		PatientIdentifier: strings.TrimSpace(v.PatientIdentifier),
		FirstName:         strings.TrimSpace(v.FirstName),
		Surname:           strings.TrimSpace(v.Surname),
		DOB:               v.DOB,
		Gender:            v.Gender,
		ContactInfo:       v.ContactInfo,
		Allergies:         v.Allergies,
		Medications:       v.Medications,
		History:           []string{},
	}
	if d := strings.TrimSpace(v.PrimaryDiagnosis); d != "" {
		p.History = append(p.History, d)
	}
	if err := s.profiles.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) GetProfile(ctx context.Context, id uuid.UUID) (*Profile, error) {
	return s.profiles.GetByID(ctx, id)
}

func (s *Service) SearchProfiles(ctx context.Context, params map[string]string, limit, offset int) ([]*Profile, int, error) {
	return s.profiles.Search(ctx, params, limit, offset)
}

func (s *Service) UpdateProfile(ctx context.Context, p *Profile) error {
	if err := requireManagePatients(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(p.FirstName) == "" {
		return fmt.Errorf("profile has no patient name: %w", apperr.ErrValidation)
	}
	return s.profiles.Update(ctx, p)
}

// DeleteProfile removes the profile and cascades to the diagnoses
// matched to it.
func (s *Service) DeleteProfile(ctx context.Context, id uuid.UUID) error {
	if err := requireManagePatients(ctx); err != nil {
		return err
	}
	p, err := s.profiles.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.diagnoses.DeleteForPatient(ctx, p.PatientIdentifier, p.FullName()); err != nil {
		return err
	}
	return s.profiles.Delete(ctx, id)
}

func requireManagePatients(ctx context.Context) error {
	sc, err := scope.FromContext(ctx)
	if err != nil {
		return err
	}
	if !sc.Permissions.ManagePatients {
		return fmt.Errorf("manage_patients permission required: %w", apperr.ErrNotAuthorized)
	}
	return nil
}
