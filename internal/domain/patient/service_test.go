package patient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/clinichq/clinic/internal/domain/scope"
	"github.com/clinichq/clinic/internal/platform/apperr"
)

// -- Mock Repositories --

type mockProfileRepo struct {
	profiles map[uuid.UUID]*Profile
}

func newMockProfileRepo() *mockProfileRepo {
	return &mockProfileRepo{profiles: make(map[uuid.UUID]*Profile)}
}

func (m *mockProfileRepo) Create(_ context.Context, p *Profile) error {
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	p.UpdatedAt = time.Now()
	m.profiles[p.ID] = p
	return nil
}

func (m *mockProfileRepo) GetByID(_ context.Context, id uuid.UUID) (*Profile, error) {
	p, ok := m.profiles[id]
	if !ok {
		return nil, fmt.Errorf("patient profile: %w", apperr.ErrNotFound)
	}
	return p, nil
}

func (m *mockProfileRepo) FindByIdentifier(_ context.Context, identifier string) (*Profile, error) {
	for _, p := range m.profiles {
		if strings.TrimSpace(p.PatientIdentifier) == identifier && p.PatientIdentifier != "" {
			return p, nil
		}
	}
	return nil, fmt.Errorf("patient profile: %w", apperr.ErrNotFound)
}

func (m *mockProfileRepo) FindByFirstName(_ context.Context, firstName string) ([]*Profile, error) {
	var out []*Profile
	for _, p := range m.profiles {
		if strings.EqualFold(p.FirstName, firstName) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockProfileRepo) Update(_ context.Context, p *Profile) error {
	if _, ok := m.profiles[p.ID]; !ok {
		return fmt.Errorf("patient profile: %w", apperr.ErrNotFound)
	}
	m.profiles[p.ID] = p
	return nil
}

func (m *mockProfileRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(m.profiles, id)
	return nil
}

func (m *mockProfileRepo) Search(_ context.Context, params map[string]string, limit, offset int) ([]*Profile, int, error) {
	var out []*Profile
	for _, p := range m.profiles {
		out = append(out, p)
	}
	return out, len(out), nil
}

type mockPurger struct {
	purged []string
}

func (m *mockPurger) DeleteForPatient(_ context.Context, identifier, fullName string) error {
	m.purged = append(m.purged, fullName)
	return nil
}

func testCtx() context.Context {
	return scope.NewContext(context.Background(), scope.Individual("practitioner-1"))
}

func dob(y, m, d int) *time.Time {
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	return &t
}

// -- Tests --

func TestResolveAndMerge_CreatesWhenNoMatch(t *testing.T) {
	repo := newMockProfileRepo()
	svc := NewService(repo, &mockPurger{})

	p, err := svc.ResolveAndMerge(testCtx(), Visit{
		FirstName: "Amara", Surname: "Okafor", DOB: dob(1990, 4, 2),
		PrimaryDiagnosis: "Malaria",
	})
	if err != nil {
		t.Fatalf("ResolveAndMerge: %v", err)
	}
	if len(repo.profiles) != 1 {
		t.Fatalf("profiles = %d, want 1", len(repo.profiles))
	}
	if len(p.History) != 1 || p.History[0] != "Malaria" {
		t.Errorf("History = %v, want seeded with primary diagnosis", p.History)
	}
}

func TestResolveAndMerge_NoName(t *testing.T) {
	svc := NewService(newMockProfileRepo(), &mockPurger{})

	_, err := svc.ResolveAndMerge(testCtx(), Visit{PrimaryDiagnosis: "Flu"})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestResolveAndMerge_IdentifierWinsOverName(t *testing.T) {
	repo := newMockProfileRepo()
	svc := NewService(repo, &mockPurger{})

	byIdent := &Profile{PatientIdentifier: "NHS-123", FirstName: "Sam", Surname: "Hill"}
	byName := &Profile{FirstName: "Amara", Surname: "Okafor"}
	for _, p := range []*Profile{byIdent, byName} {
		if err := repo.Create(context.Background(), p); err != nil {
			t.Fatal(err)
		}
	}

	got, err := svc.ResolveAndMerge(testCtx(), Visit{
		PatientIdentifier: "NHS-123", FirstName: "Amara", Surname: "Okafor",
		PrimaryDiagnosis: "Asthma",
	})
	if err != nil {
		t.Fatalf("ResolveAndMerge: %v", err)
	}
	if got.ID != byIdent.ID {
		t.Error("identifier match should take precedence over name match")
	}
}

func TestResolveAndMerge_NameAndDOB(t *testing.T) {
	repo := newMockProfileRepo()
	svc := NewService(repo, &mockPurger{})

	older := &Profile{FirstName: "Amara", Surname: "Okafor", DOB: dob(1960, 1, 1)}
	younger := &Profile{FirstName: "Amara", Surname: "Okafor", DOB: dob(1990, 4, 2)}
	for _, p := range []*Profile{older, younger} {
		if err := repo.Create(context.Background(), p); err != nil {
			t.Fatal(err)
		}
	}

	got, err := svc.ResolveAndMerge(testCtx(), Visit{
		FirstName: "Amara", Surname: "Okafor", DOB: dob(1990, 4, 2),
	})
	if err != nil {
		t.Fatalf("ResolveAndMerge: %v", err)
	}
	if got.ID != younger.ID {
		t.Error("date of birth should disambiguate same-name profiles")
	}
}

func TestResolveAndMerge_SurnameRule(t *testing.T) {
	cases := []struct {
		name            string
		profileSurname  string
		visitSurname    string
		wantMatch       bool
	}{
		{"both match", "Okafor", "Okafor", true},
		{"both differ", "Okafor", "Hill", false},
		{"profile missing surname", "", "Okafor", true},
		{"visit missing surname", "Okafor", "", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := newMockProfileRepo()
			svc := NewService(repo, &mockPurger{})
			existing := &Profile{FirstName: "Amara", Surname: tc.profileSurname}
			if err := repo.Create(context.Background(), existing); err != nil {
				t.Fatal(err)
			}

			got, err := svc.ResolveAndMerge(testCtx(), Visit{
				FirstName: "Amara", Surname: tc.visitSurname,
			})
			if err != nil {
				t.Fatalf("ResolveAndMerge: %v", err)
			}
			matched := got.ID == existing.ID
			if matched != tc.wantMatch {
				t.Errorf("matched = %v, want %v", matched, tc.wantMatch)
			}
		})
	}
}

func TestResolveAndMerge_MergeSemantics(t *testing.T) {
	repo := newMockProfileRepo()
	svc := NewService(repo, &mockPurger{})

	existing := &Profile{
		FirstName: "Amara", Surname: "Okafor",
		Allergies: "penicillin", ContactInfo: "07700 900001",
		History: []string{"Malaria"},
	}
	if err := repo.Create(context.Background(), existing); err != nil {
		t.Fatal(err)
	}

	got, err := svc.ResolveAndMerge(testCtx(), Visit{
		FirstName: "Amara", Surname: "Okafor",
		Medications:      "salbutamol",
		PrimaryDiagnosis: "Asthma",
		// empty allergies and contact must not clobber existing values
	})
	if err != nil {
		t.Fatalf("ResolveAndMerge: %v", err)
	}
	if got.Allergies != "penicillin" {
		t.Errorf("Allergies = %q, want retained", got.Allergies)
	}
	if got.ContactInfo != "07700 900001" {
		t.Errorf("ContactInfo = %q, want retained", got.ContactInfo)
	}
	if got.Medications != "salbutamol" {
		t.Errorf("Medications = %q, want overwritten", got.Medications)
	}
	if len(got.History) != 2 || got.History[1] != "Asthma" {
		t.Errorf("History = %v, want appended", got.History)
	}
}

func TestResolveAndMerge_EmptyDiagnosisNotAppended(t *testing.T) {
	repo := newMockProfileRepo()
	svc := NewService(repo, &mockPurger{})
	existing := &Profile{FirstName: "Sam", History: []string{"Flu"}}
	if err := repo.Create(context.Background(), existing); err != nil {
		t.Fatal(err)
	}

	got, err := svc.ResolveAndMerge(testCtx(), Visit{FirstName: "Sam", PrimaryDiagnosis: "  "})
	if err != nil {
		t.Fatalf("ResolveAndMerge: %v", err)
	}
	if len(got.History) != 1 {
		t.Errorf("History = %v, blank diagnosis must not be appended", got.History)
	}
}

func TestDeleteProfile_CascadesToDiagnoses(t *testing.T) {
	repo := newMockProfileRepo()
	purger := &mockPurger{}
	svc := NewService(repo, purger)

	p := &Profile{FirstName: "Amara", Surname: "Okafor"}
	if err := repo.Create(context.Background(), p); err != nil {
		t.Fatal(err)
	}

	if err := svc.DeleteProfile(testCtx(), p.ID); err != nil {
		t.Fatalf("DeleteProfile: %v", err)
	}
	if _, ok := repo.profiles[p.ID]; ok {
		t.Error("profile not deleted")
	}
	if len(purger.purged) != 1 || purger.purged[0] != "Amara Okafor" {
		t.Errorf("purged = %v, want diagnoses for Amara Okafor", purger.purged)
	}
}

func TestDeleteProfile_RequiresPermission(t *testing.T) {
	repo := newMockProfileRepo()
	svc := NewService(repo, &mockPurger{})
	p := &Profile{FirstName: "Amara"}
	if err := repo.Create(context.Background(), p); err != nil {
		t.Fatal(err)
	}

	ctx := scope.NewContext(context.Background(),
		scope.Organization("assistant-1", uuid.New(), scope.Permissions{ManageInventory: true}))
	if err := svc.DeleteProfile(ctx, p.ID); !errors.Is(err, apperr.ErrNotAuthorized) {
		t.Fatalf("err = %v, want ErrNotAuthorized", err)
	}
}

func TestSplitName(t *testing.T) {
	cases := []struct {
		full, first, surname string
	}{
		{"Amara Okafor", "Amara", "Okafor"},
		{"Amara", "Amara", ""},
		{"Mary Jane Watson", "Mary Jane", "Watson"},
		{"  Sam  ", "Sam", ""},
	}
	for _, tc := range cases {
		first, surname := SplitName(tc.full)
		if first != tc.first || surname != tc.surname {
			t.Errorf("SplitName(%q) = (%q, %q), want (%q, %q)", tc.full, first, surname, tc.first, tc.surname)
		}
	}
}
