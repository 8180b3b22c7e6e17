package organization

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/clinichq/clinic/internal/domain/scope"
	"github.com/clinichq/clinic/internal/platform/apperr"
)

type memberKey struct {
	orgID  uuid.UUID
	userID string
}

type mockOrgRepo struct {
	orgs    map[uuid.UUID]*Organization
	members map[memberKey]*Member
}

func newMockOrgRepo() *mockOrgRepo {
	return &mockOrgRepo{
		orgs:    map[uuid.UUID]*Organization{},
		members: map[memberKey]*Member{},
	}
}

func (m *mockOrgRepo) Create(_ context.Context, org *Organization) error {
	org.ID = uuid.New()
	cp := *org
	m.orgs[org.ID] = &cp
	return nil
}

func (m *mockOrgRepo) GetByID(_ context.Context, id uuid.UUID) (*Organization, error) {
	org, ok := m.orgs[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	cp := *org
	return &cp, nil
}

func (m *mockOrgRepo) Update(_ context.Context, org *Organization) error {
	if _, ok := m.orgs[org.ID]; !ok {
		return apperr.ErrNotFound
	}
	cp := *org
	m.orgs[org.ID] = &cp
	return nil
}

func (m *mockOrgRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.orgs[id]; !ok {
		return apperr.ErrNotFound
	}
	delete(m.orgs, id)
	return nil
}

func (m *mockOrgRepo) ListForUser(_ context.Context, userID string) ([]*Organization, error) {
	var out []*Organization
	for key, member := range m.members {
		if member.UserID != userID {
			continue
		}
		if org, ok := m.orgs[key.orgID]; ok {
			cp := *org
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockOrgRepo) AddMember(_ context.Context, member *Member) error {
	member.ID = uuid.New()
	cp := *member
	m.members[memberKey{member.OrganizationID, member.UserID}] = &cp
	return nil
}

func (m *mockOrgRepo) GetMember(_ context.Context, orgID uuid.UUID, userID string) (*Member, error) {
	member, ok := m.members[memberKey{orgID, userID}]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	cp := *member
	return &cp, nil
}

func (m *mockOrgRepo) UpdateMember(_ context.Context, member *Member) error {
	key := memberKey{member.OrganizationID, member.UserID}
	if _, ok := m.members[key]; !ok {
		return apperr.ErrNotFound
	}
	cp := *member
	m.members[key] = &cp
	return nil
}

func (m *mockOrgRepo) RemoveMember(_ context.Context, orgID uuid.UUID, userID string) error {
	key := memberKey{orgID, userID}
	if _, ok := m.members[key]; !ok {
		return apperr.ErrNotFound
	}
	delete(m.members, key)
	return nil
}

func (m *mockOrgRepo) ListMembers(_ context.Context, orgID uuid.UUID) ([]*Member, error) {
	var out []*Member
	for key, member := range m.members {
		if key.orgID == orgID {
			cp := *member
			out = append(out, &cp)
		}
	}
	return out, nil
}

func passthroughTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func userCtx(userID string) context.Context {
	return scope.NewContext(context.Background(), scope.Individual(userID))
}

func TestCreate_EnrollsOwner(t *testing.T) {
	repo := newMockOrgRepo()
	svc := NewService(repo, passthroughTx)

	org, err := svc.Create(userCtx("dr-akoto"), "  Akoto Clinic  ")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if org.Name != "Akoto Clinic" {
		t.Errorf("name = %q, want trimmed", org.Name)
	}
	if org.OwnerUserID != "dr-akoto" {
		t.Errorf("owner = %q", org.OwnerUserID)
	}

	m, err := repo.GetMember(context.Background(), org.ID, "dr-akoto")
	if err != nil {
		t.Fatal("owner not enrolled as member")
	}
	if m.Role != RoleOwner {
		t.Errorf("role = %q, want %q", m.Role, RoleOwner)
	}
	if !m.Permissions.ManageInventory || !m.Permissions.WriteOffDrugs || !m.Permissions.ManagePatients {
		t.Errorf("owner permissions not fully granted: %+v", m.Permissions)
	}
}

func TestCreate_RequiresName(t *testing.T) {
	svc := NewService(newMockOrgRepo(), passthroughTx)
	if _, err := svc.Create(userCtx("dr-akoto"), "   "); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("err = %v, want ErrValidation", err)
	}
}

func TestMemberManagement_OwnerOnly(t *testing.T) {
	repo := newMockOrgRepo()
	svc := NewService(repo, passthroughTx)

	org, err := svc.Create(userCtx("dr-akoto"), "Akoto Clinic")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.AddMember(userCtx("dr-akoto"), org.ID, "nurse-naa", scope.Permissions{ManagePatients: true}); err != nil {
		t.Fatalf("owner AddMember: %v", err)
	}

	_, err = svc.AddMember(userCtx("nurse-naa"), org.ID, "intruder", scope.Permissions{})
	if !errors.Is(err, apperr.ErrNotAuthorized) {
		t.Errorf("non-owner AddMember: err = %v, want ErrNotAuthorized", err)
	}
	if err := svc.RemoveMember(userCtx("nurse-naa"), org.ID, "dr-akoto"); !errors.Is(err, apperr.ErrNotAuthorized) {
		t.Errorf("non-owner RemoveMember: err = %v, want ErrNotAuthorized", err)
	}
}

func TestAddMember_DuplicateIsConflict(t *testing.T) {
	repo := newMockOrgRepo()
	svc := NewService(repo, passthroughTx)

	org, err := svc.Create(userCtx("dr-akoto"), "Akoto Clinic")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.AddMember(userCtx("dr-akoto"), org.ID, "nurse-naa", scope.Permissions{}); err != nil {
		t.Fatal(err)
	}
	_, err = svc.AddMember(userCtx("dr-akoto"), org.ID, "nurse-naa", scope.Permissions{})
	if !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("err = %v, want ErrConflict", err)
	}
}

func TestOwnerMembershipIsProtected(t *testing.T) {
	repo := newMockOrgRepo()
	svc := NewService(repo, passthroughTx)

	org, err := svc.Create(userCtx("dr-akoto"), "Akoto Clinic")
	if err != nil {
		t.Fatal(err)
	}

	if err := svc.RemoveMember(userCtx("dr-akoto"), org.ID, "dr-akoto"); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("remove owner: err = %v, want ErrValidation", err)
	}
	_, err = svc.UpdateMemberPermissions(userCtx("dr-akoto"), org.ID, "dr-akoto", scope.Permissions{})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("downgrade owner: err = %v, want ErrValidation", err)
	}
}

func TestUpdateMemberPermissions(t *testing.T) {
	repo := newMockOrgRepo()
	svc := NewService(repo, passthroughTx)

	org, err := svc.Create(userCtx("dr-akoto"), "Akoto Clinic")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.AddMember(userCtx("dr-akoto"), org.ID, "nurse-naa", scope.Permissions{ManagePatients: true}); err != nil {
		t.Fatal(err)
	}

	m, err := svc.UpdateMemberPermissions(userCtx("dr-akoto"), org.ID, "nurse-naa",
		scope.Permissions{ManagePatients: true, ManageInventory: true})
	if err != nil {
		t.Fatalf("UpdateMemberPermissions: %v", err)
	}
	if !m.Permissions.ManageInventory {
		t.Error("permission grant not applied")
	}

	stored, err := repo.GetMember(context.Background(), org.ID, "nurse-naa")
	if err != nil {
		t.Fatal(err)
	}
	if !stored.Permissions.ManageInventory || stored.Permissions.WriteOffDrugs {
		t.Errorf("stored permissions = %+v", stored.Permissions)
	}
}

func TestListMine(t *testing.T) {
	repo := newMockOrgRepo()
	svc := NewService(repo, passthroughTx)

	if _, err := svc.Create(userCtx("dr-akoto"), "Akoto Clinic"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Create(userCtx("dr-mensah"), "Mensah Clinic"); err != nil {
		t.Fatal(err)
	}

	mine, err := svc.ListMine(userCtx("dr-akoto"))
	if err != nil {
		t.Fatal(err)
	}
	if len(mine) != 1 || mine[0].Name != "Akoto Clinic" {
		t.Errorf("mine = %+v", mine)
	}
}
