package organization

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/clinichq/clinic/internal/domain/scope"
	"github.com/clinichq/clinic/internal/platform/apperr"
)

// TxRunner executes fn inside a database transaction.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

type Service struct {
	orgs  Repository
	runTx TxRunner
}

func NewService(orgs Repository, runTx TxRunner) *Service {
	return &Service{orgs: orgs, runTx: runTx}
}

// Create registers a new organization and enrolls the caller as its
// owner in the same transaction.
func (s *Service) Create(ctx context.Context, name string) (*Organization, error) {
	sc, err := scope.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("organization name is required: %w", apperr.ErrValidation)
	}

	org := &Organization{Name: name, OwnerUserID: sc.UserID}
	err = s.runTx(ctx, func(ctx context.Context) error {
		if err := s.orgs.Create(ctx, org); err != nil {
			return err
		}
		return s.orgs.AddMember(ctx, &Member{
			OrganizationID: org.ID,
			UserID:         sc.UserID,
			Role:           RoleOwner,
			Permissions:    FullPermissions(),
		})
	})
	if err != nil {
		return nil, err
	}
	return org, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Organization, error) {
	if _, err := s.requireMember(ctx, id); err != nil {
		return nil, err
	}
	return s.orgs.GetByID(ctx, id)
}

func (s *Service) Rename(ctx context.Context, id uuid.UUID, name string) (*Organization, error) {
	org, err := s.requireOwner(ctx, id)
	if err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("organization name is required: %w", apperr.ErrValidation)
	}
	org.Name = name
	if err := s.orgs.Update(ctx, org); err != nil {
		return nil, err
	}
	return org, nil
}

// Delete removes the organization record and its memberships. The
// org_-partition clinical data is retained for audit until purged by
// migration tooling.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := s.requireOwner(ctx, id); err != nil {
		return err
	}
	return s.orgs.Delete(ctx, id)
}

// ListMine lists the organizations the calling user belongs to.
func (s *Service) ListMine(ctx context.Context) ([]*Organization, error) {
	sc, err := scope.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	return s.orgs.ListForUser(ctx, sc.UserID)
}

func (s *Service) AddMember(ctx context.Context, orgID uuid.UUID, userID string, perms scope.Permissions) (*Member, error) {
	if _, err := s.requireOwner(ctx, orgID); err != nil {
		return nil, err
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("member user id is required: %w", apperr.ErrValidation)
	}
	if _, err := s.orgs.GetMember(ctx, orgID, userID); err == nil {
		return nil, fmt.Errorf("user %s is already a member: %w", userID, apperr.ErrConflict)
	}
	m := &Member{
		OrganizationID: orgID,
		UserID:         userID,
		Role:           RoleMember,
		Permissions:    perms,
	}
	if err := s.orgs.AddMember(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Service) UpdateMemberPermissions(ctx context.Context, orgID uuid.UUID, userID string, perms scope.Permissions) (*Member, error) {
	org, err := s.requireOwner(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if userID == org.OwnerUserID {
		return nil, fmt.Errorf("owner permissions are fixed: %w", apperr.ErrValidation)
	}
	m, err := s.orgs.GetMember(ctx, orgID, userID)
	if err != nil {
		return nil, err
	}
	m.Permissions = perms
	if err := s.orgs.UpdateMember(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Service) RemoveMember(ctx context.Context, orgID uuid.UUID, userID string) error {
	org, err := s.requireOwner(ctx, orgID)
	if err != nil {
		return err
	}
	if userID == org.OwnerUserID {
		return fmt.Errorf("the owner cannot be removed: %w", apperr.ErrValidation)
	}
	return s.orgs.RemoveMember(ctx, orgID, userID)
}

func (s *Service) ListMembers(ctx context.Context, orgID uuid.UUID) ([]*Member, error) {
	if _, err := s.requireMember(ctx, orgID); err != nil {
		return nil, err
	}
	return s.orgs.ListMembers(ctx, orgID)
}

func (s *Service) requireMember(ctx context.Context, orgID uuid.UUID) (*Member, error) {
	sc, err := scope.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	m, err := s.orgs.GetMember(ctx, orgID, sc.UserID)
	if err != nil {
		return nil, fmt.Errorf("not a member of this organization: %w", apperr.ErrNotAuthorized)
	}
	return m, nil
}

func (s *Service) requireOwner(ctx context.Context, orgID uuid.UUID) (*Organization, error) {
	sc, err := scope.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	org, err := s.orgs.GetByID(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if org.OwnerUserID != sc.UserID {
		return nil, fmt.Errorf("only the organization owner may do this: %w", apperr.ErrNotAuthorized)
	}
	return org, nil
}
