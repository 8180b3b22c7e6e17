package organization

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists organizations and their memberships. These tables
// are global rather than owner-partitioned: the organization itself is
// the partition key for the clinical tables.
type Repository interface {
	Create(ctx context.Context, org *Organization) error
	GetByID(ctx context.Context, id uuid.UUID) (*Organization, error)
	Update(ctx context.Context, org *Organization) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListForUser(ctx context.Context, userID string) ([]*Organization, error)

	AddMember(ctx context.Context, m *Member) error
	GetMember(ctx context.Context, orgID uuid.UUID, userID string) (*Member, error)
	UpdateMember(ctx context.Context, m *Member) error
	RemoveMember(ctx context.Context, orgID uuid.UUID, userID string) error
	ListMembers(ctx context.Context, orgID uuid.UUID) ([]*Member, error)
}
