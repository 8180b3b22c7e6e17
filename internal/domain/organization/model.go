package organization

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinichq/clinic/internal/domain/scope"
)

// Organization is a shared clinic. Its clinical data lives in the
// org_-prefixed table partition keyed by the organization id.
type Organization struct {
	ID          uuid.UUID `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	OwnerUserID string    `db:"owner_user_id" json:"owner_user_id"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

const (
	RoleOwner  = "owner"
	RoleMember = "member"
)

// Member links a user to an organization with capability flags. The
// owner's flags are always fully granted.
type Member struct {
	ID             uuid.UUID         `db:"id" json:"id"`
	OrganizationID uuid.UUID         `db:"organization_id" json:"organization_id"`
	UserID         string            `db:"user_id" json:"user_id"`
	Role           string            `db:"role" json:"role"`
	Permissions    scope.Permissions `db:"permissions" json:"permissions"`
	CreatedAt      time.Time         `db:"created_at" json:"created_at"`
}

// FullPermissions is the flag set granted to owners.
func FullPermissions() scope.Permissions {
	return scope.Permissions{
		ManageInventory: true,
		WriteOffDrugs:   true,
		ManagePatients:  true,
	}
}
