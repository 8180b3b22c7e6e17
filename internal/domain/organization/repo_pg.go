package organization

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinichq/clinic/internal/domain/scope"
	"github.com/clinichq/clinic/internal/platform/apperr"
	"github.com/clinichq/clinic/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type RepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) *RepoPG {
	return &RepoPG{pool: pool}
}

var (
	_ Repository               = (*RepoPG)(nil)
	_ scope.MembershipResolver = (*RepoPG)(nil)
)

func (r *RepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const orgCols = `id, name, owner_user_id, created_at, updated_at`

func scanOrg(row pgx.Row) (*Organization, error) {
	var o Organization
	err := row.Scan(&o.ID, &o.Name, &o.OwnerUserID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("organization: %w", apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("%v: %w", err, apperr.ErrStorage)
	}
	return &o, nil
}

func (r *RepoPG) Create(ctx context.Context, org *Organization) error {
	org.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO organizations (id, name, owner_user_id)
		VALUES ($1, $2, $3)`,
		org.ID, org.Name, org.OwnerUserID)
	if err != nil {
		return fmt.Errorf("insert organization: %v: %w", err, apperr.ErrStorage)
	}
	return nil
}

func (r *RepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Organization, error) {
	return scanOrg(r.conn(ctx).QueryRow(ctx,
		`SELECT `+orgCols+` FROM organizations WHERE id = $1`, id))
}

func (r *RepoPG) Update(ctx context.Context, org *Organization) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE organizations SET name = $2, updated_at = now() WHERE id = $1`,
		org.ID, org.Name)
	if err != nil {
		return fmt.Errorf("update organization: %v: %w", err, apperr.ErrStorage)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("organization: %w", apperr.ErrNotFound)
	}
	return nil
}

func (r *RepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM organizations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete organization: %v: %w", err, apperr.ErrStorage)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("organization: %w", apperr.ErrNotFound)
	}
	return nil
}

func (r *RepoPG) ListForUser(ctx context.Context, userID string) ([]*Organization, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+orgCols+` FROM organizations o
		WHERE EXISTS (
			SELECT 1 FROM org_members m
			WHERE m.organization_id = o.id AND m.user_id = $1
		)
		ORDER BY o.name ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list organizations: %v: %w", err, apperr.ErrStorage)
	}
	defer rows.Close()

	var out []*Organization
	for rows.Next() {
		var o Organization
		if err := rows.Scan(&o.ID, &o.Name, &o.OwnerUserID, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, fmt.Errorf("%v: %w", err, apperr.ErrStorage)
		}
		out = append(out, &o)
	}
	return out, rows.Err()
}

const memberCols = `id, organization_id, user_id, role, permissions, created_at`

func scanMember(row pgx.Row) (*Member, error) {
	var m Member
	err := row.Scan(&m.ID, &m.OrganizationID, &m.UserID, &m.Role, &m.Permissions, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("organization member: %w", apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("%v: %w", err, apperr.ErrStorage)
	}
	return &m, nil
}

func (r *RepoPG) AddMember(ctx context.Context, m *Member) error {
	m.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO org_members (id, organization_id, user_id, role, permissions)
		VALUES ($1, $2, $3, $4, $5)`,
		m.ID, m.OrganizationID, m.UserID, m.Role, m.Permissions)
	if err != nil {
		return fmt.Errorf("insert member: %v: %w", err, apperr.ErrStorage)
	}
	return nil
}

func (r *RepoPG) GetMember(ctx context.Context, orgID uuid.UUID, userID string) (*Member, error) {
	return scanMember(r.conn(ctx).QueryRow(ctx,
		`SELECT `+memberCols+` FROM org_members WHERE organization_id = $1 AND user_id = $2`,
		orgID, userID))
}

func (r *RepoPG) UpdateMember(ctx context.Context, m *Member) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE org_members SET role = $3, permissions = $4
		WHERE organization_id = $1 AND user_id = $2`,
		m.OrganizationID, m.UserID, m.Role, m.Permissions)
	if err != nil {
		return fmt.Errorf("update member: %v: %w", err, apperr.ErrStorage)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("organization member: %w", apperr.ErrNotFound)
	}
	return nil
}

func (r *RepoPG) RemoveMember(ctx context.Context, orgID uuid.UUID, userID string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		DELETE FROM org_members WHERE organization_id = $1 AND user_id = $2`,
		orgID, userID)
	if err != nil {
		return fmt.Errorf("delete member: %v: %w", err, apperr.ErrStorage)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("organization member: %w", apperr.ErrNotFound)
	}
	return nil
}

func (r *RepoPG) ListMembers(ctx context.Context, orgID uuid.UUID) ([]*Member, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+memberCols+` FROM org_members WHERE organization_id = $1
		ORDER BY created_at ASC`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list members: %v: %w", err, apperr.ErrStorage)
	}
	defer rows.Close()

	var out []*Member
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.ID, &m.OrganizationID, &m.UserID, &m.Role, &m.Permissions, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("%v: %w", err, apperr.ErrStorage)
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

// ResolveMember satisfies scope.MembershipResolver.
func (r *RepoPG) ResolveMember(ctx context.Context, orgID uuid.UUID, userID string) (scope.Permissions, error) {
	m, err := r.GetMember(ctx, orgID, userID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return scope.Permissions{}, fmt.Errorf("user %s is not a member of organization %s: %w",
				userID, orgID, apperr.ErrNotAuthorized)
		}
		return scope.Permissions{}, err
	}
	return m.Permissions, nil
}
