package patient

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
	"github.com/clinichq/clinic/internal/platform/query"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const profileCols = `id, patient_identifier, first_name, surname, dob, gender,
	contact_info, allergies, medications, history, created_at, updated_at`

func scanProfile(row pgx.Row) (*Profile, error) {
	var p Profile
	err := row.Scan(&p.ID, &p.PatientIdentifier, &p.FirstName, &p.Surname, &p.DOB,
		&p.Gender, &p.ContactInfo, &p.Allergies, &p.Medications, &p.History,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("patient profile: %w", apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("%v: %w", err, apperr.ErrStorage)
	}
	return &p, nil
}

func (r *repoPG) Create(ctx context.Context, p *Profile) error {
	s, err := scope.FromContext(ctx)
	if err != nil {
		return err
	}
	p.ID = uuid.New()
	if p.History == nil {
		p.History = []string{}
	}
	_, err = r.conn(ctx).Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, %s, patient_identifier, first_name, surname, dob,
			gender, contact_info, allergies, medications, history)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		s.Table("patient_profiles"), s.OwnerColumn()),
		p.ID, s.OwnerID(), p.PatientIdentifier, p.FirstName, p.Surname, p.DOB,
		p.Gender, p.ContactInfo, p.Allergies, p.Medications, p.History)
	if err != nil {
		return fmt.Errorf("insert patient profile: %v: %w", err, apperr.ErrStorage)
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Profile, error) {
	s, err := scope.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	return scanProfile(r.conn(ctx).QueryRow(ctx, fmt.Sprintf(
		`SELECT %s FROM %s WHERE id = $1 AND %s = $2`,
		profileCols, s.Table("patient_profiles"), s.OwnerColumn()), id, s.OwnerID()))
}

func (r *repoPG) FindByIdentifier(ctx context.Context, identifier string) (*Profile, error) {
	s, err := scope.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	return scanProfile(r.conn(ctx).QueryRow(ctx, fmt.Sprintf(
		`SELECT %s FROM %s WHERE TRIM(patient_identifier) = $1 AND %s = $2`,
		profileCols, s.Table("patient_profiles"), s.OwnerColumn()), identifier, s.OwnerID()))
}

func (r *repoPG) FindByFirstName(ctx context.Context, firstName string) ([]*Profile, error) {
	s, err := scope.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := r.conn(ctx).Query(ctx, fmt.Sprintf(
		`SELECT %s FROM %s WHERE LOWER(first_name) = LOWER($1) AND %s = $2`,
		profileCols, s.Table("patient_profiles"), s.OwnerColumn()), firstName, s.OwnerID())
	if err != nil {
		return nil, fmt.Errorf("find patient profiles: %v: %w", err, apperr.ErrStorage)
	}
	defer rows.Close()

	var items []*Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, nil
}

func (r *repoPG) Update(ctx context.Context, p *Profile) error {
	s, err := scope.FromContext(ctx)
	if err != nil {
		return err
	}
	tag, err := r.conn(ctx).Exec(ctx, fmt.Sprintf(`
		UPDATE %s SET patient_identifier=$3, first_name=$4, surname=$5, dob=$6,
			gender=$7, contact_info=$8, allergies=$9, medications=$10, history=$11,
			updated_at=NOW()
		WHERE id = $1 AND %s = $2`,
		s.Table("patient_profiles"), s.OwnerColumn()),
		p.ID, s.OwnerID(), p.PatientIdentifier, p.FirstName, p.Surname, p.DOB,
		p.Gender, p.ContactInfo, p.Allergies, p.Medications, p.History)
	if err != nil {
		return fmt.Errorf("update patient profile: %v: %w", err, apperr.ErrStorage)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("patient profile %s: %w", p.ID, apperr.ErrNotFound)
	}
	return nil
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	s, err := scope.FromContext(ctx)
	if err != nil {
		return err
	}
	_, err = r.conn(ctx).Exec(ctx, fmt.Sprintf(
		`DELETE FROM %s WHERE id = $1 AND %s = $2`,
		s.Table("patient_profiles"), s.OwnerColumn()), id, s.OwnerID())
	if err != nil {
		return fmt.Errorf("delete patient profile: %v: %w", err, apperr.ErrStorage)
	}
	return nil
}

var profileSearchParams = map[string]query.ParamConfig{
	"name":       {Type: query.ParamContains, Column: "first_name"},
	"surname":    {Type: query.ParamContains, Column: "surname"},
	"identifier": {Type: query.ParamExact, Column: "patient_identifier"},
	"gender":     {Type: query.ParamExact, Column: "gender"},
}

func (r *repoPG) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Profile, int, error) {
	s, err := scope.FromContext(ctx)
	if err != nil {
		return nil, 0, err
	}

	qb := query.New(s.Table("patient_profiles"), profileCols)
	qb.Add(fmt.Sprintf("%s = $%d", s.OwnerColumn(), qb.Idx()), s.OwnerID())
	qb.ApplyParams(params, profileSearchParams)
	qb.OrderBy("first_name ASC, surname ASC")

	var total int
	if err := r.conn(ctx).QueryRow(ctx, qb.CountSQL(), qb.CountArgs()...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count patient profiles: %v: %w", err, apperr.ErrStorage)
	}

	rows, err := r.conn(ctx).Query(ctx, qb.DataSQL(), qb.DataArgs(limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("search patient profiles: %v: %w", err, apperr.ErrStorage)
	}
	defer rows.Close()
	var items []*Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, nil
}
