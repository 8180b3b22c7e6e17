package diagnosis

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

const diagnosisCols = `id, patient_name, patient_age, patient_gender, patient_identifier,
	patient_dob, patient_contact, allergies, medications, complaint, symptoms, vitals,
	primary_diagnosis, differential_diagnoses, treatment, recommended_actions, severity,
	ai_drug_suggestions, inventory_drugs, additional_drugs, created_at, updated_at`

func scanDiagnosis(row pgx.Row) (*Diagnosis, error) {
	var d Diagnosis
	err := row.Scan(&d.ID, &d.PatientName, &d.PatientAge, &d.PatientGender,
		&d.PatientIdentifier, &d.PatientDOB, &d.PatientContact, &d.Allergies,
		&d.Medications, &d.Complaint, &d.Symptoms, &d.Vitals,
		&d.PrimaryDiagnosis, &d.DifferentialDiagnoses, &d.Treatment,
		&d.RecommendedActions, &d.Severity,
		&d.AIDrugSuggestions, &d.InventoryDrugs, &d.AdditionalDrugs,
		&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("diagnosis: %w", apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("%v: %w", err, apperr.ErrStorage)
	}
	return &d, nil
}

func (r *repoPG) Create(ctx context.Context, d *Diagnosis) error {
	s, err := scope.FromContext(ctx)
	if err != nil {
		return err
	}
	d.ID = uuid.New()
	_, err = r.conn(ctx).Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, %s, patient_name, patient_age, patient_gender,
			patient_identifier, patient_dob, patient_contact, allergies, medications,
			complaint, symptoms, vitals, primary_diagnosis, differential_diagnoses,
			treatment, recommended_actions, severity, ai_drug_suggestions,
			inventory_drugs, additional_drugs)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)`,
		s.Table("diagnoses"), s.OwnerColumn()),
		d.ID, s.OwnerID(), d.PatientName, d.PatientAge, d.PatientGender,
		d.PatientIdentifier, d.PatientDOB, d.PatientContact, d.Allergies, d.Medications,
		d.Complaint, d.Symptoms, d.Vitals, d.PrimaryDiagnosis, d.DifferentialDiagnoses,
		d.Treatment, d.RecommendedActions, d.Severity, d.AIDrugSuggestions,
		d.InventoryDrugs, d.AdditionalDrugs)
	if err != nil {
		return fmt.Errorf("insert diagnosis: %v: %w", err, apperr.ErrStorage)
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Diagnosis, error) {
	s, err := scope.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	return scanDiagnosis(r.conn(ctx).QueryRow(ctx, fmt.Sprintf(
		`SELECT %s FROM %s WHERE id = $1 AND %s = $2`,
		diagnosisCols, s.Table("diagnoses"), s.OwnerColumn()), id, s.OwnerID()))
}

func (r *repoPG) Update(ctx context.Context, d *Diagnosis) error {
	s, err := scope.FromContext(ctx)
	if err != nil {
		return err
	}
	tag, err := r.conn(ctx).Exec(ctx, fmt.Sprintf(`
		UPDATE %s SET patient_name=$3, patient_age=$4, patient_gender=$5,
			patient_identifier=$6, patient_dob=$7, patient_contact=$8, allergies=$9,
			medications=$10, complaint=$11, symptoms=$12, vitals=$13,
			primary_diagnosis=$14, differential_diagnoses=$15, treatment=$16,
			recommended_actions=$17, severity=$18, ai_drug_suggestions=$19,
			inventory_drugs=$20, additional_drugs=$21, updated_at=NOW()
		WHERE id = $1 AND %s = $2`,
		s.Table("diagnoses"), s.OwnerColumn()),
		d.ID, s.OwnerID(), d.PatientName, d.PatientAge, d.PatientGender,
		d.PatientIdentifier, d.PatientDOB, d.PatientContact, d.Allergies, d.Medications,
		d.Complaint, d.Symptoms, d.Vitals, d.PrimaryDiagnosis, d.DifferentialDiagnoses,
		d.Treatment, d.RecommendedActions, d.Severity, d.AIDrugSuggestions,
		d.InventoryDrugs, d.AdditionalDrugs)
	if err != nil {
		return fmt.Errorf("update diagnosis: %v: %w", err, apperr.ErrStorage)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("diagnosis %s: %w", d.ID, apperr.ErrNotFound)
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
		s.Table("diagnoses"), s.OwnerColumn()), id, s.OwnerID())
	if err != nil {
		return fmt.Errorf("delete diagnosis: %v: %w", err, apperr.ErrStorage)
	}
	return nil
}

func (r *repoPG) DeleteForPatient(ctx context.Context, identifier, fullName string) error {
	s, err := scope.FromContext(ctx)
	if err != nil {
		return err
	}
	_, err = r.conn(ctx).Exec(ctx, fmt.Sprintf(`
		DELETE FROM %s WHERE %s = $1
		  AND (($2 <> '' AND TRIM(patient_identifier) = $2) OR patient_name = $3)`,
		s.Table("diagnoses"), s.OwnerColumn()), s.OwnerID(), identifier, fullName)
	if err != nil {
		return fmt.Errorf("delete patient diagnoses: %v: %w", err, apperr.ErrStorage)
	}
	return nil
}

var diagnosisSearchParams = map[string]query.ParamConfig{
	"patient":  {Type: query.ParamContains, Column: "patient_name"},
	"severity": {Type: query.ParamExact, Column: "severity"},
	"primary":  {Type: query.ParamContains, Column: "primary_diagnosis"},
	"since":    {Type: query.ParamDate, Column: "created_at"},
}

func (r *repoPG) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Diagnosis, int, error) {
	s, err := scope.FromContext(ctx)
	if err != nil {
		return nil, 0, err
	}

	qb := query.New(s.Table("diagnoses"), diagnosisCols)
	qb.Add(fmt.Sprintf("%s = $%d", s.OwnerColumn(), qb.Idx()), s.OwnerID())
	qb.ApplyParams(params, diagnosisSearchParams)
	qb.OrderBy("created_at DESC")

	var total int
	if err := r.conn(ctx).QueryRow(ctx, qb.CountSQL(), qb.CountArgs()...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count diagnoses: %v: %w", err, apperr.ErrStorage)
	}

	rows, err := r.conn(ctx).Query(ctx, qb.DataSQL(), qb.DataArgs(limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("search diagnoses: %v: %w", err, apperr.ErrStorage)
	}
	defer rows.Close()
	var items []*Diagnosis
	for rows.Next() {
		d, err := scanDiagnosis(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, d)
	}
	return items, total, nil
}
