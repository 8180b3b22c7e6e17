package dispensing

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

const recordCols = `id, drug_id, diagnosis_id, drug_name, quantity, packs, loose_units,
	notes, patient_name, patient_age, patient_gender, diagnosis_text, dispensed_at`

func scanRecord(row pgx.Row) (*Record, error) {
	var rec Record
	err := row.Scan(&rec.ID, &rec.DrugID, &rec.DiagnosisID, &rec.DrugName,
		&rec.Quantity, &rec.Packs, &rec.LooseUnits, &rec.Notes,
		&rec.PatientName, &rec.PatientAge, &rec.PatientGender,
		&rec.DiagnosisText, &rec.DispensedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("dispensing record: %w", apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("%v: %w", err, apperr.ErrStorage)
	}
	return &rec, nil
}

func (r *repoPG) Create(ctx context.Context, rec *Record) error {
	s, err := scope.FromContext(ctx)
	if err != nil {
		return err
	}
	rec.ID = uuid.New()
	_, err = r.conn(ctx).Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, %s, drug_id, diagnosis_id, drug_name, quantity, packs,
			loose_units, notes, patient_name, patient_age, patient_gender,
			diagnosis_text, dispensed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		s.Table("dispensing_history"), s.OwnerColumn()),
		rec.ID, s.OwnerID(), rec.DrugID, rec.DiagnosisID, rec.DrugName,
		rec.Quantity, rec.Packs, rec.LooseUnits, rec.Notes,
		rec.PatientName, rec.PatientAge, rec.PatientGender,
		rec.DiagnosisText, rec.DispensedAt)
	if err != nil {
		return fmt.Errorf("insert dispensing record: %v: %w", err, apperr.ErrStorage)
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Record, error) {
	s, err := scope.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	return scanRecord(r.conn(ctx).QueryRow(ctx, fmt.Sprintf(
		`SELECT %s FROM %s WHERE id = $1 AND %s = $2`,
		recordCols, s.Table("dispensing_history"), s.OwnerColumn()), id, s.OwnerID()))
}

func (r *repoPG) List(ctx context.Context, limit, offset int) ([]*Record, int, error) {
	s, err := scope.FromContext(ctx)
	if err != nil {
		return nil, 0, err
	}
	table := s.Table("dispensing_history")

	var total int
	err = r.conn(ctx).QueryRow(ctx, fmt.Sprintf(
		`SELECT COUNT(*) FROM %s WHERE %s = $1`, table, s.OwnerColumn()),
		s.OwnerID()).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count dispensing records: %v: %w", err, apperr.ErrStorage)
	}

	rows, err := r.conn(ctx).Query(ctx, fmt.Sprintf(
		`SELECT %s FROM %s WHERE %s = $1 ORDER BY dispensed_at DESC LIMIT $2 OFFSET $3`,
		recordCols, table, s.OwnerColumn()), s.OwnerID(), limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list dispensing records: %v: %w", err, apperr.ErrStorage)
	}
	defer rows.Close()
	items, err := collectRecords(rows)
	return items, total, err
}

func (r *repoPG) ListAll(ctx context.Context) ([]*Record, error) {
	s, err := scope.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := r.conn(ctx).Query(ctx, fmt.Sprintf(
		`SELECT %s FROM %s WHERE %s = $1 ORDER BY dispensed_at ASC`,
		recordCols, s.Table("dispensing_history"), s.OwnerColumn()), s.OwnerID())
	if err != nil {
		return nil, fmt.Errorf("list dispensing records: %v: %w", err, apperr.ErrStorage)
	}
	defer rows.Close()
	return collectRecords(rows)
}

func (r *repoPG) ListByDiagnosis(ctx context.Context, diagnosisID uuid.UUID) ([]*Record, error) {
	s, err := scope.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := r.conn(ctx).Query(ctx, fmt.Sprintf(
		`SELECT %s FROM %s WHERE diagnosis_id = $1 AND %s = $2 ORDER BY dispensed_at ASC`,
		recordCols, s.Table("dispensing_history"), s.OwnerColumn()), diagnosisID, s.OwnerID())
	if err != nil {
		return nil, fmt.Errorf("list dispensing records: %v: %w", err, apperr.ErrStorage)
	}
	defer rows.Close()
	return collectRecords(rows)
}

func collectRecords(rows pgx.Rows) ([]*Record, error) {
	var items []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, rec)
	}
	return items, nil
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	s, err := scope.FromContext(ctx)
	if err != nil {
		return err
	}
	_, err = r.conn(ctx).Exec(ctx, fmt.Sprintf(
		`DELETE FROM %s WHERE id = $1 AND %s = $2`,
		s.Table("dispensing_history"), s.OwnerColumn()), id, s.OwnerID())
	if err != nil {
		return fmt.Errorf("delete dispensing record: %v: %w", err, apperr.ErrStorage)
	}
	return nil
}

func (r *repoPG) DeleteByDiagnosis(ctx context.Context, diagnosisID uuid.UUID) error {
	s, err := scope.FromContext(ctx)
	if err != nil {
		return err
	}
	_, err = r.conn(ctx).Exec(ctx, fmt.Sprintf(
		`DELETE FROM %s WHERE diagnosis_id = $1 AND %s = $2`,
		s.Table("dispensing_history"), s.OwnerColumn()), diagnosisID, s.OwnerID())
	if err != nil {
		return fmt.Errorf("delete dispensing records: %v: %w", err, apperr.ErrStorage)
	}
	return nil
}

func (r *repoPG) HasHistory(ctx context.Context, drugID uuid.UUID) (bool, error) {
	s, err := scope.FromContext(ctx)
	if err != nil {
		return false, err
	}
	var exists bool
	err = r.conn(ctx).QueryRow(ctx, fmt.Sprintf(
		`SELECT EXISTS(SELECT 1 FROM %s WHERE drug_id = $1 AND %s = $2)`,
		s.Table("dispensing_history"), s.OwnerColumn()), drugID, s.OwnerID()).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check dispensing history: %v: %w", err, apperr.ErrStorage)
	}
	return exists, nil
}

// -- Usage audit --

type auditRepoPG struct{ pool *pgxpool.Pool }

func NewAuditRepoPG(pool *pgxpool.Pool) AuditRepository {
	return &auditRepoPG{pool: pool}
}

func (r *auditRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const auditCols = `id, drug_id, drug_name, quantity, reason, record_id, removed_at`

func (r *auditRepoPG) Append(ctx context.Context, e *UsageAuditEntry) error {
	s, err := scope.FromContext(ctx)
	if err != nil {
		return err
	}
	e.ID = uuid.New()
	_, err = r.conn(ctx).Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, %s, drug_id, drug_name, quantity, reason, record_id, removed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		s.Table("usage_audit"), s.OwnerColumn()),
		e.ID, s.OwnerID(), e.DrugID, e.DrugName, e.Quantity, e.Reason, e.RecordID, e.RemovedAt)
	if err != nil {
		return fmt.Errorf("append usage audit: %v: %w", err, apperr.ErrStorage)
	}
	return nil
}

func (r *auditRepoPG) List(ctx context.Context, limit, offset int) ([]*UsageAuditEntry, int, error) {
	s, err := scope.FromContext(ctx)
	if err != nil {
		return nil, 0, err
	}
	table := s.Table("usage_audit")

	var total int
	err = r.conn(ctx).QueryRow(ctx, fmt.Sprintf(
		`SELECT COUNT(*) FROM %s WHERE %s = $1`, table, s.OwnerColumn()),
		s.OwnerID()).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count usage audit: %v: %w", err, apperr.ErrStorage)
	}

	rows, err := r.conn(ctx).Query(ctx, fmt.Sprintf(
		`SELECT %s FROM %s WHERE %s = $1 ORDER BY removed_at DESC LIMIT $2 OFFSET $3`,
		auditCols, table, s.OwnerColumn()), s.OwnerID(), limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list usage audit: %v: %w", err, apperr.ErrStorage)
	}
	defer rows.Close()

	var items []*UsageAuditEntry
	for rows.Next() {
		var e UsageAuditEntry
		if err := rows.Scan(&e.ID, &e.DrugID, &e.DrugName, &e.Quantity,
			&e.Reason, &e.RecordID, &e.RemovedAt); err != nil {
			return nil, 0, fmt.Errorf("%v: %w", err, apperr.ErrStorage)
		}
		items = append(items, &e)
	}
	return items, total, nil
}

func (r *auditRepoPG) Clear(ctx context.Context) error {
	s, err := scope.FromContext(ctx)
	if err != nil {
		return err
	}
	_, err = r.conn(ctx).Exec(ctx, fmt.Sprintf(
		`DELETE FROM %s WHERE %s = $1`,
		s.Table("usage_audit"), s.OwnerColumn()), s.OwnerID())
	if err != nil {
		return fmt.Errorf("clear usage audit: %v: %w", err, apperr.ErrStorage)
	}
	return nil
}
