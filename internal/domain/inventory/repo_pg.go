package inventory

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

const drugCols = `id, name, unit_price, status, stock_units,
	whole_packs, loose_units, units_per_pack, created_at, updated_at`

func scanDrug(row pgx.Row) (*DrugStockRecord, error) {
	var d DrugStockRecord
	var wholePacks, looseUnits, unitsPerPack *int
	err := row.Scan(&d.ID, &d.Name, &d.UnitPrice, &d.Status, &d.StockUnits,
		&wholePacks, &looseUnits, &unitsPerPack, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("drug: %w", apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("%v: %w", err, apperr.ErrStorage)
	}
	if unitsPerPack != nil {
		d.Packs = &PackStock{
			WholePacks:   intVal(wholePacks),
			LooseUnits:   intVal(looseUnits),
			UnitsPerPack: *unitsPerPack,
		}
	}
	return &d, nil
}

func intVal(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

func packCols(d *DrugStockRecord) (wholePacks, looseUnits, unitsPerPack *int) {
	if d.Packs == nil {
		return nil, nil, nil
	}
	return &d.Packs.WholePacks, &d.Packs.LooseUnits, &d.Packs.UnitsPerPack
}

func (r *repoPG) Create(ctx context.Context, d *DrugStockRecord) error {
	s, err := scope.FromContext(ctx)
	if err != nil {
		return err
	}
	d.ID = uuid.New()
	wp, lu, upp := packCols(d)
	_, err = r.conn(ctx).Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, %s, name, unit_price, status, stock_units,
			whole_packs, loose_units, units_per_pack)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		s.Table("drug_inventory"), s.OwnerColumn()),
		d.ID, s.OwnerID(), d.Name, d.UnitPrice, d.Status, d.StockUnits, wp, lu, upp)
	if err != nil {
		return fmt.Errorf("insert drug: %v: %w", err, apperr.ErrStorage)
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*DrugStockRecord, error) {
	s, err := scope.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	return scanDrug(r.conn(ctx).QueryRow(ctx, fmt.Sprintf(
		`SELECT %s FROM %s WHERE id = $1 AND %s = $2`,
		drugCols, s.Table("drug_inventory"), s.OwnerColumn()), id, s.OwnerID()))
}

func (r *repoPG) GetByName(ctx context.Context, name string) (*DrugStockRecord, error) {
	s, err := scope.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	return scanDrug(r.conn(ctx).QueryRow(ctx, fmt.Sprintf(
		`SELECT %s FROM %s WHERE LOWER(name) = LOWER($1) AND %s = $2`,
		drugCols, s.Table("drug_inventory"), s.OwnerColumn()), name, s.OwnerID()))
}

func (r *repoPG) Update(ctx context.Context, d *DrugStockRecord) error {
	s, err := scope.FromContext(ctx)
	if err != nil {
		return err
	}
	wp, lu, upp := packCols(d)
	tag, err := r.conn(ctx).Exec(ctx, fmt.Sprintf(`
		UPDATE %s SET name=$3, unit_price=$4, status=$5, stock_units=$6,
			whole_packs=$7, loose_units=$8, units_per_pack=$9, updated_at=NOW()
		WHERE id = $1 AND %s = $2`,
		s.Table("drug_inventory"), s.OwnerColumn()),
		d.ID, s.OwnerID(), d.Name, d.UnitPrice, d.Status, d.StockUnits, wp, lu, upp)
	if err != nil {
		return fmt.Errorf("update drug: %v: %w", err, apperr.ErrStorage)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("drug %s: %w", d.ID, apperr.ErrNotFound)
	}
	return nil
}

func (r *repoPG) CompareAndSwapStock(ctx context.Context, id uuid.UUID, old, new StockLevel) (bool, error) {
	s, err := scope.FromContext(ctx)
	if err != nil {
		return false, err
	}

	newWP, newLU := nullablePackCounts(new.Packs)
	oldWP, oldLU := nullablePackCounts(old.Packs)

	// The WHERE clause re-checks the previously observed stock values so
	// a concurrent writer loses cleanly instead of corrupting the count.
	tag, err := r.conn(ctx).Exec(ctx, fmt.Sprintf(`
		UPDATE %s SET stock_units=$3, whole_packs=$4, loose_units=$5, updated_at=NOW()
		WHERE id = $1 AND %s = $2
		  AND stock_units = $6
		  AND whole_packs IS NOT DISTINCT FROM $7
		  AND loose_units IS NOT DISTINCT FROM $8`,
		s.Table("drug_inventory"), s.OwnerColumn()),
		id, s.OwnerID(), new.StockUnits, newWP, newLU,
		old.StockUnits, oldWP, oldLU)
	if err != nil {
		return false, fmt.Errorf("swap stock: %v: %w", err, apperr.ErrStorage)
	}
	return tag.RowsAffected() == 1, nil
}

func nullablePackCounts(p *PackStock) (wholePacks, looseUnits *int) {
	if p == nil {
		return nil, nil
	}
	return &p.WholePacks, &p.LooseUnits
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	s, err := scope.FromContext(ctx)
	if err != nil {
		return err
	}
	_, err = r.conn(ctx).Exec(ctx, fmt.Sprintf(
		`DELETE FROM %s WHERE id = $1 AND %s = $2`,
		s.Table("drug_inventory"), s.OwnerColumn()), id, s.OwnerID())
	if err != nil {
		return fmt.Errorf("delete drug: %v: %w", err, apperr.ErrStorage)
	}
	return nil
}

func (r *repoPG) Retire(ctx context.Context, id uuid.UUID) error {
	s, err := scope.FromContext(ctx)
	if err != nil {
		return err
	}
	_, err = r.conn(ctx).Exec(ctx, fmt.Sprintf(
		`UPDATE %s SET status=$3, updated_at=NOW() WHERE id = $1 AND %s = $2`,
		s.Table("drug_inventory"), s.OwnerColumn()), id, s.OwnerID(), StatusRetired)
	if err != nil {
		return fmt.Errorf("retire drug: %v: %w", err, apperr.ErrStorage)
	}
	return nil
}

func (r *repoPG) ActiveNames(ctx context.Context) ([]string, error) {
	s, err := scope.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := r.conn(ctx).Query(ctx, fmt.Sprintf(`
		SELECT name FROM %s
		WHERE %s = $1 AND status = $2
		  AND COALESCE(whole_packs * units_per_pack + loose_units, stock_units) > 0
		ORDER BY name ASC`,
		s.Table("drug_inventory"), s.OwnerColumn()), s.OwnerID(), StatusActive)
	if err != nil {
		return nil, fmt.Errorf("list active drugs: %v: %w", err, apperr.ErrStorage)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("%v: %w", err, apperr.ErrStorage)
		}
		names = append(names, name)
	}
	return names, nil
}

var drugSearchParams = map[string]query.ParamConfig{
	"name":   {Type: query.ParamContains, Column: "name"},
	"status": {Type: query.ParamExact, Column: "status"},
}

func (r *repoPG) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*DrugStockRecord, int, error) {
	s, err := scope.FromContext(ctx)
	if err != nil {
		return nil, 0, err
	}

	qb := query.New(s.Table("drug_inventory"), drugCols)
	qb.Add(fmt.Sprintf("%s = $%d", s.OwnerColumn(), qb.Idx()), s.OwnerID())
	qb.ApplyParams(params, drugSearchParams)
	if params["low_stock"] == "true" {
		qb.Add(fmt.Sprintf("COALESCE(whole_packs * units_per_pack + loose_units, stock_units) <= $%d", qb.Idx()), 10)
	}
	qb.OrderBy("name ASC")

	var total int
	if err := r.conn(ctx).QueryRow(ctx, qb.CountSQL(), qb.CountArgs()...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count drugs: %v: %w", err, apperr.ErrStorage)
	}

	rows, err := r.conn(ctx).Query(ctx, qb.DataSQL(), qb.DataArgs(limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("search drugs: %v: %w", err, apperr.ErrStorage)
	}
	defer rows.Close()
	var items []*DrugStockRecord
	for rows.Next() {
		d, err := scanDrug(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, d)
	}
	return items, total, nil
}
