package dispensing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinichq/clinic/internal/domain/inventory"
	"github.com/clinichq/clinic/internal/domain/scope"
	"github.com/clinichq/clinic/internal/platform/apperr"
)

// -- Mock Repositories --

type mockRecordRepo struct {
	records []*Record
	// failDelete makes Delete a silent no-op, simulating a row-security
	// policy filtering the statement.
	failDelete bool
	clock      time.Time
}

func newMockRecordRepo() *mockRecordRepo {
	return &mockRecordRepo{clock: time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)}
}

func (m *mockRecordRepo) Create(_ context.Context, r *Record) error {
	r.ID = uuid.New()
	if r.DispensedAt.IsZero() {
		r.DispensedAt = m.clock
	}
	m.clock = m.clock.Add(time.Minute)
	m.records = append(m.records, r)
	return nil
}

func (m *mockRecordRepo) GetByID(_ context.Context, id uuid.UUID) (*Record, error) {
	for _, r := range m.records {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, fmt.Errorf("dispensing record: %w", apperr.ErrNotFound)
}

func (m *mockRecordRepo) List(_ context.Context, limit, offset int) ([]*Record, int, error) {
	return m.records, len(m.records), nil
}

// ListAll returns oldest-first regardless of insertion order, matching
// the repository contract.
func (m *mockRecordRepo) ListAll(_ context.Context) ([]*Record, error) {
	out := append([]*Record(nil), m.records...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DispensedAt.Before(out[j].DispensedAt)
	})
	return out, nil
}

func (m *mockRecordRepo) ListByDiagnosis(_ context.Context, diagnosisID uuid.UUID) ([]*Record, error) {
	var out []*Record
	for _, r := range m.records {
		if r.DiagnosisID != nil && *r.DiagnosisID == diagnosisID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockRecordRepo) Delete(_ context.Context, id uuid.UUID) error {
	if m.failDelete {
		return nil
	}
	for i, r := range m.records {
		if r.ID == id {
			m.records = append(m.records[:i], m.records[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *mockRecordRepo) DeleteByDiagnosis(_ context.Context, diagnosisID uuid.UUID) error {
	var kept []*Record
	for _, r := range m.records {
		if r.DiagnosisID == nil || *r.DiagnosisID != diagnosisID {
			kept = append(kept, r)
		}
	}
	m.records = kept
	return nil
}

func (m *mockRecordRepo) HasHistory(_ context.Context, drugID uuid.UUID) (bool, error) {
	for _, r := range m.records {
		if r.DrugID != nil && *r.DrugID == drugID {
			return true, nil
		}
	}
	return false, nil
}

type mockAuditRepo struct {
	entries []*UsageAuditEntry
}

func (m *mockAuditRepo) Append(_ context.Context, e *UsageAuditEntry) error {
	e.ID = uuid.New()
	m.entries = append(m.entries, e)
	return nil
}

func (m *mockAuditRepo) List(_ context.Context, limit, offset int) ([]*UsageAuditEntry, int, error) {
	return m.entries, len(m.entries), nil
}

func (m *mockAuditRepo) Clear(_ context.Context) error {
	m.entries = nil
	return nil
}

type mockCatalog struct {
	byName map[string]*inventory.DrugStockRecord
}

func newMockCatalog() *mockCatalog {
	return &mockCatalog{byName: make(map[string]*inventory.DrugStockRecord)}
}

func (m *mockCatalog) addDrug(name string, units int) *inventory.DrugStockRecord {
	d := &inventory.DrugStockRecord{
		ID: uuid.New(), Name: name, Status: inventory.StatusActive, StockUnits: units,
	}
	m.byName[name] = d
	return d
}

func (m *mockCatalog) EnsureCatalogued(_ context.Context, name string) (*inventory.DrugStockRecord, error) {
	if d, ok := m.byName[name]; ok {
		return d, nil
	}
	d := &inventory.DrugStockRecord{ID: uuid.New(), Name: name, Status: inventory.StatusActive}
	m.byName[name] = d
	return d, nil
}

func (m *mockCatalog) AdjustStock(_ context.Context, drugID uuid.UUID, qty int, dir inventory.Direction, opts inventory.SubtractOptions) error {
	for _, d := range m.byName {
		if d.ID == drugID {
			if dir == inventory.DirectionAdd {
				return d.Add(qty)
			}
			return d.Subtract(qty, opts)
		}
	}
	return fmt.Errorf("drug %s: %w", drugID, apperr.ErrNotFound)
}

func (m *mockCatalog) GetDrug(_ context.Context, id uuid.UUID) (*inventory.DrugStockRecord, error) {
	for _, d := range m.byName {
		if d.ID == id {
			return d, nil
		}
	}
	return nil, fmt.Errorf("drug %s: %w", id, apperr.ErrNotFound)
}

func passthroughTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func testCtx() context.Context {
	return scope.NewContext(context.Background(), scope.Individual("practitioner-1"))
}

func newTestService() (*Service, *mockRecordRepo, *mockAuditRepo, *mockCatalog) {
	records := newMockRecordRepo()
	audit := &mockAuditRepo{}
	catalog := newMockCatalog()
	svc := NewService(records, audit, catalog, passthroughTx, zerolog.Nop())
	return svc, records, audit, catalog
}

// -- Tests --

func TestRecordSet_SubtractsStock(t *testing.T) {
	svc, records, _, catalog := newTestService()
	drug := catalog.addDrug("Amoxicillin 500mg", 50)
	diagID := uuid.New()

	outcome, err := svc.RecordSet(testCtx(), &diagID, []Line{
		{DrugName: "Amoxicillin 500mg", Quantity: 15},
	}, Snapshot{PatientName: "Jo Bloggs"})
	if err != nil {
		t.Fatalf("RecordSet: %v", err)
	}
	if len(outcome.Records) != 1 || len(outcome.FailedLines) != 0 {
		t.Fatalf("outcome = %+v", outcome)
	}
	if drug.StockUnits != 35 {
		t.Errorf("StockUnits = %d, want 35", drug.StockUnits)
	}
	if len(records.records) != 1 {
		t.Fatalf("records = %d, want 1", len(records.records))
	}
	rec := records.records[0]
	if rec.DrugID == nil || *rec.DrugID != drug.ID {
		t.Error("record not linked to catalog drug")
	}
	if rec.PatientName != "Jo Bloggs" {
		t.Errorf("PatientName = %q", rec.PatientName)
	}
}

func TestRecordSet_ReplacesPriorSet(t *testing.T) {
	svc, records, _, catalog := newTestService()
	catalog.addDrug("Ibuprofen 200mg", 100)
	catalog.addDrug("Paracetamol 500mg", 100)
	diagID := uuid.New()

	_, err := svc.RecordSet(testCtx(), &diagID, []Line{
		{DrugName: "Ibuprofen 200mg", Quantity: 10},
		{DrugName: "Paracetamol 500mg", Quantity: 12},
	}, Snapshot{PatientName: "A"})
	if err != nil {
		t.Fatalf("first RecordSet: %v", err)
	}

	_, err = svc.RecordSet(testCtx(), &diagID, []Line{
		{DrugName: "Paracetamol 500mg", Quantity: 6},
	}, Snapshot{PatientName: "A"})
	if err != nil {
		t.Fatalf("second RecordSet: %v", err)
	}

	got, _ := records.ListByDiagnosis(context.Background(), diagID)
	if len(got) != 1 {
		t.Fatalf("records after replace = %d, want 1", len(got))
	}
	if got[0].DrugName != "Paracetamol 500mg" || got[0].Quantity != 6 {
		t.Errorf("surviving record = %q x%d", got[0].DrugName, got[0].Quantity)
	}
}

func TestRecordSet_CreatesPlaceholderForUnknownDrug(t *testing.T) {
	svc, records, _, catalog := newTestService()
	diagID := uuid.New()

	outcome, err := svc.RecordSet(testCtx(), &diagID, []Line{
		{DrugName: "Specialist Import", Quantity: 5},
	}, Snapshot{PatientName: "B"})
	if err != nil {
		t.Fatalf("RecordSet: %v", err)
	}

	placeholder, ok := catalog.byName["Specialist Import"]
	if !ok {
		t.Fatal("placeholder not catalogued")
	}
	if placeholder.TotalUnits() != 0 {
		t.Errorf("placeholder TotalUnits = %d, want 0", placeholder.TotalUnits())
	}
	if records.records[0].DrugID == nil {
		t.Error("record has no drug reference")
	}
	// zero stock means the ledger step fails but the record stays
	if len(outcome.FailedLines) != 1 || outcome.FailedLines[0] != "Specialist Import" {
		t.Errorf("FailedLines = %v", outcome.FailedLines)
	}
}

func TestRecordSet_LedgerFailureDoesNotAbortBatch(t *testing.T) {
	svc, records, _, catalog := newTestService()
	catalog.addDrug("Low Stock", 2)
	catalog.addDrug("Plenty", 50)
	diagID := uuid.New()

	outcome, err := svc.RecordSet(testCtx(), &diagID, []Line{
		{DrugName: "Low Stock", Quantity: 10},
		{DrugName: "Plenty", Quantity: 10},
	}, Snapshot{PatientName: "C"})
	if err != nil {
		t.Fatalf("RecordSet: %v", err)
	}
	if len(records.records) != 2 {
		t.Errorf("records = %d, want 2 (batch must not abort)", len(records.records))
	}
	if len(outcome.FailedLines) != 1 || outcome.FailedLines[0] != "Low Stock" {
		t.Errorf("FailedLines = %v", outcome.FailedLines)
	}
	if catalog.byName["Plenty"].StockUnits != 40 {
		t.Errorf("Plenty stock = %d, want 40", catalog.byName["Plenty"].StockUnits)
	}
}

func TestRecordSet_PackBreakdownRendersNote(t *testing.T) {
	svc, records, _, catalog := newTestService()
	d := catalog.addDrug("Amoxicillin 500mg", 100)
	d.Packs = &inventory.PackStock{WholePacks: 10, UnitsPerPack: 10}
	d.StockUnits = 0
	diagID := uuid.New()

	_, err := svc.RecordSet(testCtx(), &diagID, []Line{
		{DrugName: "Amoxicillin 500mg", Packs: 2, LooseUnits: 3},
	}, Snapshot{PatientName: "D"})
	if err != nil {
		t.Fatalf("RecordSet: %v", err)
	}

	rec := records.records[0]
	if rec.Quantity != 23 {
		t.Errorf("Quantity = %d, want 23 (2 packs of 10 + 3)", rec.Quantity)
	}
	if rec.Notes != "Dispensed: 2 pack(s) + 3 tablets" {
		t.Errorf("Notes = %q", rec.Notes)
	}
	if rec.Packs != 2 || rec.LooseUnits != 3 {
		t.Errorf("structured breakdown = %d/%d", rec.Packs, rec.LooseUnits)
	}
}

func TestRecordSet_Validation(t *testing.T) {
	svc, _, _, _ := newTestService()
	diagID := uuid.New()

	_, err := svc.RecordSet(testCtx(), &diagID, []Line{{Quantity: 5}}, Snapshot{})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("missing drug name err = %v, want ErrValidation", err)
	}

	_, err = svc.RecordSet(testCtx(), &diagID, []Line{{DrugName: "x", Quantity: -1}}, Snapshot{})
	if !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("negative quantity err = %v, want ErrValidation", err)
	}
}

func TestDelete_FinalConsumption(t *testing.T) {
	svc, records, audit, catalog := newTestService()
	drug := catalog.addDrug("Amoxicillin 500mg", 50)
	diagID := uuid.New()

	outcome, err := svc.RecordSet(testCtx(), &diagID, []Line{
		{DrugName: "Amoxicillin 500mg", Quantity: 10},
	}, Snapshot{PatientName: "E"})
	if err != nil {
		t.Fatalf("RecordSet: %v", err)
	}
	recID := outcome.Records[0].ID

	if err := svc.Delete(testCtx(), recID, "expired"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	// 50 - 10 at dispense time, another -10 on delete
	if drug.StockUnits != 30 {
		t.Errorf("StockUnits = %d, want 30", drug.StockUnits)
	}
	if len(records.records) != 0 {
		t.Error("record not deleted")
	}
	if len(audit.entries) != 1 {
		t.Fatalf("audit entries = %d, want 1", len(audit.entries))
	}
	e := audit.entries[0]
	if e.DrugName != "Amoxicillin 500mg" || e.Quantity != 10 || e.Reason != "expired" || e.RecordID != recID {
		t.Errorf("audit entry = %+v", e)
	}
}

func TestDelete_RequiresPermission(t *testing.T) {
	svc, _, _, catalog := newTestService()
	catalog.addDrug("Amoxicillin 500mg", 50)
	diagID := uuid.New()
	outcome, err := svc.RecordSet(testCtx(), &diagID, []Line{
		{DrugName: "Amoxicillin 500mg", Quantity: 5},
	}, Snapshot{})
	if err != nil {
		t.Fatalf("RecordSet: %v", err)
	}

	ctx := scope.NewContext(context.Background(),
		scope.Organization("assistant-1", uuid.New(), scope.Permissions{ManagePatients: true}))
	err = svc.Delete(ctx, outcome.Records[0].ID, "mistake")
	if !errors.Is(err, apperr.ErrNotAuthorized) {
		t.Fatalf("err = %v, want ErrNotAuthorized", err)
	}
}

func TestDelete_VerifiesRemoval(t *testing.T) {
	svc, records, _, catalog := newTestService()
	catalog.addDrug("Amoxicillin 500mg", 50)
	diagID := uuid.New()
	outcome, err := svc.RecordSet(testCtx(), &diagID, []Line{
		{DrugName: "Amoxicillin 500mg", Quantity: 5},
	}, Snapshot{})
	if err != nil {
		t.Fatalf("RecordSet: %v", err)
	}

	records.failDelete = true
	err = svc.Delete(testCtx(), outcome.Records[0].ID, "stale")
	if !errors.Is(err, ErrDeleteNotVerified) {
		t.Fatalf("err = %v, want ErrDeleteNotVerified", err)
	}
}

func TestDeduplicate_KeepsEarliest(t *testing.T) {
	svc, records, _, catalog := newTestService()
	drug := catalog.addDrug("Ibuprofen 200mg", 100)
	diagID := uuid.New()

	// Inserted out of timestamp order: the earliest row is the second
	// one created.
	base := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	var earliest uuid.UUID
	for _, offset := range []time.Duration{2 * time.Hour, 0, time.Hour} {
		rec := &Record{
			DrugID: &drug.ID, DiagnosisID: &diagID, DrugName: drug.Name,
			Quantity: 5, DispensedAt: base.Add(offset),
		}
		if err := records.Create(context.Background(), rec); err != nil {
			t.Fatalf("Create: %v", err)
		}
		if offset == 0 {
			earliest = rec.ID
		}
	}

	removed, err := svc.Deduplicate(testCtx())
	if err != nil {
		t.Fatalf("Deduplicate: %v", err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}
	if len(records.records) != 1 || records.records[0].ID != earliest {
		t.Error("earliest record was not the one retained")
	}
	if drug.StockUnits != 100 {
		t.Errorf("stock changed during dedup: %d", drug.StockUnits)
	}

	// idempotent
	removed, err = svc.Deduplicate(testCtx())
	if err != nil {
		t.Fatalf("second Deduplicate: %v", err)
	}
	if removed != 0 {
		t.Errorf("second run removed %d, want 0", removed)
	}
}

func TestDeduplicate_IgnoresUnlinkedRecords(t *testing.T) {
	svc, records, _, _ := newTestService()
	drugID := uuid.New()

	// ad-hoc dispensing (no diagnosis) must never be collapsed
	for i := 0; i < 2; i++ {
		rec := &Record{DrugID: &drugID, DrugName: "Saline", Quantity: 1}
		if err := records.Create(context.Background(), rec); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	removed, err := svc.Deduplicate(testCtx())
	if err != nil {
		t.Fatalf("Deduplicate: %v", err)
	}
	if removed != 0 {
		t.Errorf("removed = %d, want 0", removed)
	}
}

func TestClearAudit(t *testing.T) {
	svc, _, audit, _ := newTestService()
	audit.entries = []*UsageAuditEntry{{DrugName: "x"}, {DrugName: "y"}}

	if err := svc.ClearAudit(testCtx()); err != nil {
		t.Fatalf("ClearAudit: %v", err)
	}
	if len(audit.entries) != 0 {
		t.Errorf("entries = %d, want 0", len(audit.entries))
	}
}
