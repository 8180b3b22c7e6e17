package dispensing

import (
	"time"

	"github.com/google/uuid"
)

// Record is one dispensing event: a quantity of a drug consumed for a
// diagnosis. DrugID is nil for external prescriptions that were never
// catalogued; DiagnosisID is nil for ad-hoc dispensing. The patient
// fields are a snapshot taken at dispensing time so the record stays
// displayable after the source diagnosis or profile changes.
type Record struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	DrugID      *uuid.UUID `db:"drug_id" json:"drug_id,omitempty"`
	DiagnosisID *uuid.UUID `db:"diagnosis_id" json:"diagnosis_id,omitempty"`
	DrugName    string     `db:"drug_name" json:"drug_name"`
	// Quantity is the tablet-equivalent total. Packs and LooseUnits hold
	// the structured breakdown; Notes carries the rendered legacy form
	// for display.
	Quantity   int    `db:"quantity" json:"quantity"`
	Packs      int    `db:"packs" json:"packs"`
	LooseUnits int    `db:"loose_units" json:"loose_units"`
	Notes      string `db:"notes" json:"notes"`

	PatientName   string `db:"patient_name" json:"patient_name"`
	PatientAge    *int   `db:"patient_age" json:"patient_age,omitempty"`
	PatientGender string `db:"patient_gender" json:"patient_gender,omitempty"`
	DiagnosisText string `db:"diagnosis_text" json:"diagnosis_text,omitempty"`

	DispensedAt time.Time `db:"dispensed_at" json:"dispensed_at"`
}

// Snapshot carries the patient fields captured onto each record in a set.
type Snapshot struct {
	PatientName   string `json:"patient_name"`
	PatientAge    *int   `json:"patient_age,omitempty"`
	PatientGender string `json:"patient_gender,omitempty"`
	DiagnosisText string `json:"diagnosis_text,omitempty"`
}

// Line is one drug entry in a set to be recorded against a diagnosis.
type Line struct {
	DrugName   string `json:"drug_name"`
	Quantity   int    `json:"quantity"`
	Packs      int    `json:"packs"`
	LooseUnits int    `json:"loose_units"`
	Notes      string `json:"notes,omitempty"`
}

// UsageAuditEntry is an append-only trail row written when a dispensing
// record is removed. Entries leave the trail only through a bulk clear.
type UsageAuditEntry struct {
	ID       uuid.UUID  `db:"id" json:"id"`
	DrugID   *uuid.UUID `db:"drug_id" json:"drug_id,omitempty"`
	DrugName string     `db:"drug_name" json:"drug_name"`
	Quantity int        `db:"quantity" json:"quantity"`
	Reason   string     `db:"reason" json:"reason"`
	RecordID uuid.UUID  `db:"record_id" json:"record_id"`
	RemovedAt time.Time `db:"removed_at" json:"removed_at"`
}

// SetOutcome reports the result of recording a dispensing set. Stock
// subtraction is best-effort per line; FailedLines names the drugs whose
// ledger update failed while the records themselves were still written.
type SetOutcome struct {
	Records     []*Record `json:"records"`
	FailedLines []string  `json:"failed_lines,omitempty"`
}
