package diagnosis

import (
	"time"

	"github.com/google/uuid"
)

// Diagnosis is one clinical encounter. The narrative fields are ordered
// text lists and the drug fields carry three categories: what the AI
// suggested, what was matched to the owner's inventory, and external
// drugs never catalogued. Edits replace array fields wholesale.
type Diagnosis struct {
	ID uuid.UUID `db:"id" json:"id"`

	PatientName       string     `db:"patient_name" json:"patient_name"`
	PatientAge        *int       `db:"patient_age" json:"patient_age,omitempty"`
	PatientGender     string     `db:"patient_gender" json:"patient_gender,omitempty"`
	PatientIdentifier string     `db:"patient_identifier" json:"patient_identifier,omitempty"`
	PatientDOB        *time.Time `db:"patient_dob" json:"patient_dob,omitempty"`
	PatientContact    string     `db:"patient_contact" json:"patient_contact,omitempty"`
	Allergies         string     `db:"allergies" json:"allergies,omitempty"`
	Medications       string     `db:"medications" json:"medications,omitempty"`

	Complaint string            `db:"complaint" json:"complaint"`
	Symptoms  []string          `db:"symptoms" json:"symptoms,omitempty"`
	Vitals    map[string]string `db:"vitals" json:"vitals,omitempty"`

	PrimaryDiagnosis      string   `db:"primary_diagnosis" json:"primary_diagnosis"`
	DifferentialDiagnoses []string `db:"differential_diagnoses" json:"differential_diagnoses,omitempty"`
	Treatment             []string `db:"treatment" json:"treatment,omitempty"`
	RecommendedActions    []string `db:"recommended_actions" json:"recommended_actions,omitempty"`
	Severity              string   `db:"severity" json:"severity,omitempty"`

	AIDrugSuggestions []DrugEntry `db:"ai_drug_suggestions" json:"ai_drug_suggestions,omitempty"`
	InventoryDrugs    []DrugEntry `db:"inventory_drugs" json:"inventory_drugs,omitempty"`
	AdditionalDrugs   []DrugEntry `db:"additional_drugs" json:"additional_drugs,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// DrugEntry is one drug in a diagnosis's drug lists.
type DrugEntry struct {
	Name       string `json:"name"`
	Quantity   int    `json:"quantity,omitempty"`
	Packs      int    `json:"packs,omitempty"`
	LooseUnits int    `json:"loose_units,omitempty"`
	Notes      string `json:"notes,omitempty"`
}

// SaveOutcome reports a composite save. The diagnosis itself always
// saves or the whole call fails; the secondary steps (profile merge,
// dispensing) are best-effort and listed in FailedSteps when they fail.
type SaveOutcome struct {
	Diagnosis   *Diagnosis `json:"diagnosis"`
	FailedSteps []string   `json:"failed_steps,omitempty"`
}

// FullySucceeded reports whether every secondary step completed.
func (o *SaveOutcome) FullySucceeded() bool {
	return len(o.FailedSteps) == 0
}

const (
	StepPatientProfile = "patient_profile"
	StepDispensing     = "dispensing"
)
