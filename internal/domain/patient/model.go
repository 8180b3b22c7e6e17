package patient

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Profile is the longitudinal patient record an owner keeps across
// visits. History accumulates primary diagnoses; the other clinical
// fields hold the latest non-empty values seen.
type Profile struct {
	ID                uuid.UUID  `db:"id" json:"id"`
	PatientIdentifier string     `db:"patient_identifier" json:"patient_identifier,omitempty"`
	FirstName         string     `db:"first_name" json:"first_name"`
	Surname           string     `db:"surname" json:"surname,omitempty"`
	DOB               *time.Time `db:"dob" json:"dob,omitempty"`
	Gender            string     `db:"gender" json:"gender,omitempty"`
	ContactInfo       string     `db:"contact_info" json:"contact_info,omitempty"`
	Allergies         string     `db:"allergies" json:"allergies,omitempty"`
	Medications       string     `db:"medications" json:"medications,omitempty"`
	History           []string   `db:"history" json:"history"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}

// Visit carries the patient fields of one diagnosis into profile
// resolution.
type Visit struct {
	PatientIdentifier string     `json:"patient_identifier,omitempty"`
	FirstName         string     `json:"first_name"`
	Surname           string     `json:"surname,omitempty"`
	DOB               *time.Time `json:"dob,omitempty"`
	Gender            string     `json:"gender,omitempty"`
	ContactInfo       string     `json:"contact_info,omitempty"`
	Allergies         string     `json:"allergies,omitempty"`
	Medications       string     `json:"medications,omitempty"`
	PrimaryDiagnosis  string     `json:"primary_diagnosis,omitempty"`
}

// FullName joins the name parts for display and diagnosis matching.
func (p *Profile) FullName() string {
	return joinName(p.FirstName, p.Surname)
}

func (v Visit) FullName() string {
	return joinName(v.FirstName, v.Surname)
}

func joinName(first, surname string) string {
	first = strings.TrimSpace(first)
	surname = strings.TrimSpace(surname)
	if surname == "" {
		return first
	}
	if first == "" {
		return surname
	}
	return first + " " + surname
}

// SplitName breaks a free-form patient name into first name and
// surname: everything before the final space is the first name.
func SplitName(full string) (first, surname string) {
	full = strings.TrimSpace(full)
	idx := strings.LastIndex(full, " ")
	if idx < 0 {
		return full, ""
	}
	return strings.TrimSpace(full[:idx]), strings.TrimSpace(full[idx+1:])
}
