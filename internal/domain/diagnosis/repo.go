package diagnosis

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, d *Diagnosis) error
	GetByID(ctx context.Context, id uuid.UUID) (*Diagnosis, error)
	// Update replaces the full document, array fields included.
	Update(ctx context.Context, d *Diagnosis) error
	Delete(ctx context.Context, id uuid.UUID) error
	// DeleteForPatient removes the diagnoses matched to a deleted
	// profile, by identifier when present, else by patient name.
	// Satisfies patient.DiagnosisPurger.
	DeleteForPatient(ctx context.Context, identifier, fullName string) error
	Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Diagnosis, int, error)
}
