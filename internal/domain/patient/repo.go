package patient

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, p *Profile) error
	GetByID(ctx context.Context, id uuid.UUID) (*Profile, error)
	// FindByIdentifier matches the trimmed explicit identifier exactly.
	FindByIdentifier(ctx context.Context, identifier string) (*Profile, error)
	// FindByFirstName returns all of the owner's profiles sharing the
	// given first name (case-insensitive); the service applies the
	// DOB and surname rules over the candidates.
	FindByFirstName(ctx context.Context, firstName string) ([]*Profile, error)
	Update(ctx context.Context, p *Profile) error
	Delete(ctx context.Context, id uuid.UUID) error
	Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Profile, int, error)
}

// DiagnosisPurger removes the diagnoses tied to a deleted profile.
// Implemented by the diagnosis repository.
type DiagnosisPurger interface {
	DeleteForPatient(ctx context.Context, identifier, fullName string) error
}
