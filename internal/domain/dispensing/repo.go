package dispensing

import (
	"context"

	"github.com/google/uuid"

	"github.com/clinichq/clinic/internal/domain/inventory"
)

type Repository interface {
	Create(ctx context.Context, r *Record) error
	GetByID(ctx context.Context, id uuid.UUID) (*Record, error)
	List(ctx context.Context, limit, offset int) ([]*Record, int, error)
	// ListAll returns every record for the owner, oldest first. Used by
	// deduplication, which needs the full set to group.
	ListAll(ctx context.Context) ([]*Record, error)
	ListByDiagnosis(ctx context.Context, diagnosisID uuid.UUID) ([]*Record, error)
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteByDiagnosis(ctx context.Context, diagnosisID uuid.UUID) error
	// HasHistory satisfies inventory.HistoryChecker.
	HasHistory(ctx context.Context, drugID uuid.UUID) (bool, error)
}

var _ inventory.HistoryChecker = (Repository)(nil)

type AuditRepository interface {
	Append(ctx context.Context, e *UsageAuditEntry) error
	List(ctx context.Context, limit, offset int) ([]*UsageAuditEntry, int, error)
	Clear(ctx context.Context) error
}
