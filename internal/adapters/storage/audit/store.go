package audit

import (
	"context"
	"time"

	domain "fellowship/internal/domain/audit"
)

// Store defines the interface for audit entry persistence. Entries are
// append-only: there is deliberately no Update or Delete.
type Store interface {
	// Append persists an entry.
	// PRE: entry passes Validate and entry.ActorID references a member
	// POST: Entry is persisted, or ErrUnknownActor and nothing is written
	Append(ctx context.Context, entry domain.Entry) error

	// GetByID retrieves a specific audit entry.
	// PRE: id is non-empty
	// POST: Returns the entry or domain.ErrNotFound
	GetByID(ctx context.Context, id string) (domain.Entry, error)

	// List returns entries matching filter.
	// PRE: limit > 0
	// POST: Returns entries ordered by timestamp desc
	List(ctx context.Context, filter Filter, limit, offset int) ([]domain.Entry, error)

	// Count returns the number of entries matching filter.
	Count(ctx context.Context, filter Filter) (int64, error)
}

// Filter defines query parameters for listing audit entries. Zero values
// do not filter.
type Filter struct {
	Category     domain.Category
	Action       domain.Action
	Severity     domain.Severity
	ActorID      string
	ResourceType string
	ResourceID   string
	From         time.Time
	To           time.Time
}
