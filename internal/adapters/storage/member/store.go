package member

import (
	"context"
	"time"

	domain "fellowship/internal/domain/member"
)

// Store persists Member state. Members are never hard-deleted; Update with a
// deactivated status is the delete-style operation.
type Store interface {
	Create(ctx context.Context, value *domain.Member) error
	GetByID(ctx context.Context, id string) (domain.Member, error)
	GetByEmail(ctx context.Context, email string) (domain.Member, error)
	Update(ctx context.Context, value *domain.Member) error
	RecordLoginFailure(ctx context.Context, id string, now time.Time) (domain.Member, bool, error)
	RecordLoginSuccess(ctx context.Context, id string, now time.Time) (domain.Member, error)
	List(ctx context.Context, filter ListFilter) ([]domain.Member, int64, error)
	CountByStatus(ctx context.Context, status string) (int64, error)
}

// ListFilter carries filtering parameters for List operations.
type ListFilter struct {
	Limit  int
	Offset int
	Status string
	Role   string
	Search string // matches first name, last name or email
	Sort   string // first_name, last_name, email, membership_date, created_at
	Dir    string // asc or desc
}
