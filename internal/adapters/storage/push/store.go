package push

import (
	"context"

	domain "fellowship/internal/domain/push"
)

// Store persists push Subscription state.
type Store interface {
	// Create registers a device. The member must exist.
	// POST: ErrEndpointTaken when the endpoint is already registered
	Create(ctx context.Context, value *domain.Subscription) error
	GetByID(ctx context.Context, id string) (domain.Subscription, error)
	GetByEndpoint(ctx context.Context, endpoint string) (domain.Subscription, error)
	Update(ctx context.Context, value *domain.Subscription) error
	Delete(ctx context.Context, id string) error
	DeleteByEndpoint(ctx context.Context, endpoint string) error
	ListByMember(ctx context.Context, memberID string) ([]domain.Subscription, error)
	ListByMembers(ctx context.Context, memberIDs []string) ([]domain.Subscription, error)
	Count(ctx context.Context) (int64, error)
}
