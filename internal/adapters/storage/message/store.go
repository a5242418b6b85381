package message

import (
	"context"

	domain "fellowship/internal/domain/message"
)

// Store persists Message state.
type Store interface {
	// Create inserts a message after verifying both participants exist.
	Create(ctx context.Context, value *domain.Message) error
	GetByID(ctx context.Context, id string) (domain.Message, error)
	// Update persists read state; the body and participants never change.
	Update(ctx context.Context, value *domain.Message) error
	Delete(ctx context.Context, id string) error
	ListInbox(ctx context.Context, recipientID string, limit, offset int) ([]domain.Message, int64, error)
	ListSent(ctx context.Context, senderID string, limit, offset int) ([]domain.Message, int64, error)
	CountUnread(ctx context.Context, recipientID string) (int64, error)
}
