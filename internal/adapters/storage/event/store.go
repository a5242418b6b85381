package event

import (
	"context"
	"time"

	domain "fellowship/internal/domain/event"
)

// Store persists Event state.
type Store interface {
	Create(ctx context.Context, value *domain.Event) error
	GetByID(ctx context.Context, id string) (domain.Event, error)
	Update(ctx context.Context, value *domain.Event) error
	// Delete removes the event and its RSVPs in one transaction.
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter ListFilter) ([]domain.Event, int64, error)
	CountScheduledBetween(ctx context.Context, from, to time.Time) (int64, error)
}

// ListFilter carries filtering parameters for List. Zero From/To leave that
// side of the window open.
type ListFilter struct {
	From             time.Time
	To               time.Time
	IncludeCancelled bool
	Limit            int
	Offset           int
}

// RSVPStore persists RSVP state.
type RSVPStore interface {
	// Create inserts a response after verifying the member and event exist
	// and that the event has room.
	// POST: ErrRSVPExists when the member already responded
	Create(ctx context.Context, value *domain.RSVP) error
	Get(ctx context.Context, eventID, memberID string) (domain.RSVP, error)
	Update(ctx context.Context, value *domain.RSVP) error
	Delete(ctx context.Context, eventID, memberID string) error
	ListByEvent(ctx context.Context, eventID string) ([]domain.RSVP, error)
	ListByMember(ctx context.Context, memberID string) ([]domain.RSVP, error)
	Summarize(ctx context.Context, eventID string) (domain.Summary, error)
}
