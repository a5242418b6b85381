package orchestrators

import (
	"context"
	"time"

	"go.uber.org/zap"

	"fellowship/internal/domain/apperr"
	"fellowship/internal/domain/push"
)

// PushStore is the part of push.Store that subscription commands use.
type PushStore interface {
	Create(ctx context.Context, value *push.Subscription) error
	GetByEndpoint(ctx context.Context, endpoint string) (push.Subscription, error)
	Update(ctx context.Context, value *push.Subscription) error
	Delete(ctx context.Context, id string) error
	DeleteByEndpoint(ctx context.Context, endpoint string) error
}

// PushDeps holds dependencies for the subscription commands.
type PushDeps struct {
	PushStore  PushStore
	GenerateID func() string
	Now        func() time.Time
	Log        *zap.SugaredLogger
}

// SubscribePushInput carries a browser's PushSubscription.
type SubscribePushInput struct {
	MemberID  string
	Endpoint  string
	P256dh    string
	Auth      string
	UserAgent string
}

// ExecuteSubscribePush registers a device. Re-registering an endpoint
// refreshes its keys; an endpoint last used by another member moves to
// this one.
// POST: exactly one subscription exists for Endpoint, owned by MemberID
func ExecuteSubscribePush(ctx context.Context, input SubscribePushInput, deps PushDeps) (push.Subscription, error) {
	now := deps.Now()
	existing, err := deps.PushStore.GetByEndpoint(ctx, input.Endpoint)
	switch {
	case err == nil && existing.MemberID == input.MemberID:
		existing.P256dh = input.P256dh
		existing.Auth = input.Auth
		existing.UserAgent = input.UserAgent
		if err := existing.Validate(); err != nil {
			return push.Subscription{}, err
		}
		if err := deps.PushStore.Update(ctx, &existing); err != nil {
			return push.Subscription{}, err
		}
		return existing, nil
	case err == nil:
		if err := deps.PushStore.Delete(ctx, existing.ID); err != nil {
			return push.Subscription{}, err
		}
		deps.Log.Infow("push_event", "event", "subscription_moved", "from_member", existing.MemberID, "to_member", input.MemberID)
	case !apperr.IsNotFound(err):
		return push.Subscription{}, err
	}

	sub := push.Subscription{
		ID:        deps.GenerateID(),
		MemberID:  input.MemberID,
		Endpoint:  input.Endpoint,
		P256dh:    input.P256dh,
		Auth:      input.Auth,
		UserAgent: input.UserAgent,
		CreatedAt: now,
	}
	if err := deps.PushStore.Create(ctx, &sub); err != nil {
		return push.Subscription{}, err
	}
	deps.Log.Infow("push_event", "event", "subscribed", "member_id", sub.MemberID, "subscription_id", sub.ID)
	return sub, nil
}

// UnsubscribePushInput names the endpoint to drop.
type UnsubscribePushInput struct {
	MemberID string
	Endpoint string
}

// ExecuteUnsubscribePush removes one of the member's devices.
// PRE: the endpoint belongs to MemberID
func ExecuteUnsubscribePush(ctx context.Context, input UnsubscribePushInput, deps PushDeps) error {
	sub, err := deps.PushStore.GetByEndpoint(ctx, input.Endpoint)
	if err != nil {
		return err
	}
	if sub.MemberID != input.MemberID {
		return push.ErrNotOwner
	}
	if err := deps.PushStore.DeleteByEndpoint(ctx, input.Endpoint); err != nil {
		return err
	}
	deps.Log.Infow("push_event", "event", "unsubscribed", "member_id", sub.MemberID, "subscription_id", sub.ID)
	return nil
}
