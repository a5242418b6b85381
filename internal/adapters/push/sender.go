// Package push delivers Web Push notifications to member devices.
package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"

	domain "fellowship/internal/domain/push"
)

// ttlSeconds is how long the push service may hold an undelivered message.
const ttlSeconds = 24 * 60 * 60

// ErrGone means the push service no longer knows the subscription. The
// caller should delete it.
var ErrGone = errors.New("push subscription expired or unsubscribed")

// Sender delivers one notification to one device.
type Sender interface {
	Send(ctx context.Context, sub domain.Subscription, n domain.Notification) error
}

// VAPID holds the application server keys.
type VAPID struct {
	PublicKey  string
	PrivateKey string
	Subject    string // mailto: or https: contact
}

// WebPushSender encrypts payloads and posts them to the subscription endpoint.
type WebPushSender struct {
	keys   VAPID
	client webpush.HTTPClient
	log    *zap.SugaredLogger
}

// NewWebPushSender creates a sender. A nil client uses http.DefaultClient.
// PRE: keys were produced by GenerateKeys or an equivalent tool
func NewWebPushSender(keys VAPID, client webpush.HTTPClient, log *zap.SugaredLogger) *WebPushSender {
	if client == nil {
		client = http.DefaultClient
	}
	return &WebPushSender{keys: keys, client: client, log: log}
}

// Send delivers n to sub.
// POST: nil on 2xx; ErrGone on 404/410; otherwise an error naming the status
func (s *WebPushSender) Send(ctx context.Context, sub domain.Subscription, n domain.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return err
	}
	urgency := webpush.UrgencyNormal
	if n.Urgent {
		urgency = webpush.UrgencyHigh
	}
	resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys:     webpush.Keys{P256dh: sub.P256dh, Auth: sub.Auth},
	}, &webpush.Options{
		HTTPClient:      s.client,
		Subscriber:      s.keys.Subject,
		VAPIDPublicKey:  s.keys.PublicKey,
		VAPIDPrivateKey: s.keys.PrivateKey,
		TTL:             ttlSeconds,
		Urgency:         urgency,
		Topic:           n.TopicID,
	})
	if err != nil {
		return fmt.Errorf("web push failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		s.log.Infow("push_event", "event", "subscription_gone", "subscription_id", sub.ID, "status", resp.StatusCode)
		return ErrGone
	case resp.StatusCode >= 300:
		return fmt.Errorf("web push rejected with status %d", resp.StatusCode)
	}
	return nil
}

// NoopSender logs notifications instead of sending them.
type NoopSender struct {
	log *zap.SugaredLogger
}

// NewNoopSender is used when no VAPID keys are configured.
func NewNoopSender(log *zap.SugaredLogger) *NoopSender {
	return &NoopSender{log: log}
}

func (s *NoopSender) Send(_ context.Context, sub domain.Subscription, n domain.Notification) error {
	s.log.Debugw("push_event", "event", "noop_send", "subscription_id", sub.ID, "kind", n.Kind)
	return nil
}

// GenerateKeys creates a fresh VAPID key pair for the given subject.
func GenerateKeys(subject string) (VAPID, error) {
	priv, pub, err := webpush.GenerateVAPIDKeys()
	if err != nil {
		return VAPID{}, err
	}
	return VAPID{PublicKey: pub, PrivateKey: priv, Subject: subject}, nil
}
