// Package email delivers transactional mail: message notices and event
// reminders.
package email

import (
	"context"
	"time"
)

// Category labels a kind of mail so providers can report on it.
type Category string

const (
	CategoryMessageNotice Category = "message_notice"
	CategoryEventReminder Category = "event_reminder"
)

// SendRequest is one outgoing email.
type SendRequest struct {
	To       []string
	From     string // empty uses the sender's default
	Subject  string
	HTML     string
	Text     string // optional plain-text part
	ReplyTo  string
	Category Category
}

// SendResult is what the provider accepted.
type SendResult struct {
	MessageID string
	SentAt    time.Time
}

// Sender delivers a single email.
type Sender interface {
	Send(ctx context.Context, req SendRequest) (SendResult, error)
}

// Settings selects and configures a Sender.
type Settings struct {
	ResendAPIKey string
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	From         string
}

func (r SendRequest) from(fallback string) string {
	if r.From != "" {
		return r.From
	}
	return fallback
}
