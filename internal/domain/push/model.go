package push

import (
	"net/url"
	"time"
	"unicode/utf8"

	"fellowship/internal/domain/apperr"
)

// Notification kinds, carried in the payload so the client can route taps.
const (
	KindAnnouncement   = "announcement"
	KindEventCreated   = "event_created"
	KindEventCancelled = "event_cancelled"
	KindEventReminder  = "event_reminder"
	KindMessage        = "message"
)

// Max length constants.
const (
	MaxEndpointLength  = 2048
	MaxUserAgentLength = 300
)

var (
	ErrMemberRequired  = apperr.Validation("push subscription requires a member")
	ErrInvalidEndpoint = apperr.Validation("push endpoint must be an https URL")
	ErrKeysRequired    = apperr.Validation("push subscription requires p256dh and auth keys")
	ErrEndpointTaken   = apperr.Conflict("push endpoint is already registered")
	ErrNotFound        = apperr.NotFound("push subscription not found")
	ErrNotOwner        = apperr.Forbidden("push subscription belongs to another member")
)

// Subscription is a browser/device registration for Web Push.
type Subscription struct {
	ID         string
	MemberID   string
	Endpoint   string
	P256dh     string
	Auth       string
	UserAgent  string
	CreatedAt  time.Time
	LastUsedAt *time.Time
}

// Validate checks if the Subscription has valid data.
// PRE: Subscription struct is populated
// POST: Returns nil if valid, error otherwise
func (s *Subscription) Validate() error {
	if s.MemberID == "" {
		return ErrMemberRequired
	}
	if len(s.Endpoint) > MaxEndpointLength {
		return ErrInvalidEndpoint
	}
	u, err := url.Parse(s.Endpoint)
	if err != nil || u.Scheme != "https" || u.Host == "" {
		return ErrInvalidEndpoint
	}
	if s.P256dh == "" || s.Auth == "" {
		return ErrKeysRequired
	}
	if utf8.RuneCountInString(s.UserAgent) > MaxUserAgentLength {
		s.UserAgent = s.UserAgent[:MaxUserAgentLength]
	}
	return nil
}

// Notification is the payload delivered to a member's devices.
type Notification struct {
	Kind    string `json:"kind"`
	Title   string `json:"title"`
	Body    string `json:"body"`
	URL     string `json:"url,omitempty"`
	Urgent  bool   `json:"-"`
	TopicID string `json:"topic_id,omitempty"`
}
