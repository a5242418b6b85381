package message

import (
	"strings"
	"time"
	"unicode/utf8"

	"fellowship/internal/domain/apperr"
)

// Max length constants.
const (
	MaxSubjectLength = 200
	MaxBodyLength    = 5000
)

// Domain errors
var (
	ErrEmptySenderID    = apperr.Validation("sender is required")
	ErrEmptyRecipientID = apperr.Validation("recipient is required")
	ErrSelfMessage      = apperr.Validation("cannot send a message to yourself")
	ErrEmptyBody        = apperr.Validation("message body cannot be empty")
	ErrBodyTooLong      = apperr.Validation("message body cannot exceed 5000 characters")
	ErrSubjectTooLong   = apperr.Validation("message subject cannot exceed 200 characters")
	ErrNotParticipant   = apperr.Forbidden("only the sender or recipient can access this message")
	ErrNotFound         = apperr.NotFound("message not found")
)

// Message is a direct message between two members.
type Message struct {
	ID          string
	SenderID    string
	RecipientID string
	Subject     string
	Body        string
	ReadAt      *time.Time
	CreatedAt   time.Time
}

// Validate checks if the Message has valid data.
// PRE: Message struct is populated
// POST: Returns nil if valid, error otherwise
func (m *Message) Validate() error {
	if m.SenderID == "" {
		return ErrEmptySenderID
	}
	if m.RecipientID == "" {
		return ErrEmptyRecipientID
	}
	if m.SenderID == m.RecipientID {
		return ErrSelfMessage
	}
	if strings.TrimSpace(m.Body) == "" {
		return ErrEmptyBody
	}
	if utf8.RuneCountInString(m.Body) > MaxBodyLength {
		return ErrBodyTooLong
	}
	if utf8.RuneCountInString(m.Subject) > MaxSubjectLength {
		return ErrSubjectTooLong
	}
	return nil
}

// IsRead returns true if the recipient has opened the message.
// INVARIANT: ReadAt field is not mutated
func (m *Message) IsRead() bool {
	return m.ReadAt != nil
}

// MarkRead records when the message was first read. Later calls keep the
// original timestamp and report false.
// POST: ReadAt is set if previously nil
func (m *Message) MarkRead(now time.Time) bool {
	if m.ReadAt != nil {
		return false
	}
	m.ReadAt = &now
	return true
}

// IsParticipant reports whether memberID sent or received the message.
func (m *Message) IsParticipant(memberID string) bool {
	return memberID != "" && (m.SenderID == memberID || m.RecipientID == memberID)
}
