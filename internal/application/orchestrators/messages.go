package orchestrators

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"fellowship/internal/adapters/email"
	"fellowship/internal/application/notify"
	"fellowship/internal/domain/apperr"
	"fellowship/internal/domain/member"
	"fellowship/internal/domain/message"
	"fellowship/internal/domain/push"
)

var (
	ErrSenderInactive    = apperr.Forbidden("only active members can send messages")
	ErrRecipientInactive = apperr.Validation("recipient is not an active member")
)

// MessageStore is the part of message.Store that commands use.
type MessageStore interface {
	Create(ctx context.Context, value *message.Message) error
	GetByID(ctx context.Context, id string) (message.Message, error)
	Update(ctx context.Context, value *message.Message) error
	Delete(ctx context.Context, id string) error
}

// MemberGetter looks members up by ID.
type MemberGetter interface {
	GetByID(ctx context.Context, id string) (member.Member, error)
}

// MessageDeps holds dependencies for the message commands.
type MessageDeps struct {
	MessageStore MessageStore
	Members      MemberGetter
	Notifier     Notifier
	BaseURL      string
	GenerateID   func() string
	Now          func() time.Time
	Log          *zap.SugaredLogger
}

// SendMessageInput carries a new direct message.
type SendMessageInput struct {
	SenderID    string
	RecipientID string
	Subject     string
	Body        string
}

// ExecuteSendMessage delivers a direct message and notifies the recipient
// by push and email.
// PRE: sender and recipient are distinct active members
// POST: Message persisted unread
func ExecuteSendMessage(ctx context.Context, input SendMessageInput, deps MessageDeps) (message.Message, error) {
	msg := message.Message{
		ID:          deps.GenerateID(),
		SenderID:    input.SenderID,
		RecipientID: input.RecipientID,
		Subject:     strings.TrimSpace(input.Subject),
		Body:        input.Body,
		CreatedAt:   deps.Now(),
	}
	if err := msg.Validate(); err != nil {
		return message.Message{}, err
	}

	sender, err := deps.Members.GetByID(ctx, input.SenderID)
	if err != nil {
		return message.Message{}, err
	}
	if !sender.IsActive() {
		return message.Message{}, ErrSenderInactive
	}
	recipient, err := deps.Members.GetByID(ctx, input.RecipientID)
	if err != nil {
		return message.Message{}, err
	}
	if !recipient.IsActive() {
		return message.Message{}, ErrRecipientInactive
	}

	if err := deps.MessageStore.Create(ctx, &msg); err != nil {
		return message.Message{}, err
	}
	deps.Log.Infow("message_event", "event", "message_sent", "message_id", msg.ID, "sender_id", msg.SenderID, "recipient_id", msg.RecipientID)

	job := notify.Job{
		MemberIDs: []string{recipient.ID},
		Notification: push.Notification{
			Kind:    push.KindMessage,
			Title:   "Message from " + sender.FullName(),
			Body:    msg.Subject,
			URL:     deps.BaseURL + "/messages/" + msg.ID,
			TopicID: "message-" + msg.ID,
		},
	}
	if req, err := email.NewMessageNotice(recipient.Email, sender.FullName(), msg.Subject, deps.BaseURL); err == nil {
		job.Email = &req
	} else {
		deps.Log.Warnw("message_event", "event", "email_render_failed", "message_id", msg.ID, "error", err)
	}
	notifyMembers(deps.Notifier, job)
	return msg, nil
}

// MessageRefInput names a message and the member asking for it.
type MessageRefInput struct {
	MessageID string
	MemberID  string
}

// ExecuteReadMessage returns a message to one of its participants and marks
// it read when the recipient opens it.
// PRE: MemberID sent or received the message
// POST: ReadAt is set once the recipient has read it
func ExecuteReadMessage(ctx context.Context, input MessageRefInput, deps MessageDeps) (message.Message, error) {
	msg, err := deps.MessageStore.GetByID(ctx, input.MessageID)
	if err != nil {
		return message.Message{}, err
	}
	if !msg.IsParticipant(input.MemberID) {
		return message.Message{}, message.ErrNotParticipant
	}
	if msg.RecipientID == input.MemberID && msg.MarkRead(deps.Now()) {
		if err := deps.MessageStore.Update(ctx, &msg); err != nil {
			return message.Message{}, err
		}
		deps.Log.Debugw("message_event", "event", "message_read", "message_id", msg.ID)
	}
	return msg, nil
}

// ExecuteDeleteMessage removes a message for both participants.
// PRE: MemberID sent or received the message
func ExecuteDeleteMessage(ctx context.Context, input MessageRefInput, deps MessageDeps) error {
	msg, err := deps.MessageStore.GetByID(ctx, input.MessageID)
	if err != nil {
		return err
	}
	if !msg.IsParticipant(input.MemberID) {
		return message.ErrNotParticipant
	}
	if err := deps.MessageStore.Delete(ctx, msg.ID); err != nil {
		return err
	}
	deps.Log.Infow("message_event", "event", "message_deleted", "message_id", msg.ID, "by", input.MemberID)
	return nil
}
