package email

import (
	"context"
	"fmt"
	"time"

	"github.com/resend/resend-go/v2"
	"go.uber.org/zap"
)

// ResendSender delivers through the Resend HTTP API.
type ResendSender struct {
	client *resend.Client
	from   string
	log    *zap.SugaredLogger
}

// NewResendSender returns a sender using apiKey. from is the default
// sender address.
func NewResendSender(apiKey, from string, log *zap.SugaredLogger) *ResendSender {
	return &ResendSender{client: resend.NewClient(apiKey), from: from, log: log}
}

func (s *ResendSender) request(req SendRequest) *resend.SendEmailRequest {
	out := &resend.SendEmailRequest{
		From:    req.from(s.from),
		To:      req.To,
		Subject: req.Subject,
		Html:    req.HTML,
		Text:    req.Text,
		ReplyTo: req.ReplyTo,
	}
	if req.Category != "" {
		out.Tags = []resend.Tag{{Name: "category", Value: string(req.Category)}}
	}
	return out
}

// Send submits one email.
// POST: on success the result carries Resend's email id
func (s *ResendSender) Send(ctx context.Context, req SendRequest) (SendResult, error) {
	sent, err := s.client.Emails.SendWithContext(ctx, s.request(req))
	if err != nil {
		s.log.Errorw("email_event", "event", "resend_failed", "category", req.Category, "error", err)
		return SendResult{}, fmt.Errorf("resend: %w", err)
	}
	s.log.Infow("email_event", "event", "resend_accepted", "category", req.Category, "message_id", sent.Id)
	return SendResult{MessageID: sent.Id, SentAt: time.Now()}, nil
}
