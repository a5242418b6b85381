package email

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
)

// SMTPSender delivers mail through an SMTP relay.
type SMTPSender struct {
	dialer *gomail.Dialer
	from   string
	log    *zap.SugaredLogger
}

// NewSMTPSender creates a sender for the given relay.
// PRE: host is non-empty; port is a valid TCP port
func NewSMTPSender(host string, port int, user, password, from string, log *zap.SugaredLogger) *SMTPSender {
	return &SMTPSender{
		dialer: gomail.NewDialer(host, port, user, password),
		from:   from,
		log:    log,
	}
}

// buildMessage converts a request into a MIME message with a generated Message-ID.
func (s *SMTPSender) buildMessage(req SendRequest, id string) *gomail.Message {
	m := gomail.NewMessage()
	m.SetHeader("From", req.from(s.from))
	m.SetHeader("To", req.To...)
	m.SetHeader("Subject", req.Subject)
	m.SetHeader("Message-ID", "<"+id+"@fellowship>")
	if req.ReplyTo != "" {
		m.SetHeader("Reply-To", req.ReplyTo)
	}
	if req.Category != "" {
		m.SetHeader("X-Fellowship-Category", string(req.Category))
	}
	if req.Text != "" {
		m.SetBody("text/plain", req.Text)
		if req.HTML != "" {
			m.AddAlternative("text/html", req.HTML)
		}
	} else {
		m.SetBody("text/html", req.HTML)
	}
	return m
}

// Send dials the relay and delivers one message.
// POST: message accepted by the relay, or an error
func (s *SMTPSender) Send(ctx context.Context, req SendRequest) (SendResult, error) {
	if err := ctx.Err(); err != nil {
		return SendResult{}, err
	}
	id := uuid.NewString()
	if err := s.dialer.DialAndSend(s.buildMessage(req, id)); err != nil {
		s.log.Errorw("email_event", "event", "smtp_send_failed", "error", err, "subject", req.Subject)
		return SendResult{}, fmt.Errorf("smtp send failed: %w", err)
	}
	s.log.Infow("email_event", "event", "smtp_sent", "message_id", id, "subject", req.Subject)
	return SendResult{MessageID: id, SentAt: time.Now()}, nil
}
