package email

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// NoopSender is used when no provider is configured. It logs each request
// and keeps it for inspection instead of delivering it.
type NoopSender struct {
	log *zap.SugaredLogger

	mu   sync.Mutex
	sent []SendRequest
}

func NewNoopSender(log *zap.SugaredLogger) *NoopSender {
	return &NoopSender{log: log}
}

func (s *NoopSender) Send(_ context.Context, req SendRequest) (SendResult, error) {
	s.log.Infow("email_event", "event", "email_skipped", "category", req.Category, "to", len(req.To))
	s.mu.Lock()
	s.sent = append(s.sent, req)
	s.mu.Unlock()
	return SendResult{MessageID: "noop-" + uuid.NewString(), SentAt: time.Now()}, nil
}

// Sent returns every request seen so far.
func (s *NoopSender) Sent() []SendRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.sent)
}

// New picks a sender: Resend when an API key is set, SMTP when a host is
// set, otherwise a NoopSender.
func New(cfg Settings, log *zap.SugaredLogger) Sender {
	switch {
	case cfg.ResendAPIKey != "":
		return NewResendSender(cfg.ResendAPIKey, cfg.From, log)
	case cfg.SMTPHost != "":
		return NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.From, log)
	default:
		log.Infow("email_event", "event", "email_disabled")
		return NewNoopSender(log)
	}
}
