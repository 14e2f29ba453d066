package notification

import (
	"context"
	"fmt"
	"net/smtp"

	"marketplace/internal/config"

	"go.uber.org/zap"
)

// Notification channels.
const (
	ChannelMail = "mail"
	ChannelSMS  = "sms"
	ChannelLog  = "log"
)

// Notification is a fire-and-forget message. Delivery guarantees are
// whatever the job queue provides; there is no ordering.
type Notification struct {
	Channel   string            `json:"channel"`
	Recipient string            `json:"recipient"`
	Subject   string            `json:"subject"`
	Body      string            `json:"body"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Notifier delivers a notification over its channel.
type Notifier interface {
	Send(ctx context.Context, n Notification) error
}

// LogNotifier writes notifications to the structured log. It is the
// default sink and the fallback for channels with no transport
// configured (e.g. sms).
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a log-backed notifier
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Send(ctx context.Context, notif Notification) error {
	n.logger.Info("Notification",
		zap.String("channel", notif.Channel),
		zap.String("recipient", notif.Recipient),
		zap.String("subject", notif.Subject),
		zap.String("body", notif.Body),
	)
	return nil
}

// MailNotifier delivers mail-channel notifications over SMTP and hands
// everything else to a fallback notifier.
type MailNotifier struct {
	cfg      config.SMTPConfig
	fallback Notifier
}

// NewMailNotifier creates an SMTP-backed notifier
func NewMailNotifier(cfg config.SMTPConfig, fallback Notifier) *MailNotifier {
	return &MailNotifier{cfg: cfg, fallback: fallback}
}

func (n *MailNotifier) Send(ctx context.Context, notif Notification) error {
	if notif.Channel != ChannelMail {
		return n.fallback.Send(ctx, notif)
	}

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n",
		n.cfg.From, notif.Recipient, notif.Subject, notif.Body)

	addr := n.cfg.Host + ":" + n.cfg.Port
	if err := smtp.SendMail(addr, nil, n.cfg.From, []string{notif.Recipient}, []byte(msg)); err != nil {
		return fmt.Errorf("failed to send mail: %w", err)
	}

	return nil
}

// New picks the notifier implied by the config: SMTP when enabled,
// otherwise the log sink.
func New(cfg config.SMTPConfig, logger *zap.Logger) Notifier {
	logSink := NewLogNotifier(logger)
	if cfg.Enabled {
		return NewMailNotifier(cfg, logSink)
	}
	return logSink
}
