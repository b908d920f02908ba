// Package notifier delivers operator notifications by e-mail or to the log.
package notifier

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"trendEnvelopeBot/internal/ports"
)

// EmailConfig holds SMTP settings.
type EmailConfig struct {
	SMTPHost   string
	SMTPPort   int
	Username   string
	Password   string
	From       string
	Recipients []string
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailNotifier sends every notification as a plain-text e-mail through
// STARTTLS SMTP.
type EmailNotifier struct {
	cfg    EmailConfig
	logger ports.Logger
	send   sendFunc
	now    func() time.Time
}

// NewEmailNotifier creates a new EmailNotifier.
func NewEmailNotifier(cfg EmailConfig, logger ports.Logger) (*EmailNotifier, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for e-mail notifier")
	}
	if cfg.SMTPHost == "" || cfg.From == "" || len(cfg.Recipients) == 0 {
		return nil, fmt.Errorf("%w: SMTP host, sender and recipients are required", ports.ErrConfigurationError)
	}
	if cfg.SMTPPort == 0 {
		cfg.SMTPPort = 587
	}
	return &EmailNotifier{cfg: cfg, logger: logger, send: smtp.SendMail, now: time.Now}, nil
}

func (e *EmailNotifier) message(subject, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", e.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(e.cfg.Recipients, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	fmt.Fprintf(&b, "Date: %s\r\n", e.now().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return []byte(b.String())
}

// Notify sends subject and body to all recipients. Failures are logged.
func (e *EmailNotifier) Notify(ctx context.Context, subject, body string) {
	op := "EmailNotifier.Notify"
	addr := fmt.Sprintf("%s:%d", e.cfg.SMTPHost, e.cfg.SMTPPort)

	var auth smtp.Auth
	if e.cfg.Username != "" && e.cfg.Password != "" {
		auth = smtp.PlainAuth("", e.cfg.Username, e.cfg.Password, e.cfg.SMTPHost)
	}

	if err := e.send(addr, auth, e.cfg.From, e.cfg.Recipients, e.message(subject, body)); err != nil {
		e.logger.Error(ctx, err, op+": failed to send e-mail", map[string]interface{}{"subject": subject})
		return
	}
	e.logger.Info(ctx, op+": e-mail sent", map[string]interface{}{"subject": subject, "recipients": len(e.cfg.Recipients)})
}

// LogNotifier writes notifications to the log only.
type LogNotifier struct {
	logger ports.Logger
}

// NewLogNotifier creates a notifier for deployments without e-mail.
func NewLogNotifier(logger ports.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify logs the notification.
func (l *LogNotifier) Notify(ctx context.Context, subject, body string) {
	l.logger.Info(ctx, "Notification: "+subject, map[string]interface{}{"body": body})
}
