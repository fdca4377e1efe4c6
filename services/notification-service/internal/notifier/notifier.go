package notifier

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"
	"time"
)

type Message struct {
	To      []string
	Subject string
	Body    string
}

// Notifier delivers one rendered message.
type Notifier interface {
	Notify(ctx context.Context, m Message) error
}

// Console logs messages instead of sending them.
type Console struct {
	logger *slog.Logger
}

func NewConsole(logger *slog.Logger) *Console {
	return &Console{logger: logger}
}

func (c *Console) Notify(ctx context.Context, m Message) error {
	c.logger.InfoContext(ctx, "notification",
		"module", "notifier.console",
		"to", strings.Join(m.To, ","),
		"subject", m.Subject,
		"body", m.Body,
	)
	return nil
}

type SMTPConfig struct {
	Addr     string // host:port
	Username string
	Password string
	From     string
}

type SMTP struct {
	cfg  SMTPConfig
	auth smtp.Auth
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTP(cfg SMTPConfig) *SMTP {
	var auth smtp.Auth
	if cfg.Username != "" {
		host := cfg.Addr
		if i := strings.LastIndex(host, ":"); i > 0 {
			host = host[:i]
		}
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, host)
	}
	return &SMTP{cfg: cfg, auth: auth, send: smtp.SendMail}
}

func (s *SMTP) Notify(_ context.Context, m Message) error {
	if len(m.To) == 0 {
		return fmt.Errorf("smtp: no recipients for %q", m.Subject)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", s.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(m.To, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", m.Subject)
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(m.Body)
	if err := s.send(s.cfg.Addr, s.auth, s.cfg.From, m.To, []byte(b.String())); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

// HumanTime renders a session start in the recipient's zone.
func HumanTime(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format("Mon 2 Jan 2006 15:04 MST")
}
