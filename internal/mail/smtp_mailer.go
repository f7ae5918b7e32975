package mail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/smtp"
	"strings"
	"time"
)

var ErrNotConfigured = errors.New("smtp host not configured")

type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	Sender   string
}

// SMTPMailer sends plain-text emails via SMTP
type SMTPMailer struct {
	cfg  SMTPConfig
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	if cfg.Port == "" {
		cfg.Port = "587"
	}
	if cfg.Sender == "" {
		cfg.Sender = "no-reply@localhost"
		slog.Warn("SMTP_SENDER not set, using default sender", "sender", cfg.Sender)
	}
	return &SMTPMailer{cfg: cfg, send: smtp.SendMail}
}

func (m *SMTPMailer) Send(ctx context.Context, to, subject, body string) error {
	if m.cfg.Host == "" {
		return ErrNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var auth smtp.Auth
	if m.cfg.Username != "" && m.cfg.Password != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	addr := fmt.Sprintf("%s:%s", m.cfg.Host, m.cfg.Port)
	msg := buildMessage(m.cfg.Sender, to, subject, body, time.Now())

	if err := m.send(addr, auth, m.cfg.Sender, []string{to}, msg); err != nil {
		slog.Error("smtp send failed", "to", to, "addr", addr, "error", err)
		return err
	}
	slog.Info("email sent", "to", to, "addr", addr)
	return nil
}

func buildMessage(from, to, subject, body string, now time.Time) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&b, "Date: %s\r\n", now.UTC().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return []byte(b.String())
}
