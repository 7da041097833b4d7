package mail

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"os"
	"strconv"
	"strings"
	"time"
)

// Mailer delivers a single HTML message. Callers treat any error as fatal to the
// operation that triggered the send.
type Mailer interface {
	Send(ctx context.Context, to, subject, html string) error
}

var ErrInvalidRecipient = errors.New("invalid recipient")

const defaultSMTPTimeout = 10 * time.Second

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// Timeout bounds a whole delivery when the caller's context has no
	// earlier deadline.
	Timeout time.Duration
}

type SMTPMailer struct {
	cfg    SMTPConfig
	auth   smtp.Auth
	dialer net.Dialer
}

func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultSMTPTimeout
	}
	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return &SMTPMailer{cfg: cfg, auth: auth}
}

func (m *SMTPMailer) Send(ctx context.Context, to, subject, html string) error {
	if to == "" || strings.ContainsAny(to, "\r\n") {
		return ErrInvalidRecipient
	}

	ctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()

	msg := buildMessage(m.cfg.From, to, subject, html)
	if err := m.deliver(ctx, envelopeAddress(m.cfg.From), to, msg); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("smtp send: %w", ctxErr)
		}
		// The connection deadline can fire just before the context timer.
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return fmt.Errorf("smtp send: %w", context.DeadlineExceeded)
		}
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

// deliver runs one SMTP session. The connection carries the context deadline
// and is closed on cancellation, so a server that stalls at any step cannot
// hold the caller past ctx.
func (m *SMTPMailer) deliver(ctx context.Context, from, to string, msg []byte) error {
	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	conn, err := m.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return err
		}
	}
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	c, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		return err
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: m.cfg.Host}); err != nil {
			return err
		}
	}
	if m.auth != nil {
		if ok, _ := c.Extension("AUTH"); ok {
			if err := c.Auth(m.auth); err != nil {
				return err
			}
		}
	}
	if err := c.Mail(from); err != nil {
		return err
	}
	if err := c.Rcpt(to); err != nil {
		return err
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}

func buildMessage(from, to, subject, html string) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + strings.NewReplacer("\r", "", "\n", "").Replace(subject) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(html)
	return []byte(b.String())
}

// envelopeAddress extracts the bare address from "Name <addr>".
func envelopeAddress(from string) string {
	start := strings.LastIndex(from, "<")
	end := strings.LastIndex(from, ">")
	if start >= 0 && end > start {
		return from[start+1 : end]
	}
	return from
}

// LogMailer writes messages to the log instead of delivering them. Used when
// no SMTP host is configured.
type LogMailer struct {
	logger *slog.Logger
}

func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(ctx context.Context, to, subject, html string) error {
	m.logger.InfoContext(ctx, "email not delivered, no smtp host configured",
		slog.String("to", to),
		slog.String("subject", subject),
		slog.String("body", html),
	)
	return nil
}
