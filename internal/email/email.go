// Package email sends transactional mail. The verification flows are the
// only callers; everything is plain-text-plus-HTML one-time-code messages.
package email

import (
	"context"
	"fmt"
	"log"
	"net/smtp"
	"strings"
)

// Sender delivers a single message to a single recipient.
type Sender interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// SMTPSender sends through a single SMTP relay with PLAIN auth.
type SMTPSender struct {
	host string
	port string
	from string
	auth smtp.Auth
}

// NewSMTPSender builds a sender for the given relay. Username and password
// may be empty for an unauthenticated relay.
func NewSMTPSender(host, port, from, username, password string) *SMTPSender {
	s := &SMTPSender{host: host, port: port, from: from}
	if username != "" {
		s.auth = smtp.PlainAuth("", username, password, host)
	}
	return s
}

func (s *SMTPSender) Send(_ context.Context, to, subject, htmlBody string) error {
	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", s.from)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(htmlBody)

	addr := s.host + ":" + s.port
	if err := smtp.SendMail(addr, s.auth, s.from, []string{to}, []byte(msg.String())); err != nil {
		return fmt.Errorf("send mail via %s: %w", addr, err)
	}
	return nil
}

// LogSender logs instead of sending. Used in local development where no
// relay is configured.
type LogSender struct{}

func (LogSender) Send(_ context.Context, to, subject, _ string) error {
	log.Printf("email: suppressed (no SMTP relay configured) to=%s subject=%q", to, subject)
	return nil
}
