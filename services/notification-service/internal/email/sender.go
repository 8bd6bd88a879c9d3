package email

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
)

// SMTPSender sends email via unauthenticated SMTP (Mailpit-compatible).
type SMTPSender struct {
	addr    string
	from    string
	subject string
}

func NewSMTPSender(host string, port string, from string, subject string) *SMTPSender {
	host = strings.TrimSpace(host)
	port = strings.TrimSpace(port)
	from = strings.TrimSpace(from)
	if from == "" {
		from = "no-reply@barberbook.local"
	}
	if strings.TrimSpace(subject) == "" {
		subject = "Your appointment"
	}
	return &SMTPSender{
		addr:    fmt.Sprintf("%s:%s", host, port),
		from:    from,
		subject: subject,
	}
}

func (s *SMTPSender) ProviderID() string {
	return "smtp"
}

// Send ignores ctx; net/smtp has no context support.
func (s *SMTPSender) Send(_ context.Context, to string, body string) error {
	msg := buildMessage(s.from, to, s.subject, body)
	return smtp.SendMail(s.addr, nil, s.from, []string{to}, []byte(msg))
}

func buildMessage(from, to, subject, body string) string {
	// Minimal RFC 5322 message; enough for Mailpit and most SMTP relays.
	return fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n",
		from,
		to,
		subject,
		strings.ReplaceAll(body, "\n", "\r\n"),
	)
}
