// Package notify delivers refill reminders over email and WhatsApp. Both
// senders are thin adapters around external services; the reminder service
// treats every failure as skippable and logs it.
package notify

import (
	"fmt"
	"net/smtp"
	"os"
	"strings"
)

// EmailSender sends plain-text mail over SMTP with STARTTLS.
type EmailSender struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

// NewEmailSenderFromEnv reads SMTP_HOST, SMTP_PORT, SMTP_USERNAME,
// SMTP_PASSWORD and SMTP_FROM. It returns nil when credentials are missing so
// callers can treat email as disabled.
func NewEmailSenderFromEnv() *EmailSender {
	s := &EmailSender{
		Host:     getenvDefault("SMTP_HOST", "smtp.gmail.com"),
		Port:     getenvDefault("SMTP_PORT", "587"),
		Username: os.Getenv("SMTP_USERNAME"),
		Password: os.Getenv("SMTP_PASSWORD"),
		From:     os.Getenv("SMTP_FROM"),
	}
	if s.From == "" {
		s.From = s.Username
	}
	if s.Username == "" || s.Password == "" || s.From == "" {
		return nil
	}
	return s
}

// Send delivers one message. net/smtp upgrades to TLS automatically when the
// server advertises STARTTLS.
func (s *EmailSender) Send(to, subject, body string) error {
	msg := strings.Join([]string{
		"From: " + s.From,
		"To: " + to,
		"Subject: " + subject,
		"",
		body,
	}, "\r\n")
	auth := smtp.PlainAuth("", s.Username, s.Password, s.Host)
	addr := fmt.Sprintf("%s:%s", s.Host, s.Port)
	return smtp.SendMail(addr, auth, s.From, []string{to}, []byte(msg))
}

func getenvDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
