package invite

import (
	"context"
	"fmt"
	"time"

	"gopkg.in/gomail.v2"
)

// senderDisplayName is the display name attached to the From header.
const senderDisplayName = "游戏邀请系统"

// SMTPConfig holds the settings for one SMTP transport profile, resolved
// once at startup.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	Sender   string // The "From" email address
	// SSL selects implicit TLS (SMTPS, typically port 465) rather than
	// STARTTLS negotiation.
	SSL bool
	// Timeout bounds a single dial-and-send attempt.
	Timeout time.Duration
}

// SMTPTransport sends invitation emails through a gomail dialer.
type SMTPTransport struct {
	dialer  *gomail.Dialer
	sender  string
	timeout time.Duration
}

// NewSMTPTransport creates a transport for the given profile.
func NewSMTPTransport(cfg SMTPConfig) *SMTPTransport {
	dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	dialer.SSL = cfg.SSL

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &SMTPTransport{
		dialer:  dialer,
		sender:  cfg.Sender,
		timeout: timeout,
	}
}

// Send delivers one email. gomail's DialAndSend has no deadline of its own,
// so the attempt runs in a goroutine and is abandoned once the timeout or
// the caller's context expires; the retry loop above stays bounded either way.
func (t *SMTPTransport) Send(ctx context.Context, toEmail, toName, subject, htmlBody string) error {
	m := gomail.NewMessage()
	m.SetAddressHeader("From", t.sender, senderDisplayName)
	m.SetAddressHeader("To", toEmail, toName)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", htmlBody)

	done := make(chan error, 1)
	go func() {
		done <- t.dialer.DialAndSend(m)
	}()

	timer := time.NewTimer(t.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp error: %w", err)
		}
		return nil
	case <-timer.C:
		return fmt.Errorf("smtp attempt timed out after %s", t.timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}
