// Package deliver sends a composed digest out of process by email or SMS.
package deliver

import (
	"context"
	"fmt"
	"log"

	"github.com/TobiSchelling/eventscout/internal/compose"
	"github.com/TobiSchelling/eventscout/internal/config"
)

// Notifier delivers a digest. A nil error means the transport accepted it.
type Notifier interface {
	Send(ctx context.Context, d compose.Digest) error
}

// New picks the notifier for the delivery config. Muted delivery and method
// "none" only log the digest.
func New(cfg config.Delivery, secrets config.Secrets) (Notifier, error) {
	if cfg.Mute || cfg.Method == "none" || cfg.Method == "" {
		return &LogNotifier{Recipient: cfg.Recipient}, nil
	}

	switch cfg.Method {
	case "email":
		if secrets.SMTPPassword == "" {
			return nil, fmt.Errorf("email delivery needs an SMTP password (set $%s)", cfg.Email.PasswordEnv)
		}
		return NewEmailNotifier(cfg.Email, secrets.SMTPPassword, cfg.Recipient), nil
	case "sms":
		if secrets.TwilioSID == "" || secrets.TwilioToken == "" {
			return nil, fmt.Errorf("sms delivery needs Twilio credentials (set $%s and $%s)",
				cfg.SMS.AccountSIDEnv, cfg.SMS.AuthTokenEnv)
		}
		return NewSMSNotifier(cfg.SMS, secrets.TwilioSID, secrets.TwilioToken, cfg.Recipient), nil
	default:
		return nil, fmt.Errorf("unknown delivery method %q", cfg.Method)
	}
}

// LogNotifier writes the digest summary to the log instead of sending it.
type LogNotifier struct {
	Recipient string
}

func (n *LogNotifier) Send(_ context.Context, d compose.Digest) error {
	to := n.Recipient
	if to == "" {
		to = "(no recipient)"
	}
	log.Printf("Delivery muted, digest for %s not sent: %q with %d events", to, d.Subject, d.EventCount)
	return nil
}
