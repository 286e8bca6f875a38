package deliver

import (
	"context"
	"fmt"
	"log"

	"github.com/wneessen/go-mail"

	"github.com/TobiSchelling/eventscout/internal/compose"
	"github.com/TobiSchelling/eventscout/internal/config"
)

// EmailNotifier sends the digest as a multipart text and HTML message.
type EmailNotifier struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       string

	send func(ctx context.Context, msg *mail.Msg) error
}

// NewEmailNotifier creates an SMTP notifier. Username and From default to
// the recipient, which suits sending the digest to yourself.
func NewEmailNotifier(cfg config.EmailConfig, password, recipient string) *EmailNotifier {
	n := &EmailNotifier{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Username: cfg.Username,
		Password: password,
		From:     cfg.From,
		To:       recipient,
	}
	if n.Port == 0 {
		n.Port = 587
	}
	if n.Username == "" {
		n.Username = recipient
	}
	if n.From == "" {
		n.From = n.Username
	}
	n.send = n.dialAndSend
	return n
}

func (n *EmailNotifier) Send(ctx context.Context, d compose.Digest) error {
	msg, err := n.buildMessage(d)
	if err != nil {
		return fmt.Errorf("building email: %w", err)
	}
	if err := n.send(ctx, msg); err != nil {
		return fmt.Errorf("sending email via %s:%d: %w", n.Host, n.Port, err)
	}
	log.Printf("Email sent to %s: %q", n.To, d.Subject)
	return nil
}

func (n *EmailNotifier) buildMessage(d compose.Digest) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(n.From); err != nil {
		return nil, fmt.Errorf("invalid sender %q: %w", n.From, err)
	}
	if err := msg.To(n.To); err != nil {
		return nil, fmt.Errorf("invalid recipient %q: %w", n.To, err)
	}
	msg.Subject(d.Subject)
	msg.SetDate()

	switch {
	case d.Text != "" && d.HTML != "":
		msg.SetBodyString(mail.TypeTextPlain, d.Text)
		msg.AddAlternativeString(mail.TypeTextHTML, d.HTML)
	case d.HTML != "":
		msg.SetBodyString(mail.TypeTextHTML, d.HTML)
	default:
		msg.SetBodyString(mail.TypeTextPlain, d.Text)
	}
	return msg, nil
}

func (n *EmailNotifier) dialAndSend(ctx context.Context, msg *mail.Msg) error {
	client, err := mail.NewClient(n.Host,
		mail.WithPort(n.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(n.Username),
		mail.WithPassword(n.Password),
	)
	if err != nil {
		return fmt.Errorf("creating smtp client: %w", err)
	}
	return client.DialAndSendWithContext(ctx, msg)
}
