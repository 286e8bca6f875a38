package deliver

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/twilio/twilio-go"
	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/TobiSchelling/eventscout/internal/compose"
	"github.com/TobiSchelling/eventscout/internal/config"
	"github.com/TobiSchelling/eventscout/internal/event"
)

const defaultSMSLength = 1500

// SMSNotifier sends a short plain text digest through Twilio.
type SMSNotifier struct {
	From      string
	To        string
	MaxLength int

	create func(*twilioapi.CreateMessageParams) (*twilioapi.ApiV2010Message, error)
}

// NewSMSNotifier creates a Twilio notifier for the account sid.
func NewSMSNotifier(cfg config.SMSConfig, sid, token, recipient string) *SMSNotifier {
	limit := cfg.MaxLength
	if limit <= 0 {
		limit = defaultSMSLength
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: sid,
		Password: token,
	})
	return &SMSNotifier{
		From:      cfg.From,
		To:        recipient,
		MaxLength: limit,
		create:    client.Api.CreateMessage,
	}
}

func (n *SMSNotifier) Send(ctx context.Context, d compose.Digest) error {
	// The Twilio client has no context support, so honour cancellation up front.
	if err := ctx.Err(); err != nil {
		return err
	}

	params := &twilioapi.CreateMessageParams{}
	params.SetTo(n.To)
	params.SetFrom(n.From)
	params.SetBody(SMSBody(d, n.MaxLength))

	resp, err := n.create(params)
	if err != nil {
		return fmt.Errorf("sending sms to %s: %w", n.To, err)
	}
	log.Printf("SMS sent to %s: sid=%s status=%s", n.To, deref(resp.Sid), deref(resp.Status))
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// SMSBody renders the subject, promo and event titles, cut to limit runes.
func SMSBody(d compose.Digest, limit int) string {
	var b strings.Builder
	b.WriteString(d.Subject)
	if d.Promo != "" {
		b.WriteString("\n\n" + d.Promo)
	}
	if len(d.Events) > 0 {
		b.WriteString("\n")
		for i, e := range d.Events {
			fmt.Fprintf(&b, "\n%d. %s", i+1, e.Title)
		}
	}

	text := b.String()
	if limit <= 0 || len([]rune(text)) <= limit {
		return text
	}
	if limit <= 3 {
		return event.Truncate(text, limit)
	}
	return event.Truncate(text, limit-3) + "..."
}
