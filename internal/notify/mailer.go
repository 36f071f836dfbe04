package notify

import (
	"context"

	"github.com/rs/zerolog"
)

// Mailer delivers a rendered message.
type Mailer interface {
	Send(ctx context.Context, m Message) error
}

// LogMailer writes outgoing mail to the structured log. It stands in for an
// SMTP relay until one is configured.
type LogMailer struct {
	Logger zerolog.Logger
	From   string
}

func (l LogMailer) Send(ctx context.Context, m Message) error {
	l.Logger.Info().
		Str("from", l.From).
		Str("to", m.To).
		Str("subject", m.Subject).
		Int("body_bytes", len(m.HTML)).
		Msg("email_sent")
	return nil
}
