// Package mailer abstracts outbound mail delivery. The engine hands a
// rendered magic-link message to a Mailer and reports failures without
// retrying; any retry policy belongs to the concrete adapter.
package mailer

import (
	"context"

	"github.com/passlink/passlink/internal/logging"
)

// Mailer delivers one message. Implementations must be safe for
// concurrent use.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// LogMailer is the non-production fallback: it records that a message
// would have been sent. It never logs the message body, which embeds the
// magic-link secret.
type LogMailer struct {
	logger logging.Logger
}

// NewLogMailer constructs a LogMailer.
func NewLogMailer(logger logging.Logger) *LogMailer {
	return &LogMailer{logger: logger.With("module", "mailer")}
}

func (m *LogMailer) Send(ctx context.Context, to, subject, body string) error {
	m.logger.Info(ctx, "mail suppressed (log mailer)", "to", to, "subject", subject)
	return nil
}
