package channel

import (
	"context"
	"log/slog"

	"github.com/ericfisherdev/notipi/internal/domain/port/driven"
)

// LogSender writes messages to the structured log instead of delivering them.
// It stands in for real transports in development.
type LogSender struct{}

// Send logs msg and always succeeds.
func (LogSender) Send(_ context.Context, msg driven.Message) error {
	slog.Info("message delivered to log",
		"job_id", msg.JobID,
		"channel", msg.Channel,
		"to", msg.Recipient,
		"subject", msg.Subject,
		"body_bytes", len(msg.Body),
	)
	return nil
}
