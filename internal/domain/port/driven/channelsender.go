package driven

import (
	"context"
	"errors"

	"github.com/ericfisherdev/notipi/internal/domain/model"
)

// ErrPermanent marks a delivery failure that retrying cannot fix. Senders wrap
// it so the worker pool can fail the job without spending further attempts.
var ErrPermanent = errors.New("permanent delivery failure")

// Message is the rendered payload handed to a channel sender.
type Message struct {
	JobID     string
	Channel   model.Channel
	Recipient string
	Subject   string
	Body      string
}

// ChannelSender delivers a message over one transport.
type ChannelSender interface {
	Send(ctx context.Context, msg Message) error
}
