// Package channel implements the ChannelSender port for each delivery
// transport and routes messages to the sender registered for their channel.
package channel

import (
	"context"
	"fmt"

	"github.com/microcosm-cc/bluemonday"

	"github.com/ericfisherdev/notipi/internal/domain/model"
	"github.com/ericfisherdev/notipi/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.ChannelSender = (*Router)(nil)

// textPolicy strips every tag, leaving the readable text of an HTML body.
var textPolicy = bluemonday.StrictPolicy()

// Router dispatches each message to the sender registered for its channel.
type Router struct {
	senders map[model.Channel]driven.ChannelSender
}

// NewRouter creates an empty Router.
func NewRouter() *Router {
	return &Router{senders: make(map[model.Channel]driven.ChannelSender)}
}

// Register binds sender to ch, replacing any previous binding.
func (r *Router) Register(ch model.Channel, sender driven.ChannelSender) *Router {
	r.senders[ch] = sender
	return r
}

// Send delivers msg through its channel's sender. A channel with no sender
// fails permanently since no retry can make one appear.
func (r *Router) Send(ctx context.Context, msg driven.Message) error {
	sender, ok := r.senders[msg.Channel]
	if !ok {
		return fmt.Errorf("no sender configured for channel %q: %w", msg.Channel, driven.ErrPermanent)
	}
	return sender.Send(ctx, msg)
}

// PlainText reduces an HTML body to text for transports that cannot render
// markup.
func PlainText(body string) string {
	return textPolicy.Sanitize(body)
}
