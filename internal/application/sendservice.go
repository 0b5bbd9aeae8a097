package application

import (
	"context"
	"fmt"

	"github.com/ericfisherdev/notipi/internal/domain/model"
	"github.com/ericfisherdev/notipi/internal/domain/port/driven"
)

// SendRequest is a single-recipient send.
type SendRequest struct {
	Channel model.Channel
	To      string
	Subject string
	Content ContentSource
}

// BulkSendRequest is a many-recipient send sharing one payload.
type BulkSendRequest struct {
	Channel    model.Channel
	Recipients []string
	Subject    string
	Content    ContentSource
}

// SendService runs the admission pipeline after the caller has been
// authenticated and rate limited: quota, rendering, then enqueue. Nothing is
// enqueued unless every pre-check passes.
type SendService struct {
	guard      *QuotaGuard
	renderer   *TemplateRenderer
	dispatcher *Dispatcher
	queue      driven.JobQueue
}

// NewSendService creates a SendService.
func NewSendService(guard *QuotaGuard, renderer *TemplateRenderer, dispatcher *Dispatcher, queue driven.JobQueue) *SendService {
	return &SendService{
		guard:      guard,
		renderer:   renderer,
		dispatcher: dispatcher,
		queue:      queue,
	}
}

// Send admits and enqueues one message, returning the job id.
func (s *SendService) Send(ctx context.Context, id model.Identity, req SendRequest) (string, error) {
	ch, err := normalizeChannel(req.Channel)
	if err != nil {
		return "", err
	}
	if req.To == "" || (ch == model.ChannelEmail && req.Subject == "") {
		return "", validationError("Missing required fields: to, subject")
	}
	if !ValidRecipient(ch, req.To) {
		return "", validationError(fmt.Sprintf("Invalid %s format", recipientNoun(ch)))
	}

	if err := s.guard.CheckSingle(ctx, id.Owner(), ch); err != nil {
		return "", err
	}

	content, err := s.renderer.Resolve(ctx, id.Owner(), req.Content)
	if err != nil {
		return "", err
	}

	return s.dispatcher.Dispatch(ctx, JobSpec{
		Identity:   id,
		Channel:    ch,
		Subject:    req.Subject,
		Payload:    content.Body,
		TemplateID: content.TemplateID,
	}, req.To)
}

// SendBulk admits the whole batch against quota, then enqueues one job per
// valid recipient with partial-success semantics.
func (s *SendService) SendBulk(ctx context.Context, id model.Identity, req BulkSendRequest) (BulkResult, error) {
	ch, err := normalizeChannel(req.Channel)
	if err != nil {
		return BulkResult{}, err
	}
	if len(req.Recipients) == 0 {
		return BulkResult{}, validationError("Recipients array required and must not be empty")
	}
	if ch == model.ChannelEmail && req.Subject == "" {
		return BulkResult{}, validationError("Subject is required")
	}

	admission, err := s.guard.CheckBulk(ctx, id.Owner(), ch, req.Recipients)
	if err != nil {
		return BulkResult{}, err
	}

	content, err := s.renderer.Resolve(ctx, id.Owner(), req.Content)
	if err != nil {
		return BulkResult{}, err
	}

	res := s.dispatcher.DispatchBulk(ctx, JobSpec{
		Identity:   id,
		Channel:    ch,
		Subject:    req.Subject,
		Payload:    content.Body,
		TemplateID: content.TemplateID,
	}, admission.Valid)
	res.Invalid = len(admission.Invalid)
	res.InvalidRecipients = admission.Invalid
	return res, nil
}

// QueueStats returns job counts per state.
func (s *SendService) QueueStats(ctx context.Context) (model.QueueStats, error) {
	stats, err := s.queue.Stats(ctx)
	if err != nil {
		return model.QueueStats{}, internalError("queue stats", err)
	}
	return stats, nil
}

func normalizeChannel(ch model.Channel) (model.Channel, error) {
	if ch == "" {
		return model.ChannelEmail, nil
	}
	if !ch.Valid() {
		return "", validationError(fmt.Sprintf("Unsupported channel %q", ch))
	}
	return ch, nil
}

func recipientNoun(ch model.Channel) string {
	switch ch {
	case model.ChannelSMS:
		return "phone number"
	case model.ChannelPush:
		return "device token"
	default:
		return "email"
	}
}
