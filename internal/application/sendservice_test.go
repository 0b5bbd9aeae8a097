package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/notipi/internal/adapter/driven/memory"
	"github.com/ericfisherdev/notipi/internal/domain/model"
)

type sendFixture struct {
	svc       *SendService
	quotas    *fakeQuotaStore
	queue     *fakeQueue
	templates *fakeTemplateStore
}

func newSendFixture(t *testing.T) *sendFixture {
	t.Helper()
	f := &sendFixture{
		quotas:    newFakeQuotaStore(),
		queue:     newFakeQueue(),
		templates: &fakeTemplateStore{},
	}
	guard := NewQuotaGuard(f.quotas, &fakeOwnerStore{}, nil, nil)
	f.svc = NewSendService(guard, NewTemplateRenderer(f.templates), NewDispatcher(f.queue, DefaultQueuePolicy(), 4, nil), f.queue)
	return f
}

func TestSendService_SendEnqueuesRenderedJob(t *testing.T) {
	f := newSendFixture(t)
	f.templates.templates = []model.Template{{ID: "tpl-1", Slug: "welcome", OwnerID: "owner-1", Content: "<p>Hi {{name}}</p>", Format: model.FormatHTML}}

	id, err := f.svc.Send(context.Background(), testIdentity, SendRequest{
		To:      "alice@example.com",
		Subject: "Welcome",
		Content: ContentSource{TemplateSlug: "welcome", Data: map[string]string{"name": "Alice"}},
	})
	require.NoError(t, err)

	job, err := f.queue.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.ChannelEmail, job.Channel, "channel defaults to email")
	assert.Equal(t, "<p>Hi Alice</p>", job.Payload)
	assert.Equal(t, "tpl-1", job.TemplateID)
}

func TestSendService_SendValidation(t *testing.T) {
	tests := []struct {
		name string
		req  SendRequest
		msg  string
	}{
		{
			name: "missing recipient",
			req:  SendRequest{Subject: "Hi", Content: ContentSource{RawContent: "x"}},
			msg:  "Missing required fields: to, subject",
		},
		{
			name: "email without subject",
			req:  SendRequest{To: "a@x.io", Content: ContentSource{RawContent: "x"}},
			msg:  "Missing required fields: to, subject",
		},
		{
			name: "bad email",
			req:  SendRequest{To: "not-an-email", Subject: "Hi", Content: ContentSource{RawContent: "x"}},
			msg:  "Invalid email format",
		},
		{
			name: "bad phone",
			req:  SendRequest{Channel: model.ChannelSMS, To: "call me", Content: ContentSource{RawContent: "x"}},
			msg:  "Invalid phone number format",
		},
		{
			name: "unknown channel",
			req:  SendRequest{Channel: "fax", To: "a@x.io", Subject: "Hi"},
			msg:  `Unsupported channel "fax"`,
		},
		{
			name: "no content",
			req:  SendRequest{To: "a@x.io", Subject: "Hi"},
			msg:  "Either templateId/templateSlug or raw html/content required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newSendFixture(t)
			_, err := f.svc.Send(context.Background(), testIdentity, tt.req)
			appErr := requireKind(t, err, KindValidation)
			assert.Equal(t, tt.msg, appErr.Message)
			assert.Zero(t, f.queue.count())
		})
	}
}

func TestSendService_SendQuotaExhaustedEnqueuesNothing(t *testing.T) {
	f := newSendFixture(t)
	_, _ = f.quotas.Provision(context.Background(), model.UsageQuota{OwnerID: "owner-1", Channel: model.ChannelEmail, AllowedLimit: 5, UsedLimit: 5})

	_, err := f.svc.Send(context.Background(), testIdentity, SendRequest{To: "a@x.io", Subject: "Hi", Content: ContentSource{RawContent: "x"}})
	requireKind(t, err, KindQuotaExceeded)
	assert.Zero(t, f.queue.count())
}

func TestSendService_SendBulk(t *testing.T) {
	f := newSendFixture(t)

	res, err := f.svc.SendBulk(context.Background(), testIdentity, BulkSendRequest{
		Recipients: []string{"a@x.io", "bogus", "b@x.io"},
		Subject:    "News",
		Content:    ContentSource{Data: map[string]string{"html": "<b>{{headline}}</b>", "headline": "Launch"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Queued)
	assert.Equal(t, 1, res.Invalid)
	assert.Equal(t, []string{"bogus"}, res.InvalidRecipients)

	job, err := f.queue.Get(context.Background(), res.Jobs[0].JobID)
	require.NoError(t, err)
	assert.Equal(t, "<b>Launch</b>", job.Payload)
}

func TestSendService_SendBulkValidation(t *testing.T) {
	f := newSendFixture(t)
	ctx := context.Background()

	_, err := f.svc.SendBulk(ctx, testIdentity, BulkSendRequest{Subject: "x", Content: ContentSource{RawContent: "x"}})
	appErr := requireKind(t, err, KindValidation)
	assert.Equal(t, "Recipients array required and must not be empty", appErr.Message)

	_, err = f.svc.SendBulk(ctx, testIdentity, BulkSendRequest{Recipients: []string{"a@x.io"}, Content: ContentSource{RawContent: "x"}})
	appErr = requireKind(t, err, KindValidation)
	assert.Equal(t, "Subject is required", appErr.Message)

	_, err = f.svc.SendBulk(ctx, testIdentity, BulkSendRequest{Channel: model.ChannelPush, Recipients: []string{"a b"}, Content: ContentSource{RawContent: "x"}})
	appErr = requireKind(t, err, KindValidation)
	assert.Equal(t, "No valid push recipients provided", appErr.Message)
	assert.Equal(t, []string{"a b"}, appErr.Details["invalid"])

	assert.Zero(t, f.queue.count())
}

func TestSendService_QueueStats(t *testing.T) {
	f := newSendFixture(t)
	_, err := f.svc.Send(context.Background(), testIdentity, SendRequest{To: "a@x.io", Subject: "Hi", Content: ContentSource{RawContent: "x"}})
	require.NoError(t, err)

	stats, err := f.svc.QueueStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Waiting)
}

type pruneSpyQueue struct {
	*fakeQueue
	policies []model.RetentionPolicy
}

func (q *pruneSpyQueue) Prune(_ context.Context, policy model.RetentionPolicy, _ time.Time) (int64, error) {
	q.policies = append(q.policies, policy)
	return 2, nil
}

func TestRetentionService_Sweep(t *testing.T) {
	q := &pruneSpyQueue{fakeQueue: newFakeQueue()}
	counters := memory.NewCounterStore()
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}

	ok, err := counters.CompareAndSet(ctx, "sent:job_1", 0, 1, time.Minute, clock.Now())
	require.NoError(t, err)
	require.True(t, ok)

	svc := NewRetentionService(q, counters, DefaultQueuePolicy(), time.Minute, "@every 1m", nil)
	svc.now = clock.Now
	clock.Advance(10 * time.Minute)

	require.NoError(t, svc.Sweep(ctx))
	require.Len(t, q.policies, 1)
	assert.Equal(t, DefaultQueuePolicy().Retention, q.policies[0])

	removed, err := counters.Prune(ctx, time.Minute, clock.Now())
	require.NoError(t, err)
	assert.Zero(t, removed, "expired marker already swept")
}

func TestRetentionService_StartRejectsBadSchedule(t *testing.T) {
	svc := NewRetentionService(newFakeQueue(), memory.NewCounterStore(), DefaultQueuePolicy(), time.Minute, "every now and then", nil)
	assert.Error(t, svc.Start(context.Background()))
}
