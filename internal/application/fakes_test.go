package application

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/ericfisherdev/notipi/internal/domain/model"
	"github.com/ericfisherdev/notipi/internal/domain/port/driven"
)

// --- Hand-written fakes for driven ports ---

type fakeCredentialStore struct {
	creds []model.Credential
	err   error
}

func (f *fakeCredentialStore) Create(_ context.Context, c model.Credential) error {
	f.creds = append(f.creds, c)
	return nil
}

func (f *fakeCredentialStore) GetByID(_ context.Context, id string) (*model.Credential, error) {
	for i := range f.creds {
		if f.creds[i].ID == id {
			return &f.creds[i], nil
		}
	}
	return nil, nil
}

func (f *fakeCredentialStore) ListActive(_ context.Context) ([]model.Credential, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []model.Credential
	for _, c := range f.creds {
		if !c.IsRevoked {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeCredentialStore) ListActiveByPrefix(ctx context.Context, prefix string) ([]model.Credential, error) {
	all, err := f.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	var out []model.Credential
	for _, c := range all {
		if c.LookupPrefix == prefix {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeCredentialStore) Revoke(_ context.Context, id string) error {
	for i := range f.creds {
		if f.creds[i].ID == id {
			f.creds[i].IsRevoked = true
			return nil
		}
	}
	return driven.ErrCredentialNotFound
}

type fakeQuotaStore struct {
	mu     sync.Mutex
	quotas map[string]model.UsageQuota
}

func newFakeQuotaStore() *fakeQuotaStore {
	return &fakeQuotaStore{quotas: make(map[string]model.UsageQuota)}
}

func quotaKey(owner string, ch model.Channel) string { return owner + "/" + string(ch) }

func (f *fakeQuotaStore) Get(_ context.Context, owner string, ch model.Channel) (*model.UsageQuota, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	q, ok := f.quotas[quotaKey(owner, ch)]
	if !ok {
		return nil, nil
	}
	return &q, nil
}

func (f *fakeQuotaStore) Provision(_ context.Context, q model.UsageQuota) (*model.UsageQuota, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := quotaKey(q.OwnerID, q.Channel)
	if existing, ok := f.quotas[k]; ok {
		return &existing, nil
	}
	f.quotas[k] = q
	return &q, nil
}

func (f *fakeQuotaStore) ListByOwner(_ context.Context, owner string) ([]model.UsageQuota, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.UsageQuota
	for _, q := range f.quotas {
		if q.OwnerID == owner {
			out = append(out, q)
		}
	}
	return out, nil
}

type fakeOwnerStore struct {
	owners map[string]model.Owner
}

func (f *fakeOwnerStore) Upsert(_ context.Context, o model.Owner) error {
	if f.owners == nil {
		f.owners = make(map[string]model.Owner)
	}
	f.owners[o.ID] = o
	return nil
}

func (f *fakeOwnerStore) Get(_ context.Context, id string) (*model.Owner, error) {
	o, ok := f.owners[id]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

type fakeTemplateStore struct {
	templates []model.Template
}

func (f *fakeTemplateStore) GetByID(_ context.Context, id string) (*model.Template, error) {
	for i := range f.templates {
		if f.templates[i].ID == id {
			return &f.templates[i], nil
		}
	}
	return nil, nil
}

func (f *fakeTemplateStore) GetBySlug(_ context.Context, slug, owner string) (*model.Template, error) {
	var match *model.Template
	for i := range f.templates {
		if f.templates[i].Slug != slug {
			continue
		}
		if f.templates[i].OwnerID == owner {
			return &f.templates[i], nil
		}
		if match == nil {
			match = &f.templates[i]
		}
	}
	return match, nil
}

// fakeQueue is an in-memory JobQueue with the same transition rules as the
// SQLite queue.
type fakeQueue struct {
	mu         sync.Mutex
	jobs       map[string]*model.Job
	lockedTill map[string]time.Time
	enqueueErr func(job model.Job) error
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{jobs: make(map[string]*model.Job), lockedTill: make(map[string]time.Time)}
}

func (q *fakeQueue) Enqueue(_ context.Context, job model.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.enqueueErr != nil {
		if err := q.enqueueErr(job); err != nil {
			return err
		}
	}
	if _, ok := q.jobs[job.ID]; ok {
		return driven.ErrJobExists
	}
	job.State = model.JobStateQueued
	q.jobs[job.ID] = &job
	return nil
}

func (q *fakeQueue) Claim(_ context.Context, now time.Time, lease time.Duration) (*model.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var candidates []*model.Job
	for _, j := range q.jobs {
		runnable := j.State == model.JobStateQueued && !j.RunAt.After(now)
		expired := j.State == model.JobStateActive && q.lockedTill[j.ID].Before(now)
		if runnable || expired {
			candidates = append(candidates, j)
		}
	}
	if len(candidates) == 0 {
		return nil, driven.ErrQueueEmpty
	}
	sort.Slice(candidates, func(a, b int) bool { return candidates[a].RunAt.Before(candidates[b].RunAt) })

	j := candidates[0]
	j.State = model.JobStateActive
	j.AttemptCount++
	q.lockedTill[j.ID] = now.Add(lease)
	cp := *j
	return &cp, nil
}

func (q *fakeQueue) transition(id string, fn func(j *model.Job)) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	j, ok := q.jobs[id]
	if !ok || j.State != model.JobStateActive {
		return driven.ErrJobNotFound
	}
	fn(j)
	return nil
}

func (q *fakeQueue) Complete(_ context.Context, id string, now time.Time) error {
	return q.transition(id, func(j *model.Job) {
		j.State = model.JobStateCompleted
		j.FinishedAt = &now
	})
}

func (q *fakeQueue) Retry(_ context.Context, id string, runAt time.Time, lastErr string, _ time.Time) error {
	return q.transition(id, func(j *model.Job) {
		j.State = model.JobStateQueued
		j.RunAt = runAt
		j.LastError = lastErr
	})
}

func (q *fakeQueue) Fail(_ context.Context, id string, lastErr string, now time.Time) error {
	return q.transition(id, func(j *model.Job) {
		j.State = model.JobStateFailed
		j.LastError = lastErr
		j.FinishedAt = &now
	})
}

func (q *fakeQueue) Get(_ context.Context, id string) (*model.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	j, ok := q.jobs[id]
	if !ok {
		return nil, driven.ErrJobNotFound
	}
	cp := *j
	return &cp, nil
}

func (q *fakeQueue) Stats(_ context.Context) (model.QueueStats, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var s model.QueueStats
	for _, j := range q.jobs {
		switch j.State {
		case model.JobStateQueued:
			s.Waiting++
		case model.JobStateActive:
			s.Active++
		case model.JobStateCompleted:
			s.Completed++
		case model.JobStateFailed:
			s.Failed++
		}
	}
	return s, nil
}

func (q *fakeQueue) Prune(_ context.Context, _ model.RetentionPolicy, _ time.Time) (int64, error) {
	return 0, nil
}

func (q *fakeQueue) count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

type fakeLedger struct {
	mu      sync.Mutex
	applied map[string]driven.Delivery
}

func (l *fakeLedger) ApplyDelivery(_ context.Context, d driven.Delivery) (driven.LedgerResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.applied == nil {
		l.applied = make(map[string]driven.Delivery)
	}
	if _, ok := l.applied[d.JobID]; ok {
		return driven.LedgerResult{}, nil
	}
	l.applied[d.JobID] = d
	return driven.LedgerResult{Applied: true}, nil
}

type fakeAudit struct {
	mu      sync.Mutex
	records []model.AuditRecord
}

func (a *fakeAudit) Append(_ context.Context, rec model.AuditRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, rec)
	return nil
}

func (a *fakeAudit) ListByJob(_ context.Context, jobID string) ([]model.AuditRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []model.AuditRecord
	for _, r := range a.records {
		if r.JobID == jobID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (a *fakeAudit) ListByOwner(_ context.Context, owner string, _ int) ([]model.AuditRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []model.AuditRecord
	for _, r := range a.records {
		if r.OwnerID == owner {
			out = append(out, r)
		}
	}
	return out, nil
}

type fakeSender struct {
	mu    sync.Mutex
	calls []driven.Message
	err   error
	panic bool
}

func (s *fakeSender) Send(_ context.Context, msg driven.Message) error {
	s.mu.Lock()
	s.calls = append(s.calls, msg)
	s.mu.Unlock()
	if s.panic {
		panic("transport exploded")
	}
	return s.err
}

func (s *fakeSender) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var errTransport = errors.New("smtp: connection refused")
