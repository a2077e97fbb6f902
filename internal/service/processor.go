package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/rushabhsmehta/tour-messaging/internal/cache"
	"github.com/rushabhsmehta/tour-messaging/internal/metrics"
	"github.com/rushabhsmehta/tour-messaging/internal/model"
	"github.com/rushabhsmehta/tour-messaging/internal/nonfatal"
)

const (
	processLockName = "messages:process-due"
	// defaultStaleAfter is how long a claim may stay in_progress before a
	// later run takes the message back.
	defaultStaleAfter = 10 * time.Minute
)

type DueStore interface {
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]model.Message, error)
	Requeue(ctx context.Context, ids []string) (int64, error)
	RequeueStale(ctx context.Context, before time.Time) (int64, error)
	MarkSent(ctx context.Context, id, providerMessageID, contactID string, sentAt time.Time) error
	MarkFailed(ctx context.Context, id, reason string) error
}

type SessionLookup interface {
	GetSession(ctx context.Context, id string) (model.Session, error)
}

type ProcessReport struct {
	Claimed  int  `json:"claimed"`
	Sent     int  `json:"sent"`
	Failed   int  `json:"failed"`
	Requeued int  `json:"requeued,omitempty"`
	Locked   bool `json:"locked,omitempty"`
}

// Processor delivers scheduled messages once they are due.
type Processor struct {
	transport  Transport
	store      DueStore
	sessions   SessionLookup
	sent       cache.MessageCache
	locker     cache.Locker
	lockTTL    time.Duration
	staleAfter time.Duration
	now        func() time.Time

	effects
}

func NewProcessor(transport Transport, store DueStore, recorder Recorder) *Processor {
	return &Processor{
		transport:  transport,
		store:      store,
		staleAfter: defaultStaleAfter,
		now:        time.Now,
		effects:    effects{recorder: recorder},
	}
}

// WithStaleAfter sets how old an in_progress claim must be before it is
// handed back to scheduled.
func (p *Processor) WithStaleAfter(d time.Duration) *Processor {
	if d > 0 {
		p.staleAfter = d
	}
	return p
}

// WithLocker makes ProcessDue skip a run while another instance holds the
// lock. Claims stay per row either way.
func (p *Processor) WithLocker(l cache.Locker, ttl time.Duration) *Processor {
	p.locker = l
	p.lockTTL = ttl
	return p
}

func (p *Processor) WithCache(c cache.MessageCache) *Processor {
	p.sent = c
	return p
}

func (p *Processor) WithSessions(s SessionLookup) *Processor {
	p.sessions = s
	return p
}

func (p *Processor) WithAutomations(a Automations) *Processor {
	p.automations = a
	return p
}

// ProcessDue claims up to limit due messages and sends them one by one.
func (p *Processor) ProcessDue(ctx context.Context, limit int) (ProcessReport, error) {
	var report ProcessReport
	if limit <= 0 {
		return report, errors.New("limit must be > 0")
	}

	if p.locker != nil {
		// without the lock the per row claim still prevents double sends
		var lock cache.Lock
		acquired, ok := nonfatal.Value(ctx, "lock.acquire", func(ctx context.Context) (bool, error) {
			l, got, err := p.locker.Acquire(ctx, processLockName, p.lockTTL)
			lock = l
			return got, err
		})
		if ok && !acquired {
			metrics.ProcessorLockSkipped()
			report.Locked = true
			return report, nil
		}
		if lock != nil {
			defer nonfatal.Do(context.WithoutCancel(ctx), "lock.release", lock.Release)
		}
	}

	now := p.now().UTC()
	if n, ok := nonfatal.Value(ctx, "message.requeue_stale", func(ctx context.Context) (int64, error) {
		return p.store.RequeueStale(ctx, now.Add(-p.staleAfter))
	}); ok && n > 0 {
		slog.Warn("requeued stale claims", "count", n, "stale_after", p.staleAfter)
	}

	msgs, err := p.store.ClaimDue(ctx, now, limit)
	report.Claimed = len(msgs)
	metrics.ProcessorClaimed(len(msgs))
	if err != nil {
		// rows claimed before the error are still ours to send
		slog.Error("claim due messages failed", "claimed", len(msgs), "err", err)
	}

	for i := range msgs {
		if ctx.Err() != nil {
			report.Requeued += p.requeue(ctx, msgs[i:])
			break
		}
		switch p.processOne(ctx, &msgs[i]) {
		case outcomeSent:
			report.Sent++
		case outcomeFailed:
			report.Failed++
		case outcomeRequeued:
			report.Requeued += p.requeue(ctx, msgs[i:i+1])
		}
	}
	return report, err
}

type outcome int

const (
	outcomeSent outcome = iota
	outcomeFailed
	outcomeRequeued
)

// requeue hands messages back to scheduled. The run context may already be
// cancelled, so the update runs without it.
func (p *Processor) requeue(ctx context.Context, msgs []model.Message) int {
	ids := make([]string, 0, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.ID)
	}
	n, ok := nonfatal.Value(context.WithoutCancel(ctx), "message.requeue", func(ctx context.Context) (int64, error) {
		return p.store.Requeue(ctx, ids)
	})
	if !ok {
		return 0
	}
	slog.Info("requeued unsent messages", "count", n)
	return int(n)
}

func (p *Processor) processOne(ctx context.Context, m *model.Message) outcome {
	start := p.now()
	ev := model.TriggerEvent{
		Session:   p.lookupSession(ctx, m),
		Message:   m,
		Causation: causationFromMetadata(m.Metadata),
	}

	if len(m.Payload) == 0 {
		p.fail(context.WithoutCancel(ctx), m, ev, errors.New("scheduled message has no stored payload"), start)
		return outcomeFailed
	}

	resp, err := p.transport.SendMessage(ctx, m.Payload, m.ID)
	if err != nil && ctx.Err() != nil {
		// interrupted, not rejected; the next run resends with the same key
		slog.Warn("scheduled send interrupted", "message_id", m.ID, "err", err)
		return outcomeRequeued
	}

	// the provider has answered; record the outcome even if the run is cancelled
	ctx = context.WithoutCancel(ctx)
	if err != nil {
		p.fail(ctx, m, ev, err, start)
		return outcomeFailed
	}
	metrics.MessageSent("scheduled", float64(p.now().Sub(start).Milliseconds()))

	sentAt := p.now().UTC()
	m.Status = model.Sent
	m.ProviderMessageID = resp.MessageID()
	m.ContactID = resp.ContactID()
	m.SentAt = &sentAt

	if err := p.store.MarkSent(ctx, m.ID, m.ProviderMessageID, m.ContactID, sentAt); err != nil {
		slog.Error("mark sent failed", "message_id", m.ID, "provider_message_id", m.ProviderMessageID, "err", err)
	} else if p.sent != nil {
		nonfatal.Do(ctx, "cache.store_sent", func(ctx context.Context) error {
			return p.sent.StoreSent(ctx, m.ID, m.ProviderMessageID, sentAt)
		})
	}

	p.record(ctx, model.EventMessageSent, m, map[string]any{
		"to":                m.To,
		"providerMessageId": m.ProviderMessageID,
		"scheduled":         true,
	})
	ev.Type = model.EventMessageSent
	p.trigger(ctx, ev)
	return outcomeSent
}

func (p *Processor) fail(ctx context.Context, m *model.Message, ev model.TriggerEvent, sendErr error, start time.Time) {
	metrics.MessageFailed("scheduled", float64(p.now().Sub(start).Milliseconds()))
	slog.Warn("scheduled send failed", "message_id", m.ID, "to", m.To, "err", sendErr)

	m.Status = model.Failed
	m.Error = sendErr.Error()
	nonfatal.Do(ctx, "message.mark_failed", func(ctx context.Context) error {
		return p.store.MarkFailed(ctx, m.ID, m.Error)
	})

	p.record(ctx, model.EventMessageFailed, m, map[string]any{
		"to":        m.To,
		"error":     m.Error,
		"scheduled": true,
	})
	ev.Type = model.EventMessageFailed
	p.trigger(ctx, ev)
}

func (p *Processor) lookupSession(ctx context.Context, m *model.Message) *model.Session {
	if p.sessions == nil || m.SessionID == nil {
		return nil
	}
	s, ok := nonfatal.Value(ctx, "session.get", func(ctx context.Context) (model.Session, error) {
		return p.sessions.GetSession(ctx, *m.SessionID)
	})
	if !ok {
		return nil
	}
	return &s
}
