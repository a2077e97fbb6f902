package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rushabhsmehta/tour-messaging/internal/cache"
	"github.com/rushabhsmehta/tour-messaging/internal/metrics"
	"github.com/rushabhsmehta/tour-messaging/internal/model"
	"github.com/rushabhsmehta/tour-messaging/internal/nonfatal"
	"github.com/rushabhsmehta/tour-messaging/internal/repo"
)

var ErrUnknownStatus = errors.New("unknown message status")

type StatusStore interface {
	GetMessage(ctx context.Context, id string) (model.Message, error)
	FindByProviderID(ctx context.Context, providerMessageID string) (model.Message, error)
	UpdateStatus(ctx context.Context, id string, next model.Status, at time.Time) (model.Message, bool, error)
}

// StatusUpdate is one delivery receipt reported by the provider.
type StatusUpdate struct {
	ProviderMessageID string
	Status            string
	Timestamp         time.Time
	RecipientID       string
	Errors            []string
}

type StatusUpdater struct {
	store    StatusStore
	sessions SessionLookup
	sent     cache.MessageCache
	now      func() time.Time

	effects
}

func NewStatusUpdater(store StatusStore, recorder Recorder) *StatusUpdater {
	return &StatusUpdater{store: store, now: time.Now, effects: effects{recorder: recorder}}
}

func (u *StatusUpdater) WithCache(c cache.MessageCache) *StatusUpdater {
	u.sent = c
	return u
}

func (u *StatusUpdater) WithSessions(s SessionLookup) *StatusUpdater {
	u.sessions = s
	return u
}

func (u *StatusUpdater) WithAutomations(a Automations) *StatusUpdater {
	u.automations = a
	return u
}

func parseStatus(s string) (model.Status, error) {
	switch st := model.Status(strings.ToLower(strings.TrimSpace(s))); st {
	case model.Sent, model.Delivered, model.Read, model.Failed:
		return st, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
	}
}

// Apply moves the matching message forward. A receipt that would move the
// message backwards is ignored and reported with applied=false.
func (u *StatusUpdater) Apply(ctx context.Context, su StatusUpdate) (msg model.Message, applied bool, err error) {
	next, err := parseStatus(su.Status)
	if err != nil {
		return model.Message{}, false, err
	}

	current, err := u.find(ctx, su.ProviderMessageID)
	if err != nil {
		return model.Message{}, false, err
	}

	at := su.Timestamp
	if at.IsZero() {
		at = u.now()
	}

	msg, applied, err = u.store.UpdateStatus(ctx, current.ID, next, at)
	if errors.Is(err, repo.ErrStaleStatus) {
		// a concurrent receipt won; this one is out of date
		err = nil
	}
	metrics.StatusUpdate(string(next), applied)
	if err != nil || !applied {
		if err == nil {
			slog.Debug("status update ignored", "message_id", current.ID, "from", current.Status, "to", next)
		}
		return msg, false, err
	}

	data := map[string]any{
		"status":            string(next),
		"providerMessageId": su.ProviderMessageID,
	}
	if len(su.Errors) > 0 {
		data["errors"] = su.Errors
	}
	u.record(ctx, model.EventMessageStatus, &msg, data)

	ev := model.TriggerEvent{
		Type:      model.EventMessageStatus,
		Session:   u.lookupSession(ctx, &msg),
		Message:   &msg,
		Payload:   data,
		Causation: causationFromMetadata(msg.Metadata),
	}
	u.trigger(ctx, ev)

	if specific := statusEvent(next); specific != "" {
		u.record(ctx, specific, &msg, data)
		ev.Type = specific
		u.trigger(ctx, ev)
	}
	return msg, true, nil
}

func statusEvent(s model.Status) string {
	switch s {
	case model.Delivered:
		return model.EventMessageDelivered
	case model.Read:
		return model.EventMessageRead
	case model.Failed:
		return model.EventMessageFailed
	default:
		return ""
	}
}

func (u *StatusUpdater) find(ctx context.Context, providerMessageID string) (model.Message, error) {
	if providerMessageID == "" {
		return model.Message{}, repo.ErrNotFound
	}
	if u.sent != nil {
		id, ok, err := u.sent.LookupSent(ctx, providerMessageID)
		if err != nil {
			slog.Warn("sent index lookup failed", "provider_message_id", providerMessageID, "err", err)
		}
		if ok {
			m, err := u.store.GetMessage(ctx, id)
			if err == nil {
				return m, nil
			}
			if !errors.Is(err, repo.ErrNotFound) {
				return model.Message{}, err
			}
		}
	}
	return u.store.FindByProviderID(ctx, providerMessageID)
}

func (u *StatusUpdater) lookupSession(ctx context.Context, m *model.Message) *model.Session {
	if u.sessions == nil || m.SessionID == nil {
		return nil
	}
	s, ok := nonfatal.Value(ctx, "session.get", func(ctx context.Context) (model.Session, error) {
		return u.sessions.GetSession(ctx, *m.SessionID)
	})
	if !ok {
		return nil
	}
	return &s
}
