// Package analytics appends lifecycle facts to the event log.
package analytics

import (
	"context"
	"time"

	"github.com/rushabhsmehta/tour-messaging/internal/model"
)

type Store interface {
	AppendEvent(ctx context.Context, e *model.AnalyticsEvent) error
}

type Recorder struct {
	store Store
	now   func() time.Time
}

func NewRecorder(store Store) *Recorder {
	return &Recorder{store: store, now: time.Now}
}

func (r *Recorder) Record(ctx context.Context, e model.AnalyticsEvent) error {
	if e.ObservedAt.IsZero() {
		e.ObservedAt = r.now().UTC()
	}
	return r.store.AppendEvent(ctx, &e)
}

// MessageEvent correlates an event with a message and its session and
// automation.
func MessageEvent(eventType string, m *model.Message, payload map[string]any) model.AnalyticsEvent {
	e := model.AnalyticsEvent{EventType: eventType, Payload: payload}
	if m == nil {
		return e
	}
	if m.ID != "" {
		id := m.ID
		e.MessageID = &id
	}
	e.SessionID = m.SessionID
	e.AutomationID = m.AutomationID
	return e
}

func AutomationEvent(eventType string, a model.Automation, trigger model.TriggerEvent, payload map[string]any) model.AnalyticsEvent {
	id := a.ID
	e := model.AnalyticsEvent{EventType: eventType, AutomationID: &id, Payload: payload}
	if trigger.Session != nil {
		sid := trigger.Session.ID
		e.SessionID = &sid
	}
	if trigger.Message != nil && trigger.Message.ID != "" {
		mid := trigger.Message.ID
		e.MessageID = &mid
	}
	return e
}
