package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushabhsmehta/tour-messaging/internal/model"
)

type memStore struct {
	events []model.AnalyticsEvent
}

func (m *memStore) AppendEvent(_ context.Context, e *model.AnalyticsEvent) error {
	m.events = append(m.events, *e)
	return nil
}

func TestRecord_StampsObservedAt(t *testing.T) {
	store := &memStore{}
	r := NewRecorder(store)
	fixed := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return fixed }

	require.NoError(t, r.Record(context.Background(), model.AnalyticsEvent{EventType: "custom.click"}))
	earlier := fixed.Add(-time.Hour)
	require.NoError(t, r.Record(context.Background(), model.AnalyticsEvent{EventType: "custom.click", ObservedAt: earlier}))

	require.Len(t, store.events, 2)
	assert.Equal(t, fixed, store.events[0].ObservedAt)
	assert.Equal(t, earlier, store.events[1].ObservedAt)
}

func TestMessageEvent(t *testing.T) {
	sid, aid := "s1", "a1"
	e := MessageEvent(model.EventMessageSent, &model.Message{ID: "m1", SessionID: &sid, AutomationID: &aid}, map[string]any{"to": "1"})
	assert.Equal(t, model.EventMessageSent, e.EventType)
	assert.Equal(t, "m1", *e.MessageID)
	assert.Equal(t, "s1", *e.SessionID)
	assert.Equal(t, "a1", *e.AutomationID)

	e = MessageEvent(model.EventMessageFailed, nil, nil)
	assert.Nil(t, e.MessageID)
}

func TestAutomationEvent(t *testing.T) {
	e := AutomationEvent(model.EventAutomationTriggered, model.Automation{ID: "a9"}, model.TriggerEvent{
		Session: &model.Session{ID: "s1"},
		Message: &model.Message{ID: "m1"},
	}, nil)
	assert.Equal(t, "a9", *e.AutomationID)
	assert.Equal(t, "s1", *e.SessionID)
	assert.Equal(t, "m1", *e.MessageID)
}
