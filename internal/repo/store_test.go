package repo

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rushabhsmehta/tour-messaging/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore("sqlite", filepath.Join(t.TempDir(), "messaging.db"))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func scheduledMessage(to string, at time.Time) *model.Message {
	return &model.Message{
		To:          to,
		Preview:     "Later",
		Status:      model.Scheduled,
		Payload:     []byte(`{"type":"text"}`),
		ScheduledAt: &at,
	}
}

func TestClaimDueOrdersAndClaimsOnce(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	now := time.Now().UTC()

	late := scheduledMessage("2", now.Add(-time.Minute))
	early := scheduledMessage("1", now.Add(-time.Hour))
	future := scheduledMessage("3", now.Add(time.Hour))
	for _, m := range []*model.Message{late, early, future} {
		if err := store.CreateMessage(ctx, m); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	claimed, err := store.ClaimDue(ctx, now, 10)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(claimed) != 2 {
		t.Fatalf("expected 2 claimed, got %d", len(claimed))
	}
	if claimed[0].ID != early.ID || claimed[1].ID != late.ID {
		t.Fatalf("expected oldest first, got %s, %s", claimed[0].To, claimed[1].To)
	}
	if claimed[0].Status != model.InProgress {
		t.Fatalf("expected in_progress, got %s", claimed[0].Status)
	}

	again, err := store.ClaimDue(ctx, now, 10)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("expected nothing left to claim, got %d", len(again))
	}

	if _, err := store.ClaimDue(ctx, now, 0); err == nil {
		t.Fatalf("expected error for zero limit")
	}
}

func TestRequeueReturnsUnattemptedClaims(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	now := time.Now().UTC()

	a := scheduledMessage("1", now.Add(-time.Hour))
	b := scheduledMessage("2", now.Add(-time.Minute))
	for _, m := range []*model.Message{a, b} {
		if err := store.CreateMessage(ctx, m); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	if _, err := store.ClaimDue(ctx, now, 10); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := store.MarkSent(ctx, a.ID, "wamid.1", "", now); err != nil {
		t.Fatalf("mark sent: %v", err)
	}

	n, err := store.Requeue(ctx, []string{a.ID, b.ID})
	if err != nil {
		t.Fatalf("requeue: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected only the in_progress message requeued, got %d", n)
	}

	got, err := store.GetMessage(ctx, a.ID)
	if err != nil || got.Status != model.Sent {
		t.Fatalf("sent message must stay sent, got %s err=%v", got.Status, err)
	}
	again, err := store.ClaimDue(ctx, now, 10)
	if err != nil {
		t.Fatalf("claim again: %v", err)
	}
	if len(again) != 1 || again[0].ID != b.ID {
		t.Fatalf("expected requeued message to be claimable, got %+v", again)
	}

	if n, err := store.Requeue(ctx, nil); err != nil || n != 0 {
		t.Fatalf("empty requeue: n=%d err=%v", n, err)
	}
}

func TestRequeueStaleOnlyTouchesOldClaims(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	now := time.Now().UTC()

	for _, to := range []string{"1", "2"} {
		if err := store.CreateMessage(ctx, scheduledMessage(to, now.Add(-time.Minute))); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	if claimed, err := store.ClaimDue(ctx, now, 10); err != nil || len(claimed) != 2 {
		t.Fatalf("claim: n=%d err=%v", len(claimed), err)
	}

	n, err := store.RequeueStale(ctx, time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("requeue stale: %v", err)
	}
	if n != 0 {
		t.Fatalf("fresh claims must not be requeued, got %d", n)
	}

	n, err = store.RequeueStale(ctx, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("requeue stale: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 stale claims requeued, got %d", n)
	}

	again, err := store.ClaimDue(ctx, time.Now(), 10)
	if err != nil {
		t.Fatalf("claim again: %v", err)
	}
	if len(again) != 2 {
		t.Fatalf("expected 2 claimable messages, got %d", len(again))
	}
}

func TestMarkSentAndStatusTransitions(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	m := scheduledMessage("911234567890", time.Now().Add(-time.Second))
	if err := store.CreateMessage(ctx, m); err != nil {
		t.Fatalf("create: %v", err)
	}
	sentAt := time.Now().UTC()
	if err := store.MarkSent(ctx, m.ID, "wamid.1", "911234567890", sentAt); err != nil {
		t.Fatalf("mark sent: %v", err)
	}
	if err := store.MarkFailed(ctx, m.ID, "late failure"); !errors.Is(err, ErrStaleStatus) {
		t.Fatalf("expected ErrStaleStatus for failing a sent message via MarkFailed, got %v", err)
	}

	byProvider, err := store.FindByProviderID(ctx, "wamid.1")
	if err != nil {
		t.Fatalf("find by provider id: %v", err)
	}
	if byProvider.ID != m.ID || byProvider.Status != model.Sent {
		t.Fatalf("unexpected message: %+v", byProvider)
	}

	read, applied, err := store.UpdateStatus(ctx, m.ID, model.Read, time.Now())
	if err != nil || !applied {
		t.Fatalf("update to read: applied=%v err=%v", applied, err)
	}
	if read.DeliveredAt == nil || read.ReadAt == nil {
		t.Fatalf("expected delivered and read timestamps")
	}

	_, applied, err = store.UpdateStatus(ctx, m.ID, model.Delivered, time.Now())
	if err != nil {
		t.Fatalf("regressive update: %v", err)
	}
	if applied {
		t.Fatalf("read message must not move back to delivered")
	}

	got, err := store.GetMessage(ctx, m.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != model.Read {
		t.Fatalf("expected read, got %s", got.Status)
	}

	sent, err := store.ListSent(ctx, 10, 0)
	if err != nil {
		t.Fatalf("list sent: %v", err)
	}
	if len(sent) != 1 {
		t.Fatalf("expected 1 sent message, got %d", len(sent))
	}
}

func TestFailedIsTerminal(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	m := &model.Message{To: "1", Status: model.Failed, Error: "boom"}
	if err := store.CreateMessage(ctx, m); err != nil {
		t.Fatalf("create: %v", err)
	}
	for _, next := range []model.Status{model.Sent, model.Delivered, model.Read, model.Scheduled} {
		_, applied, err := store.UpdateStatus(ctx, m.ID, next, time.Now())
		if err != nil {
			t.Fatalf("update to %s: %v", next, err)
		}
		if applied {
			t.Fatalf("failed message moved to %s", next)
		}
	}
	if err := store.MarkSent(ctx, m.ID, "wamid.x", "", time.Now()); !errors.Is(err, ErrStaleStatus) {
		t.Fatalf("expected ErrStaleStatus, got %v", err)
	}
	if err := store.MarkSent(ctx, "missing", "", "", time.Now()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestActiveSessionUniqueness(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	first := &model.Session{PhoneNumber: "911234567890", LastInteraction: time.Now()}
	if err := store.CreateSession(ctx, first); err != nil {
		t.Fatalf("create first: %v", err)
	}
	dup := &model.Session{PhoneNumber: "911234567890", LastInteraction: time.Now()}
	if err := store.CreateSession(ctx, dup); err == nil {
		t.Fatalf("expected a second live session for the same phone to be rejected")
	}

	if err := store.ArchiveSession(ctx, first.ID); err != nil {
		t.Fatalf("archive: %v", err)
	}
	next := &model.Session{PhoneNumber: "911234567890", LastInteraction: time.Now()}
	if err := store.CreateSession(ctx, next); err != nil {
		t.Fatalf("create after archive: %v", err)
	}

	n, err := store.CountActiveSessions(ctx, "911234567890")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 active session, got %d", n)
	}

	// sessions without a phone number do not collide
	for i := 0; i < 2; i++ {
		if err := store.CreateSession(ctx, &model.Session{ContactID: "c1", LastInteraction: time.Now()}); err != nil {
			t.Fatalf("create phoneless session: %v", err)
		}
	}
}

func TestSessionLookups(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	sess := &model.Session{
		PhoneNumber: "911234567890",
		ContactID:   "contact-1",
		FlowToken:   "tok-2",
		Context: model.SessionContext{
			Tags:       []string{"vip"},
			FlowTokens: []string{"tok-1", "tok-2"},
		},
		LastInteraction: time.Now(),
	}
	if err := store.CreateSession(ctx, sess); err != nil {
		t.Fatalf("create: %v", err)
	}

	for _, token := range []string{"tok-1", "tok-2"} {
		got, err := store.FindSessionByFlowToken(ctx, token)
		if err != nil {
			t.Fatalf("find by token %s: %v", token, err)
		}
		if got.ID != sess.ID {
			t.Fatalf("token %s resolved to %s", token, got.ID)
		}
	}
	if _, err := store.FindSessionByFlowToken(ctx, "tok-"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for a token prefix, got %v", err)
	}

	byContact, err := store.FindActiveSessionByContact(ctx, "contact-1")
	if err != nil || byContact.ID != sess.ID {
		t.Fatalf("find by contact: %v", err)
	}
	if got := byContact.Context.Tags; len(got) != 1 || got[0] != "vip" {
		t.Fatalf("context not round-tripped: %+v", byContact.Context)
	}

	sess.Context.LastScreen = "PAYMENT"
	if err := store.SaveSession(ctx, sess); err != nil {
		t.Fatalf("save: %v", err)
	}
	byPhone, err := store.FindActiveSessionByPhone(ctx, "911234567890")
	if err != nil {
		t.Fatalf("find by phone: %v", err)
	}
	if byPhone.Context.LastScreen != "PAYMENT" {
		t.Fatalf("expected saved context, got %+v", byPhone.Context)
	}
}

func TestAutomationsAndEvents(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	older := &model.Automation{Name: "old", TriggerType: model.EventMessageSent, ActionType: model.ActionTag, IsActive: true, UpdatedAt: time.Now().Add(-time.Hour)}
	newer := &model.Automation{Name: "new", TriggerType: model.EventMessageSent, ActionType: model.ActionTag, IsActive: true}
	inactive := &model.Automation{Name: "off", TriggerType: model.EventMessageSent, ActionType: model.ActionTag}
	other := &model.Automation{Name: "other", TriggerType: model.EventMessageFailed, ActionType: model.ActionTag, IsActive: true}
	for _, a := range []*model.Automation{older, newer, inactive, other} {
		if err := store.CreateAutomation(ctx, a); err != nil {
			t.Fatalf("create automation: %v", err)
		}
	}

	list, err := store.ListActiveAutomations(ctx, model.EventMessageSent, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].Name != "new" || list[1].Name != "old" {
		t.Fatalf("unexpected automations: %+v", list)
	}

	msgID := "m1"
	if err := store.AppendEvent(ctx, &model.AnalyticsEvent{EventType: model.EventMessageSent, MessageID: &msgID, Payload: map[string]any{"to": "1"}}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := store.AppendEvent(ctx, &model.AnalyticsEvent{EventType: model.EventMessageFailed}); err != nil {
		t.Fatalf("append: %v", err)
	}
	events, err := store.ListEvents(ctx, EventFilter{MessageID: msgID})
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 1 || events[0].Payload["to"] != "1" {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestTemplatesUpsertKeepsFlowDefaults(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	defaults := []model.FlowDefault{{Index: 0, Text: "Book", FlowID: "42"}}
	if err := store.SaveFlowDefaults(ctx, "trip_offer", "en_US", defaults); err != nil {
		t.Fatalf("save defaults: %v", err)
	}

	tpl := &model.Template{Name: "trip_offer", Language: "en_US", Body: "Hi {{1}}", Variables: []string{"1"}}
	if err := store.UpsertTemplate(ctx, tpl); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := store.GetTemplate(ctx, "trip_offer", "en_US")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Body != "Hi {{1}}" {
		t.Fatalf("expected body to be refreshed, got %q", got.Body)
	}
	if len(got.FlowDefaults) != 1 || got.FlowDefaults[0].FlowID != "42" {
		t.Fatalf("expected learned defaults to survive, got %+v", got.FlowDefaults)
	}

	if _, err := store.GetTemplate(ctx, "trip_offer", "hi"); err != nil {
		t.Fatalf("expected name-only fallback: %v", err)
	}
	if _, err := store.GetTemplate(ctx, "missing", ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTransactionRollsBack(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	boom := errors.New("boom")
	var id string
	err := store.Transaction(ctx, func(tx *Store) error {
		m := &model.Message{To: "1", Status: model.Sent}
		if err := tx.CreateMessage(ctx, m); err != nil {
			return err
		}
		id = m.ID
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if _, err := store.GetMessage(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected rolled back message, got %v", err)
	}
}
