package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rushabhsmehta/tour-messaging/internal/cache"
	"github.com/rushabhsmehta/tour-messaging/internal/client"
	"github.com/rushabhsmehta/tour-messaging/internal/metrics"
	"github.com/rushabhsmehta/tour-messaging/internal/model"
	"github.com/rushabhsmehta/tour-messaging/internal/nonfatal"
	"github.com/rushabhsmehta/tour-messaging/internal/payload"
	"github.com/rushabhsmehta/tour-messaging/internal/phone"
	"github.com/rushabhsmehta/tour-messaging/internal/session"
)

// scheduleThreshold is how far ahead ScheduleFor must be for a send to be
// deferred instead of delivered now.
const scheduleThreshold = time.Second

type Transport interface {
	SendMessage(ctx context.Context, body []byte, idempotencyKey string) (*payload.SendResponse, error)
}

type MessageStore interface {
	CreateMessage(ctx context.Context, m *model.Message) error
}

type FlowTokens interface {
	Complete(ctx context.Context, tpl *payload.Template) []model.FlowTokenUsage
}

type Sessions interface {
	Ensure(ctx context.Context, h session.Hints) (*model.Session, error)
}

type SendRequest struct {
	payload.Request

	ScheduleFor *time.Time
	// SkipPersistence sends without writing a Message record. Such a request
	// cannot be scheduled and is delivered immediately.
	SkipPersistence bool

	ContactID     string
	CreateSession *bool
	Patch         model.ContextPatch
	Metadata      map[string]any

	// AutomationID is set when an automation issued the send.
	AutomationID string
	Causation    model.Causation
}

type SendResult struct {
	Success   bool           `json:"success"`
	MessageID string         `json:"messageId,omitempty"`
	Error     string         `json:"error,omitempty"`
	Record    *model.Message `json:"record,omitempty"`
}

type Dispatcher struct {
	transport Transport
	messages  MessageStore
	sessions  Sessions
	flows     FlowTokens
	sent      cache.MessageCache
	region    string
	now       func() time.Time

	effects
}

func NewDispatcher(transport Transport, messages MessageStore, sessions Sessions, recorder Recorder, defaultRegion string) *Dispatcher {
	return &Dispatcher{
		transport: transport,
		messages:  messages,
		sessions:  sessions,
		region:    defaultRegion,
		now:       time.Now,
		effects:   effects{recorder: recorder},
	}
}

func (d *Dispatcher) WithFlowTokens(f FlowTokens) *Dispatcher {
	d.flows = f
	return d
}

func (d *Dispatcher) WithCache(c cache.MessageCache) *Dispatcher {
	d.sent = c
	return d
}

func (d *Dispatcher) WithAutomations(a Automations) *Dispatcher {
	d.automations = a
	return d
}

// Send delivers or schedules one message. FLOW buttons of req.Template are
// completed in place. The returned error is non-nil only when the request
// itself is invalid; delivery and bookkeeping problems are reported through
// SendResult.
func (d *Dispatcher) Send(ctx context.Context, req SendRequest) (SendResult, error) {
	start := d.now()

	req.To = phone.Normalize(req.To, d.region)

	var usages []model.FlowTokenUsage
	if req.Template != nil && d.flows != nil {
		usages = d.flows.Complete(ctx, req.Template)
	}

	env, err := payload.Build(req.Request)
	if err != nil {
		return SendResult{Error: err.Error()}, err
	}
	body, err := json.Marshal(env)
	if err != nil {
		return SendResult{Error: err.Error()}, fmt.Errorf("%w: %v", payload.ErrInvalidRequest, err)
	}

	preview := payload.Preview(req.Request)
	sess := d.ensureSession(ctx, req, usages, preview)

	msg := &model.Message{
		ID:        uuid.NewString(),
		To:        req.To,
		Preview:   preview,
		Direction: model.Outbound,
		Metadata:  buildMetadata(req, usages),
		Payload:   body,
	}
	if sess != nil {
		msg.SessionID = model.StringPtr(sess.ID)
	}
	if req.AutomationID != "" {
		msg.AutomationID = model.StringPtr(req.AutomationID)
	}

	if req.ScheduleFor != nil && !req.SkipPersistence && req.ScheduleFor.After(start.Add(scheduleThreshold)) {
		return d.schedule(ctx, msg, req.ScheduleFor.UTC())
	}

	ev := model.TriggerEvent{
		Session:   sess,
		Causation: req.Causation.With(req.AutomationID),
	}

	// the record id doubles as idempotency key across transport retries
	resp, sendErr := d.transport.SendMessage(ctx, body, msg.ID)
	elapsed := float64(d.now().Sub(start).Milliseconds())
	if sendErr != nil {
		metrics.MessageFailed(origin(req), elapsed)
		return d.failed(ctx, req, msg, ev, sendErr), nil
	}
	metrics.MessageSent(origin(req), elapsed)

	sentAt := d.now().UTC()
	msg.Status = model.Sent
	msg.ProviderMessageID = resp.MessageID()
	msg.ContactID = resp.ContactID()
	msg.SentAt = &sentAt

	result := SendResult{Success: true, MessageID: msg.ProviderMessageID}
	if d.persist(ctx, req, msg) {
		result.Record = msg
		if d.sent != nil {
			nonfatal.Do(ctx, "cache.store_sent", func(ctx context.Context) error {
				return d.sent.StoreSent(ctx, msg.ID, msg.ProviderMessageID, sentAt)
			})
		}
	}

	d.record(ctx, model.EventMessageSent, msg, map[string]any{
		"to":                msg.To,
		"providerMessageId": msg.ProviderMessageID,
	})
	ev.Type = model.EventMessageSent
	ev.Message = msg
	d.trigger(ctx, ev)

	return result, nil
}

func (d *Dispatcher) ensureSession(ctx context.Context, req SendRequest, usages []model.FlowTokenUsage, preview string) *model.Session {
	if d.sessions == nil {
		return nil
	}
	patch := req.Patch
	for _, u := range usages {
		patch.FlowTokens = append(patch.FlowTokens, u.Token)
	}
	if patch.LastFlowToken == nil && len(usages) > 0 {
		patch.LastFlowToken = model.StringPtr(usages[len(usages)-1].Token)
	}
	if patch.LastMessage == nil && preview != "" {
		patch.LastMessage = model.StringPtr(preview)
	}

	sess, _ := nonfatal.Value(ctx, "session.ensure", func(ctx context.Context) (*model.Session, error) {
		return d.sessions.Ensure(ctx, session.Hints{
			PhoneNumber:     req.To,
			ContactID:       req.ContactID,
			Patch:           patch,
			CreateIfMissing: req.CreateSession,
		})
	})
	return sess
}

func (d *Dispatcher) schedule(ctx context.Context, msg *model.Message, at time.Time) (SendResult, error) {
	msg.Status = model.Scheduled
	msg.ScheduledAt = &at
	if err := d.messages.CreateMessage(ctx, msg); err != nil {
		slog.Error("persist scheduled message failed", "to", msg.To, "err", err)
		return SendResult{Error: fmt.Sprintf("schedule message: %v", err)}, nil
	}
	metrics.MessageScheduled()
	d.record(ctx, model.EventMessageScheduled, msg, map[string]any{
		"to":          msg.To,
		"scheduledAt": at.Format(time.RFC3339),
	})
	return SendResult{Success: true, Record: msg}, nil
}

func (d *Dispatcher) failed(ctx context.Context, req SendRequest, msg *model.Message, ev model.TriggerEvent, sendErr error) SendResult {
	slog.Warn("send failed", "to", msg.To, "message_id", msg.ID, "err", sendErr)

	msg.Status = model.Failed
	msg.Error = sendErr.Error()

	result := SendResult{Error: sendErr.Error()}
	if d.persist(ctx, req, msg) {
		result.Record = msg
	}

	data := map[string]any{"to": msg.To, "error": msg.Error}
	var apiErr *client.APIError
	if errors.As(sendErr, &apiErr) {
		data["statusCode"] = apiErr.StatusCode
		if apiErr.Code != 0 {
			data["code"] = apiErr.Code
		}
	}
	d.record(ctx, model.EventMessageFailed, msg, data)

	ev.Type = model.EventMessageFailed
	ev.Message = msg
	d.trigger(ctx, ev)
	return result
}

func (d *Dispatcher) persist(ctx context.Context, req SendRequest, msg *model.Message) bool {
	if req.SkipPersistence {
		return false
	}
	return nonfatal.Do(ctx, "message.create_"+string(msg.Status), func(ctx context.Context) error {
		return d.messages.CreateMessage(ctx, msg)
	})
}

func origin(req SendRequest) string {
	if req.AutomationID != "" {
		return "automation"
	}
	return "api"
}

func buildMetadata(req SendRequest, usages []model.FlowTokenUsage) map[string]any {
	meta := make(map[string]any, len(req.Metadata)+3)
	for k, v := range req.Metadata {
		meta[k] = v
	}
	meta[metaOrigin] = origin(req)
	if chain := req.Causation.With(req.AutomationID).Chain; len(chain) > 0 {
		meta[metaCausation] = chain
	}
	if len(usages) > 0 {
		meta[metaFlowTokens] = usages
	}
	return meta
}
