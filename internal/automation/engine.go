// Package automation runs the event to action rules configured for the
// messaging lifecycle.
package automation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rushabhsmehta/tour-messaging/internal/analytics"
	"github.com/rushabhsmehta/tour-messaging/internal/client"
	"github.com/rushabhsmehta/tour-messaging/internal/metrics"
	"github.com/rushabhsmehta/tour-messaging/internal/model"
	"github.com/rushabhsmehta/tour-messaging/internal/nonfatal"
	"github.com/rushabhsmehta/tour-messaging/internal/payload"
)

const (
	DefaultMaxDepth  = 3
	DefaultBatchSize = 50
)

type Store interface {
	ListActiveAutomations(ctx context.Context, triggerType string, limit int) ([]model.Automation, error)
}

type Sessions interface {
	Tag(ctx context.Context, id string, tags []string) (*model.Session, error)
}

type Webhooks interface {
	Do(ctx context.Context, req client.WebhookRequest) error
}

type Recorder interface {
	Record(ctx context.Context, e model.AnalyticsEvent) error
}

// TemplateSend asks the dispatcher to deliver a template on behalf of an
// automation.
type TemplateSend struct {
	To           string
	Template     payload.Template
	AutomationID string
	Causation    model.Causation
}

type TemplateResult struct {
	Success   bool
	MessageID string
	Error     string
}

type TemplateSender interface {
	SendTemplate(ctx context.Context, req TemplateSend) (TemplateResult, error)
}

type Options struct {
	MaxDepth  int
	BatchSize int
}

type Engine struct {
	store    Store
	sessions Sessions
	webhooks Webhooks
	recorder Recorder
	sender   TemplateSender
	maxDepth int
	batch    int
}

func NewEngine(store Store, sessions Sessions, webhooks Webhooks, recorder Recorder, opts Options) *Engine {
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultMaxDepth
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	return &Engine{
		store:    store,
		sessions: sessions,
		webhooks: webhooks,
		recorder: recorder,
		maxDepth: opts.MaxDepth,
		batch:    opts.BatchSize,
	}
}

// SetSender wires the template action. The dispatcher itself runs the engine,
// so the sender is attached after both exist.
func (e *Engine) SetSender(s TemplateSender) {
	e.sender = s
}

type RunReport struct {
	Matched   int
	Triggered int
	Failed    int
	Skipped   int
}

// Run executes every active automation listening for ev.Type. A failing
// automation is recorded and does not stop the others.
func (e *Engine) Run(ctx context.Context, ev model.TriggerEvent) RunReport {
	var report RunReport

	if ev.Message != nil && ev.Message.AutomationID != nil {
		ev.Causation = ev.Causation.With(*ev.Message.AutomationID)
	}
	if ev.Causation.Depth() >= e.maxDepth {
		metrics.AutomationSkipped("max_depth")
		slog.Warn("automation chain too deep", "event", ev.Type, "chain", ev.Causation.Chain)
		return report
	}

	autos, err := e.store.ListActiveAutomations(ctx, ev.Type, e.batch)
	if err != nil {
		slog.Error("load automations failed", "event", ev.Type, "err", err)
		return report
	}
	report.Matched = len(autos)

	for _, a := range autos {
		if ev.Causation.Contains(a.ID) {
			report.Skipped++
			metrics.AutomationSkipped("cycle")
			continue
		}

		report.Triggered++
		e.record(ctx, analytics.AutomationEvent(model.EventAutomationTriggered, a, ev, map[string]any{
			"eventType":  ev.Type,
			"actionType": string(a.ActionType),
		}))

		if err := e.execute(ctx, a, ev); err != nil {
			report.Failed++
			metrics.AutomationRun(string(a.ActionType), "failed")
			slog.Warn("automation failed", "automation_id", a.ID, "event", ev.Type, "err", err)
			e.record(ctx, analytics.AutomationEvent(model.EventAutomationFailed, a, ev, map[string]any{
				"eventType": ev.Type,
				"error":     err.Error(),
			}))
			continue
		}
		metrics.AutomationRun(string(a.ActionType), "ok")
	}
	return report
}

func (e *Engine) record(ctx context.Context, ev model.AnalyticsEvent) {
	nonfatal.Do(ctx, "analytics."+ev.EventType, func(ctx context.Context) error {
		return e.recorder.Record(ctx, ev)
	})
}

func (e *Engine) execute(ctx context.Context, a model.Automation, ev model.TriggerEvent) error {
	switch a.ActionType {
	case model.ActionTemplate:
		return e.sendTemplate(ctx, a, ev)
	case model.ActionWebhook:
		return e.callWebhook(ctx, a, ev)
	case model.ActionTag:
		return e.tagSession(ctx, a, ev)
	default:
		return fmt.Errorf("unknown action type %q", a.ActionType)
	}
}

func (e *Engine) sendTemplate(ctx context.Context, a model.Automation, ev model.TriggerEvent) error {
	var cfg templateConfig
	if err := decodeConfig(a.ActionConfig, &cfg); err != nil {
		return err
	}
	if e.sender == nil {
		return errors.New("template sender not configured")
	}

	to := targetPhone(cfg.To, ev)
	if to == "" {
		return errors.New("no phone number to send the template to")
	}

	res, err := e.sender.SendTemplate(ctx, TemplateSend{
		To: to,
		Template: payload.Template{
			Name:         cfg.TemplateName,
			Language:     cfg.Language,
			HeaderParams: payload.TextParams(cfg.HeaderParams...),
			BodyParams:   payload.TextParams(cfg.BodyParams...),
			Buttons:      cfg.Buttons,
		},
		AutomationID: a.ID,
		Causation:    ev.Causation.With(a.ID),
	})
	if err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("template send failed: %s", res.Error)
	}
	return nil
}

func targetPhone(configured string, ev model.TriggerEvent) string {
	if s := strings.TrimSpace(configured); s != "" {
		return s
	}
	if ev.Session != nil && ev.Session.PhoneNumber != "" {
		return ev.Session.PhoneNumber
	}
	if ev.Message != nil {
		if ev.Message.Direction == model.Inbound {
			return ev.Message.From
		}
		return ev.Message.To
	}
	if v, ok := ev.Payload["phoneNumber"].(string); ok {
		return v
	}
	return ""
}

type webhookBody struct {
	AutomationID   string          `json:"automationId"`
	AutomationName string          `json:"automationName"`
	EventType      string          `json:"eventType"`
	Session        *model.Session  `json:"session,omitempty"`
	Message        *model.Message  `json:"message,omitempty"`
	Payload        map[string]any  `json:"payload,omitempty"`
	Causation      model.Causation `json:"causation"`
}

func (e *Engine) callWebhook(ctx context.Context, a model.Automation, ev model.TriggerEvent) error {
	var cfg webhookConfig
	if err := decodeConfig(a.ActionConfig, &cfg); err != nil {
		return err
	}
	return e.webhooks.Do(ctx, client.WebhookRequest{
		URL:     cfg.URL,
		Method:  cfg.Method,
		Headers: cfg.Headers,
		Body: webhookBody{
			AutomationID:   a.ID,
			AutomationName: a.Name,
			EventType:      ev.Type,
			Session:        ev.Session,
			Message:        ev.Message,
			Payload:        ev.Payload,
			Causation:      ev.Causation.With(a.ID),
		},
	})
}

func (e *Engine) tagSession(ctx context.Context, a model.Automation, ev model.TriggerEvent) error {
	var cfg tagConfig
	if err := decodeConfig(a.ActionConfig, &cfg); err != nil {
		return err
	}

	var sessionID string
	switch {
	case ev.Session != nil:
		sessionID = ev.Session.ID
	case ev.Message != nil && ev.Message.SessionID != nil:
		sessionID = *ev.Message.SessionID
	}
	if sessionID == "" {
		return errors.New("no session to tag")
	}

	updated, err := e.sessions.Tag(ctx, sessionID, cfg.Tags)
	if err != nil {
		return err
	}
	if ev.Session != nil && updated != nil {
		ev.Session.Context = updated.Context
	}
	return nil
}
