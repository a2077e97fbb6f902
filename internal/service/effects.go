package service

import (
	"context"

	"github.com/rushabhsmehta/tour-messaging/internal/analytics"
	"github.com/rushabhsmehta/tour-messaging/internal/automation"
	"github.com/rushabhsmehta/tour-messaging/internal/model"
	"github.com/rushabhsmehta/tour-messaging/internal/nonfatal"
)

type Recorder interface {
	Record(ctx context.Context, e model.AnalyticsEvent) error
}

// Automations runs the rules listening for a lifecycle event.
type Automations interface {
	Run(ctx context.Context, ev model.TriggerEvent) automation.RunReport
}

// effects are the steps that follow a status change of a message: the
// analytics event first, then the automations.
type effects struct {
	recorder    Recorder
	automations Automations
}

func (e *effects) record(ctx context.Context, eventType string, m *model.Message, data map[string]any) {
	if e.recorder == nil {
		return
	}
	ev := analytics.MessageEvent(eventType, m, data)
	nonfatal.Do(ctx, "analytics."+eventType, func(ctx context.Context) error {
		return e.recorder.Record(ctx, ev)
	})
}

func (e *effects) trigger(ctx context.Context, ev model.TriggerEvent) {
	if e.automations == nil {
		return
	}
	e.automations.Run(ctx, ev)
}

const (
	metaOrigin     = "origin"
	metaCausation  = "causation"
	metaFlowTokens = "flowTokens"
)

// causationFromMetadata restores the chain stored with a scheduled message so
// replayed sends keep their loop guard.
func causationFromMetadata(meta map[string]any) model.Causation {
	var c model.Causation
	switch chain := meta[metaCausation].(type) {
	case []string:
		c.Chain = append(c.Chain, chain...)
	case []any:
		for _, v := range chain {
			if s, ok := v.(string); ok && s != "" {
				c.Chain = append(c.Chain, s)
			}
		}
	}
	return c
}
