package service

import (
	"context"
	"errors"
	"time"

	"github.com/rushabhsmehta/tour-messaging/internal/automation"
	"github.com/rushabhsmehta/tour-messaging/internal/model"
	"github.com/rushabhsmehta/tour-messaging/internal/phone"
	"github.com/rushabhsmehta/tour-messaging/internal/session"
)

// InboundMessage is a message a contact sent to the business number.
type InboundMessage struct {
	ProviderMessageID string
	From              string
	ContactID         string
	ProfileName       string
	Type              string
	Text              string
	// FlowToken is set when the message completes a flow.
	FlowToken string
	Screen    string
	Timestamp time.Time
}

// CustomEvent is an application event that automations may listen for.
type CustomEvent struct {
	Type        string
	PhoneNumber string
	ContactID   string
	SessionID   string
	Payload     map[string]any
}

// Inbound keeps sessions current for contact activity and fans it out to
// analytics and automations.
type Inbound struct {
	sessions Sessions
	lookup   SessionLookup
	region   string

	effects
}

func NewInbound(sessions Sessions, lookup SessionLookup, recorder Recorder, defaultRegion string) *Inbound {
	return &Inbound{
		sessions: sessions,
		lookup:   lookup,
		region:   defaultRegion,
		effects:  effects{recorder: recorder},
	}
}

func (in *Inbound) WithAutomations(a Automations) *Inbound {
	in.automations = a
	return in
}

func (in *Inbound) Receive(ctx context.Context, m InboundMessage) (*model.Session, error) {
	from := phone.Normalize(m.From, in.region)

	patch := model.ContextPatch{}
	if m.Text != "" {
		patch.LastMessage = model.StringPtr(m.Text)
	}
	if m.Type != "" {
		patch.LastAction = model.StringPtr(m.Type)
	}
	if m.Screen != "" {
		patch.LastScreen = model.StringPtr(m.Screen)
	}
	if m.ProfileName != "" {
		patch.Extra = map[string]any{"profileName": m.ProfileName}
	}

	sess, err := in.sessions.Ensure(ctx, session.Hints{
		PhoneNumber: from,
		ContactID:   m.ContactID,
		FlowToken:   m.FlowToken,
		Patch:       patch,
	})
	if err != nil {
		return nil, err
	}

	msg := &model.Message{
		From:              from,
		Preview:           m.Text,
		Direction:         model.Inbound,
		ProviderMessageID: m.ProviderMessageID,
		ContactID:         m.ContactID,
	}
	if sess != nil {
		msg.SessionID = model.StringPtr(sess.ID)
	}

	data := map[string]any{"from": from, "type": m.Type, "providerMessageId": m.ProviderMessageID}
	if m.FlowToken != "" {
		data["flowToken"] = m.FlowToken
	}
	in.record(ctx, model.EventMessageReceived, msg, data)
	in.trigger(ctx, model.TriggerEvent{Type: model.EventMessageReceived, Session: sess, Message: msg, Payload: data})
	return sess, nil
}

// Emit records a custom event and runs the automations listening for it.
// The session is looked up but never created.
func (in *Inbound) Emit(ctx context.Context, ev CustomEvent) (automation.RunReport, error) {
	if ev.Type == "" {
		return automation.RunReport{}, errors.New("event type is required")
	}

	sess, err := in.findSession(ctx, ev)
	if err != nil {
		return automation.RunReport{}, err
	}

	if ev.PhoneNumber != "" {
		if ev.Payload == nil {
			ev.Payload = map[string]any{}
		}
		if _, ok := ev.Payload["phoneNumber"]; !ok {
			ev.Payload["phoneNumber"] = phone.Normalize(ev.PhoneNumber, in.region)
		}
	}

	var msg *model.Message
	if sess != nil {
		msg = &model.Message{SessionID: model.StringPtr(sess.ID)}
	}
	in.record(ctx, ev.Type, msg, ev.Payload)

	if in.automations == nil {
		return automation.RunReport{}, nil
	}
	return in.automations.Run(ctx, model.TriggerEvent{Type: ev.Type, Session: sess, Payload: ev.Payload}), nil
}

func (in *Inbound) findSession(ctx context.Context, ev CustomEvent) (*model.Session, error) {
	if ev.SessionID != "" && in.lookup != nil {
		s, err := in.lookup.GetSession(ctx, ev.SessionID)
		if err != nil {
			return nil, err
		}
		return &s, nil
	}
	create := false
	return in.sessions.Ensure(ctx, session.Hints{
		PhoneNumber:     phone.Normalize(ev.PhoneNumber, in.region),
		ContactID:       ev.ContactID,
		CreateIfMissing: &create,
	})
}
