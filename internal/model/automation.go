package model

import (
	"encoding/json"
	"slices"
	"time"
)

type ActionType string

const (
	ActionTemplate ActionType = "template"
	ActionWebhook  ActionType = "webhook"
	ActionTag      ActionType = "tag"
)

type Automation struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	TriggerType  string          `json:"triggerType"`
	ActionType   ActionType      `json:"actionType"`
	ActionConfig json.RawMessage `json:"actionConfig,omitempty"`
	IsActive     bool            `json:"isActive"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// Causation is the chain of automation ids that led to an event. It is
// carried through every automation-triggered send.
type Causation struct {
	Chain []string `json:"chain,omitempty"`
}

func (c Causation) Depth() int {
	return len(c.Chain)
}

func (c Causation) Contains(automationID string) bool {
	return automationID != "" && slices.Contains(c.Chain, automationID)
}

func (c Causation) With(automationID string) Causation {
	if automationID == "" || c.Contains(automationID) {
		return c
	}
	chain := make([]string, 0, len(c.Chain)+1)
	chain = append(chain, c.Chain...)
	return Causation{Chain: append(chain, automationID)}
}

// TriggerEvent is what the automation engine reacts to.
type TriggerEvent struct {
	Type      string
	Session   *Session
	Message   *Message
	Payload   map[string]any
	Causation Causation
}
