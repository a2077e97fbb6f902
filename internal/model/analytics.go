package model

import "time"

const (
	EventMessageReceived     = "message.received"
	EventMessageScheduled    = "message.scheduled"
	EventMessageSent         = "message.sent"
	EventMessageFailed       = "message.failed"
	EventMessageStatus       = "message.status"
	EventMessageDelivered    = "message.delivered"
	EventMessageRead         = "message.read"
	EventAutomationTriggered = "automation.triggered"
	EventAutomationFailed    = "automation.failed"
)

type AnalyticsEvent struct {
	ID           string         `json:"id"`
	EventType    string         `json:"eventType"`
	SessionID    *string        `json:"sessionId,omitempty"`
	MessageID    *string        `json:"messageId,omitempty"`
	AutomationID *string        `json:"automationId,omitempty"`
	Payload      map[string]any `json:"payload,omitempty"`
	ObservedAt   time.Time      `json:"observedAt"`
}
