package model

import (
	"encoding/json"
	"time"
)

type Status string

const (
	Scheduled  Status = "scheduled"
	InProgress Status = "in_progress"
	Sent       Status = "sent"
	Delivered  Status = "delivered"
	Read       Status = "read"
	Failed     Status = "failed"
)

var statusRank = map[Status]int{
	Scheduled:  0,
	InProgress: 1,
	Sent:       2,
	Delivered:  3,
	Read:       4,
}

// CanTransitionTo reports whether a message in status s may move to next.
// Statuses only move forward; failed and read are terminal.
func (s Status) CanTransitionTo(next Status) bool {
	if s == Failed || s == Read {
		return false
	}
	if next == Failed {
		return true
	}
	cur, ok := statusRank[s]
	if !ok {
		return false
	}
	nxt, ok := statusRank[next]
	if !ok {
		return false
	}
	// a scheduled message has to be sent before it can be delivered
	if cur < statusRank[Sent] && nxt > statusRank[Sent] {
		return false
	}
	return nxt > cur
}

type Direction string

const (
	Outbound Direction = "outbound"
	Inbound  Direction = "inbound"
)

type Message struct {
	ID                string          `json:"id"`
	To                string          `json:"to"`
	From              string          `json:"from,omitempty"`
	Preview           string          `json:"preview"`
	Status            Status          `json:"status"`
	Direction         Direction       `json:"direction"`
	ProviderMessageID string          `json:"providerMessageId,omitempty"`
	ContactID         string          `json:"contactId,omitempty"`
	Error             string          `json:"error,omitempty"`
	Metadata          map[string]any  `json:"metadata,omitempty"`
	Payload           json.RawMessage `json:"payload,omitempty"`
	SessionID         *string         `json:"sessionId,omitempty"`
	AutomationID      *string         `json:"automationId,omitempty"`
	ScheduledAt       *time.Time      `json:"scheduledAt,omitempty"`
	SentAt            *time.Time      `json:"sentAt,omitempty"`
	DeliveredAt       *time.Time      `json:"deliveredAt,omitempty"`
	ReadAt            *time.Time      `json:"readAt,omitempty"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}
