package repo

import (
	"encoding/json"
	"time"

	"github.com/rushabhsmehta/tour-messaging/internal/model"
)

type messageRow struct {
	ID                string     `gorm:"primaryKey;size:64"`
	To                string     `gorm:"column:to_number;size:32;index"`
	From              string     `gorm:"column:from_number;size:32"`
	Preview           string     `gorm:"type:text"`
	Status            string     `gorm:"size:32;not null;index:idx_messages_due,priority:1"`
	Direction         string     `gorm:"size:16;not null"`
	ProviderMessageID *string    `gorm:"size:191;uniqueIndex"`
	ContactID         string     `gorm:"size:64"`
	Error             string     `gorm:"type:text"`
	MetadataJSON      string     `gorm:"type:text"`
	PayloadJSON       string     `gorm:"type:text"`
	SessionID         *string    `gorm:"size:64;index"`
	AutomationID      *string    `gorm:"size:64;index"`
	ScheduledAt       *time.Time `gorm:"index:idx_messages_due,priority:2"`
	SentAt            *time.Time `gorm:"index"`
	DeliveredAt       *time.Time
	ReadAt            *time.Time
	CreatedAt         time.Time `gorm:"not null"`
	UpdatedAt         time.Time `gorm:"not null"`
}

func (messageRow) TableName() string {
	return "messages"
}

func messageRowFromModel(m *model.Message) messageRow {
	row := messageRow{
		ID:           m.ID,
		To:           m.To,
		From:         m.From,
		Preview:      m.Preview,
		Status:       string(m.Status),
		Direction:    string(m.Direction),
		ContactID:    m.ContactID,
		Error:        m.Error,
		MetadataJSON: marshalJSON(m.Metadata),
		PayloadJSON:  string(m.Payload),
		SessionID:    m.SessionID,
		AutomationID: m.AutomationID,
		ScheduledAt:  utcPtr(m.ScheduledAt),
		SentAt:       utcPtr(m.SentAt),
		DeliveredAt:  utcPtr(m.DeliveredAt),
		ReadAt:       utcPtr(m.ReadAt),
		CreatedAt:    m.CreatedAt.UTC(),
		UpdatedAt:    m.UpdatedAt.UTC(),
	}
	if m.ProviderMessageID != "" {
		id := m.ProviderMessageID
		row.ProviderMessageID = &id
	}
	return row
}

func (r messageRow) toModel() model.Message {
	m := model.Message{
		ID:           r.ID,
		To:           r.To,
		From:         r.From,
		Preview:      r.Preview,
		Status:       model.Status(r.Status),
		Direction:    model.Direction(r.Direction),
		ContactID:    r.ContactID,
		Error:        r.Error,
		SessionID:    r.SessionID,
		AutomationID: r.AutomationID,
		ScheduledAt:  r.ScheduledAt,
		SentAt:       r.SentAt,
		DeliveredAt:  r.DeliveredAt,
		ReadAt:       r.ReadAt,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
	if r.ProviderMessageID != nil {
		m.ProviderMessageID = *r.ProviderMessageID
	}
	if r.PayloadJSON != "" {
		m.Payload = json.RawMessage(r.PayloadJSON)
	}
	unmarshalJSON(r.MetadataJSON, &m.Metadata)
	return m
}

type sessionRow struct {
	ID              string  `gorm:"primaryKey;size:64"`
	PhoneNumber     *string `gorm:"size:32;index"`
	ContactID       string  `gorm:"size:64;index"`
	FlowToken       string  `gorm:"size:191;index"`
	ContextJSON     string  `gorm:"type:text"`
	LastInteraction time.Time
	Archived        bool `gorm:"not null;index"`
	ExpiresAt       *time.Time
	CreatedAt       time.Time `gorm:"not null"`
	UpdatedAt       time.Time `gorm:"not null"`
}

func (sessionRow) TableName() string {
	return "sessions"
}

func sessionRowFromModel(s *model.Session) sessionRow {
	row := sessionRow{
		ID:              s.ID,
		ContactID:       s.ContactID,
		FlowToken:       s.FlowToken,
		ContextJSON:     marshalJSON(s.Context),
		LastInteraction: s.LastInteraction.UTC(),
		Archived:        s.Archived,
		ExpiresAt:       utcPtr(s.ExpiresAt),
		CreatedAt:       s.CreatedAt.UTC(),
		UpdatedAt:       s.UpdatedAt.UTC(),
	}
	if s.PhoneNumber != "" {
		p := s.PhoneNumber
		row.PhoneNumber = &p
	}
	return row
}

func (r sessionRow) toModel() model.Session {
	s := model.Session{
		ID:              r.ID,
		ContactID:       r.ContactID,
		FlowToken:       r.FlowToken,
		LastInteraction: r.LastInteraction,
		Archived:        r.Archived,
		ExpiresAt:       r.ExpiresAt,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
	if r.PhoneNumber != nil {
		s.PhoneNumber = *r.PhoneNumber
	}
	unmarshalJSON(r.ContextJSON, &s.Context)
	return s
}

type automationRow struct {
	ID           string `gorm:"primaryKey;size:64"`
	Name         string `gorm:"size:191"`
	TriggerType  string `gorm:"size:191;not null;index:idx_automations_trigger,priority:1"`
	ActionType   string `gorm:"size:32;not null"`
	ActionConfig string `gorm:"type:text"`
	IsActive     bool   `gorm:"not null;index:idx_automations_trigger,priority:2"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (automationRow) TableName() string {
	return "automations"
}

func automationRowFromModel(a *model.Automation) automationRow {
	return automationRow{
		ID:           a.ID,
		Name:         a.Name,
		TriggerType:  a.TriggerType,
		ActionType:   string(a.ActionType),
		ActionConfig: string(a.ActionConfig),
		IsActive:     a.IsActive,
		CreatedAt:    a.CreatedAt.UTC(),
		UpdatedAt:    a.UpdatedAt.UTC(),
	}
}

func (r automationRow) toModel() model.Automation {
	a := model.Automation{
		ID:          r.ID,
		Name:        r.Name,
		TriggerType: r.TriggerType,
		ActionType:  model.ActionType(r.ActionType),
		IsActive:    r.IsActive,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if r.ActionConfig != "" {
		a.ActionConfig = json.RawMessage(r.ActionConfig)
	}
	return a
}

type analyticsRow struct {
	ID           string    `gorm:"primaryKey;size:64"`
	EventType    string    `gorm:"size:191;not null;index"`
	SessionID    *string   `gorm:"size:64;index"`
	MessageID    *string   `gorm:"size:64;index"`
	AutomationID *string   `gorm:"size:64;index"`
	PayloadJSON  string    `gorm:"type:text"`
	ObservedAt   time.Time `gorm:"not null;index"`
}

func (analyticsRow) TableName() string {
	return "analytics_events"
}

func analyticsRowFromModel(e *model.AnalyticsEvent) analyticsRow {
	return analyticsRow{
		ID:           e.ID,
		EventType:    e.EventType,
		SessionID:    e.SessionID,
		MessageID:    e.MessageID,
		AutomationID: e.AutomationID,
		PayloadJSON:  marshalJSON(e.Payload),
		ObservedAt:   e.ObservedAt.UTC(),
	}
}

func (r analyticsRow) toModel() model.AnalyticsEvent {
	e := model.AnalyticsEvent{
		ID:           r.ID,
		EventType:    r.EventType,
		SessionID:    r.SessionID,
		MessageID:    r.MessageID,
		AutomationID: r.AutomationID,
		ObservedAt:   r.ObservedAt,
	}
	unmarshalJSON(r.PayloadJSON, &e.Payload)
	return e
}

type templateRow struct {
	ID               string `gorm:"primaryKey;size:64"`
	Name             string `gorm:"size:191;not null;uniqueIndex:idx_templates_name_language,priority:1"`
	Language         string `gorm:"size:32;not null;uniqueIndex:idx_templates_name_language,priority:2"`
	Category         string `gorm:"size:64"`
	Status           string `gorm:"size:64"`
	Body             string `gorm:"type:text"`
	ComponentsJSON   string `gorm:"type:text"`
	VariablesJSON    string `gorm:"type:text"`
	FlowDefaultsJSON string `gorm:"type:text"`
	SyncedAt         *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (templateRow) TableName() string {
	return "templates"
}

func templateRowFromModel(t *model.Template) templateRow {
	return templateRow{
		ID:               t.ID,
		Name:             t.Name,
		Language:         t.Language,
		Category:         t.Category,
		Status:           t.Status,
		Body:             t.Body,
		ComponentsJSON:   string(t.Components),
		VariablesJSON:    marshalJSON(t.Variables),
		FlowDefaultsJSON: marshalJSON(t.FlowDefaults),
		SyncedAt:         utcPtr(t.SyncedAt),
		UpdatedAt:        t.UpdatedAt.UTC(),
	}
}

func (r templateRow) toModel() model.Template {
	t := model.Template{
		ID:        r.ID,
		Name:      r.Name,
		Language:  r.Language,
		Category:  r.Category,
		Status:    r.Status,
		Body:      r.Body,
		SyncedAt:  r.SyncedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if r.ComponentsJSON != "" {
		t.Components = json.RawMessage(r.ComponentsJSON)
	}
	unmarshalJSON(r.VariablesJSON, &t.Variables)
	unmarshalJSON(r.FlowDefaultsJSON, &t.FlowDefaults)
	return t
}

// marshalJSON returns "" for nil and empty values so optional documents are
// stored as empty text.
func marshalJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	switch string(b) {
	case "null", "{}", "[]":
		return ""
	}
	return string(b)
}

func unmarshalJSON(s string, dst any) {
	if s == "" {
		return
	}
	_ = json.Unmarshal([]byte(s), dst)
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
