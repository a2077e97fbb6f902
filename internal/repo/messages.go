package repo

import (
	"context"
	"errors"
	"time"

	"github.com/rushabhsmehta/tour-messaging/internal/model"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrStaleStatus is returned when a conditional status update matched no
	// row because the message has already moved on.
	ErrStaleStatus = errors.New("message status changed concurrently")
)

type MessageRepository interface {
	CreateMessage(ctx context.Context, m *model.Message) error
	GetMessage(ctx context.Context, id string) (model.Message, error)
	FindByProviderID(ctx context.Context, providerMessageID string) (model.Message, error)
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]model.Message, error)
	Requeue(ctx context.Context, ids []string) (int64, error)
	RequeueStale(ctx context.Context, before time.Time) (int64, error)
	MarkSent(ctx context.Context, id, providerMessageID, contactID string, sentAt time.Time) error
	MarkFailed(ctx context.Context, id, errMsg string) error
	UpdateStatus(ctx context.Context, id string, next model.Status, at time.Time) (model.Message, bool, error)
	ListSent(ctx context.Context, limit, offset int) ([]model.Message, error)
}

type SessionRepository interface {
	CreateSession(ctx context.Context, s *model.Session) error
	SaveSession(ctx context.Context, s *model.Session) error
	GetSession(ctx context.Context, id string) (model.Session, error)
	FindSessionByFlowToken(ctx context.Context, token string) (model.Session, error)
	FindActiveSessionByContact(ctx context.Context, contactID string) (model.Session, error)
	FindActiveSessionByPhone(ctx context.Context, phone string) (model.Session, error)
	ArchiveSession(ctx context.Context, id string) error
}

type AutomationRepository interface {
	CreateAutomation(ctx context.Context, a *model.Automation) error
	ListActiveAutomations(ctx context.Context, triggerType string, limit int) ([]model.Automation, error)
}

type AnalyticsRepository interface {
	AppendEvent(ctx context.Context, e *model.AnalyticsEvent) error
	ListEvents(ctx context.Context, f EventFilter) ([]model.AnalyticsEvent, error)
}

type EventFilter struct {
	EventType    string
	MessageID    string
	AutomationID string
	Limit        int
}

type TemplateRepository interface {
	GetTemplate(ctx context.Context, name, language string) (model.Template, error)
	UpsertTemplate(ctx context.Context, t *model.Template) error
	SaveFlowDefaults(ctx context.Context, name, language string, defaults []model.FlowDefault) error
}
