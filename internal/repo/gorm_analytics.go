package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rushabhsmehta/tour-messaging/internal/model"
)

func (s *Store) AppendEvent(ctx context.Context, e *model.AnalyticsEvent) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.ObservedAt.IsZero() {
		e.ObservedAt = time.Now().UTC()
	}
	row := analyticsRowFromModel(e)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("append analytics event: %w", err)
	}
	return nil
}

// ListEvents returns matching events in the order they were observed.
func (s *Store) ListEvents(ctx context.Context, f EventFilter) ([]model.AnalyticsEvent, error) {
	q := s.db.WithContext(ctx).Model(&analyticsRow{})
	if f.EventType != "" {
		q = q.Where("event_type = ?", f.EventType)
	}
	if f.MessageID != "" {
		q = q.Where("message_id = ?", f.MessageID)
	}
	if f.AutomationID != "" {
		q = q.Where("automation_id = ?", f.AutomationID)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}

	var rows []analyticsRow
	if err := q.Order("observed_at ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list analytics events: %w", err)
	}
	out := make([]model.AnalyticsEvent, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toModel())
	}
	return out, nil
}
