package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rushabhsmehta/tour-messaging/internal/model"
)

func (s *Store) CreateAutomation(ctx context.Context, a *model.Automation) error {
	now := time.Now().UTC()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = now
	}
	row := automationRowFromModel(a)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("create automation: %w", err)
	}
	return nil
}

// ListActiveAutomations returns active rules for triggerType, most recently
// updated first.
func (s *Store) ListActiveAutomations(ctx context.Context, triggerType string, limit int) ([]model.Automation, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []automationRow
	err := s.db.WithContext(ctx).
		Where("trigger_type = ? AND is_active = ?", triggerType, true).
		Order("updated_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list automations: %w", err)
	}
	out := make([]model.Automation, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toModel())
	}
	return out, nil
}
