package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rushabhsmehta/tour-messaging/internal/model"
)

func (s *Store) CreateMessage(ctx context.Context, m *model.Message) error {
	now := time.Now().UTC()
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Direction == "" {
		m.Direction = model.Outbound
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now

	row := messageRowFromModel(m)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("create message: %w", err)
	}
	return nil
}

func (s *Store) GetMessage(ctx context.Context, id string) (model.Message, error) {
	return s.takeMessage(ctx, "id = ?", id)
}

func (s *Store) FindByProviderID(ctx context.Context, providerMessageID string) (model.Message, error) {
	if providerMessageID == "" {
		return model.Message{}, ErrNotFound
	}
	return s.takeMessage(ctx, "provider_message_id = ?", providerMessageID)
}

func (s *Store) takeMessage(ctx context.Context, query string, args ...any) (model.Message, error) {
	var row messageRow
	err := s.db.WithContext(ctx).Where(query, args...).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.Message{}, ErrNotFound
		}
		return model.Message{}, fmt.Errorf("get message: %w", err)
	}
	return row.toModel(), nil
}

// ClaimDue moves up to limit due scheduled messages to in_progress and returns
// them oldest first. Each row is claimed with a conditional update, so a
// message is returned to at most one concurrent caller.
func (s *Store) ClaimDue(ctx context.Context, now time.Time, limit int) ([]model.Message, error) {
	if limit <= 0 {
		return nil, errors.New("limit must be > 0")
	}

	var candidates []messageRow
	err := s.db.WithContext(ctx).
		Where("status = ? AND scheduled_at IS NOT NULL AND scheduled_at <= ?", string(model.Scheduled), now.UTC()).
		Order("scheduled_at ASC").
		Limit(limit).
		Find(&candidates).Error
	if err != nil {
		return nil, fmt.Errorf("load due messages: %w", err)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	claimedAt := time.Now().UTC()
	var msgs []model.Message
	for _, row := range candidates {
		res := s.db.WithContext(ctx).Model(&messageRow{}).
			Where("id = ? AND status = ?", row.ID, string(model.Scheduled)).
			Updates(map[string]any{
				"status":     string(model.InProgress),
				"updated_at": claimedAt,
			})
		if res.Error != nil {
			return msgs, fmt.Errorf("claim message %s: %w", row.ID, res.Error)
		}
		if res.RowsAffected != 1 {
			continue
		}
		m := row.toModel()
		m.Status = model.InProgress
		m.UpdatedAt = claimedAt
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// Requeue hands claimed messages that were never attempted back to the next
// run.
func (s *Store) Requeue(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := s.db.WithContext(ctx).Model(&messageRow{}).
		Where("id IN ? AND status = ?", ids, string(model.InProgress)).
		Updates(map[string]any{
			"status":     string(model.Scheduled),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return 0, fmt.Errorf("requeue messages: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// RequeueStale moves in_progress messages whose claim is older than before
// back to scheduled. Such claims belong to runs that died mid batch.
func (s *Store) RequeueStale(ctx context.Context, before time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Model(&messageRow{}).
		Where("status = ? AND updated_at < ?", string(model.InProgress), before.UTC()).
		Updates(map[string]any{
			"status":     string(model.Scheduled),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return 0, fmt.Errorf("requeue stale messages: %w", res.Error)
	}
	return res.RowsAffected, nil
}

var unsentStatuses = []string{string(model.Scheduled), string(model.InProgress)}

func (s *Store) MarkSent(ctx context.Context, id, providerMessageID, contactID string, sentAt time.Time) error {
	updates := map[string]any{
		"status":     string(model.Sent),
		"sent_at":    sentAt.UTC(),
		"contact_id": contactID,
		"error":      "",
		"updated_at": time.Now().UTC(),
	}
	if providerMessageID != "" {
		updates["provider_message_id"] = providerMessageID
	}
	return s.updateUnsent(ctx, id, updates)
}

func (s *Store) MarkFailed(ctx context.Context, id, reason string) error {
	return s.updateUnsent(ctx, id, map[string]any{
		"status":     string(model.Failed),
		"error":      reason,
		"updated_at": time.Now().UTC(),
	})
}

func (s *Store) updateUnsent(ctx context.Context, id string, updates map[string]any) error {
	res := s.db.WithContext(ctx).Model(&messageRow{}).
		Where("id = ? AND status IN ?", id, unsentStatuses).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("update message %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := s.GetMessage(ctx, id); err != nil {
			return err
		}
		return ErrStaleStatus
	}
	return nil
}

// UpdateStatus applies a provider status callback. The returned bool is false
// when the transition would move the message backwards and nothing changed.
func (s *Store) UpdateStatus(ctx context.Context, id string, next model.Status, at time.Time) (model.Message, bool, error) {
	current, err := s.GetMessage(ctx, id)
	if err != nil {
		return model.Message{}, false, err
	}
	if !current.Status.CanTransitionTo(next) {
		return current, false, nil
	}

	at = at.UTC()
	updates := map[string]any{
		"status":     string(next),
		"updated_at": time.Now().UTC(),
	}
	switch next {
	case model.Sent:
		updates["sent_at"] = at
		current.SentAt = &at
	case model.Delivered:
		updates["delivered_at"] = at
		current.DeliveredAt = &at
	case model.Read:
		updates["read_at"] = at
		current.ReadAt = &at
		if current.DeliveredAt == nil {
			updates["delivered_at"] = at
			current.DeliveredAt = &at
		}
	}

	res := s.db.WithContext(ctx).Model(&messageRow{}).
		Where("id = ? AND status = ?", id, string(current.Status)).
		Updates(updates)
	if res.Error != nil {
		return model.Message{}, false, fmt.Errorf("update message status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return current, false, ErrStaleStatus
	}
	current.Status = next
	return current, true, nil
}

func (s *Store) ListSent(ctx context.Context, limit, offset int) ([]model.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var rows []messageRow
	err := s.db.WithContext(ctx).
		Where("status IN ?", []string{string(model.Sent), string(model.Delivered), string(model.Read)}).
		Order("sent_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list sent messages: %w", err)
	}
	out := make([]model.Message, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toModel())
	}
	return out, nil
}
