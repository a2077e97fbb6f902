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

// CreateSession inserts a new session. Inserting a second live session for
// the same phone number violates idx_sessions_active_phone and fails.
func (s *Store) CreateSession(ctx context.Context, sess *model.Session) error {
	now := time.Now().UTC()
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = now
	}
	sess.UpdatedAt = now

	row := sessionRowFromModel(sess)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *Store) SaveSession(ctx context.Context, sess *model.Session) error {
	sess.UpdatedAt = time.Now().UTC()
	row := sessionRowFromModel(sess)
	res := s.db.WithContext(ctx).Model(&sessionRow{}).Where("id = ?", sess.ID).Updates(map[string]any{
		"phone_number":     row.PhoneNumber,
		"contact_id":       row.ContactID,
		"flow_token":       row.FlowToken,
		"context_json":     row.ContextJSON,
		"last_interaction": row.LastInteraction,
		"archived":         row.Archived,
		"expires_at":       row.ExpiresAt,
		"updated_at":       row.UpdatedAt,
	})
	if res.Error != nil {
		return fmt.Errorf("update session: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, id string) (model.Session, error) {
	return s.takeSession(ctx, s.db.WithContext(ctx).Where("id = ?", id))
}

// FindSessionByFlowToken returns the live session whose current token or
// token history contains token.
func (s *Store) FindSessionByFlowToken(ctx context.Context, token string) (model.Session, error) {
	if token == "" {
		return model.Session{}, ErrNotFound
	}
	var rows []sessionRow
	err := s.db.WithContext(ctx).
		Where("archived = ? AND (flow_token = ? OR context_json LIKE ?)", false, token, "%\""+token+"\"%").
		Order("updated_at DESC").
		Limit(10).
		Find(&rows).Error
	if err != nil {
		return model.Session{}, fmt.Errorf("find session by flow token: %w", err)
	}
	for _, row := range rows {
		sess := row.toModel()
		if sess.FlowToken == token || containsString(sess.Context.FlowTokens, token) {
			return sess, nil
		}
	}
	return model.Session{}, ErrNotFound
}

func (s *Store) FindActiveSessionByContact(ctx context.Context, contactID string) (model.Session, error) {
	if contactID == "" {
		return model.Session{}, ErrNotFound
	}
	return s.takeSession(ctx, s.db.WithContext(ctx).
		Where("contact_id = ? AND archived = ?", contactID, false).
		Order("updated_at DESC"))
}

func (s *Store) FindActiveSessionByPhone(ctx context.Context, phone string) (model.Session, error) {
	if phone == "" {
		return model.Session{}, ErrNotFound
	}
	return s.takeSession(ctx, s.db.WithContext(ctx).
		Where("phone_number = ? AND archived = ?", phone, false).
		Order("updated_at DESC"))
}

func (s *Store) ArchiveSession(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Model(&sessionRow{}).Where("id = ?", id).Updates(map[string]any{
		"archived":   true,
		"updated_at": time.Now().UTC(),
	})
	if res.Error != nil {
		return fmt.Errorf("archive session: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CountActiveSessions reports how many live sessions exist for phone.
func (s *Store) CountActiveSessions(ctx context.Context, phone string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&sessionRow{}).
		Where("phone_number = ? AND archived = ?", phone, false).
		Count(&n).Error
	return n, err
}

func (s *Store) takeSession(ctx context.Context, q *gorm.DB) (model.Session, error) {
	var row sessionRow
	if err := q.Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.Session{}, ErrNotFound
		}
		return model.Session{}, fmt.Errorf("get session: %w", err)
	}
	return row.toModel(), nil
}

func containsString(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}
