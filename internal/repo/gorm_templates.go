package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/rushabhsmehta/tour-messaging/internal/model"
)

// GetTemplate looks a template up by name and language. When language is
// empty, or no exact match exists, the most recently updated template with
// that name is returned.
func (s *Store) GetTemplate(ctx context.Context, name, language string) (model.Template, error) {
	var row templateRow
	db := s.db.WithContext(ctx)
	if language != "" {
		err := db.Where("name = ? AND language = ?", name, language).Take(&row).Error
		if err == nil {
			return row.toModel(), nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return model.Template{}, fmt.Errorf("get template: %w", err)
		}
	}
	err := db.Where("name = ?", name).Order("updated_at DESC").Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.Template{}, ErrNotFound
		}
		return model.Template{}, fmt.Errorf("get template: %w", err)
	}
	return row.toModel(), nil
}

// UpsertTemplate inserts or refreshes a template keyed by name and language.
// Learned flow defaults are kept when t carries none.
func (s *Store) UpsertTemplate(ctx context.Context, t *model.Template) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.UpdatedAt = time.Now().UTC()
	row := templateRowFromModel(t)

	columns := []string{"category", "status", "body", "components_json", "variables_json", "synced_at", "updated_at"}
	if row.FlowDefaultsJSON != "" {
		columns = append(columns, "flow_defaults_json")
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}, {Name: "language"}},
		DoUpdates: clause.AssignmentColumns(columns),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("upsert template: %w", err)
	}
	return nil
}

// SaveFlowDefaults replaces the learned FLOW button defaults of a template,
// creating a bare template record when none exists yet.
func (s *Store) SaveFlowDefaults(ctx context.Context, name, language string, defaults []model.FlowDefault) error {
	now := time.Now().UTC()
	row := templateRow{
		ID:               uuid.NewString(),
		Name:             name,
		Language:         language,
		FlowDefaultsJSON: marshalJSON(defaults),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}, {Name: "language"}},
		DoUpdates: clause.AssignmentColumns([]string{"flow_defaults_json", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("save flow defaults: %w", err)
	}
	return nil
}
