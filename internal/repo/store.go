package repo

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// Store is the gorm backed persistence for every entity of the service.
type Store struct {
	db *gorm.DB
}

var (
	_ MessageRepository    = (*Store)(nil)
	_ SessionRepository    = (*Store)(nil)
	_ AutomationRepository = (*Store)(nil)
	_ AnalyticsRepository  = (*Store)(nil)
	_ TemplateRepository   = (*Store)(nil)
)

func NewStore(driver, dsn string) (*Store, error) {
	gormDB, err := OpenGorm(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open gorm store: %w", err)
	}
	store := &Store{db: gormDB}
	if err := store.Migrate(); err != nil {
		return nil, err
	}
	return store, nil
}

func NewStoreFromDB(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Migrate() error {
	if err := s.db.AutoMigrate(&messageRow{}, &sessionRow{}, &automationRow{}, &analyticsRow{}, &templateRow{}); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	// one live conversation per phone number
	if err := s.db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_active_phone
		ON sessions (phone_number) WHERE archived = false AND phone_number IS NOT NULL`).Error; err != nil {
		return fmt.Errorf("create active session index: %w", err)
	}
	return nil
}

// Transaction runs fn against a Store bound to a single database transaction.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	return sqlDB.Close()
}
