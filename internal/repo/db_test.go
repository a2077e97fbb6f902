package repo

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	sqliteDriver "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func TestLoggerSkipsRecordNotFound(t *testing.T) {
	var buf bytes.Buffer
	db, err := gorm.Open(sqliteDriver.Open(filepath.Join(t.TempDir(), "log.db")), &gorm.Config{Logger: newLogger(&buf)})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	store := NewStoreFromDB(db)
	t.Cleanup(func() { _ = store.Close() })
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	buf.Reset()

	ctx := context.Background()
	if _, err := store.GetSession(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := store.GetTemplate(ctx, "missing", "en_US"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("expected no log output for misses, got %q", buf.String())
	}

	if err := db.Exec("SELECT * FROM no_such_table").Error; err == nil {
		t.Fatalf("expected error from missing table")
	}
	if !strings.Contains(buf.String(), "no_such_table") {
		t.Fatalf("expected query errors to be logged, got %q", buf.String())
	}
}
