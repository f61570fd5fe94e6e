package repo

import (
	"fmt"
	"strings"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-stored-messages/internal/domain"
)

// newTestDB opens an in-memory database private to t, migrating models if
// any are given.
func newTestDB(t *testing.T, models ...any) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:repo_%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := db.AutoMigrate(models...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// newStoreDB opens a database with the full messaging schema.
func newStoreDB(t *testing.T, withData bool) *gorm.DB {
	t.Helper()
	db := newTestDB(t)
	if err := AutoMigrate(db, withData); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	return db
}

func seedMessage(t *testing.T, db *gorm.DB, id string) *domain.Message {
	t.Helper()
	m := &domain.Message{ID: id, Message: "msg " + id, Level: domain.LevelInfo}
	if err := db.Omit("Data").Create(m).Error; err != nil {
		t.Fatalf("seed message %s: %v", id, err)
	}
	return m
}
