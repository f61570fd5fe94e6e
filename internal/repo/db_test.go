package repo

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel/trace/noop"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"

	"github.com/tbourn/go-stored-messages/internal/domain"
)

func TestOpenSQLite_ErrorOnBadPath(t *testing.T) {
	base := t.TempDir()
	bad := filepath.Join(base, "does-not-exist", "app.db")

	db, err := OpenSQLite(bad)
	if err == nil || db != nil {
		t.Fatalf("expected error opening %q, got db=%v err=%v", bad, db, err)
	}

	// Be tolerant across platforms/drivers:
	// - Windows: *os.PathError ("CreateFile ... cannot find the file specified")
	// - SQLite:  "unable to open database file" / "out of memory (14)"
	// - Unix:    "no such file or directory"
	lower := strings.ToLower(err.Error())
	if !(os.IsNotExist(err) ||
		strings.Contains(lower, "unable to open database file") ||
		strings.Contains(lower, "no such file or directory") ||
		strings.Contains(lower, "out of memory")) {
		t.Fatalf("unexpected error opening %q: %v", bad, err)
	}
}

func TestOpenSQLite_SetsPragmas_Pool_AndAutoMigrate(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "app.db")

	db, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB(): %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	// --- Verify PRAGMAs set by OpenSQLite ---
	var (
		journalMode string
		syncVal     int
		fkOn        int
		busyMS      int
	)

	if err := db.Raw("PRAGMA journal_mode;").Row().Scan(&journalMode); err != nil {
		t.Fatalf("PRAGMA journal_mode: %v", err)
	}
	if strings.ToLower(journalMode) != "wal" {
		t.Fatalf("expected journal_mode=wal, got %q", journalMode)
	}

	if err := db.Raw("PRAGMA synchronous;").Row().Scan(&syncVal); err != nil {
		t.Fatalf("PRAGMA synchronous: %v", err)
	}
	// NORMAL == 1
	if syncVal != 1 {
		t.Fatalf("expected synchronous=1 (NORMAL), got %d", syncVal)
	}

	if err := db.Raw("PRAGMA foreign_keys;").Row().Scan(&fkOn); err != nil {
		t.Fatalf("PRAGMA foreign_keys: %v", err)
	}
	if fkOn != 1 {
		t.Fatalf("expected foreign_keys=1, got %d", fkOn)
	}

	if err := db.Raw("PRAGMA busy_timeout;").Row().Scan(&busyMS); err != nil {
		t.Fatalf("PRAGMA busy_timeout: %v", err)
	}
	if busyMS != 5000 {
		t.Fatalf("expected busy_timeout=5000, got %d", busyMS)
	}

	// --- Verify pool tuning applied ---
	if stats := sqlDB.Stats(); stats.MaxOpenConnections != 10 {
		t.Fatalf("expected MaxOpenConnections=10, got %d", stats.MaxOpenConnections)
	}

	// --- AutoMigrate should create all tables ---
	if err := AutoMigrate(db, true); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	m := db.Migrator()
	for _, tbl := range []any{&domain.Message{}, &domain.MessageArchive{}, &domain.Inbox{}, &domain.Idempotency{}} {
		if !m.HasTable(tbl) {
			t.Fatalf("expected table for %T to exist", tbl)
		}
	}
	if ok, err := HasMessageData(context.Background(), db); err != nil || !ok {
		t.Fatalf("expected data column after AutoMigrate(db, true)")
	}

	// Quick insert round-trip to prove schema is usable.
	now := time.Now().UTC()
	msg := &domain.Message{ID: "m1", Message: "hi", Level: domain.LevelInfo, CreatedAt: now}
	if err := db.Create(msg).Error; err != nil {
		t.Fatalf("insert message: %v", err)
	}
	if err := db.Omit("Message").Create(&domain.Inbox{ID: "i1", UserID: "u1", MessageID: "m1", CreatedAt: now}).Error; err != nil {
		t.Fatalf("insert inbox: %v", err)
	}
	// foreign_keys=ON: an inbox row must point at an existing message
	if err := db.Omit("Message").Create(&domain.Inbox{ID: "i2", UserID: "u1", MessageID: "missing", CreatedAt: now}).Error; err == nil {
		t.Fatalf("expected foreign key violation for unknown message")
	}
}

func TestAutoMigrate_WithoutData_OmitsColumn(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "core.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	sqlDB, _ := db.DB()
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := AutoMigrate(db, false); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	if ok, err := HasMessageData(context.Background(), db); err != nil || ok {
		t.Fatalf("data column should be absent")
	}
	if !db.Migrator().HasTable(&domain.Inbox{}) || !db.Migrator().HasTable(&domain.MessageArchive{}) {
		t.Fatalf("inbox/archive tables should exist")
	}
}

func TestOpen_Dispatch(t *testing.T) {
	if _, err := Open("oracle", "x"); err == nil {
		t.Fatalf("expected error for unsupported driver")
	}
	db, err := Open("sqlite", filepath.Join(t.TempDir(), "d.db"))
	if err != nil {
		t.Fatalf("Open sqlite: %v", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func TestEnableTracing_RegistersPlugin(t *testing.T) {
	db := newTestDB(t)
	if err := EnableTracing(db, noop.NewTracerProvider()); err != nil {
		t.Fatalf("EnableTracing: %v", err)
	}
	if len(db.Config.Plugins) != 1 {
		t.Fatalf("expected one tracing plugin to be registered, have %v", db.Config.Plugins)
	}
	if err := EnableTracing(db, noop.NewTracerProvider()); err == nil {
		t.Fatal("second registration should fail")
	}
}

// Compile-time guard to ensure signature stability.
var _ func(string) (*gorm.DB, error) = OpenSQLite

// The Postgres dialector is opened without a server; only DDL types are
// inspected.
func TestPostgresSchema_UsesNativeColumnTypes(t *testing.T) {
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN: "host=127.0.0.1 user=app dbname=messages sslmode=disable",
	}), &gorm.Config{DisableAutomaticPing: true})
	if err != nil {
		t.Fatalf("open postgres dialector: %v", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		t.Cleanup(func() { _ = sqlDB.Close() })
	}

	typer, ok := db.Migrator().(interface {
		FullDataTypeOf(*schema.Field) clause.Expr
	})
	if !ok {
		t.Fatalf("postgres migrator does not expose FullDataTypeOf")
	}

	want := map[string]string{
		"stored_messages.data":   "JSONB",
		"idempotency.created_at": "timestamptz",
		"idempotency.expires_at": "timestamptz",
		"idempotency.status":     "bigint",
	}
	for _, model := range []any{&domain.Message{}, &domain.MessageArchive{}, &domain.Inbox{}, &domain.Idempotency{}} {
		stmt := &gorm.Statement{DB: db}
		if err := stmt.Parse(model); err != nil {
			t.Fatalf("parse %T: %v", model, err)
		}
		for _, f := range stmt.Schema.Fields {
			if f.DBName == "" {
				continue
			}
			ddl := typer.FullDataTypeOf(f).SQL
			col := stmt.Schema.Table + "." + f.DBName
			if strings.Contains(strings.ToUpper(ddl), "DATETIME") {
				t.Errorf("%s uses %q, which postgres rejects", col, ddl)
			}
			if w, ok := want[col]; ok && !strings.HasPrefix(ddl, w) {
				t.Errorf("%s = %q, want prefix %q", col, ddl, w)
			}
		}
	}
}
