package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-stored-messages/internal/domain"
	"github.com/tbourn/go-stored-messages/internal/repo"
)

func newStore(t *testing.T, withData bool) (*MessageStore, *gorm.DB) {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := repo.AutoMigrate(db, withData); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	return NewMessageStore(db, 0), db
}

func count(t *testing.T, db *gorm.DB, model any, where ...any) int64 {
	t.Helper()
	var n int64
	q := db.Model(model)
	if len(where) > 0 {
		q = q.Where(where[0], where[1:]...)
	}
	if err := q.Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func TestAddMessageFor_FansOut(t *testing.T) {
	s, db := newStore(t, true)
	ctx := context.Background()

	before := testutil.ToFloat64(inboxDelivered)
	m, err := s.AddMessageFor(ctx, []string{"u1", "u2", "u3"}, domain.LevelInfo, "hello", "", nil)
	if err != nil {
		t.Fatalf("AddMessageFor: %v", err)
	}
	if m.ID == "" || m.Message != "hello" || m.Level != domain.LevelInfo {
		t.Fatalf("unexpected message: %+v", m)
	}

	if got := count(t, db, &domain.MessageCore{}); got != 1 {
		t.Fatalf("messages = %d, want 1", got)
	}
	if got := count(t, db, &domain.MessageArchive{}, "message_id = ?", m.ID); got != 3 {
		t.Fatalf("archive rows = %d, want 3", got)
	}
	if got := count(t, db, &domain.Inbox{}, "message_id = ?", m.ID); got != 3 {
		t.Fatalf("inbox rows = %d, want 3", got)
	}
	if d := testutil.ToFloat64(inboxDelivered) - before; d != 3 {
		t.Fatalf("inbox metric delta = %v, want 3", d)
	}
}

func TestAddMessageFor_DedupesAndSkipsBlank(t *testing.T) {
	s, db := newStore(t, true)
	m, err := s.AddMessageFor(context.Background(), []string{"u1", " ", "u1", "u2", ""}, domain.LevelWarning, "x", "", nil)
	if err != nil {
		t.Fatalf("AddMessageFor: %v", err)
	}
	if got := count(t, db, &domain.Inbox{}, "message_id = ?", m.ID); got != 2 {
		t.Fatalf("inbox rows = %d, want 2", got)
	}
}

func TestAddMessageFor_NoRecipients_StillStores(t *testing.T) {
	s, db := newStore(t, true)
	m, err := s.AddMessageFor(context.Background(), nil, domain.LevelInfo, "lonely", "", nil)
	if err != nil {
		t.Fatalf("AddMessageFor: %v", err)
	}
	if got := count(t, db, &domain.MessageCore{}, "id = ?", m.ID); got != 1 {
		t.Fatalf("message rows = %d, want 1", got)
	}
	if got := count(t, db, &domain.Inbox{}); got != 0 {
		t.Fatalf("inbox rows = %d, want 0", got)
	}
}

func TestAddMessageFor_RecipientCap(t *testing.T) {
	s, _ := newStore(t, true)
	ctx := context.Background()

	s.MaxRecipients = 2
	if _, err := s.AddMessageFor(ctx, []string{"a", "b", "c"}, domain.LevelInfo, "hi", "", nil); !errors.Is(err, ErrTooManyRecipients) {
		t.Fatalf("cap: got %v", err)
	}
	// duplicates do not count against the cap
	if _, err := s.AddMessageFor(ctx, []string{"a", "b", "a"}, domain.LevelInfo, "hi", "", nil); err != nil {
		t.Fatalf("cap with dupes: %v", err)
	}
}

func TestAddMessageFor_StoresInputVerbatim(t *testing.T) {
	s, _ := newStore(t, true)
	m, err := s.AddMessageFor(context.Background(), []string{"u"}, 0, "  cafe\u0301 ", " urgent\t billing  ", nil)
	if err != nil {
		t.Fatalf("AddMessageFor: %v", err)
	}
	got, err := s.GetMessage(context.Background(), m.ID)
	if err != nil {
		t.Fatalf("GetMessage: %v", err)
	}
	if got.Message != "  cafe\u0301 " || got.Tags != " urgent\t billing  " || got.Level != 0 {
		t.Fatalf("stored %+v", got)
	}
}

func TestAddMessageFor_PayloadWhenColumnPresent(t *testing.T) {
	s, _ := newStore(t, true)
	ctx := context.Background()

	m, err := s.AddMessageFor(ctx, []string{"u"}, domain.LevelInfo, "hi", "", map[string]any{"order": float64(7)})
	if err != nil {
		t.Fatalf("AddMessageFor: %v", err)
	}
	got, err := s.GetMessage(ctx, m.ID)
	if err != nil {
		t.Fatalf("GetMessage: %v", err)
	}
	var data map[string]any
	if err := json.Unmarshal(got.Data, &data); err != nil {
		t.Fatalf("unmarshal data: %v", err)
	}
	if data["order"] != float64(7) {
		t.Fatalf("data = %v", data)
	}
}

func TestAddMessageFor_PayloadDroppedWithoutColumn(t *testing.T) {
	s, _ := newStore(t, false)
	ctx := context.Background()

	if s.HasData(ctx) {
		t.Fatal("HasData = true on payload-less schema")
	}
	m, err := s.AddMessageFor(ctx, []string{"u"}, domain.LevelInfo, "hi", "", map[string]any{"k": "v"})
	if err != nil {
		t.Fatalf("AddMessageFor: %v", err)
	}
	got, err := s.GetMessage(ctx, m.ID)
	if err != nil {
		t.Fatalf("GetMessage: %v", err)
	}
	if len(got.Data) != 0 {
		t.Fatalf("expected no data, got %s", got.Data)
	}
}

func TestHasData_CancelledRequestDoesNotStick(t *testing.T) {
	s, _ := newStore(t, true)
	cctx, cancel := context.WithCancel(context.Background())
	cancel()
	if !s.HasData(cctx) {
		t.Fatal("HasData = false for a cancelled caller on a payload schema")
	}

	ctx := context.Background()
	m, err := s.AddMessageFor(ctx, []string{"u"}, domain.LevelInfo, "hi", "", map[string]any{"k": "v"})
	if err != nil {
		t.Fatalf("AddMessageFor: %v", err)
	}
	got, err := s.GetMessage(ctx, m.ID)
	if err != nil {
		t.Fatalf("GetMessage: %v", err)
	}
	if string(got.Data) != `{"k":"v"}` {
		t.Fatalf("data = %q", got.Data)
	}
}

func TestHasData_FailedLookupIsRetried(t *testing.T) {
	name := strings.ReplaceAll(t.Name(), "/", "_")
	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	s := NewMessageStore(db, 0)
	ctx := context.Background()

	// no schema yet: the lookup fails, nothing is cached, and sends fail
	if s.HasData(ctx) {
		t.Fatal("HasData = true before migration")
	}
	if _, err := s.AddMessageFor(ctx, []string{"u"}, domain.LevelInfo, "hi", "", nil); err == nil {
		t.Fatal("expected send to fail without schema")
	}

	if err := repo.AutoMigrate(db, true); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	if !s.HasData(ctx) {
		t.Fatal("HasData = false after migrating the payload column")
	}
	m, err := s.AddMessageFor(ctx, []string{"u"}, domain.LevelInfo, "hi", "", map[string]any{"n": float64(1)})
	if err != nil {
		t.Fatalf("AddMessageFor: %v", err)
	}
	if len(m.Data) == 0 {
		t.Fatal("payload dropped although schema has data column")
	}
}

func TestAddMessageFor_RollsBackOnFailure(t *testing.T) {
	s, db := newStore(t, true)
	// Dropping the inbox table makes the fan-out fail after the message and
	// the first archive row are written.
	if err := db.Migrator().DropTable(&domain.Inbox{}); err != nil {
		t.Fatalf("drop inbox: %v", err)
	}
	if _, err := s.AddMessageFor(context.Background(), []string{"u1"}, domain.LevelInfo, "hi", "", nil); err == nil {
		t.Fatal("expected error")
	}
	if got := count(t, db, &domain.MessageCore{}); got != 0 {
		t.Fatalf("messages = %d after rollback, want 0", got)
	}
	if got := count(t, db, &domain.MessageArchive{}); got != 0 {
		t.Fatalf("archive = %d after rollback, want 0", got)
	}
}

func TestBroadcastMessage_NotImplemented(t *testing.T) {
	s, _ := newStore(t, true)
	for _, lvl := range []int{0, domain.LevelInfo, domain.LevelError} {
		if err := s.BroadcastMessage(context.Background(), lvl, "hi", ""); !errors.Is(err, ErrNotImplemented) {
			t.Fatalf("level %d: got %v", lvl, err)
		}
	}
}

func TestMarkRead(t *testing.T) {
	s, db := newStore(t, true)
	ctx := context.Background()

	m, err := s.AddMessageFor(ctx, []string{"u1", "u2"}, domain.LevelInfo, "hi", "", nil)
	if err != nil {
		t.Fatalf("AddMessageFor: %v", err)
	}

	ok, err := s.MarkRead(ctx, "u1", m.ID)
	if err != nil || !ok {
		t.Fatalf("first MarkRead = %v, %v; want true", ok, err)
	}
	ok, err = s.MarkRead(ctx, "u1", m.ID)
	if err != nil || ok {
		t.Fatalf("second MarkRead = %v, %v; want false", ok, err)
	}
	ok, err = s.MarkRead(ctx, "stranger", m.ID)
	if err != nil || ok {
		t.Fatalf("non-recipient MarkRead = %v, %v; want false", ok, err)
	}

	// u2 still unread, archive intact for both
	if n, _ := s.UnreadCount(ctx, "u2"); n != 1 {
		t.Fatalf("u2 unread = %d, want 1", n)
	}
	if got := count(t, db, &domain.MessageArchive{}, "message_id = ?", m.ID); got != 2 {
		t.Fatalf("archive rows = %d, want 2", got)
	}
}

func TestMarkAllRead_OnlyOwner(t *testing.T) {
	s, _ := newStore(t, true)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := s.AddMessageFor(ctx, []string{"u1", "u2"}, domain.LevelInfo, fmt.Sprintf("m%d", i), "", nil); err != nil {
			t.Fatalf("AddMessageFor: %v", err)
		}
	}

	n, err := s.MarkAllRead(ctx, "u1")
	if err != nil {
		t.Fatalf("MarkAllRead: %v", err)
	}
	if n != 3 {
		t.Fatalf("marked = %d, want 3", n)
	}
	if c, _ := s.UnreadCount(ctx, "u1"); c != 0 {
		t.Fatalf("u1 unread = %d, want 0", c)
	}
	if c, _ := s.UnreadCount(ctx, "u2"); c != 3 {
		t.Fatalf("u2 unread = %d, want 3", c)
	}

	n, err = s.MarkAllRead(ctx, "u1")
	if err != nil || n != 0 {
		t.Fatalf("second MarkAllRead = %d, %v; want 0", n, err)
	}
}

func TestGetMessage_NotFound(t *testing.T) {
	s, _ := newStore(t, true)
	if _, err := s.GetMessage(context.Background(), "missing"); !errors.Is(err, ErrMessageNotFound) {
		t.Fatalf("got %v, want ErrMessageNotFound", err)
	}
}

func TestListInboxAndArchive_Paging(t *testing.T) {
	s, _ := newStore(t, false)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 5; i++ {
		m, err := s.AddMessageFor(ctx, []string{"u"}, domain.LevelInfo, fmt.Sprintf("m%d", i), "", nil)
		if err != nil {
			t.Fatalf("AddMessageFor: %v", err)
		}
		ids = append(ids, m.ID)
	}
	if _, err := s.MarkRead(ctx, "u", ids[0]); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}

	inbox, total, err := s.ListInbox(ctx, "u", 1, 2)
	if err != nil {
		t.Fatalf("ListInbox: %v", err)
	}
	if total != 4 || len(inbox) != 2 {
		t.Fatalf("inbox total=%d len=%d, want 4/2", total, len(inbox))
	}
	if inbox[0].Message.Message == "" {
		t.Fatal("inbox message not preloaded")
	}

	archive, total, err := s.ListArchive(ctx, "u", 3, 2)
	if err != nil {
		t.Fatalf("ListArchive: %v", err)
	}
	if total != 5 || len(archive) != 1 {
		t.Fatalf("archive total=%d len=%d, want 5/1", total, len(archive))
	}

	empty, total, err := s.ListInbox(ctx, "nobody", 0, 0)
	if err != nil || total != 0 || empty == nil || len(empty) != 0 {
		t.Fatalf("empty inbox = %v, %d, %v", empty, total, err)
	}
}

func TestUniqueRecipients(t *testing.T) {
	got := uniqueRecipients([]string{"b", " a ", "b", "", "c", "a"})
	want := []string{"b", "a", "c"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("got %v, want %v", got, want)
	}
}
