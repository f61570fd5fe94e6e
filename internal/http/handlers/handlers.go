// Package handlers provides HTTP handler implementations for the public API.
//
// This file holds the service contract the handlers depend on, handler wiring,
// and helpers shared by the message, inbox, and archive endpoints.
package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/tbourn/go-stored-messages/internal/domain"
	"github.com/tbourn/go-stored-messages/internal/http/middleware"
	"github.com/tbourn/go-stored-messages/internal/utils"
)

//
// Service contracts (context-aware)
//

// MessageStore defines message delivery and read-state operations consumed
// by HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type MessageStore interface {
	// AddMessageFor stores a message once and delivers it to every user.
	AddMessageFor(ctx context.Context, users []string, level int, text, tags string, data map[string]any) (*domain.Message, error)
	// BroadcastMessage delivers a message to every user; always fails.
	BroadcastMessage(ctx context.Context, level int, text, tags string) error
	// GetMessage fetches a stored message by ID.
	GetMessage(ctx context.Context, id string) (*domain.Message, error)
	// MarkRead removes one unread marker and reports whether one existed.
	MarkRead(ctx context.Context, userID, messageID string) (bool, error)
	// MarkAllRead removes all of a user's unread markers.
	MarkAllRead(ctx context.Context, userID string) (int64, error)
	// UnreadCount returns how many unread markers a user holds.
	UnreadCount(ctx context.Context, userID string) (int64, error)
	// ListInbox returns a page of unread messages and the total count.
	ListInbox(ctx context.Context, userID string, page, pageSize int) ([]domain.Inbox, int64, error)
	// ListArchive returns a page of delivered messages and the total count.
	ListArchive(ctx context.Context, userID string, page, pageSize int) ([]domain.MessageArchive, int64, error)
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for messages, inboxes, and archives.
// Message operations go through the MessageStore interface; db backs the
// list ETags and Idempotency-Key records and may be nil, which turns both off.
type Handlers struct {
	store   MessageStore
	db      *gorm.DB
	idemTTL time.Duration
}

// New constructs a Handlers instance bound to store and db. idemTTL controls
// how long a recorded Idempotency-Key result is replayed; values <= 0 mean 24h.
func New(store MessageStore, db *gorm.DB, idemTTL time.Duration) *Handlers {
	if idemTTL <= 0 {
		idemTTL = 24 * time.Hour
	}
	return &Handlers{store: store, db: db, idemTTL: idemTTL}
}

// requireUser returns the caller for per-user endpoints. An anonymous
// caller gets 401 and false.
func requireUser(c *gin.Context) (string, bool) {
	uid := middleware.UserID(c)
	if uid == "" {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "X-User-ID header required")
		return "", false
	}
	return uid, true
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

func newPagination(p utils.Page, total int64) Pagination {
	return Pagination{
		Page:       p.Number,
		PageSize:   p.Size,
		Total:      total,
		TotalPages: p.TotalPages(total),
		HasNext:    p.HasNext(total),
	}
}

func pageQuery(c *gin.Context) utils.Page {
	return utils.ParsePage(c.Query("page"), c.Query("page_size"))
}

// statsFunc matches repo.InboxStats and repo.ArchiveStats.
type statsFunc func(ctx context.Context, db *gorm.DB, userID string) (int64, *time.Time, error)

// checkETag sets a weak ETag derived from (kind, user, count, newest) and
// reports true when the request's If-None-Match matched and a 304 was written.
// It is best effort: any stats error simply skips the header.
func (h *Handlers) checkETag(c *gin.Context, kind, uid string, p utils.Page, stats statsFunc) bool {
	if h.db == nil {
		return false
	}
	count, maxTS, err := stats(c.Request.Context(), h.db, uid)
	if err != nil {
		return false
	}
	var ts int64
	if maxTS != nil {
		ts = maxTS.UnixNano()
	}
	etag := fmt.Sprintf(`W/"%s:%s:%d:%d:%d:%d"`, kind, uid, count, ts, p.Number, p.Size)
	c.Header("ETag", etag)
	if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
		c.Status(http.StatusNotModified)
		return true
	}
	return false
}
