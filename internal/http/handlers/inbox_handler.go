// Inbox and archive HTTP handlers.
//
// This file exposes the per-user read side:
//   - GET  /inbox             (unread messages, paginated, ETag support)
//   - GET  /inbox/count       (unread count)
//   - POST /inbox/{id}/read   (mark one message read)
//   - POST /inbox/read-all    (mark every message read)
//   - GET  /archive           (delivered messages, paginated, ETag support)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-stored-messages/internal/domain"
	"github.com/tbourn/go-stored-messages/internal/repo"
)

// ListInboxResponse wraps a page of unread entries.
type ListInboxResponse struct {
	Items      []domain.Inbox `json:"items"`
	Pagination Pagination     `json:"pagination"`
}

// ListArchiveResponse wraps a page of archive entries.
type ListArchiveResponse struct {
	Items      []domain.MessageArchive `json:"items"`
	Pagination Pagination              `json:"pagination"`
}

// UnreadCountResponse is returned by GET /inbox/count.
type UnreadCountResponse struct {
	Unread int64 `json:"unread" example:"3"`
}

// MarkReadResponse is returned by POST /inbox/{id}/read.
type MarkReadResponse struct {
	// Marked is false when the message was already read or never delivered.
	Marked bool `json:"marked" example:"true"`
}

// MarkAllReadResponse is returned by POST /inbox/read-all.
type MarkAllReadResponse struct {
	Marked int64 `json:"marked" example:"5"`
}

// ListInbox godoc
// @ID          listInbox
// @Summary     List unread messages (paginated)
// @Description Returns a page of the user's unread messages, newest first. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Inbox
// @Produce     json
//
// @Param       X-User-ID      header  string  true  "User ID"                     example(alice)
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
// @Param       page           query   int     false "Page number"                 minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"              minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListInboxResponse
// @Header      200  {string} ETag  "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     401  {object} handlers.ErrorResponse "Missing X-User-ID"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /inbox [get]
func (h *Handlers) ListInbox(c *gin.Context) {
	uid, authed := requireUser(c)
	if !authed {
		return
	}
	p := pageQuery(c)

	if h.checkETag(c, "inbox", uid, p, repo.InboxStats) {
		return
	}

	items, total, err := h.store.ListInbox(c.Request.Context(), uid, p.Number, p.Size)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, ListInboxResponse{Items: items, Pagination: newPagination(p, total)})
}

// UnreadCount godoc
// @ID          unreadCount
// @Summary     Count unread messages
// @Tags        Inbox
// @Produce     json
//
// @Param       X-User-ID  header  string  true  "User ID"  example(alice)
//
// @Success     200  {object} handlers.UnreadCountResponse
// @Failure     401  {object} handlers.ErrorResponse "Missing X-User-ID"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /inbox/count [get]
func (h *Handlers) UnreadCount(c *gin.Context) {
	uid, authed := requireUser(c)
	if !authed {
		return
	}
	n, err := h.store.UnreadCount(c.Request.Context(), uid)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, UnreadCountResponse{Unread: n})
}

// MarkRead godoc
// @ID          markRead
// @Summary     Mark one message read
// @Description Removes the message from the user's inbox. Marking an already-read or undelivered message is not an error; marked is false.
// @Tags        Inbox
// @Produce     json
//
// @Param       X-User-ID  header  string  true  "User ID"            example(alice)
// @Param       id         path    string  true  "Message ID (UUID)"  format(uuid)
//
// @Success     200  {object} handlers.MarkReadResponse
// @Failure     401  {object} handlers.ErrorResponse "Missing X-User-ID"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /inbox/{id}/read [post]
func (h *Handlers) MarkRead(c *gin.Context) {
	uid, authed := requireUser(c)
	if !authed {
		return
	}
	marked, err := h.store.MarkRead(c.Request.Context(), uid, c.Param("id"))
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeMarkFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, MarkReadResponse{Marked: marked})
}

// MarkAllRead godoc
// @ID          markAllRead
// @Summary     Mark every message read
// @Tags        Inbox
// @Produce     json
//
// @Param       X-User-ID  header  string  true  "User ID"  example(alice)
//
// @Success     200  {object} handlers.MarkAllReadResponse
// @Failure     401  {object} handlers.ErrorResponse "Missing X-User-ID"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /inbox/read-all [post]
func (h *Handlers) MarkAllRead(c *gin.Context) {
	uid, authed := requireUser(c)
	if !authed {
		return
	}
	n, err := h.store.MarkAllRead(c.Request.Context(), uid)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeMarkFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, MarkAllReadResponse{Marked: n})
}

// ListArchive godoc
// @ID          listArchive
// @Summary     List delivered messages (paginated)
// @Description Returns a page of every message ever delivered to the user, read or not, newest first.
// @Tags        Archive
// @Produce     json
//
// @Param       X-User-ID      header  string  true  "User ID"                     example(alice)
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
// @Param       page           query   int     false "Page number"                 minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"              minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListArchiveResponse
// @Header      200  {string} ETag  "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     401  {object} handlers.ErrorResponse "Missing X-User-ID"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /archive [get]
func (h *Handlers) ListArchive(c *gin.Context) {
	uid, authed := requireUser(c)
	if !authed {
		return
	}
	p := pageQuery(c)

	if h.checkETag(c, "archive", uid, p, repo.ArchiveStats) {
		return
	}

	items, total, err := h.store.ListArchive(c.Request.Context(), uid, p.Number, p.Size)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, ListArchiveResponse{Items: items, Pagination: newPagination(p, total)})
}
