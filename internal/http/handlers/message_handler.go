// Message HTTP handlers.
//
// This file exposes REST endpoints for stored messages:
//   - POST /messages             (store a message for a list of users)
//   - POST /messages/broadcast   (deliver to everyone; not implemented)
//   - GET  /messages/{id}        (fetch one stored message)
//
// Input rules live here, not in the store: text is sanitized, NFC-normalized
// and must be non-empty, level must be positive, and tags are
// whitespace-collapsed.
//
// Idempotency:
// If an identified sender supplies an Idempotency-Key header and a previous
// successful send exists for (user, "send", key), the handler returns that
// recorded message with 200 and sets `Idempotency-Replayed: true` instead of
// storing the message again. Anonymous sends are never recorded.
package handlers

import (
	"errors"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/text/unicode/norm"

	"github.com/tbourn/go-stored-messages/internal/domain"
	"github.com/tbourn/go-stored-messages/internal/http/middleware"
	"github.com/tbourn/go-stored-messages/internal/repo"
	"github.com/tbourn/go-stored-messages/internal/services"
)

// IdempotencyScopeSend scopes Idempotency-Key records written by SendMessage.
const IdempotencyScopeSend = "send"

//
// DTOs
//

// SendMessageRequest is the JSON payload for storing a message.
type SendMessageRequest struct {
	// Users lists recipient IDs. Blank and repeated IDs are ignored.
	Users []string `json:"users" example:"alice,bob"`
	// Level is the message severity; it must be positive.
	Level int `json:"level" example:"20"`
	// Message is the text body. It must be non-empty after trimming.
	Message string `json:"message" binding:"required" example:"Your export is ready"`
	// Tags is an optional space separated tag list.
	Tags string `json:"tags" example:"export"`
	// Data is an optional structured payload.
	Data map[string]any `json:"data" swaggertype:"object"`
}

// BroadcastRequest is the JSON payload for a broadcast.
type BroadcastRequest struct {
	Level   int    `json:"level" example:"30"`
	Message string `json:"message" example:"Maintenance tonight"`
	Tags    string `json:"tags"`
}

// MessageResponse wraps a stored message.
type MessageResponse struct {
	Message *domain.Message `json:"message"`
}

//
// Helpers
//

// nlCollapseRE collapses runs of 3+ newlines to two, preserving paragraphs.
var nlCollapseRE = regexp.MustCompile(`\n{3,}`)

// sanitizeContent normalizes user text for consistent downstream behavior:
// line endings become LF, runs of 3+ LFs become two, and surrounding
// whitespace is trimmed.
func sanitizeContent(raw string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = nlCollapseRE.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// normalizeText sanitizes raw and composes it to NFC so visually equal
// strings are stored identically.
func normalizeText(raw string) string {
	return norm.NFC.String(sanitizeContent(raw))
}

// normalizeTags collapses runs of whitespace in a space separated tag list.
func normalizeTags(tags string) string {
	return strings.Join(strings.Fields(tags), " ")
}

// idempotencyKey returns the trimmed Idempotency-Key header, if any. The
// middleware has already validated its shape.
func idempotencyKey(c *gin.Context) string {
	return strings.TrimSpace(c.GetHeader("Idempotency-Key"))
}

//
// Handlers
//

// SendMessage godoc
// @ID          sendMessage
// @Summary     Store a message for users
// @Description Stores the message once and adds it to each recipient's inbox and archive.
// @Description Supports idempotency via the Idempotency-Key header (same key → same result).
// @Tags        Messages
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID        header  string  false "Sender ID (required for idempotent replay)"  example(admin)
// @Param       Idempotency-Key  header  string  false "Idempotency key for safe retries (UUID recommended)"  example(7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab)
// @Param       body             body    handlers.SendMessageRequest  true  "Message payload"
//
// @Success     201  {object}  handlers.MessageResponse  "Stored message"
// @Success     200  {object}  handlers.MessageResponse  "Replayed result"
// @Header      200  {string}  Idempotency-Replayed      "true on replay"
// @Failure     400  {object}  handlers.ErrorResponse    "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse    "Internal error"
// @Router      /messages [post]
func (h *Handlers) SendMessage(c *gin.Context) {
	ctx := c.Request.Context()

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "message required")
		return
	}
	text := normalizeText(req.Message)
	if text == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "message required")
		return
	}
	if req.Level <= 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "level must be a positive integer")
		return
	}

	sender := middleware.UserID(c)
	idemKey := ""
	if sender != "" && h.db != nil {
		idemKey = idempotencyKey(c)
	}

	// Replay path.
	if idemKey != "" {
		if rec, err := repo.GetIdempotency(ctx, h.db, sender, IdempotencyScopeSend, idemKey, time.Now().UTC()); err == nil && rec != nil {
			if prev, err := h.store.GetMessage(ctx, rec.MessageID); err == nil {
				c.Header("Idempotency-Replayed", "true")
				ok(c, http.StatusOK, MessageResponse{Message: prev})
				return
			}
		}
	}

	m, err := h.store.AddMessageFor(ctx, req.Users, req.Level, text, normalizeTags(req.Tags), req.Data)
	if err != nil {
		if errors.Is(err, services.ErrTooManyRecipients) {
			fail(c, http.StatusBadRequest, ErrCodeTooManyUsers, "too many recipients")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeSendFailed, err.Error())
		return
	}

	// The send has succeeded; a record that fails to store is only logged.
	if idemKey != "" {
		if _, err := repo.CreateIdempotency(ctx, h.db, sender, IdempotencyScopeSend, idemKey, m.ID, http.StatusCreated, h.idemTTL); err != nil {
			middleware.LoggerFrom(c).Warn().
				Err(err).
				Str("message_id", m.ID).
				Msg("idempotency record not stored")
		}
	}

	ok(c, http.StatusCreated, MessageResponse{Message: m})
}

// BroadcastMessage godoc
// @ID          broadcastMessage
// @Summary     Broadcast a message to all users
// @Description Not implemented; always responds 501.
// @Tags        Messages
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.BroadcastRequest  false  "Broadcast payload"
//
// @Failure     501  {object}  handlers.ErrorResponse  "Not implemented"
// @Router      /messages/broadcast [post]
func (h *Handlers) BroadcastMessage(c *gin.Context) {
	var req BroadcastRequest
	_ = c.ShouldBindJSON(&req)

	err := h.store.BroadcastMessage(c.Request.Context(), req.Level, req.Message, req.Tags)
	if err == nil || errors.Is(err, services.ErrNotImplemented) {
		fail(c, http.StatusNotImplemented, ErrCodeNotImplemented, "broadcast is not implemented")
		return
	}
	fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
}

// GetMessage godoc
// @ID          getMessage
// @Summary     Get a stored message
// @Tags        Messages
// @Produce     json
//
// @Param       id  path  string  true  "Message ID (UUID)"  format(uuid)
//
// @Success     200  {object}  handlers.MessageResponse
// @Failure     404  {object}  handlers.ErrorResponse  "Message not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /messages/{id} [get]
func (h *Handlers) GetMessage(c *gin.Context) {
	m, err := h.store.GetMessage(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, services.ErrMessageNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "message not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, MessageResponse{Message: m})
}
