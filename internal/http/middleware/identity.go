package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// HeaderUserID names the caller. The service has no authentication of its
// own and trusts the gateway in front of it to set this header.
const HeaderUserID = "X-User-ID"

// ctxKeyUserID holds an identity verified by an auth layer. It takes
// precedence over HeaderUserID.
const ctxKeyUserID = "userID"

// UserID returns the caller's identity, or "" for an anonymous request.
func UserID(c *gin.Context) string {
	if c == nil {
		return ""
	}
	if s := c.GetString(ctxKeyUserID); s != "" {
		return s
	}
	if c.Request == nil {
		return ""
	}
	return strings.TrimSpace(c.GetHeader(HeaderUserID))
}
