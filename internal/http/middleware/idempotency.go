package middleware

import (
	"context"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey lets a sender retry a send without delivering the
// message twice.
const HeaderIdempotencyKey = "Idempotency-Key"

const ctxKeyReplay = "idempotency.replay"

// Keys are stored in a varchar(200) column.
var idempotencyKeyRE = regexp.MustCompile(`^[A-Za-z0-9._~:\-]{1,200}$`)

// IdempotencyLookup reports whether a live record exists for
// (userID, scope, key) at now.
type IdempotencyLookup func(ctx context.Context, userID, scope, key string, now time.Time) (bool, error)

// IdempotencyCheck rejects malformed Idempotency-Key headers with 400. For
// identified callers on a scoped route it consults lookup and marks the
// request as a replay when a record exists, which exempts it from rate
// limiting. scope returns "" for routes without idempotency. A lookup error
// is logged and the request proceeds as a first attempt.
func IdempotencyCheck(scope func(*gin.Context) string, lookup IdempotencyLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}
		if !idempotencyKeyRE.MatchString(key) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"request_id": c.GetString(ctxKeyRequestID),
				"code":       "bad_idempotency_key",
				"message":    "invalid Idempotency-Key",
			})
			return
		}

		uid := UserID(c)
		if s := scope(c); s != "" && uid != "" {
			found, err := lookup(c.Request.Context(), uid, s, key, time.Now().UTC())
			if err != nil {
				LoggerFrom(c).Warn().Err(err).Msg("idempotency lookup failed")
			}
			if found {
				c.Set(ctxKeyReplay, true)
			}
		}
		c.Next()
	}
}

// IsReplay reports whether IdempotencyCheck found a live record for this
// request.
func IsReplay(c *gin.Context) bool {
	return c.GetBool(ctxKeyReplay)
}
