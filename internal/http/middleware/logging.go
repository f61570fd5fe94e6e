// Package middleware holds the Gin middleware mounted in front of the
// message API: request correlation, access logging with redaction, panic
// recovery, security and caching headers, Idempotency-Key checks, per-caller
// rate limiting and Prometheus metrics.
//
// Every handler can reach a request-scoped zerolog.Logger through
// LoggerFrom. It carries request_id, user_id, route and, on /:id routes,
// message_id.
package middleware

import (
	"net/http"
	"regexp"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// HeaderRequestID carries the correlation ID in both directions.
const HeaderRequestID = "X-Request-ID"

const (
	ctxKeyRequestID = "requestID"
	ctxKeyLogger    = "logger"

	maxRequestIDLen = 128
	maxQueryLogLen  = 1024
)

var (
	emailRE = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	// Digits only, so hex runs inside message IDs are left alone.
	phoneRE = regexp.MustCompile(`\b(?:\+?\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`)
)

// RequestID adopts the caller's X-Request-ID when it is present and
// printable, otherwise it mints a UUID. The ID is echoed on the response.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := strings.TrimSpace(c.GetHeader(HeaderRequestID))
		if !validRequestID(rid) {
			rid = uuid.NewString()
		}
		c.Set(ctxKeyRequestID, rid)
		c.Writer.Header().Set(HeaderRequestID, rid)
		c.Next()
	}
}

func validRequestID(s string) bool {
	if s == "" || len(s) > maxRequestIDLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 0x21 || s[i] > 0x7e {
			return false
		}
	}
	return true
}

// AccessLogOptions configures AccessLog.
type AccessLogOptions struct {
	// MaskHeaders are logged as "[REDACTED]". Authorization and Cookie are
	// always masked.
	MaskHeaders []string
}

// AccessLog installs the request-scoped logger and, once the handler chain
// returns, writes one "http_request" line at a level chosen by status.
// Header and query values are scrubbed of email addresses and phone numbers.
func AccessLog(opts AccessLogOptions) gin.HandlerFunc {
	masked := map[string]struct{}{"Authorization": {}, "Cookie": {}}
	for _, h := range opts.MaskHeaders {
		if h = strings.TrimSpace(h); h != "" {
			masked[http.CanonicalHeaderKey(h)] = struct{}{}
		}
	}

	return func(c *gin.Context) {
		start := time.Now()

		lc := log.With().
			Str("request_id", c.GetString(ctxKeyRequestID)).
			Str("user_id", UserID(c)).
			Str("method", c.Request.Method).
			Str("route", routeLabel(c))
		if id := c.Param("id"); id != "" {
			lc = lc.Str("message_id", id)
		}
		lg := lc.Logger()
		c.Set(ctxKeyLogger, &lg)

		c.Next()

		status := c.Writer.Status()
		var ev *zerolog.Event
		switch {
		case status >= http.StatusInternalServerError || len(c.Errors) > 0:
			ev = lg.Error()
		case status >= http.StatusBadRequest:
			ev = lg.Warn()
		default:
			ev = lg.Info()
		}
		if len(c.Errors) > 0 {
			ev = ev.Str("errors", c.Errors.String())
		}
		ev.Int("status", status).
			Int("bytes_out", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Str("query", scrub(truncate(c.Request.URL.RawQuery, maxQueryLogLen))).
			Dict("headers", headerDict(c.Request.Header, masked)).
			Msg("http_request")
	}
}

func headerDict(h http.Header, masked map[string]struct{}) *zerolog.Event {
	d := zerolog.Dict()
	for k, vv := range h {
		if _, ok := masked[http.CanonicalHeaderKey(k)]; ok {
			d.Str(k, "[REDACTED]")
			continue
		}
		d.Str(k, scrub(strings.Join(vv, ", ")))
	}
	return d
}

func scrub(s string) string {
	if s == "" {
		return s
	}
	s = emailRE.ReplaceAllString(s, "[REDACTED:email]")
	return phoneRE.ReplaceAllString(s, "[REDACTED:phone]")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}

// routeLabel is the matched route template, or "unmatched" so that 404
// paths do not leak into logs and metric labels.
func routeLabel(c *gin.Context) string {
	if p := c.FullPath(); p != "" {
		return p
	}
	return "unmatched"
}

// Recovery turns a handler panic into a JSON 500 and logs the stack with the
// request-scoped logger. If the handler already wrote a response, the
// connection is only aborted.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			LoggerFrom(c).Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Msg("panic recovered")
			if c.Writer.Written() {
				c.Abort()
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"request_id": c.GetString(ctxKeyRequestID),
				"code":       "internal_error",
				"message":    "internal server error",
			})
		}()
		c.Next()
	}
}

// LoggerFrom returns the logger installed by AccessLog, or a copy of the
// global logger outside of it.
func LoggerFrom(c *gin.Context) *zerolog.Logger {
	if c != nil {
		if v, ok := c.Get(ctxKeyLogger); ok {
			if lg, ok := v.(*zerolog.Logger); ok {
				return lg
			}
		}
	}
	lg := log.Logger
	return &lg
}
