// Package httpapi mounts the message API on a Gin engine: the middleware
// chain, operational endpoints and the versioned routes.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-stored-messages/docs"
	"github.com/tbourn/go-stored-messages/internal/config"
	"github.com/tbourn/go-stored-messages/internal/http/handlers"
	"github.com/tbourn/go-stored-messages/internal/http/middleware"
	"github.com/tbourn/go-stored-messages/internal/repo"
	"github.com/tbourn/go-stored-messages/internal/services"
)

// maxBodyBytes caps request bodies on every route.
const maxBodyBytes = 1 << 20

// RegisterRoutes installs middleware and routes on r and returns the store
// the handlers use.
//
// Order: tracing, request ID, access log, recovery, body limit, metrics,
// idempotency check, rate limit, CORS, security headers. The idempotency
// check runs before the limiter so replays are not charged. Inbox and
// archive routes additionally send Cache-Control: no-store.
func RegisterRoutes(r *gin.Engine, db *gorm.DB, cfg config.Config) *services.MessageStore {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.AccessLog(middleware.AccessLogOptions{
		// The ETag embeds the user ID, and user_id is already its own field.
		MaskHeaders: []string{middleware.HeaderUserID, "If-None-Match"},
	}))
	r.Use(middleware.Recovery())
	r.Use(limitBody(maxBodyBytes))

	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	sendPath := joinPath(cfg.APIBasePath, "/messages")
	r.Use(middleware.IdempotencyCheck(func(c *gin.Context) string {
		if c.Request.Method == http.MethodPost && c.FullPath() == sendPath {
			return handlers.IdempotencyScopeSend
		}
		return ""
	}, idempotencyLookup(db)))

	r.Use(middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst).Handler())

	r.Use(corsMiddleware(cfg.CORS.AllowedOrigins)...)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS: cfg.Security.EnableHSTS,
		HSTSMaxAge: cfg.Security.HSTSMaxAge,
	}))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = cfg.APIBasePath
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	store := services.NewMessageStore(db, cfg.MaxRecipients)
	h := handlers.New(store, db, cfg.IdempotencyTTL)

	api := groupWithPrefix(r, cfg.APIBasePath)
	api.POST("/messages", h.SendMessage)
	api.POST("/messages/broadcast", h.BroadcastMessage)
	api.GET("/messages/:id", h.GetMessage)

	perUser := api.Group("", middleware.NoStore())
	perUser.GET("/inbox", h.ListInbox)
	perUser.GET("/inbox/count", h.UnreadCount)
	perUser.POST("/inbox/read-all", h.MarkAllRead)
	perUser.POST("/inbox/:id/read", h.MarkRead)
	perUser.GET("/archive", h.ListArchive)

	return store
}

// idempotencyLookup reports live Idempotency-Key records from db.
func idempotencyLookup(db *gorm.DB) middleware.IdempotencyLookup {
	return func(ctx context.Context, userID, scope, key string, now time.Time) (bool, error) {
		_, err := repo.GetIdempotency(ctx, db, userID, scope, key, now)
		switch {
		case err == nil:
			return true, nil
		case errors.Is(err, repo.ErrNotFound):
			return false, nil
		}
		return false, err
	}
}

// corsMiddleware allows any origin when origins is empty and otherwise
// echoes allow-listed origins only. Credentials are never allowed.
func corsMiddleware(origins []string) []gin.HandlerFunc {
	cc := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", middleware.HeaderUserID, middleware.HeaderIdempotencyKey, "If-None-Match"},
		ExposeHeaders: []string{middleware.HeaderRequestID, "ETag", "Idempotency-Replayed"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		cc.AllowAllOrigins = true
		// gin-contrib/cors skips requests without Origin; health checks and
		// curl still see the wildcard.
		return []gin.HandlerFunc{func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		}, cors.New(cc)}
	}
	cc.AllowOrigins = origins
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	// Echo allow-listed origins on every response, including ones
	// gin-contrib/cors leaves untouched.
	return []gin.HandlerFunc{func(c *gin.Context) {
		if o := c.GetHeader("Origin"); o != "" {
			if _, ok := allowed[o]; ok {
				c.Writer.Header().Set("Access-Control-Allow-Origin", o)
				c.Writer.Header().Add("Vary", "Origin")
			}
		}
		c.Next()
	}, cors.New(cc)}
}

// limitBody caps request bodies at maxBytes; reads past it fail.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// joinPath returns the full route path for rel under prefix, matching what
// groupWithPrefix registers.
func joinPath(prefix, rel string) string {
	if prefix == "" || prefix == "/" {
		return rel
	}
	return prefix + rel
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
