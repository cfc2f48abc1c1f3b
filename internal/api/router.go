package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"qrattend/internal/attendance"
	"qrattend/internal/auth"
	"qrattend/internal/decoder"
	"qrattend/internal/history"
	"qrattend/internal/httpmiddleware"
	"qrattend/internal/i18n"
)

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) bool

// Deps wires the router.
type Deps struct {
	Reconciler      *attendance.Reconciler
	Admin           *attendance.Admin
	History         history.Store
	Decoder         *decoder.Client
	Translator      *i18n.Translator
	Tokens          TokenConfig
	RateLimitPerMin int
	Metrics         http.Handler
	Checks          map[string]HealthCheck
	Logger          *slog.Logger
}

// NewRouter builds the gin engine with every route mounted.
func NewRouter(d Deps) *gin.Engine {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Translator == nil {
		d.Translator = i18n.NewTranslator("en")
	}
	if d.Decoder == nil {
		d.Decoder = decoder.New("")
	}
	h := &Handler{
		reconciler: d.Reconciler,
		admin:      d.Admin,
		history:    d.History,
		decoder:    d.Decoder,
		tr:         d.Translator,
		tokens:     d.Tokens,
		log:        d.Logger,
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept", "Accept-Language", "Authorization"},
		MaxAge:          12 * time.Hour,
	}))
	r.Use(securityHeaders())
	r.Use(localize(d.Translator))

	if d.Metrics != nil {
		r.GET("/metrics", gin.WrapH(d.Metrics))
	}
	r.GET("/healthz", healthz(d.Checks))

	v1 := r.Group("/v1")
	v1.POST("/sessions", h.createSession)

	limiter := httpmiddleware.NewSimpleTokenBucket(d.RateLimitPerMin, d.RateLimitPerMin, func(c *gin.Context) string {
		claims, _ := auth.ClaimsFrom(c)
		return claims.SessionID()
	})

	authed := v1.Group("", auth.DeviceAuth(d.Tokens.SigningKey, d.Tokens.Issuer))
	scans := authed.Group("/scans", limiter.GinMiddleware())
	scans.POST("", h.scan)
	scans.POST("/image", h.scanImage)

	// History is scoped to the device named in the token.
	authed.GET("/history", h.listHistory)
	authed.DELETE("/history/:id", h.deleteHistory)
	authed.DELETE("/history", h.clearHistory)

	admin := authed.Group("", auth.RequireRole(auth.RoleAdmin))
	admin.GET("/events", h.listEvents)
	admin.GET("/events/:id/roster", h.roster)
	admin.POST("/events/:id/reset", h.reset)
	admin.POST("/registrations/:id/toggle", h.toggle)

	return r
}

func healthz(checks map[string]HealthCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		body := gin.H{"status": "ok"}
		status := http.StatusOK
		for name, check := range checks {
			ok := check(ctx)
			body[name] = ok
			if !ok {
				status = http.StatusServiceUnavailable
				body["status"] = "degraded"
			}
		}
		c.JSON(status, body)
	}
}

func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Next()
	}
}
