// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, idempotency, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Production-ready CORS and security header posture
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-callrec-backend/docs"
	"github.com/tbourn/go-callrec-backend/internal/config"
	"github.com/tbourn/go-callrec-backend/internal/http/handlers"
	"github.com/tbourn/go-callrec-backend/internal/http/middleware"
	"github.com/tbourn/go-callrec-backend/internal/queue"
	"github.com/tbourn/go-callrec-backend/internal/repo"
	"github.com/tbourn/go-callrec-backend/internal/services"
	"github.com/tbourn/go-callrec-backend/internal/storage"
)

// defaultBodyLimit caps JSON request bodies.
const defaultBodyLimit = 1 << 20

// Deps are the runtime dependencies the API is built on.
type Deps struct {
	DB    *gorm.DB
	Store storage.Gateway
	Queue queue.Queue
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), idempotency and rate
// limiting, CORS and security headers, health, readiness and metrics
// endpoints, and then mounts the versioned public API under cfg.APIBasePath.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter (per route)
//  6. Metrics
//  7. Idempotency validator (before rate limiter to allow bypass on replay)
//  8. Rate limiter (per client IP, bypass on replay)
//  9. CORS, security headers and gzip
func RegisterRoutes(r *gin.Engine, deps Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true
	db := deps.DB
	base := normalizeBase(cfg.APIBasePath)

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{"X-API-Key"},
		MaskParams:  []string{"phone_number", "caller", "receiver"},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Body size limits: 1 MiB for JSON, the upload cap for recordings
	uploadRoute := base + "/calls/:id/recording"
	overrides := map[string]int64{}
	if cfg.Storage.MaxUploadBytes > 0 {
		overrides[uploadRoute] = cfg.Storage.MaxUploadBytes + handlers.MultipartOverhead
	}
	r.Use(limitBody(defaultBodyLimit, overrides))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Idempotency validation (before rate limiting)
	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{
			MaxLen: 200,
			Scope: middleware.ScopeByRoute(map[string]string{
				http.MethodPost + " " + base + "/calls": services.ScopeCreateCall,
			}),
		},
		func(ctx context.Context, scope, key string, now time.Time) (bool, error) {
			rec, err := repo.GetIdempotency(ctx, db, scope, key, now)
			if err != nil || rec == nil {
				return false, nil
			}
			return true, nil
		},
	))

	// 8) Token-bucket rate limiter per client IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByClientIP())
	r.Use(rl.Handler())

	// 9) CORS posture (safe defaults: allow all if none configured)
	allowHeaders := []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderIdempotencyKey, "If-None-Match"}
	exposeHeaders := []string{"X-Request-ID", "Content-Length", "ETag", "Location", "Retry-After"}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header (helps tests and simple health checks).
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		// Echo ACAO with the request Origin when it is in the allowlist (in addition to gin-contrib/cors).
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS).
	// Responses carrying presigned URLs must not be cached by intermediaries.
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:    cfg.Security.EnableHSTS,
		HSTSMaxAge:    cfg.Security.HSTSMaxAge,
		EnablePolicy:  true,
		NoStoreRoutes: []string{base + "/calls/:id", base + "/calls/:id/record"},
	}))

	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics", "/swagger"})))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/ready", readiness(deps))

	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = base
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Dependency injection: services ← repo/db/store/queue
	callSvc := services.NewCallService(db, deps.Store)
	if cfg.Storage.PresignTTL > 0 {
		callSvc.PresignTTL = cfg.Storage.PresignTTL
	}
	if cfg.Storage.RefreshMargin > 0 {
		callSvc.RefreshMargin = cfg.Storage.RefreshMargin
	}
	if cfg.IdempotencyTTL > 0 {
		callSvc.IdempotencyTTL = cfg.IdempotencyTTL
	}
	recSvc := &services.RecordingService{DB: db, Store: deps.Store, Queue: deps.Queue}
	recoverySvc := &services.RecoveryService{DB: db, Queue: deps.Queue}
	h := handlers.New(callSvc, recSvc, recoverySvc, cfg.Storage.MaxUploadBytes)

	// Public API
	api := groupWithPrefix(r, base)
	{
		// Calls
		api.POST("/calls", h.CreateCall)
		api.GET("/calls", h.ListCalls)
		api.GET("/calls/find", h.FindCalls)
		api.GET("/calls/:id", h.GetCall)
		api.GET("/calls/:id/record", h.GetRecord)

		// Recordings
		api.POST("/calls/:id/recording", h.UploadRecording)

		// Dead letters
		api.GET("/admin/failed-tasks", h.ListFailedTasks)
		api.POST("/admin/failed-tasks/:id/retry", h.RetryFailedTask)
	}
}

// readiness reports 200 only when the database and the queue answer.
func readiness(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		checks := gin.H{"database": "ok", "queue": "ok"}
		ready := true
		if err := repo.Ping(ctx, deps.DB); err != nil {
			checks["database"] = err.Error()
			ready = false
		}
		if deps.Queue == nil {
			checks["queue"] = "not configured"
			ready = false
		} else if err := deps.Queue.Ping(ctx); err != nil {
			checks["queue"] = err.Error()
			ready = false
		} else if dr, ok := deps.Queue.(queue.DepthReporter); ok {
			if pending, inFlight, err := dr.Depth(ctx); err == nil {
				checks["queue_pending"] = pending
				checks["queue_in_flight"] = inFlight
			}
		}
		if !ready {
			middleware.LoggerFrom(c).Warn().Interface("checks", checks).Msg("not ready")
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "code": handlers.ErrCodeNotReady, "checks": checks})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready", "checks": checks})
	}
}

// limitBody returns a Gin middleware that caps the request body size to
// maxBytes using http.MaxBytesReader. Routes listed in overrides (keyed by
// registered path) get their own cap. Requests exceeding the cap cause
// downstream body reads to error.
func limitBody(maxBytes int64, overrides map[string]int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := maxBytes
		if n, ok := overrides[c.FullPath()]; ok {
			limit = n
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}

// normalizeBase maps "/" to the empty root prefix.
func normalizeBase(prefix string) string {
	if prefix == "/" {
		return ""
	}
	return prefix
}
