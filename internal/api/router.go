package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/loretree/loretree/internal/api/middleware"
	"github.com/loretree/loretree/internal/config"
	"github.com/loretree/loretree/internal/guard"
	"github.com/loretree/loretree/internal/inbox"
	"github.com/loretree/loretree/internal/sync"
	"github.com/loretree/loretree/pkg/llmclient"
)

// ModelLister exposes the language-model catalog for operational checks.
type ModelLister interface {
	ListModels(ctx context.Context) ([]llmclient.Model, error)
}

type Router struct {
	engine  *gin.Engine
	server  *http.Server
	cfg     *config.Config
	db      *gorm.DB
	queue   *inbox.Queue
	guard   *guard.Guard
	syncSvc *sync.Service
	models  ModelLister
	logger  *zap.Logger
}

func NewRouter(
	cfg *config.Config,
	db *gorm.DB,
	queue *inbox.Queue,
	g *guard.Guard,
	syncSvc *sync.Service,
	models ModelLister,
	logger *zap.Logger,
) *Router {
	// Disable GIN default logger
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// Add recovery middleware
	r.Use(gin.Recovery())

	// Add custom middleware
	r.Use(middleware.RequestID())
	r.Use(middleware.Metrics())
	r.Use(middleware.Logger(logger))

	api := &Router{
		engine:  r,
		cfg:     cfg,
		db:      db,
		queue:   queue,
		guard:   g,
		syncSvc: syncSvc,
		models:  models,
		logger:  logger,
	}

	api.RegisterRoutes()
	return api
}

func (r *Router) RegisterRoutes() {
	// Simple health check
	r.engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Prometheus metrics endpoint
	r.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Chat platform delivery endpoint (signed)
	r.engine.POST("/webhook/chat", r.ReceiveChatEvent)

	// Admin Routes (Protected by ADMIN_API_TOKEN)
	admin := r.engine.Group("/admin")
	admin.Use(r.adminAuth())
	{
		admin.GET("/executions/:event_id", r.GetExecution)
		admin.POST("/executions/:event_id/retry", r.RetryExecution)
		admin.POST("/sync", r.TriggerSync)
		admin.GET("/sync/health", r.SyncHealth)
		admin.GET("/models", r.ListModels)
	}
}

func (r *Router) Run() error {
	r.server = &http.Server{
		Addr:         ":" + r.cfg.Port,
		Handler:      r.engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return r.server.ListenAndServe()
}

func (r *Router) adminAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		expected := strings.TrimSpace(r.cfg.AdminAPIToken)
		if expected == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin_token_not_configured"})
			return
		}

		provided := strings.TrimSpace(c.GetHeader("X-Admin-Token"))
		if provided == "" {
			authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
			if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
				provided = strings.TrimSpace(authHeader[7:])
			}
		}

		if provided == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

// Shutdown gracefully shuts down the HTTP server
func (r *Router) Shutdown(ctx context.Context) error {
	if r.server == nil {
		return nil
	}
	return r.server.Shutdown(ctx)
}
