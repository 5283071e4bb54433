package api

import (
	"context"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/pitchview/internal/api/handlers"
	"github.com/your-org/pitchview/internal/api/ws"
	"github.com/your-org/pitchview/internal/auth"
	"github.com/your-org/pitchview/internal/backend"
	"github.com/your-org/pitchview/internal/models"
	"github.com/your-org/pitchview/internal/queue"
	"github.com/your-org/pitchview/internal/session"
	"github.com/your-org/pitchview/internal/storage"
)

type RouterConfig struct {
	APIKey     string
	LengthUnit models.MetricUnit
	Session    *session.Controller
	Backend    *backend.Client
	Hub        *ws.Hub

	// Optional stores; nil when not configured.
	DB       *storage.PostgresStore
	MinIO    *storage.MinIOStore
	Producer *queue.Producer
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware())
	r.Use(cors.Default())

	// System endpoints (no auth)
	systemH := handlers.NewSystemHandler(readinessChecks(cfg)...)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 (with auth)
	v1 := r.Group("/v1")
	v1.Use(auth.APIKeyMiddleware(cfg.APIKey))

	// WebSocket
	v1.GET("/ws", cfg.Hub.HandleWS)

	// Session
	sessionH := handlers.NewSessionHandler(cfg.Session, cfg.LengthUnit)
	v1.GET("/session", sessionH.State)
	v1.POST("/session/upload", sessionH.Upload)
	v1.POST("/session/stop", sessionH.Stop)
	v1.POST("/session/play", sessionH.Play)
	v1.POST("/session/pause", sessionH.Pause)
	v1.POST("/session/seek", sessionH.Seek)
	v1.GET("/session/frame", sessionH.Frame)
	v1.GET("/session/frame.jpg", sessionH.FrameImage)
	v1.GET("/session/series", sessionH.Series)

	// History
	var mirror handlers.HistoryMirror
	if cfg.DB != nil {
		mirror = cfg.DB
	}
	historyH := handlers.NewHistoryHandler(cfg.Backend, mirror, cfg.Session, cfg.LengthUnit)
	v1.GET("/history", historyH.List)
	v1.GET("/history/compare", historyH.Compare)
	v1.GET("/history/:id", historyH.Get)
	v1.POST("/history/:id/load", historyH.Load)
	v1.GET("/history/:id/similar", historyH.Similar)

	return r
}

func readinessChecks(cfg RouterConfig) []handlers.Check {
	checks := []handlers.Check{{Name: "backend", Ping: cfg.Backend.Ping}}
	if cfg.DB != nil {
		checks = append(checks, handlers.Check{Name: "postgres", Ping: cfg.DB.Ping})
	}
	if cfg.MinIO != nil {
		checks = append(checks, handlers.Check{Name: "minio", Ping: cfg.MinIO.Ping})
	}
	if cfg.Producer != nil {
		checks = append(checks, handlers.Check{Name: "nats", Ping: func(context.Context) error {
			return cfg.Producer.Ping()
		}})
	}
	return checks
}
