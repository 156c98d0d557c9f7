package server

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"weeknotes.app/server/internal/config"
	"weeknotes.app/server/internal/granola"
	"weeknotes.app/server/internal/instrumentation"
)

// Server holds the handler dependencies and builds the gin router.
type Server struct {
	cfg      *config.Config
	logger   *slog.Logger
	metrics  *instrumentation.Metrics
	auth     GranolaAuth
	syncer   SyncRunner
	sessions granola.SessionFactory
	meetings MeetingStore
	health   *HealthChecker
}

// New creates a Server.
func New(cfg *config.Config, logger *slog.Logger, metrics *instrumentation.Metrics,
	auth GranolaAuth, syncer SyncRunner, sessions granola.SessionFactory,
	meetings MeetingStore, health *HealthChecker) *Server {
	return &Server{
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
		auth:     auth,
		syncer:   syncer,
		sessions: sessions,
		meetings: meetings,
		health:   health,
	}
}

// Router builds the HTTP routes. The OAuth callback and the operational
// endpoints are unauthenticated; everything under /api requires a bearer
// token.
func (s *Server) Router() *gin.Engine {
	if !s.cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(s.logger, s.metrics))

	r.GET("/healthz", s.health.Live)
	r.GET("/readyz", s.health.Ready)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// The browser lands here after authorizing; identity travels in the
	// signed state parameter, not in a bearer token.
	r.GET("/auth/granola/callback", s.handleGranolaCallback)

	api := r.Group("/api", BearerAuth(s.cfg.Users))
	{
		api.POST("/granola/connect", s.handleGranolaConnect)
		api.DELETE("/granola/connection", s.handleGranolaDisconnect)
		api.GET("/granola/status", s.handleGranolaStatus)
		api.POST("/granola/sync", s.handleGranolaSync)
		api.GET("/granola/tools", s.handleGranolaTools)

		api.GET("/weeks/:weekStart/meetings", s.handleListMeetings)
		api.POST("/meetings", s.handleCreateMeeting)
		api.PATCH("/meetings/:id", s.handleUpdateMeeting)
		api.DELETE("/meetings/:id", s.handleDeleteMeeting)
	}

	return r
}
