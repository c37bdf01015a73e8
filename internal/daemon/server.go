// Package daemon exposes the resolution engine over HTTP. This is the only
// path presentation-layer consumers (UI, export, reporting) may use; they
// never reach past the orchestrator into the traversal, cache or directory
// client.
package daemon

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/permscope/permscope/internal/common"
	"github.com/permscope/permscope/internal/config"
	"github.com/permscope/permscope/internal/resolver"
)

// Per-request token cost of the rate-limited routes. A resolution fans out
// into many directory calls, so it draws more of a client's budget than a
// search or a cache operation.
const (
	searchRequestCost  = 1.0
	resolveRequestCost = 3.0
)

// Server serves the resolver over HTTP.
type Server struct {
	Config    *config.Config
	Resolver  *resolver.Resolver
	StartTime time.Time

	limiter *RateLimiter
	server  *http.Server
}

// NewServer wires a server around an already-constructed resolver.
func NewServer(cfg *config.Config, engine *resolver.Resolver) *Server {
	return &Server{
		Config:    cfg,
		Resolver:  engine,
		StartTime: time.Now().UTC(),
		limiter:   NewRateLimiter(cfg.Server.RequestsPerSecond, cfg.Server.Burst),
	}
}

// Run starts the HTTP server and blocks until it stops.
func (s *Server) Run() error {
	router := s.buildRouter()

	s.server = &http.Server{
		Addr:         s.Config.Server.Addr(),
		Handler:      router,
		ReadTimeout:  s.Config.Server.ReadTimeout,
		WriteTimeout: s.Config.Server.WriteTimeout,
		IdleTimeout:  s.Config.Server.IdleTimeout,
	}

	logrus.WithFields(logrus.Fields{
		"addr": s.server.Addr,
	}).Info("Starting permscope web service")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	s.limiter.Stop()
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) buildRouter() *gin.Engine {
	if logrus.GetLevel() < logrus.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	corsCfg := s.Config.Server.CORS
	router.Use(cors.New(cors.Config{
		AllowOrigins:  corsCfg.AllowedOrigins,
		AllowMethods:  corsCfg.AllowedMethods,
		AllowHeaders:  corsCfg.AllowedHeaders,
		MaxAge:        time.Duration(corsCfg.MaxAge) * time.Second,
		AllowWildcard: true,
	}))

	router.GET("/health", s.handleHealth)

	api := router.Group("/api/v1")
	{
		api.GET("/identities", s.limiter.Middleware(searchRequestCost), s.handleSearchIdentities)
		api.GET("/identities/:objectId/permissions", s.limiter.Middleware(resolveRequestCost), s.handleResolveIdentity)
		api.DELETE("/identities/:objectId/cache", s.limiter.Middleware(searchRequestCost), s.handleInvalidateIdentity)
		api.DELETE("/cache", s.limiter.Middleware(searchRequestCost), s.handleClearCache)
	}

	return router
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"version": common.GetVersion(),
		"uptime":  time.Since(s.StartTime).String(),
	})
}
