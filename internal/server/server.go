// Package server exposes the dashboard service as a JSON HTTP API.
//
// Record identifiers contain slashes ("3/2026 - 4 Bda/OM-A"), so clients
// must percent-encode them in paths; the router matches on the raw path and
// unescapes parameters afterwards.
package server

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"gratuity-map-service/internal/dashboard"
	"gratuity-map-service/internal/directory"
	"gratuity-map-service/pkg/logger"
)

// Authenticator checks viewer credentials. *directory.Users satisfies it.
type Authenticator interface {
	Authenticate(role directory.Role, unit, password string) (*directory.Identity, error)
}

// Config configures the HTTP server.
type Config struct {
	Address      string        `mapstructure:"address" toml:"address"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" toml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" toml:"write_timeout"`
	Debug        bool          `mapstructure:"debug" toml:"debug"`
}

// DefaultConfig listens on localhost only.
func DefaultConfig() *Config {
	return &Config{
		Address:      "127.0.0.1:8080",
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
}

// Server routes API requests to the dashboard service.
type Server struct {
	router  *gin.Engine
	service *dashboard.Service
	auth    Authenticator
	config  *Config
	logger  logger.Logger

	sessions   map[string]directory.Identity
	sessionsMu sync.RWMutex
}

// New builds the router. With a nil auth every request acts as the
// administrator.
func New(cfg *Config, svc *dashboard.Service, auth Authenticator, log logger.Logger) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		router:   gin.New(),
		service:  svc,
		auth:     auth,
		config:   cfg,
		logger:   log.WithComponent("server"),
		sessions: make(map[string]directory.Identity),
	}
	s.router.UseRawPath = true
	s.router.UnescapePathValues = true
	s.router.Use(gin.Recovery(), s.requestLogger())
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.Group("/api")
	api.GET("/health", s.health)
	api.POST("/login", s.login)

	authed := api.Group("", s.identify())
	authed.POST("/logout", s.logout)
	authed.GET("/records", s.listRecords)
	authed.POST("/records", s.createRecord)
	authed.GET("/records/:id", s.getRecord)
	authed.PATCH("/records/:id", s.updateRecord)
	authed.DELETE("/records/:id", s.deleteRecord)
	authed.POST("/records/:id/diff", s.diffRecord)
	authed.GET("/reports", s.report)
	authed.GET("/options", s.options)
	authed.POST("/password", s.changePassword)
	authed.PUT("/config", s.updateConfig)
	authed.PUT("/users", s.updateUsers)
}

// Handler returns the router for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.config.Address,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("address", s.config.Address).Info("Listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logger.Info("Shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.WithFields(logger.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		}).Debug("Request handled")
	}
}

const viewerKey = "viewer"

// identify resolves the bearer token to a viewer.
func (s *Server) identify() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.auth == nil {
			c.Set(viewerKey, directory.Identity{Name: "Administrador", Role: directory.RoleAdmin})
			c.Next()
			return
		}

		token := strings.TrimSpace(strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer "))
		s.sessionsMu.RLock()
		id, ok := s.sessions[token]
		s.sessionsMu.RUnlock()
		if token == "" || !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"status": "error", "message": "login required"})
			return
		}
		c.Set(viewerKey, id)
		c.Next()
	}
}

func viewerOf(c *gin.Context) directory.Identity {
	v, _ := c.Get(viewerKey)
	id, _ := v.(directory.Identity)
	return id
}

func (s *Server) newSession(id directory.Identity) string {
	token := uuid.NewString()
	s.sessionsMu.Lock()
	s.sessions[token] = id
	s.sessionsMu.Unlock()
	return token
}
