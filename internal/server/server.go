// Package server exposes the agent session runtime over HTTP: message
// turns, the background-process snapshot feed, the fleet namespace, and
// transcript export.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/lattice-dev/lattice/internal/event"
	"github.com/lattice-dev/lattice/internal/fleet"
	"github.com/lattice-dev/lattice/internal/session"
	"github.com/lattice-dev/lattice/internal/shell"
	"github.com/lattice-dev/lattice/internal/task"
	"github.com/lattice-dev/lattice/internal/transcript"
)

// Config holds server configuration.
type Config struct {
	Port         int
	EnableCORS   bool
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns default server configuration.
func DefaultConfig() *Config {
	return &Config{
		Port:         8080,
		EnableCORS:   true,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // no write timeout: SSE connections stay open
	}
}

// Server is the HTTP server.
type Server struct {
	config   *Config
	router   *chi.Mux
	httpSrv  *http.Server
	bus      *event.Bus
	sessions *session.Manager
	shellSvc *shell.Service
	taskSvc  *task.Service
	fleet    *fleet.Controller
	shares   *transcript.ShareManager
}

// Deps are the services the server fronts.
type Deps struct {
	Bus      *event.Bus
	Sessions *session.Manager
	Shell    *shell.Service
	Tasks    *task.Service
	Fleet    *fleet.Controller
	Shares   *transcript.ShareManager
}

// New creates a new Server instance.
func New(cfg *Config, deps Deps) *Server {
	s := &Server{
		config:   cfg,
		router:   chi.NewRouter(),
		bus:      deps.Bus,
		sessions: deps.Sessions,
		shellSvc: deps.Shell,
		taskSvc:  deps.Tasks,
		fleet:    deps.Fleet,
		shares:   deps.Shares,
	}

	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RealIP)

	if s.config.EnableCORS {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"Link", "X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
}

// Start runs the server until Shutdown is called.
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}
	return s.httpSrv.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

// Router returns the chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}
