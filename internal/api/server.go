package api

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/appsearch/appsearch/internal/catalog"
	"github.com/appsearch/appsearch/internal/health"
	"github.com/appsearch/appsearch/internal/icons"
	"github.com/appsearch/appsearch/internal/scheduler"
)

// Deps are the services the API exposes.
type Deps struct {
	Searcher catalog.Searcher
	Health   *health.Service
	// Scheduler is optional; without it the scheduler routes are not mounted.
	Scheduler *scheduler.Scheduler
	// Fetcher is shared by every websocket session; each session owns its
	// own coordinator on top of it.
	Fetcher icons.Fetcher
}

// Server handles HTTP and websocket requests for the AppSearch API.
type Server struct {
	echo   *echo.Echo
	deps   Deps
	logger zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*session
}

// NewServer creates a new API server instance.
func NewServer(deps Deps, logger zerolog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:     e,
		deps:     deps,
		logger:   logger.With().Str("component", "api").Logger(),
		sessions: make(map[string]*session),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start(address string) error {
	s.logger.Info().Str("address", address).Msg("starting HTTP server")

	if err := s.echo.Start(address); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown closes every websocket session and gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("shutting down HTTP server")

	s.mu.Lock()
	sessions := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	// Hijacked connections are not tracked by http.Server.
	for _, sess := range sessions {
		sess.close()
	}

	return s.echo.Shutdown(ctx)
}

// Echo returns the underlying Echo instance.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// SessionCount returns the number of open websocket sessions.
func (s *Server) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Server) addSession(sess *session) {
	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()
}

func (s *Server) removeSession(sess *session) {
	s.mu.Lock()
	delete(s.sessions, sess.id)
	s.mu.Unlock()
}
