package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/appsearch/appsearch/internal/api/handlers"
	apimw "github.com/appsearch/appsearch/internal/api/middleware"
)

func (s *Server) setupMiddleware() {
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.RequestID())
	s.echo.Use(apimw.APIHeaders())

	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogMethod:   true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				s.logger.Error().
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Err(v.Error).
					Msg("request error")
			} else {
				s.logger.Debug().
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Msg("request")
			}
			return nil
		},
	}))

	s.echo.Use(middleware.GzipWithConfig(middleware.GzipConfig{
		Level: 5,
		Skipper: func(c echo.Context) bool {
			return c.Request().Header.Get("Upgrade") == "websocket"
		},
	}))
}

// setupRoutes configures API routes.
func (s *Server) setupRoutes() {
	s.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	s.echo.GET("/ws", s.handleWebSocket)

	api := s.echo.Group("/api/v1")

	searchHandler := handlers.NewSearchHandler(s.deps.Searcher)
	api.GET("/search", searchHandler.Search)

	if s.deps.Health != nil {
		healthHandler := handlers.NewHealthHandler(s.deps.Health)
		api.GET("/health", healthHandler.Report)
	}

	if s.deps.Scheduler != nil {
		schedulerHandler := handlers.NewSchedulerHandler(s.deps.Scheduler)
		tasks := api.Group("/scheduler/tasks")
		tasks.GET("", schedulerHandler.ListTasks)
		tasks.POST("/:id/run", schedulerHandler.RunTask)
	}
}
