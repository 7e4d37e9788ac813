package httpserver

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/pscheid92/livechat/internal/adapter/metrics"
	"github.com/pscheid92/livechat/internal/domain"
	"github.com/pscheid92/livechat/internal/platform/config"
	"github.com/pscheid92/livechat/web"
)

type relayService interface {
	StreamInfo() domain.StreamState
	ViewerCount() int
}

type keyIssuer interface {
	Issue(requestHost string, connected int) domain.StreamURLs
}

// Dependencies are the collaborators the HTTP server routes to. Nil handlers
// and metrics leave the matching routes or instrumentation out.
type Dependencies struct {
	Relay     relayService
	Keys      keyIssuer
	Clock     clockwork.Clock
	Socket    http.Handler
	Realtime  http.Handler
	Metrics   http.Handler
	HTTP      *metrics.HTTPMetrics
	Media     *metrics.MediaMetrics
	Health    []HealthCheck
	Templates *template.Template
}

type Server struct {
	echo   *echo.Echo
	config *config.Config

	relay relayService
	keys  keyIssuer
	clock clockwork.Clock

	socketHandler   http.Handler
	realtimeHandler http.Handler
	metricsHandler  http.Handler
	httpMetrics     *metrics.HTTPMetrics
	mediaMetrics    *metrics.MediaMetrics

	templates    *template.Template
	placeholder  []byte
	healthChecks []HealthCheck
	startTime    time.Time
}

func NewServer(cfg *config.Config, deps Dependencies) (*Server, error) {
	templates := deps.Templates
	if templates == nil {
		var err error
		templates, err = template.ParseFS(web.TemplateFiles, "templates/*.html")
		if err != nil {
			return nil, fmt.Errorf("failed to parse templates: %w", err)
		}
	}

	placeholder, err := placeholderFrame()
	if err != nil {
		return nil, fmt.Errorf("failed to encode placeholder frame: %w", err)
	}

	clock := deps.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:            e,
		config:          cfg,
		relay:           deps.Relay,
		keys:            deps.Keys,
		clock:           clock,
		socketHandler:   deps.Socket,
		realtimeHandler: deps.Realtime,
		metricsHandler:  deps.Metrics,
		httpMetrics:     deps.HTTP,
		mediaMetrics:    deps.Media,
		templates:       templates,
		placeholder:     placeholder,
		healthChecks:    deps.Health,
		startTime:       clock.Now(),
	}

	srv.registerRoutes()

	return srv, nil
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	if err := s.echo.Start(":" + s.config.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

// ServeHTTP exposes the router, mainly for tests.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

func (s *Server) renderTemplate(c echo.Context, name string, data any) error {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		slog.ErrorContext(c.Request().Context(), "Template execution failed", "path", c.Request().URL.Path, "error", err)
		if err := c.String(http.StatusInternalServerError, "Failed to render page"); err != nil {
			return fmt.Errorf("failed to send error response: %w", err)
		}
		return nil
	}
	if err := c.HTMLBlob(http.StatusOK, buf.Bytes()); err != nil {
		return fmt.Errorf("failed to send HTML response: %w", err)
	}
	return nil
}
