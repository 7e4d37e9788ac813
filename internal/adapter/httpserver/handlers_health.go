package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/livechat/internal/platform/version"
)

const readinessProbeTimeout = 5 * time.Second

// HealthCheck is a named readiness check, such as the RTMP relay probe.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type livenessResponse struct {
	Status       string  `json:"status"`
	Uptime       float64 `json:"uptime"`
	Viewers      int     `json:"viewers"`
	StreamActive bool    `json:"stream_active"`
}

type readinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func (s *Server) registerHealthRoutes() {
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.handleReadiness)
	s.echo.GET("/version", s.handleVersion)
}

func (s *Server) handleLiveness(c echo.Context) error {
	response := livenessResponse{
		Status:       "ok",
		Uptime:       s.clock.Since(s.startTime).Seconds(),
		Viewers:      s.relay.ViewerCount(),
		StreamActive: s.relay.StreamInfo().Active,
	}
	if err := c.JSON(http.StatusOK, response); err != nil {
		return fmt.Errorf("failed to write liveness response: %w", err)
	}
	return nil
}

// handleReadiness runs every check, so one failing dependency does not hide another.
func (s *Server) handleReadiness(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), readinessProbeTimeout)
	defer cancel()

	status, response := s.runHealthChecks(ctx)
	if err := c.JSON(status, response); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) runHealthChecks(ctx context.Context) (int, readinessResponse) {
	response := readinessResponse{Status: "ready"}
	if len(s.healthChecks) == 0 {
		return http.StatusOK, response
	}

	status := http.StatusOK
	response.Checks = make(map[string]string, len(s.healthChecks))
	for _, hc := range s.healthChecks {
		if err := hc.Check(ctx); err != nil {
			response.Checks[hc.Name] = err.Error()
			response.Status = "unhealthy"
			status = http.StatusServiceUnavailable
			continue
		}
		response.Checks[hc.Name] = "ok"
	}
	return status, response
}

func (s *Server) handleVersion(c echo.Context) error {
	if err := c.JSON(http.StatusOK, version.Get()); err != nil {
		return fmt.Errorf("failed to write version response: %w", err)
	}
	return nil
}
