package httpserver

import (
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const (
	rtmpKeyRatePerSecond = 1
	rtmpKeyBurst         = 5
)

func (s *Server) registerRoutes() {
	s.echo.Use(requestIDMiddleware)
	s.echo.Use(s.setupRequestLoggerMiddleware())
	if s.httpMetrics != nil {
		s.echo.Use(s.httpMetrics.Middleware())
	}
	s.echo.Use(ErrorHandlingMiddleware())
	// Recover sits inside the error middleware so a panic becomes a structured 500.
	s.echo.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{DisableErrorHandler: true}))
	s.echo.Use(middleware.CORS())
	s.echo.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:      "",
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "DENY",
		HSTSMaxAge:         63072000, // 2 years; only sent over HTTPS
		ContentSecurityPolicy: "default-src 'self'; " +
			"script-src 'self' 'unsafe-inline' https://cdn.jsdelivr.net; " +
			"style-src 'self' 'unsafe-inline'; " +
			"img-src 'self' data: blob:; " +
			"media-src 'self' blob: http: https:; " +
			"connect-src 'self' ws: wss: http: https:; " +
			"worker-src 'self' blob:; " +
			"frame-ancestors 'none'",
		ReferrerPolicy: "strict-origin-when-cross-origin",
	}))

	s.echo.GET("/", s.handleIndex)

	s.registerHealthRoutes()
	s.registerStreamRoutes()
	s.registerRealtimeRoutes()

	if s.metricsHandler != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.metricsHandler))
	}
}

func (s *Server) registerStreamRoutes() {
	s.echo.GET("/video_feed", s.handleVideoFeed)
	s.echo.GET("/stream/info", s.handleStreamInfo)
	s.echo.GET("/stream/rtmp-key", s.handleRTMPKey, newRateLimiter(rtmpKeyRatePerSecond, rtmpKeyBurst))
}

func (s *Server) setupRequestLoggerMiddleware() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogError:   true,
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/health/live" || c.Path() == "/metrics"
		},
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
			}
			if v.Error != nil {
				attrs = append(attrs, "error", v.Error)
			}
			slog.InfoContext(c.Request().Context(), "Request", attrs...)
			return nil
		},
	})
}
