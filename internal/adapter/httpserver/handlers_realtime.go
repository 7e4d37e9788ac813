package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/livechat/internal/adapter/connlimit"
	"github.com/pscheid92/livechat/internal/adapter/websocket"
)

func (s *Server) registerRealtimeRoutes() {
	if s.socketHandler != nil {
		s.echo.GET("/ws", echo.WrapHandler(s.socketHandler))
	}
	if s.realtimeHandler != nil {
		s.echo.GET("/connection/websocket", echo.WrapHandler(clientIPMiddleware(s.realtimeHandler)))
	}
}

// clientIPMiddleware stores the caller's address in the request context, where
// the centrifuge connecting handler reads it to apply connection limits.
func clientIPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := websocket.WithClientIP(r.Context(), connlimit.ClientIP(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
