package httpserver

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pscheid92/livechat/internal/adapter/connlimit"
	apperrors "github.com/pscheid92/livechat/internal/platform/errors"
	"golang.org/x/time/rate"
)

const rateLimiterExpiry = 5 * time.Minute

// newRateLimiter limits a route per client address. Addresses are resolved the
// same way as for websocket connection limits, so a proxy's X-Forwarded-For wins.
func newRateLimiter(ratePerSecond float64, burst int) echo.MiddlewareFunc {
	store := middleware.NewRateLimiterMemoryStoreWithConfig(
		middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(ratePerSecond),
			Burst:     burst,
			ExpiresIn: rateLimiterExpiry,
		},
	)
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return connlimit.ClientIP(c.Request()), nil
		},
		Store: store,
		DenyHandler: func(c echo.Context, identifier string, _ error) error {
			return HandleError(c, apperrors.RateLimitedError("rate limit exceeded").WithField("client_ip", identifier))
		},
	})
}
