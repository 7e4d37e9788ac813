package httpserver

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	apperrors "github.com/pscheid92/livechat/internal/platform/errors"
	"github.com/pscheid92/livechat/internal/platform/logging"
)

const maxRequestIDLength = 64

// requestIDMiddleware tags the request context with an ID for log correlation,
// reusing a sane inbound X-Request-ID.
func requestIDMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := c.Request().Header.Get(echo.HeaderXRequestID)
		if id == "" || len(id) > maxRequestIDLength {
			id = logging.NewRequestID()
		}
		c.Response().Header().Set(echo.HeaderXRequestID, id)

		ctx := logging.WithRequestID(c.Request().Context(), id)
		c.SetRequest(c.Request().WithContext(ctx))
		return next(c)
	}
}

func ErrorHandlingMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if err == nil || c.Response().Committed {
				return err
			}

			var httpErr *echo.HTTPError
			if errors.As(err, &httpErr) {
				return HandleError(c, WrapHTTPError(httpErr))
			}

			return HandleError(c, err)
		}
	}
}

func logError(c echo.Context, err *apperrors.Error) {
	attrs := []any{
		"error_type", err.Type,
		"message", err.Message,
		"path", c.Request().URL.Path,
		"method", c.Request().Method,
		"status", err.HTTPStatus(),
	}

	for k, v := range err.Context {
		attrs = append(attrs, k, v)
	}

	ctx := c.Request().Context()
	switch err.Type {
	case apperrors.TypeValidation:
		slog.InfoContext(ctx, "Validation error", attrs...)
	case apperrors.TypeNotFound:
		slog.InfoContext(ctx, "Not found", attrs...)
	case apperrors.TypeConflict, apperrors.TypeRateLimited:
		slog.WarnContext(ctx, "Request rejected", attrs...)
	case apperrors.TypeInternal:
		if err.Cause != nil {
			attrs = append(attrs, "cause", err.Cause)
		}
		slog.ErrorContext(ctx, "Internal error", attrs...)
	case apperrors.TypeExternal:
		if err.Cause != nil {
			attrs = append(attrs, "cause", err.Cause)
		}
		slog.ErrorContext(ctx, "External service error", attrs...)
	default:
		slog.ErrorContext(ctx, "Unknown error type", attrs...)
	}
}

func HandleError(c echo.Context, err error) error {
	if err == nil {
		return nil
	}

	structuredErr := apperrors.AsStructuredError(err)
	logError(c, structuredErr)
	if err := c.JSON(structuredErr.HTTPStatus(), structuredErr.ToResponse()); err != nil {
		return fmt.Errorf("failed to write error response: %w", err)
	}
	return nil
}

func WrapHTTPError(httpErr *echo.HTTPError) *apperrors.Error {
	message := "internal server error"
	if msg, ok := httpErr.Message.(string); ok {
		message = msg
	}

	var err *apperrors.Error
	switch httpErr.Code {
	case http.StatusBadRequest:
		err = apperrors.ValidationError(message)
	case http.StatusNotFound:
		err = apperrors.NotFoundError(message)
	case http.StatusConflict:
		err = apperrors.ConflictError(message)
	case http.StatusTooManyRequests:
		err = apperrors.RateLimitedError(message)
	case http.StatusBadGateway, http.StatusServiceUnavailable:
		err = apperrors.ExternalError(message, httpErr.Internal)
	default:
		err = apperrors.InternalError(message, httpErr.Internal)
	}
	return err
}
