package httpserver

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/livefeed/internal/adapter/metrics"
	"github.com/pscheid92/livefeed/internal/platform/correlation"
	apperrors "github.com/pscheid92/livefeed/internal/platform/errors"
)

// correlationMiddleware tags the request context with the caller's
// X-Request-ID, or a fresh ID, and echoes it on the response.
func correlationMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := correlation.FromHeader(c.Request().Header.Get(correlation.Header))
		ctx := correlation.WithID(c.Request().Context(), id)
		c.SetRequest(c.Request().WithContext(ctx))
		c.Response().Header().Set(correlation.Header, id)
		return next(c)
	}
}

// ErrorHandlingMiddleware renders handler errors as ErrorResponse JSON.
// Echo's own HTTP errors pass through to its default handler. httpMetrics may be nil.
func ErrorHandlingMiddleware(httpMetrics *metrics.HTTPMetrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if err == nil {
				return nil
			}

			var httpErr *echo.HTTPError
			if errors.As(err, &httpErr) {
				countError(httpMetrics, WrapHTTPError(httpErr).Type)
				return err
			}

			structuredErr := apperrors.AsStructuredError(err)
			countError(httpMetrics, structuredErr.Type)
			logError(c, structuredErr)

			if err := c.JSON(structuredErr.HTTPStatus(), structuredErr.ToResponse()); err != nil {
				return fmt.Errorf("failed to write error response: %w", err)
			}
			return nil
		}
	}
}

func countError(httpMetrics *metrics.HTTPMetrics, errType apperrors.ErrorType) {
	if httpMetrics != nil {
		httpMetrics.ErrorsTotal.WithLabelValues(string(errType)).Inc()
	}
}

func logError(c echo.Context, err *apperrors.Error) {
	ctx := c.Request().Context()
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

	switch err.Type {
	case apperrors.TypeValidation:
		slog.InfoContext(ctx, "Validation error", attrs...)
	case apperrors.TypeNotFound:
		slog.InfoContext(ctx, "Not found", attrs...)
	case apperrors.TypeConflict, apperrors.TypeUnavailable:
		slog.WarnContext(ctx, "Request refused", attrs...)
	default:
		if err.Cause != nil {
			attrs = append(attrs, "cause", err.Cause)
		}
		slog.ErrorContext(ctx, "Request failed", attrs...)
	}
}

// WrapHTTPError classifies an Echo HTTP error for metrics.
func WrapHTTPError(httpErr *echo.HTTPError) *apperrors.Error {
	message := http.StatusText(httpErr.Code)
	if msg, ok := httpErr.Message.(string); ok {
		message = msg
	}

	var errType apperrors.ErrorType
	switch {
	case httpErr.Code == http.StatusNotFound || httpErr.Code == http.StatusMethodNotAllowed:
		errType = apperrors.TypeNotFound
	case httpErr.Code == http.StatusConflict:
		errType = apperrors.TypeConflict
	case httpErr.Code == http.StatusServiceUnavailable || httpErr.Code == http.StatusTooManyRequests:
		errType = apperrors.TypeUnavailable
	case httpErr.Code == http.StatusBadGateway:
		errType = apperrors.TypeExternal
	case httpErr.Code >= 400 && httpErr.Code < 500:
		errType = apperrors.TypeValidation
	default:
		errType = apperrors.TypeInternal
	}

	err := &apperrors.Error{
		Type:    errType,
		Message: message,
		Context: make(map[string]any),
	}
	if httpErr.Internal != nil {
		err.Cause = httpErr.Internal
	}
	return err
}
