package httpserver

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	apperrors "github.com/pscheid92/livefeed/internal/platform/errors"
	"golang.org/x/time/rate"
)

// Buckets of producers that stay quiet this long are dropped.
const ingressBucketExpiry = 5 * time.Minute

// ingressLimiter gives every producer IP its own token bucket on the
// ingress route. A rejected request never reaches the body limit, the
// binder or the store.
func (s *Server) ingressLimiter() echo.MiddlewareFunc {
	retryAfter := strconv.Itoa(retryAfterSeconds(s.config.IngressRateLimit))

	store := middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(s.config.IngressRateLimit),
		Burst:     s.config.IngressRateBurst,
		ExpiresIn: ingressBucketExpiry,
	})

	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: store,
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		DenyHandler: func(c echo.Context, ip string, _ error) error {
			if s.metrics != nil {
				countError(s.metrics.HTTP, apperrors.TypeUnavailable)
			}
			slog.InfoContext(c.Request().Context(), "Ingress rate limited", "ip", ip)

			c.Response().Header().Set("Retry-After", retryAfter)
			return c.JSON(http.StatusTooManyRequests, apperrors.UnavailableError("rate limit exceeded").ToResponse())
		},
	})
}

// retryAfterSeconds is the time for one token to refill, at least a second.
func retryAfterSeconds(perSecond float64) int {
	if perSecond <= 0 {
		return 1
	}
	return max(1, int(math.Ceil(1/perSecond)))
}
