package handler

import (
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/refinery-dev/refinery/internal/domain"
	"github.com/refinery-dev/refinery/internal/metrics"
	"github.com/refinery-dev/refinery/internal/service"
)

const contextKeyClaims = "auth_claims"

// RequestLogger logs each HTTP request with structured fields and records
// its latency.
func RequestLogger(m *metrics.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			elapsed := time.Since(start)
			slog.Info("http request",
				"method", c.Request().Method,
				"path", c.Request().URL.Path,
				"status", c.Response().Status,
				"duration_ms", elapsed.Milliseconds(),
				"request_id", c.Response().Header().Get(echo.HeaderXRequestID),
			)
			if m != nil {
				m.RequestDuration.WithLabelValues(
					c.Request().Method,
					statusClass(c.Response().Status),
				).Observe(elapsed.Seconds())
			}

			return err
		}
	}
}

func statusClass(status int) string {
	return strconv.Itoa(status/100) + "xx"
}

// JWTAuth validates the Bearer token and injects the claims into echo context.
func JWTAuth(auth *service.AuthService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get("Authorization")
			if header == "" {
				return domain.ErrUnauthorized
			}

			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				return domain.ErrUnauthorized
			}

			claims, err := auth.ValidateToken(parts[1])
			if err != nil {
				return domain.ErrUnauthorized
			}

			c.Set(contextKeyClaims, claims)
			return next(c)
		}
	}
}

// RequireAdmin rejects non-admin callers. Must run after JWTAuth.
func RequireAdmin() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims, ok := GetClaims(c)
			if !ok || !claims.IsAdmin {
				return domain.ErrForbidden
			}
			return next(c)
		}
	}
}

// KillSwitchGuard rejects requests while the global kill switch is active.
// Health, metrics and payment webhooks stay reachable so operators and the
// payment provider are never locked out.
func KillSwitchGuard(ks *service.KillSwitch, m *metrics.Metrics) echo.MiddlewareFunc {
	exempt := []string{"/health", "/metrics", "/webhooks"}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			path := c.Request().URL.Path
			for _, prefix := range exempt {
				if strings.HasPrefix(path, prefix) {
					return next(c)
				}
			}

			if blocked, reason := ks.IsBlocked(c.Request().Context()); blocked {
				if m != nil {
					m.KillSwitchRejections.Inc()
				}
				return &domain.ServiceUnavailableError{Reason: reason}
			}
			return next(c)
		}
	}
}

// GetClaims extracts the authenticated claims from echo context.
func GetClaims(c echo.Context) (*service.Claims, bool) {
	claims, ok := c.Get(contextKeyClaims).(*service.Claims)
	return claims, ok
}
