package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/kthezelais/budget-tracker/internal/domain"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const (
	// DeviceIDKey is the context key for the calling device's identifier
	DeviceIDKey contextKey = "device_id"

	// DeviceIDHeader carries the client-side device identifier
	DeviceIDHeader = "X-Device-ID"
)

// APIKeyValidator checks a presented API key
type APIKeyValidator interface {
	ValidateAPIKey(ctx context.Context, key string) error
}

// APIKeyAuthMiddleware provides shared API key authentication
type APIKeyAuthMiddleware struct {
	validator APIKeyValidator
}

// NewAPIKeyAuthMiddleware creates a new APIKeyAuthMiddleware
func NewAPIKeyAuthMiddleware(validator APIKeyValidator) *APIKeyAuthMiddleware {
	return &APIKeyAuthMiddleware{validator: validator}
}

// Authenticate returns an Echo middleware that requires a valid
// "Authorization: Bearer <api key>" header. Websocket upgrades may pass the
// key as a "token" query parameter instead, since browsers cannot set headers there.
func (m *APIKeyAuthMiddleware) Authenticate() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key, ok := extractAPIKey(c)
			if !ok {
				return unauthorizedError(c, "Missing or malformed authorization header")
			}

			if err := m.validator.ValidateAPIKey(c.Request().Context(), key); err != nil {
				if errors.Is(err, domain.ErrUnauthorized) {
					log.Debug().Str("path", c.Request().URL.Path).Msg("Rejected invalid API key")
					return unauthorizedError(c, "Invalid API key")
				}
				log.Error().Err(err).Msg("API key validation failed")
				return unauthorizedError(c, "API key validation failed")
			}

			deviceID := strings.TrimSpace(c.Request().Header.Get(DeviceIDHeader))
			if deviceID == "" {
				deviceID = c.QueryParam("device_id")
			}
			if deviceID != "" {
				ctx := context.WithValue(c.Request().Context(), DeviceIDKey, deviceID)
				c.SetRequest(c.Request().WithContext(ctx))
			}

			return next(c)
		}
	}
}

func extractAPIKey(c echo.Context) (string, bool) {
	authHeader := c.Request().Header.Get("Authorization")
	if authHeader == "" {
		if token := c.QueryParam("token"); token != "" && c.IsWebSocket() {
			return token, true
		}
		return "", false
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}

// GetDeviceID extracts the calling device's identifier from the context
func GetDeviceID(c echo.Context) string {
	if id, ok := c.Request().Context().Value(DeviceIDKey).(string); ok {
		return id
	}
	return ""
}
