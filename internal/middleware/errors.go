package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// problemDetails is the RFC 7807 body middleware rejections share with the handlers
type problemDetails struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

const errorTypeBase = "https://budget-tracker.app/errors/"

const (
	errorTypeUnauthorized = errorTypeBase + "unauthorized"
	errorTypeRateLimit    = errorTypeBase + "rate-limit"
)

func problem(c echo.Context, status int, errorType, detail string) error {
	return c.JSON(status, problemDetails{
		Type:     errorType,
		Title:    http.StatusText(status),
		Status:   status,
		Detail:   detail,
		Instance: c.Request().URL.Path,
	})
}

func unauthorizedError(c echo.Context, detail string) error {
	return problem(c, http.StatusUnauthorized, errorTypeUnauthorized, detail)
}

func rateLimitError(c echo.Context, detail string) error {
	return problem(c, http.StatusTooManyRequests, errorTypeRateLimit, detail)
}
