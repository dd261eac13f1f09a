package handler

import (
	"net/http"
	"time"

	"github.com/kthezelais/budget-tracker/internal/domain"
	"github.com/kthezelais/budget-tracker/internal/service"
	"github.com/labstack/echo/v4"
)

// SettingHandler handles settings requests
type SettingHandler struct {
	settingService *service.SettingService
}

// NewSettingHandler creates a new SettingHandler
func NewSettingHandler(settingService *service.SettingService) *SettingHandler {
	return &SettingHandler{settingService: settingService}
}

// SettingRequest represents the body of setting writes
type SettingRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// SettingResponse represents a setting in API responses
type SettingResponse struct {
	ID        int32  `json:"id"`
	Key       string `json:"key"`
	Value     string `json:"value"`
	UpdatedAt string `json:"updated_at"`
}

// GetSettings handles GET /settings
func (h *SettingHandler) GetSettings(c echo.Context) error {
	settings, err := h.settingService.GetSettings(c.Request().Context())
	if err != nil {
		return handleServiceError(c, err)
	}

	response := make([]SettingResponse, len(settings))
	for i, s := range settings {
		response[i] = toSettingResponse(s)
	}
	return c.JSON(http.StatusOK, response)
}

// UpsertSetting handles POST /settings
func (h *SettingHandler) UpsertSetting(c echo.Context) error {
	var req SettingRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}

	setting, err := h.settingService.UpsertSetting(c.Request().Context(), req.Key, req.Value)
	if err != nil {
		return handleServiceError(c, err)
	}
	return c.JSON(http.StatusOK, toSettingResponse(setting))
}

// UpdateSetting handles PUT /settings
func (h *SettingHandler) UpdateSetting(c echo.Context) error {
	var req SettingRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}

	setting, err := h.settingService.UpdateSetting(c.Request().Context(), req.Key, req.Value)
	if err != nil {
		return handleServiceError(c, err)
	}
	return c.JSON(http.StatusOK, toSettingResponse(setting))
}

func toSettingResponse(s *domain.Setting) SettingResponse {
	return SettingResponse{
		ID:        s.ID,
		Key:       s.Key,
		Value:     s.Value,
		UpdatedAt: s.UpdatedAt.Format(time.RFC3339),
	}
}
