package handler

import (
	"net/http"
	"time"

	"github.com/kthezelais/budget-tracker/internal/domain"
	"github.com/kthezelais/budget-tracker/internal/service"
	"github.com/labstack/echo/v4"
)

// DeviceHandler handles device registration requests
type DeviceHandler struct {
	deviceService *service.DeviceService
}

// NewDeviceHandler creates a new DeviceHandler
func NewDeviceHandler(deviceService *service.DeviceService) *DeviceHandler {
	return &DeviceHandler{deviceService: deviceService}
}

// RegisterDeviceRequest represents the register device request body
type RegisterDeviceRequest struct {
	DeviceID   string `json:"device_id"`
	Username   string `json:"username"`
	DeviceName string `json:"device_name"`
}

// UpdateDeviceRequest represents the update device request body
type UpdateDeviceRequest struct {
	Username string `json:"username"`
}

// DeviceResponse represents a device in API responses
type DeviceResponse struct {
	ID         int32  `json:"id"`
	DeviceID   string `json:"device_id"`
	Username   string `json:"username"`
	DeviceName string `json:"device_name"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at"`
}

// RegisterDevice handles POST /devices
func (h *DeviceHandler) RegisterDevice(c echo.Context) error {
	var req RegisterDeviceRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}

	device, err := h.deviceService.RegisterDevice(c.Request().Context(), req.DeviceID, req.Username, req.DeviceName)
	if err != nil {
		return handleServiceError(c, err)
	}
	return c.JSON(http.StatusOK, toDeviceResponse(device))
}

// GetDevice handles GET /devices/:deviceId
func (h *DeviceHandler) GetDevice(c echo.Context) error {
	device, err := h.deviceService.GetDevice(c.Request().Context(), c.Param("deviceId"))
	if err != nil {
		return handleServiceError(c, err)
	}
	return c.JSON(http.StatusOK, toDeviceResponse(device))
}

// UpdateDevice handles PUT /devices/:deviceId
func (h *DeviceHandler) UpdateDevice(c echo.Context) error {
	var req UpdateDeviceRequest
	if err := c.Bind(&req); err != nil {
		return NewValidationError(c, "Invalid request body", nil)
	}

	device, err := h.deviceService.UpdateUsername(c.Request().Context(), c.Param("deviceId"), req.Username)
	if err != nil {
		return handleServiceError(c, err)
	}
	return c.JSON(http.StatusOK, toDeviceResponse(device))
}

func toDeviceResponse(d *domain.Device) DeviceResponse {
	return DeviceResponse{
		ID:         d.ID,
		DeviceID:   d.DeviceID,
		Username:   d.Username,
		DeviceName: d.DeviceName,
		CreatedAt:  d.CreatedAt.Format(time.RFC3339),
		UpdatedAt:  d.UpdatedAt.Format(time.RFC3339),
	}
}
