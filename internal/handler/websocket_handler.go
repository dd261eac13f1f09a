package handler

import (
	"net/http"

	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"
	"github.com/kthezelais/budget-tracker/internal/middleware"
	"github.com/kthezelais/budget-tracker/internal/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// WebSocketHandler upgrades authenticated requests into change-event streams
type WebSocketHandler struct {
	hub            *websocket.Hub
	allowedOrigins map[string]bool
	allowAll       bool
	upgrader       ws.Upgrader
}

// NewWebSocketHandler creates a new WebSocketHandler. An origin of "*" allows any origin.
func NewWebSocketHandler(hub *websocket.Hub, allowedOrigins []string) *WebSocketHandler {
	h := &WebSocketHandler{
		hub:            hub,
		allowedOrigins: make(map[string]bool),
	}
	for _, origin := range allowedOrigins {
		if origin == "*" {
			h.allowAll = true
		}
		h.allowedOrigins[origin] = true
	}

	h.upgrader = ws.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// checkOrigin validates the request origin against allowed origins
func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	// Non-browser clients send no Origin header
	if origin == "" || h.allowAll || h.allowedOrigins[origin] {
		return true
	}

	log.Warn().
		Str("origin", origin).
		Msg("WebSocket connection rejected: origin not allowed")
	return false
}

// HandleWS handles GET /ws. Authentication is done by the API key middleware.
func (h *WebSocketHandler) HandleWS(c echo.Context) error {
	if !c.IsWebSocket() {
		return NewValidationError(c, "WebSocket upgrade required", nil)
	}

	deviceID := middleware.GetDeviceID(c)
	if deviceID == "" {
		deviceID = "anonymous-" + uuid.NewString()[:8]
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		log.Error().Err(err).Msg("WebSocket upgrade failed")
		return err
	}

	client := websocket.NewClient(conn, deviceID, h.hub)

	log.Info().
		Str("device_id", deviceID).
		Str("client_id", client.ID()).
		Msg("WebSocket client connected")

	go client.Serve()

	return nil
}
