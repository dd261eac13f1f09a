package handler

import (
	"context"
	"net/http"

	"github.com/kthezelais/budget-tracker/internal/backup"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// LedgerExporter uploads a snapshot of the ledger
type LedgerExporter interface {
	Export(ctx context.Context) (*backup.Result, error)
}

// BackupHandler handles ledger backup requests
type BackupHandler struct {
	exporter LedgerExporter
}

// NewBackupHandler creates a new BackupHandler. A nil exporter disables backups.
func NewBackupHandler(exporter LedgerExporter) *BackupHandler {
	return &BackupHandler{exporter: exporter}
}

// CreateBackup handles POST /backups
func (h *BackupHandler) CreateBackup(c echo.Context) error {
	if h.exporter == nil {
		return NewNotImplementedError(c, "Backups are not configured on this server")
	}

	result, err := h.exporter.Export(c.Request().Context())
	if err != nil {
		log.Error().Err(err).Msg("Ledger backup failed")
		return NewInternalError(c, "Backup failed")
	}
	return c.JSON(http.StatusCreated, result)
}
