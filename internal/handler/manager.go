package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/restaurant-pos/internal/model"
	"github.com/iliyamo/restaurant-pos/internal/pos"
)

// ManagerHandler serves the operations that need a manager token:
// destructive bill edits, settings, maintenance and resets.
type ManagerHandler struct {
	App *pos.App
}

// NewManagerHandler panics when app is nil.
func NewManagerHandler(app *pos.App) *ManagerHandler {
	if app == nil {
		panic("nil app passed to NewManagerHandler")
	}
	return &ManagerHandler{App: app}
}

// DeleteBill handles DELETE /v1/manager/bills/:id.
func (h *ManagerHandler) DeleteBill(c echo.Context) error {
	if err := h.App.Bills.DeleteBill(c.Request().Context(), c.Param("id")); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ClearBills handles DELETE /v1/manager/bills.  The archive is kept.
func (h *ManagerHandler) ClearBills(c echo.Context) error {
	if err := h.App.Bills.ClearAllBills(c.Request().Context()); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// SaveSettings handles PUT /v1/manager/settings.
func (h *ManagerHandler) SaveSettings(c echo.Context) error {
	var s model.Settings
	if err := c.Bind(&s); err != nil {
		return badRequest(c, "invalid request body")
	}
	if s.TaxRate < 0 || s.TaxRate > 1 {
		return badRequest(c, "tax rate must be between 0 and 1")
	}
	saved, err := h.App.Settings.SaveSettings(c.Request().Context(), s)
	if err != nil {
		return respondError(c, err)
	}
	saved.ManagerPINHash = ""
	return c.JSON(http.StatusOK, saved)
}

// CleanupTables handles POST /v1/manager/tables/cleanup.
func (h *ManagerHandler) CleanupTables(c echo.Context) error {
	n, err := h.App.Tables.CleanupOrphanedTableData(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"fixed": n})
}

// ResetTables handles POST /v1/manager/tables/reset.
func (h *ManagerHandler) ResetTables(c echo.Context) error {
	tables, err := h.App.Tables.ResetAllTables(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": tables})
}

// Maintenance handles POST /v1/manager/maintenance.
func (h *ManagerHandler) Maintenance(c echo.Context) error {
	if err := h.App.PerformMaintenance(c.Request().Context()); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Reset handles POST /v1/manager/reset.  Every transactional collection
// is wiped; tables, menu and settings survive.
func (h *ManagerHandler) Reset(c echo.Context) error {
	if err := h.App.ResetApplicationData(c.Request().Context()); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Flush handles POST /v1/manager/flush.
func (h *ManagerHandler) Flush(c echo.Context) error {
	if err := h.App.Storage.FlushPendingWrites(c.Request().Context()); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Stats handles GET /v1/manager/stats.
func (h *ManagerHandler) Stats(c echo.Context) error {
	st, err := h.App.Stats(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, st)
}
