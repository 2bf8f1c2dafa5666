package handler

import (
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/restaurant-pos/internal/model"
)

// MenuAvailability handles GET /v1/menu/availability.
func (h *POSHandler) MenuAvailability(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"items": h.App.Menu.GetMenuAvailability(c.Request().Context())})
}

// SaveMenuAvailability handles PUT /v1/menu/availability.  The body is an
// array of records; malformed entries are dropped and the number kept is
// reported.
func (h *POSHandler) SaveMenuAvailability(c echo.Context) error {
	var raw []json.RawMessage
	if err := json.NewDecoder(c.Request().Body).Decode(&raw); err != nil {
		return badRequest(c, "body must be a JSON array")
	}
	kept, err := h.App.Menu.SaveMenuAvailabilityRaw(c.Request().Context(), raw)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"saved": kept, "dropped": len(raw) - kept})
}

// UpdateItemAvailability handles PATCH /v1/menu/availability/:id with body
// {"available": bool}.  Items without a record are left alone and reported
// with updated=false.
func (h *POSHandler) UpdateItemAvailability(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	var body struct {
		Available *bool `json:"available"`
	}
	if err := c.Bind(&body); err != nil || body.Available == nil {
		return badRequest(c, "available is required")
	}
	updated, err := h.App.Menu.UpdateItemAvailability(c.Request().Context(), id, *body.Available)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"id": id, "updated": updated})
}

// ItemAvailable handles GET /v1/menu/availability/:id.
func (h *POSHandler) ItemAvailable(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	return c.JSON(http.StatusOK, echo.Map{"id": id, "available": h.App.Menu.IsItemAvailable(c.Request().Context(), id)})
}

// ListCustomItems handles GET /v1/menu/custom.
func (h *POSHandler) ListCustomItems(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"items": h.App.CustomMenu.GetCustomMenuItems(c.Request().Context())})
}

// CreateCustomItem handles POST /v1/menu/custom.  The id is assigned.
func (h *POSHandler) CreateCustomItem(c echo.Context) error {
	var item model.CustomMenuItem
	if err := c.Bind(&item); err != nil {
		return badRequest(c, "invalid request body")
	}
	created, err := h.App.CustomMenu.AddCustomMenuItem(c.Request().Context(), item)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, created)
}

// UpdateCustomItem handles PUT /v1/menu/custom/:id.
func (h *POSHandler) UpdateCustomItem(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	var item model.CustomMenuItem
	if err := c.Bind(&item); err != nil {
		return badRequest(c, "invalid request body")
	}
	item.ID = id
	if err := h.App.CustomMenu.UpdateCustomMenuItem(c.Request().Context(), item); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, item)
}

// DeleteCustomItem handles DELETE /v1/menu/custom/:id.
func (h *POSHandler) DeleteCustomItem(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	if err := h.App.CustomMenu.DeleteCustomMenuItem(c.Request().Context(), id); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// GetSettings handles GET /v1/settings.  The PIN hash never leaves the
// server.
func (h *POSHandler) GetSettings(c echo.Context) error {
	s := h.App.Settings.GetSettings(c.Request().Context())
	s.ManagerPINHash = ""
	return c.JSON(http.StatusOK, s)
}
