package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/restaurant-pos/internal/pos"
	"github.com/iliyamo/restaurant-pos/internal/repository"
	"github.com/iliyamo/restaurant-pos/internal/storage"
)

// POSHandler serves the floor, bill and menu endpoints used by the
// terminals.  Manager-only operations live on ManagerHandler.
type POSHandler struct {
	App *pos.App
}

// NewPOSHandler panics when app is nil.
func NewPOSHandler(app *pos.App) *POSHandler {
	if app == nil {
		panic("nil app passed to NewPOSHandler")
	}
	return &POSHandler{App: app}
}

// pathID parses the numeric path parameter name.
func pathID(c echo.Context, name string) (int, error) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id <= 0 {
		return 0, errors.New("invalid " + name)
	}
	return id, nil
}

// respondError maps domain errors onto HTTP statuses.
func respondError(c echo.Context, err error) error {
	status, msg := http.StatusInternalServerError, "internal error"
	switch {
	case errors.Is(err, repository.ErrTableNotFound):
		status, msg = http.StatusNotFound, "table not found"
	case errors.Is(err, repository.ErrBillNotFound):
		status, msg = http.StatusNotFound, "bill not found"
	case errors.Is(err, repository.ErrMenuItemNotFound):
		status, msg = http.StatusNotFound, "menu item not found"
	case errors.Is(err, repository.ErrInvalidTable):
		status, msg = http.StatusBadRequest, "invalid table"
	case errors.Is(err, repository.ErrInvalidMenuItem):
		status, msg = http.StatusBadRequest, "invalid menu item"
	case errors.Is(err, repository.ErrInvalidPIN):
		status, msg = http.StatusBadRequest, "invalid pin"
	case errors.Is(err, pos.ErrItemNotInOrder):
		status, msg = http.StatusBadRequest, "paid item not in order"
	case errors.Is(err, pos.ErrNoOrder):
		status, msg = http.StatusConflict, "table has no open order"
	case errors.Is(err, storage.ErrClosed):
		status, msg = http.StatusServiceUnavailable, "storage closed"
	}
	if status == http.StatusInternalServerError {
		c.Logger().Errorf("request failed: %v", err)
	}
	return c.JSON(status, echo.Map{"error": msg})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
}
