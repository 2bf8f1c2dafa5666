package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/restaurant-pos/internal/model"
	"github.com/iliyamo/restaurant-pos/internal/pos"
)

// ListTables handles GET /v1/tables.
func (h *POSHandler) ListTables(c echo.Context) error {
	tables := h.App.Tables.GetTables(c.Request().Context())
	return c.JSON(http.StatusOK, echo.Map{"items": tables})
}

// GetTable handles GET /v1/tables/:id.
func (h *POSHandler) GetTable(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	t, err := h.App.Tables.GetTable(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, t)
}

// UpdateTable handles PUT /v1/tables/:id.  The body is the whole table;
// its id is taken from the path.  An order total is recomputed from its
// items.
func (h *POSHandler) UpdateTable(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	var t model.Table
	if err := c.Bind(&t); err != nil {
		return badRequest(c, "invalid request body")
	}
	t.ID = id
	if t.Order != nil {
		t.Order.Total = t.Order.ComputeTotal()
	}
	if err := h.App.Tables.UpdateTable(c.Request().Context(), t); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, t)
}

// ResetTable handles POST /v1/tables/:id/reset.
func (h *POSHandler) ResetTable(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	t, err := h.App.Tables.ResetTable(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, t)
}

// PayTable handles POST /v1/tables/:id/pay and returns the recorded bill.
func (h *POSHandler) PayTable(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	var p pos.Payment
	if err := c.Bind(&p); err != nil {
		return badRequest(c, "invalid request body")
	}
	switch p.Method {
	case model.PaymentCash, model.PaymentCard, model.PaymentCheck:
	default:
		return badRequest(c, "method must be cash, card or check")
	}
	switch p.Type {
	case "", model.PaymentTypeFull, model.PaymentTypeSplit, model.PaymentTypeItems:
	default:
		return badRequest(c, "type must be full, split or items")
	}
	b, err := h.App.CompletePayment(c.Request().Context(), id, p)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, b)
}

// TableBills handles GET /v1/tables/:id/bills.
func (h *POSHandler) TableBills(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	return c.JSON(http.StatusOK, echo.Map{"items": h.App.Bills.GetBillsForTable(c.Request().Context(), id)})
}
