package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/restaurant-pos/internal/model"
	"github.com/iliyamo/restaurant-pos/internal/repository"
)

const dateLayout = "2006-01-02"

// ListBills handles GET /v1/bills.
//
// Query: page, page_size, sort ("date" by default, "none" for insertion
// order), and the filters from, to (RFC 3339 or YYYY-MM-DD), method,
// status, table, min, max and q.  With any filter set the result is
// always newest first.
func (h *POSHandler) ListBills(c echo.Context) error {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	ps, _ := strconv.Atoi(c.QueryParam("page_size"))

	f, filtered, err := parseBillFilter(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	ctx := c.Request().Context()
	if filtered {
		return c.JSON(http.StatusOK, h.App.Bills.GetFilteredPaginatedBills(ctx, f, page, ps))
	}
	byDate := !strings.EqualFold(c.QueryParam("sort"), "none")
	return c.JSON(http.StatusOK, h.App.Bills.GetPaginatedBills(ctx, page, ps, byDate))
}

// BillsByDate handles GET /v1/bills/day/:date with date as YYYY-MM-DD in
// server local time.
func (h *POSHandler) BillsByDate(c echo.Context) error {
	day, err := time.ParseInLocation(dateLayout, c.Param("date"), time.Local)
	if err != nil {
		return badRequest(c, "date must be YYYY-MM-DD")
	}
	return c.JSON(http.StatusOK, echo.Map{"items": h.App.Bills.GetBillsByDate(c.Request().Context(), day)})
}

// ArchivedBills handles GET /v1/bills/archive.
func (h *POSHandler) ArchivedBills(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"items": h.App.Bills.GetArchivedBills(c.Request().Context())})
}

func parseBillFilter(c echo.Context) (repository.BillFilter, bool, error) {
	var f repository.BillFilter
	set := false
	if v := c.QueryParam("from"); v != "" {
		t, err := parseTime(v, false)
		if err != nil {
			return f, false, err
		}
		f.From, set = &t, true
	}
	if v := c.QueryParam("to"); v != "" {
		t, err := parseTime(v, true)
		if err != nil {
			return f, false, err
		}
		f.To, set = &t, true
	}
	if v := c.QueryParam("method"); v != "" {
		f.PaymentMethod, set = v, true
	}
	if v := c.QueryParam("status"); v != "" {
		f.Status, set = model.BillStatus(v), true
	}
	if v := c.QueryParam("table"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return f, false, errInvalidQuery("table")
		}
		f.TableNumber, set = n, true
	}
	for name, dst := range map[string]**float64{"min": &f.MinAmount, "max": &f.MaxAmount} {
		if v := c.QueryParam(name); v != "" {
			n, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return f, false, errInvalidQuery(name)
			}
			*dst, set = &n, true
		}
	}
	if v := strings.TrimSpace(c.QueryParam("q")); v != "" {
		f.Search, set = v, true
	}
	return f, set, nil
}

// parseTime accepts RFC 3339 or a bare date; a bare upper bound covers the
// whole day.
func parseTime(v string, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(dateLayout, v, time.Local)
	if err != nil {
		return time.Time{}, errInvalidQuery("date " + v)
	}
	if endOfDay {
		t = t.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	return t, nil
}

type errInvalidQuery string

func (e errInvalidQuery) Error() string { return "invalid " + string(e) }
