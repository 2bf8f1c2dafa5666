package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/restaurant-pos/internal/handler"
	"github.com/iliyamo/restaurant-pos/internal/middleware"
	"github.com/iliyamo/restaurant-pos/internal/utils"
)

// RegisterRoutes registers routes that do not require authentication.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterAuth exposes the PIN login under /v1/auth.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, mw ...echo.MiddlewareFunc) {
	g := e.Group("/v1/auth", mw...)
	g.POST("/login", a.Login)
}

// RegisterPOS registers the terminal endpoints.  They are open to any
// device on the restaurant network; mw (typically the rate limiter) wraps
// the whole group.
func RegisterPOS(e *echo.Echo, h *handler.POSHandler, mw ...echo.MiddlewareFunc) {
	g := e.Group("/v1", mw...)

	g.GET("/tables", h.ListTables)
	g.GET("/tables/:id", h.GetTable)
	g.PUT("/tables/:id", h.UpdateTable)
	g.POST("/tables/:id/reset", h.ResetTable)
	g.POST("/tables/:id/pay", h.PayTable)
	g.GET("/tables/:id/bills", h.TableBills)

	g.GET("/bills", h.ListBills)
	g.GET("/bills/archive", h.ArchivedBills)
	g.GET("/bills/day/:date", h.BillsByDate)

	g.GET("/menu/availability", h.MenuAvailability)
	g.PUT("/menu/availability", h.SaveMenuAvailability)
	g.GET("/menu/availability/:id", h.ItemAvailable)
	g.PATCH("/menu/availability/:id", h.UpdateItemAvailability)
	g.GET("/menu/custom", h.ListCustomItems)
	g.POST("/menu/custom", h.CreateCustomItem)
	g.PUT("/menu/custom/:id", h.UpdateCustomItem)
	g.DELETE("/menu/custom/:id", h.DeleteCustomItem)

	g.GET("/settings", h.GetSettings)
}

// RegisterManager registers the manager-only endpoints under /v1/manager.
// Every route requires a valid token carrying the manager role.
func RegisterManager(e *echo.Echo, h *handler.ManagerHandler, a *handler.AuthHandler, jwtSecret string, mw ...echo.MiddlewareFunc) {
	g := e.Group("/v1/manager", mw...)
	g.Use(middleware.JWTAuth(jwtSecret))
	g.Use(middleware.RequireRole(utils.RoleManager))

	g.PUT("/pin", a.ChangePIN)
	g.PUT("/settings", h.SaveSettings)

	g.DELETE("/bills", h.ClearBills)
	g.DELETE("/bills/:id", h.DeleteBill)

	g.POST("/tables/cleanup", h.CleanupTables)
	g.POST("/tables/reset", h.ResetTables)

	g.POST("/maintenance", h.Maintenance)
	g.POST("/flush", h.Flush)
	g.POST("/reset", h.Reset)
	g.GET("/stats", h.Stats)
}
