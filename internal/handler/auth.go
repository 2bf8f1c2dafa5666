package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/restaurant-pos/internal/repository"
	"github.com/iliyamo/restaurant-pos/internal/utils"
)

// AuthHandler exchanges the manager PIN for a short-lived manager token.
type AuthHandler struct {
	Settings  *repository.SettingsRepo
	JWTSecret string
	TTLMin    int
}

func NewAuthHandler(settings *repository.SettingsRepo, secret string, ttlMin int) *AuthHandler {
	return &AuthHandler{Settings: settings, JWTSecret: secret, TTLMin: ttlMin}
}

type loginReq struct {
	PIN string `json:"pin"`
}

type loginResp struct {
	Role   string            `json:"role"`
	Access utils.AccessToken `json:"access"`
}

// Login handles POST /v1/auth/login.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	pin := strings.TrimSpace(req.PIN)
	if pin == "" {
		return badRequest(c, "pin is required")
	}
	if err := h.Settings.VerifyManagerPIN(c.Request().Context(), pin); err != nil {
		if errors.Is(err, repository.ErrInvalidPIN) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid pin"})
		}
		return respondError(c, err)
	}
	tok, err := utils.NewAccessToken(h.JWTSecret, utils.RoleManager, h.TTLMin)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not issue token"})
	}
	return c.JSON(http.StatusOK, loginResp{Role: utils.RoleManager, Access: tok})
}

// ChangePIN handles PUT /v1/manager/pin.  The current PIN must be given
// again even though the caller already holds a manager token.
func (h *AuthHandler) ChangePIN(c echo.Context) error {
	var req struct {
		Current string `json:"current_pin"`
		New     string `json:"new_pin"`
	}
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	ctx := c.Request().Context()
	if err := h.Settings.VerifyManagerPIN(ctx, req.Current); err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid pin"})
	}
	if err := h.Settings.SetManagerPIN(ctx, req.New); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
