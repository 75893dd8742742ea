package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/practicedesk/console/internal/core/domain"
	"github.com/practicedesk/console/internal/core/ports"
)

// SessionGate is the session boundary plus the platform identity tokens are
// bound to.
type SessionGate interface {
	ports.SessionGate
	PlatformIdentity() domain.PlatformIdentity
}

type SessionHandler struct {
	gate   SessionGate
	tokens *TokenIssuer
}

func NewSessionHandler(gate SessionGate, tokens *TokenIssuer) *SessionHandler {
	return &SessionHandler{gate: gate, tokens: tokens}
}

// Status returns the session gate state.
//
// @Summary      Session status
// @Tags         session
// @Produce      json
// @Success      200  {object}  domain.SessionStatus
// @Router       /session [get]
func (h *SessionHandler) Status(c echo.Context) error {
	return c.JSON(http.StatusOK, h.gate.Status())
}

// Login authenticates a person and returns a bearer token.
//
// @Summary      Login
// @Tags         session
// @Accept       json
// @Produce      json
// @Param        body  body      loginRequest  true  "Login credentials"
// @Success      200   {object}  loginResponse
// @Failure      400   {object}  errorResponse
// @Failure      401   {object}  errorResponse
// @Failure      429   {object}  errorResponse
// @Failure      503   {object}  errorResponse
// @Router       /session/login [post]
func (h *SessionHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid payload"})
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	id, err := h.gate.Login(c.Request().Context(), req.Username, req.Password)
	if err != nil {
		return err
	}

	token, exp, err := h.tokens.Issue(id, h.gate.PlatformIdentity())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, loginResponse{Token: token, ExpiresAt: exp, Identity: id})
}

// Logout ends the application session.
//
// @Summary      Logout
// @Tags         session
// @Security     BearerAuth
// @Success      204
// @Failure      401  {object}  errorResponse
// @Router       /session/logout [post]
func (h *SessionHandler) Logout(c echo.Context) error {
	if _, err := ctxUsername(c); err != nil {
		return err
	}
	h.gate.Logout(c.Request().Context())
	return c.NoContent(http.StatusNoContent)
}

// Me returns the logged-in identity.
//
// @Summary      Current identity
// @Tags         session
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  domain.AppIdentity
// @Failure      401  {object}  errorResponse
// @Router       /session/me [get]
func (h *SessionHandler) Me(c echo.Context) error {
	id, ok := h.gate.Identity()
	if !ok {
		return domain.ErrNotLoggedIn
	}
	return c.JSON(http.StatusOK, id)
}
