package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/practicedesk/console/internal/core/domain"
	"github.com/practicedesk/console/internal/core/ports"
)

const defaultChangesWait = 25 * time.Second

// ChangesHandler lets a shell long-poll a mirror instead of re-reading it.
type ChangesHandler struct {
	mirrors ports.Mirrors
	maxWait time.Duration
}

func NewChangesHandler(mirrors ports.Mirrors, maxWait time.Duration) *ChangesHandler {
	if maxWait <= 0 {
		maxWait = defaultChangesWait
	}
	return &ChangesHandler{mirrors: mirrors, maxWait: maxWait}
}

// Wait handles GET /changes?scope=clients&since=7. It answers as soon as the
// scope's version differs from since, or with changed=false once the wait
// expires. Without since it answers immediately.
//
// @Summary      Wait for a mirror to change
// @Tags         changes
// @Produce      json
// @Security     BearerAuth
// @Param        scope  query     string  true   "staff, clients or reports"
// @Param        since  query     int     false  "Last version seen"
// @Success      200    {object}  changesResponse
// @Failure      400    {object}  errorResponse
// @Failure      403    {object}  errorResponse
// @Router       /changes [get]
func (h *ChangesHandler) Wait(c echo.Context) error {
	scope, err := domain.ParseScope(c.QueryParam("scope"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	}
	if scope == domain.ScopeStaff {
		if role, _ := c.Get("role").(string); domain.Role(role) != domain.RoleAdministrator {
			return c.JSON(http.StatusForbidden, errorResponse{Error: "forbidden"})
		}
	}

	raw := c.QueryParam("since")
	if raw == "" {
		return c.JSON(http.StatusOK, changesResponse{Scope: scope, Version: h.mirrors.Version(scope)})
	}
	since, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "since must be a version number"})
	}

	timer := time.NewTimer(h.maxWait)
	defer timer.Stop()
	ctx := c.Request().Context()

	for {
		changed := h.mirrors.Changed(scope)
		if v := h.mirrors.Version(scope); v != since {
			return c.JSON(http.StatusOK, changesResponse{Scope: scope, Version: v, Changed: true})
		}
		select {
		case <-changed:
		case <-timer.C:
			return c.JSON(http.StatusOK, changesResponse{Scope: scope, Version: since})
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
