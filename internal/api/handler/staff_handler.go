package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/practicedesk/console/internal/core/domain"
	"github.com/practicedesk/console/internal/core/ports"
)

type StaffHandler struct {
	mirrors ports.Mirrors
}

func NewStaffHandler(mirrors ports.Mirrors) *StaffHandler {
	return &StaffHandler{mirrors: mirrors}
}

// List handles GET /staff. Secrets never leave the process.
//
// @Summary      List staff accounts
// @Tags         staff
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  listResponse[domain.StaffAccount]
// @Failure      403  {object}  errorResponse
// @Router       /staff [get]
func (h *StaffHandler) List(c echo.Context) error {
	version := h.mirrors.Version(domain.ScopeStaff)
	return c.JSON(http.StatusOK, newListResponse(version, h.mirrors.Staff(), h.mirrors.Err(domain.ScopeStaff)))
}
