package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/practicedesk/console/internal/core/domain"
	"github.com/practicedesk/console/internal/core/ports"
)

// ReportHandler serves the work log.
type ReportHandler struct {
	mirrors ports.Mirrors
	gateway ports.MutationGateway
}

func NewReportHandler(mirrors ports.Mirrors, gateway ports.MutationGateway) *ReportHandler {
	return &ReportHandler{mirrors: mirrors, gateway: gateway}
}

// List handles GET /reports, newest first.
//
// @Summary      List work-log entries
// @Tags         reports
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  listResponse[domain.WorkLogEntry]
// @Router       /reports [get]
func (h *ReportHandler) List(c echo.Context) error {
	version := h.mirrors.Version(domain.ScopeReports)
	return c.JSON(http.StatusOK, newListResponse(version, h.mirrors.Reports(), h.mirrors.Err(domain.ScopeReports)))
}

// Create handles POST /reports.
//
// @Summary      Log work
// @Tags         reports
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      createReportRequest  true  "Work-log entry"
// @Success      202   {object}  acceptedResponse
// @Failure      400   {object}  errorResponse
// @Router       /reports [post]
func (h *ReportHandler) Create(c echo.Context) error {
	var req createReportRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid payload"})
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	err := h.gateway.AddWorkLogEntry(c.Request().Context(), ports.WorkLogForm{
		ClientName:  req.ClientName,
		Hours:       req.Hours,
		Description: req.Description,
		Date:        req.Date,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, accepted)
}

// Delete handles DELETE /reports/:id?confirm=true.
//
// @Summary      Delete a work-log entry permanently
// @Tags         reports
// @Security     BearerAuth
// @Param        id       path      string  true  "Entry ID"
// @Param        confirm  query     bool    true  "Must be true"
// @Success      202      {object}  acceptedResponse
// @Failure      428      {object}  errorResponse
// @Router       /reports/{id} [delete]
func (h *ReportHandler) Delete(c echo.Context) error {
	return deleteConfirmed(c, h.gateway, domain.ScopeReports)
}
