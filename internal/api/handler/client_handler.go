package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/practicedesk/console/internal/core/domain"
	"github.com/practicedesk/console/internal/core/ports"
)

// ClientHandler serves the clients mirror and the client mutations.
type ClientHandler struct {
	mirrors  ports.Mirrors
	gateway  ports.MutationGateway
	currency string
}

func NewClientHandler(mirrors ports.Mirrors, gateway ports.MutationGateway, currency string) *ClientHandler {
	return &ClientHandler{mirrors: mirrors, gateway: gateway, currency: currency}
}

// List handles GET /clients.
//
// @Summary      List clients with their current risk
// @Tags         clients
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  listResponse[clientView]
// @Failure      401  {object}  errorResponse
// @Router       /clients [get]
func (h *ClientHandler) List(c echo.Context) error {
	version := h.mirrors.Version(domain.ScopeClients)
	clients := h.mirrors.Clients()
	views := make([]clientView, 0, len(clients))
	for _, cl := range clients {
		views = append(views, clientView{
			Client:     cl,
			FeeDisplay: cl.FeeDisplay(h.currency),
			Risk:       cl.Risk(),
		})
	}
	return c.JSON(http.StatusOK, newListResponse(version, views, h.mirrors.Err(domain.ScopeClients)))
}

// Create handles POST /clients. The new client appears in the next snapshot.
//
// @Summary      Register a client
// @Tags         clients
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      createClientRequest  true  "Client details"
// @Success      202   {object}  acceptedResponse
// @Failure      400   {object}  errorResponse
// @Failure      401   {object}  errorResponse
// @Router       /clients [post]
func (h *ClientHandler) Create(c echo.Context) error {
	var req createClientRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid payload"})
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	err := h.gateway.AddClient(c.Request().Context(), ports.ClientForm{
		Name:       req.Name,
		TaxID:      req.TaxID,
		MonthlyFee: req.MonthlyFee,
		Sector:     req.Sector,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, accepted)
}

// Declare handles POST /clients/:id/declare.
//
// @Summary      Mark a client as declared
// @Tags         clients
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Client ID"
// @Success      202  {object}  acceptedResponse
// @Failure      401  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Failure      422  {object}  errorResponse
// @Router       /clients/{id}/declare [post]
func (h *ClientHandler) Declare(c echo.Context) error {
	if err := h.gateway.MarkDeclared(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, accepted)
}

// Delete handles DELETE /clients/:id?confirm=true.
//
// @Summary      Delete a client permanently
// @Tags         clients
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string  true  "Client ID"
// @Param        confirm  query     bool    true  "Must be true"
// @Success      202      {object}  acceptedResponse
// @Failure      404      {object}  errorResponse
// @Failure      428      {object}  errorResponse
// @Router       /clients/{id} [delete]
func (h *ClientHandler) Delete(c echo.Context) error {
	return deleteConfirmed(c, h.gateway, domain.ScopeClients)
}

// deleteConfirmed refuses permanent deletion unless the caller confirmed it.
func deleteConfirmed(c echo.Context, gateway ports.MutationGateway, kind domain.Scope) error {
	if c.QueryParam("confirm") != "true" {
		return c.JSON(http.StatusPreconditionRequired, errorResponse{Error: "deletion is permanent; repeat with confirm=true"})
	}
	if err := gateway.DeleteRecord(c.Request().Context(), kind, c.Param("id")); err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, accepted)
}
