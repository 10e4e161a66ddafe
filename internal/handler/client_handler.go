package handler

import (
	"net/http"

	"gestoria/internal/middleware"
	"gestoria/internal/service"
	"gestoria/pkg/pagination"
	"gestoria/pkg/response"

	"github.com/gin-gonic/gin"
)

type ClientHandler struct {
	clients     service.ClientService
	assignments service.ClientTaxService
	guards      Guards
}

func NewClientHandler(clients service.ClientService, assignments service.ClientTaxService, guards Guards) *ClientHandler {
	return &ClientHandler{clients: clients, assignments: assignments, guards: guards}
}

func (h *ClientHandler) RegisterRoutes(router *gin.RouterGroup) {
	auth := h.guards.Auth

	clients := router.Group("/clients")
	{
		clients.GET("", auth.RequirePermission("clients.read"), h.ListClients)
		clients.GET("/:id", auth.RequirePermission("clients.read"), h.GetClient)
		clients.GET("/:id/tax-models", auth.RequirePermission("clients.read"), h.ListClientAssignments)
		clients.POST("", auth.RequirePermission("clients.write"), h.CreateClient)
		clients.PUT("/:id", auth.RequirePermission("clients.write"), h.UpdateClient)
		clients.DELETE("/:id", auth.RequirePermission("clients.delete"), h.DeleteClient)
	}

	assign := router.Group("/client-tax")
	{
		assign.GET("", auth.RequirePermission("clients.read"), h.ListAssignments)
		assign.GET("/:id", auth.RequirePermission("clients.read"), h.GetAssignment)
		assign.POST("", auth.RequirePermission("clients.write"), h.CreateAssignment)
		assign.PUT("/:id", auth.RequirePermission("clients.write"), h.UpdateAssignment)
		assign.PATCH("/:id/toggle", auth.RequirePermission("clients.write"), h.ToggleAssignment)
		assign.DELETE("/:id", auth.RequirePermission("clients.write"), h.DeleteAssignment)
	}
}

// ListClients handles GET /clients
// @Summary      List clients
// @Description  Search matches business name, NIF/CIF or email ignoring accents and case
// @Tags         clients
// @Produce      json
// @Security     BearerAuth
// @Param        search  query     string  false  "Free text"
// @Param        type    query     string  false  "AUTONOMO, EMPRESA or PARTICULAR"
// @Param        active  query     bool    false  "Only active or inactive"
// @Param        page    query     int     false  "Page number (default 1)"
// @Param        limit   query     int     false  "Items per page (default 20)"
// @Success      200     {object}  response.Response{data=response.Page}
// @Router       /api/clients [get]
func (h *ClientHandler) ListClients(c *gin.Context) {
	var q service.ClientListQuery
	if !bindQuery(c, &q) {
		return
	}
	p := pagination.Parse(c)

	clients, total, err := h.clients.ListClients(c.Request.Context(), q, p.Page, p.Limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Paginated(http.StatusOK, clients, total, p.Page, p.Limit))
}

// GetClient handles GET /clients/:id, including the client's tax model assignments
// @Summary      Get client
// @Tags         clients
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Client ID"
// @Success      200  {object}  response.Response{data=service.ClientResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/clients/{id} [get]
func (h *ClientHandler) GetClient(c *gin.Context) {
	client, err := h.clients.GetClient(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, client)
}

// CreateClient handles POST /clients
// @Summary      Create client
// @Tags         clients
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.CreateClientRequest  true  "Client"
// @Success      201      {object}  response.Response{data=service.ClientResponse}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/clients [post]
func (h *ClientHandler) CreateClient(c *gin.Context) {
	var req service.CreateClientRequest
	if !bindJSON(c, &req) {
		return
	}
	client, err := h.clients.CreateClient(c.Request.Context(), req, middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	created(c, client)
}

// UpdateClient handles PUT /clients/:id
// @Summary      Update client
// @Tags         clients
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                       true  "Client ID"
// @Param        payload  body      service.UpdateClientRequest  true  "Changes"
// @Success      200      {object}  response.Response{data=service.ClientResponse}
// @Failure      409      {object}  response.Response
// @Router       /api/clients/{id} [put]
func (h *ClientHandler) UpdateClient(c *gin.Context) {
	var req service.UpdateClientRequest
	if !bindJSON(c, &req) {
		return
	}
	client, err := h.clients.UpdateClient(c.Request.Context(), c.Param("id"), req, middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, client)
}

// DeleteClient handles DELETE /clients/:id
// @Summary      Delete client
// @Tags         clients
// @Security     BearerAuth
// @Param        id   path      string  true  "Client ID"
// @Success      200  {object}  response.Response
// @Router       /api/clients/{id} [delete]
func (h *ClientHandler) DeleteClient(c *gin.Context) {
	if err := h.clients.DeleteClient(c.Request.Context(), c.Param("id"), middleware.UserID(c)); err != nil {
		respondError(c, err)
		return
	}
	message(c, "Client deleted successfully")
}

// ListClientAssignments handles GET /clients/:id/tax-models
func (h *ClientHandler) ListClientAssignments(c *gin.Context) {
	list, err := h.assignments.ListByClient(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, list)
}

// ListAssignments handles GET /client-tax?client_id=
func (h *ClientHandler) ListAssignments(c *gin.Context) {
	clientID := c.Query("client_id")
	if clientID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "client_id is required"))
		return
	}
	list, err := h.assignments.ListByClient(c.Request.Context(), clientID)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, list)
}

func (h *ClientHandler) GetAssignment(c *gin.Context) {
	a, err := h.assignments.GetAssignment(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, a)
}

// CreateAssignment handles POST /client-tax. Filings for already open
// periods are generated immediately.
// @Summary      Assign a tax model to a client
// @Tags         client-tax
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.CreateAssignmentRequest  true  "Assignment"
// @Success      201      {object}  response.Response{data=service.AssignmentResponse}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/client-tax [post]
func (h *ClientHandler) CreateAssignment(c *gin.Context) {
	var req service.CreateAssignmentRequest
	if !bindJSON(c, &req) {
		return
	}
	a, err := h.assignments.CreateAssignment(c.Request.Context(), req, middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	created(c, a)
}

func (h *ClientHandler) UpdateAssignment(c *gin.Context) {
	var req service.UpdateAssignmentRequest
	if !bindJSON(c, &req) {
		return
	}
	a, err := h.assignments.UpdateAssignment(c.Request.Context(), c.Param("id"), req, middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, a)
}

// ToggleAssignment handles PATCH /client-tax/:id/toggle
func (h *ClientHandler) ToggleAssignment(c *gin.Context) {
	a, err := h.assignments.ToggleAssignment(c.Request.Context(), c.Param("id"), middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, a)
}

func (h *ClientHandler) DeleteAssignment(c *gin.Context) {
	if err := h.assignments.DeleteAssignment(c.Request.Context(), c.Param("id"), middleware.UserID(c)); err != nil {
		respondError(c, err)
		return
	}
	message(c, "Assignment closed")
}
