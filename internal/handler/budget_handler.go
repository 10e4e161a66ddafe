package handler

import (
	"fmt"
	"net/http"
	"time"

	"gestoria/internal/middleware"
	"gestoria/internal/model"
	"gestoria/internal/service"
	"gestoria/pkg/pagination"
	"gestoria/pkg/response"

	"github.com/gin-gonic/gin"
)

type BudgetHandler struct {
	budgets service.BudgetService
	pricing service.BudgetConfigService
	guards  Guards
	now     func() time.Time
}

func NewBudgetHandler(budgets service.BudgetService, pricing service.BudgetConfigService, guards Guards) *BudgetHandler {
	return &BudgetHandler{budgets: budgets, pricing: pricing, guards: guards, now: time.Now}
}

func (h *BudgetHandler) RegisterRoutes(router *gin.RouterGroup) {
	auth := h.guards.Auth
	read := auth.RequirePermission("budgets.read")
	write := auth.RequirePermission("budgets.write")

	b := router.Group("/budgets")
	{
		b.GET("", read, h.ListBudgets)
		b.GET("/stats", read, h.Stats)
		b.POST("/calculate", read, h.Calculate)
		b.POST("", write, h.CreateBudget)
		b.GET("/:id", read, h.GetBudget)
		b.PUT("/:id", write, h.UpdateBudget)
		b.DELETE("/:id", auth.RequirePermission("budgets.delete"), h.DeleteBudget)
		b.POST("/:id/recalculate", write, h.Recalculate)
		b.POST("/:id/send", write, h.Send)
		b.POST("/:id/accept", write, h.Accept)
		b.POST("/:id/reject", write, h.Reject)
		b.POST("/:id/convert", write, auth.RequirePermission("clients.write"), h.Convert)
		b.GET("/:id/pdf", read, h.PDF)
	}

	cfg := router.Group("/budget-config")
	{
		cfg.GET("/:type", read, h.GetConfig)
		cfg.PUT("/:type",
			h.guards.Limits.Strict.Handler(),
			auth.RequireOwnerOrRole(model.RoleAdmin),
			auth.RequirePermission("budget_config.manage"),
			h.UpdateConfig)
	}
}

// Calculate prices a budget without saving it
// @Summary      Calculate budget
// @Description  Runs the pricing engine against the active tariff for the budget type
// @Tags         budgets
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.BudgetInput  true  "Inputs"
// @Success      200      {object}  response.Response{data=budget.Result}
// @Failure      400      {object}  response.Response
// @Router       /api/budgets/calculate [post]
func (h *BudgetHandler) Calculate(c *gin.Context) {
	var in service.BudgetInput
	if !bindJSON(c, &in) {
		return
	}
	res, err := h.budgets.Calculate(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, res)
}

// CreateBudget stores a draft budget numbered PRE-<year>-<seq>
// @Summary      Create budget
// @Tags         budgets
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.BudgetRequest  true  "Budget"
// @Success      201      {object}  response.Response{data=service.BudgetResponse}
// @Failure      400      {object}  response.Response
// @Router       /api/budgets [post]
func (h *BudgetHandler) CreateBudget(c *gin.Context) {
	var req service.BudgetRequest
	if !bindJSON(c, &req) {
		return
	}
	b, err := h.budgets.CreateBudget(c.Request.Context(), req, middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	created(c, b)
}

// ListBudgets handles GET /budgets
// @Summary      List budgets
// @Tags         budgets
// @Produce      json
// @Security     BearerAuth
// @Param        status  query     string  false  "BORRADOR, ENVIADO, ACEPTADO or RECHAZADO"
// @Param        type    query     string  false  "AUTONOMO or EMPRESA"
// @Param        year    query     int     false  "Year"
// @Param        search  query     string  false  "Prospect name, NIF or number"
// @Param        page    query     int     false  "Page"
// @Param        limit   query     int     false  "Limit"
// @Success      200     {object}  response.Response{data=response.Page}
// @Router       /api/budgets [get]
func (h *BudgetHandler) ListBudgets(c *gin.Context) {
	var q service.BudgetListQuery
	if !bindQuery(c, &q) {
		return
	}
	p := pagination.Parse(c)

	list, total, err := h.budgets.ListBudgets(c.Request.Context(), q, p.Page, p.Limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Paginated(http.StatusOK, list, total, p.Page, p.Limit))
}

func (h *BudgetHandler) GetBudget(c *gin.Context) {
	b, err := h.budgets.GetBudget(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, b)
}

// UpdateBudget edits and reprices a draft or sent budget
func (h *BudgetHandler) UpdateBudget(c *gin.Context) {
	var req service.BudgetRequest
	if !bindJSON(c, &req) {
		return
	}
	b, err := h.budgets.UpdateBudget(c.Request.Context(), c.Param("id"), req, middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, b)
}

func (h *BudgetHandler) Recalculate(c *gin.Context) {
	b, err := h.budgets.Recalculate(c.Request.Context(), c.Param("id"), middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, b)
}

func (h *BudgetHandler) DeleteBudget(c *gin.Context) {
	if err := h.budgets.DeleteBudget(c.Request.Context(), c.Param("id"), middleware.UserID(c)); err != nil {
		respondError(c, err)
		return
	}
	message(c, "Budget deleted successfully")
}

func (h *BudgetHandler) Send(c *gin.Context) {
	b, err := h.budgets.Send(c.Request.Context(), c.Param("id"), middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, b)
}

func (h *BudgetHandler) Accept(c *gin.Context) {
	b, err := h.budgets.Accept(c.Request.Context(), c.Param("id"), middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, b)
}

func (h *BudgetHandler) Reject(c *gin.Context) {
	var req service.RejectBudgetRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}
	b, err := h.budgets.Reject(c.Request.Context(), c.Param("id"), req.Reason, middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, b)
}

// Convert turns an accepted budget into a client with its tax model assignments
// @Summary      Convert budget to client
// @Tags         budgets
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Budget ID"
// @Success      200  {object}  response.Response{data=service.ConvertBudgetResponse}
// @Failure      400  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Router       /api/budgets/{id}/convert [post]
func (h *BudgetHandler) Convert(c *gin.Context) {
	res, err := h.budgets.Convert(c.Request.Context(), c.Param("id"), middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, res)
}

// PDF streams the budget document
func (h *BudgetHandler) PDF(c *gin.Context) {
	doc, name, err := h.budgets.PDF(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Data(http.StatusOK, "application/pdf", doc)
}

// Stats summarises budgets of ?year= (default current)
func (h *BudgetHandler) Stats(c *gin.Context) {
	year, valid := queryYear(c, h.now().Year())
	if !valid {
		return
	}
	stats, err := h.budgets.Stats(c.Request.Context(), year)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, stats)
}

// GetConfig returns the tariff for AUTONOMO or EMPRESA
func (h *BudgetHandler) GetConfig(c *gin.Context) {
	cfg, err := h.pricing.GetConfig(c.Request.Context(), c.Param("type"))
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, cfg)
}

// UpdateConfig replaces the whole tariff of one budget type
// @Summary      Update budget tariff
// @Tags         budget-config
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        type     path      string                    true  "AUTONOMO or EMPRESA"
// @Param        payload  body      service.PricingConfigDTO  true  "Tariff"
// @Success      200      {object}  response.Response{data=service.PricingConfigDTO}
// @Failure      400      {object}  response.Response
// @Failure      403      {object}  response.Response
// @Failure      429      {object}  response.RateLimited
// @Router       /api/budget-config/{type} [put]
func (h *BudgetHandler) UpdateConfig(c *gin.Context) {
	var req service.PricingConfigDTO
	if !bindJSON(c, &req) {
		return
	}
	cfg, err := h.pricing.UpdateConfig(c.Request.Context(), c.Param("type"), req, middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, cfg)
}
