package handler

import (
	"net/http"
	"time"

	"gestoria/internal/middleware"
	"gestoria/internal/model"
	"gestoria/internal/service"
	"gestoria/pkg/pagination"
	"gestoria/pkg/response"

	"github.com/gin-gonic/gin"
)

type ObligationHandler struct {
	obligations service.ObligationService
	guards      Guards
	now         func() time.Time
}

func NewObligationHandler(obligations service.ObligationService, guards Guards) *ObligationHandler {
	return &ObligationHandler{obligations: obligations, guards: guards, now: time.Now}
}

func (h *ObligationHandler) RegisterRoutes(router *gin.RouterGroup) {
	auth := h.guards.Auth
	read := auth.RequirePermission("obligations.read")
	write := auth.RequirePermission("obligations.write")

	g := router.Group("/tax-obligations")
	{
		g.GET("", read, h.ListFilings)
		g.GET("/due", read, h.DueReport)
		g.GET("/stats", read, h.Stats)
		g.POST("/generate-auto", write, h.GenerateAuto)
		g.POST("/generate-period/:calendarId", write, h.GenerateForPeriod)
		g.POST("/generate-client/:clientId", write, h.GenerateForClient)
		g.POST("/mark-overdue", h.guards.Limits.Strict.Handler(), auth.RequireOwnerOrRole(model.RoleAdmin), h.MarkOverdue)
		g.GET("/:id", read, h.GetFiling)
		g.PUT("/:id", write, h.UpdateFiling)
		g.POST("/:id/complete", write, h.CompleteFiling)
	}
}

// DueReport lists the active assignments with an open period in ?year=
// @Summary      Due obligations
// @Description  Matches each active assignment against open calendar entries whose period label fits its periodicity
// @Tags         tax-obligations
// @Produce      json
// @Security     BearerAuth
// @Param        year  query     int  false  "Fiscal year (default current)"
// @Success      200   {object}  response.Response{data=tax.FilterReport}
// @Failure      400   {object}  response.Response
// @Router       /api/tax-obligations/due [get]
func (h *ObligationHandler) DueReport(c *gin.Context) {
	year, valid := queryYear(c, h.now().Year())
	if !valid {
		return
	}
	report, err := h.obligations.DueReport(c.Request.Context(), year)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, report)
}

// ListFilings handles GET /tax-obligations
// @Summary      List filings
// @Tags         tax-obligations
// @Produce      json
// @Security     BearerAuth
// @Param        client_id   query     string  false  "Client ID"
// @Param        year        query     int     false  "Year"
// @Param        status      query     string  false  "PENDING, IN_PROGRESS, COMPLETED or OVERDUE"
// @Param        model_code  query     string  false  "Tax model code"
// @Param        page        query     int     false  "Page"
// @Param        limit       query     int     false  "Limit"
// @Success      200         {object}  response.Response{data=response.Page}
// @Router       /api/tax-obligations [get]
func (h *ObligationHandler) ListFilings(c *gin.Context) {
	var q service.FilingListQuery
	if !bindQuery(c, &q) {
		return
	}
	p := pagination.Parse(c)

	filings, total, err := h.obligations.ListFilings(c.Request.Context(), q, p.Page, p.Limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Paginated(http.StatusOK, filings, total, p.Page, p.Limit))
}

func (h *ObligationHandler) GetFiling(c *gin.Context) {
	f, err := h.obligations.GetFiling(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, f)
}

func (h *ObligationHandler) UpdateFiling(c *gin.Context) {
	var req service.UpdateFilingRequest
	if !bindJSON(c, &req) {
		return
	}
	f, err := h.obligations.UpdateFiling(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, f)
}

// CompleteFiling marks a filing as presented
// @Summary      Complete filing
// @Tags         tax-obligations
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                         true  "Filing ID"
// @Param        payload  body      service.CompleteFilingRequest  false "Amount and notes"
// @Success      200      {object}  response.Response{data=service.FilingResponse}
// @Failure      409      {object}  response.Response
// @Router       /api/tax-obligations/{id}/complete [post]
func (h *ObligationHandler) CompleteFiling(c *gin.Context) {
	var req service.CompleteFilingRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}
	f, err := h.obligations.CompleteFiling(c.Request.Context(), c.Param("id"), req, middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, f)
}

// GenerateAuto creates filings for every due assignment
func (h *ObligationHandler) GenerateAuto(c *gin.Context) {
	res, err := h.obligations.GenerateAuto(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, res)
}

func (h *ObligationHandler) GenerateForPeriod(c *gin.Context) {
	res, err := h.obligations.GenerateForPeriod(c.Request.Context(), c.Param("calendarId"))
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, res)
}

func (h *ObligationHandler) GenerateForClient(c *gin.Context) {
	res, err := h.obligations.GenerateForClient(c.Request.Context(), c.Param("clientId"))
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, res)
}

// MarkOverdue flags open filings past their due date
// @Summary      Mark overdue filings
// @Tags         tax-obligations
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Response
// @Failure      403  {object}  response.Response
// @Failure      429  {object}  response.RateLimited
// @Router       /api/tax-obligations/mark-overdue [post]
func (h *ObligationHandler) MarkOverdue(c *gin.Context) {
	n, err := h.obligations.MarkOverdue(c.Request.Context(), h.now())
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, gin.H{"updated": n})
}

// Stats counts filings by status, optionally for one ?client_id=
func (h *ObligationHandler) Stats(c *gin.Context) {
	stats, err := h.obligations.Stats(c.Request.Context(), c.Query("client_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, stats)
}
