package handler

import (
	"gestoria/internal/middleware"
	"gestoria/internal/service"

	"github.com/gin-gonic/gin"
)

// TaxHandler serves the fiscal reference data: tax models, fiscal periods
// and the AEAT calendar.
type TaxHandler struct {
	models   service.TaxModelService
	periods  service.FiscalPeriodService
	calendar service.TaxCalendarService
	guards   Guards
}

func NewTaxHandler(models service.TaxModelService, periods service.FiscalPeriodService, calendar service.TaxCalendarService, guards Guards) *TaxHandler {
	return &TaxHandler{models: models, periods: periods, calendar: calendar, guards: guards}
}

func (h *TaxHandler) RegisterRoutes(router *gin.RouterGroup) {
	read := h.guards.Auth.RequirePermission("tax.read")
	write := h.guards.Auth.RequirePermission("tax.write")

	models := router.Group("/tax-models")
	{
		models.GET("", read, h.ListTaxModels)
		models.GET("/:code", read, h.GetTaxModel)
		models.POST("", write, h.CreateTaxModel)
		models.PUT("/:code", write, h.UpdateTaxModel)
		models.DELETE("/:code", write, h.DeleteTaxModel)
	}

	periods := router.Group("/fiscal-periods")
	{
		periods.GET("", read, h.ListPeriods)
		periods.GET("/:id", read, h.GetPeriod)
		periods.POST("", write, h.CreatePeriod)
		periods.PUT("/:id", write, h.UpdatePeriod)
		periods.DELETE("/:id", write, h.DeletePeriod)
		periods.POST("/refresh-status", write, h.RefreshStatus)
	}

	cal := router.Group("/tax-calendar")
	{
		cal.GET("", read, h.ListCalendar)
		cal.GET("/open", read, h.ListOpenCalendar)
		cal.GET("/:id", read, h.GetCalendarEntry)
		cal.POST("", write, h.CreateCalendarEntry)
		cal.PUT("/:id", write, h.UpdateCalendarEntry)
		cal.PATCH("/:id/status", write, h.UpdateCalendarStatus)
		cal.DELETE("/:id", write, h.DeleteCalendarEntry)
	}
}

// ListTaxModels returns the catalogue; ?active=true hides retired models
func (h *TaxHandler) ListTaxModels(c *gin.Context) {
	models, err := h.models.ListTaxModels(c.Request.Context(), queryBool(c, "active"))
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, models)
}

func (h *TaxHandler) GetTaxModel(c *gin.Context) {
	m, err := h.models.GetTaxModel(c.Request.Context(), c.Param("code"))
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, m)
}

// CreateTaxModel creates a new AEAT model entry
// @Summary      Create tax model
// @Tags         tax-models
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.CreateTaxModelRequest  true  "Tax model"
// @Success      201      {object}  response.Response{data=service.TaxModelResponse}
// @Failure      409      {object}  response.Response
// @Router       /api/tax-models [post]
func (h *TaxHandler) CreateTaxModel(c *gin.Context) {
	var req service.CreateTaxModelRequest
	if !bindJSON(c, &req) {
		return
	}
	m, err := h.models.CreateTaxModel(c.Request.Context(), req, middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	created(c, m)
}

func (h *TaxHandler) UpdateTaxModel(c *gin.Context) {
	var req service.UpdateTaxModelRequest
	if !bindJSON(c, &req) {
		return
	}
	m, err := h.models.UpdateTaxModel(c.Request.Context(), c.Param("code"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, m)
}

// DeleteTaxModel refuses models that still have active assignments
func (h *TaxHandler) DeleteTaxModel(c *gin.Context) {
	if err := h.models.DeleteTaxModel(c.Request.Context(), c.Param("code")); err != nil {
		respondError(c, err)
		return
	}
	message(c, "Tax model deleted successfully")
}

func (h *TaxHandler) ListPeriods(c *gin.Context) {
	var q service.FiscalPeriodListQuery
	if !bindQuery(c, &q) {
		return
	}
	periods, err := h.periods.ListPeriods(c.Request.Context(), q)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, periods)
}

func (h *TaxHandler) GetPeriod(c *gin.Context) {
	p, err := h.periods.GetPeriod(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, p)
}

func (h *TaxHandler) CreatePeriod(c *gin.Context) {
	var req service.FiscalPeriodRequest
	if !bindJSON(c, &req) {
		return
	}
	p, err := h.periods.CreatePeriod(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	created(c, p)
}

func (h *TaxHandler) UpdatePeriod(c *gin.Context) {
	var req service.FiscalPeriodRequest
	if !bindJSON(c, &req) {
		return
	}
	p, err := h.periods.UpdatePeriod(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, p)
}

func (h *TaxHandler) DeletePeriod(c *gin.Context) {
	if err := h.periods.DeletePeriod(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	message(c, "Fiscal period deleted successfully")
}

// RefreshStatus recomputes fiscal period and calendar statuses from today's date
// @Summary      Refresh period statuses
// @Description  Runs the same status update as the daily job and returns the counts
// @Tags         fiscal-periods
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Response{data=service.RefreshResult}
// @Router       /api/fiscal-periods/refresh-status [post]
func (h *TaxHandler) RefreshStatus(c *gin.Context) {
	res, err := h.periods.RefreshStatus(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, res)
}

func (h *TaxHandler) ListCalendar(c *gin.Context) {
	var q service.CalendarListQuery
	if !bindQuery(c, &q) {
		return
	}
	entries, err := h.calendar.ListEntries(c.Request.Context(), q)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, entries)
}

// ListOpenCalendar returns the ABIERTO entries with their days to deadline
func (h *TaxHandler) ListOpenCalendar(c *gin.Context) {
	entries, err := h.calendar.ListOpen(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, entries)
}

func (h *TaxHandler) GetCalendarEntry(c *gin.Context) {
	e, err := h.calendar.GetEntry(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, e)
}

func (h *TaxHandler) CreateCalendarEntry(c *gin.Context) {
	var req service.CalendarEntryRequest
	if !bindJSON(c, &req) {
		return
	}
	e, err := h.calendar.CreateEntry(c.Request.Context(), req, middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	created(c, e)
}

func (h *TaxHandler) UpdateCalendarEntry(c *gin.Context) {
	var req service.CalendarEntryRequest
	if !bindJSON(c, &req) {
		return
	}
	e, err := h.calendar.UpdateEntry(c.Request.Context(), c.Param("id"), req, middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, e)
}

// UpdateCalendarStatus overrides the computed status of one entry
func (h *TaxHandler) UpdateCalendarStatus(c *gin.Context) {
	var req service.CalendarStatusRequest
	if !bindJSON(c, &req) {
		return
	}
	e, err := h.calendar.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status, middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, e)
}

func (h *TaxHandler) DeleteCalendarEntry(c *gin.Context) {
	if err := h.calendar.DeleteEntry(c.Request.Context(), c.Param("id"), middleware.UserID(c)); err != nil {
		respondError(c, err)
		return
	}
	message(c, "Calendar entry deleted successfully")
}
