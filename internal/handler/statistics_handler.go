package handler

import (
	"net/http"
	"time"

	"gestoria/internal/service"
	"gestoria/pkg/dateutil"
	"gestoria/pkg/response"

	"github.com/gin-gonic/gin"
)

type StatisticsHandler struct {
	statisticsService service.StatisticsService
	guards            Guards
	now               func() time.Time
}

func NewStatisticsHandler(statisticsService service.StatisticsService, guards Guards) *StatisticsHandler {
	return &StatisticsHandler{statisticsService: statisticsService, guards: guards, now: time.Now}
}

func (h *StatisticsHandler) RegisterRoutes(router *gin.RouterGroup) {
	statsGroup := router.Group("/dashboard")
	{
		statsGroup.GET("/stats", h.guards.Auth.RequirePermission("dashboard.read"), h.GetStatistics)
	}
}

// @Summary      Get Dashboard Statistics
// @Description  Clients per type, filings and budgets per status in the range, the next deadlines and the clients with most open filings
// @Tags         dashboard
// @Produce      json
// @Param        start_date query string false "Start date (YYYY-MM-DD or DD/MM/YYYY), default January 1st"
// @Param        end_date   query string false "End date (YYYY-MM-DD or DD/MM/YYYY), default December 31st"
// @Success      200 {object} response.Response{data=model.DashboardStats}
// @Failure      400 {object} response.Response "Invalid date format"
// @Failure      401 {object} response.Response "Unauthorized"
// @Security     BearerAuth
// @Router       /api/dashboard/stats [get]
func (h *StatisticsHandler) GetStatistics(c *gin.Context) {
	// Default to the current calendar year
	year := h.now().Year()
	startDate := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	endDate := time.Date(year, time.December, 31, 23, 59, 59, 0, time.UTC)

	if raw := c.Query("start_date"); raw != "" {
		parsed, valid := dateutil.ParseDate(raw)
		if !valid {
			c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "invalid start_date format, expected YYYY-MM-DD"))
			return
		}
		startDate = parsed
	}
	if raw := c.Query("end_date"); raw != "" {
		parsed, valid := dateutil.ParseDate(raw)
		if !valid {
			c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "invalid end_date format, expected YYYY-MM-DD"))
			return
		}
		endDate = parsed.Add(24*time.Hour - time.Second)
	}

	stats, err := h.statisticsService.GetDashboard(c.Request.Context(), startDate, endDate)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, stats)
}
