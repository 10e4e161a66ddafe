package handler

import (
	"net/http"

	"gestoria/internal/service"
	"gestoria/pkg/pagination"
	"gestoria/pkg/response"

	"github.com/gin-gonic/gin"
)

type AuditHandler struct {
	auditService service.AuditService
	guards       Guards
}

func NewAuditHandler(auditService service.AuditService, guards Guards) *AuditHandler {
	return &AuditHandler{auditService: auditService, guards: guards}
}

func (h *AuditHandler) RegisterRoutes(router *gin.RouterGroup) {
	group := router.Group("/audit-logs")
	group.Use(h.guards.Auth.RequirePermission("audit.read"))
	{
		group.GET("", h.GetAuditLogs)
	}
}

// GetAuditLogs returns a page of audit entries, newest first
// @Summary      Get audit logs
// @Description  Filters by action, user, entity and a YYYY-MM-DD date range
// @Tags         audit
// @Security     BearerAuth
// @Produce      json
// @Param        action     query     string  false  "Action"
// @Param        user_id    query     string  false  "User ID"
// @Param        entity_id  query     string  false  "Entity ID"
// @Param        from       query     string  false  "From date (YYYY-MM-DD)"
// @Param        to         query     string  false  "To date (YYYY-MM-DD)"
// @Param        page       query     int     false  "Page number (default 1)"
// @Param        limit      query     int     false  "Number of items per page (default 20)"
// @Success      200        {object}  response.Response{data=response.Page}
// @Router       /api/audit-logs [get]
func (h *AuditHandler) GetAuditLogs(c *gin.Context) {
	var q service.AuditLogQuery
	if !bindQuery(c, &q) {
		return
	}
	p := pagination.Parse(c)

	logs, total, err := h.auditService.GetAuditLogs(c.Request.Context(), q, p.Page, p.Limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Paginated(http.StatusOK, logs, total, p.Page, p.Limit))
}
