package handler

import (
	"gestoria/internal/service"

	"github.com/gin-gonic/gin"
)

// TemplateHandler serves document templates (contracts, letters) and
// notification templates. Both share rendering.
type TemplateHandler struct {
	templates service.TemplateService
	guards    Guards
}

func NewTemplateHandler(templates service.TemplateService, guards Guards) *TemplateHandler {
	return &TemplateHandler{templates: templates, guards: guards}
}

func (h *TemplateHandler) RegisterRoutes(router *gin.RouterGroup) {
	read := h.guards.Auth.RequirePermission("templates.read")
	write := h.guards.Auth.RequirePermission("templates.write")

	docs := router.Group("/templates")
	{
		docs.GET("", read, h.ListTemplates)
		docs.GET("/:id", read, h.GetTemplate)
		docs.GET("/:id/variables", read, h.TemplateVariables)
		docs.POST("", write, h.CreateTemplate)
		docs.PUT("/:id", write, h.UpdateTemplate)
		docs.DELETE("/:id", write, h.DeleteTemplate)
		docs.POST("/:id/render", read, h.RenderTemplate)
	}

	notif := router.Group("/notification-templates")
	{
		notif.GET("", read, h.ListNotificationTemplates)
		notif.GET("/:id", read, h.GetNotificationTemplate)
		notif.POST("", write, h.CreateNotificationTemplate)
		notif.PUT("/:id", write, h.UpdateNotificationTemplate)
		notif.DELETE("/:id", write, h.DeleteNotificationTemplate)
		notif.POST("/:id/render", read, h.RenderNotificationTemplate)
	}
}

func (h *TemplateHandler) ListTemplates(c *gin.Context) {
	list, err := h.templates.ListTemplates(c.Request.Context(), c.Query("type"))
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, list)
}

func (h *TemplateHandler) GetTemplate(c *gin.Context) {
	t, err := h.templates.GetTemplate(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, t)
}

// TemplateVariables lists the {{ }} placeholders in the template body
func (h *TemplateHandler) TemplateVariables(c *gin.Context) {
	vars, err := h.templates.TemplateVariables(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, vars)
}

func (h *TemplateHandler) CreateTemplate(c *gin.Context) {
	var req service.DocumentTemplateRequest
	if !bindJSON(c, &req) {
		return
	}
	t, err := h.templates.CreateTemplate(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	created(c, t)
}

func (h *TemplateHandler) UpdateTemplate(c *gin.Context) {
	var req service.DocumentTemplateRequest
	if !bindJSON(c, &req) {
		return
	}
	t, err := h.templates.UpdateTemplate(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, t)
}

func (h *TemplateHandler) DeleteTemplate(c *gin.Context) {
	if err := h.templates.DeleteTemplate(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	message(c, "Template deleted successfully")
}

// RenderTemplate fills a template from a client, a budget and explicit variables
// @Summary      Render template
// @Description  Unknown placeholders are rendered as a visible marker instead of failing
// @Tags         templates
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                 true  "Template ID"
// @Param        payload  body      service.RenderRequest  true  "Sources"
// @Success      200      {object}  response.Response{data=service.RenderResponse}
// @Failure      404      {object}  response.Response
// @Router       /api/templates/{id}/render [post]
func (h *TemplateHandler) RenderTemplate(c *gin.Context) {
	var req service.RenderRequest
	if !bindJSON(c, &req) {
		return
	}
	out, err := h.templates.RenderTemplate(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, out)
}

func (h *TemplateHandler) ListNotificationTemplates(c *gin.Context) {
	list, err := h.templates.ListNotificationTemplates(c.Request.Context(), c.Query("type"))
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, list)
}

func (h *TemplateHandler) GetNotificationTemplate(c *gin.Context) {
	t, err := h.templates.GetNotificationTemplate(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, t)
}

func (h *TemplateHandler) CreateNotificationTemplate(c *gin.Context) {
	var req service.NotificationTemplateRequest
	if !bindJSON(c, &req) {
		return
	}
	t, err := h.templates.CreateNotificationTemplate(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	created(c, t)
}

func (h *TemplateHandler) UpdateNotificationTemplate(c *gin.Context) {
	var req service.NotificationTemplateRequest
	if !bindJSON(c, &req) {
		return
	}
	t, err := h.templates.UpdateNotificationTemplate(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, t)
}

func (h *TemplateHandler) DeleteNotificationTemplate(c *gin.Context) {
	if err := h.templates.DeleteNotificationTemplate(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	message(c, "Notification template deleted successfully")
}

func (h *TemplateHandler) RenderNotificationTemplate(c *gin.Context) {
	var req service.RenderRequest
	if !bindJSON(c, &req) {
		return
	}
	out, err := h.templates.RenderNotificationTemplate(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, out)
}
