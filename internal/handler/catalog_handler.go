package handler

import (
	"gestoria/internal/service"

	"github.com/gin-gonic/gin"
)

type CatalogHandler struct {
	catalog service.CatalogService
	guards  Guards
}

func NewCatalogHandler(catalog service.CatalogService, guards Guards) *CatalogHandler {
	return &CatalogHandler{catalog: catalog, guards: guards}
}

func (h *CatalogHandler) RegisterRoutes(router *gin.RouterGroup) {
	read := h.guards.Auth.RequirePermission("catalog.read")
	write := h.guards.Auth.RequirePermission("catalog.write")

	g := router.Group("/price-catalog")
	{
		g.GET("", read, h.ListItems)
		g.GET("/:id", read, h.GetItem)
		g.POST("", write, h.CreateItem)
		g.PUT("/:id", write, h.UpdateItem)
		g.DELETE("/:id", write, h.DeleteItem)
	}
}

// ListItems returns the catalogue; ?active=true hides disabled items
func (h *CatalogHandler) ListItems(c *gin.Context) {
	items, err := h.catalog.ListItems(c.Request.Context(), queryBool(c, "active"))
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, items)
}

func (h *CatalogHandler) GetItem(c *gin.Context) {
	item, err := h.catalog.GetItem(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, item)
}

func (h *CatalogHandler) CreateItem(c *gin.Context) {
	var req service.CatalogItemRequest
	if !bindJSON(c, &req) {
		return
	}
	item, err := h.catalog.CreateItem(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	created(c, item)
}

func (h *CatalogHandler) UpdateItem(c *gin.Context) {
	var req service.CatalogItemRequest
	if !bindJSON(c, &req) {
		return
	}
	item, err := h.catalog.UpdateItem(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, item)
}

func (h *CatalogHandler) DeleteItem(c *gin.Context) {
	if err := h.catalog.DeleteItem(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	message(c, "Catalog item deleted successfully")
}
