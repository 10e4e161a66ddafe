package handler

import (
	"gestoria/internal/model"
	"gestoria/internal/service"

	"github.com/gin-gonic/gin"
)

type RoleHandler struct {
	roleService service.RoleService
	guards      Guards
}

func NewRoleHandler(roleService service.RoleService, guards Guards) *RoleHandler {
	return &RoleHandler{roleService: roleService, guards: guards}
}

// RegisterRoutes mounts /roles and /permissions. Role changes are limited to
// the owner and admins and count against the strict tier.
func (h *RoleHandler) RegisterRoutes(router *gin.RouterGroup) {
	auth := h.guards.Auth
	manage := []gin.HandlerFunc{auth.RequirePermission("roles.manage")}
	write := []gin.HandlerFunc{h.guards.Limits.Strict.Handler(), auth.RequireOwnerOrRole(model.RoleAdmin)}

	roles := router.Group("/roles")
	roles.Use(manage...)
	{
		roles.GET("", h.ListRoles)
		roles.GET("/:id", h.GetRole)
		roles.POST("", append(write, h.CreateRole)...)
		roles.PUT("/:id", append(write, h.UpdateRole)...)
		roles.DELETE("/:id", append(write, h.DeleteRole)...)
		roles.PUT("/:id/permissions", append(write, h.UpdateRolePermissions)...)
	}

	perms := router.Group("/permissions")
	perms.Use(manage...)
	{
		perms.GET("", h.ListPermissions)
	}
}

// ListRoles returns all roles with their permissions
func (h *RoleHandler) ListRoles(c *gin.Context) {
	roles, err := h.roleService.ListRoles(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, roles)
}

// GetRole returns a single role by ID
func (h *RoleHandler) GetRole(c *gin.Context) {
	role, err := h.roleService.GetRole(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, role)
}

// CreateRole creates a new custom role
func (h *RoleHandler) CreateRole(c *gin.Context) {
	var req service.CreateRoleRequest
	if !bindJSON(c, &req) {
		return
	}

	role, err := h.roleService.CreateRole(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	created(c, role)
}

// UpdateRole updates a role's name and description
func (h *RoleHandler) UpdateRole(c *gin.Context) {
	var req service.UpdateRoleRequest
	if !bindJSON(c, &req) {
		return
	}

	role, err := h.roleService.UpdateRole(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, role)
}

// DeleteRole deletes a non-system role
func (h *RoleHandler) DeleteRole(c *gin.Context) {
	if err := h.roleService.DeleteRole(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	message(c, "Role deleted successfully")
}

// ListPermissions returns all available permissions
func (h *RoleHandler) ListPermissions(c *gin.Context) {
	perms, err := h.roleService.ListPermissions(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, perms)
}

// UpdateRolePermissions replaces all permissions for a role. The role service
// invalidates the permission cache.
func (h *RoleHandler) UpdateRolePermissions(c *gin.Context) {
	var req service.UpdateRolePermissionsRequest
	if !bindJSON(c, &req) {
		return
	}

	role, err := h.roleService.UpdateRolePermissions(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, role)
}
