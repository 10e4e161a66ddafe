package handler

import (
	"net/http"

	"gestoria/internal/middleware"
	"gestoria/internal/service"
	"gestoria/pkg/pagination"
	"gestoria/pkg/response"

	"github.com/gin-gonic/gin"
)

type UserHandler struct {
	userService service.UserService
	authService service.AuthService
	guards      Guards
}

// NewUserHandler sets up the routing dependencies for auth and User endpoints
func NewUserHandler(userService service.UserService, authService service.AuthService, guards Guards) *UserHandler {
	return &UserHandler{userService: userService, authService: authService, guards: guards}
}

// RegisterRoutes binds the endpoints to the /api RouterGroup
func (h *UserHandler) RegisterRoutes(router *gin.RouterGroup) {
	auth := h.guards.Auth

	// Public routes
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/login", h.guards.Limits.Login.Handler(), h.Login)
		authGroup.POST("/refresh", h.RefreshToken)
		authGroup.POST("/logout", h.Logout)

		authGroup.GET("/profile", auth.RequireAuth(), h.Profile)
		authGroup.PUT("/password", auth.RequireAuth(), h.ChangePassword)
	}

	users := router.Group("/users")
	{
		users.GET("", auth.RequirePermission("users.read"), h.ListUsers)
		users.GET("/:id", auth.RequirePermission("users.read"), h.GetUserByID)
		users.POST("", h.guards.Limits.Register.Handler(), auth.RequirePermission("users.write"), h.CreateUser)
		users.PUT("/:id", auth.RequirePermission("users.write"), h.UpdateUser)
		users.DELETE("/:id", auth.RequirePermission("users.delete"), h.DeleteUser)
	}
}

// Login handles POST /auth/login to authenticate and return a JWT pair
// @Summary      Login user
// @Description  Authenticates by username or email and password. Tokens are also set as HttpOnly cookies.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.LoginRequest   true  "Login Credentials"
// @Success      200      {object}  response.Response{data=service.LoginResponse}
// @Failure      400      {object}  response.Response
// @Failure      401      {object}  response.Response
// @Failure      429      {object}  response.RateLimited
// @Router       /api/auth/login [post]
func (h *UserHandler) Login(c *gin.Context) {
	var req service.LoginRequest
	if !bindJSON(c, &req) {
		return
	}

	res, err := h.authService.Login(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	h.guards.Auth.SetTokenCookies(c, res.AccessToken, res.RefreshToken)
	ok(c, res)
}

// RefreshToken handles POST /auth/refresh to rotate the token pair
// @Summary      Refresh token
// @Description  Issues a new access token and refresh token. The refresh token is read from the cookie, then the body.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.RefreshTokenRequest   false  "Refresh Token"
// @Success      200      {object}  response.Response{data=service.LoginResponse}
// @Failure      401      {object}  response.Response
// @Router       /api/auth/refresh [post]
func (h *UserHandler) RefreshToken(c *gin.Context) {
	refreshToken := middleware.RefreshTokenFrom(c)
	if refreshToken == "" {
		var req service.RefreshTokenRequest
		if !bindJSON(c, &req) {
			return
		}
		refreshToken = req.RefreshToken
	}

	res, err := h.authService.Refresh(c.Request.Context(), refreshToken)
	if err != nil {
		respondError(c, err)
		return
	}

	h.guards.Auth.SetTokenCookies(c, res.AccessToken, res.RefreshToken)
	ok(c, res)
}

// Logout handles POST /auth/logout: revokes the refresh token and clears auth cookies
// @Summary      Logout
// @Tags         auth
// @Produce      json
// @Success      200  {object}  response.Response
// @Router       /api/auth/logout [post]
func (h *UserHandler) Logout(c *gin.Context) {
	refreshToken := middleware.RefreshTokenFrom(c)
	if refreshToken == "" {
		var req service.RefreshTokenRequest
		_ = c.ShouldBindJSON(&req)
		refreshToken = req.RefreshToken
	}

	if err := h.authService.Logout(c.Request.Context(), refreshToken, middleware.UserID(c)); err != nil {
		respondError(c, err)
		return
	}
	h.guards.Auth.ClearTokenCookies(c)
	message(c, "Logged out")
}

type profileResponse struct {
	*service.UserResponse
	Permissions []string `json:"permissions"`
}

// Profile handles GET /auth/profile to return the current user and its permission codes
// @Summary      Get current user
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Success      200      {object}  response.Response{data=service.UserResponse}
// @Failure      401      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Router       /api/auth/profile [get]
func (h *UserHandler) Profile(c *gin.Context) {
	user, err := h.authService.Profile(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	perms, err := h.guards.Auth.PermissionsFor(c.Request.Context(), user.Role)
	if err != nil {
		respondError(c, err)
		return
	}
	if perms == nil {
		perms = []string{}
	}
	ok(c, profileResponse{UserResponse: user, Permissions: perms})
}

// ChangePassword handles PUT /auth/password
// @Summary      Change own password
// @Tags         auth
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.ChangePasswordRequest  true  "Passwords"
// @Success      200      {object}  response.Response
// @Failure      400      {object}  response.Response
// @Router       /api/auth/password [put]
func (h *UserHandler) ChangePassword(c *gin.Context) {
	var req service.ChangePasswordRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.authService.ChangePassword(c.Request.Context(), middleware.UserID(c), req); err != nil {
		respondError(c, err)
		return
	}
	message(c, "Password updated")
}

// CreateUser handles POST /users requests mapping
// @Summary      Create a new user
// @Description  Creates a new user validating constraints and hashing password
// @Tags         users
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.CreateUserRequest  true  "Create User Payload"
// @Success      201      {object}  response.Response{data=service.UserResponse}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Failure      429      {object}  response.RateLimited
// @Router       /api/users [post]
func (h *UserHandler) CreateUser(c *gin.Context) {
	var req service.CreateUserRequest
	if !bindJSON(c, &req) {
		return
	}

	user, err := h.userService.CreateUser(c.Request.Context(), req, middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	created(c, user)
}

// ListUsers handles GET /users and extracts pagination controls
// @Summary      List users
// @Description  Retrieves a paginated list of users
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Param        search query     string  false  "Username or email contains"
// @Param        role   query     string  false  "Role name"
// @Param        page   query     int     false  "Page number (default 1)"
// @Param        limit  query     int     false  "Number of items per page (default 20)"
// @Success      200    {object}  response.Response{data=response.Page}
// @Router       /api/users [get]
func (h *UserHandler) ListUsers(c *gin.Context) {
	var q service.UserListQuery
	if !bindQuery(c, &q) {
		return
	}
	p := pagination.Parse(c)

	users, total, err := h.userService.ListUsers(c.Request.Context(), q, p.Page, p.Limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Paginated(http.StatusOK, users, total, p.Page, p.Limit))
}

// GetUserByID handles GET /users/:id
// @Summary      Get user by ID
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "User ID"
// @Success      200  {object}  response.Response{data=service.UserResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/users/{id} [get]
func (h *UserHandler) GetUserByID(c *gin.Context) {
	user, err := h.userService.GetUserByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, user)
}

// UpdateUser handles PUT /users/:id. The owner cannot be demoted or deactivated.
// @Summary      Update user
// @Tags         users
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                     true  "User ID"
// @Param        payload  body      service.UpdateUserRequest  true  "Update User Payload"
// @Success      200      {object}  response.Response{data=service.UserResponse}
// @Failure      400      {object}  response.Response
// @Failure      403      {object}  response.Response
// @Router       /api/users/{id} [put]
func (h *UserHandler) UpdateUser(c *gin.Context) {
	var req service.UpdateUserRequest
	if !bindJSON(c, &req) {
		return
	}

	user, err := h.userService.UpdateUser(c.Request.Context(), c.Param("id"), req, middleware.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, user)
}

// DeleteUser handles DELETE /users/:id
// @Summary      Delete user
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "User ID"
// @Success      200  {object}  response.Response
// @Failure      403  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Router       /api/users/{id} [delete]
func (h *UserHandler) DeleteUser(c *gin.Context) {
	if err := h.userService.DeleteUser(c.Request.Context(), c.Param("id"), middleware.UserID(c)); err != nil {
		respondError(c, err)
		return
	}
	message(c, "User deleted successfully")
}
