package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"gestoria/pkg/response"
	"gestoria/pkg/token"

	"github.com/gin-gonic/gin"
	gocache "github.com/patrickmn/go-cache"
)

// Context keys set by the auth middleware.
const (
	CtxUserID   = "userID"
	CtxUsername = "username"
	CtxUserRole = "userRole"
	CtxIsOwner  = "isOwner"
	ctxClaims   = "claims"
)

// Machine readable codes for 403 responses.
const (
	CodeOwnerOnly              = "OWNER_ONLY"
	CodeInsufficientPermission = "INSUFFICIENT_PERMISSION"
)

const (
	accessCookie  = "access_token"
	refreshCookie = "refresh_token"

	permCacheTTL = 5 * time.Minute
	adminRole    = "admin"
)

// PermissionSource resolves the permission codes granted to a role.
type PermissionSource interface {
	GetPermissionsByRoleName(ctx context.Context, roleName string) ([]string, error)
}

// Auth validates access tokens and guards routes by role, permission or
// ownership.
type Auth struct {
	secret        []byte
	perms         PermissionSource
	permCache     *gocache.Cache
	secureCookies bool
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

type AuthConfig struct {
	Secret        []byte
	SecureCookies bool // SameSite=None + Secure, for cross-origin production frontends
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

func NewAuth(cfg AuthConfig, perms PermissionSource) *Auth {
	if cfg.AccessTTL == 0 {
		cfg.AccessTTL = 24 * time.Hour
	}
	if cfg.RefreshTTL == 0 {
		cfg.RefreshTTL = 7 * 24 * time.Hour
	}
	return &Auth{
		secret:        cfg.Secret,
		perms:         perms,
		permCache:     gocache.New(permCacheTTL, 2*permCacheTTL),
		secureCookies: cfg.SecureCookies,
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
	}
}

// SetTokenCookies sets access_token and refresh_token as HttpOnly cookies
func (a *Auth) SetTokenCookies(c *gin.Context, accessToken, refreshToken string) {
	a.sameSite(c)
	c.SetCookie(accessCookie, accessToken, int(a.accessTTL.Seconds()), "/", "", a.secureCookies, true)
	c.SetCookie(refreshCookie, refreshToken, int(a.refreshTTL.Seconds()), "/", "", a.secureCookies, true)
}

// ClearTokenCookies removes access_token and refresh_token cookies
func (a *Auth) ClearTokenCookies(c *gin.Context) {
	a.sameSite(c)
	c.SetCookie(accessCookie, "", -1, "/", "", a.secureCookies, true)
	c.SetCookie(refreshCookie, "", -1, "/", "", a.secureCookies, true)
}

func (a *Auth) sameSite(c *gin.Context) {
	if a.secureCookies {
		c.SetSameSite(http.SameSiteNoneMode)
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
}

// RefreshTokenFrom returns the refresh token from the cookie, if any.
func RefreshTokenFrom(c *gin.Context) string {
	v, err := c.Cookie(refreshCookie)
	if err != nil {
		return ""
	}
	return v
}

// bearer reads the token from the access_token cookie first, then the
// Authorization header.
func bearer(c *gin.Context) (string, string) {
	if v, err := c.Cookie(accessCookie); err == nil && v != "" {
		return v, ""
	}
	header := c.GetHeader("Authorization")
	if header == "" {
		return "", "Authorization is missing"
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", "Invalid authorization format. Expected 'Bearer <token>'"
	}
	return parts[1], ""
}

// authenticate parses the token once per request and stores the claims.
func (a *Auth) authenticate(c *gin.Context) (*token.Claims, bool) {
	if v, ok := c.Get(ctxClaims); ok {
		return v.(*token.Claims), true
	}
	raw, msg := bearer(c)
	if raw == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, msg))
		return nil, false
	}
	claims, err := token.Parse(a.secret, raw, token.KindAccess)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Invalid or expired token"))
		return nil, false
	}
	c.Set(ctxClaims, claims)
	c.Set(CtxUserID, claims.UserID)
	c.Set(CtxUsername, claims.Username)
	c.Set(CtxUserRole, claims.Role)
	c.Set(CtxIsOwner, claims.IsOwner)
	return claims, true
}

// RequireAuth only checks that a valid access token was sent.
func (a *Auth) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := a.authenticate(c); !ok {
			return
		}
		c.Next()
	}
}

// RequireRole lets the owner and the listed roles through.
func (a *Auth) RequireRole(allowedRoles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := a.authenticate(c)
		if !ok {
			return
		}
		if !claims.IsOwner && !contains(allowedRoles, claims.Role) {
			c.AbortWithStatusJSON(http.StatusForbidden, response.Error(http.StatusForbidden, "Access denied: insufficient permissions"))
			return
		}
		c.Next()
	}
}

// RequireOwner rejects everyone but the owner account.
func (a *Auth) RequireOwner() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := a.authenticate(c)
		if !ok {
			return
		}
		if !claims.IsOwner {
			c.AbortWithStatusJSON(http.StatusForbidden,
				response.ErrorWithCode(http.StatusForbidden, "Only the owner can perform this action", CodeOwnerOnly))
			return
		}
		c.Next()
	}
}

// RequireOwnerOrRole lets the owner or any user with role through.
func (a *Auth) RequireOwnerOrRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := a.authenticate(c)
		if !ok {
			return
		}
		if !claims.IsOwner && claims.Role != role {
			c.AbortWithStatusJSON(http.StatusForbidden,
				response.ErrorWithCode(http.StatusForbidden, "Access denied: requires owner or "+role, CodeInsufficientPermission))
			return
		}
		c.Next()
	}
}

// RequirePermission checks that the user's role holds every listed permission.
// The owner and the admin role always pass.
func (a *Auth) RequirePermission(requiredPerms ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := a.authenticate(c)
		if !ok {
			return
		}
		if claims.IsOwner || claims.Role == adminRole {
			c.Next()
			return
		}

		granted, err := a.PermissionsFor(c.Request.Context(), claims.Role)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, "Failed to verify permissions"))
			return
		}
		for _, required := range requiredPerms {
			if !contains(granted, required) {
				c.AbortWithStatusJSON(http.StatusForbidden,
					response.ErrorWithCode(http.StatusForbidden, "Access denied: missing permission '"+required+"'", CodeInsufficientPermission))
				return
			}
		}
		c.Next()
	}
}

// PermissionsFor returns the cached permission codes of a role.
func (a *Auth) PermissionsFor(ctx context.Context, roleName string) ([]string, error) {
	if v, ok := a.permCache.Get(roleName); ok {
		return v.([]string), nil
	}
	codes, err := a.perms.GetPermissionsByRoleName(ctx, roleName)
	if err != nil {
		return nil, err
	}
	a.permCache.SetDefault(roleName, codes)
	return codes, nil
}

// ClearPermissionCache drops one role, or every role when roleName is empty.
func (a *Auth) ClearPermissionCache(roleName string) {
	if roleName == "" {
		a.permCache.Flush()
		return
	}
	a.permCache.Delete(roleName)
}

// UserID returns the authenticated user's id, or "".
func UserID(c *gin.Context) string {
	return c.GetString(CtxUserID)
}

// Role returns the authenticated user's role, or "".
func Role(c *gin.Context) string {
	return c.GetString(CtxUserRole)
}

// IsOwner reports whether the request was made by the owner.
func IsOwner(c *gin.Context) bool {
	return c.GetBool(CtxIsOwner)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
