package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"gestoria/pkg/logger"
	"gestoria/pkg/response"
	"gestoria/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret")

func init() {
	gin.SetMode(gin.TestMode)
}

type fakePerms struct {
	codes map[string][]string
	calls int
	err   error
}

func (f *fakePerms) GetPermissionsByRoleName(_ context.Context, role string) ([]string, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.codes[role], nil
}

func accessToken(t *testing.T, role string, owner bool) string {
	t.Helper()
	tok, err := token.Generate(testSecret, "gestoria", token.KindAccess,
		token.Subject{UserID: "u-1", Username: "ana", Role: role, IsOwner: owner}, time.Hour)
	require.NoError(t, err)
	return tok
}

func serve(r *gin.Engine, tok string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func guarded(h ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	h = append(h, func(c *gin.Context) {
		c.String(http.StatusOK, UserID(c)+"|"+Role(c))
	})
	r.GET("/x", h...)
	return r
}

func decode(t *testing.T, w *httptest.ResponseRecorder) response.Response {
	t.Helper()
	var body response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestRequireAuth(t *testing.T) {
	a := NewAuth(AuthConfig{Secret: testSecret}, &fakePerms{})
	r := guarded(a.RequireAuth())

	assert.Equal(t, http.StatusUnauthorized, serve(r, "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, "garbage").Code)

	refresh, err := token.Generate(testSecret, "gestoria", token.KindRefresh, token.Subject{UserID: "u-1"}, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, serve(r, refresh).Code, "refresh tokens are not accepted as access tokens")

	w := serve(r, accessToken(t, "asesor", false))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u-1|asesor", w.Body.String())
}

func TestRequireAuthReadsCookie(t *testing.T) {
	a := NewAuth(AuthConfig{Secret: testSecret}, &fakePerms{})
	r := guarded(a.RequireAuth())

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.AddCookie(&http.Cookie{Name: "access_token", Value: accessToken(t, "admin", false)})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequireAuthBadHeaderFormat(t *testing.T) {
	a := NewAuth(AuthConfig{Secret: testSecret}, &fakePerms{})
	r := guarded(a.RequireAuth())

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Token abc")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, decode(t, w).Error, "Bearer")
}

func TestOwnerGuards(t *testing.T) {
	a := NewAuth(AuthConfig{Secret: testSecret}, &fakePerms{})

	owner := guarded(a.RequireOwner())
	assert.Equal(t, http.StatusOK, serve(owner, accessToken(t, "admin", true)).Code)
	w := serve(owner, accessToken(t, "admin", false))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, CodeOwnerOnly, decode(t, w).Code)

	ownerOrAdmin := guarded(a.RequireOwnerOrRole("admin"))
	assert.Equal(t, http.StatusOK, serve(ownerOrAdmin, accessToken(t, "admin", false)).Code)
	assert.Equal(t, http.StatusOK, serve(ownerOrAdmin, accessToken(t, "asesor", true)).Code)
	w = serve(ownerOrAdmin, accessToken(t, "asesor", false))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, CodeInsufficientPermission, decode(t, w).Code)
}

func TestRequireRole(t *testing.T) {
	a := NewAuth(AuthConfig{Secret: testSecret}, &fakePerms{})
	r := guarded(a.RequireRole("admin", "asesor"))

	assert.Equal(t, http.StatusOK, serve(r, accessToken(t, "asesor", false)).Code)
	assert.Equal(t, http.StatusForbidden, serve(r, accessToken(t, "administrativo", false)).Code)
	assert.Equal(t, http.StatusOK, serve(r, accessToken(t, "administrativo", true)).Code)
}

func TestRequirePermissionCachesLookups(t *testing.T) {
	perms := &fakePerms{codes: map[string][]string{"asesor": {"clients.read", "budgets.read"}}}
	a := NewAuth(AuthConfig{Secret: testSecret}, perms)

	read := guarded(a.RequirePermission("clients.read"))
	write := guarded(a.RequirePermission("clients.read", "clients.write"))
	tok := accessToken(t, "asesor", false)

	assert.Equal(t, http.StatusOK, serve(read, tok).Code)
	w := serve(write, tok)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, decode(t, w).Error, "clients.write")
	assert.Equal(t, 1, perms.calls)

	a.ClearPermissionCache("asesor")
	assert.Equal(t, http.StatusOK, serve(read, tok).Code)
	assert.Equal(t, 2, perms.calls)

	// admin and owner never hit the permission source
	assert.Equal(t, http.StatusOK, serve(write, accessToken(t, "admin", false)).Code)
	assert.Equal(t, http.StatusOK, serve(write, accessToken(t, "administrativo", true)).Code)
	assert.Equal(t, 2, perms.calls)
}

func TestRequirePermissionSourceError(t *testing.T) {
	a := NewAuth(AuthConfig{Secret: testSecret}, &fakePerms{err: errors.New("db down")})
	r := guarded(a.RequirePermission("clients.read"))
	assert.Equal(t, http.StatusInternalServerError, serve(r, accessToken(t, "asesor", false)).Code)
}

func TestTokenCookies(t *testing.T) {
	a := NewAuth(AuthConfig{Secret: testSecret, SecureCookies: true, AccessTTL: time.Hour}, &fakePerms{})
	r := gin.New()
	r.GET("/login", func(c *gin.Context) { a.SetTokenCookies(c, "acc", "ref") })
	r.GET("/logout", func(c *gin.Context) { a.ClearTokenCookies(c) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/login", nil))
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 2)
	assert.Equal(t, "access_token", cookies[0].Name)
	assert.Equal(t, 3600, cookies[0].MaxAge)
	assert.True(t, cookies[0].Secure)
	assert.True(t, cookies[0].HttpOnly)
	assert.Equal(t, http.SameSiteNoneMode, cookies[0].SameSite)
	assert.Equal(t, 7*24*3600, cookies[1].MaxAge)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/logout", nil))
	for _, ck := range w.Result().Cookies() {
		assert.Empty(t, ck.Value)
		assert.Negative(t, ck.MaxAge)
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(LoginTier)
	defer rl.Stop()
	now := time.Date(2025, 10, 15, 9, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	r := gin.New()
	r.POST("/login", rl.Handler(), func(c *gin.Context) { c.Status(http.StatusNoContent) })
	do := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.RemoteAddr = ip + ":1234"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	for i := 0; i < 5; i++ {
		require.Equal(t, http.StatusNoContent, do("10.0.0.1").Code, "attempt %d", i+1)
	}
	w := do("10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "900", w.Header().Get("Retry-After"))
	var body response.RateLimited
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 900, body.RetryAfter)
	assert.NotEmpty(t, body.Error)

	assert.Equal(t, http.StatusNoContent, do("10.0.0.2").Code, "other IPs have their own window")

	// the quota is fixed for the whole window
	for _, step := range []time.Duration{3 * time.Minute, 5 * time.Minute, 6*time.Minute + 59*time.Second} {
		now = now.Add(step)
		assert.Equal(t, http.StatusTooManyRequests, do("10.0.0.1").Code, "still inside the window")
	}

	// 15 minutes after the first hit a new window opens
	now = time.Date(2025, 10, 15, 9, 15, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.Equal(t, http.StatusNoContent, do("10.0.0.1").Code, "attempt %d in new window", i+1)
	}
	assert.Equal(t, http.StatusTooManyRequests, do("10.0.0.1").Code)
}

func TestRateLimiterAllowsQuotaPerWindow(t *testing.T) {
	rl := NewRateLimiter(LoginTier)
	defer rl.Stop()
	start := time.Date(2025, 10, 15, 9, 0, 0, 0, time.UTC)
	now := start
	rl.now = func() time.Time { return now }

	allowed := 0
	for now.Before(start.Add(LoginTier.Window)) {
		if rl.Allow("10.0.0.1") {
			allowed++
		}
		now = now.Add(30 * time.Second)
	}
	assert.Equal(t, LoginTier.Requests, allowed)
}

func TestLimitersStopIsIdempotent(t *testing.T) {
	l := NewLimiters()
	l.Stop()
	l.Stop()
	assert.Equal(t, 3600, l.Strict.RetryAfter())
	assert.Equal(t, 3600, l.Register.RetryAfter())
	assert.Equal(t, 900, l.General.RetryAfter())
}

func TestMetricsMiddleware(t *testing.T) {
	m := NewMetrics("gestoria", func() int { return 2 })
	r := gin.New()
	r.Use(m.Middleware())
	r.GET("/api/clients/:id", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/metrics", gin.WrapH(m.Handler()))

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/clients/42", nil))
	m.RecordJob("mark_overdue", nil, time.Second)
	m.RecordJob("mark_overdue", errors.New("boom"), time.Second)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := w.Body.String()
	assert.Contains(t, body, `gestoria_http_requests_total{method="GET",path="/api/clients/:id",status_code="200"} 1`)
	assert.Contains(t, body, `gestoria_job_runs_total{job="mark_overdue",status="error"} 1`)
	assert.Contains(t, body, `gestoria_job_runs_total{job="mark_overdue",status="success"} 1`)
	assert.Contains(t, body, "gestoria_websocket_connected_users 2")
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	r := gin.New()
	r.Use(RequestLogger(logger.NewWithWriter(&buf, "info")))
	r.GET("/boom", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ok", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/boom", nil))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	var first, second map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, "info", first["level"])
	assert.Equal(t, "/ok", first["path"])
	assert.Equal(t, "http", first["component"])
	assert.Equal(t, "error", second["level"])
	assert.EqualValues(t, 500, second["status"])
}
