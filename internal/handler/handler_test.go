package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"gestoria/internal/config"
	"gestoria/internal/database"
	"gestoria/internal/middleware"
	"gestoria/internal/model"
	"gestoria/internal/repository"
	"gestoria/internal/service"
	"gestoria/internal/templating"
	"gestoria/internal/websocket"
	"gestoria/pkg/logger"
	"gestoria/pkg/response"
	"gestoria/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var testSecret = []byte("handler-test-secret")

func init() {
	gin.SetMode(gin.TestMode)
}

type recordingNotifier struct {
	mu   sync.Mutex
	logs []websocket.SystemLog
}

func (r *recordingNotifier) Notify(websocket.Notification) {}

func (r *recordingNotifier) SystemLog(l websocket.SystemLog) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, l)
}

type stubRenderer struct{}

func (stubRenderer) Render(b model.Budget) ([]byte, error) { return []byte("%PDF-" + b.Number), nil }

type testEnv struct {
	router   *gin.Engine
	db       *gorm.DB
	notifier *recordingNotifier
	system   *SystemHandler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))
	_, err = database.Seed(ctx, db, time.Now())
	require.NoError(t, err)

	log := logger.Nop()
	n := &recordingNotifier{}

	userRepo := repository.NewUserRepository(db)
	roleRepo := repository.NewRoleRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	clientRepo := repository.NewClientRepository(db)
	modelRepo := repository.NewTaxModelRepository(db)
	assignRepo := repository.NewAssignmentRepository(db)
	calendarRepo := repository.NewCalendarRepository(db)
	filingRepo := repository.NewFilingRepository(db)
	periodRepo := repository.NewFiscalPeriodRepository(db)
	budgetRepo := repository.NewBudgetRepository(db)
	pricingRepo := repository.NewPricingRepository(db)
	txManager := repository.NewTransactionManager(db)

	var auth *middleware.Auth
	roles := service.NewRoleService(roleRepo, userRepo, txManager, func(role string) {
		if auth != nil {
			auth.ClearPermissionCache(role)
		}
	})
	require.NoError(t, roles.SeedDefaultRolesAndPermissions(ctx))
	auth = middleware.NewAuth(middleware.AuthConfig{Secret: testSecret}, roles)

	limits := middleware.NewLimiters()
	t.Cleanup(limits.Stop)
	guards := Guards{Auth: auth, Limits: limits}

	authService := service.NewAuthService(userRepo, auditRepo, service.TokenConfig{
		Secret: testSecret, Issuer: "gestoria", AccessTTL: time.Hour, RefreshTTL: 24 * time.Hour,
	})
	_, err = authService.EnsureOwner(ctx, config.OwnerConfig{Username: "owner", Email: "owner@example.com", Password: "supersecret"})
	require.NoError(t, err)

	updater := service.NewPeriodStatusUpdater(periodRepo, calendarRepo, log)
	pricing := service.NewBudgetConfigService(pricingRepo, auditRepo, txManager, nil)
	system := NewSystemHandler(db, n, log, guards)

	router := NewRouter(RouterConfig{JWTSecret: testSecret}, log, guards, nil, nil, system,
		NewUserHandler(service.NewUserService(userRepo, roleRepo, auditRepo, n), authService, guards),
		NewRoleHandler(roles, guards),
		NewAuditHandler(service.NewAuditService(auditRepo), guards),
		NewClientHandler(
			service.NewClientService(clientRepo, assignRepo, auditRepo, txManager, n),
			service.NewClientTaxService(assignRepo, clientRepo, modelRepo, calendarRepo, filingRepo, auditRepo, n),
			guards),
		NewTaxHandler(
			service.NewTaxModelService(modelRepo, assignRepo, auditRepo),
			service.NewFiscalPeriodService(periodRepo, updater, n),
			service.NewTaxCalendarService(calendarRepo, auditRepo),
			guards),
		NewObligationHandler(service.NewObligationService(filingRepo, assignRepo, clientRepo, calendarRepo, auditRepo, n), guards),
		NewBudgetHandler(
			service.NewBudgetService(budgetRepo, clientRepo, assignRepo, auditRepo, txManager, pricing, stubRenderer{}, n),
			pricing, guards),
		NewStatisticsHandler(service.NewStatisticsService(repository.NewStatisticsRepository(db)), guards),
		NewCatalogHandler(service.NewCatalogService(repository.NewCatalogRepository(db)), guards),
		NewTemplateHandler(service.NewTemplateService(repository.NewTemplateRepository(db), clientRepo, budgetRepo, templating.NewEngine()), guards),
	)
	return &testEnv{router: router, db: db, notifier: n, system: system}
}

func bearerFor(t *testing.T, role string, owner bool) string {
	t.Helper()
	tok, err := token.Generate(testSecret, "gestoria", token.KindAccess,
		token.Subject{UserID: uuid.NewString(), Username: role, Role: role, IsOwner: owner}, time.Hour)
	require.NoError(t, err)
	return tok
}

func (e *testEnv) do(method, path, tok string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder, into interface{}) response.Response {
	t.Helper()
	var env struct {
		response.Response
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	if into != nil {
		require.NoError(t, json.Unmarshal(env.Data, into))
	}
	return env.Response
}

func TestRespondError(t *testing.T) {
	tests := []struct {
		err      error
		status   int
		code     string
		contains string
	}{
		{fmt.Errorf("%w: bad date", service.ErrInvalidInput), http.StatusBadRequest, "", "bad date"},
		{fmt.Errorf("client %w", service.ErrNotFound), http.StatusNotFound, "", "client not found"},
		{fmt.Errorf("%w: duplicate", service.ErrConflict), http.StatusConflict, "", "duplicate"},
		{fmt.Errorf("%w: expired", service.ErrUnauthorized), http.StatusUnauthorized, "", "expired"},
		{&service.CodedError{Err: service.ErrForbidden, Code: "OWNER_PROTECTED", Message: "nope"}, http.StatusForbidden, "OWNER_PROTECTED", "nope"},
		{errors.New("dial tcp: connection refused"), http.StatusInternalServerError, "", "internal server error"},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
		respondError(c, tt.err)

		assert.Equal(t, tt.status, w.Code, tt.err.Error())
		var body response.Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, tt.code, body.Code)
		assert.Contains(t, body.Error, tt.contains)
		assert.NotContains(t, body.Error, "connection refused")
	}
}

func TestLoginAndProfile(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/api/auth/login", "", service.LoginRequest{Username: "owner", Password: "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(http.MethodPost, "/api/auth/login", "", service.LoginRequest{Username: "owner@example.com", Password: "supersecret"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var login service.LoginResponse
	decodeData(t, w, &login)
	assert.NotEmpty(t, login.AccessToken)
	assert.True(t, login.User.IsOwner)

	names := map[string]bool{}
	for _, ck := range w.Result().Cookies() {
		names[ck.Name] = true
	}
	assert.True(t, names["access_token"] && names["refresh_token"])

	w = env.do(http.MethodGet, "/api/auth/profile", login.AccessToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var profile struct {
		Username    string   `json:"username"`
		Permissions []string `json:"permissions"`
	}
	decodeData(t, w, &profile)
	assert.Equal(t, "owner", profile.Username)
	assert.Contains(t, profile.Permissions, "system.migrate")

	w = env.do(http.MethodPost, "/api/auth/refresh", "", service.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	require.Equal(t, http.StatusOK, w.Code)

	// rotated: the old refresh token is revoked
	w = env.do(http.MethodPost, "/api/auth/refresh", "", service.RefreshTokenRequest{RefreshToken: login.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLoginRateLimit(t *testing.T) {
	env := newTestEnv(t)
	creds := service.LoginRequest{Username: "owner", Password: "wrong-password"}
	for i := 0; i < 5; i++ {
		require.Equal(t, http.StatusUnauthorized, env.do(http.MethodPost, "/api/auth/login", "", creds).Code)
	}
	w := env.do(http.MethodPost, "/api/auth/login", "", creds)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "900", w.Header().Get("Retry-After"))
}

func TestClientEndpoints(t *testing.T) {
	env := newTestEnv(t)
	staff := bearerFor(t, model.RoleStaff, false)

	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodGet, "/api/clients", "", nil).Code)

	w := env.do(http.MethodPost, "/api/clients", staff, map[string]string{"business_name": "Innoquest SL"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req := service.CreateClientRequest{BusinessName: "Innoquest SL", TaxID: "b-12345678", Type: model.ClientTypeEmpresa}
	w = env.do(http.MethodPost, "/api/clients", staff, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var client service.ClientResponse
	decodeData(t, w, &client)
	assert.Equal(t, "B12345678", client.TaxID)

	w = env.do(http.MethodPost, "/api/clients", staff, req)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(http.MethodGet, "/api/clients?search=innoquest", staff, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var page struct {
		Items []service.ClientResponse `json:"items"`
		Total int64                    `json:"total"`
	}
	decodeData(t, w, &page)
	assert.EqualValues(t, 1, page.Total)

	w = env.do(http.MethodGet, "/api/clients/"+uuid.NewString(), staff, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(http.MethodDelete, "/api/clients/"+client.ID, staff, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, middleware.CodeInsufficientPermission, decodeData(t, w, nil).Code)

	w = env.do(http.MethodDelete, "/api/clients/"+client.ID, bearerFor(t, model.RoleAdvisor, false), nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAssignmentAndDueReport(t *testing.T) {
	env := newTestEnv(t)
	advisor := bearerFor(t, model.RoleAdvisor, false)

	w := env.do(http.MethodPost, "/api/clients", advisor, service.CreateClientRequest{
		BusinessName: "Innoquest SL", TaxID: "B12345678", Type: model.ClientTypeEmpresa,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var client service.ClientResponse
	decodeData(t, w, &client)

	w = env.do(http.MethodPost, "/api/client-tax", advisor, service.CreateAssignmentRequest{
		ClientID: client.ID, TaxModelCode: "130", Periodicity: model.PeriodicityTrimestral,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code, "130 is for AUTONOMO only")

	w = env.do(http.MethodPost, "/api/client-tax", advisor, service.CreateAssignmentRequest{
		ClientID: client.ID, TaxModelCode: "303", Periodicity: model.PeriodicityTrimestral,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = env.do(http.MethodGet, "/api/client-tax?client_id="+client.ID, advisor, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []service.AssignmentResponse
	decodeData(t, w, &list)
	assert.Len(t, list, 1)

	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodGet, "/api/tax-obligations/due?year=abc", advisor, nil).Code)
	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/api/tax-obligations/due", advisor, nil).Code)
}

func TestOwnerAndAdminOnlyRoutes(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/api/tax-obligations/mark-overdue", bearerFor(t, model.RoleAdvisor, false), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, middleware.CodeInsufficientPermission, decodeData(t, w, nil).Code)

	w = env.do(http.MethodPost, "/api/tax-obligations/mark-overdue", bearerFor(t, model.RoleAdmin, false), nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(http.MethodPost, "/api/system/migrate", bearerFor(t, model.RoleAdmin, false), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, middleware.CodeOwnerOnly, decodeData(t, w, nil).Code)
}

func TestMigratePushesProgress(t *testing.T) {
	env := newTestEnv(t)
	env.system.fixups = []database.Fixup{
		{Name: "client_email_index", SQL: "CREATE INDEX idx_test_client_email ON clients (email)"},
		{Name: "client_phone_index", SQL: "CREATE INDEX idx_test_client_phone ON clients (phone)"},
	}

	w := env.do(http.MethodPost, "/api/system/migrate", bearerFor(t, model.RoleAdmin, true), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var report database.FixupReport
	decodeData(t, w, &report)
	assert.Equal(t, []string{"client_email_index", "client_phone_index"}, report.Applied)

	env.notifier.mu.Lock()
	defer env.notifier.mu.Unlock()
	require.Len(t, env.notifier.logs, 4)
	last := env.notifier.logs[3]
	assert.Equal(t, websocket.LevelSuccess, last.Level)
	require.NotNil(t, last.Progress)
	assert.Equal(t, 100, *last.Progress)
	assert.Equal(t, 50, *env.notifier.logs[1].Progress)
}

func TestBudgetFlowOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	advisor := bearerFor(t, model.RoleAdvisor, false)

	in := service.BudgetRequest{
		BudgetInput: service.BudgetInput{
			Type: model.BudgetTypeAutonomo, InvoiceCount: 20, Periodicity: "TRIMESTRAL", TaxRegime: "NORMAL",
			TaxModels: []string{"303", "130"},
		},
		ProspectName: "Laura Gómez",
		TaxID:        "12345678Z",
	}

	w := env.do(http.MethodPost, "/api/budgets/calculate", advisor, in.BudgetInput)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(http.MethodPost, "/api/budgets", advisor, in)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var b service.BudgetResponse
	decodeData(t, w, &b)
	assert.Equal(t, model.BudgetStatusDraft, b.Status)

	w = env.do(http.MethodGet, "/api/budgets/"+b.ID+"/pdf", advisor, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), b.Number+".pdf")

	assert.Equal(t, http.StatusOK, env.do(http.MethodPost, "/api/budgets/"+b.ID+"/accept", advisor, nil).Code)
	w = env.do(http.MethodPost, "/api/budgets/"+b.ID+"/convert", advisor, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var conv service.ConvertBudgetResponse
	decodeData(t, w, &conv)
	assert.ElementsMatch(t, []string{"303", "130"}, conv.AssignedModels)

	assert.Equal(t, http.StatusConflict, env.do(http.MethodPost, "/api/budgets/"+b.ID+"/convert", advisor, nil).Code)

	// tariff changes are for owner or admin only
	w = env.do(http.MethodPut, "/api/budget-config/AUTONOMO", advisor, service.PricingConfigDTO{})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestDashboardStats(t *testing.T) {
	env := newTestEnv(t)
	staff := bearerFor(t, model.RoleStaff, false)

	w := env.do(http.MethodGet, "/api/dashboard/stats?start_date=2025-01-01&end_date=31/12/2025", staff, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var stats model.DashboardStats
	decodeData(t, w, &stats)
	assert.EqualValues(t, 0, stats.ActiveClients)

	w = env.do(http.MethodGet, "/api/dashboard/stats?start_date=yesterday", staff, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodGet, "/api/dashboard/stats?start_date=2025-06-01&end_date=2025-01-01", staff, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthAndUnknownRoute(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"OK"`)

	w = env.do(http.MethodGet, "/api/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
