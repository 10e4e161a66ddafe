package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"gestoria/internal/database"
	"gestoria/internal/model"
	"gestoria/internal/repository"
	"gestoria/internal/websocket"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))
	return db
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// recordingNotifier keeps every pushed event.
type recordingNotifier struct {
	mu            sync.Mutex
	notifications []websocket.Notification
	logs          []websocket.SystemLog
}

func (r *recordingNotifier) Notify(n websocket.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifications = append(r.notifications, n)
}

func (r *recordingNotifier) SystemLog(l websocket.SystemLog) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, l)
}

func (r *recordingNotifier) count(kind string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.notifications {
		if e.Type == kind {
			n++
		}
	}
	return n
}

// repos bundles the repositories a test needs.
type repos struct {
	db          *gorm.DB
	clients     repository.ClientRepository
	models      repository.TaxModelRepository
	assignments repository.AssignmentRepository
	calendar    repository.CalendarRepository
	filings     repository.FilingRepository
	periods     repository.FiscalPeriodRepository
	budgets     repository.BudgetRepository
	pricing     repository.PricingRepository
	catalog     repository.CatalogRepository
	templates   repository.TemplateRepository
	audit       repository.AuditRepository
	tx          repository.TransactionManager
}

func newRepos(t *testing.T) repos {
	t.Helper()
	db := newTestDB(t)
	_, err := database.SeedTaxModels(context.Background(), db)
	require.NoError(t, err)
	return repos{
		db:          db,
		clients:     repository.NewClientRepository(db),
		models:      repository.NewTaxModelRepository(db),
		assignments: repository.NewAssignmentRepository(db),
		calendar:    repository.NewCalendarRepository(db),
		filings:     repository.NewFilingRepository(db),
		periods:     repository.NewFiscalPeriodRepository(db),
		budgets:     repository.NewBudgetRepository(db),
		pricing:     repository.NewPricingRepository(db),
		catalog:     repository.NewCatalogRepository(db),
		templates:   repository.NewTemplateRepository(db),
		audit:       repository.NewAuditRepository(db),
		tx:          repository.NewTransactionManager(db),
	}
}

func (r repos) client(t *testing.T, name, taxID, clientType string) *model.Client {
	t.Helper()
	c := &model.Client{BusinessName: name, TaxID: taxID, Type: clientType, IsActive: true}
	require.NoError(t, r.clients.Create(context.Background(), c))
	return c
}

func (r repos) entry(t *testing.T, code, period string, year int, start, end time.Time, status string) *model.TaxCalendarEntry {
	t.Helper()
	e := &model.TaxCalendarEntry{ModelCode: code, Period: period, Year: year, StartDate: start, EndDate: end, Status: status, IsActive: true}
	require.NoError(t, r.calendar.Create(context.Background(), e))
	return e
}
