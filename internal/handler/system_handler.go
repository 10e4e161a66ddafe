package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"gestoria/internal/database"
	"gestoria/internal/service"
	"gestoria/internal/websocket"
	"gestoria/pkg/logger"
	"gestoria/pkg/response"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// SystemHandler exposes health and maintenance endpoints.
type SystemHandler struct {
	db       *gorm.DB
	notifier service.Notifier
	log      *logger.Logger
	guards   Guards
	fixups   []database.Fixup
}

func NewSystemHandler(db *gorm.DB, notifier service.Notifier, log *logger.Logger, guards Guards) *SystemHandler {
	if notifier == nil {
		notifier = service.NopNotifier{}
	}
	return &SystemHandler{db: db, notifier: notifier, log: log.Named("system"), guards: guards, fixups: database.Fixups}
}

func (h *SystemHandler) RegisterRoutes(router *gin.RouterGroup) {
	sys := router.Group("/system")
	{
		sys.POST("/migrate", h.guards.Limits.Strict.Handler(), h.guards.Auth.RequireOwner(), h.Migrate)
	}
}

// Health reports whether the database answers a ping
// @Summary      Health check
// @Tags         system
// @Produce      json
// @Success      200  {object}  map[string]string
// @Failure      503  {object}  map[string]string
// @Router       /health [get]
func (h *SystemHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	sqlDB, err := h.db.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		h.log.Warn().Err(err).Msg("health check failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "DOWN", "database": "unreachable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "OK", "database": "up"})
}

// Migrate applies the schema fix-ups and pushes progress as system:log events
// @Summary      Run migrations
// @Description  Owner only. "Already exists" MySQL errors are skipped, anything else stops the run.
// @Tags         system
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Response{data=database.FixupReport}
// @Failure      403  {object}  response.Response
// @Failure      429  {object}  response.RateLimited
// @Failure      500  {object}  response.Response
// @Router       /api/system/migrate [post]
func (h *SystemHandler) Migrate(c *gin.Context) {
	h.notifier.SystemLog(websocket.SystemLog{
		Type: websocket.LogMigration, Level: websocket.LevelInfo, Message: "Migration started", Progress: progress(0),
	})

	if err := database.AutoMigrate(h.db); err != nil {
		h.migrationFailed(c, fmt.Errorf("failed to auto-migrate: %w", err))
		return
	}

	report, err := database.RunFixups(c.Request.Context(), h.db, h.fixups, h.log, func(s database.FixupStep) {
		level, msg := websocket.LevelInfo, "Applied "+s.Name
		if s.Skipped {
			level, msg = websocket.LevelWarning, "Skipped "+s.Name+" (already applied)"
		}
		h.notifier.SystemLog(websocket.SystemLog{
			Type: websocket.LogMigration, Level: level, Message: msg, Progress: progress(s.Index * 100 / s.Total),
		})
	})
	if err != nil {
		h.migrationFailed(c, err)
		return
	}

	h.notifier.SystemLog(websocket.SystemLog{
		Type:     websocket.LogMigration,
		Level:    websocket.LevelSuccess,
		Message:  "Migration finished",
		Details:  fmt.Sprintf("%d applied, %d skipped", len(report.Applied), len(report.Skipped)),
		Progress: progress(100),
	})
	c.JSON(http.StatusOK, response.Success(http.StatusOK, report))
}

func (h *SystemHandler) migrationFailed(c *gin.Context, err error) {
	h.notifier.SystemLog(websocket.SystemLog{
		Type: websocket.LogMigration, Level: websocket.LevelError, Message: "Migration failed", Details: err.Error(),
	})
	respondError(c, err)
}

func progress(p int) *int { return &p }
