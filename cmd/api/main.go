package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "gestoria/api/swagger" // swagger docs
	"gestoria/internal/cache"
	"gestoria/internal/config"
	"gestoria/internal/database"
	"gestoria/internal/handler"
	"gestoria/internal/jobs"
	"gestoria/internal/middleware"
	"gestoria/internal/pdf"
	"gestoria/internal/repository"
	"gestoria/internal/service"
	"gestoria/internal/templating"
	"gestoria/internal/websocket"
	"gestoria/pkg/logger"

	"github.com/gin-gonic/gin"
)

// @title           Gestoría API
// @version         1.0
// @description     Back office for a tax advisory firm: clients, tax obligations, budgets and templates.
// @host            localhost:8080
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New(logger.Config{Env: "production"}).Fatal().Err(err).Msg("invalid configuration")
	}
	log := logger.New(logger.Config{Env: cfg.App.Env, Level: cfg.App.LogLevel})
	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal().Err(err).Msg("database connection failed")
	}
	if err := database.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("auto-migrate failed")
	}
	seeded, err := database.Seed(ctx, db, time.Now())
	if err != nil {
		log.Fatal().Err(err).Msg("seeding reference data failed")
	}
	log.Info().Interface("seed", seeded).Msg("reference data ready")

	var store cache.Cache
	if cfg.Redis.Addr != "" {
		rc, err := cache.NewRedisCache(ctx, cache.RedisConfig{
			Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB, Prefix: cfg.Redis.Prefix, DefaultTTL: 10 * time.Minute,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("redis connection failed")
		}
		store = rc
		log.Info().Str("addr", cfg.Redis.Addr).Msg("using redis cache")
	} else {
		store = cache.NewMemoryCache(10*time.Minute, 15*time.Minute)
	}
	defer store.Close()

	// Set up WebSocket Hub
	hub := websocket.NewHub(log)
	go hub.Run(ctx)

	metrics := middleware.NewMetrics("gestoria", hub.ConnectedUsers)

	// Repositories
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

	// Roles feed the permission middleware, which in turn drops its cache on role changes.
	var auth *middleware.Auth
	roleService := service.NewRoleService(roleRepo, userRepo, txManager, func(role string) {
		if auth != nil {
			auth.ClearPermissionCache(role)
		}
	})
	if err := roleService.SeedDefaultRolesAndPermissions(ctx); err != nil {
		log.Fatal().Err(err).Msg("seeding roles failed")
	}
	auth = middleware.NewAuth(middleware.AuthConfig{
		Secret:        []byte(cfg.JWT.Secret),
		SecureCookies: !cfg.IsDevelopment(),
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
	}, roleService)

	limits := middleware.NewLimiters()
	defer limits.Stop()
	guards := handler.Guards{Auth: auth, Limits: limits}

	// Services
	authService := service.NewAuthService(userRepo, auditRepo, service.TokenConfig{
		Secret:     []byte(cfg.JWT.Secret),
		Issuer:     cfg.JWT.Issuer,
		AccessTTL:  cfg.JWT.AccessTTL,
		RefreshTTL: cfg.JWT.RefreshTTL,
	})
	if cfg.Owner.Enabled() {
		created, err := authService.EnsureOwner(ctx, cfg.Owner)
		if err != nil {
			log.Fatal().Err(err).Msg("owner bootstrap failed")
		}
		if created {
			log.Info().Str("email", cfg.Owner.Email).Msg("owner account created")
		}
	}

	userService := service.NewUserService(userRepo, roleRepo, auditRepo, hub)
	clientService := service.NewClientService(clientRepo, assignRepo, auditRepo, txManager, hub)
	clientTaxService := service.NewClientTaxService(assignRepo, clientRepo, modelRepo, calendarRepo, filingRepo, auditRepo, hub)
	obligationService := service.NewObligationService(filingRepo, assignRepo, clientRepo, calendarRepo, auditRepo, hub)
	periodService := service.NewFiscalPeriodService(periodRepo, service.NewPeriodStatusUpdater(periodRepo, calendarRepo, log), hub)
	pricingService := service.NewBudgetConfigService(pricingRepo, auditRepo, txManager, store)
	budgetService := service.NewBudgetService(budgetRepo, clientRepo, assignRepo, auditRepo, txManager, pricingService,
		pdf.NewBudgetRenderer(pdf.Issuer{
			Name: cfg.Firm.Name, TaxID: cfg.Firm.TaxID, Address: cfg.Firm.Address, Email: cfg.Firm.Email, Phone: cfg.Firm.Phone,
		}), hub)

	router := handler.NewRouter(handler.RouterConfig{
		AllowOrigins: cfg.CORS.AllowOrigins,
		JWTSecret:    []byte(cfg.JWT.Secret),
		Swagger:      cfg.HTTP.Swagger,
	}, log, guards, metrics, hub, handler.NewSystemHandler(db, hub, log, guards),
		handler.NewUserHandler(userService, authService, guards),
		handler.NewRoleHandler(roleService, guards),
		handler.NewAuditHandler(service.NewAuditService(auditRepo), guards),
		handler.NewClientHandler(clientService, clientTaxService, guards),
		handler.NewTaxHandler(
			service.NewTaxModelService(modelRepo, assignRepo, auditRepo),
			periodService,
			service.NewTaxCalendarService(calendarRepo, auditRepo),
			guards),
		handler.NewObligationHandler(obligationService, guards),
		handler.NewBudgetHandler(budgetService, pricingService, guards),
		handler.NewStatisticsHandler(service.NewStatisticsService(repository.NewStatisticsRepository(db)), guards),
		handler.NewCatalogHandler(service.NewCatalogService(repository.NewCatalogRepository(db)), guards),
		handler.NewTemplateHandler(service.NewTemplateService(repository.NewTemplateRepository(db), clientRepo, budgetRepo, templating.NewEngine()), guards),
	)

	var scheduler *jobs.Scheduler
	if cfg.Jobs.Enabled {
		scheduler = jobs.NewScheduler(log, metrics)
		if err := jobs.Register(scheduler, jobs.Builtin(cfg.Jobs, periodService, obligationService, log)); err != nil {
			log.Fatal().Err(err).Msg("job registration failed")
		}
		scheduler.Start(ctx)
	}

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info().Str("addr", srv.Addr).Str("env", cfg.App.Env).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	if scheduler != nil {
		if err := scheduler.Stop(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("scheduler stop")
		}
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
