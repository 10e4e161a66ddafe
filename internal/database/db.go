package database

import (
	"fmt"

	"gestoria/internal/config"
	"gestoria/internal/model"
	"gestoria/pkg/logger"

	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// NewConnection initializes the MySQL connection pool using GORM and migrates the schema.
func NewConnection(cfg config.DBConfig, log *logger.Logger) (*gorm.DB, error) {
	dsn, err := DSNFromURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(gormmysql.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := AutoMigrate(db); err != nil {
		log.Warn().Err(err).Msg("failed to auto-migrate models")
	}

	return db, nil
}

// Models lists every persisted model, parents before children.
func Models() []interface{} {
	return []interface{}{
		&model.Permission{},
		&model.Role{},
		&model.User{},
		&model.RefreshToken{},
		&model.AuditLog{},
		&model.Client{},
		&model.TaxModel{},
		&model.ClientTaxAssignment{},
		&model.FiscalPeriod{},
		&model.TaxCalendarEntry{},
		&model.ClientTaxFiling{},
		&model.Budget{},
		&model.BudgetItem{},
		&model.BudgetPricingConfig{},
		&model.PricingBracket{},
		&model.PricingModelPrice{},
		&model.PricingServicePrice{},
		&model.PriceCatalogItem{},
		&model.DocumentTemplate{},
		&model.NotificationTemplate{},
	}
}

func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}
