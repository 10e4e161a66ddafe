package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gestoria/internal/model"
	"gestoria/internal/tax"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// SeedReport counts rows created by Seed. Existing rows are never modified.
type SeedReport struct {
	TaxModels       int `json:"tax_models"`
	FiscalPeriods   int `json:"fiscal_periods"`
	CalendarEntries int `json:"calendar_entries"`
	PricingConfigs  int `json:"pricing_configs"`
}

// Seed inserts reference data: tax models, fiscal periods and the AEAT
// calendar for the current and next year, and default pricing tables.
func Seed(ctx context.Context, db *gorm.DB, now time.Time) (SeedReport, error) {
	var report SeedReport
	var err error

	if report.TaxModels, err = SeedTaxModels(ctx, db); err != nil {
		return report, err
	}
	for _, year := range []int{now.Year(), now.Year() + 1} {
		periods, entries, err := SeedFiscalYear(ctx, db, year, now)
		if err != nil {
			return report, err
		}
		report.FiscalPeriods += periods
		report.CalendarEntries += entries
	}
	for _, budgetType := range []string{model.BudgetTypeAutonomo, model.BudgetTypeEmpresa} {
		created, err := SeedPricingConfig(ctx, db, budgetType)
		if err != nil {
			return report, err
		}
		if created {
			report.PricingConfigs++
		}
	}
	return report, nil
}

// SeedTaxModels inserts every model of tax.Rules that is missing.
func SeedTaxModels(ctx context.Context, db *gorm.DB) (int, error) {
	created := 0
	for _, code := range tax.ModelCodes() {
		var n int64
		if err := db.WithContext(ctx).Model(&model.TaxModel{}).Where("code = ?", code).Count(&n).Error; err != nil {
			return created, fmt.Errorf("failed to check tax model %s: %w", code, err)
		}
		if n > 0 {
			continue
		}

		rule := tax.Rules[code]
		m := model.TaxModel{
			Code:                 code,
			Name:                 tax.ModelNames[code],
			AllowedPeriodicities: strings.Join(rule.AllowedPeriods, ","),
			AllowedClientTypes:   strings.Join(rule.AllowedTypes, ","),
			IsActive:             true,
		}
		if err := db.WithContext(ctx).Create(&m).Error; err != nil {
			return created, fmt.Errorf("failed to seed tax model %s: %w", code, err)
		}
		created++
	}
	return created, nil
}

// SeedFiscalYear creates the missing fiscal periods and calendar entries of
// year, with statuses computed at now. Calendar windows are built for the
// active tax models, or for every known model when none are stored yet.
func SeedFiscalYear(ctx context.Context, db *gorm.DB, year int, now time.Time) (periods, entries int, err error) {
	tx := db.WithContext(ctx)

	for _, span := range tax.FiscalPeriods(year) {
		var n int64
		if err := tx.Model(&model.FiscalPeriod{}).Where("year = ? AND label = ?", span.Year, span.Label).Count(&n).Error; err != nil {
			return periods, entries, fmt.Errorf("failed to check fiscal period %d/%s: %w", span.Year, span.Label, err)
		}
		if n > 0 {
			continue
		}
		p := model.FiscalPeriod{
			Year:     span.Year,
			Label:    span.Label,
			Kind:     span.Kind,
			StartsAt: span.Start,
			EndsAt:   span.End,
			Status:   tax.NextPeriodStatus(model.PeriodStatusPending, span.Start, span.End, now),
		}
		if err := tx.Create(&p).Error; err != nil {
			return periods, entries, fmt.Errorf("failed to seed fiscal period %d/%s: %w", span.Year, span.Label, err)
		}
		periods++
	}

	var codes []string
	if err := tx.Model(&model.TaxModel{}).Where("is_active = ?", true).Order("code ASC").Pluck("code", &codes).Error; err != nil {
		return periods, entries, fmt.Errorf("failed to load tax models: %w", err)
	}
	if len(codes) == 0 {
		codes = tax.ModelCodes()
	}

	for _, w := range tax.BuildCalendar(year, codes) {
		var n int64
		if err := tx.Model(&model.TaxCalendarEntry{}).
			Where("model_code = ? AND period = ? AND year = ?", w.ModelCode, w.Period, w.Year).
			Count(&n).Error; err != nil {
			return periods, entries, fmt.Errorf("failed to check calendar entry: %w", err)
		}
		if n > 0 {
			continue
		}
		e := model.TaxCalendarEntry{
			ModelCode: w.ModelCode,
			Period:    w.Period,
			Year:      w.Year,
			StartDate: w.Start,
			EndDate:   w.End,
			Status:    tax.CalendarStatusAt(w.Start, w.End, now),
			IsActive:  true,
		}
		if err := tx.Create(&e).Error; err != nil {
			return periods, entries, fmt.Errorf("failed to seed calendar entry %s/%s/%d: %w", w.ModelCode, w.Period, w.Year, err)
		}
		entries++
	}
	return periods, entries, nil
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

// SeedPricingConfig creates the default price table for budgetType unless an
// active one exists. It reports whether a config was created.
func SeedPricingConfig(ctx context.Context, db *gorm.DB, budgetType string) (bool, error) {
	var n int64
	if err := db.WithContext(ctx).Model(&model.BudgetPricingConfig{}).
		Where("budget_type = ? AND is_active = ?", budgetType, true).
		Count(&n).Error; err != nil {
		return false, fmt.Errorf("failed to check pricing config: %w", err)
	}
	if n > 0 {
		return false, nil
	}

	cfg := DefaultPricingConfig(budgetType)
	if err := db.WithContext(ctx).Create(&cfg).Error; err != nil {
		return false, fmt.Errorf("failed to seed pricing config %s: %w", budgetType, err)
	}
	return true, nil
}

// DefaultPricingConfig is the stock price table used on first start.
func DefaultPricingConfig(budgetType string) model.BudgetPricingConfig {
	bracket := func(kind string, pos int, min string, max *decimal.Decimal, value, label string) model.PricingBracket {
		return model.PricingBracket{Kind: kind, Position: pos, Min: dec(min), Max: max, Value: dec(value), Label: label}
	}

	return model.BudgetPricingConfig{
		BudgetType:     budgetType,
		Name:           "Tarifa por defecto " + strings.ToLower(budgetType),
		IsActive:       true,
		MonthlyPct:     dec("20"),
		EDNPct:         dec("10"),
		ModulesPct:     dec("-10"),
		MonthlyMinimum: dec("50"),
		Brackets: []model.PricingBracket{
			bracket(model.BracketInvoices, 1, "0", decPtr("25"), "45", "Hasta 25 facturas"),
			bracket(model.BracketInvoices, 2, "26", decPtr("50"), "55", "De 26 a 50 facturas"),
			bracket(model.BracketInvoices, 3, "51", decPtr("100"), "80", "De 51 a 100 facturas"),
			bracket(model.BracketInvoices, 4, "101", decPtr("150"), "100", "De 101 a 150 facturas"),
			bracket(model.BracketInvoices, 5, "151", nil, "125", "Más de 150 facturas"),

			bracket(model.BracketPayroll, 1, "0", decPtr("10"), "20", "Hasta 10 nóminas"),
			bracket(model.BracketPayroll, 2, "11", decPtr("20"), "18", "De 11 a 20 nóminas"),
			bracket(model.BracketPayroll, 3, "21", decPtr("30"), "16", "De 21 a 30 nóminas"),
			bracket(model.BracketPayroll, 4, "31", decPtr("40"), "14", "De 31 a 40 nóminas"),
			bracket(model.BracketPayroll, 5, "41", decPtr("50"), "12", "De 41 a 50 nóminas"),
			bracket(model.BracketPayroll, 6, "51", nil, "10", "Más de 50 nóminas"),

			bracket(model.BracketRevenue, 1, "0", decPtr("49999.99"), "1.00", "Hasta 50.000€"),
			bracket(model.BracketRevenue, 2, "50000", decPtr("99999.99"), "1.10", "De 50.000€ a 100.000€"),
			bracket(model.BracketRevenue, 3, "100000", decPtr("199999.99"), "1.15", "De 100.000€ a 200.000€"),
			bracket(model.BracketRevenue, 4, "200000", decPtr("299999.99"), "1.20", "De 200.000€ a 300.000€"),
			bracket(model.BracketRevenue, 5, "300000", decPtr("399999.99"), "1.25", "De 300.000€ a 400.000€"),
			bracket(model.BracketRevenue, 6, "400000", decPtr("499999.99"), "1.30", "De 400.000€ a 500.000€"),
			bracket(model.BracketRevenue, 7, "500000", nil, "1.40", "Más de 500.000€"),
		},
		ModelPrices: []model.PricingModelPrice{
			{Code: "303", Name: "IVA", Price: dec("15"), IsActive: true},
			{Code: "111", Name: "IRPF Trabajadores", Price: dec("10"), IsActive: true},
			{Code: "130", Name: "IRPF Actividades Económicas", Price: dec("15"), IsActive: true},
			{Code: "100", Name: "Declaración Renta Anual", Price: dec("50"), IsActive: true},
			{Code: "349", Name: "Operaciones Intracomunitarias", Price: dec("15"), IsActive: true},
			{Code: "347", Name: "Operaciones Terceras Personas", Price: dec("15"), IsActive: true},
		},
		ServicePrices: []model.PricingServicePrice{
			{Code: "irpf_alquileres", Name: "IRPF Alquileres", Price: dec("15"), Kind: model.ServiceKindMonthly, IsActive: true},
			{Code: "iva_intracomunitario", Name: "IVA Intracomunitario", Price: dec("20"), Kind: model.ServiceKindMonthly, IsActive: true},
			{Code: "gestion_notificaciones", Name: "Gestión de Notificaciones", Price: dec("10"), Kind: model.ServiceKindMonthly, IsActive: true},
			{Code: "solicitud_certificados", Name: "Solicitud de Certificados", Price: dec("15"), Kind: model.ServiceKindOneOff, IsActive: true},
			{Code: "censos_aeat", Name: "Gestión de Censos AEAT", Price: dec("25"), Kind: model.ServiceKindOneOff, IsActive: true},
			{Code: "estadisticas_ine", Name: "Estadísticas INE", Price: dec("10"), Kind: model.ServiceKindMonthly, IsActive: true},
		},
	}
}
