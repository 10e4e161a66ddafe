package database

import (
	"context"
	"errors"
	"fmt"

	"gestoria/pkg/logger"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

// Fixup is a schema statement AutoMigrate does not cover. Fixups must be safe
// to re-run: the only tolerated failures are "already exists" errors.
type Fixup struct {
	Name string
	SQL  string
}

// Fixups are applied in order by `gestoriactl migrate` and the owner migrate endpoint.
var Fixups = []Fixup{
	{Name: "filing_due_status_index", SQL: "CREATE INDEX idx_filing_due_status ON client_tax_filings (due_date, status)"},
	{Name: "calendar_status_year_index", SQL: "CREATE INDEX idx_calendar_status_year ON tax_calendar_entries (status, year)"},
	{Name: "client_origin_budget_index", SQL: "CREATE INDEX idx_client_origin_budget ON clients (origin_budget_id)"},
	{Name: "budget_status_year_index", SQL: "CREATE INDEX idx_budget_status_year ON budgets (status, year)"},
	{Name: "audit_created_action_index", SQL: "CREATE INDEX idx_audit_created_action ON audit_logs (created_at, action)"},
}

// MySQL errors treated as "already applied".
var skippableErrors = map[uint16]string{
	1050: "table already exists",
	1060: "duplicate column",
	1061: "duplicate key name",
}

// IsSkippable reports whether err is a MySQL "already exists" error.
func IsSkippable(err error) bool {
	var myErr *mysql.MySQLError
	if !errors.As(err, &myErr) {
		return false
	}
	_, ok := skippableErrors[myErr.Number]
	return ok
}

// FixupStep is reported after each statement.
type FixupStep struct {
	Index   int
	Total   int
	Name    string
	Skipped bool
}

type FixupReport struct {
	Applied []string `json:"applied"`
	Skipped []string `json:"skipped"`
}

// RunFixups executes fixups in order. Skippable errors are logged and the run
// continues; any other error stops it. onStep may be nil.
func RunFixups(ctx context.Context, db *gorm.DB, fixups []Fixup, log *logger.Logger, onStep func(FixupStep)) (FixupReport, error) {
	var report FixupReport
	for i, f := range fixups {
		step := FixupStep{Index: i + 1, Total: len(fixups), Name: f.Name}

		err := db.WithContext(ctx).Exec(f.SQL).Error
		switch {
		case err == nil:
			report.Applied = append(report.Applied, f.Name)
			log.Info().Str("migration", f.Name).Msg("migration applied")
		case IsSkippable(err):
			step.Skipped = true
			report.Skipped = append(report.Skipped, f.Name)
			log.Warn().Str("migration", f.Name).Err(err).Msg("migration already applied, skipping")
		default:
			return report, fmt.Errorf("failed to apply migration %s: %w", f.Name, err)
		}

		if onStep != nil {
			onStep(step)
		}
	}
	return report, nil
}
