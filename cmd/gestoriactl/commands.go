package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"gestoria/internal/config"
	"gestoria/internal/database"
	"gestoria/internal/repository"
	"gestoria/internal/service"
	"gestoria/pkg/logger"

	"github.com/spf13/pflag"
	"gorm.io/gorm"
)

type env struct {
	db  *gorm.DB
	cfg *config.Config
	log *logger.Logger
	out io.Writer
	now func() time.Time
}

func commandNames() []string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// parseFlags parses args into fs. A -h request is not an error.
func parseFlags(fs *pflag.FlagSet, args []string) (bool, error) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (e *env) updater() *service.PeriodStatusUpdater {
	return service.NewPeriodStatusUpdater(
		repository.NewFiscalPeriodRepository(e.db),
		repository.NewCalendarRepository(e.db),
		e.log,
	)
}

func (e *env) obligations() service.ObligationService {
	return service.NewObligationService(
		repository.NewFilingRepository(e.db),
		repository.NewAssignmentRepository(e.db),
		repository.NewClientRepository(e.db),
		repository.NewCalendarRepository(e.db),
		repository.NewAuditRepository(e.db),
		nil,
	)
}

func runMigrate(ctx context.Context, e *env, args []string) error {
	fs := pflag.NewFlagSet("migrate", pflag.ContinueOnError)
	skipFixups := fs.Bool("skip-fixups", false, "only run AutoMigrate")
	if proceed, err := parseFlags(fs, args); !proceed {
		return err
	}

	if err := database.AutoMigrate(e.db); err != nil {
		return fmt.Errorf("failed to auto-migrate: %w", err)
	}
	if *skipFixups {
		fmt.Fprintln(e.out, "schema migrated")
		return nil
	}
	report, err := database.RunFixups(ctx, e.db, database.Fixups, e.log, func(s database.FixupStep) {
		state := "applied"
		if s.Skipped {
			state = "skipped"
		}
		fmt.Fprintf(e.out, "[%d/%d] %s %s\n", s.Index, s.Total, s.Name, state)
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "schema migrated: %d fix-ups applied, %d skipped\n", len(report.Applied), len(report.Skipped))
	return nil
}

func runSeed(ctx context.Context, e *env, args []string) error {
	fs := pflag.NewFlagSet("seed", pflag.ContinueOnError)
	if proceed, err := parseFlags(fs, args); !proceed {
		return err
	}

	report, err := database.Seed(ctx, e.db, e.now())
	if err != nil {
		return err
	}
	users := repository.NewUserRepository(e.db)
	roles := service.NewRoleService(repository.NewRoleRepository(e.db), users, repository.NewTransactionManager(e.db), nil)
	if err := roles.SeedDefaultRolesAndPermissions(ctx); err != nil {
		return err
	}

	ownerCreated := false
	if e.cfg != nil && e.cfg.Owner.Enabled() {
		auth := service.NewAuthService(users, repository.NewAuditRepository(e.db), service.TokenConfig{
			Secret: []byte(e.cfg.JWT.Secret), Issuer: e.cfg.JWT.Issuer, AccessTTL: e.cfg.JWT.AccessTTL, RefreshTTL: e.cfg.JWT.RefreshTTL,
		})
		if ownerCreated, err = auth.EnsureOwner(ctx, e.cfg.Owner); err != nil {
			return err
		}
	}

	fmt.Fprintf(e.out, "tax models: %d, fiscal periods: %d, calendar entries: %d, pricing configs: %d, owner created: %t\n",
		report.TaxModels, report.FiscalPeriods, report.CalendarEntries, report.PricingConfigs, ownerCreated)
	return nil
}

func runPeriodRefresh(ctx context.Context, e *env, args []string) error {
	fs := pflag.NewFlagSet("period-refresh", pflag.ContinueOnError)
	if proceed, err := parseFlags(fs, args); !proceed {
		return err
	}

	res, err := e.updater().Run(ctx, e.now())
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "periods opened: %d, closed: %d, unchanged: %d, calendar entries updated: %d\n",
		res.OpenedCount, res.ClosedCount, res.UnchangedCount, res.CalendarUpdated)
	return nil
}

func runCalendarRefresh(ctx context.Context, e *env, args []string) error {
	fs := pflag.NewFlagSet("calendar-refresh", pflag.ContinueOnError)
	if proceed, err := parseFlags(fs, args); !proceed {
		return err
	}

	n, err := e.updater().RefreshCalendar(ctx, e.now())
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "calendar entries updated: %d\n", n)
	return nil
}

func runDueReport(ctx context.Context, e *env, args []string) error {
	fs := pflag.NewFlagSet("due-report", pflag.ContinueOnError)
	year := fs.Int("year", e.now().Year(), "fiscal year to report")
	asJSON := fs.Bool("json", false, "print the report as JSON")
	if proceed, err := parseFlags(fs, args); !proceed {
		return err
	}

	report, err := e.obligations().DueReport(ctx, *year)
	if err != nil {
		return err
	}
	if *asJSON {
		enc := json.NewEncoder(e.out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	w := tabwriter.NewWriter(e.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "DUE %d\t\t\t\n", report.Year)
	fmt.Fprintln(w, "CLIENT\tMODEL\tPERIODICITY\tPERIODS")
	for _, d := range report.Due {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", d.ClientName, d.ModelCode, d.Periodicity, strings.Join(d.Periods, ","))
	}
	if len(report.Skipped) > 0 {
		fmt.Fprintln(w, "\nSKIPPED\t\t\t")
		for _, s := range report.Skipped {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.ClientName, s.ModelCode, s.Periodicity, s.Reason)
		}
	}
	return w.Flush()
}

func runGenerate(ctx context.Context, e *env, args []string) error {
	fs := pflag.NewFlagSet("generate", pflag.ContinueOnError)
	if proceed, err := parseFlags(fs, args); !proceed {
		return err
	}

	res, err := e.obligations().GenerateAuto(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "filings created: %d, existing: %d, skipped: %d\n", res.Created, res.Existing, res.Skipped)
	return nil
}

func runMarkOverdue(ctx context.Context, e *env, args []string) error {
	fs := pflag.NewFlagSet("mark-overdue", pflag.ContinueOnError)
	if proceed, err := parseFlags(fs, args); !proceed {
		return err
	}

	n, err := e.obligations().MarkOverdue(ctx, e.now())
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "filings marked overdue: %d\n", n)
	return nil
}
