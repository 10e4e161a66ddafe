// Command gestoriactl runs the maintenance batch jobs against the configured
// database. Every command exits non-zero on the first failure.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"gestoria/internal/config"
	"gestoria/internal/database"
	"gestoria/pkg/logger"
)

type command struct {
	run   func(ctx context.Context, e *env, args []string) error
	usage string
}

var commands = map[string]command{
	"migrate":          {runMigrate, "Apply AutoMigrate and the schema fix-ups"},
	"seed":             {runSeed, "Create tax models, fiscal years, pricing, roles and the owner"},
	"period-refresh":   {runPeriodRefresh, "Recompute fiscal period and calendar statuses"},
	"calendar-refresh": {runCalendarRefresh, "Recompute tax calendar statuses only"},
	"due-report":       {runDueReport, "List obligations due in a year (--year, --json)"},
	"generate":         {runGenerate, "Generate filings for every open calendar entry"},
	"mark-overdue":     {runMarkOverdue, "Flag pending filings past their due date"},
}

func usage() {
	fmt.Fprint(os.Stderr, `gestoriactl - gestoría maintenance CLI

Usage:
  gestoriactl <command> [options]

Commands:
`)
	for _, name := range commandNames() {
		fmt.Fprintf(os.Stderr, "  %-17s %s\n", name, commands[name].usage)
	}
	fmt.Fprintln(os.Stderr, "\nRun 'gestoriactl <command> -h' for command-specific help.")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}
	name := os.Args[1]
	if name == "-h" || name == "--help" || name == "help" {
		usage()
		os.Exit(0)
	}
	cmd, found := commands[name]
	if !found {
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", name)
		usage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(logger.Config{Env: cfg.App.Env, Level: cfg.App.LogLevel})

	db, err := database.NewConnection(cfg.DB, log)
	if err != nil {
		log.Error().Err(err).Msg("database connection failed")
		os.Exit(1)
	}

	e := &env{db: db, cfg: cfg, log: log, out: os.Stdout, now: time.Now}
	start := time.Now()
	if err := cmd.run(context.Background(), e, os.Args[2:]); err != nil {
		log.Error().Err(err).Str("command", name).Msg("command failed")
		os.Exit(1)
	}
	log.Info().Str("command", name).Dur("duration", time.Since(start)).Msg("command finished")
}
