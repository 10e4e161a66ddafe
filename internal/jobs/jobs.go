package jobs

import (
	"context"
	"time"

	"gestoria/internal/config"
	"gestoria/internal/service"
	"gestoria/pkg/logger"
)

// Names of the built-in jobs.
const (
	PeriodRefresh   = "period-refresh"
	MarkOverdue     = "mark-overdue"
	GenerateFilings = "generate-filings"
)

// Builtin returns the periodic maintenance jobs with the schedules in cfg.
func Builtin(cfg config.JobsConfig, periods service.FiscalPeriodService, obligations service.ObligationService, log *logger.Logger) []Job {
	log = log.Named("jobs")
	return []Job{
		{
			Name: PeriodRefresh,
			Spec: cfg.PeriodRefresh,
			Run: func(ctx context.Context) error {
				res, err := periods.RefreshStatus(ctx)
				if err != nil {
					return err
				}
				log.Info().
					Int("opened", res.OpenedCount).
					Int("closed", res.ClosedCount).
					Int("calendar_updated", res.CalendarUpdated).
					Msg("fiscal periods refreshed")
				return nil
			},
		},
		{
			Name: MarkOverdue,
			Spec: cfg.MarkOverdue,
			Run: func(ctx context.Context) error {
				n, err := obligations.MarkOverdue(ctx, time.Now())
				if err != nil {
					return err
				}
				log.Info().Int64("updated", n).Msg("overdue filings marked")
				return nil
			},
		},
		{
			Name: GenerateFilings,
			Spec: cfg.GenerateFilings,
			Run: func(ctx context.Context) error {
				res, err := obligations.GenerateAuto(ctx)
				if err != nil {
					return err
				}
				if res.Created > 0 {
					log.Info().Int("created", res.Created).Int("existing", res.Existing).Msg("filings generated")
				}
				return nil
			},
		},
	}
}

// Register adds every job to s, stopping at the first invalid schedule.
func Register(s *Scheduler, jobs []Job) error {
	for _, j := range jobs {
		if err := s.Add(j); err != nil {
			return err
		}
	}
	return nil
}
