package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gestoria/pkg/logger"

	"github.com/robfig/cron/v3"
)

// ErrUnknownJob is returned by RunNow for a name that was never added.
var ErrUnknownJob = errors.New("unknown job")

// Job is a named unit of work triggered by a cron spec.
type Job struct {
	Name string
	Spec string
	Run  func(ctx context.Context) error
}

// Recorder receives the outcome of every run. *middleware.Metrics implements it.
type Recorder interface {
	RecordJob(job string, err error, d time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) RecordJob(string, error, time.Duration) {}

// Scheduler runs jobs on their cron specs. Overlapping runs of the same job
// are skipped and a panicking job is logged instead of crashing the process.
type Scheduler struct {
	cron     *cron.Cron
	log      *logger.Logger
	recorder Recorder

	mu   sync.Mutex
	jobs map[string]Job
	base context.Context
}

func NewScheduler(log *logger.Logger, recorder Recorder) *Scheduler {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	log = log.Named("jobs")
	cl := cronLogger{log: log}
	return &Scheduler{
		cron:     cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		log:      log,
		recorder: recorder,
		jobs:     make(map[string]Job),
		base:     context.Background(),
	}
}

// Add registers a job. Schedules use the standard five field cron syntax or a
// descriptor such as @hourly.
func (s *Scheduler) Add(job Job) error {
	if job.Name == "" || job.Run == nil {
		return fmt.Errorf("job needs a name and a run function")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.jobs[job.Name]; dup {
		return fmt.Errorf("job %s already registered", job.Name)
	}
	if _, err := s.cron.AddFunc(job.Spec, func() { _ = s.execute(s.context(), job) }); err != nil {
		return fmt.Errorf("invalid cron spec %q for job %s: %w", job.Spec, job.Name, err)
	}
	s.jobs[job.Name] = job
	return nil
}

// Start begins firing jobs. Runs already started are not cancelled by ctx:
// batch jobs always finish.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.base = context.WithoutCancel(ctx)
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	s.mu.Unlock()

	s.cron.Start()
	s.log.Info().Strs("jobs", names).Msg("scheduler started")
}

// Stop prevents new runs and waits for running ones until ctx expires.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.log.Info().Msg("scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("jobs still running at shutdown: %w", ctx.Err())
	}
}

// RunNow executes a registered job synchronously, outside its schedule.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	job, found := s.jobs[name]
	s.mu.Unlock()
	if !found {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return s.execute(ctx, job)
}

func (s *Scheduler) context() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.base
}

func (s *Scheduler) execute(ctx context.Context, job Job) error {
	start := time.Now()
	err := job.Run(ctx)
	elapsed := time.Since(start)
	s.recorder.RecordJob(job.Name, err, elapsed)

	if err != nil {
		s.log.Error().Err(err).Str("job", job.Name).Dur("duration", elapsed).Msg("job failed")
		return err
	}
	s.log.Info().Str("job", job.Name).Dur("duration", elapsed).Msg("job finished")
	return nil
}

// cronLogger adapts the zerolog wrapper to cron.Logger.
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
