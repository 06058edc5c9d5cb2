package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"github.com/mrwolf/geolocator/internal/db"
	"github.com/mrwolf/geolocator/internal/report"
)

// Job names, also used as scheduler_runs.job_type.
const (
	JobPruneHistory = "prune-history"
	JobHealthCheck  = "health-check"
)

// systemActor owns runs that are not tied to one user.
const systemActor = "system"

// HealthChecker reports whether the vision model is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Scheduler manages scheduled jobs
type Scheduler struct {
	scheduler gocron.Scheduler
	db        *db.DB
	reports   *report.Writer
	model     HealthChecker
	logger    *zap.Logger
	retention time.Duration
	timezone  *time.Location

	modelHealthy atomic.Bool
}

// Config holds scheduler configuration
type Config struct {
	Timezone  string
	Retention time.Duration
}

// New creates a new scheduler. reports may be nil.
func New(database *db.DB, reports *report.Writer, model HealthChecker, logger *zap.Logger, cfg Config) (*Scheduler, error) {
	tz, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		tz = time.UTC
	}

	s, err := gocron.NewScheduler(gocron.WithLocation(tz))
	if err != nil {
		return nil, err
	}

	return &Scheduler{
		scheduler: s,
		db:        database,
		reports:   reports,
		model:     model,
		logger:    logger.Named("scheduler"),
		retention: cfg.Retention,
		timezone:  tz,
	}, nil
}

// Start registers all jobs and starts the scheduler
func (s *Scheduler) Start() error {
	// Prune old analyses daily at 03:00
	_, err := s.scheduler.NewJob(
		gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(3, 0, 0))),
		gocron.NewTask(s.pruneHistory),
		gocron.WithName(JobPruneHistory),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("registering %s: %w", JobPruneHistory, err)
	}

	// Health check the model every 5 minutes, and once at startup
	_, err = s.scheduler.NewJob(
		gocron.DurationJob(5*time.Minute),
		gocron.NewTask(s.healthCheck),
		gocron.WithName(JobHealthCheck),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("registering %s: %w", JobHealthCheck, err)
	}

	s.scheduler.Start()
	s.logger.Info("scheduler started",
		zap.String("timezone", s.timezone.String()),
		zap.Duration("retention", s.retention))
	return nil
}

// Stop stops the scheduler
func (s *Scheduler) Stop() error {
	return s.scheduler.Shutdown()
}

// ModelHealthy is the result of the most recent health check.
func (s *Scheduler) ModelHealthy() bool {
	return s.modelHealthy.Load()
}

func (s *Scheduler) pruneHistory() {
	if _, err := s.PruneNow(); err != nil {
		s.logger.Error("pruning history failed", zap.Error(err))
	}
}

// PruneNow deletes analyses and run records older than the retention period
// and records the run. It returns how many were removed.
func (s *Scheduler) PruneNow() (int64, error) {
	runID, err := s.db.StartSchedulerRun(systemActor, JobPruneHistory)
	if err != nil {
		return 0, fmt.Errorf("recording run start: %w", err)
	}

	cutoff := time.Now().Add(-s.retention)
	pruned, err := s.db.PruneAnalyses(cutoff)
	if err == nil {
		_, err = s.db.PruneSchedulerRuns(cutoff)
	}
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	if cerr := s.db.CompleteSchedulerRun(runID, errMsg); cerr != nil {
		s.logger.Warn("recording run completion", zap.Int64("run_id", runID), zap.Error(cerr))
	}
	if err != nil {
		return 0, fmt.Errorf("pruning analyses: %w", err)
	}

	s.logger.Info("pruned history",
		zap.Int64("removed", pruned),
		zap.Time("cutoff", cutoff))

	if s.reports != nil && pruned > 0 {
		entry := report.LogEntry{
			ID:     fmt.Sprintf("prune_%d", runID),
			TS:     time.Now().UTC().Format(time.RFC3339),
			Actor:  systemActor,
			Status: report.StatusPruned,
		}
		if err := s.reports.LogAnalysis(entry); err != nil {
			s.logger.Warn("logging prune", zap.Error(err))
		}
	}
	return pruned, nil
}

func (s *Scheduler) healthCheck() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s.CheckModelNow(ctx)
}

// CheckModelNow runs a health check immediately and records the run.
func (s *Scheduler) CheckModelNow(ctx context.Context) error {
	runID, err := s.db.StartSchedulerRun(systemActor, JobHealthCheck)
	if err != nil {
		s.logger.Warn("recording run start", zap.Error(err))
	}

	checkErr := s.model.HealthCheck(ctx)
	healthy := checkErr == nil
	if was := s.modelHealthy.Swap(healthy); was != healthy || !healthy {
		if healthy {
			s.logger.Info("model reachable")
		} else {
			s.logger.Warn("model unreachable", zap.Error(checkErr))
		}
	}

	if runID != 0 {
		errMsg := ""
		if checkErr != nil {
			errMsg = checkErr.Error()
		}
		if err := s.db.CompleteSchedulerRun(runID, errMsg); err != nil {
			s.logger.Warn("recording run completion", zap.Int64("run_id", runID), zap.Error(err))
		}
	}
	return checkErr
}
