// Package schedule regenerates documents periodically.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/hpv-information-centre/reportcompiler/internal/logfields"
)

// Task is one scheduled regeneration.
type Task func(ctx context.Context) error

// Scheduler wraps a gocron scheduler running a single periodic task.
type Scheduler struct {
	scheduler gocron.Scheduler
	logger    *slog.Logger
}

// NewScheduler creates a new scheduler instance.
func NewScheduler() (*Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	return &Scheduler{scheduler: s, logger: slog.Default()}, nil
}

func (s *Scheduler) WithLogger(logger *slog.Logger) *Scheduler {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// Every schedules task at interval. Runs never overlap: a run still in
// progress when the next one is due makes gocron skip it. With immediately
// set the first run starts right away instead of after one interval.
func (s *Scheduler) Every(ctx context.Context, name string, interval time.Duration, immediately bool, task Task) (string, error) {
	if interval <= 0 {
		return "", errors.New("schedule interval must be positive")
	}
	opts := []gocron.JobOption{
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithContext(ctx),
	}
	if immediately {
		opts = append(opts, gocron.WithStartAt(gocron.WithStartImmediately()))
	}
	job, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(s.execute, name, task),
		opts...,
	)
	if err != nil {
		return "", fmt.Errorf("failed to create periodic job: %w", err)
	}
	s.logger.Info("Scheduled periodic generation",
		slog.String("job", name),
		slog.Duration("interval", interval))
	return job.ID().String(), nil
}

// execute is called by gocron. The context is the one given to Every.
func (s *Scheduler) execute(ctx context.Context, name string, task Task) {
	start := time.Now()
	s.logger.Info("Executing scheduled generation", slog.String("job", name))
	if err := task(ctx); err != nil {
		s.logger.Warn("Scheduled generation failed", slog.String("job", name), logfields.Error(err))
		return
	}
	s.logger.Info("Scheduled generation finished",
		slog.String("job", name),
		logfields.DurationMS(float64(time.Since(start).Microseconds())/1000))
}

// Start begins the scheduler.
func (s *Scheduler) Start() {
	s.logger.Info("Starting scheduler")
	s.scheduler.Start()
}

// Stop gracefully shuts down the scheduler, waiting for a running task.
func (s *Scheduler) Stop() error {
	s.logger.Info("Stopping scheduler")
	return s.scheduler.Shutdown()
}

// Run starts the scheduler and blocks until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	s.Start()
	<-ctx.Done()
	return s.Stop()
}
