package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/mrwolf/her-server/internal/logger"
)

// JobLLMProbe is the scheduler_runs job type of the model availability probe
const JobLLMProbe = "llm_probe"

// DefaultProbeInterval is how often the model is probed
const DefaultProbeInterval = 5 * time.Minute

// Prober checks whether the language model answers. *llm.Client satisfies it.
type Prober interface {
	HealthCheck(ctx context.Context) error
}

// AvailabilitySetter receives probe results. *counselor.Counselor satisfies it.
type AvailabilitySetter interface {
	SetAvailable(ok bool)
}

// RunRecorder bookkeeps job runs. *db.DB satisfies it.
type RunRecorder interface {
	StartSchedulerRun(jobType string) (int64, error)
	CompleteSchedulerRun(runID int64, errMsg string) error
}

// Scheduler manages scheduled jobs
type Scheduler struct {
	scheduler gocron.Scheduler
	prober    Prober
	target    AvailabilitySetter
	runs      RunRecorder
	interval  time.Duration
	log       *logger.Logger
}

// Config holds scheduler configuration
type Config struct {
	Timezone      string
	ProbeInterval time.Duration
	Log           *logger.Logger
}

// New creates a new scheduler. runs may be nil.
func New(prober Prober, target AvailabilitySetter, runs RunRecorder, cfg Config) (*Scheduler, error) {
	tz, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		tz = time.UTC
	}

	s, err := gocron.NewScheduler(gocron.WithLocation(tz))
	if err != nil {
		return nil, err
	}

	interval := cfg.ProbeInterval
	if interval <= 0 {
		interval = DefaultProbeInterval
	}
	log := cfg.Log
	if log == nil {
		log = logger.Nop()
	}

	return &Scheduler{
		scheduler: s,
		prober:    prober,
		target:    target,
		runs:      runs,
		interval:  interval,
		log:       log,
	}, nil
}

// Start registers the jobs and starts the scheduler. The probe runs once
// immediately.
func (s *Scheduler) Start() error {
	_, err := s.scheduler.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(s.probeJob),
		gocron.WithName(JobLLMProbe),
		gocron.WithStartAt(gocron.WithStartImmediately()),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return err
	}

	s.scheduler.Start()
	s.log.Info("scheduler started", "probe_interval", s.interval.String())
	return nil
}

// Stop stops the scheduler
func (s *Scheduler) Stop() error {
	return s.scheduler.Shutdown()
}

func (s *Scheduler) probeJob() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.ProbeNow(ctx)
}

// ProbeNow checks the model once, updates availability and records the run.
// It reports whether the model answered.
func (s *Scheduler) ProbeNow(ctx context.Context) bool {
	var runID int64
	if s.runs != nil {
		id, err := s.runs.StartSchedulerRun(JobLLMProbe)
		if err != nil {
			s.log.Warn("recording probe start failed", "error", err)
		} else {
			runID = id
		}
	}

	err := s.prober.HealthCheck(ctx)
	s.target.SetAvailable(err == nil)

	errMsg := ""
	if err != nil {
		errMsg = err.Error()
		s.log.Warn("language model unreachable", "error", err)
	}
	if runID != 0 {
		if err := s.runs.CompleteSchedulerRun(runID, errMsg); err != nil {
			s.log.Warn("recording probe result failed", "error", err)
		}
	}
	return err == nil
}
