package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

const stopTimeout = 30 * time.Second

type RunnerConfig struct {
	CheckSchedule string
	PurgeSchedule string
	RunOnStart    bool
	Location      *time.Location
}

// Runner triggers poll cycles and purges on cron schedules.
type Runner struct {
	app    *App
	cron   *cron.Cron
	config RunnerConfig
	now    func() time.Time
}

func NewRunner(app *App, config RunnerConfig) *Runner {
	if config.Location == nil {
		config.Location = time.UTC
	}
	logger := cronLogger{}
	return &Runner{
		app: app,
		cron: cron.New(
			cron.WithLocation(config.Location),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		config: config,
		now:    time.Now,
	}
}

// Start registers the jobs and starts the scheduler. With RunOnStart one cycle
// runs synchronously before Start returns.
func (r *Runner) Start(ctx context.Context) error {
	if _, err := r.cron.AddFunc(r.config.CheckSchedule, func() { r.poll(ctx) }); err != nil {
		return fmt.Errorf("invalid check schedule %q: %w", r.config.CheckSchedule, err)
	}
	if r.config.PurgeSchedule != "" {
		if _, err := r.cron.AddFunc(r.config.PurgeSchedule, func() { r.purge(ctx) }); err != nil {
			return fmt.Errorf("invalid purge schedule %q: %w", r.config.PurgeSchedule, err)
		}
	}

	if r.config.RunOnStart {
		r.poll(ctx)
	}
	r.cron.Start()
	log.Infof("scheduler started: check %q, purge %q", r.config.CheckSchedule, r.config.PurgeSchedule)
	return nil
}

// Stop prevents new runs and waits for a running job to finish.
func (r *Runner) Stop() {
	done := r.cron.Stop()
	select {
	case <-done.Done():
	case <-time.After(stopTimeout):
		log.Warn("timed out waiting for running jobs")
	}
}

func (r *Runner) poll(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	_, err := r.app.RunCycle(ctx, r.now())
	if errors.Is(err, ErrCycleInProgress) {
		log.Warn("previous cycle is still running, skipping")
	}
}

func (r *Runner) purge(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	r.app.Purge(ctx)
}

// cronLogger routes cron's own messages to logrus.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	log.WithFields(fields(keysAndValues)).Debug("cron: " + msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	log.WithFields(fields(keysAndValues)).WithError(err).Error("cron: " + msg)
}

func fields(keysAndValues []interface{}) log.Fields {
	f := make(log.Fields, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		f[key] = keysAndValues[i+1]
	}
	return f
}
