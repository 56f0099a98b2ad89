// Package scheduler runs the periodic maintenance jobs: audit purge,
// staging sweep and connection probe.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Scheduler wraps a cron runner whose jobs are panic-safe and logged.
type Scheduler struct {
	cron *cron.Cron
	log  *logrus.Entry
}

// New returns a stopped Scheduler.
func New() *Scheduler {
	log := logrus.WithField("component", "scheduler")
	logger := cronLogger{log}
	return &Scheduler{
		cron: cron.New(cron.WithLogger(logger), cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger))),
		log:  log,
	}
}

// Add registers fn under name with a standard five-field spec or a
// descriptor such as "@every 5m".
func (s *Scheduler) Add(name, spec string, fn func(ctx context.Context) error) error {
	_, err := s.cron.AddFunc(spec, func() {
		start := time.Now()
		entry := s.log.WithField("job", name)
		if err := fn(context.Background()); err != nil {
			entry.WithError(err).WithField("duration", time.Since(start)).Warn("job failed")
			return
		}
		entry.WithField("duration", time.Since(start)).Debug("job done")
	})
	if err != nil {
		return fmt.Errorf("schedule %s (%q): %w", name, spec, err)
	}
	s.log.WithFields(logrus.Fields{"job": name, "spec": spec}).Info("job scheduled")
	return nil
}

// Len returns the number of registered jobs.
func (s *Scheduler) Len() int { return len(s.cron.Entries()) }

// Start begins running jobs in the background.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop stops scheduling and waits for running jobs or ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cronLogger adapts logrus to cron.Logger.
type cronLogger struct{ e *logrus.Entry }

func (l cronLogger) Info(msg string, kv ...interface{}) {
	l.e.WithFields(fields(kv)).Debug(msg)
}

func (l cronLogger) Error(err error, msg string, kv ...interface{}) {
	l.e.WithError(err).WithFields(fields(kv)).Error(msg)
}

func fields(kv []interface{}) logrus.Fields {
	f := logrus.Fields{}
	for i := 0; i+1 < len(kv); i += 2 {
		f[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return f
}
