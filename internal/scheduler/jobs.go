package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/karzamisca/TaskManager-sub000/internal/sftpmanager"
)

// Purger deletes audit records past retention.
type Purger interface {
	PurgeOlderThan(days int) (int64, error)
}

// Sweeper removes stale staged files.
type Sweeper interface {
	Sweep(maxAge time.Duration) (int, error)
}

// Prober is the subset of the manager the probe job uses.
type Prober interface {
	IsConnected() bool
	Stat(ctx context.Context, path string) (sftpmanager.FileEntry, error)
}

// PurgeJob purges audit records using the auditor's retention.
func PurgeJob(p Purger) func(context.Context) error {
	return func(context.Context) error {
		_, err := p.PurgeOlderThan(0)
		return err
	}
}

// SweepJob removes staged files older than maxAge.
func SweepJob(s Sweeper, maxAge time.Duration) func(context.Context) error {
	return func(context.Context) error {
		_, err := s.Sweep(maxAge)
		return err
	}
}

// ProbeJob stats the remote working directory while connected. It does not
// reconnect; the manager's keepalive and reconnect policy own recovery.
func ProbeJob(p Prober, timeout time.Duration) func(context.Context) error {
	return func(ctx context.Context) error {
		if !p.IsConnected() {
			return nil
		}
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		_, err := p.Stat(ctx, ".")
		if errors.Is(err, sftpmanager.ErrNotConnected) {
			return nil
		}
		return err
	}
}
