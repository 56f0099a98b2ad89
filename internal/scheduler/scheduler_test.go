package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karzamisca/TaskManager-sub000/internal/sftpmanager"
)

func TestAdd_InvalidSpec(t *testing.T) {
	s := New()
	err := s.Add("bad", "not a spec", func(context.Context) error { return nil })
	assert.Error(t, err)
	assert.Equal(t, 0, s.Len())
}

func TestJobsRunAndSurvivePanics(t *testing.T) {
	s := New()
	var ran, afterPanic atomic.Int32

	require.NoError(t, s.Add("count", "@every 1s", func(context.Context) error {
		ran.Add(1)
		return errors.New("logged, not fatal")
	}))
	require.NoError(t, s.Add("panics", "@every 1s", func(context.Context) error {
		afterPanic.Add(1)
		panic("boom")
	}))
	assert.Equal(t, 2, s.Len())

	s.Start()
	require.Eventually(t, func() bool { return ran.Load() >= 2 && afterPanic.Load() >= 2 }, 5*time.Second, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
}

type fakePurger struct{ days []int }

func (f *fakePurger) PurgeOlderThan(days int) (int64, error) {
	f.days = append(f.days, days)
	return 3, nil
}

type fakeSweeper struct{ maxAge time.Duration }

func (f *fakeSweeper) Sweep(maxAge time.Duration) (int, error) {
	f.maxAge = maxAge
	return 0, nil
}

type fakeProber struct {
	connected bool
	err       error
	stats     int
}

func (f *fakeProber) IsConnected() bool { return f.connected }

func (f *fakeProber) Stat(ctx context.Context, path string) (sftpmanager.FileEntry, error) {
	f.stats++
	if _, ok := ctx.Deadline(); !ok {
		return sftpmanager.FileEntry{}, errors.New("probe must be bounded")
	}
	return sftpmanager.FileEntry{Name: path}, f.err
}

func TestPurgeAndSweepJobs(t *testing.T) {
	p := &fakePurger{}
	require.NoError(t, PurgeJob(p)(context.Background()))
	assert.Equal(t, []int{0}, p.days)

	s := &fakeSweeper{}
	require.NoError(t, SweepJob(s, time.Hour)(context.Background()))
	assert.Equal(t, time.Hour, s.maxAge)
}

func TestProbeJob(t *testing.T) {
	p := &fakeProber{}
	require.NoError(t, ProbeJob(p, time.Second)(context.Background()))
	assert.Equal(t, 0, p.stats, "no probe while disconnected")

	p.connected = true
	require.NoError(t, ProbeJob(p, time.Second)(context.Background()))
	assert.Equal(t, 1, p.stats)

	p.err = &sftpmanager.OperationError{Op: "stat", Path: ".", Err: errors.New("timeout")}
	assert.Error(t, ProbeJob(p, time.Second)(context.Background()))

	p.err = sftpmanager.ErrNotConnected
	assert.NoError(t, ProbeJob(p, time.Second)(context.Background()))
}
