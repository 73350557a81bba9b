package sched

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crossrank/crossrank/internal/config"
	"github.com/crossrank/crossrank/internal/metrics"
	"github.com/crossrank/crossrank/internal/panel"
	"github.com/crossrank/crossrank/internal/run"
)

type stubSource struct {
	fetches atomic.Int32
	err     error
	gate    chan struct{}
}

func (s *stubSource) Fetch(ctx context.Context) (*panel.Panel, error) {
	s.fetches.Add(1)
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return panel.FromRows([][]float64{{1, 2, 3, 4}})
}

func (s *stubSource) Name() string { return "stub:sched" }

func newScheduler(t *testing.T, src *stubSource) *Scheduler {
	t.Helper()
	cfg := config.Default()
	cfg.Signals.Percent = 0.25
	cfg.Artifacts.Dir = t.TempDir()

	runner, err := run.New(cfg, src, metrics.NewRegistryOn(prometheus.NewRegistry()))
	require.NoError(t, err)
	return New(runner)
}

func TestScheduler_Register(t *testing.T) {
	s := newScheduler(t, &stubSource{})

	require.NoError(t, s.Register(config.JobConfig{Name: "hourly", Cron: "0 * * * *", Enabled: true}))
	require.NoError(t, s.Register(config.JobConfig{Name: "paused", Cron: "30 2 * * *", Enabled: false}))

	jobs := s.Jobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, "hourly", jobs[0].Name, "jobs should sort by name")
	assert.True(t, jobs[0].Enabled)
	assert.Equal(t, "paused", jobs[1].Name)
	assert.False(t, jobs[1].Enabled)
	assert.True(t, jobs[1].NextRun.IsZero(), "disabled jobs never schedule")
}

func TestScheduler_Register_BadCron(t *testing.T) {
	s := newScheduler(t, &stubSource{})

	err := s.Register(config.JobConfig{Name: "broken", Cron: "not a cron", Enabled: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to add job broken to cron")
}

func TestScheduler_Register_Duplicate(t *testing.T) {
	s := newScheduler(t, &stubSource{})

	require.NoError(t, s.Register(config.JobConfig{Name: "daily", Cron: "0 6 * * *", Enabled: true}))
	err := s.Register(config.JobConfig{Name: "daily", Cron: "0 7 * * *", Enabled: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "job daily already registered")
}

func TestScheduler_RegisterAll_StopsOnFirstError(t *testing.T) {
	s := newScheduler(t, &stubSource{})

	err := s.RegisterAll([]config.JobConfig{
		{Name: "ok", Cron: "0 * * * *", Enabled: true},
		{Name: "bad", Cron: "nope", Enabled: true},
		{Name: "never", Cron: "0 * * * *", Enabled: true},
	})
	require.Error(t, err)
	assert.Len(t, s.Jobs(), 1, "jobs after the failure should not register")
}

func TestScheduler_Execute_RunsAndRecords(t *testing.T) {
	src := &stubSource{}
	s := newScheduler(t, src)
	require.NoError(t, s.Register(config.JobConfig{Name: "daily", Cron: "0 6 * * *", Enabled: true}))

	s.execute("daily")

	assert.Equal(t, int32(1), src.fetches.Load())
	_, ok := s.runner.Latest()
	assert.True(t, ok, "a completed job should leave a latest result")

	jobs := s.Jobs()
	require.NotNil(t, jobs[0].LastRun)
	assert.Empty(t, jobs[0].LastError)
}

func TestScheduler_Execute_RecordsFailure(t *testing.T) {
	src := &stubSource{err: assert.AnError}
	s := newScheduler(t, src)
	require.NoError(t, s.Register(config.JobConfig{Name: "daily", Cron: "0 6 * * *", Enabled: true}))

	s.execute("daily")

	jobs := s.Jobs()
	assert.Contains(t, jobs[0].LastError, "failed to fetch factor panel")

	// A later success clears the recorded error.
	src.err = nil
	s.execute("daily")
	assert.Empty(t, s.Jobs()[0].LastError)
}

func TestScheduler_Execute_SkipsOverlap(t *testing.T) {
	src := &stubSource{gate: make(chan struct{})}
	s := newScheduler(t, src)
	require.NoError(t, s.Register(config.JobConfig{Name: "daily", Cron: "0 6 * * *", Enabled: true}))

	done := make(chan struct{})
	go func() {
		s.execute("daily")
		close(done)
	}()

	require.Eventually(t, func() bool { return src.fetches.Load() == 1 }, time.Second, 5*time.Millisecond)

	// The overlapping tick must return immediately without a second fetch.
	s.execute("daily")
	assert.Equal(t, int32(1), src.fetches.Load())

	close(src.gate)
	<-done
}

func TestScheduler_RunNow(t *testing.T) {
	src := &stubSource{}
	s := newScheduler(t, src)
	require.NoError(t, s.Register(config.JobConfig{Name: "daily", Cron: "0 6 * * *", Enabled: true}))

	require.NoError(t, s.RunNow("daily"))
	assert.Equal(t, int32(1), src.fetches.Load())

	err := s.RunNow("ghost")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "job ghost not found")

	src.err = assert.AnError
	err = s.RunNow("daily")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "job daily failed")
}

func TestScheduler_StartFiresJob(t *testing.T) {
	src := &stubSource{}
	s := newScheduler(t, src)
	require.NoError(t, s.Register(config.JobConfig{Name: "fast", Cron: "@every 100ms", Enabled: true}))

	s.Start()
	defer s.Stop()

	require.Eventually(t, func() bool {
		_, ok := s.runner.Latest()
		return ok
	}, 3*time.Second, 20*time.Millisecond, "scheduled job should complete a run")

	jobs := s.Jobs()
	assert.False(t, jobs[0].NextRun.IsZero(), "a started job should have a next fire time")
}
