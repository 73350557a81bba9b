// Package sched drives recurring signal runs from cron expressions.
package sched

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/crossrank/crossrank/internal/config"
	"github.com/crossrank/crossrank/internal/run"
)

// shutdownWait bounds how long Stop waits for an in-flight run.
const shutdownWait = 30 * time.Second

// JobStatus is the externally visible state of one registered job.
type JobStatus struct {
	Name      string     `json:"name"`
	Schedule  string     `json:"schedule"`
	Enabled   bool       `json:"enabled"`
	NextRun   time.Time  `json:"next_run,omitempty"`
	LastRun   *time.Time `json:"last_run,omitempty"`
	LastError string     `json:"last_error,omitempty"`
}

// jobEntry tracks one registered job and its cron binding.
type jobEntry struct {
	name     string
	schedule string
	enabled  bool
	cronID   cron.EntryID
	lastRun  *time.Time
	lastErr  string
}

// Scheduler executes signal runs on cron schedules. All jobs share one
// runner; ticks that land while a run is still executing are skipped,
// never queued.
type Scheduler struct {
	cron   *cron.Cron
	runner *run.Runner

	mu    sync.Mutex
	jobs  map[string]*jobEntry
	runMu sync.Mutex
}

// New creates a scheduler using standard five-field cron expressions.
func New(runner *run.Runner) *Scheduler {
	return &Scheduler{
		cron:   cron.New(),
		runner: runner,
		jobs:   make(map[string]*jobEntry),
	}
}

// Register adds one job from config. Disabled jobs are tracked but never
// bound to a cron entry.
func (s *Scheduler) Register(job config.JobConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.Name]; exists {
		return fmt.Errorf("job %s already registered", job.Name)
	}

	entry := &jobEntry{
		name:     job.Name,
		schedule: job.Cron,
		enabled:  job.Enabled,
	}

	if job.Enabled {
		cronID, err := s.cron.AddFunc(job.Cron, func() {
			s.execute(job.Name)
		})
		if err != nil {
			return fmt.Errorf("failed to add job %s to cron: %w", job.Name, err)
		}
		entry.cronID = cronID
	}

	s.jobs[job.Name] = entry

	log.Info().
		Str("job_name", job.Name).
		Str("schedule", job.Cron).
		Bool("enabled", job.Enabled).
		Msg("Job registered")
	return nil
}

// RegisterAll adds every configured job, failing on the first bad one.
func (s *Scheduler) RegisterAll(jobs []config.JobConfig) error {
	for _, job := range jobs {
		if err := s.Register(job); err != nil {
			return err
		}
	}
	return nil
}

// Start begins firing registered jobs.
func (s *Scheduler) Start() {
	s.cron.Start()
	log.Info().Int("jobs", len(s.Jobs())).Msg("Scheduler started")
}

// Stop halts scheduling and waits for any in-flight run to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	select {
	case <-ctx.Done():
		log.Info().Msg("Scheduler stopped")
	case <-time.After(shutdownWait):
		log.Warn().Msg("Scheduler stopped with a run still executing")
	}
}

// Jobs returns the status of every registered job, sorted by name.
func (s *Scheduler) Jobs() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	statuses := make([]JobStatus, 0, len(s.jobs))
	for _, entry := range s.jobs {
		status := JobStatus{
			Name:      entry.name,
			Schedule:  entry.schedule,
			Enabled:   entry.enabled,
			LastRun:   entry.lastRun,
			LastError: entry.lastErr,
		}
		if entry.enabled {
			status.NextRun = s.cron.Entry(entry.cronID).Next
		}
		statuses = append(statuses, status)
	}

	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Name < statuses[j].Name })
	return statuses
}

// RunNow executes a registered job immediately, outside its schedule.
func (s *Scheduler) RunNow(name string) error {
	s.mu.Lock()
	_, exists := s.jobs[name]
	s.mu.Unlock()
	if !exists {
		return fmt.Errorf("job %s not found", name)
	}

	if !s.execute(name) {
		return fmt.Errorf("job %s skipped: another run is executing", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if lastErr := s.jobs[name].lastErr; lastErr != "" {
		return fmt.Errorf("job %s failed: %s", name, lastErr)
	}
	return nil
}

// execute runs the job once and reports whether it ran. Overlapping ticks
// are dropped so slow sources cannot pile up runs.
func (s *Scheduler) execute(name string) (ran bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("job_name", name).
				Str("panic", fmt.Sprintf("%v", r)).
				Msg("Panic recovered in job execution")
			s.recordResult(name, fmt.Errorf("panic: %v", r))
		}
	}()

	if !s.runMu.TryLock() {
		log.Warn().Str("job_name", name).Msg("Skipping tick, previous run still executing")
		return false
	}
	defer s.runMu.Unlock()
	ran = true

	log.Info().Str("job_name", name).Msg("Job execution started")

	now := time.Now()
	s.mu.Lock()
	if entry, exists := s.jobs[name]; exists {
		entry.lastRun = &now
	}
	s.mu.Unlock()

	_, err := s.runner.Run(context.Background())
	s.recordResult(name, err)

	if err != nil {
		log.Error().Err(err).Str("job_name", name).Msg("Job execution failed")
		return ran
	}
	log.Info().Str("job_name", name).Msg("Job execution completed")
	return ran
}

func (s *Scheduler) recordResult(name string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, exists := s.jobs[name]
	if !exists {
		return
	}
	if err != nil {
		entry.lastErr = err.Error()
		return
	}
	entry.lastErr = ""
}
