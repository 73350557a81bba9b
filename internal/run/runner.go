// Package run orchestrates one signal run end to end: fetch the factor
// panel from the configured source, compute signals, and land artifacts.
package run

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/crossrank/crossrank/internal/artifacts"
	"github.com/crossrank/crossrank/internal/config"
	"github.com/crossrank/crossrank/internal/metrics"
	"github.com/crossrank/crossrank/internal/signal"
	"github.com/crossrank/crossrank/internal/source"
)

// Run stages, in execution order.
const (
	StageFetch     = "fetch"
	StageCompute   = "compute"
	StageArtifacts = "artifacts"
)

// Event is one progress update emitted while a run executes.
type Event struct {
	RunID   string    `json:"run_id"`
	Stage   string    `json:"stage"`
	Status  string    `json:"status"`
	Message string    `json:"message,omitempty"`
	Rows    int       `json:"rows,omitempty"`
	Cols    int       `json:"cols,omitempty"`
	Time    time.Time `json:"time"`
}

// Sink receives run events. Implementations must not block; slow consumers
// drop events rather than stall the run.
type Sink interface {
	Publish(Event)
}

// Result summarizes one completed run.
type Result struct {
	RunID            string          `json:"run_id"`
	Started          time.Time       `json:"started"`
	Source           string          `json:"source"`
	Policy           string          `json:"policy"`
	Percent          float64         `json:"percent"`
	HoldDays         int             `json:"hold_days"`
	Rows             int             `json:"rows"`
	Cols             int             `json:"cols"`
	Decisions        int             `json:"decisions"`
	MissingDecisions int             `json:"missing_decisions"`
	ProcessingTime   string          `json:"processing_time"`
	Artifacts        artifacts.Paths `json:"artifacts"`
}

// Runner executes signal runs against a fixed source and engine.
type Runner struct {
	cfg    *config.Config
	src    source.Source
	engine *signal.Engine
	reg    *metrics.Registry

	mu     sync.RWMutex
	sink   Sink
	latest *Result
}

// New creates a runner. The engine is built from cfg.Signals once; every
// Run call reuses it.
func New(cfg *config.Config, src source.Source, reg *metrics.Registry) (*Runner, error) {
	engine, err := signal.NewEngine(cfg.Signals)
	if err != nil {
		return nil, fmt.Errorf("failed to build signal engine: %w", err)
	}
	return &Runner{cfg: cfg, src: src, engine: engine, reg: reg}, nil
}

// SetSink attaches a progress event sink for streaming updates.
func (r *Runner) SetSink(sink Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sink = sink
}

// Latest returns the most recent completed run, if any.
func (r *Runner) Latest() (*Result, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.latest, r.latest != nil
}

// Run executes the complete signal pipeline.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	runID := uuid.New().String()[:8]
	started := time.Now()

	r.reg.RunStarted()
	defer func() { r.reg.RunFinished(time.Since(started)) }()

	log.Info().
		Str("run_id", runID).
		Str("source", r.src.Name()).
		Str("policy", r.engine.Params().Policy.String()).
		Float64("percent", r.engine.Params().Percent).
		Msg("Starting signal run")

	r.emit(Event{RunID: runID, Stage: StageFetch, Status: "started"})
	fetchTimer := r.reg.StartStageTimer(StageFetch)
	p, err := r.src.Fetch(ctx)
	if err != nil {
		fetchTimer.Stop("error")
		return nil, r.fail(runID, StageFetch, fmt.Errorf("failed to fetch factor panel: %w", err))
	}
	fetchTimer.Stop("success")

	r.emit(Event{RunID: runID, Stage: StageCompute, Status: "started", Rows: p.Rows(), Cols: p.Cols()})
	computeTimer := r.reg.StartStageTimer(StageCompute)
	res, err := r.engine.Compute(p)
	if err != nil {
		computeTimer.Stop("error")
		return nil, r.fail(runID, StageCompute, fmt.Errorf("signal computation failed: %w", err))
	}
	computeTimer.Stop("success")

	missing := res.MissingDecisions()
	r.reg.RecordComputation(r.engine.Params().Policy.String(), p.Rows(), len(res.Decisions), missing)

	r.emit(Event{RunID: runID, Stage: StageArtifacts, Status: "started"})
	artifactsTimer := r.reg.StartStageTimer(StageArtifacts)
	writer := artifacts.NewWriter(r.cfg.Artifacts.Dir)
	if err := r.writeArtifacts(writer, runID, started, p.Rows(), p.Cols(), res, missing); err != nil {
		artifactsTimer.Stop("error")
		return nil, r.fail(runID, StageArtifacts, err)
	}
	artifactsTimer.Stop("success")

	result := &Result{
		RunID:            runID,
		Started:          started,
		Source:           r.src.Name(),
		Policy:           r.engine.Params().Policy.String(),
		Percent:          r.engine.Params().Percent,
		HoldDays:         r.engine.Params().HoldDays,
		Rows:             p.Rows(),
		Cols:             p.Cols(),
		Decisions:        len(res.Decisions),
		MissingDecisions: missing,
		ProcessingTime:   time.Since(started).String(),
		Artifacts:        writer.Paths(),
	}

	r.mu.Lock()
	r.latest = result
	r.mu.Unlock()
	r.reg.RecordRunInfo(runID, result.Policy, result.Source)

	log.Info().
		Str("run_id", runID).
		Int("rows", result.Rows).
		Int("cols", result.Cols).
		Int("decisions", result.Decisions).
		Int("missing_decisions", result.MissingDecisions).
		Str("duration", result.ProcessingTime).
		Msg("Signal run completed")

	r.emit(Event{
		RunID:  runID,
		Stage:  "done",
		Status: "completed",
		Rows:   result.Rows,
		Cols:   result.Cols,
	})
	return result, nil
}

func (r *Runner) writeArtifacts(w *artifacts.Writer, runID string, started time.Time, rows, cols int, res *signal.Result, missing int) error {
	if err := w.WriteSignals(res.Signals); err != nil {
		return err
	}
	summary := artifacts.Summary{
		RunID:            runID,
		Generated:        started,
		Source:           r.src.Name(),
		Policy:           r.engine.Params().Policy.String(),
		Percent:          r.engine.Params().Percent,
		HoldDays:         r.engine.Params().HoldDays,
		Rows:             rows,
		Cols:             cols,
		Decisions:        len(res.Decisions),
		MissingDecisions: missing,
		Elapsed:          time.Since(started),
	}
	if err := w.WriteSummary(summary); err != nil {
		return err
	}
	return w.WriteReport(summary, res.Decisions)
}

// fail records the error against its stage and emits a terminal event.
func (r *Runner) fail(runID, stage string, err error) error {
	r.reg.RecordRunError(stage)
	log.Error().Err(err).Str("run_id", runID).Str("stage", stage).Msg("Signal run failed")
	r.emit(Event{RunID: runID, Stage: stage, Status: "failed", Message: err.Error()})
	return err
}

func (r *Runner) emit(ev Event) {
	r.mu.RLock()
	sink := r.sink
	r.mu.RUnlock()
	if sink == nil {
		return
	}
	ev.Time = time.Now()
	sink.Publish(ev)
}
