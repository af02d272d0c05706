// Package runner runs a task in all five worlds, scores each attempt and
// keeps only the winner's sandbox.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalnine/fiveworlds/internal/breaker"
	"github.com/signalnine/fiveworlds/internal/notify"
	"github.com/signalnine/fiveworlds/internal/sandbox"
	"github.com/signalnine/fiveworlds/internal/telemetry"
	"github.com/signalnine/fiveworlds/internal/validation"
	"github.com/signalnine/fiveworlds/internal/world"
)

// ErrSpawn is returned when the sandboxes could not be created. It is the
// only error Execute returns after a run has started.
var ErrSpawn = errors.New("spawning sandboxes")

type Mode string

const (
	Parallel   Mode = "parallel"
	Sequential Mode = "sequential"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(s)) {
	case Parallel, "":
		return Parallel, nil
	case Sequential:
		return Sequential, nil
	}
	return "", fmt.Errorf("unknown mode %q", s)
}

// Outcome is what a world runner reports for a finished attempt.
type Outcome struct {
	Signals validation.Signals
	CostUSD float64
	Tokens  int
	Patch   []byte
}

// WorldRunner generates and reviews a candidate for task inside sandboxPath.
// An error means the attempt failed; its message becomes the result reason.
type WorldRunner interface {
	RunWorld(ctx context.Context, cfg world.Config, task world.Task, sandboxPath string) (*Outcome, error)
}

type RunnerFunc func(ctx context.Context, cfg world.Config, task world.Task, sandboxPath string) (*Outcome, error)

func (f RunnerFunc) RunWorld(ctx context.Context, cfg world.Config, task world.Task, sandboxPath string) (*Outcome, error) {
	return f(ctx, cfg, task, sandboxPath)
}

// SandboxManager is satisfied by *sandbox.Manager.
type SandboxManager interface {
	Root() string
	SpawnAllWorlds(ctx context.Context, ticket int, taskID, runTag string) ([world.Count]sandbox.Handle, error)
	CleanupWorld(ctx context.Context, h sandbox.Handle) error
	CleanupAllWorldsForIssue(ctx context.Context, ticket int) error
	List(ticket int) ([]string, error)
}

// Limiter is satisfied by *scaler.Scaler.
type Limiter interface {
	CurrentLimit() int
}

type Options struct {
	Sandboxes SandboxManager
	Runner    WorldRunner
	Breakers  *breaker.Registry
	// Limiter sizes the parallel gate. Nil allows all five worlds at once.
	Limiter Limiter
	Mode    Mode
	// WorldTimeout bounds each world's attempt. Zero means no bound.
	WorldTimeout time.Duration
	Overrides    map[world.ID]world.Override
	Weights      validation.Weights
	// Sink must not block; wrap slow sinks in notify.NewAsync.
	Sink   notify.Sink
	Logger *slog.Logger
}

type Executor struct {
	opts   Options
	logger *slog.Logger
	sink   notify.Sink
	status *StatusTracker

	tracer        trace.Tracer
	outcomes      metric.Int64Counter
	skips         metric.Int64Counter
	worldDuration metric.Float64Histogram
	runDuration   metric.Float64Histogram
}

func New(opts Options) (*Executor, error) {
	if opts.Sandboxes == nil {
		return nil, errors.New("runner: sandbox manager is required")
	}
	if opts.Runner == nil {
		return nil, errors.New("runner: world runner is required")
	}
	if opts.Mode == "" {
		opts.Mode = Parallel
	}
	if _, err := ParseMode(string(opts.Mode)); err != nil {
		return nil, err
	}
	if opts.WorldTimeout < 0 {
		return nil, fmt.Errorf("runner: negative world timeout %s", opts.WorldTimeout)
	}
	if opts.Breakers == nil {
		opts.Breakers = breaker.NewRegistry(breaker.DefaultSettings)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "executor")

	meter := telemetry.Meter("fiveworlds/runner")
	outcomes, _ := meter.Int64Counter("fiveworlds.world.outcomes",
		metric.WithDescription("World attempts by final status"))
	skips, _ := meter.Int64Counter("fiveworlds.breaker.skips",
		metric.WithDescription("World attempts refused by an open breaker"))
	worldDur, _ := meter.Float64Histogram("fiveworlds.world.duration",
		metric.WithDescription("Time spent in one world attempt (ms)"),
		metric.WithUnit("ms"))
	runDur, _ := meter.Float64Histogram("fiveworlds.run.duration",
		metric.WithDescription("Time to execute all five worlds (ms)"),
		metric.WithUnit("ms"))

	return &Executor{
		opts:          opts,
		logger:        logger,
		sink:          notify.Safe(opts.Sink, logger),
		status:        NewStatusTracker(),
		tracer:        telemetry.Tracer("fiveworlds/runner"),
		outcomes:      outcomes,
		skips:         skips,
		worldDuration: worldDur,
		runDuration:   runDur,
	}, nil
}

// Status returns the advisory per-world attempt table of the latest run.
func (e *Executor) Status() []WorldExecutionStatus {
	return e.status.Snapshot()
}

// Breakers returns the registry the executor consults.
func (e *Executor) Breakers() *breaker.Registry {
	return e.opts.Breakers
}

// Execute attempts task in all five worlds. Only a sandbox spawn failure is
// returned as an error; every per-world failure is reported in the result.
// A result with a nil Winner means no world produced a usable candidate.
func (e *Executor) Execute(ctx context.Context, task world.Task, ticket int) (*FiveWorldsResult, error) {
	if err := task.Validate(); err != nil {
		return nil, err
	}
	runID := uuid.NewString()
	runTag := runID[:8]
	started := time.Now()

	ctx, span := e.tracer.Start(ctx, "fiveworlds.execute", trace.WithAttributes(
		attribute.String("fiveworlds.run_id", runID),
		attribute.String("fiveworlds.task_id", task.ID),
		attribute.Int("fiveworlds.ticket", ticket),
	))
	defer span.End()

	logger := e.logger.With("run_id", runID, "task", task.ID, "ticket", ticket)
	e.status.Reset()
	e.notify(notify.RunStarted, map[string]string{
		"run_id":  runID,
		"task_id": task.ID,
		"ticket":  strconv.Itoa(ticket),
		"title":   task.Title,
	})

	configs := e.configs(task, ticket, runTag)

	handles, err := e.opts.Sandboxes.SpawnAllWorlds(ctx, ticket, task.ID, runTag)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "spawn failed")
		logger.Error("sandbox spawn failed", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrSpawn, err)
	}
	for i := range configs {
		configs[i].SandboxPath = handles[i].Path
		configs[i].Branch = handles[i].Branch
	}
	e.notify(notify.SandboxesSpawned, map[string]string{
		"run_id": runID,
		"count":  strconv.Itoa(world.Count),
		"root":   e.opts.Sandboxes.Root(),
	})

	cleaned := false
	defer func() {
		if r := recover(); r != nil {
			if !cleaned {
				logger.Error("run panicked, removing sandboxes", "panic", fmt.Sprint(r))
				e.cleanup(ctx, runID, ticket, handles, nil, false)
			}
			panic(r)
		}
	}()

	limit := e.limit()
	logger.Info("executing worlds", "mode", e.opts.Mode, "limit", limit)
	e.notify(notify.ModeSelected, map[string]string{
		"run_id": runID,
		"mode":   string(e.opts.Mode),
		"limit":  strconv.Itoa(limit),
	})

	var slots [world.Count]*WorldExecutionResult
	var pending []world.ID
	for _, id := range world.All() {
		if e.opts.Breakers.For(id).State() == breaker.Open {
			slots[id.Index()] = e.skipped(ctx, configs[id.Index()])
			logger.Warn("world skipped", "world", id, "reason", ReasonCircuitOpen)
			continue
		}
		pending = append(pending, id)
	}

	switch e.opts.Mode {
	case Sequential:
		for _, id := range pending {
			slots[id.Index()] = e.runWorld(ctx, configs[id.Index()], task)
		}
	default:
		jobs := make([]Job, 0, len(pending))
		for _, id := range pending {
			idx := id.Index()
			jobs = append(jobs, func(ctx context.Context) error {
				slots[idx] = e.runWorld(ctx, configs[idx], task)
				return nil
			})
		}
		RunPool(ctx, limit, jobs)
	}

	results := make(map[world.ID]*WorldExecutionResult, world.Count)
	for i, id := range world.All() {
		if slots[i] == nil {
			slots[i] = e.notStarted(ctx, configs[i])
		}
		results[id] = slots[i]
	}

	out := &FiveWorldsResult{
		RunID:     runID,
		TaskID:    task.ID,
		Ticket:    ticket,
		Mode:      e.opts.Mode,
		Limit:     limit,
		Results:   results,
		Winner:    SelectWinner(results),
		StartedAt: started,
	}

	if w := out.WinnerResult(); w != nil {
		span.SetAttributes(attribute.String("fiveworlds.winner", w.World.String()))
		logger.Info("winner selected", "world", w.World, "score", w.Score.Total)
		e.notify(notify.WinnerSelected, map[string]string{
			"run_id": runID,
			"world":  w.World.String(),
			"score":  strconv.FormatFloat(w.Score.Total, 'f', 2, 64),
			"branch": w.Branch,
			"path":   w.SandboxPath,
		})
	} else {
		logger.Warn("no world succeeded")
		e.notify(notify.WinnerNone, map[string]string{"run_id": runID})
	}

	e.cleanup(ctx, runID, ticket, handles, out.Winner, out.Winner == nil)
	cleaned = true

	out.Duration = time.Since(started)
	e.runDuration.Record(ctx, float64(out.Duration.Milliseconds()))
	e.notify(notify.RunSummary, summaryParams(out))
	return out, nil
}

func (e *Executor) configs(task world.Task, ticket int, runTag string) [world.Count]world.Config {
	var configs [world.Count]world.Config
	root := e.opts.Sandboxes.Root()
	for i, id := range world.All() {
		cfg := world.DefaultConfig(id, task.ID, ticket, root, runTag)
		if o, ok := e.opts.Overrides[id]; ok {
			cfg = cfg.Apply(o)
		}
		configs[i] = cfg
	}
	return configs
}

func (e *Executor) limit() int {
	if e.opts.Mode == Sequential {
		return 1
	}
	if e.opts.Limiter == nil {
		return world.Count
	}
	return min(max(e.opts.Limiter.CurrentLimit(), 1), world.Count)
}

func newResult(cfg world.Config) *WorldExecutionResult {
	return &WorldExecutionResult{
		World:       cfg.World,
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		SandboxPath: cfg.SandboxPath,
		Branch:      cfg.Branch,
	}
}

func (e *Executor) skipped(ctx context.Context, cfg world.Config) *WorldExecutionResult {
	res := newResult(cfg)
	res.Status = StatusSkipped
	res.Reason = ReasonCircuitOpen
	e.skips.Add(ctx, 1, metric.WithAttributes(attribute.String("world", cfg.World.String())))
	e.outcomes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("world", cfg.World.String()),
		attribute.String("status", string(res.Status)),
	))
	return res
}

func (e *Executor) notStarted(ctx context.Context, cfg world.Config) *WorldExecutionResult {
	res := newResult(cfg)
	res.Status = StatusTerminated
	res.Reason = "not started: " + errString(ctx.Err())
	return res
}

// runWorld performs one attempt through the world's breaker and timeout.
func (e *Executor) runWorld(ctx context.Context, cfg world.Config, task world.Task) *WorldExecutionResult {
	id := cfg.World
	ctx, span := e.tracer.Start(ctx, "fiveworlds.world", trace.WithAttributes(
		attribute.String("fiveworlds.world", id.String()),
		attribute.String("fiveworlds.model", cfg.Model),
	))
	defer span.End()

	res := newResult(cfg)
	start := time.Now()
	e.status.Start(id, start)

	wctx, cancel := ctx, context.CancelFunc(func() {})
	if e.opts.WorldTimeout > 0 {
		wctx, cancel = context.WithTimeout(ctx, e.opts.WorldTimeout)
	}
	defer cancel()

	parent := ctx
	outcome, err := breaker.Execute(wctx, e.opts.Breakers.For(id), func(ctx context.Context) (*Outcome, error) {
		o, err := e.invoke(ctx, cfg, task)
		if err != nil && parent.Err() != nil {
			// The caller gave up; that says nothing about this world.
			err = breaker.Ignore(err)
		}
		return o, err
	})
	res.Duration = time.Since(start)

	switch {
	case err == nil:
		res.Status = StatusCompleted
		res.Success = true
		res.Score = validation.CalculateWithWeights(outcome.Signals, e.opts.Weights)
		res.CostUSD = outcome.CostUSD
		res.Tokens = outcome.Tokens
		res.Patch = outcome.Patch
	case errors.Is(err, breaker.ErrOpen):
		// Another run holds the half-open trial.
		res.Status = StatusSkipped
		res.Reason = ReasonCircuitOpen
	case ctx.Err() != nil:
		res.Status = StatusTerminated
		res.Reason = "canceled: " + errString(ctx.Err())
	case errors.Is(wctx.Err(), context.DeadlineExceeded):
		res.Status = StatusTerminated
		res.Reason = fmt.Sprintf("timeout after %s", e.opts.WorldTimeout)
	default:
		res.Status = StatusFailed
		res.Reason = err.Error()
	}

	trackerStatus := res.Status
	if trackerStatus == StatusSkipped {
		trackerStatus = StatusFailed
	}
	e.status.Finish(id, trackerStatus, time.Now())

	attrs := metric.WithAttributes(
		attribute.String("world", id.String()),
		attribute.String("status", string(res.Status)),
	)
	e.outcomes.Add(ctx, 1, attrs)
	e.worldDuration.Record(ctx, float64(res.Duration.Milliseconds()), attrs)
	span.SetAttributes(attribute.String("fiveworlds.status", string(res.Status)))
	if res.Success {
		span.SetAttributes(attribute.Float64("fiveworlds.score", res.Score.Total))
		e.logger.Info("world completed", "world", id, "score", res.Score.Total, "duration", res.Duration)
	} else {
		span.SetStatus(codes.Error, res.Reason)
		e.logger.Warn("world did not complete", "world", id, "status", res.Status, "reason", res.Reason)
	}
	return res
}

// invoke calls the runner but returns as soon as ctx ends, so a runner that
// ignores cancellation cannot hold up the run. An abandoned call finishes in
// the background and its result is discarded.
func (e *Executor) invoke(ctx context.Context, cfg world.Config, task world.Task) (*Outcome, error) {
	type reply struct {
		outcome *Outcome
		err     error
	}
	ch := make(chan reply, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- reply{err: fmt.Errorf("world runner panicked: %v", r)}
			}
		}()
		o, err := e.opts.Runner.RunWorld(ctx, cfg, task, cfg.SandboxPath)
		if err == nil && o == nil {
			err = errors.New("world runner returned no outcome")
		}
		ch <- reply{outcome: o, err: err}
	}()
	select {
	case r := <-ch:
		return r.outcome, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// cleanup removes every sandbox except the winner's. With sweep set, any
// sandbox left on disk for ticket by earlier runs is removed too. It runs
// detached from ctx so a canceled caller still gets its sandboxes removed.
// Failures are logged only.
func (e *Executor) cleanup(ctx context.Context, runID string, ticket int, handles [world.Count]sandbox.Handle, winner *world.ID, sweep bool) {
	cctx := context.WithoutCancel(ctx)
	var removed, failed, swept []string
	for _, h := range handles {
		if winner != nil && h.World == *winner {
			continue
		}
		if err := e.opts.Sandboxes.CleanupWorld(cctx, h); err != nil {
			e.logger.Warn("sandbox cleanup failed", "world", h.World, "path", h.Path, "error", err)
			failed = append(failed, h.World.String())
			continue
		}
		removed = append(removed, h.World.String())
	}
	if sweep {
		left, err := e.opts.Sandboxes.List(ticket)
		if err != nil {
			e.logger.Warn("listing issue sandboxes failed", "ticket", ticket, "error", err)
		}
		if err := e.opts.Sandboxes.CleanupAllWorldsForIssue(cctx, ticket); err != nil {
			e.logger.Warn("issue cleanup failed", "ticket", ticket, "error", err)
			failed = append(failed, "issue-"+strconv.Itoa(ticket))
		} else {
			swept = left
		}
	}
	kept := ""
	if winner != nil {
		kept = winner.String()
	}
	e.notify(notify.CleanupPerformed, map[string]string{
		"run_id":  runID,
		"kept":    kept,
		"removed": strings.Join(removed, ","),
		"swept":   strings.Join(swept, ","),
		"failed":  strings.Join(failed, ","),
	})
}

func (e *Executor) notify(event string, params map[string]string) {
	e.sink.Notify(event, params)
}

func summaryParams(r *FiveWorldsResult) map[string]string {
	p := map[string]string{
		"run_id":   r.RunID,
		"task_id":  r.TaskID,
		"ticket":   strconv.Itoa(r.Ticket),
		"duration": r.Duration.Round(time.Millisecond).String(),
		"winner":   "",
	}
	if r.Winner != nil {
		p["winner"] = r.Winner.String()
	}
	succeeded := 0
	var cost float64
	for _, res := range r.Ordered() {
		if res.Success {
			succeeded++
		}
		cost += res.CostUSD
		p[res.World.Slug()] = string(res.Status)
	}
	p["succeeded"] = strconv.Itoa(succeeded)
	p["cost_usd"] = strconv.FormatFloat(cost, 'f', 4, 64)
	return p
}

func errString(err error) string {
	if err == nil {
		return "unknown"
	}
	return err.Error()
}
