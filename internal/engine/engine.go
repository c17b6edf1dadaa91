// Package engine binds, plans and runs task invocations.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/phillarmonic/pf/internal/domain/parameter"
	"github.com/phillarmonic/pf/internal/domain/task"
	"github.com/phillarmonic/pf/internal/engine/executor"
	"github.com/phillarmonic/pf/internal/engine/planner"
	"github.com/phillarmonic/pf/internal/engine/report"
	"github.com/phillarmonic/pf/internal/target"
)

// Engine executes pf tasks
type Engine struct {
	opts     EngineOptions
	resolver *target.Resolver
	planner  *planner.Planner
	executor *executor.Executor
}

// Invocation is one task selected on the command line with its arguments.
type Invocation struct {
	Task    *task.Task
	Args    []string
	Targets target.Spec
}

// Prepared is an invocation whose targets, parameters and commands are
// fully resolved. Nothing has been started yet.
type Prepared struct {
	Invocation
	Targets *target.TargetSet
	Plan    *planner.ExecutionPlan
}

// NewEngine creates a new execution engine
func NewEngine(opts ...Option) *Engine {
	o := EngineOptions{Logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	o.applyDefaults()

	return &Engine{
		opts:     o,
		resolver: target.NewResolver(o.Presets),
		planner:  planner.NewPlanner(o.Languages, o.Source, o.DefaultLanguage),
		executor: executor.NewExecutor(executor.Options{
			Output:      o.Output,
			Logger:      o.Logger,
			Factory:     o.Factory,
			DryRun:      o.DryRun,
			Timeout:     o.Timeout,
			MaxParallel: o.MaxParallel,
			Escalation:  o.SSH.Escalation,
		}),
	}
}

// Close releases pooled connections
func (e *Engine) Close() error {
	return e.opts.Factory.Close()
}

// Prepare resolves targets, binds parameters and plans every statement.
// Target, binding and dispatch errors surface here, before any process
// is spawned.
func (e *Engine) Prepare(inv Invocation) (*Prepared, error) {
	res, err := e.resolver.Resolve(inv.Targets)
	if err != nil {
		return nil, err
	}
	params, err := parameter.Bind(inv.Task.FullName(), inv.Args, res.Params)
	if err != nil {
		return nil, err
	}
	plan, err := e.planner.Plan(inv.Task, params)
	if err != nil {
		return nil, err
	}
	e.opts.Logger.Debug().Str("task", inv.Task.FullName()).Int("steps", len(plan.Steps)).
		Str("targets", res.Targets.String()).Msg("prepared invocation")
	return &Prepared{Invocation: inv, Targets: res.Targets, Plan: plan}, nil
}

// Execute runs a prepared invocation and returns its report.
func (e *Engine) Execute(ctx context.Context, p *Prepared) *report.TaskRunReport {
	hosts := p.Targets.Hosts()
	names := make([]string, len(hosts))
	for i, h := range hosts {
		names[i] = h.String()
	}
	rep := &report.TaskRunReport{
		RunID:   uuid.NewString(),
		Task:    p.Task.FullName(),
		Source:  p.Task.Source,
		Params:  p.Plan.Params.Map(),
		Targets: names,
		Started: time.Now(),
		DryRun:  e.opts.DryRun,
	}

	if e.opts.DryRun {
		_, _ = fmt.Fprintf(e.opts.Output, "[DRY RUN] Would run task: %s\n", rep.Task)
	} else if p.Targets.IsLocal() {
		_, _ = fmt.Fprintf(e.opts.Output, "🚀 Running task: %s\n", rep.Task)
	} else {
		_, _ = fmt.Fprintf(e.opts.Output, "🚀 Running task: %s on %s\n", rep.Task, p.Targets)
	}

	e.executor.Execute(ctx, p.Plan, hosts, rep)
	rep.Finish(time.Now())
	rep.WriteSummary(e.opts.Output)

	if e.opts.Journal != nil && !rep.DryRun {
		if err := e.opts.Journal.Record(rep); err != nil {
			e.opts.Logger.Warn().Err(err).Str("run", rep.RunID).Msg("failed to record run history")
		}
	}
	return rep
}

// Run prepares every invocation, then executes them one after another.
// It stops at the first task that fails and returns that failure as an
// *errors.ExecutionFailure along with the reports gathered so far.
func (e *Engine) Run(ctx context.Context, invs ...Invocation) ([]*report.TaskRunReport, error) {
	prepared := make([]*Prepared, 0, len(invs))
	for _, inv := range invs {
		p, err := e.Prepare(inv)
		if err != nil {
			return nil, err
		}
		prepared = append(prepared, p)
	}

	reports := make([]*report.TaskRunReport, 0, len(prepared))
	for _, p := range prepared {
		rep := e.Execute(ctx, p)
		reports = append(reports, rep)
		if err := rep.Err(); err != nil {
			return reports, err
		}
		if err := ctx.Err(); err != nil {
			return reports, err
		}
	}
	return reports, nil
}
