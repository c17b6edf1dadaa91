// Package executor runs execution plans: statements in order, each one
// fanned out over its hosts concurrently.
package executor

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/phillarmonic/pf/internal/engine/planner"
	"github.com/phillarmonic/pf/internal/engine/report"
	"github.com/phillarmonic/pf/internal/shell"
	"github.com/phillarmonic/pf/internal/target"
	"github.com/phillarmonic/pf/internal/verbs"
)

// Options configures an Executor
type Options struct {
	Output      io.Writer
	Logger      zerolog.Logger
	Factory     target.Factory
	DryRun      bool
	Timeout     time.Duration // per command on each host; 0 means none
	MaxParallel int           // concurrent hosts per statement; 0 means all
	Escalation  target.Escalation
}

// Executor handles execution of prepared tasks
type Executor struct {
	opts Options
	mu   sync.Mutex // one output line at a time across hosts
}

// NewExecutor creates a new task executor
func NewExecutor(opts Options) *Executor {
	return &Executor{opts: opts}
}

// run is one (statement, host) pair.
type run struct {
	host  target.HostSpec // where the process starts
	label string          // host the result is reported under
	argv  []string
}

// Execute runs the plan's steps in order and records them in rep. A step
// that fails on any host stops the task unless it is best-effort; the
// remaining steps are recorded as skipped.
func (ex *Executor) Execute(ctx context.Context, plan *planner.ExecutionPlan, hosts []target.HostSpec, rep *report.TaskRunReport) {
	halted := false
	for n, step := range plan.Steps {
		sr := report.StepReport{
			Index:      step.Index,
			Line:       step.Line,
			Command:    step.Statement,
			Placement:  step.Placement.String(),
			BestEffort: step.Flags.BestEffort,
		}
		if halted || ctx.Err() != nil {
			sr.Skipped = true
			rep.Steps = append(rep.Steps, sr)
			continue
		}

		runs := runsFor(step, hosts)
		if ex.opts.DryRun {
			for _, r := range runs {
				_, _ = fmt.Fprintf(ex.opts.Output, "[DRY RUN] [%d/%d] %s: %s\n", n+1, len(plan.Steps), r.label, display(step, r, ex.opts.Escalation))
			}
			rep.Steps = append(rep.Steps, sr)
			continue
		}

		first, _, _ := strings.Cut(step.Statement, "\n")
		_, _ = fmt.Fprintf(ex.opts.Output, "▶️  [%d/%d] %s\n", n+1, len(plan.Steps), first)
		sr.Results = ex.fanOut(ctx, step, runs)
		if len(sr.Failed()) > 0 && !step.Flags.BestEffort {
			halted = true
		}
		rep.Steps = append(rep.Steps, sr)
	}
}

// runsFor expands a step into its (statement, host) runs.
func runsFor(step *planner.Step, hosts []target.HostSpec) []run {
	switch step.Placement {
	case verbs.Local:
		return []run{{host: target.LocalHost, label: target.LocalHost.String(), argv: step.Command.Argv}}
	case verbs.LocalPerTarget:
		runs := make([]run, len(hosts))
		for i, h := range hosts {
			runs[i] = run{host: target.LocalHost, label: h.String(), argv: step.Command.ArgvFor(destination(h))}
		}
		return runs
	}
	runs := make([]run, len(hosts))
	for i, h := range hosts {
		runs[i] = run{host: h, label: h.String(), argv: step.Command.Argv}
	}
	return runs
}

func destination(h target.HostSpec) verbs.Destination {
	return verbs.Destination{Local: h.Local, User: h.User, Host: h.Address, Port: h.Port}
}

// display renders a run the way it would be started.
func display(step *planner.Step, r run, esc target.Escalation) string {
	argv := target.WithEnv(r.argv, step.Command.Env)
	line := (&verbs.Command{Argv: target.Escalate(argv, r.host, esc)}).String()
	if step.Command.Stdin != nil {
		line += " < " + step.Verb + " payload"
	}
	return line
}

// fanOut starts every run concurrently and waits for all of them. One
// host's failure never cancels another host.
func (ex *Executor) fanOut(ctx context.Context, step *planner.Step, runs []run) []report.HostResult {
	results := make([]report.HostResult, len(runs))
	prefixed := len(runs) > 1 || !runs[0].host.Local

	var g errgroup.Group
	if ex.opts.MaxParallel > 0 {
		g.SetLimit(ex.opts.MaxParallel)
	}
	for i, r := range runs {
		g.Go(func() error {
			results[i] = ex.runOne(ctx, step, r, prefixed)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (ex *Executor) runOne(ctx context.Context, step *planner.Step, r run, prefixed bool) report.HostResult {
	result := report.HostResult{Host: r.label}
	tgt, err := ex.opts.Factory.Target(r.host)
	if err != nil {
		result.ExitCode = -1
		result.Error = err.Error()
		return result
	}

	cmd := target.Command{Argv: r.argv, Env: step.Command.Env, Dir: step.Command.Dir, Output: ex.opts.Output}
	if step.Command.Stdin != nil {
		payload, err := step.Command.Stdin(ctx)
		if err != nil {
			result.ExitCode = -1
			result.Error = fmt.Sprintf("prepare %s payload: %v", step.Verb, err)
			return result
		}
		defer func() { _ = payload.Close() }()
		cmd.Stdin = payload
	}
	var pw *shell.PrefixWriter
	if prefixed {
		pw = shell.NewPrefixWriter(ex.opts.Output, &ex.mu, "["+r.label+"] ")
		cmd.Output = pw
	}

	ex.opts.Logger.Debug().Str("host", r.label).Int("statement", step.Index).Strs("argv", r.argv).Msg("starting command")
	res := tgt.Run(ctx, cmd, ex.opts.Timeout)
	if pw != nil {
		_ = pw.Flush()
	}
	ex.opts.Logger.Debug().Str("host", r.label).Int("statement", step.Index).Int("exit", res.ExitCode).
		Dur("duration", res.Duration).Bool("timed_out", res.TimedOut).Msg("command finished")

	result.ExitCode = res.ExitCode
	result.Stdout = res.Stdout
	result.Stderr = res.Stderr
	result.Duration = res.Duration
	result.TimedOut = res.TimedOut
	if res.Err != nil {
		result.Error = res.Err.Error()
	}
	return result
}
