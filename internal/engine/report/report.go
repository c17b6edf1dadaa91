// Package report aggregates per-host results into a TaskRunReport.
package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/phillarmonic/pf/internal/errors"
)

// HostResult is the outcome of one statement on one host.
type HostResult struct {
	Host     string        `json:"host"`
	ExitCode int           `json:"exit_code"`
	Stdout   string        `json:"stdout,omitempty"`
	Stderr   string        `json:"stderr,omitempty"`
	Duration time.Duration `json:"duration"`
	TimedOut bool          `json:"timed_out,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// Success reports whether the host ran the statement and exited 0
func (r HostResult) Success() bool {
	return r.Error == "" && !r.TimedOut && r.ExitCode == 0
}

// StepReport collects the host results of one executable statement.
type StepReport struct {
	Index      int          `json:"index"` // 1-based position in the task
	Line       int          `json:"line"`
	Command    string       `json:"command"`
	Placement  string       `json:"placement"`
	BestEffort bool         `json:"best_effort,omitempty"`
	Skipped    bool         `json:"skipped,omitempty"`
	Results    []HostResult `json:"results,omitempty"`
}

// Failed returns the hosts the statement failed on
func (s StepReport) Failed() []HostResult {
	var failed []HostResult
	for _, r := range s.Results {
		if !r.Success() {
			failed = append(failed, r)
		}
	}
	return failed
}

// TaskRunReport is the aggregated outcome of one task invocation.
type TaskRunReport struct {
	RunID    string            `json:"run_id"`
	Task     string            `json:"task"`
	Source   string            `json:"source,omitempty"`
	Params   map[string]string `json:"params,omitempty"`
	Targets  []string          `json:"targets"`
	Started  time.Time         `json:"started"`
	Duration time.Duration     `json:"duration"`
	DryRun   bool              `json:"dry_run,omitempty"`
	Steps    []StepReport      `json:"steps"`
	Success  bool              `json:"success"`
}

// Finish computes Success: true iff no required statement failed on any
// host. Best-effort failures stay in the report but do not count.
func (r *TaskRunReport) Finish(end time.Time) {
	r.Duration = end.Sub(r.Started)
	r.Success = r.firstFailure() == nil
}

// Failures counts failed (statement, host) runs, best-effort ones included.
func (r *TaskRunReport) Failures() int {
	n := 0
	for _, s := range r.Steps {
		n += len(s.Failed())
	}
	return n
}

// Err returns an *errors.ExecutionFailure for the first required failure,
// or nil when the task succeeded.
func (r *TaskRunReport) Err() error {
	f := r.firstFailure()
	if f == nil {
		return nil
	}
	return f
}

func (r *TaskRunReport) firstFailure() *errors.ExecutionFailure {
	for _, s := range r.Steps {
		if s.BestEffort {
			continue
		}
		for _, h := range s.Failed() {
			f := &errors.ExecutionFailure{
				Task:      r.Task,
				Statement: s.Index,
				Host:      h.Host,
				ExitCode:  h.ExitCode,
				TimedOut:  h.TimedOut,
			}
			if h.Error != "" {
				f.Err = fmt.Errorf("%s", h.Error)
			}
			return f
		}
	}
	return nil
}

// WriteSummary prints the closing status lines of a run.
func (r *TaskRunReport) WriteSummary(w io.Writer) {
	if r.DryRun {
		_, _ = fmt.Fprintf(w, "[DRY RUN] Task '%s': %d step(s) on %s\n", r.Task, len(r.Steps), strings.Join(r.Targets, ", "))
		return
	}
	for _, s := range r.Steps {
		for _, h := range s.Failed() {
			marker := "❌"
			if s.BestEffort {
				marker = "⚠️ "
			}
			_, _ = fmt.Fprintf(w, "%s Statement %d on %s: %s\n", marker, s.Index, h.Host, describe(h))
		}
	}
	if r.Success {
		_, _ = fmt.Fprintf(w, "✅ Task '%s' completed in %s\n", r.Task, FormatDuration(r.Duration))
		return
	}
	_, _ = fmt.Fprintf(w, "❌ Task '%s' failed after %s\n", r.Task, FormatDuration(r.Duration))
}

func describe(h HostResult) string {
	switch {
	case h.TimedOut:
		return "timed out"
	case h.Error != "":
		return h.Error
	}
	return fmt.Sprintf("exit status %d", h.ExitCode)
}

// FormatDuration rounds d for display.
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return d.String()
	case d < time.Second:
		return d.Round(time.Millisecond).String()
	}
	return d.Round(10 * time.Millisecond).String()
}
