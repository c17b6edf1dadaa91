package target

import (
	"context"
	"time"

	"github.com/phillarmonic/pf/internal/shell"
)

// LocalTarget runs commands as local processes.
type LocalTarget struct {
	host       HostSpec
	escalation Escalation
}

// NewLocalTarget creates a local target. With host.Sudo set, commands are
// escalated through the escalation tool.
func NewLocalTarget(host HostSpec, escalation Escalation) *LocalTarget {
	host.Local = true
	return &LocalTarget{host: host, escalation: escalation}
}

// Name returns the display name
func (t *LocalTarget) Name() string {
	return t.host.String()
}

// Run executes cmd and waits for it
func (t *LocalTarget) Run(ctx context.Context, cmd Command, timeout time.Duration) Result {
	argv := cmd.Argv
	opts := &shell.Options{
		Dir:     cmd.Dir,
		Stdin:   cmd.Stdin,
		Timeout: timeout,
		Output:  cmd.Output,
	}
	if t.host.Sudo || t.host.SudoUser != "" {
		// sudo resets the environment, so variables travel in argv
		argv = Escalate(WithEnv(argv, cmd.Env), t.host, t.escalation)
	} else {
		opts.Env = cmd.Env
	}

	res, err := shell.Execute(ctx, argv, opts)
	out := Result{Host: t.Name(), Err: err}
	if res != nil {
		out.ExitCode = res.ExitCode
		out.Stdout = res.Stdout
		out.Stderr = res.Stderr
		out.Duration = res.Duration
		out.TimedOut = res.TimedOut
	}
	return out
}
