package target

import (
	"context"
	"io"
	"sort"
	"time"
)

// Command is what a Target runs: an argv plus its environment.
type Command struct {
	Argv  []string
	Env   map[string]string
	Dir   string
	Stdin io.Reader

	// Output receives stdout and stderr as they are produced.
	Output io.Writer
}

// Result is the outcome of one command on one host.
type Result struct {
	Host     string
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
	TimedOut bool
	Err      error // set when the command could not be started or the connection failed
}

// Success reports whether the command ran and exited 0
func (r Result) Success() bool {
	return r.Err == nil && !r.TimedOut && r.ExitCode == 0
}

// Target runs commands on one destination. Implementations must be safe
// for concurrent use.
type Target interface {
	Name() string
	Run(ctx context.Context, cmd Command, timeout time.Duration) Result
}

// Factory hands out the Target for a host.
type Factory interface {
	Target(host HostSpec) (Target, error)
	Close() error
}

// Escalation names how a target gains privileges.
type Escalation string

const (
	EscalateSudo Escalation = "sudo"
	EscalateDoas Escalation = "doas"
)

// Escalate wraps argv to run as another user with the host's escalation
// tool. Options are not part of the command text, so quoting inside argv
// is preserved.
func Escalate(argv []string, host HostSpec, tool Escalation) []string {
	if !host.Sudo && host.SudoUser == "" {
		return argv
	}
	var wrapped []string
	switch tool {
	case EscalateDoas:
		wrapped = []string{"doas", "-n"}
		if host.SudoUser != "" {
			wrapped = append(wrapped, "-u", host.SudoUser)
		}
	default:
		wrapped = []string{"sudo", "-n", "-H"}
		if host.SudoUser != "" {
			wrapped = append(wrapped, "-u", host.SudoUser)
		}
		wrapped = append(wrapped, "--")
	}
	return append(wrapped, argv...)
}

// WithEnv prefixes argv with env(1) so variables survive escalation and
// remote shells.
func WithEnv(argv []string, env map[string]string) []string {
	if len(env) == 0 {
		return argv
	}
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := []string{"env"}
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return append(out, argv...)
}

// WithDir makes argv run from dir.
func WithDir(argv []string, dir string) []string {
	if dir == "" {
		return argv
	}
	return append([]string{"sh", "-c", `cd "$1" && shift && exec "$@"`, "pf", dir}, argv...)
}
