// Package shell spawns local processes from argv vectors.
package shell

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"sync"
	"time"
)

// ExitTimeout is reported for a process killed by its timeout, as timeout(1) does.
const ExitTimeout = 124

// Result represents the result of one process execution
type Result struct {
	Argv     []string      // The argv that was executed
	ExitCode int           // Exit code of the process
	Stdout   string        // Captured standard output
	Stderr   string        // Captured standard error
	Duration time.Duration // How long the process ran
	Success  bool          // Whether the process exited 0
	TimedOut bool          // Whether the timeout killed the process
}

// Options configures process execution
type Options struct {
	Dir     string            // Working directory (empty: current)
	Env     map[string]string // Added to the inherited environment
	Stdin   io.Reader         // Nil means no input
	Timeout time.Duration     // 0 means no limit
	Output  io.Writer         // Streams stdout and stderr as they arrive
}

// Execute runs argv and waits for it. A non-zero exit is reported through
// the Result, not the error; the error is set only when the process could
// not be started.
func Execute(ctx context.Context, argv []string, opts *Options) (*Result, error) {
	if len(argv) == 0 {
		return nil, stderrors.New("empty command")
	}
	if opts == nil {
		opts = &Options{}
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = opts.Dir
	cmd.Stdin = opts.Stdin
	if len(opts.Env) > 0 {
		cmd.Env = MergeEnv(os.Environ(), opts.Env)
	}
	configureKill(cmd)

	var stdout, stderr bytes.Buffer
	if opts.Output != nil {
		out := &lockedWriter{w: opts.Output}
		cmd.Stdout = io.MultiWriter(&stdout, out)
		cmd.Stderr = io.MultiWriter(&stderr, out)
	} else {
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
	}

	result := &Result{Argv: argv}
	start := time.Now()
	err := cmd.Run()
	result.Duration = time.Since(start)
	result.Stdout = stdout.String()
	result.Stderr = stderr.String()

	var exitErr *exec.ExitError
	switch {
	case ctx.Err() == context.DeadlineExceeded:
		result.TimedOut = true
		result.ExitCode = ExitTimeout
	case err == nil:
	case stderrors.As(err, &exitErr):
		result.ExitCode = exitErr.ExitCode()
	default:
		result.ExitCode = -1
		return result, fmt.Errorf("failed to start %s: %w", argv[0], err)
	}
	result.Success = result.ExitCode == 0 && !result.TimedOut
	return result, nil
}

// MergeEnv returns base with the entries of extra added, sorted by key so
// the resulting environment is deterministic.
func MergeEnv(base []string, extra map[string]string) []string {
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	env := append([]string{}, base...)
	for _, k := range keys {
		env = append(env, k+"="+extra[k])
	}
	return env
}

// SyncWriter returns a writer that serializes writes to w, for sharing one
// writer between the stdout and stderr copy goroutines.
func SyncWriter(w io.Writer) io.Writer {
	return &lockedWriter{w: w}
}

// lockedWriter serializes the stdout and stderr copy goroutines.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
