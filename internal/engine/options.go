package engine

import (
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/phillarmonic/pf/internal/engine/planner"
	"github.com/phillarmonic/pf/internal/engine/report"
	"github.com/phillarmonic/pf/internal/polyglot"
	"github.com/phillarmonic/pf/internal/target"
)

// DefaultTimeout bounds every command on every host unless configured.
const DefaultTimeout = time.Hour

// Journal persists finished run reports.
type Journal interface {
	Record(rep *report.TaskRunReport) error
}

// EngineOptions configures the engine with optional dependencies
type EngineOptions struct {
	// Output writer (defaults to os.Stdout)
	Output io.Writer

	// Diagnostic logger (defaults to a no-op logger)
	Logger zerolog.Logger

	// Language recipes (defaults to the built-in registry)
	Languages *polyglot.Registry

	// Target factory (defaults to local processes plus an SSH pool)
	Factory target.Factory

	// SSH settings used by the default factory
	SSH target.SSHConfig

	// Named env= presets
	Presets map[string]target.Preset

	// Filesystem the task files were read from, for @file statements
	Source fs.FS

	// Language of bare statements before any shell_lang
	DefaultLanguage string

	// Per-command timeout; negative disables it
	Timeout time.Duration

	// Concurrent hosts per statement; 0 means unlimited
	MaxParallel int

	// DryRun mode
	DryRun bool

	// Run history (defaults to none)
	Journal Journal
}

// Option is a functional option for configuring the Engine
type Option func(*EngineOptions)

// WithOutput sets the output writer
func WithOutput(w io.Writer) Option {
	return func(o *EngineOptions) {
		o.Output = w
	}
}

// WithLogger sets the diagnostic logger
func WithLogger(l zerolog.Logger) Option {
	return func(o *EngineOptions) {
		o.Logger = l
	}
}

// WithLanguages sets the language registry
func WithLanguages(r *polyglot.Registry) Option {
	return func(o *EngineOptions) {
		o.Languages = r
	}
}

// WithFactory sets the target factory
func WithFactory(f target.Factory) Option {
	return func(o *EngineOptions) {
		o.Factory = f
	}
}

// WithSSHConfig sets the SSH settings of the default factory
func WithSSHConfig(cfg target.SSHConfig) Option {
	return func(o *EngineOptions) {
		o.SSH = cfg
	}
}

// WithPresets sets the env= presets
func WithPresets(presets map[string]target.Preset) Option {
	return func(o *EngineOptions) {
		o.Presets = presets
	}
}

// WithSource sets the filesystem @file statements are read from
func WithSource(fsys fs.FS) Option {
	return func(o *EngineOptions) {
		o.Source = fsys
	}
}

// WithDefaultLanguage sets the language of bare statements
func WithDefaultLanguage(lang string) Option {
	return func(o *EngineOptions) {
		o.DefaultLanguage = lang
	}
}

// WithTimeout sets the per-command timeout
func WithTimeout(d time.Duration) Option {
	return func(o *EngineOptions) {
		o.Timeout = d
	}
}

// WithMaxParallel limits concurrent hosts per statement
func WithMaxParallel(n int) Option {
	return func(o *EngineOptions) {
		o.MaxParallel = n
	}
}

// WithDryRun sets dry-run mode
func WithDryRun(dryRun bool) Option {
	return func(o *EngineOptions) {
		o.DryRun = dryRun
	}
}

// WithJournal records every finished run
func WithJournal(j Journal) Option {
	return func(o *EngineOptions) {
		o.Journal = j
	}
}

// applyDefaults applies default values to unset options
func (opts *EngineOptions) applyDefaults() {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	if opts.Languages == nil {
		opts.Languages = polyglot.NewRegistry()
	}

	if opts.DefaultLanguage == "" {
		opts.DefaultLanguage = planner.DefaultLanguage
	}

	switch {
	case opts.Timeout == 0:
		opts.Timeout = DefaultTimeout
	case opts.Timeout < 0:
		opts.Timeout = 0
	}

	if opts.SSH.Escalation == "" {
		opts.SSH.Escalation = target.EscalateSudo
	}

	if opts.Factory == nil {
		ssh := opts.SSH
		ssh.Logger = opts.Logger
		opts.Factory = target.NewFactory(ssh)
	}
}
