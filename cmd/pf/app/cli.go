package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/phillarmonic/pf/internal/errors"
	"github.com/phillarmonic/pf/internal/target"
)

// Domain: CLI Application Structure
// This file contains the main CLI application setup: the cobra root command,
// global flags and built-in word dispatch

// App represents the CLI application
type App struct {
	version string
	commit  string
	date    string

	rootCmd *cobra.Command
	flags   *pflag.FlagSet

	stdin   io.Reader
	stdout  io.Writer
	stderr  io.Writer
	workDir string
	logger  zerolog.Logger

	// Flags
	configFile  string
	hosts       []string
	host        []string
	envs        []string
	user        string
	port        int
	sudo        bool
	sudoUser    string
	timeout     time.Duration
	parallel    int
	dryRun      bool
	debugMode   bool
	noColor     bool
	noHistory   bool
	showVersion bool
	showHelp    bool
}

// builtins are the words handled by pf itself. `pf run NAME` reaches a
// task whose name collides with one of them.
var builtins = []string{"list", "help", "run", "history", "lint", "dump", "credentials", "completion", "version"}

// NewApp creates a new CLI application
func NewApp(version, commit, date string) *App {
	wd, _ := os.Getwd()
	app := &App{
		version: version,
		commit:  commit,
		date:    date,
		stdin:   os.Stdin,
		stdout:  os.Stdout,
		stderr:  os.Stderr,
		workDir: wd,
		logger:  zerolog.Nop(),
	}

	app.rootCmd = &cobra.Command{
		Use:   "pf [flags] [targets...] <task> [params...] [<task> [params...]]...",
		Short: "Run tasks from a Pfyfile locally, over SSH, and in 40+ languages",
		Long: `pf runs the tasks defined in a Pfyfile.pf.

Tasks are written as shell lines, structured verbs (packages, service,
directory, copy, sync, build helpers) and code in other languages. A task
runs on the local machine or fans out over SSH hosts.

Examples:
  pf list                             # List all available tasks
  pf greet name=world                 # Run 'greet' with a parameter
  pf build --mode release test        # Run 'build' then 'test'
  pf hosts=web1,web2 sudo=true deploy # Run 'deploy' on two hosts
  pf env=prod deploy                  # Use the 'prod' preset from workspace.yml
  pf web deploy                       # Run 'deploy' from the included web file
  pf --dry-run deploy                 # Show the commands without running them
  pf help deploy                      # Describe one task

Built-in commands:
  list, help [task], run <task>, history [show ID|prune], lint, dump,
  credentials set|delete|list, completion <shell>, version`,
		RunE:               app.run,
		Args:               cobra.ArbitraryArgs,
		DisableFlagParsing: true,
		SilenceErrors:      true,
		SilenceUsage:       true,
		ValidArgsFunction:  app.completeArgs,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true, // completion is a built-in word
		},
	}

	app.setupFlags()

	return app
}

// Execute runs the CLI application
func (a *App) Execute() error {
	return a.rootCmd.Execute()
}

// ExecuteContext runs the CLI application with ctx
func (a *App) ExecuteContext(ctx context.Context) error {
	return a.rootCmd.ExecuteContext(ctx)
}

// SetArgs overrides os.Args[1:]
func (a *App) SetArgs(args []string) {
	a.rootCmd.SetArgs(args)
}

// SetOutput redirects task output and diagnostics
func (a *App) SetOutput(stdout, stderr io.Writer) {
	a.stdout = stdout
	a.stderr = stderr
	a.rootCmd.SetOut(stdout)
	a.rootCmd.SetErr(stderr)
}

// SetInput sets where secrets for `pf credentials set` are read from
func (a *App) SetInput(r io.Reader) {
	a.stdin = r
}

// SetWorkDir sets the directory task files and workspace config are
// discovered from.
func (a *App) SetWorkDir(dir string) {
	a.workDir = dir
}

// setupFlags sets up all global flags. Task parameters use the same --key
// form, so parsing stops at the first word that is not a global flag.
func (a *App) setupFlags() {
	flags := pflag.NewFlagSet("pf", pflag.ContinueOnError)
	flags.SetInterspersed(false)
	flags.SetOutput(io.Discard)

	flags.StringVarP(&a.configFile, "file", "f", "", "Task file or bundle (default: Pfyfile.pf found from the current directory upward)")
	flags.StringArrayVar(&a.hosts, "hosts", nil, "Comma-separated hosts to run on ([user@]host[:port], @local)")
	flags.StringArrayVar(&a.host, "host", nil, "A single host to run on")
	flags.StringArrayVar(&a.envs, "env", nil, "Target preset from workspace.yml (repeatable)")
	flags.StringVar(&a.user, "user", "", "SSH user for hosts that do not name one")
	flags.IntVar(&a.port, "port", 0, "SSH port for hosts that do not name one")
	flags.BoolVar(&a.sudo, "sudo", false, "Run commands with sudo on the targets")
	flags.StringVar(&a.sudoUser, "sudo-user", "", "Run commands as this user via sudo")
	flags.DurationVar(&a.timeout, "timeout", 0, "Per-command timeout on each host (default 1h, negative disables)")
	flags.IntVar(&a.parallel, "parallel", 0, "Maximum hosts running a statement at once (default: all)")
	flags.BoolVar(&a.dryRun, "dry-run", false, "Show what would be executed without running")
	flags.BoolVar(&a.debugMode, "debug", false, "Enable debug logging")
	flags.BoolVar(&a.noColor, "no-color", false, "Disable colored output")
	flags.BoolVar(&a.noHistory, "no-history", false, "Do not record this run in the history journal")
	flags.BoolVar(&a.showVersion, "version", false, "Show version information")
	flags.BoolVarP(&a.showHelp, "help", "h", false, "Show help")

	a.flags = flags
	a.rootCmd.Flags().AddFlagSet(flags)
}

// run is the main command handler
func (a *App) run(cmd *cobra.Command, args []string) error {
	rest, targets, err := a.parseGlobal(args)
	if err != nil {
		return err
	}

	configureColor(a.noColor)
	a.logger = NewLogger(a.stderr, a.debugMode || envFlag(EnvDebug), a.noColor || envFlag(EnvNoColor))

	if a.showVersion {
		return ShowVersion(a.stdout, a.version, a.commit, a.date)
	}
	if a.showHelp {
		return a.rootCmd.Help()
	}

	cfg, err := LoadWorkspaceConfig(a.workDir)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if len(rest) == 0 {
		return a.listTasks(ctx, cfg)
	}
	switch rest[0] {
	case "list":
		return a.listTasks(ctx, cfg)
	case "help":
		return a.taskHelp(ctx, cfg, rest[1:])
	case "run":
		if len(rest) < 2 {
			return &errors.UsageError{Message: "run needs a task name", Help: "Usage: pf run <task> [params...]"}
		}
		return a.runTasks(ctx, cfg, targets, rest[1:])
	case "history":
		return a.history(cfg, rest[1:])
	case "lint":
		return a.lint(ctx, cfg)
	case "dump":
		return a.dump(ctx, cfg, targets, rest[1:])
	case "credentials":
		return a.credentials(cfg, rest[1:])
	case "completion":
		return a.completion(rest[1:])
	case "version":
		return ShowVersion(a.stdout, a.version, a.commit, a.date)
	}
	return a.runTasks(ctx, cfg, targets, rest)
}

// parseGlobal parses global flags and bare-word target specs up to the
// first task or built-in word.
func (a *App) parseGlobal(args []string) ([]string, target.Spec, error) {
	var spec target.Spec
	for {
		if err := a.flags.Parse(args); err != nil {
			return nil, spec, &errors.UsageError{Message: err.Error(), Help: "Run 'pf --help' for the global flags"}
		}
		args = a.flags.Args()

		consumed := false
		for len(args) > 0 {
			ok, err := applyTargetWord(&spec, args[0])
			if err != nil {
				return nil, spec, err
			}
			if !ok {
				break
			}
			args = args[1:]
			consumed = true
		}
		if !consumed || len(args) == 0 || !strings.HasPrefix(args[0], "-") {
			break
		}
	}

	spec.Hosts = append(spec.Hosts, a.hosts...)
	spec.Hosts = append(spec.Hosts, a.host...)
	spec.Envs = append(spec.Envs, a.envs...)
	if a.user != "" {
		spec.User = a.user
	}
	if a.port != 0 {
		if a.port < 0 || a.port > 65535 {
			return nil, spec, errors.Usagef("invalid --port %d", a.port)
		}
		spec.Port = a.port
	}
	if a.sudo {
		spec.Sudo = true
	}
	if a.sudoUser != "" {
		spec.SudoUser = a.sudoUser
	}
	return args, spec, nil
}

// applyTargetWord folds one hosts=/host=/env=/user=/port=/sudo=/sudo_user=
// word into spec. It reports false for any other word.
func applyTargetWord(spec *target.Spec, word string) (bool, error) {
	key, value, ok := strings.Cut(word, "=")
	if !ok {
		return false, nil
	}
	switch key {
	case "hosts", "host":
		spec.Hosts = append(spec.Hosts, value)
	case "env":
		spec.Envs = append(spec.Envs, value)
	case "user":
		spec.User = value
	case "port":
		n, err := strconv.Atoi(value)
		if err != nil || n <= 0 || n > 65535 {
			return false, errors.Usagef("invalid port %q", value)
		}
		spec.Port = n
	case "sudo":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return false, errors.Usagef("invalid sudo value %q (use true or false)", value)
		}
		spec.Sudo = b
	case "sudo_user", "sudo-user":
		spec.SudoUser = value
	default:
		return false, nil
	}
	return true, nil
}

func (a *App) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(a.stdout, format, args...)
}
