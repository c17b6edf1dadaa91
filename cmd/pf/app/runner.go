package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/phillarmonic/pf/internal/credentials"
	"github.com/phillarmonic/pf/internal/domain/parameter"
	"github.com/phillarmonic/pf/internal/domain/task"
	"github.com/phillarmonic/pf/internal/engine"
	"github.com/phillarmonic/pf/internal/errors"
	"github.com/phillarmonic/pf/internal/history"
	"github.com/phillarmonic/pf/internal/spec"
	"github.com/phillarmonic/pf/internal/target"
)

// Domain: Task Execution
// This file contains logic for loading the task table and running tasks

// loadTasks loads the task file selected by --file, PF_FILE, the workspace
// default or discovery, in that order.
func (a *App) loadTasks(ctx context.Context, cfg *WorkspaceConfig) (*spec.Result, error) {
	file := a.configFile
	if file == "" {
		file = os.Getenv(EnvFile)
	}
	if file == "" {
		file = cfg.DefaultFile
	}

	res, err := spec.NewLoader(a.workDir, a.logger).Load(ctx, file)
	if err != nil {
		return nil, err
	}
	for _, w := range res.Warnings {
		a.logger.Debug().Str("warning", w.String()).Msg("lint")
	}
	return res, nil
}

// runTasks splits words into task invocations and runs them in order.
func (a *App) runTasks(ctx context.Context, cfg *WorkspaceConfig, targets target.Spec, words []string) error {
	res, err := a.loadTasks(ctx, cfg)
	if err != nil {
		return err
	}
	invs, err := SplitInvocations(res.Registry, words, targets)
	if err != nil {
		return err
	}

	eng, closeJournal, err := a.newEngine(cfg, res)
	if err != nil {
		return err
	}
	defer func() {
		_ = eng.Close()
		closeJournal()
	}()

	_, err = eng.Run(ctx, invs...)
	return err
}

// newEngine wires the workspace config and flags into an engine. The
// returned func closes the history journal.
func (a *App) newEngine(cfg *WorkspaceConfig, res *spec.Result) (*engine.Engine, func(), error) {
	sshCfg, err := cfg.SSHConfig()
	if err != nil {
		return nil, nil, err
	}
	sshCfg.Logger = a.logger
	if store, err := credentials.NewStore(credentials.WithService(cfg.SSH.KeyringService)); err == nil {
		sshCfg.Credentials = store
	} else {
		a.logger.Debug().Err(err).Msg("credential store unavailable")
	}

	timeout := time.Duration(cfg.Timeout)
	if a.flags.Changed("timeout") {
		timeout = a.timeout
	}
	parallel := cfg.MaxParallel
	if a.flags.Changed("parallel") {
		parallel = a.parallel
	}

	opts := []engine.Option{
		engine.WithOutput(a.stdout),
		engine.WithLogger(a.logger),
		engine.WithSSHConfig(sshCfg),
		engine.WithPresets(cfg.Envs),
		engine.WithSource(res.Source.FS),
		engine.WithDefaultLanguage(cfg.Shell),
		engine.WithTimeout(timeout),
		engine.WithMaxParallel(parallel),
		engine.WithDryRun(a.dryRun),
	}

	closeJournal := func() {}
	if !a.noHistory && !a.dryRun && cfg.History.IsEnabled() {
		journal, err := history.Open(cfg.History.Path, time.Duration(cfg.History.Retention), false)
		if err != nil {
			a.logger.Warn().Err(err).Msg("run history disabled")
		} else {
			opts = append(opts, engine.WithJournal(journal))
			closeJournal = func() { _ = journal.Close() }
		}
	}
	return engine.NewEngine(opts...), closeJournal, nil
}

// SplitInvocations turns `task [params...] [task [params...]]...` into
// invocations. A bare word that is not a parameter starts the next task.
func SplitInvocations(reg *task.Registry, words []string, targets target.Spec) ([]engine.Invocation, error) {
	var invs []engine.Invocation
	for len(words) > 0 {
		t, n, err := SelectTask(reg, words)
		if err != nil {
			return nil, err
		}
		words = words[n:]

		var args []string
		for len(words) > 0 && parameter.IsParameterArg(words[0]) {
			arg := words[0]
			words = words[1:]
			args = append(args, arg)
			if len(words) > 0 && parameter.TakesValue(arg, words[0]) {
				args = append(args, words[0])
				words = words[1:]
			}
		}
		invs = append(invs, engine.Invocation{Task: t, Args: args, Targets: targets})
	}
	if len(invs) == 0 {
		return nil, errors.Usagef("no task given")
	}
	return invs, nil
}

// SelectTask resolves the task named at the head of words: `ns task`,
// `ns.task`, an alias or a bare name. It returns the words consumed.
func SelectTask(reg *task.Registry, words []string) (*task.Task, int, error) {
	head := words[0]
	if head != "" && reg.HasNamespace(head) && len(words) > 1 && !parameter.IsParameterArg(words[1]) {
		t, err := reg.GetIn(head, words[1])
		if err == nil {
			return t, 2, nil
		}
		if !reg.Exists(head) {
			return nil, 0, err
		}
	}
	if head != "" && reg.HasNamespace(head) && !reg.Exists(head) {
		return nil, 0, &errors.UsageError{
			Message: fmt.Sprintf("'%s' is a subcommand; name one of its tasks", head),
			Help:    fmt.Sprintf("Run 'pf list' to see the tasks of '%s'", head),
		}
	}
	t, err := reg.Get(head)
	if err != nil {
		return nil, 0, err
	}
	return t, 1, nil
}
