package app

import (
	"context"
	"fmt"
	"io/fs"

	"github.com/phillarmonic/pf/internal/debug"
	"github.com/phillarmonic/pf/internal/engine/includes"
	"github.com/phillarmonic/pf/internal/errors"
	"github.com/phillarmonic/pf/internal/spec"
	"github.com/phillarmonic/pf/internal/target"
)

// Domain: Debug Mode
// This file contains logic for inspecting pf files (lint, tokens, includes, plans)

// lint loads the task file and prints every warning. Warnings never fail
// the command; syntax and include errors do.
func (a *App) lint(ctx context.Context, cfg *WorkspaceConfig) error {
	res, err := a.loadTasks(ctx, cfg)
	if err != nil {
		return err
	}
	if len(res.Warnings) == 0 {
		a.printf("✅ No issues found in %s\n", res.Source.Display())
		return nil
	}
	for _, w := range res.Warnings {
		a.printf("⚠️  %s\n", w)
	}
	a.printf("\n%d warning(s)\n", len(res.Warnings))
	return nil
}

// dump prints the parsed task file back as source, or one of its debug
// views: tokens, includes or plan.
func (a *App) dump(ctx context.Context, cfg *WorkspaceConfig, targets target.Spec, args []string) error {
	res, err := a.loadTasks(ctx, cfg)
	if err != nil {
		return err
	}

	view := ""
	if len(args) > 0 {
		view = args[0]
	}
	switch view {
	case "":
		return res.Root.Walk(func(ns *includes.Namespace) error {
			if ns.Name == "" {
				a.printf("# %s\n", ns.Display)
			} else {
				a.printf("\n# %s (%s)\n", ns.Display, ns.Name)
			}
			a.printf("%s", ns.File.String())
			return nil
		})
	case "tokens":
		data, err := fs.ReadFile(res.Source.FS, res.Source.Root)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", res.Source.Display(), err)
		}
		debug.DumpTokens(a.stdout, string(data))
		return nil
	case "includes":
		debug.DumpNamespaces(a.stdout, res.Root)
		return nil
	case "plan":
		return a.dumpPlan(cfg, res, targets, args[1:])
	}
	return &errors.UsageError{
		Message: fmt.Sprintf("unknown dump view %q", view),
		Help:    "Usage: pf dump [tokens|includes|plan <task> [params...] [--graphviz|--text]]",
	}
}

// dumpPlan prepares one invocation without running it and prints the
// resolved commands as JSON, as a Graphviz digraph or as text.
func (a *App) dumpPlan(cfg *WorkspaceConfig, res *spec.Result, targets target.Spec, args []string) error {
	format := "json"
	var words []string
	for _, arg := range args {
		switch arg {
		case "--graphviz":
			format = "graphviz"
		case "--text":
			format = "text"
		default:
			words = append(words, arg)
		}
	}
	if len(words) == 0 {
		return &errors.UsageError{Message: "dump plan needs a task name", Help: "Usage: pf dump plan <task> [params...] [--graphviz|--text]"}
	}
	invs, err := SplitInvocations(res.Registry, words, targets)
	if err != nil {
		return err
	}
	if len(invs) != 1 {
		return errors.Usagef("dump plan takes exactly one task, got %d", len(invs))
	}

	a.noHistory = true
	eng, closeJournal, err := a.newEngine(cfg, res)
	if err != nil {
		return err
	}
	defer func() {
		_ = eng.Close()
		closeJournal()
	}()

	prepared, err := eng.Prepare(invs[0])
	if err != nil {
		return err
	}
	info := debug.NewExecutionPlanInfo(prepared.Plan, prepared.Targets.Hosts())
	switch format {
	case "graphviz":
		a.printf("%s", debug.ExportExecutionPlanGraphviz(info))
		return nil
	case "text":
		debug.DebugExecutionPlan(a.stdout, info)
		return nil
	}
	out, err := debug.ExportExecutionPlanJSON(info)
	if err != nil {
		return err
	}
	a.printf("%s\n", out)
	return nil
}
