package app

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"

	"github.com/phillarmonic/pf/internal/ast"
	"github.com/phillarmonic/pf/internal/domain/task"
	"github.com/phillarmonic/pf/internal/errors"
)

// Domain: Task Listing
// This file contains `pf list` and `pf help <task>`

var (
	headingColor = color.New(color.FgCyan, color.Bold)
	groupColor   = color.New(color.FgYellow)
	dimColor     = color.New(color.Faint)
)

func (a *App) listTasks(ctx context.Context, cfg *WorkspaceConfig) error {
	res, err := a.loadTasks(ctx, cfg)
	if err != nil {
		return err
	}
	ListTasks(a.stdout, res.Registry)
	return nil
}

// ListTasks prints every task grouped by defining file, then by common
// name prefix. Output is stable for an unchanged task table.
func ListTasks(w io.Writer, reg *task.Registry) {
	if reg.Count() == 0 {
		_, _ = fmt.Fprintln(w, "No tasks found in Pfyfile.")
		return
	}

	first := true
	for _, ns := range reg.Namespaces() {
		tasks := reg.ListByNamespace(ns)
		if len(tasks) == 0 {
			continue
		}
		if !first {
			_, _ = fmt.Fprintln(w)
		}
		first = false

		if ns == "" {
			_, _ = headingColor.Fprintln(w, "Available tasks:")
		} else {
			_, _ = fmt.Fprintf(w, "%s %s\n", headingColor.Sprintf("%s:", ns), dimColor.Sprintf("(%s)", reg.Source(ns)))
		}

		sort.SliceStable(tasks, func(i, j int) bool { return tasks[i].Name < tasks[j].Name })
		for _, group := range groupByPrefix(tasks) {
			indent := "  "
			if len(group.tasks) > 1 {
				_, _ = fmt.Fprintf(w, "  %s\n", groupColor.Sprintf("[%s]", group.prefix))
				indent = "    "
			}
			for _, t := range group.tasks {
				_, _ = fmt.Fprintln(w, indent+taskLine(t))
			}
		}
	}
}

func taskLine(t *task.Task) string {
	line := t.Name
	if len(t.Aliases) > 0 {
		line += " (aliases: " + strings.Join(t.Aliases, ", ") + ")"
	}
	if summary := t.Summary(); summary != "" {
		line += " - " + summary
	}
	return line
}

type taskGroup struct {
	prefix string
	tasks  []*task.Task
}

// groupByPrefix groups name-sorted tasks on the part of the name before
// the first '-', '_' or ':'.
func groupByPrefix(tasks []*task.Task) []taskGroup {
	var groups []taskGroup
	for _, t := range tasks {
		prefix := namePrefix(t.Name)
		if n := len(groups); n > 0 && groups[n-1].prefix == prefix {
			groups[n-1].tasks = append(groups[n-1].tasks, t)
			continue
		}
		groups = append(groups, taskGroup{prefix: prefix, tasks: []*task.Task{t}})
	}
	return groups
}

func namePrefix(name string) string {
	if i := strings.IndexAny(name, "-_:"); i > 0 {
		return name[:i]
	}
	return name
}

func (a *App) taskHelp(ctx context.Context, cfg *WorkspaceConfig, args []string) error {
	if len(args) == 0 {
		return a.rootCmd.Help()
	}
	res, err := a.loadTasks(ctx, cfg)
	if err != nil {
		return err
	}
	t, n, err := SelectTask(res.Registry, args)
	if err != nil {
		return err
	}
	if n < len(args) {
		return errors.Usagef("help takes one task, got extra %q", strings.Join(args[n:], " "))
	}
	ShowTaskHelp(a.stdout, t)
	return nil
}

// ShowTaskHelp describes one task.
func ShowTaskHelp(w io.Writer, t *task.Task) {
	_, _ = fmt.Fprintf(w, "%s %s\n", headingColor.Sprint("Task:"), t.FullName())
	if t.Description != "" {
		_, _ = fmt.Fprintf(w, "Description: %s\n", t.Description)
	}
	_, _ = fmt.Fprintf(w, "Source: %s:%d\n", t.Source, t.Line)
	_, _ = fmt.Fprintf(w, "Usage: %s", t.Invocation())
	for _, p := range t.Params {
		_, _ = fmt.Fprintf(w, " %s=<value>", p)
	}
	_, _ = fmt.Fprintln(w)
	if len(t.Aliases) > 0 {
		_, _ = fmt.Fprintf(w, "Aliases: %s\n", strings.Join(t.Aliases, ", "))
	}
	if len(t.Params) > 0 {
		_, _ = fmt.Fprintf(w, "Parameters: %s\n", strings.Join(t.Params, ", "))
	}
	var envs []string
	for _, stmt := range t.Statements {
		if stmt.Kind() == ast.KindEnv {
			envs = append(envs, stmt.String())
		}
	}
	if len(envs) > 0 {
		_, _ = fmt.Fprintf(w, "Environment: %s\n", strings.Join(envs, "; "))
	}
	if len(t.Statements) > 0 {
		_, _ = fmt.Fprintln(w, "Statements:")
		for i, stmt := range t.Statements {
			_, _ = fmt.Fprintf(w, "  %d. %s\n", i+1, strings.ReplaceAll(stmt.String(), "\n", "\n     "))
		}
	}
}
