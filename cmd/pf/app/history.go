package app

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/phillarmonic/pf/internal/engine/report"
	"github.com/phillarmonic/pf/internal/errors"
	"github.com/phillarmonic/pf/internal/history"
)

// Domain: Run History
// This file contains `pf history`, `pf history show ID` and `pf history prune`

func (a *App) history(cfg *WorkspaceConfig, args []string) error {
	journal, err := history.Open(cfg.History.Path, time.Duration(cfg.History.Retention), false)
	if err != nil {
		return err
	}
	defer func() { _ = journal.Close() }()

	if len(args) == 0 {
		return a.listHistory(journal, cfg.History.Limit)
	}
	switch args[0] {
	case "show":
		if len(args) != 2 {
			return &errors.UsageError{Message: "history show needs a run ID", Help: "Usage: pf history show <run-id>"}
		}
		rep, err := journal.Get(args[1])
		if err != nil {
			return &errors.UsageError{Message: fmt.Sprintf("run %s: %v", args[1], err), Help: "Run 'pf history' to see recorded runs"}
		}
		data, err := json.MarshalIndent(rep, "", "  ")
		if err != nil {
			return err
		}
		a.printf("%s\n", data)
		return nil
	case "prune":
		dropped, err := journal.Prune()
		if err != nil {
			return err
		}
		a.printf("🧹 Pruned %d expired run(s)\n", dropped)
		return nil
	}
	return &errors.UsageError{
		Message: fmt.Sprintf("unknown history command %q", args[0]),
		Help:    "Usage: pf history [show <run-id>|prune]",
	}
}

func (a *App) listHistory(journal *history.Journal, limit int) error {
	entries, err := journal.List(limit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		a.printf("No runs recorded yet.\n")
		return nil
	}

	tw := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "RUN\tSTARTED\tTASK\tTARGETS\tDURATION\tSTATUS")
	for _, e := range entries {
		status := "✅ ok"
		if !e.Success {
			status = "❌ failed"
		}
		id := e.RunID
		if len(id) > 8 {
			id = id[:8]
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			id, e.Started.Local().Format("2006-01-02 15:04:05"), e.Task,
			strings.Join(e.Targets, ","), report.FormatDuration(e.Duration), status)
	}
	return tw.Flush()
}
