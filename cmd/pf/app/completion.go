package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/phillarmonic/pf/internal/errors"
)

// Domain: Shell Completion
// This file contains logic for shell completion

func (a *App) completion(args []string) error {
	if len(args) != 1 {
		return &errors.UsageError{Message: "completion needs a shell", Help: "Usage: pf completion bash|zsh|fish|powershell"}
	}
	switch args[0] {
	case "bash":
		return a.rootCmd.GenBashCompletionV2(a.stdout, true)
	case "zsh":
		return a.rootCmd.GenZshCompletion(a.stdout)
	case "fish":
		return a.rootCmd.GenFishCompletion(a.stdout, true)
	case "powershell":
		return a.rootCmd.GenPowerShellCompletionWithDesc(a.stdout)
	}
	return errors.Usagef("unsupported shell %q (bash, zsh, fish, powershell)", args[0])
}

// completeArgs provides autocompletion for task names, subcommands and
// built-in words
func (a *App) completeArgs(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	rest, _, err := a.parseGlobal(args)
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	cfg, err := LoadWorkspaceConfig(a.workDir)
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	res, err := a.loadTasks(context.Background(), cfg)
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	reg := res.Registry

	var completions []string
	if n := len(rest); n > 0 && reg.HasNamespace(rest[n-1]) {
		for _, t := range reg.ListByNamespace(rest[n-1]) {
			completions = append(completions, t.Name+"\t"+t.Summary())
		}
		return filterPrefix(completions, toComplete), cobra.ShellCompDirectiveNoFileComp
	}

	if len(rest) == 0 {
		for _, b := range builtins {
			completions = append(completions, b+"\t[built-in]")
		}
	}
	for _, ns := range reg.Namespaces() {
		if ns != "" {
			completions = append(completions, fmt.Sprintf("%s\t[subcommand] %s", ns, reg.Source(ns)))
		}
	}
	for _, name := range reg.Names() {
		if t, err := reg.Get(name); err == nil {
			completions = append(completions, name+"\t[task] "+t.Summary())
		}
	}
	return filterPrefix(completions, toComplete), cobra.ShellCompDirectiveNoFileComp
}

func filterPrefix(completions []string, prefix string) []string {
	if prefix == "" {
		return completions
	}
	var out []string
	for _, c := range completions {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	return out
}
