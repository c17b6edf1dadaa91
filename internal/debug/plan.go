// Package debug renders tokens, namespace trees and execution plans for
// inspection (`pf --debug`, `pf dump`).
package debug

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/phillarmonic/pf/internal/engine/includes"
	"github.com/phillarmonic/pf/internal/engine/planner"
	"github.com/phillarmonic/pf/internal/lexer"
	"github.com/phillarmonic/pf/internal/target"
	"github.com/phillarmonic/pf/internal/verbs"
)

// ExecutionPlanInfo represents a serializable execution plan for debugging
type ExecutionPlanInfo struct {
	Task      string            `json:"task"`
	Namespace string            `json:"namespace,omitempty"`
	Source    string            `json:"source,omitempty"`
	Params    map[string]string `json:"params,omitempty"`
	Targets   []string          `json:"targets"`
	Steps     []StepInfo        `json:"steps"`
}

// StepInfo represents one planned statement
type StepInfo struct {
	Index      int               `json:"index"`
	Line       int               `json:"line"`
	Statement  string            `json:"statement"`
	Language   string            `json:"language,omitempty"`
	Verb       string            `json:"verb,omitempty"`
	Placement  string            `json:"placement"`
	BestEffort bool              `json:"best_effort,omitempty"`
	Env        map[string]string `json:"env,omitempty"`
	Commands   []CommandInfo     `json:"commands"`
}

// CommandInfo is a step's command as started for one target
type CommandInfo struct {
	Target  string `json:"target"`
	Command string `json:"command"`
}

// NewExecutionPlanInfo flattens plan for the given hosts.
func NewExecutionPlanInfo(plan *planner.ExecutionPlan, hosts []target.HostSpec) ExecutionPlanInfo {
	info := ExecutionPlanInfo{
		Task:      plan.Task.FullName(),
		Namespace: plan.Task.Namespace,
		Source:    plan.Task.Source,
		Params:    plan.Params.Map(),
	}
	for _, h := range hosts {
		info.Targets = append(info.Targets, h.String())
	}

	for _, step := range plan.Steps {
		si := StepInfo{
			Index:      step.Index,
			Line:       step.Line,
			Statement:  step.Statement,
			Language:   step.Language,
			Verb:       step.Verb,
			Placement:  step.Placement.String(),
			BestEffort: step.Flags.BestEffort,
			Env:        step.Command.Env,
		}
		switch step.Placement {
		case verbs.Local:
			si.Commands = []CommandInfo{{Target: "local", Command: step.Display(verbs.Destination{Local: true})}}
		default:
			for _, h := range hosts {
				dest := verbs.Destination{Local: h.Local, User: h.User, Host: h.Address, Port: h.Port}
				si.Commands = append(si.Commands, CommandInfo{Target: h.String(), Command: step.Display(dest)})
			}
		}
		info.Steps = append(info.Steps, si)
	}
	return info
}

// DebugExecutionPlan prints detailed execution plan information
func DebugExecutionPlan(w io.Writer, info ExecutionPlanInfo) {
	fmt.Fprintln(w, "=== EXECUTION PLAN DEBUG ===")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "📊 Plan Overview:")
	fmt.Fprintf(w, "  Task: %s\n", info.Task)
	if info.Source != "" {
		fmt.Fprintf(w, "  Source: %s\n", info.Source)
	}
	fmt.Fprintf(w, "  Targets: %s\n", strings.Join(info.Targets, ", "))
	if len(info.Params) > 0 {
		keys := make([]string, 0, len(info.Params))
		for k := range info.Params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fmt.Fprintln(w, "  Parameters:")
		for _, k := range keys {
			fmt.Fprintf(w, "    %s = %q\n", k, info.Params[k])
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "🔄 Steps:")
	for _, s := range info.Steps {
		label := s.Language
		if s.Verb != "" {
			label = "verb " + s.Verb
		}
		marker := ""
		if s.BestEffort {
			marker = " (best-effort)"
		}
		fmt.Fprintf(w, "  %d. line %d [%s, %s]%s\n", s.Index, s.Line, label, s.Placement, marker)
		for _, c := range s.Commands {
			fmt.Fprintf(w, "     → %s: %s\n", c.Target, c.Command)
		}
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== END EXECUTION PLAN DEBUG ===")
}

// ExportExecutionPlanJSON exports the execution plan as JSON
func ExportExecutionPlanJSON(info ExecutionPlanInfo) (string, error) {
	jsonData, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal plan to JSON: %w", err)
	}
	return string(jsonData), nil
}

// ExportExecutionPlanGraphviz exports the execution plan as Graphviz DOT
// format: steps chained in order, each fanned out to its targets.
func ExportExecutionPlanGraphviz(info ExecutionPlanInfo) string {
	var b strings.Builder

	b.WriteString("digraph ExecutionPlan {\n")
	b.WriteString("  rankdir=LR;\n")
	b.WriteString("  node [shape=box, style=rounded];\n")
	fmt.Fprintf(&b, "  label=\"%s\";\n", escapeGraphviz(info.Task))
	b.WriteString("  labelloc=t;\n")
	b.WriteString("  \n")

	b.WriteString("  // Steps\n")
	for _, s := range info.Steps {
		color := "lightblue"
		switch {
		case s.Placement != "targets":
			color = "lightyellow"
		case s.BestEffort:
			color = "lightgrey"
		}
		first, _, _ := strings.Cut(s.Statement, "\n")
		fmt.Fprintf(&b, "  \"step%d\" [fillcolor=%s, style=\"rounded,filled\", label=\"%d: %s\"];\n",
			s.Index, color, s.Index, escapeGraphviz(first))
	}
	b.WriteString("  \n")

	b.WriteString("  // Order\n")
	for i := 1; i < len(info.Steps); i++ {
		fmt.Fprintf(&b, "  \"step%d\" -> \"step%d\";\n", info.Steps[i-1].Index, info.Steps[i].Index)
	}
	b.WriteString("  \n")

	b.WriteString("  // Targets\n")
	for _, s := range info.Steps {
		for _, c := range s.Commands {
			node := fmt.Sprintf("step%d@%s", s.Index, c.Target)
			fmt.Fprintf(&b, "  \"%s\" [shape=ellipse, label=\"%s\"];\n", escapeGraphviz(node), escapeGraphviz(c.Target))
			fmt.Fprintf(&b, "  \"step%d\" -> \"%s\" [style=dashed];\n", s.Index, escapeGraphviz(node))
		}
	}
	b.WriteString("}\n")
	return b.String()
}

// DumpTokens writes the token stream of source, one token per line.
func DumpTokens(w io.Writer, source string) {
	for _, tok := range lexer.NewLexer(source).AllTokens() {
		flag := ""
		if tok.Quoted {
			flag = " quoted"
		}
		fmt.Fprintf(w, "%4d:%-3d %-12s %q%s\n", tok.Line, tok.Column, tok.Type, tok.Literal, flag)
	}
}

// DumpNamespaces writes the include tree rooted at root.
func DumpNamespaces(w io.Writer, root *includes.Namespace) {
	_ = root.Walk(func(ns *includes.Namespace) error {
		depth := 0
		for p := ns.Parent; p != nil; p = p.Parent {
			depth++
		}
		name := ns.Name
		if name == "" {
			name = "(root)"
		}
		fmt.Fprintf(w, "%s%s  %s  (%d tasks)\n", strings.Repeat("  ", depth), name, ns.Display, len(ns.File.Tasks))
		return nil
	})
}

func escapeGraphviz(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\"", "\\\"")
	return s
}
