package task

import (
	"fmt"
	"strings"

	"github.com/phillarmonic/pf/internal/ast"
)

// Task is a parsed task together with the namespace it was loaded into.
// Tasks are immutable once registered.
type Task struct {
	Name        string
	Aliases     []string
	Description string
	Statements  []ast.Statement
	Params      []string
	Namespace   string // derived subcommand name, empty for the root file
	Source      string // file where the task is defined, as shown to users
	Line        int

	// Path is the defining file inside the source filesystem; @file
	// statements resolve against its directory.
	Path string
	// Dir is the local directory relative verb paths resolve against.
	Dir string
}

// NewTask creates a new task from AST
func NewTask(def *ast.Task, namespace, source string) *Task {
	return &Task{
		Name:        def.Name,
		Aliases:     append([]string(nil), def.Aliases...),
		Description: def.Description,
		Statements:  def.Statements,
		Params:      def.Params(),
		Namespace:   namespace,
		Source:      source,
		Line:        def.Token.Line,
	}
}

// FullName returns the fully qualified task name (with namespace)
func (t *Task) FullName() string {
	if t.Namespace == "" {
		return t.Name
	}
	return t.Namespace + "." + t.Name
}

// Invocation returns the command line that selects this task unambiguously.
func (t *Task) Invocation() string {
	if t.Namespace == "" {
		return "pf " + t.Name
	}
	return "pf " + t.Namespace + " " + t.Name
}

// Summary returns the description, or the first statement shortened to
// fit a listing column.
func (t *Task) Summary() string {
	if t.Description != "" {
		return t.Description
	}
	if len(t.Statements) == 0 {
		return ""
	}
	first, _, _ := strings.Cut(t.Statements[0].String(), "\n")
	if len(first) > 50 {
		return first[:47] + "..."
	}
	return first
}

// Validate checks the task invariants.
func (t *Task) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("task name cannot be empty")
	}
	for _, stmt := range t.Statements {
		if stmt.Kind() == ast.KindInclude {
			return fmt.Errorf("task '%s': include is only valid at file scope", t.Name)
		}
	}
	return nil
}
