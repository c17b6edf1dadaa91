package errors

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/fatih/color"
)

// Exit codes reported by the pf binary.
const (
	ExitOK        = 0
	ExitExecution = 1
	ExitUsage     = 2
	ExitSyntax    = 3
	ExitBinding   = 4
	ExitDispatch  = 5
	ExitTarget    = 6
)

var (
	errorLabel = color.New(color.FgRed, color.Bold)
	locStyle   = color.New(color.FgCyan)
	lineStyle  = color.New(color.FgBlue)
	helpLabel  = color.New(color.FgYellow)
)

// SyntaxError is a grammar or parse-time failure in a source file.
type SyntaxError struct {
	Message  string
	Filename string
	Line     int
	Column   int
	Source   string
	Help     string
}

func (e *SyntaxError) Error() string {
	if e.Filename == "" {
		return fmt.Sprintf("line %d: %s", e.Line, e.Message)
	}
	return fmt.Sprintf("%s:%d: %s", e.Filename, e.Line, e.Message)
}

// Hint returns a one-line remediation for the error.
func (e *SyntaxError) Hint() string {
	if e.Help != "" {
		return e.Help
	}
	msg := strings.ToLower(e.Message)
	switch {
	case strings.Contains(msg, "expected `end`"):
		return "Close every task block with a line containing only 'end'"
	case strings.Contains(msg, "heredoc"):
		return "Terminate the block with a line containing only its delimiter"
	case strings.Contains(msg, "duplicate task"):
		return "Rename one of the tasks or move it to an included file"
	case strings.Contains(msg, "include"):
		return "Place include directives outside task ... end blocks"
	}
	return "Check the task file syntax near the reported line"
}

// FormatError renders the error with its source line and a caret.
func (e *SyntaxError) FormatError() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s\n", errorLabel.Sprint("Error"), e.Message)
	fmt.Fprintf(&b, "  %s\n", locStyle.Sprintf("--> %s:%d:%d", e.Filename, e.Line, max(e.Column, 1)))

	lines := strings.Split(e.Source, "\n")
	if e.Line > 0 && e.Line <= len(lines) {
		num := fmt.Sprintf("%d", e.Line)
		fmt.Fprintf(&b, "   %s | %s\n", lineStyle.Sprint(num), lines[e.Line-1])
		pad := strings.Repeat(" ", len(num)) + " | " + strings.Repeat(" ", max(e.Column-1, 0))
		fmt.Fprintf(&b, "   %s%s\n", pad, errorLabel.Sprint("^"))
	}
	fmt.Fprintf(&b, "   %s %s\n", helpLabel.Sprint("Help:"), e.Hint())
	return b.String()
}

// SyntaxErrorList collects every syntax error found in one file.
type SyntaxErrorList struct {
	Errors   []*SyntaxError
	Filename string
}

func (el *SyntaxErrorList) Error() string {
	switch len(el.Errors) {
	case 0:
		return "no errors"
	case 1:
		return el.Errors[0].Error()
	}
	msgs := make([]string, 0, len(el.Errors))
	for _, err := range el.Errors {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Hint returns the hint of the first error.
func (el *SyntaxErrorList) Hint() string {
	if len(el.Errors) == 0 {
		return ""
	}
	return el.Errors[0].Hint()
}

// FormatErrors renders at most three errors.
func (el *SyntaxErrorList) FormatErrors() string {
	const maxErrors = 3
	shown := el.Errors
	if len(shown) > maxErrors {
		shown = shown[:maxErrors]
	}

	var b strings.Builder
	switch {
	case len(el.Errors) == 1:
		b.WriteString("Parse error:\n\n")
	case len(el.Errors) <= maxErrors:
		fmt.Fprintf(&b, "Parse errors (%d):\n\n", len(el.Errors))
	default:
		fmt.Fprintf(&b, "Parse errors (showing first %d of %d):\n\n", maxErrors, len(el.Errors))
	}
	for i, err := range shown {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(err.FormatError())
	}
	if len(el.Errors) > maxErrors {
		fmt.Fprintf(&b, "\n%s %d additional errors not shown. Fix the above errors first.\n",
			helpLabel.Sprint("Note:"), len(el.Errors)-maxErrors)
	}
	return b.String()
}

// IncludeError is a missing or circular include.
type IncludeError struct {
	Chain    []string
	Path     string
	Circular bool
	Err      error
}

func (e *IncludeError) Error() string {
	if e.Circular {
		return "circular include: " + strings.Join(e.Chain, " → ")
	}
	msg := fmt.Sprintf("cannot include %s", e.Path)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if len(e.Chain) > 0 {
		msg += " (via " + strings.Join(e.Chain, " → ") + ")"
	}
	return msg
}

func (e *IncludeError) Unwrap() error { return e.Err }

func (e *IncludeError) Hint() string {
	if e.Circular {
		return "Remove one include so the files no longer reference each other"
	}
	return "Include paths are resolved relative to the including file's directory"
}

// BindingError is an unresolved parameter or a malformed invocation argument.
type BindingError struct {
	Task      string
	Statement int
	Param     string
	Message   string
}

func (e *BindingError) Error() string {
	if e.Message != "" {
		if e.Task != "" {
			return fmt.Sprintf("task %s: %s", e.Task, e.Message)
		}
		return e.Message
	}
	return fmt.Sprintf("task %s, statement %d: unresolved parameter $%s", e.Task, e.Statement, e.Param)
}

func (e *BindingError) Hint() string {
	if e.Param != "" && e.Message == "" {
		return fmt.Sprintf("Pass it on the command line: pf %s %s=<value>", e.Task, e.Param)
	}
	return "Parameters take the form key=value, --key=value or --key value"
}

// DispatchError is an unknown language tag or malformed verb arguments.
type DispatchError struct {
	Task      string
	Statement int
	Language  string
	Known     []string
	Message   string
}

func (e *DispatchError) Error() string {
	var prefix string
	if e.Task != "" {
		prefix = fmt.Sprintf("task %s, statement %d: ", e.Task, e.Statement)
	}
	if e.Language != "" && e.Message == "" {
		return fmt.Sprintf("%sunknown language %q", prefix, e.Language)
	}
	return prefix + e.Message
}

func (e *DispatchError) Hint() string {
	if len(e.Known) > 0 {
		return "Known languages: " + strings.Join(e.Known, ", ")
	}
	return "Check the verb's arguments with: pf help " + e.Task
}

// TargetError is an unresolvable host spec or an unknown env preset.
type TargetError struct {
	Spec    string
	Preset  string
	Known   []string
	Message string
}

func (e *TargetError) Error() string {
	if e.Preset != "" && e.Message == "" {
		return fmt.Sprintf("unknown env preset %q", e.Preset)
	}
	if e.Spec != "" {
		return fmt.Sprintf("invalid host %q: %s", e.Spec, e.Message)
	}
	return e.Message
}

func (e *TargetError) Hint() string {
	if e.Preset != "" {
		if len(e.Known) == 0 {
			return "Define presets under 'envs:' in .pf/workspace.yml"
		}
		return "Known presets: " + strings.Join(e.Known, ", ")
	}
	return "Hosts take the form [user@]host[:port], separated by commas"
}

// ExecutionFailure is a non-zero exit or timeout of one statement on one host.
type ExecutionFailure struct {
	Task      string
	Statement int
	Host      string
	ExitCode  int
	TimedOut  bool
	Err       error
}

func (e *ExecutionFailure) Error() string {
	where := fmt.Sprintf("task %s, statement %d on %s", e.Task, e.Statement, e.Host)
	switch {
	case e.TimedOut:
		return where + ": timed out"
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", where, e.Err)
	}
	return fmt.Sprintf("%s: exit status %d", where, e.ExitCode)
}

func (e *ExecutionFailure) Unwrap() error { return e.Err }

func (e *ExecutionFailure) Hint() string {
	if e.TimedOut {
		return "Raise the limit with --timeout or fix the hanging command"
	}
	return "Re-run with --debug to see the exact command, or --dry-run to inspect it"
}

// UsageError is a CLI misuse such as an unknown task name.
type UsageError struct {
	Message string
	Help    string
}

func (e *UsageError) Error() string { return e.Message }

func (e *UsageError) Hint() string {
	if e.Help != "" {
		return e.Help
	}
	return "Run 'pf list' to see the available tasks"
}

// Usagef builds a UsageError.
func Usagef(format string, args ...any) *UsageError {
	return &UsageError{Message: fmt.Sprintf(format, args...)}
}

type hinter interface {
	Hint() string
}

// Hint returns the remediation hint attached to err, if any.
func Hint(err error) string {
	var h hinter
	if stderrors.As(err, &h) {
		return h.Hint()
	}
	return ""
}

// ExitCode maps an error to the process exit status.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var (
		syn  *SyntaxError
		synl *SyntaxErrorList
		inc  *IncludeError
		bind *BindingError
		disp *DispatchError
		tgt  *TargetError
		use  *UsageError
	)
	switch {
	case stderrors.As(err, &synl), stderrors.As(err, &syn), stderrors.As(err, &inc):
		return ExitSyntax
	case stderrors.As(err, &bind):
		return ExitBinding
	case stderrors.As(err, &disp):
		return ExitDispatch
	case stderrors.As(err, &tgt):
		return ExitTarget
	case stderrors.As(err, &use):
		return ExitUsage
	}
	return ExitExecution
}

// Format renders err for the terminal.
func Format(err error) string {
	var synl *SyntaxErrorList
	if stderrors.As(err, &synl) {
		return synl.FormatErrors()
	}
	var syn *SyntaxError
	if stderrors.As(err, &syn) {
		return syn.FormatError()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s: %v\n", errorLabel.Sprint("Error"), err)
	if hint := Hint(err); hint != "" {
		fmt.Fprintf(&b, "   %s %s\n", helpLabel.Sprint("Help:"), hint)
	}
	return b.String()
}
