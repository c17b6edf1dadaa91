// Package planner resolves a task's statements into ready-to-run commands.
// Everything that can fail before a process starts fails here: parameter
// substitution, language dispatch and verb translation.
package planner

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/phillarmonic/pf/internal/ast"
	"github.com/phillarmonic/pf/internal/domain/parameter"
	"github.com/phillarmonic/pf/internal/domain/task"
	"github.com/phillarmonic/pf/internal/engine/interpolation"
	"github.com/phillarmonic/pf/internal/errors"
	"github.com/phillarmonic/pf/internal/lexer"
	"github.com/phillarmonic/pf/internal/polyglot"
	"github.com/phillarmonic/pf/internal/verbs"
)

// DefaultLanguage runs bare statements when the task never switches.
const DefaultLanguage = "bash"

// Step is one executable statement with its parameters substituted.
type Step struct {
	Index     int // 1-based statement index within the task
	Line      int
	Statement string // the statement as written
	Language  string // canonical language of a shell statement
	Verb      string
	Flags     ast.Flags
	Placement verbs.Placement
	Command   *verbs.Command
}

// Display renders the resolved command for dest.
func (s *Step) Display(dest verbs.Destination) string {
	argv := s.Command.ArgvFor(dest)
	if s.Command.Stdin != nil {
		return (&verbs.Command{Argv: argv}).String() + " < " + s.Verb + " payload"
	}
	return (&verbs.Command{Argv: argv}).String()
}

// ExecutionPlan is a task prepared for one invocation.
type ExecutionPlan struct {
	Task   *task.Task
	Params *parameter.Environment
	Steps  []*Step
}

// Planner prepares execution plans
type Planner struct {
	languages       *polyglot.Registry
	fsys            fs.FS
	defaultLanguage string
}

// NewPlanner creates a planner. @file statements are read from fsys, or
// from the task's local directory when fsys is nil.
func NewPlanner(languages *polyglot.Registry, fsys fs.FS, defaultLanguage string) *Planner {
	if defaultLanguage == "" {
		defaultLanguage = DefaultLanguage
	}
	return &Planner{languages: languages, fsys: fsys, defaultLanguage: defaultLanguage}
}

// planState is the per-task state threaded through the statements.
type planState struct {
	task     *task.Task
	interp   *interpolation.Interpolator
	language string
	env      map[string]string
}

// Plan resolves every statement of t against params.
func (p *Planner) Plan(t *task.Task, params *parameter.Environment) (*ExecutionPlan, error) {
	if !p.languages.Supports(p.defaultLanguage) {
		return nil, &errors.DispatchError{Task: t.FullName(), Language: p.defaultLanguage, Known: p.languages.Languages()}
	}
	st := &planState{
		task:     t,
		interp:   interpolation.NewInterpolator(params),
		language: p.defaultLanguage,
		env:      make(map[string]string),
	}
	plan := &ExecutionPlan{Task: t, Params: params}

	for i, stmt := range t.Statements {
		index := i + 1
		switch s := stmt.(type) {
		case *ast.EnvSet:
			value, err := st.interp.Interpolate(s.Value)
			if err != nil {
				return nil, bindingError(t, index, err)
			}
			st.env[s.Key] = value
			st.interp.Declare(s.Key)

		case *ast.LanguageSwitch:
			if !p.languages.Supports(s.Language) {
				return nil, &errors.DispatchError{Task: t.FullName(), Statement: index, Language: s.Language, Known: p.languages.Languages()}
			}
			st.language = s.Language

		case *ast.ShellCommand:
			step, err := p.shellStep(st, s, index)
			if err != nil {
				return nil, err
			}
			plan.Steps = append(plan.Steps, step)

		case *ast.Verb:
			step, err := p.verbStep(st, s, index)
			if err != nil {
				return nil, err
			}
			plan.Steps = append(plan.Steps, step)

		default:
			return nil, fmt.Errorf("task %s, statement %d: %s is not valid inside a task", t.FullName(), index, stmt.Kind())
		}
	}
	return plan, nil
}

func (p *Planner) shellStep(st *planState, s *ast.ShellCommand, index int) (*Step, error) {
	t := st.task
	language := st.language
	if s.Language != "" {
		language = s.Language
	}
	rec, ok := p.languages.Lookup(language)
	if !ok {
		return nil, &errors.DispatchError{Task: t.FullName(), Statement: index, Language: language, Known: p.languages.Languages()}
	}

	var code string
	switch {
	case s.File != "":
		data, err := p.readSource(t, s.File)
		if err != nil {
			return nil, &errors.DispatchError{Task: t.FullName(), Statement: index, Message: fmt.Sprintf("cannot read @%s: %v", s.File, err)}
		}
		code = string(data)
	case s.Raw:
		code = s.Text
	default:
		var err error
		if code, err = st.interp.Interpolate(s.Text); err != nil {
			return nil, bindingError(t, index, err)
		}
	}
	args, err := st.interp.InterpolateAll(s.Args)
	if err != nil {
		return nil, bindingError(t, index, err)
	}

	env := maps.Clone(st.env)
	if rec.Kind == polyglot.KindShell && s.File == "" && s.Heredoc == "" {
		var hoisted map[string]string
		hoisted, code = HoistAssignments(code)
		maps.Copy(env, hoisted)
	}

	inv, err := p.languages.Build(language, code, args)
	if err != nil {
		return nil, dispatchError(t, index, err)
	}

	placement := verbs.OnTargets
	if s.Flags.Local {
		placement = verbs.Local
	}
	return &Step{
		Index:     index,
		Line:      s.Line(),
		Statement: s.String(),
		Language:  inv.Language,
		Flags:     s.Flags,
		Placement: placement,
		Command:   &verbs.Command{Argv: inv.Argv, Env: env},
	}, nil
}

func (p *Planner) verbStep(st *planState, s *ast.Verb, index int) (*Step, error) {
	t := st.task
	words, err := st.interp.InterpolateAll(s.Args)
	if err != nil {
		return nil, bindingError(t, index, err)
	}
	cmd, err := verbs.Translate(verbs.Context{Task: t.FullName(), Statement: index, BaseDir: t.Dir}, s.Name, words)
	if err != nil {
		return nil, err
	}

	env := maps.Clone(st.env)
	maps.Copy(env, cmd.Env)
	cmd.Env = env

	placement := cmd.Placement
	if s.Flags.Local && placement == verbs.OnTargets {
		placement = verbs.Local
	}
	return &Step{
		Index:     index,
		Line:      s.Line(),
		Statement: s.String(),
		Verb:      s.Name,
		Flags:     s.Flags,
		Placement: placement,
		Command:   cmd,
	}, nil
}

// readSource reads an @file statement relative to the defining file.
func (p *Planner) readSource(t *task.Task, name string) ([]byte, error) {
	if p.fsys == nil {
		if !filepath.IsAbs(name) {
			name = filepath.Join(t.Dir, name)
		}
		return os.ReadFile(name)
	}
	full := path.Join(path.Dir(t.Path), filepath.ToSlash(name))
	if path.IsAbs(name) {
		full = strings.TrimPrefix(path.Clean(name), "/")
	}
	return fs.ReadFile(p.fsys, full)
}

func bindingError(t *task.Task, index int, err error) error {
	var undef *interpolation.UndefinedError
	if stderrors.As(err, &undef) {
		return &errors.BindingError{Task: t.FullName(), Statement: index, Param: undef.Name}
	}
	return err
}

func dispatchError(t *task.Task, index int, err error) error {
	var de *errors.DispatchError
	if stderrors.As(err, &de) {
		de.Task = t.FullName()
		de.Statement = index
		return de
	}
	return &errors.DispatchError{Task: t.FullName(), Statement: index, Message: err.Error()}
}

// HoistAssignments moves leading NAME=value words of a shell line into an
// environment map. Values that need shell expansion stay on the line, as
// does a line consisting only of assignments.
func HoistAssignments(line string) (map[string]string, string) {
	env := make(map[string]string)
	rest := strings.TrimLeft(line, " \t")
	for {
		eq := strings.IndexByte(rest, '=')
		if eq <= 0 || !lexer.IsIdentifier(rest[:eq]) {
			break
		}
		value, remaining, ok := scanValue(rest[eq+1:])
		if !ok {
			break
		}
		remaining = strings.TrimLeft(remaining, " \t")
		if remaining == "" || strings.ContainsRune("\n;&|", rune(remaining[0])) {
			break
		}
		env[rest[:eq]] = value
		rest = remaining
	}
	if len(env) == 0 {
		return nil, line
	}
	return env, rest
}

// scanValue reads one assignment value up to unquoted whitespace.
func scanValue(s string) (value, rest string, ok bool) {
	var b strings.Builder
	i := 0
	for i < len(s) {
		ch := s[i]
		switch {
		case ch == ' ' || ch == '\t':
			return b.String(), s[i:], true
		case ch == '\'':
			end := strings.IndexByte(s[i+1:], '\'')
			if end < 0 {
				return "", "", false
			}
			b.WriteString(s[i+1 : i+1+end])
			i += end + 2
		case ch == '"':
			end := strings.IndexByte(s[i+1:], '"')
			if end < 0 {
				return "", "", false
			}
			inner := s[i+1 : i+1+end]
			if strings.ContainsAny(inner, "$`\\") {
				return "", "", false
			}
			b.WriteString(inner)
			i += end + 2
		case strings.IndexByte("$`\\(){}<>;&|\n*?[", ch) >= 0:
			return "", "", false
		default:
			b.WriteByte(ch)
			i++
		}
	}
	return b.String(), "", true
}
