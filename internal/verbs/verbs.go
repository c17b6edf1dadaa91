// Package verbs translates structured verb statements into argv vectors.
package verbs

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"al.essio.dev/pkg/shellescape"

	"github.com/phillarmonic/pf/internal/errors"
)

// Placement says where a translated command runs.
type Placement int

const (
	// OnTargets fans out over the invocation's targets like a shell command.
	OnTargets Placement = iota
	// Local runs once on the local machine whatever the target set is.
	Local
	// LocalPerTarget runs on the local machine once for every target.
	LocalPerTarget
)

func (p Placement) String() string {
	switch p {
	case OnTargets:
		return "targets"
	case Local:
		return "local"
	case LocalPerTarget:
		return "local-per-target"
	}
	return "unknown"
}

// Destination identifies the target a LocalPerTarget command is aimed at.
type Destination struct {
	Local bool
	User  string
	Host  string
	Port  int
}

// Command is the translated form of one verb statement.
type Command struct {
	Verb      string
	Argv      []string
	Env       map[string]string
	Dir       string
	Placement Placement

	// Stdin, when set, opens a fresh payload for each target.
	Stdin func(ctx context.Context) (io.ReadCloser, error)

	perTarget func(Destination) []string
}

// ArgvFor returns the argv to run for dest. Only LocalPerTarget commands
// vary by destination.
func (c *Command) ArgvFor(dest Destination) []string {
	if c.perTarget != nil {
		return c.perTarget(dest)
	}
	return c.Argv
}

// String renders the command as a shell-quoted line
func (c *Command) String() string {
	return shellescape.QuoteCommand(c.Argv)
}

// Context carries what a verb needs beyond its arguments.
type Context struct {
	Task      string
	Statement int
	BaseDir   string // directory of the task file; relative paths start here
}

type translateFunc func(ctx Context, args *Args) (*Command, error)

var translators = map[string]translateFunc{
	"packages":  translatePackages,
	"service":   translateService,
	"directory": translateDirectory,
	"copy":      translateCopy,
	"sync":      translateSync,
	"makefile":  translateMakefile,
	"cmake":     translateCMake,
	"meson":     translateMeson,
	"cargo":     translateCargo,
	"go_build":  translateGoBuild,
	"configure": translateConfigure,
	"justfile":  translateJustfile,
	"autobuild": translateAutobuild,
}

// Names returns every verb with a translation, sorted
func Names() []string {
	names := make([]string, 0, len(translators))
	for name := range translators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsBuildHelper reports whether verb always runs on the local machine.
func IsBuildHelper(verb string) bool {
	switch verb {
	case "makefile", "cmake", "meson", "cargo", "go_build", "configure", "justfile", "autobuild":
		return true
	}
	return false
}

// Translate turns a verb and its already substituted arguments into a
// Command. Malformed arguments yield a *errors.DispatchError.
func Translate(ctx Context, verb string, words []string) (*Command, error) {
	fn, ok := translators[verb]
	if !ok {
		return nil, ctx.errorf("unknown verb %q (known: %s)", verb, strings.Join(Names(), ", "))
	}
	args := ParseArgs(words)
	cmd, err := fn(ctx, args)
	if err != nil {
		return nil, err
	}
	cmd.Verb = verb
	if IsBuildHelper(verb) {
		cmd.Placement = Local
	}
	return cmd, nil
}

func (ctx Context) errorf(format string, a ...any) error {
	return &errors.DispatchError{
		Task:      ctx.Task,
		Statement: ctx.Statement,
		Message:   fmt.Sprintf(format, a...),
	}
}

// Args is a verb's argument list split by role.
type Args struct {
	Positional  []string
	Options     map[string]string
	Passthrough []string // words starting with '-'
	Vars        []string // NAME=value words with an upper-case name
}

// ParseArgs classifies verb argument words.
func ParseArgs(words []string) *Args {
	a := &Args{Options: make(map[string]string)}
	for _, w := range words {
		if strings.HasPrefix(w, "-") {
			a.Passthrough = append(a.Passthrough, w)
			continue
		}
		if k, v, ok := strings.Cut(w, "="); ok && k != "" {
			switch {
			case isOptionKey(k):
				a.Options[k] = v
				continue
			case isVarName(k):
				a.Vars = append(a.Vars, w)
				continue
			}
		}
		a.Positional = append(a.Positional, w)
	}
	return a
}

// check rejects options outside allowed.
func (a *Args) check(ctx Context, verb string, allowed ...string) error {
	ok := make(map[string]bool, len(allowed))
	for _, k := range allowed {
		ok[k] = true
	}
	var unknown []string
	for k := range a.Options {
		if !ok[k] {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	sort.Strings(unknown)
	if len(allowed) == 0 {
		return ctx.errorf("%s takes no options, got %s", verb, strings.Join(unknown, ", "))
	}
	return ctx.errorf("%s: unknown option %s (accepted: %s)", verb, strings.Join(unknown, ", "), strings.Join(allowed, ", "))
}

func (a *Args) flag(name string) bool {
	switch strings.ToLower(a.Options[name]) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

func (a *Args) list(name string) []string {
	v := a.Options[name]
	if v == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func isOptionKey(k string) bool {
	for i, r := range k {
		switch {
		case r >= 'a' && r <= 'z':
		case i > 0 && (r == '_' || (r >= '0' && r <= '9')):
		default:
			return false
		}
	}
	return true
}

func isVarName(k string) bool {
	for i, r := range k {
		switch {
		case r >= 'A' && r <= 'Z', r == '_':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}

// chain joins argvs into one sh -c command that stops at the first failure.
func chain(argvs ...[]string) []string {
	parts := make([]string, len(argvs))
	for i, argv := range argvs {
		parts[i] = shellescape.QuoteCommand(argv)
	}
	return []string{"sh", "-c", strings.Join(parts, " && ")}
}
