package parameter

import (
	"fmt"
	"sort"
	"strings"

	"github.com/phillarmonic/pf/internal/errors"
)

// Source records where a bound value came from
type Source int

const (
	SourcePreset Source = iota // default from an env= preset
	SourceArg                  // invocation argument
)

func (s Source) String() string {
	if s == SourcePreset {
		return "preset"
	}
	return "argument"
}

// Environment maps parameter names to values for one invocation.
type Environment struct {
	values  map[string]string
	sources map[string]Source
}

// NewEnvironment creates an empty environment
func NewEnvironment() *Environment {
	return &Environment{
		values:  make(map[string]string),
		sources: make(map[string]Source),
	}
}

// Set binds name, replacing any earlier value
func (e *Environment) Set(name, value string, src Source) {
	e.values[name] = value
	e.sources[name] = src
}

// Get returns the value bound to name
func (e *Environment) Get(name string) (string, bool) {
	v, ok := e.values[name]
	return v, ok
}

// Source returns where name's value came from
func (e *Environment) Source(name string) Source {
	return e.sources[name]
}

// Names returns the bound names, sorted
func (e *Environment) Names() []string {
	names := make([]string, 0, len(e.values))
	for name := range e.values {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Map returns a copy of the bindings
func (e *Environment) Map() map[string]string {
	out := make(map[string]string, len(e.values))
	for k, v := range e.values {
		out[k] = v
	}
	return out
}

// Len returns the number of bindings
func (e *Environment) Len() int {
	return len(e.values)
}

// Bind builds the parameter environment for one task invocation. Preset
// defaults are bound first; arguments are then applied left to right and
// the last occurrence of a key wins. Accepted forms: key=value,
// --key=value, --key value and a bare --flag (bound to "true"). Values
// wrapped in matching quotes are unquoted. Hyphens in keys become
// underscores so --build-dir binds $build_dir.
func Bind(task string, args []string, defaults map[string]string) (*Environment, error) {
	env := NewEnvironment()

	keys := make([]string, 0, len(defaults))
	for k := range defaults {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env.Set(normalizeKey(k), defaults[k], SourcePreset)
	}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		var key, value string

		switch {
		case arg == "--":
			return nil, &errors.BindingError{Task: task, Message: "unexpected '--'; parameters take the form key=value"}
		case strings.HasPrefix(arg, "--"):
			body := arg[2:]
			if k, v, ok := strings.Cut(body, "="); ok {
				key, value = k, v
			} else if i+1 < len(args) && !strings.HasPrefix(args[i+1], "--") {
				key, value = body, args[i+1]
				i++
			} else {
				key, value = body, "true"
			}
		case strings.HasPrefix(arg, "-") && len(arg) > 1:
			return nil, &errors.BindingError{Task: task, Message: fmt.Sprintf("unsupported short flag %q; use --key value", arg)}
		case strings.Contains(arg, "="):
			key, value, _ = strings.Cut(arg, "=")
		default:
			return nil, &errors.BindingError{Task: task, Message: fmt.Sprintf("unexpected argument %q; parameters take the form key=value", arg)}
		}

		if !validKey(key) {
			return nil, &errors.BindingError{Task: task, Message: fmt.Sprintf("malformed parameter %q", arg)}
		}
		env.Set(normalizeKey(key), unquote(value), SourceArg)
	}
	return env, nil
}

// IsParameterArg reports whether arg has one of the parameter forms, so a
// bare word after a task can be told apart from the next task name.
func IsParameterArg(arg string) bool {
	return strings.HasPrefix(arg, "--") || strings.Contains(arg, "=")
}

// TakesValue reports whether arg is a --key form that consumes the next
// argument as its value.
func TakesValue(arg string, next string) bool {
	return strings.HasPrefix(arg, "--") && arg != "--" && !strings.Contains(arg, "=") && !strings.HasPrefix(next, "--")
}

func normalizeKey(key string) string {
	return strings.ReplaceAll(key, "-", "_")
}

func validKey(key string) bool {
	if key == "" {
		return false
	}
	for i, r := range key {
		switch {
		case r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
		case i > 0 && (r == '-' || (r >= '0' && r <= '9')):
		default:
			return false
		}
	}
	return true
}

func unquote(s string) string {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}
