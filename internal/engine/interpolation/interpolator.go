package interpolation

import (
	"strings"

	"github.com/phillarmonic/pf/internal/lexer"
)

// Lookup resolves a parameter name to its bound value
type Lookup interface {
	Get(name string) (string, bool)
}

// UndefinedError reports a reference with no binding
type UndefinedError struct {
	Name string
}

func (e *UndefinedError) Error() string {
	return "unresolved parameter $" + e.Name
}

// Interpolator substitutes $name and ${name} references in statement text.
// Substitution is a single pass: substituted values are never rescanned, so
// a value containing "$other" reaches the command unchanged.
type Interpolator struct {
	params Lookup
	shell  map[string]bool
}

// NewInterpolator creates a new interpolator over params
func NewInterpolator(params Lookup) *Interpolator {
	return &Interpolator{
		params: params,
		shell:  make(map[string]bool),
	}
}

// Declare marks name as a shell variable set by an earlier env statement.
// References to it are left for the shell to expand.
func (i *Interpolator) Declare(name string) {
	i.shell[name] = true
}

// IsDeclared reports whether name was declared with Declare
func (i *Interpolator) IsDeclared(name string) bool {
	return i.shell[name]
}

// Interpolate returns text with every parameter reference replaced. An
// escaped \$name loses its backslash and reaches the shell as $name. The
// first unbound reference fails the whole substitution.
func (i *Interpolator) Interpolate(text string) (string, error) {
	if !strings.Contains(text, "$") {
		return text, nil
	}

	var b strings.Builder
	b.Grow(len(text))
	for _, seg := range lexer.ScanParams(text) {
		if seg.Escaped {
			b.WriteString(seg.Text[1:])
			continue
		}
		if !seg.Param || i.shell[seg.Name] {
			b.WriteString(seg.Text)
			continue
		}
		value, ok := i.params.Get(seg.Name)
		if !ok {
			return "", &UndefinedError{Name: seg.Name}
		}
		b.WriteString(value)
	}
	return b.String(), nil
}

// InterpolateAll applies Interpolate to each word.
func (i *Interpolator) InterpolateAll(words []string) ([]string, error) {
	out := make([]string, len(words))
	for n, w := range words {
		v, err := i.Interpolate(w)
		if err != nil {
			return nil, err
		}
		out[n] = v
	}
	return out, nil
}

// Missing returns the names referenced in text that have no binding and were
// not declared as shell variables, in order of first use.
func (i *Interpolator) Missing(text string) []string {
	var missing []string
	for _, name := range lexer.ParamNames(text) {
		if i.shell[name] {
			continue
		}
		if _, ok := i.params.Get(name); !ok {
			missing = append(missing, name)
		}
	}
	return missing
}
