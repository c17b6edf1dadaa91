// Package polyglot turns statements tagged with a language into argv vectors.
package polyglot

import (
	"fmt"
	"sort"
	"strings"

	"al.essio.dev/pkg/shellescape"

	"github.com/phillarmonic/pf/internal/errors"
)

// Delimiter closes the heredoc that carries source code into a temp file.
const Delimiter = "__PF_LANG__"

// Invocation is a ready-to-run process for one polyglot statement.
type Invocation struct {
	Language string
	Argv     []string
}

// String renders the argv as a single shell-quoted command line
func (inv *Invocation) String() string {
	return shellescape.QuoteCommand(inv.Argv)
}

// Registry maps language names and aliases to recipes.
type Registry struct {
	recipes map[string]*Recipe
	aliases map[string]string
}

// NewRegistry returns a registry with every built-in language
func NewRegistry() *Registry {
	r := &Registry{
		recipes: make(map[string]*Recipe),
		aliases: make(map[string]string),
	}
	for _, rec := range defaultRecipes() {
		r.Register(rec)
	}
	for alias, name := range defaultAliases() {
		r.Alias(alias, name)
	}
	return r
}

// Register adds or replaces a recipe
func (r *Registry) Register(rec *Recipe) {
	r.recipes[strings.ToLower(rec.Name)] = rec
}

// Alias maps an alternative spelling to a registered language
func (r *Registry) Alias(alias, name string) {
	r.aliases[strings.ToLower(alias)] = strings.ToLower(name)
}

// Canonical returns the language name an identifier resolves to.
func (r *Registry) Canonical(lang string) string {
	key := strings.ToLower(strings.TrimSpace(lang))
	if name, ok := r.aliases[key]; ok {
		return name
	}
	return key
}

// Lookup returns the recipe for lang, following aliases
func (r *Registry) Lookup(lang string) (*Recipe, bool) {
	rec, ok := r.recipes[r.Canonical(lang)]
	return rec, ok
}

// Supports reports whether lang resolves to a recipe
func (r *Registry) Supports(lang string) bool {
	_, ok := r.Lookup(lang)
	return ok
}

// Languages returns the canonical language names, sorted
func (r *Registry) Languages() []string {
	names := make([]string, 0, len(r.recipes))
	for name := range r.recipes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Aliases returns a copy of the alias table
func (r *Registry) Aliases() map[string]string {
	out := make(map[string]string, len(r.aliases))
	for k, v := range r.aliases {
		out[k] = v
	}
	return out
}

// Build produces the argv that runs code in lang with args. An
// unrecognized language yields a *errors.DispatchError listing the known
// languages.
func (r *Registry) Build(lang, code string, args []string) (*Invocation, error) {
	rec, ok := r.Lookup(lang)
	if !ok {
		return nil, &errors.DispatchError{Language: lang, Known: r.Languages()}
	}
	argv, err := rec.argv(code, args)
	if err != nil {
		return nil, err
	}
	return &Invocation{Language: rec.Name, Argv: argv}, nil
}

func (rec *Recipe) argv(code string, args []string) ([]string, error) {
	switch rec.Kind {
	case KindShell:
		argv := append(append([]string{}, rec.Command...), "-c", code, "pf")
		return append(argv, args...), nil
	case KindInline:
		if strings.Contains(strings.TrimRight(code, "\n"), "\n") {
			break
		}
		argv := append(append([]string{}, rec.Command...), rec.Flag, code)
		return append(argv, args...), nil
	case KindScript, KindCompile:
	default:
		return nil, fmt.Errorf("language %s has no usable recipe", rec.Name)
	}
	argv := []string{"sh", "-c", rec.wrapper(code), "pf"}
	return append(argv, args...), nil
}

// wrapper writes code to a private temp directory through a quoted heredoc
// and runs it. The directory is removed on exit and the exit status of the
// program is kept.
func (rec *Recipe) wrapper(code string) string {
	if !strings.HasSuffix(code, "\n") {
		code += "\n"
	}
	delim := uniqueDelimiter(code)
	base := rec.Basename
	if base == "" {
		base = "pf_poly"
	}

	var b strings.Builder
	b.WriteString("tmpdir=$(mktemp -d) || exit 1\n")
	b.WriteString("trap 'rm -rf \"$tmpdir\"' EXIT\n")
	fmt.Fprintf(&b, "src=\"$tmpdir/%s%s\"\n", base, rec.Ext)
	b.WriteString("bin=\"$tmpdir/pf_poly_bin\"\n")
	for _, line := range rec.Setup {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "cat > \"$src\" <<'%s'\n%s%s\n", delim, code, delim)

	if rec.Kind == KindCompile {
		fmt.Fprintf(&b, "%s || exit $?\n", rec.Compile)
		fmt.Fprintf(&b, "%s \"$@\"\n", rec.Run)
		return b.String()
	}
	fmt.Fprintf(&b, "%s \"$src\" \"$@\"\n", shellescape.QuoteCommand(rec.Command))
	return b.String()
}

func uniqueDelimiter(code string) string {
	lines := strings.Split(code, "\n")
	taken := func(d string) bool {
		for _, ln := range lines {
			if strings.TrimSpace(ln) == d {
				return true
			}
		}
		return false
	}
	delim := Delimiter
	for n := 1; taken(delim); n++ {
		delim = fmt.Sprintf("%s%d", Delimiter, n)
	}
	return delim
}
