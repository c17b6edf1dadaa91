package includes

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/rs/zerolog"

	"github.com/phillarmonic/pf/internal/ast"
	"github.com/phillarmonic/pf/internal/errors"
)

// ParseFunc parses one source file
type ParseFunc func(filename, source string) (*ast.File, error)

// Namespace is one source file's contribution to the task tree.
type Namespace struct {
	Name     string // subcommand name, empty for the root file
	Path     string // slash path inside the source filesystem
	Display  string // path shown to users
	File     *ast.File
	Parent   *Namespace
	Children []*Namespace
}

// Walk visits n and its descendants depth-first in include order.
func (n *Namespace) Walk(fn func(*Namespace) error) error {
	if err := fn(n); err != nil {
		return err
	}
	for _, child := range n.Children {
		if err := child.Walk(fn); err != nil {
			return err
		}
	}
	return nil
}

// Resolver expands include directives into a namespace tree. Paths are
// resolved against the including file's directory first and then against
// the root file's directory.
type Resolver struct {
	fsys     fs.FS
	parse    ParseFunc
	logger   zerolog.Logger
	rootDir  string
	loaded   map[string]*Namespace
	names    map[string]int
	warnings []ast.Warning
}

// NewResolver creates a new include resolver
func NewResolver(fsys fs.FS, parse ParseFunc, logger zerolog.Logger) *Resolver {
	return &Resolver{
		fsys:   fsys,
		parse:  parse,
		logger: logger,
		loaded: make(map[string]*Namespace),
		names:  make(map[string]int),
	}
}

// Resolve parses the root file and every file it includes.
func (r *Resolver) Resolve(root string) (*Namespace, error) {
	root = path.Clean(root)
	r.rootDir = path.Dir(root)
	return r.load(root, "", nil, nil)
}

// Warnings returns lint findings from every loaded file
func (r *Resolver) Warnings() []ast.Warning {
	return r.warnings
}

func (r *Resolver) load(name, written string, chain []string, parent *Namespace) (*Namespace, error) {
	display := r.display(name)

	for i, seen := range chain {
		if seen == display {
			cycle := append(append([]string(nil), chain[i:]...), display)
			return nil, &errors.IncludeError{Chain: cycle, Path: written, Circular: true}
		}
	}
	chain = append(chain, display)

	if ns, ok := r.loaded[name]; ok {
		r.logger.Debug().Str("file", display).Str("namespace", ns.Name).Msg("already included, skipping")
		return nil, nil
	}

	content, err := fs.ReadFile(r.fsys, name)
	if err != nil {
		if parent == nil {
			return nil, fmt.Errorf("failed to read %s: %w", display, err)
		}
		return nil, &errors.IncludeError{Chain: chain[:len(chain)-1], Path: written, Err: unwrapPathError(err)}
	}

	file, err := r.parse(display, string(content))
	if err != nil {
		return nil, err
	}
	r.warnings = append(r.warnings, file.Warnings...)

	ns := &Namespace{Path: name, Display: display, File: file, Parent: parent}
	if parent != nil {
		ns.Name = r.uniqueName(NamespaceName(name))
	}
	r.loaded[name] = ns
	r.logger.Debug().Str("file", display).Str("namespace", ns.Name).Int("tasks", len(file.Tasks)).Msg("loaded task file")

	for _, inc := range file.Includes {
		target, err := r.resolvePath(inc.Path, name)
		if err != nil {
			return nil, &errors.IncludeError{Chain: chain, Path: inc.Path, Err: err}
		}
		child, err := r.load(target, inc.Path, chain, ns)
		if err != nil {
			return nil, err
		}
		if child != nil {
			ns.Children = append(ns.Children, child)
		}
	}
	return ns, nil
}

// resolvePath maps an include path to a name inside the filesystem.
func (r *Resolver) resolvePath(include, current string) (string, error) {
	include = filepath.ToSlash(include)
	if filepath.IsAbs(include) || path.IsAbs(include) {
		name := strings.TrimPrefix(include[len(filepath.VolumeName(include)):], "/")
		name = path.Clean(name)
		if !fs.ValidPath(name) {
			return "", fmt.Errorf("invalid include path %q", include)
		}
		return name, nil
	}

	candidates := []string{path.Join(path.Dir(current), include)}
	if fallback := path.Join(r.rootDir, include); fallback != candidates[0] {
		candidates = append(candidates, fallback)
	}
	for _, candidate := range candidates {
		if !fs.ValidPath(candidate) {
			continue
		}
		if _, err := fs.Stat(r.fsys, candidate); err == nil {
			return candidate, nil
		}
	}
	if !fs.ValidPath(candidates[0]) {
		return "", fmt.Errorf("%q points outside the task source", include)
	}
	return candidates[0], nil
}

func (r *Resolver) display(name string) string {
	if r.rootDir != "" && r.rootDir != "." {
		if rel, ok := strings.CutPrefix(name, r.rootDir+"/"); ok {
			return rel
		}
	}
	if r.rootDir == "." {
		return name
	}
	return "/" + name
}

func (r *Resolver) uniqueName(base string) string {
	r.names[base]++
	if n := r.names[base]; n > 1 {
		return fmt.Sprintf("%s-%d", base, n)
	}
	return base
}

// NamespaceName derives a subcommand name from a file path: the directory,
// the .pf extension and a leading "Pfyfile." are dropped, and runs of
// punctuation become single hyphens.
func NamespaceName(p string) string {
	base := path.Base(filepath.ToSlash(p))
	base = strings.TrimSuffix(base, path.Ext(base))
	lower := strings.ToLower(base)
	for _, prefix := range []string{"pfyfile.", "pfyfile-", "pfyfile_"} {
		if strings.HasPrefix(lower, prefix) && len(lower) > len(prefix) {
			lower = lower[len(prefix):]
			break
		}
	}

	var b strings.Builder
	hyphen := false
	for _, r := range lower {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			hyphen = false
			continue
		}
		if !hyphen && b.Len() > 0 {
			b.WriteByte('-')
			hyphen = true
		}
	}
	name := strings.TrimSuffix(b.String(), "-")
	if name == "" {
		return "tasks"
	}
	return name
}

func unwrapPathError(err error) error {
	var pathErr *fs.PathError
	if stderrors.As(err, &pathErr) {
		return pathErr.Err
	}
	return err
}
