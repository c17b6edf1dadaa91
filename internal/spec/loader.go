// Package spec locates and loads pf task files into a Task Table.
package spec

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/mholt/archives"
	"github.com/rs/zerolog"

	"github.com/phillarmonic/pf/internal/ast"
	"github.com/phillarmonic/pf/internal/domain/task"
	"github.com/phillarmonic/pf/internal/engine/includes"
	"github.com/phillarmonic/pf/internal/errors"
	"github.com/phillarmonic/pf/internal/parser"
)

// DefaultFilenames are the task file names looked for in each directory
// from the working directory upward.
var DefaultFilenames = []string{
	"Pfyfile.pf",
	"pfyfile.pf",
	".pf/Pfyfile.pf",
}

// bundleExtensions mark a --file argument as a task bundle archive.
var bundleExtensions = []string{".tar", ".tar.gz", ".tgz", ".tar.bz2", ".tar.xz", ".tar.zst", ".zip"}

// Source is where a Task Table is read from.
type Source struct {
	FS      fs.FS  // filesystem the root file and its includes live in
	Root    string // root file name inside FS
	Path    string // root file (or bundle) as given on disk
	Dir     string // local directory relative verb paths resolve against
	Bundle  bool
	volume  string // disk sources: FS is rooted at this volume
	display string
}

// Display returns the root path shown to users.
func (s *Source) Display() string {
	return s.display
}

// localDir maps a directory inside FS back to the local disk.
func (s *Source) localDir(dir string) string {
	if s.Bundle {
		return s.Dir
	}
	return filepath.FromSlash(s.volume + "/" + dir)
}

// Result is a fully loaded Task Table.
type Result struct {
	Source   *Source
	Root     *includes.Namespace
	Registry *task.Registry
	Warnings []ast.Warning
}

// Loader handles locating and loading pf task files
type Loader struct {
	baseDir string
	logger  zerolog.Logger
	parsed  sync.Map // content hash -> *ast.File
}

// NewLoader creates a loader that discovers files from baseDir.
func NewLoader(baseDir string, logger zerolog.Logger) *Loader {
	return &Loader{baseDir: baseDir, logger: logger}
}

// Find resolves filename (empty: discover a default file) to a Source.
func (l *Loader) Find(ctx context.Context, filename string) (*Source, error) {
	if filename == "" {
		found, err := l.discover()
		if err != nil {
			return nil, err
		}
		return l.diskSource(found)
	}

	filePath := filename
	if !filepath.IsAbs(filePath) {
		filePath = filepath.Join(l.baseDir, filePath)
	}
	if IsBundle(filePath) {
		return l.bundleSource(ctx, filePath)
	}
	info, err := os.Stat(filePath)
	if err != nil {
		return nil, &errors.UsageError{
			Message: fmt.Sprintf("task file %s not found", filename),
			Help:    "Check the path given to --file or PF_FILE",
		}
	}
	if info.IsDir() {
		for _, name := range DefaultFilenames {
			candidate := filepath.Join(filePath, filepath.FromSlash(name))
			if _, err := os.Stat(candidate); err == nil {
				return l.diskSource(candidate)
			}
		}
		return nil, &errors.UsageError{
			Message: fmt.Sprintf("no task file in directory %s", filename),
			Help:    "Expected one of: " + strings.Join(DefaultFilenames, ", "),
		}
	}
	return l.diskSource(filePath)
}

// discover walks from baseDir to the filesystem root looking for a
// default task file.
func (l *Loader) discover() (string, error) {
	dir, err := filepath.Abs(l.baseDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve working directory: %w", err)
	}
	for {
		for _, name := range DefaultFilenames {
			candidate := filepath.Join(dir, filepath.FromSlash(name))
			if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
				l.logger.Debug().Str("file", candidate).Msg("discovered task file")
				return candidate, nil
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", &errors.UsageError{
		Message: "no pf task file found",
		Help:    "Create a Pfyfile.pf (tried: " + strings.Join(DefaultFilenames, ", ") + ") or pass --file",
	}
}

func (l *Loader) diskSource(filePath string) (*Source, error) {
	abs, err := filepath.Abs(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", filePath, err)
	}
	volume := filepath.VolumeName(abs)
	root := strings.TrimPrefix(filepath.ToSlash(abs[len(volume):]), "/")

	display := abs
	if rel, err := filepath.Rel(l.baseDir, abs); err == nil && !strings.HasPrefix(rel, "..") {
		display = rel
	}
	return &Source{
		FS:      os.DirFS(volume + string(filepath.Separator)),
		Root:    root,
		Path:    abs,
		Dir:     filepath.Dir(abs),
		volume:  volume,
		display: display,
	}, nil
}

func (l *Loader) bundleSource(ctx context.Context, bundle string) (*Source, error) {
	fsys, err := archives.FileSystem(ctx, bundle, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open task bundle %s: %w", bundle, err)
	}
	root, err := bundleRoot(fsys)
	if err != nil {
		return nil, &errors.UsageError{
			Message: fmt.Sprintf("task bundle %s: %v", filepath.Base(bundle), err),
			Help:    "A bundle carries Pfyfile.pf at its top level or inside a single top-level directory",
		}
	}
	l.logger.Debug().Str("bundle", bundle).Str("root", root).Msg("opened task bundle")
	return &Source{
		FS:      fsys,
		Root:    root,
		Path:    bundle,
		Dir:     l.baseDir,
		Bundle:  true,
		display: filepath.Base(bundle) + ":" + root,
	}, nil
}

// bundleRoot finds the task file inside an archive.
func bundleRoot(fsys fs.FS) (string, error) {
	for _, name := range DefaultFilenames {
		if _, err := fs.Stat(fsys, name); err == nil {
			return name, nil
		}
	}
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return "", err
	}
	if len(entries) == 1 && entries[0].IsDir() {
		for _, name := range DefaultFilenames {
			candidate := path.Join(entries[0].Name(), name)
			if _, err := fs.Stat(fsys, candidate); err == nil {
				return candidate, nil
			}
		}
	}
	return "", fmt.Errorf("no task file (tried: %s)", strings.Join(DefaultFilenames, ", "))
}

// IsBundle reports whether name looks like a task bundle archive
func IsBundle(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range bundleExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// Load finds filename and loads it with every file it includes.
func (l *Loader) Load(ctx context.Context, filename string) (*Result, error) {
	src, err := l.Find(ctx, filename)
	if err != nil {
		return nil, err
	}
	return l.LoadSource(src)
}

// LoadSource parses src's root file and its includes and registers every
// task under its namespace.
func (l *Loader) LoadSource(src *Source) (*Result, error) {
	resolver := includes.NewResolver(src.FS, l.parse, l.logger)
	root, err := resolver.Resolve(src.Root)
	if err != nil {
		return nil, err
	}

	registry := task.NewRegistry()
	err = root.Walk(func(ns *includes.Namespace) error {
		registry.AddNamespace(ns.Name, ns.Display)
		dir := src.localDir(path.Dir(ns.Path))
		for _, def := range ns.File.Tasks {
			t := task.NewTask(def, ns.Name, ns.Display)
			t.Path = ns.Path
			t.Dir = dir
			if err := registry.Register(t); err != nil {
				return &errors.SyntaxError{Message: err.Error(), Filename: ns.Display, Line: def.Token.Line}
			}
		}
		for _, alias := range ns.File.Aliases {
			if _, err := registry.GetIn(ns.Name, alias.Target); err != nil {
				continue // reported as a lint warning
			}
			if err := registry.RegisterAlias(ns.Name, alias.Name, alias.Target); err != nil {
				return &errors.SyntaxError{Message: err.Error(), Filename: ns.Display, Line: alias.Token.Line}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.logger.Debug().Str("file", src.Display()).Int("tasks", registry.Count()).
		Int("namespaces", len(registry.Namespaces())).Msg("loaded task table")
	return &Result{Source: src, Root: root, Registry: registry, Warnings: resolver.Warnings()}, nil
}

// parse parses a file, reusing the result for identical content.
func (l *Loader) parse(filename, source string) (*ast.File, error) {
	key := fmt.Sprintf("%s:%x", filename, sha256.Sum256([]byte(source)))
	if cached, ok := l.parsed.Load(key); ok {
		return cached.(*ast.File), nil
	}
	file, err := parser.Parse(filename, source)
	if err != nil {
		return nil, err
	}
	l.parsed.Store(key, file)
	return file, nil
}
