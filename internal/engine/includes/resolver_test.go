package includes

import (
	stderrors "errors"
	"testing"
	"testing/fstest"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"github.com/phillarmonic/pf/internal/errors"
	"github.com/phillarmonic/pf/internal/parser"
)

func newResolver(files map[string]string) *Resolver {
	fsys := fstest.MapFS{}
	for name, content := range files {
		fsys[name] = &fstest.MapFile{Data: []byte(content)}
	}
	return NewResolver(fsys, parser.Parse, zerolog.Nop())
}

func TestResolve_NamespaceTree(t *testing.T) {
	r := newResolver(map[string]string{
		"proj/Pfyfile.pf":                "include Pfyfile.web-dev.pf\ninclude tools/Pfyfile.security.pf\ntask build\n  describe \"b\"\n  echo b\nend\n",
		"proj/Pfyfile.web-dev.pf":        "task serve\n  describe \"s\"\n  echo s\nend\n",
		"proj/tools/Pfyfile.security.pf": "include ../shared/lint_rules.pf\ntask scan\n  describe \"x\"\n  echo x\nend\n",
		"proj/shared/lint_rules.pf":      "task lint\n  describe \"l\"\n  echo l\nend\n",
	})

	root, err := r.Resolve("proj/Pfyfile.pf")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	var got []string
	_ = root.Walk(func(ns *Namespace) error {
		got = append(got, ns.Name+"="+ns.Display)
		return nil
	})
	want := []string{
		"=Pfyfile.pf",
		"web-dev=Pfyfile.web-dev.pf",
		"security=tools/Pfyfile.security.pf",
		"lint-rules=shared/lint_rules.pf",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("namespace tree mismatch (-want +got):\n%s", diff)
	}
	if root.Children[1].Children[0].Parent != root.Children[1] {
		t.Error("nested namespace parent not set")
	}
}

func TestResolve_RootDirFallback(t *testing.T) {
	r := newResolver(map[string]string{
		"p/Pfyfile.pf": "include sub/a.pf\n",
		"p/sub/a.pf":   "include common.pf\n",
		"p/common.pf":  "task c\nend\n",
	})
	root, err := r.Resolve("p/Pfyfile.pf")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got := root.Children[0].Children[0].Display; got != "common.pf" {
		t.Errorf("fallback include resolved to %q, want common.pf", got)
	}
}

func TestResolve_Cycle(t *testing.T) {
	r := newResolver(map[string]string{
		"A": "include B\ntask a\nend\n",
		"B": "include A\ntask b\nend\n",
	})

	_, err := r.Resolve("A")
	var incErr *errors.IncludeError
	if !stderrors.As(err, &incErr) {
		t.Fatalf("Resolve() error = %v, want *errors.IncludeError", err)
	}
	if !incErr.Circular {
		t.Errorf("Circular = false, want true")
	}
	if diff := cmp.Diff([]string{"A", "B", "A"}, incErr.Chain); diff != "" {
		t.Errorf("Chain mismatch (-want +got):\n%s", diff)
	}
	if got, want := incErr.Error(), "circular include: A → B → A"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestResolve_MissingInclude(t *testing.T) {
	r := newResolver(map[string]string{
		"Pfyfile.pf": "include nope.pf\n",
	})
	_, err := r.Resolve("Pfyfile.pf")
	var incErr *errors.IncludeError
	if !stderrors.As(err, &incErr) {
		t.Fatalf("Resolve() error = %v, want *errors.IncludeError", err)
	}
	if incErr.Path != "nope.pf" || incErr.Circular {
		t.Errorf("IncludeError = %+v", incErr)
	}
	if code := errors.ExitCode(err); code != errors.ExitSyntax {
		t.Errorf("ExitCode() = %d, want %d", code, errors.ExitSyntax)
	}
}

func TestResolve_DiamondLoadsOnce(t *testing.T) {
	r := newResolver(map[string]string{
		"root.pf":   "include a.pf\ninclude b.pf\n",
		"a.pf":      "include common.pf\n",
		"b.pf":      "include common.pf\n",
		"common.pf": "task c\nend\n",
	})
	root, err := r.Resolve("root.pf")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	count := 0
	_ = root.Walk(func(ns *Namespace) error {
		if ns.Name == "common" {
			count++
		}
		return nil
	})
	if count != 1 {
		t.Errorf("common.pf loaded %d times, want 1", count)
	}
}

func TestResolve_ParseErrorPropagates(t *testing.T) {
	r := newResolver(map[string]string{
		"root.pf": "include bad.pf\n",
		"bad.pf":  "task x\n  echo\n",
	})
	_, err := r.Resolve("root.pf")
	var synErr *errors.SyntaxErrorList
	if !stderrors.As(err, &synErr) {
		t.Fatalf("Resolve() error = %v, want syntax errors", err)
	}
	if synErr.Errors[0].Filename != "bad.pf" {
		t.Errorf("Filename = %q, want bad.pf", synErr.Errors[0].Filename)
	}
}

func TestNamespaceName(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"Pfyfile.security.pf", "security"},
		{"dir/Pfyfile.web-dev.pf", "web-dev"},
		{"tools/docker_tools.pf", "docker-tools"},
		{"My Tasks!!.pf", "my-tasks"},
		{"Pfyfile.pf", "pfyfile"},
		{"___.pf", "tasks"},
	}
	for _, tt := range tests {
		if got := NamespaceName(tt.path); got != tt.want {
			t.Errorf("NamespaceName(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}
