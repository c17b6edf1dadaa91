package polyglot

import (
	stderrors "errors"
	"os/exec"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/phillarmonic/pf/internal/errors"
)

func TestRegistry_LanguageCount(t *testing.T) {
	r := NewRegistry()
	if n := len(r.Languages()); n < 40 {
		t.Errorf("Languages() = %d entries, want at least 40", n)
	}
	for alias, name := range r.Aliases() {
		if _, ok := r.recipes[name]; !ok {
			t.Errorf("alias %q points at unknown language %q", alias, name)
		}
	}
}

func TestRegistry_Canonical(t *testing.T) {
	r := NewRegistry()
	tests := map[string]string{
		"shell":  "bash",
		"py":     "python",
		"js":     "node",
		"ts":     "deno",
		"c++":    "cpp",
		"golang": "go",
		"java":   "java-openjdk",
		"Python": "python",
		"rust":   "rust",
	}
	for in, want := range tests {
		if got := r.Canonical(in); got != want {
			t.Errorf("Canonical(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestBuild_Shell(t *testing.T) {
	inv, err := NewRegistry().Build("bash", "echo $1", []string{"a b"})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	want := []string{"bash", "-c", "echo $1", "pf", "a b"}
	if diff := cmp.Diff(want, inv.Argv); diff != "" {
		t.Errorf("Argv mismatch (-want +got):\n%s", diff)
	}
}

func TestBuild_Inline(t *testing.T) {
	inv, err := NewRegistry().Build("py", "print('hi')", nil)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	want := []string{"python3", "-c", "print('hi')"}
	if diff := cmp.Diff(want, inv.Argv); diff != "" {
		t.Errorf("Argv mismatch (-want +got):\n%s", diff)
	}
	if inv.Language != "python" {
		t.Errorf("Language = %q, want python", inv.Language)
	}
}

func TestBuild_ScriptWrapper(t *testing.T) {
	inv, err := NewRegistry().Build("lua", "print(arg[1])", []string{"x"})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if inv.Argv[0] != "sh" || inv.Argv[1] != "-c" || inv.Argv[3] != "pf" || inv.Argv[4] != "x" {
		t.Fatalf("Argv = %q", inv.Argv)
	}
	script := inv.Argv[2]
	for _, want := range []string{
		"trap 'rm -rf \"$tmpdir\"' EXIT",
		`src="$tmpdir/pf_poly.lua"`,
		"<<'" + Delimiter + "'",
		"print(arg[1])\n" + Delimiter + "\n",
		`lua "$src" "$@"`,
	} {
		if !strings.Contains(script, want) {
			t.Errorf("wrapper missing %q:\n%s", want, script)
		}
	}
}

func TestBuild_InlineMultiLineUsesTempFile(t *testing.T) {
	tests := []struct {
		lang string
		code string
		want []string
	}{
		{"ruby", "puts ARGV.inspect", []string{"ruby", "-e", "puts ARGV.inspect", "x"}},
		{"ruby", "puts ARGV.inspect\n", []string{"ruby", "-e", "puts ARGV.inspect\n", "x"}},
		{"python", "import sys\nprint(sys.argv[1:])", nil},
		{"node", "const a = 1\nconsole.log(a)", nil},
	}

	for _, tt := range tests {
		t.Run(tt.lang, func(t *testing.T) {
			inv, err := NewRegistry().Build(tt.lang, tt.code, []string{"x"})
			if err != nil {
				t.Fatalf("Build() error = %v", err)
			}
			if tt.want != nil {
				if diff := cmp.Diff(tt.want, inv.Argv); diff != "" {
					t.Errorf("Argv mismatch (-want +got):\n%s", diff)
				}
				return
			}
			if inv.Argv[0] != "sh" || inv.Argv[1] != "-c" || inv.Argv[4] != "x" {
				t.Fatalf("Argv = %q, want the temp-file wrapper", inv.Argv)
			}
			if !strings.Contains(inv.Argv[2], tt.code+"\n"+Delimiter+"\n") {
				t.Errorf("wrapper does not carry the code:\n%s", inv.Argv[2])
			}
		})
	}

	inv, err := NewRegistry().Build("py", "x = 1\nprint(x)", nil)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	for _, want := range []string{`src="$tmpdir/pf_poly.py"`, `python3 "$src" "$@"`} {
		if !strings.Contains(inv.Argv[2], want) {
			t.Errorf("wrapper missing %q:\n%s", want, inv.Argv[2])
		}
	}
}

func TestBuild_CompileWrapper(t *testing.T) {
	inv, err := NewRegistry().Build("rust", "fn main() {}", nil)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	script := inv.Argv[2]
	for _, want := range []string{
		`rustc "$src" -o "$bin" || exit $?`,
		`"$bin" "$@"`,
	} {
		if !strings.Contains(script, want) {
			t.Errorf("wrapper missing %q:\n%s", want, script)
		}
	}
}

func TestBuild_DelimiterCollision(t *testing.T) {
	inv, err := NewRegistry().Build("lua", "print(1)\n"+Delimiter+"\n", nil)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if !strings.Contains(inv.Argv[2], "<<'"+Delimiter+"1'") {
		t.Errorf("expected a renamed delimiter in:\n%s", inv.Argv[2])
	}
}

func TestBuild_UnknownLanguage(t *testing.T) {
	_, err := NewRegistry().Build("cobol", "DISPLAY 'HI'.", nil)
	var dispErr *errors.DispatchError
	if !stderrors.As(err, &dispErr) {
		t.Fatalf("Build() error = %v, want *errors.DispatchError", err)
	}
	if dispErr.Language != "cobol" {
		t.Errorf("Language = %q, want cobol", dispErr.Language)
	}
	if !strings.Contains(errors.Hint(err), "python") {
		t.Errorf("Hint() = %q, want the known languages", errors.Hint(err))
	}
}

func TestBuild_RunsScriptWrapper(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	r := NewRegistry()
	r.Register(scriptRecipe("cat-lang", ".txt", "cat"))

	inv, err := r.Build("cat-lang", "hello from a file", nil)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	out, err := exec.Command(inv.Argv[0], inv.Argv[1:]...).Output()
	if err != nil {
		t.Fatalf("running wrapper: %v", err)
	}
	if got := string(out); got != "hello from a file\n" {
		t.Errorf("output = %q", got)
	}
}
