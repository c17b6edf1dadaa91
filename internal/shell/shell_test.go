package shell

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestExecute_Success(t *testing.T) {
	result, err := Execute(context.Background(), []string{"sh", "-c", "echo 'test output'"}, nil)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !result.Success {
		t.Errorf("Expected command to succeed")
	}
	if result.ExitCode != 0 {
		t.Errorf("Expected exit code 0, got %d", result.ExitCode)
	}
	if result.Stdout != "test output\n" {
		t.Errorf("Expected 'test output', got %q", result.Stdout)
	}
	if result.Duration <= 0 {
		t.Errorf("Expected positive duration, got %v", result.Duration)
	}
}

func TestExecute_Failure(t *testing.T) {
	result, err := Execute(context.Background(), []string{"sh", "-c", "echo oops >&2; exit 3"}, nil)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result.Success {
		t.Errorf("Expected command to fail")
	}
	if result.ExitCode != 3 {
		t.Errorf("Expected exit code 3, got %d", result.ExitCode)
	}
	if result.Stderr != "oops\n" {
		t.Errorf("Stderr = %q", result.Stderr)
	}
}

func TestExecute_NotFound(t *testing.T) {
	result, err := Execute(context.Background(), []string{"pf-no-such-binary-xyz"}, nil)
	if err == nil {
		t.Fatal("Expected a start error")
	}
	if result == nil || result.ExitCode != -1 {
		t.Errorf("Result = %+v, want ExitCode -1", result)
	}
}

func TestExecute_ArgvIsNotReparsed(t *testing.T) {
	result, err := Execute(context.Background(), []string{"sh", "-c", `printf '%s|' "$@"`, "pf", "a b", "$HOME", "'q'"}, nil)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if want := "a b|$HOME|'q'|"; result.Stdout != want {
		t.Errorf("Stdout = %q, want %q", result.Stdout, want)
	}
}

func TestExecute_EnvDirStdin(t *testing.T) {
	dir := t.TempDir()
	opts := &Options{
		Dir:   dir,
		Env:   map[string]string{"PF_TEST_VALUE": "42"},
		Stdin: strings.NewReader("from stdin"),
	}
	result, err := Execute(context.Background(), []string{"sh", "-c", `echo "$PF_TEST_VALUE"; pwd; cat`}, opts)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	lines := strings.Split(result.Stdout, "\n")
	if lines[0] != "42" {
		t.Errorf("env value = %q, want 42", lines[0])
	}
	if !strings.HasSuffix(lines[1], strings.TrimPrefix(dir, "/private")) {
		t.Errorf("pwd = %q, want %q", lines[1], dir)
	}
	if lines[2] != "from stdin" {
		t.Errorf("stdin = %q", lines[2])
	}
}

func TestExecute_Timeout(t *testing.T) {
	start := time.Now()
	result, err := Execute(context.Background(), []string{"sh", "-c", "sleep 10"}, &Options{Timeout: 100 * time.Millisecond})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !result.TimedOut || result.ExitCode != ExitTimeout || result.Success {
		t.Errorf("Result = %+v, want a timeout", result)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("timeout took %v", elapsed)
	}
}

func TestExecute_StreamsOutput(t *testing.T) {
	var out bytes.Buffer
	_, err := Execute(context.Background(), []string{"sh", "-c", "echo one; echo two"}, &Options{Output: &out})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if out.String() != "one\ntwo\n" {
		t.Errorf("streamed = %q", out.String())
	}
}

func TestPrefixWriter(t *testing.T) {
	var out bytes.Buffer
	var mu sync.Mutex
	w := NewPrefixWriter(&out, &mu, "[web1] ")
	_, _ = w.Write([]byte("hel"))
	_, _ = w.Write([]byte("lo\nwor"))
	_, _ = w.Write([]byte("ld\npartial"))
	if err := w.Flush(); err != nil {
		t.Fatal(err)
	}
	want := "[web1] hello\n[web1] world\n[web1] partial\n"
	if out.String() != want {
		t.Errorf("output = %q, want %q", out.String(), want)
	}
}

func TestMergeEnv(t *testing.T) {
	got := MergeEnv([]string{"A=1"}, map[string]string{"C": "3", "B": "2"})
	want := []string{"A=1", "B=2", "C=3"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("MergeEnv() = %v, want %v", got, want)
	}
}
