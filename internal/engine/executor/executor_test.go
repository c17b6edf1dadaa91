package executor

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"github.com/phillarmonic/pf/internal/engine/planner"
	"github.com/phillarmonic/pf/internal/engine/report"
	"github.com/phillarmonic/pf/internal/target"
	"github.com/phillarmonic/pf/internal/verbs"
)

type recordedRun struct {
	Target string
	Argv   []string
}

type recordingFactory struct {
	mu      sync.Mutex
	runs    []recordedRun
	active  atomic.Int32
	peak    atomic.Int32
	hold    time.Duration
	output  string
	results map[string]int
}

func (f *recordingFactory) Target(h target.HostSpec) (target.Target, error) {
	return &recordingTarget{f: f, name: h.String()}, nil
}

func (f *recordingFactory) Close() error { return nil }

type recordingTarget struct {
	f    *recordingFactory
	name string
}

func (t *recordingTarget) Name() string { return t.name }

func (t *recordingTarget) Run(_ context.Context, cmd target.Command, _ time.Duration) target.Result {
	n := t.f.active.Add(1)
	defer t.f.active.Add(-1)
	for {
		peak := t.f.peak.Load()
		if n <= peak || t.f.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	t.f.mu.Lock()
	t.f.runs = append(t.f.runs, recordedRun{Target: t.name, Argv: cmd.Argv})
	t.f.mu.Unlock()
	if t.f.output != "" && cmd.Output != nil {
		_, _ = cmd.Output.Write([]byte(t.f.output))
	}
	time.Sleep(t.f.hold)
	return target.Result{Host: t.name, ExitCode: t.f.results[t.name]}
}

func hosts(t *testing.T, list string) []target.HostSpec {
	t.Helper()
	specs, err := target.ParseHostList(list)
	if err != nil {
		t.Fatalf("ParseHostList(%q) error = %v", list, err)
	}
	return specs
}

func shellStep(index int, code string) *planner.Step {
	return &planner.Step{
		Index:     index,
		Statement: code,
		Placement: verbs.OnTargets,
		Command:   &verbs.Command{Argv: []string{"sh", "-c", code}},
	}
}

func TestExecute_LocalPerTarget(t *testing.T) {
	cmd, err := verbs.Translate(verbs.Context{Task: "deploy", Statement: 1, BaseDir: "/src"}, "sync", []string{"dist/", "/srv/app"})
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	f := &recordingFactory{}
	var out bytes.Buffer
	ex := NewExecutor(Options{Output: &out, Logger: zerolog.Nop(), Factory: f})
	plan := &planner.ExecutionPlan{Steps: []*planner.Step{{
		Index: 1, Statement: "sync dist/ /srv/app", Verb: "sync", Placement: cmd.Placement, Command: cmd,
	}}}

	rep := &report.TaskRunReport{Task: "deploy"}
	ex.Execute(context.Background(), plan, hosts(t, "deploy@web1,web2:2222"), rep)

	got := map[string][]string{}
	for _, r := range f.runs {
		if r.Target != "local" {
			t.Errorf("sync ran on %s, want the local machine", r.Target)
		}
		got[r.Argv[len(r.Argv)-1]] = r.Argv
	}
	want := map[string][]string{
		"deploy@web1:/srv/app": {"rsync", "-az", "/src/dist/", "deploy@web1:/srv/app"},
		"web2:/srv/app":        {"rsync", "-az", "-e", "ssh -p 2222", "/src/dist/", "web2:/srv/app"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("argv mismatch (-want +got):\n%s", diff)
	}

	var labels []string
	for _, r := range rep.Steps[0].Results {
		labels = append(labels, r.Host)
	}
	if diff := cmp.Diff([]string{"deploy@web1", "web2:2222"}, labels); diff != "" {
		t.Errorf("result labels mismatch (-want +got):\n%s", diff)
	}
}

func TestExecute_MaxParallel(t *testing.T) {
	f := &recordingFactory{hold: 20 * time.Millisecond}
	ex := NewExecutor(Options{Output: &bytes.Buffer{}, Logger: zerolog.Nop(), Factory: f, MaxParallel: 2})
	plan := &planner.ExecutionPlan{Steps: []*planner.Step{shellStep(1, "true")}}

	ex.Execute(context.Background(), plan, hosts(t, "a,b,c,d,e"), &report.TaskRunReport{})
	if len(f.runs) != 5 {
		t.Fatalf("ran on %d hosts, want 5", len(f.runs))
	}
	if peak := f.peak.Load(); peak > 2 {
		t.Errorf("peak concurrency = %d, want at most 2", peak)
	}
}

func TestExecute_AllHostsRunConcurrently(t *testing.T) {
	f := &recordingFactory{hold: 50 * time.Millisecond}
	ex := NewExecutor(Options{Output: &bytes.Buffer{}, Logger: zerolog.Nop(), Factory: f})
	plan := &planner.ExecutionPlan{Steps: []*planner.Step{shellStep(1, "true")}}

	ex.Execute(context.Background(), plan, hosts(t, "a,b,c"), &report.TaskRunReport{})
	if peak := f.peak.Load(); peak != 3 {
		t.Errorf("peak concurrency = %d, want 3", peak)
	}
}

func TestExecute_PrefixesRemoteOutput(t *testing.T) {
	f := &recordingFactory{output: "line one\nline two\n"}
	var out bytes.Buffer
	ex := NewExecutor(Options{Output: &out, Logger: zerolog.Nop(), Factory: f})
	plan := &planner.ExecutionPlan{Steps: []*planner.Step{shellStep(1, "echo")}}

	ex.Execute(context.Background(), plan, hosts(t, "web1"), &report.TaskRunReport{})
	for _, want := range []string{"[web1] line one\n", "[web1] line two\n"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
}

func TestExecute_FailureSkipsRemainingSteps(t *testing.T) {
	f := &recordingFactory{results: map[string]int{"b": 7}}
	ex := NewExecutor(Options{Output: &bytes.Buffer{}, Logger: zerolog.Nop(), Factory: f})
	plan := &planner.ExecutionPlan{Steps: []*planner.Step{shellStep(1, "one"), shellStep(2, "two")}}

	rep := &report.TaskRunReport{Task: "t"}
	ex.Execute(context.Background(), plan, hosts(t, "a,b"), rep)
	rep.Finish(time.Now())

	if rep.Success || !rep.Steps[1].Skipped || len(f.runs) != 2 {
		t.Errorf("report = %+v, runs = %v", rep, f.runs)
	}
	failed := rep.Steps[0].Failed()
	if len(failed) != 1 || failed[0].Host != "b" || failed[0].ExitCode != 7 {
		t.Errorf("Failed() = %+v", failed)
	}
}

func TestExecute_CancelledContextSkips(t *testing.T) {
	f := &recordingFactory{}
	ex := NewExecutor(Options{Output: &bytes.Buffer{}, Logger: zerolog.Nop(), Factory: f})
	plan := &planner.ExecutionPlan{Steps: []*planner.Step{shellStep(1, "one")}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rep := &report.TaskRunReport{}
	ex.Execute(ctx, plan, hosts(t, "a"), rep)
	if len(f.runs) != 0 || !rep.Steps[0].Skipped {
		t.Errorf("runs = %v, steps = %+v", f.runs, rep.Steps)
	}
}

func TestExecute_DryRunShowsEnvAndEscalation(t *testing.T) {
	f := &recordingFactory{}
	var out bytes.Buffer
	ex := NewExecutor(Options{Output: &out, Logger: zerolog.Nop(), Factory: f, DryRun: true, Escalation: target.EscalateDoas})
	step := shellStep(1, "make")
	step.Command.Env = map[string]string{"MODE": "prod"}
	plan := &planner.ExecutionPlan{Steps: []*planner.Step{step}}

	host := target.HostSpec{Address: "web1", Port: target.DefaultPort, Sudo: true}
	ex.Execute(context.Background(), plan, []target.HostSpec{host}, &report.TaskRunReport{})
	if len(f.runs) != 0 {
		t.Errorf("dry run spawned %v", f.runs)
	}
	want := "[DRY RUN] [1/1] web1: doas -n env MODE=prod sh -c make\n"
	if out.String() != want {
		t.Errorf("output = %q, want %q", out.String(), want)
	}
}
