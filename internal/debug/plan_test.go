package debug

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/phillarmonic/pf/internal/domain/parameter"
	"github.com/phillarmonic/pf/internal/domain/task"
	"github.com/phillarmonic/pf/internal/engine/planner"
	"github.com/phillarmonic/pf/internal/parser"
	"github.com/phillarmonic/pf/internal/polyglot"
	"github.com/phillarmonic/pf/internal/target"
)

func samplePlan(t *testing.T) *planner.ExecutionPlan {
	t.Helper()
	file, err := parser.Parse("Pfyfile.pf", "task ship\n  echo $what\n  [local] sync dist/ /srv/app\nend\n")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	tk := task.NewTask(file.Tasks[0], "", "Pfyfile.pf")
	tk.Dir = "/src"
	params, err := parameter.Bind(tk.Name, []string{"what=it"}, nil)
	if err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	plan, err := planner.NewPlanner(polyglot.NewRegistry(), nil, "sh").Plan(tk, params)
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	return plan
}

func TestNewExecutionPlanInfo(t *testing.T) {
	hosts := []target.HostSpec{{Address: "web1", Port: 22}, {Address: "web2", Port: 2222, User: "deploy"}}
	info := NewExecutionPlanInfo(samplePlan(t), hosts)

	if diff := cmp.Diff([]string{"web1", "deploy@web2:2222"}, info.Targets); diff != "" {
		t.Errorf("targets mismatch (-want +got):\n%s", diff)
	}
	want := []CommandInfo{
		{Target: "web1", Command: "sh -c 'echo it' pf"},
		{Target: "deploy@web2:2222", Command: "sh -c 'echo it' pf"},
	}
	if diff := cmp.Diff(want, info.Steps[0].Commands); diff != "" {
		t.Errorf("step 1 commands mismatch (-want +got):\n%s", diff)
	}
	if got := info.Steps[1].Placement; got != "local-per-target" {
		t.Errorf("step 2 placement = %q", got)
	}
	if got := info.Steps[1].Commands[1].Command; got != "rsync -az -e 'ssh -p 2222' /src/dist/ deploy@web2:/srv/app" {
		t.Errorf("step 2 command = %q", got)
	}
}

func TestExportExecutionPlanJSON(t *testing.T) {
	info := NewExecutionPlanInfo(samplePlan(t), []target.HostSpec{target.LocalHost})
	out, err := ExportExecutionPlanJSON(info)
	if err != nil {
		t.Fatalf("ExportExecutionPlanJSON() error = %v", err)
	}
	var back ExecutionPlanInfo
	if err := json.Unmarshal([]byte(out), &back); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if back.Task != "ship" || len(back.Steps) != 2 || back.Params["what"] != "it" {
		t.Errorf("decoded plan = %+v", back)
	}
}

func TestExportExecutionPlanGraphviz(t *testing.T) {
	info := NewExecutionPlanInfo(samplePlan(t), []target.HostSpec{{Address: "web1", Port: 22}})
	dot := ExportExecutionPlanGraphviz(info)
	for _, want := range []string{
		"digraph ExecutionPlan {",
		`"step1" -> "step2";`,
		`"step1" -> "step1@web1" [style=dashed];`,
	} {
		if !strings.Contains(dot, want) {
			t.Errorf("graph missing %q:\n%s", want, dot)
		}
	}
}

func TestDumpTokens(t *testing.T) {
	var buf bytes.Buffer
	DumpTokens(&buf, "task a\n  echo hi\nend\n")
	out := buf.String()
	for _, want := range []string{`"task"`, `"echo hi"`, `"end"`} {
		if !strings.Contains(out, want) {
			t.Errorf("token dump missing %s:\n%s", want, out)
		}
	}
}
