package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/phillarmonic/pf/internal/errors"
)

func sampleReport() *TaskRunReport {
	return &TaskRunReport{
		Task:    "deploy",
		Targets: []string{"web1", "web2"},
		Started: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Steps: []StepReport{
			{Index: 1, BestEffort: true, Results: []HostResult{{Host: "web1", ExitCode: 1}, {Host: "web2"}}},
			{Index: 2, Results: []HostResult{{Host: "web1"}, {Host: "web2", TimedOut: true, ExitCode: 124}}},
			{Index: 3, Skipped: true},
		},
	}
}

func TestFinishAndErr(t *testing.T) {
	rep := sampleReport()
	rep.Finish(rep.Started.Add(1500 * time.Millisecond))

	if rep.Success {
		t.Error("Success = true, want false")
	}
	if rep.Duration != 1500*time.Millisecond {
		t.Errorf("Duration = %v", rep.Duration)
	}
	if got := rep.Failures(); got != 2 {
		t.Errorf("Failures() = %d, want 2", got)
	}

	want := &errors.ExecutionFailure{Task: "deploy", Statement: 2, Host: "web2", ExitCode: 124, TimedOut: true}
	if diff := cmp.Diff(want, rep.Err()); diff != "" {
		t.Errorf("Err() mismatch (-want +got):\n%s", diff)
	}
}

func TestBestEffortOnlyFailuresSucceed(t *testing.T) {
	rep := sampleReport()
	rep.Steps = rep.Steps[:1]
	rep.Finish(rep.Started)
	if !rep.Success || rep.Err() != nil {
		t.Errorf("Success = %v, Err() = %v", rep.Success, rep.Err())
	}
}

func TestWriteSummary(t *testing.T) {
	rep := sampleReport()
	rep.Finish(rep.Started.Add(2 * time.Second))

	var buf bytes.Buffer
	rep.WriteSummary(&buf)
	want := "⚠️  Statement 1 on web1: exit status 1\n" +
		"❌ Statement 2 on web2: timed out\n" +
		"❌ Task 'deploy' failed after 2s\n"
	if diff := cmp.Diff(want, buf.String()); diff != "" {
		t.Errorf("summary mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteSummaryDryRun(t *testing.T) {
	rep := &TaskRunReport{Task: "build", Targets: []string{"local"}, DryRun: true, Steps: make([]StepReport, 2)}
	var buf bytes.Buffer
	rep.WriteSummary(&buf)
	if got, want := buf.String(), "[DRY RUN] Task 'build': 2 step(s) on local\n"; got != want {
		t.Errorf("summary = %q, want %q", got, want)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{500 * time.Microsecond, "500µs"},
		{1234567 * time.Microsecond, "1.23s"},
		{12345678 * time.Microsecond / 100, "123ms"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.in); got != tt.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
