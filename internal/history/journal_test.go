package history

import (
	stderrors "errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/phillarmonic/pf/internal/engine/report"
)

func openTestJournal(t *testing.T, retention time.Duration) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "history.solo"), retention, false)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func run(id, task string, success bool) *report.TaskRunReport {
	return &report.TaskRunReport{
		RunID:   id,
		Task:    task,
		Targets: []string{"local"},
		Started: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Success: success,
		Steps: []report.StepReport{{
			Index:   1,
			Command: "echo hi",
			Results: []report.HostResult{{Host: "local", Stdout: "hi\n"}},
		}},
	}
}

func TestRecordAndGet(t *testing.T) {
	j := openTestJournal(t, time.Hour)
	want := run("1b9d6bcd-bbfd-4b2d-9b5d-ab8dfbbd4bed", "build", true)
	if err := j.Record(want); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	got, err := j.Get(want.RunID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Get() mismatch (-want +got):\n%s", diff)
	}

	byPrefix, err := j.Get("1b9d6b")
	if err != nil || byPrefix.RunID != want.RunID {
		t.Errorf("Get(prefix) = %v, %v", byPrefix, err)
	}
}

func TestGetUnknownAndAmbiguous(t *testing.T) {
	j := openTestJournal(t, time.Hour)
	for _, id := range []string{"abc-1", "abc-2"} {
		if err := j.Record(run(id, "t", true)); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}
	if _, err := j.Get("zzz"); !stderrors.Is(err, ErrNotFound) {
		t.Errorf("Get(zzz) error = %v, want ErrNotFound", err)
	}
	if _, err := j.Get("abc"); err == nil || stderrors.Is(err, ErrNotFound) {
		t.Errorf("Get(abc) error = %v, want an ambiguity error", err)
	}
}

func TestListNewestFirst(t *testing.T) {
	j := openTestJournal(t, time.Hour)
	for _, r := range []*report.TaskRunReport{run("r1", "a", true), run("r2", "b", false), run("r3", "c", true)} {
		if err := j.Record(r); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	entries, err := j.List(2)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	var got []string
	for _, e := range entries {
		got = append(got, e.RunID+":"+e.Task)
	}
	if diff := cmp.Diff([]string{"r3:c", "r2:b"}, got); diff != "" {
		t.Errorf("List() mismatch (-want +got):\n%s", diff)
	}
	if entries[1].Success {
		t.Error("entry r2 Success = true, want false")
	}
}

func TestPruneDropsExpiredRuns(t *testing.T) {
	j := openTestJournal(t, 200*time.Millisecond)
	if err := j.Record(run("old", "a", true)); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	time.Sleep(250 * time.Millisecond)

	entries, err := j.List(10)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("List() = %v, want expired run hidden", entries)
	}

	dropped, err := j.Prune()
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if dropped != 1 {
		t.Errorf("Prune() = %d, want 1", dropped)
	}
	if got := j.Stats().Runs; got != 0 {
		t.Errorf("Stats().Runs = %d, want 0", got)
	}
}

func TestDisabledJournal(t *testing.T) {
	j, err := Open("", time.Hour, true)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := j.Record(run("x", "a", true)); err != nil {
		t.Errorf("Record() error = %v", err)
	}
	entries, err := j.List(0)
	if err != nil || len(entries) != 0 {
		t.Errorf("List() = %v, %v", entries, err)
	}
	if _, err := j.Get("x"); !stderrors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestRecordRequiresRunID(t *testing.T) {
	j := openTestJournal(t, time.Hour)
	if err := j.Record(&report.TaskRunReport{Task: "a"}); err == nil {
		t.Error("Record() error = nil, want an error for a missing run ID")
	}
}
