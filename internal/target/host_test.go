package target

import (
	stderrors "errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/phillarmonic/pf/internal/errors"
)

func TestParseHost(t *testing.T) {
	tests := []struct {
		spec string
		want HostSpec
		str  string
	}{
		{"web1", HostSpec{Address: "web1"}, "web1"},
		{"deploy@web1", HostSpec{Address: "web1", User: "deploy"}, "deploy@web1"},
		{"deploy@web1:2222", HostSpec{Address: "web1", User: "deploy", Port: 2222}, "deploy@web1:2222"},
		{"10.0.0.5:22", HostSpec{Address: "10.0.0.5", Port: 22}, "10.0.0.5"},
		{"[::1]:2200", HostSpec{Address: "::1", Port: 2200}, "[::1]:2200"},
		{"fe80::1", HostSpec{Address: "fe80::1"}, "[fe80::1]"},
		{"@local", HostSpec{Local: true}, "local"},
		{"localhost", HostSpec{Local: true}, "local"},
		{" root@db ", HostSpec{Address: "db", User: "root"}, "root@db"},
	}
	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			got, err := ParseHost(tt.spec)
			if err != nil {
				t.Fatalf("ParseHost() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseHost() mismatch (-want +got):\n%s", diff)
			}
			if got.String() != tt.str {
				t.Errorf("String() = %q, want %q", got.String(), tt.str)
			}
		})
	}
}

func TestParseHost_Errors(t *testing.T) {
	for _, spec := range []string{"", "@web1", "web1:http", "web1:70000", "[::1", "[::1]x", "a b"} {
		t.Run(spec, func(t *testing.T) {
			_, err := ParseHost(spec)
			var tgtErr *errors.TargetError
			if !stderrors.As(err, &tgtErr) {
				t.Fatalf("ParseHost(%q) error = %v, want *errors.TargetError", spec, err)
			}
			if errors.ExitCode(err) != errors.ExitTarget {
				t.Errorf("ExitCode() = %d", errors.ExitCode(err))
			}
		})
	}
}

func TestTargetSet_Dedup(t *testing.T) {
	hosts, err := ParseHostList("web1, deploy@web2,web1:22,web2,,web1")
	if err != nil {
		t.Fatalf("ParseHostList() error = %v", err)
	}
	ts := NewTargetSet(hosts...)
	if got, want := ts.String(), "web1, deploy@web2, web2"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
	if ts.IsLocal() {
		t.Error("IsLocal() = true")
	}
}

func TestTargetSet_EmptyIsLocal(t *testing.T) {
	ts := NewTargetSet()
	if diff := cmp.Diff([]HostSpec{LocalHost}, ts.Hosts()); diff != "" {
		t.Errorf("Hosts() mismatch (-want +got):\n%s", diff)
	}
	if !ts.IsLocal() || ts.Len() != 0 {
		t.Errorf("IsLocal() = %v, Len() = %d", ts.IsLocal(), ts.Len())
	}
}
