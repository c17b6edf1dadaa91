// Package target resolves where statements run and runs them there.
package target

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/phillarmonic/pf/internal/errors"
)

// DefaultPort is the SSH port used when a host spec names none.
const DefaultPort = 22

// HostSpec is one resolved execution destination.
type HostSpec struct {
	Address  string // host name or IP; empty for the local machine
	Port     int
	User     string
	Sudo     bool
	SudoUser string
	Local    bool
}

// LocalHost is the local machine without escalation.
var LocalHost = HostSpec{Local: true}

// String returns the display name used in output prefixes and reports.
func (h HostSpec) String() string {
	if h.Local {
		return "local"
	}
	s := h.Address
	if strings.Contains(s, ":") {
		s = "[" + s + "]"
	}
	if h.User != "" {
		s = h.User + "@" + s
	}
	if h.Port != 0 && h.Port != DefaultPort {
		s += ":" + strconv.Itoa(h.Port)
	}
	return s
}

// Key identifies the connection a host needs; sudo settings are not part of it.
func (h HostSpec) Key() string {
	if h.Local {
		return "local"
	}
	port := h.Port
	if port == 0 {
		port = DefaultPort
	}
	return h.User + "@" + net.JoinHostPort(h.Address, strconv.Itoa(port))
}

// Addr returns host:port for dialing
func (h HostSpec) Addr() string {
	port := h.Port
	if port == 0 {
		port = DefaultPort
	}
	return net.JoinHostPort(h.Address, strconv.Itoa(port))
}

// IsLocalName reports whether a host list entry means the local machine.
func IsLocalName(s string) bool {
	switch strings.ToLower(s) {
	case "@local", "local", "localhost":
		return true
	}
	return false
}

// ParseHost parses [user@]host[:port]. IPv6 addresses with a port are
// written [addr]:port. @local and localhost name the local machine.
func ParseHost(spec string) (HostSpec, error) {
	raw := spec
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return HostSpec{}, &errors.TargetError{Spec: raw, Message: "empty host"}
	}
	if IsLocalName(spec) {
		return HostSpec{Local: true}, nil
	}

	var h HostSpec
	if i := strings.LastIndex(spec, "@"); i >= 0 {
		h.User = spec[:i]
		spec = spec[i+1:]
		if h.User == "" {
			return HostSpec{}, &errors.TargetError{Spec: raw, Message: "empty user name"}
		}
	}

	host, port := spec, ""
	switch {
	case strings.HasPrefix(spec, "["):
		end := strings.Index(spec, "]")
		if end < 0 {
			return HostSpec{}, &errors.TargetError{Spec: raw, Message: "unclosed '[' in IPv6 address"}
		}
		host = spec[1:end]
		if rest := spec[end+1:]; rest != "" {
			if !strings.HasPrefix(rest, ":") {
				return HostSpec{}, &errors.TargetError{Spec: raw, Message: "unexpected text after ']'"}
			}
			port = rest[1:]
		}
	case strings.Count(spec, ":") == 1:
		host, port, _ = strings.Cut(spec, ":")
	}

	if host == "" || strings.ContainsAny(host, " \t/") {
		return HostSpec{}, &errors.TargetError{Spec: raw, Message: "missing or malformed host name"}
	}
	if IsLocalName(host) && port == "" {
		return HostSpec{Local: true}, nil
	}
	h.Address = host

	if port != "" {
		n, err := strconv.Atoi(port)
		if err != nil || n < 1 || n > 65535 {
			return HostSpec{}, &errors.TargetError{Spec: raw, Message: fmt.Sprintf("port %q is not a number between 1 and 65535", port)}
		}
		h.Port = n
	}
	return h, nil
}

// ParseHostList parses a comma-separated host list.
func ParseHostList(list string) ([]HostSpec, error) {
	var hosts []HostSpec
	for _, item := range strings.Split(list, ",") {
		if strings.TrimSpace(item) == "" {
			continue
		}
		h, err := ParseHost(item)
		if err != nil {
			return nil, err
		}
		hosts = append(hosts, h)
	}
	return hosts, nil
}

// TargetSet is the ordered, de-duplicated set of destinations of one
// invocation. An empty set means local execution.
type TargetSet struct {
	hosts []HostSpec
	seen  map[string]bool
}

// NewTargetSet builds a set from hosts, dropping duplicates
func NewTargetSet(hosts ...HostSpec) *TargetSet {
	ts := &TargetSet{seen: make(map[string]bool)}
	for _, h := range hosts {
		ts.Add(h)
	}
	return ts
}

// Add appends h unless a host with the same key is already present.
func (ts *TargetSet) Add(h HostSpec) bool {
	if ts.seen == nil {
		ts.seen = make(map[string]bool)
	}
	if ts.seen[h.Key()] {
		return false
	}
	ts.seen[h.Key()] = true
	ts.hosts = append(ts.hosts, h)
	return true
}

// Hosts returns the hosts in insertion order. An empty set yields the
// local machine alone.
func (ts *TargetSet) Hosts() []HostSpec {
	if ts == nil || len(ts.hosts) == 0 {
		return []HostSpec{LocalHost}
	}
	return append([]HostSpec(nil), ts.hosts...)
}

// Len returns the number of explicit hosts
func (ts *TargetSet) Len() int {
	if ts == nil {
		return 0
	}
	return len(ts.hosts)
}

// IsLocal reports whether the set only names the local machine.
func (ts *TargetSet) IsLocal() bool {
	for _, h := range ts.Hosts() {
		if !h.Local {
			return false
		}
	}
	return true
}

func (ts *TargetSet) String() string {
	hosts := ts.Hosts()
	names := make([]string, len(hosts))
	for i, h := range hosts {
		names[i] = h.String()
	}
	return strings.Join(names, ", ")
}
