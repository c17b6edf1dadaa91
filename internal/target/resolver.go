package target

import (
	"sort"
	"strings"

	"github.com/phillarmonic/pf/internal/errors"
)

// Preset is a named env= target preset from the workspace config.
type Preset struct {
	Hosts    []string          `yaml:"hosts"`
	User     string            `yaml:"user"`
	Port     int               `yaml:"port"`
	Sudo     bool              `yaml:"sudo"`
	SudoUser string            `yaml:"sudoUser"`
	Params   map[string]string `yaml:"params"`
}

// Spec is the target selection of one invocation as given on the command
// line. Hosts entries may be comma-separated lists.
type Spec struct {
	Hosts    []string
	Envs     []string
	User     string
	Port     int
	Sudo     bool
	SudoUser string
}

// IsZero reports whether no target selection was made
func (s Spec) IsZero() bool {
	return len(s.Hosts) == 0 && len(s.Envs) == 0 && s.User == "" && s.Port == 0 && !s.Sudo && s.SudoUser == ""
}

// Resolution is the outcome of resolving a Spec.
type Resolution struct {
	Targets *TargetSet
	// Params are the preset parameter defaults, lowest precedence.
	Params map[string]string
}

// Resolver turns target specs into TargetSets using the configured presets.
type Resolver struct {
	presets map[string]Preset
}

// NewResolver creates a resolver over presets
func NewResolver(presets map[string]Preset) *Resolver {
	if presets == nil {
		presets = map[string]Preset{}
	}
	return &Resolver{presets: presets}
}

// Presets returns the preset names, sorted
func (r *Resolver) Presets() []string {
	names := make([]string, 0, len(r.presets))
	for name := range r.presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve applies presets in order, then the explicit hosts. User, port
// and sudo given on the command line override preset values; a host
// spec's own user and port override both.
func (r *Resolver) Resolve(spec Spec) (*Resolution, error) {
	res := &Resolution{Targets: NewTargetSet(), Params: map[string]string{}}

	for _, name := range spec.Envs {
		for _, n := range strings.Split(name, ",") {
			n = strings.TrimSpace(n)
			if n == "" {
				continue
			}
			preset, ok := r.presets[n]
			if !ok {
				return nil, &errors.TargetError{Preset: n, Known: r.Presets()}
			}
			for k, v := range preset.Params {
				res.Params[k] = v
			}
			defaults := HostSpec{
				User:     firstNonEmpty(spec.User, preset.User),
				Port:     firstNonZero(spec.Port, preset.Port),
				Sudo:     spec.Sudo || preset.Sudo,
				SudoUser: firstNonEmpty(spec.SudoUser, preset.SudoUser),
			}
			for _, entry := range preset.Hosts {
				if err := r.addList(res.Targets, entry, defaults); err != nil {
					return nil, err
				}
			}
		}
	}

	defaults := HostSpec{User: spec.User, Port: spec.Port, Sudo: spec.Sudo, SudoUser: spec.SudoUser}
	for _, entry := range spec.Hosts {
		if err := r.addList(res.Targets, entry, defaults); err != nil {
			return nil, err
		}
	}

	if res.Targets.Len() == 0 && (spec.Sudo || spec.SudoUser != "") {
		res.Targets.Add(HostSpec{Local: true, Sudo: true, SudoUser: spec.SudoUser})
	}
	return res, nil
}

func (r *Resolver) addList(ts *TargetSet, list string, defaults HostSpec) error {
	hosts, err := ParseHostList(list)
	if err != nil {
		return err
	}
	for _, h := range hosts {
		if !h.Local {
			if h.User == "" {
				h.User = defaults.User
			}
			if h.Port == 0 {
				h.Port = defaults.Port
			}
		}
		h.Sudo = defaults.Sudo || defaults.SudoUser != ""
		h.SudoUser = defaults.SudoUser
		ts.Add(h)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstNonZero(values ...int) int {
	for _, v := range values {
		if v != 0 {
			return v
		}
	}
	return 0
}
