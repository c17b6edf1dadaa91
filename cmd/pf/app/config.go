package app

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/phillarmonic/pf/internal/target"
)

// Domain: Configuration Management
// This file contains logic for workspace config discovery and the logger setup

// WorkspaceConfigFile is the workspace config path relative to a project directory
const WorkspaceConfigFile = ".pf/workspace.yml"

// Environment overrides
const (
	EnvFile    = "PF_FILE"
	EnvDebug   = "PF_DEBUG"
	EnvNoColor = "PF_NO_COLOR"
)

// Duration is a time.Duration written as a Go duration string in YAML
type Duration time.Duration

// UnmarshalYAML parses "90s", "5m", "1h30m"
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: invalid duration %q: %w", node.Line, s, err)
	}
	*d = Duration(parsed)
	return nil
}

// WorkspaceConfig represents the workspace configuration
type WorkspaceConfig struct {
	DefaultFile string                   `yaml:"defaultFile"`
	Shell       string                   `yaml:"shell"`
	Timeout     Duration                 `yaml:"timeout"`
	MaxParallel int                      `yaml:"maxParallel"`
	History     HistoryConfig            `yaml:"history"`
	SSH         SSHSettings              `yaml:"ssh"`
	Envs        map[string]target.Preset `yaml:"envs"`

	path string
}

// HistoryConfig configures the run journal
type HistoryConfig struct {
	Enabled   *bool    `yaml:"enabled"`
	Path      string   `yaml:"path"`
	Retention Duration `yaml:"retention"`
	Limit     int      `yaml:"limit"`
}

// IsEnabled defaults to true
func (h HistoryConfig) IsEnabled() bool {
	return h.Enabled == nil || *h.Enabled
}

// SSHSettings configures remote targets
type SSHSettings struct {
	KnownHosts            string   `yaml:"knownHosts"`
	IdentityFiles         []string `yaml:"identityFiles"`
	InsecureIgnoreHostKey bool     `yaml:"insecureIgnoreHostKey"`
	ConnectTimeout        Duration `yaml:"connectTimeout"`
	KeyringService        string   `yaml:"keyringService"`
	Escalation            string   `yaml:"escalation"`
}

// Path returns the file the config was read from, empty when none exists.
func (c *WorkspaceConfig) Path() string {
	return c.path
}

// Dir returns the project directory owning the config.
func (c *WorkspaceConfig) Dir() string {
	if c.path == "" {
		return ""
	}
	return filepath.Dir(filepath.Dir(c.path))
}

// SSHConfig converts the ssh section for the target factory.
func (c *WorkspaceConfig) SSHConfig() (target.SSHConfig, error) {
	cfg := target.SSHConfig{
		KnownHostsFile:        expandHome(c.SSH.KnownHosts),
		InsecureIgnoreHostKey: c.SSH.InsecureIgnoreHostKey,
		ConnectTimeout:        time.Duration(c.SSH.ConnectTimeout),
	}
	for _, f := range c.SSH.IdentityFiles {
		cfg.IdentityFiles = append(cfg.IdentityFiles, expandHome(f))
	}
	switch esc := target.Escalation(c.SSH.Escalation); esc {
	case "", target.EscalateSudo, target.EscalateDoas:
		cfg.Escalation = esc
	default:
		return cfg, fmt.Errorf("%s: ssh.escalation must be sudo or doas, got %q", c.path, c.SSH.Escalation)
	}
	return cfg, nil
}

// LoadWorkspaceConfig looks for .pf/workspace.yml from dir upward, then in
// the user config directory. A missing file yields an empty config.
func LoadWorkspaceConfig(dir string) (*WorkspaceConfig, error) {
	path := findWorkspaceConfig(dir)
	if path == "" {
		return &WorkspaceConfig{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workspace config %s: %w", path, err)
	}
	var config WorkspaceConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse workspace config %s: %w", path, err)
	}
	config.path = path
	if config.DefaultFile != "" && !filepath.IsAbs(config.DefaultFile) {
		config.DefaultFile = filepath.Join(config.Dir(), config.DefaultFile)
	}
	return &config, nil
}

func findWorkspaceConfig(dir string) string {
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	for {
		candidate := filepath.Join(dir, filepath.FromSlash(WorkspaceConfigFile))
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	if configDir, err := os.UserConfigDir(); err == nil {
		candidate := filepath.Join(configDir, "pf", "workspace.yml")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

func expandHome(p string) string {
	if len(p) < 2 || p[:2] != "~/" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[2:])
}

// envFlag reports whether an environment override is switched on
func envFlag(name string) bool {
	switch os.Getenv(name) {
	case "1", "true", "TRUE", "yes", "on":
		return true
	}
	return false
}

// NewLogger builds the diagnostic logger: warnings only unless debugging.
func NewLogger(w io.Writer, debug, noColor bool) zerolog.Logger {
	level := zerolog.WarnLevel
	if debug {
		level = zerolog.DebugLevel
	}
	out := zerolog.ConsoleWriter{Out: w, NoColor: noColor, TimeFormat: time.TimeOnly}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// configureColor disables colored output for --no-color, PF_NO_COLOR or
// NO_COLOR.
func configureColor(noColor bool) {
	if noColor || envFlag(EnvNoColor) || os.Getenv("NO_COLOR") != "" {
		color.NoColor = true
	}
}
