package target

// DefaultFactory serves local hosts with LocalTarget and remote hosts
// through an SSH connection pool.
type DefaultFactory struct {
	pool       *SSHPool
	escalation Escalation
}

// NewFactory creates a factory whose remote targets use cfg
func NewFactory(cfg SSHConfig) *DefaultFactory {
	pool := NewSSHPool(cfg)
	return &DefaultFactory{pool: pool, escalation: pool.cfg.Escalation}
}

// Target returns the Target for host
func (f *DefaultFactory) Target(host HostSpec) (Target, error) {
	if host.Local {
		return NewLocalTarget(host, f.escalation), nil
	}
	return f.pool.Target(host), nil
}

// Close releases pooled connections
func (f *DefaultFactory) Close() error {
	return f.pool.Close()
}
