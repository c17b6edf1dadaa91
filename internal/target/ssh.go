package target

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/user"
	"path/filepath"
	"sync"
	"time"

	"al.essio.dev/pkg/shellescape"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
	"golang.org/x/sync/singleflight"

	"github.com/phillarmonic/pf/internal/credentials"
	"github.com/phillarmonic/pf/internal/shell"
)

// DefaultConnectTimeout bounds the TCP dial and SSH handshake.
const DefaultConnectTimeout = 15 * time.Second

// CredentialSource looks up stored passwords and key passphrases.
type CredentialSource interface {
	Get(kind credentials.Kind, subject string) (string, error)
}

// SSHConfig configures remote connections.
type SSHConfig struct {
	KnownHostsFile        string // default ~/.ssh/known_hosts
	InsecureIgnoreHostKey bool
	HostKeyCallback       ssh.HostKeyCallback // overrides KnownHostsFile when set
	IdentityFiles         []string            // default ~/.ssh/id_ed25519, id_ecdsa, id_rsa
	Signers               []ssh.Signer
	DisableAgent          bool
	ConnectTimeout        time.Duration
	Escalation            Escalation
	Credentials           CredentialSource
	Logger                zerolog.Logger
}

// SSHPool keeps one client connection per user@host:port and shares it
// between concurrent statements.
type SSHPool struct {
	cfg     SSHConfig
	mu      sync.Mutex
	clients map[string]*ssh.Client
	dials   singleflight.Group
	agent   net.Conn // ssh-agent socket, dialed once and shared by every host
}

// NewSSHPool creates an empty connection pool
func NewSSHPool(cfg SSHConfig) *SSHPool {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.Escalation == "" {
		cfg.Escalation = EscalateSudo
	}
	return &SSHPool{cfg: cfg, clients: make(map[string]*ssh.Client)}
}

// Target returns a Target that runs on host through the pool.
func (p *SSHPool) Target(host HostSpec) *SSHTarget {
	if host.User == "" {
		host.User = currentUser()
	}
	return &SSHTarget{pool: p, host: host}
}

// Close closes every pooled connection
func (p *SSHPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var errs []error
	for key, c := range p.clients {
		if err := c.Close(); err != nil && !stderrors.Is(err, net.ErrClosed) {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
		delete(p.clients, key)
	}
	if p.agent != nil {
		if err := p.agent.Close(); err != nil && !stderrors.Is(err, net.ErrClosed) {
			errs = append(errs, fmt.Errorf("ssh-agent: %w", err))
		}
		p.agent = nil
	}
	return stderrors.Join(errs...)
}

func (p *SSHPool) client(ctx context.Context, host HostSpec) (*ssh.Client, error) {
	key := host.Key()
	p.mu.Lock()
	c, ok := p.clients[key]
	p.mu.Unlock()
	if ok {
		return c, nil
	}

	v, err, _ := p.dials.Do(key, func() (interface{}, error) {
		c, err := p.dial(ctx, host)
		if err != nil {
			return nil, err
		}
		p.mu.Lock()
		p.clients[key] = c
		p.mu.Unlock()
		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*ssh.Client), nil
}

// forget drops a broken connection so the next statement redials.
func (p *SSHPool) forget(host HostSpec, c *ssh.Client) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.clients[host.Key()] == c {
		delete(p.clients, host.Key())
		_ = c.Close()
	}
}

func (p *SSHPool) dial(ctx context.Context, host HostSpec) (*ssh.Client, error) {
	hostKey, err := p.hostKeyCallback()
	if err != nil {
		return nil, err
	}
	config := &ssh.ClientConfig{
		User:            host.User,
		Auth:            p.authMethods(host),
		HostKeyCallback: hostKey,
		Timeout:         p.cfg.ConnectTimeout,
	}

	dialCtx, cancel := context.WithTimeout(ctx, p.cfg.ConnectTimeout)
	defer cancel()
	var d net.Dialer
	conn, err := d.DialContext(dialCtx, "tcp", host.Addr())
	if err != nil {
		return nil, fmt.Errorf("ssh dial %s: %w", host.Addr(), err)
	}
	if deadline, ok := dialCtx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, host.Addr(), config)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ssh handshake with %s: %w", host, err)
	}
	_ = conn.SetDeadline(time.Time{})

	p.cfg.Logger.Debug().Str("host", host.String()).Msg("ssh connection established")
	return ssh.NewClient(sshConn, chans, reqs), nil
}

func (p *SSHPool) hostKeyCallback() (ssh.HostKeyCallback, error) {
	switch {
	case p.cfg.HostKeyCallback != nil:
		return p.cfg.HostKeyCallback, nil
	case p.cfg.InsecureIgnoreHostKey:
		return ssh.InsecureIgnoreHostKey(), nil
	}
	path := p.cfg.KnownHostsFile
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("locate known_hosts: %w", err)
		}
		path = filepath.Join(home, ".ssh", "known_hosts")
	}
	cb, err := knownhosts.New(path)
	if err != nil {
		return nil, fmt.Errorf("load known hosts %s: %w", path, err)
	}
	return cb, nil
}

func (p *SSHPool) authMethods(host HostSpec) []ssh.AuthMethod {
	var methods []ssh.AuthMethod
	signers := append([]ssh.Signer(nil), p.cfg.Signers...)

	if conn := p.agentConn(); conn != nil {
		methods = append(methods, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
	}

	for _, path := range p.identityFiles() {
		signer, err := p.loadKey(path)
		if err != nil {
			p.cfg.Logger.Debug().Err(err).Str("key", path).Msg("skipping identity file")
			continue
		}
		signers = append(signers, signer)
	}
	if len(signers) > 0 {
		methods = append(methods, ssh.PublicKeys(signers...))
	}

	if p.cfg.Credentials != nil {
		subject := host.User + "@" + host.Address
		password := func() (string, error) {
			return p.cfg.Credentials.Get(credentials.Password, subject)
		}
		methods = append(methods, ssh.PasswordCallback(password))
	}
	return methods
}

// agentConn returns the pooled ssh-agent connection, dialing it on first
// use. It returns nil when no agent is reachable.
func (p *SSHPool) agentConn() net.Conn {
	if p.cfg.DisableAgent {
		return nil
	}
	sock := os.Getenv("SSH_AUTH_SOCK")
	if sock == "" {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.agent != nil {
		return p.agent
	}
	conn, err := net.Dial("unix", sock)
	if err != nil {
		p.cfg.Logger.Debug().Err(err).Str("socket", sock).Msg("ssh-agent unavailable")
		return nil
	}
	p.agent = conn
	return conn
}

func (p *SSHPool) identityFiles() []string {
	if len(p.cfg.IdentityFiles) > 0 {
		return p.cfg.IdentityFiles
	}
	if len(p.cfg.Signers) > 0 {
		return nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	var files []string
	for _, name := range []string{"id_ed25519", "id_ecdsa", "id_rsa"} {
		path := filepath.Join(home, ".ssh", name)
		if _, err := os.Stat(path); err == nil {
			files = append(files, path)
		}
	}
	return files
}

// loadKey parses a private key, decrypting it with the stored passphrase
// when it is protected.
func (p *SSHPool) loadKey(path string) (ssh.Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	signer, err := ssh.ParsePrivateKey(data)
	var missing *ssh.PassphraseMissingError
	if !stderrors.As(err, &missing) {
		return signer, err
	}
	if p.cfg.Credentials == nil {
		return nil, fmt.Errorf("%s is encrypted and no credential store is available", path)
	}
	passphrase, err := p.cfg.Credentials.Get(credentials.Passphrase, path)
	if err != nil {
		return nil, fmt.Errorf("passphrase for %s: %w", path, err)
	}
	return ssh.ParsePrivateKeyWithPassphrase(data, []byte(passphrase))
}

// SSHTarget runs commands on one remote host.
type SSHTarget struct {
	pool *SSHPool
	host HostSpec
}

// Name returns the display name
func (t *SSHTarget) Name() string {
	return t.host.String()
}

// Host returns the host spec
func (t *SSHTarget) Host() HostSpec {
	return t.host
}

// RemoteCommand renders the command line sent to the remote shell.
func (t *SSHTarget) RemoteCommand(cmd Command) string {
	argv := WithDir(cmd.Argv, cmd.Dir)
	argv = WithEnv(argv, cmd.Env)
	argv = Escalate(argv, t.host, t.pool.cfg.Escalation)
	return shellescape.QuoteCommand(argv)
}

// Run executes cmd in a new session on the pooled connection
func (t *SSHTarget) Run(ctx context.Context, cmd Command, timeout time.Duration) Result {
	res := Result{Host: t.Name()}
	start := time.Now()
	defer func() { res.Duration = time.Since(start) }()

	client, err := t.pool.client(ctx, t.host)
	if err != nil {
		res.ExitCode = -1
		res.Err = err
		return res
	}
	session, err := client.NewSession()
	if err != nil {
		t.pool.forget(t.host, client)
		res.ExitCode = -1
		res.Err = fmt.Errorf("open session on %s: %w", t.host, err)
		return res
	}
	defer func() { _ = session.Close() }()

	var out io.Writer
	if cmd.Output != nil {
		out = shell.SyncWriter(cmd.Output)
	}
	stdout := &capture{w: out}
	stderr := &capture{w: out}
	session.Stdin = cmd.Stdin
	session.Stdout = stdout
	session.Stderr = stderr

	line := t.RemoteCommand(cmd)
	t.pool.cfg.Logger.Debug().Str("host", t.Name()).Str("command", line).Msg("running remote command")
	if err := session.Start(line); err != nil {
		res.ExitCode = -1
		res.Err = fmt.Errorf("start remote command on %s: %w", t.host, err)
		return res
	}

	done := make(chan error, 1)
	go func() { done <- session.Wait() }()

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case err = <-done:
	case <-expired:
		_ = session.Signal(ssh.SIGKILL)
		_ = session.Close()
		res.TimedOut = true
		res.ExitCode = shell.ExitTimeout
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		_ = session.Close()
		res.ExitCode = -1
		res.Err = ctx.Err()
	}
	res.Stdout = stdout.String()
	res.Stderr = stderr.String()
	if res.TimedOut || res.Err != nil {
		return res
	}

	var exitErr *ssh.ExitError
	switch {
	case err == nil:
	case stderrors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitStatus()
	default:
		res.ExitCode = -1
		res.Err = fmt.Errorf("remote command on %s: %w", t.host, err)
	}
	return res
}

// capture records session output and streams it to w. The session's copy
// goroutines may still be writing after a timeout, so reads are locked.
// Stream errors are ignored so a closed terminal does not abort the
// remote command.
type capture struct {
	mu  sync.Mutex
	buf bytes.Buffer
	w   io.Writer
}

func (c *capture) Write(p []byte) (int, error) {
	c.mu.Lock()
	c.buf.Write(p)
	c.mu.Unlock()
	if c.w != nil {
		_, _ = c.w.Write(p)
	}
	return len(p), nil
}

func (c *capture) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.String()
}

func currentUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return os.Getenv("USER")
}
