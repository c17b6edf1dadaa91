//go:build !windows

package target

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"

	"github.com/phillarmonic/pf/internal/credentials"
)

// testServer is an in-process SSH server that runs exec requests with the
// local sh.
type testServer struct {
	host      HostSpec
	hostKey   ssh.PublicKey
	clientKey ssh.Signer
	conns     atomic.Int32
	listener  net.Listener
}

type serverAuth struct {
	password  string
	publicKey ssh.PublicKey
}

func startServer(t *testing.T, auth serverAuth) *testServer {
	t.Helper()

	_, hostPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate host key: %v", err)
	}
	hostSigner, err := ssh.NewSignerFromKey(hostPriv)
	if err != nil {
		t.Fatalf("host signer: %v", err)
	}
	_, clientPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate client key: %v", err)
	}
	clientSigner, err := ssh.NewSignerFromKey(clientPriv)
	if err != nil {
		t.Fatalf("client signer: %v", err)
	}

	allowed := auth.publicKey
	if allowed == nil && auth.password == "" {
		allowed = clientSigner.PublicKey()
	}
	config := &ssh.ServerConfig{}
	if allowed != nil {
		config.PublicKeyCallback = func(_ ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			if bytes.Equal(key.Marshal(), allowed.Marshal()) {
				return &ssh.Permissions{}, nil
			}
			return nil, fmt.Errorf("unknown public key")
		}
	}
	if auth.password != "" {
		config.PasswordCallback = func(_ ssh.ConnMetadata, pw []byte) (*ssh.Permissions, error) {
			if string(pw) == auth.password {
				return &ssh.Permissions{}, nil
			}
			return nil, fmt.Errorf("wrong password")
		}
	}
	config.AddHostKey(hostSigner)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skip("cannot listen:", err)
	}
	s := &testServer{
		host:      HostSpec{Address: "127.0.0.1", Port: ln.Addr().(*net.TCPAddr).Port, User: "tester"},
		hostKey:   hostSigner.PublicKey(),
		clientKey: clientSigner,
		listener:  ln,
	}
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go s.serve(conn, config)
		}
	}()
	return s
}

func (s *testServer) serve(conn net.Conn, config *ssh.ServerConfig) {
	defer func() { _ = conn.Close() }()
	sconn, chans, reqs, err := ssh.NewServerConn(conn, config)
	if err != nil {
		return
	}
	defer func() { _ = sconn.Close() }()
	s.conns.Add(1)
	go ssh.DiscardRequests(reqs)

	for nc := range chans {
		if nc.ChannelType() != "session" {
			_ = nc.Reject(ssh.UnknownChannelType, "unsupported")
			continue
		}
		ch, requests, err := nc.Accept()
		if err != nil {
			continue
		}
		go s.session(ch, requests)
	}
}

func (s *testServer) session(ch ssh.Channel, requests <-chan *ssh.Request) {
	defer func() { _ = ch.Close() }()
	var cmd *exec.Cmd
	for req := range requests {
		switch req.Type {
		case "exec":
			var payload struct{ Command string }
			if err := ssh.Unmarshal(req.Payload, &payload); err != nil || cmd != nil {
				_ = req.Reply(false, nil)
				continue
			}
			cmd = exec.Command("sh", "-c", payload.Command)
			cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
			cmd.Stdout = ch
			cmd.Stderr = ch.Stderr()
			stdin, _ := cmd.StdinPipe()
			if err := cmd.Start(); err != nil {
				_ = req.Reply(false, nil)
				return
			}
			_ = req.Reply(true, nil)
			go func() {
				_, _ = io.Copy(stdin, ch)
				_ = stdin.Close()
			}()
			go func(c *exec.Cmd) {
				status := 0
				if err := c.Wait(); err != nil {
					status = 255
					if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() >= 0 {
						status = exitErr.ExitCode()
					}
				}
				_, _ = ch.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{uint32(status)}))
				_ = ch.Close()
			}(cmd)
		case "signal":
			if cmd != nil && cmd.Process != nil {
				_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
			}
		default:
			if req.WantReply {
				_ = req.Reply(false, nil)
			}
		}
	}
	if cmd != nil && cmd.Process != nil {
		_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}

func (s *testServer) pool(t *testing.T, cfg SSHConfig) *SSHPool {
	t.Helper()
	cfg.HostKeyCallback = ssh.FixedHostKey(s.hostKey)
	cfg.DisableAgent = true
	cfg.Logger = zerolog.Nop()
	if cfg.Signers == nil && cfg.IdentityFiles == nil {
		cfg.Signers = []ssh.Signer{s.clientKey}
	}
	p := NewSSHPool(cfg)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

type fakeCredentials map[string]string

func (f fakeCredentials) Get(kind credentials.Kind, subject string) (string, error) {
	if v, ok := f[string(kind)+"/"+subject]; ok {
		return v, nil
	}
	return "", credentials.ErrNotFound
}

func TestSSHTarget_Run(t *testing.T) {
	srv := startServer(t, serverAuth{})
	tgt := srv.pool(t, SSHConfig{}).Target(srv.host)

	res := tgt.Run(context.Background(), Command{Argv: []string{"sh", "-c", "echo out; echo err >&2; exit 3"}}, 0)
	if res.Err != nil {
		t.Fatalf("Run() error = %v", res.Err)
	}
	if res.ExitCode != 3 || res.Stdout != "out\n" || res.Stderr != "err\n" {
		t.Errorf("Run() = exit %d, stdout %q, stderr %q", res.ExitCode, res.Stdout, res.Stderr)
	}
	if res.Host != "tester@127.0.0.1:"+strconv.Itoa(srv.host.Port) {
		t.Errorf("Host = %q", res.Host)
	}
}

func TestSSHTarget_ArgvSurvivesRemoteShell(t *testing.T) {
	srv := startServer(t, serverAuth{})
	tgt := srv.pool(t, SSHConfig{}).Target(srv.host)

	res := tgt.Run(context.Background(), Command{Argv: []string{"printf", "%s|", "a b", "$HOME", "it's"}}, 0)
	if !res.Success() {
		t.Fatalf("Run() = %+v", res)
	}
	if want := "a b|$HOME|it's|"; res.Stdout != want {
		t.Errorf("Stdout = %q, want %q", res.Stdout, want)
	}
}

func TestSSHTarget_EnvDirAndStdin(t *testing.T) {
	srv := startServer(t, serverAuth{})
	tgt := srv.pool(t, SSHConfig{}).Target(srv.host)
	dir, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	var streamed bytes.Buffer
	res := tgt.Run(context.Background(), Command{
		Argv:   []string{"sh", "-c", `echo "$GREETING"; pwd -P; cat`},
		Env:    map[string]string{"GREETING": "hello"},
		Dir:    dir,
		Stdin:  strings.NewReader("payload\n"),
		Output: &streamed,
	}, 0)
	if !res.Success() {
		t.Fatalf("Run() = %+v", res)
	}
	want := "hello\n" + dir + "\npayload\n"
	if res.Stdout != want {
		t.Errorf("Stdout = %q, want %q", res.Stdout, want)
	}
	if streamed.String() != want {
		t.Errorf("streamed = %q, want %q", streamed.String(), want)
	}
}

func TestSSHTarget_Timeout(t *testing.T) {
	srv := startServer(t, serverAuth{})
	tgt := srv.pool(t, SSHConfig{}).Target(srv.host)

	start := time.Now()
	res := tgt.Run(context.Background(), Command{Argv: []string{"sleep", "5"}}, 200*time.Millisecond)
	if !res.TimedOut || res.ExitCode != 124 {
		t.Errorf("Run() = timedOut %v exit %d, want timeout with 124", res.TimedOut, res.ExitCode)
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("timeout took %v", elapsed)
	}
}

func TestSSHPool_ReusesConnection(t *testing.T) {
	srv := startServer(t, serverAuth{})
	pool := srv.pool(t, SSHConfig{})

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := pool.Target(srv.host).Run(context.Background(), Command{Argv: []string{"true"}}, 0)
			if !res.Success() {
				t.Errorf("Run() = %+v", res)
			}
		}()
	}
	wg.Wait()
	if got := srv.conns.Load(); got != 1 {
		t.Errorf("connections = %d, want 1", got)
	}
}

func TestSSHPool_AgentConnectionSharedAndClosed(t *testing.T) {
	dir, err := os.MkdirTemp("", "pfagent")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	sock := filepath.Join(dir, "agent.sock")
	ln, err := net.Listen("unix", sock)
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	t.Setenv("SSH_AUTH_SOCK", sock)

	accepted := make(chan net.Conn, 4)
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			accepted <- c
		}
	}()

	pool := NewSSHPool(SSHConfig{Logger: zerolog.Nop(), IdentityFiles: []string{filepath.Join(dir, "missing")}})
	host := HostSpec{User: "tester", Address: "127.0.0.1"}
	for i := 0; i < 3; i++ {
		if methods := pool.authMethods(host); len(methods) != 1 {
			t.Fatalf("authMethods() returned %d methods, want the agent only", len(methods))
		}
	}
	first := pool.agentConn()
	if first == nil || pool.agentConn() != first {
		t.Fatal("agentConn() did not reuse one connection")
	}

	var server net.Conn
	select {
	case server = <-accepted:
	case <-time.After(5 * time.Second):
		t.Fatal("agent socket never accepted a connection")
	}
	defer server.Close()

	if err := pool.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	_ = server.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, err := server.Read(make([]byte, 1)); err != io.EOF {
		t.Errorf("agent connection after Close(): read error = %v, want EOF", err)
	}
	select {
	case extra := <-accepted:
		extra.Close()
		t.Error("agent socket was dialed more than once")
	default:
	}
}

func TestSSHPool_PasswordFromCredentials(t *testing.T) {
	srv := startServer(t, serverAuth{password: "s3cret"})
	pool := srv.pool(t, SSHConfig{
		Signers:       []ssh.Signer{},
		IdentityFiles: []string{filepath.Join(t.TempDir(), "missing")},
		Credentials:   fakeCredentials{"password/tester@127.0.0.1": "s3cret"},
	})

	res := pool.Target(srv.host).Run(context.Background(), Command{Argv: []string{"echo", "ok"}}, 0)
	if !res.Success() || res.Stdout != "ok\n" {
		t.Errorf("Run() = %+v", res)
	}
}

func TestSSHPool_EncryptedIdentityFile(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	block, err := ssh.MarshalPrivateKeyWithPassphrase(priv, "test", []byte("open sesame"))
	if err != nil {
		t.Fatal(err)
	}
	keyPath := filepath.Join(t.TempDir(), "id_ed25519")
	if err := os.WriteFile(keyPath, pem.EncodeToMemory(block), 0o600); err != nil {
		t.Fatal(err)
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		t.Fatal(err)
	}

	srv := startServer(t, serverAuth{publicKey: signer.PublicKey()})
	pool := srv.pool(t, SSHConfig{
		IdentityFiles: []string{keyPath},
		Credentials:   fakeCredentials{"passphrase/" + keyPath: "open sesame"},
	})

	res := pool.Target(srv.host).Run(context.Background(), Command{Argv: []string{"true"}}, 0)
	if !res.Success() {
		t.Errorf("Run() = %+v", res)
	}
}

func TestSSHTarget_DialFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skip(err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()

	pool := NewSSHPool(SSHConfig{InsecureIgnoreHostKey: true, DisableAgent: true, Logger: zerolog.Nop(), ConnectTimeout: time.Second})
	defer pool.Close()
	res := pool.Target(HostSpec{Address: "127.0.0.1", Port: port, User: "x"}).Run(context.Background(), Command{Argv: []string{"true"}}, 0)
	if res.Err == nil || res.ExitCode != -1 {
		t.Errorf("Run() = %+v, want a connection error", res)
	}
}

func TestSSHTarget_RemoteCommand(t *testing.T) {
	pool := NewSSHPool(SSHConfig{})
	tgt := pool.Target(HostSpec{Address: "web1", User: "deploy", Sudo: true})
	got := tgt.RemoteCommand(Command{Argv: []string{"echo", "hi there"}, Env: map[string]string{"A": "1"}})
	if want := "sudo -n -H -- env A=1 echo 'hi there'"; got != want {
		t.Errorf("RemoteCommand() = %q, want %q", got, want)
	}
}
