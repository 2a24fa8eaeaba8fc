package transport

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"

	gossh "golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"

	sshconfig "github.com/kevinburke/ssh_config"

	"github.com/agent462/mussh/internal/config"
	"github.com/agent462/mussh/internal/hostlog"
	"github.com/agent462/mussh/internal/muserr"
	"github.com/agent462/mussh/internal/pathutil"
)

// SSHOptions configures host-key verification for every connection the
// SSHExecutor makes. Signature-verification policy beyond what the
// transport performs by default is out of scope, so the only knob
// exposed is whether to skip it entirely.
type SSHOptions struct {
	AcceptUnknownHosts bool
}

// SSHExecutor runs commands over SSH: dial, authenticate (pubkey file or
// agent), exec, stream stdout line-by-line. Auth is narrower than the
// teacher's internal/ssh/client.go on purpose: no password callback, no
// proxy-jump chaining, since the contract here is exactly "public-key
// file or agent" with no mention of either.
type SSHExecutor struct {
	opts SSHOptions
}

// NewSSHExecutor constructs an SSHExecutor with the given options.
func NewSSHExecutor(opts SSHOptions) *SSHExecutor {
	return &SSHExecutor{opts: opts}
}

// Execute dials host, authenticates, execs cmdString on a fresh session,
// and streams stdout line-by-line into sink.
func (e *SSHExecutor) Execute(ctx context.Context, host config.Host, cmdString string, sink *hostlog.Sink) Result {
	client, err := e.dial(ctx, host)
	if err != nil {
		return Result{ExitCode: -1, Err: err}
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return Result{ExitCode: -1, Err: fmt.Errorf("%w: new session: %v", muserr.SshSession, err)}
	}
	defer session.Close()

	stdoutPipe, err := session.StdoutPipe()
	if err != nil {
		return Result{ExitCode: -1, Err: fmt.Errorf("%w: stdout pipe: %v", muserr.SshChannel, err)}
	}
	var stderrBuf bytes.Buffer
	session.Stderr = &stderrBuf

	if err := session.Start(cmdString); err != nil {
		return Result{ExitCode: -1, Err: fmt.Errorf("%w: exec: %v", muserr.SshChannel, err)}
	}

	var outBuf bytes.Buffer
	scanner := bufio.NewScanner(stdoutPipe)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	done := make(chan error, 1)
	go func() {
		for scanner.Scan() {
			line := scanner.Text()
			sink.WriteLine(line)
			outBuf.WriteString(line)
			outBuf.WriteByte('\n')
		}
		done <- session.Wait()
	}()

	select {
	case <-ctx.Done():
		session.Signal(gossh.SIGKILL)
		session.Close()
		return Result{Stdout: outBuf.Bytes(), ExitCode: -1, Err: fmt.Errorf("%w: %v", muserr.Cancelled, ctx.Err())}
	case waitErr := <-done:
		if waitErr == nil {
			return Result{Stdout: outBuf.Bytes(), ExitCode: 0}
		}
		if exitErr, ok := waitErr.(*gossh.ExitError); ok {
			return Result{Stdout: outBuf.Bytes(), ExitCode: exitErr.ExitStatus()}
		}
		return Result{Stdout: outBuf.Bytes(), ExitCode: -1, Err: fmt.Errorf("%w: %v", muserr.SshSession, waitErr)}
	}
}

// dial opens a TCP connection and handshakes an SSH session, authenticating
// with host.Pem if set, else enumerating SSH-agent identities.
func (e *SSHExecutor) dial(ctx context.Context, host config.Host) (*gossh.Client, error) {
	sshConfigFallback(&host)

	port := host.Port
	if port == 0 {
		port = 22
	}
	addr := net.JoinHostPort(host.Hostname, fmt.Sprintf("%d", port))

	auth, err := authMethods(host)
	if err != nil {
		return nil, err
	}
	if len(auth) == 0 {
		return nil, fmt.Errorf("%w: no usable key file or agent identities for %s", muserr.SshAuthentication, host.Name)
	}

	hostKeyCallback, err := hostKeyCallback(e.opts)
	if err != nil {
		return nil, fmt.Errorf("%w: host key callback: %v", muserr.SshSession, err)
	}

	clientConf := &gossh.ClientConfig{
		User:            host.Username,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", muserr.SshSession, addr, err)
	}

	type handshakeResult struct {
		conn  gossh.Conn
		chans <-chan gossh.NewChannel
		reqs  <-chan *gossh.Request
		err   error
	}
	resCh := make(chan handshakeResult, 1)
	go func() {
		c, chans, reqs, err := gossh.NewClientConn(conn, addr, clientConf)
		resCh <- handshakeResult{c, chans, reqs, err}
	}()

	select {
	case <-ctx.Done():
		conn.Close()
		return nil, fmt.Errorf("%w: %v", muserr.Cancelled, ctx.Err())
	case res := <-resCh:
		if res.err != nil {
			conn.Close()
			return nil, classifyAuthError(host.Name, res.err)
		}
		return gossh.NewClient(res.conn, res.chans, res.reqs), nil
	}
}

// authMethods builds the auth chain: public-key file first if host.Pem is
// set (failing fast rather than falling back to the agent), else every
// identity the local SSH agent offers.
func authMethods(host config.Host) ([]gossh.AuthMethod, error) {
	if host.Pem != "" {
		signer, err := loadKeySigner(host.Pem)
		if err != nil {
			return nil, fmt.Errorf("%w: load pem %s: %v", muserr.SshAuthentication, host.Pem, err)
		}
		return []gossh.AuthMethod{gossh.PublicKeys(signer)}, nil
	}

	agentAuth := agentAuthMethod()
	if agentAuth == nil {
		return nil, nil
	}
	return []gossh.AuthMethod{agentAuth}, nil
}

func loadKeySigner(path string) (gossh.Signer, error) {
	data, err := os.ReadFile(pathutil.ExpandHome(path))
	if err != nil {
		return nil, err
	}
	return gossh.ParsePrivateKey(data)
}

// agentAuthMethod connects to SSH_AUTH_SOCK and returns an auth method that
// tries every identity the agent offers in turn: ssh.PublicKeysCallback
// already implements that enumeration/first-success semantics against
// the client config's Auth list.
func agentAuthMethod() gossh.AuthMethod {
	sock := os.Getenv("SSH_AUTH_SOCK")
	if sock == "" {
		return nil
	}
	conn, err := net.Dial("unix", sock)
	if err != nil {
		return nil
	}
	ag := agent.NewClient(conn)
	keys, err := ag.List()
	if err != nil || len(keys) == 0 {
		conn.Close()
		return nil
	}
	return gossh.PublicKeysCallback(ag.Signers)
}

// hostKeyCallback resolves host-key verification: ~/.ssh/known_hosts,
// unless the caller explicitly opted out. "Trust known_hosts, or don't
// verify at all" is the full surface exposed here.
func hostKeyCallback(opts SSHOptions) (gossh.HostKeyCallback, error) {
	if opts.AcceptUnknownHosts {
		return gossh.InsecureIgnoreHostKey(), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	path := filepath.Join(home, ".ssh", "known_hosts")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("no known_hosts file at %s; accept unknown hosts explicitly to skip verification", path)
	}
	return knownhosts.New(path)
}

// classifyAuthError distinguishes an authentication failure from any other
// handshake failure, preserving the underlying cause either way.
func classifyAuthError(host string, err error) error {
	var authErr *gossh.ServerAuthError
	if ok := asServerAuthError(err, &authErr); ok {
		return fmt.Errorf("%w: %s: %v", muserr.SshAuthentication, host, authErr)
	}
	return fmt.Errorf("%w: %s: %v", muserr.SshSession, host, err)
}

func asServerAuthError(err error, target **gossh.ServerAuthError) bool {
	if e, ok := err.(*gossh.ServerAuthError); ok {
		*target = e
		return true
	}
	return false
}

// sshConfigFallback fills in connection details the config schema left
// unset (port/user) from the user's ~/.ssh/config, the way the teacher's
// internal/config/hosts.go MergeSSHConfig does, before dial falls back to
// the schema's own defaults. mussh's schema always supplies username/port
// explicitly, so this only matters for hand-edited configs that omit one.
func sshConfigFallback(host *config.Host) {
	if host.Port == 0 {
		if portStr := sshconfig.Get(host.Hostname, "Port"); portStr != "" {
			var p int
			if _, err := fmt.Sscanf(portStr, "%d", &p); err == nil && p > 0 {
				host.Port = uint16(p)
			}
		}
	}
	if host.Username == "" {
		host.Username = sshconfig.Get(host.Hostname, "User")
	}
}
