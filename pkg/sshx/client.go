// Package sshx wraps golang.org/x/crypto/ssh with the small command and
// file-transfer surface certmate needs for remote hosts.
package sshx

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/certmate/certmate/pkg/errdefs"
	"github.com/certmate/certmate/pkg/resilience"
	"github.com/certmate/certmate/pkg/telemetry"
)

// Auth holds the credentials for a remote host. Exactly one of KeyPath,
// Key, or Password must be set.
type Auth struct {
	KeyPath  string // Path to SSH private key
	Key      []byte // Inline private key material
	Password string // SSH password
}

// Quote wraps s in single quotes for safe interpolation into a shell
// command. Embedded single quotes are escaped the POSIX way.
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// Result carries the outcome of one remote command.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Client wraps an SSH connection with additional functionality
type Client struct {
	config  *ssh.ClientConfig
	host    string
	port    int
	conn    *ssh.Client
	breaker *resilience.HostBreaker
	mu      sync.Mutex
}

// NewClient creates a new SSH client for the given host
func NewClient(host string, port int, user string, auth Auth) (*Client, error) {
	method, err := authMethod(auth)
	if err != nil {
		return nil, err
	}

	if port == 0 {
		port = 22
	}

	config := &ssh.ClientConfig{
		User:            user,
		Auth:            []ssh.AuthMethod{method},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), // TODO: Implement proper host key verification
		Timeout:         60 * time.Second,            // Generous timeout for slow/busy servers
		ClientVersion:   "SSH-2.0-Certmate",
	}

	return &Client{
		config:  config,
		host:    host,
		port:    port,
		breaker: resilience.NewHostBreaker(fmt.Sprintf("%s:%d", host, port)),
	}, nil
}

// authMethod builds the ssh.AuthMethod for the configured credentials
func authMethod(auth Auth) (ssh.AuthMethod, error) {
	switch {
	case auth.KeyPath != "":
		key, err := os.ReadFile(auth.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read SSH key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("failed to parse SSH key: %w", err)
		}
		return ssh.PublicKeys(signer), nil

	case len(auth.Key) > 0:
		signer, err := ssh.ParsePrivateKey(auth.Key)
		if err != nil {
			return nil, fmt.Errorf("failed to parse SSH key: %w", err)
		}
		return ssh.PublicKeys(signer), nil

	case auth.Password != "":
		return ssh.Password(auth.Password), nil

	default:
		return nil, fmt.Errorf("no SSH credentials provided")
	}
}

// Addr returns the host:port the client connects to
func (c *Client) Addr() string {
	return fmt.Sprintf("%s:%d", c.host, c.port)
}

// Connect establishes the SSH connection with retry logic
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return nil // Already connected
	}

	addr := c.Addr()

	err := resilience.Retry(ctx, func() error {
		dialer := &net.Dialer{
			Timeout:   60 * time.Second,
			KeepAlive: 30 * time.Second,
		}

		tcpConn, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			return fmt.Errorf("TCP dial failed: %w", err)
		}

		sshConn, chans, reqs, err := ssh.NewClientConn(tcpConn, addr, c.config)
		if err != nil {
			tcpConn.Close()
			return fmt.Errorf("SSH handshake failed: %w", err)
		}

		c.conn = ssh.NewClient(sshConn, chans, reqs)
		return nil
	}, resilience.WithMaxRetries(2), resilience.WithInitialDelay(time.Second))

	if err != nil {
		return fmt.Errorf("%w: failed to connect to %s: %v", errdefs.ErrTransport, addr, err)
	}
	return nil
}

// Close closes the SSH connection
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}

// Run executes a command on the remote host and returns its exit code and
// output streams. A non-zero exit code is not an error; only transport
// failures are.
func (c *Client) Run(ctx context.Context, cmd string) (Result, error) {
	return resilience.ExecuteWithResult(c.breaker, func() (Result, error) {
		return c.run(ctx, cmd)
	})
}

func (c *Client) run(ctx context.Context, cmd string) (Result, error) {
	ctx, span := telemetry.TraceSSH(ctx, c.Addr(), cmd)
	defer span.End()

	if err := c.Connect(ctx); err != nil {
		return Result{}, err
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	session, err := conn.NewSession()
	if err != nil {
		return Result{}, fmt.Errorf("%w: failed to create session: %v", errdefs.ErrTransport, err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() {
		done <- session.Run(cmd)
	}()

	select {
	case <-ctx.Done():
		session.Signal(ssh.SIGTERM)
		return Result{}, fmt.Errorf("%w: %v", errdefs.ErrTransport, ctx.Err())
	case err := <-done:
		res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
		if err == nil {
			return res, nil
		}
		if exitErr, ok := err.(*ssh.ExitError); ok {
			res.ExitCode = exitErr.ExitStatus()
			return res, nil
		}
		return res, fmt.Errorf("%w: command failed: %v", errdefs.ErrTransport, err)
	}
}

// Push writes content to a remote file and sets its permissions.
// Content is base64-encoded over stdin so binary data survives the shell;
// the explicit chmod is required because this transfer path does not
// preserve modes.
func (c *Client) Push(ctx context.Context, content []byte, remotePath string, mode os.FileMode) error {
	return c.breaker.Execute(func() error {
		return c.push(ctx, content, remotePath, mode)
	})
}

func (c *Client) push(ctx context.Context, content []byte, remotePath string, mode os.FileMode) error {
	ctx, span := telemetry.TraceSSH(ctx, c.Addr(), "push "+remotePath)
	defer span.End()

	if err := c.Connect(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	session, err := conn.NewSession()
	if err != nil {
		return fmt.Errorf("%w: failed to create session: %v", errdefs.ErrTransport, err)
	}
	defer session.Close()

	stdin, err := session.StdinPipe()
	if err != nil {
		return fmt.Errorf("%w: failed to create stdin pipe: %v", errdefs.ErrTransport, err)
	}

	cmd := fmt.Sprintf("base64 -d > %s && chmod %o %s", Quote(remotePath), mode.Perm(), Quote(remotePath))
	if err := session.Start(cmd); err != nil {
		return fmt.Errorf("%w: failed to start upload: %v", errdefs.ErrTransport, err)
	}

	encoder := base64.NewEncoder(base64.StdEncoding, stdin)
	if _, err := encoder.Write(content); err != nil {
		stdin.Close()
		return fmt.Errorf("failed to write content: %w", err)
	}
	encoder.Close()
	stdin.Close()

	if err := session.Wait(); err != nil {
		return fmt.Errorf("%w: upload of %s failed: %v", errdefs.ErrTransport, remotePath, err)
	}

	return nil
}
