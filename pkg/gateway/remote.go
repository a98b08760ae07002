package gateway

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"github.com/certmate/certmate/pkg/errdefs"
	"github.com/certmate/certmate/pkg/sshx"
)

// Runner is the slice of sshx.Client the remote gateway depends on.
// Tests substitute an in-memory implementation.
type Runner interface {
	Connect(ctx context.Context) error
	Run(ctx context.Context, cmd string) (sshx.Result, error)
	Push(ctx context.Context, content []byte, remotePath string, mode os.FileMode) error
	Close() error
}

// Remote runs everything on a remote host over an established SSH channel.
// It owns the channel lifecycle: NewRemote connects, Close disconnects, and
// callers must guarantee Close on every exit path of a domain operation.
//
// Exists and EnsureDir go through command execution (test -e, mkdir -p)
// rather than protocol-level stat/mkdir: directory-creation semantics differ
// across SSH server implementations, while the commands behave the same
// everywhere a POSIX shell exists.
type Remote struct {
	runner Runner
}

// NewRemote connects the runner and returns a gateway bound to it
func NewRemote(ctx context.Context, runner Runner) (*Remote, error) {
	if err := runner.Connect(ctx); err != nil {
		return nil, err
	}
	return &Remote{runner: runner}, nil
}

// ReadFile reads a remote file, base64-encoded in transit so binary
// content survives the shell
func (r *Remote) ReadFile(ctx context.Context, path string) ([]byte, error) {
	exists, err := r.Exists(ctx, path)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", errdefs.ErrNotFound, path)
	}

	res, err := r.runner.Run(ctx, "base64 "+shQuote(path))
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		return nil, fmt.Errorf("failed to read %s: %s", path, strings.TrimSpace(res.Stderr))
	}

	encoded := strings.Map(func(c rune) rune {
		if c == '\n' || c == '\r' {
			return -1
		}
		return c
	}, res.Stdout)

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return data, nil
}

// WriteFile writes a remote file and applies the permissions with an
// explicit chmod, since the transfer itself does not preserve modes
func (r *Remote) WriteFile(ctx context.Context, path string, data []byte, mode os.FileMode) error {
	return r.runner.Push(ctx, data, path, mode)
}

// EnsureDir creates a remote directory via mkdir -p
func (r *Remote) EnsureDir(ctx context.Context, path string) error {
	res, err := r.runner.Run(ctx, "mkdir -p "+shQuote(path))
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("failed to create directory %s: %s", path, strings.TrimSpace(res.Stderr))
	}
	return nil
}

// Exists reports whether a remote path exists via test -e
func (r *Remote) Exists(ctx context.Context, path string) (bool, error) {
	res, err := r.runner.Run(ctx, "test -e "+shQuote(path))
	if err != nil {
		return false, err
	}
	return res.ExitCode == 0, nil
}

// Run executes a shell command on the remote host
func (r *Remote) Run(ctx context.Context, cmd string) (sshx.Result, error) {
	return r.runner.Run(ctx, cmd)
}

// Close disconnects the underlying channel
func (r *Remote) Close() error {
	return r.runner.Close()
}
