package gateway

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/certmate/certmate/pkg/errdefs"
	"github.com/certmate/certmate/pkg/sshx"
)

// Local runs everything against the local filesystem and process table.
type Local struct{}

// NewLocal creates a gateway for the local machine
func NewLocal() *Local {
	return &Local{}
}

// ReadFile reads a local file
func (l *Local) ReadFile(ctx context.Context, path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", errdefs.ErrNotFound, path)
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

// WriteFile writes a local file with the given permissions
func (l *Local) WriteFile(ctx context.Context, path string, data []byte, mode os.FileMode) error {
	if err := os.WriteFile(path, data, mode); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	// WriteFile only applies the mode on creation; enforce it on rewrites too.
	if err := os.Chmod(path, mode); err != nil {
		return fmt.Errorf("failed to chmod %s: %w", path, err)
	}
	return nil
}

// EnsureDir creates a local directory and any missing parents
func (l *Local) EnsureDir(ctx context.Context, path string) error {
	if err := os.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", path, err)
	}
	return nil
}

// Exists reports whether a local path exists
func (l *Local) Exists(ctx context.Context, path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("failed to stat %s: %w", path, err)
}

// Run executes a local shell command
func (l *Local) Run(ctx context.Context, cmd string) (sshx.Result, error) {
	c := exec.CommandContext(ctx, "sh", "-c", cmd)

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	err := c.Run()
	res := sshx.Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err == nil {
		return res, nil
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}
	return res, fmt.Errorf("failed to run command: %w", err)
}

// Close is a no-op for the local gateway
func (l *Local) Close() error {
	return nil
}
