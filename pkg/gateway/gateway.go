// Package gateway abstracts file and process operations over their target:
// the local machine, or a remote host reached over SSH. The certificate
// orchestrator and the nginx engine run all side effects through this
// interface so the same logic serves both targets.
package gateway

import (
	"context"
	"os"

	"github.com/certmate/certmate/pkg/sshx"
)

// Gateway is the uniform execution surface for one target machine.
type Gateway interface {
	// ReadFile returns the file content, or an error wrapping
	// errdefs.ErrNotFound when the path does not exist.
	ReadFile(ctx context.Context, path string) ([]byte, error)

	// WriteFile writes data to path with the given permissions, creating
	// the file if needed.
	WriteFile(ctx context.Context, path string, data []byte, mode os.FileMode) error

	// EnsureDir creates the directory and any missing parents.
	EnsureDir(ctx context.Context, path string) error

	// Exists reports whether the path exists.
	Exists(ctx context.Context, path string) (bool, error)

	// Run executes a shell command and returns its exit code and output.
	// A non-zero exit code is not an error.
	Run(ctx context.Context, cmd string) (sshx.Result, error)

	// Close releases any resources held by the gateway.
	Close() error
}

// shQuote wraps s in single quotes for safe interpolation into a shell command
func shQuote(s string) string {
	return sshx.Quote(s)
}
