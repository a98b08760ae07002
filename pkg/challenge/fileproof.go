package challenge

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"go.uber.org/zap"

	"github.com/certmate/certmate/pkg/errdefs"
	"github.com/certmate/certmate/pkg/gateway"
	"github.com/certmate/certmate/pkg/sshx"
)

// WellKnownPath is the URL path prefix the CA fetches file proofs from.
const WellKnownPath = ".well-known/acme-challenge"

// FileProof serves the key authorization from the webroot, through the
// execution gateway, so the same strategy covers local and remote hosts.
type FileProof struct {
	GW gateway.Gateway

	// VerifyWrite re-reads the proof after writing. Set for remote
	// gateways, where a completed write is not otherwise guaranteed to
	// be visible over the same channel.
	VerifyWrite bool

	Log *zap.Logger
}

// Prepare writes the key authorization under the webroot
func (f *FileProof) Prepare(ctx context.Context, cc *Context) (string, error) {
	if cc.WebRoot == "" {
		return "", fmt.Errorf("%w: no webroot resolved for %s", errdefs.ErrProofWriteFailed, cc.Domain)
	}

	dir := path.Join(cc.WebRoot, WellKnownPath)
	if err := f.GW.EnsureDir(ctx, dir); err != nil {
		return "", fmt.Errorf("%w: %v", errdefs.ErrProofWriteFailed, err)
	}

	proofPath := path.Join(dir, cc.Token)
	if err := f.GW.WriteFile(ctx, proofPath, []byte(cc.KeyAuth), 0644); err != nil {
		return "", fmt.Errorf("%w: %v", errdefs.ErrProofWriteFailed, err)
	}

	if f.VerifyWrite {
		got, err := f.GW.ReadFile(ctx, proofPath)
		if err != nil {
			return "", fmt.Errorf("%w: proof not readable after write: %v", errdefs.ErrProofWriteFailed, err)
		}
		if !bytes.Equal(got, []byte(cc.KeyAuth)) {
			return "", fmt.Errorf("%w: proof content mismatch after write", errdefs.ErrProofWriteFailed)
		}
	}

	f.Log.Debug("challenge proof written",
		zap.String("domain", cc.Domain),
		zap.String("path", proofPath))

	return proofPath, nil
}

// Cleanup removes the proof file
func (f *FileProof) Cleanup(ctx context.Context, cc *Context) error {
	proofPath := path.Join(cc.WebRoot, WellKnownPath, cc.Token)

	res, err := f.GW.Run(ctx, "rm -f "+sshx.Quote(proofPath))
	if err != nil {
		return fmt.Errorf("failed to remove proof %s: %w", proofPath, err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("failed to remove proof %s: %s", proofPath, res.Stderr)
	}
	return nil
}
