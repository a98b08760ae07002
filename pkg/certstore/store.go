package certstore

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/certmate/certmate/pkg/gateway"
)

// Artifact file names under the per-domain certificate directory.
const (
	CertFile      = "cert.pem"
	KeyFile       = "cert.key"
	ChainFile     = "chain.pem"
	FullchainFile = "fullchain.pem"

	keyMode  = 0600
	certMode = 0644
)

// Material holds the four artifacts of one issuance. They are always
// written together.
type Material struct {
	PrivateKey []byte
	Leaf       []byte
	Chain      []byte
	Fullchain  []byte
}

// Paths returns the four artifact paths for a domain under root
func Paths(root, domain string) (cert, key, chain, fullchain string) {
	dir := filepath.Join(root, domain)
	return filepath.Join(dir, CertFile),
		filepath.Join(dir, KeyFile),
		filepath.Join(dir, ChainFile),
		filepath.Join(dir, FullchainFile)
}

// Save writes the four artifacts under root/<domain>/ with the permission
// contract (key owner-only, certificates world-readable). Files are staged
// with temporary names and renamed into place only after all four writes
// succeed, so a failure never leaves a partial set.
func Save(root, domain string, m *Material) error {
	dir := filepath.Join(root, domain)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create certificate directory: %w", err)
	}

	files := []struct {
		name string
		data []byte
		mode os.FileMode
	}{
		{CertFile, m.Leaf, certMode},
		{KeyFile, m.PrivateKey, keyMode},
		{ChainFile, m.Chain, certMode},
		{FullchainFile, m.Fullchain, certMode},
	}

	var staged []string
	cleanup := func() {
		for _, tmp := range staged {
			os.Remove(tmp)
		}
	}

	for _, f := range files {
		tmp := filepath.Join(dir, "."+f.name+".tmp")
		if err := os.WriteFile(tmp, f.data, f.mode); err != nil {
			cleanup()
			return fmt.Errorf("failed to stage %s: %w", f.name, err)
		}
		staged = append(staged, tmp)
	}

	for _, f := range files {
		tmp := filepath.Join(dir, "."+f.name+".tmp")
		if err := os.Rename(tmp, filepath.Join(dir, f.name)); err != nil {
			cleanup()
			return fmt.Errorf("failed to install %s: %w", f.name, err)
		}
	}

	return nil
}

// Upload copies the four artifacts to remoteDir/<domain>/ through the
// gateway, which applies the permission contract with an explicit chmod.
func Upload(ctx context.Context, gw gateway.Gateway, remoteDir, domain string, m *Material) error {
	dir := path.Join(remoteDir, domain)
	if err := gw.EnsureDir(ctx, dir); err != nil {
		return fmt.Errorf("failed to create remote certificate directory: %w", err)
	}

	files := []struct {
		name string
		data []byte
		mode os.FileMode
	}{
		{CertFile, m.Leaf, certMode},
		{KeyFile, m.PrivateKey, keyMode},
		{ChainFile, m.Chain, certMode},
		{FullchainFile, m.Fullchain, certMode},
	}

	for _, f := range files {
		if err := gw.WriteFile(ctx, path.Join(dir, f.name), f.data, f.mode); err != nil {
			return fmt.Errorf("failed to upload %s: %w", f.name, err)
		}
	}

	return nil
}
