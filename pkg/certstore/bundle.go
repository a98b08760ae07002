// Package certstore handles the four certificate artifacts produced by an
// issuance (private key, leaf, chain, fullchain): splitting the CA's PEM
// bundle, persisting the artifacts under the permission contract, and
// inspecting stored certificates.
package certstore

import (
	"bytes"
	"encoding/pem"
	"fmt"

	"github.com/certmate/certmate/pkg/errdefs"
)

// Bundle is the parsed form of the PEM bundle returned by the CA.
type Bundle struct {
	Leaf  []byte // First certificate in the bundle
	Chain []byte // Remaining certificates, concatenated in original order
}

// Fullchain returns the leaf followed by the chain
func (b *Bundle) Fullchain() []byte {
	out := make([]byte, 0, len(b.Leaf)+len(b.Chain))
	out = append(out, b.Leaf...)
	out = append(out, b.Chain...)
	return out
}

// ParseBundle splits a PEM bundle on certificate boundaries. The first
// certificate is the leaf; everything after it is the intermediate chain.
func ParseBundle(data []byte) (*Bundle, error) {
	var blocks [][]byte

	rest := data
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		blocks = append(blocks, pem.EncodeToMemory(block))
	}

	if len(blocks) == 0 {
		return nil, fmt.Errorf("%w", errdefs.ErrMalformedBundle)
	}

	return &Bundle{
		Leaf:  blocks[0],
		Chain: bytes.Join(blocks[1:], nil),
	}, nil
}

// SerializeBundle is the inverse of ParseBundle: leaf followed by chain.
func SerializeBundle(leaf, chain []byte) []byte {
	out := make([]byte, 0, len(leaf)+len(chain))
	out = append(out, leaf...)
	out = append(out, chain...)
	return out
}
