// Package challenge implements the proof-of-control strategies an ACME
// authorization can be satisfied with: a file served from the webroot over
// plain HTTP, or a DNS TXT record published through a provider plugin.
package challenge

import (
	"context"
)

// Context carries everything one authorization round needs. It lives
// exactly as long as the round: created when the authorization is fetched,
// discarded after cleanup or abandonment.
type Context struct {
	Domain  string // Target domain
	Type    string // Challenge type (http-01, dns-01)
	Token   string // Proof token from the CA
	KeyAuth string // Computed key authorization value
	WebRoot string // Resolved webroot for file proofs
}

// Strategy prepares and removes the proof for one challenge type.
type Strategy interface {
	// Prepare publishes the proof and returns its location (a file path
	// or a DNS record name).
	Prepare(ctx context.Context, cc *Context) (string, error)

	// Cleanup removes the proof. Failures are non-fatal to issuance;
	// callers log and move on.
	Cleanup(ctx context.Context, cc *Context) error
}
