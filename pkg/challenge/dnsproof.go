package challenge

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/certmate/certmate/pkg/errdefs"
)

// DefaultPropagationWait is how long the strategy pauses after publishing a
// record before telling the CA to validate. DNS providers rarely expose a
// propagation signal, so a fixed wait is the portable choice.
const DefaultPropagationWait = 60 * time.Second

// Provider publishes TXT records in one DNS provider's zone.
type Provider interface {
	// AddTXTRecord creates (or replaces) a TXT record
	AddTXTRecord(ctx context.Context, fqdn, value string) error

	// RemoveTXTRecord deletes the TXT record
	RemoveTXTRecord(ctx context.Context, fqdn, value string) error
}

// DNSProof satisfies dns-01 by publishing the digest of the key
// authorization as a TXT record under _acme-challenge.
type DNSProof struct {
	Providers map[string]Provider
	Provider  string

	// PropagationWait overrides the fixed post-publish pause; zero means
	// DefaultPropagationWait.
	PropagationWait time.Duration

	// Checker, when set, runs an advisory lookup after the wait. Its
	// result is logged but never blocks validation.
	Checker *PropagationChecker

	Log *zap.Logger

	sleep func(ctx context.Context, d time.Duration) error // test hook
}

// RecordName returns the TXT record name for a domain
func RecordName(domain string) string {
	return "_acme-challenge." + domain
}

// RecordValue derives the TXT record payload from a key authorization
func RecordValue(keyAuth string) string {
	digest := sha256.Sum256([]byte(keyAuth))
	return base64.RawURLEncoding.EncodeToString(digest[:])
}

// Prepare publishes the TXT record and waits out propagation
func (d *DNSProof) Prepare(ctx context.Context, cc *Context) (string, error) {
	provider, ok := d.Providers[d.Provider]
	if !ok {
		return "", fmt.Errorf("%w: %q", errdefs.ErrUnsupportedProvider, d.Provider)
	}

	fqdn := RecordName(cc.Domain)
	value := RecordValue(cc.KeyAuth)

	if err := provider.AddTXTRecord(ctx, fqdn, value); err != nil {
		return "", fmt.Errorf("failed to publish TXT record %s: %w", fqdn, err)
	}

	wait := d.PropagationWait
	if wait == 0 {
		wait = DefaultPropagationWait
	}
	d.Log.Info("waiting for DNS propagation",
		zap.String("record", fqdn),
		zap.Duration("wait", wait))

	if err := d.wait(ctx, wait); err != nil {
		return "", err
	}

	if d.Checker != nil {
		if found := d.Checker.Found(ctx, fqdn, value); !found {
			d.Log.Warn("TXT record not yet visible on public resolvers, proceeding anyway",
				zap.String("record", fqdn))
		}
	}

	return fqdn, nil
}

// Cleanup removes the TXT record
func (d *DNSProof) Cleanup(ctx context.Context, cc *Context) error {
	provider, ok := d.Providers[d.Provider]
	if !ok {
		return fmt.Errorf("%w: %q", errdefs.ErrUnsupportedProvider, d.Provider)
	}

	fqdn := RecordName(cc.Domain)
	if err := provider.RemoveTXTRecord(ctx, fqdn, RecordValue(cc.KeyAuth)); err != nil {
		return fmt.Errorf("failed to remove TXT record %s: %w", fqdn, err)
	}
	return nil
}

func (d *DNSProof) wait(ctx context.Context, dur time.Duration) error {
	if d.sleep != nil {
		return d.sleep(ctx, dur)
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(dur):
		return nil
	}
}
