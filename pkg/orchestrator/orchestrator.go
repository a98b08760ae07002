// Package orchestrator drives the certificate lifecycle: opening an order,
// satisfying its authorizations through a challenge strategy, finalizing,
// downloading, and persisting the issued material. All filesystem and
// process side effects run through an execution gateway chosen per domain,
// so the same flow serves local and remote hosts.
package orchestrator

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/certmate/certmate/pkg/acme"
	"github.com/certmate/certmate/pkg/certstore"
	"github.com/certmate/certmate/pkg/challenge"
	"github.com/certmate/certmate/pkg/errdefs"
	"github.com/certmate/certmate/pkg/gateway"
	"github.com/certmate/certmate/pkg/registry"
	"github.com/certmate/certmate/pkg/sshx"
	"github.com/certmate/certmate/pkg/telemetry"
)

// DefaultWebRoot serves challenge proofs when no webroot is configured.
const DefaultWebRoot = "/var/www/html"

// DefaultThresholdDays is how close to expiry a certificate must be before
// renew considers it due.
const DefaultThresholdDays = 30

// Validation polling bounds: the CA gets this long to verify a proof.
var defaultWaitOptions = acme.WaitOptions{
	Retries:  15,
	Interval: 3 * time.Second,
	Timeout:  120 * time.Second,
}

// Options tunes one issue or renew invocation. Zero values defer to the
// domain's registry record and the orchestrator defaults.
type Options struct {
	Email       string
	WebRoot     string
	Challenge   string // http-01 (default) or dns-01
	DNSProvider string

	// SkipCleanup leaves challenge proofs in place after success, for
	// debugging. Proofs of failed attempts are always left in place.
	SkipCleanup bool

	// Force renews regardless of remaining validity.
	Force bool

	ThresholdDays int
}

// IssueResult reports one completed issuance.
type IssueResult struct {
	Domain    string
	State     State
	NotAfter  time.Time
	CertPath  string
	Remote    bool
}

// Orchestrator coordinates the ACME client, challenge strategies, execution
// gateways and certificate storage for the domains in the registry.
type Orchestrator struct {
	Registry      *registry.Registry
	Session       *acme.Session
	CertsRoot     string
	DirectoryURL  string
	ThresholdDays int
	DNSProviders  map[string]challenge.Provider
	Log           *zap.Logger

	// WaitOptions overrides the validation polling bounds; zero uses the
	// defaults.
	WaitOptions acme.WaitOptions

	// Test hooks.
	newGateway func(ctx context.Context, rec *registry.DomainRecord) (gateway.Gateway, error)
	newClient  func(email, directoryURL string) (acme.Client, error)
	now        func() time.Time
}

// Issue obtains and persists a certificate for the domain
func (o *Orchestrator) Issue(ctx context.Context, domain string, opts Options) (*IssueResult, error) {
	ctx, span := telemetry.TraceIssue(ctx, domain, o.challengeType(opts))
	defer span.End()

	rec := o.Registry.Get(domain)
	if rec == nil {
		rec = &registry.DomainRecord{Domain: domain}
	}

	email := opts.Email
	if email == "" {
		email = rec.Email
	}
	if email == "" {
		return nil, fmt.Errorf("%w for %s", errdefs.ErrMissingEmail, domain)
	}

	webRoot := o.resolveWebRoot(rec, opts)

	gw, err := o.openGateway(ctx, rec)
	if err != nil {
		return nil, err
	}
	defer gw.Close()

	client, err := o.acmeClient(email)
	if err != nil {
		return nil, err
	}

	state := StateCreated
	o.Log.Info("issuing certificate",
		zap.String("domain", domain),
		zap.Bool("remote", rec.IsRemote()),
		zap.String("challenge", o.challengeType(opts)))

	// Open the order.
	state = StateOrderOpen
	order, err := client.CreateOrder(ctx, []string{domain})
	if err != nil {
		return nil, o.fail(ctx, domain, state, err)
	}

	state = StateAuthorizing
	authorizations, err := client.GetAuthorizations(ctx, order)
	if err != nil {
		return nil, o.fail(ctx, domain, state, err)
	}

	strategy, err := o.strategy(gw, rec, opts)
	if err != nil {
		return nil, o.fail(ctx, domain, state, err)
	}

	// Satisfy every authorization. Proofs of a failed round are left in
	// place so an operator can inspect them.
	var completed []*challenge.Context
	for _, authz := range authorizations {
		cc, err := o.satisfy(ctx, client, strategy, authz, webRoot, opts)
		if err != nil {
			return nil, o.fail(ctx, domain, StateValidating, err)
		}
		completed = append(completed, cc)
	}

	if !opts.SkipCleanup {
		for _, cc := range completed {
			if err := strategy.Cleanup(ctx, cc); err != nil {
				o.Log.Warn("challenge cleanup failed",
					zap.String("domain", cc.Domain), zap.Error(err))
			}
		}
	}

	// Finalize with a fresh key pair.
	state = StateFinalizing
	certKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, o.fail(ctx, domain, state, fmt.Errorf("failed to generate certificate key: %w", err))
	}

	csr, err := x509.CreateCertificateRequest(rand.Reader, &x509.CertificateRequest{
		Subject:  pkix.Name{CommonName: domain},
		DNSNames: []string{domain},
	}, certKey)
	if err != nil {
		return nil, o.fail(ctx, domain, state, fmt.Errorf("failed to create CSR: %w", err))
	}

	if err := client.FinalizeOrder(ctx, order, csr); err != nil {
		return nil, o.fail(ctx, domain, state, err)
	}

	state = StateDownloading
	bundlePEM, err := client.GetCertificate(ctx, order)
	if err != nil {
		return nil, o.fail(ctx, domain, state, err)
	}

	bundle, err := certstore.ParseBundle(bundlePEM)
	if err != nil {
		return nil, o.fail(ctx, domain, state, err)
	}

	keyBytes, err := x509.MarshalECPrivateKey(certKey)
	if err != nil {
		return nil, o.fail(ctx, domain, state, fmt.Errorf("failed to encode certificate key: %w", err))
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyBytes})

	material := &certstore.Material{
		PrivateKey: keyPEM,
		Leaf:       bundle.Leaf,
		Chain:      bundle.Chain,
		Fullchain:  bundle.Fullchain(),
	}

	// Persist locally, then mirror to the remote host if one is configured.
	if err := certstore.Save(o.CertsRoot, domain, material); err != nil {
		return nil, o.fail(ctx, domain, state, err)
	}
	if rec.IsRemote() && rec.SSH.RemoteCertsDir != "" {
		if err := certstore.Upload(ctx, gw, rec.SSH.RemoteCertsDir, domain, material); err != nil {
			return nil, o.fail(ctx, domain, state, err)
		}
	}
	state = StateSaved

	issuedAt := o.clock()
	rec.IssuedAt = &issuedAt
	rec.Email = email
	if opts.WebRoot != "" {
		rec.WebRoot = opts.WebRoot
	}
	o.Registry.Upsert(rec)
	if err := o.Registry.Save(); err != nil {
		return nil, fmt.Errorf("certificate saved but registry update failed: %w", err)
	}

	info, err := certstore.ParseInfo(bundle.Leaf)
	if err != nil {
		return nil, fmt.Errorf("failed to parse issued certificate: %w", err)
	}

	certPath, _, _, _ := certstore.Paths(o.CertsRoot, domain)
	o.Log.Info("certificate issued",
		zap.String("domain", domain),
		zap.Time("notAfter", info.NotAfter))

	return &IssueResult{
		Domain:   domain,
		State:    state,
		NotAfter: info.NotAfter,
		CertPath: certPath,
		Remote:   rec.IsRemote(),
	}, nil
}

// satisfy runs one authorization round: pick the challenge, publish the
// proof, tell the CA, and poll until valid.
func (o *Orchestrator) satisfy(ctx context.Context, client acme.Client, strategy challenge.Strategy, authz acme.Authorization, webRoot string, opts Options) (*challenge.Context, error) {
	wanted := o.challengeType(opts)

	var chlg *acme.Challenge
	for i := range authz.Challenges {
		if authz.Challenges[i].Type == wanted {
			chlg = &authz.Challenges[i]
			break
		}
	}
	if chlg == nil {
		return nil, fmt.Errorf("%w: %s for %s", errdefs.ErrChallengeUnsupported, wanted, authz.Identifier)
	}

	keyAuth, err := client.KeyAuthorization(*chlg)
	if err != nil {
		return nil, err
	}

	cc := &challenge.Context{
		Domain:  authz.Identifier,
		Type:    chlg.Type,
		Token:   chlg.Token,
		KeyAuth: keyAuth,
		WebRoot: webRoot,
	}

	location, err := strategy.Prepare(ctx, cc)
	if err != nil {
		return nil, err
	}
	o.Log.Debug("challenge proof in place",
		zap.String("domain", cc.Domain),
		zap.String("location", location))

	if err := client.CompleteChallenge(ctx, *chlg); err != nil {
		return nil, err
	}

	waitOpts := o.WaitOptions
	if waitOpts.Retries == 0 {
		waitOpts = defaultWaitOptions
	}
	if err := client.WaitForValidStatus(ctx, *chlg, waitOpts); err != nil {
		return nil, err
	}

	return cc, nil
}

// strategy selects the challenge strategy for this invocation
func (o *Orchestrator) strategy(gw gateway.Gateway, rec *registry.DomainRecord, opts Options) (challenge.Strategy, error) {
	switch o.challengeType(opts) {
	case acme.ChallengeHTTP01:
		return &challenge.FileProof{
			GW:          gw,
			VerifyWrite: rec.IsRemote(),
			Log:         o.Log,
		}, nil
	case acme.ChallengeDNS01:
		return &challenge.DNSProof{
			Providers: o.DNSProviders,
			Provider:  opts.DNSProvider,
			Checker:   challenge.NewPropagationChecker(),
			Log:       o.Log,
		}, nil
	default:
		return nil, fmt.Errorf("%w: %s", errdefs.ErrChallengeUnsupported, opts.Challenge)
	}
}

func (o *Orchestrator) challengeType(opts Options) string {
	if opts.Challenge == "" {
		return acme.ChallengeHTTP01
	}
	return opts.Challenge
}

// resolveWebRoot picks the webroot for challenge proofs: caller override,
// then registry record, then the remote target's webroot, then the default.
func (o *Orchestrator) resolveWebRoot(rec *registry.DomainRecord, opts Options) string {
	if opts.WebRoot != "" {
		return opts.WebRoot
	}
	if rec.WebRoot != "" {
		return rec.WebRoot
	}
	if rec.IsRemote() && rec.SSH.RemoteWebRoot != "" {
		return rec.SSH.RemoteWebRoot
	}
	return DefaultWebRoot
}

// openGateway builds the execution gateway for a domain record. Remote
// records get a connected SSH-backed gateway the caller must Close.
func (o *Orchestrator) openGateway(ctx context.Context, rec *registry.DomainRecord) (gateway.Gateway, error) {
	if o.newGateway != nil {
		return o.newGateway(ctx, rec)
	}
	if !rec.IsRemote() {
		return gateway.NewLocal(), nil
	}

	t := rec.SSH
	auth := sshx.Auth{Password: t.Password}
	if t.PrivateKey != "" {
		if strings.Contains(t.PrivateKey, "-----BEGIN") {
			auth = sshx.Auth{Key: []byte(t.PrivateKey)}
		} else {
			auth = sshx.Auth{KeyPath: t.PrivateKey}
		}
	}

	client, err := sshx.NewClient(t.Host, t.Port, t.Username, auth)
	if err != nil {
		return nil, err
	}
	return gateway.NewRemote(ctx, client)
}

func (o *Orchestrator) acmeClient(email string) (acme.Client, error) {
	directory := o.DirectoryURL
	if directory == "" {
		directory = acme.DirectoryProduction
	}
	if o.newClient != nil {
		return o.newClient(email, directory)
	}
	return o.Session.Client(email, directory)
}

func (o *Orchestrator) fail(ctx context.Context, domain string, state State, err error) error {
	telemetry.RecordError(ctx, err)
	o.Log.Error("issuance failed",
		zap.String("domain", domain),
		zap.String("state", string(state)),
		zap.Error(err))
	return err
}

func (o *Orchestrator) clock() time.Time {
	if o.now != nil {
		return o.now()
	}
	return time.Now()
}

// isMissingCert reports whether an inspect failure just means no
// certificate has been issued yet.
func isMissingCert(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || errors.Is(err, errdefs.ErrNotFound)
}
