package orchestrator

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/certmate/certmate/pkg/acme"
	"github.com/certmate/certmate/pkg/certstore"
	"github.com/certmate/certmate/pkg/errdefs"
	"github.com/certmate/certmate/pkg/gateway"
	"github.com/certmate/certmate/pkg/registry"
)

// fakeACME satisfies acme.Client without any network traffic.
type fakeACME struct {
	bundle      []byte
	failDomains map[string]error // CreateOrder failure per identifier
	waitErr     error
	challenge   string // challenge type offered, default http-01

	orders    int
	completed int
	finalized bool
}

func (f *fakeACME) CreateOrder(ctx context.Context, identifiers []string) (*acme.Order, error) {
	if err, ok := f.failDomains[identifiers[0]]; ok {
		return nil, err
	}
	f.orders++
	return &acme.Order{
		URL:               "https://ca.test/order/1",
		Status:            "pending",
		FinalizeURL:       "https://ca.test/finalize/1",
		AuthorizationURLs: []string{"https://ca.test/authz/1"},
	}, nil
}

func (f *fakeACME) GetAuthorizations(ctx context.Context, order *acme.Order) ([]acme.Authorization, error) {
	chlgType := f.challenge
	if chlgType == "" {
		chlgType = acme.ChallengeHTTP01
	}
	return []acme.Authorization{{
		URL:        order.AuthorizationURLs[0],
		Identifier: "example.com",
		Status:     "pending",
		Challenges: []acme.Challenge{{
			Type:   chlgType,
			URL:    "https://ca.test/chlg/1",
			Status: "pending",
			Token:  "tok123",
		}},
	}}, nil
}

func (f *fakeACME) KeyAuthorization(chlg acme.Challenge) (string, error) {
	return chlg.Token + ".thumbprint", nil
}

func (f *fakeACME) CompleteChallenge(ctx context.Context, chlg acme.Challenge) error {
	f.completed++
	return nil
}

func (f *fakeACME) WaitForValidStatus(ctx context.Context, chlg acme.Challenge, opts acme.WaitOptions) error {
	return f.waitErr
}

func (f *fakeACME) FinalizeOrder(ctx context.Context, order *acme.Order, csr []byte) error {
	f.finalized = true
	order.Status = "valid"
	order.CertificateURL = "https://ca.test/cert/1"
	return nil
}

func (f *fakeACME) GetCertificate(ctx context.Context, order *acme.Order) ([]byte, error) {
	return f.bundle, nil
}

// testCertPEM builds a self-signed certificate for a domain
func testCertPEM(t *testing.T, domain string, notAfter time.Time) []byte {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: domain},
		DNSNames:     []string{domain},
		NotBefore:    notAfter.Add(-90 * 24 * time.Hour),
		NotAfter:     notAfter,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)

	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
}

func testBundle(t *testing.T, domain string, notAfter time.Time) []byte {
	t.Helper()
	leaf := testCertPEM(t, domain, notAfter)
	chain := testCertPEM(t, "intermediate.ca", notAfter)
	return certstore.SerializeBundle(leaf, chain)
}

func testOrchestrator(t *testing.T, client acme.Client) *Orchestrator {
	t.Helper()

	reg, err := registry.Load(filepath.Join(t.TempDir(), "domains.json"))
	require.NoError(t, err)

	return &Orchestrator{
		Registry:  reg,
		CertsRoot: t.TempDir(),
		Log:       zap.NewNop(),
		WaitOptions: acme.WaitOptions{
			Retries:  2,
			Interval: time.Millisecond,
			Timeout:  time.Second,
		},
		newClient: func(email, directoryURL string) (acme.Client, error) {
			return client, nil
		},
		newGateway: func(ctx context.Context, rec *registry.DomainRecord) (gateway.Gateway, error) {
			return gateway.NewLocal(), nil
		},
	}
}

func TestIssueHappyPath(t *testing.T) {
	ca := &fakeACME{bundle: testBundle(t, "example.com", time.Now().Add(90*24*time.Hour))}
	o := testOrchestrator(t, ca)
	webRoot := t.TempDir()

	result, err := o.Issue(context.Background(), "example.com", Options{
		Email:   "ops@example.com",
		WebRoot: webRoot,
	})
	require.NoError(t, err)

	assert.Equal(t, StateSaved, result.State)
	assert.Equal(t, 1, ca.orders)
	assert.Equal(t, 1, ca.completed)
	assert.True(t, ca.finalized)

	// All four artifacts on disk.
	dir := filepath.Join(o.CertsRoot, "example.com")
	for _, name := range []string{"cert.pem", "cert.key", "chain.pem", "fullchain.pem"} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}

	keyInfo, err := os.Stat(filepath.Join(dir, "cert.key"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), keyInfo.Mode().Perm())

	// Proof cleaned up after success.
	proof := filepath.Join(webRoot, ".well-known", "acme-challenge", "tok123")
	_, err = os.Stat(proof)
	assert.True(t, os.IsNotExist(err))

	// Registry updated.
	rec := o.Registry.Get("example.com")
	require.NotNil(t, rec)
	assert.Equal(t, "ops@example.com", rec.Email)
	require.NotNil(t, rec.IssuedAt)
}

func TestIssueSkipCleanupKeepsProof(t *testing.T) {
	ca := &fakeACME{bundle: testBundle(t, "example.com", time.Now().Add(time.Hour))}
	o := testOrchestrator(t, ca)
	webRoot := t.TempDir()

	_, err := o.Issue(context.Background(), "example.com", Options{
		Email:       "ops@example.com",
		WebRoot:     webRoot,
		SkipCleanup: true,
	})
	require.NoError(t, err)

	proof := filepath.Join(webRoot, ".well-known", "acme-challenge", "tok123")
	data, err := os.ReadFile(proof)
	require.NoError(t, err)
	assert.Equal(t, "tok123.thumbprint", string(data))
}

func TestIssueMissingEmail(t *testing.T) {
	o := testOrchestrator(t, &fakeACME{})

	_, err := o.Issue(context.Background(), "example.com", Options{})
	assert.ErrorIs(t, err, errdefs.ErrMissingEmail)
}

func TestIssueChallengeUnsupported(t *testing.T) {
	// The CA only offers dns-01 while http-01 is requested.
	ca := &fakeACME{challenge: acme.ChallengeDNS01}
	o := testOrchestrator(t, ca)

	_, err := o.Issue(context.Background(), "example.com", Options{
		Email:   "ops@example.com",
		WebRoot: t.TempDir(),
	})
	assert.ErrorIs(t, err, errdefs.ErrChallengeUnsupported)
}

func TestIssueValidationFailureLeavesProof(t *testing.T) {
	ca := &fakeACME{
		waitErr: fmt.Errorf("%w: challenge not valid after 15 attempts", errdefs.ErrValidationTimeout),
	}
	o := testOrchestrator(t, ca)
	webRoot := t.TempDir()

	_, err := o.Issue(context.Background(), "example.com", Options{
		Email:   "ops@example.com",
		WebRoot: webRoot,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, errdefs.ErrValidationTimeout)

	// Proof left in place for postmortem.
	proof := filepath.Join(webRoot, ".well-known", "acme-challenge", "tok123")
	_, statErr := os.Stat(proof)
	assert.NoError(t, statErr)

	assert.False(t, ca.finalized, "a failed validation must not finalize")
}

func TestIssueMalformedBundle(t *testing.T) {
	ca := &fakeACME{bundle: []byte("this is not PEM")}
	o := testOrchestrator(t, ca)

	_, err := o.Issue(context.Background(), "example.com", Options{
		Email:   "ops@example.com",
		WebRoot: t.TempDir(),
	})
	assert.ErrorIs(t, err, errdefs.ErrMalformedBundle)

	// No partial artifacts.
	_, statErr := os.Stat(filepath.Join(o.CertsRoot, "example.com"))
	assert.True(t, os.IsNotExist(statErr))
}

func seedCert(t *testing.T, o *Orchestrator, domain string, notAfter time.Time) {
	t.Helper()

	leaf := testCertPEM(t, domain, notAfter)
	require.NoError(t, certstore.Save(o.CertsRoot, domain, &certstore.Material{
		PrivateKey: []byte("key"),
		Leaf:       leaf,
		Chain:      nil,
		Fullchain:  leaf,
	}))
}

func TestRenewNotDue(t *testing.T) {
	ca := &fakeACME{}
	o := testOrchestrator(t, ca)
	seedCert(t, o, "example.com", time.Now().Add(60*24*time.Hour))

	outcome, err := o.Renew(context.Background(), "example.com", Options{Email: "ops@example.com"})
	require.NoError(t, err)

	assert.False(t, outcome.Renewed)
	assert.Equal(t, "not due", outcome.Reason)
	assert.InDelta(t, 59, outcome.DaysLeft, 1)
	assert.Equal(t, 0, ca.orders, "not-due renewal must not touch the CA")
}

func TestRenewDue(t *testing.T) {
	ca := &fakeACME{bundle: testBundle(t, "example.com", time.Now().Add(90*24*time.Hour))}
	o := testOrchestrator(t, ca)
	seedCert(t, o, "example.com", time.Now().Add(10*24*time.Hour))

	outcome, err := o.Renew(context.Background(), "example.com", Options{
		Email:   "ops@example.com",
		WebRoot: t.TempDir(),
	})
	require.NoError(t, err)

	assert.True(t, outcome.Renewed)
	assert.Equal(t, "expiring", outcome.Reason)
	assert.Equal(t, 1, ca.orders)
}

func TestRenewForced(t *testing.T) {
	ca := &fakeACME{bundle: testBundle(t, "example.com", time.Now().Add(90*24*time.Hour))}
	o := testOrchestrator(t, ca)
	seedCert(t, o, "example.com", time.Now().Add(60*24*time.Hour))

	outcome, err := o.Renew(context.Background(), "example.com", Options{
		Email:   "ops@example.com",
		WebRoot: t.TempDir(),
		Force:   true,
	})
	require.NoError(t, err)

	assert.True(t, outcome.Renewed)
	assert.Equal(t, "forced", outcome.Reason)
	assert.Equal(t, 1, ca.orders)
}

func TestRenewMissingCertIssues(t *testing.T) {
	ca := &fakeACME{bundle: testBundle(t, "example.com", time.Now().Add(90*24*time.Hour))}
	o := testOrchestrator(t, ca)

	outcome, err := o.Renew(context.Background(), "example.com", Options{
		Email:   "ops@example.com",
		WebRoot: t.TempDir(),
	})
	require.NoError(t, err)

	assert.True(t, outcome.Renewed)
	assert.Equal(t, "no previous certificate", outcome.Reason)
}

func TestRenewAllContinuesPastFailure(t *testing.T) {
	ca := &fakeACME{
		bundle: testBundle(t, "example.com", time.Now().Add(90*24*time.Hour)),
		failDomains: map[string]error{
			"b.example.com": fmt.Errorf("%w: failed to connect to 203.0.113.7:22", errdefs.ErrTransport),
		},
	}
	o := testOrchestrator(t, ca)

	// a and c hold fresh certificates; b has none and its issuance fails
	// with a transport error.
	for _, domain := range []string{"a.example.com", "b.example.com", "c.example.com"} {
		o.Registry.Upsert(&registry.DomainRecord{Domain: domain, Email: "ops@example.com"})
	}
	seedCert(t, o, "a.example.com", time.Now().Add(60*24*time.Hour))
	seedCert(t, o, "c.example.com", time.Now().Add(60*24*time.Hour))

	report := o.RenewAll(context.Background(), Options{})

	require.Len(t, report.Skipped, 2)
	assert.Equal(t, "a.example.com", report.Skipped[0].Domain)
	assert.Equal(t, "c.example.com", report.Skipped[1].Domain)

	require.Len(t, report.Failed, 1)
	assert.Equal(t, "b.example.com", report.Failed[0].Domain)
	assert.True(t, errdefs.IsTransport(report.Failed[0].Err))

	assert.True(t, report.HasFailures())
	assert.Empty(t, report.Renewed)

	err := report.Err()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "b.example.com")

	var merr *errdefs.MultiError
	require.ErrorAs(t, err, &merr)
	assert.Len(t, merr.Errors, 1)
}

func TestReportErrNilWithoutFailures(t *testing.T) {
	report := &Report{Skipped: []*RenewOutcome{{Domain: "a.example.com"}}}
	assert.NoError(t, report.Err())
}

func TestIsMissingCert(t *testing.T) {
	_, err := certstore.Inspect(t.TempDir(), "example.com")
	require.Error(t, err)
	assert.True(t, isMissingCert(err))

	assert.True(t, isMissingCert(fmt.Errorf("%w: /nope", errdefs.ErrNotFound)))
	assert.False(t, isMissingCert(fmt.Errorf("no such file or directory")))
	assert.False(t, isMissingCert(nil))
}
