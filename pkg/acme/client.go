// Package acme consumes an ACME CA through an opaque ordering client.
// The wire protocol (JWS signing, nonces, HTTP transport) lives in the
// lego-backed implementation; the orchestrator only sees this interface.
package acme

import (
	"context"
	"time"
)

// Well-known directory endpoints.
const (
	DirectoryProduction = "https://acme-v02.api.letsencrypt.org/directory"
	DirectoryStaging    = "https://acme-staging-v02.api.letsencrypt.org/directory"
)

// Challenge type identifiers as they appear in authorizations.
const (
	ChallengeHTTP01 = "http-01"
	ChallengeDNS01  = "dns-01"
)

// Order tracks one certificate order at the CA
type Order struct {
	URL               string
	Status            string
	FinalizeURL       string
	CertificateURL    string
	AuthorizationURLs []string
}

// Challenge is one proof option offered by an authorization
type Challenge struct {
	Type   string
	URL    string
	Status string
	Token  string
}

// Authorization is the CA's demand for proof of control over one identifier
type Authorization struct {
	URL        string
	Identifier string
	Status     string
	Challenges []Challenge
}

// WaitOptions bounds the polling loop for challenge validation
type WaitOptions struct {
	Retries  int
	Interval time.Duration
	Timeout  time.Duration
}

// Client is the ordering surface of an ACME CA
type Client interface {
	// CreateOrder opens an order for the given DNS identifiers
	CreateOrder(ctx context.Context, identifiers []string) (*Order, error)

	// GetAuthorizations fetches all authorizations attached to an order
	GetAuthorizations(ctx context.Context, order *Order) ([]Authorization, error)

	// KeyAuthorization computes the key authorization for a challenge token
	KeyAuthorization(challenge Challenge) (string, error)

	// CompleteChallenge tells the CA the proof is in place
	CompleteChallenge(ctx context.Context, challenge Challenge) error

	// WaitForValidStatus polls the challenge until it turns valid, the
	// bounds are exceeded, or the CA reports it invalid
	WaitForValidStatus(ctx context.Context, challenge Challenge, opts WaitOptions) error

	// FinalizeOrder submits the CSR (DER) and waits for the order to become valid
	FinalizeOrder(ctx context.Context, order *Order, csr []byte) error

	// GetCertificate downloads the issued PEM bundle
	GetCertificate(ctx context.Context, order *Order) ([]byte, error)
}
