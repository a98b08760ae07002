package acme

import (
	"context"
	"fmt"
	"net/http"
	"time"

	legoacme "github.com/go-acme/lego/v4/acme"
	"github.com/go-acme/lego/v4/acme/api"

	"github.com/certmate/certmate/pkg/errdefs"
)

const userAgent = "certmate"

// legoClient implements Client over lego's low-level ACME core.
type legoClient struct {
	core *api.Core
}

// newLegoClient registers (or recovers) the account for the given key and
// returns a client bound to it. Repeated newAccount calls with the same key
// return the existing account, so this is safe to run on every invocation.
func newLegoClient(directoryURL string, account *Account) (*legoClient, error) {
	httpClient := &http.Client{Timeout: 2 * time.Minute}

	core, err := api.New(httpClient, userAgent, directoryURL, "", account.Key)
	if err != nil {
		return nil, fmt.Errorf("failed to create ACME client: %w", err)
	}

	acct, err := core.Accounts.New(legoacme.Account{
		TermsOfServiceAgreed: true,
		Contact:              []string{"mailto:" + account.Email},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to register ACME account for %s: %w", account.Email, err)
	}
	account.Registration = acct.Location

	return &legoClient{core: core}, nil
}

// CreateOrder opens an order for the given DNS identifiers
func (c *legoClient) CreateOrder(ctx context.Context, identifiers []string) (*Order, error) {
	order, err := c.core.Orders.New(identifiers)
	if err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	return &Order{
		URL:               order.Location,
		Status:            order.Status,
		FinalizeURL:       order.Finalize,
		CertificateURL:    order.Certificate,
		AuthorizationURLs: order.Authorizations,
	}, nil
}

// GetAuthorizations fetches all authorizations attached to an order
func (c *legoClient) GetAuthorizations(ctx context.Context, order *Order) ([]Authorization, error) {
	authorizations := make([]Authorization, 0, len(order.AuthorizationURLs))

	for _, authzURL := range order.AuthorizationURLs {
		authz, err := c.core.Authorizations.Get(authzURL)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch authorization: %w", err)
		}

		a := Authorization{
			URL:        authzURL,
			Identifier: authz.Identifier.Value,
			Status:     authz.Status,
		}
		for _, chlg := range authz.Challenges {
			a.Challenges = append(a.Challenges, Challenge{
				Type:   chlg.Type,
				URL:    chlg.URL,
				Status: chlg.Status,
				Token:  chlg.Token,
			})
		}

		authorizations = append(authorizations, a)
	}

	return authorizations, nil
}

// KeyAuthorization computes the key authorization for a challenge token
func (c *legoClient) KeyAuthorization(challenge Challenge) (string, error) {
	keyAuth, err := c.core.GetKeyAuthorization(challenge.Token)
	if err != nil {
		return "", fmt.Errorf("failed to compute key authorization: %w", err)
	}
	return keyAuth, nil
}

// CompleteChallenge tells the CA the proof is in place
func (c *legoClient) CompleteChallenge(ctx context.Context, challenge Challenge) error {
	if _, err := c.core.Challenges.New(challenge.URL); err != nil {
		return fmt.Errorf("failed to signal challenge readiness: %w", err)
	}
	return nil
}

// WaitForValidStatus polls the challenge with the given bounds
func (c *legoClient) WaitForValidStatus(ctx context.Context, challenge Challenge, opts WaitOptions) error {
	deadline := time.Now().Add(opts.Timeout)

	for attempt := 1; attempt <= opts.Retries; attempt++ {
		chlg, err := c.core.Challenges.Get(challenge.URL)
		if err != nil {
			return fmt.Errorf("failed to poll challenge: %w", err)
		}

		switch chlg.Status {
		case legoacme.StatusValid:
			return nil
		case legoacme.StatusInvalid:
			if chlg.Error != nil {
				return fmt.Errorf("challenge rejected: %s", chlg.Error.Detail)
			}
			return fmt.Errorf("challenge rejected by CA")
		}

		if time.Now().After(deadline) {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(opts.Interval):
		}
	}

	return fmt.Errorf("%w: challenge not valid after %d attempts", errdefs.ErrValidationTimeout, opts.Retries)
}

// FinalizeOrder submits the CSR and waits for the order to become valid
func (c *legoClient) FinalizeOrder(ctx context.Context, order *Order, csr []byte) error {
	updated, err := c.core.Orders.UpdateForCSR(order.FinalizeURL, csr)
	if err != nil {
		return fmt.Errorf("failed to finalize order: %w", err)
	}
	order.Status = updated.Status
	order.CertificateURL = updated.Certificate

	// Most CAs finalize synchronously; poll briefly for the ones that don't.
	for attempt := 0; attempt < 10 && order.Status != legoacme.StatusValid; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}

		current, err := c.core.Orders.Get(order.URL)
		if err != nil {
			return fmt.Errorf("failed to poll order: %w", err)
		}
		order.Status = current.Status
		order.CertificateURL = current.Certificate

		if current.Status == legoacme.StatusInvalid {
			return fmt.Errorf("order became invalid during finalization")
		}
	}

	if order.Status != legoacme.StatusValid {
		return fmt.Errorf("order did not become valid after finalization")
	}
	return nil
}

// GetCertificate downloads the issued PEM bundle
func (c *legoClient) GetCertificate(ctx context.Context, order *Order) ([]byte, error) {
	if order.CertificateURL == "" {
		return nil, fmt.Errorf("order has no certificate URL")
	}

	cert, _, err := c.core.Certificates.Get(order.CertificateURL, true)
	if err != nil {
		return nil, fmt.Errorf("failed to download certificate: %w", err)
	}
	return cert, nil
}
