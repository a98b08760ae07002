package acme

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Account pairs a contact email with its persistent account key.
type Account struct {
	Email        string
	Key          crypto.PrivateKey
	Registration string // Account URL at the CA, set after registration
}

// Session caches ACME clients for the duration of one run, keyed by contact
// email and directory endpoint, so repeated operations against the same CA
// reuse one registered account instead of re-registering per domain. It is
// owned by one orchestrator instance and never shared across runs.
type Session struct {
	accountDir string
	mu         sync.Mutex
	clients    map[string]Client
}

// NewSession creates a session storing account keys under accountDir
func NewSession(accountDir string) *Session {
	return &Session{
		accountDir: accountDir,
		clients:    make(map[string]Client),
	}
}

// Client returns a registered client for the email/directory pair, creating
// and caching it on first use.
func (s *Session) Client(email, directoryURL string) (Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := email + "|" + directoryURL
	if client, ok := s.clients[key]; ok {
		return client, nil
	}

	accountKey, err := s.loadOrCreateAccountKey(email, directoryURL)
	if err != nil {
		return nil, err
	}

	client, err := newLegoClient(directoryURL, &Account{Email: email, Key: accountKey})
	if err != nil {
		return nil, err
	}

	s.clients[key] = client
	return client, nil
}

// loadOrCreateAccountKey loads the EC account key for an email/environment
// pair, generating and persisting a fresh one on first use.
func (s *Session) loadOrCreateAccountKey(email, directoryURL string) (crypto.PrivateKey, error) {
	keyPath := filepath.Join(s.accountDir, accountKeyName(email, directoryURL))

	if data, err := os.ReadFile(keyPath); err == nil {
		block, _ := pem.Decode(data)
		if block != nil {
			if key, err := x509.ParseECPrivateKey(block.Bytes); err == nil {
				return key, nil
			}
		}
		return nil, fmt.Errorf("account key %s is corrupt; remove it to re-register", keyPath)
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate account key: %w", err)
	}

	keyBytes, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to encode account key: %w", err)
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyBytes})

	if err := os.MkdirAll(s.accountDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create account directory: %w", err)
	}
	if err := os.WriteFile(keyPath, keyPEM, 0600); err != nil {
		return nil, fmt.Errorf("failed to save account key: %w", err)
	}

	return key, nil
}

// accountKeyName derives a filesystem-safe key file name
func accountKeyName(email, directoryURL string) string {
	env := "production"
	if strings.Contains(directoryURL, "staging") {
		env = "staging"
	}
	safe := strings.NewReplacer("@", "_at_", "/", "_").Replace(email)
	return fmt.Sprintf("%s.%s.key", safe, env)
}
