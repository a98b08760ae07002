// Package registry persists the set of managed domains as a JSON map on the
// local filesystem. One entry per domain; entries are created on first
// registration, updated on each successful issuance, and never deleted
// automatically.
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// RemoteTarget describes a remote host a domain is served from. It is
// loaded once per operation and not mutated afterwards.
type RemoteTarget struct {
	Host               string `json:"host"`
	Port               int    `json:"port,omitempty"`
	Username           string `json:"username"`
	PrivateKey         string `json:"privateKey,omitempty"` // Path to key file or inline PEM (mutually exclusive with password)
	Password           string `json:"password,omitempty"`
	RemoteWebRoot      string `json:"remoteWebRoot,omitempty"`
	RemoteNginxConfDir string `json:"remoteNginxConfDir,omitempty"`
	RemoteCertsDir     string `json:"remoteCertsDir,omitempty"`
}

// DomainRecord is the registry entry for one domain
type DomainRecord struct {
	Domain   string        `json:"-"`
	IssuedAt *time.Time    `json:"issuedAt,omitempty"`
	Email    string        `json:"email"`
	WebRoot  string        `json:"webRoot,omitempty"`
	SSH      *RemoteTarget `json:"ssh,omitempty"`
}

// IsRemote reports whether operations for this domain run on a remote host
func (r *DomainRecord) IsRemote() bool {
	return r.SSH != nil
}

// Registry manages the domain records file
type Registry struct {
	path    string
	records map[string]*DomainRecord
}

// Load reads the registry file, returning an empty registry if it does not
// exist yet
func Load(path string) (*Registry, error) {
	reg := &Registry{
		path:    path,
		records: make(map[string]*DomainRecord),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return reg, nil
		}
		return nil, fmt.Errorf("failed to read domain registry: %w", err)
	}

	if err := json.Unmarshal(data, &reg.records); err != nil {
		return nil, fmt.Errorf("failed to parse domain registry: %w", err)
	}

	for domain, rec := range reg.records {
		rec.Domain = domain
	}

	return reg, nil
}

// Save writes the registry back to disk
func (r *Registry) Save() error {
	if err := os.MkdirAll(filepath.Dir(r.path), 0755); err != nil {
		return fmt.Errorf("failed to create registry directory: %w", err)
	}

	data, err := json.MarshalIndent(r.records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize domain registry: %w", err)
	}

	if err := os.WriteFile(r.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write domain registry: %w", err)
	}
	return nil
}

// Get returns the record for a domain, or nil if it is not registered
func (r *Registry) Get(domain string) *DomainRecord {
	return r.records[domain]
}

// Upsert adds or replaces the record for a domain
func (r *Registry) Upsert(rec *DomainRecord) {
	r.records[rec.Domain] = rec
}

// Domains returns all registered domain names in stable order
func (r *Registry) Domains() []string {
	domains := make([]string, 0, len(r.records))
	for d := range r.records {
		domains = append(domains, d)
	}
	sort.Strings(domains)
	return domains
}

// Len returns the number of registered domains
func (r *Registry) Len() int {
	return len(r.records)
}
