// Package config loads and validates the certmate.yaml configuration file.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the main configuration structure
type Config struct {
	Email         string                  `yaml:"email,omitempty"` // Default contact for all domains
	CertsRoot     string                  `yaml:"certsRoot,omitempty"`
	RegistryPath  string                  `yaml:"registryPath,omitempty"`
	AccountDir    string                  `yaml:"accountDir,omitempty"`
	Staging       bool                    `yaml:"staging,omitempty"` // Use the staging directory endpoint
	ThresholdDays int                     `yaml:"thresholdDays,omitempty"`
	Nginx         NginxConfig             `yaml:"nginx,omitempty"`
	Domains       map[string]DomainConfig `yaml:"domains,omitempty"`
}

// NginxConfig tunes the proxy configuration engine
type NginxConfig struct {
	ConfDir       string `yaml:"confDir,omitempty"`
	TestCmd       string `yaml:"testCmd,omitempty"`
	ReloadCmd     string `yaml:"reloadCmd,omitempty"`
	RetainBackups int    `yaml:"retainBackups,omitempty"`
}

// DomainConfig is the per-domain section of the config file
type DomainConfig struct {
	Email    string     `yaml:"email,omitempty"` // Overrides the top-level contact
	WebRoot  string     `yaml:"webRoot,omitempty"`
	Upstream string     `yaml:"upstream,omitempty"` // host:port the secure block proxies to
	SSH      *SSHConfig `yaml:"ssh,omitempty"`      // Present means the domain is served remotely
}

// SSHConfig describes how to reach a remote host
type SSHConfig struct {
	Host               string `yaml:"host"`
	Port               int    `yaml:"port,omitempty"`
	Username           string `yaml:"username"`
	PrivateKey         string `yaml:"privateKey,omitempty"` // Key file path or inline PEM
	Password           string `yaml:"password,omitempty"`
	RemoteWebRoot      string `yaml:"remoteWebRoot,omitempty"`
	RemoteNginxConfDir string `yaml:"remoteNginxConfDir,omitempty"`
	RemoteCertsDir     string `yaml:"remoteCertsDir,omitempty"`
}

// Defaults applied when the config file leaves fields unset.
const (
	DefaultCertsRoot    = "/etc/certmate/certs"
	DefaultRegistryPath = "/etc/certmate/domains.json"
	DefaultAccountDir   = "/etc/certmate/accounts"
)

// Default returns a configuration with only the defaults applied, for runs
// without a config file
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// LoadConfig reads, expands and validates a configuration file. Environment
// variables in the file body (${VAR} syntax) are expanded before parsing so
// credentials can stay out of the file itself.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.CertsRoot == "" {
		c.CertsRoot = DefaultCertsRoot
	}
	if c.RegistryPath == "" {
		c.RegistryPath = DefaultRegistryPath
	}
	if c.AccountDir == "" {
		c.AccountDir = DefaultAccountDir
	}
}

// DomainEmail resolves the contact for a domain, falling back to the
// top-level contact
func (c *Config) DomainEmail(domain string) string {
	if d, ok := c.Domains[domain]; ok && d.Email != "" {
		return d.Email
	}
	return c.Email
}
