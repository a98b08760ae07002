package config

import (
	"fmt"
	"net"
	"strings"
)

// Validate checks the configuration for mistakes worth failing fast on
func Validate(cfg *Config) error {
	if cfg.ThresholdDays < 0 {
		return fmt.Errorf("thresholdDays must not be negative")
	}

	for domain, d := range cfg.Domains {
		if err := validateDomain(domain, &d); err != nil {
			return err
		}
	}

	return nil
}

func validateDomain(domain string, d *DomainConfig) error {
	if strings.TrimSpace(domain) == "" {
		return fmt.Errorf("domain name must not be empty")
	}
	if strings.Contains(domain, "://") || strings.Contains(domain, "/") {
		return fmt.Errorf("domain %s: expected a bare hostname, not a URL", domain)
	}

	if d.Upstream != "" {
		if _, _, err := net.SplitHostPort(d.Upstream); err != nil {
			return fmt.Errorf("domain %s: upstream must be host:port: %w", domain, err)
		}
	}

	if d.SSH != nil {
		if err := validateSSH(domain, d.SSH); err != nil {
			return err
		}
	}

	return nil
}

func validateSSH(domain string, s *SSHConfig) error {
	if s.Host == "" {
		return fmt.Errorf("domain %s: ssh.host is required", domain)
	}
	if s.Username == "" {
		return fmt.Errorf("domain %s: ssh.username is required", domain)
	}
	if s.PrivateKey == "" && s.Password == "" {
		return fmt.Errorf("domain %s: ssh needs privateKey or password", domain)
	}
	if s.PrivateKey != "" && s.Password != "" {
		return fmt.Errorf("domain %s: ssh.privateKey and ssh.password are mutually exclusive", domain)
	}
	if s.Port < 0 || s.Port > 65535 {
		return fmt.Errorf("domain %s: ssh.port %d is out of range", domain, s.Port)
	}
	return nil
}
