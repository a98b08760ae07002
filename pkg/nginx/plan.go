// Package nginx generates, inspects, transforms, and redeploys nginx
// virtual-host configuration through the execution gateway, so the same
// engine manages local and remote hosts.
package nginx

// Location is one custom location block carried into generated config.
type Location struct {
	Path       string
	Directives []string
}

// Plan is everything one deployment needs. It is recomputed from the domain
// record and certificate paths on every deploy and never persisted.
type Plan struct {
	Domain   string
	Upstream string // host:port the secure block proxies to
	WebRoot  string // serves the ACME challenge path

	CertPath string // fullchain the server presents
	KeyPath  string

	Locations []Location

	RedirectHTTP bool // plaintext block redirects to HTTPS
	EnableHTTP2  bool
	EnableHSTS   bool
}
