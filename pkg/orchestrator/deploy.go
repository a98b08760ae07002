package orchestrator

import (
	"context"
	"path"

	"github.com/certmate/certmate/pkg/certstore"
	"github.com/certmate/certmate/pkg/nginx"
	"github.com/certmate/certmate/pkg/registry"
	"github.com/certmate/certmate/pkg/telemetry"
)

// DefaultNginxConfDir holds per-domain virtual host files on most distros.
const DefaultNginxConfDir = "/etc/nginx/conf.d"

// DeployOptions tunes one proxy config deployment.
type DeployOptions struct {
	Upstream string // host:port the secure block proxies to
	WebRoot  string

	ConfDir   string // overrides the resolved config directory
	TestCmd   string
	ReloadCmd string

	SkipBackup    bool
	SkipReload    bool
	RetainBackups int

	NoRedirect   bool // leave plaintext traffic unredirected
	DisableHTTP2 bool
	EnableHSTS   bool
}

// Deploy brings the domain's nginx virtual host in line with its issued
// certificate, on whichever host the domain is served from.
func (o *Orchestrator) Deploy(ctx context.Context, domain string, dopts DeployOptions) (*nginx.Outcome, error) {
	rec := o.Registry.Get(domain)
	if rec == nil {
		rec = &registry.DomainRecord{Domain: domain}
	}

	confDir := dopts.ConfDir
	if confDir == "" {
		confDir = DefaultNginxConfDir
		if rec.IsRemote() && rec.SSH.RemoteNginxConfDir != "" {
			confDir = rec.SSH.RemoteNginxConfDir
		}
	}

	ctx, span := telemetry.TraceDeploy(ctx, domain, path.Join(confDir, domain+".conf"))
	defer span.End()

	gw, err := o.openGateway(ctx, rec)
	if err != nil {
		return nil, err
	}
	defer gw.Close()

	// Point the proxy at wherever the certificate lives on the target host.
	var certPath, keyPath string
	if rec.IsRemote() && rec.SSH.RemoteCertsDir != "" {
		dir := path.Join(rec.SSH.RemoteCertsDir, domain)
		certPath = path.Join(dir, certstore.FullchainFile)
		keyPath = path.Join(dir, certstore.KeyFile)
	} else {
		_, keyPath, _, certPath = certstore.Paths(o.CertsRoot, domain)
	}

	webRoot := dopts.WebRoot
	if webRoot == "" {
		webRoot = o.resolveWebRoot(rec, Options{})
	}

	plan := nginx.Plan{
		Domain:       domain,
		Upstream:     dopts.Upstream,
		WebRoot:      webRoot,
		CertPath:     certPath,
		KeyPath:      keyPath,
		RedirectHTTP: !dopts.NoRedirect,
		EnableHTTP2:  !dopts.DisableHTTP2,
		EnableHSTS:   dopts.EnableHSTS,
	}

	engine := &nginx.Engine{
		GW:        gw,
		ConfDir:   confDir,
		TestCmd:   dopts.TestCmd,
		ReloadCmd: dopts.ReloadCmd,
		Log:       o.Log,
	}

	return engine.Deploy(ctx, plan, nginx.Options{
		SkipBackup:    dopts.SkipBackup,
		SkipReload:    dopts.SkipReload,
		RetainBackups: dopts.RetainBackups,
	})
}
