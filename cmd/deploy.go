package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/certmate/certmate/pkg/nginx"
	"github.com/certmate/certmate/pkg/orchestrator"
	"github.com/certmate/certmate/pkg/telemetry"
)

var (
	deployUpstream   string
	deployWebRoot    string
	deployConfDir    string
	deployNoBackup   bool
	deployNoReload   bool
	deployNoRedirect bool
	deployHSTS       bool
)

var deployCmd = &cobra.Command{
	Use:   "deploy <domain>",
	Short: "Point the nginx virtual host at the issued certificate",
	Long: `Generate or transform the nginx virtual host for a domain so it terminates
TLS with the issued certificate. Existing plaintext configs are backed up and
rewritten; configs that already terminate TLS are never touched. Every change
is self-tested before reload, and a failed test restores the backup.`,
	Args: cobra.ExactArgs(1),
	RunE: runDeploy,
}

func init() {
	rootCmd.AddCommand(deployCmd)

	deployCmd.Flags().StringVar(&deployUpstream, "upstream", "", "host:port the secure block proxies to")
	deployCmd.Flags().StringVar(&deployWebRoot, "webroot", "", "webroot serving HTTP challenges")
	deployCmd.Flags().StringVar(&deployConfDir, "conf-dir", "", "nginx config directory")
	deployCmd.Flags().BoolVar(&deployNoBackup, "no-backup", false, "skip the timestamped backup")
	deployCmd.Flags().BoolVar(&deployNoReload, "no-reload", false, "skip reloading nginx")
	deployCmd.Flags().BoolVar(&deployNoRedirect, "no-redirect", false, "leave plaintext traffic unredirected")
	deployCmd.Flags().BoolVar(&deployHSTS, "hsts", false, "add an HSTS header to the secure block")
}

func runDeploy(cmd *cobra.Command, args []string) error {
	domain := args[0]
	out := output()

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	orch, log, err := newOrchestrator(cfg)
	if err != nil {
		return fmt.Errorf("failed to load domain registry: %w", err)
	}
	defer log.Sync()

	seedRecord(orch, cfg, domain)

	upstream := deployUpstream
	if upstream == "" {
		upstream = cfg.Domains[domain].Upstream
	}
	if upstream == "" {
		return fmt.Errorf("no upstream for %s: pass --upstream or set it in the config file", domain)
	}

	confDir := deployConfDir
	if confDir == "" {
		confDir = cfg.Nginx.ConfDir
	}

	ctx := context.Background()
	defer telemetry.Shutdown(ctx)

	out.Step("Deploying nginx config for %s...", domain)

	outcome, err := orch.Deploy(ctx, domain, orchestrator.DeployOptions{
		Upstream:      upstream,
		WebRoot:       deployWebRoot,
		ConfDir:       confDir,
		TestCmd:       cfg.Nginx.TestCmd,
		ReloadCmd:     cfg.Nginx.ReloadCmd,
		SkipBackup:    deployNoBackup,
		SkipReload:    deployNoReload,
		RetainBackups: cfg.Nginx.RetainBackups,
		NoRedirect:    deployNoRedirect,
		EnableHSTS:    deployHSTS,
	})
	if err != nil {
		if outcome != nil && outcome.Action == nginx.ActionRolledBack {
			out.Warning("Config test failed; previous config restored")
		}
		out.Error("Deployment failed: %v", err)
		return err
	}

	switch outcome.Action {
	case nginx.ActionCreated:
		out.Success("Created %s", outcome.ConfigPath)
	case nginx.ActionTransformed:
		out.Success("Transformed %s to terminate TLS", outcome.ConfigPath)
	case nginx.ActionSkipped:
		out.Info("Skipped %s (%s)", outcome.ConfigPath, outcome.Reason)
	}

	return nil
}
