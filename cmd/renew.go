package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/certmate/certmate/pkg/orchestrator"
	"github.com/certmate/certmate/pkg/telemetry"
)

var (
	renewAll       bool
	renewForce     bool
	renewThreshold int
)

var renewCmd = &cobra.Command{
	Use:   "renew [domain]",
	Short: "Renew certificates close to expiry",
	Long: `Renew the certificate for one domain, or all registered domains with --all.
Certificates outside the expiry threshold are skipped unless --force is set.
Batch renewal never aborts on a single failure; it reports per-domain
outcomes at the end.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRenew,
}

func init() {
	rootCmd.AddCommand(renewCmd)

	renewCmd.Flags().BoolVar(&renewAll, "all", false, "renew every registered domain")
	renewCmd.Flags().BoolVar(&renewForce, "force", false, "renew regardless of remaining validity")
	renewCmd.Flags().IntVar(&renewThreshold, "threshold", 0, "days before expiry a certificate is due (default 30)")
}

func runRenew(cmd *cobra.Command, args []string) error {
	out := output()

	if !renewAll && len(args) == 0 {
		return fmt.Errorf("specify a domain or --all")
	}
	if renewAll && len(args) > 0 {
		return fmt.Errorf("--all and a domain argument are mutually exclusive")
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	orch, log, err := newOrchestrator(cfg)
	if err != nil {
		return fmt.Errorf("failed to load domain registry: %w", err)
	}
	defer log.Sync()

	for domain := range cfg.Domains {
		seedRecord(orch, cfg, domain)
	}

	ctx := context.Background()
	defer telemetry.Shutdown(ctx)

	opts := orchestrator.Options{
		Force:         renewForce,
		ThresholdDays: renewThreshold,
	}

	if !renewAll {
		return renewOne(ctx, orch, args[0], opts)
	}

	report := orch.RenewAll(ctx, opts)

	out.Section("Renewal Report")
	for _, r := range report.Renewed {
		out.Success("%s renewed (%s)", r.Domain, r.Reason)
	}
	for _, s := range report.Skipped {
		out.Info("%s not due, %d days left", s.Domain, s.DaysLeft)
	}
	for _, f := range report.Failed {
		out.Error("%s failed: %v", f.Domain, f.Err)
	}

	if report.HasFailures() {
		out.Error("%d of %d domains failed to renew",
			len(report.Failed), len(report.Renewed)+len(report.Skipped)+len(report.Failed))
		return report.Err()
	}
	return nil
}

func renewOne(ctx context.Context, orch *orchestrator.Orchestrator, domain string, opts orchestrator.Options) error {
	out := output()

	outcome, err := orch.Renew(ctx, domain, opts)
	if err != nil {
		out.Error("Renewal failed: %v", err)
		return err
	}

	if !outcome.Renewed {
		out.Info("%s not due for renewal, %d days left", domain, outcome.DaysLeft)
		return nil
	}

	out.Success("Certificate renewed for %s (%s)", domain, outcome.Reason)
	if outcome.Result != nil {
		out.KeyValue("Expires", outcome.Result.NotAfter.Format("2006-01-02"))
	}
	return nil
}
