package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/certmate/certmate/pkg/orchestrator"
	"github.com/certmate/certmate/pkg/telemetry"
)

var (
	issueEmail       string
	issueWebRoot     string
	issueChallenge   string
	issueDNSProvider string
	issueSkipCleanup bool
)

var issueCmd = &cobra.Command{
	Use:   "issue <domain>",
	Short: "Obtain a certificate for a domain",
	Long: `Obtain a certificate for a domain from the ACME CA and store it under the
certificate root. Domains configured with an SSH block are validated and
deployed on the remote host.`,
	Args: cobra.ExactArgs(1),
	RunE: runIssue,
}

func init() {
	rootCmd.AddCommand(issueCmd)

	issueCmd.Flags().StringVar(&issueEmail, "email", "", "contact email for the ACME account")
	issueCmd.Flags().StringVar(&issueWebRoot, "webroot", "", "webroot serving HTTP challenges")
	issueCmd.Flags().StringVar(&issueChallenge, "challenge", "http-01", "challenge type (http-01, dns-01)")
	issueCmd.Flags().StringVar(&issueDNSProvider, "dns-provider", "", "DNS provider for dns-01 challenges")
	issueCmd.Flags().BoolVar(&issueSkipCleanup, "skip-cleanup", false, "leave challenge proofs in place")
}

func runIssue(cmd *cobra.Command, args []string) error {
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

	if issueEmail == "" {
		issueEmail = cfg.DomainEmail(domain)
	}

	ctx := context.Background()
	defer telemetry.Shutdown(ctx)

	out.Step("Issuing certificate for %s...", domain)

	result, err := orch.Issue(ctx, domain, orchestrator.Options{
		Email:       issueEmail,
		WebRoot:     issueWebRoot,
		Challenge:   issueChallenge,
		DNSProvider: issueDNSProvider,
		SkipCleanup: issueSkipCleanup,
	})
	if err != nil {
		out.Error("Issuance failed: %v", err)
		return err
	}

	out.Success("Certificate issued for %s", domain)
	out.KeyValue("Expires", result.NotAfter.Format("2006-01-02"))
	out.KeyValue("Certificate", result.CertPath)
	if result.Remote {
		out.Info("Certificate also uploaded to the remote host")
	}

	return nil
}
