package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/certmate/certmate/pkg/certstore"
	"github.com/certmate/certmate/pkg/orchestrator"
	"github.com/certmate/certmate/pkg/registry"
)

var statusCmd = &cobra.Command{
	Use:   "status [domain]",
	Short: "Show certificate expiry for registered domains",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	out := output()

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	reg, err := registry.Load(cfg.RegistryPath)
	if err != nil {
		return fmt.Errorf("failed to load domain registry: %w", err)
	}

	domains := reg.Domains()
	if len(args) == 1 {
		domains = args
	}
	if len(domains) == 0 {
		out.Info("No domains registered yet.")
		return nil
	}

	threshold := cfg.ThresholdDays
	if threshold == 0 {
		threshold = orchestrator.DefaultThresholdDays
	}

	now := time.Now()
	var rows [][]string
	for _, domain := range domains {
		info, err := certstore.Inspect(cfg.CertsRoot, domain)
		if err != nil {
			rows = append(rows, []string{domain, "-", "-", "no certificate"})
			continue
		}

		daysLeft := info.DaysLeft(now)
		state := "ok"
		switch {
		case daysLeft < 0:
			state = "EXPIRED"
		case daysLeft <= threshold:
			state = "due for renewal"
		}

		rows = append(rows, []string{
			domain,
			info.Issuer,
			fmt.Sprintf("%s (%dd)", info.NotAfter.Format("2006-01-02"), daysLeft),
			state,
		})
	}

	out.Table([]string{"DOMAIN", "ISSUER", "EXPIRES", "STATE"}, rows)
	return nil
}
