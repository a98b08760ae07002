package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/certmate/certmate/pkg/registry"
)

var domainsCmd = &cobra.Command{
	Use:   "domains",
	Short: "List registered domains",
	RunE:  runDomains,
}

func init() {
	rootCmd.AddCommand(domainsCmd)
}

func runDomains(cmd *cobra.Command, args []string) error {
	out := output()

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	reg, err := registry.Load(cfg.RegistryPath)
	if err != nil {
		return fmt.Errorf("failed to load domain registry: %w", err)
	}

	if reg.Len() == 0 {
		out.Info("No domains registered yet. Run 'certmate issue <domain>' first.")
		return nil
	}

	var rows [][]string
	for _, domain := range reg.Domains() {
		rec := reg.Get(domain)

		issued := "never"
		if rec.IssuedAt != nil {
			issued = rec.IssuedAt.Format("2006-01-02")
		}

		target := "local"
		if rec.IsRemote() {
			target = rec.SSH.Host
		}

		rows = append(rows, []string{domain, rec.Email, issued, target})
	}

	out.Table([]string{"DOMAIN", "EMAIL", "ISSUED", "TARGET"}, rows)
	return nil
}
