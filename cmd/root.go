package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/certmate/certmate/pkg/acme"
	"github.com/certmate/certmate/pkg/challenge"
	"github.com/certmate/certmate/pkg/config"
	"github.com/certmate/certmate/pkg/formatter"
	"github.com/certmate/certmate/pkg/logging"
	"github.com/certmate/certmate/pkg/orchestrator"
	"github.com/certmate/certmate/pkg/registry"
	"github.com/certmate/certmate/pkg/telemetry"
)

var (
	cfgFile     string
	verbose     bool
	stagingFlag bool
	logFile     string
	noColor     bool
	// Version, GitCommit, and BuildTime are set via ldflags during build
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "certmate",
	Short: "Issue, renew and deploy TLS certificates for local and remote hosts",
	Long: `Certmate drives the full certificate lifecycle for your domains: it obtains
certificates from an ACME CA, renews them before expiry, and keeps the nginx
virtual-host configuration pointed at them, with backup and rollback.

Domains served from another machine are managed over SSH without requiring
any agent on the remote host.`,
	Version: Version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := telemetry.Init(telemetry.DefaultConfig()); err != nil {
		fmt.Fprintln(os.Stderr, "Warning: failed to initialize tracing:", err)
	}

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Set custom version template
	rootCmd.SetVersionTemplate(fmt.Sprintf(`certmate {{.Version}}
Commit:  %s
Built:   %s
`, GitCommit, BuildTime))

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./certmate.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&stagingFlag, "staging", false, "use the staging CA endpoint")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "also write JSON logs to this file")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	// Bind flags to viper
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("staging", rootCmd.PersistentFlags().Lookup("staging"))
}

// initConfig reads in config file and ENV variables if set
func initConfig() {
	// Load .env from current or parent directories before anything reads
	// the environment
	_ = config.LoadDotenv()

	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		// Search for certmate.yaml near the working directory and in /etc
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/certmate")
		viper.SetConfigType("yaml")
		viper.SetConfigName("certmate")
	}

	viper.AutomaticEnv() // read in environment variables that match
	viper.SetEnvPrefix("CERTMATE")

	// If a config file is found, read it in
	if err := viper.ReadInConfig(); err == nil {
		if verbose {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}
}

// loadConfig parses the resolved config file, or returns defaults when no
// file exists
func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		path = viper.ConfigFileUsed()
	}
	if path == "" {
		return config.Default(), nil
	}
	return config.LoadConfig(path)
}

// newOrchestrator assembles the orchestrator for one command invocation
func newOrchestrator(cfg *config.Config) (*orchestrator.Orchestrator, *zap.Logger, error) {
	reg, err := registry.Load(cfg.RegistryPath)
	if err != nil {
		return nil, nil, err
	}

	directory := acme.DirectoryProduction
	if stagingFlag || cfg.Staging || viper.GetBool("staging") {
		directory = acme.DirectoryStaging
	}

	log := logging.New(logging.Options{Verbose: verbose, File: logFile})

	return &orchestrator.Orchestrator{
		Registry:      reg,
		Session:       acme.NewSession(cfg.AccountDir),
		CertsRoot:     cfg.CertsRoot,
		DirectoryURL:  directory,
		ThresholdDays: cfg.ThresholdDays,
		DNSProviders:  map[string]challenge.Provider{},
		Log:           log,
	}, log, nil
}

// seedRecord carries a domain's config-file settings into the registry so
// the orchestrator sees them, without overwriting an existing record.
func seedRecord(o *orchestrator.Orchestrator, cfg *config.Config, domain string) {
	if o.Registry.Get(domain) != nil {
		return
	}
	d, ok := cfg.Domains[domain]
	if !ok {
		return
	}

	rec := &registry.DomainRecord{
		Domain:  domain,
		Email:   cfg.DomainEmail(domain),
		WebRoot: d.WebRoot,
	}
	if d.SSH != nil {
		rec.SSH = &registry.RemoteTarget{
			Host:               d.SSH.Host,
			Port:               d.SSH.Port,
			Username:           d.SSH.Username,
			PrivateKey:         d.SSH.PrivateKey,
			Password:           d.SSH.Password,
			RemoteWebRoot:      d.SSH.RemoteWebRoot,
			RemoteNginxConfDir: d.SSH.RemoteNginxConfDir,
			RemoteCertsDir:     d.SSH.RemoteCertsDir,
		}
	}
	o.Registry.Upsert(rec)
}

func output() *formatter.Output {
	return formatter.New(verbose, noColor)
}
