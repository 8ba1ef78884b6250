package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sigilhq/sigil/internal/app"
	"github.com/sigilhq/sigil/internal/config"
	sigilTLS "github.com/sigilhq/sigil/internal/tls"
)

var (
	cfgFile   string
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "sigil",
	Short: "Sigil - Email Signature Server",
	Long:  `Sigil compiles block-structured email signatures and deploys them to provider mailboxes.`,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the signature server",
	Long:  `Start the Sigil server with the HTTP API and deployment processor.`,
	RunE:  runServe,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration commands",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	RunE:  runConfigValidate,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("sigil version %s\n", version)
		if commit != "unknown" {
			fmt.Printf("  commit: %s\n", commit)
		}
		if buildTime != "unknown" {
			fmt.Printf("  built:  %s\n", buildTime)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")

	configCmd.AddCommand(configValidateCmd)
	rootCmd.AddCommand(serveCmd, configCmd, versionCmd)
}

func loadConfig() (*config.Config, error) {
	if cfgFile == "" {
		return nil, fmt.Errorf("config file is required (use -c flag)")
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	application, err := app.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	return application.Run(context.Background())
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("configuration is invalid: %w", err)
	}

	fmt.Printf("Configuration is valid\n")
	fmt.Printf("  Hostname: %s\n", cfg.Server.Hostname)
	fmt.Printf("  API: %s\n", cfg.API.ListenAddr)
	fmt.Printf("  Storage: %s\n", cfg.Storage.Path)
	fmt.Printf("  Workers: %d\n", cfg.Deploy.Workers)
	if cfg.Deploy.Google != nil {
		fmt.Printf("  Google deployer: configured\n")
	}
	if cfg.Deploy.Microsoft != nil {
		fmt.Printf("  Microsoft deployer: configured\n")
	}
	if cfg.Disclaimer.Enabled {
		fmt.Printf("  Disclaimer service: %s\n", cfg.Disclaimer.BaseURL)
	}
	if cfg.API.TLS.CertFile != "" {
		status, err := sigilTLS.Inspect(cfg.API.TLS.CertFile)
		if err != nil {
			return fmt.Errorf("configured certificate is unreadable: %w", err)
		}
		fmt.Printf("  TLS certificate: %s, expires %s (%d days)\n",
			status.Host, status.NotAfter.Format("2006-01-02"), status.DaysLeft)
		if status.Expiring() {
			fmt.Printf("  WARNING: certificate expires soon, renew it\n")
		}
	}
	if cfg.API.TLS.ACME.Enabled {
		fmt.Printf("  ACME: %s\n", cfg.API.TLS.ACME.Host)
	}

	return nil
}
