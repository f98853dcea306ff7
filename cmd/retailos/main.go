package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Kalhara-JA/retail-os/internal/app"
	"github.com/Kalhara-JA/retail-os/internal/config"
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
	Use:   "retailos",
	Short: "RetailOS - marketing site backend",
	Long:  `RetailOS serves site content, newsletter sign-ups and seed data management for the storefront.`,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
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
		fmt.Printf("retailos version %s\n", version)
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

	application, err := app.New(cfg, version)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	return application.Run(context.Background())
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	if cfgFile == "" {
		return fmt.Errorf("config file is required (use -c flag)")
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		color.Red("Configuration is invalid")
		return err
	}

	color.Green("Configuration is valid")
	fmt.Printf("  API:        %s\n", cfg.API.ListenAddr)
	fmt.Printf("  Admin:      %s\n", enabled(cfg.AdminEnabled()))
	fmt.Printf("  Storage:    %s\n", cfg.Storage.Path)
	fmt.Printf("  Mail mode:  %s\n", cfg.Mail.Mode)
	fmt.Printf("  DKIM:       %s\n", enabled(cfg.Mail.DKIM.Enabled))
	fmt.Printf("  Seeds:      %s\n", cfg.Seeds.Dir)
	fmt.Printf("  Mirror:     %s\n", enabled(cfg.Seeds.Mirror.Enabled))
	fmt.Printf("  Revalidate: %s\n", enabled(cfg.Revalidate.URL != ""))
	if cfg.Metrics.Enabled {
		fmt.Printf("  Metrics:    %s%s\n", cfg.Metrics.ListenAddr, cfg.Metrics.Path)
	}

	return nil
}

func enabled(on bool) string {
	if on {
		return color.GreenString("enabled")
	}
	return color.YellowString("disabled")
}
