package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Kalhara-JA/retail-os/internal/certs"
)

var tlsCmd = &cobra.Command{
	Use:   "tls",
	Short: "API TLS certificates",
}

var tlsStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show API certificate status",
	Long: `Show the validity of the API certificate. With ACME enabled only the
local cache is read; Let's Encrypt is never contacted.`,
	RunE: runTLSStatus,
}

func init() {
	tlsCmd.AddCommand(tlsStatusCmd)
	rootCmd.AddCommand(tlsCmd)
}

func runTLSStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	t := cfg.API.TLS
	switch {
	case t.ACME.Enabled:
		fmt.Printf("ACME cache: %s\n", t.ACME.CacheDir)
		acme := certs.NewACME(t.ACME.Email, t.ACME.Domains, t.ACME.CacheDir)
		cached := acme.Cached(context.Background())
		found := make(map[string]bool, len(cached))
		for _, info := range cached {
			found[info.Domain] = true
			printCertInfo(info)
		}
		for _, d := range t.ACME.Domains {
			if !found[d] {
				fmt.Printf("  %-30s %s\n", d, color.YellowString("not obtained yet"))
			}
		}

	case t.CertFile != "":
		info, err := certs.Inspect(t.CertFile)
		if err != nil {
			return err
		}
		fmt.Printf("Certificate: %s\n", t.CertFile)
		printCertInfo(*info)

	default:
		fmt.Println("TLS is not configured, the API serves plain HTTP")
	}
	return nil
}

func printCertInfo(info certs.Info) {
	status := color.GreenString("valid, %d days left", info.DaysLeft)
	switch {
	case info.Expired():
		status = color.RedString("expired %s", info.NotAfter.Format("2006-01-02"))
	case info.DaysLeft < 30:
		status = color.YellowString("expires in %d days", info.DaysLeft)
	}
	fmt.Printf("  %-30s %s\n", info.Domain, status)
}
