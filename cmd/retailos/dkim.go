package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Kalhara-JA/retail-os/internal/dkim"
	"github.com/Kalhara-JA/retail-os/internal/dnscheck"
)

var (
	dkimDomain   string
	dkimSelector string
	dkimKeyFile  string
	dkimOutDir   string
	dkimBits     int
)

var dkimCmd = &cobra.Command{
	Use:   "dkim",
	Short: "DKIM key management commands",
}

var dkimGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a new DKIM key pair",
	Long:  `Generate an RSA DKIM key pair and print the DNS record to publish.`,
	RunE:  runDKIMGenerate,
}

var dkimShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the DNS record for an existing key",
	RunE:  runDKIMShow,
}

var dkimCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Check SPF, DKIM and DMARC records for the sending domain",
	Long:  `Look up the published records. With --key the DKIM key in DNS is compared with the local one.`,
	RunE:  runDKIMCheck,
}

func init() {
	dkimGenerateCmd.Flags().StringVar(&dkimDomain, "domain", "", "signing domain (required)")
	dkimGenerateCmd.Flags().StringVar(&dkimSelector, "selector", "retailos", "DKIM selector")
	dkimGenerateCmd.Flags().StringVar(&dkimOutDir, "out", ".", "output directory for the key file")
	dkimGenerateCmd.Flags().IntVar(&dkimBits, "bits", 2048, "RSA key size")
	dkimGenerateCmd.MarkFlagRequired("domain")

	dkimShowCmd.Flags().StringVar(&dkimKeyFile, "key", "", "private key file (required)")
	dkimShowCmd.Flags().StringVar(&dkimDomain, "domain", "", "signing domain (required)")
	dkimShowCmd.Flags().StringVar(&dkimSelector, "selector", "retailos", "DKIM selector")
	dkimShowCmd.MarkFlagRequired("key")
	dkimShowCmd.MarkFlagRequired("domain")

	dkimCheckCmd.Flags().StringVar(&dkimDomain, "domain", "", "sending domain (required)")
	dkimCheckCmd.Flags().StringVar(&dkimSelector, "selector", "retailos", "DKIM selector")
	dkimCheckCmd.Flags().StringVar(&dkimKeyFile, "key", "", "local private key to compare with DNS")
	dkimCheckCmd.MarkFlagRequired("domain")

	dkimCmd.AddCommand(dkimGenerateCmd, dkimShowCmd, dkimCheckCmd)
	rootCmd.AddCommand(dkimCmd)
}

func runDKIMGenerate(cmd *cobra.Command, args []string) error {
	kp, err := dkim.GenerateKey(dkimDomain, dkimSelector, dkimBits)
	if err != nil {
		return err
	}

	keyPath := filepath.Join(dkimOutDir, fmt.Sprintf("%s.%s.key", dkimSelector, dkimDomain))
	if err := kp.SavePrivateKey(keyPath); err != nil {
		return err
	}

	color.Green("DKIM key generated")
	fmt.Printf("Private key: %s\n\n", keyPath)
	printDNSRecord(kp.DNSName(), kp.DNSRecord())

	fmt.Println()
	fmt.Println("Config:")
	fmt.Println("  mail:")
	fmt.Println("    dkim:")
	fmt.Println("      enabled: true")
	fmt.Printf("      selector: %s\n", dkimSelector)
	fmt.Printf("      key_file: %s\n", keyPath)
	fmt.Printf("      domain: %s\n", dkimDomain)

	return nil
}

func runDKIMShow(cmd *cobra.Command, args []string) error {
	signer, err := dkim.NewSignerFromFile(dkimKeyFile, dkim.Options{
		Domain:   dkimDomain,
		Selector: dkimSelector,
	})
	if err != nil {
		return err
	}

	record, err := signer.DNSRecord()
	if err != nil {
		return err
	}
	printDNSRecord(signer.DNSName(), record)
	return nil
}

func runDKIMCheck(cmd *cobra.Command, args []string) error {
	req := dnscheck.Request{Domain: dkimDomain, Selector: dkimSelector}
	if dkimKeyFile != "" {
		signer, err := dkim.NewSignerFromFile(dkimKeyFile, dkim.Options{Domain: dkimDomain, Selector: dkimSelector})
		if err != nil {
			return err
		}
		if req.Expected, err = signer.DNSRecord(); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	report, err := dnscheck.New(nil).Check(ctx, req)
	if err != nil {
		return err
	}

	for _, r := range report.Results {
		status := r.Status
		switch r.Status {
		case dnscheck.StatusOK:
			status = color.GreenString(r.Status)
		case dnscheck.StatusWarning:
			status = color.YellowString(r.Status)
		default:
			status = color.RedString(r.Status)
		}
		fmt.Printf("%-6s %-10s %s\n", r.Type, status, r.Name)
		if r.Message != "" {
			fmt.Printf("       %s\n", r.Message)
		}
	}

	if !report.OK {
		return fmt.Errorf("DNS records for %s need attention", report.Domain)
	}
	return nil
}

func printDNSRecord(name, value string) {
	fmt.Println("DNS Record:")
	fmt.Printf("  Name:  %s\n", color.CyanString(name))
	fmt.Printf("  Type:  TXT\n")
	fmt.Printf("  Value: %s\n", value)
}
