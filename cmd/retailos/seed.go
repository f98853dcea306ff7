package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Kalhara-JA/retail-os/internal/app"
	"github.com/Kalhara-JA/retail-os/internal/config"
	"github.com/Kalhara-JA/retail-os/internal/seed"
	"github.com/Kalhara-JA/retail-os/internal/store"
)

var (
	seedOutput       string
	seedIncludeUsers bool
	seedTypeScript   bool
	seedTSDir        string
	seedDescription  string
	seedClear        bool
	seedYes          bool
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed data commands",
	Long:  `Export the content store to seed files and load seed files back. The server must be stopped, the database is opened exclusively.`,
}

var seedExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write a seed file from the current content",
	RunE:  runSeedExport,
}

var seedImportCmd = &cobra.Command{
	Use:   "import [file]",
	Short: "Load a seed file into the content store",
	Args:  cobra.ExactArgs(1),
	RunE:  runSeedImport,
}

var seedListCmd = &cobra.Command{
	Use:   "list",
	Short: "List seed files",
	RunE:  runSeedList,
}

var seedDeleteCmd = &cobra.Command{
	Use:   "delete [name]",
	Short: "Delete a seed file",
	Args:  cobra.ExactArgs(1),
	RunE:  runSeedDelete,
}

func init() {
	seedExportCmd.Flags().StringVarP(&seedOutput, "output", "o", "", "output file (default: timestamped file in seeds.dir)")
	seedExportCmd.Flags().BoolVar(&seedIncludeUsers, "include-users", false, "include the users collection")
	seedExportCmd.Flags().BoolVar(&seedTypeScript, "typescript", false, "also write TypeScript modules")
	seedExportCmd.Flags().StringVar(&seedTSDir, "ts-dir", "", "TypeScript output directory (default: <seeds.dir>/typescript)")
	seedExportCmd.Flags().StringVar(&seedDescription, "description", "", "description stored in the seed file")

	seedImportCmd.Flags().BoolVar(&seedClear, "clear", false, "delete existing content first")
	seedImportCmd.Flags().BoolVar(&seedIncludeUsers, "include-users", false, "import the users collection")
	seedImportCmd.Flags().BoolVarP(&seedYes, "yes", "y", false, "do not ask for confirmation")

	seedCmd.AddCommand(seedExportCmd, seedImportCmd, seedListCmd, seedDeleteCmd)
	rootCmd.AddCommand(seedCmd)
}

func openStore(cfg *config.Config) (*store.BoltStore, error) {
	st, err := store.NewBoltStore(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage (is the server running?): %w", err)
	}
	return st, nil
}

func runSeedExport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	logger := app.NewLogger(cfg.Logging)
	exporter := seed.NewExporter(st, cfg.Seeds.Dir, logger)
	ctx := context.Background()

	path, report, err := exporter.GenerateSeedFile(ctx, seed.ExportOptions{
		OutputPath:   seedOutput,
		IncludeUsers: seedIncludeUsers,
		Description:  seedDescription,
	})
	if err != nil {
		color.Red("Export failed: %v", err)
		return err
	}

	color.Green("Seed file written: %s", path)
	fmt.Printf("  documents: %d\n", report.Count(seed.KindCollection))
	fmt.Printf("  globals:   %d\n", report.Count(seed.KindGlobal))
	printFailures(report)

	if seedTypeScript {
		files, _, err := exporter.GenerateTypeScriptFiles(ctx, seedTSDir, seedIncludeUsers)
		if err != nil {
			color.Red("TypeScript export failed: %v", err)
			return err
		}
		color.Green("TypeScript modules written: %d", len(files))
		for _, f := range files {
			fmt.Printf("  %s\n", f)
		}
	}

	return nil
}

func runSeedImport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if seedClear && !seedYes {
		fmt.Printf("This deletes all existing content in %s. Continue? [y/N]: ", cfg.Storage.Path)
		reader := bufio.NewReader(os.Stdin)
		response, _ := reader.ReadString('\n')
		response = strings.TrimSpace(strings.ToLower(response))
		if response != "y" && response != "yes" {
			fmt.Println("Cancelled")
			return nil
		}
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	importer := seed.NewImporter(st, app.NewLogger(cfg.Logging))
	report, err := importer.CreateFromFile(context.Background(), args[0], seed.ImportOptions{
		ClearExisting: seedClear,
		IncludeUsers:  seedIncludeUsers,
	})
	if err != nil {
		color.Red("Import failed: %v", err)
		return err
	}

	color.Green("Seed file imported: %s", args[0])
	if seedClear {
		fmt.Printf("  cleared:   %d\n", report.Count(seed.KindCollection))
	}
	fmt.Printf("  documents: %d\n", report.Count(seed.KindDocument))
	fmt.Printf("  globals:   %d\n", report.Count(seed.KindGlobal))
	printFailures(report)
	return nil
}

func runSeedList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	files, err := seed.NewFiles(cfg.Seeds.Dir).List()
	if err != nil {
		return err
	}
	if len(files) == 0 {
		color.Yellow("No seed files in %s", cfg.Seeds.Dir)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSIZE\tMODIFIED")
	for _, f := range files {
		fmt.Fprintf(w, "%s\t%d\t%s\n", f.Name, f.Size, f.ModTime.Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}

func runSeedDelete(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if err := seed.NewFiles(cfg.Seeds.Dir).Delete(args[0]); err != nil {
		return err
	}
	color.Green("Deleted %s", args[0])
	return nil
}

func printFailures(report *seed.Report) {
	failed := report.Failed()
	if len(failed) == 0 {
		return
	}

	color.Yellow("  failed: %d", len(failed))
	for _, item := range failed {
		fmt.Printf("    %s %s: %v\n", item.Kind, item.Name, item.Err)
	}
}
