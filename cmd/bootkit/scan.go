package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/sensiblebit/bootkit/internal"
	"github.com/sensiblebit/bootkit/internal/catalog"
)

var (
	scanDBPath       string
	scanExport       = newChoice("", "json", "yaml")
	scanExportPath   string
	scanBundle       = newChoice("", "p7b", "p12", "jks")
	scanBundlePath   string
	scanBundlePass   string
	scanSignersOnly  bool
	scanMaxFileSize  int64
	scanCheckAnchors bool
)

var scanCmd = &cobra.Command{
	Use:   "scan <path>",
	Short: "Scan and catalog signing artifacts",
	Long: `Scan a file, directory or tar/zip image for certificates, PKCS#7
signatures and RSA public keys. Prints a summary of what was found and what
failed to decode. Use --db to persist the catalog, --export for a JSON or
YAML inventory and --bundle to pack the certificates into a container.`,
	Example: `  bootkit scan /boot
  bootkit scan rootfs.tar.gz --export json --out inventory.json
  bootkit scan firmware/ --db catalog.db --bundle p7b --bundle-out signers.p7b --signers-only`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

func init() {
	flags := scanCmd.Flags()
	flags.StringVarP(&scanDBPath, "db", "d", "", "SQLite database to load before and save after scanning")
	addChoiceFlag(scanCmd, scanExport, "export", "Write an inventory")
	flags.StringVarP(&scanExportPath, "out", "o", "", "Inventory output file (default: stdout)")
	addChoiceFlag(scanCmd, scanBundle, "bundle", "Export certificates as a container")
	flags.StringVar(&scanBundlePath, "bundle-out", "", "Container output file (required with --bundle)")
	flags.StringVar(&scanBundlePass, "bundle-password", "changeit", "Password for p12 and jks containers")
	flags.BoolVar(&scanSignersOnly, "signers-only", false, "Only export certificates that sign a cataloged signature")
	flags.Int64Var(&scanMaxFileSize, "max-file-size", 10*1024*1024, "Skip files larger than this many bytes (0 disables)")
	flags.BoolVar(&scanCheckAnchors, "anchors", true, "Count certificates anchored in the Mozilla root store")

	registerCompletion(scanCmd, completionInput{"db", extensionCompletion("db", "sqlite")})
	registerCompletion(scanCmd, completionInput{"out", fileCompletion})
	registerCompletion(scanCmd, completionInput{"bundle-out", fileCompletion})
}

func runScan(cmd *cobra.Command, args []string) error {
	if scanBundle.String() != "" && scanBundlePath == "" {
		return fmt.Errorf("--bundle-out is required with --bundle")
	}
	passwords, err := loadPasswords()
	if err != nil {
		return err
	}

	store := catalog.NewMemStore()
	if scanDBPath != "" {
		if _, err := os.Stat(scanDBPath); err == nil {
			if err := catalog.LoadFromSQLite(store, scanDBPath); err != nil {
				return fmt.Errorf("loading database: %w", err)
			}
		}
	}

	stats, err := internal.ScanPath(cmd.Context(), internal.ScanInput{
		Path:        args[0],
		Passwords:   passwords,
		Handler:     store,
		Limits:      internal.DefaultArchiveLimits(),
		MaxFileSize: scanMaxFileSize,
	})
	if err != nil {
		return err
	}
	store.DumpDebug()

	summaryInput := catalog.ScanSummaryInput{}
	if scanCheckAnchors {
		summaryInput.Anchors = internal.LoadMozillaAnchors()
	}

	if scanDBPath != "" {
		if err := catalog.SaveToSQLite(store, scanDBPath); err != nil {
			return fmt.Errorf("saving database: %w", err)
		}
	}
	if err := writeInventory(cmd, store, summaryInput); err != nil {
		return err
	}
	if scanBundle.String() != "" {
		data, err := catalog.ExportContainer(catalog.ExportInput{
			Store:       store,
			Format:      scanBundle.String(),
			Password:    scanBundlePass,
			SignersOnly: scanSignersOnly,
		})
		if err != nil {
			return fmt.Errorf("exporting %s bundle: %w", scanBundle, err)
		}
		if err := os.WriteFile(scanBundlePath, data, 0644); err != nil {
			return fmt.Errorf("writing bundle: %w", err)
		}
		slog.Info("wrote certificate bundle", "path", scanBundlePath, "format", scanBundle.String())
	}

	// The summary goes to stderr when the inventory is written to stdout.
	out := cmd.OutOrStdout()
	if scanExport.String() != "" && scanExportPath == "" {
		out = cmd.ErrOrStderr()
	}
	fmt.Fprint(out, internal.FormatScanSummary(store.ScanSummary(summaryInput), stats, scanCheckAnchors))
	return nil
}

func writeInventory(cmd *cobra.Command, store *catalog.MemStore, input catalog.ScanSummaryInput) error {
	if scanExport.String() == "" {
		return nil
	}
	var (
		data []byte
		err  error
	)
	inv := catalog.BuildInventory(store, input)
	switch scanExport.String() {
	case "yaml":
		data, err = catalog.GenerateYAML(inv)
	default:
		data, err = catalog.GenerateJSON(inv)
	}
	if err != nil {
		return fmt.Errorf("generating inventory: %w", err)
	}
	if scanExportPath == "" {
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}
	if err := os.WriteFile(scanExportPath, data, 0644); err != nil {
		return fmt.Errorf("writing inventory: %w", err)
	}
	return nil
}
