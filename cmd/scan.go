package cmd

import (
	"context"
	"errors"
	"time"

	"pyrothor/bootstrap"
	"pyrothor/scanner"
	"pyrothor/transport"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"
)

// newScanCmd creates the 'scan' subcommand.
func newScanCmd() *cobra.Command {
	var (
		outputPath   string
		enterprise   bool
		withStore    bool
		scanUUID     string
		showProgress bool
	)

	cmd := &cobra.Command{
		Use:   "scan <path>",
		Short: "Run a THOR Lite scan against a path",
		Long: `Run a full scan lifecycle: acquire the scanner package, extract it into
an isolated working directory, execute the scanner against the given path and
write its JSON report to the output file.

With an API key configured the report is also published to the server; a
publish failure leaves the local report intact.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scanPath := args[0]

			cfg, sugar, cleanup, err := initApp()
			if err != nil {
				return err
			}
			defer cleanup()

			tr := transport.NewHTTPTransport(cfg.Server.Timeout(), sugar)
			hooks := scanner.NewPlatformHooks(sugar)
			s := scanner.New(cfg, tr, hooks, sugar).WithEnterpriseMode(enterprise)
			if scanUUID != "" {
				s.WithScanID(scanUUID)
			}

			if withStore {
				store, err := bootstrap.OpenStore(cfg, sugar)
				if err != nil {
					return err
				}
				defer store.Close()
				s.WithStore(store)
			}

			if !quiet {
				infoColor.Printf("Scanning: %s\n", scanPath)
			}

			var sp *spinner.Spinner
			if showProgress && !outputJSON && !quiet {
				sp = spinner.New(spinner.CharSets[14], 100*time.Millisecond)
				sp.Suffix = " Running scan..."
				sp.Start()
			}

			report, err := s.Run(context.Background(), scanPath, outputPath)

			if sp != nil {
				sp.Stop()
			}

			var stageErr *scanner.StageError
			if err != nil && errors.As(err, &stageErr) && stageErr.Stage == scanner.StagePublish {
				warningColor.Printf("⚠ Scan completed but publishing failed: %v\n", stageErr.Err)
				if stageErr.Retryable() {
					warningColor.Println("  The upload can be retried; the local report is intact.")
				}
				err = nil
			}
			if err != nil {
				return err
			}

			if outputJSON {
				return outputAsJSON(report)
			}

			if !quiet {
				successColor.Printf("✓ Scan completed, report written to %s\n", outputPath)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "thor-scan-results.json", "Report output path")
	cmd.Flags().BoolVar(&enterprise, "enterprise", false, "Enable enterprise scan mode")
	cmd.Flags().BoolVar(&withStore, "store", false, "Attach the embedded rule store to the scan")
	cmd.Flags().StringVar(&scanUUID, "scan-uuid", "", "Scan identifier for published results")
	cmd.Flags().BoolVar(&showProgress, "progress", true, "Show progress indicator")

	return cmd
}
