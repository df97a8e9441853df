package cmd

import (
	"context"
	"fmt"
	"time"

	"pyrothor/storage"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"
)

// newRulesCmd creates the 'rules' command group.
func newRulesCmd() *cobra.Command {
	rulesCmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage the embedded YARA rule store",
	}

	rulesCmd.AddCommand(newRulesSyncCmd())
	rulesCmd.AddCommand(newRulesListCmd())
	rulesCmd.AddCommand(newRulesStatsCmd())

	return rulesCmd
}

// newRulesSyncCmd creates the 'rules sync' subcommand.
func newRulesSyncCmd() *cobra.Command {
	var showProgress bool

	cmd := &cobra.Command{
		Use:   "sync [directory]",
		Short: "Import YARA rule files from a directory",
		Long: `Import all .yar and .yara files from a directory into the store. Files
that cannot be read are skipped with a warning. Without an argument the
configured custom signatures directory is used.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
			defer cancel()

			cfg, store, sugar, cleanup, err := initStore()
			if err != nil {
				return err
			}
			defer cleanup()

			dir := cfg.Thor.RulesPath
			if len(args) == 1 {
				dir = args[0]
			}

			if !quiet {
				infoColor.Printf("Syncing rules from: %s\n", dir)
			}

			var sp *spinner.Spinner
			if showProgress && !outputJSON && !quiet {
				sp = spinner.New(spinner.CharSets[14], 100*time.Millisecond)
				sp.Suffix = " Importing rule files..."
				sp.Start()
			}

			count, err := storage.SyncFromDirectory(ctx, store, dir, sugar)

			if sp != nil {
				sp.Stop()
			}

			if err != nil {
				return fmt.Errorf("failed to sync rules: %w", err)
			}

			if outputJSON {
				return outputAsJSON(map[string]any{"imported": count, "directory": dir})
			}

			if !quiet {
				successColor.Printf("✓ Imported %d rule files\n", count)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showProgress, "progress", true, "Show progress indicator")

	return cmd
}

// newRulesListCmd creates the 'rules list' subcommand.
func newRulesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List stored rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
			defer cancel()

			_, store, _, cleanup, err := initStore()
			if err != nil {
				return err
			}
			defer cleanup()

			rules, err := store.ListRules(ctx)
			if err != nil {
				return fmt.Errorf("failed to list rules: %w", err)
			}

			if outputJSON {
				return outputAsJSON(rules)
			}

			renderRulesTable(rules)
			return nil
		},
	}
}

// newRulesStatsCmd creates the 'rules stats' subcommand.
func newRulesStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show store record counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
			defer cancel()

			_, store, _, cleanup, err := initStore()
			if err != nil {
				return err
			}
			defer cleanup()

			stats, err := store.Stats(ctx)
			if err != nil {
				return fmt.Errorf("failed to read store stats: %w", err)
			}

			if outputJSON {
				return outputAsJSON(stats)
			}

			renderStats(stats)
			return nil
		},
	}
}
