package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pyrothor/core"
	"pyrothor/storage"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// maxImportFileSize caps indicator import files to protect against memory
// exhaustion.
const maxImportFileSize = 10 * 1024 * 1024

// newIntelCmd creates the 'intel' command group.
func newIntelCmd() *cobra.Command {
	intelCmd := &cobra.Command{
		Use:   "intel",
		Short: "Manage threat intel indicators",
	}

	intelCmd.AddCommand(newIntelImportCmd())
	intelCmd.AddCommand(newIntelFindCmd())
	intelCmd.AddCommand(newIntelRankCmd())
	intelCmd.AddCommand(newIntelPurgeCmd())

	return intelCmd
}

// indicatorInput is the import file schema for one indicator. Timestamps are
// optional; missing ones default to the import time.
type indicatorInput struct {
	ID          string     `yaml:"id" json:"id"`
	Type        string     `yaml:"type" json:"type" validate:"required,oneof=ip cidr domain hash url email filename"`
	Value       string     `yaml:"value" json:"value" validate:"required"`
	Confidence  float64    `yaml:"confidence" json:"confidence" validate:"min=0,max=1"`
	ThreatScore float64    `yaml:"threat_score" json:"threat_score"`
	FirstSeen   *time.Time `yaml:"first_seen" json:"first_seen"`
	LastSeen    *time.Time `yaml:"last_seen" json:"last_seen"`
	SourceFeeds []string   `yaml:"source_feeds" json:"source_feeds"`
	Campaigns   []string   `yaml:"campaigns" json:"campaigns"`
}

func (in *indicatorInput) toIndicator(now time.Time) *core.Indicator {
	id := in.ID
	if id == "" {
		id = uuid.New().String()
	}

	firstSeen := now
	if in.FirstSeen != nil {
		firstSeen = *in.FirstSeen
	}
	lastSeen := now
	if in.LastSeen != nil {
		lastSeen = *in.LastSeen
	}

	return &core.Indicator{
		ID:          id,
		Type:        core.IndicatorType(in.Type),
		Value:       in.Value,
		Confidence:  in.Confidence,
		ThreatScore: in.ThreatScore,
		FirstSeen:   firstSeen,
		LastSeen:    lastSeen,
		SourceFeeds: in.SourceFeeds,
		Campaigns:   in.Campaigns,
	}
}

// loadIndicatorInputs reads and validates an import file. YAML and JSON are
// both accepted.
func loadIndicatorInputs(path string) ([]indicatorInput, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read import file: %w", err)
	}
	if info.Size() > maxImportFileSize {
		return nil, fmt.Errorf("import file exceeds %d byte limit", maxImportFileSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read import file: %w", err)
	}

	var inputs []indicatorInput
	if err := yaml.Unmarshal(data, &inputs); err != nil {
		return nil, fmt.Errorf("failed to parse import file: %w", err)
	}

	validate := validator.New()
	for i := range inputs {
		if err := validate.Struct(&inputs[i]); err != nil {
			return nil, fmt.Errorf("invalid indicator at index %d: %w", i, err)
		}
	}
	return inputs, nil
}

// newIntelImportCmd creates the 'intel import' subcommand.
func newIntelImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Import indicators from a YAML or JSON file",
		Long: `Import threat intel indicators from a file containing a list of
indicator entries. Entries without an ID get a generated one; entries with an
existing ID replace the stored indicator.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
			defer cancel()

			inputs, err := loadIndicatorInputs(args[0])
			if err != nil {
				return err
			}

			_, store, _, cleanup, err := initStore()
			if err != nil {
				return err
			}
			defer cleanup()

			now := time.Now().UTC()
			for i := range inputs {
				ind := inputs[i].toIndicator(now)
				if err := store.PutIndicator(ctx, ind); err != nil {
					return fmt.Errorf("failed to import indicator %s: %w", ind.ID, err)
				}
			}

			if outputJSON {
				return outputAsJSON(map[string]any{"imported": len(inputs)})
			}

			if !quiet {
				successColor.Printf("✓ Imported %d indicators\n", len(inputs))
			}
			return nil
		},
	}
}

// newIntelFindCmd creates the 'intel find' subcommand.
func newIntelFindCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "find <substring>",
		Short: "Find indicators by value substring",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
			defer cancel()

			_, store, _, cleanup, err := initStore()
			if err != nil {
				return err
			}
			defer cleanup()

			indicators, err := store.FindIndicatorsByValue(ctx, args[0])
			if err != nil {
				return fmt.Errorf("failed to search indicators: %w", err)
			}

			if outputJSON {
				return outputAsJSON(indicators)
			}

			renderIndicatorsTable(indicators)
			return nil
		},
	}
}

// newIntelRankCmd creates the 'intel rank' subcommand.
func newIntelRankCmd() *cobra.Command {
	var minConfidence float64

	cmd := &cobra.Command{
		Use:   "rank",
		Short: "Rank indicators by confidence",
		Long: `List indicators at or above a confidence threshold, highest confidence
first. Ties are ordered by indicator ID.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
			defer cancel()

			_, store, _, cleanup, err := initStore()
			if err != nil {
				return err
			}
			defer cleanup()

			indicators, err := store.RankByConfidence(ctx, minConfidence)
			if err != nil {
				return fmt.Errorf("failed to rank indicators: %w", err)
			}

			if outputJSON {
				return outputAsJSON(indicators)
			}

			renderIndicatorsTable(indicators)
			return nil
		},
	}

	cmd.Flags().Float64Var(&minConfidence, "min-confidence", 0.5, "Minimum confidence threshold")

	return cmd
}

// newIntelPurgeCmd creates the 'intel purge' subcommand.
func newIntelPurgeCmd() *cobra.Command {
	var (
		days     int
		watch    bool
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Remove indicators not seen within a retention window",
		Long: `Remove all indicators whose last_seen is older than the retention window.
With --watch the purge repeats on an interval until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, store, sugar, cleanup, err := initStore()
			if err != nil {
				return err
			}
			defer cleanup()

			if days <= 0 {
				days = cfg.Database.RetentionDays
			}

			if watch {
				rm := storage.NewRetentionManager(store, days, interval, sugar)
				rm.Start()
				defer rm.Stop()

				if !quiet {
					infoColor.Printf("Watching: purging indicators older than %d days every %s\n", days, interval)
				}

				sigCh := make(chan os.Signal, 1)
				signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
				<-sigCh
				return nil
			}

			ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
			defer cancel()

			purged, err := store.PurgeIndicatorsOlderThan(ctx, days)
			if err != nil {
				return fmt.Errorf("failed to purge indicators: %w", err)
			}

			if outputJSON {
				return outputAsJSON(map[string]any{"purged": purged, "days": days})
			}

			if !quiet {
				successColor.Printf("✓ Purged %d stale indicators\n", purged)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "older-than", 0, "Retention window in days (default from config)")
	cmd.Flags().BoolVar(&watch, "watch", false, "Run periodically until interrupted")
	cmd.Flags().DurationVar(&interval, "interval", time.Hour, "Purge interval with --watch")

	return cmd
}
