package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/fieldprep/internal/config"
	"github.com/kozaktomas/fieldprep/internal/report"
)

var dedupCmd = &cobra.Command{
	Use:   "dedup",
	Short: "Delete near-duplicate images from a processed output set",
	Long: `Dedup runs the similarity comparison over an output set produced by
'process' and deletes the later shot of every same-site near-duplicate
pair. Different-site matches are never deleted automatically; they land
in the audit tables for manual review ('audit', 'review').

Examples:
  fieldprep dedup -o ./prepared
  fieldprep dedup -o ./prepared --threshold 0.97 --global`,
	RunE: runDedupCmd,
}

func init() {
	rootCmd.AddCommand(dedupCmd)

	dedupCmd.Flags().StringP("output", "o", "", "Processed output folder (required)")
	dedupCmd.Flags().StringP("input", "i", "", "Original input folder, for hyperlinks in the audit CSVs")
	dedupCmd.Flags().Float64P("threshold", "t", 0.94, "Cosine similarity threshold in (0, 1]")
	dedupCmd.Flags().Bool("global", false, "Ignore site tags and treat the whole set as one site")
	dedupCmd.MarkFlagRequired("output")
}

func runDedupCmd(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := config.Load()

	threshold := mustGetFloat64(cmd, "threshold")
	if threshold <= 0 || threshold > 1 {
		return fmt.Errorf("threshold must be in (0, 1], got %v", threshold)
	}

	store, err := openLockedStore(mustGetString(cmd, "output"))
	if err != nil {
		return err
	}
	defer store.Close()
	defer store.Unlock()

	if errs := computeDescriptors(ctx, cfg, store); len(errs) > 0 {
		fmt.Printf("%d images failed the descriptor pass:\n", len(errs))
		for _, e := range errs {
			fmt.Printf("  %v\n", e)
		}
	}

	inputRoot := mustGetString(cmd, "input")
	if inputRoot == "" {
		inputRoot = store.Root()
	}

	var stats report.Stats
	if err := runDedup(ctx, cfg, store, inputRoot, threshold, !mustGetBool(cmd, "global"), &stats); err != nil {
		return err
	}
	if err := store.ExportImageCSV(ctx); err != nil {
		return err
	}

	report.RenderSummary(os.Stdout, stats)
	return nil
}
