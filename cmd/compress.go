package cmd

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/fieldprep/internal/config"
	"github.com/kozaktomas/fieldprep/internal/report"
)

var compressCmd = &cobra.Command{
	Use:   "compress",
	Short: "Compress a processed output set down to a byte budget",
	Long: `Compress searches for the largest per-image byte cap whose projected
total fits the requested budget, then re-encodes every oversized image
at the highest JPEG quality that stays under the cap. Per-image quality
floors (FIELDPREP_FLOOR_RATIO) bound how far any single image may
shrink; when even the floors exceed the budget the set is compressed as
far as possible and the deficit is reported.

Examples:
  fieldprep compress -o ./prepared --max-size 2.5`,
	RunE: runCompressCmd,
}

var errMissingBudget = errors.New("a positive --max-size budget is required")

func init() {
	rootCmd.AddCommand(compressCmd)

	compressCmd.Flags().StringP("output", "o", "", "Processed output folder (required)")
	compressCmd.Flags().Float64P("max-size", "m", 0, "Byte budget in GB (required)")
	compressCmd.MarkFlagRequired("output")
	compressCmd.MarkFlagRequired("max-size")
}

func runCompressCmd(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := config.Load()

	budget, ok, err := parseBudgetGB(mustGetFloat64(cmd, "max-size"))
	if err != nil || !ok {
		if err == nil {
			err = errMissingBudget
		}
		return err
	}

	store, err := openLockedStore(mustGetString(cmd, "output"))
	if err != nil {
		return err
	}
	defer store.Close()
	defer store.Unlock()

	var stats report.Stats
	if err := runCompress(ctx, cfg, store, budget, &stats); err != nil {
		return err
	}
	if err := store.ExportImageCSV(ctx); err != nil {
		return err
	}

	report.RenderSummary(os.Stdout, stats)
	return nil
}
