package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/fieldprep/internal/catalog"
	"github.com/kozaktomas/fieldprep/internal/config"
	"github.com/kozaktomas/fieldprep/internal/dedup"
	"github.com/kozaktomas/fieldprep/internal/descriptor"
)

var similarCmd = &cobra.Command{
	Use:   "similar [image-file]",
	Short: "Find catalog images similar to a given photo",
	Long: `Similar computes the feature vector of one image and queries an
approximate nearest-neighbor index over the catalog descriptors.

The query image does not have to be part of the set; any readable image
file works. Useful for "have we already shot this?" checks in the field.

Examples:
  fieldprep similar -o ./prepared ./new-shot.jpg
  fieldprep similar -o ./prepared --limit 5 --threshold 0.9 ./new-shot.jpg`,
	Args: cobra.ExactArgs(1),
	RunE: runSimilar,
}

func init() {
	rootCmd.AddCommand(similarCmd)

	similarCmd.Flags().StringP("output", "o", "", "Processed output folder (required)")
	similarCmd.Flags().Int("limit", 10, "Maximum number of results")
	similarCmd.Flags().Float64("threshold", 0, "Only report matches at or above this similarity")
	similarCmd.MarkFlagRequired("output")
}

func runSimilar(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := config.Load()

	store, err := catalog.Open(mustGetString(cmd, "output"))
	if err != nil {
		return err
	}
	defer store.Close()

	query, err := queryVector(ctx, cfg, args[0])
	if err != nil {
		return err
	}

	images, err := store.ListImages(ctx, false)
	if err != nil {
		return err
	}
	byID := make(map[int64]*catalog.Image, len(images))
	entries := make([]dedup.Entry, 0, len(images))
	for _, img := range images {
		byID[img.ID] = img
		entries = append(entries, dedup.Entry{ID: img.ID, Vector: img.Descriptor})
	}

	ix := dedup.NewIndex(entries)
	matches := ix.Search(query, mustGetInt(cmd, "limit"))

	threshold := mustGetFloat64(cmd, "threshold")
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SIMILARITY\tSITE\tIMAGE")
	found := 0
	for _, m := range matches {
		if m.Similarity < threshold {
			continue
		}
		img := byID[m.ID]
		fmt.Fprintf(w, "%.4f\t%s\t%s\n", m.Similarity, img.SiteID, img.OutputRel())
		found++
	}
	w.Flush()
	if found == 0 {
		fmt.Println("no matches")
	}
	return nil
}

// queryVector computes the descriptor of the query image with the
// configured provider.
func queryVector(ctx context.Context, cfg *config.Config, path string) ([]float32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read query image: %w", err)
	}
	provider, err := descriptor.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	vec, err := provider.Vector(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("could not compute the query descriptor: %w", err)
	}
	return vec, nil
}
