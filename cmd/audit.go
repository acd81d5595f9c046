package cmd

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/fieldprep/internal/catalog"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Print the deduplication audit tables and run history",
	Long: `Audit prints everything the dedup engine ever decided about an output
set: the resolved same-site pairs, the kept cross-site matches, the
site-verification queue and the run history.`,
	RunE: runAudit,
}

func init() {
	rootCmd.AddCommand(auditCmd)

	auditCmd.Flags().StringP("output", "o", "", "Processed output folder (required)")
	auditCmd.MarkFlagRequired("output")
}

func runAudit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	store, err := catalog.Open(mustGetString(cmd, "output"))
	if err != nil {
		return err
	}
	defer store.Close()

	images, err := store.ListImages(ctx, true)
	if err != nil {
		return err
	}
	name := func(id int64) string {
		for _, img := range images {
			if img.ID == id {
				return img.OutputName
			}
		}
		return fmt.Sprintf("#%d", id)
	}

	render := func(title string, header table.Row, rows []table.Row) {
		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.SetStyle(table.StyleLight)
		t.SetTitle(title)
		t.AppendHeader(header)
		t.AppendRows(rows)
		t.Render()
		fmt.Println()
	}

	pairs, err := store.ListDuplicatePairs(ctx)
	if err != nil {
		return err
	}
	rows := make([]table.Row, 0, len(pairs))
	for _, p := range pairs {
		rows = append(rows, table.Row{name(p.Image1ID), name(p.Image2ID),
			fmt.Sprintf("%.4f", p.Score), string(p.Outcome)})
	}
	render("Resolved same-site pairs", table.Row{"image 1", "image 2", "score", "deleted"}, rows)

	cross, err := store.ListCrossSitePairs(ctx)
	if err != nil {
		return err
	}
	rows = rows[:0]
	for _, p := range cross {
		rows = append(rows, table.Row{name(p.Image1ID), name(p.Image2ID),
			fmt.Sprintf("%.4f", p.Score)})
	}
	render("Kept cross-site matches", table.Row{"image 1", "image 2", "score"}, rows)

	checks, err := store.ListSiteChecks(ctx)
	if err != nil {
		return err
	}
	rows = rows[:0]
	for _, c := range checks {
		status := "pending"
		if c.Verified {
			status = "verified"
		}
		rows = append(rows, table.Row{name(c.ImageID), name(c.PartnerID),
			fmt.Sprintf("%.4f", c.Score), status})
	}
	render("Site-verification queue", table.Row{"survivor", "deleted partner", "score", "status"}, rows)

	runs, err := store.ListRuns(ctx)
	if err != nil {
		return err
	}
	rows = rows[:0]
	for _, r := range runs {
		rows = append(rows, table.Row{r.ID[:8], r.Kind,
			r.StartedAt.Format("2006-01-02 15:04"), r.Threshold, r.Deleted, r.Cap, r.Deficit})
	}
	render("Runs", table.Row{"run", "kind", "started", "threshold", "deleted", "cap", "deficit"}, rows)

	return nil
}
