package report

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
)

// Stats summarizes one pipeline run for the terminal.
type Stats struct {
	Scanned int
	Placed  int
	Deleted int
	Flagged int

	DedupRun  bool
	Threshold float64
	CrossSite int
	ToVerify  int

	CompressRun bool
	Budget      int64
	Cap         int64
	Achieved    int64
	Deficit     int64
	Shrunk      int
}

func newTable(w io.Writer, title string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.SetTitle(title)
	return t
}

// RenderSummary prints the run summary tables.
func RenderSummary(w io.Writer, s Stats) {
	t := newTable(w, "Images")
	t.AppendRows([]table.Row{
		{"scanned", s.Scanned},
		{"placed", s.Placed},
		{"deleted as duplicates", s.Deleted},
		{"kept with a deleted twin", s.Flagged},
	})
	t.Render()

	if s.DedupRun {
		t := newTable(w, "Deduplication")
		t.AppendRows([]table.Row{
			{"similarity threshold", fmt.Sprintf("%.2f", s.Threshold)},
			{"cross-site pairs kept", s.CrossSite},
			{"queued for site verification", s.ToVerify},
		})
		t.Render()
	}

	if s.CompressRun {
		t := newTable(w, "Compression")
		rows := []table.Row{
			{"size budget", humanize.IBytes(uint64(s.Budget))},
			{"per-image cap", humanize.IBytes(uint64(s.Cap))},
			{"achieved total", humanize.IBytes(uint64(s.Achieved))},
			{"images compressed", s.Shrunk},
		}
		if s.Deficit > 0 {
			rows = append(rows, table.Row{"over budget by", humanize.IBytes(uint64(s.Deficit))})
		}
		t.AppendRows(rows)
		t.Render()
	}
}
