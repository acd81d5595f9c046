package shrink

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
)

const (
	histogramBins   = 30
	svgWidth        = 960
	svgHeight       = 540
	svgMarginLeft   = 70
	svgMarginRight  = 30
	svgMarginTop    = 50
	svgMarginBottom = 70
)

// Histogram buckets byte sizes into a fixed number of bins for the
// size-distribution report written before and after compression.
type Histogram struct {
	Title  string
	Counts []int
	Min    int64
	Max    int64
}

// NewHistogram buckets the sizes into histogramBins equal-width bins.
func NewHistogram(title string, sizes []int64) *Histogram {
	h := &Histogram{Title: title, Counts: make([]int, histogramBins)}
	if len(sizes) == 0 {
		return h
	}

	h.Min, h.Max = sizes[0], sizes[0]
	for _, s := range sizes {
		if s < h.Min {
			h.Min = s
		}
		if s > h.Max {
			h.Max = s
		}
	}

	span := h.Max - h.Min
	for _, s := range sizes {
		bin := 0
		if span > 0 {
			bin = int((s - h.Min) * int64(histogramBins) / (span + 1))
		}
		h.Counts[bin]++
	}
	return h
}

func (h *Histogram) maxCount() int {
	m := 1
	for _, c := range h.Counts {
		if c > m {
			m = c
		}
	}
	return m
}

// binLabel renders the lower bound of a bin as a human byte size.
func (h *Histogram) binLabel(bin int) string {
	span := h.Max - h.Min
	lower := h.Min + span*int64(bin)/int64(histogramBins)
	return humanize.IBytes(uint64(lower))
}

// SVG renders the histogram as a standalone SVG document.
func (h *Histogram) SVG() string {
	var b strings.Builder

	plotW := svgWidth - svgMarginLeft - svgMarginRight
	plotH := svgHeight - svgMarginTop - svgMarginBottom
	barW := float64(plotW) / float64(histogramBins)
	peak := h.maxCount()

	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">`,
		svgWidth, svgHeight, svgWidth, svgHeight)
	b.WriteString("\n")
	fmt.Fprintf(&b, `<rect width="%d" height="%d" fill="white"/>`, svgWidth, svgHeight)
	b.WriteString("\n")
	fmt.Fprintf(&b, `<text x="%d" y="30" font-family="sans-serif" font-size="18" text-anchor="middle">%s</text>`,
		svgWidth/2, h.Title)
	b.WriteString("\n")

	for i, c := range h.Counts {
		barH := float64(plotH) * float64(c) / float64(peak)
		x := float64(svgMarginLeft) + float64(i)*barW
		y := float64(svgMarginTop+plotH) - barH
		fmt.Fprintf(&b, `<rect x="%.1f" y="%.1f" width="%.1f" height="%.1f" fill="#4a7ab5" stroke="white" stroke-width="0.5"/>`,
			x, y, barW, barH)
		b.WriteString("\n")

		if i%5 == 0 {
			fmt.Fprintf(&b, `<text x="%.1f" y="%d" font-family="sans-serif" font-size="11" text-anchor="middle">%s</text>`,
				x+barW/2, svgMarginTop+plotH+20, h.binLabel(i))
			b.WriteString("\n")
		}
	}

	// y axis ticks at 0, half and peak
	for _, tick := range []int{0, peak / 2, peak} {
		y := float64(svgMarginTop+plotH) - float64(plotH)*float64(tick)/float64(peak)
		fmt.Fprintf(&b, `<text x="%d" y="%.1f" font-family="sans-serif" font-size="11" text-anchor="end">%d</text>`,
			svgMarginLeft-8, y+4, tick)
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, `<line x1="%d" y1="%d" x2="%d" y2="%d" stroke="black"/>`,
		svgMarginLeft, svgMarginTop+plotH, svgMarginLeft+plotW, svgMarginTop+plotH)
	b.WriteString("\n")
	fmt.Fprintf(&b, `<line x1="%d" y1="%d" x2="%d" y2="%d" stroke="black"/>`,
		svgMarginLeft, svgMarginTop, svgMarginLeft, svgMarginTop+plotH)
	b.WriteString("\n</svg>\n")

	return b.String()
}

// WriteDistributions writes the before and after histograms into the
// size-distribution directory under the output root.
func WriteDistributions(outputRoot, distDir string, before, after []int64) error {
	dir := filepath.Join(outputRoot, distDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("could not create %s: %w", dir, err)
	}

	files := []struct {
		name  string
		title string
		sizes []int64
	}{
		{"PRE_compress_image_size_dist.svg", "Image size distribution before compression", before},
		{"POST_compress_image_size_dist.svg", "Image size distribution after compression", after},
	}
	for _, f := range files {
		h := NewHistogram(f.title, f.sizes)
		if err := os.WriteFile(filepath.Join(dir, f.name), []byte(h.SVG()), 0o644); err != nil {
			return fmt.Errorf("could not write %s: %w", f.name, err)
		}
	}
	return nil
}
