package organizer

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/kozaktomas/fieldprep/internal/exifdata"
	"github.com/kozaktomas/fieldprep/internal/scan"
)

// Input pairs one scanned file with its extracted metadata.
type Input struct {
	File scan.File
	Meta *exifdata.Meta
}

// Assignment is one image with its assigned identifiers and output
// location.
type Assignment struct {
	Input     Input
	Date      time.Time // zero when no date is known
	SiteSeq   string    // "S01", empty outside sites mode
	PhotoSeq  string    // "P001"
	OutFolder string    // slash-separated, relative to the output root
	OutName   string
}

// firstWord returns the part of a multi-word site name that goes into
// the filename.
func firstWord(s string) string {
	if fields := strings.Fields(s); len(fields) > 0 {
		return fields[0]
	}
	return s
}

// takenAt picks the image date: EXIF first, the date folder as the
// sites-mode fallback.
func takenAt(in Input) time.Time {
	if in.Meta != nil && in.Meta.TakenAt != nil {
		return *in.Meta.TakenAt
	}
	return in.File.Date
}

// Plan orders the images chronologically and assigns sequential photo
// ids, and in sites mode sequential site ids in order of first
// appearance. Undated images sort last and keep their scan order.
func Plan(inputs []Input, sites map[string]scan.Site) []Assignment {
	assignments := make([]Assignment, len(inputs))
	for i, in := range inputs {
		assignments[i] = Assignment{Input: in, Date: takenAt(in)}
	}

	sort.SliceStable(assignments, func(i, j int) bool {
		di, dj := assignments[i].Date, assignments[j].Date
		if di.IsZero() != dj.IsZero() {
			return !di.IsZero()
		}
		return di.Before(dj)
	})

	photoW := padWidth(len(assignments), 3)
	siteW := padWidth(len(sites), 2)

	siteSeq := map[string]string{}
	for i := range assignments {
		a := &assignments[i]
		a.PhotoSeq = fmt.Sprintf("P%0*d", photoW, i+1)

		if siteID := a.Input.File.SiteID; siteID != "" {
			seq, ok := siteSeq[siteID]
			if !ok {
				seq = fmt.Sprintf("S%0*d", siteW, len(siteSeq)+1)
				siteSeq[siteID] = seq
			}
			a.SiteSeq = seq
		}

		a.OutFolder = outputFolder(a, sites)
		a.OutName = outputName(a, sites)
	}
	return assignments
}

// outputFolder groups sites-mode images under their city and mirrors
// the input hierarchy otherwise.
func outputFolder(a *Assignment, sites map[string]scan.Site) string {
	if a.SiteSeq != "" {
		return Fold(sites[a.Input.File.SiteID].City)
	}
	if a.Input.File.Folder == "." {
		return ""
	}
	return a.Input.File.Folder
}

// outputName builds the final filename:
//
//	sites mode: YYYYMMDD_S01-P001_City_SiteWord_Initials.ext
//	flat mode:  YYYYMMDD_P001.ext
//
// with NODATE replacing the date when none is known.
func outputName(a *Assignment, sites map[string]scan.Site) string {
	datePart := noDate
	if !a.Date.IsZero() {
		datePart = a.Date.Format("20060102")
	}

	// every output is a JPEG: non-JPEG inputs get converted on copy
	const ext = ".jpg"

	if a.SiteSeq == "" {
		return fmt.Sprintf("%s_%s%s", datePart, a.PhotoSeq, ext)
	}

	site := sites[a.Input.File.SiteID]
	parts := []string{
		datePart,
		a.SiteSeq + "-" + a.PhotoSeq,
		Fold(site.City),
		Fold(firstWord(a.Input.File.SiteID)),
	}
	if ini := Initials(a.Input.File.Photographer); ini != "" {
		parts = append(parts, ini)
	}
	return strings.Join(parts, "_") + ext
}
