package catalog

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"
)

// hyperlink renders a spreadsheet HYPERLINK formula so the CSVs stay
// clickable when opened in Excel or LibreOffice.
func hyperlink(target, label string) string {
	return fmt.Sprintf(`=HYPERLINK(%q, %q)`, filepath.ToSlash(target), label)
}

func formatCoord(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func writeCSV(path string, header []string, rows [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dir for %s: %w", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush %s: %w", path, err)
	}
	return nil
}

// ExportImageCSV writes image_metadata.csv under _IMAGE_METADATA.
// Deleted records are omitted; the SQLite catalog is the audit log that
// retains them.
func (s *Store) ExportImageCSV(ctx context.Context) error {
	images, err := s.ListImages(ctx, false)
	if err != nil {
		return err
	}

	header := []string{
		"photo-id", "site-id", "site-name", "city", "photographer",
		"date-time", "date", "time",
		"latitude", "longitude", "altitude-m", "direction-deg",
		"latitude-reference", "longitude-reference", "altitude-m-reference", "direction-deg-reference",
		"similar-image-deleted",
		"input-image-name", "input-image-folder",
		"output-image-folder", "output-image-name", "output-image-link",
		"byte-size",
	}

	rows := make([][]string, 0, len(images))
	for _, img := range images {
		var dateTime, date, clock string
		if !img.TakenAt.IsZero() {
			dateTime = img.TakenAt.Format(time.RFC3339)
			date = img.TakenAt.Format("2006-01-02")
			clock = img.TakenAt.Format("15:04:05")
		}

		rows = append(rows, []string{
			img.PhotoID, img.SiteID, img.SiteName, img.City, img.Photographer,
			dateTime, date, clock,
			formatCoord(img.Latitude), formatCoord(img.Longitude),
			formatCoord(img.Altitude), formatCoord(img.Direction),
			img.LatRef, img.LonRef, img.AltRef, img.DirRef,
			strconv.FormatBool(img.SimilarImageDeleted),
			img.InputName, img.InputFolder,
			img.OutputFolder, img.OutputName,
			hyperlink(filepath.Join("..", img.OutputFolder, img.OutputName), img.OutputName),
			strconv.FormatInt(img.ByteSize, 10),
		})
	}

	return writeCSV(filepath.Join(s.root, MetadataDir, "image_metadata.csv"), header, rows)
}

// ExportSiteCSV writes site_data.csv with one row per site. Attribute
// columns are the union across all site descriptors; sites missing an
// attribute get an empty cell.
func (s *Store) ExportSiteCSV(ctx context.Context) error {
	sites, err := s.ListSites(ctx)
	if err != nil {
		return err
	}
	if len(sites) == 0 {
		return nil
	}

	keySet := map[string]bool{}
	for _, site := range sites {
		for k := range site.Attrs {
			if k == "city" || k == "site-name" {
				continue
			}
			keySet[k] = true
		}
	}
	extra := make([]string, 0, len(keySet))
	for k := range keySet {
		extra = append(extra, k)
	}
	sort.Strings(extra)

	header := append([]string{"site-id", "site-name", "city"}, extra...)

	rows := make([][]string, 0, len(sites))
	for _, site := range sites {
		row := []string{site.SiteID, site.SiteName, site.City}
		for _, k := range extra {
			row = append(row, site.Attrs[k])
		}
		rows = append(rows, row)
	}

	return writeCSV(filepath.Join(s.root, MetadataDir, "site_data.csv"), header, rows)
}

// ExportAuditCSVs writes the three audit tables under _SIMILAR_IMAGES.
// inputRoot is the original input tree, used for input-image hyperlinks.
func (s *Store) ExportAuditCSVs(ctx context.Context, inputRoot string) error {
	images, err := s.ListImages(ctx, true)
	if err != nil {
		return err
	}
	byID := make(map[int64]*Image, len(images))
	for _, img := range images {
		byID[img.ID] = img
	}

	similarDir := filepath.Join(s.root, SimilarDir)

	inputLink := func(img *Image) string {
		target := filepath.Join(inputRoot, img.InputFolder, img.InputName)
		if rel, relErr := filepath.Rel(similarDir, target); relErr == nil {
			target = rel
		}
		return hyperlink(target, img.InputName)
	}
	outputLink := func(img *Image) string {
		return hyperlink(filepath.Join("..", img.OutputFolder, img.OutputName), img.OutputName)
	}

	pairs, err := s.ListDuplicatePairs(ctx)
	if err != nil {
		return err
	}
	if len(pairs) > 0 {
		header := []string{
			"input-image-1-folder", "input-image-1-name", "input-image-1-link",
			"input-image-2-folder", "input-image-2-name", "input-image-2-link",
			"similarity", "output-image-deleted",
		}
		rows := make([][]string, 0, len(pairs))
		for _, p := range pairs {
			a, b := byID[p.Image1ID], byID[p.Image2ID]
			if a == nil || b == nil {
				continue
			}
			rows = append(rows, []string{
				a.InputFolder, a.InputName, inputLink(a),
				b.InputFolder, b.InputName, inputLink(b),
				strconv.FormatFloat(p.Score, 'f', 6, 64),
				string(p.Outcome),
			})
		}
		if err := writeCSV(filepath.Join(similarDir, "similarity_delete_table.csv"), header, rows); err != nil {
			return err
		}
	}

	cross, err := s.ListCrossSitePairs(ctx)
	if err != nil {
		return err
	}
	if len(cross) > 0 {
		header := []string{
			"image-1-site", "image-1-folder", "image-1-name", "image-1-link",
			"image-2-site", "image-2-folder", "image-2-name", "image-2-link",
			"similarity",
		}
		rows := make([][]string, 0, len(cross))
		for _, p := range cross {
			a, b := byID[p.Image1ID], byID[p.Image2ID]
			if a == nil || b == nil {
				continue
			}
			rows = append(rows, []string{
				displaySite(a.SiteID), a.OutputFolder, a.OutputName, outputLink(a),
				displaySite(b.SiteID), b.OutputFolder, b.OutputName, outputLink(b),
				strconv.FormatFloat(p.Score, 'f', 6, 64),
			})
		}
		if err := writeCSV(filepath.Join(similarDir, "similar_images_different_sites.csv"), header, rows); err != nil {
			return err
		}
	}

	checks, err := s.ListSiteChecks(ctx)
	if err != nil {
		return err
	}
	if len(checks) > 0 {
		header := []string{"image-folder", "image-name", "image-link", "similarity", "verified"}
		rows := make([][]string, 0, len(checks))
		for _, c := range checks {
			img := byID[c.ImageID]
			if img == nil {
				continue
			}
			rows = append(rows, []string{
				img.OutputFolder, img.OutputName, outputLink(img),
				strconv.FormatFloat(c.Score, 'f', 6, 64),
				strconv.FormatBool(c.Verified),
			})
		}
		if err := writeCSV(filepath.Join(similarDir, "verify_site_ids.csv"), header, rows); err != nil {
			return err
		}
	}

	return nil
}

// displaySite renders an empty (site-awareness off or malformed) tag as a dash.
func displaySite(siteID string) string {
	if siteID == "" {
		return "—"
	}
	return siteID
}
