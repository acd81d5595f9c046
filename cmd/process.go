package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/fieldprep/internal/catalog"
	"github.com/kozaktomas/fieldprep/internal/config"
	"github.com/kozaktomas/fieldprep/internal/exifdata"
	"github.com/kozaktomas/fieldprep/internal/organizer"
	"github.com/kozaktomas/fieldprep/internal/report"
	"github.com/kozaktomas/fieldprep/internal/scan"
)

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Run the full pipeline over an input folder",
	Long: `Process scans the input folder, reads EXIF metadata, copies every image
into the output folder under a chronological name, and writes the
metadata catalog and CSV exports. With --sites the input must follow the
YYYY-MM-DD/<site>/<photographer>/ upload hierarchy and output names
carry the site, city and photographer.

Optional stages:
  --dedup[=threshold]   delete near-duplicate shots (default threshold 0.94)
  --max-size GB         compress the set down to a byte budget

Examples:
  fieldprep process -i ./upload -o ./prepared
  fieldprep process -i ./upload -o ./prepared --sites --dedup
  fieldprep process -i ./upload -o ./prepared --sites --dedup=0.97 --max-size 2.5`,
	RunE: runProcess,
}

func init() {
	rootCmd.AddCommand(processCmd)

	processCmd.Flags().StringP("input", "i", "", "Input folder with collected images (required)")
	processCmd.Flags().StringP("output", "o", "", "Output folder to create (required)")
	processCmd.Flags().BoolP("sites", "s", false, "Validate and use the dated site hierarchy")
	processCmd.Flags().StringP("dedup", "d", "", "Delete near-duplicates at the given similarity threshold")
	processCmd.Flags().Lookup("dedup").NoOptDefVal = "0.94"
	processCmd.Flags().Float64P("max-size", "m", 0, "Compress the output set down to this many GB")
	processCmd.Flags().Bool("skip-map", false, "Do not render the interactive map")
	processCmd.MarkFlagRequired("input")
	processCmd.MarkFlagRequired("output")
}

func runProcess(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := config.Load()

	input := mustGetString(cmd, "input")
	output := mustGetString(cmd, "output")
	sitesMode := mustGetBool(cmd, "sites")
	skipMap := mustGetBool(cmd, "skip-map")

	threshold, dedupRequested, err := parseThreshold(mustGetString(cmd, "dedup"))
	if err != nil {
		return err
	}
	budget, compressRequested, err := parseBudgetGB(mustGetFloat64(cmd, "max-size"))
	if err != nil {
		return err
	}

	if _, err := os.Stat(output); err == nil {
		return fmt.Errorf("output folder %s already exists", output)
	}
	if err := os.MkdirAll(output, 0o755); err != nil {
		return fmt.Errorf("could not create output folder: %w", err)
	}

	// scan
	var files []scan.File
	siteDescriptors := map[string]scan.Site{}
	if sitesMode {
		set, err := scan.Sites(input)
		if err != nil {
			return err
		}
		files = set.Files
		siteDescriptors = set.Sites
	} else {
		files, err = scan.Flat(input)
		if err != nil {
			return err
		}
	}
	if len(files) == 0 {
		return fmt.Errorf("no images found in %s", input)
	}
	fmt.Printf("Found %d images\n", len(files))

	// metadata + naming
	inputs := make([]organizer.Input, len(files))
	for i, f := range files {
		meta, err := exifdata.Read(f.Path)
		if err != nil {
			fmt.Printf("could not read metadata of %s: %v\n", f.Name, err)
			meta = &exifdata.Meta{}
		}
		inputs[i] = organizer.Input{File: f, Meta: meta}
	}
	assignments := organizer.Plan(inputs, siteDescriptors)

	// copy into the output tree
	placed, placeErrs := organizer.Materialize(output, assignments)
	fmt.Printf("Placed %d images in %s\n", len(placed), output)

	store, err := openLockedStore(output)
	if err != nil {
		return err
	}
	defer store.Close()
	defer store.Unlock()

	if err := fillCatalog(cmd, store, placed, siteDescriptors); err != nil {
		return err
	}

	stats := report.Stats{Scanned: len(files), Placed: len(placed)}

	if dedupRequested {
		if errs := computeDescriptors(ctx, cfg, store); len(errs) > 0 {
			fmt.Printf("%d images failed the descriptor pass:\n", len(errs))
			for _, e := range errs {
				fmt.Printf("  %v\n", e)
			}
		}
		if err := runDedup(ctx, cfg, store, input, threshold, sitesMode, &stats); err != nil {
			return err
		}
	}

	if compressRequested {
		if err := runCompress(ctx, cfg, store, budget, &stats); err != nil {
			return err
		}
	}

	// exports
	if err := store.ExportImageCSV(ctx); err != nil {
		return err
	}
	if sitesMode {
		if err := store.ExportSiteCSV(ctx); err != nil {
			return err
		}
	}
	if !skipMap {
		if err := writeImageMap(cmd, store); err != nil {
			return err
		}
	}

	for _, e := range placeErrs {
		fmt.Printf("warning: %v\n", e)
	}
	report.RenderSummary(os.Stdout, stats)
	return nil
}

// fillCatalog persists one record per placed image plus the site table.
func fillCatalog(cmd *cobra.Command, store *catalog.Store, placed []organizer.Placed, siteDescriptors map[string]scan.Site) error {
	ctx := cmd.Context()

	for _, p := range placed {
		meta := p.Input.Meta
		img := &catalog.Image{
			PhotoID:      p.PhotoSeq,
			SiteID:       p.SiteSeq,
			SiteName:     p.Input.File.SiteID,
			Photographer: p.Input.File.Photographer,
			TakenAt:      p.Date,
			InputFolder:  p.Input.File.Folder,
			InputName:    p.Input.File.Name,
			OutputFolder: p.OutFolder,
			OutputName:   p.FinalName,
			ByteSize:     p.Size,
		}
		if site, ok := siteDescriptors[p.Input.File.SiteID]; ok {
			img.City = site.City
		}
		if meta != nil {
			img.Latitude, img.LatRef = meta.Latitude, meta.LatitudeRef
			img.Longitude, img.LonRef = meta.Longitude, meta.LongitudeRef
			img.Altitude, img.AltRef = meta.Altitude, meta.AltitudeRef
			img.Direction, img.DirRef = meta.Direction, meta.DirectionRef
		}
		if err := store.InsertImage(ctx, img); err != nil {
			return err
		}
	}

	if len(siteDescriptors) == 0 {
		return nil
	}

	// map descriptor site names onto assigned sequence ids
	seqByName := map[string]string{}
	for _, p := range placed {
		if p.SiteSeq != "" {
			seqByName[p.Input.File.SiteID] = p.SiteSeq
		}
	}

	names := make([]string, 0, len(siteDescriptors))
	for name := range siteDescriptors {
		names = append(names, name)
	}
	sort.Strings(names)

	sites := make([]catalog.Site, 0, len(names))
	for _, name := range names {
		d := siteDescriptors[name]
		attrs := map[string]string{"city": d.City}
		for k, v := range d.Attrs {
			attrs[k] = v
		}
		sites = append(sites, catalog.Site{
			SiteID:   seqByName[name],
			SiteName: name,
			City:     d.City,
			Attrs:    attrs,
		})
	}
	return store.UpsertSites(ctx, sites)
}

// writeImageMap renders image_map.html from the surviving geotagged images.
func writeImageMap(cmd *cobra.Command, store *catalog.Store) error {
	images, err := store.ListImages(cmd.Context(), false)
	if err != nil {
		return err
	}

	var markers []report.Marker
	for _, img := range images {
		if !img.HasLocation() {
			continue
		}
		date := ""
		if !img.TakenAt.IsZero() {
			date = img.TakenAt.Format("2006-01-02")
		}
		markers = append(markers, report.Marker{
			Name:         img.OutputName,
			File:         img.OutputRel(),
			SiteID:       img.SiteID,
			City:         img.City,
			Photographer: img.Photographer,
			Date:         date,
			Lat:          report.SignedCoord(*img.Latitude, img.LatRef),
			Lon:          report.SignedCoord(*img.Longitude, img.LonRef),
		})
	}

	if len(markers) == 0 {
		fmt.Println("no geotagged images, skipping the map")
		return nil
	}
	path := filepath.Join(store.Root(), "image_map.html")
	fmt.Printf("Rendering %s with %d markers\n", path, len(markers))
	return report.WriteMap(path, markers)
}

// parseThreshold parses the --dedup flag value.
func parseThreshold(s string) (float64, bool, error) {
	if s == "" {
		return 0, false, nil
	}
	var t float64
	if _, err := fmt.Sscanf(s, "%f", &t); err != nil {
		return 0, false, fmt.Errorf("invalid dedup threshold %q", s)
	}
	if t <= 0 || t > 1 {
		return 0, false, fmt.Errorf("dedup threshold must be in (0, 1], got %v", t)
	}
	return t, true, nil
}

// parseBudgetGB converts the --max-size flag (GB) to bytes.
func parseBudgetGB(gb float64) (int64, bool, error) {
	if gb == 0 {
		return 0, false, nil
	}
	if gb < 0 {
		return 0, false, fmt.Errorf("max-size must be positive, got %v", gb)
	}
	return int64(gb * float64(1<<30)), true, nil
}
