package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"

	"github.com/kozaktomas/fieldprep/internal/catalog"
	"github.com/kozaktomas/fieldprep/internal/config"
	"github.com/kozaktomas/fieldprep/internal/dedup"
	"github.com/kozaktomas/fieldprep/internal/descriptor"
	"github.com/kozaktomas/fieldprep/internal/report"
	"github.com/kozaktomas/fieldprep/internal/shrink"
)

func newBar(count int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(count,
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("images"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)
}

// openLockedStore opens the catalog under the output root and takes the
// exclusive run lock.
func openLockedStore(outputRoot string) (*catalog.Store, error) {
	store, err := catalog.Open(outputRoot)
	if err != nil {
		return nil, err
	}
	if err := store.Lock(); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

// computeDescriptors fills in the feature vector of every catalog image
// that does not have one yet. Vectors are cached in the shared Postgres
// cache when DATABASE_URL is configured, keyed by content hash, so
// re-runs and teammates skip recomputation. Per-image failures are
// collected; an image without a vector is excluded from dedup, never
// deleted.
func computeDescriptors(ctx context.Context, cfg *config.Config, store *catalog.Store) []error {
	images, err := store.ListImages(ctx, false)
	if err != nil {
		return []error{err}
	}

	var pending []*catalog.Image
	for _, img := range images {
		if img.Descriptor == nil {
			pending = append(pending, img)
		}
	}
	if len(pending) == 0 {
		return nil
	}

	provider, err := descriptor.New(ctx, cfg)
	if err != nil {
		return []error{err}
	}

	var cache *descriptor.Cache
	if cfg.Database.URL != "" {
		cache, err = descriptor.OpenCache(&cfg.Database)
		if err != nil {
			fmt.Printf("descriptor cache unavailable, computing locally: %v\n", err)
		}
	}
	defer cache.Close()

	fmt.Printf("Computing %s descriptors for %d images\n", provider.Name(), len(pending))
	bar := newBar(len(pending), "Computing descriptors")

	var mu sync.Mutex
	var errs []error
	collect := func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)

	for _, img := range pending {
		g.Go(func() error {
			defer bar.Add(1)

			data, err := os.ReadFile(filepath.Join(store.Root(), img.OutputRel()))
			if err != nil {
				collect(fmt.Errorf("%s: %w", img.OutputName, err))
				return nil
			}

			hash := descriptor.ContentHash(data)
			vec, err := cache.Get(gctx, hash, provider.Name())
			if err != nil {
				vec = nil
			}
			if vec == nil {
				vec, err = provider.Vector(gctx, data)
				if err != nil {
					collect(fmt.Errorf("%s: %w", img.OutputName, err))
					return nil
				}
				if err := cache.Put(gctx, hash, provider.Name(), vec); err != nil {
					fmt.Printf("could not cache descriptor for %s: %v\n", img.OutputName, err)
				}
			}

			return store.UpdateDescriptor(gctx, img.ID, vec)
		})
	}
	if err := g.Wait(); err != nil {
		errs = append(errs, err)
	}
	fmt.Println()
	return errs
}

// runDedup executes the similarity graph build and the deterministic
// resolution pass over the whole catalog, applies deletions to the file
// tree and the catalog, records the audit tables, and refreshes the
// audit CSV exports.
func runDedup(ctx context.Context, cfg *config.Config, store *catalog.Store, inputRoot string, threshold float64, siteAware bool, stats *report.Stats) error {
	images, err := store.ListImages(ctx, false)
	if err != nil {
		return err
	}

	entries := make([]dedup.Entry, len(images))
	missing := 0
	for i, img := range images {
		entries[i] = dedup.Entry{
			ID:     img.ID,
			Site:   img.SiteID,
			Key:    img.OrderKey(),
			Vector: img.Descriptor,
		}
		if img.Descriptor == nil {
			missing++
		}
	}
	if missing > 0 {
		fmt.Printf("warning: %d images have no descriptor and are excluded from deduplication\n", missing)
	}

	fmt.Printf("Comparing %d image pairs at threshold %.2f\n", dedup.TotalPairs(len(entries)), threshold)
	bar := newBar(int(dedup.TotalPairs(len(entries))), "Comparing pairs")
	edges := dedup.BuildGraph(entries, dedup.BuildOptions{
		Threshold: threshold,
		Workers:   cfg.Workers,
		Progress:  func(done, total int64) { bar.Set64(done) },
	})
	fmt.Println()

	res := dedup.Resolve(entries, edges, dedup.ResolveOptions{SiteAware: siteAware})

	run, err := store.NewRun(ctx, "dedup")
	if err != nil {
		return err
	}

	var deleted, flagged []int64
	for idx := range res.Deleted {
		deleted = append(deleted, entries[idx].ID)
		if err := os.Remove(filepath.Join(store.Root(), images[idx].OutputRel())); err != nil && !os.IsNotExist(err) {
			fmt.Printf("could not remove %s: %v\n", images[idx].OutputName, err)
		}
	}
	for idx := range res.SimilarFlagged {
		flagged = append(flagged, entries[idx].ID)
	}
	if err := store.MarkDeleted(ctx, deleted); err != nil {
		return err
	}
	if err := store.MarkSimilarDeleted(ctx, flagged); err != nil {
		return err
	}

	pairs := make([]catalog.DuplicatePair, 0, len(res.Intra))
	for _, e := range res.Intra {
		pairs = append(pairs, catalog.DuplicatePair{
			RunID:    run.ID,
			Image1ID: entries[e.A].ID,
			Image2ID: entries[e.B].ID,
			Score:    e.Score,
			Outcome:  catalog.PairOutcome(e.Outcome),
		})
	}
	if err := store.InsertDuplicatePairs(ctx, pairs); err != nil {
		return err
	}

	cross := make([]catalog.CrossSitePair, 0, len(res.CrossKept))
	for _, e := range res.CrossKept {
		cross = append(cross, catalog.CrossSitePair{
			RunID:    run.ID,
			Image1ID: entries[e.A].ID,
			Image2ID: entries[e.B].ID,
			Score:    e.Score,
		})
	}
	if err := store.InsertCrossSitePairs(ctx, cross); err != nil {
		return err
	}

	checks := make([]catalog.SiteCheck, 0, len(res.Verify))
	for _, v := range res.Verify {
		checks = append(checks, catalog.SiteCheck{
			RunID:     run.ID,
			ImageID:   entries[v.Survivor].ID,
			PartnerID: entries[v.Partner].ID,
			Score:     v.Score,
		})
	}
	if err := store.InsertSiteChecks(ctx, checks); err != nil {
		return err
	}

	run.Threshold = threshold
	run.Deleted = int64(len(deleted))
	if err := store.UpdateRun(ctx, run); err != nil {
		return err
	}

	if err := store.ExportAuditCSVs(ctx, inputRoot); err != nil {
		return err
	}

	stats.DedupRun = true
	stats.Threshold = threshold
	stats.Deleted = len(deleted)
	stats.Flagged = len(flagged)
	stats.CrossSite = len(cross)
	stats.ToVerify = len(checks)
	return nil
}

// runCompress plans and applies the size-budget compression over every
// surviving image, writes the before/after histograms, and records the
// run outcome.
func runCompress(ctx context.Context, cfg *config.Config, store *catalog.Store, budget int64, stats *report.Stats) error {
	images, err := store.ListImages(ctx, false)
	if err != nil {
		return err
	}
	if len(images) == 0 {
		return fmt.Errorf("nothing to compress: the output set is empty")
	}

	items := make([]shrink.Item, len(images))
	before := make([]int64, len(images))
	for i, img := range images {
		items[i] = shrink.Item{
			ID:   img.ID,
			Path: filepath.Join(store.Root(), img.OutputRel()),
			Size: img.ByteSize,
		}
		before[i] = img.ByteSize
	}

	plan, err := shrink.NewPlan(items, budget, cfg.Jpeg.FloorRatio)
	if err != nil {
		return err
	}
	fmt.Println(plan.Summary())

	run, err := store.NewRun(ctx, "compress")
	if err != nil {
		return err
	}

	var achieved int64
	after := make([]int64, 0, len(images))
	if plan.NoWork {
		achieved = plan.Total
		after = before
	} else {
		bar := newBar(len(plan.Items), "Compressing")
		outcomes, err := shrink.Apply(ctx, plan, shrink.EncodeOptions{
			MinQuality: cfg.Jpeg.MinQuality,
			MaxQuality: cfg.Jpeg.MaxQuality,
			Workers:    cfg.Workers,
			Progress:   func(done, total int) { bar.Set(done) },
		})
		if err != nil {
			return err
		}
		fmt.Println()

		for _, out := range outcomes {
			if out.Err != nil {
				fmt.Printf("skipped %s: %v\n", filepath.Base(out.Item.Path), out.Err)
			}
			if out.NewSize != out.Item.Size {
				if err := store.UpdateByteSize(ctx, out.Item.ID, out.NewSize); err != nil {
					return err
				}
				stats.Shrunk++
			}
			achieved += out.NewSize
			after = append(after, out.NewSize)
		}
	}

	if err := shrink.WriteDistributions(store.Root(), catalog.SizeDistDir, before, after); err != nil {
		return err
	}

	run.Budget = budget
	run.Cap = plan.Cap
	run.Achieved = achieved
	if achieved > budget {
		run.Deficit = achieved - budget
	}
	if err := store.UpdateRun(ctx, run); err != nil {
		return err
	}

	stats.CompressRun = true
	stats.Budget = budget
	stats.Cap = plan.Cap
	stats.Achieved = achieved
	stats.Deficit = run.Deficit
	return nil
}
