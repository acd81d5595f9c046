package shrink

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os"
	"sync"

	"github.com/disintegration/imaging"
	"golang.org/x/sync/errgroup"
)

const (
	qualityStep = 1
	// below this the artifacts overwhelm the content
	minDimension = 320
)

// EncodeOptions tunes the per-image compression search.
type EncodeOptions struct {
	MinQuality int
	MaxQuality int
	Workers    int
	Progress   func(done, total int)
}

// Outcome records what happened to one image during Apply.
type Outcome struct {
	Item    Item
	NewSize int64
	Quality int
	Skipped bool // left untouched (already within target, or not re-encodable)
	Err     error
}

func (o EncodeOptions) withDefaults() EncodeOptions {
	if o.MinQuality <= 0 {
		o.MinQuality = 5
	}
	if o.MaxQuality <= 0 || o.MaxQuality > 100 {
		o.MaxQuality = 95
	}
	if o.Workers <= 0 {
		o.Workers = 4
	}
	return o
}

// encodeAt renders the image as JPEG at the given quality.
func encodeAt(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// fitQuality bisects the JPEG quality range for the highest quality whose
// output fits the target. Returns nil when even the minimum quality is
// too large.
func fitQuality(img image.Image, target int64, minQ, maxQ int) ([]byte, int, error) {
	lo, hi := minQ, maxQ
	var best []byte
	bestQ := 0

	for lo <= hi {
		mid := (lo + hi) / 2
		data, err := encodeAt(img, mid)
		if err != nil {
			return nil, 0, err
		}
		if int64(len(data)) <= target {
			best, bestQ = data, mid
			lo = mid + qualityStep
		} else {
			hi = mid - qualityStep
		}
	}
	return best, bestQ, nil
}

// compressFile re-encodes one image to fit its byte target. When quality
// alone cannot get there, the image is scaled down in steps until it
// fits or hits the minimum dimension.
func compressFile(path string, target int64, minQ, maxQ int) ([]byte, int, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, 0, fmt.Errorf("could not decode %s: %w", path, err)
	}

	for {
		data, quality, err := fitQuality(img, target, minQ, maxQ)
		if err != nil {
			return nil, 0, err
		}
		if data != nil {
			return data, quality, nil
		}

		b := img.Bounds()
		w := b.Dx() * 4 / 5
		if w < minDimension {
			// give up on the target, deliver the smallest we can
			data, err := encodeAt(img, minQ)
			if err != nil {
				return nil, 0, err
			}
			return data, minQ, nil
		}
		img = imaging.Resize(img, w, 0, imaging.Lanczos)
	}
}

// Apply realizes a plan on disk: every item with a target below its
// current size gets re-encoded in place. Images that cannot be
// re-encoded are skipped, and an encoded result is only written when it
// is actually smaller than the original.
func Apply(ctx context.Context, plan *Plan, opts EncodeOptions) ([]Outcome, error) {
	opts = opts.withDefaults()

	outcomes := make([]Outcome, len(plan.Items))
	var done int
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)

	for i, it := range plan.Items {
		g.Go(func() error {
			defer func() {
				mu.Lock()
				done++
				if opts.Progress != nil {
					opts.Progress(done, len(plan.Items))
				}
				mu.Unlock()
			}()

			if err := ctx.Err(); err != nil {
				return err
			}

			out := Outcome{Item: it, NewSize: it.Size}
			if it.Target >= it.Size {
				out.Skipped = true
				outcomes[i] = out
				return nil
			}

			data, quality, err := compressFile(it.Path, it.Target, opts.MinQuality, opts.MaxQuality)
			if err != nil {
				// an unreadable image is reported, not fatal
				out.Skipped = true
				out.Err = err
				outcomes[i] = out
				return nil
			}

			if int64(len(data)) >= it.Size {
				out.Skipped = true
				outcomes[i] = out
				return nil
			}

			if err := os.WriteFile(it.Path, data, 0o644); err != nil {
				return fmt.Errorf("could not write %s: %w", it.Path, err)
			}
			out.NewSize = int64(len(data))
			out.Quality = quality
			outcomes[i] = out
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outcomes, nil
}
