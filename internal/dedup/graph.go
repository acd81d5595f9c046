// Package dedup finds near-duplicate images across a batch and resolves
// which of each duplicate pair to keep. The similarity graph is built
// exhaustively over all unordered pairs; resolution is a deterministic
// greedy pass over score-sorted edges.
package dedup

import (
	"sync"
	"sync/atomic"

	"github.com/kozaktomas/fieldprep/internal/descriptor"
)

// Entry is one image offered to the graph builder. Entries with a nil
// Vector are excluded from every comparison and can never be deleted.
type Entry struct {
	ID     int64  // catalog image id
	Site   string // site tag; empty means null (malformed or site-awareness off)
	Key    string // fixed total order on (site, input path), used for tie-breaking
	Vector []float32
}

// Edge is one above-threshold pair. A and B index the entry slice the edge
// was built from, normalized so that Key(A) < Key(B).
type Edge struct {
	A, B  int
	Score float64
}

// BuildOptions configures the all-pairs comparison.
type BuildOptions struct {
	Threshold float64
	Workers   int
	// Progress, when set, is called after each completed outer row with the
	// number of pairs evaluated so far, out of n*(n-1)/2.
	Progress func(done, total int64)
}

// TotalPairs returns the number of comparisons for n entries.
func TotalPairs(n int) int64 {
	return int64(n) * int64(n-1) / 2
}

// BuildGraph evaluates every unordered pair of entries exactly once and
// returns the edges at or above the threshold. Pair evaluations are
// independent, so the outer index is striped across a worker pool; each
// worker appends to its own slice and the slices are merged at the end.
func BuildGraph(entries []Entry, opts BuildOptions) []Edge {
	n := len(entries)
	if n < 2 {
		return nil
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}
	if workers > n {
		workers = n
	}

	total := TotalPairs(n)
	var done atomic.Int64

	perWorker := make([][]Edge, workers)
	var wg sync.WaitGroup
	for w := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var edges []Edge
			for i := w; i < n; i += workers {
				if entries[i].Vector == nil {
					done.Add(int64(n - 1 - i))
					if opts.Progress != nil {
						opts.Progress(done.Load(), total)
					}
					continue
				}
				for j := i + 1; j < n; j++ {
					if entries[j].Vector == nil {
						continue
					}
					score := descriptor.CosineSimilarity(entries[i].Vector, entries[j].Vector)
					if score >= opts.Threshold {
						edges = append(edges, normalizeEdge(entries, i, j, score))
					}
				}
				done.Add(int64(n - 1 - i))
				if opts.Progress != nil {
					opts.Progress(done.Load(), total)
				}
			}
			perWorker[w] = edges
		}()
	}
	wg.Wait()

	var merged []Edge
	for _, edges := range perWorker {
		merged = append(merged, edges...)
	}
	return merged
}

// normalizeEdge orders the endpoints by the fixed total order so every
// downstream decision sees the same edge regardless of build order.
func normalizeEdge(entries []Entry, i, j int, score float64) Edge {
	if entries[j].Key < entries[i].Key {
		i, j = j, i
	}
	return Edge{A: i, B: j, Score: score}
}
