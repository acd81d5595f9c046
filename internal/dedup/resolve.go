package dedup

import "sort"

// Outcome tags a resolved same-site edge with which endpoint(s) were deleted.
type Outcome string

const (
	OutcomeFirst  Outcome = "image-1"
	OutcomeSecond Outcome = "image-2"
	OutcomeBoth   Outcome = "both"
)

// ResolvedEdge is a same-site edge annotated with its deletion outcome.
type ResolvedEdge struct {
	Edge
	Outcome Outcome
}

// VerifyRecord flags a cross-site survivor for manual site verification:
// its partner was deleted by a same-site resolution, so the evidence that
// the survivor may belong to the partner's site is gone from the output.
type VerifyRecord struct {
	Survivor int // entry index of the kept image
	Partner  int // entry index of the deleted image
	Score    float64
}

// ResolveOptions configures the resolution pass.
type ResolveOptions struct {
	// SiteAware controls intra/inter classification. When false all images
	// are treated as one global site and the cross-site path never triggers.
	SiteAware bool
}

// Result is the outcome of a resolution pass, expressed in entry indices.
type Result struct {
	Deleted        map[int]bool // entry indices removed from the output set
	SimilarFlagged map[int]bool // surviving entries with a deleted same-site neighbor
	Intra          []ResolvedEdge
	CrossKept      []Edge // cross-site edges where both endpoints survived
	Verify         []VerifyRecord
}

// Resolve runs the deterministic greedy deletion pass over the similarity
// graph. The pass is sequential on purpose: each decision depends on which
// images earlier, higher-scoring edges already removed.
//
// Edges are sorted by descending score, ties broken by the fixed total
// order on endpoint keys, so the same input always yields the same deletion
// set regardless of the order edges were built in. For each live same-site
// edge the lexicographically later endpoint is deleted; edges with an
// already-deleted endpoint are skipped, which collapses duplicate-of-
// duplicate chains onto one surviving representative per cluster. This is
// a greedy cover, not a minimum vertex cover: explainability over
// optimality.
func Resolve(entries []Entry, edges []Edge, opts ResolveOptions) *Result {
	intra := make([]Edge, 0, len(edges))
	inter := make([]Edge, 0)
	for _, e := range edges {
		if isIntraSite(entries, e, opts.SiteAware) {
			intra = append(intra, e)
		} else {
			inter = append(inter, e)
		}
	}

	sortEdges(entries, intra)
	sortEdges(entries, inter)

	res := &Result{
		Deleted:        make(map[int]bool),
		SimilarFlagged: make(map[int]bool),
	}

	for _, e := range intra {
		if res.Deleted[e.A] || res.Deleted[e.B] {
			continue
		}
		res.Deleted[e.B] = true
	}

	// Outcomes and survivor flags are derived from the full intra edge list
	// after the pass, so a kept image is flagged iff at least one of its
	// same-site neighbors ended up deleted.
	for _, e := range intra {
		re := ResolvedEdge{Edge: e}
		switch {
		case res.Deleted[e.A] && res.Deleted[e.B]:
			re.Outcome = OutcomeBoth
		case res.Deleted[e.A]:
			re.Outcome = OutcomeFirst
			res.SimilarFlagged[e.B] = true
		default:
			re.Outcome = OutcomeSecond
			res.SimilarFlagged[e.A] = true
		}
		res.Intra = append(res.Intra, re)
	}

	for _, e := range inter {
		aDeleted, bDeleted := res.Deleted[e.A], res.Deleted[e.B]
		switch {
		case !aDeleted && !bDeleted:
			// A different-site match is never auto-resolved: it may indicate
			// a misassigned site rather than a true duplicate.
			res.CrossKept = append(res.CrossKept, e)
		case aDeleted && bDeleted:
			// Both removed by same-site resolutions, nothing left to review.
		case aDeleted:
			res.Verify = append(res.Verify, VerifyRecord{Survivor: e.B, Partner: e.A, Score: e.Score})
		default:
			res.Verify = append(res.Verify, VerifyRecord{Survivor: e.A, Partner: e.B, Score: e.Score})
		}
	}

	return res
}

// isIntraSite classifies an edge. An empty site tag is treated as null:
// it can never match the same-site branch, so the image routes through the
// cross-site (no-delete) logic.
func isIntraSite(entries []Entry, e Edge, siteAware bool) bool {
	if !siteAware {
		return true
	}
	a, b := entries[e.A].Site, entries[e.B].Site
	return a != "" && a == b
}

// sortEdges orders edges by descending score, then by the fixed total order
// on endpoint keys. Edges are already normalized (Key(A) < Key(B)).
func sortEdges(entries []Entry, edges []Edge) {
	sort.SliceStable(edges, func(i, j int) bool {
		if edges[i].Score != edges[j].Score {
			return edges[i].Score > edges[j].Score
		}
		if entries[edges[i].A].Key != entries[edges[j].A].Key {
			return entries[edges[i].A].Key < entries[edges[j].A].Key
		}
		return entries[edges[i].B].Key < entries[edges[j].B].Key
	})
}
