package dedup

import (
	"math/rand"
	"sort"
	"testing"
)

// vectors chosen so cosine similarities are easy to reason about:
// identical vectors score 1, orthogonal score 0.
func entry(id int64, site, key string, vec []float32) Entry {
	return Entry{ID: id, Site: site, Key: key, Vector: vec}
}

func deletedIDs(entries []Entry, res *Result) []int64 {
	var ids []int64
	for idx := range res.Deleted {
		ids = append(ids, entries[idx].ID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func TestBuildGraph_ThresholdAndSinglePairEvaluation(t *testing.T) {
	entries := []Entry{
		entry(1, "S01", "a", []float32{1, 0, 0}),
		entry(2, "S01", "b", []float32{1, 0, 0}),
		entry(3, "S01", "c", []float32{0, 1, 0}),
	}

	edges := BuildGraph(entries, BuildOptions{Threshold: 0.94, Workers: 4})

	if len(edges) != 1 {
		t.Fatalf("expected exactly one edge for one qualifying pair, got %d", len(edges))
	}
	e := edges[0]
	if entries[e.A].ID != 1 || entries[e.B].ID != 2 {
		t.Errorf("unexpected edge endpoints: %d-%d", entries[e.A].ID, entries[e.B].ID)
	}
	if e.Score < 0.94 {
		t.Errorf("retained edge must satisfy the threshold, score %f", e.Score)
	}
}

func TestBuildGraph_SkipsMissingVectors(t *testing.T) {
	entries := []Entry{
		entry(1, "S01", "a", []float32{1, 0}),
		entry(2, "S01", "b", nil), // feature vector could not be computed
		entry(3, "S01", "c", []float32{1, 0}),
	}

	edges := BuildGraph(entries, BuildOptions{Threshold: 0.9, Workers: 2})

	for _, e := range edges {
		if entries[e.A].ID == 2 || entries[e.B].ID == 2 {
			t.Fatalf("entry without a vector must not appear in any edge")
		}
	}
	if len(edges) != 1 {
		t.Errorf("expected the 1-3 edge only, got %d edges", len(edges))
	}
}

func TestBuildGraph_ProgressReachesTotal(t *testing.T) {
	entries := make([]Entry, 20)
	for i := range entries {
		entries[i] = entry(int64(i), "S01", string(rune('a'+i)), []float32{float32(i), 1})
	}

	var last int64
	BuildGraph(entries, BuildOptions{
		Threshold: 0.99,
		Workers:   3,
		Progress: func(done, total int64) {
			if done > last {
				last = done
			}
			if total != TotalPairs(len(entries)) {
				t.Fatalf("unexpected total %d", total)
			}
		},
	})

	if last != TotalPairs(len(entries)) {
		t.Errorf("progress must reach %d, got %d", TotalPairs(len(entries)), last)
	}
}

// Chain scenario: A-B 0.97 and B-C 0.95 above threshold, A-C far below.
// B is shared by both qualifying edges and is deleted; A and C survive,
// each flagged because their partner B was removed.
func TestResolve_ChainDeletesSharedImage(t *testing.T) {
	entries := []Entry{
		entry(1, "S01", "a", nil),
		entry(2, "S01", "b", nil),
		entry(3, "S01", "c", nil),
	}
	edges := []Edge{
		{A: 0, B: 1, Score: 0.97},
		{A: 1, B: 2, Score: 0.95},
	}

	res := Resolve(entries, edges, ResolveOptions{SiteAware: true})

	if got := deletedIDs(entries, res); len(got) != 1 || got[0] != 2 {
		t.Fatalf("expected only B (id 2) deleted, got %v", got)
	}
	if !res.SimilarFlagged[0] || !res.SimilarFlagged[2] {
		t.Error("both survivors had an edge to the deleted B and must be flagged")
	}
	if res.SimilarFlagged[1] {
		t.Error("deleted image must not carry the survivor flag")
	}

	outcomes := map[Outcome]int{}
	for _, re := range res.Intra {
		outcomes[re.Outcome]++
	}
	if outcomes[OutcomeSecond] != 1 || outcomes[OutcomeFirst] != 1 {
		t.Errorf("unexpected outcomes: %v", outcomes)
	}
}

func TestResolve_OrderIndependent(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	baseEntries := []Entry{
		entry(1, "S01", "s01/p1", nil),
		entry(2, "S01", "s01/p2", nil),
		entry(3, "S01", "s01/p3", nil),
		entry(4, "S01", "s01/p4", nil),
		entry(5, "S01", "s01/p5", nil),
	}
	baseEdges := []Edge{
		{A: 0, B: 1, Score: 0.97},
		{A: 1, B: 2, Score: 0.95},
		{A: 2, B: 3, Score: 0.95},
		{A: 0, B: 4, Score: 0.96},
	}

	want := deletedIDs(baseEntries, Resolve(baseEntries, baseEdges, ResolveOptions{SiteAware: true}))

	for trial := 0; trial < 10; trial++ {
		edges := make([]Edge, len(baseEdges))
		copy(edges, baseEdges)
		rng.Shuffle(len(edges), func(i, j int) { edges[i], edges[j] = edges[j], edges[i] })

		got := deletedIDs(baseEntries, Resolve(baseEntries, edges, ResolveOptions{SiteAware: true}))
		if len(got) != len(want) {
			t.Fatalf("trial %d: deletion set size changed: want %v got %v", trial, want, got)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("trial %d: deletion set changed: want %v got %v", trial, want, got)
			}
		}
	}
}

func TestResolve_TieBreakDeletesLaterKey(t *testing.T) {
	entries := []Entry{
		entry(1, "S01", "s01/earlier", nil),
		entry(2, "S01", "s01/later", nil),
	}
	edges := []Edge{{A: 0, B: 1, Score: 0.99}}

	res := Resolve(entries, edges, ResolveOptions{SiteAware: true})

	if got := deletedIDs(entries, res); len(got) != 1 || got[0] != 2 {
		t.Errorf("the lexicographically later image must be deleted, got %v", got)
	}
}

// Cross-site scenario: both endpoints survive and the pair is recorded,
// never auto-resolved.
func TestResolve_CrossSitePairBothKept(t *testing.T) {
	entries := []Entry{
		entry(1, "S01", "s01/a", nil),
		entry(2, "S02", "s02/b", nil),
	}
	edges := []Edge{{A: 0, B: 1, Score: 0.95}}

	res := Resolve(entries, edges, ResolveOptions{SiteAware: true})

	if len(res.Deleted) != 0 {
		t.Errorf("cross-site pairs must never delete, got %v", deletedIDs(entries, res))
	}
	if len(res.CrossKept) != 1 {
		t.Fatalf("expected one cross-site record, got %d", len(res.CrossKept))
	}
	if len(res.Verify) != 0 {
		t.Errorf("no verification records expected, got %d", len(res.Verify))
	}
}

func TestResolve_CrossSitePartnerDeletedQueuesSurvivorOnce(t *testing.T) {
	// B and C are same-site duplicates; C is deleted. A (different site)
	// also matched C, so A survives but must be queued for verification.
	entries := []Entry{
		entry(1, "S01", "s01/a", nil),
		entry(2, "S02", "s02/b", nil),
		entry(3, "S02", "s02/c", nil),
	}
	edges := []Edge{
		{A: 1, B: 2, Score: 0.98}, // intra: deletes C
		{A: 0, B: 2, Score: 0.95}, // inter: A vs deleted C
	}

	res := Resolve(entries, edges, ResolveOptions{SiteAware: true})

	if got := deletedIDs(entries, res); len(got) != 1 || got[0] != 3 {
		t.Fatalf("expected C deleted, got %v", got)
	}
	if len(res.Verify) != 1 {
		t.Fatalf("survivor must appear in the verification queue exactly once, got %d", len(res.Verify))
	}
	v := res.Verify[0]
	if entries[v.Survivor].ID != 1 || entries[v.Partner].ID != 3 {
		t.Errorf("unexpected verification record: survivor %d partner %d",
			entries[v.Survivor].ID, entries[v.Partner].ID)
	}
	if len(res.CrossKept) != 0 {
		t.Errorf("a pair with a deleted endpoint must not appear in the cross-site table")
	}
}

func TestResolve_BothEndpointsDeletedNoRecord(t *testing.T) {
	entries := []Entry{
		entry(1, "S01", "s01/a", nil),
		entry(2, "S01", "s01/b", nil),
		entry(3, "S02", "s02/c", nil),
		entry(4, "S02", "s02/d", nil),
	}
	edges := []Edge{
		{A: 0, B: 1, Score: 0.99}, // deletes b
		{A: 2, B: 3, Score: 0.99}, // deletes d
		{A: 1, B: 3, Score: 0.95}, // inter edge between two deleted images
	}

	res := Resolve(entries, edges, ResolveOptions{SiteAware: true})

	if len(res.CrossKept) != 0 || len(res.Verify) != 0 {
		t.Error("an inter-site edge with both endpoints deleted needs no record")
	}
}

func TestResolve_EmptySiteTagRoutesCrossSite(t *testing.T) {
	// A malformed (empty) site tag is null: the image can never match the
	// same-site branch, so it survives and the pair lands in the
	// cross-site table.
	entries := []Entry{
		entry(1, "", "null/a", nil),
		entry(2, "S01", "s01/b", nil),
	}
	edges := []Edge{{A: 0, B: 1, Score: 0.99}}

	res := Resolve(entries, edges, ResolveOptions{SiteAware: true})

	if len(res.Deleted) != 0 {
		t.Error("null-site edges must never delete")
	}
	if len(res.CrossKept) != 1 {
		t.Errorf("expected cross-site record, got %d", len(res.CrossKept))
	}
}

func TestResolve_SiteAwarenessOff(t *testing.T) {
	// With site awareness off everything is one global site, so even
	// differing tags resolve as intra-site deletions.
	entries := []Entry{
		entry(1, "S01", "a", nil),
		entry(2, "S02", "b", nil),
	}
	edges := []Edge{{A: 0, B: 1, Score: 0.95}}

	res := Resolve(entries, edges, ResolveOptions{SiteAware: false})

	if got := deletedIDs(entries, res); len(got) != 1 || got[0] != 2 {
		t.Errorf("expected global-site deletion, got %v", got)
	}
	if len(res.CrossKept) != 0 {
		t.Error("the inter-site path must never trigger with site awareness off")
	}
}

func TestBuildAndResolve_EndToEndChain(t *testing.T) {
	// End-to-end over real vectors: A and B nearly identical, C close to B
	// but far from A.
	entries := []Entry{
		entry(1, "S01", "s01/a", []float32{1, 0.02, 0}),
		entry(2, "S01", "s01/b", []float32{1, 0.05, 0.03}),
		entry(3, "S01", "s01/c", []float32{1, 0.08, 0.06}),
	}

	edges := BuildGraph(entries, BuildOptions{Threshold: 0.999, Workers: 2})
	res := Resolve(entries, edges, ResolveOptions{SiteAware: true})

	total := len(entries) - len(res.Deleted)
	if total < 1 {
		t.Fatalf("at least one representative must survive each cluster")
	}
	for idx := range res.Deleted {
		if entries[idx].Vector == nil {
			t.Error("no image without a vector may be deleted")
		}
	}
}

func TestIndex_SearchFindsNearest(t *testing.T) {
	entries := []Entry{
		entry(1, "S01", "a", []float32{1, 0, 0}),
		entry(2, "S01", "b", []float32{0.99, 0.1, 0}),
		entry(3, "S01", "c", []float32{0, 1, 0}),
		entry(4, "S01", "d", nil), // must be skipped
	}

	ix := NewIndex(entries)
	matches := ix.Search([]float32{1, 0, 0}, 2)

	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	if matches[0].ID != 1 {
		t.Errorf("expected exact match first, got id %d", matches[0].ID)
	}
	if matches[0].Similarity < matches[1].Similarity {
		t.Error("matches must be ordered most similar first")
	}
}
