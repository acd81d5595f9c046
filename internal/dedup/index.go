package dedup

import (
	"sort"

	"github.com/coder/hnsw"
)

const hnswMaxNeighbors = 16

// Index is an approximate nearest-neighbor index over catalog descriptors,
// used by interactive queries (which image is this most similar to?) where
// an exhaustive scan per query would be wasteful.
type Index struct {
	graph *hnsw.Graph[int64]
}

// Match is one nearest-neighbor result.
type Match struct {
	ID         int64
	Similarity float64
}

// NewIndex builds an HNSW graph from the entries that carry a vector.
func NewIndex(entries []Entry) *Index {
	g := hnsw.NewGraph[int64]()
	g.M = hnswMaxNeighbors
	g.Ml = 1.0 / float64(hnswMaxNeighbors)
	g.Distance = hnsw.CosineDistance

	for _, e := range entries {
		if e.Vector == nil {
			continue
		}
		g.Add(hnsw.MakeNode(e.ID, e.Vector))
	}

	return &Index{graph: g}
}

// Search returns up to k nearest neighbors of the query vector, most
// similar first. Cosine distance from the graph is converted back to
// similarity (1 - distance).
func (ix *Index) Search(query []float32, k int) []Match {
	if ix.graph == nil || ix.graph.Len() == 0 {
		return nil
	}

	neighbors := ix.graph.Search(query, k)

	matches := make([]Match, 0, len(neighbors))
	for _, node := range neighbors {
		dist := hnsw.CosineDistance(query, node.Value)
		matches = append(matches, Match{ID: node.Key, Similarity: 1 - float64(dist)})
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Similarity > matches[j].Similarity })
	return matches
}
