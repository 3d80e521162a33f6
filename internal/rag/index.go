package rag

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// Chunk is one retrievable passage. Page is 1-based.
type Chunk struct {
	Page int    `json:"page"`
	Text string `json:"text"`
}

type Hit struct {
	Chunk Chunk
	Score float64
}

// Snapshot is the serialisable form of an Index.
type Snapshot struct {
	Chunks  []Chunk     `json:"chunks"`
	Vectors [][]float32 `json:"vectors"`
}

// Index is an exact nearest-neighbour index over chunk embeddings using
// cosine similarity. It is immutable after construction.
type Index struct {
	chunks  []Chunk
	vectors [][]float32
	norms   []float64
	dim     int
}

func NewIndex(chunks []Chunk, vectors [][]float32) (*Index, error) {
	if len(chunks) == 0 {
		return nil, errors.New("index needs at least one chunk")
	}
	if len(chunks) != len(vectors) {
		return nil, fmt.Errorf("chunk/vector count mismatch: %d chunks, %d vectors", len(chunks), len(vectors))
	}
	dim := len(vectors[0])
	if dim == 0 {
		return nil, errors.New("empty embedding vector")
	}
	norms := make([]float64, len(vectors))
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("vector %d has dimension %d, want %d", i, len(v), dim)
		}
		norms[i] = norm(v)
	}
	return &Index{chunks: chunks, vectors: vectors, norms: norms, dim: dim}, nil
}

func FromSnapshot(s *Snapshot) (*Index, error) {
	if s == nil {
		return nil, errors.New("nil snapshot")
	}
	return NewIndex(s.Chunks, s.Vectors)
}

func (ix *Index) Snapshot() *Snapshot {
	return &Snapshot{Chunks: ix.chunks, Vectors: ix.vectors}
}

func (ix *Index) Len() int {
	return len(ix.chunks)
}

// Search returns up to k chunks ordered by descending similarity; ties keep
// document order.
func (ix *Index) Search(query []float32, k int) ([]Hit, error) {
	if len(query) != ix.dim {
		return nil, fmt.Errorf("query dimension %d, index dimension %d", len(query), ix.dim)
	}
	if k <= 0 {
		return nil, nil
	}

	qn := norm(query)
	hits := make([]Hit, len(ix.chunks))
	for i, v := range ix.vectors {
		hits[i] = Hit{Chunk: ix.chunks[i], Score: cosine(query, v, qn, ix.norms[i])}
	}
	sort.SliceStable(hits, func(a, b int) bool {
		return hits[a].Score > hits[b].Score
	})
	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k], nil
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func cosine(a, b []float32, na, nb float64) float64 {
	if na == 0 || nb == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (na * nb)
}
