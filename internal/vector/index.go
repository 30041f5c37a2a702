package vector

import (
	"cmp"
	"math"
	"slices"

	"medrag/internal/domain"
)

// Hit is a search result: the stored position and its L2 distance to the query.
type Hit struct {
	Position int     `json:"position"`
	Distance float32 `json:"distance"`
}

// Index is a flat exact L2 index. Vectors are stored row-major and are
// never modified after Build.
type Index struct {
	dim  int
	data []float32
}

// Build copies vectors into a new Index. All vectors must share one dimension.
func Build(vectors [][]float32) (*Index, error) {
	if len(vectors) == 0 {
		return &Index{}, nil
	}
	dim := len(vectors[0])
	if dim == 0 {
		return nil, domain.IndexCorrupt("vector 0 is empty")
	}
	data := make([]float32, 0, dim*len(vectors))
	for i, v := range vectors {
		if len(v) != dim {
			return nil, domain.IndexCorrupt("vector %d has dimension %d, expected %d", i, len(v), dim)
		}
		data = append(data, v...)
	}
	return &Index{dim: dim, data: data}, nil
}

func fromFlat(dim int, data []float32) *Index {
	if len(data) == 0 {
		return &Index{dim: dim}
	}
	return &Index{dim: dim, data: data}
}

// Len is the number of stored vectors.
func (ix *Index) Len() int {
	if ix.dim == 0 {
		return 0
	}
	return len(ix.data) / ix.dim
}

// Dimension is 0 for an index built from no vectors.
func (ix *Index) Dimension() int { return ix.dim }

// Vector returns stored vector i. The slice aliases index memory.
func (ix *Index) Vector(i int) []float32 {
	return ix.data[i*ix.dim : (i+1)*ix.dim]
}

// Search returns the k nearest stored vectors by ascending distance, ties
// broken by ascending position. An empty index yields no hits.
func (ix *Index) Search(query []float32, k int) ([]Hit, error) {
	n := ix.Len()
	if n == 0 || k <= 0 {
		return []Hit{}, nil
	}
	if len(query) != ix.dim {
		return nil, domain.IndexCorrupt("query has dimension %d, index has %d", len(query), ix.dim)
	}

	hits := make([]Hit, n)
	for i := range n {
		hits[i] = Hit{Position: i, Distance: squaredL2(query, ix.Vector(i))}
	}
	slices.SortFunc(hits, func(a, b Hit) int {
		if c := cmp.Compare(a.Distance, b.Distance); c != 0 {
			return c
		}
		return cmp.Compare(a.Position, b.Position)
	})

	hits = hits[:min(k, n)]
	for i := range hits {
		hits[i].Distance = float32(math.Sqrt(float64(hits[i].Distance)))
	}
	return hits, nil
}

func squaredL2(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}
