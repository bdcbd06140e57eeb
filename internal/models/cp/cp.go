// Package cp implements the Canonical Polyadic (CP) decomposition model
package cp

import (
	"fmt"
	"math/rand"

	"github.com/viterin/vek"
	"gonum.org/v1/gonum/mat"

	"github.com/cnclabs/kbc/internal/models"
	"github.com/cnclabs/kbc/pkg/embedding"
	"github.com/cnclabs/kbc/pkg/knowledge"
)

// CP scores a triple as the trilinear product Σ_i h_i * r_i * t_i.
// Heads and tails have separate tables, so the model is asymmetric.
type CP struct {
	sizes models.Sizes
	rank  int

	lhs *embedding.Table
	rel *embedding.Table
	rhs *embedding.Table
}

var _ models.Model = (*CP)(nil)

// New creates a CP model with N(0, 1) * initSize embeddings
func New(sizes models.Sizes, rank int, initSize float64, rng *rand.Rand) *CP {
	return &CP{
		sizes: sizes,
		rank:  rank,
		lhs:   embedding.NewNormal(sizes[0], rank, initSize, rng),
		rel:   embedding.NewNormal(sizes[1], rank, initSize, rng),
		rhs:   embedding.NewNormal(sizes[2], rank, initSize, rng),
	}
}

// FromTables builds a CP model over existing head, relation and tail tables
func FromTables(lhs, rel, rhs *embedding.Table) (*CP, error) {
	if lhs == nil || rel == nil || rhs == nil {
		return nil, fmt.Errorf("%w: cp needs lhs, rel and rhs tables", models.ErrShape)
	}
	rank := lhs.Width()
	if rel.Width() != rank || rhs.Width() != rank {
		return nil, fmt.Errorf("%w: widths lhs=%d rel=%d rhs=%d",
			models.ErrShape, lhs.Width(), rel.Width(), rhs.Width())
	}
	return &CP{
		sizes: models.Sizes{lhs.Rows(), rel.Rows(), rhs.Rows()},
		rank:  rank,
		lhs:   lhs,
		rel:   rel,
		rhs:   rhs,
	}, nil
}

func (m *CP) Variant() models.Variant { return models.VariantCP }

func (m *CP) Sizes() models.Sizes { return m.sizes }

func (m *CP) Rank() int { return m.rank }

// Tables returns the head, relation and tail tables
func (m *CP) Tables() (lhs, rel, rhs *embedding.Table) {
	return m.lhs, m.rel, m.rhs
}

// score computes Σ_i h_i * r_i * t_i for one triple
func score(h, r, t []float64) float64 {
	return vek.Dot(vek.Mul(h, r), t)
}

func (m *CP) Score(triples []knowledge.Triple) []float64 {
	out := make([]float64, len(triples))
	for i, t := range triples {
		out[i] = score(m.lhs.Row(t.Head), m.rel.Row(t.Relation), m.rhs.Row(t.Tail))
	}
	return out
}

func (m *CP) ScoreEmb(lhs, rel, rhs *mat.Dense) float64 {
	rows, cols := lhs.Dims()
	if !sameDims(rows, cols, rel) || !sameDims(rows, cols, rhs) {
		panic(models.ErrShape)
	}
	sum := 0.0
	for i := 0; i < rows; i++ {
		sum += score(lhs.RawRowView(i), rel.RawRowView(i), rhs.RawRowView(i))
	}
	return sum / float64(rows)
}

func (m *CP) Forward(triples []knowledge.Triple) *mat.Dense {
	var out mat.Dense
	out.Mul(m.Queries(triples), m.rhs.Dense().T())
	return &out
}

func (m *CP) Queries(triples []knowledge.Triple) *mat.Dense {
	return m.QueryEmb(m.QueriesSeparated(triples))
}

func (m *CP) QueriesSeparated(triples []knowledge.Triple) (lhs, rel *mat.Dense) {
	return m.lhs.Gather(models.Heads(triples)), m.rel.Gather(models.Relations(triples))
}

// QueryEmb returns the element-wise product h * r
func (m *CP) QueryEmb(lhs, rel *mat.Dense) *mat.Dense {
	var out mat.Dense
	out.MulElem(lhs, rel)
	return &out
}

func (m *CP) RHS(begin, size int) mat.Matrix {
	return m.rhs.Chunk(begin, size).T()
}

// Candidates returns the tail table
func (m *CP) Candidates() *embedding.Table {
	return m.rhs
}

func sameDims(rows, cols int, x *mat.Dense) bool {
	r, c := x.Dims()
	return r == rows && c == cols
}
