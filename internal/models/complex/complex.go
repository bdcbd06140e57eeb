package complex_embeddings

import (
	"fmt"
	"math/rand"

	"github.com/viterin/vek"
	"gonum.org/v1/gonum/mat"

	"github.com/cnclabs/kbc/internal/models"
	"github.com/cnclabs/kbc/pkg/embedding"
	"github.com/cnclabs/kbc/pkg/knowledge"
)

// ComplEx implements Complex Embeddings for Knowledge Graphs
// Each row packs rank real parts followed by rank imaginary parts.
// Heads and tails share the entity table; conjugating the tail makes the score asymmetric.
type ComplEx struct {
	sizes models.Sizes
	rank  int

	entities  *embedding.Table
	relations *embedding.Table
}

var _ models.Model = (*ComplEx)(nil)

// New creates a ComplEx model with N(0, 1) * initSize embeddings of width 2*rank
func New(sizes models.Sizes, rank int, initSize float64, rng *rand.Rand) *ComplEx {
	return &ComplEx{
		sizes:     models.Sizes{sizes[0], sizes[1], sizes[0]},
		rank:      rank,
		entities:  embedding.NewNormal(sizes[0], 2*rank, initSize, rng),
		relations: embedding.NewNormal(sizes[1], 2*rank, initSize, rng),
	}
}

// FromTables builds a ComplEx model over existing entity and relation tables
func FromTables(entities, relations *embedding.Table) (*ComplEx, error) {
	if entities == nil || relations == nil {
		return nil, fmt.Errorf("%w: complex needs entity and relation tables", models.ErrShape)
	}
	width := entities.Width()
	if width%2 != 0 || relations.Width() != width {
		return nil, fmt.Errorf("%w: widths entities=%d relations=%d must match and be even",
			models.ErrShape, width, relations.Width())
	}
	return &ComplEx{
		sizes:     models.Sizes{entities.Rows(), relations.Rows(), entities.Rows()},
		rank:      width / 2,
		entities:  entities,
		relations: relations,
	}, nil
}

func (cx *ComplEx) Variant() models.Variant { return models.VariantComplEx }

func (cx *ComplEx) Sizes() models.Sizes { return cx.sizes }

func (cx *ComplEx) Rank() int { return cx.rank }

// Tables returns the entity and relation tables
func (cx *ComplEx) Tables() (entities, relations *embedding.Table) {
	return cx.entities, cx.relations
}

// score computes the ComplEx score for a triple (h, r, t)
// Score = Re(<h, r, conj(t)>) = Re(Σ h_i * r_i * conj(t_i))
func (cx *ComplEx) score(h, r, t []float64) float64 {
	var sum complex128 = 0

	for d := 0; d < cx.rank; d++ {
		hd := complex(h[d], h[cx.rank+d])
		rd := complex(r[d], r[cx.rank+d])
		td := complex(t[d], t[cx.rank+d])

		sum += hd * rd * cmplxConj(td)
	}

	return real(sum)
}

func (cx *ComplEx) Score(triples []knowledge.Triple) []float64 {
	out := make([]float64, len(triples))
	for i, t := range triples {
		out[i] = cx.score(cx.entities.Row(t.Head), cx.relations.Row(t.Relation), cx.entities.Row(t.Tail))
	}
	return out
}

func (cx *ComplEx) ScoreEmb(lhs, rel, rhs *mat.Dense) float64 {
	rows, cols := lhs.Dims()
	if cols != 2*cx.rank || !sameDims(rows, cols, rel) || !sameDims(rows, cols, rhs) {
		panic(models.ErrShape)
	}
	sum := 0.0
	for i := 0; i < rows; i++ {
		sum += cx.score(lhs.RawRowView(i), rel.RawRowView(i), rhs.RawRowView(i))
	}
	return sum / float64(rows)
}

func (cx *ComplEx) Forward(triples []knowledge.Triple) *mat.Dense {
	var out mat.Dense
	out.Mul(cx.Queries(triples), cx.entities.Dense().T())
	return &out
}

func (cx *ComplEx) Queries(triples []knowledge.Triple) *mat.Dense {
	return cx.QueryEmb(cx.QueriesSeparated(triples))
}

func (cx *ComplEx) QueriesSeparated(triples []knowledge.Triple) (lhs, rel *mat.Dense) {
	return cx.entities.Gather(models.Heads(triples)), cx.relations.Gather(models.Relations(triples))
}

// QueryEmb returns [h_re*r_re - h_im*r_im, h_re*r_im + h_im*r_re], the packed product h * r
func (cx *ComplEx) QueryEmb(lhs, rel *mat.Dense) *mat.Dense {
	rows, _ := lhs.Dims()
	out := mat.NewDense(rows, 2*cx.rank, nil)
	for i := 0; i < rows; i++ {
		h, r := lhs.RawRowView(i), rel.RawRowView(i)
		hRe, hIm := h[:cx.rank], h[cx.rank:]
		rRe, rIm := r[:cx.rank], r[cx.rank:]

		row := out.RawRowView(i)
		copy(row[:cx.rank], vek.Sub(vek.Mul(hRe, rRe), vek.Mul(hIm, rIm)))
		copy(row[cx.rank:], vek.Add(vek.Mul(hRe, rIm), vek.Mul(hIm, rRe)))
	}
	return out
}

func (cx *ComplEx) RHS(begin, size int) mat.Matrix {
	return cx.entities.Chunk(begin, size).T()
}

// Candidates returns the entity table
func (cx *ComplEx) Candidates() *embedding.Table {
	return cx.entities
}

// cmplxConj returns the complex conjugate
func cmplxConj(c complex128) complex128 {
	return complex(real(c), -imag(c))
}

func sameDims(rows, cols int, x *mat.Dense) bool {
	r, c := x.Dims()
	return r == rows && c == cols
}
