package cp

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/cnclabs/kbc/internal/models"
	"github.com/cnclabs/kbc/pkg/embedding"
	"github.com/cnclabs/kbc/pkg/knowledge"
)

// fixture: 4 entities, 2 relations, rank 2
func newFixture(t *testing.T) *CP {
	t.Helper()
	lhs, err := embedding.FromRows([][]float64{{1, 2}, {3, 4}, {5, 6}, {7, 8}})
	require.NoError(t, err)
	rel, err := embedding.FromRows([][]float64{{0.5, -1}, {2, 0.25}})
	require.NoError(t, err)
	rhs, err := embedding.FromRows([][]float64{{-1, 1}, {2, 3}, {0, 1}, {1, 0}})
	require.NoError(t, err)
	m, err := FromTables(lhs, rel, rhs)
	require.NoError(t, err)
	return m
}

func TestScore_MatchesManualProduct(t *testing.T) {
	m := newFixture(t)
	assert.Equal(t, models.Sizes{4, 2, 4}, m.Sizes())
	assert.Equal(t, 2, m.Rank())
	assert.Equal(t, models.VariantCP, m.Variant())

	// (1*0.5)*2 + (2*-1)*3
	want := 1*0.5*2 + 2*-1*3.0
	got := m.Score([]knowledge.Triple{{Head: 0, Relation: 0, Tail: 1}})
	require.Len(t, got, 1)
	assert.InDelta(t, want, got[0], 1e-12)
}

func TestScoreEmb_IsMeanOfRowScores(t *testing.T) {
	m := newFixture(t)
	triples := []knowledge.Triple{{Head: 0, Relation: 0, Tail: 1}, {Head: 2, Relation: 1, Tail: 3}, {Head: 3, Relation: 0, Tail: 0}}

	lhs, rel := m.QueriesSeparated(triples)
	_, _, rhsTable := m.Tables()
	rhs := rhsTable.Gather(models.Tails(triples))

	scores := m.Score(triples)
	mean := (scores[0] + scores[1] + scores[2]) / 3
	assert.InDelta(t, mean, m.ScoreEmb(lhs, rel, rhs), 1e-12)
}

func TestForward_AgreesWithScore(t *testing.T) {
	m := newFixture(t)
	triples := []knowledge.Triple{{Head: 1, Relation: 1, Tail: 0}, {Head: 3, Relation: 0, Tail: 2}}

	all := m.Forward(triples)
	r, c := all.Dims()
	assert.Equal(t, 2, r)
	assert.Equal(t, 4, c)

	for i, tr := range triples {
		for tail := int64(0); tail < 4; tail++ {
			s := m.Score([]knowledge.Triple{{Head: tr.Head, Relation: tr.Relation, Tail: tail}})[0]
			assert.InDelta(t, s, all.At(i, int(tail)), 1e-12)
		}
	}
}

func TestRHS_ChunkIsTransposedSlice(t *testing.T) {
	m := newFixture(t)
	chunk := m.RHS(1, 2)
	r, c := chunk.Dims()
	assert.Equal(t, 2, r)
	assert.Equal(t, 2, c)
	assert.Equal(t, 2.0, chunk.At(0, 0))
	assert.Equal(t, 3.0, chunk.At(1, 0))
	assert.Equal(t, 1.0, chunk.At(1, 1))

	// last chunk is clipped
	_, c = m.RHS(3, 2).Dims()
	assert.Equal(t, 1, c)
}

func TestQueries_ElementWiseProduct(t *testing.T) {
	m := newFixture(t)
	q := m.Queries([]knowledge.Triple{{Head: 1, Relation: 1}})
	assert.True(t, mat.Equal(mat.NewDense(1, 2, []float64{6, 1}), q))
}

func TestFromTables_RejectsMismatchedWidths(t *testing.T) {
	a, _ := embedding.FromRows([][]float64{{1, 2}})
	b, _ := embedding.FromRows([][]float64{{1, 2, 3}})
	_, err := FromTables(a, b, a)
	assert.ErrorIs(t, err, models.ErrShape)
}

func TestNew_Shapes(t *testing.T) {
	m := New(models.Sizes{5, 3, 5}, 4, 1e-3, rand.New(rand.NewSource(1)))
	lhs, rel, rhs := m.Tables()
	assert.Equal(t, 5, lhs.Rows())
	assert.Equal(t, 3, rel.Rows())
	assert.Equal(t, 5, rhs.Rows())
	assert.Equal(t, 4, rhs.Width())
	assert.Same(t, rhs, m.Candidates())
}

func TestCheckTriples(t *testing.T) {
	m := newFixture(t)
	assert.NoError(t, models.CheckTriples(m, []knowledge.Triple{{Head: 3, Relation: 1, Tail: 3}}))
	assert.ErrorIs(t, models.CheckTriples(m, []knowledge.Triple{{Head: 0, Relation: 2, Tail: 0}}), models.ErrOutOfRange)
	assert.ErrorIs(t, models.CheckTriples(m, []knowledge.Triple{{Head: 0, Relation: 0, Tail: 4}}), models.ErrOutOfRange)
}
