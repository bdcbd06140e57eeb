package inverse

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/cnclabs/kbc/internal/models"
	complex_embeddings "github.com/cnclabs/kbc/internal/models/complex"
	"github.com/cnclabs/kbc/internal/models/cp"
	"github.com/cnclabs/kbc/internal/nearest"
	"github.com/cnclabs/kbc/internal/progress"
	"github.com/cnclabs/kbc/internal/regularizers"
	"github.com/cnclabs/kbc/pkg/embedding"
	"github.com/cnclabs/kbc/pkg/knowledge"
)

func table(t *testing.T, rows ...[]float64) *embedding.Table {
	t.Helper()
	tb, err := embedding.FromRows(rows)
	require.NoError(t, err)
	return tb
}

// cpModel: head 0 with relation 0 has query embedding (1, 1).
func cpModel(t *testing.T) *cp.CP {
	t.Helper()
	m, err := cp.FromTables(
		table(t, []float64{1, 1}, []float64{2, -1}),
		table(t, []float64{1, 1}),
		table(t, []float64{1, 1}, []float64{-1, 0}, []float64{0, -3}, []float64{3, 3}),
	)
	require.NoError(t, err)
	return m
}

func searchConfig() Config {
	cfg := DefaultConfig()
	cfg.MaxSteps = 300
	return cfg
}

func TestSolve_RecoversCPObject(t *testing.T) {
	// with F2 weight 0.5 the optimum of −(q·g − ‖g‖²/2) is g = q = (1, 1)
	solver := NewSolver(cpModel(t), regularizers.F2{Weight: 0.5}, searchConfig(), nil)

	res, err := solver.SolveTriples([]knowledge.Triple{{Head: 0, Relation: 0}})
	require.NoError(t, err)
	require.Len(t, res.Matches, 1)
	assert.Equal(t, 0, res.Matches[0][0].Index)
	assert.Equal(t, []float64{1, 1}, res.Matches[0][0].Vector)
	assert.InDelta(t, 1.0, res.Guess.At(0, 0), 0.5)
	assert.InDelta(t, 1.0, res.Guess.At(0, 1), 0.5)
}

func TestSolve_ComplExMatchesEntityTable(t *testing.T) {
	// head 1 times relation i is i, packed as (0, 1)
	model, err := complex_embeddings.FromTables(
		table(t, []float64{1, 0}, []float64{0, 1}, []float64{-2, 0}),
		table(t, []float64{0, 1}),
	)
	require.NoError(t, err)

	solver := NewSolver(model, regularizers.F2{Weight: 0.5}, searchConfig(), nil)
	res, err := solver.SolveTriples([]knowledge.Triple{{Head: 0, Relation: 0}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Matches[0][0].Index)
	assert.Equal(t, models.VariantComplEx, model.Variant())
}

func TestSolve_LossDecreasesUntilStop(t *testing.T) {
	cfg := searchConfig()
	cfg.MaxSteps = 60
	solver := NewSolver(cpModel(t), regularizers.N3{Weight: 0.01}, cfg, nil)

	res, err := solver.SolveTriples([]knowledge.Triple{{Head: 1, Relation: 0}, {Head: 0, Relation: 0}})
	require.NoError(t, err)
	require.NotEmpty(t, res.Losses)
	assert.LessOrEqual(t, res.Steps, cfg.MaxSteps)
	assert.Len(t, res.Losses, res.Steps)

	// every step but the last one improved on its predecessor
	for k := 1; k < len(res.Losses)-1; k++ {
		assert.Less(t, res.Losses[k], res.Losses[k-1], "step %d", k+1)
	}
	assert.Less(t, res.Losses[len(res.Losses)-1], res.Losses[0])
}

func TestSolve_StopsAtMaxSteps(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxSteps = 7
	// without a penalty the loss is linear and keeps falling
	solver := NewSolver(cpModel(t), nil, cfg, nil)

	res, err := solver.SolveTriples([]knowledge.Triple{{Head: 0, Relation: 0}})
	require.NoError(t, err)
	assert.Equal(t, 7, res.Steps)
	assert.Len(t, res.Losses, 7)
	assert.False(t, res.Converged)
}

func TestSolve_ConvergesEarly(t *testing.T) {
	cfg := DefaultConfig()
	// the first Adam step moves each coordinate by 0.1, so the loss
	// improves by 0.2 on step two and the search stops there
	cfg.Tolerance = 0.5
	solver := NewSolver(cpModel(t), nil, cfg, nil)

	res, err := solver.SolveTriples([]knowledge.Triple{{Head: 0, Relation: 0}})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Steps)
	assert.True(t, res.Converged)

	cfg.Tolerance = 1e9
	res, err = NewSolver(cpModel(t), nil, cfg, nil).SolveTriples([]knowledge.Triple{{}})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Steps)
	assert.Empty(t, res.Losses)
}

func TestSolve_NonFiniteLossFails(t *testing.T) {
	model, err := cp.FromTables(
		table(t, []float64{math.NaN(), 1}),
		table(t, []float64{1, 1}),
		table(t, []float64{1, 1}),
	)
	require.NoError(t, err)

	res, err := NewSolver(model, nil, DefaultConfig(), nil).SolveTriples([]knowledge.Triple{{}})
	assert.ErrorIs(t, err, ErrComputation)
	assert.Nil(t, res)
}

func TestSolve_PlacementFallsBackOnce(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Strategy = nearest.Stable
	cfg.MaxCopyBytes = 8

	res, err := NewSolver(cpModel(t), nil, cfg, nil).SolveTriples([]knowledge.Triple{{}})
	require.NoError(t, err)
	assert.Equal(t, PlacementShared, res.Placement)

	cfg.MaxCopyBytes = 0
	res, err = NewSolver(cpModel(t), nil, cfg, nil).SolveTriples([]knowledge.Triple{{}})
	require.NoError(t, err)
	assert.Equal(t, PlacementDetached, res.Placement)
}

func TestSolve_MatcherBudgetFails(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Strategy = nearest.Fast
	cfg.MaxCopyBytes = 8

	res, err := NewSolver(cpModel(t), nil, cfg, nil).SolveTriples([]knowledge.Triple{{}})
	assert.ErrorIs(t, err, nearest.ErrResourceExhausted)
	assert.Nil(t, res)
}

func TestSolve_UsageErrors(t *testing.T) {
	solver := NewSolver(cpModel(t), nil, DefaultConfig(), nil)

	_, err := solver.Solve(mat.NewDense(1, 3, nil), mat.NewDense(1, 3, nil))
	assert.ErrorIs(t, err, ErrInvalidQuery)

	_, err = solver.Solve(mat.NewDense(1, 2, nil), mat.NewDense(2, 2, nil))
	assert.ErrorIs(t, err, ErrInvalidQuery)

	_, err = solver.SolveTriples(nil)
	assert.ErrorIs(t, err, ErrInvalidQuery)

	_, err = solver.SolveTriples([]knowledge.Triple{{Head: 5}})
	assert.ErrorIs(t, err, models.ErrOutOfRange)
}

func TestSolve_TopCandidatesAndSeed(t *testing.T) {
	cfg := searchConfig()
	cfg.Candidates = 3

	a, err := NewSolver(cpModel(t), regularizers.F2{Weight: 0.5}, cfg, nil).SolveTriples([]knowledge.Triple{{}})
	require.NoError(t, err)
	b, err := NewSolver(cpModel(t), regularizers.F2{Weight: 0.5}, cfg, nil).SolveTriples([]knowledge.Triple{{}})
	require.NoError(t, err)

	require.Len(t, a.Matches[0], 3)
	assert.LessOrEqual(t, a.Matches[0][0].Distance, a.Matches[0][1].Distance)
	assert.LessOrEqual(t, a.Matches[0][1].Distance, a.Matches[0][2].Distance)
	assert.True(t, mat.Equal(a.Guess, b.Guess), "same seed gives the same search")
}

type stageRecorder struct{ stages map[string]int }

func (r *stageRecorder) Report(s progress.Status) { r.stages[s.Stage]++ }

func TestSolve_ReportsProgress(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxSteps = 5
	rec := &stageRecorder{stages: map[string]int{}}
	solver := NewSolver(cpModel(t), nil, cfg, nil)
	solver.Reporter = rec

	_, err := solver.SolveTriples([]knowledge.Triple{{}, {Head: 1}})
	require.NoError(t, err)
	assert.Equal(t, 5, rec.stages["search"])
	assert.Equal(t, 2, rec.stages["match"])
}

func TestCache(t *testing.T) {
	cache, err := NewCache(NewSolver(cpModel(t), nil, DefaultConfig(), nil), 2)
	require.NoError(t, err)

	first, hit, err := cache.Solve(0, 0)
	require.NoError(t, err)
	assert.False(t, hit)

	again, hit, err := cache.Solve(0, 0)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Same(t, first, again)

	_, _, err = cache.Solve(9, 0)
	assert.Error(t, err)
	assert.Equal(t, 1, cache.Len())

	cache.Purge()
	assert.Equal(t, 0, cache.Len())

	_, err = NewCache(nil, 0)
	assert.Error(t, err)
}
