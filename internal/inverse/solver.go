// Package inverse answers (head, relation, ?) queries by searching embedding
// space for the object that maximises the model's own score, then snapping the
// result to the nearest known entity.
package inverse

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/cnclabs/kbc/internal/models"
	"github.com/cnclabs/kbc/internal/nearest"
	"github.com/cnclabs/kbc/internal/progress"
	"github.com/cnclabs/kbc/internal/regularizers"
	"github.com/cnclabs/kbc/pkg/knowledge"
	"github.com/cnclabs/kbc/pkg/optim"
)

var (
	// ErrComputation is returned when the loss stops being a finite number.
	ErrComputation = errors.New("inverse query optimisation failed")
	// ErrInvalidQuery is returned for empty or mis-shaped query embeddings.
	ErrInvalidQuery = errors.New("invalid inverse query")
)

// Config holds the search hyperparameters.
type Config struct {
	MaxSteps int
	// StepSize is the Adam learning rate.
	StepSize float64
	// Candidates is the number of nearest entities returned per query.
	Candidates int
	Metric     nearest.Metric
	Strategy   nearest.Strategy
	// Tolerance stops the search once the loss improves by no more than this.
	Tolerance float64
	// InitScale bounds the uniform initial guess.
	InitScale float64
	Placement Placement
	// MaxCopyBytes bounds detached copies and the nearest-neighbor distance matrix; 0 means unbounded.
	MaxCopyBytes int64
	Seed         int64
}

// DefaultConfig returns the settings used when nothing else is configured.
func DefaultConfig() Config {
	return Config{
		MaxSteps:   20,
		StepSize:   0.1,
		Candidates: 1,
		Metric:     nearest.Euclidean,
		Strategy:   nearest.Fast,
		Tolerance:  1e-20,
		InitScale:  1e-5,
		Placement:  PlacementDetached,
		Seed:       1,
	}
}

// Result is a reconstructed object embedding and its nearest entities.
type Result struct {
	// Guess holds one reconstructed object embedding per query row.
	Guess *mat.Dense
	// Matches holds up to Candidates entities per query row, closest first.
	Matches [][]nearest.Match
	// Losses holds the loss evaluated at every step.
	Losses []float64
	Steps  int
	// Converged is true when the search stopped before MaxSteps.
	Converged bool
	Placement Placement
}

// Solver runs the inverse search for one model.
type Solver struct {
	model       models.Model
	regularizer regularizers.Regularizer
	cfg         Config

	Reporter progress.Reporter
	logger   *zap.Logger
	rng      *rand.Rand
}

// NewSolver creates a solver. A nil regularizer means no penalty and a nil
// logger disables logging.
func NewSolver(model models.Model, reg regularizers.Regularizer, cfg Config, logger *zap.Logger) *Solver {
	if reg == nil {
		reg = regularizers.None{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Solver{
		model:       model,
		regularizer: reg,
		cfg:         cfg,
		logger:      logger,
		rng:         rand.New(rand.NewSource(cfg.Seed)),
	}
}

// Config returns the solver settings.
func (s *Solver) Config() Config {
	return s.cfg
}

// SolveTriples looks up the head and relation of each triple and solves for
// the object. Tails are ignored.
func (s *Solver) SolveTriples(triples []knowledge.Triple) (*Result, error) {
	if len(triples) == 0 {
		return nil, fmt.Errorf("%w: no triples", ErrInvalidQuery)
	}
	queries := make([]knowledge.Triple, len(triples))
	for i, t := range triples {
		queries[i] = knowledge.Triple{Head: t.Head, Relation: t.Relation}
	}
	if err := models.CheckTriples(s.model, queries); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidQuery, err)
	}
	lhs, rel := s.model.QueriesSeparated(queries)
	return s.Solve(lhs, rel)
}

// Solve reconstructs an object embedding for every (lhs, rel) row by
// minimising −(score − penalty) with Adam, then matches it against the
// model's candidate table. It returns either a complete result or an error.
func (s *Solver) Solve(lhs, rel *mat.Dense) (*Result, error) {
	rows, cols := lhs.Dims()
	if rows == 0 || cols == 0 {
		return nil, fmt.Errorf("%w: empty query", ErrInvalidQuery)
	}
	if r, c := rel.Dims(); r != rows || c != cols {
		return nil, fmt.Errorf("%w: lhs %dx%d, rel %dx%d", ErrInvalidQuery, rows, cols, r, c)
	}
	if w := s.model.Candidates().Width(); w != cols {
		return nil, fmt.Errorf("%w: query width %d, candidate width %d", ErrInvalidQuery, cols, w)
	}

	placement := ResolvePlacement(s.cfg.Placement, lhs, rel, s.cfg.MaxCopyBytes, s.logger)
	lhs, rel = placement.place(lhs, rel)

	guess := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		row := guess.RawRowView(i)
		for d := range row {
			row[d] = s.rng.Float64() * s.cfg.InitScale
		}
	}

	// the score is linear in the object, so its gradient is the query embedding
	scoreGrad := s.model.QueryEmb(lhs, rel)
	scoreGrad.Scale(1/float64(rows), scoreGrad)

	reporter := progress.OrNop(s.Reporter)
	adam := optim.NewAdam(rows*cols, s.cfg.StepSize)
	grad := mat.NewDense(rows, cols, nil)

	res := &Result{Placement: placement}
	prevLoss, loss := 1000.0, 999.0

	step := 1
	for ; step <= s.cfg.MaxSteps && prevLoss-loss > s.cfg.Tolerance; step++ {
		prevLoss = loss

		penalty := s.regularizer.Penalty(lhs, rel, guess)
		loss = -(s.model.ScoreEmb(lhs, rel, guess) - penalty)
		if math.IsNaN(loss) || math.IsInf(loss, 0) {
			return nil, fmt.Errorf("%w: loss is %v at step %d", ErrComputation, loss, step)
		}
		res.Losses = append(res.Losses, loss)

		grad.Sub(s.regularizer.Gradient(guess), scoreGrad)

		adam.Step(guess.RawMatrix().Data, grad.RawMatrix().Data)

		reporter.Report(progress.Status{Stage: "search", Step: step, Total: s.cfg.MaxSteps, Loss: loss})
	}
	res.Steps = adam.Steps()
	res.Converged = res.Steps < s.cfg.MaxSteps
	res.Guess = guess

	if res.Converged {
		s.logger.Debug("search converged early", zap.Int("steps", res.Steps), zap.Float64("loss", loss))
	}

	matcher := &nearest.Matcher{
		Metric:   s.cfg.Metric,
		Strategy: s.cfg.Strategy,
		MaxBytes: s.cfg.MaxCopyBytes,
		Reporter: s.Reporter,
	}
	matches, err := matcher.Nearest(guess, s.model.Candidates().Dense(), s.cfg.Candidates)
	if err != nil {
		return nil, fmt.Errorf("match %s candidates: %w", s.model.Variant(), err)
	}
	res.Matches = matches
	return res, nil
}
