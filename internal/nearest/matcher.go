// Package nearest maps continuous vectors back to the closest rows of a
// discrete candidate matrix.
package nearest

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/viterin/vek"
	"gonum.org/v1/gonum/mat"

	"github.com/cnclabs/kbc/internal/progress"
)

var (
	ErrUnknownMetric     = errors.New("unknown similarity metric")
	ErrUnknownStrategy   = errors.New("unknown distance computation strategy")
	ErrResourceExhausted = errors.New("distance matrix exceeds memory budget")
	ErrDimension         = errors.New("query and candidate widths differ")
	ErrNoCandidates      = errors.New("no candidates to match against")
)

// Metric selects how closeness is measured.
type Metric int

const (
	// Euclidean ranks by squared L2 distance.
	Euclidean Metric = iota
	// Cosine ranks by cosine similarity; distances are reported as 1 - similarity.
	Cosine
)

func (m Metric) String() string {
	if m == Cosine {
		return "cosine"
	}
	return "l2"
}

// ParseMetric accepts "l2", "euclid", "euclidean", "cos" or "cosine", ignoring case.
func ParseMetric(name string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "cos", "cosine":
		return Cosine, nil
	case "l2", "euclid", "euclidean":
		return Euclidean, nil
	}
	return 0, fmt.Errorf("%w: %q (choose l2, euclidean or cosine)", ErrUnknownMetric, name)
}

// Strategy selects how Euclidean distances are computed.
type Strategy int

const (
	// Fast expands ‖x‖² + ‖y‖² − 2x·yᵀ into one M×N matrix product.
	Fast Strategy = iota
	// Stable sums squared differences one query at a time.
	Stable
)

func (s Strategy) String() string {
	if s == Stable {
		return "stable"
	}
	return "fast"
}

// ParseStrategy accepts "fast" or "stable", ignoring case.
func ParseStrategy(name string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "fast":
		return Fast, nil
	case "stable":
		return Stable, nil
	}
	return 0, fmt.Errorf("%w: %q (choose fast or stable)", ErrUnknownStrategy, name)
}

// Match is the closest candidate for one query.
type Match struct {
	Index    int
	Distance float64
	// Vector is a copy of the candidate row.
	Vector []float64
}

const cosineEps = 1e-8

// Matcher finds nearest candidates. The zero value matches by Euclidean
// distance with the fast strategy and no memory budget.
type Matcher struct {
	Metric   Metric
	Strategy Strategy
	// MaxBytes bounds the M×N distance matrix of the fast strategy; 0 means unbounded.
	MaxBytes int64
	Reporter progress.Reporter
}

// Closest returns the nearest candidate row for every query row.
func (m *Matcher) Closest(queries, candidates mat.Matrix) ([]Match, error) {
	top, err := m.Nearest(queries, candidates, 1)
	if err != nil {
		return nil, err
	}
	out := make([]Match, len(top))
	for i, t := range top {
		out[i] = t[0]
	}
	return out, nil
}

// Nearest returns up to k candidates per query row, closest first.
func (m *Matcher) Nearest(queries, candidates mat.Matrix, k int) ([][]Match, error) {
	qRows, qCols := queries.Dims()
	cRows, cCols := candidates.Dims()
	if qCols != cCols {
		return nil, fmt.Errorf("%w: %d vs %d", ErrDimension, qCols, cCols)
	}
	if cRows == 0 {
		return nil, ErrNoCandidates
	}
	if k <= 0 {
		k = 1
	}
	if k > cRows {
		k = cRows
	}
	reporter := progress.OrNop(m.Reporter)

	var rowDistances func(i int) []float64
	switch m.Metric {
	case Euclidean:
		switch m.Strategy {
		case Fast:
			dists, err := m.pairwiseDistances(queries, candidates)
			if err != nil {
				return nil, err
			}
			rowDistances = dists.RawRowView
		case Stable:
			rowDistances = func(i int) []float64 {
				return squaredDistances(mat.Row(nil, i, queries), candidates)
			}
		default:
			return nil, fmt.Errorf("%w: %v", ErrUnknownStrategy, int(m.Strategy))
		}
	case Cosine:
		rowDistances = func(i int) []float64 {
			return cosineDistances(mat.Row(nil, i, queries), candidates)
		}
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnknownMetric, int(m.Metric))
	}

	out := make([][]Match, qRows)
	for i := 0; i < qRows; i++ {
		dists := rowDistances(i)
		out[i] = topK(dists, k, candidates)
		reporter.Report(progress.Status{Stage: "match", Step: i + 1, Total: qRows, Loss: math.NaN()})
	}
	return out, nil
}

// pairwiseDistances returns dist[i][j] = ‖x_i − y_j‖² for every query/candidate pair.
func (m *Matcher) pairwiseDistances(x, y mat.Matrix) (*mat.Dense, error) {
	xRows, _ := x.Dims()
	yRows, _ := y.Dims()
	if need := int64(xRows) * int64(yRows) * 8; m.MaxBytes > 0 && need > m.MaxBytes {
		return nil, fmt.Errorf("%w: %d×%d needs %d bytes, budget %d",
			ErrResourceExhausted, xRows, yRows, need, m.MaxBytes)
	}

	xNorm := rowNorms(x)
	yNorm := rowNorms(y)

	dist := mat.NewDense(xRows, yRows, nil)
	dist.Mul(x, y.T())
	dist.Apply(func(i, j int, v float64) float64 {
		d := xNorm[i] + yNorm[j] - 2*v
		if d < 0 {
			d = 0
		}
		return d
	}, dist)
	return dist, nil
}

func rowNorms(x mat.Matrix) []float64 {
	rows, _ := x.Dims()
	norms := make([]float64, rows)
	for i := range norms {
		row := mat.Row(nil, i, x)
		norms[i] = vek.Dot(row, row)
	}
	return norms
}

func squaredDistances(q []float64, candidates mat.Matrix) []float64 {
	rows, _ := candidates.Dims()
	out := make([]float64, rows)
	row := make([]float64, len(q))
	for j := range out {
		mat.Row(row, j, candidates)
		diff := vek.Sub(q, row)
		out[j] = vek.Dot(diff, diff)
	}
	return out
}

// cosineDistances returns 1 − cos(q, y_j), clamping norms at cosineEps.
func cosineDistances(q []float64, candidates mat.Matrix) []float64 {
	rows, _ := candidates.Dims()
	out := make([]float64, rows)
	row := make([]float64, len(q))
	qNorm := math.Max(vek.Norm(q), cosineEps)
	for j := range out {
		mat.Row(row, j, candidates)
		yNorm := math.Max(vek.Norm(row), cosineEps)
		out[j] = 1 - vek.Dot(q, row)/(qNorm*yNorm)
	}
	return out
}

func topK(dists []float64, k int, candidates mat.Matrix) []Match {
	var order []int
	if k == 1 {
		order = []int{vek.ArgMin(dists)}
	} else {
		order = make([]int, len(dists))
		for j := range order {
			order[j] = j
		}
		sort.SliceStable(order, func(a, b int) bool {
			return dists[order[a]] < dists[order[b]]
		})
		order = order[:k]
	}

	out := make([]Match, len(order))
	for n, j := range order {
		out[n] = Match{
			Index:    j,
			Distance: dists[j],
			Vector:   mat.Row(nil, j, candidates),
		}
	}
	return out
}
