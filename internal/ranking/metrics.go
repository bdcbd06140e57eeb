package ranking

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/cnclabs/kbc/internal/models"
	"github.com/cnclabs/kbc/pkg/knowledge"
)

// DefaultHits are the cut-offs reported by ComputeMetrics when none are given.
var DefaultHits = []int{1, 3, 10}

// Metrics summarises a set of filtered ranks.
type Metrics struct {
	MRR  float64
	MR   float64
	Hits map[int]float64
}

// ComputeMetrics returns the mean reciprocal rank, the mean rank and the
// fraction of ranks at or below each cut-off in at.
func ComputeMetrics(ranks []int, at []int) Metrics {
	if len(at) == 0 {
		at = DefaultHits
	}
	m := Metrics{Hits: make(map[int]float64, len(at))}
	if len(ranks) == 0 {
		return m
	}

	raw := make([]float64, len(ranks))
	reciprocal := make([]float64, len(ranks))
	for i, r := range ranks {
		raw[i] = float64(r)
		reciprocal[i] = 1 / float64(r)
	}
	m.MR = stat.Mean(raw, nil)
	m.MRR = stat.Mean(reciprocal, nil)

	hit := make([]float64, len(ranks))
	for _, k := range at {
		for i, r := range ranks {
			hit[i] = 0
			if r <= k {
				hit[i] = 1
			}
		}
		m.Hits[k] = stat.Mean(hit, nil)
	}
	return m
}

// Direction selects which side of the test triples is predicted.
type Direction int

const (
	// Tails predicts the tail of (head, relation, ?).
	Tails Direction = iota
	// Heads predicts the head through reciprocal relations (tail, relation⁻¹, ?).
	Heads
	// Both evaluates tails and heads.
	Both
)

// ParseDirection accepts "rhs"/"tail", "lhs"/"head" or "both".
func ParseDirection(name string) (Direction, error) {
	switch strings.ToLower(name) {
	case "rhs", "tail", "tails":
		return Tails, nil
	case "lhs", "head", "heads":
		return Heads, nil
	case "both", "":
		return Both, nil
	}
	return 0, fmt.Errorf("%w: unknown direction %q", ErrInvalidQuery, name)
}

// Evaluate ranks test triples in the given direction and summarises the result
// per side ("rhs", "lhs"). Head prediction requires the model to hold
// reciprocal relations at IDs numRelations..2*numRelations-1; filters must have
// been built from the reciprocal triples too.
func (r *Ranker) Evaluate(
	model models.Model,
	test []knowledge.Triple,
	filters knowledge.Filters,
	numRelations int64,
	direction Direction,
	at []int,
) (map[string]Metrics, error) {
	out := make(map[string]Metrics, 2)

	if direction == Tails || direction == Both {
		ranks, err := r.Rank(model, test, filters)
		if err != nil {
			return nil, fmt.Errorf("rhs: %w", err)
		}
		out["rhs"] = ComputeMetrics(ranks, at)
	}

	if direction == Heads || direction == Both {
		if int64(model.Sizes()[1]) < 2*numRelations {
			return nil, fmt.Errorf("%w: head prediction needs %d reciprocal relations, model has %d",
				ErrInvalidQuery, 2*numRelations, model.Sizes()[1])
		}
		ranks, err := r.Rank(model, knowledge.Reciprocal(test, numRelations), filters)
		if err != nil {
			return nil, fmt.Errorf("lhs: %w", err)
		}
		out["lhs"] = ComputeMetrics(ranks, at)
	}

	return out, nil
}
