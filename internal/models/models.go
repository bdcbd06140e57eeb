// Package models defines the scoring capability shared by the tensor
// factorization variants used for knowledge base completion.
package models

import (
	"errors"
	"fmt"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/cnclabs/kbc/pkg/embedding"
	"github.com/cnclabs/kbc/pkg/knowledge"
)

var (
	// ErrUnknownVariant is returned when a model name maps to no variant.
	ErrUnknownVariant = errors.New("unknown model variant")
	// ErrShape is returned when embedding shapes disagree with the model.
	ErrShape = errors.New("embedding shape mismatch")
	// ErrOutOfRange is returned when a triple references an ID outside the tables.
	ErrOutOfRange = errors.New("triple id out of range")
)

// Variant tags a scoring function.
type Variant int

const (
	VariantCP Variant = iota
	VariantComplEx
)

func (v Variant) String() string {
	switch v {
	case VariantCP:
		return "cp"
	case VariantComplEx:
		return "complex"
	default:
		return fmt.Sprintf("variant(%d)", int(v))
	}
}

// ParseVariant maps a model name such as "CP" or "ComplEx" to its variant.
func ParseVariant(name string) (Variant, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "cp":
		return VariantCP, nil
	case "complex":
		return VariantComplEx, nil
	}
	return 0, fmt.Errorf("%w: %q (choose cp or complex)", ErrUnknownVariant, name)
}

// Sizes holds the vocabulary sizes (subjects, relations, objects).
type Sizes [3]int

// Model scores (subject, relation, object) triples. Implementations are pure
// functions over their embedding tables.
type Model interface {
	Variant() Variant
	Sizes() Sizes
	Rank() int

	// Score returns one score per triple.
	Score(triples []knowledge.Triple) []float64
	// ScoreEmb returns the mean row score of already looked-up embeddings.
	ScoreEmb(lhs, rel, rhs *mat.Dense) float64
	// Forward scores every triple's (head, relation) against all candidates.
	Forward(triples []knowledge.Triple) *mat.Dense

	// Queries returns the query embeddings compared against candidates.
	Queries(triples []knowledge.Triple) *mat.Dense
	// QueriesSeparated returns the raw head and relation embeddings.
	QueriesSeparated(triples []knowledge.Triple) (lhs, rel *mat.Dense)
	// QueryEmb combines raw head and relation embeddings into query embeddings.
	// Each row is also the gradient of that row's score with respect to the object.
	QueryEmb(lhs, rel *mat.Dense) *mat.Dense

	// RHS returns candidates [begin, begin+size) as a width × size matrix.
	RHS(begin, size int) mat.Matrix
	// Candidates is the table inferred objects are matched against.
	Candidates() *embedding.Table
}

// CheckTriples verifies every ID in triples indexes into the model's tables.
func CheckTriples(m Model, triples []knowledge.Triple) error {
	sizes := m.Sizes()
	for i, t := range triples {
		if t.Head < 0 || t.Head >= int64(sizes[0]) ||
			t.Relation < 0 || t.Relation >= int64(sizes[1]) ||
			t.Tail < 0 || t.Tail >= int64(sizes[2]) {
			return fmt.Errorf("%w: triple %d (%d, %d, %d) with sizes %v",
				ErrOutOfRange, i, t.Head, t.Relation, t.Tail, sizes)
		}
	}
	return nil
}

// Heads returns the head IDs of triples.
func Heads(triples []knowledge.Triple) []int64 {
	ids := make([]int64, len(triples))
	for i, t := range triples {
		ids[i] = t.Head
	}
	return ids
}

// Relations returns the relation IDs of triples.
func Relations(triples []knowledge.Triple) []int64 {
	ids := make([]int64, len(triples))
	for i, t := range triples {
		ids[i] = t.Relation
	}
	return ids
}

// Tails returns the tail IDs of triples.
func Tails(triples []knowledge.Triple) []int64 {
	ids := make([]int64, len(triples))
	for i, t := range triples {
		ids[i] = t.Tail
	}
	return ids
}
