// Package regularizers provides differentiable penalties on embedding factors.
package regularizers

import (
	"errors"
	"fmt"
	"strings"

	"github.com/viterin/vek"
	"gonum.org/v1/gonum/mat"
)

// ErrUnknownRegularizer is returned by New for unrecognised names.
var ErrUnknownRegularizer = errors.New("unknown regularizer")

// Regularizer is a penalty over embedding factors. Gradient returns the
// derivative of Penalty with respect to one of the factors it was given.
type Regularizer interface {
	Penalty(factors ...*mat.Dense) float64
	Gradient(factor *mat.Dense) *mat.Dense
}

// New builds a regularizer by name: "n3", "f2" or "none".
func New(name string, weight float64) (Regularizer, error) {
	switch strings.ToLower(name) {
	case "n3":
		return N3{Weight: weight}, nil
	case "f2":
		return F2{Weight: weight}, nil
	case "", "none":
		return None{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownRegularizer, name)
}

// N3 is the weighted nuclear 3-norm: Weight * Σ|x|³ / rows, summed over factors.
type N3 struct {
	Weight float64
}

func (n N3) Penalty(factors ...*mat.Dense) float64 {
	total := 0.0
	for _, f := range factors {
		rows, _ := f.Dims()
		sum := 0.0
		for i := 0; i < rows; i++ {
			a := vek.Abs(f.RawRowView(i))
			sum += vek.Dot(vek.Mul(a, a), a)
		}
		total += n.Weight * sum / float64(rows)
	}
	return total
}

func (n N3) Gradient(factor *mat.Dense) *mat.Dense {
	rows, cols := factor.Dims()
	scale := 3 * n.Weight / float64(rows)
	out := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		x := factor.RawRowView(i)
		g := vek.MulNumber(vek.Mul(x, vek.Abs(x)), scale)
		out.SetRow(i, g)
	}
	return out
}

// F2 is the weighted squared Frobenius norm: Weight * Σx² / rows, summed over factors.
type F2 struct {
	Weight float64
}

func (f2 F2) Penalty(factors ...*mat.Dense) float64 {
	total := 0.0
	for _, f := range factors {
		rows, _ := f.Dims()
		sum := 0.0
		for i := 0; i < rows; i++ {
			x := f.RawRowView(i)
			sum += vek.Dot(x, x)
		}
		total += f2.Weight * sum / float64(rows)
	}
	return total
}

func (f2 F2) Gradient(factor *mat.Dense) *mat.Dense {
	rows, _ := factor.Dims()
	var out mat.Dense
	out.Scale(2*f2.Weight/float64(rows), factor)
	return &out
}

// None applies no penalty.
type None struct{}

func (None) Penalty(...*mat.Dense) float64 { return 0 }

func (None) Gradient(factor *mat.Dense) *mat.Dense {
	rows, cols := factor.Dims()
	return mat.NewDense(rows, cols, nil)
}
