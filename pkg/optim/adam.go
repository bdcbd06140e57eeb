// Package optim holds first-order optimizers for free embedding variables
package optim

import (
	"math"
)

// Adam keeps per-parameter first and second moment estimates and scales each
// update by them (Kingma & Ba, 2015).
type Adam struct {
	LearningRate float64
	Beta1        float64
	Beta2        float64
	Epsilon      float64

	m    []float64
	v    []float64
	step int
}

// NewAdam creates an Adam optimizer for n parameters with the usual defaults
// (beta1=0.9, beta2=0.999, eps=1e-8)
func NewAdam(n int, learningRate float64) *Adam {
	return &Adam{
		LearningRate: learningRate,
		Beta1:        0.9,
		Beta2:        0.999,
		Epsilon:      1e-8,
		m:            make([]float64, n),
		v:            make([]float64, n),
	}
}

// Steps returns the number of updates applied so far
func (a *Adam) Steps() int {
	return a.step
}

// Step applies one descent update to params given the gradient of the loss
func (a *Adam) Step(params, grad []float64) {
	a.step++

	correction1 := 1 - math.Pow(a.Beta1, float64(a.step))
	correction2 := math.Sqrt(1 - math.Pow(a.Beta2, float64(a.step)))
	stepSize := a.LearningRate / correction1

	for d := range params {
		g := grad[d]
		a.m[d] = a.Beta1*a.m[d] + (1-a.Beta1)*g
		a.v[d] = a.Beta2*a.v[d] + (1-a.Beta2)*g*g

		denom := math.Sqrt(a.v[d])/correction2 + a.Epsilon
		params[d] -= stepSize * a.m[d] / denom
	}
}
