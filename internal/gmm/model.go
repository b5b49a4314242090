// Package gmm fits and evaluates Gaussian mixture models.
//
// A Mixture is fitted once with Fit and is read-only afterwards; it may be
// shared by any number of readers.
package gmm

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
)

var (
	// ErrNoData is returned when Fit is given no points.
	ErrNoData = errors.New("gmm: no data to fit")
	// ErrTooFewPoints is returned when there are fewer points than components.
	ErrTooFewPoints = errors.New("gmm: fewer points than mixture components")
	// ErrDimensionMismatch is returned when points do not share one
	// non-zero dimension.
	ErrDimensionMismatch = errors.New("gmm: dimension mismatch")
	// ErrDegenerate is returned when a component covariance is not
	// positive definite even after regularisation.
	ErrDegenerate = errors.New("gmm: degenerate covariance")
)

// Model is read-only access to a fitted mixture.
type Model interface {
	// Dim is the dimension of the points the model was fitted on.
	Dim() int
	// NumComponents is the number of mixture components.
	NumComponents() int
	// Weights returns a copy of the mixing weights. They sum to 1.
	Weights() []float64
	// LogDensity returns the log of the mixture density at x.
	LogDensity(x []float64) float64
	// Posterior returns the membership probability of x for every
	// component.
	Posterior(x []float64) []float64
}

// Component is one Gaussian of a mixture.
type Component struct {
	Weight float64
	Mean   []float64
	Cov    *mat.SymDense

	logWeight float64
	dist      *distmv.Normal
}

// Mixture is a fitted Gaussian mixture.
type Mixture struct {
	dim   int
	comps []Component

	iterations    int
	converged     bool
	logLikelihood float64
}

var _ Model = (*Mixture)(nil)

// Dim implements Model.
func (m *Mixture) Dim() int { return m.dim }

// NumComponents implements Model.
func (m *Mixture) NumComponents() int { return len(m.comps) }

// Weights implements Model.
func (m *Mixture) Weights() []float64 {
	w := make([]float64, len(m.comps))
	for i, c := range m.comps {
		w[i] = c.Weight
	}
	return w
}

// Component returns a copy of component i.
func (m *Mixture) Component(i int) Component {
	c := m.comps[i]
	return Component{
		Weight: c.Weight,
		Mean:   append([]float64(nil), c.Mean...),
		Cov:    mat.NewSymDense(m.dim, append([]float64(nil), c.Cov.RawSymmetric().Data...)),
	}
}

// Iterations is the number of EM iterations run by Fit.
func (m *Mixture) Iterations() int { return m.iterations }

// Converged reports whether Fit stopped on the tolerance rather than the
// iteration cap.
func (m *Mixture) Converged() bool { return m.converged }

// MeanLogLikelihood is the mean per-point log-likelihood at the last E step.
func (m *Mixture) MeanLogLikelihood() float64 { return m.logLikelihood }

// componentLogs fills dst with log(weight_k) + log N(x | k).
func (m *Mixture) componentLogs(x, dst []float64) []float64 {
	if cap(dst) < len(m.comps) {
		dst = make([]float64, len(m.comps))
	}
	dst = dst[:len(m.comps)]
	for k := range m.comps {
		c := &m.comps[k]
		dst[k] = c.logWeight + c.dist.LogProb(x)
	}
	return dst
}

// LogDensity implements Model.
func (m *Mixture) LogDensity(x []float64) float64 {
	if len(x) != m.dim {
		return math.NaN()
	}
	return floats.LogSumExp(m.componentLogs(x, nil))
}

// Posterior implements Model.
func (m *Mixture) Posterior(x []float64) []float64 {
	if len(x) != m.dim {
		return nil
	}
	logs := m.componentLogs(x, nil)
	lse := floats.LogSumExp(logs)
	if math.IsInf(lse, -1) {
		// x is beyond the reach of every component; fall back to the prior.
		return m.Weights()
	}
	for k := range logs {
		logs[k] = math.Exp(logs[k] - lse)
	}
	return logs
}
