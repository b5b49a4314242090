package gmm

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
)

// minWeight keeps an empty component's log weight finite.
const minWeight = 1e-12

// FitOptions controls Fit.
type FitOptions struct {
	Components     int
	MaxIterations  int
	Tolerance      float64
	Regularization float64
	Seed           uint64
}

// DefaultFitOptions returns the options used when a caller has no opinion.
func DefaultFitOptions() FitOptions {
	return FitOptions{
		Components:     3,
		MaxIterations:  100,
		Tolerance:      1e-6,
		Regularization: 1e-6,
	}
}

// Fit estimates a Gaussian mixture from points with expectation
// maximisation.
//
// Initial means are chosen by k-means++ seeding from a PCG generator seeded
// with opts.Seed, so a given input and seed always produce the same model.
// Iteration stops when the mean log-likelihood improves by less than
// opts.Tolerance or after opts.MaxIterations E steps.
func Fit(points [][]float64, opts FitOptions) (*Mixture, error) {
	n := len(points)
	if n == 0 {
		return nil, ErrNoData
	}
	dim := len(points[0])
	if dim == 0 {
		return nil, fmt.Errorf("%w: zero-dimensional points", ErrDimensionMismatch)
	}
	for i, p := range points {
		if len(p) != dim {
			return nil, fmt.Errorf("%w: point %d has %d values, want %d", ErrDimensionMismatch, i, len(p), dim)
		}
	}
	k := opts.Components
	if k < 1 {
		k = 1
	}
	if n < k {
		return nil, fmt.Errorf("%w: %d points, %d components", ErrTooFewPoints, n, k)
	}
	maxIter := opts.MaxIterations
	if maxIter < 1 {
		maxIter = 1
	}

	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))
	centers := seedCenters(points, k, rng)

	// hard assignment to the nearest centre gives the first M step
	resp := mat.NewDense(n, k, nil)
	for i, p := range points {
		best, bestD := 0, math.Inf(1)
		for c, ctr := range centers {
			if d := sqDist(p, ctr); d < bestD {
				best, bestD = c, d
			}
		}
		resp.Set(i, best, 1)
	}

	m := &Mixture{dim: dim, comps: make([]Component, k)}
	for c := range m.comps {
		m.comps[c].Mean = append([]float64(nil), centers[c]...)
	}
	if err := m.maximize(points, resp, opts.Regularization); err != nil {
		return nil, err
	}

	prev := math.Inf(-1)
	logs := make([]float64, k)
	for iter := 1; iter <= maxIter; iter++ {
		m.iterations = iter

		// E step
		var total float64
		for i, p := range points {
			logs = m.componentLogs(p, logs)
			lse := floats.LogSumExp(logs)
			total += lse
			row := resp.RawRowView(i)
			if math.IsInf(lse, -1) {
				for c := range row {
					row[c] = m.comps[c].Weight
				}
				continue
			}
			for c := range row {
				row[c] = math.Exp(logs[c] - lse)
			}
		}
		ll := total / float64(n)
		m.logLikelihood = ll
		if math.Abs(ll-prev) < opts.Tolerance {
			m.converged = true
			break
		}
		prev = ll

		if err := m.maximize(points, resp, opts.Regularization); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// maximize re-estimates every component from the responsibilities.
// A component with no mass keeps its mean and takes the pooled covariance.
func (m *Mixture) maximize(points [][]float64, resp *mat.Dense, reg float64) error {
	n := len(points)
	dim := m.dim
	var pooled *mat.SymDense

	for c := range m.comps {
		comp := &m.comps[c]
		var nk float64
		for i := 0; i < n; i++ {
			nk += resp.At(i, c)
		}

		var cov *mat.SymDense
		if nk < minWeight {
			if pooled == nil {
				pooled = pooledCovariance(points, reg)
			}
			cov = mat.NewSymDense(dim, nil)
			cov.CopySym(pooled)
			comp.Weight = minWeight
		} else {
			mean := make([]float64, dim)
			for i, p := range points {
				floats.AddScaled(mean, resp.At(i, c), p)
			}
			floats.Scale(1/nk, mean)
			comp.Mean = mean

			cov = mat.NewSymDense(dim, nil)
			diff := make([]float64, dim)
			for i, p := range points {
				r := resp.At(i, c)
				if r == 0 {
					continue
				}
				floats.SubTo(diff, p, mean)
				cov.SymRankOne(cov, r/nk, mat.NewVecDense(dim, diff))
			}
			for d := 0; d < dim; d++ {
				cov.SetSym(d, d, cov.At(d, d)+reg)
			}
			comp.Weight = nk / float64(n)
		}

		dist, ok := distmv.NewNormal(comp.Mean, cov, nil)
		if !ok {
			return fmt.Errorf("%w: component %d", ErrDegenerate, c)
		}
		comp.Cov = cov
		comp.dist = dist
	}

	var sum float64
	for c := range m.comps {
		sum += m.comps[c].Weight
	}
	for c := range m.comps {
		m.comps[c].Weight /= sum
		m.comps[c].logWeight = math.Log(m.comps[c].Weight)
	}
	return nil
}

// seedCenters picks k initial centres with k-means++ seeding.
func seedCenters(points [][]float64, k int, rng *rand.Rand) [][]float64 {
	n := len(points)
	centers := make([][]float64, 0, k)
	centers = append(centers, points[rng.IntN(n)])

	dist := make([]float64, n)
	for i, p := range points {
		dist[i] = sqDist(p, centers[0])
	}
	for len(centers) < k {
		total := floats.Sum(dist)
		var next int
		if total == 0 {
			next = rng.IntN(n)
		} else {
			target := rng.Float64() * total
			next = n - 1
			var acc float64
			for i, d := range dist {
				acc += d
				if acc >= target && d > 0 {
					next = i
					break
				}
			}
		}
		centers = append(centers, points[next])
		for i, p := range points {
			if d := sqDist(p, points[next]); d < dist[i] {
				dist[i] = d
			}
		}
	}
	return centers
}

func pooledCovariance(points [][]float64, reg float64) *mat.SymDense {
	dim := len(points[0])
	n := float64(len(points))
	mean := make([]float64, dim)
	for _, p := range points {
		floats.Add(mean, p)
	}
	floats.Scale(1/n, mean)

	cov := mat.NewSymDense(dim, nil)
	diff := make([]float64, dim)
	for _, p := range points {
		floats.SubTo(diff, p, mean)
		cov.SymRankOne(cov, 1/n, mat.NewVecDense(dim, diff))
	}
	for d := 0; d < dim; d++ {
		cov.SetSym(d, d, cov.At(d, d)+reg)
	}
	return cov
}

func sqDist(a, b []float64) float64 {
	var s float64
	for i := range a {
		d := a[i] - b[i]
		s += d * d
	}
	return s
}
