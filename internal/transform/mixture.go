package transform

import (
	"github.com/banshee-data/outlier.report/internal/config"
	"github.com/banshee-data/outlier.report/internal/datamodel"
	"github.com/banshee-data/outlier.report/internal/gmm"
	"github.com/banshee-data/outlier.report/internal/monitoring"
	"github.com/banshee-data/outlier.report/internal/stream"
)

// MixtureCoeffTransform fits a Gaussian mixture to the metrics of the batch
// it consumes and scores every record against it.
//
// Each output record carries the negative log density of its metrics as
// Score and the posterior component memberships as Coefficients. Output
// order matches input order and the wrapped Datum is passed through as is.
type MixtureCoeffTransform struct {
	opts gmm.FitOptions
	logf monitoring.LogFunc

	initialized bool
	consumed    bool
	model       *gmm.Mixture
	out         []datamodel.ScoredDatum
}

var _ ProbabilityTransform = (*MixtureCoeffTransform)(nil)

// NewMixtureCoeffTransform builds the transform from cfg. The single
// gaussian transform type is a one-component mixture.
func NewMixtureCoeffTransform(cfg *config.AnalysisConfig, logf monitoring.LogFunc) *MixtureCoeffTransform {
	return &MixtureCoeffTransform{
		opts: gmm.FitOptions{
			Components:     cfg.GetMixtureComponents(),
			MaxIterations:  cfg.GetMaxIterations(),
			Tolerance:      cfg.GetConvergenceTolerance(),
			Regularization: cfg.GetCovarianceRegularization(),
			Seed:           cfg.GetRandomSeed(),
		},
		logf: monitoring.WithPrefix("[transform] ", logf),
	}
}

// Initialize resets the transform.
func (t *MixtureCoeffTransform) Initialize() error {
	t.initialized = true
	t.consumed = false
	t.model = nil
	t.out = nil
	return nil
}

// Consume fits the model on batch and scores it. An empty batch fails
// with gmm.ErrNoData.
func (t *MixtureCoeffTransform) Consume(batch []datamodel.Datum) error {
	if !t.initialized {
		return ErrNotInitialized
	}

	points := make([][]float64, len(batch))
	for i := range batch {
		points[i] = batch[i].Metrics
	}
	m, err := gmm.Fit(points, t.opts)
	if err != nil {
		return err
	}
	t.logf("fitted %d components on %d points in %d iterations (converged=%t, mean log-likelihood %.4f)",
		m.NumComponents(), len(points), m.Iterations(), m.Converged(), m.MeanLogLikelihood())

	out := make([]datamodel.ScoredDatum, len(batch))
	for i, d := range batch {
		out[i] = datamodel.ScoredDatum{
			Datum:        d,
			Score:        -m.LogDensity(d.Metrics),
			Coefficients: m.Posterior(d.Metrics),
		}
	}
	t.model = m
	t.out = out
	t.consumed = true
	return nil
}

// Stream hands over the scored records. Only the first call after Consume
// yields them.
func (t *MixtureCoeffTransform) Stream() stream.Stream[datamodel.ScoredDatum] {
	if !t.consumed {
		return stream.Failed[datamodel.ScoredDatum](ErrNotConsumed)
	}
	if t.out == nil {
		return stream.Failed[datamodel.ScoredDatum](stream.ErrDrained)
	}
	out := t.out
	t.out = nil
	return stream.FromSlice(out)
}

// MixtureModel returns the fitted model, or nil before Consume.
func (t *MixtureCoeffTransform) MixtureModel() gmm.Model {
	if t.model == nil {
		return nil
	}
	return t.model
}
