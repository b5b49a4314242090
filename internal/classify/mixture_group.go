package classify

import (
	"fmt"
	"slices"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/outlier.report/internal/config"
	"github.com/banshee-data/outlier.report/internal/datamodel"
	"github.com/banshee-data/outlier.report/internal/gmm"
	"github.com/banshee-data/outlier.report/internal/stream"
)

// MixtureGroupClassifier labels records using a fitted mixture model.
//
// With target components configured a record is an outlier when its
// summed posterior over those components reaches the group threshold.
// Otherwise a record is an outlier when its score lies strictly above the
// empirical score quantile at the configured percentile.
type MixtureGroupClassifier struct {
	model      gmm.Model
	targets    []int
	threshold  float64
	percentile float64

	cutoff float64
	out    output
}

var _ OutlierClassifier = (*MixtureGroupClassifier)(nil)

// NewMixtureGroupClassifier returns a classifier reading model. The model
// is borrowed and never modified.
func NewMixtureGroupClassifier(cfg *config.AnalysisConfig, model gmm.Model) (*MixtureGroupClassifier, error) {
	if model == nil {
		return nil, ErrNoModel
	}
	for _, c := range cfg.TargetComponents {
		if c < 0 || c >= model.NumComponents() {
			return nil, fmt.Errorf("%w: %d not in [0, %d)", ErrComponentOutOfRange, c, model.NumComponents())
		}
	}
	return &MixtureGroupClassifier{
		model:      model,
		targets:    append([]int(nil), cfg.TargetComponents...),
		threshold:  cfg.GetGroupProbabilityThreshold(),
		percentile: cfg.GetOutlierPercentile(),
	}, nil
}

// GroupMode reports whether classification uses target components.
func (c *MixtureGroupClassifier) GroupMode() bool { return len(c.targets) > 0 }

// Cutoff is the score quantile computed by the last Consume in percentile
// mode.
func (c *MixtureGroupClassifier) Cutoff() float64 { return c.cutoff }

// Consume labels batch.
func (c *MixtureGroupClassifier) Consume(batch []datamodel.ScoredDatum) error {
	out := make([]datamodel.ClassifiedDatum, len(batch))

	if c.GroupMode() {
		for i, sd := range batch {
			if len(sd.Coefficients) != c.model.NumComponents() {
				return fmt.Errorf("record %d: %d coefficients, model has %d components", sd.ID, len(sd.Coefficients), c.model.NumComponents())
			}
			var p float64
			for _, k := range c.targets {
				p += sd.Coefficients[k]
			}
			out[i] = datamodel.ClassifiedDatum{ScoredDatum: sd, Outlier: p >= c.threshold}
		}
		c.out.set(out)
		return nil
	}

	if len(batch) > 0 {
		scores := make([]float64, len(batch))
		for i, sd := range batch {
			scores[i] = sd.Score
		}
		slices.Sort(scores)
		c.cutoff = stat.Quantile(c.percentile, stat.Empirical, scores, nil)
	}
	for i, sd := range batch {
		out[i] = datamodel.ClassifiedDatum{ScoredDatum: sd, Outlier: sd.Score > c.cutoff}
	}
	c.out.set(out)
	return nil
}

// Stream hands over the labelled records.
func (c *MixtureGroupClassifier) Stream() stream.Stream[datamodel.ClassifiedDatum] {
	return c.out.stream()
}
