package pipeline

import (
	"github.com/banshee-data/outlier.report/internal/classify"
	"github.com/banshee-data/outlier.report/internal/config"
	"github.com/banshee-data/outlier.report/internal/datamodel"
	"github.com/banshee-data/outlier.report/internal/fsutil"
	"github.com/banshee-data/outlier.report/internal/gmm"
	"github.com/banshee-data/outlier.report/internal/ingest"
	"github.com/banshee-data/outlier.report/internal/monitoring"
	"github.com/banshee-data/outlier.report/internal/summary"
	"github.com/banshee-data/outlier.report/internal/timeutil"
	"github.com/banshee-data/outlier.report/internal/transform"
)

// Builders constructs the stages of a run. Every Run calls each builder
// afresh, so no stage outlives the run that built it.
type Builders struct {
	Ingester             func(cfg *config.AnalysisConfig) (ingest.DataIngester, error)
	ProbabilityTransform func(cfg *config.AnalysisConfig) (transform.ProbabilityTransform, error)
	ScoreTransform       func(cfg *config.AnalysisConfig, inner transform.ProbabilityTransform) (transform.ProbabilityTransform, error)
	Classifier           func(cfg *config.AnalysisConfig, model gmm.Model) (classify.OutlierClassifier, error)
	Dump                 func(cfg *config.AnalysisConfig, inner classify.OutlierClassifier, queryName string) (classify.OutlierClassifier, error)
	Summarizer           func(cfg *config.AnalysisConfig, enc *datamodel.Encoder) (summary.Summarizer, error)
}

// DefaultBuilders wires the stages of this module. Diagnostic dumps are
// written through fs; the summarizer times itself with clock.
func DefaultBuilders(fs fsutil.FileSystem, clock timeutil.Clock, logf monitoring.LogFunc) Builders {
	if fs == nil {
		fs = fsutil.OSFileSystem{}
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return Builders{
		Ingester: func(cfg *config.AnalysisConfig) (ingest.DataIngester, error) {
			return ingest.New(cfg)
		},
		ProbabilityTransform: func(cfg *config.AnalysisConfig) (transform.ProbabilityTransform, error) {
			return transform.NewMixtureCoeffTransform(cfg, logf), nil
		},
		ScoreTransform: func(cfg *config.AnalysisConfig, inner transform.ProbabilityTransform) (transform.ProbabilityTransform, error) {
			return transform.NewGridScoreTransform(cfg, inner, fs, logf), nil
		},
		Classifier: func(cfg *config.AnalysisConfig, model gmm.Model) (classify.OutlierClassifier, error) {
			c, err := classify.NewMixtureGroupClassifier(cfg, model)
			if err != nil {
				return nil, err
			}
			return c, nil
		},
		Dump: func(cfg *config.AnalysisConfig, inner classify.OutlierClassifier, queryName string) (classify.OutlierClassifier, error) {
			return classify.NewDumpClassifier(cfg, inner, queryName, fs, logf), nil
		},
		Summarizer: func(cfg *config.AnalysisConfig, enc *datamodel.Encoder) (summary.Summarizer, error) {
			return summary.NewBatchSummarizer(cfg, enc, clock), nil
		},
	}
}

// withDefaults fills unset builders from d.
func (b Builders) withDefaults(d Builders) Builders {
	if b.Ingester == nil {
		b.Ingester = d.Ingester
	}
	if b.ProbabilityTransform == nil {
		b.ProbabilityTransform = d.ProbabilityTransform
	}
	if b.ScoreTransform == nil {
		b.ScoreTransform = d.ScoreTransform
	}
	if b.Classifier == nil {
		b.Classifier = d.Classifier
	}
	if b.Dump == nil {
		b.Dump = d.Dump
	}
	if b.Summarizer == nil {
		b.Summarizer = d.Summarizer
	}
	return b
}
