// Package pipeline runs a batch outlier analysis end to end.
//
// A run moves through fixed phases: ingest, probability transform with
// grid scoring, classification with an optional dump, and summarization.
// Each phase drains its whole output before the next one starts, and the
// run is timed at the phase boundaries.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/banshee-data/outlier.report/internal/classify"
	"github.com/banshee-data/outlier.report/internal/config"
	"github.com/banshee-data/outlier.report/internal/fsutil"
	"github.com/banshee-data/outlier.report/internal/monitoring"
	"github.com/banshee-data/outlier.report/internal/result"
	"github.com/banshee-data/outlier.report/internal/timeutil"
)

// ErrNotInitialized is returned by Run before a successful Initialize.
var ErrNotInitialized = errors.New("pipeline: not initialized")

// PipelineInvariantError reports a summarizer that did not yield exactly
// one summary.
type PipelineInvariantError struct {
	Count int
}

func (e *PipelineInvariantError) Error() string {
	return fmt.Sprintf("pipeline: summarizer produced %d summaries, want exactly 1", e.Count)
}

// Pipeline is one configured analysis.
type Pipeline interface {
	Initialize(cfg *config.AnalysisConfig) error
	Run(ctx context.Context) ([]result.AnalysisResult, error)
}

// Options configures a MixtureModelPipeline. Zero fields take defaults.
type Options struct {
	// Builders overrides individual stage constructors; unset ones use
	// DefaultBuilders.
	Builders Builders
	// FileSystem receives diagnostic dumps of the default stages.
	FileSystem fsutil.FileSystem
	Clock      timeutil.Clock
	Logf       monitoring.LogFunc
}

// MixtureModelPipeline scores data with a fitted mixture model and
// summarizes the outliers it finds.
type MixtureModelPipeline struct {
	builders Builders
	clock    timeutil.Clock
	logf     monitoring.LogFunc

	cfg *config.AnalysisConfig
}

var _ Pipeline = (*MixtureModelPipeline)(nil)

// New returns an uninitialized pipeline.
func New(opts Options) *MixtureModelPipeline {
	clock := opts.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	logf := monitoring.WithPrefix("[pipeline] ", opts.Logf)
	return &MixtureModelPipeline{
		builders: opts.Builders.withDefaults(DefaultBuilders(opts.FileSystem, clock, opts.Logf)),
		clock:    clock,
		logf:     logf,
	}
}

// Initialize validates cfg for batch execution and keeps a private copy.
func (p *MixtureModelPipeline) Initialize(cfg *config.AnalysisConfig) error {
	if cfg == nil {
		return &config.ConfigurationError{Reason: "no configuration"}
	}
	if err := cfg.SanityCheckBatch(); err != nil {
		return err
	}
	p.cfg = cfg.Clone()
	return nil
}

// Run executes one analysis and returns exactly one result. Stage errors
// are returned as the stage reported them. Each call builds fresh stages,
// so Run may be repeated.
func (p *MixtureModelPipeline) Run(ctx context.Context) ([]result.AnalysisResult, error) {
	if p.cfg == nil {
		return nil, ErrNotInitialized
	}
	cfg := p.cfg
	b := p.builders

	t0 := p.clock.Now()

	ingester, err := b.Ingester(cfg)
	if err != nil {
		return nil, err
	}
	s, err := ingester.Stream(ctx)
	if err != nil {
		return nil, err
	}
	data, err := s.Drain()
	if err != nil {
		return nil, err
	}

	t1 := p.clock.Now()

	prob, err := b.ProbabilityTransform(cfg)
	if err != nil {
		return nil, err
	}
	grid, err := b.ScoreTransform(cfg, prob)
	if err != nil {
		return nil, err
	}
	if err := grid.Initialize(); err != nil {
		return nil, err
	}
	if err := grid.Consume(data); err != nil {
		return nil, err
	}
	scored, err := grid.Stream().Drain()
	if err != nil {
		return nil, err
	}

	var chain classifierChain
	chain.base, err = b.Classifier(cfg, prob.MixtureModel())
	if err != nil {
		return nil, err
	}
	if err := chain.base.Consume(scored); err != nil {
		return nil, err
	}
	if cfg.GetClassifierDump() {
		chain.dump, err = b.Dump(cfg, chain.base, cfg.GetQueryName())
		if err != nil {
			return nil, err
		}
	}
	classified, err := chain.output().Stream().Drain()
	if err != nil {
		return nil, err
	}

	summarizer, err := b.Summarizer(cfg, ingester.Encoder())
	if err != nil {
		return nil, err
	}
	if err := summarizer.Consume(classified); err != nil {
		return nil, err
	}
	summaries, err := summarizer.Stream().Drain()
	if err != nil {
		return nil, err
	}
	if len(summaries) != 1 {
		return nil, &PipelineInvariantError{Count: len(summaries)}
	}
	sum := summaries[0]

	t2 := p.clock.Now()

	loadMs := timeutil.Millis(t1.Sub(t0))
	totalMs := timeutil.Millis(t2.Sub(t1))
	summarizeMs := sum.CreationTimeMs
	executeMs := totalMs - summarizeMs

	n := sum.NumOutliers + sum.NumInliers
	if tps, ok := Throughput(n, totalMs); ok {
		p.logf("took %dms (%f tuples/sec)", totalMs, tps)
	} else {
		p.logf("took %dms (throughput unmeasured)", totalMs)
	}

	return []result.AnalysisResult{
		result.New(sum.NumOutliers, sum.NumInliers, loadMs, executeMs, summarizeMs, sum.Itemsets),
	}, nil
}

// classifierChain is a base classifier, optionally wrapped by a dump
// decorator that passes every record through unchanged.
type classifierChain struct {
	base classify.OutlierClassifier
	dump classify.OutlierClassifier
}

// output is the classifier whose stream the run drains.
func (c classifierChain) output() classify.OutlierClassifier {
	if c.dump != nil {
		return c.dump
	}
	return c.base
}

// Throughput returns n records over totalMs milliseconds in records per
// second. It reports false when totalMs is not positive.
func Throughput(n int, totalMs int64) (float64, bool) {
	if totalMs <= 0 {
		return 0, false
	}
	return float64(n) / float64(totalMs) * 1000, true
}
