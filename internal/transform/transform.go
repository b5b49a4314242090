// Package transform holds the feature transforms that turn ingested Datum
// records into scored records.
package transform

import (
	"errors"

	"github.com/banshee-data/outlier.report/internal/datamodel"
	"github.com/banshee-data/outlier.report/internal/gmm"
	"github.com/banshee-data/outlier.report/internal/stream"
)

var (
	// ErrNotInitialized is returned by Consume before Initialize.
	ErrNotInitialized = errors.New("transform: not initialized")
	// ErrNotConsumed is reported by Stream before Consume succeeded.
	ErrNotConsumed = errors.New("transform: nothing consumed")
)

// FeatureTransform consumes a finite batch of In and produces a stream of
// Out. Initialize must be called before Consume; Stream after.
type FeatureTransform[In, Out any] interface {
	Initialize() error
	Consume(batch []In) error
	Stream() stream.Stream[Out]
}

// ProbabilityTransform is a transform that fits a mixture model on the
// batch it consumes.
type ProbabilityTransform interface {
	FeatureTransform[datamodel.Datum, datamodel.ScoredDatum]

	// MixtureModel returns the fitted model, or nil before Consume.
	MixtureModel() gmm.Model
}
