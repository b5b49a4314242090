// Package classify labels scored records as outliers or inliers.
package classify

import (
	"errors"

	"github.com/banshee-data/outlier.report/internal/datamodel"
	"github.com/banshee-data/outlier.report/internal/stream"
)

var (
	// ErrNoModel is returned when a classifier is built without a fitted
	// mixture model.
	ErrNoModel = errors.New("classify: no mixture model")
	// ErrComponentOutOfRange is returned when a target component does not
	// exist in the model.
	ErrComponentOutOfRange = errors.New("classify: target component out of range")
	// ErrNotConsumed is reported by Stream before Consume succeeded.
	ErrNotConsumed = errors.New("classify: nothing consumed")
)

// OutlierClassifier consumes scored records and yields them labelled.
type OutlierClassifier interface {
	Consume(batch []datamodel.ScoredDatum) error
	Stream() stream.Stream[datamodel.ClassifiedDatum]
}

// output holds a classifier's labelled records until they are streamed.
type output struct {
	consumed bool
	records  []datamodel.ClassifiedDatum
}

func (o *output) set(records []datamodel.ClassifiedDatum) {
	o.records = records
	o.consumed = true
}

func (o *output) stream() stream.Stream[datamodel.ClassifiedDatum] {
	if !o.consumed {
		return stream.Failed[datamodel.ClassifiedDatum](ErrNotConsumed)
	}
	if o.records == nil {
		return stream.Failed[datamodel.ClassifiedDatum](stream.ErrDrained)
	}
	records := o.records
	o.records = nil
	return stream.FromSlice(records)
}
