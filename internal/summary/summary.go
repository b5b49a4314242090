// Package summary explains classified records as attribute itemsets that
// are over-represented among outliers.
package summary

import (
	"errors"
	"math"

	"github.com/banshee-data/outlier.report/internal/datamodel"
	"github.com/banshee-data/outlier.report/internal/stream"
)

// ErrNotConsumed is reported by Stream before Consume succeeded.
var ErrNotConsumed = errors.New("summary: nothing consumed")

// Summary is the outcome of summarising one classified batch.
type Summary struct {
	NumOutliers int
	NumInliers  int
	// CreationTimeMs is the time spent inside the summarizer's Consume.
	CreationTimeMs int64
	Itemsets       []ItemsetResult
}

// ItemsetResult describes one attribute combination.
type ItemsetResult struct {
	// Support is the fraction of outliers carrying every item.
	Support float64
	// NumRecords is the number of outliers carrying every item.
	NumRecords int
	// Ratio is the risk ratio of the itemset; it may be +Inf.
	Ratio float64
	Items []datamodel.ColumnValue
}

// Summarizer consumes classified records and yields summaries.
type Summarizer interface {
	Consume(batch []datamodel.ClassifiedDatum) error
	Stream() stream.Stream[Summary]
}

// RiskRatio compares the outlier rate of records carrying an itemset
// (exposed) with the rate of those that do not (unexposed).
//
// It is 0 when either group is empty and +Inf when every outlier is
// exposed.
func RiskRatio(exposedInliers, exposedOutliers, totalInliers, totalOutliers int) float64 {
	exposed := exposedInliers + exposedOutliers
	unexposedOutliers := totalOutliers - exposedOutliers
	unexposed := unexposedOutliers + (totalInliers - exposedInliers)

	if exposed == 0 || unexposed == 0 {
		return 0
	}
	if unexposedOutliers == 0 {
		return math.Inf(1)
	}
	return (float64(exposedOutliers) / float64(exposed)) /
		(float64(unexposedOutliers) / float64(unexposed))
}
