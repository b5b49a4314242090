// Package datamodel defines the records that flow through the analysis
// pipeline.
//
// A Datum is created once by an ingester and is never modified afterwards.
// Later stages wrap it (ScoredDatum, ClassifiedDatum) rather than editing
// its fields, so identity and content survive every hand-off.
package datamodel

// Datum is one observation.
type Datum struct {
	// ID is the 1-based position of the row in its source.
	ID int64
	// Attributes holds Encoder ids of the categorical columns, in the order
	// the columns were configured.
	Attributes []int
	// Metrics holds the numeric columns scored by the mixture model.
	Metrics []float64
}

// ScoredDatum is a Datum annotated by the probability transform.
type ScoredDatum struct {
	Datum
	// Score is the negative log density of Metrics under the fitted
	// mixture. Larger is more anomalous.
	Score float64
	// Coefficients are the posterior membership probabilities of each
	// mixture component; they sum to 1.
	Coefficients []float64
}

// ClassifiedDatum is a ScoredDatum labelled by an outlier classifier.
type ClassifiedDatum struct {
	ScoredDatum
	Outlier bool
}

// ColumnValue names one categorical attribute value.
type ColumnValue struct {
	Column string `json:"column"`
	Value  string `json:"value"`
}

func (cv ColumnValue) String() string {
	return cv.Column + "=" + cv.Value
}
