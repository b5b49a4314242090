// Package result holds the record produced by one analysis run.
package result

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/banshee-data/outlier.report/internal/datamodel"
	"github.com/banshee-data/outlier.report/internal/summary"
)

// AnalysisResult combines a summary's counts and itemsets with the timings
// measured around the run. It is immutable; accessors return copies.
type AnalysisResult struct {
	numOutliers int
	numInliers  int
	loadMs      int64
	executeMs   int64
	summarizeMs int64
	itemsets    []summary.ItemsetResult
}

// New builds an AnalysisResult. itemsets is deep-copied.
func New(numOutliers, numInliers int, loadMs, executeMs, summarizeMs int64, itemsets []summary.ItemsetResult) AnalysisResult {
	return AnalysisResult{
		numOutliers: numOutliers,
		numInliers:  numInliers,
		loadMs:      loadMs,
		executeMs:   executeMs,
		summarizeMs: summarizeMs,
		itemsets:    cloneItemsets(itemsets),
	}
}

func cloneItemsets(in []summary.ItemsetResult) []summary.ItemsetResult {
	out := make([]summary.ItemsetResult, len(in))
	for i, is := range in {
		is.Items = slices.Clone(is.Items)
		out[i] = is
	}
	return out
}

func (r AnalysisResult) NumOutliers() int   { return r.numOutliers }
func (r AnalysisResult) NumInliers() int    { return r.numInliers }
func (r AnalysisResult) LoadMs() int64      { return r.loadMs }
func (r AnalysisResult) ExecuteMs() int64   { return r.executeMs }
func (r AnalysisResult) SummarizeMs() int64 { return r.summarizeMs }

// NumRecords is the number of classified records.
func (r AnalysisResult) NumRecords() int { return r.numOutliers + r.numInliers }

// Itemsets returns a copy of the summarized itemsets.
func (r AnalysisResult) Itemsets() []summary.ItemsetResult {
	return cloneItemsets(r.itemsets)
}

// jsonRatio encodes +Inf, which JSON numbers cannot carry, as "Infinity".
type jsonRatio float64

func (f jsonRatio) MarshalJSON() ([]byte, error) {
	v := float64(f)
	switch {
	case math.IsInf(v, 1):
		return []byte(`"Infinity"`), nil
	case math.IsInf(v, -1):
		return []byte(`"-Infinity"`), nil
	case math.IsNaN(v):
		return []byte(`"NaN"`), nil
	}
	return json.Marshal(v)
}

func (f *jsonRatio) UnmarshalJSON(b []byte) error {
	switch string(b) {
	case `"Infinity"`:
		*f = jsonRatio(math.Inf(1))
		return nil
	case `"-Infinity"`:
		*f = jsonRatio(math.Inf(-1))
		return nil
	case `"NaN"`:
		*f = jsonRatio(math.NaN())
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*f = jsonRatio(v)
	return nil
}

type jsonItemset struct {
	Support    float64                 `json:"support"`
	NumRecords int                     `json:"num_records"`
	Ratio      jsonRatio               `json:"ratio"`
	Items      []datamodel.ColumnValue `json:"items"`
}

type jsonResult struct {
	NumOutliers int           `json:"num_outliers"`
	NumInliers  int           `json:"num_inliers"`
	LoadMs      int64         `json:"load_ms"`
	ExecuteMs   int64         `json:"execute_ms"`
	SummarizeMs int64         `json:"summarize_ms"`
	Itemsets    []jsonItemset `json:"itemsets"`
}

// MarshalJSON implements json.Marshaler.
func (r AnalysisResult) MarshalJSON() ([]byte, error) {
	out := jsonResult{
		NumOutliers: r.numOutliers,
		NumInliers:  r.numInliers,
		LoadMs:      r.loadMs,
		ExecuteMs:   r.executeMs,
		SummarizeMs: r.summarizeMs,
		Itemsets:    make([]jsonItemset, len(r.itemsets)),
	}
	for i, is := range r.itemsets {
		out.Itemsets[i] = jsonItemset{
			Support:    is.Support,
			NumRecords: is.NumRecords,
			Ratio:      jsonRatio(is.Ratio),
			Items:      is.Items,
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *AnalysisResult) UnmarshalJSON(b []byte) error {
	var in jsonResult
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	itemsets := make([]summary.ItemsetResult, len(in.Itemsets))
	for i, is := range in.Itemsets {
		itemsets[i] = summary.ItemsetResult{
			Support:    is.Support,
			NumRecords: is.NumRecords,
			Ratio:      float64(is.Ratio),
			Items:      is.Items,
		}
	}
	*r = New(in.NumOutliers, in.NumInliers, in.LoadMs, in.ExecuteMs, in.SummarizeMs, itemsets)
	return nil
}

// FormatRatio renders a risk ratio for people.
func FormatRatio(v float64) string {
	if math.IsInf(v, 1) {
		return "inf"
	}
	return fmt.Sprintf("%.2f", v)
}

// WriteText writes a human-readable report.
func (r AnalysisResult) WriteText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "outliers:\t%d\n", r.numOutliers)
	fmt.Fprintf(tw, "inliers:\t%d\n", r.numInliers)
	fmt.Fprintf(tw, "load:\t%dms\n", r.loadMs)
	fmt.Fprintf(tw, "execute:\t%dms\n", r.executeMs)
	fmt.Fprintf(tw, "summarize:\t%dms\n", r.summarizeMs)
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(r.itemsets) == 0 {
		_, err := fmt.Fprintln(w, "no itemsets")
		return err
	}
	fmt.Fprintf(w, "\n%d itemsets:\n", len(r.itemsets))
	tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RATIO\tSUPPORT\tRECORDS\tITEMS")
	for _, is := range r.itemsets {
		items := make([]string, len(is.Items))
		for i, it := range is.Items {
			items[i] = it.String()
		}
		fmt.Fprintf(tw, "%s\t%.3f\t%d\t%s\n", FormatRatio(is.Ratio), is.Support, is.NumRecords, strings.Join(items, ", "))
	}
	return tw.Flush()
}
