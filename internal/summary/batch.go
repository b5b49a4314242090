package summary

import (
	"cmp"
	"fmt"
	"math"
	"slices"

	"github.com/banshee-data/outlier.report/internal/config"
	"github.com/banshee-data/outlier.report/internal/datamodel"
	"github.com/banshee-data/outlier.report/internal/stream"
	"github.com/banshee-data/outlier.report/internal/timeutil"
)

// BatchSummarizer mines attribute itemsets that are frequent among outliers
// and over-represented relative to inliers.
//
// An itemset is reported when at least min_support of the outliers carry
// it and its risk ratio is at least min_ratio. An itemset whose outlier
// count equals that of a reported subset adds nothing and is dropped.
// Results are ordered by ratio, then support, both descending, then by
// items.
type BatchSummarizer struct {
	enc        *datamodel.Encoder
	clock      timeutil.Clock
	minSupport float64
	minRatio   float64
	maxSize    int

	consumed bool
	out      []Summary
}

var _ Summarizer = (*BatchSummarizer)(nil)

// NewBatchSummarizer returns a summarizer that decodes attribute ids with
// enc and times itself with clock.
func NewBatchSummarizer(cfg *config.AnalysisConfig, enc *datamodel.Encoder, clock timeutil.Clock) *BatchSummarizer {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &BatchSummarizer{
		enc:        enc,
		clock:      clock,
		minSupport: cfg.GetMinSupport(),
		minRatio:   cfg.GetMinRatio(),
		maxSize:    cfg.GetMaxItemsetSize(),
	}
}

// Consume summarises batch into exactly one Summary.
func (s *BatchSummarizer) Consume(batch []datamodel.ClassifiedDatum) error {
	start := s.clock.Now()

	var outliers, inliers [][]int
	for _, r := range batch {
		t := slices.Clone(r.Attributes)
		slices.Sort(t)
		t = slices.Compact(t)
		if r.Outlier {
			outliers = append(outliers, t)
		} else {
			inliers = append(inliers, t)
		}
	}

	itemsets, err := s.summarize(outliers, inliers)
	if err != nil {
		return err
	}

	s.out = []Summary{{
		NumOutliers:    len(outliers),
		NumInliers:     len(inliers),
		CreationTimeMs: timeutil.Millis(s.clock.Since(start)),
		Itemsets:       itemsets,
	}}
	s.consumed = true
	return nil
}

func (s *BatchSummarizer) summarize(outliers, inliers [][]int) ([]ItemsetResult, error) {
	itemsets := []ItemsetResult{}
	if len(outliers) == 0 {
		return itemsets, nil
	}

	minCount := int(math.Ceil(s.minSupport * float64(len(outliers))))
	if minCount < 1 {
		minCount = 1
	}

	type scored struct {
		frequent
		ratio float64
	}
	var kept []scored
	for _, f := range mineFrequent(outliers, minCount, s.maxSize) {
		var exposedInliers int
		for _, t := range inliers {
			if f.items.containedIn(t) {
				exposedInliers++
			}
		}
		ratio := RiskRatio(exposedInliers, f.count, len(inliers), len(outliers))
		if ratio < s.minRatio {
			continue
		}

		// mined in size order, so any redundant subset is already kept
		redundant := false
		for _, k := range kept {
			if k.count == f.count && k.items.isSubsetOf(f.items) {
				redundant = true
				break
			}
		}
		if !redundant {
			kept = append(kept, scored{frequent: f, ratio: ratio})
		}
	}

	for _, k := range kept {
		items := make([]datamodel.ColumnValue, len(k.items))
		for i, id := range k.items {
			cv, ok := s.enc.Decode(id)
			if !ok {
				return nil, fmt.Errorf("summary: unknown attribute id %d", id)
			}
			items[i] = cv
		}
		slices.SortFunc(items, compareColumnValue)
		itemsets = append(itemsets, ItemsetResult{
			Support:    float64(k.count) / float64(len(outliers)),
			NumRecords: k.count,
			Ratio:      k.ratio,
			Items:      items,
		})
	}

	slices.SortStableFunc(itemsets, func(a, b ItemsetResult) int {
		if c := cmp.Compare(b.Ratio, a.Ratio); c != 0 {
			return c
		}
		if c := cmp.Compare(b.Support, a.Support); c != 0 {
			return c
		}
		return slices.CompareFunc(a.Items, b.Items, compareColumnValue)
	})
	return itemsets, nil
}

func compareColumnValue(a, b datamodel.ColumnValue) int {
	if c := cmp.Compare(a.Column, b.Column); c != 0 {
		return c
	}
	return cmp.Compare(a.Value, b.Value)
}

// Stream hands over the summary. Only the first call after Consume
// yields it.
func (s *BatchSummarizer) Stream() stream.Stream[Summary] {
	if !s.consumed {
		return stream.Failed[Summary](ErrNotConsumed)
	}
	if s.out == nil {
		return stream.Failed[Summary](stream.ErrDrained)
	}
	out := s.out
	s.out = nil
	return stream.FromSlice(out)
}
