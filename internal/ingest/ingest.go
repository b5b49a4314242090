// Package ingest loads observations into Datum records.
//
// Every ingester reads its whole source on Stream, encodes categorical
// columns through its own Encoder and numbers rows from 1 in source order.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/outlier.report/internal/config"
	"github.com/banshee-data/outlier.report/internal/datamodel"
	"github.com/banshee-data/outlier.report/internal/stream"
)

// ErrMissingColumn is returned when a configured column is absent from the
// source.
var ErrMissingColumn = errors.New("missing column")

// ErrNonFinite is the cause recorded in a ParseError for a NaN or infinite
// metric.
var ErrNonFinite = errors.New("not a finite number")

// DataIngester produces the Datum stream of one analysis run.
type DataIngester interface {
	// Stream reads the source. The returned stream is single-use.
	Stream(ctx context.Context) (stream.Stream[datamodel.Datum], error)

	// Encoder returns the attribute encoder filled while reading. It is
	// complete once the stream has been drained.
	Encoder() *datamodel.Encoder
}

// ParseError reports a metric cell that is not a finite number.
type ParseError struct {
	Row    int
	Column string
	Value  string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("row %d: column %q: invalid metric %q: %v", e.Row, e.Column, e.Value, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// New returns the ingester selected by cfg. A memory ingester built here
// has no rows; use NewMemoryIngester to supply them.
func New(cfg *config.AnalysisConfig) (DataIngester, error) {
	switch t := cfg.GetIngesterType(); t {
	case config.IngesterCSV:
		return NewCSVIngester(cfg.GetInputPath(), cfg.Attributes, cfg.Metrics), nil
	case config.IngesterSQLite:
		return NewSQLiteIngester(cfg.GetInputPath(), cfg.GetBaseQuery(), cfg.Attributes, cfg.Metrics), nil
	case config.IngesterMemory:
		return NewMemoryIngester(cfg.Attributes, cfg.Metrics, nil), nil
	default:
		return nil, fmt.Errorf("unknown ingester %q", t)
	}
}

// columnIndex maps every wanted column to its position in header.
func columnIndex(header, wanted []string) ([]int, error) {
	pos := make(map[string]int, len(header))
	for i, h := range header {
		if _, dup := pos[h]; !dup {
			pos[h] = i
		}
	}
	idx := make([]int, len(wanted))
	for i, col := range wanted {
		p, ok := pos[col]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrMissingColumn, col)
		}
		idx[i] = p
	}
	return idx, nil
}

// rowBuilder turns string cells into Datum records.
type rowBuilder struct {
	attributes []string
	metrics    []string
	attrIdx    []int
	metricIdx  []int
	enc        *datamodel.Encoder
	next       int64
}

func (b *rowBuilder) build(cells []string, row int, parse func(string) (float64, error)) (datamodel.Datum, error) {
	d := datamodel.Datum{
		Attributes: make([]int, len(b.attrIdx)),
		Metrics:    make([]float64, len(b.metricIdx)),
	}
	for i, p := range b.metricIdx {
		v, err := parse(cells[p])
		if err == nil {
			err = checkFinite(v)
		}
		if err != nil {
			return datamodel.Datum{}, &ParseError{Row: row, Column: b.metrics[i], Value: cells[p], Err: err}
		}
		d.Metrics[i] = v
	}
	for i, p := range b.attrIdx {
		d.Attributes[i] = b.enc.Encode(b.attributes[i], cells[p])
	}
	b.next++
	d.ID = b.next
	return d, nil
}

func checkFinite(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ErrNonFinite
	}
	return nil
}
