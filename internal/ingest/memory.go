package ingest

import (
	"context"
	"fmt"

	"github.com/banshee-data/outlier.report/internal/datamodel"
	"github.com/banshee-data/outlier.report/internal/stream"
)

// Row is one in-memory observation keyed by column name.
type Row struct {
	Attributes map[string]string
	Metrics    map[string]float64
}

// MemoryIngester serves rows supplied in code.
type MemoryIngester struct {
	attributes []string
	metrics    []string
	rows       []Row
	enc        *datamodel.Encoder
}

// NewMemoryIngester returns an ingester over rows. Every row must carry
// every configured column.
func NewMemoryIngester(attributes, metrics []string, rows []Row) *MemoryIngester {
	return &MemoryIngester{
		attributes: attributes,
		metrics:    metrics,
		rows:       rows,
		enc:        datamodel.NewEncoder(),
	}
}

// Encoder returns the attribute encoder.
func (m *MemoryIngester) Encoder() *datamodel.Encoder { return m.enc }

// Stream converts the rows into Datum records.
func (m *MemoryIngester) Stream(ctx context.Context) (stream.Stream[datamodel.Datum], error) {
	data := make([]datamodel.Datum, 0, len(m.rows))
	for i, r := range m.rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		d := datamodel.Datum{
			ID:         int64(i + 1),
			Attributes: make([]int, len(m.attributes)),
			Metrics:    make([]float64, len(m.metrics)),
		}
		for j, col := range m.metrics {
			v, ok := r.Metrics[col]
			if !ok {
				return nil, fmt.Errorf("row %d: %w: %q", i+1, ErrMissingColumn, col)
			}
			if err := checkFinite(v); err != nil {
				return nil, &ParseError{Row: i + 1, Column: col, Value: fmt.Sprint(v), Err: err}
			}
			d.Metrics[j] = v
		}
		for j, col := range m.attributes {
			v, ok := r.Attributes[col]
			if !ok {
				return nil, fmt.Errorf("row %d: %w: %q", i+1, ErrMissingColumn, col)
			}
			d.Attributes[j] = m.enc.Encode(col, v)
		}
		data = append(data, d)
	}
	return stream.FromSlice(data), nil
}
