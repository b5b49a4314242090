package ingest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/banshee-data/outlier.report/internal/datamodel"
	"github.com/banshee-data/outlier.report/internal/stream"
	_ "modernc.org/sqlite"
)

// errNullMetric is the cause recorded in a ParseError for a NULL metric.
var errNullMetric = errors.New("null value")

// SQLiteIngester runs a query against a sqlite database and reads its
// result set. The query must return every configured column by name.
type SQLiteIngester struct {
	path       string
	query      string
	attributes []string
	metrics    []string
	enc        *datamodel.Encoder
}

// NewSQLiteIngester returns an ingester that runs query against the
// database at path, opened read-only.
func NewSQLiteIngester(path, query string, attributes, metrics []string) *SQLiteIngester {
	return &SQLiteIngester{
		path:       path,
		query:      query,
		attributes: attributes,
		metrics:    metrics,
		enc:        datamodel.NewEncoder(),
	}
}

// Encoder returns the attribute encoder.
func (s *SQLiteIngester) Encoder() *datamodel.Encoder { return s.enc }

// Stream runs the query and reads every row. ctx bounds the query.
func (s *SQLiteIngester) Stream(ctx context.Context) (stream.Stream[datamodel.Datum], error) {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=ro", s.path))
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", s.path, err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, s.query)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	header, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	attrIdx, err := columnIndex(header, s.attributes)
	if err != nil {
		return nil, err
	}
	metricIdx, err := columnIndex(header, s.metrics)
	if err != nil {
		return nil, err
	}

	values := make([]any, len(header))
	ptrs := make([]any, len(header))
	for i := range values {
		ptrs[i] = &values[i]
	}

	var data []datamodel.Datum
	for row := 1; rows.Next(); row++ {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("row %d: %w", row, err)
		}
		d := datamodel.Datum{
			ID:         int64(row),
			Attributes: make([]int, len(attrIdx)),
			Metrics:    make([]float64, len(metricIdx)),
		}
		for i, p := range metricIdx {
			v, err := toFloat(values[p])
			if err == nil {
				err = checkFinite(v)
			}
			if err != nil {
				return nil, &ParseError{Row: row, Column: s.metrics[i], Value: fmt.Sprint(values[p]), Err: err}
			}
			d.Metrics[i] = v
		}
		for i, p := range attrIdx {
			d.Attributes[i] = s.enc.Encode(s.attributes[i], toText(values[p]))
		}
		data = append(data, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return stream.FromSlice(data), nil
}

func toFloat(v any) (float64, error) {
	switch x := v.(type) {
	case nil:
		return 0, errNullMetric
	case int64:
		return float64(x), nil
	case float64:
		return x, nil
	case []byte:
		return strconv.ParseFloat(strings.TrimSpace(string(x)), 64)
	case string:
		return strconv.ParseFloat(strings.TrimSpace(x), 64)
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}
}

// toText renders an attribute cell. NULL becomes the empty string.
func toText(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(x)
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}
