package ingest

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/banshee-data/outlier.report/internal/datamodel"
	"github.com/banshee-data/outlier.report/internal/fsutil"
	"github.com/banshee-data/outlier.report/internal/stream"
)

// CSVIngester reads a headered CSV file. Attribute columns are encoded as
// categorical values; metric columns must parse as float64.
type CSVIngester struct {
	path       string
	attributes []string
	metrics    []string
	fs         fsutil.FileSystem
	enc        *datamodel.Encoder
}

// NewCSVIngester returns an ingester for the CSV file at path.
func NewCSVIngester(path string, attributes, metrics []string) *CSVIngester {
	return &CSVIngester{
		path:       path,
		attributes: attributes,
		metrics:    metrics,
		fs:         fsutil.OSFileSystem{},
		enc:        datamodel.NewEncoder(),
	}
}

// WithFileSystem makes the ingester read through fs.
func (c *CSVIngester) WithFileSystem(fs fsutil.FileSystem) *CSVIngester {
	c.fs = fs
	return c
}

// Encoder returns the attribute encoder.
func (c *CSVIngester) Encoder() *datamodel.Encoder { return c.enc }

// Stream reads and parses the whole file.
func (c *CSVIngester) Stream(ctx context.Context) (stream.Stream[datamodel.Datum], error) {
	raw, err := c.fs.ReadFile(c.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", c.path, err)
	}

	r := csv.NewReader(bytes.NewReader(raw))
	r.TrimLeadingSpace = true
	r.ReuseRecord = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%s: empty file, no header row", c.path)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: failed to read header: %w", c.path, err)
	}
	header = append([]string(nil), header...)
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	attrIdx, err := columnIndex(header, c.attributes)
	if err != nil {
		return nil, err
	}
	metricIdx, err := columnIndex(header, c.metrics)
	if err != nil {
		return nil, err
	}

	b := &rowBuilder{
		attributes: c.attributes,
		metrics:    c.metrics,
		attrIdx:    attrIdx,
		metricIdx:  metricIdx,
		enc:        c.enc,
	}
	parse := func(s string) (float64, error) {
		return strconv.ParseFloat(strings.TrimSpace(s), 64)
	}

	var data []datamodel.Datum
	for row := 1; ; row++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cells, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: row %d: %w", c.path, row, err)
		}
		d, err := b.build(cells, row, parse)
		if err != nil {
			return nil, err
		}
		data = append(data, d)
	}
	return stream.FromSlice(data), nil
}
