// Package testutil provides shared test utilities and fixtures.
//
// This package centralises common test helpers to reduce code duplication
// across test files and improve test maintainability.
package testutil

import (
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/banshee-data/outlier.report/internal/ingest"
)

// Ptr returns a pointer to v. Handy for building configs in tests.
func Ptr[T any](v T) *T { return &v }

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// NewTestRequest creates a test HTTP request.
func NewTestRequest(method, path string) *http.Request {
	return httptest.NewRequest(method, path, nil)
}

// NewTestRecorder creates a test response recorder.
func NewTestRecorder() *httptest.ResponseRecorder {
	return httptest.NewRecorder()
}

// Planted column names.
const (
	DeviceColumn   = "device"
	FirmwareColumn = "firmware"
	PowerColumn    = "power"
	TempColumn     = "temp"
)

// PlantedAnomalyDevice is the device carried by every planted anomaly.
const PlantedAnomalyDevice = "d-bad"

// PlantedRows returns normal rows followed by anomalies rows.
//
// Normal rows have power and temp drawn from N(100, 5) and N(40, 2) and
// one of five ordinary devices. Anomalies sit far outside that cloud, each
// in a different direction, and all carry PlantedAnomalyDevice. The output
// depends only on the arguments.
func PlantedRows(normal, anomalies int, seed uint64) []ingest.Row {
	rng := rand.New(rand.NewPCG(seed, seed+1))
	rows := make([]ingest.Row, 0, normal+anomalies)
	for i := 0; i < normal; i++ {
		rows = append(rows, ingest.Row{
			Attributes: map[string]string{
				DeviceColumn:   fmt.Sprintf("d-%d", rng.IntN(5)),
				FirmwareColumn: fmt.Sprintf("v%d", 1+rng.IntN(2)),
			},
			Metrics: map[string]float64{
				PowerColumn: 100 + 5*rng.NormFloat64(),
				TempColumn:  40 + 2*rng.NormFloat64(),
			},
		})
	}
	for i := 0; i < anomalies; i++ {
		sign := float64(1 - 2*(i%2))
		rows = append(rows, ingest.Row{
			Attributes: map[string]string{
				DeviceColumn:   PlantedAnomalyDevice,
				FirmwareColumn: fmt.Sprintf("v%d", 1+i%2),
			},
			Metrics: map[string]float64{
				PowerColumn: 100 + sign*float64(80+10*i),
				TempColumn:  40 - sign*float64(30+5*i),
			},
		})
	}
	return rows
}

// RowsCSV renders rows as CSV with a header of attributes then metrics.
func RowsCSV(rows []ingest.Row, attributes, metrics []string) string {
	var b strings.Builder
	b.WriteString(strings.Join(append(append([]string(nil), attributes...), metrics...), ","))
	b.WriteByte('\n')
	for _, r := range rows {
		cells := make([]string, 0, len(attributes)+len(metrics))
		for _, a := range attributes {
			cells = append(cells, r.Attributes[a])
		}
		for _, m := range metrics {
			cells = append(cells, fmt.Sprintf("%g", r.Metrics[m]))
		}
		b.WriteString(strings.Join(cells, ","))
		b.WriteByte('\n')
	}
	return b.String()
}
