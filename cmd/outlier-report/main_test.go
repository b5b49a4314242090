package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/outlier.report/internal/db"
	"github.com/banshee-data/outlier.report/internal/result"
	"github.com/banshee-data/outlier.report/internal/testutil"
	"github.com/banshee-data/outlier.report/internal/version"
)

// writeFixture writes a planted-anomaly CSV and a YAML config reading it.
func writeFixture(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	attrs := []string{testutil.DeviceColumn, testutil.FirmwareColumn}
	metrics := []string{testutil.PowerColumn, testutil.TempColumn}
	csvPath := filepath.Join(dir, "readings.csv")
	csv := testutil.RowsCSV(testutil.PlantedRows(200, 5, 7), attrs, metrics)
	require.NoError(t, os.WriteFile(csvPath, []byte(csv), 0644))

	cfgPath := filepath.Join(dir, "analysis.yaml")
	cfg := fmt.Sprintf(`query_name: readings
ingester: csv
input_path: %s
attributes: [device, firmware]
metrics: [power, temp]
transform_type: gaussian
outlier_percentile: 0.975
min_support: 0.2
`, csvPath)
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0644))
	return cfgPath
}

func TestRun_Version(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"-version"}, &out))
	assert.Equal(t, version.String()+"\n", out.String())
}

func TestRun_RequiresConfig(t *testing.T) {
	var out bytes.Buffer
	err := run(context.Background(), nil, &out)
	assert.ErrorContains(t, err, "-config is required")
}

func TestRun_ServeNeedsResultsDB(t *testing.T) {
	var out bytes.Buffer
	err := run(context.Background(), []string{"-config", "x.json", "-serve", ":0"}, &out)
	assert.ErrorContains(t, err, "-serve needs -results-db")
}

func TestRun_UnknownFlag(t *testing.T) {
	var out bytes.Buffer
	testutil.AssertError(t, run(context.Background(), []string{"-nope"}, &out))
}

func TestRun_UnexpectedArgs(t *testing.T) {
	var out bytes.Buffer
	assert.ErrorContains(t, run(context.Background(), []string{"extra"}, &out), "unexpected arguments")
}

func TestRun_TextReport(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"-config", writeFixture(t)}, &out))

	text := out.String()
	assert.Contains(t, text, "outliers:")
	assert.Contains(t, text, "device=d-bad")
	assert.Contains(t, text, "inf")
}

func TestRun_JSONReport(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"-json", "-config", writeFixture(t)}, &out))

	var res result.AnalysisResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	assert.Equal(t, 205, res.NumRecords())
	assert.Equal(t, 5, res.NumOutliers())
	require.NotEmpty(t, res.Itemsets())
	assert.Equal(t, testutil.PlantedAnomalyDevice, res.Itemsets()[0].Items[0].Value)
}

func TestRun_SavesToResultsDB(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "results.db")
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"-config", writeFixture(t), "-results-db", dbPath}, &out))

	database, err := db.NewDB(dbPath)
	require.NoError(t, err)
	defer database.Close()

	runs, err := database.ListAnalysisRuns(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "readings", runs[0].QueryName)
	assert.Contains(t, runs[0].ConfigJSON, `"ingester":"csv"`)

	stored, err := database.GetAnalysisRun(context.Background(), runs[0].RunID)
	require.NoError(t, err)
	assert.Equal(t, 205, stored.Result.NumRecords())
	assert.NotEmpty(t, stored.Result.Itemsets())
}

func TestRun_BadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"ingester":"csv","metrics":[]}`), 0644))

	var out bytes.Buffer
	assert.Error(t, run(context.Background(), []string{"-config", path}, &out))
	assert.Empty(t, out.String())
}

func TestRun_MigrateStatus(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "results.db")
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"-results-db", dbPath, "migrate", "up"}, &out))
	assert.Contains(t, out.String(), "up to date")
}

func TestNewMux_Runs(t *testing.T) {
	database, err := db.NewDB(filepath.Join(t.TempDir(), "results.db"))
	require.NoError(t, err)
	defer database.Close()

	id, err := database.SaveAnalysisRun(context.Background(), db.AnalysisRun{
		QueryName: "q",
		Result:    result.New(1, 9, 0, 0, 0, nil),
	})
	require.NoError(t, err)

	mux := newMux(database)

	t.Run("list", func(t *testing.T) {
		w := testutil.NewTestRecorder()
		mux.ServeHTTP(w, testutil.NewTestRequest(http.MethodGet, "/api/runs?limit=5"))
		testutil.AssertStatusCode(t, w.Code, http.StatusOK)

		var runs []struct {
			RunID string `json:"run_id"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &runs))
		require.Len(t, runs, 1)
		assert.Equal(t, id, runs[0].RunID)
	})

	t.Run("bad limit", func(t *testing.T) {
		w := testutil.NewTestRecorder()
		mux.ServeHTTP(w, testutil.NewTestRequest(http.MethodGet, "/api/runs?limit=x"))
		testutil.AssertStatusCode(t, w.Code, http.StatusBadRequest)
	})

	t.Run("get", func(t *testing.T) {
		w := testutil.NewTestRecorder()
		mux.ServeHTTP(w, testutil.NewTestRequest(http.MethodGet, "/api/runs/"+id))
		require.Equal(t, http.StatusOK, w.Code)
		assert.True(t, strings.Contains(w.Body.String(), `"num_inliers":9`), w.Body.String())
	})

	t.Run("missing", func(t *testing.T) {
		w := testutil.NewTestRecorder()
		mux.ServeHTTP(w, testutil.NewTestRequest(http.MethodGet, "/api/runs/nope"))
		testutil.AssertStatusCode(t, w.Code, http.StatusNotFound)
	})
}

func TestServe_StopsOnCancel(t *testing.T) {
	database, err := db.NewDB(filepath.Join(t.TempDir(), "results.db"))
	require.NoError(t, err)
	defer database.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, serve(ctx, "127.0.0.1:0", database))
}
