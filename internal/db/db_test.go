package db

import (
	"bytes"
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/banshee-data/outlier.report/internal/datamodel"
	"github.com/banshee-data/outlier.report/internal/result"
	"github.com/banshee-data/outlier.report/internal/summary"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "results.db"))
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleResult() result.AnalysisResult {
	return result.New(5, 200, 12, 300, 7, []summary.ItemsetResult{
		{
			Support:    1,
			NumRecords: 5,
			Ratio:      math.Inf(1),
			Items:      []datamodel.ColumnValue{{Column: "device", Value: "d-bad"}},
		},
		{
			Support:    0.6,
			NumRecords: 3,
			Ratio:      4.25,
			Items: []datamodel.ColumnValue{
				{Column: "device", Value: "d-bad"},
				{Column: "firmware", Value: "v2"},
			},
		},
	})
}

var resultComparer = cmp.AllowUnexported(result.AnalysisResult{})

func TestNewDB_AppliesMigrations(t *testing.T) {
	db := setupTestDB(t)

	version, dirty, err := db.MigrateVersion(MigrationsFS())
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}
	latest, err := LatestMigrationVersion(MigrationsFS())
	if err != nil {
		t.Fatalf("LatestMigrationVersion failed: %v", err)
	}
	if version != latest || dirty {
		t.Errorf("version = %d (dirty %v), want %d", version, dirty, latest)
	}

	for _, table := range []string{"analysis_runs", "analysis_itemsets"} {
		var n int
		if err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&n); err != nil {
			t.Fatalf("query sqlite_master: %v", err)
		}
		if n != 1 {
			t.Errorf("table %s missing", table)
		}
	}
}

func TestNewDB_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.db")
	first, err := NewDB(path)
	if err != nil {
		t.Fatalf("first NewDB failed: %v", err)
	}
	id, err := first.SaveAnalysisRun(context.Background(), AnalysisRun{QueryName: "q", Result: sampleResult()})
	if err != nil {
		t.Fatalf("SaveAnalysisRun failed: %v", err)
	}
	first.Close()

	second, err := NewDB(path)
	if err != nil {
		t.Fatalf("second NewDB failed: %v", err)
	}
	defer second.Close()
	if _, err := second.GetAnalysisRun(context.Background(), id); err != nil {
		t.Errorf("run lost across reopen: %v", err)
	}
}

func TestSaveAndGetAnalysisRun(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	want := AnalysisRun{
		RunID:       "run-1",
		QueryName:   "sensors",
		CreatedUnix: 1700000000,
		ConfigJSON:  `{"query_name":"sensors"}`,
		Result:      sampleResult(),
	}
	id, err := db.SaveAnalysisRun(ctx, want)
	if err != nil {
		t.Fatalf("SaveAnalysisRun failed: %v", err)
	}
	if id != "run-1" {
		t.Errorf("id = %q, want run-1", id)
	}

	got, err := db.GetAnalysisRun(ctx, id)
	if err != nil {
		t.Fatalf("GetAnalysisRun failed: %v", err)
	}
	if diff := cmp.Diff(want, got, resultComparer); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
	if !math.IsInf(got.Result.Itemsets()[0].Ratio, 1) {
		t.Errorf("infinite ratio not preserved: %v", got.Result.Itemsets()[0].Ratio)
	}
}

func TestSaveAnalysisRun_AssignsID(t *testing.T) {
	db := setupTestDB(t)

	id, err := db.SaveAnalysisRun(context.Background(), AnalysisRun{QueryName: "q", Result: sampleResult()})
	if err != nil {
		t.Fatalf("SaveAnalysisRun failed: %v", err)
	}
	if _, err := uuid.Parse(id); err != nil {
		t.Errorf("id %q is not a uuid: %v", id, err)
	}

	got, err := db.GetAnalysisRun(context.Background(), id)
	if err != nil {
		t.Fatalf("GetAnalysisRun failed: %v", err)
	}
	if got.ConfigJSON != "{}" {
		t.Errorf("ConfigJSON = %q, want {}", got.ConfigJSON)
	}
}

func TestSaveAnalysisRun_DuplicateRollsBack(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	run := AnalysisRun{RunID: "dup", QueryName: "q", Result: result.New(1, 1, 0, 0, 0, nil)}
	if _, err := db.SaveAnalysisRun(ctx, run); err != nil {
		t.Fatalf("first save failed: %v", err)
	}

	run.Result = sampleResult()
	if _, err := db.SaveAnalysisRun(ctx, run); err == nil {
		t.Fatal("expected error saving duplicate run id")
	}

	got, err := db.GetAnalysisRun(ctx, "dup")
	if err != nil {
		t.Fatalf("GetAnalysisRun failed: %v", err)
	}
	if n := len(got.Result.Itemsets()); n != 0 {
		t.Errorf("failed save left %d itemsets behind", n)
	}
}

func TestGetAnalysisRun_NotFound(t *testing.T) {
	db := setupTestDB(t)

	_, err := db.GetAnalysisRun(context.Background(), "missing")
	if !errors.Is(err, ErrRunNotFound) {
		t.Errorf("err = %v, want ErrRunNotFound", err)
	}
}

func TestListAnalysisRuns(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	for i, id := range []string{"a", "b", "c"} {
		run := AnalysisRun{RunID: id, QueryName: "q", CreatedUnix: int64(100 + i), Result: sampleResult()}
		if _, err := db.SaveAnalysisRun(ctx, run); err != nil {
			t.Fatalf("save %s failed: %v", id, err)
		}
	}

	runs, err := db.ListAnalysisRuns(ctx, 2)
	if err != nil {
		t.Fatalf("ListAnalysisRuns failed: %v", err)
	}
	var ids []string
	for _, r := range runs {
		ids = append(ids, r.RunID)
		if r.Result.NumRecords() != 205 {
			t.Errorf("run %s NumRecords = %d, want 205", r.RunID, r.Result.NumRecords())
		}
	}
	if diff := cmp.Diff([]string{"c", "b"}, ids); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}

	all, err := db.ListAnalysisRuns(ctx, 0)
	if err != nil {
		t.Fatalf("ListAnalysisRuns(0) failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("len = %d, want 3", len(all))
	}
}

func TestMigrateDownAndUp(t *testing.T) {
	db := setupTestDB(t)

	if err := db.MigrateDown(MigrationsFS()); err != nil {
		t.Fatalf("MigrateDown failed: %v", err)
	}
	version, _, err := db.MigrateVersion(MigrationsFS())
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}
	if version != 0 {
		t.Errorf("version after down = %d, want 0", version)
	}
	if _, err := db.ListAnalysisRuns(context.Background(), 1); err == nil {
		t.Error("expected query to fail after dropping tables")
	}

	if err := db.MigrateUp(MigrationsFS()); err != nil {
		t.Fatalf("MigrateUp failed: %v", err)
	}
	// second up is a no-op
	if err := db.MigrateUp(MigrationsFS()); err != nil {
		t.Fatalf("repeated MigrateUp failed: %v", err)
	}
}

func TestRunMigrateCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.db")

	var out bytes.Buffer
	if err := RunMigrateCommand([]string{"status"}, path, &out); err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if !strings.Contains(out.String(), "Current version: 0") || !strings.Contains(out.String(), "behind") {
		t.Errorf("unexpected status output:\n%s", out.String())
	}

	out.Reset()
	if err := RunMigrateCommand([]string{"up"}, path, &out); err != nil {
		t.Fatalf("up failed: %v", err)
	}
	if !strings.Contains(out.String(), "Current version: 1") || !strings.Contains(out.String(), "up to date") {
		t.Errorf("unexpected up output:\n%s", out.String())
	}

	out.Reset()
	if err := RunMigrateCommand([]string{"sideways"}, path, &out); err == nil {
		t.Error("expected error for unknown action")
	}
	if !strings.Contains(out.String(), "Usage:") {
		t.Error("expected help text for unknown action")
	}

	if err := RunMigrateCommand(nil, path, &out); err == nil {
		t.Error("expected error for missing action")
	}
	if err := RunMigrateCommand([]string{"help"}, path, &out); err != nil {
		t.Errorf("help failed: %v", err)
	}
}

func TestAttachAdminRoutes(t *testing.T) {
	db := setupTestDB(t)

	httpMux := http.NewServeMux()
	db.AttachAdminRoutes(httpMux)

	for _, path := range []string{"/debug/tailsql/", "/debug/backup"} {
		t.Run(path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, path, nil)
			w := httptest.NewRecorder()
			httpMux.ServeHTTP(w, req)

			// Registered routes answer 403 when debug access is denied.
			if w.Code == http.StatusNotFound {
				t.Errorf("route %s should be registered, got 404", path)
			}
		})
	}
}

func TestServeBackup(t *testing.T) {
	db := setupTestDB(t)
	if _, err := db.SaveAnalysisRun(context.Background(), AnalysisRun{QueryName: "q", Result: sampleResult()}); err != nil {
		t.Fatalf("SaveAnalysisRun failed: %v", err)
	}

	w := httptest.NewRecorder()
	db.serveBackup(w, httptest.NewRequest(http.MethodGet, "/debug/backup", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if !strings.HasPrefix(w.Header().Get("Content-Disposition"), "attachment;") {
		t.Errorf("Content-Disposition = %q", w.Header().Get("Content-Disposition"))
	}
	// gzip magic
	if b := w.Body.Bytes(); len(b) < 2 || b[0] != 0x1f || b[1] != 0x8b {
		t.Error("backup body is not gzip")
	}
}
