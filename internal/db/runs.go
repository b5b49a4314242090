package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/banshee-data/outlier.report/internal/datamodel"
	"github.com/banshee-data/outlier.report/internal/result"
	"github.com/banshee-data/outlier.report/internal/summary"
)

// ErrRunNotFound is returned by GetAnalysisRun for an unknown id.
var ErrRunNotFound = errors.New("analysis run not found")

// AnalysisRun is one stored pipeline result. ConfigJSON holds the
// configuration the run was made with.
type AnalysisRun struct {
	RunID       string                `json:"run_id"`
	QueryName   string                `json:"query_name"`
	CreatedUnix int64                 `json:"created_unix"`
	ConfigJSON  string                `json:"config_json"`
	Result      result.AnalysisResult `json:"result"`
}

// SaveAnalysisRun stores run and its itemsets in one transaction. A run
// without an id is given a fresh one, which is returned.
func (db *DB) SaveAnalysisRun(ctx context.Context, run AnalysisRun) (string, error) {
	if run.RunID == "" {
		run.RunID = uuid.NewString()
	}
	if run.ConfigJSON == "" {
		run.ConfigJSON = "{}"
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	r := run.Result
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO analysis_runs (
			run_id, query_name, created_unix, config_json,
			num_outliers, num_inliers, load_ms, execute_ms, summarize_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.QueryName, run.CreatedUnix, run.ConfigJSON,
		r.NumOutliers(), r.NumInliers(), r.LoadMs(), r.ExecuteMs(), r.SummarizeMs(),
	); err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO analysis_itemsets (run_id, rank, support, num_records, ratio, items_json)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("failed to prepare itemset insert: %w", err)
	}
	defer stmt.Close()

	for rank, is := range r.Itemsets() {
		items, err := json.Marshal(is.Items)
		if err != nil {
			return "", fmt.Errorf("failed to encode itemset %d: %w", rank, err)
		}
		// +Inf is stored as NULL
		var ratio sql.NullFloat64
		if !math.IsInf(is.Ratio, 1) {
			ratio = sql.NullFloat64{Float64: is.Ratio, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, run.RunID, rank, is.Support, is.NumRecords, ratio, string(items)); err != nil {
			return "", fmt.Errorf("failed to insert itemset %d: %w", rank, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit run: %w", err)
	}
	return run.RunID, nil
}

// ListAnalysisRuns returns up to limit runs, newest first. Listed results
// carry counts and timings only; use GetAnalysisRun for their itemsets.
func (db *DB) ListAnalysisRuns(ctx context.Context, limit int) ([]AnalysisRun, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.QueryContext(ctx, `
		SELECT run_id, query_name, created_unix, config_json,
			num_outliers, num_inliers, load_ms, execute_ms, summarize_ms
		FROM analysis_runs
		ORDER BY created_unix DESC, run_id
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []AnalysisRun
	for rows.Next() {
		run, err := scanRun(rows, nil)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return runs, nil
}

// GetAnalysisRun returns the run with id, itemsets included.
func (db *DB) GetAnalysisRun(ctx context.Context, id string) (AnalysisRun, error) {
	itemsets, err := db.itemsets(ctx, id)
	if err != nil {
		return AnalysisRun{}, err
	}

	row := db.QueryRowContext(ctx, `
		SELECT run_id, query_name, created_unix, config_json,
			num_outliers, num_inliers, load_ms, execute_ms, summarize_ms
		FROM analysis_runs
		WHERE run_id = ?`, id)
	run, err := scanRun(row, itemsets)
	if errors.Is(err, sql.ErrNoRows) {
		return AnalysisRun{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return run, err
}

func (db *DB) itemsets(ctx context.Context, id string) ([]summary.ItemsetResult, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT support, num_records, ratio, items_json
		FROM analysis_itemsets
		WHERE run_id = ?
		ORDER BY rank`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []summary.ItemsetResult
	for rows.Next() {
		var (
			is    summary.ItemsetResult
			ratio sql.NullFloat64
			items string
		)
		if err := rows.Scan(&is.Support, &is.NumRecords, &ratio, &items); err != nil {
			return nil, err
		}
		is.Ratio = math.Inf(1)
		if ratio.Valid {
			is.Ratio = ratio.Float64
		}
		if err := json.Unmarshal([]byte(items), &is.Items); err != nil {
			return nil, fmt.Errorf("failed to decode itemset items: %w", err)
		}
		if is.Items == nil {
			is.Items = []datamodel.ColumnValue{}
		}
		out = append(out, is)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner, itemsets []summary.ItemsetResult) (AnalysisRun, error) {
	var run AnalysisRun
	var outliers, inliers int
	var loadMs, executeMs, summarizeMs int64
	if err := s.Scan(&run.RunID, &run.QueryName, &run.CreatedUnix, &run.ConfigJSON,
		&outliers, &inliers, &loadMs, &executeMs, &summarizeMs); err != nil {
		return AnalysisRun{}, err
	}
	run.Result = result.New(outliers, inliers, loadMs, executeMs, summarizeMs, itemsets)
	return run, nil
}
