// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package panel persists extracted records as a panel: one dataset per
// tool run configuration, one row per (unit, year) and source document.
// Re-running a tool over the same source replaces that source's rows, so
// repeated runs never duplicate data. The processing log records which
// sources have been written and by which run.
package panel

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/fiscal-engine/pkg/types"
)

const dbFile = "panel.db"

// ErrNoDataset reports a dataset name with no stored rows or schema.
var ErrNoDataset = errors.New("dataset not found")

// Store manages the panel SQLite database.
type Store struct {
	db  *sql.DB
	dir string
	now func() time.Time
}

// NewStore opens or creates the panel database at dir/panel.db and creates
// the schema if it does not exist.
func NewStore(cfg types.PanelConfig) (*Store, error) {
	dir := cfg.Dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating panel directory: %w", err)
	}

	db, err := sql.Open("sqlite3", filepath.Join(dir, dbFile)+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db, dir: dir, now: time.Now}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Dir returns the directory holding the database.
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS datasets (
			name TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			columns TEXT NOT NULL,
			numeric_columns TEXT NOT NULL,
			updated_at TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS records (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			dataset TEXT NOT NULL REFERENCES datasets(name) ON DELETE CASCADE,
			unit TEXT NOT NULL,
			year TEXT NOT NULL,
			source TEXT NOT NULL,
			seq INTEGER NOT NULL,
			status TEXT NOT NULL,
			fields TEXT NOT NULL,
			run_id TEXT,
			UNIQUE(dataset, source, seq)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_records_unit_year ON records(dataset, unit, year)`,
		`CREATE TABLE IF NOT EXISTS processing_log (
			dataset TEXT NOT NULL REFERENCES datasets(name) ON DELETE CASCADE,
			source TEXT NOT NULL,
			run_id TEXT NOT NULL,
			row_count INTEGER NOT NULL,
			status TEXT NOT NULL,
			processed_at TEXT NOT NULL,
			PRIMARY KEY(dataset, source)
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// IsProcessed reports whether source was processed successfully into
// dataset. Sources logged as failed or parse_failed are retried.
func (s *Store) IsProcessed(ctx context.Context, dataset, source string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM processing_log WHERE dataset = ? AND source = ? AND status = ?`,
		dataset, source, string(types.StatusOK),
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("querying processing log: %w", err)
	}
	return n > 0, nil
}

// ReplaceSource replaces every row of source in ds.Name with ds.Records
// and records source in the processing log, in one transaction. The
// dataset schema is created on first use; later calls append new columns
// to it.
func (s *Store) ReplaceSource(ctx context.Context, ds types.Dataset, source, runID string) error {
	if ds.Name == "" {
		return fmt.Errorf("dataset name is empty")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	now := s.now().UTC().Format(time.RFC3339)
	if err := upsertDataset(ctx, tx, ds, now); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM records WHERE dataset = ? AND source = ?`, ds.Name, source,
	); err != nil {
		return fmt.Errorf("deleting old rows: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO records (dataset, unit, year, source, seq, status, fields, run_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	status := types.StatusOK
	for i, r := range ds.Records {
		fields, err := json.Marshal(r.Values)
		if err != nil {
			return fmt.Errorf("encoding row %d: %w", i, err)
		}
		if r.Status != types.StatusOK {
			status = r.Status
		}
		if _, err := stmt.ExecContext(ctx,
			ds.Name, r.Unit, r.Year, source, r.Seq, string(r.Status), string(fields), runID,
		); err != nil {
			return fmt.Errorf("inserting row %d: %w", i, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO processing_log (dataset, source, run_id, row_count, status, processed_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(dataset, source) DO UPDATE SET
			run_id=excluded.run_id, row_count=excluded.row_count,
			status=excluded.status, processed_at=excluded.processed_at`,
		ds.Name, source, runID, len(ds.Records), string(status), now,
	); err != nil {
		return fmt.Errorf("updating processing log: %w", err)
	}

	return tx.Commit()
}

func upsertDataset(ctx context.Context, tx *sql.Tx, ds types.Dataset, now string) error {
	columns, numeric := ds.Columns, ds.Numeric

	var storedCols, storedNum string
	err := tx.QueryRowContext(ctx,
		`SELECT columns, numeric_columns FROM datasets WHERE name = ?`, ds.Name,
	).Scan(&storedCols, &storedNum)
	switch {
	case err == nil:
		var prevCols, prevNum []string
		if err := json.Unmarshal([]byte(storedCols), &prevCols); err != nil {
			return fmt.Errorf("decoding columns of %s: %w", ds.Name, err)
		}
		if err := json.Unmarshal([]byte(storedNum), &prevNum); err != nil {
			return fmt.Errorf("decoding numeric columns of %s: %w", ds.Name, err)
		}
		columns, numeric = mergeColumns(prevCols, columns), mergeColumns(prevNum, numeric)
	case !errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("reading dataset %s: %w", ds.Name, err)
	}

	colsJSON, _ := json.Marshal(nonNil(columns))
	numJSON, _ := json.Marshal(nonNil(numeric))
	_, err = tx.ExecContext(ctx,
		`INSERT INTO datasets (name, kind, columns, numeric_columns, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET
			kind=excluded.kind, columns=excluded.columns,
			numeric_columns=excluded.numeric_columns, updated_at=excluded.updated_at`,
		ds.Name, string(ds.Kind), string(colsJSON), string(numJSON), now,
	)
	if err != nil {
		return fmt.Errorf("upserting dataset %s: %w", ds.Name, err)
	}
	return nil
}

// mergeColumns appends the columns of next missing from prev, keeping
// prev's order.
func mergeColumns(prev, next []string) []string {
	out := slices.Clone(prev)
	for _, c := range next {
		if !slices.Contains(out, c) {
			out = append(out, c)
		}
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// DatasetInfo summarizes one stored dataset.
type DatasetInfo struct {
	Name      string            `json:"name" yaml:"name"`
	Kind      types.DatasetKind `json:"kind" yaml:"kind"`
	Columns   int               `json:"columns" yaml:"columns"`
	Rows      int               `json:"rows" yaml:"rows"`
	Sources   int               `json:"sources" yaml:"sources"`
	UpdatedAt string            `json:"updated_at" yaml:"updated_at"`
}

// Datasets lists the stored datasets sorted by name.
func (s *Store) Datasets(ctx context.Context) ([]DatasetInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT d.name, d.kind, d.columns, d.updated_at,
			(SELECT count(*) FROM records r WHERE r.dataset = d.name),
			(SELECT count(*) FROM processing_log l WHERE l.dataset = d.name)
		 FROM datasets d ORDER BY d.name`)
	if err != nil {
		return nil, fmt.Errorf("listing datasets: %w", err)
	}
	defer rows.Close()

	var out []DatasetInfo
	for rows.Next() {
		var (
			info    DatasetInfo
			kind    string
			columns string
			updated sql.NullString
		)
		if err := rows.Scan(&info.Name, &kind, &columns, &updated, &info.Rows, &info.Sources); err != nil {
			return nil, fmt.Errorf("scanning dataset: %w", err)
		}
		var cols []string
		_ = json.Unmarshal([]byte(columns), &cols)
		info.Kind = types.DatasetKind(kind)
		info.Columns = len(cols)
		info.UpdatedAt = updated.String
		out = append(out, info)
	}
	return out, rows.Err()
}

// Filter restricts the rows returned by Dataset.
type Filter struct {
	Unit string
	Year string
}

// Dataset loads a stored dataset ordered by unit, year, source and seq.
func (s *Store) Dataset(ctx context.Context, name string, f Filter) (types.Dataset, error) {
	ds := types.Dataset{Name: name}

	var kind, columns, numeric string
	err := s.db.QueryRowContext(ctx,
		`SELECT kind, columns, numeric_columns FROM datasets WHERE name = ?`, name,
	).Scan(&kind, &columns, &numeric)
	if errors.Is(err, sql.ErrNoRows) {
		return ds, fmt.Errorf("%w: %s", ErrNoDataset, name)
	}
	if err != nil {
		return ds, fmt.Errorf("reading dataset %s: %w", name, err)
	}
	ds.Kind = types.DatasetKind(kind)
	if err := json.Unmarshal([]byte(columns), &ds.Columns); err != nil {
		return ds, fmt.Errorf("decoding columns of %s: %w", name, err)
	}
	if err := json.Unmarshal([]byte(numeric), &ds.Numeric); err != nil {
		return ds, fmt.Errorf("decoding numeric columns of %s: %w", name, err)
	}

	query := `SELECT unit, year, source, seq, status, fields FROM records WHERE dataset = ?`
	args := []any{name}
	if f.Unit != "" {
		query += ` AND unit = ?`
		args = append(args, f.Unit)
	}
	if f.Year != "" {
		query += ` AND year = ?`
		args = append(args, f.Year)
	}
	query += ` ORDER BY unit, year, source, seq`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return ds, fmt.Errorf("querying rows of %s: %w", name, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			r      types.Record
			status string
			fields string
		)
		if err := rows.Scan(&r.Unit, &r.Year, &r.Source, &r.Seq, &status, &fields); err != nil {
			return ds, fmt.Errorf("scanning row: %w", err)
		}
		r.Status = types.RecordStatus(status)
		if err := json.Unmarshal([]byte(fields), &r.Values); err != nil {
			return ds, fmt.Errorf("decoding row %s/%d: %w", r.Source, r.Seq, err)
		}
		ds.Records = append(ds.Records, r)
	}
	return ds, rows.Err()
}

// LogEntry is one processing-log row.
type LogEntry struct {
	Source      string `json:"source" yaml:"source"`
	RunID       string `json:"run_id" yaml:"run_id"`
	Rows        int    `json:"rows" yaml:"rows"`
	Status      string `json:"status" yaml:"status"`
	ProcessedAt string `json:"processed_at" yaml:"processed_at"`
}

// ProcessingLog returns the processing log of dataset ordered by source.
func (s *Store) ProcessingLog(ctx context.Context, dataset string) ([]LogEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT source, run_id, row_count, status, processed_at FROM processing_log
		 WHERE dataset = ? ORDER BY source`, dataset)
	if err != nil {
		return nil, fmt.Errorf("querying processing log: %w", err)
	}
	defer rows.Close()

	var out []LogEntry
	for rows.Next() {
		var e LogEntry
		if err := rows.Scan(&e.Source, &e.RunID, &e.Rows, &e.Status, &e.ProcessedAt); err != nil {
			return nil, fmt.Errorf("scanning log entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Drop deletes a dataset with its rows and processing log.
func (s *Store) Drop(ctx context.Context, name string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`DELETE FROM records WHERE dataset = ?`,
		`DELETE FROM processing_log WHERE dataset = ?`,
		`DELETE FROM datasets WHERE name = ?`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, name); err != nil {
			return fmt.Errorf("dropping %s: %w", name, err)
		}
	}
	return tx.Commit()
}
