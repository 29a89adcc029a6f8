// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package panel

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/fiscal-engine/internal/numeric"
	"github.com/pdiddy/fiscal-engine/internal/workbook"
	"github.com/pdiddy/fiscal-engine/pkg/types"
)

// Format is an export file format.
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// Sheet names of an xlsx export.
const (
	DataSheet = "Panel_Data"
	LogSheet  = "processing_log"
)

// ParseFormat maps a format name or file extension to a Format.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.TrimPrefix(strings.ToLower(s), ".")); f {
	case FormatXLSX, FormatCSV, FormatYAML, FormatJSON:
		return f, nil
	case "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("unknown export format %q (want xlsx, csv, yaml or json)", s)
}

// ExportName returns the timestamped export file name <dataset>_<time>.<ext>.
func ExportName(dataset string, f Format, at time.Time) string {
	return fmt.Sprintf("%s_%s.%s", dataset, at.Format("20060102_150405"), f)
}

// exportDoc is the YAML and JSON export layout.
type exportDoc struct {
	Dataset       string         `json:"dataset" yaml:"dataset"`
	Kind          string         `json:"kind" yaml:"kind"`
	Columns       []string       `json:"columns" yaml:"columns"`
	Records       []types.Record `json:"records" yaml:"records"`
	ProcessingLog []LogEntry     `json:"processing_log" yaml:"processing_log"`
	ExportedAt    string         `json:"exported_at" yaml:"exported_at"`
}

// Export writes a dataset to path. An empty path writes a timestamped file
// in the store directory. It returns the path written.
func (s *Store) Export(ctx context.Context, name string, f Format, path string, filter Filter) (string, error) {
	ds, err := s.Dataset(ctx, name, filter)
	if err != nil {
		return "", err
	}
	log, err := s.ProcessingLog(ctx, name)
	if err != nil {
		return "", err
	}

	now := s.now()
	if path == "" {
		path = filepath.Join(s.dir, ExportName(name, f, now))
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("creating export directory: %w", err)
		}
	}

	switch f {
	case FormatXLSX:
		err = workbook.WriteXLSX(path, DataSheetOf(ds), logSheetOf(log))
	case FormatCSV:
		err = writeCSV(path, ds)
	case FormatYAML, FormatJSON:
		doc := exportDoc{
			Dataset:       ds.Name,
			Kind:          string(ds.Kind),
			Columns:       ds.Columns,
			Records:       ds.Records,
			ProcessingLog: log,
			ExportedAt:    now.UTC().Format(time.RFC3339),
		}
		var data []byte
		if f == FormatYAML {
			data, err = yaml.Marshal(&doc)
		} else {
			data, err = json.MarshalIndent(doc, "", "  ")
		}
		if err != nil {
			return "", fmt.Errorf("marshaling %s: %w", f, err)
		}
		err = os.WriteFile(path, data, 0o644)
	default:
		return "", fmt.Errorf("unknown export format %q", f)
	}
	if err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	return path, nil
}

// DataSheetOf lays a dataset out as the Panel_Data sheet: one header row,
// then one row per record. Amounts in numeric columns are stored as numbers.
func DataSheetOf(ds types.Dataset) *workbook.Sheet {
	sh := workbook.NewSheet(DataSheet)
	header := ds.Header()
	for c, h := range header {
		sh.SetValue(1, c+1, h, true)
	}

	amount := make([]bool, len(header))
	for c, h := range header {
		amount[c] = slices.Contains(ds.Numeric, h)
	}
	for i, r := range ds.Records {
		for c, v := range ds.Row(r) {
			cell := workbook.Cell{Value: v, Bordered: true}
			if amount[c] {
				if _, ok := numeric.Parse(v); ok {
					cell.Numeric = true
				}
			}
			sh.Set(i+2, c+1, cell)
		}
	}
	return sh
}

func logSheetOf(entries []LogEntry) *workbook.Sheet {
	sh := workbook.NewSheet(LogSheet)
	for c, h := range []string{"source", "run_id", "rows", "status", "processed_at"} {
		sh.SetValue(1, c+1, h, true)
	}
	for i, e := range entries {
		row := []string{e.Source, e.RunID, strconv.Itoa(e.Rows), e.Status, e.ProcessedAt}
		for c, v := range row {
			sh.SetValue(i+2, c+1, v, true)
		}
	}
	return sh
}

// writeCSV writes a UTF-8 CSV with a byte-order mark so spreadsheet
// applications detect the encoding of CJK text.
func writeCSV(path string, ds types.Dataset) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteString("\ufeff"); err != nil {
		return err
	}
	w := csv.NewWriter(f)
	if err := w.Write(ds.Header()); err != nil {
		return err
	}
	for _, r := range ds.Records {
		if err := w.Write(ds.Row(r)); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}
