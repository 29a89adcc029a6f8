// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package debt cleans local-government bond disclosure tables into panel
// rows. Each disclosure is a group of spreadsheet pages; the cleaner finds
// the project table by its title, stitches continuation pages together,
// reads one row per project and enriches it from the key/value blocks that
// follow the table. Only known layouts are recognized; anything else
// yields no rows.
package debt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pdiddy/fiscal-engine/internal/workbook"
	"github.com/pdiddy/fiscal-engine/pkg/types"
)

// ErrUnrecognized reports a group whose sheets match no known layout.
var ErrUnrecognized = errors.New("no recognized table layout")

// Sink receives the rows of each cleaned group. The panel store
// implements it.
type Sink interface {
	// IsProcessed reports whether source is already in the processing log.
	IsProcessed(ctx context.Context, dataset, source string) (bool, error)

	// ReplaceSource replaces the rows of source with ds.Records and logs
	// source as processed by runID.
	ReplaceSource(ctx context.Context, ds types.Dataset, source, runID string) error
}

// BatchSummary holds counts from a cleaning run.
type BatchSummary struct {
	Cleaned      int
	Skipped      int
	Unrecognized int
	Failed       int
	Rows         int
}

// Total returns the number of groups processed.
func (s BatchSummary) Total() int {
	return s.Cleaned + s.Skipped + s.Unrecognized + s.Failed
}

// HasFailures reports whether any group failed.
func (s BatchSummary) HasFailures() bool {
	return s.Failed > 0
}

// Cleaner runs the cleaning pipeline over a directory of disclosures.
type Cleaner struct {
	cfg     types.DebtConfig
	dataset string
	title   *regexp.Regexp
	logger  *zap.Logger
}

// NewCleaner compiles the layout's title pattern. dataset names the panel
// dataset the rows are written to; it defaults to "debt-<layout>".
func NewCleaner(cfg types.DebtConfig, dataset string, logger *zap.Logger) (*Cleaner, error) {
	if len(cfg.Layout.IdentityHeaders) == 0 {
		return nil, fmt.Errorf("layout %q has no identity headers", cfg.Layout.Name)
	}
	title, err := regexp.Compile("(?i)" + cfg.Layout.TitlePattern)
	if err != nil {
		return nil, fmt.Errorf("compiling title pattern of layout %q: %w", cfg.Layout.Name, err)
	}
	if dataset == "" {
		dataset = "debt-" + cfg.Layout.Name
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cleaner{cfg: cfg, dataset: dataset, title: title, logger: logger}, nil
}

// Dataset returns the empty dataset descriptor rows are written under.
func (c *Cleaner) Dataset() types.Dataset {
	return types.Dataset{
		Name:    c.dataset,
		Kind:    types.KindDebt,
		Columns: c.cfg.Layout.Columns(),
		Numeric: c.cfg.Layout.NumericColumns,
	}
}

// Clean discovers every group under the source directory and writes the
// rows of each recognized group to sink. Groups already logged are skipped
// unless Force is set. A failing group is reported and does not stop the
// run.
func (c *Cleaner) Clean(ctx context.Context, sink Sink, w io.Writer) (BatchSummary, error) {
	root := c.cfg.SourceDir
	if _, err := os.Stat(root); err != nil {
		return BatchSummary{}, fmt.Errorf("source directory %s: %w", root, err)
	}

	groups, err := Discover(root, c.cfg.Layout.FilenameKeyword)
	if err != nil {
		return BatchSummary{}, err
	}
	if c.cfg.ConsolidatedDir != "" {
		if err := os.MkdirAll(c.cfg.ConsolidatedDir, 0o755); err != nil {
			return BatchSummary{}, fmt.Errorf("creating consolidated directory: %w", err)
		}
	}

	runID := uuid.NewString()
	c.logger.Info("cleaning debt disclosures",
		zap.String("root", root),
		zap.String("layout", c.cfg.Layout.Name),
		zap.Int("groups", len(groups)),
		zap.String("run_id", runID))

	var summary BatchSummary
	for i, g := range groups {
		select {
		case <-ctx.Done():
			return summary, ctx.Err()
		default:
		}

		source := sourceID(root, g)
		fmt.Fprintf(w, "[%d/%d] %s\n", i+1, len(groups), source)

		if !c.cfg.Force {
			done, err := sink.IsProcessed(ctx, c.dataset, source)
			if err != nil {
				return summary, fmt.Errorf("reading processing log: %w", err)
			}
			if done {
				fmt.Fprintf(w, "skipped %s (already processed)\n", source)
				summary.Skipped++
				continue
			}
		}

		records, err := c.CleanGroup(g, source)
		switch {
		case errors.Is(err, ErrUnrecognized):
			fmt.Fprintf(w, "unrecognized %s\n", source)
			c.logger.Warn("no recognized table", zap.String("source", source))
			summary.Unrecognized++
			continue
		case err != nil:
			fmt.Fprintf(w, "failed  %s: %v\n", source, err)
			c.logger.Error("cleaning group failed", zap.String("source", source), zap.Error(err))
			summary.Failed++
			continue
		}

		ds := c.Dataset()
		ds.Records = records
		if err := sink.ReplaceSource(ctx, ds, source, runID); err != nil {
			fmt.Fprintf(w, "failed  %s: write error: %v\n", source, err)
			c.logger.Error("writing rows failed", zap.String("source", source), zap.Error(err))
			summary.Failed++
			continue
		}

		fmt.Fprintf(w, "cleaned %s (%d rows)\n", source, len(records))
		summary.Cleaned++
		summary.Rows += len(records)
	}

	fmt.Fprintf(w, "\ncleaned: %d, skipped: %d, unrecognized: %d, failed: %d (rows: %d)\n",
		summary.Cleaned, summary.Skipped, summary.Unrecognized, summary.Failed, summary.Rows)
	return summary, nil
}

// CleanGroup runs the pipeline on one group and returns its rows. It
// returns ErrUnrecognized when no table is found or the table has no
// recognizable header, and when the table yields no project rows.
func (c *Cleaner) CleanGroup(g Group, source string) ([]types.Record, error) {
	var sheets []*workbook.Sheet
	for _, f := range g.Files {
		s, err := workbook.Load(f)
		if err != nil {
			return nil, err
		}
		sheets = append(sheets, s...)
	}

	table, last, ok := Consolidate(sheets, c.title, c.cfg.Layout.ScanRowLimit)
	if !ok {
		return nil, ErrUnrecognized
	}
	c.logger.Debug("table consolidated",
		zap.String("source", source),
		zap.Int("rows", table.MaxRow()),
		zap.Int("last_sheet", last))

	if c.cfg.ConsolidatedDir != "" {
		out := filepath.Join(c.cfg.ConsolidatedDir, consolidatedFile(g, source))
		if err := workbook.WriteXLSX(out, table); err != nil {
			c.logger.Warn("writing consolidated workbook failed", zap.String("path", out), zap.Error(err))
		}
	}

	meta := groupMeta(c.cfg.SourceDir, g, source)
	if meta.Unit == "" || meta.Year == "" {
		c.logger.Warn("unit or year missing from path",
			zap.String("source", source))
	}

	records, ok := ExtractRecords(table, sheets, last, c.cfg.Layout, meta)
	if !ok || len(records) == 0 {
		return nil, ErrUnrecognized
	}
	return records, nil
}

// sourceID is the group key relative to the source root, with forward
// slashes so the processing log is portable.
func sourceID(root string, g Group) string {
	rel, err := filepath.Rel(root, g.Key)
	if err != nil {
		rel = g.Key
	}
	return filepath.ToSlash(rel)
}

// consolidatedFile names the consolidated workbook of a group after its
// directories below the root and its base name, so equal base names in
// different regions do not collide.
func consolidatedFile(g Group, source string) string {
	name := g.Base
	if dir := path.Dir(source); dir != "." {
		name = strings.ReplaceAll(dir, "/", "_") + "_" + name
	}
	return name + "_consolidated.xlsx"
}

// groupMeta derives the unit and year from the directory layout
// <unit>/<year>/<files> below root. Levels missing below root are left
// blank.
func groupMeta(root string, g Group, source string) Meta {
	meta := Meta{Source: source}
	rel, err := filepath.Rel(root, g.Dir())
	if err != nil || rel == "." {
		return meta
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	meta.Year = types.NormalizeYear(parts[len(parts)-1])
	if len(parts) >= 2 {
		meta.Unit = parts[len(parts)-2]
	}
	return meta
}
