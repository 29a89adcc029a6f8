// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package fiscal extracts budget-execution indicators from the disclosure
// documents of administrative units by asking a chat model. Documents are
// laid out as <root>/<unit>/<year>/<files>; every year directory yields
// exactly one record.
package fiscal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/fiscal-engine/pkg/types"
)

// Message roles understood by the backends.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Document is the extracted text of one source file.
type Document struct {
	Name string
	Text string
}

// AIBackend abstracts the chat API so tests can supply a mock. It returns
// the raw reply text for a complete message list.
type AIBackend interface {
	Extract(ctx context.Context, msgs []Message) (string, error)
}

// DocumentReader turns a source file into text. *textconv.Router
// satisfies it.
type DocumentReader interface {
	Supported(path string) bool
	Convert(ctx context.Context, path string) (string, error)
}

// Sink receives one record per processed year directory. *panel.Store
// satisfies it.
type Sink interface {
	IsProcessed(ctx context.Context, dataset, source string) (bool, error)
	ReplaceSource(ctx context.Context, ds types.Dataset, source, runID string) error
}

// BatchSummary holds counts from a batch extraction run.
type BatchSummary struct {
	Extracted   int
	ParseFailed int
	Skipped     int
	Failed      int
}

// Total returns the number of year directories visited.
func (s BatchSummary) Total() int {
	return s.Extracted + s.ParseFailed + s.Skipped + s.Failed
}

// HasFailures reports whether any record was not extracted.
func (s BatchSummary) HasFailures() bool {
	return s.Failed > 0 || s.ParseFailed > 0
}

func (s *BatchSummary) add(o BatchSummary) {
	s.Extracted += o.Extracted
	s.ParseFailed += o.ParseFailed
	s.Skipped += o.Skipped
	s.Failed += o.Failed
}

// Extractor runs fiscal extraction against one backend. The conversation
// history and upload limits live as long as the Extractor.
type Extractor struct {
	backend AIBackend
	docs    DocumentReader
	conv    *Conversation
	limiter *Limiter
	cfg     types.FiscalConfig
	dataset string
	logger  *zap.Logger

	sinkMu sync.Mutex
}

// NewExtractor returns an extractor writing to the named dataset ("fiscal"
// when empty). Unset configuration falls back to the defaults: the
// DefaultIndicators, the 未找到 marker, 3 retries and one unit at a time.
func NewExtractor(backend AIBackend, docs DocumentReader, cfg types.FiscalConfig, dataset string, logger *zap.Logger) *Extractor {
	if len(cfg.Indicators) == 0 {
		cfg.Indicators = append([]string(nil), types.DefaultIndicators...)
	}
	if cfg.NotFound == "" {
		cfg.NotFound = NotFoundMarker
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if dataset == "" {
		dataset = string(types.KindFiscal)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{
		backend: backend,
		docs:    docs,
		conv:    NewConversation(cfg.MaxHistory),
		limiter: NewLimiter(cfg.Limits, logger),
		cfg:     cfg,
		dataset: dataset,
		logger:  logger,
	}
}

// Dataset returns the empty dataset the extractor writes to.
func (e *Extractor) Dataset() types.Dataset {
	return types.Dataset{
		Name:    e.dataset,
		Kind:    types.KindFiscal,
		Columns: append([]string(nil), e.cfg.Indicators...),
		Numeric: append([]string(nil), e.cfg.Indicators...),
	}
}

// ExtractDocument asks the backend for the indicators of unit in year and
// returns one record. The record is always usable: when the backend fails
// after retries its status is failed, when the reply is not a JSON object
// it is parse_failed, and in both cases every field is blank. The error
// explains a non-ok status.
func (e *Extractor) ExtractDocument(ctx context.Context, unit, year string, docs []Document) (types.Record, error) {
	rec := e.blankRecord(unit, year)

	msgs, user, err := buildMessages(Request{
		Unit:       unit,
		Year:       rec.Year,
		Documents:  docs,
		Indicators: e.cfg.Indicators,
		NotFound:   e.cfg.NotFound,
		History:    e.conv.Messages(unit),
	})
	if err != nil {
		rec.Status = types.StatusFailed
		return rec, err
	}

	reply, err := callWithRetry(ctx, e.backend, msgs, e.cfg.MaxRetries)
	if err != nil {
		rec.Status = types.StatusFailed
		return rec, err
	}
	e.conv.Append(unit, user, Message{Role: RoleAssistant, Content: reply})

	values, err := decodeReply(reply, e.cfg.Indicators, e.cfg.NotFound)
	if err != nil {
		rec.Status = types.StatusParseFailed
		e.logger.Debug("unparseable reply", zap.String("source", rec.Source), zap.String("reply", reply))
		return rec, err
	}
	rec.Values = values
	return rec, nil
}

func (e *Extractor) blankRecord(unit, year string) types.Record {
	values := make(map[string]string, len(e.cfg.Indicators))
	for _, ind := range e.cfg.Indicators {
		values[ind] = ""
	}
	return types.Record{
		Unit:   unit,
		Year:   types.NormalizeYear(year),
		Source: unit + "/" + year,
		Status: types.StatusOK,
		Values: values,
	}
}

// unitResult is the output of one unit's worker. Workers write only their
// own slot.
type unitResult struct {
	records []types.Record
	summary BatchSummary
}

// ExtractAll processes the named unit directories under cfg.SourceDir, or
// every unit directory when units is empty. Units run concurrently up to
// cfg.Concurrency; the years of one unit run in order because they share
// a conversation. Each record is written to sink (when non-nil) as soon
// as it is produced, and sources already in the sink's processing log are
// skipped unless cfg.Force is set.
//
// The returned dataset holds the records of this run in (unit, year) order.
// Only setup errors, sink read errors, a stop-on-exceed upload limit and
// context cancellation abort the batch.
func (e *Extractor) ExtractAll(ctx context.Context, units []string, sink Sink, w io.Writer) (types.Dataset, BatchSummary, error) {
	ds := e.Dataset()
	root := e.cfg.SourceDir
	if _, err := os.Stat(root); err != nil {
		return ds, BatchSummary{}, fmt.Errorf("source directory %s: %w", root, err)
	}

	if len(units) == 0 {
		var err error
		if units, err = listDirs(root); err != nil {
			return ds, BatchSummary{}, err
		}
	}

	runID := uuid.NewString()
	e.logger.Info("extracting fiscal indicators",
		zap.String("root", root),
		zap.Int("units", len(units)),
		zap.Int("concurrency", e.cfg.Concurrency),
		zap.String("run_id", runID))

	pw := &syncWriter{w: w}
	results := make([]unitResult, len(units))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Concurrency)
	for i, unit := range units {
		g.Go(func() error {
			res, err := e.extractUnit(gctx, unit, runID, sink, pw)
			results[i] = res
			return err
		})
	}
	err := g.Wait()

	var summary BatchSummary
	for _, res := range results {
		ds.Records = append(ds.Records, res.records...)
		summary.add(res.summary)
	}
	if err != nil {
		return ds, summary, err
	}

	fmt.Fprintf(w, "\nextracted: %d, parse failed: %d, skipped: %d, failed: %d\n",
		summary.Extracted, summary.ParseFailed, summary.Skipped, summary.Failed)
	return ds, summary, nil
}

func (e *Extractor) extractUnit(ctx context.Context, unit, runID string, sink Sink, w io.Writer) (unitResult, error) {
	var res unitResult
	dir := filepath.Join(e.cfg.SourceDir, unit)
	years, err := listDirs(dir)
	if err != nil {
		fmt.Fprintf(w, "failed  %s: %v\n", unit, err)
		e.logger.Error("reading unit directory", zap.String("unit", unit), zap.Error(err))
		res.summary.Failed++
		return res, nil
	}

	for _, year := range years {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		source := unit + "/" + year

		if sink != nil && !e.cfg.Force {
			done, err := sink.IsProcessed(ctx, e.dataset, source)
			if err != nil {
				return res, fmt.Errorf("reading processing log: %w", err)
			}
			if done {
				fmt.Fprintf(w, "skipped %s (already processed)\n", source)
				res.summary.Skipped++
				continue
			}
		}

		fmt.Fprintf(w, "extracting %s\n", source)
		docs, err := e.readDocuments(ctx, filepath.Join(dir, year))
		if errors.Is(err, ErrLimitExceeded) {
			fmt.Fprintf(w, "stopped %s: %v\n", source, err)
			return res, err
		}

		var rec types.Record
		if err != nil {
			rec = e.blankRecord(unit, year)
			rec.Status = types.StatusFailed
		} else {
			rec, err = e.ExtractDocument(ctx, unit, year, docs)
		}

		switch rec.Status {
		case types.StatusOK:
			fmt.Fprintf(w, "extracted %s (%d/%d indicators)\n", source, filled(rec), len(e.cfg.Indicators))
			res.summary.Extracted++
		case types.StatusParseFailed:
			fmt.Fprintf(w, "failed  %s: %v\n", source, err)
			e.logger.Warn("reply not parseable", zap.String("source", source), zap.Error(err))
			res.summary.ParseFailed++
		default:
			fmt.Fprintf(w, "failed  %s: %v\n", source, err)
			e.logger.Error("extraction failed", zap.String("source", source), zap.Error(err))
			res.summary.Failed++
		}
		res.records = append(res.records, rec)

		if sink != nil {
			if err := e.write(ctx, sink, rec, runID); err != nil {
				fmt.Fprintf(w, "failed  %s: write error: %v\n", source, err)
				e.logger.Error("writing record failed", zap.String("source", source), zap.Error(err))
			}
		}
	}
	return res, nil
}

// write stores rec under its source. Writes are serialized because the
// workers share one database handle.
func (e *Extractor) write(ctx context.Context, sink Sink, rec types.Record, runID string) error {
	ds := e.Dataset()
	ds.Records = []types.Record{rec}

	e.sinkMu.Lock()
	defer e.sinkMu.Unlock()
	return sink.ReplaceSource(ctx, ds, rec.Source, runID)
}

// readDocuments converts every supported file in dir that passes the
// upload limits. Files that fail conversion are logged, left out and do
// not count against the limits.
func (e *Extractor) readDocuments(ctx context.Context, dir string) ([]Document, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}

	var docs []Document
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		path := filepath.Join(dir, name)
		if !e.docs.Supported(path) {
			e.logger.Debug("unsupported document", zap.String("path", path))
			continue
		}

		info, err := entry.Info()
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", path, err)
		}
		ok, err := e.limiter.Admit(path, info.Size())
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		text, err := e.docs.Convert(ctx, path)
		if err != nil {
			e.limiter.Release(info.Size())
			e.logger.Warn("converting document", zap.String("path", path), zap.Error(err))
			continue
		}
		docs = append(docs, Document{Name: name, Text: text})
	}

	if len(docs) == 0 {
		return nil, fmt.Errorf("no readable documents in %s", dir)
	}
	return docs, nil
}

// listDirs returns the sorted names of the visible subdirectories of dir.
func listDirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() && !strings.HasPrefix(entry.Name(), ".") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func filled(rec types.Record) int {
	n := 0
	for _, v := range rec.Values {
		if v != "" {
			n++
		}
	}
	return n
}

// syncWriter serializes progress lines from concurrent workers.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// backoffBase controls the base duration for exponential backoff. Tests
// override this to avoid real sleeps.
var backoffBase = time.Second

// callWithRetry calls the backend with exponential backoff. Rate-limit
// errors have already been retried by the backend and are returned as is.
func callWithRetry(ctx context.Context, backend AIBackend, msgs []Message, maxRetries int) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * backoffBase
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
		}

		reply, err := backend.Extract(ctx, msgs)
		if err == nil {
			return reply, nil
		}
		if errors.Is(err, ErrRateLimited) {
			return "", err
		}
		lastErr = err
	}
	return "", fmt.Errorf("after %d retries: %w", maxRetries, lastErr)
}
