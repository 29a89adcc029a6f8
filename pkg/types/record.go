// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines the records, datasets and configuration shared by
// the fiscal and debt tools.
package types

import (
	"regexp"
	"strings"
)

// RecordStatus reports how a record was produced from its source document.
type RecordStatus string

const (
	// StatusOK means the source was processed; individual fields may still be blank.
	StatusOK RecordStatus = "ok"

	// StatusParseFailed means the extraction service replied with content
	// that could not be decoded into fields.
	StatusParseFailed RecordStatus = "parse_failed"

	// StatusFailed means the source could not be processed at all.
	StatusFailed RecordStatus = "failed"
)

// DatasetKind identifies which tool produced a dataset.
type DatasetKind string

const (
	KindFiscal DatasetKind = "fiscal"
	KindDebt   DatasetKind = "debt"
)

// Record is one output row: a flat set of named fields for one
// (unit, year) extracted from exactly one source document.
type Record struct {
	// Unit identifies the administrative unit (county, city, region).
	Unit string `json:"unit" yaml:"unit"`

	// Year is the reporting period.
	Year string `json:"year" yaml:"year"`

	// Source identifies the source document the row was extracted from.
	Source string `json:"source" yaml:"source"`

	// Seq orders rows that come from the same source document (0-based).
	Seq int `json:"seq" yaml:"seq"`

	// Status records whether extraction succeeded.
	Status RecordStatus `json:"status" yaml:"status"`

	// Values maps column name to the extracted value. A missing field is
	// either absent or the empty string.
	Values map[string]string `json:"values" yaml:"values"`
}

// Value returns the named field, or "" when it is missing.
func (r Record) Value(column string) string {
	if r.Values == nil {
		return ""
	}
	return r.Values[column]
}

// Dataset is an ordered collection of records sharing one column schema.
type Dataset struct {
	// Name is the dataset identifier used by the panel store and export file names.
	Name string `json:"name" yaml:"name"`

	// Kind records which tool produced the dataset.
	Kind DatasetKind `json:"kind" yaml:"kind"`

	// Columns lists the indicator columns in output order. The fixed
	// unit, year, source and status columns are not included.
	Columns []string `json:"columns" yaml:"columns"`

	// Numeric lists the columns that hold amounts in 万元.
	Numeric []string `json:"numeric,omitempty" yaml:"numeric,omitempty"`

	// Records holds the rows in (unit, year, source, seq) order.
	Records []Record `json:"records" yaml:"records"`
}

// Header returns the full tabular header: unit, year, the indicator
// columns, source and status.
func (d Dataset) Header() []string {
	h := make([]string, 0, len(d.Columns)+4)
	h = append(h, ColumnUnit, ColumnYear)
	h = append(h, d.Columns...)
	h = append(h, ColumnSource, ColumnStatus)
	return h
}

// Row flattens a record into cells aligned with Header.
func (d Dataset) Row(r Record) []string {
	row := make([]string, 0, len(d.Columns)+4)
	row = append(row, r.Unit, r.Year)
	for _, c := range d.Columns {
		row = append(row, r.Value(c))
	}
	row = append(row, r.Source, string(r.Status))
	return row
}

// Fixed output column names.
const (
	ColumnUnit   = "unit"
	ColumnYear   = "year"
	ColumnSource = "source"
	ColumnStatus = "status"
)

var yearPattern = regexp.MustCompile(`(19|20)\d{2}`)

// NormalizeYear extracts a four-digit year from a label such as "2021年"
// or "FY2021". Labels without one are returned trimmed.
func NormalizeYear(label string) string {
	if y := yearPattern.FindString(label); y != "" {
		return y
	}
	return strings.TrimSpace(label)
}
