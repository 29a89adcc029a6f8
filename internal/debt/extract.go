// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package debt

import (
	"slices"
	"strings"

	"github.com/pdiddy/fiscal-engine/internal/numeric"
	"github.com/pdiddy/fiscal-engine/internal/workbook"
	"github.com/pdiddy/fiscal-engine/pkg/types"
)

// forwardFill fills each blank cell with the last non-blank value above it
// in the same column. Merged cells are read back as one value followed by
// blanks, so this restores the value to every row the merge covered.
func forwardFill(data [][]string) [][]string {
	width := 0
	for _, row := range data {
		width = max(width, len(row))
	}
	filled := make([][]string, len(data))
	for i, row := range data {
		filled[i] = make([]string, width)
		copy(filled[i], row)
	}
	for c := 0; c < width; c++ {
		last, seen := "", false
		for r := range filled {
			if cleanCell(filled[r][c]) != "" {
				last, seen = filled[r][c], true
			} else if seen {
				filled[r][c] = last
			}
		}
	}
	return filled
}

// findHeader locates the identity header sequence within the first
// searchRows rows. It returns the 0-based row and starting column.
func findHeader(data [][]string, headers []string, searchRows int) (row, col int, ok bool) {
	if len(headers) == 0 {
		return 0, 0, false
	}
	for r := 0; r < min(searchRows, len(data)); r++ {
		for c := 0; c+len(headers) <= len(data[r]); c++ {
			match := true
			for i, h := range headers {
				if cleanCell(data[r][c+i]) != h {
					match = false
					break
				}
			}
			if match {
				return r, c, true
			}
		}
	}
	return 0, 0, false
}

// Row is one project row taken from the consolidated table, before
// extended variables are attached.
type Row struct {
	Values map[string]string

	// Name is the project name reduced to CJK characters.
	Name string

	// Occurrence counts earlier rows with the same Name (1-based).
	Occurrence int
}

// TableRows reads the project rows of a consolidated table.
//
// Identity and optional columns come from the forward-filled grid so that
// vertically merged cells repeat; positional data columns come from the
// raw grid so a blank amount is not mistaken for the one above it. The
// trailing column takes the last bordered non-blank cell of the row. It
// returns false when the identity header cannot be found.
func TableRows(table *workbook.Sheet, layout types.DebtLayout) ([]Row, bool) {
	raw := table.Values()
	filled := forwardFill(raw)

	searchRows := layout.HeaderSearchRows
	if searchRows <= 0 {
		searchRows = 5
	}
	headerRow, start, ok := findHeader(filled, layout.IdentityHeaders, searchRows)
	if !ok {
		return nil, false
	}

	header := make([]string, len(filled[headerRow]))
	for i, v := range filled[headerRow] {
		header[i] = cleanCell(v)
	}
	optional := make(map[string]int)
	for _, name := range layout.OptionalHeaders {
		if i := slices.Index(header, name); i >= 0 {
			optional[name] = i
		}
	}

	counts := make(map[string]int)
	var rows []Row
	for i := headerRow + 1; i < len(filled); i++ {
		if rowBlank(raw[i]) {
			continue
		}
		name := cleanCell(filled[i][start])
		if name == "" || slices.Contains(layout.SkipLabels, name) {
			continue
		}

		values := make(map[string]string)
		for _, h := range layout.OptionalHeaders {
			if c, ok := optional[h]; ok {
				values[h] = filled[i][c]
			}
		}
		for off, h := range layout.IdentityHeaders {
			values[h] = filled[i][start+off]
		}
		for off, h := range layout.DataColumns {
			c := start + len(layout.IdentityHeaders) + off
			if c < len(raw[i]) {
				values[h] = raw[i][c]
			}
		}
		if layout.TrailingColumn != "" {
			values[layout.TrailingColumn] = trailingValue(table, i+1)
		}

		r := Row{Values: values, Name: cleanForMatching(values[layout.IdentityHeaders[0]])}
		if r.Name != "" {
			counts[r.Name]++
			r.Occurrence = counts[r.Name]
		}
		rows = append(rows, r)
	}
	return rows, true
}

func rowBlank(row []string) bool {
	for _, v := range row {
		if !isBlank(v) {
			return false
		}
	}
	return true
}

// trailingValue returns the rightmost bordered non-blank cell of row.
func trailingValue(s *workbook.Sheet, row int) string {
	for c := s.MaxCol(); c >= 1; c-- {
		cell := s.At(row, c)
		if cell.Bordered && !isBlank(cell.Value) {
			return cell.Value
		}
	}
	return ""
}

// location is a cell position across the original sheets.
type location struct {
	sheet, row, logical int
}

// anchorMap scans sheets from index start for key/value rows whose key
// (first logical column) reads anchorKey, and maps each project name to
// its anchors in document order.
func anchorMap(sheets []*workbook.Sheet, start int, anchorKey string) map[string][]location {
	anchors := make(map[string][]location)
	key := cleanForMatching(anchorKey)
	for si := max(start, 0); si < len(sheets); si++ {
		s := sheets[si]
		for r := 1; r <= s.MaxRow(); r++ {
			keyCol, ok1 := s.LogicalCol(r, 1)
			valCol, ok2 := s.LogicalCol(r, 2)
			if !ok1 || !ok2 {
				continue
			}
			if cleanForMatching(s.At(r, keyCol).Value) != key {
				continue
			}
			name := cleanForMatching(s.At(r, valCol).Value)
			if name == "" {
				continue
			}
			anchors[name] = append(anchors[name], location{sheet: si, row: r, logical: 2})
		}
	}
	return anchors
}

// extendedVars walks down from an anchor and reads the layout's extended
// variables: each takes the next bordered cell in the anchor's value
// column, continuing onto following sheets. The additional variable is
// then searched by key within the layout's window.
func extendedVars(at location, sheets []*workbook.Sheet, layout types.DebtLayout) map[string]string {
	out := make(map[string]string)
	si, r := at.sheet, at.row+1

	for _, name := range layout.ExtendedVars {
		for si < len(sheets) {
			s := sheets[si]
			if r > s.MaxRow() {
				si, r = si+1, 1
				continue
			}
			col, ok := s.LogicalCol(r, at.logical)
			r++
			if !ok {
				continue
			}
			if cell := s.At(r-1, col); cell.Bordered {
				out[name] = cell.Value
				break
			}
		}
	}

	if layout.AdditionalVar == "" {
		return out
	}
	window := layout.AdditionalWindow
	if window <= 0 {
		window = 10
	}
	for step := 0; step < window && si < len(sheets); step++ {
		s := sheets[si]
		if r > s.MaxRow() {
			si, r = si+1, 1
			continue
		}
		keyCol, ok1 := s.LogicalCol(r, 1)
		valCol, ok2 := s.LogicalCol(r, 2)
		if ok1 && ok2 {
			value := s.At(r, valCol)
			if cleanCell(s.At(r, keyCol).Value) == layout.AdditionalVar && value.Bordered {
				out[layout.AdditionalVar] = value.Value
				break
			}
		}
		r++
	}
	return out
}

// Meta is the per-group metadata attached to every row.
type Meta struct {
	Unit   string
	Year   string
	Source string
}

// ExtractRecords turns the consolidated table of one group into records.
// sheets are the group's original sheets and lastTable is the index of the
// last sheet consumed by the table; extended information is looked up in
// the sheets after it. The n-th table row with a given project name binds
// to that name's n-th anchor.
func ExtractRecords(table *workbook.Sheet, sheets []*workbook.Sheet, lastTable int, layout types.DebtLayout, meta Meta) ([]types.Record, bool) {
	rows, ok := TableRows(table, layout)
	if !ok {
		return nil, false
	}

	var anchors map[string][]location
	if layout.AnchorKey != "" && (len(layout.ExtendedVars) > 0 || layout.AdditionalVar != "") {
		anchors = anchorMap(sheets, lastTable+1, layout.AnchorKey)
	}

	records := make([]types.Record, 0, len(rows))
	for i, row := range rows {
		values := row.Values
		if locs := anchors[row.Name]; row.Occurrence >= 1 && row.Occurrence <= len(locs) {
			for k, v := range extendedVars(locs[row.Occurrence-1], sheets, layout) {
				values[k] = v
			}
		}
		records = append(records, types.Record{
			Unit:   meta.Unit,
			Year:   meta.Year,
			Source: meta.Source,
			Seq:    i,
			Status: types.StatusOK,
			Values: normalizeValues(values, layout),
		})
	}
	return records, true
}

// normalizeValues trims text columns and converts numeric columns to
// canonical amounts. Blank results are dropped.
func normalizeValues(values map[string]string, layout types.DebtLayout) map[string]string {
	out := make(map[string]string, len(values))
	for k, v := range values {
		if slices.Contains(layout.NumericColumns, k) {
			v = numeric.Normalize(v)
		} else {
			v = trimText(v)
		}
		if v != "" {
			out[k] = v
		}
	}
	return out
}

func trimText(v string) string {
	if isBlank(v) {
		return ""
	}
	return strings.TrimSpace(v)
}
