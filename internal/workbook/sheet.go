// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package workbook models spreadsheet pages as in-memory grids. A Sheet
// keeps each cell's text, whether the cell carries a border, and the
// merged ranges; that is all the table-detection logic needs. Loaders
// build sheets from .xlsx, .csv and HTML tables; WriteXLSX writes them back.
package workbook

import "fmt"

// Cell is one grid position.
type Cell struct {
	Value    string
	Bordered bool

	// Numeric asks writers to store the value as a number when it parses.
	Numeric bool
}

// Range is a rectangular block of cells, 1-based and inclusive.
type Range struct {
	MinRow, MinCol, MaxRow, MaxCol int
}

// Width returns the number of columns the range spans.
func (r Range) Width() int { return r.MaxCol - r.MinCol + 1 }

// Height returns the number of rows the range spans.
func (r Range) Height() int { return r.MaxRow - r.MinRow + 1 }

// Contains reports whether (row, col) lies inside the range.
func (r Range) Contains(row, col int) bool {
	return row >= r.MinRow && row <= r.MaxRow && col >= r.MinCol && col <= r.MaxCol
}

// Within reports whether r lies entirely inside outer.
func (r Range) Within(outer Range) bool {
	return r.MinRow >= outer.MinRow && r.MaxRow <= outer.MaxRow &&
		r.MinCol >= outer.MinCol && r.MaxCol <= outer.MaxCol
}

func (r Range) String() string {
	return fmt.Sprintf("R%dC%d:R%dC%d", r.MinRow, r.MinCol, r.MaxRow, r.MaxCol)
}

// Sheet is a named grid of cells with merged ranges.
type Sheet struct {
	Name   string
	cells  [][]Cell
	Merges []Range

	logicalStarts map[int][]int
}

// NewSheet returns an empty sheet.
func NewSheet(name string) *Sheet {
	return &Sheet{Name: name}
}

// Set stores a cell, growing the grid as needed. row and col are 1-based.
func (s *Sheet) Set(row, col int, c Cell) {
	if row < 1 || col < 1 {
		return
	}
	for len(s.cells) < row {
		s.cells = append(s.cells, nil)
	}
	r := s.cells[row-1]
	for len(r) < col {
		r = append(r, Cell{})
	}
	r[col-1] = c
	s.cells[row-1] = r
	s.logicalStarts = nil
}

// SetValue stores a value and border flag at (row, col).
func (s *Sheet) SetValue(row, col int, value string, bordered bool) {
	s.Set(row, col, Cell{Value: value, Bordered: bordered})
}

// AddMerge records a merged range.
func (s *Sheet) AddMerge(r Range) {
	s.Merges = append(s.Merges, r)
	s.logicalStarts = nil
}

// At returns the cell at (row, col); positions outside the grid are empty.
func (s *Sheet) At(row, col int) Cell {
	if row < 1 || col < 1 || row > len(s.cells) {
		return Cell{}
	}
	r := s.cells[row-1]
	if col > len(r) {
		return Cell{}
	}
	return r[col-1]
}

// MaxRow returns the last row index in use.
func (s *Sheet) MaxRow() int { return len(s.cells) }

// MaxCol returns the widest row's last column index.
func (s *Sheet) MaxCol() int {
	max := 0
	for _, r := range s.cells {
		if len(r) > max {
			max = len(r)
		}
	}
	for _, m := range s.Merges {
		if m.MaxCol > max {
			max = m.MaxCol
		}
	}
	return max
}

// Values returns the cell text as a MaxRow × MaxCol matrix (0-based).
func (s *Sheet) Values() [][]string {
	width := s.MaxCol()
	out := make([][]string, s.MaxRow())
	for i := range out {
		row := make([]string, width)
		for j := range row {
			row[j] = s.At(i+1, j+1).Value
		}
		out[i] = row
	}
	return out
}

// BorderRange returns the bounding box of all bordered cells.
func (s *Sheet) BorderRange() (Range, bool) {
	var (
		r     Range
		found bool
	)
	for i, row := range s.cells {
		for j, c := range row {
			if !c.Bordered {
				continue
			}
			rowNum, colNum := i+1, j+1
			if !found {
				r = Range{MinRow: rowNum, MinCol: colNum, MaxRow: rowNum, MaxCol: colNum}
				found = true
				continue
			}
			r.MinRow = min(r.MinRow, rowNum)
			r.MaxRow = max(r.MaxRow, rowNum)
			r.MinCol = min(r.MinCol, colNum)
			r.MaxCol = max(r.MaxCol, colNum)
		}
	}
	return r, found
}

// CopyRange copies the cells of src inside rng into dst with the top-left
// corner at (dstRow, dstCol). Merged ranges fully inside rng move with them.
func CopyRange(src *Sheet, rng Range, dst *Sheet, dstRow, dstCol int) {
	for r := rng.MinRow; r <= rng.MaxRow; r++ {
		for c := rng.MinCol; c <= rng.MaxCol; c++ {
			dst.Set(dstRow+r-rng.MinRow, dstCol+c-rng.MinCol, src.At(r, c))
		}
	}
	for _, m := range src.Merges {
		if !m.Within(rng) {
			continue
		}
		dst.AddMerge(Range{
			MinRow: dstRow + m.MinRow - rng.MinRow,
			MaxRow: dstRow + m.MaxRow - rng.MinRow,
			MinCol: dstCol + m.MinCol - rng.MinCol,
			MaxCol: dstCol + m.MaxCol - rng.MinCol,
		})
	}
}

// LogicalStarts returns the starting column of each logical column in row:
// a merged range that covers the row counts as one column.
func (s *Sheet) LogicalStarts(row int) []int {
	if s.logicalStarts == nil {
		s.logicalStarts = make(map[int][]int)
	}
	if starts, ok := s.logicalStarts[row]; ok {
		return starts
	}

	maxCol := s.MaxCol()
	var starts []int
	for col := 1; col <= maxCol; {
		starts = append(starts, col)
		next := col + 1
		for _, m := range s.Merges {
			if m.Contains(row, col) {
				next = m.MaxCol + 1
				break
			}
		}
		col = next
	}

	s.logicalStarts[row] = starts
	return starts
}

// LogicalCol maps a 1-based logical column index in row to an absolute column.
func (s *Sheet) LogicalCol(row, index int) (int, bool) {
	starts := s.LogicalStarts(row)
	if index < 1 || index > len(starts) {
		return 0, false
	}
	return starts[index-1], true
}
