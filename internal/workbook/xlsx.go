// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package workbook

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// maxSheetName is Excel's sheet name length limit.
const maxSheetName = 31

// LoadXLSX reads every worksheet of the workbook at path, in tab order.
func LoadXLSX(path string) ([]*Sheet, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening workbook %s: %w", path, err)
	}
	defer f.Close()

	bordered := make(map[int]bool)
	borderOf := func(styleID int) bool {
		if b, ok := bordered[styleID]; ok {
			return b
		}
		b := false
		if style, err := f.GetStyle(styleID); err == nil && style != nil {
			for _, side := range style.Border {
				if side.Style > 0 {
					b = true
					break
				}
			}
		}
		bordered[styleID] = b
		return b
	}

	var sheets []*Sheet
	for _, name := range f.GetSheetList() {
		s, err := loadWorksheet(f, name, borderOf)
		if err != nil {
			return nil, fmt.Errorf("reading sheet %q of %s: %w", name, path, err)
		}
		sheets = append(sheets, s)
	}
	return sheets, nil
}

func loadWorksheet(f *excelize.File, name string, borderOf func(int) bool) (*Sheet, error) {
	rows, err := f.GetRows(name)
	if err != nil {
		return nil, err
	}

	maxRow, maxCol := len(rows), 0
	for _, r := range rows {
		maxCol = max(maxCol, len(r))
	}
	// Bordered but empty cells extend past the last value; the dimension
	// record covers them.
	if dim, err := f.GetSheetDimension(name); err == nil && dim != "" {
		parts := strings.Split(dim, ":")
		if c, r, err := excelize.CellNameToCoordinates(parts[len(parts)-1]); err == nil {
			maxRow, maxCol = max(maxRow, r), max(maxCol, c)
		}
	}

	s := NewSheet(name)
	for r := 1; r <= maxRow; r++ {
		for c := 1; c <= maxCol; c++ {
			var value string
			if r <= len(rows) && c <= len(rows[r-1]) {
				value = rows[r-1][c-1]
			}
			axis, err := excelize.CoordinatesToCellName(c, r)
			if err != nil {
				return nil, err
			}
			styleID, err := f.GetCellStyle(name, axis)
			if err != nil {
				return nil, err
			}
			b := styleID != 0 && borderOf(styleID)
			if value == "" && !b {
				continue
			}
			s.Set(r, c, Cell{Value: value, Bordered: b})
		}
	}

	merges, err := f.GetMergeCells(name)
	if err != nil {
		return nil, err
	}
	for _, m := range merges {
		c1, r1, err := excelize.CellNameToCoordinates(m.GetStartAxis())
		if err != nil {
			continue
		}
		c2, r2, err := excelize.CellNameToCoordinates(m.GetEndAxis())
		if err != nil {
			continue
		}
		s.AddMerge(Range{MinRow: r1, MinCol: c1, MaxRow: r2, MaxCol: c2})
	}
	return s, nil
}

// WriteXLSX writes sheets to a new workbook at path. Bordered cells get a
// thin border on every side; merged ranges are preserved.
func WriteXLSX(path string, sheets ...*Sheet) error {
	if len(sheets) == 0 {
		return fmt.Errorf("no sheets to write")
	}

	f := excelize.NewFile()
	defer f.Close()

	border, err := f.NewStyle(&excelize.Style{
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	if err != nil {
		return fmt.Errorf("creating border style: %w", err)
	}

	defaultSheet := f.GetSheetName(0)
	used := make(map[string]bool)
	for i, s := range sheets {
		name := uniqueSheetName(s.Name, i, used)
		if i == 0 {
			if err := f.SetSheetName(defaultSheet, name); err != nil {
				return fmt.Errorf("naming sheet %q: %w", name, err)
			}
		} else if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("adding sheet %q: %w", name, err)
		}
		if err := writeWorksheet(f, name, s, border); err != nil {
			return fmt.Errorf("writing sheet %q: %w", name, err)
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("saving workbook %s: %w", path, err)
	}
	return nil
}

func writeWorksheet(f *excelize.File, name string, s *Sheet, border int) error {
	for r := 1; r <= s.MaxRow(); r++ {
		for c := 1; c <= s.MaxCol(); c++ {
			cell := s.At(r, c)
			if cell.Value == "" && !cell.Bordered {
				continue
			}
			axis, err := excelize.CoordinatesToCellName(c, r)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(name, axis, cellValue(cell)); err != nil {
				return err
			}
			if cell.Bordered {
				if err := f.SetCellStyle(name, axis, axis, border); err != nil {
					return err
				}
			}
		}
	}
	for _, m := range s.Merges {
		start, err := excelize.CoordinatesToCellName(m.MinCol, m.MinRow)
		if err != nil {
			return err
		}
		end, err := excelize.CoordinatesToCellName(m.MaxCol, m.MaxRow)
		if err != nil {
			return err
		}
		if err := f.MergeCell(name, start, end); err != nil {
			return err
		}
	}
	return nil
}

func cellValue(c Cell) any {
	if c.Numeric {
		if v, err := strconv.ParseFloat(c.Value, 64); err == nil {
			return v
		}
	}
	return c.Value
}

// uniqueSheetName strips characters Excel rejects, truncates to the name
// limit, and de-duplicates.
func uniqueSheetName(name string, index int, used map[string]bool) string {
	clean := strings.Map(func(r rune) rune {
		switch r {
		case ':', '\\', '/', '?', '*', '[', ']':
			return '_'
		}
		return r
	}, strings.TrimSpace(name))
	if clean == "" {
		clean = fmt.Sprintf("Sheet%d", index+1)
	}
	if runes := []rune(clean); len(runes) > maxSheetName {
		clean = string(runes[:maxSheetName])
	}
	base := clean
	for n := 2; used[clean]; n++ {
		suffix := fmt.Sprintf("_%d", n)
		runes := []rune(base)
		if len(runes)+len(suffix) > maxSheetName {
			runes = runes[:maxSheetName-len(suffix)]
		}
		clean = string(runes) + suffix
	}
	used[clean] = true
	return clean
}
