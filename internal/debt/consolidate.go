// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package debt

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/pdiddy/fiscal-engine/internal/workbook"
)

// consolidatedName is the sheet name of a consolidated table.
const consolidatedName = "Consolidated_Table"

// cleanCell removes all whitespace from a cell value.
func cleanCell(v string) string {
	return strings.Join(strings.Fields(v), "")
}

// cleanForMatching keeps only CJK unified ideographs, which makes anchor
// matching immune to punctuation, digits and layout noise.
func cleanForMatching(v string) string {
	var b strings.Builder
	for _, r := range v {
		if r >= '一' && r <= '龥' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// isBlank reports whether every rune of v is whitespace.
func isBlank(v string) bool {
	return strings.IndexFunc(v, func(r rune) bool { return !unicode.IsSpace(r) }) < 0
}

// titleSheets returns the indexes of sheets whose first scanRows rows
// (all rows when scanRows <= 0) contain a cell matching title.
func titleSheets(sheets []*workbook.Sheet, title *regexp.Regexp, scanRows int) []int {
	var matched []int
	for i, s := range sheets {
		last := s.MaxRow()
		if scanRows > 0 && scanRows < last {
			last = scanRows
		}
		if sheetMatches(s, title, last) {
			matched = append(matched, i)
		}
	}
	return matched
}

func sheetMatches(s *workbook.Sheet, title *regexp.Regexp, lastRow int) bool {
	maxCol := s.MaxCol()
	for r := 1; r <= lastRow; r++ {
		for c := 1; c <= maxCol; c++ {
			v := s.At(r, c).Value
			if v != "" && title.MatchString(cleanCell(v)) {
				return true
			}
		}
	}
	return false
}

// Consolidate stitches a table that continues across pages into one sheet.
//
// The table starts at the first title-matching sheet that has a bordered
// range. Each immediately following sheet whose bordered range has the
// same column width is treated as a continuation page. The bordered ranges
// are stacked top to bottom. The second result is the index of the last
// sheet used; ok is false when no table was found.
func Consolidate(sheets []*workbook.Sheet, title *regexp.Regexp, scanRows int) (out *workbook.Sheet, last int, ok bool) {
	for _, idx := range titleSheets(sheets, title, scanRows) {
		rng, found := sheets[idx].BorderRange()
		if !found {
			continue
		}

		type part struct {
			sheet *workbook.Sheet
			rng   workbook.Range
		}
		parts := []part{{sheets[idx], rng}}
		last = idx
		for next := idx + 1; next < len(sheets); next++ {
			nextRng, found := sheets[next].BorderRange()
			if !found || nextRng.Width() != rng.Width() {
				break
			}
			parts = append(parts, part{sheets[next], nextRng})
			rng = nextRng
			last = next
		}

		out = workbook.NewSheet(consolidatedName)
		row := 1
		for _, p := range parts {
			workbook.CopyRange(p.sheet, p.rng, out, row, 1)
			row += p.rng.Height()
		}
		return out, last, true
	}
	return nil, -1, false
}
