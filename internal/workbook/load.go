// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package workbook

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Load reads the sheets of a .xlsx, .csv, .html or .htm file.
func Load(path string) ([]*Sheet, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return LoadXLSX(path)
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", path, err)
		}
		defer f.Close()
		s, err := LoadCSV(f, filepath.Base(path))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		return []*Sheet{s}, nil
	case ".html", ".htm":
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", path, err)
		}
		defer f.Close()
		sheets, err := LoadHTML(f, filepath.Base(path))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		return sheets, nil
	default:
		return nil, fmt.Errorf("unsupported table format %q", filepath.Ext(path))
	}
}

// Supported reports whether Load can read path.
func Supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm", ".csv", ".html", ".htm":
		return true
	}
	return false
}

// LoadCSV reads a CSV table into one sheet. CSV carries no styling, so
// every non-empty cell counts as bordered.
func LoadCSV(r io.Reader, name string) (*Sheet, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}

	s := NewSheet(name)
	for i, rec := range records {
		for j, v := range rec {
			v = strings.TrimPrefix(v, "\ufeff")
			if strings.TrimSpace(v) == "" {
				continue
			}
			s.SetValue(i+1, j+1, v, true)
		}
	}
	return s, nil
}

// LoadHTML reads every <table> in an HTML document, one sheet per table.
// Cells spanning rows or columns become merged ranges; every cell inside a
// table counts as bordered.
func LoadHTML(r io.Reader, name string) ([]*Sheet, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parsing HTML: %w", err)
	}

	var sheets []*Sheet
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Table {
			sheets = append(sheets, tableSheet(n, fmt.Sprintf("%s#%d", name, len(sheets)+1)))
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return sheets, nil
}

// Span limits of the HTML table model. Row spans are also cut at the last
// row of the table.
const (
	maxColSpan = 1000
	maxRowSpan = 65534
)

func tableSheet(table *html.Node, name string) *Sheet {
	s := NewSheet(name)
	occupied := make(map[[2]int]bool)

	rows := tableRows(table)
	row := 0
	for _, tr := range rows {
		row++
		col := 1
		for c := tr.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode || (c.DataAtom != atom.Td && c.DataAtom != atom.Th) {
				continue
			}
			for occupied[[2]int{row, col}] {
				col++
			}
			rowSpan := min(spanAttr(c, "rowspan", maxRowSpan), len(rows)-row+1)
			colSpan := spanAttr(c, "colspan", maxColSpan)
			for dr := 0; dr < rowSpan; dr++ {
				for dc := 0; dc < colSpan; dc++ {
					occupied[[2]int{row + dr, col + dc}] = true
					s.SetValue(row+dr, col+dc, "", true)
				}
			}
			s.SetValue(row, col, nodeText(c), true)
			if rowSpan > 1 || colSpan > 1 {
				s.AddMerge(Range{MinRow: row, MinCol: col, MaxRow: row + rowSpan - 1, MaxCol: col + colSpan - 1})
			}
			col += colSpan
		}
	}
	return s
}

// tableRows returns the <tr> elements of table, skipping nested tables.
func tableRows(table *html.Node) []*html.Node {
	var rows []*html.Node
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			switch c.DataAtom {
			case atom.Table:
				continue
			case atom.Tr:
				rows = append(rows, c)
			default:
				walk(c)
			}
		}
	}
	walk(table)
	return rows
}

// spanAttr returns the span named key, between 1 and limit.
func spanAttr(n *html.Node, key string, limit int) int {
	for _, a := range n.Attr {
		if a.Key != key {
			continue
		}
		if v, err := strconv.Atoi(strings.TrimSpace(a.Val)); err == nil && v > 1 {
			return min(v, limit)
		}
	}
	return 1
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		if n.Type == html.ElementNode && n.DataAtom == atom.Br {
			b.WriteString("\n")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(b.String())
}
