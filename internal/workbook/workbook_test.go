// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package workbook

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBorderRange(t *testing.T) {
	s := NewSheet("s")
	s.SetValue(1, 1, "title", false)
	s.SetValue(2, 2, "a", true)
	s.SetValue(4, 5, "", true)
	s.SetValue(6, 6, "note", false)

	r, ok := s.BorderRange()
	require.True(t, ok)
	assert.Equal(t, Range{MinRow: 2, MinCol: 2, MaxRow: 4, MaxCol: 5}, r)
	assert.Equal(t, 4, r.Width())
	assert.Equal(t, 3, r.Height())

	_, ok = NewSheet("empty").BorderRange()
	assert.False(t, ok)
}

func TestLogicalStarts(t *testing.T) {
	s := NewSheet("s")
	s.SetValue(1, 5, "x", false)
	s.AddMerge(Range{MinRow: 1, MinCol: 1, MaxRow: 2, MaxCol: 2})
	s.AddMerge(Range{MinRow: 2, MinCol: 3, MaxRow: 2, MaxCol: 4})

	assert.Equal(t, []int{1, 3, 4, 5}, s.LogicalStarts(1))
	assert.Equal(t, []int{1, 3, 5}, s.LogicalStarts(2))
	assert.Equal(t, []int{1, 2, 3, 4, 5}, s.LogicalStarts(3))

	col, ok := s.LogicalCol(2, 2)
	assert.True(t, ok)
	assert.Equal(t, 3, col)

	_, ok = s.LogicalCol(2, 4)
	assert.False(t, ok)
}

func TestCopyRange(t *testing.T) {
	src := NewSheet("src")
	src.SetValue(2, 2, "a", true)
	src.SetValue(2, 3, "b", true)
	src.SetValue(3, 2, "c", true)
	src.AddMerge(Range{MinRow: 2, MinCol: 2, MaxRow: 2, MaxCol: 3})
	src.AddMerge(Range{MinRow: 1, MinCol: 1, MaxRow: 3, MaxCol: 1})

	dst := NewSheet("dst")
	CopyRange(src, Range{MinRow: 2, MinCol: 2, MaxRow: 3, MaxCol: 3}, dst, 5, 1)

	assert.Equal(t, "a", dst.At(5, 1).Value)
	assert.Equal(t, "b", dst.At(5, 2).Value)
	assert.Equal(t, "c", dst.At(6, 1).Value)
	assert.True(t, dst.At(6, 1).Bordered)
	assert.Equal(t, []Range{{MinRow: 5, MinCol: 1, MaxRow: 5, MaxCol: 2}}, dst.Merges)
}

func TestValuesPadsRows(t *testing.T) {
	s := NewSheet("s")
	s.SetValue(1, 3, "c", false)
	s.SetValue(2, 1, "a", false)

	assert.Equal(t, [][]string{{"", "", "c"}, {"a", "", ""}}, s.Values())
}

func TestLoadCSV(t *testing.T) {
	in := "\ufeff项目名称,项目单位\n道路工程,交通局\n,\n"
	s, err := LoadCSV(strings.NewReader(in), "t.csv")
	require.NoError(t, err)

	assert.Equal(t, "项目名称", s.At(1, 1).Value)
	assert.True(t, s.At(2, 2).Bordered)
	assert.False(t, s.At(3, 1).Bordered)
}

func TestLoadHTML(t *testing.T) {
	in := `<html><body>
<p>2021年专项债券项目信息</p>
<table>
  <tr><th rowspan="2">项目名称</th><th colspan="2">资金</th></tr>
  <tr><th>总值</th><th>财政安排</th></tr>
  <tr><td>道路<br>工程</td><td>1,000</td><td>200</td></tr>
</table>
<table><tr><td>second</td></tr></table>
</body></html>`

	sheets, err := LoadHTML(strings.NewReader(in), "page.html")
	require.NoError(t, err)
	require.Len(t, sheets, 2)

	s := sheets[0]
	assert.Equal(t, "page.html#1", s.Name)
	assert.Equal(t, "项目名称", s.At(1, 1).Value)
	assert.Equal(t, "资金", s.At(1, 2).Value)
	assert.Equal(t, "总值", s.At(2, 2).Value)
	assert.Equal(t, "财政安排", s.At(2, 3).Value)
	assert.Equal(t, "道路\n工程", s.At(3, 1).Value)
	assert.True(t, s.At(2, 1).Bordered)
	assert.ElementsMatch(t, []Range{
		{MinRow: 1, MinCol: 1, MaxRow: 2, MaxCol: 1},
		{MinRow: 1, MinCol: 2, MaxRow: 1, MaxCol: 3},
	}, s.Merges)

	assert.Equal(t, "second", sheets[1].At(1, 1).Value)
}

func TestLoadHTMLClampsSpans(t *testing.T) {
	in := `<table>
  <tr><td rowspan="3000" colspan="100000">大</td><td>b</td></tr>
  <tr><td>c</td></tr>
</table>`

	sheets, err := LoadHTML(strings.NewReader(in), "page.html")
	require.NoError(t, err)
	require.Len(t, sheets, 1)

	s := sheets[0]
	assert.Equal(t, 2, s.MaxRow())
	assert.Equal(t, maxColSpan+1, s.MaxCol())
	assert.Equal(t, []Range{{MinRow: 1, MinCol: 1, MaxRow: 2, MaxCol: maxColSpan}}, s.Merges)
	assert.Equal(t, "b", s.At(1, maxColSpan+1).Value)
	assert.Equal(t, "c", s.At(2, maxColSpan+1).Value)
}

func TestXLSXPreservesBordersAndMerges(t *testing.T) {
	page := NewSheet("第1页")
	page.SetValue(1, 1, "2021年专项债券项目信息", false)
	page.SetValue(2, 1, "项目名称", true)
	page.SetValue(2, 2, "", true)
	page.SetValue(3, 1, "道路工程", true)
	page.Set(3, 2, Cell{Value: "1200.5", Bordered: true, Numeric: true})
	page.AddMerge(Range{MinRow: 2, MinCol: 1, MaxRow: 2, MaxCol: 2})

	other := NewSheet("notes: a/b")
	other.SetValue(1, 1, "free text", false)

	path := filepath.Join(t.TempDir(), "book.xlsx")
	require.NoError(t, WriteXLSX(path, page, other))

	sheets, err := Load(path)
	require.NoError(t, err)
	require.Len(t, sheets, 2)

	got := sheets[0]
	assert.Equal(t, "第1页", got.Name)
	assert.False(t, got.At(1, 1).Bordered)
	assert.True(t, got.At(2, 2).Bordered)
	assert.Equal(t, "道路工程", got.At(3, 1).Value)
	assert.Equal(t, "1200.5", got.At(3, 2).Value)
	assert.Equal(t, []Range{{MinRow: 2, MinCol: 1, MaxRow: 2, MaxCol: 2}}, got.Merges)

	r, ok := got.BorderRange()
	require.True(t, ok)
	assert.Equal(t, Range{MinRow: 2, MinCol: 1, MaxRow: 3, MaxCol: 2}, r)

	assert.Equal(t, "notes_ a_b", sheets[1].Name)
}

func TestWriteXLSXRequiresSheets(t *testing.T) {
	err := WriteXLSX(filepath.Join(t.TempDir(), "x.xlsx"))
	assert.Error(t, err)
}

func TestLoadUnsupported(t *testing.T) {
	_, err := Load("report.pdf")
	assert.Error(t, err)
	assert.False(t, Supported("report.pdf"))
	assert.True(t, Supported("TABLE.XLSX"))
}

func TestUniqueSheetName(t *testing.T) {
	used := map[string]bool{}
	assert.Equal(t, "Panel", uniqueSheetName("Panel", 0, used))
	assert.Equal(t, "Panel_2", uniqueSheetName("Panel", 1, used))
	assert.Equal(t, "Sheet3", uniqueSheetName("  ", 2, used))
	long := strings.Repeat("x", 40)
	assert.Len(t, []rune(uniqueSheetName(long, 3, used)), maxSheetName)
}
