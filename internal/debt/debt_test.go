// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package debt

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/fiscal-engine/internal/workbook"
	"github.com/pdiddy/fiscal-engine/pkg/types"
)

// --- test helpers ---

// testLayout is a reduced special-bond layout with two extended variables.
func testLayout() types.DebtLayout {
	return types.DebtLayout{
		Name:             "test",
		TitlePattern:     `专项债券项目信息`,
		FilenameKeyword:  "专项",
		ScanRowLimit:     3,
		HeaderSearchRows: 5,
		IdentityHeaders:  []string{"项目名称", "项目单位", "主管部门"},
		DataColumns:      []string{"总值", "财政安排", "债券融资"},
		TrailingColumn:   "预期总收益",
		AnchorKey:        "项目名称",
		ExtendedVars:     []string{"项目类型", "建设期"},
		AdditionalVar:    "项目总收益",
		AdditionalWindow: 5,
		SkipLabels:       []string{"合计"},
		NumericColumns:   []string{"总值", "财政安排", "债券融资", "预期总收益", "项目总收益"},
	}
}

// fill writes rows into s starting at row first. Every cell is bordered
// when bordered is true; empty strings leave the cell untouched.
func fill(s *workbook.Sheet, first int, bordered bool, rows ...[]string) {
	for i, row := range rows {
		for j, v := range row {
			if v == "" && !bordered {
				continue
			}
			s.SetValue(first+i, j+1, v, bordered)
		}
	}
}

func tableSheet() *workbook.Sheet {
	s := workbook.NewSheet("p1")
	fill(s, 1, false, []string{"2021年 专项债券项目信息"})
	fill(s, 2, true,
		[]string{"项目名称", "项目单位", "主管部门", "总值", "财政安排", "债券融资", "预期总收益"},
		[]string{"道路A", "城投公司", "交通局", "1,000", "200", "800", "1500"},
		[]string{"学校B", "", "教育局", "", "50", "450", "600"},
	)
	return s
}

func continuationSheet() *workbook.Sheet {
	s := workbook.NewSheet("p2")
	fill(s, 1, true,
		[]string{"道路A", "城投公司", "交通局", "300", "—", "300", "420"},
		[]string{"合计", "", "", "1800", "250", "1550", "2520"},
	)
	return s
}

func blockSheet(name string, blocks ...[][]string) *workbook.Sheet {
	s := workbook.NewSheet(name)
	row := 1
	for _, b := range blocks {
		fill(s, row, true, b...)
		row += len(b) + 1
	}
	return s
}

func sampleSheets() []*workbook.Sheet {
	return []*workbook.Sheet{
		tableSheet(),
		continuationSheet(),
		blockSheet("p3",
			[][]string{{"项目名称", "道路A"}, {"项目类型", "交通"}, {"建设期", "2年"}, {"项目总收益", "1,600"}},
			[][]string{{"项目名称", "学校B"}, {"项目类型", "教育"}, {"建设期", "3年"}},
			[][]string{{"项目名称", "道路A"}, {"项目类型", "市政"}, {"建设期", "1年"}, {"备注", "无"}, {"项目总收益", "450"}},
		),
	}
}

type fakeSink struct {
	processed map[string]bool
	datasets  map[string]types.Dataset
	writes    int
}

func newFakeSink() *fakeSink {
	return &fakeSink{processed: map[string]bool{}, datasets: map[string]types.Dataset{}}
}

func (f *fakeSink) IsProcessed(_ context.Context, dataset, source string) (bool, error) {
	return f.processed[dataset+"|"+source], nil
}

func (f *fakeSink) ReplaceSource(_ context.Context, ds types.Dataset, source, _ string) error {
	f.processed[ds.Name+"|"+source] = true
	f.datasets[source] = ds
	f.writes++
	return nil
}

// --- discovery ---

func TestDiscoverGroupsPagedFiles(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "广东省", "2021年")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for _, name := range []string{
		"专项债券__10.xlsx", "专项债券__2.xlsx", "专项债券__1.xlsx",
		"一般债券__1.xlsx", "~$专项债券__3.xlsx", "专项说明.csv", "readme.txt",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}

	groups, err := Discover(root, "专项")
	require.NoError(t, err)
	require.Len(t, groups, 2)

	paged := groups[0]
	assert.Equal(t, "专项债券", paged.Base)
	assert.Equal(t, dir, paged.Dir())
	require.Len(t, paged.Files, 3)
	assert.Equal(t, "专项债券__1.xlsx", filepath.Base(paged.Files[0]))
	assert.Equal(t, "专项债券__2.xlsx", filepath.Base(paged.Files[1]))
	assert.Equal(t, "专项债券__10.xlsx", filepath.Base(paged.Files[2]))

	assert.Equal(t, "专项说明", groups[1].Base)
	assert.Len(t, groups[1].Files, 1)
}

func TestDiscoverMissingRoot(t *testing.T) {
	_, err := Discover(filepath.Join(t.TempDir(), "missing"), "")
	assert.Error(t, err)
}

// --- consolidation ---

func TestConsolidateStitchesContinuationPages(t *testing.T) {
	sheets := sampleSheets()
	title := regexp.MustCompile(testLayout().TitlePattern)

	out, last, ok := Consolidate(sheets, title, 3)
	require.True(t, ok)
	assert.Equal(t, 1, last)
	assert.Equal(t, consolidatedName, out.Name)
	assert.Equal(t, 5, out.MaxRow())
	assert.Equal(t, 7, out.MaxCol())
	assert.Equal(t, "项目名称", out.At(1, 1).Value)
	assert.Equal(t, "道路A", out.At(4, 1).Value)
	assert.Equal(t, "合计", out.At(5, 1).Value)
}

func TestConsolidateTitleOutsideScanRows(t *testing.T) {
	s := workbook.NewSheet("p1")
	fill(s, 5, false, []string{"专项债券项目信息"})
	fill(s, 6, true, []string{"项目名称", "项目单位"})

	_, _, ok := Consolidate([]*workbook.Sheet{s}, regexp.MustCompile("专项债券项目信息"), 3)
	assert.False(t, ok)

	_, _, ok = Consolidate([]*workbook.Sheet{s}, regexp.MustCompile("专项债券项目信息"), 0)
	assert.True(t, ok)
}

func TestConsolidateNoTitle(t *testing.T) {
	s := blockSheet("p1", [][]string{{"a", "b"}})
	out, last, ok := Consolidate([]*workbook.Sheet{s}, regexp.MustCompile("专项债券项目信息"), 3)
	assert.False(t, ok)
	assert.Nil(t, out)
	assert.Equal(t, -1, last)
}

// --- table rows ---

func TestTableRows(t *testing.T) {
	out, _, ok := Consolidate(sampleSheets(), regexp.MustCompile("专项债券项目信息"), 3)
	require.True(t, ok)

	rows, ok := TableRows(out, testLayout())
	require.True(t, ok)
	require.Len(t, rows, 3, "totals row is skipped")

	assert.Equal(t, "道路", rows[0].Name)
	assert.Equal(t, 1, rows[0].Occurrence)
	assert.Equal(t, "1500", rows[0].Values["预期总收益"])

	// Identity columns forward-fill; data columns do not.
	assert.Equal(t, "城投公司", rows[1].Values["项目单位"])
	assert.Equal(t, "", rows[1].Values["总值"])

	assert.Equal(t, "道路", rows[2].Name)
	assert.Equal(t, 2, rows[2].Occurrence)
}

func TestTableRowsMissingHeader(t *testing.T) {
	s := blockSheet("t", [][]string{{"名称", "单位"}, {"x", "y"}})
	_, ok := TableRows(s, testLayout())
	assert.False(t, ok)
}

func TestForwardFill(t *testing.T) {
	got := forwardFill([][]string{{"a", "1"}, {"", " "}, {"b", ""}})
	assert.Equal(t, [][]string{{"a", "1"}, {"a", "1"}, {"b", "1"}}, got)
}

func TestCleanForMatching(t *testing.T) {
	assert.Equal(t, "道路项目", cleanForMatching(" 道路(1)项目 "))
	assert.Equal(t, "", cleanForMatching("ABC-123"))
}

// --- records ---

func TestExtractRecordsBindsAnchorsByOccurrence(t *testing.T) {
	sheets := sampleSheets()
	out, last, ok := Consolidate(sheets, regexp.MustCompile("专项债券项目信息"), 3)
	require.True(t, ok)

	meta := Meta{Unit: "广东省", Year: "2021", Source: "广东省/2021年/专项债券"}
	records, ok := ExtractRecords(out, sheets, last, testLayout(), meta)
	require.True(t, ok)
	require.Len(t, records, 3)

	first := records[0]
	assert.Equal(t, "广东省", first.Unit)
	assert.Equal(t, "2021", first.Year)
	assert.Equal(t, 0, first.Seq)
	assert.Equal(t, types.StatusOK, first.Status)
	assert.Equal(t, "1000", first.Value("总值"))
	assert.Equal(t, "交通", first.Value("项目类型"))
	assert.Equal(t, "2年", first.Value("建设期"))
	assert.Equal(t, "1600", first.Value("项目总收益"))

	second := records[1]
	assert.Equal(t, "教育", second.Value("项目类型"))
	assert.Equal(t, "", second.Value("总值"))
	assert.Equal(t, "", second.Value("项目总收益"), "no additional variable in the block")

	third := records[2]
	assert.Equal(t, 2, third.Seq)
	assert.Equal(t, "市政", third.Value("项目类型"))
	assert.Equal(t, "450", third.Value("项目总收益"))
	assert.Equal(t, "", third.Value("财政安排"), "placeholder dash is blank")
}

func TestExtractRecordsBlockContinuesOnNextSheet(t *testing.T) {
	sheets := []*workbook.Sheet{
		tableSheet(),
		continuationSheet(),
		blockSheet("p3",
			[][]string{{"项目名称", "学校B"}, {"项目类型", "教育"}, {"建设期", "3年"}},
			[][]string{{"项目名称", "道路A"}, {"项目类型", "交通"}},
		),
		blockSheet("p4",
			[][]string{{"建设期", "2年"}, {"项目总收益", "1,600"}},
			[][]string{{"项目名称", "道路A"}, {"项目类型", "市政"}, {"建设期", "1年"}},
		),
	}
	out, last, ok := Consolidate(sheets, regexp.MustCompile("专项债券项目信息"), 3)
	require.True(t, ok)
	require.Equal(t, 1, last)

	records, ok := ExtractRecords(out, sheets, last, testLayout(), Meta{Unit: "u", Year: "2021"})
	require.True(t, ok)
	require.Len(t, records, 3)

	assert.Equal(t, "交通", records[0].Value("项目类型"))
	assert.Equal(t, "2年", records[0].Value("建设期"))
	assert.Equal(t, "1600", records[0].Value("项目总收益"))

	assert.Equal(t, "教育", records[1].Value("项目类型"))
	assert.Equal(t, "3年", records[1].Value("建设期"))
	assert.Equal(t, "", records[1].Value("项目总收益"))

	assert.Equal(t, "市政", records[2].Value("项目类型"))
	assert.Equal(t, "1年", records[2].Value("建设期"))
}

// mergedBlock writes key/value rows whose key cell spans columns 1-2.
func mergedBlock(s *workbook.Sheet, first int, rows ...[]string) {
	for i, kv := range rows {
		r := first + i
		s.SetValue(r, 1, kv[0], true)
		s.SetValue(r, 2, "", true)
		s.SetValue(r, 3, kv[1], true)
		s.AddMerge(workbook.Range{MinRow: r, MinCol: 1, MaxRow: r, MaxCol: 2})
	}
}

func TestExtractRecordsMergedKeyColumn(t *testing.T) {
	blocks := workbook.NewSheet("p3")
	mergedBlock(blocks, 1,
		[]string{"项目名称", "道路A"},
		[]string{"项目类型", "交通"},
		[]string{"建设期", "2年"},
		[]string{"项目总收益", "1,600"},
	)
	fill(blocks, 6, true,
		[]string{"项目名称", "学校B"},
		[]string{"项目类型", "教育"},
		[]string{"建设期", "3年"},
	)
	sheets := []*workbook.Sheet{tableSheet(), continuationSheet(), blocks}

	out, last, ok := Consolidate(sheets, regexp.MustCompile("专项债券项目信息"), 3)
	require.True(t, ok)
	records, ok := ExtractRecords(out, sheets, last, testLayout(), Meta{Unit: "u", Year: "2021"})
	require.True(t, ok)
	require.Len(t, records, 3)

	assert.Equal(t, "交通", records[0].Value("项目类型"))
	assert.Equal(t, "2年", records[0].Value("建设期"))
	assert.Equal(t, "1600", records[0].Value("项目总收益"))

	assert.Equal(t, "教育", records[1].Value("项目类型"))
	assert.Equal(t, "3年", records[1].Value("建设期"))

	assert.Equal(t, "", records[2].Value("项目类型"), "second 道路A has no anchor")
}

func TestExtractRecordsValuesWithinBounds(t *testing.T) {
	sheets := sampleSheets()
	out, last, _ := Consolidate(sheets, regexp.MustCompile("专项债券项目信息"), 3)
	records, ok := ExtractRecords(out, sheets, last, testLayout(), Meta{Unit: "u", Year: "2021"})
	require.True(t, ok)

	for _, r := range records {
		assert.NotEmpty(t, r.Unit)
		assert.NotEmpty(t, r.Year)
		for _, col := range testLayout().NumericColumns {
			v := r.Value(col)
			if v == "" {
				continue
			}
			assert.False(t, strings.HasPrefix(v, "-"), "%s=%s", col, v)
		}
	}
}

// --- cleaner ---

const sampleCSV = "2021年广东省专项债券项目信息,,,,,,\n" +
	"项目名称,项目单位,主管部门,总值,财政安排,债券融资,预期总收益\n" +
	"道路A,城投公司,交通局,1000,200,800,1500\n" +
	"学校B,教育集团,教育局,500,50,450,600\n" +
	"合计,,,1500,250,1250,2100\n"

func writeSource(t *testing.T, root string) {
	t.Helper()
	dir := filepath.Join(root, "广东省", "2021年")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "专项债券.csv"), []byte(sampleCSV), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "专项附件.csv"), []byte("无关内容\n"), 0o644))
}

func newTestCleaner(t *testing.T, root string, force bool) *Cleaner {
	t.Helper()
	layout := types.SpecialBondLayout()
	c, err := NewCleaner(types.DebtConfig{
		SourceDir:       root,
		ConsolidatedDir: filepath.Join(t.TempDir(), "consolidated"),
		Force:           force,
		Layout:          layout,
	}, "", nil)
	require.NoError(t, err)
	return c
}

func TestCleanWritesRecognizedGroups(t *testing.T) {
	root := t.TempDir()
	writeSource(t, root)
	sink := newFakeSink()

	var buf bytes.Buffer
	summary, err := newTestCleaner(t, root, false).Clean(context.Background(), sink, &buf)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Cleaned)
	assert.Equal(t, 1, summary.Unrecognized)
	assert.Equal(t, 2, summary.Rows)
	assert.Equal(t, 2, summary.Total())
	assert.False(t, summary.HasFailures())
	assert.Contains(t, buf.String(), "cleaned 广东省/2021年/专项债券.csv (2 rows)")
	assert.Contains(t, buf.String(), "unrecognized 广东省/2021年/专项附件.csv")

	ds := sink.datasets["广东省/2021年/专项债券.csv"]
	assert.Equal(t, "debt-special-bond", ds.Name)
	assert.Equal(t, types.KindDebt, ds.Kind)
	require.Len(t, ds.Records, 2)
	assert.Equal(t, "广东省", ds.Records[0].Unit)
	assert.Equal(t, "2021", ds.Records[0].Year)
	assert.Equal(t, "教育集团", ds.Records[1].Value("项目单位"))
}

func TestCleanSkipsProcessedUnlessForced(t *testing.T) {
	root := t.TempDir()
	writeSource(t, root)
	sink := newFakeSink()
	ctx := context.Background()

	_, err := newTestCleaner(t, root, false).Clean(ctx, sink, &bytes.Buffer{})
	require.NoError(t, err)
	firstRun := sink.datasets["广东省/2021年/专项债券.csv"]

	summary, err := newTestCleaner(t, root, false).Clean(ctx, sink, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 0, summary.Cleaned)
	assert.Equal(t, 1, sink.writes)

	summary, err = newTestCleaner(t, root, true).Clean(ctx, sink, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Cleaned)
	assert.Equal(t, 2, sink.writes)

	if diff := cmp.Diff(firstRun, sink.datasets["广东省/2021年/专项债券.csv"]); diff != "" {
		t.Errorf("reprocessing changed the rows (-first +second):\n%s", diff)
	}
}

func TestCleanMissingSource(t *testing.T) {
	c := newTestCleaner(t, filepath.Join(t.TempDir(), "missing"), false)
	_, err := c.Clean(context.Background(), newFakeSink(), &bytes.Buffer{})
	assert.Error(t, err)
}

func TestCleanWritesConsolidatedWorkbook(t *testing.T) {
	root := t.TempDir()
	writeSource(t, root)
	c := newTestCleaner(t, root, false)

	_, err := c.Clean(context.Background(), newFakeSink(), &bytes.Buffer{})
	require.NoError(t, err)

	sheets, err := workbook.Load(filepath.Join(c.cfg.ConsolidatedDir, "广东省_2021年_专项债券_consolidated.xlsx"))
	require.NoError(t, err)
	require.Len(t, sheets, 1)
	assert.Equal(t, "项目名称", sheets[0].At(2, 1).Value)
}

func TestCleanConsolidatedNamesDoNotCollide(t *testing.T) {
	root := t.TempDir()
	for _, region := range []string{"广东省", "广西"} {
		dir := filepath.Join(root, region, "2021年")
		require.NoError(t, os.MkdirAll(dir, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "专项债券.csv"), []byte(sampleCSV), 0o644))
	}
	c := newTestCleaner(t, root, false)

	summary, err := c.Clean(context.Background(), newFakeSink(), &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Cleaned)

	entries, err := os.ReadDir(c.cfg.ConsolidatedDir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{
		"广东省_2021年_专项债券_consolidated.xlsx",
		"广西_2021年_专项债券_consolidated.xlsx",
	}, names)
}

func TestGroupMeta(t *testing.T) {
	root := filepath.Join("data", "debt")
	tests := []struct {
		name     string
		file     string
		wantUnit string
		wantYear string
	}{
		{name: "unit and year", file: "广东省/2021年/a.csv", wantUnit: "广东省", wantYear: "2021"},
		{name: "nested deeper", file: "华南/广东省/2022/a.csv", wantUnit: "广东省", wantYear: "2022"},
		{name: "year only", file: "2021年/a.csv", wantUnit: "", wantYear: "2021"},
		{name: "directly under root", file: "a.csv", wantUnit: "", wantYear: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := Group{Files: []string{filepath.Join(root, filepath.FromSlash(tt.file))}}
			meta := groupMeta(root, g, tt.file)
			assert.Equal(t, tt.wantUnit, meta.Unit)
			assert.Equal(t, tt.wantYear, meta.Year)
			assert.Equal(t, tt.file, meta.Source)
		})
	}
}

func TestNewCleanerRejectsBadPattern(t *testing.T) {
	layout := testLayout()
	layout.TitlePattern = "("
	_, err := NewCleaner(types.DebtConfig{Layout: layout}, "", nil)
	assert.Error(t, err)

	layout = testLayout()
	layout.IdentityHeaders = nil
	_, err = NewCleaner(types.DebtConfig{Layout: layout}, "", nil)
	assert.Error(t, err)
}

// --- layouts ---

func TestLoadLayouts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "layouts.yaml")
	content := `layouts:
  - name: general-bond
    title_pattern: 一般债券项目信息
    identity_headers: [项目名称, 项目单位]
    data_columns: [总值]
    numeric_columns: [总值]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	layouts, err := LoadLayouts(path)
	require.NoError(t, err)
	require.Len(t, layouts, 1)
	assert.Equal(t, []string{"项目名称", "项目单位", "总值"}, layouts[0].Columns())

	l, err := SelectLayout("general-bond", layouts)
	require.NoError(t, err)
	assert.Equal(t, "一般债券项目信息", l.TitlePattern)

	l, err = SelectLayout("", layouts)
	require.NoError(t, err)
	assert.Equal(t, "special-bond", l.Name)

	_, err = SelectLayout("unknown", layouts)
	assert.Error(t, err)
}

func TestLoadLayoutsRejectsIncomplete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "layouts.yaml")
	require.NoError(t, os.WriteFile(path, []byte("layouts:\n  - name: x\n"), 0o644))
	_, err := LoadLayouts(path)
	assert.Error(t, err)
}
