// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package panel

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/pdiddy/fiscal-engine/pkg/types"
)

// maxReportIssues caps the issues listed in a report.
const maxReportIssues = 50

// Coverage counts how many records carry each column.
type Coverage struct {
	Column  string
	Present int
	Missing int
}

// Summary describes a dataset for reports.
type Summary struct {
	Dataset  string
	Kind     types.DatasetKind
	Records  int
	Units    int
	Years    []string
	Sources  int
	ByStatus map[types.RecordStatus]int
	Coverage []Coverage
}

// Summarize counts the records, units, years, statuses and per-column
// coverage of ds.
func Summarize(ds types.Dataset) Summary {
	s := Summary{
		Dataset:  ds.Name,
		Kind:     ds.Kind,
		Records:  len(ds.Records),
		ByStatus: make(map[types.RecordStatus]int),
	}
	units := make(map[string]bool)
	years := make(map[string]bool)
	sources := make(map[string]bool)
	present := make(map[string]int)
	for _, r := range ds.Records {
		units[r.Unit] = true
		years[r.Year] = true
		sources[r.Source] = true
		s.ByStatus[r.Status]++
		for _, c := range ds.Columns {
			if r.Value(c) != "" {
				present[c]++
			}
		}
	}
	s.Units, s.Sources = len(units), len(sources)
	for y := range years {
		s.Years = append(s.Years, y)
	}
	sort.Strings(s.Years)
	for _, c := range ds.Columns {
		s.Coverage = append(s.Coverage, Coverage{Column: c, Present: present[c], Missing: s.Records - present[c]})
	}
	return s
}

// WriteReport writes a Markdown quality report for ds: totals, status
// distribution, per-column coverage and validation issues.
func WriteReport(w io.Writer, ds types.Dataset, issues []Issue, at time.Time) error {
	sum := Summarize(ds)
	md := markdown.NewMarkdown(w)

	md.H1("Panel report: " + ds.Name)
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Kind", string(sum.Kind)},
			{"Records", strconv.Itoa(sum.Records)},
			{"Units", strconv.Itoa(sum.Units)},
			{"Years", strings.Join(sum.Years, ", ")},
			{"Sources", strconv.Itoa(sum.Sources)},
			{"Generated", at.Format("2006-01-02 15:04:05")},
		},
	})
	md.PlainText("")

	md.H2("Status")
	md.PlainText("")
	statuses := []types.RecordStatus{types.StatusOK, types.StatusParseFailed, types.StatusFailed}
	rows := make([][]string, 0, len(statuses))
	for _, st := range statuses {
		rows = append(rows, []string{string(st), strconv.Itoa(sum.ByStatus[st])})
	}
	md.Table(markdown.TableSet{Header: []string{"Status", "Records"}, Rows: rows})
	md.PlainText("")
	if sum.Records > 0 {
		chart := piechart.NewPieChart(io.Discard, piechart.WithTitle("Record status"), piechart.WithShowData(true))
		for _, st := range statuses {
			if n := sum.ByStatus[st]; n > 0 {
				chart.LabelAndIntValue(string(st), uint64(n))
			}
		}
		md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
		md.PlainText("")
	}

	md.H2("Coverage")
	md.PlainText("")
	if len(sum.Coverage) == 0 {
		md.PlainText("No indicator columns.")
	} else {
		rows = rows[:0]
		for _, c := range sum.Coverage {
			rows = append(rows, []string{c.Column, strconv.Itoa(c.Present), strconv.Itoa(c.Missing), percent(c.Present, sum.Records)})
		}
		md.Table(markdown.TableSet{Header: []string{"Column", "Present", "Missing", "Coverage"}, Rows: rows})
	}
	md.PlainText("")

	md.H2("Validation")
	md.PlainText("")
	if len(issues) == 0 {
		md.Tip("No validation issues.")
	} else {
		md.Warningf("%d validation issue(s).", len(issues))
		md.PlainText("")
		lines := make([]string, 0, min(len(issues), maxReportIssues))
		for _, is := range issues[:min(len(issues), maxReportIssues)] {
			lines = append(lines, is.String())
		}
		md.BulletList(lines...)
		if len(issues) > maxReportIssues {
			md.PlainText("")
			md.PlainTextf("… and %d more.", len(issues)-maxReportIssues)
		}
	}
	md.PlainText("")

	return md.Build()
}

func percent(n, total int) string {
	if total == 0 {
		return "-"
	}
	return fmt.Sprintf("%.1f%%", float64(n)*100/float64(total))
}

// WriteTable prints ds as an aligned text table. Column widths use display
// width so CJK text lines up in a terminal.
func WriteTable(w io.Writer, ds types.Dataset) error {
	table := [][]string{ds.Header()}
	for _, r := range ds.Records {
		table = append(table, ds.Row(r))
	}

	widths := make([]int, len(table[0]))
	for _, row := range table {
		for i, cell := range row {
			widths[i] = max(widths[i], runewidth.StringWidth(cell))
		}
	}

	for n, row := range table {
		var b strings.Builder
		for i, cell := range row {
			if i > 0 {
				b.WriteString("  ")
			}
			b.WriteString(cell)
			if i < len(row)-1 {
				b.WriteString(strings.Repeat(" ", widths[i]-runewidth.StringWidth(cell)))
			}
		}
		if _, err := fmt.Fprintln(w, b.String()); err != nil {
			return err
		}
		if n == 0 {
			var sep strings.Builder
			for i, wd := range widths {
				if i > 0 {
					sep.WriteString("  ")
				}
				sep.WriteString(strings.Repeat("-", wd))
			}
			if _, err := fmt.Fprintln(w, sep.String()); err != nil {
				return err
			}
		}
	}
	return nil
}
