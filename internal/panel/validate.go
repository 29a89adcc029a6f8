// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package panel

import (
	"fmt"
	"strings"

	"github.com/pdiddy/fiscal-engine/internal/numeric"
	"github.com/pdiddy/fiscal-engine/pkg/types"
)

// DefaultMaxMagnitude is the largest plausible amount in 万元 (10^13 yuan).
const DefaultMaxMagnitude = 1e9

// Problem classifies a validation issue.
type Problem string

const (
	ProblemMissingUnit Problem = "missing unit"
	ProblemMissingYear Problem = "missing year"
	ProblemNotNumeric  Problem = "not a number"
	ProblemNegative    Problem = "negative amount"
	ProblemTooLarge    Problem = "implausibly large amount"
)

// Issue is one validation finding.
type Issue struct {
	Unit    string  `json:"unit" yaml:"unit"`
	Year    string  `json:"year" yaml:"year"`
	Source  string  `json:"source" yaml:"source"`
	Seq     int     `json:"seq" yaml:"seq"`
	Column  string  `json:"column,omitempty" yaml:"column,omitempty"`
	Value   string  `json:"value,omitempty" yaml:"value,omitempty"`
	Problem Problem `json:"problem" yaml:"problem"`
}

func (i Issue) String() string {
	at := fmt.Sprintf("%s#%d", i.Source, i.Seq)
	if i.Column == "" {
		return fmt.Sprintf("%s: %s", at, i.Problem)
	}
	return fmt.Sprintf("%s: %s %q: %s", at, i.Column, i.Value, i.Problem)
}

// Validate checks every record of ds: unit and year must be non-empty, and
// each non-blank numeric field must parse as an amount between zero and
// maxMagnitude (DefaultMaxMagnitude when maxMagnitude is zero).
func Validate(ds types.Dataset, maxMagnitude float64) []Issue {
	if maxMagnitude == 0 {
		maxMagnitude = DefaultMaxMagnitude
	}

	var issues []Issue
	for _, r := range ds.Records {
		base := Issue{Unit: r.Unit, Year: r.Year, Source: r.Source, Seq: r.Seq}
		if strings.TrimSpace(r.Unit) == "" {
			issue := base
			issue.Problem = ProblemMissingUnit
			issues = append(issues, issue)
		}
		if strings.TrimSpace(r.Year) == "" {
			issue := base
			issue.Problem = ProblemMissingYear
			issues = append(issues, issue)
		}

		for _, col := range ds.Numeric {
			v := r.Value(col)
			if numeric.IsPlaceholder(v) {
				continue
			}
			issue := base
			issue.Column, issue.Value = col, v

			d, ok := numeric.Parse(v)
			switch {
			case !ok:
				issue.Problem = ProblemNotNumeric
			case d.IsNegative():
				issue.Problem = ProblemNegative
			case !numeric.InRange(d, maxMagnitude):
				issue.Problem = ProblemTooLarge
			default:
				continue
			}
			issues = append(issues, issue)
		}
	}
	return issues
}
