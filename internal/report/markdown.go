// Package report renders recovered test cases for people: a markdown
// report, its HTML and PDF forms, and a flat table for spreadsheets.
package report

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nobodyplayer/byte5-autotestgen/internal/testcase"
)

const (
	BulkMarkerPrefix = "<!-- TEST_CASES_JSON: "
	BulkMarkerSuffix = " -->"
)

// Markdown writes one section per record in the layout
// testcase.ParseMarkdown reads back.
func Markdown(title string, records []testcase.Record) string {
	var b strings.Builder
	if strings.TrimSpace(title) == "" {
		title = "Test Cases"
	}
	fmt.Fprintf(&b, "# %s\n\n", inline(title))
	fmt.Fprintf(&b, "%d test case(s).\n", len(records))
	for _, r := range records {
		fmt.Fprintf(&b, "\n## %s: %s\n\n", inline(r.ID), inline(r.Title))
		if r.Priority != "" {
			fmt.Fprintf(&b, "**Priority:** %s\n\n", inline(r.Priority))
		}
		fmt.Fprintf(&b, "**Description:** %s\n\n", inline(r.Description))
		if r.Preconditions != "" {
			fmt.Fprintf(&b, "**Preconditions:** %s\n\n", inline(r.Preconditions))
		}
		if len(r.Steps) == 0 {
			b.WriteString("_No steps._\n\n---\n")
			continue
		}
		b.WriteString("| # | Step | Expected Result |\n")
		b.WriteString("| --- | --- | --- |\n")
		for _, s := range r.Steps {
			fmt.Fprintf(&b, "| %d | %s | %s |\n", s.StepNumber, cell(s.Description), cell(s.ExpectedResult))
		}
		b.WriteString("\n---\n")
	}
	return b.String()
}

// BulkMarker encodes records as the single-line marker the recovery engine
// looks for first. The JSON encoder escapes '>' so a field can never close
// the comment early.
func BulkMarker(records []testcase.Record) (string, error) {
	if records == nil {
		records = []testcase.Record{}
	}
	blob, err := json.Marshal(records)
	if err != nil {
		return "", fmt.Errorf("encode bulk marker: %w", err)
	}
	return BulkMarkerPrefix + string(blob) + BulkMarkerSuffix, nil
}

func inline(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func cell(s string) string {
	return strings.ReplaceAll(inline(s), "|", `\|`)
}
