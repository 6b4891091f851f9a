package testcase

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Field labels the generator is prompted to use. The Chinese variants are
// what the hosted prompt produced historically and still show up in output.
var (
	priorityLabels      = []string{"**Priority:**", "**优先级:**"}
	descriptionLabels   = []string{"**Description:**", "**描述:**"}
	preconditionsLabels = []string{"**Preconditions:**", "**前置条件:**"}

	tableSeparator = regexp.MustCompile(`^\s*\|(\s*:?-{3,}:?\s*\|)+\s*$`)
)

// ParseMarkdown recovers records from the narrative layout the generator
// writes before its JSON marker:
//
//	## TC-001: Title
//	**Priority:** High
//	**Description:** ...
//	**Preconditions:** ...
//	| # | Step | Expected |
//	| --- | --- | --- |
//	| 1 | ... | ... |
//
// Sections without a parseable step row, or that fail validation, are
// skipped.
func ParseMarkdown(text string) []Record {
	var (
		out     []Record
		current *Record
		inTable bool
	)
	flush := func() {
		if current == nil || len(current.Steps) == 0 {
			return
		}
		blob, err := json.Marshal(current)
		if err != nil {
			return
		}
		if rec, err := Decode(blob); err == nil {
			out = append(out, rec)
		}
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		switch {
		case strings.HasPrefix(line, "## "):
			flush()
			heading := strings.TrimSpace(line[3:])
			rec := Record{Steps: []Step{}}
			if id, title, ok := strings.Cut(heading, ": "); ok {
				rec.ID = strings.TrimSpace(id)
				rec.Title = strings.TrimSpace(title)
			} else {
				rec.ID = fmt.Sprintf("TC-%d", len(out)+1)
				rec.Title = heading
			}
			current = &rec
			inTable = false
		case current == nil:
			continue
		case hasLabel(line, priorityLabels):
			current.Priority = labelValue(line, priorityLabels)
		case hasLabel(line, descriptionLabels):
			current.Description = labelValue(line, descriptionLabels)
		case hasLabel(line, preconditionsLabels):
			current.Preconditions = labelValue(line, preconditionsLabels)
		case tableSeparator.MatchString(line):
			inTable = true
		case inTable && strings.Contains(line, "|"):
			if step, ok := parseStepRow(line); ok {
				current.Steps = append(current.Steps, step)
			}
		}
	}
	flush()
	return out
}

func hasLabel(line string, labels []string) bool {
	for _, l := range labels {
		if strings.HasPrefix(line, l) {
			return true
		}
	}
	return false
}

func labelValue(line string, labels []string) string {
	for _, l := range labels {
		if strings.HasPrefix(line, l) {
			return strings.TrimSpace(strings.TrimPrefix(line, l))
		}
	}
	return ""
}

func parseStepRow(line string) (Step, bool) {
	parts := strings.Split(strings.TrimSpace(line), "|")
	if len(parts) < 5 {
		return Step{}, false
	}
	cells := parts[1 : len(parts)-1]
	for i := range cells {
		cells[i] = strings.TrimSpace(cells[i])
	}
	n, err := strconv.Atoi(cells[0])
	if err != nil {
		return Step{}, false
	}
	return Step{StepNumber: n, Description: cells[1], ExpectedResult: cells[2]}, true
}
