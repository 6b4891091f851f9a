// Package testcase defines the test-case record shape shared by the stream
// recovery engine, the generation service and the report/export renderers.
package testcase

// Step is one ordered action of a test case. Steps keep the order the
// generator emitted them in; nothing re-sorts them by StepNumber.
type Step struct {
	StepNumber     int    `json:"step_number"`
	Description    string `json:"description"`
	ExpectedResult string `json:"expected_result"`
}

// Record is a validated test case. Values are only produced by Decode,
// Validate and Placeholder, and are treated as read-only afterwards.
type Record struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Description   string `json:"description"`
	Priority      string `json:"priority,omitempty"`
	Preconditions string `json:"preconditions,omitempty"`
	Steps         []Step `json:"steps"`
}

const (
	PlaceholderID          = "TC-1"
	PlaceholderTitle       = "Test Case"
	PlaceholderDescription = "See rendered content"
)

// Placeholder is the single record shown when nothing structured could be
// recovered from a generated document. Its one step points the reader at
// the raw output.
func Placeholder() Record {
	return Record{
		ID:          PlaceholderID,
		Title:       PlaceholderTitle,
		Description: PlaceholderDescription,
		Steps: []Step{{
			StepNumber:     1,
			Description:    "View the raw generated output",
			ExpectedResult: "Generated content is displayed",
		}},
	}
}

// IsPlaceholder reports whether r is the synthesized fallback record.
func IsPlaceholder(r Record) bool {
	return r.ID == PlaceholderID && r.Title == PlaceholderTitle && r.Description == PlaceholderDescription
}
