package genserver

import (
	"fmt"
	"strings"
)

const systemPrompt = "You are a senior QA engineer. You write complete, executable test cases from product requirement documents, " +
	"reading both the text and any attached UI mockups or flow diagrams. Cover every feature, user role, " +
	"happy path, failure path and boundary condition the document implies."

const formatInstructions = `Write the test cases in Markdown, one section per case:

1. A level-two heading with the ID and title, for example: ## TC-001: Login with valid credentials
2. **Priority:** High, Medium or Low
3. **Description:** what the case verifies
4. **Preconditions:** required state, when there is any
5. The steps as a Markdown table with a header and a separator row:

| # | Step | Expected Result |
| --- | --- | --- |
| 1 | First action | First expected result |
| 2 | Second action | Second expected result |

Keep every table cell on a single line. Include both positive and negative scenarios.`

// UserPrompt builds the text block that accompanies any uploaded images.
func UserPrompt(in Input) string {
	var b strings.Builder
	b.WriteString("Generate comprehensive test cases from the PRD below (text and attached images).\n\n")
	prd := strings.TrimSpace(in.PRDText)
	if prd == "" {
		prd = "(no text provided; use the attached images)"
	}
	fmt.Fprintf(&b, "PRD text:\n%s\n\n", prd)
	fmt.Fprintf(&b, "Context: %s\n\n", strings.TrimSpace(in.Context))
	fmt.Fprintf(&b, "Special requirements: %s\n\n", strings.TrimSpace(in.Requirements))
	b.WriteString(formatInstructions)
	if len(in.Images) > 0 {
		fmt.Fprintf(&b, "\n\n%d image(s) are attached. Analyse their UI elements, interaction flows and business rules.", len(in.Images))
	}
	return b.String()
}
