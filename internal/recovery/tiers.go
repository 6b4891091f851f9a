package recovery

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"

	"github.com/nobodyplayer/byte5-autotestgen/internal/testcase"
)

const (
	TierBulk        = "bulk"
	TierDiscrete    = "discrete"
	TierLines       = "lines"
	TierPlaceholder = "placeholder"
)

// Markers are single-line and matched lazily, so a payload ends at the
// first " -->" on its line.
var (
	bulkMarker     = regexp.MustCompile(`<!-- TEST_CASES_JSON: (.+?) -->`)
	discreteMarker = regexp.MustCompile(`<!-- JSON_DATA: (.+?) -->`)
)

// Outcome is what one tier produced. An empty Records slice means the
// engine moves on to the next tier.
type Outcome struct {
	Records    []testcase.Record
	Rejections []Rejection
}

func (o *Outcome) reject(tier string, offset int, err error) {
	o.Rejections = append(o.Rejections, Rejection{Tier: tier, Offset: offset, Err: err})
}

// TierFunc is one pure extraction strategy over the frozen buffer.
type TierFunc func(buffer string) Outcome

// Tier pairs a strategy with the name reported in results and logs.
type Tier struct {
	Name    string
	Extract TierFunc
}

// DefaultTiers returns the standard strategies, richest signal first.
func DefaultTiers() []Tier {
	return []Tier{
		{Name: TierBulk, Extract: extractBulk},
		{Name: TierDiscrete, Extract: extractDiscrete},
		{Name: TierLines, Extract: extractLines},
		{Name: TierPlaceholder, Extract: extractPlaceholder},
	}
}

// extractBulk reads the first TEST_CASES_JSON marker as a JSON array. A
// payload that does not parse makes the whole tier come up empty.
func extractBulk(buffer string) Outcome {
	var out Outcome
	loc := bulkMarker.FindStringSubmatchIndex(buffer)
	if loc == nil {
		return out
	}
	payload := buffer[loc[2]:loc[3]]

	var items []json.RawMessage
	if err := json.Unmarshal([]byte(payload), &items); err != nil {
		out.reject(TierBulk, loc[0], &MalformedPayloadError{Tier: TierBulk, Offset: loc[0], Err: err})
		return out
	}
	for _, item := range items {
		rec, err := testcase.Decode(item)
		if err != nil {
			out.reject(TierBulk, loc[0], err)
			continue
		}
		out.Records = append(out.Records, rec)
	}
	return out
}

// extractDiscrete reads every JSON_DATA marker as one record object. One bad
// occurrence does not stop the scan.
func extractDiscrete(buffer string) Outcome {
	var out Outcome
	for _, loc := range discreteMarker.FindAllStringSubmatchIndex(buffer, -1) {
		rec, err := testcase.Decode([]byte(buffer[loc[2]:loc[3]]))
		if err != nil {
			if !testcase.IsSchemaViolation(err) {
				err = &MalformedPayloadError{Tier: TierDiscrete, Offset: loc[0], Err: errors.Unwrap(err)}
			}
			out.reject(TierDiscrete, loc[0], err)
			continue
		}
		out.Records = append(out.Records, rec)
	}
	return out
}

// extractLines tries every line that looks like a JSON object literal.
func extractLines(buffer string) Outcome {
	var out Outcome
	offset := 0
	for _, line := range strings.Split(buffer, "\n") {
		start := offset
		offset += len(line) + 1

		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "{") || !strings.HasSuffix(trimmed, "}") {
			continue
		}
		rec, err := testcase.Decode([]byte(trimmed))
		if err != nil {
			out.reject(TierLines, start, err)
			continue
		}
		out.Records = append(out.Records, rec)
	}
	return out
}

func extractPlaceholder(string) Outcome {
	return Outcome{Records: []testcase.Record{testcase.Placeholder()}}
}
