package recovery

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/nobodyplayer/byte5-autotestgen/internal/logging"
	"github.com/nobodyplayer/byte5-autotestgen/internal/stream"
	"github.com/nobodyplayer/byte5-autotestgen/internal/testcase"
)

func recordJSON(id, title string) string {
	return fmt.Sprintf(`{"id":%q,"title":%q,"description":"desc %s","steps":[{"step_number":1,"description":"do","expected_result":"done"}]}`, id, title, id)
}

func ids(records []testcase.Record) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.ID)
	}
	return out
}

func TestExtractEmptyInput(t *testing.T) {
	_, err := NewEngine().Extract("")
	if !errors.Is(err, ErrEmptyInput) {
		t.Fatalf("expected ErrEmptyInput, got %v", err)
	}
}

func TestExtractPlainNarrativeYieldsPlaceholder(t *testing.T) {
	buf := "# Test cases\n\nThe login page should reject bad passwords.\nNothing structured here.\n"
	res, err := NewEngine().Extract(buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Records) != 1 || !testcase.IsPlaceholder(res.Records[0]) {
		t.Fatalf("expected a single placeholder, got %#v", res.Records)
	}
	if !res.Placeholder() || res.Tier != TierPlaceholder {
		t.Fatalf("expected placeholder tier, got %q", res.Tier)
	}
}

func TestExtractEmptyAndPlaceholderAreDistinct(t *testing.T) {
	e := NewEngine()
	_, emptyErr := e.Extract("")
	res, err := e.Extract(" ")
	if emptyErr == nil || err != nil {
		t.Fatalf("expected only the empty buffer to fail: empty=%v whitespace=%v", emptyErr, err)
	}
	if len(res.Records) != 1 {
		t.Fatalf("expected placeholder for whitespace buffer, got %d records", len(res.Records))
	}
}

func TestExtractBulkSchemaRejection(t *testing.T) {
	bulk := "[" + recordJSON("TC-1", "one") + `,{"id":"TC-2","description":"no title","steps":[]},` + recordJSON("TC-3", "three") + "]"
	buf := "## Narrative\n\n<!-- TEST_CASES_JSON: " + bulk + " -->\n"

	res, err := NewEngine().Extract(buf)
	if err != nil {
		t.Fatal(err)
	}
	if res.Tier != TierBulk {
		t.Fatalf("expected bulk tier, got %q", res.Tier)
	}
	if diff := cmp.Diff([]string{"TC-1", "TC-3"}, ids(res.Records)); diff != "" {
		t.Fatalf("unexpected records (-want +got):\n%s", diff)
	}
	if len(res.Rejections) != 1 || !testcase.IsSchemaViolation(res.Rejections[0].Err) {
		t.Fatalf("expected one schema rejection, got %#v", res.Rejections)
	}
}

func TestExtractTierPrecedence(t *testing.T) {
	buf := "<!-- JSON_DATA: " + recordJSON("D-1", "discrete") + " -->\n" +
		recordJSON("L-1", "line") + "\n" +
		"<!-- TEST_CASES_JSON: [" + recordJSON("B-1", "bulk") + "] -->\n"

	res, err := NewEngine().Extract(buf)
	if err != nil {
		t.Fatal(err)
	}
	if res.Tier != TierBulk {
		t.Fatalf("expected bulk tier to win, got %q", res.Tier)
	}
	if diff := cmp.Diff([]string{"B-1"}, ids(res.Records)); diff != "" {
		t.Fatalf("unexpected records (-want +got):\n%s", diff)
	}
}

func TestExtractTierOneNeverRunsLaterTiersOnSuccess(t *testing.T) {
	var calls []string
	tier := func(name string, recs int) Tier {
		return Tier{Name: name, Extract: func(string) Outcome {
			calls = append(calls, name)
			var out Outcome
			for i := 0; i < recs; i++ {
				out.Records = append(out.Records, testcase.Record{ID: name, Title: "t", Description: "d", Steps: []testcase.Step{}})
			}
			return out
		}}
	}
	e := NewEngine(WithTiers(tier("first", 0), tier("second", 2), tier("third", 1)))
	res, err := e.Extract("x")
	if err != nil {
		t.Fatal(err)
	}
	if res.Tier != "second" || len(res.Records) != 2 {
		t.Fatalf("unexpected result: %#v", res)
	}
	if diff := cmp.Diff([]string{"first", "second"}, calls); diff != "" {
		t.Fatalf("unexpected tier calls (-want +got):\n%s", diff)
	}
}

func TestExtractRechecksCustomTierRecords(t *testing.T) {
	valid := testcase.Record{ID: "OK-1", Title: "t", Description: "d", Steps: []testcase.Step{}}
	broken := Tier{Name: "broken", Extract: func(string) Outcome {
		return Outcome{Records: []testcase.Record{{ID: "BAD-1"}}}
	}}
	mixed := Tier{Name: "mixed", Extract: func(string) Outcome {
		bad := valid
		bad.Steps = []testcase.Step{{StepNumber: 0, Description: "x", ExpectedResult: "y"}}
		return Outcome{Records: []testcase.Record{bad, valid}}
	}}

	res, err := NewEngine(WithTiers(broken, mixed)).Extract("x")
	if err != nil {
		t.Fatal(err)
	}
	if res.Tier != "mixed" {
		t.Fatalf("a tier with only invalid records must not win, got %q", res.Tier)
	}
	if diff := cmp.Diff([]string{"OK-1"}, ids(res.Records)); diff != "" {
		t.Fatalf("unexpected records (-want +got):\n%s", diff)
	}
	if len(res.Rejections) != 2 {
		t.Fatalf("expected two rejections, got %#v", res.Rejections)
	}
	for _, rej := range res.Rejections {
		var sv *testcase.SchemaViolation
		if rej.Offset != -1 || !errors.As(rej.Err, &sv) {
			t.Fatalf("unexpected rejection %#v", rej)
		}
	}
}

func TestExtractMalformedBulkFallsThrough(t *testing.T) {
	buf := "<!-- TEST_CASES_JSON: [{\"id\": -->\n" +
		"<!-- JSON_DATA: " + recordJSON("D-1", "discrete") + " -->\n"

	res, err := NewEngine().Extract(buf)
	if err != nil {
		t.Fatal(err)
	}
	if res.Tier != TierDiscrete {
		t.Fatalf("expected discrete tier, got %q", res.Tier)
	}
	var mp *MalformedPayloadError
	if len(res.Rejections) == 0 || !errors.As(res.Rejections[0].Err, &mp) || mp.Tier != TierBulk {
		t.Fatalf("expected a malformed bulk rejection, got %#v", res.Rejections)
	}
}

func TestExtractBulkWithNoValidElementsFallsThrough(t *testing.T) {
	buf := `<!-- TEST_CASES_JSON: [{"id":"x"}] -->` + "\n" + recordJSON("L-1", "line") + "\n"
	res, err := NewEngine().Extract(buf)
	if err != nil {
		t.Fatal(err)
	}
	if res.Tier != TierLines || len(res.Records) != 1 || res.Records[0].ID != "L-1" {
		t.Fatalf("expected line tier record, got %#v", res)
	}
}

func TestExtractDiscretePerCandidateIsolation(t *testing.T) {
	buf := "intro\n" +
		"<!-- JSON_DATA: " + recordJSON("D-1", "first") + " -->\n" +
		"prose between\n" +
		`<!-- JSON_DATA: {"id":"D-2","title": -->` + "\n" +
		"<!-- JSON_DATA: " + recordJSON("D-3", "third") + " -->\n"

	res, err := NewEngine().Extract(buf)
	if err != nil {
		t.Fatal(err)
	}
	if res.Tier != TierDiscrete {
		t.Fatalf("expected discrete tier, got %q", res.Tier)
	}
	if diff := cmp.Diff([]string{"D-1", "D-3"}, ids(res.Records)); diff != "" {
		t.Fatalf("unexpected records (-want +got):\n%s", diff)
	}
	var mp *MalformedPayloadError
	if len(res.Rejections) != 1 || !errors.As(res.Rejections[0].Err, &mp) {
		t.Fatalf("expected one malformed rejection, got %#v", res.Rejections)
	}
}

func TestExtractLineOrderPreserved(t *testing.T) {
	buf := "Here are the cases:\n" +
		"  " + recordJSON("Z-9", "last alphabetically") + "  \n" +
		"{ not json at all }\n" +
		recordJSON("A-1", "first alphabetically") + "\n" +
		`{"id":"M-5","title":"no steps","description":"d"}` + "\n" +
		recordJSON("K-3", "middle") + "\n"

	res, err := NewEngine().Extract(buf)
	if err != nil {
		t.Fatal(err)
	}
	if res.Tier != TierLines {
		t.Fatalf("expected lines tier, got %q", res.Tier)
	}
	if diff := cmp.Diff([]string{"Z-9", "A-1", "K-3"}, ids(res.Records)); diff != "" {
		t.Fatalf("unexpected order (-want +got):\n%s", diff)
	}
	if len(res.Rejections) != 2 {
		t.Fatalf("expected two rejected lines, got %#v", res.Rejections)
	}
}

func TestExtractIdempotent(t *testing.T) {
	buf := "<!-- JSON_DATA: " + recordJSON("D-1", "one") + " -->\n<!-- JSON_DATA: {bad} -->\n"
	e := NewEngine()
	first, err1 := e.Extract(buf)
	second, err2 := e.Extract(buf)
	if err1 != nil || err2 != nil {
		t.Fatalf("unexpected errors: %v %v", err1, err2)
	}
	if diff := cmp.Diff(first.Records, second.Records); diff != "" {
		t.Fatalf("extract not idempotent (-first +second):\n%s", diff)
	}
	if first.Tier != second.Tier || len(first.Rejections) != len(second.Rejections) {
		t.Fatalf("extract metadata differs: %#v vs %#v", first, second)
	}
}

func TestExtractChunkBoundaryIndependence(t *testing.T) {
	buf := "# 正在生成测试用例...\n\n## TC-001: Login\n\n| # | a | b |\n| --- | --- | --- |\n| 1 | x | y |\n\n" +
		"<!-- TEST_CASES_JSON: [" + recordJSON("TC-001", "Login") + "," + recordJSON("TC-002", "Logout") + "] -->\n"

	feed := func(chunkSize int) stream.Frozen {
		acc := stream.New()
		for rest := buf; len(rest) > 0; {
			n := chunkSize
			if n > len(rest) {
				n = len(rest)
			}
			_ = acc.OnChunk(rest[:n])
			rest = rest[n:]
		}
		frozen, _ := acc.OnComplete()
		return frozen
	}
	whole := feed(len(buf))
	split := feed(len(buf)/50 + 1)
	if whole.Text != split.Text {
		t.Fatal("frozen buffers differ")
	}
	if split.Chunks < 40 {
		t.Fatalf("expected roughly 50 chunks, got %d", split.Chunks)
	}

	e := NewEngine()
	a, _ := e.Extract(whole.Text)
	b, _ := e.Extract(split.Text)
	if diff := cmp.Diff(a.Records, b.Records); diff != "" {
		t.Fatalf("extract output differs (-whole +split):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"TC-001", "TC-002"}, ids(a.Records)); diff != "" {
		t.Fatalf("unexpected records (-want +got):\n%s", diff)
	}
}

func TestExtractLogsRejections(t *testing.T) {
	var buf bytes.Buffer
	e := NewEngine(WithLogger(logging.NewWithWriter(&buf, "debug")))
	_, _ = e.Extract("<!-- JSON_DATA: {oops} -->\n")
	if !strings.Contains(buf.String(), "candidate rejected") || !strings.Contains(buf.String(), TierDiscrete) {
		t.Fatalf("expected rejection to be logged, got %q", buf.String())
	}
}

func TestExtractCustomTiersStillNeverEmpty(t *testing.T) {
	e := NewEngine(WithTiers(Tier{Name: TierBulk, Extract: extractBulk}))
	res, err := e.Extract("nothing")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Records) != 1 || !testcase.IsPlaceholder(res.Records[0]) {
		t.Fatalf("expected placeholder fallback, got %#v", res)
	}
}
