package testcase

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDecodeValidRecord(t *testing.T) {
	raw := `{"id":"TC-001","title":"Login","description":"Valid credentials log in","priority":"High",
	"preconditions":"Account exists","steps":[
		{"step_number":1,"description":"Open login page","expected_result":"Form is shown"},
		{"step_number":2,"description":"Submit credentials","expected_result":"Dashboard opens"}]}`
	got, err := Decode([]byte(raw))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := Record{
		ID:            "TC-001",
		Title:         "Login",
		Description:   "Valid credentials log in",
		Priority:      "High",
		Preconditions: "Account exists",
		Steps: []Step{
			{StepNumber: 1, Description: "Open login page", ExpectedResult: "Form is shown"},
			{StepNumber: 2, Description: "Submit credentials", ExpectedResult: "Dashboard opens"},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("record mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeAcceptsEmptyStepsAndNullOptionals(t *testing.T) {
	got, err := Decode([]byte(`{"id":"A","title":"t","description":"d","priority":null,"steps":[]}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Steps == nil || len(got.Steps) != 0 {
		t.Fatalf("expected empty non-nil steps, got %#v", got.Steps)
	}
	if got.Priority != "" {
		t.Fatalf("expected empty priority, got %q", got.Priority)
	}
}

func TestDecodeNumericID(t *testing.T) {
	got, err := Decode([]byte(`{"id":7,"title":"t","description":"d","steps":[]}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != "7" {
		t.Fatalf("expected id 7, got %q", got.ID)
	}
}

func TestDecodeRejections(t *testing.T) {
	for _, tc := range []struct {
		name  string
		raw   string
		field string
	}{
		{name: "missing id", raw: `{"title":"t","description":"d","steps":[]}`, field: "id"},
		{name: "blank id", raw: `{"id":"  ","title":"t","description":"d","steps":[]}`, field: "id"},
		{name: "missing title", raw: `{"id":"A","description":"d","steps":[]}`, field: "title"},
		{name: "empty description", raw: `{"id":"A","title":"t","description":"","steps":[]}`, field: "description"},
		{name: "missing steps", raw: `{"id":"A","title":"t","description":"d"}`, field: "steps"},
		{name: "null steps", raw: `{"id":"A","title":"t","description":"d","steps":null}`, field: "steps"},
		{name: "steps object", raw: `{"id":"A","title":"t","description":"d","steps":{}}`, field: "steps"},
		{name: "title number", raw: `{"id":"A","title":3,"description":"d","steps":[]}`, field: "title"},
		{name: "priority array", raw: `{"id":"A","title":"t","description":"d","priority":[],"steps":[]}`, field: "priority"},
		{name: "zero step number", raw: `{"id":"A","title":"t","description":"d","steps":[{"step_number":0,"description":"x","expected_result":"y"}]}`, field: "steps[0].step_number"},
		{name: "fractional step number", raw: `{"id":"A","title":"t","description":"d","steps":[{"step_number":1.5,"description":"x","expected_result":"y"}]}`, field: "steps[0].step_number"},
		{name: "quoted step number", raw: `{"id":"A","title":"t","description":"d","steps":[{"step_number":"1","description":"x","expected_result":"y"}]}`, field: "steps[0].step_number"},
		{name: "step missing expected", raw: `{"id":"A","title":"t","description":"d","steps":[{"step_number":1,"description":"x"}]}`, field: "steps[0].expected_result"},
		{name: "array", raw: `[1,2]`, field: "$"},
		{name: "null", raw: `null`, field: "$"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode([]byte(tc.raw))
			var sv *SchemaViolation
			if !errors.As(err, &sv) {
				t.Fatalf("expected schema violation, got %v", err)
			}
			if sv.Field != tc.field {
				t.Fatalf("expected field %q, got %q (%v)", tc.field, sv.Field, err)
			}
		})
	}
}

func TestDecodeSyntaxErrorIsNotSchemaViolation(t *testing.T) {
	_, err := Decode([]byte(`{"id":"A",`))
	if err == nil {
		t.Fatal("expected error")
	}
	if IsSchemaViolation(err) {
		t.Fatalf("syntax error reported as schema violation: %v", err)
	}
	if !strings.Contains(err.Error(), "decode test case") {
		t.Fatalf("expected wrapped decode error, got %v", err)
	}
}

func TestPlaceholder(t *testing.T) {
	p := Placeholder()
	if !IsPlaceholder(p) {
		t.Fatal("placeholder not recognised")
	}
	if len(p.Steps) != 1 || p.Steps[0].StepNumber != 1 {
		t.Fatalf("unexpected placeholder steps: %#v", p.Steps)
	}
	if !strings.Contains(strings.ToLower(p.Description), "see rendered content") {
		t.Fatalf("placeholder description should point at rendered content: %q", p.Description)
	}
}

func TestRecordCheck(t *testing.T) {
	if err := Placeholder().Check(); err != nil {
		t.Fatalf("placeholder should pass: %v", err)
	}
	for _, tc := range []struct {
		name  string
		rec   Record
		field string
	}{
		{name: "blank id", rec: Record{ID: " ", Title: "t", Description: "d", Steps: []Step{}}, field: "id"},
		{name: "nil steps", rec: Record{ID: "A", Title: "t", Description: "d"}, field: "steps"},
		{name: "bad step", rec: Record{ID: "A", Title: "t", Description: "d", Steps: []Step{{StepNumber: 1, Description: "x"}}}, field: "steps[0].expected_result"},
	} {
		var sv *SchemaViolation
		if err := tc.rec.Check(); !errors.As(err, &sv) || sv.Field != tc.field {
			t.Fatalf("%s: expected violation on %s, got %v", tc.name, tc.field, err)
		}
	}
}
