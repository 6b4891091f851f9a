package testcase

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// SchemaViolation reports a syntactically valid JSON value that does not
// have the shape of a test case. Callers drop the candidate; nothing is
// repaired.
type SchemaViolation struct {
	Field  string
	Reason string
}

func (e *SchemaViolation) Error() string {
	return fmt.Sprintf("schema violation: %s %s", e.Field, e.Reason)
}

func violation(field, reason string) error {
	return &SchemaViolation{Field: field, Reason: reason}
}

// IsSchemaViolation reports whether err (or anything it wraps) is a
// *SchemaViolation.
func IsSchemaViolation(err error) bool {
	var sv *SchemaViolation
	return errors.As(err, &sv)
}

// Decode parses one JSON value and validates it as a Record. Syntax errors
// are returned wrapped; shape errors are returned as *SchemaViolation.
func Decode(raw []byte) (Record, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return Record{}, violation("$", "must be a JSON object")
		}
		return Record{}, fmt.Errorf("decode test case: %w", err)
	}
	if obj == nil {
		return Record{}, violation("$", "must be a JSON object")
	}
	return Validate(obj)
}

// Validate checks a decoded JSON object against the record schema. Required:
// id, title, description and a steps array (possibly empty). A step that
// breaks its own invariants rejects the whole record.
func Validate(obj map[string]json.RawMessage) (Record, error) {
	var rec Record
	var err error

	if rec.ID, err = identifier(obj, "id"); err != nil {
		return Record{}, err
	}
	if rec.Title, err = requiredText(obj, "title", "title"); err != nil {
		return Record{}, err
	}
	if rec.Description, err = requiredText(obj, "description", "description"); err != nil {
		return Record{}, err
	}
	if rec.Priority, err = optionalText(obj, "priority"); err != nil {
		return Record{}, err
	}
	if rec.Preconditions, err = optionalText(obj, "preconditions"); err != nil {
		return Record{}, err
	}

	rawSteps, ok := obj["steps"]
	if !ok || isNull(rawSteps) {
		return Record{}, violation("steps", "is required")
	}
	var items []map[string]json.RawMessage
	if err := json.Unmarshal(rawSteps, &items); err != nil {
		return Record{}, violation("steps", "must be an array of objects")
	}
	rec.Steps = make([]Step, 0, len(items))
	for i, item := range items {
		step, err := validateStep(item, i)
		if err != nil {
			return Record{}, err
		}
		rec.Steps = append(rec.Steps, step)
	}
	return rec, nil
}

// Check applies the Validate rules to an already typed record.
func (r Record) Check() error {
	switch {
	case strings.TrimSpace(r.ID) == "":
		return violation("id", "must not be empty")
	case strings.TrimSpace(r.Title) == "":
		return violation("title", "must not be empty")
	case strings.TrimSpace(r.Description) == "":
		return violation("description", "must not be empty")
	case r.Steps == nil:
		return violation("steps", "is required")
	}
	for i, s := range r.Steps {
		prefix := fmt.Sprintf("steps[%d]", i)
		switch {
		case s.StepNumber < 1:
			return violation(prefix+".step_number", "must be positive")
		case strings.TrimSpace(s.Description) == "":
			return violation(prefix+".description", "must not be empty")
		case strings.TrimSpace(s.ExpectedResult) == "":
			return violation(prefix+".expected_result", "must not be empty")
		}
	}
	return nil
}

func validateStep(obj map[string]json.RawMessage, idx int) (Step, error) {
	prefix := fmt.Sprintf("steps[%d]", idx)
	if obj == nil {
		return Step{}, violation(prefix, "must be an object")
	}
	raw, ok := obj["step_number"]
	if !ok || isNull(raw) {
		return Step{}, violation(prefix+".step_number", "is required")
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil || bytes.HasPrefix(bytes.TrimSpace(raw), []byte(`"`)) {
		return Step{}, violation(prefix+".step_number", "must be a number")
	}
	num, err := n.Int64()
	if err != nil {
		f, ferr := n.Float64()
		if ferr != nil || f != float64(int64(f)) {
			return Step{}, violation(prefix+".step_number", "must be an integer")
		}
		num = int64(f)
	}
	if num < 1 {
		return Step{}, violation(prefix+".step_number", "must be positive")
	}

	step := Step{StepNumber: int(num)}
	if step.Description, err = requiredText(obj, "description", prefix+".description"); err != nil {
		return Step{}, err
	}
	if step.ExpectedResult, err = requiredText(obj, "expected_result", prefix+".expected_result"); err != nil {
		return Step{}, err
	}
	return step, nil
}

// identifier accepts a non-blank JSON string or a JSON number, which keeps
// its literal text.
func identifier(obj map[string]json.RawMessage, key string) (string, error) {
	raw, ok := obj[key]
	if !ok || isNull(raw) {
		return "", violation(key, "is required")
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if strings.TrimSpace(s) == "" {
			return "", violation(key, "must not be empty")
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), nil
	}
	return "", violation(key, "must be a string or number")
}

func requiredText(obj map[string]json.RawMessage, key, field string) (string, error) {
	raw, ok := obj[key]
	if !ok || isNull(raw) {
		return "", violation(field, "is required")
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", violation(field, "must be a string")
	}
	if strings.TrimSpace(s) == "" {
		return "", violation(field, "must not be empty")
	}
	return s, nil
}

func optionalText(obj map[string]json.RawMessage, key string) (string, error) {
	raw, ok := obj[key]
	if !ok || isNull(raw) {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", violation(key, "must be a string")
	}
	return s, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
