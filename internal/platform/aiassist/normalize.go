// Package aiassist talks to the AI diagnosis endpoint and normalizes
// its loosely structured responses into a canonical diagnosis shape.
package aiassist

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/clinichq/clinic/internal/platform/apperr"
)

// Canonical is the normalized diagnosis extracted from a model
// response.
type Canonical struct {
	PrimaryDiagnosis      string   `json:"primary_diagnosis"`
	DifferentialDiagnoses []string `json:"differential_diagnoses,omitempty"`
	Treatment             []string `json:"treatment,omitempty"`
	RecommendedActions    []string `json:"recommended_actions,omitempty"`
	DrugSuggestions       []string `json:"drug_suggestions,omitempty"`
	Severity              string   `json:"severity"`
}

var (
	fencedJSON  = regexp.MustCompile("(?s)```json\\s*(.*?)```")
	fencedPlain = regexp.MustCompile("(?s)```\\s*(.*?)```")
)

// Normalize extracts a canonical diagnosis from a raw endpoint
// response. Handled shapes, in priority order: an object with a text
// field wrapping JSON (fenced json block, unlabeled fence, or bare
// braces), a single-element list of either form, and a bare diagnosis
// object. Truncated JSON is repaired before giving up. Fails with
// ErrMalformedResponse when no primary diagnosis is extractable.
func Normalize(raw string) (*Canonical, error) {
	obj, ok := locateObject(raw)
	if !ok {
		return nil, fmt.Errorf("no diagnosis object in response: %w", apperr.ErrMalformedResponse)
	}

	c := coerce(obj)
	if c.PrimaryDiagnosis == "" {
		return nil, fmt.Errorf("no primary diagnosis in response: %w", apperr.ErrMalformedResponse)
	}
	if c.Severity == "" {
		c.Severity = inferSeverity(raw)
	}
	return c, nil
}

// locateObject resolves the response wrapper down to the diagnosis
// object itself.
func locateObject(raw string) (map[string]interface{}, bool) {
	var v interface{}
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		// not JSON at the top level; treat the whole response as text
		return objectFromText(raw)
	}

	switch t := v.(type) {
	case []interface{}:
		if len(t) != 1 {
			return nil, false
		}
		elem, ok := t[0].(map[string]interface{})
		if !ok {
			return nil, false
		}
		return unwrap(elem)
	case map[string]interface{}:
		return unwrap(t)
	default:
		return nil, false
	}
}

// unwrap follows a text field when present, otherwise takes the object
// as the diagnosis itself.
func unwrap(obj map[string]interface{}) (map[string]interface{}, bool) {
	if text, ok := obj["text"].(string); ok {
		return objectFromText(text)
	}
	return obj, true
}

// objectFromText digs a JSON object out of free text: fenced json
// block first, then an unlabeled fence, then bare brace matching.
func objectFromText(text string) (map[string]interface{}, bool) {
	if m := fencedJSON.FindStringSubmatch(text); m != nil {
		return parseObject(m[1])
	}
	if m := fencedPlain.FindStringSubmatch(text); m != nil {
		return parseObject(m[1])
	}

	start := strings.Index(text, "{")
	if start < 0 {
		return nil, false
	}
	end := strings.LastIndex(text, "}")
	if end > start {
		if obj, ok := parseObject(text[start : end+1]); ok {
			return obj, true
		}
	}
	// no balanced close found or parse failed; hand the tail to repair
	return parseObject(text[start:])
}

func parseObject(s string) (map[string]interface{}, bool) {
	s = strings.TrimSpace(s)
	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(s), &obj); err == nil {
		return obj, true
	}
	for _, candidate := range repairCandidates(s) {
		if err := json.Unmarshal([]byte(candidate), &obj); err == nil {
			return obj, true
		}
	}
	return nil, false
}

// repairAttempts bounds how far back the truncation repair walks
// through field boundaries before giving up.
const repairAttempts = 8

// repairCandidates patches JSON cut off mid-stream: trim back to a
// complete field boundary (a comma or a closing quote), append the
// closers still open at that point, and hand the result back for a
// re-parse. Boundaries are tried newest-first so the repair drops as
// little as possible. Heuristic only.
func repairCandidates(s string) []string {
	cuts := boundaries(s)
	var out []string
	for i := len(cuts) - 1; i >= 0 && len(out) < repairAttempts; i-- {
		trimmed := strings.TrimRight(s[:cuts[i]], ", \t\n")
		closers := missingClosers(trimmed)
		if closers == "" {
			continue
		}
		out = append(out, trimmed+closers)
	}
	return out
}

// boundaries lists the positions just after each complete value: every
// comma or string-closing quote outside an open string.
func boundaries(s string) []int {
	var out []int
	inString := false
	escaped := false
	for i, r := range s {
		if escaped {
			escaped = false
			continue
		}
		switch r {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			if inString {
				out = append(out, i+1)
			}
			inString = !inString
		case ',', '}', ']':
			if !inString {
				out = append(out, i+1)
			}
		}
	}
	return out
}

// missingClosers returns the closing brackets needed to balance s, in
// innermost-first order.
func missingClosers(s string) string {
	var stack []rune
	inString := false
	escaped := false
	for _, r := range s {
		if escaped {
			escaped = false
			continue
		}
		switch r {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{', '[':
			if !inString {
				stack = append(stack, r)
			}
		case '}', ']':
			if !inString && len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}

	var b strings.Builder
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == '{' {
			b.WriteByte('}')
		} else {
			b.WriteByte(']')
		}
	}
	return b.String()
}

// coerce maps the loosely typed object onto the canonical shape.
func coerce(obj map[string]interface{}) *Canonical {
	c := &Canonical{
		PrimaryDiagnosis:      stringField(obj, "primary_diagnosis", "diagnosis"),
		DifferentialDiagnoses: stringList(obj["differential_diagnoses"]),
		Treatment:             stringList(obj["treatment"]),
		RecommendedActions:    stringList(obj["recommended_actions"]),
		DrugSuggestions:       stringList(obj["drug_suggestions"]),
		Severity:              strings.ToLower(stringField(obj, "severity")),
	}
	return c
}

func stringField(obj map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if s, ok := obj[k].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

// stringList accepts either a list of strings or a single delimited
// string (split on comma or newline) and yields a trimmed sequence with
// empties dropped.
func stringList(v interface{}) []string {
	var parts []string
	switch t := v.(type) {
	case []interface{}:
		for _, e := range t {
			if s, ok := e.(string); ok {
				parts = append(parts, s)
			}
		}
	case string:
		parts = strings.FieldsFunc(t, func(r rune) bool {
			return r == ',' || r == '\n'
		})
	default:
		return nil
	}

	var out []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// inferSeverity scans the full response text for the severity keyword
// ladder. Applied only when the response carries no explicit severity.
func inferSeverity(text string) string {
	lower := strings.ToLower(text)
	switch {
	case containsAny(lower, "critical", "emergency", "immediate"):
		return "critical"
	case containsAny(lower, "severe", "urgent"):
		return "high"
	case containsAny(lower, "mild", "minor"):
		return "low"
	default:
		return "moderate"
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
