package inference

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ParseResult is the outcome of parsing a model completion into a typed
// value. Either Ok holds with Value populated, or the completion was
// malformed and Raw preserves it for diagnostics.
type ParseResult[T any] struct {
	Ok    bool
	Value T
	Raw   string
}

// MustCompileSchema compiles an inline JSON schema. Panics on error; schemas
// are package constants, so a failure is a programming mistake.
func MustCompileSchema(name, src string) *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, strings.NewReader(src)); err != nil {
		panic(fmt.Sprintf("invalid schema %s: %v", name, err))
	}
	return compiler.MustCompile(name)
}

// Parse attempts a strict JSON parse of a model completion, validated
// against the schema. If the completion is not straight JSON, it salvages a
// fenced or embedded JSON fragment before giving up. The zero-Ok result
// carries the raw text instead of an error: a malformed completion is an
// expected outcome, not an exception.
func Parse[T any](raw string, schema *jsonschema.Schema) ParseResult[T] {
	for _, candidate := range candidates(raw) {
		var doc any
		if err := json.Unmarshal([]byte(candidate), &doc); err != nil {
			continue
		}
		if schema != nil {
			if err := schema.Validate(doc); err != nil {
				continue
			}
		}

		var value T
		if err := json.Unmarshal([]byte(candidate), &value); err != nil {
			continue
		}
		return ParseResult[T]{Ok: true, Value: value, Raw: candidate}
	}

	return ParseResult[T]{Raw: raw}
}

// candidates orders the texts to try: the completion as-is, then with code
// fences stripped, then the outermost brace/bracket-delimited fragment.
func candidates(raw string) []string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}

	out := []string{trimmed}
	if stripped := stripCodeFences(trimmed); stripped != "" && stripped != trimmed {
		out = append(out, stripped)
	}
	for _, base := range out {
		if fragment := extractJSONFragment(base); fragment != "" && fragment != base {
			out = append(out, fragment)
			break
		}
	}
	return out
}

func stripCodeFences(content string) string {
	if !strings.HasPrefix(content, "```") {
		return ""
	}

	lines := strings.Split(content, "\n")
	if len(lines) < 2 {
		return ""
	}

	lines = lines[1:]
	if strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// extractJSONFragment finds the outermost {...} or [...] span in free text.
func extractJSONFragment(content string) string {
	objectStart := strings.Index(content, "{")
	arrayStart := strings.Index(content, "[")

	start := -1
	closer := ""
	switch {
	case objectStart >= 0 && (arrayStart < 0 || objectStart < arrayStart):
		start = objectStart
		closer = "}"
	case arrayStart >= 0:
		start = arrayStart
		closer = "]"
	default:
		return ""
	}

	end := strings.LastIndex(content, closer)
	if end < start {
		return ""
	}
	return strings.TrimSpace(content[start : end+1])
}
