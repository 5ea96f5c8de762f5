package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParseError reports that neither strict parsing nor the salvage scan could
// recover a JSON object from a completion.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse completion: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ParseStructured decodes raw into v. Strict parsing is tried first; on
// failure, code fences are stripped and the first '{' to last '}' substring
// is retried. The salvage assumes no unbalanced braces in surrounding prose.
func ParseStructured(raw string, v any) error {
	strictErr := json.Unmarshal([]byte(raw), v)
	if strictErr == nil {
		return nil
	}

	salvaged := salvageJSON(raw)
	if salvaged == "" {
		return &ParseError{Err: strictErr}
	}
	if err := json.Unmarshal([]byte(salvaged), v); err != nil {
		return &ParseError{Err: err}
	}
	return nil
}

// salvageJSON strips markdown code fences and returns the first
// balanced-looking {...} substring, or "" when none exists.
func salvageJSON(content string) string {
	content = strings.TrimSpace(content)

	if strings.HasPrefix(content, "```") {
		start := 3
		// Skip the optional language identifier line.
		if nl := strings.Index(content[start:], "\n"); nl != -1 {
			start += nl + 1
		}
		if end := strings.Index(content[start:], "```"); end != -1 {
			content = content[start : start+end]
		} else {
			content = content[start:]
		}
	}

	first := strings.Index(content, "{")
	last := strings.LastIndex(content, "}")
	if first == -1 || last == -1 || last <= first {
		return ""
	}
	return strings.TrimSpace(content[first : last+1])
}
