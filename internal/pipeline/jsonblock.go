package pipeline

import (
	"strings"

	"github.com/datasetu-labs/metaforge/internal/core"
)

// ExtractJSONBlock pulls the JSON payload out of generated text. Models wrap
// output in code fences inconsistently, so the parser tries, in order: a
// ```json fence, any ``` fence, then the first balanced {...} or [...] span.
// Returns core.ErrNoJSON when nothing JSON-shaped is present.
func ExtractJSONBlock(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", core.ErrNoJSON
	}

	if body, ok := fencedBlock(text, "```json"); ok {
		return body, nil
	}
	if body, ok := fencedBlock(text, "```"); ok {
		return body, nil
	}
	if body, ok := balancedSpan(text); ok {
		return body, nil
	}
	return "", core.ErrNoJSON
}

func fencedBlock(text, fence string) (string, bool) {
	start := strings.Index(text, fence)
	if start < 0 {
		return "", false
	}
	rest := text[start+len(fence):]
	end := strings.Index(rest, "```")
	if end < 0 {
		return "", false
	}
	body := strings.TrimSpace(rest[:end])
	if body == "" {
		return "", false
	}
	return body, true
}

// balancedSpan finds the first top-level {...} or [...] block, tracking
// string literals so braces inside values don't break the count.
func balancedSpan(text string) (string, bool) {
	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return "", false
	}
	open := text[start]
	var close byte = '}'
	if open == '[' {
		close = ']'
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}
