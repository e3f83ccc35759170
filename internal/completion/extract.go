package completion

import (
	"encoding/json"
	"strings"
)

// ExtractJSONObject pulls the first JSON object out of completion response
// text. Models wrap JSON in markdown fences or surround it with prose, so
// fenced blocks are checked first, then the first balanced {...} region.
// The second return value is false when no parseable object exists.
func ExtractJSONObject(text string) (map[string]any, bool) {
	text = strings.TrimSpace(text)

	// Bare object.
	if obj, ok := tryParse(text); ok {
		return obj, true
	}

	// Fenced block: ```json ... ``` or ``` ... ```.
	if inner, ok := fencedBlock(text); ok {
		if obj, ok := tryParse(inner); ok {
			return obj, true
		}
	}

	// First balanced brace region, quote-aware.
	if region, ok := balancedRegion(text); ok {
		if obj, ok := tryParse(region); ok {
			return obj, true
		}
	}

	return nil, false
}

func tryParse(s string) (map[string]any, bool) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "{") {
		return nil, false
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return nil, false
	}
	return obj, true
}

// fencedBlock returns the content of the first ``` fence, stripping an
// optional language tag.
func fencedBlock(text string) (string, bool) {
	start := strings.Index(text, "```")
	if start < 0 {
		return "", false
	}
	rest := text[start+3:]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		firstLine := strings.TrimSpace(rest[:nl])
		// A language tag has no spaces and no braces.
		if firstLine != "" && !strings.ContainsAny(firstLine, "{} ") {
			rest = rest[nl+1:]
		}
	}
	end := strings.Index(rest, "```")
	if end < 0 {
		return strings.TrimSpace(rest), true
	}
	return strings.TrimSpace(rest[:end]), true
}

// balancedRegion returns the first balanced {...} span, tracking string
// literals so braces inside quoted values do not confuse the depth count.
func balancedRegion(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
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
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}
