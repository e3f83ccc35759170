// Package jsonpath resolves a restricted JSONPath-like expression against an
// execution context. Supported syntax: "$" (whole context), then any sequence
// of ".key", "[0]", "[\"key\"]", or "['key']" tokens. Absence is always
// expressed as a miss, never as an error: node executors must tolerate
// partially-populated contexts.
package jsonpath

import (
	"strconv"
	"strings"
)

// Resolve walks path against ctx. The second return value is false when the
// path misses (absent key, out-of-range index, non-container target, bad
// syntax, or a path not rooted at "$").
func Resolve(ctx map[string]any, path string) (any, bool) {
	path = strings.TrimSpace(path)
	if path == "" || path == "$" {
		return ctx, true
	}
	if !strings.HasPrefix(path, "$") {
		return nil, false
	}

	tokens, ok := tokenize(path[1:])
	if !ok {
		return nil, false
	}

	var current any = ctx
	for _, tok := range tokens {
		next, ok := step(current, tok)
		if !ok {
			return nil, false
		}
		current = next
	}
	return current, true
}

// step descends one token into current.
func step(current any, tok string) (any, bool) {
	switch target := current.(type) {
	case map[string]any:
		v, ok := target[tok]
		return v, ok
	case []any:
		idx, err := strconv.Atoi(tok)
		if err != nil || idx < 0 || idx >= len(target) {
			return nil, false
		}
		return target[idx], true
	default:
		return nil, false
	}
}

// tokenize splits the remainder after "$" into access tokens.
// Returns false on malformed syntax (dangling dot, unclosed bracket,
// unterminated quote).
func tokenize(rest string) ([]string, bool) {
	var tokens []string
	i := 0
	for i < len(rest) {
		switch rest[i] {
		case '.':
			i++
			start := i
			for i < len(rest) && rest[i] != '.' && rest[i] != '[' {
				i++
			}
			if i == start {
				return nil, false
			}
			tokens = append(tokens, rest[start:i])
		case '[':
			i++
			end := strings.IndexByte(rest[i:], ']')
			if end < 0 {
				return nil, false
			}
			inner := strings.TrimSpace(rest[i : i+end])
			i += end + 1
			tok, ok := unquoteBracket(inner)
			if !ok {
				return nil, false
			}
			tokens = append(tokens, tok)
		default:
			return nil, false
		}
	}
	return tokens, true
}

// unquoteBracket strips single or double quotes from a bracket token.
// Unquoted content must be numeric.
func unquoteBracket(inner string) (string, bool) {
	if len(inner) >= 2 {
		first, last := inner[0], inner[len(inner)-1]
		if (first == '\'' && last == '\'') || (first == '"' && last == '"') {
			return inner[1 : len(inner)-1], true
		}
	}
	if inner == "" {
		return "", false
	}
	if _, err := strconv.Atoi(inner); err != nil {
		return "", false
	}
	return inner, true
}
