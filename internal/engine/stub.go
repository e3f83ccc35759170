package engine

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/loomworks/loom/pkg/schema"
)

// Deterministic stub logic shared by the simulated Effects implementation
// and the live classify/extract fallback paths. Identical input always
// yields identical output.

const (
	stubSummaryLimit = 160
	stubPreviewLimit = 400

	// Classification confidences: substring hit vs. none.
	stubConfidenceHit  = 0.92
	stubConfidenceMiss = 0.67
)

// stubSummary derives a summary from a truncation of the stringified input.
func stubSummary(input any) string {
	return "Summary: " + truncateString(stringify(input), stubSummaryLimit)
}

// stubClassify scores each label by substring containment: 2 on a hit,
// 1 otherwise. Ties break by lexicographic label order. Returns ("", 0)
// when no labels are configured.
func stubClassify(input any, labels []string) (string, float64) {
	if len(labels) == 0 {
		return "", 0
	}

	haystack := strings.ToLower(stringify(input))

	sorted := make([]string, len(labels))
	copy(sorted, labels)
	sort.Strings(sorted)

	best := sorted[0]
	bestScore := 0
	for _, label := range sorted {
		score := 1
		if strings.Contains(haystack, strings.ToLower(label)) {
			score = 2
		}
		if score > bestScore {
			best = label
			bestScore = score
		}
	}

	confidence := stubConfidenceMiss
	if bestScore == 2 {
		confidence = stubConfidenceHit
	}
	return best, confidence
}

// stubExtract fills every requested key with a type-appropriate zero value.
func stubExtract(fields []schema.FieldSpec) map[string]any {
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		out[f.Key] = zeroValueFor(f.Type)
	}
	return out
}

func zeroValueFor(fieldType string) any {
	switch fieldType {
	case "number":
		return float64(0)
	case "boolean":
		return false
	case "array":
		return []any{}
	default:
		return ""
	}
}

// stubReport embeds a truncated JSON preview of the input in a fixed template.
func stubReport(input any) string {
	preview := truncateString(stringifyPretty(input), stubPreviewLimit)
	return fmt.Sprintf("# Report\n\nGenerated from workflow input.\n\n```json\n%s\n```\n", preview)
}

// stringify renders a value the way the AI prompts see it: strings pass
// through, everything else is compact JSON.
func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

func stringifyPretty(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

// truncateString cuts s to at most limit bytes, backing off to the nearest
// rune boundary so the result is always valid UTF-8.
func truncateString(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit] + "..."
}
