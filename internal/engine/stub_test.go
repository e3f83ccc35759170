package engine

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"github.com/loomworks/loom/pkg/schema"
)

// --- Summary ---

func TestStubSummary_Deterministic(t *testing.T) {
	input := map[string]any{"text": "quarterly revenue increased"}

	a := stubSummary(input)
	b := stubSummary(input)
	assert.Equal(t, a, b)
	assert.True(t, strings.HasPrefix(a, "Summary: "))
}

func TestStubSummary_TruncatesLongInput(t *testing.T) {
	long := strings.Repeat("x", 500)

	out := stubSummary(long)
	assert.Equal(t, "Summary: "+strings.Repeat("x", 160)+"...", out)
}

func TestStubSummary_TruncatesOnRuneBoundary(t *testing.T) {
	// 100 three-byte runes: the 160-byte cut falls mid-rune and must back
	// off to the previous boundary.
	long := strings.Repeat("界", 100)

	out := stubSummary(long)
	assert.True(t, utf8.ValidString(out))
	assert.Equal(t, "Summary: "+strings.Repeat("界", 53)+"...", out)
}

func TestStubSummary_ShortInputNotTruncated(t *testing.T) {
	out := stubSummary("short text")
	assert.Equal(t, "Summary: short text", out)
}

// --- Classify ---

func TestStubClassify_SubstringHitWins(t *testing.T) {
	label, confidence := stubClassify("this message is urgent please act", []string{"normal", "urgent"})
	assert.Equal(t, "urgent", label)
	assert.Equal(t, 0.92, confidence)
}

func TestStubClassify_CaseInsensitive(t *testing.T) {
	label, _ := stubClassify("URGENT matter", []string{"normal", "urgent"})
	assert.Equal(t, "urgent", label)
}

func TestStubClassify_NoHitPicksLexicographicFirst(t *testing.T) {
	label, confidence := stubClassify("nothing relevant here", []string{"zebra", "apple"})
	assert.Equal(t, "apple", label)
	assert.Equal(t, 0.67, confidence)
}

func TestStubClassify_TieBreaksLexicographically(t *testing.T) {
	// Both labels appear in the input; the lexicographically smaller wins.
	label, confidence := stubClassify("billing and support issue", []string{"support", "billing"})
	assert.Equal(t, "billing", label)
	assert.Equal(t, 0.92, confidence)
}

func TestStubClassify_NoLabels(t *testing.T) {
	label, confidence := stubClassify("anything", nil)
	assert.Equal(t, "", label)
	assert.Equal(t, 0.0, confidence)
}

func TestStubClassify_NonStringInput(t *testing.T) {
	label, _ := stubClassify(map[string]any{"topic": "invoice"}, []string{"invoice", "refund"})
	assert.Equal(t, "invoice", label)
}

// --- Extract ---

func TestStubExtract_ZeroValues(t *testing.T) {
	fields := []schema.FieldSpec{
		{Key: "name", Type: "string"},
		{Key: "amount", Type: "number"},
		{Key: "paid", Type: "boolean"},
		{Key: "items", Type: "array"},
		{Key: "other", Type: "unknown"},
	}

	out := stubExtract(fields)
	assert.Equal(t, map[string]any{
		"name":   "",
		"amount": float64(0),
		"paid":   false,
		"items":  []any{},
		"other":  "",
	}, out)
}

// --- Report ---

func TestStubReport_EmbedsInputPreview(t *testing.T) {
	out := stubReport(map[string]any{"metric": 42.0})
	assert.Contains(t, out, "# Report")
	assert.Contains(t, out, `"metric": 42`)
}

func TestStubReport_Deterministic(t *testing.T) {
	input := map[string]any{"a": 1.0, "b": 2.0}
	assert.Equal(t, stubReport(input), stubReport(input))
}
