package ingest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckText_ShortTextIsGarbled(t *testing.T) {
	result := CheckText("only a few words here", "eng")
	assert.True(t, result.Garbled)
	assert.Less(t, result.CollapsedLength, 200)
}

func TestCheckText_WhitespaceDoesNotPadLength(t *testing.T) {
	// Long runs of whitespace collapse before the length check
	padded := "short " + strings.Repeat(" \n\t", 200) + "text"
	result := CheckText(padded, "eng")
	assert.True(t, result.Garbled)
	assert.Equal(t, len([]rune("short text")), result.CollapsedLength)
}

func TestCheckText_ReadableEnglishPasses(t *testing.T) {
	text := strings.Repeat("Photosynthesis converts light energy into chemical energy. ", 10)
	result := CheckText(text, "eng")
	assert.False(t, result.Garbled)
	assert.GreaterOrEqual(t, result.MeaningfulRatio, 0.35)
}

func TestCheckText_SymbolSoupIsGarbled(t *testing.T) {
	// Typical output of extracting a scanned PDF: long but mostly symbols
	text := strings.Repeat("($#@!) ^^%% ~~ || ## ", 30)
	result := CheckText(text, "eng")
	assert.True(t, result.Garbled)
	assert.Less(t, result.MeaningfulRatio, 0.35)
}

func TestCheckText_ScriptCoverage(t *testing.T) {
	latinOnly := strings.Repeat("This page claims to be Sinhala but has no Sinhala at all. ", 10)

	// Claimed Sinhala with zero Sinhala letters fails the script check
	result := CheckText(latinOnly, "sinhala")
	assert.True(t, result.Garbled)
	assert.Zero(t, result.ScriptCoverage)

	// The same text passes under English
	assert.False(t, IsLikelyGarbled(latinOnly, "eng"))

	// Mostly Sinhala text passes the sinhala check
	sinhala := strings.Repeat("ප්‍රකාශ සංස්ලේෂණය යනු ශාක ආහාර සාදන ක්‍රියාවලියයි. ", 15)
	assert.False(t, IsLikelyGarbled(sinhala, "sinhala"))
}

func TestCheckText_MixedScriptPasses(t *testing.T) {
	// A mostly-English study sheet with a handful of Sinhala terms is a
	// legitimate document; any occurrence of the script satisfies the check
	mixed := strings.Repeat("The term ප්‍රවේගය means velocity and ත්වරණය means acceleration in physics. ", 10)
	result := CheckText(mixed, "sinhala")
	assert.False(t, result.Garbled)
	assert.Greater(t, result.ScriptCoverage, 0.0)
	assert.Less(t, result.ScriptCoverage, 0.5)
}

func TestCheckText_TamilCoverage(t *testing.T) {
	tamil := strings.Repeat("ஒளிச்சேர்க்கை என்பது தாவரங்கள் உணவு தயாரிக்கும் செயல்முறை ஆகும். ", 15)
	assert.False(t, IsLikelyGarbled(tamil, "tamil"))

	latin := strings.Repeat("No Tamil content anywhere in this supposedly Tamil document. ", 10)
	assert.True(t, IsLikelyGarbled(latin, "tam"))
}

func TestNormalizeOCRLanguage(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"sin", "sin"},
		{"sinhala", "sin"},
		{"Sinhala", "sin"},
		{"tam", "tam"},
		{"tamil", "tam"},
		{" TAMIL ", "tam"},
		{"eng", "eng"},
		{"english", "eng"},
		{"", "eng"},
		{"french", "eng"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeOCRLanguage(tt.input), "input %q", tt.input)
	}
}
