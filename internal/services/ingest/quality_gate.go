package ingest

import (
	"strings"
	"unicode"
)

const (
	// minTextLength is the minimum whitespace-collapsed rune count for a
	// usable extraction
	minTextLength = 200

	// minMeaningfulRatio is the minimum share of letters and digits among
	// all runes of the collapsed text
	minMeaningfulRatio = 0.35
)

// GateResult explains why an extraction did or did not pass the gate
type GateResult struct {
	Garbled         bool
	CollapsedLength int
	MeaningfulRatio float64
	ScriptCoverage  float64
}

// collapseWhitespace folds runs of whitespace into single spaces and trims
func collapseWhitespace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// scriptRange returns the Unicode range table for a normalized OCR language,
// or nil when no script check applies
func scriptRange(lang string) *unicode.RangeTable {
	switch lang {
	case "sin":
		return unicode.Sinhala
	case "tam":
		return unicode.Tamil
	default:
		return nil
	}
}

// CheckText decides whether extracted text is usable or likely garbled.
// Garbled means: too short once whitespace is collapsed, mostly symbols
// instead of letters and digits, or claiming a Sinhala/Tamil document while
// containing not a single rune of that script.
func CheckText(text, lang string) GateResult {
	collapsed := collapseWhitespace(text)
	runes := []rune(collapsed)

	result := GateResult{CollapsedLength: len(runes)}

	if len(runes) < minTextLength {
		result.Garbled = true
		return result
	}

	letters := 0
	meaningful := 0
	scriptHits := 0
	table := scriptRange(NormalizeOCRLanguage(lang))

	for _, r := range runes {
		isLetter := unicode.IsLetter(r)
		if isLetter {
			letters++
		}
		if isLetter || unicode.IsDigit(r) {
			meaningful++
		}
		if table != nil && unicode.Is(table, r) {
			scriptHits++
		}
	}

	result.MeaningfulRatio = float64(meaningful) / float64(len(runes))
	if result.MeaningfulRatio < minMeaningfulRatio {
		result.Garbled = true
		return result
	}

	if table != nil {
		if letters > 0 {
			result.ScriptCoverage = float64(scriptHits) / float64(letters)
		}
		if scriptHits == 0 {
			result.Garbled = true
		}
	}

	return result
}

// IsLikelyGarbled is the boolean form of CheckText
func IsLikelyGarbled(text, lang string) bool {
	return CheckText(text, lang).Garbled
}

// NormalizeOCRLanguage maps a request language to a Tesseract language code
func NormalizeOCRLanguage(lang string) string {
	switch strings.ToLower(strings.TrimSpace(lang)) {
	case "sin", "sinhala":
		return "sin"
	case "tam", "tamil":
		return "tam"
	default:
		return "eng"
	}
}
