package llm

import (
	"regexp"
	"strings"
)

// PromptClass labels the heuristic bucket a prompt fell into
type PromptClass string

const (
	PromptClassMultilingual PromptClass = "multilingual" // Non-default response language
	PromptClassComputation  PromptClass = "computation"  // Numeric problem solving
	PromptClassSummary      PromptClass = "summary"      // Condensing existing material
	PromptClassGeneral      PromptClass = "general"      // Everything else
)

// Selection is the routing decision for one prompt
type Selection struct {
	Provider ProviderType
	Class    PromptClass
}

// Computation prompts carry operator-and-digit pairs, imperative solve verbs,
// or physics vocabulary from the exam syllabus.
var computationPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\d\s*[-+*/^=×÷]\s*\d`),
	regexp.MustCompile(`(?i)\b(calculate|compute|solve|evaluate|work\s+out|find\s+the\s+value)\b`),
	regexp.MustCompile(`(?i)\bhow\s+(much|many|fast|far|long)\b.*\d`),
	regexp.MustCompile(`(?i)\b(velocity|acceleration|force|momentum|pressure|density|resistance|voltage|current|energy|power)\b`),
	regexp.MustCompile(`(?i)\b(newtons?|joules?|watts?|volts?|amperes?|amps?|ohms?|pascals?|kg|km/h|m/s)\b`),
}

// Summary prompts ask for condensed versions of material already provided
var summaryPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bsummar(?:y|ies|ize|ise|ized|ised)\b`),
	regexp.MustCompile(`(?i)\b(overview|key\s+points|main\s+(ideas|points)|in\s+short|in\s+brief)\b`),
	regexp.MustCompile(`(?i)\btl;?dr\b`),
	regexp.MustCompile(`(?i)\b(condense|shorten|recap)\b`),
}

// SelectProvider picks an upstream provider for a prompt. Pure and
// deterministic: the same prompt and language always route the same way.
//
// Rules are checked in priority order:
//  1. A response language other than the default routes to Gemini, which has
//     the strongest Sinhala and Tamil output.
//  2. Computation prompts route to Claude for stepwise working.
//  3. Summarization prompts route to OpenAI.
//  4. Everything else routes to OpenAI.
func SelectProvider(prompt, responseLanguage, defaultLanguage string) Selection {
	lang := strings.ToLower(strings.TrimSpace(responseLanguage))
	defLang := strings.ToLower(strings.TrimSpace(defaultLanguage))
	if defLang == "" {
		defLang = "english"
	}

	if lang != "" && lang != defLang {
		return Selection{Provider: ProviderGemini, Class: PromptClassMultilingual}
	}

	normalized := strings.TrimSpace(prompt)

	for _, pattern := range computationPatterns {
		if pattern.MatchString(normalized) {
			return Selection{Provider: ProviderClaude, Class: PromptClassComputation}
		}
	}

	for _, pattern := range summaryPatterns {
		if pattern.MatchString(normalized) {
			return Selection{Provider: ProviderOpenAI, Class: PromptClassSummary}
		}
	}

	return Selection{Provider: ProviderOpenAI, Class: PromptClassGeneral}
}
