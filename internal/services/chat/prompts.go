package chat

import (
	"fmt"
	"strings"

	"github.com/avencast/tutorbridge/internal/interfaces"
)

// languageDirective builds the trailing system instruction that pins the
// response language. Appended last so it wins over anything earlier in the
// prompt.
func languageDirective(language string) string {
	switch strings.ToLower(strings.TrimSpace(language)) {
	case "", "english", "en":
		return "Respond in English."
	case "sinhala", "sin", "si":
		return "Respond in Sinhala (සිංහල)."
	case "tamil", "tam", "ta":
		return "Respond in Tamil (தமிழ்)."
	default:
		return fmt.Sprintf("Respond in %s.", language)
	}
}

// lastUserPrompt returns the content of the most recent user message
func lastUserPrompt(messages []interfaces.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return messages[i].Content
		}
	}
	return ""
}
