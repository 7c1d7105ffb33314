package retrieval

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/ternarybob/arbor"

	"github.com/avencast/tutorbridge/internal/interfaces"
	"github.com/avencast/tutorbridge/internal/models"
)

const (
	// chunkSize and chunkOverlap shape the sliding window over document text
	chunkSize    = 800
	chunkOverlap = 120

	// fallbackChunkSize is used when no chunk matched the query and the
	// first slice of each document stands in as context
	fallbackChunkSize = 1000

	// snippetLength caps citation snippets
	snippetLength = 260

	// DefaultTopK is the number of passages returned when the caller does
	// not ask for a specific count
	DefaultTopK = 4
)

// instructionHeader precedes the retrieved passages in every context block
var instructionLines = []string{
	"You MUST answer using ONLY the context below.",
	"Do NOT say you lack access to papers or sources.",
	"Treat the provided context as the primary source for the answer.",
	"Provide a clear, step-by-step solution with headings and bullet points.",
	"Keep units and show final answers clearly.",
}

// emptyCorpusBlock replaces the context block when nothing is stored
const emptyCorpusBlock = "No context matched. Ask the user to add more sources."

// Passage is one ranked retrieval hit
type Passage struct {
	DocumentID string
	Title      string
	Text       string
	Score      int
	Rank       int
}

// Bundle is the assembled retrieval result for one query
type Bundle struct {
	ContextBlock string
	Citations    []interfaces.Citation
}

// Engine ranks document chunks against a query by lexical token overlap.
// Scoring is deterministic: same corpus and query always produce the same
// ranking.
type Engine struct {
	logger arbor.ILogger
}

// NewEngine creates a retrieval engine
func NewEngine(logger arbor.ILogger) *Engine {
	return &Engine{logger: logger}
}

// tokenize lowercases, strips everything that is not a letter, number, or
// whitespace in any script, and splits on whitespace
func tokenize(text string) []string {
	lowered := strings.ToLower(text)
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.IsSpace(r) {
			return r
		}
		return -1
	}, lowered)
	return strings.Fields(cleaned)
}

// tokenSet builds a membership set from tokenized text
func tokenSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range tokenize(text) {
		set[tok] = struct{}{}
	}
	return set
}

// chunkText slides a window of size runes over the text, stepping by
// size-overlap so adjacent chunks share context
func chunkText(text string, size, overlap int) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	if len(runes) <= size {
		return []string{string(runes)}
	}

	step := size - overlap
	if step <= 0 {
		step = size
	}

	var chunks []string
	for start := 0; start < len(runes); start += step {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks
}

// scoreChunk counts how many distinct query tokens appear in the chunk.
// The document title is prepended so title words count toward the match.
func scoreChunk(queryTokens []string, title, chunk string) int {
	set := tokenSet(title + "\n" + chunk)
	score := 0
	seen := make(map[string]struct{}, len(queryTokens))
	for _, tok := range queryTokens {
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		if _, ok := set[tok]; ok {
			score++
		}
	}
	return score
}

// snippet truncates passage text for citations, rune-safe
func snippet(text string) string {
	runes := []rune(text)
	if len(runes) <= snippetLength {
		return text
	}
	return string(runes[:snippetLength])
}

// Retrieve ranks every chunk of every document against the query and
// returns the topK best. When no chunk scores above zero, the first slice
// of each document (in insertion order) is returned instead so the model
// still sees the corpus.
func (e *Engine) Retrieve(query string, docs []*models.ContextDocument, topK int) []Passage {
	if topK <= 0 {
		topK = DefaultTopK
	}

	queryTokens := tokenize(query)

	var passages []Passage
	for _, doc := range docs {
		for _, chunk := range chunkText(doc.Content, chunkSize, chunkOverlap) {
			passages = append(passages, Passage{
				DocumentID: doc.ID,
				Title:      doc.Title,
				Text:       chunk,
				Score:      scoreChunk(queryTokens, doc.Title, chunk),
			})
		}
	}

	// Stable sort keeps document insertion order among equal scores
	sort.SliceStable(passages, func(i, j int) bool {
		return passages[i].Score > passages[j].Score
	})

	matched := make([]Passage, 0, topK)
	for _, p := range passages {
		if p.Score <= 0 {
			break
		}
		matched = append(matched, p)
		if len(matched) == topK {
			break
		}
	}

	if len(matched) == 0 {
		matched = fallbackPassages(docs, topK)
	}

	for i := range matched {
		matched[i].Rank = i + 1
	}

	e.logger.Debug().
		Int("documents", len(docs)).
		Int("passages", len(matched)).
		Int("top_k", topK).
		Msg("Lexical retrieval complete")

	return matched
}

// fallbackPassages takes the first chunk of each document in insertion order
func fallbackPassages(docs []*models.ContextDocument, topK int) []Passage {
	var passages []Passage
	for _, doc := range docs {
		chunks := chunkText(doc.Content, fallbackChunkSize, 0)
		if len(chunks) == 0 {
			continue
		}
		passages = append(passages, Passage{
			DocumentID: doc.ID,
			Title:      doc.Title,
			Text:       chunks[0],
			Score:      0,
		})
		if len(passages) == topK {
			break
		}
	}
	return passages
}

// BuildBundle retrieves passages and assembles the instruction block plus
// citations the orchestrator injects into the prompt
func (e *Engine) BuildBundle(query string, docs []*models.ContextDocument, topK int) *Bundle {
	passages := e.Retrieve(query, docs, topK)

	if len(passages) == 0 {
		return &Bundle{ContextBlock: emptyCorpusBlock}
	}

	sources := make([]string, 0, len(passages))
	citations := make([]interfaces.Citation, 0, len(passages))
	for _, p := range passages {
		sources = append(sources, fmt.Sprintf("Source %d: %s", p.Rank, p.Text))
		citations = append(citations, interfaces.Citation{
			DocumentID: p.DocumentID,
			Title:      p.Title,
			Rank:       p.Rank,
			Score:      p.Score,
			Snippet:    snippet(p.Text),
		})
	}

	lines := append(append([]string{}, instructionLines...), "", strings.Join(sources, "\n\n"))

	return &Bundle{
		ContextBlock: strings.Join(lines, "\n"),
		Citations:    citations,
	}
}
