package evaluation

import (
	"fmt"
	"strings"

	"github.com/XiaoConstantine/retrievolve/pkg/dataset"
	"github.com/XiaoConstantine/retrievolve/pkg/genome"
	"github.com/XiaoConstantine/retrievolve/pkg/scoring"
)

// Chunk is one indexable unit of a document. With the "none" strategy a
// chunk is the whole document; every chunk carries its parent document ID so
// chunk hits can be mapped back for relevance comparison.
type Chunk struct {
	ID       string
	ParentID string
	Text     string
}

// chunkDocuments splits every corpus document according to the strategy.
// Chunk IDs are derived from the parent ID plus an ordinal so they are
// stable across runs.
func chunkDocuments(docs []dataset.Document, strategy genome.ChunkingStrategy, chunkSize int) []Chunk {
	var chunks []Chunk
	for _, doc := range docs {
		parts := splitDocument(doc.Content, strategy, chunkSize)
		if len(parts) == 1 {
			chunks = append(chunks, Chunk{ID: doc.ID, ParentID: doc.ID, Text: parts[0]})
			continue
		}
		for i, part := range parts {
			chunks = append(chunks, Chunk{
				ID:       fmt.Sprintf("%s#%d", doc.ID, i),
				ParentID: doc.ID,
				Text:     part,
			})
		}
	}
	return chunks
}

func splitDocument(content string, strategy genome.ChunkingStrategy, chunkSize int) []string {
	switch strategy {
	case genome.ChunkFixedSize:
		return splitFixed(content, chunkSize)
	case genome.ChunkSentence:
		return splitSentences(content)
	case genome.ChunkParagraph:
		return splitParagraphs(content)
	case genome.ChunkSemantic:
		return splitSemantic(content, chunkSize)
	case genome.ChunkHierarchical:
		// Both paragraph-level and sentence-level units are indexed; a hit
		// at either granularity maps back to the same parent document.
		parts := splitParagraphs(content)
		if len(parts) > 1 {
			for _, p := range parts {
				if sents := splitSentences(p); len(sents) > 1 {
					parts = append(parts, sents...)
				}
			}
		} else {
			parts = splitSentences(content)
		}
		return parts
	default:
		return []string{content}
	}
}

// splitFixed groups whitespace-separated words into windows of at most
// size words.
func splitFixed(content string, size int) []string {
	if size <= 0 {
		return []string{content}
	}
	words := strings.Fields(content)
	if len(words) <= size {
		return []string{content}
	}
	var parts []string
	for start := 0; start < len(words); start += size {
		end := start + size
		if end > len(words) {
			end = len(words)
		}
		parts = append(parts, strings.Join(words[start:end], " "))
	}
	return parts
}

func splitParagraphs(content string) []string {
	var parts []string
	for _, p := range strings.Split(content, "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return []string{content}
	}
	return parts
}

// splitSentences breaks text on terminal punctuation. Abbreviation handling
// is deliberately naive; good enough for chunk boundaries.
func splitSentences(content string) []string {
	var parts []string
	var b strings.Builder
	for _, r := range content {
		b.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			if s := strings.TrimSpace(b.String()); s != "" {
				parts = append(parts, s)
			}
			b.Reset()
		}
	}
	if s := strings.TrimSpace(b.String()); s != "" {
		parts = append(parts, s)
	}
	if len(parts) == 0 {
		return []string{content}
	}
	return parts
}

// splitSemantic groups consecutive sentences while they stay lexically
// cohesive (shared vocabulary), starting a new chunk on a topic shift or
// when the running chunk exceeds maxWords.
func splitSemantic(content string, maxWords int) []string {
	if maxWords <= 0 {
		maxWords = 256
	}
	sentences := splitSentences(content)
	if len(sentences) <= 1 {
		return sentences
	}

	var parts []string
	var current []string
	currentWords := 0
	prevTokens := tokenSet(sentences[0])

	flush := func() {
		if len(current) > 0 {
			parts = append(parts, strings.Join(current, " "))
			current = current[:0]
			currentWords = 0
		}
	}

	for i, sent := range sentences {
		tokens := tokenSet(sent)
		words := len(strings.Fields(sent))
		if i > 0 && (jaccard(prevTokens, tokens) < 0.1 || currentWords+words > maxWords) {
			flush()
		}
		current = append(current, sent)
		currentWords += words
		prevTokens = tokens
	}
	flush()
	return parts
}

func tokenSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range scoring.Tokenize(text) {
		set[tok] = struct{}{}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}
