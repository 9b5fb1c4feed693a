package evaluation

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/XiaoConstantine/retrievolve/pkg/genome"
	"github.com/XiaoConstantine/retrievolve/pkg/logging"
	"github.com/XiaoConstantine/retrievolve/pkg/scoring"
)

var lowerCaser = cases.Fold()

// synonyms is a small static expansion table. LLM-free and deterministic;
// genes that want richer expansion carry the llm-rewrite processor instead.
var synonyms = map[string][]string{
	"fast":     {"quick", "rapid"},
	"big":      {"large", "huge"},
	"small":    {"tiny", "little"},
	"error":    {"failure", "fault"},
	"fix":      {"repair", "resolve"},
	"buy":      {"purchase"},
	"car":      {"automobile", "vehicle"},
	"doctor":   {"physician"},
	"illness":  {"disease", "sickness"},
	"start":    {"begin", "launch"},
	"end":      {"finish", "terminate"},
	"search":   {"find", "lookup"},
	"document": {"file", "record"},
	"price":    {"cost"},
	"method":   {"approach", "technique"},
}

const (
	rewritePrompt = "Rewrite the following search query to be clearer and more specific. " +
		"Reply with the rewritten query only.\n\nQuery: %s"
	hydePrompt = "Write a short passage (2-3 sentences) that would directly answer the " +
		"following question. Reply with the passage only.\n\nQuestion: %s"
	stepBackPrompt = "Given the following specific question, write one broader, more general " +
		"question about the same topic. Reply with the general question only.\n\nQuestion: %s"
	decomposePrompt = "Break the following question into 2-4 simpler sub-questions, one per " +
		"line. Reply with the sub-questions only.\n\nQuestion: %s"
)

// processQuery applies the genome's query processor to the query text. It
// returns one or more query variants (several for decomposition and
// step-back) and the number of generator calls made. LLM-backed processors
// fall back to the raw query when no generator is configured.
func (e *Engine) processQuery(ctx context.Context, proc genome.QueryProcessor, text string) ([]string, int, error) {
	switch proc {
	case genome.QueryLowercase:
		return []string{lowerCaser.String(norm.NFKC.String(text))}, 0, nil

	case genome.QuerySynonymExpand:
		return []string{expandSynonyms(text)}, 0, nil

	case genome.QueryLLMRewrite:
		out, calls, err := e.generate(ctx, rewritePrompt, text)
		if err != nil || out == "" {
			return []string{text}, calls, err
		}
		return []string{out}, calls, nil

	case genome.QueryHyDE:
		out, calls, err := e.generate(ctx, hydePrompt, text)
		if err != nil || out == "" {
			return []string{text}, calls, err
		}
		return []string{out}, calls, nil

	case genome.QueryStepBack:
		out, calls, err := e.generate(ctx, stepBackPrompt, text)
		if err != nil || out == "" {
			return []string{text}, calls, err
		}
		// Retrieve with both the original and the stepped-back question;
		// the result lists are fused downstream.
		return []string{text, out}, calls, nil

	case genome.QueryDecomposition:
		out, calls, err := e.generate(ctx, decomposePrompt, text)
		if err != nil || out == "" {
			return []string{text}, calls, err
		}
		variants := splitNonEmptyLines(out)
		if len(variants) == 0 {
			return []string{text}, calls, nil
		}
		return variants, calls, nil

	default: // raw
		return []string{text}, 0, nil
	}
}

// generate runs the prompt through the configured generator. A missing
// generator is not an error: the caller falls back to the raw query and the
// gene simply earns whatever fitness the raw query earns.
func (e *Engine) generate(ctx context.Context, prompt, query string) (string, int, error) {
	if e.generator == nil {
		logging.GetLogger().Debug(ctx, "no text generator configured, query processor falls back to raw")
		return "", 0, nil
	}
	out, err := e.generator.Generate(ctx, fmt.Sprintf(prompt, query))
	if err != nil {
		return "", 1, err
	}
	return out, 1, nil
}

func expandSynonyms(text string) string {
	tokens := scoring.Tokenize(text)
	var extra []string
	seen := make(map[string]struct{}, len(tokens))
	for _, tok := range tokens {
		seen[tok] = struct{}{}
	}
	for _, tok := range tokens {
		for _, syn := range synonyms[tok] {
			if _, ok := seen[syn]; !ok {
				seen[syn] = struct{}{}
				extra = append(extra, syn)
			}
		}
	}
	if len(extra) == 0 {
		return text
	}
	return text + " " + strings.Join(extra, " ")
}

func splitNonEmptyLines(text string) []string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(line, "-*0123456789. "))
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
