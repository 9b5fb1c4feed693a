package scoring

import (
	"math"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

const (
	// Classic BM25 defaults.
	DefaultK1 = 1.5
	DefaultB  = 0.75
)

var foldCaser = cases.Fold()

// Tokenize normalizes text (NFKC + case folding) and splits it on
// non-alphanumeric runes.
func Tokenize(text string) []string {
	folded := foldCaser.String(norm.NFKC.String(text))
	return strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

// BM25Index holds the corpus statistics needed for BM25 scoring. It is built
// once per corpus and is safe for concurrent reads afterwards.
//
// Average document length is computed over the documents actually indexed.
// When the index is built over a sample of a larger corpus, that average is
// an approximation of the true corpus statistic.
type BM25Index struct {
	k1 float64
	b  float64

	docTerms map[string]map[string]int // docID -> term -> frequency
	docLen   map[string]int
	docFreq  map[string]int // term -> number of docs containing it
	avgLen   float64
	numDocs  int
}

// NewBM25Index builds an index over id->content pairs with the given k1/b
// parameters. Pass DefaultK1/DefaultB for the classic settings.
func NewBM25Index(docs map[string]string, k1, b float64) *BM25Index {
	idx := &BM25Index{
		k1:       k1,
		b:        b,
		docTerms: make(map[string]map[string]int, len(docs)),
		docLen:   make(map[string]int, len(docs)),
		docFreq:  make(map[string]int),
	}

	totalLen := 0
	for id, content := range docs {
		terms := Tokenize(content)
		freqs := make(map[string]int, len(terms))
		for _, term := range terms {
			freqs[term]++
		}
		idx.docTerms[id] = freqs
		idx.docLen[id] = len(terms)
		totalLen += len(terms)
		for term := range freqs {
			idx.docFreq[term]++
		}
	}

	idx.numDocs = len(docs)
	if idx.numDocs > 0 {
		idx.avgLen = float64(totalLen) / float64(idx.numDocs)
	}

	return idx
}

// Score computes the BM25 relevance of a document for the given query
// tokens. Unknown documents and empty queries score 0.
func (idx *BM25Index) Score(queryTokens []string, docID string) float64 {
	freqs, ok := idx.docTerms[docID]
	if !ok || idx.numDocs == 0 {
		return 0
	}

	dl := float64(idx.docLen[docID])
	avg := idx.avgLen
	if avg == 0 {
		avg = 1
	}

	score := 0.0
	for _, term := range queryTokens {
		tf := float64(freqs[term])
		if tf == 0 {
			continue
		}
		df := float64(idx.docFreq[term])
		// IDF with the +1 inside the log, guaranteed non-negative.
		idf := math.Log(1 + (float64(idx.numDocs)-df+0.5)/(df+0.5))
		score += idf * (tf * (idx.k1 + 1)) / (tf + idx.k1*(1-idx.b+idx.b*dl/avg))
	}

	return score
}

// ScoreAll scores every indexed document against the query tokens, returning
// results in the given document order for stable downstream ranking.
func (idx *BM25Index) ScoreAll(queryTokens []string, docIDs []string) []DocScore {
	scores := make([]DocScore, 0, len(docIDs))
	for _, id := range docIDs {
		scores = append(scores, DocScore{ID: id, Score: idx.Score(queryTokens, id)})
	}
	return scores
}

// AverageDocLength exposes the corpus-wide average token count.
func (idx *BM25Index) AverageDocLength() float64 {
	return idx.avgLen
}
