package dataset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/XiaoConstantine/retrievolve/pkg/errors"
)

func validDocs() []Document {
	return []Document{
		{ID: "d1", Content: "go concurrency patterns with channels"},
		{ID: "d2", Content: "python asyncio event loops"},
	}
}

func validQueries() []Query {
	return []Query{
		{ID: "q1", Text: "how do goroutines communicate", RelevantDocs: []string{"d1"}},
	}
}

func TestNewDataset(t *testing.T) {
	d, err := New(validDocs(), validQueries())
	require.NoError(t, err)

	doc, ok := d.Document("d2")
	assert.True(t, ok)
	assert.Equal(t, "python asyncio event loops", doc.Content)

	_, ok = d.Document("missing")
	assert.False(t, ok)

	assert.Equal(t, []string{"d1", "d2"}, d.DocumentIDs())
}

func TestDatasetValidation(t *testing.T) {
	tests := []struct {
		name    string
		docs    []Document
		queries []Query
	}{
		{"empty corpus", nil, validQueries()},
		{"empty queries", validDocs(), nil},
		{"document missing id", append(validDocs(), Document{Content: "x"}), validQueries()},
		{"duplicate document id", append(validDocs(), Document{ID: "d1", Content: "x"}), validQueries()},
		{"query missing text", validDocs(), []Query{{ID: "q1", RelevantDocs: []string{"d1"}}}},
		{"query without labels", validDocs(), []Query{{ID: "q1", Text: "x"}}},
		{"unknown relevant doc", validDocs(), []Query{{ID: "q1", Text: "x", RelevantDocs: []string{"ghost"}}}},
		{"score length mismatch", validDocs(), []Query{{
			ID: "q1", Text: "x", RelevantDocs: []string{"d1"}, RelevanceScores: []float64{1, 2},
		}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.docs, tt.queries)
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, errors.DatasetInvalid))
		})
	}
}

func TestQueryRelevance(t *testing.T) {
	t.Run("binary default", func(t *testing.T) {
		q := Query{RelevantDocs: []string{"a", "b"}}
		assert.Equal(t, map[string]float64{"a": 1, "b": 1}, q.Relevance())
	})

	t.Run("graded scores", func(t *testing.T) {
		q := Query{RelevantDocs: []string{"a", "b"}, RelevanceScores: []float64{3, 1}}
		assert.Equal(t, map[string]float64{"a": 3, "b": 1}, q.Relevance())
	})
}

func TestLoadJSONL(t *testing.T) {
	dir := t.TempDir()

	corpusPath := filepath.Join(dir, "corpus.jsonl")
	corpus := `{"id":"d1","content":"rust borrow checker","metadata":{"topic":"rust"}}
{"id":"d2","content":"go garbage collector"}

{"id":"d3","content":"jvm jit compiler"}
`
	require.NoError(t, os.WriteFile(corpusPath, []byte(corpus), 0644))

	queriesPath := filepath.Join(dir, "queries.jsonl")
	queries := `{"id":"q1","query":"memory safety without gc","relevantDocs":["d1"],"type":"factual"}
{"id":"q2","query":"garbage collection pauses","relevantDocs":["d2","d3"],"relevanceScores":[2,1],"difficulty":"hard"}
`
	require.NoError(t, os.WriteFile(queriesPath, []byte(queries), 0644))

	d, err := LoadJSONL(corpusPath, queriesPath)
	require.NoError(t, err)

	assert.Len(t, d.Documents, 3)
	assert.Len(t, d.Queries, 2)
	assert.Equal(t, "rust", d.Documents[0].Metadata["topic"])
	assert.Equal(t, "hard", d.Queries[1].Difficulty)
	assert.Equal(t, map[string]float64{"d2": 2, "d3": 1}, d.Queries[1].Relevance())
}

func TestLoadJSONLMalformed(t *testing.T) {
	dir := t.TempDir()
	corpusPath := filepath.Join(dir, "corpus.jsonl")
	require.NoError(t, os.WriteFile(corpusPath, []byte("{not json}\n"), 0644))
	queriesPath := filepath.Join(dir, "queries.jsonl")
	require.NoError(t, os.WriteFile(queriesPath, []byte(""), 0644))

	_, err := LoadJSONL(corpusPath, queriesPath)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.DatasetInvalid))
}
