// Package dataset loads the evaluation corpus and labeled query set. Both
// are read once at run start and treated as immutable afterwards.
package dataset

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/XiaoConstantine/retrievolve/pkg/errors"
)

// Document is one corpus entry.
type Document struct {
	ID       string            `json:"id"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Query is one labeled query: text plus the IDs of its relevant documents,
// optionally with graded relevance scores aligned to RelevantDocs.
type Query struct {
	ID              string    `json:"id"`
	Text            string    `json:"query"`
	RelevantDocs    []string  `json:"relevantDocs"`
	RelevanceScores []float64 `json:"relevanceScores,omitempty"`
	Type            string    `json:"type,omitempty"`
	Difficulty      string    `json:"difficulty,omitempty"`
}

// Relevance returns the graded relevance map for the query. Missing scores
// default to binary gain 1.
func (q Query) Relevance() map[string]float64 {
	rel := make(map[string]float64, len(q.RelevantDocs))
	for i, id := range q.RelevantDocs {
		gain := 1.0
		if i < len(q.RelevanceScores) {
			gain = q.RelevanceScores[i]
		}
		rel[id] = gain
	}
	return rel
}

// Dataset is the full evaluation input: corpus plus labeled queries.
type Dataset struct {
	Documents []Document
	Queries   []Query

	byID map[string]int
}

// New assembles and validates a dataset.
func New(documents []Document, queries []Query) (*Dataset, error) {
	d := &Dataset{
		Documents: documents,
		Queries:   queries,
		byID:      make(map[string]int, len(documents)),
	}
	for i, doc := range documents {
		d.byID[doc.ID] = i
	}
	if err := d.validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// Document looks up a corpus document by ID.
func (d *Dataset) Document(id string) (Document, bool) {
	i, ok := d.byID[id]
	if !ok {
		return Document{}, false
	}
	return d.Documents[i], true
}

// DocumentIDs returns corpus IDs in load order. The slice is freshly
// allocated; callers may keep it.
func (d *Dataset) DocumentIDs() []string {
	ids := make([]string, len(d.Documents))
	for i, doc := range d.Documents {
		ids[i] = doc.ID
	}
	return ids
}

func (d *Dataset) validate() error {
	if len(d.Documents) == 0 {
		return errors.New(errors.DatasetInvalid, "corpus is empty")
	}
	if len(d.Queries) == 0 {
		return errors.New(errors.DatasetInvalid, "query set is empty")
	}

	seen := make(map[string]bool, len(d.Documents))
	for _, doc := range d.Documents {
		if doc.ID == "" {
			return errors.New(errors.DatasetInvalid, "corpus document missing id")
		}
		if seen[doc.ID] {
			return errors.WithFields(
				errors.New(errors.DatasetInvalid, "duplicate corpus document id"),
				errors.Fields{"id": doc.ID})
		}
		seen[doc.ID] = true
	}

	for _, q := range d.Queries {
		if q.ID == "" || q.Text == "" {
			return errors.WithFields(
				errors.New(errors.DatasetInvalid, "query missing id or text"),
				errors.Fields{"id": q.ID})
		}
		if len(q.RelevantDocs) == 0 {
			return errors.WithFields(
				errors.New(errors.DatasetInvalid, "query has no relevance labels"),
				errors.Fields{"id": q.ID})
		}
		if len(q.RelevanceScores) > 0 && len(q.RelevanceScores) != len(q.RelevantDocs) {
			return errors.WithFields(
				errors.New(errors.DatasetInvalid, "relevanceScores length mismatch"),
				errors.Fields{"id": q.ID})
		}
		for _, docID := range q.RelevantDocs {
			if _, ok := d.byID[docID]; !ok {
				return errors.WithFields(
					errors.New(errors.DatasetInvalid, "query references unknown document"),
					errors.Fields{"query": q.ID, "doc": docID})
			}
		}
	}

	return nil
}

// LoadJSONL reads a corpus file and a queries file in line-delimited JSON:
// one document per line {id, content, metadata?}, one query per line
// {id, query, relevantDocs, relevanceScores?, type?, difficulty?}.
func LoadJSONL(corpusPath, queriesPath string) (*Dataset, error) {
	documents, err := readLines(corpusPath, func(line []byte) (Document, error) {
		var doc Document
		err := json.Unmarshal(line, &doc)
		return doc, err
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.DatasetInvalid, "loading corpus")
	}

	queries, err := readLines(queriesPath, func(line []byte) (Query, error) {
		var q Query
		err := json.Unmarshal(line, &q)
		return q, err
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.DatasetInvalid, "loading queries")
	}

	return New(documents, queries)
}

// LoadQueriesJSONL reads just the queries file, for pairing with a corpus
// loaded from another format.
func LoadQueriesJSONL(path string) ([]Query, error) {
	queries, err := readLines(path, func(line []byte) (Query, error) {
		var q Query
		err := json.Unmarshal(line, &q)
		return q, err
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.DatasetInvalid, "loading queries")
	}
	return queries, nil
}

func readLines[T any](path string, parse func([]byte) (T, error)) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []T
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		v, err := parse(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		out = append(out, v)
	}
	return out, scanner.Err()
}
