package dataset

import (
	"context"

	"github.com/apache/arrow/go/v13/arrow/array"
	"github.com/apache/arrow/go/v13/arrow/memory"
	"github.com/apache/arrow/go/v13/parquet/file"
	"github.com/apache/arrow/go/v13/parquet/pqarrow"

	"github.com/XiaoConstantine/retrievolve/pkg/errors"
)

// LoadParquetCorpus reads corpus documents from a Parquet file with string
// columns "id" and "content". Larger corpora are commonly distributed this
// way (e.g. Hugging Face exports).
func LoadParquetCorpus(ctx context.Context, path string) ([]Document, error) {
	reader, err := file.OpenParquetFile(path, false)
	if err != nil {
		return nil, errors.Wrap(err, errors.DatasetInvalid, "opening parquet corpus")
	}
	defer reader.Close()

	arrowReader, err := pqarrow.NewFileReader(reader, pqarrow.ArrowReadProperties{}, memory.DefaultAllocator)
	if err != nil {
		return nil, errors.Wrap(err, errors.DatasetInvalid, "reading parquet corpus")
	}

	schema, err := arrowReader.Schema()
	if err != nil {
		return nil, errors.Wrap(err, errors.DatasetInvalid, "reading parquet schema")
	}

	idIndices := schema.FieldIndices("id")
	contentIndices := schema.FieldIndices("content")
	if len(idIndices) == 0 || len(contentIndices) == 0 {
		return nil, errors.New(errors.DatasetInvalid, "parquet corpus requires 'id' and 'content' columns")
	}

	table, err := arrowReader.ReadTable(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.DatasetInvalid, "reading parquet table")
	}
	defer table.Release()

	idCol := table.Column(idIndices[0])
	contentCol := table.Column(contentIndices[0])

	documents := make([]Document, 0, table.NumRows())
	for chunkIdx, chunk := range idCol.Data().Chunks() {
		ids, ok := chunk.(*array.String)
		if !ok {
			return nil, errors.New(errors.DatasetInvalid, "parquet 'id' column must be string")
		}
		contents, ok := contentCol.Data().Chunks()[chunkIdx].(*array.String)
		if !ok {
			return nil, errors.New(errors.DatasetInvalid, "parquet 'content' column must be string")
		}
		for i := 0; i < ids.Len(); i++ {
			documents = append(documents, Document{
				ID:      ids.Value(i),
				Content: contents.Value(i),
			})
		}
	}

	return documents, nil
}
