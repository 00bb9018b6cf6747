// Package bleve implements the similarity index on a bleve full-text index.
package bleve

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/reflectra/internal/vector"
)

// Index is a bleve-backed vector.Index.
type Index struct {
	index bleve.Index
	path  string
}

var _ vector.Index = (*Index)(nil)

// Open opens the index at path, creating it if missing. A corrupted index is
// removed and recreated; it only mirrors the session store.
func Open(path string) (*Index, error) {
	idx, err := bleve.Open(path)
	if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		idx, err = bleve.New(path, buildMapping())
		if err != nil {
			return nil, fmt.Errorf("create index: %w", err)
		}
		log.Info().Str("path", path).Msg("Similarity index created")
	} else if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Similarity index unreadable, recreating")
		if idx != nil {
			_ = idx.Close()
		}
		if err := os.RemoveAll(path); err != nil {
			return nil, fmt.Errorf("remove corrupted index: %w", err)
		}
		idx, err = bleve.New(path, buildMapping())
		if err != nil {
			return nil, fmt.Errorf("recreate index: %w", err)
		}
	}
	return &Index{index: idx, path: path}, nil
}

// NewMemory creates an in-memory index.
func NewMemory() (*Index, error) {
	idx, err := bleve.NewMemOnly(buildMapping())
	if err != nil {
		return nil, fmt.Errorf("create memory index: %w", err)
	}
	return &Index{index: idx}, nil
}

func buildMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()

	doc := bleve.NewDocumentMapping()

	content := bleve.NewTextFieldMapping()
	content.Analyzer = standard.Name
	content.Store = false
	doc.AddFieldMappingsAt("content", content)

	title := bleve.NewTextFieldMapping()
	title.Analyzer = standard.Name
	doc.AddFieldMappingsAt("title", title)

	for _, name := range []string{"url", "category", "doc_type"} {
		f := bleve.NewTextFieldMapping()
		f.Analyzer = keyword.Name
		doc.AddFieldMappingsAt(name, f)
	}
	for _, name := range []string{"session_id", "timestamp", "duration"} {
		doc.AddFieldMappingsAt(name, bleve.NewNumericFieldMapping())
	}

	im.DefaultMapping = doc
	im.DefaultAnalyzer = standard.Name
	return im
}

// AddDocuments implements vector.Index.
func (i *Index) AddDocuments(_ context.Context, docs []vector.Document) error {
	if len(docs) == 0 {
		return nil
	}
	batch := i.index.NewBatch()
	for _, d := range docs {
		fields := make(map[string]any, len(d.Metadata)+1)
		for k, v := range d.Metadata {
			fields[k] = v
		}
		fields["content"] = d.Content
		if err := batch.Index(d.ID, fields); err != nil {
			return fmt.Errorf("batch %s: %w", d.ID, err)
		}
	}
	return i.index.Batch(batch)
}

// DeleteDocuments implements vector.Index.
func (i *Index) DeleteDocuments(_ context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	batch := i.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	return i.index.Batch(batch)
}

// Query implements vector.Index.
func (i *Index) Query(ctx context.Context, text string, limit int, since int64) ([]vector.QueryResult, error) {
	if limit <= 0 {
		limit = 8
	}

	match := bleve.NewMatchQuery(text)
	match.SetField("content")
	var q query.Query = match
	if since > 0 {
		from := float64(since)
		inclusive := true
		ts := bleve.NewNumericRangeInclusiveQuery(&from, nil, &inclusive, nil)
		ts.SetField("timestamp")
		q = bleve.NewConjunctionQuery(match, ts)
	}

	req := bleve.NewSearchRequest(q)
	req.Size = limit
	req.Fields = []string{"*"}

	res, err := i.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	out := make([]vector.QueryResult, 0, len(res.Hits))
	for _, hit := range res.Hits {
		out = append(out, vector.QueryResult{
			ID:       hit.ID,
			Score:    hit.Score,
			Metadata: hit.Fields,
		})
	}
	return out, nil
}

// Count implements vector.Index.
func (i *Index) Count(_ context.Context) (int64, error) {
	n, err := i.index.DocCount()
	return int64(n), err
}

// Close implements vector.Index.
func (i *Index) Close() error {
	return i.index.Close()
}
