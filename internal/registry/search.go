package registry

import (
	"fmt"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/promptvault/promptvault/internal/core"
)

// SearchResult is one full-text hit, best match first.
type SearchResult struct {
	ID          string
	Score       float64
	Description string
}

// searchIndex maintains one bleve document per prompt id, covering the
// latest version's searchable text.
type searchIndex struct {
	idx bleve.Index
}

func newSearchIndex() (*searchIndex, error) {
	idx, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return nil, err
	}
	return &searchIndex{idx: idx}, nil
}

func buildIndexMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()

	idField := bleve.NewTextFieldMapping()
	idField.Analyzer = keyword.Name
	idField.Store = true
	idField.Index = true
	docMapping.AddFieldMappingsAt("id", idField)

	descField := bleve.NewTextFieldMapping()
	descField.Analyzer = standard.Name
	descField.Store = true
	descField.Index = true
	docMapping.AddFieldMappingsAt("description", descField)

	tagsField := bleve.NewTextFieldMapping()
	tagsField.Analyzer = standard.Name
	tagsField.Store = false
	tagsField.Index = true
	docMapping.AddFieldMappingsAt("tags", tagsField)

	textField := bleve.NewTextFieldMapping()
	textField.Analyzer = standard.Name
	textField.Store = false
	textField.Index = true
	docMapping.AddFieldMappingsAt("text", textField)

	indexMapping.DefaultMapping = docMapping
	return indexMapping
}

func document(p *core.Prompt) map[string]any {
	var text strings.Builder
	if p.Template != nil {
		text.WriteString(p.Template.Content)
	}
	if p.ChatTemplate != nil {
		for _, msg := range p.ChatTemplate.Messages {
			text.WriteString(msg.Content)
			text.WriteString("\n")
		}
	}
	return map[string]any{
		"id":          p.ID,
		"description": p.Metadata.Description,
		"tags":        strings.Join(p.Metadata.Tags, " "),
		"text":        text.String(),
	}
}

func (s *searchIndex) index(p *core.Prompt) error {
	return s.idx.Index(p.ID, document(p))
}

func (s *searchIndex) remove(id string) error {
	return s.idx.Delete(id)
}

func (s *searchIndex) close() error {
	return s.idx.Close()
}

// Search runs a full-text query across prompt ids, descriptions, tags, and
// template text, returning up to limit hits ranked by score.
func (r *Registry) Search(query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 10
	}

	q := bleve.NewMatchQuery(query)
	req := bleve.NewSearchRequest(q)
	req.Size = limit
	req.Fields = []string{"id", "description"}

	res, err := r.search.idx.Search(req)
	if err != nil {
		return nil, fmt.Errorf("prompt search failed: %w", err)
	}

	results := make([]SearchResult, 0, len(res.Hits))
	for _, hit := range res.Hits {
		sr := SearchResult{ID: hit.ID, Score: hit.Score}
		if desc, ok := hit.Fields["description"].(string); ok {
			sr.Description = desc
		}
		results = append(results, sr)
	}
	return results, nil
}
