package queryengine

import (
	"context"
	"fmt"
	"sort"

	"github.com/sagittacore/sagitta/internal/errors"
	"github.com/sagittacore/sagitta/internal/vectorstore"
)

// OverfetchFactor is K in spec §4.5 step 2's "limit * K candidates
// (K >= 3)".
const OverfetchFactor = 3

// Embedder is the narrow surface the query engine needs to embed a query
// string.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// SearchResult is one ranked hit (spec §4.5's query contract).
type SearchResult struct {
	FilePath    string
	StartLine   int
	EndLine     int
	Snippet     string
	Language    string
	ElementType string
	Score       float64
}

// Query bundles a search request (spec §4.5's "filters{language?,
// element_type?, branch?}").
type Query struct {
	Collection  string
	Text        string
	Limit       int
	Language    string
	ElementType string
	Branch      string
}

// Engine runs the embed -> vector search -> re-rank pipeline of spec §4.5.
type Engine struct {
	embedder       Embedder
	store          vectorstore.Store
	pathScorer     *PathRelevanceScorer
	categoryWeights CategoryWeights
}

// NewEngine builds a query engine using the default path-relevance and
// category weight tables.
func NewEngine(embedder Embedder, store vectorstore.Store) *Engine {
	return &Engine{
		embedder:        embedder,
		store:           store,
		pathScorer:      NewPathRelevanceScorer(),
		categoryWeights: DefaultCategoryWeights(),
	}
}

// Search embeds q.Text, over-fetches candidates from the vector store, and
// returns the top q.Limit results ranked by similarity x path-relevance x
// category multiplier (spec §4.5 steps 1-4).
func (e *Engine) Search(ctx context.Context, q Query) ([]SearchResult, error) {
	if q.Limit <= 0 {
		return nil, errors.ValidationError("limit must be positive", nil)
	}

	vector, err := e.embedder.Embed(ctx, q.Text)
	if err != nil {
		return nil, errors.EmbedderError(fmt.Sprintf("embed query %q", q.Text), err)
	}

	candidateLimit := q.Limit * OverfetchFactor
	hits, err := e.store.Search(ctx, q.Collection, vector, candidateLimit, vectorstore.Filter{
		Branch:      q.Branch,
		Language:    q.Language,
		ElementType: q.ElementType,
	})
	if err != nil {
		return nil, errors.VectorStoreError(fmt.Sprintf("search collection %q", q.Collection), err)
	}

	results := make([]SearchResult, 0, len(hits))
	for _, hit := range hits {
		filePath, _ := hit.Point.Payload["file_path"].(string)
		language, _ := hit.Point.Payload["language"].(string)
		elementType, _ := hit.Point.Payload["element_type"].(string)
		content, _ := hit.Point.Payload["content"].(string)
		startLine := intPayload(hit.Point.Payload, "start_line")
		endLine := intPayload(hit.Point.Payload, "end_line")

		parsed := e.pathScorer.ParsePath(filePath)
		pathMultiplier := e.pathScorer.Score(parsed, q.Text)
		categoryMultiplier := e.categoryWeights.Multiplier(ClassifyFile(filePath))

		results = append(results, SearchResult{
			FilePath:    filePath,
			StartLine:   startLine,
			EndLine:     endLine,
			Snippet:     content,
			Language:    language,
			ElementType: elementType,
			Score:       float64(hit.Score) * pathMultiplier * categoryMultiplier,
		})
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > q.Limit {
		results = results[:q.Limit]
	}
	return results, nil
}

func intPayload(payload map[string]any, key string) int {
	switch v := payload[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}
