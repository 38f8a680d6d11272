package tools

import (
	"context"

	"github.com/sagittacore/sagitta/internal/errors"
	"github.com/sagittacore/sagitta/internal/orchestrator"
	"github.com/sagittacore/sagitta/internal/queryengine"
)

// SemanticSearch runs the embed -> vector search -> re-rank pipeline
// against a repository's branch collection (spec §4.5, §6's
// semantic_search).
func (d *Deps) SemanticSearch(ctx context.Context, req orchestrator.ToolExecutionRequest, _ func(string)) (map[string]any, error) {
	repoName, ok := stringParam(req.Params, "repository_name")
	if !ok || repoName == "" {
		return nil, errors.ToolError("semantic_search requires a non-empty \"repository_name\"", nil)
	}
	queryText, ok := stringParam(req.Params, "query_text")
	if !ok || queryText == "" {
		return nil, errors.ToolError("semantic_search requires a non-empty \"query_text\"", nil)
	}

	entry, ok := d.Registry.Get(repoName)
	if !ok {
		return nil, errors.ValidationError("repository "+repoName+" not found", nil)
	}
	branch := optionalString(req.Params, "branch_name")
	if branch == "" {
		branch = entry.ActiveBranch
	}

	collectionName := d.Collection.CollectionName(repoName, branch)

	results, err := d.Query.Search(ctx, queryengine.Query{
		Collection:  collectionName,
		Text:        queryText,
		Limit:       optionalInt(req.Params, "limit", 10),
		Language:    optionalString(req.Params, "language"),
		ElementType: optionalString(req.Params, "element_type"),
		Branch:      branch,
	})
	if err != nil {
		return nil, err
	}

	hits := make([]map[string]any, 0, len(results))
	for _, r := range results {
		hits = append(hits, map[string]any{
			"file_path":    r.FilePath,
			"start_line":   r.StartLine,
			"end_line":     r.EndLine,
			"snippet":      r.Snippet,
			"language":     r.Language,
			"element_type": r.ElementType,
			"score":        r.Score,
		})
	}
	return map[string]any{"results": hits}, nil
}
