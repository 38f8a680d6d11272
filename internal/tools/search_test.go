package tools

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sagittacore/sagitta/internal/collection"
	"github.com/sagittacore/sagitta/internal/orchestrator"
	"github.com/sagittacore/sagitta/internal/queryengine"
	"github.com/sagittacore/sagitta/internal/registry"
	"github.com/sagittacore/sagitta/internal/vectorstore"
)

func TestSemanticSearchResolvesCollectionFromActiveBranch(t *testing.T) {
	reg, err := registry.Load(filepath.Join(t.TempDir(), "repositories.yaml"))
	require.NoError(t, err)
	require.NoError(t, reg.Add(&registry.Entry{Name: "repo-a", LocalPath: "/repo-a", DefaultBranch: "main", ActiveBranch: "main"}))

	mgr := collection.NewManager(nil, "sagitta", 3, nil)
	collectionName := mgr.CollectionName("repo-a", "main")

	store := newFakeToolsStore()
	store.infos[collectionName] = vectorstore.CollectionInfo{Exists: true, Dimension: 3}
	store.searchHits = []vectorstore.SearchHit{
		{Point: vectorstore.Point{Payload: map[string]any{
			"file_path": "main.go", "language": "go", "element_type": "function",
			"content": "func main() {}", "start_line": 1, "end_line": 1,
		}}, Score: float32(0.9)},
	}

	d := &Deps{Registry: reg, Collection: mgr, Query: queryengine.NewEngine(fakeToolsEmbedder{}, store)}

	result, err := d.SemanticSearch(context.Background(), orchestrator.ToolExecutionRequest{
		Params: map[string]any{"repository_name": "repo-a", "query_text": "entrypoint"},
	}, nil)
	require.NoError(t, err)

	hits := result["results"].([]map[string]any)
	require.Len(t, hits, 1)
	require.Equal(t, "main.go", hits[0]["file_path"])
	require.Equal(t, collectionName, store.searchedCollection)
}

func TestSemanticSearchRequiresRegisteredRepository(t *testing.T) {
	reg, err := registry.Load(filepath.Join(t.TempDir(), "repositories.yaml"))
	require.NoError(t, err)
	mgr := collection.NewManager(nil, "sagitta", 3, nil)
	d := &Deps{Registry: reg, Collection: mgr, Query: queryengine.NewEngine(fakeToolsEmbedder{}, newFakeToolsStore())}

	_, err = d.SemanticSearch(context.Background(), orchestrator.ToolExecutionRequest{
		Params: map[string]any{"repository_name": "missing", "query_text": "x"},
	}, nil)
	require.Error(t, err)
}
