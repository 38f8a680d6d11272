package queryengine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sagittacore/sagitta/internal/vectorstore"
)

type stubEmbedder struct{}

func (stubEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

type stubStore struct {
	hits []vectorstore.SearchHit
}

func (s stubStore) CollectionInfo(context.Context, string) (vectorstore.CollectionInfo, error) {
	return vectorstore.CollectionInfo{}, nil
}
func (s stubStore) CreateCollection(context.Context, string, int, vectorstore.Distance) error {
	return nil
}
func (s stubStore) DeleteCollection(context.Context, string) error { return nil }
func (s stubStore) Upsert(context.Context, string, []vectorstore.Point) error { return nil }
func (s stubStore) DeleteByFilter(context.Context, string, vectorstore.Filter) error { return nil }
func (s stubStore) Search(context.Context, string, []float32, int, vectorstore.Filter) ([]vectorstore.SearchHit, error) {
	return s.hits, nil
}

func TestSearchRanksPathRelevantHitFirst(t *testing.T) {
	store := stubStore{hits: []vectorstore.SearchHit{
		{
			Score: 0.8,
			Point: vectorstore.Point{Payload: map[string]any{
				"file_path": "src/models/other.rb", "content": "other", "start_line": 1, "end_line": 5,
			}},
		},
		{
			Score: 0.7,
			Point: vectorstore.Point{Payload: map[string]any{
				"file_path": "src/models/user.rb", "content": "user model", "start_line": 1, "end_line": 10,
			}},
		},
	}}

	engine := NewEngine(stubEmbedder{}, store)
	results, err := engine.Search(context.Background(), Query{Collection: "c", Text: "user", Limit: 2})
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, "src/models/user.rb", results[0].FilePath)
}

func TestSearchAppliesCategoryMultiplierToTestFiles(t *testing.T) {
	store := stubStore{hits: []vectorstore.SearchHit{
		{
			Score: 0.9,
			Point: vectorstore.Point{Payload: map[string]any{
				"file_path": "src/models/user_test.rb", "content": "test", "start_line": 1, "end_line": 5,
			}},
		},
		{
			Score: 0.9,
			Point: vectorstore.Point{Payload: map[string]any{
				"file_path": "src/models/account.rb", "content": "impl", "start_line": 1, "end_line": 5,
			}},
		},
	}}

	engine := NewEngine(stubEmbedder{}, store)
	results, err := engine.Search(context.Background(), Query{Collection: "c", Text: "irrelevant query", Limit: 2})
	require.NoError(t, err)
	require.Equal(t, "src/models/account.rb", results[0].FilePath)
}

func TestSearchRejectsNonPositiveLimit(t *testing.T) {
	engine := NewEngine(stubEmbedder{}, stubStore{})
	_, err := engine.Search(context.Background(), Query{Collection: "c", Text: "x", Limit: 0})
	require.Error(t, err)
}
