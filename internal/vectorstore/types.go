// Package vectorstore is the thin collaborator boundary around the external
// vector store (Qdrant). Everything above this package talks to the Store
// interface, never to the Qdrant client directly, so collection integrity
// and sync logic stay testable against a fake.
package vectorstore

import "context"

// Distance is the similarity metric a collection is created with.
type Distance string

// Cosine is the only distance metric this platform creates collections
// with (spec §4.3).
const Cosine Distance = "cosine"

// CollectionInfo reports what the store currently knows about a collection.
type CollectionInfo struct {
	Exists     bool
	Dimension  int
	PointCount uint64
}

// Point is a vector-store record: a chunk's embedding plus its payload.
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]any
}

// Filter narrows a search or delete to points whose payload matches every
// non-empty field.
type Filter struct {
	FilePath    string
	Branch      string
	Language    string
	ElementType string
}

// SearchHit is a single candidate returned from a vector search, before
// path-relevance/category re-ranking.
type SearchHit struct {
	Point Point
	Score float32
}

// Store is the external vector-store collaborator's contract. Methods are
// scoped per-collection because every (repo, branch) maps to exactly one
// collection (spec §3/§4.3).
type Store interface {
	CollectionInfo(ctx context.Context, name string) (CollectionInfo, error)
	CreateCollection(ctx context.Context, name string, dimension int, distance Distance) error
	DeleteCollection(ctx context.Context, name string) error
	Upsert(ctx context.Context, collection string, points []Point) error
	DeleteByFilter(ctx context.Context, collection string, filter Filter) error
	Search(ctx context.Context, collection string, vector []float32, limit int, filter Filter) ([]SearchHit, error)
}
