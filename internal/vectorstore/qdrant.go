package vectorstore

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"
)

// QdrantStore backs Store with a real github.com/qdrant/go-client connection.
type QdrantStore struct {
	client *qdrant.Client
}

// Config carries the connection settings for the external Qdrant instance.
type Config struct {
	Host   string
	Port   int
	APIKey string
	UseTLS bool
}

// NewQdrantStore dials the configured Qdrant instance. The connection is
// lazy in the underlying gRPC client, so this rarely fails on its own;
// errors surface on first use.
func NewQdrantStore(cfg Config) (*QdrantStore, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("dial qdrant: %w", err)
	}
	return &QdrantStore{client: client}, nil
}

func (s *QdrantStore) CollectionInfo(ctx context.Context, name string) (CollectionInfo, error) {
	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return CollectionInfo{}, fmt.Errorf("collection exists %q: %w", name, err)
	}
	if !exists {
		return CollectionInfo{Exists: false}, nil
	}

	info, err := s.client.GetCollectionInfo(ctx, name)
	if err != nil {
		return CollectionInfo{}, fmt.Errorf("get collection info %q: %w", name, err)
	}

	dim := 0
	if params := info.GetConfig().GetParams(); params != nil {
		if vecParams := params.GetVectorsConfig().GetParams(); vecParams != nil {
			dim = int(vecParams.GetSize())
		}
	}

	return CollectionInfo{
		Exists:     true,
		Dimension:  dim,
		PointCount: info.GetPointsCount(),
	}, nil
}

func (s *QdrantStore) CreateCollection(ctx context.Context, name string, dimension int, distance Distance) error {
	_, err := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dimension),
			Distance: toQdrantDistance(distance),
		}),
	})
	if err != nil {
		return fmt.Errorf("create collection %q: %w", name, err)
	}
	return nil
}

func (s *QdrantStore) DeleteCollection(ctx context.Context, name string) error {
	_, err := s.client.DeleteCollection(ctx, name)
	if err != nil {
		return fmt.Errorf("delete collection %q: %w", name, err)
	}
	return nil
}

func (s *QdrantStore) Upsert(ctx context.Context, collection string, points []Point) error {
	structs := make([]*qdrant.PointStruct, 0, len(points))
	for _, p := range points {
		structs = append(structs, &qdrant.PointStruct{
			Id:      qdrant.NewID(p.ID),
			Vectors: qdrant.NewVectors(p.Vector...),
			Payload: qdrant.NewValueMap(p.Payload),
		})
	}
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Points:         structs,
	})
	if err != nil {
		return fmt.Errorf("upsert %d points into %q: %w", len(points), collection, err)
	}
	return nil
}

func (s *QdrantStore) DeleteByFilter(ctx context.Context, collection string, filter Filter) error {
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Points:         qdrant.NewPointsSelectorFilter(toQdrantFilter(filter)),
	})
	if err != nil {
		return fmt.Errorf("delete by filter in %q: %w", collection, err)
	}
	return nil
}

func (s *QdrantStore) Search(ctx context.Context, collection string, vector []float32, limit int, filter Filter) ([]SearchHit, error) {
	limit64 := uint64(limit)
	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &limit64,
		Filter:         toQdrantFilter(filter),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", collection, err)
	}

	hits := make([]SearchHit, 0, len(points))
	for _, p := range points {
		hits = append(hits, SearchHit{
			Point: Point{
				ID:      p.GetId().String(),
				Payload: fromQdrantPayload(p.GetPayload()),
			},
			Score: p.GetScore(),
		})
	}
	return hits, nil
}

func toQdrantDistance(d Distance) qdrant.Distance {
	switch d {
	case Cosine:
		return qdrant.Distance_Cosine
	default:
		return qdrant.Distance_Cosine
	}
}

func toQdrantFilter(f Filter) *qdrant.Filter {
	var conds []*qdrant.Condition
	if f.FilePath != "" {
		conds = append(conds, qdrant.NewMatch("file_path", f.FilePath))
	}
	if f.Branch != "" {
		conds = append(conds, qdrant.NewMatch("branch", f.Branch))
	}
	if f.Language != "" {
		conds = append(conds, qdrant.NewMatch("language", f.Language))
	}
	if f.ElementType != "" {
		conds = append(conds, qdrant.NewMatch("element_type", f.ElementType))
	}
	if len(conds) == 0 {
		return nil
	}
	return &qdrant.Filter{Must: conds}
}

func fromQdrantPayload(payload map[string]*qdrant.Value) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		switch {
		case v.GetStringValue() != "":
			out[k] = v.GetStringValue()
		case v.GetIntegerValue() != 0:
			out[k] = v.GetIntegerValue()
		case v.GetBoolValue():
			out[k] = v.GetBoolValue()
		default:
			out[k] = v.String()
		}
	}
	return out
}
