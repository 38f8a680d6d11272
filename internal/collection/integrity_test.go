package collection

import (
	"context"
	"testing"

	"github.com/sagittacore/sagitta/internal/vectorstore"
)

type fakeStore struct {
	infos   map[string]vectorstore.CollectionInfo
	created []string
	deleted []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{infos: make(map[string]vectorstore.CollectionInfo)}
}

func (f *fakeStore) CollectionInfo(_ context.Context, name string) (vectorstore.CollectionInfo, error) {
	return f.infos[name], nil
}

func (f *fakeStore) CreateCollection(_ context.Context, name string, dim int, _ vectorstore.Distance) error {
	f.created = append(f.created, name)
	f.infos[name] = vectorstore.CollectionInfo{Exists: true, Dimension: dim}
	return nil
}

func (f *fakeStore) DeleteCollection(_ context.Context, name string) error {
	f.deleted = append(f.deleted, name)
	delete(f.infos, name)
	return nil
}

func (f *fakeStore) Upsert(context.Context, string, []vectorstore.Point) error { return nil }
func (f *fakeStore) DeleteByFilter(context.Context, string, vectorstore.Filter) error {
	return nil
}
func (f *fakeStore) Search(context.Context, string, []float32, int, vectorstore.Filter) ([]vectorstore.SearchHit, error) {
	return nil, nil
}

func TestEnsureCreatesMissingCollection(t *testing.T) {
	store := newFakeStore()
	mgr := NewManager(store, "sagitta", 768, nil)

	outcome, err := mgr.Ensure(context.Background(), "repo", "main", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !outcome.Created {
		t.Fatalf("expected Created=true, got %+v", outcome)
	}
	if len(store.created) != 1 {
		t.Fatalf("expected one collection created, got %v", store.created)
	}
}

func TestEnsureValidationRecreateOnDimensionMismatch(t *testing.T) {
	store := newFakeStore()
	mgr := NewManager(store, "sagitta", 768, nil)
	name := mgr.CollectionName("repo", "main")
	store.infos[name] = vectorstore.CollectionInfo{Exists: true, Dimension: 384, PointCount: 10}

	outcome, err := mgr.Ensure(context.Background(), "repo", "main", "abc123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !outcome.ValidationRecreate || !outcome.RequiresFullReindex() {
		t.Fatalf("expected validation-recreate requiring full reindex, got %+v", outcome)
	}
	if len(store.deleted) != 1 || len(store.created) != 1 {
		t.Fatalf("expected delete+recreate, got deleted=%v created=%v", store.deleted, store.created)
	}
}

func TestEnsureWipeRecoveryOnEmptyCollection(t *testing.T) {
	store := newFakeStore()
	mgr := NewManager(store, "sagitta", 768, nil)
	name := mgr.CollectionName("repo", "main")
	store.infos[name] = vectorstore.CollectionInfo{Exists: true, Dimension: 768, PointCount: 0}

	outcome, err := mgr.Ensure(context.Background(), "repo", "main", "abc123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !outcome.WipeRecovery || !outcome.RequiresFullReindex() {
		t.Fatalf("expected wipe recovery requiring full reindex, got %+v", outcome)
	}
}

func TestEnsureNoOpWhenHealthy(t *testing.T) {
	store := newFakeStore()
	mgr := NewManager(store, "sagitta", 768, nil)
	name := mgr.CollectionName("repo", "main")
	store.infos[name] = vectorstore.CollectionInfo{Exists: true, Dimension: 768, PointCount: 42}

	outcome, err := mgr.Ensure(context.Background(), "repo", "main", "abc123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.RequiresFullReindex() || outcome.Created {
		t.Fatalf("expected no-op outcome, got %+v", outcome)
	}
}

func TestLockReturnsSameMutexForSamePair(t *testing.T) {
	mgr := NewManager(newFakeStore(), "sagitta", 768, nil)
	a := mgr.Lock("repo", "main")
	b := mgr.Lock("repo", "main")
	if a != b {
		t.Fatalf("expected same mutex for same (repo,branch)")
	}
	c := mgr.Lock("repo", "dev")
	if a == c {
		t.Fatalf("expected different mutex for different branch")
	}
}
