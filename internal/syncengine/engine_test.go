package syncengine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/require"

	"github.com/sagittacore/sagitta/internal/chunk"
	"github.com/sagittacore/sagitta/internal/collection"
	"github.com/sagittacore/sagitta/internal/events"
	"github.com/sagittacore/sagitta/internal/registry"
	"github.com/sagittacore/sagitta/internal/vectorstore"
)

type fakeChunker struct{}

func (fakeChunker) Chunk(_ context.Context, file *chunk.FileInput) ([]*chunk.Chunk, error) {
	return []*chunk.Chunk{{
		FilePath:  file.Path,
		Content:   string(file.Content),
		Language:  "text",
		StartLine: 1,
		EndLine:   1,
	}}, nil
}

type fakeEmbedder struct{}

func (fakeEmbedder) EncodeBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2, 0.3}
	}
	return out, nil
}

type fakeStore struct {
	infos    map[string]vectorstore.CollectionInfo
	upserted map[string][]vectorstore.Point
	deleted  []vectorstore.Filter
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		infos:    make(map[string]vectorstore.CollectionInfo),
		upserted: make(map[string][]vectorstore.Point),
	}
}

func (f *fakeStore) CollectionInfo(_ context.Context, name string) (vectorstore.CollectionInfo, error) {
	return f.infos[name], nil
}

func (f *fakeStore) CreateCollection(_ context.Context, name string, dim int, _ vectorstore.Distance) error {
	f.infos[name] = vectorstore.CollectionInfo{Exists: true, Dimension: dim}
	return nil
}

func (f *fakeStore) DeleteCollection(_ context.Context, name string) error {
	delete(f.infos, name)
	return nil
}

func (f *fakeStore) Upsert(_ context.Context, collection string, points []vectorstore.Point) error {
	f.upserted[collection] = append(f.upserted[collection], points...)
	info := f.infos[collection]
	info.PointCount += uint64(len(points))
	f.infos[collection] = info
	return nil
}

func (f *fakeStore) DeleteByFilter(_ context.Context, _ string, filter vectorstore.Filter) error {
	f.deleted = append(f.deleted, filter)
	return nil
}

func (f *fakeStore) Search(context.Context, string, []float32, int, vectorstore.Filter) ([]vectorstore.SearchHit, error) {
	return nil, nil
}

func initRepoWithFile(t *testing.T, name, content string) (dir, commit string) {
	t.Helper()
	dir = t.TempDir()

	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))

	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add(name)
	require.NoError(t, err)

	hash, err := wt.Commit("initial", &git.CommitOptions{
		Author: &object.Signature{Name: "test", Email: "test@example.com", When: time.Now()},
	})
	require.NoError(t, err)

	return dir, hash.String()
}

func newTestEngine(t *testing.T, dir string) (*Engine, *registry.Registry, *fakeStore) {
	t.Helper()
	reg, err := registry.Load(filepath.Join(t.TempDir(), "repositories.yaml"))
	require.NoError(t, err)

	branch, err := defaultBranchOf(dir)
	require.NoError(t, err)

	require.NoError(t, reg.Add(&registry.Entry{
		Name:             "repo-a",
		LocalPath:        dir,
		DefaultBranch:    branch,
		ActiveBranch:     branch,
		AddedAsLocalPath: true,
	}))

	store := newFakeStore()
	mgr := collection.NewManager(store, "sagitta", 3, nil)
	engine := NewEngine(reg, mgr, fakeChunker{}, fakeEmbedder{}, store, events.NewBroadcaster[events.SyncEvent]())
	return engine, reg, store
}

func TestEngineSyncFullIndexesAllTrackedFiles(t *testing.T) {
	dir, _ := initRepoWithFile(t, "main.go", "package main\n")
	engine, reg, store := newTestEngine(t, dir)

	e, _ := reg.Get("repo-a")
	result, err := engine.Sync(context.Background(), "repo-a", e.DefaultBranch, false)
	require.NoError(t, err)
	require.Equal(t, 1, result.FilesIndexed)
	require.Equal(t, 0, result.FilesDeleted)

	name := collection.Name("sagitta", "repo-a", e.DefaultBranch)
	require.Len(t, store.upserted[name], 1)

	updated, ok := reg.Get("repo-a")
	require.True(t, ok)
	require.NotEmpty(t, updated.LastSyncedCommits[e.DefaultBranch])
}

func TestEngineSyncSkipsUnsupportedExtensions(t *testing.T) {
	dir, _ := initRepoWithFile(t, "notes.txt", "plain text")
	engine, reg, store := newTestEngine(t, dir)

	e, _ := reg.Get("repo-a")
	result, err := engine.Sync(context.Background(), "repo-a", e.DefaultBranch, false)
	require.NoError(t, err)
	require.Equal(t, 0, result.FilesIndexed)

	name := collection.Name("sagitta", "repo-a", e.DefaultBranch)
	require.Empty(t, store.upserted[name])
}

func TestEngineSyncIsNoOpWhenAlreadyUpToDate(t *testing.T) {
	dir, _ := initRepoWithFile(t, "main.go", "package main\n")
	engine, reg, _ := newTestEngine(t, dir)

	e, _ := reg.Get("repo-a")
	_, err := engine.Sync(context.Background(), "repo-a", e.DefaultBranch, false)
	require.NoError(t, err)

	result, err := engine.Sync(context.Background(), "repo-a", e.DefaultBranch, false)
	require.NoError(t, err)
	require.Equal(t, 0, result.FilesIndexed)
	require.Equal(t, 0, result.FilesDeleted)
}

// failingChunker fails to chunk one specific path, simulating a parser
// failure on a single file; every other path chunks normally.
type failingChunker struct {
	failPath string
}

func (c failingChunker) Chunk(_ context.Context, file *chunk.FileInput) ([]*chunk.Chunk, error) {
	if file.Path == c.failPath {
		return nil, fmt.Errorf("malformed syntax")
	}
	return []*chunk.Chunk{{
		FilePath:  file.Path,
		Content:   string(file.Content),
		Language:  "text",
		StartLine: 1,
		EndLine:   1,
	}}, nil
}

type failingEmbedder struct{}

func (failingEmbedder) EncodeBatch(context.Context, []string) ([][]float32, error) {
	return nil, fmt.Errorf("embedding provider unreachable")
}

// flakyStore fails its first failCount Upsert/DeleteByFilter calls, then
// delegates to an embedded fakeStore. Used to exercise the bounded-retry
// path without aborting the whole sync.
type flakyStore struct {
	*fakeStore
	failCount int
	upserts   int
	deletes   int
}

func newFlakyStore(failCount int) *flakyStore {
	return &flakyStore{fakeStore: newFakeStore(), failCount: failCount}
}

func (f *flakyStore) Upsert(ctx context.Context, collection string, points []vectorstore.Point) error {
	f.upserts++
	if f.upserts <= f.failCount {
		return fmt.Errorf("transient upsert failure")
	}
	return f.fakeStore.Upsert(ctx, collection, points)
}

func (f *flakyStore) DeleteByFilter(ctx context.Context, collection string, filter vectorstore.Filter) error {
	f.deletes++
	if f.deletes <= f.failCount {
		return fmt.Errorf("transient delete failure")
	}
	return f.fakeStore.DeleteByFilter(ctx, collection, filter)
}

func TestEngineSyncSkipsFileOnParserFailureAndContinues(t *testing.T) {
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.go"), []byte("broken"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "good.go"), []byte("package main\n"), 0o644))
	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add(".")
	require.NoError(t, err)
	_, err = wt.Commit("initial", &git.CommitOptions{
		Author: &object.Signature{Name: "test", Email: "test@example.com", When: time.Now()},
	})
	require.NoError(t, err)

	reg, err := registry.Load(filepath.Join(t.TempDir(), "repositories.yaml"))
	require.NoError(t, err)
	branch, err := defaultBranchOf(dir)
	require.NoError(t, err)
	require.NoError(t, reg.Add(&registry.Entry{
		Name:             "repo-a",
		LocalPath:        dir,
		DefaultBranch:    branch,
		ActiveBranch:     branch,
		AddedAsLocalPath: true,
	}))

	store := newFakeStore()
	mgr := collection.NewManager(store, "sagitta", 3, nil)
	engine := NewEngine(reg, mgr, failingChunker{failPath: "bad.go"}, fakeEmbedder{}, store, events.NewBroadcaster[events.SyncEvent]())

	result, err := engine.Sync(context.Background(), "repo-a", branch, false)
	require.NoError(t, err)
	require.Equal(t, 1, result.FilesIndexed)
	require.Equal(t, 1, result.FilesSkipped)
}

func TestEngineSyncAbortsOnEmbedderFailure(t *testing.T) {
	dir, _ := initRepoWithFile(t, "main.go", "package main\n")
	reg, err := registry.Load(filepath.Join(t.TempDir(), "repositories.yaml"))
	require.NoError(t, err)
	branch, err := defaultBranchOf(dir)
	require.NoError(t, err)
	require.NoError(t, reg.Add(&registry.Entry{
		Name:             "repo-a",
		LocalPath:        dir,
		DefaultBranch:    branch,
		ActiveBranch:     branch,
		AddedAsLocalPath: true,
	}))

	store := newFakeStore()
	mgr := collection.NewManager(store, "sagitta", 3, nil)
	engine := NewEngine(reg, mgr, fakeChunker{}, failingEmbedder{}, store, events.NewBroadcaster[events.SyncEvent]())

	_, err = engine.Sync(context.Background(), "repo-a", branch, false)
	require.Error(t, err)
}

func TestEngineSyncRetriesTransientVectorStoreFailure(t *testing.T) {
	dir, _ := initRepoWithFile(t, "main.go", "package main\n")
	reg, err := registry.Load(filepath.Join(t.TempDir(), "repositories.yaml"))
	require.NoError(t, err)
	branch, err := defaultBranchOf(dir)
	require.NoError(t, err)
	require.NoError(t, reg.Add(&registry.Entry{
		Name:             "repo-a",
		LocalPath:        dir,
		DefaultBranch:    branch,
		ActiveBranch:     branch,
		AddedAsLocalPath: true,
	}))

	store := newFlakyStore(vectorStoreRetries - 1)
	mgr := collection.NewManager(store.fakeStore, "sagitta", 3, nil)
	engine := NewEngine(reg, mgr, fakeChunker{}, fakeEmbedder{}, store, events.NewBroadcaster[events.SyncEvent]())

	result, err := engine.Sync(context.Background(), "repo-a", branch, false)
	require.NoError(t, err)
	require.Equal(t, 1, result.FilesIndexed)
}

func TestEngineSyncAbortsWhenVectorStoreRetriesExhausted(t *testing.T) {
	dir, _ := initRepoWithFile(t, "main.go", "package main\n")
	reg, err := registry.Load(filepath.Join(t.TempDir(), "repositories.yaml"))
	require.NoError(t, err)
	branch, err := defaultBranchOf(dir)
	require.NoError(t, err)
	require.NoError(t, reg.Add(&registry.Entry{
		Name:             "repo-a",
		LocalPath:        dir,
		DefaultBranch:    branch,
		ActiveBranch:     branch,
		AddedAsLocalPath: true,
	}))

	store := newFlakyStore(vectorStoreRetries + 10)
	mgr := collection.NewManager(store.fakeStore, "sagitta", 3, nil)
	engine := NewEngine(reg, mgr, fakeChunker{}, fakeEmbedder{}, store, events.NewBroadcaster[events.SyncEvent]())

	_, err = engine.Sync(context.Background(), "repo-a", branch, false)
	require.Error(t, err)
}

func defaultBranchOf(dir string) (string, error) {
	r, err := git.PlainOpen(dir)
	if err != nil {
		return "", err
	}
	head, err := r.Head()
	if err != nil {
		return "", err
	}
	return head.Name().Short(), nil
}
