// Package syncengine implements the diff planner and sync engine of spec
// §4.4: for a given (repository, branch) it brings the vector store's
// collection up to date with the working tree at the branch's current tip,
// re-using the donor's async.IndexProgress staged-polling idiom but pushed
// out through internal/events instead of sampled.
package syncengine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/sagittacore/sagitta/internal/chunk"
	"github.com/sagittacore/sagitta/internal/collection"
	"github.com/sagittacore/sagitta/internal/errors"
	"github.com/sagittacore/sagitta/internal/events"
	"github.com/sagittacore/sagitta/internal/gitrepo"
	"github.com/sagittacore/sagitta/internal/pointid"
	"github.com/sagittacore/sagitta/internal/registry"
	"github.com/sagittacore/sagitta/internal/vectorstore"
)

// SupportedExtensions is the fixed closed set of extensions a sync will
// ever touch (spec §4.4), keyed without the leading dot.
var SupportedExtensions = map[string]bool{
	"rs": true, "rb": true, "go": true, "js": true, "jsx": true,
	"ts": true, "tsx": true, "yaml": true, "yml": true, "md": true,
	"mdx": true, "py": true, "cpp": true, "cc": true, "h": true,
	"hpp": true, "c": true,
}

// Chunker is the narrow surface the engine needs from internal/chunk's
// MultiChunker, so tests can substitute a stub.
type Chunker interface {
	Chunk(ctx context.Context, file *chunk.FileInput) ([]*chunk.Chunk, error)
}

// Embedder is the narrow surface the engine needs from an embed.Pool.
type Embedder interface {
	EncodeBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Engine runs syncs for configured repositories against a vector store.
type Engine struct {
	registry   *registry.Registry
	integrity  *collection.Manager
	chunker    Chunker
	embedder   Embedder
	store      vectorstore.Store
	broadcaster *events.Broadcaster[events.SyncEvent]
}

// NewEngine wires the collaborators a sync needs. broadcaster may be nil,
// in which case events are computed but not published anywhere.
func NewEngine(reg *registry.Registry, integrity *collection.Manager, chunker Chunker, embedder Embedder, store vectorstore.Store, broadcaster *events.Broadcaster[events.SyncEvent]) *Engine {
	if broadcaster == nil {
		broadcaster = events.NewBroadcaster[events.SyncEvent]()
	}
	return &Engine{
		registry:    reg,
		integrity:   integrity,
		chunker:     chunker,
		embedder:    embedder,
		store:       store,
		broadcaster: broadcaster,
	}
}

// Result summarizes the outcome of one sync.
type Result struct {
	FilesIndexed int
	FilesDeleted int
	FilesSkipped int
	Message      string
}

// vectorStoreRetries bounds how many attempts a vector store write gets
// before the sync aborts (spec §4.4 failure semantics: "retried a bounded
// number of times (implementation-defined, >=1)").
const vectorStoreRetries = 3

// retryVectorStoreOp retries a vector store write with exponential backoff,
// grounded on the same cenkalti/backoff generic Retry idiom the rest of the
// dependency pack already carries as an indirect dependency.
func (e *Engine) retryVectorStoreOp(ctx context.Context, op func() error) error {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, op()
	}, backoff.WithMaxTries(vectorStoreRetries))
	return err
}

func (e *Engine) publish(repoName, branch string, stage events.Stage, format string, args ...any) {
	e.broadcaster.Publish(events.SyncEvent{
		Repository: repoName,
		Branch:     branch,
		Stage:      stage,
		Message:    fmt.Sprintf(format, args...),
		Timestamp:  time.Now(),
	})
}

// Sync brings repoName's branch collection up to date. When force is true
// the effective last-synced commit is treated as none, forcing a full
// re-index regardless of what the registry or collection integrity check
// would otherwise decide (spec §4.4 step 4 / the tool's `force` input).
func (e *Engine) Sync(ctx context.Context, repoName, branch string, force bool) (Result, error) {
	entry, ok := e.registry.Get(repoName)
	if !ok {
		return Result{}, errors.ValidationError(fmt.Sprintf("repository %q not found", repoName), nil)
	}
	if branch == "" {
		branch = entry.ActiveBranch
	}

	lock := e.integrity.Lock(repoName, branch)
	lock.Lock()
	defer lock.Unlock()

	auth := gitrepo.Auth{SSHKeyPath: entry.SSHKeyPath, SSHKeyPassphrase: entry.SSHKeyPassphrase}

	e.publish(repoName, branch, events.StageGitFetch, "fetching %s", repoName)
	repo, err := e.openOrClone(entry, auth)
	if err != nil {
		e.publish(repoName, branch, events.StageError, "%v", err)
		return Result{}, err
	}
	if err := repo.Fetch(auth); err != nil {
		e.publish(repoName, branch, events.StageError, "%v", err)
		return Result{}, err
	}
	if err := repo.Checkout(branch); err != nil {
		e.publish(repoName, branch, events.StageError, "%v", err)
		return Result{}, err
	}

	toCommit, err := repo.HeadCommit()
	if err != nil {
		e.publish(repoName, branch, events.StageError, "%v", err)
		return Result{}, err
	}

	lastSynced := entry.LastSyncedCommits[branch]
	if force {
		lastSynced = ""
	}

	e.publish(repoName, branch, events.StageVerifyingCollection, "verifying collection for %s@%s", repoName, branch)
	outcome, err := e.integrity.Ensure(ctx, repoName, branch, lastSynced)
	if err != nil {
		e.publish(repoName, branch, events.StageError, "%v", err)
		return Result{}, err
	}
	if outcome.RequiresFullReindex() {
		lastSynced = ""
	}

	e.publish(repoName, branch, events.StageDiffCalculation, "computing diff for %s@%s", repoName, branch)
	added, modified, deleted, err := e.plan(repo, lastSynced, toCommit)
	if err != nil {
		e.publish(repoName, branch, events.StageError, "%v", err)
		return Result{}, err
	}

	toIndex := append(append([]string{}, added...), modified...)
	e.publish(repoName, branch, events.StageCollectFiles, "%d files to index, %d to delete", len(toIndex), len(deleted))

	for _, path := range deleted {
		e.publish(repoName, branch, events.StageDeleteFile, "%s", path)
		path := path
		if err := e.retryVectorStoreOp(ctx, func() error {
			return e.store.DeleteByFilter(ctx, outcome.Name, vectorstore.Filter{FilePath: path, Branch: branch})
		}); err != nil {
			err = errors.VectorStoreError(fmt.Sprintf("delete file %q", path), err)
			e.publish(repoName, branch, events.StageError, "%v", err)
			return Result{}, err
		}
	}

	filesIndexed, filesSkipped := 0, 0
	for _, path := range toIndex {
		e.publish(repoName, branch, events.StageIndexFile, "%s", path)
		if err := e.indexFile(ctx, repo, outcome.Name, repoName, branch, path); err != nil {
			e.publish(repoName, branch, events.StageError, "%v", err)
			if errors.GetCode(err) == errors.ErrCodeParserError {
				// A single unparseable file is recorded and skipped; the
				// rest of the batch still gets indexed.
				filesSkipped++
				continue
			}
			return Result{}, err
		}
		filesIndexed++
	}

	if err := e.registry.SetLastSyncedCommit(repoName, branch, toCommit); err != nil {
		e.publish(repoName, branch, events.StageError, "%v", err)
		return Result{}, err
	}

	e.publish(repoName, branch, events.StageCompleted, "synced %s@%s at %s", repoName, branch, toCommit)
	return Result{
		FilesIndexed: filesIndexed,
		FilesDeleted: len(deleted),
		FilesSkipped: filesSkipped,
		Message:      fmt.Sprintf("synced %d files, skipped %d, deleted %d, at commit %s", filesIndexed, filesSkipped, len(deleted), toCommit),
	}, nil
}

func (e *Engine) openOrClone(entry *registry.Entry, auth gitrepo.Auth) (*gitrepo.Repo, error) {
	if _, err := os.Stat(filepath.Join(entry.LocalPath, ".git")); err == nil {
		return gitrepo.Open(entry.LocalPath)
	}
	if entry.AddedAsLocalPath {
		return gitrepo.Open(entry.LocalPath)
	}
	return gitrepo.Clone(entry.URL, entry.LocalPath, auth)
}

// plan determines which files are added, modified, or deleted between
// lastSynced and toCommit. An empty lastSynced means "never synced", in
// which case every currently-tracked supported file counts as added (spec
// §4.4 step 4's "none" case).
func (e *Engine) plan(repo *gitrepo.Repo, lastSynced, toCommit string) (added, modified, deleted []string, err error) {
	if lastSynced == "" {
		files, err := repo.AllTrackedFiles(toCommit, SupportedExtensions)
		if err != nil {
			return nil, nil, nil, err
		}
		return files, nil, nil, nil
	}
	if lastSynced == toCommit {
		return nil, nil, nil, nil
	}

	diff, err := repo.DiffCommits(lastSynced, toCommit)
	if err != nil {
		return nil, nil, nil, err
	}
	return filterSupported(diff.Added), filterSupported(diff.Modified), filterSupported(diff.Deleted), nil
}

func filterSupported(paths []string) []string {
	var out []string
	for _, p := range paths {
		if SupportedExtensions[extOf(p)] {
			out = append(out, p)
		}
	}
	return out
}

func extOf(path string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
}

func (e *Engine) indexFile(ctx context.Context, repo *gitrepo.Repo, collectionName, repoName, branch, path string) error {
	content, err := os.ReadFile(filepath.Join(repo.Path(), path))
	if err != nil {
		return errors.IOError(fmt.Sprintf("read %q", path), err)
	}

	chunks, err := e.chunker.Chunk(ctx, &chunk.FileInput{Path: path, Content: content})
	if err != nil {
		return errors.ParserError(fmt.Sprintf("chunk %q", path), err)
	}
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	vectors, err := e.embedder.EncodeBatch(ctx, texts)
	if err != nil {
		return errors.EmbedderError(fmt.Sprintf("embed %q", path), err)
	}
	if len(vectors) != len(chunks) {
		return errors.EmbedderError(fmt.Sprintf("embed %q", path), fmt.Errorf("got %d vectors for %d chunks", len(vectors), len(chunks)))
	}

	if err := e.retryVectorStoreOp(ctx, func() error {
		return e.store.DeleteByFilter(ctx, collectionName, vectorstore.Filter{FilePath: path, Branch: branch})
	}); err != nil {
		return errors.VectorStoreError(fmt.Sprintf("clear prior points for %q", path), err)
	}

	points := make([]vectorstore.Point, len(chunks))
	for i, c := range chunks {
		id := pointid.Derive(repoName, branch, path, c.StartLine, c.EndLine, c.Content)
		points[i] = vectorstore.Point{
			ID:     id,
			Vector: vectors[i],
			Payload: map[string]any{
				"repository":   repoName,
				"branch":       branch,
				"file_path":    path,
				"language":     c.Language,
				"element_type": string(c.ElementType),
				"start_line":   c.StartLine,
				"end_line":     c.EndLine,
				"content":      c.Content,
			},
		}
	}
	if err := e.retryVectorStoreOp(ctx, func() error {
		return e.store.Upsert(ctx, collectionName, points)
	}); err != nil {
		return errors.VectorStoreError(fmt.Sprintf("upsert points for %q", path), err)
	}
	return nil
}
