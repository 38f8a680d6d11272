package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/sagittacore/sagitta/internal/chunk"
	"github.com/sagittacore/sagitta/internal/collection"
	"github.com/sagittacore/sagitta/internal/config"
	"github.com/sagittacore/sagitta/internal/embed"
	"github.com/sagittacore/sagitta/internal/orchestrator"
	"github.com/sagittacore/sagitta/internal/queryengine"
	"github.com/sagittacore/sagitta/internal/registry"
	"github.com/sagittacore/sagitta/internal/reposcan"
	"github.com/sagittacore/sagitta/internal/syncengine"
	"github.com/sagittacore/sagitta/internal/tools"
	"github.com/sagittacore/sagitta/internal/vectorstore"
)

// runtimeDeps bundles every long-lived collaborator the serve/repo/search
// commands share, plus the closers their construction opened.
type runtimeDeps struct {
	cfg     *config.Config
	tools   *tools.Deps
	store   vectorstore.Store
	closers []func() error
}

// buildRuntimeDeps loads the merged configuration for dir and wires the
// vector store, embedder, chunker, registry, and engines every command
// that touches a repository needs (spec §3-§6's collaborator graph).
func buildRuntimeDeps(ctx context.Context, dir string, logger *slog.Logger) (*runtimeDeps, error) {
	if logger == nil {
		logger = slog.Default()
	}

	root, err := config.FindProjectRoot(dir)
	if err != nil {
		root = dir
	}
	cfg, err := config.Load(root)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	registryPath := cfg.Registry.Path
	if registryPath == "" {
		registryPath = filepath.Join(config.GetUserConfigDir(), "repositories.yaml")
	}
	reg, err := registry.Load(registryPath)
	if err != nil {
		return nil, fmt.Errorf("load repository registry: %w", err)
	}

	store, err := vectorstore.NewQdrantStore(vectorstore.Config{
		Host:   cfg.VectorStore.Host,
		Port:   cfg.VectorStore.Port,
		APIKey: cfg.VectorStore.APIKey,
		UseTLS: cfg.VectorStore.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to vector store: %w", err)
	}

	embedder, err := embed.NewEmbedder(ctx, embed.ParseProvider(cfg.Embeddings.Provider), cfg.Embeddings.Model)
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}
	dim := cfg.Embeddings.Dimensions
	if dim <= 0 {
		dim = embedder.Dimensions()
	}

	pool := embed.NewPool(embedder, cfg.Embeddings.BatchSize, cfg.Performance.IndexWorkers)

	integrity := collection.NewManager(store, cfg.VectorStore.CollectionPrefix, dim, logger)
	query := queryengine.NewEngine(embedder, store)

	chunker := chunk.NewMultiChunker()
	sync := syncengine.NewEngine(reg, integrity, chunker, pool, store, nil)

	scanner, err := reposcan.NewScanner(chunker, cfg.Performance.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("create repository map scanner: %w", err)
	}

	cwd, _ := os.Getwd()

	deps := &runtimeDeps{
		cfg:   cfg,
		store: store,
		tools: &tools.Deps{
			Registry:        reg,
			Sync:            sync,
			Query:           query,
			Collection:      integrity,
			RepoMap:         scanner,
			CurrentRepoPath: cwd,
		},
		closers: []func() error{
			func() error { chunker.Close(); return nil },
			embedder.Close,
		},
	}
	return deps, nil
}

// Close releases every collaborator buildRuntimeDeps opened, in reverse
// acquisition order.
func (d *runtimeDeps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			slog.Default().Debug("error closing runtime dependency", "error", err.Error())
		}
	}
}

// toolHandlers returns every registered tool dispatcher bound to d's
// collaborators, ready for either direct CLI invocation or
// orchestrator.NewExecutor.
func toolHandlers(d *runtimeDeps) map[string]orchestrator.Handler {
	return tools.Handlers(d.tools)
}

// defaultToolTimeout returns the orchestrator's configured per-tool
// timeout, falling back to a conservative default when unset or
// unparsable.
func defaultToolTimeout(cfg config.OrchestratorConfig) time.Duration {
	if cfg.DefaultToolTimeout != "" {
		if d, err := time.ParseDuration(cfg.DefaultToolTimeout); err == nil {
			return d
		}
	}
	return 30 * time.Second
}
